package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/streamforge/streambot/internal/history"
	"github.com/streamforge/streambot/internal/memory"
)

const deniedMessage = "You are not authorized to use this command."

// adminCommands require the platform's master user.
var adminCommands = map[string]bool{
	"persona":    true,
	"language":   true,
	"languages":  true,
	"knowledge":  true,
	"knowledges": true,
	"memory":     true,
	"intent":     true,
}

// dispatch executes one command (text after the prefix) and returns the
// response string.
func (r *Router) dispatch(ctx context.Context, commandText, username, channelID, platform string) string {
	parts := strings.SplitN(strings.TrimSpace(commandText), " ", 2)
	cmd := strings.ToLower(parts[0])
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	if adminCommands[cmd] && !r.isMaster(username, platform) {
		r.log.Warn().Str("user", username).Str("command", cmd).Msg("denied admin command")
		return deniedMessage
	}

	switch cmd {
	case "help":
		return r.cmdHelp()
	case "ping":
		return fmt.Sprintf("Pong! Bot is online. Platform: %s", platform)
	case "ai":
		return r.cmdAI(ctx, args, username, channelID, platform)
	case "persona":
		return r.cmdPersona(args)
	case "personas":
		return r.cmdPersonas()
	case "ask":
		return r.cmdAsk(ctx, args, username, channelID, platform)
	case "language":
		return r.cmdLanguage(args)
	case "languages":
		return r.cmdLanguages()
	case "knowledge":
		return r.cmdKnowledge(args, username, platform)
	case "knowledges":
		return r.cmdKnowledgeList()
	case "memory":
		return r.cmdMemory(ctx, args, channelID, platform)
	case "intent":
		return r.cmdIntent(args)
	case "racing":
		return r.cmdRacing(ctx, args)
	case "providers":
		return r.cmdProviders()
	}
	return fmt.Sprintf("Unknown command: %s. Type %shelp for a list of commands.", cmd, r.cfg.Bot.Prefix)
}

func (r *Router) isMaster(username, platform string) bool {
	master := r.cfg.MasterUser(platform)
	return master != "" && strings.EqualFold(master, username)
}

func (r *Router) cmdHelp() string {
	p := r.cfg.Bot.Prefix
	return fmt.Sprintf(
		"Available commands:\n"+
			"%[1]shelp - Show this help message\n"+
			"%[1]sping - Check if bot is online\n"+
			"%[1]sai <message> - Ask the AI a question\n"+
			"%[1]spersona <name> - Switch AI personality\n"+
			"%[1]spersonas - List available AI personas\n"+
			"%[1]sask <persona> <message> - Ask a one-time question to a specific persona\n"+
			"%[1]slanguage <language> - Switch the bot's language\n"+
			"%[1]slanguages - List available languages\n"+
			"%[1]sknowledge - Manage custom knowledge files\n"+
			"%[1]sknowledges - List available knowledge files\n"+
			"%[1]smemory - Inspect or import vector memory\n"+
			"%[1]sintent - Control intent detection\n"+
			"%[1]sracing <query> - Get racing data\n"+
			"%[1]sproviders - List data providers\n\n"+
			"You can also mention the bot using '%s' to get AI responses.",
		p, r.cfg.Bot.TriggerPhrase)
}

// complete runs one blocking LLM exchange and records the assistant turn.
func (r *Router) complete(ctx context.Context, message, personaOverride, username, channelID, platform string) string {
	req := r.buildRequest(ctx, message, personaOverride, username, channelID, platform)
	resp := r.llm.Complete(ctx, req)
	r.history.Append(username, channelID, history.RoleAssistant, resp)
	r.memory.StoreConversation(ctx, resp, username, platform, channelID, "assistant")
	return resp
}

func (r *Router) cmdAI(ctx context.Context, args, username, channelID, platform string) string {
	if args == "" {
		return fmt.Sprintf("Please provide a message after %sai", r.cfg.Bot.Prefix)
	}
	return r.complete(ctx, args, "", username, channelID, platform)
}

func (r *Router) cmdPersona(args string) string {
	if args == "" {
		return fmt.Sprintf("Current persona: %s\nAvailable personas: %s",
			r.Persona(), strings.Join(r.composer.PersonaNames(), ", "))
	}
	name := strings.ToLower(args)
	if !r.composer.HasPersona(name) {
		return fmt.Sprintf("Unknown persona '%s'. Available personas: %s",
			args, strings.Join(r.composer.PersonaNames(), ", "))
	}
	r.mu.Lock()
	r.persona = name
	r.mu.Unlock()
	return fmt.Sprintf("Persona changed to %s", name)
}

func (r *Router) cmdPersonas() string {
	current := r.Persona()
	var b strings.Builder
	b.WriteString("Available AI personas:\n\n")
	for _, name := range r.composer.PersonaNames() {
		desc := r.composer.PersonaPrompt(name)
		if len(desc) > 100 {
			desc = desc[:100] + "..."
		}
		marker := ""
		if name == current {
			marker = " [ACTIVE]"
		}
		fmt.Fprintf(&b, "• %s%s: %s\n", name, marker, desc)
	}
	return b.String()
}

func (r *Router) cmdAsk(ctx context.Context, args, username, channelID, platform string) string {
	if args == "" {
		return fmt.Sprintf("Usage: %sask <persona> <message>", r.cfg.Bot.Prefix)
	}
	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 {
		return "Please provide both a persona name and a message."
	}
	persona := strings.ToLower(parts[0])
	message := strings.TrimSpace(parts[1])

	if !r.composer.HasPersona(persona) {
		return fmt.Sprintf("Unknown persona '%s'. Available personas: %s",
			parts[0], strings.Join(r.composer.PersonaNames(), ", "))
	}

	req := r.buildRequest(ctx, message, persona, username, channelID, platform)
	resp := fmt.Sprintf("[%s] %s", strings.ToUpper(persona), r.llm.Complete(ctx, req))
	r.history.Append(username, channelID, history.RoleAssistant, resp)
	r.memory.StoreConversation(ctx, resp, username, platform, channelID, "assistant")
	return resp
}

func (r *Router) cmdLanguage(args string) string {
	if args == "" {
		return fmt.Sprintf("Current language: %s\nAvailable languages: %s",
			r.Language(), strings.Join(r.composer.LanguageNames(), ", "))
	}
	name := strings.ToLower(args)
	if !r.composer.HasLanguage(name) {
		return fmt.Sprintf("Unknown language '%s'. Available languages: %s",
			args, strings.Join(r.composer.LanguageNames(), ", "))
	}
	r.mu.Lock()
	r.language = name
	r.mu.Unlock()

	// Guidelines are per-language; a language switch swaps the template set.
	if err := r.detector.LoadGuidelines(name); err != nil {
		r.log.Warn().Err(err).Str("language", name).Msg("guidelines reload failed")
	}
	return fmt.Sprintf("Language changed to %s", name)
}

func (r *Router) cmdLanguages() string {
	current := r.Language()
	var b strings.Builder
	b.WriteString("Available languages:\n\n")
	for _, lang := range r.composer.LanguageNames() {
		desc := capitalize(lang)
		switch lang {
		case "english":
			desc = "English - Default language"
		case "spanish":
			desc = "Spanish (Español) - El bot responderá en español"
		}
		marker := ""
		if lang == current {
			marker = " [ACTIVE]"
		}
		fmt.Fprintf(&b, "• %s%s: %s\n", lang, marker, desc)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (r *Router) cmdKnowledge(args, username, platform string) string {
	if args == "" {
		p := r.cfg.Bot.Prefix
		return fmt.Sprintf(
			"Usage:\n"+
				"%[1]sknowledge list - List all knowledge files\n"+
				"%[1]sknowledge activate <name> - Activate a knowledge file\n"+
				"%[1]sknowledge deactivate <name> - Deactivate a knowledge file\n"+
				"%[1]sknowledge status - Show active knowledge files", p)
	}

	parts := strings.SplitN(args, " ", 2)
	action := strings.ToLower(parts[0])
	name := ""
	if len(parts) > 1 {
		name = strings.TrimSpace(parts[1])
	}

	switch {
	case action == "list":
		return r.cmdKnowledgeList()
	case action == "status":
		active := r.ActiveKnowledge()
		if len(active) == 0 {
			return "No knowledge files are currently active."
		}
		return fmt.Sprintf("Active knowledge files: %s", strings.Join(active, ", "))
	case action == "activate" && name != "":
		// Mutations get a second authorization check on top of the
		// dispatcher's admin gate.
		if !r.isMaster(username, platform) {
			return deniedMessage
		}
		if !r.ActivateKnowledge(name) {
			return fmt.Sprintf("Unknown knowledge file '%s'. Available: %s",
				name, strings.Join(r.library.List(), ", "))
		}
		return fmt.Sprintf("Knowledge file '%s' activated.", name)
	case action == "deactivate" && name != "":
		if !r.isMaster(username, platform) {
			return deniedMessage
		}
		if !r.deactivateKnowledge(name) {
			return fmt.Sprintf("Knowledge file '%s' is not active.", name)
		}
		return fmt.Sprintf("Knowledge file '%s' deactivated.", name)
	}
	return fmt.Sprintf("Invalid knowledge command. Type %sknowledge for usage information.", r.cfg.Bot.Prefix)
}

func (r *Router) deactivateKnowledge(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.activeKnowledge {
		if n == name {
			r.activeKnowledge = append(r.activeKnowledge[:i], r.activeKnowledge[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Router) cmdKnowledgeList() string {
	names := r.library.List()
	if len(names) == 0 {
		return "No knowledge files found."
	}
	return fmt.Sprintf("Available knowledge files: %s", strings.Join(names, ", "))
}

func (r *Router) cmdMemory(ctx context.Context, args, channelID, platform string) string {
	if args == "" {
		p := r.cfg.Bot.Prefix
		return fmt.Sprintf(
			"Usage:\n"+
				"%[1]smemory status - Show memory store status\n"+
				"%[1]smemory search <query> - Search stored memories\n"+
				"%[1]smemory import - Import this channel's history into memory", p)
	}

	parts := strings.SplitN(args, " ", 2)
	action := strings.ToLower(parts[0])
	rest := ""
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}

	switch action {
	case "status":
		if !r.memory.Enabled() {
			return "Vector memory is disabled."
		}
		return fmt.Sprintf("Vector memory is enabled. Conversations: %d, knowledge: %d.",
			r.memory.Count(memory.CollectionConversations), r.memory.Count(memory.CollectionKnowledge))
	case "search":
		if rest == "" {
			return fmt.Sprintf("Usage: %smemory search <query>", r.cfg.Bot.Prefix)
		}
		hits := r.memory.Search(ctx, rest, memory.CollectionConversations, nil, 3)
		hits = append(hits, r.memory.Search(ctx, rest, memory.CollectionKnowledge, nil, 3)...)
		if len(hits) == 0 {
			return "No matching memories found."
		}
		var b strings.Builder
		b.WriteString("Matching memories:\n")
		for _, h := range hits {
			fmt.Fprintf(&b, "• (%.2f) %s\n", h.Similarity, h.Content)
		}
		return b.String()
	case "import":
		imp, ok := r.importers[platform]
		if !ok {
			return fmt.Sprintf("History import is not available on %s.", platform)
		}
		stored, total := imp(ctx, channelID)
		return fmt.Sprintf("Imported %d/%d messages into memory.", stored, total)
	}
	return fmt.Sprintf("Invalid memory command. Type %smemory for usage information.", r.cfg.Bot.Prefix)
}

func (r *Router) cmdIntent(args string) string {
	switch strings.ToLower(args) {
	case "", "status":
		r.mu.RLock()
		enabled := r.intentEnabled
		r.mu.RUnlock()
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		return fmt.Sprintf("Intent detection is %s (guidelines language: %s).", state, r.detector.Language())
	case "on":
		r.mu.Lock()
		r.intentEnabled = true
		r.mu.Unlock()
		return "Intent detection enabled."
	case "off":
		r.mu.Lock()
		r.intentEnabled = false
		r.mu.Unlock()
		return "Intent detection disabled."
	}
	return fmt.Sprintf("Usage: %sintent [status|on|off]", r.cfg.Bot.Prefix)
}

func (r *Router) cmdRacing(ctx context.Context, args string) string {
	if args == "" {
		p := r.cfg.Bot.Prefix
		return fmt.Sprintf(
			"Usage: %[1]sracing <query>\n\n"+
				"Examples:\n"+
				"%[1]sracing list teams\n"+
				"%[1]sracing tracks available\n"+
				"%[1]sracing team statistics\n"+
				"%[1]sracing data packs", p)
	}

	for _, p := range r.registry.Providers() {
		if p.Name() != "Garage61" {
			continue
		}
		if !p.CanHandle(args) {
			return "Your query doesn't seem to be related to racing data. Try again with keywords like " +
				"'teams', 'drivers', 'tracks', 'cars', 'statistics', etc."
		}
		res, err := p.Query(ctx, args)
		if err != nil {
			r.log.Error().Err(err).Msg("racing query failed")
			return fmt.Sprintf("An error occurred while retrieving racing data: %v", err)
		}
		return "Racing data from Garage61:\n\n" + res.Format()
	}
	return "The Garage61 racing data provider is not available."
}

func (r *Router) cmdProviders() string {
	providers := r.registry.Providers()
	if len(providers) == 0 {
		return "No data providers are currently registered."
	}
	var entries []string
	for _, p := range providers {
		entries = append(entries, fmt.Sprintf("• %s: %s", p.Name(), p.Description()))
	}
	return "Available data providers:\n\n" + strings.Join(entries, "\n\n")
}
