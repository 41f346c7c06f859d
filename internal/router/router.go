// Package router turns inbound chat messages into replies. It owns the
// bot's shared mutable state (active persona, language, knowledge set) and
// applies a fixed routing priority: command, intent template, trigger
// phrase, probabilistic classifier, silence.
package router

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/streamforge/streambot/internal/config"
	"github.com/streamforge/streambot/internal/history"
	"github.com/streamforge/streambot/internal/intent"
	"github.com/streamforge/streambot/internal/knowledge"
	"github.com/streamforge/streambot/internal/llm"
	"github.com/streamforge/streambot/internal/memory"
	"github.com/streamforge/streambot/internal/metrics"
	"github.com/streamforge/streambot/internal/prompt"
	"github.com/streamforge/streambot/internal/provider"
)

// LLM is the slice of the model client the router needs.
type LLM interface {
	Complete(ctx context.Context, req llm.Request) string
	CompleteStream(ctx context.Context, req llm.Request) <-chan string
	ClassifyShouldRespond(ctx context.Context, message string) (bool, string)
}

// Reply is the outcome of routing one message. Exactly one of Text or
// Stream is set; a nil Reply means stay silent.
type Reply struct {
	Text string
	// Stream delivers the reply in ordered fragments; the channel is
	// finite and the caller concatenates fragments for display.
	Stream <-chan string
}

// HistoryImporter pulls platform message history for one channel into the
// memory store. Adapters that support it register one on the router.
type HistoryImporter func(ctx context.Context, channelID string) (stored, total int)

var discordMentionRE = regexp.MustCompile(`<@!?\d+>`)

// Router routes messages and owns mutable bot state. State reads take the
// read lock; a reader racing a mutation may observe the previous value,
// which is acceptable for chat.
type Router struct {
	cfg      *config.Config
	llm      LLM
	history  *history.Store
	memory   *memory.Store
	detector *intent.Detector
	composer *prompt.Composer
	library  *knowledge.Library
	registry *provider.Registry
	log      zerolog.Logger

	mu              sync.RWMutex
	persona         string
	language        string
	activeKnowledge []string
	intentEnabled   bool

	rng      *rand.Rand
	rngMu    sync.Mutex
	streamed bool

	importers map[string]HistoryImporter
}

// Option customizes a Router.
type Option func(*Router)

// WithStreaming makes the LLM path return fragment streams instead of
// blocking strings.
func WithStreaming() Option {
	return func(r *Router) { r.streamed = true }
}

// WithRand overrides the probability source.
func WithRand(rng *rand.Rand) Option {
	return func(r *Router) { r.rng = rng }
}

// New builds a Router. Initial persona, language, and intent state come
// from the config.
func New(cfg *config.Config, model LLM, hist *history.Store, mem *memory.Store,
	det *intent.Detector, comp *prompt.Composer, lib *knowledge.Library,
	reg *provider.Registry, log zerolog.Logger, opts ...Option) *Router {

	r := &Router{
		cfg:           cfg,
		llm:           model,
		history:       hist,
		memory:        mem,
		detector:      det,
		composer:      comp,
		library:       lib,
		registry:      reg,
		log:           log,
		persona:       cfg.Bot.DefaultPersona,
		language:      cfg.Bot.Language,
		intentEnabled: cfg.Intent.Enabled,
		rng:           rand.New(rand.NewSource(rand.Int63())),
		importers:     make(map[string]HistoryImporter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Language returns the active response language.
func (r *Router) Language() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.language
}

// Persona returns the active persona name.
func (r *Router) Persona() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.persona
}

// IntentEnabled reports whether intent detection is switched on.
func (r *Router) IntentEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.intentEnabled
}

// ActiveKnowledge returns the active knowledge names.
func (r *Router) ActiveKnowledge() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.activeKnowledge))
	copy(out, r.activeKnowledge)
	return out
}

// ActivateKnowledge adds a knowledge file to the active set if it exists.
func (r *Router) ActivateKnowledge(name string) bool {
	if !r.library.Has(name) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.activeKnowledge {
		if n == name {
			return true
		}
	}
	r.activeKnowledge = append(r.activeKnowledge, name)
	return true
}

// RegisterImporter attaches a platform history importer.
func (r *Router) RegisterImporter(platform string, imp HistoryImporter) {
	r.importers[platform] = imp
}

// Route processes one inbound message and returns the reply, or nil for
// silence. Every responding path records exactly one assistant turn in the
// conversation history.
func (r *Router) Route(ctx context.Context, text, username, channelID, platform string) *Reply {
	metrics.MessagesReceived.WithLabelValues(platform).Inc()
	r.history.Append(username, channelID, history.RoleUser, text)
	r.memory.StoreConversation(ctx, text, username, platform, channelID, "user")

	// Commands outrank everything, including the trigger phrase.
	if strings.HasPrefix(text, r.cfg.Bot.Prefix) {
		resp := r.dispatch(ctx, strings.TrimPrefix(text, r.cfg.Bot.Prefix), username, channelID, platform)
		metrics.ResponsesSent.WithLabelValues("command").Inc()
		return &Reply{Text: resp}
	}

	if r.intentActiveOn(platform) {
		if reply := r.intentReply(text, username, channelID); reply != nil {
			metrics.ResponsesSent.WithLabelValues("intent").Inc()
			return reply
		}
	}

	if r.cfg.Bot.EnableAIResponse && (r.cfg.AlwaysRespondOn(platform) || r.isTriggered(text, platform)) {
		r.log.Debug().Str("user", username).Msg("trigger detected")
		metrics.ResponsesSent.WithLabelValues("llm").Inc()
		return r.aiReply(ctx, r.cleanTrigger(text), username, channelID, platform)
	}

	if r.cfg.Bot.EnableAIResponse && r.roll() < r.cfg.Bot.ResponseProbability {
		if ok, suggestion := r.llm.ClassifyShouldRespond(ctx, text); ok {
			r.history.Append(username, channelID, history.RoleAssistant, suggestion)
			r.memory.StoreConversation(ctx, suggestion, username, platform, channelID, "assistant")
			metrics.ResponsesSent.WithLabelValues("probability").Inc()
			return &Reply{Text: suggestion}
		}
	}

	return nil
}

func (r *Router) roll() float64 {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Float64()
}

func (r *Router) intentActiveOn(platform string) bool {
	r.mu.RLock()
	enabled := r.intentEnabled
	r.mu.RUnlock()
	return enabled && r.cfg.IntentEnabledOn(platform)
}

// intentReply returns a template reply when the strongest detected intent
// clears its guideline cutoff for this channel.
func (r *Router) intentReply(text, username, channelID string) *Reply {
	for _, det := range r.detector.Detect(text) {
		if !r.detector.ShouldRespond(det.Intent, channelID, det.Confidence) {
			continue
		}
		resp, ok := r.detector.ResponseFor(det.Intent, channelID)
		if !ok {
			continue
		}
		r.log.Debug().Str("intent", det.Intent).Float64("confidence", det.Confidence).Msg("intent template response")
		r.history.Append(username, channelID, history.RoleAssistant, resp)
		return &Reply{Text: resp}
	}
	return nil
}

// isTriggered checks the trigger phrase in its literal, sigil-stripped, and
// whitespace-stripped forms, plus platform mention tokens on Discord.
func (r *Router) isTriggered(text, platform string) bool {
	trigger := strings.ToLower(r.cfg.Bot.TriggerPhrase)
	if trigger == "" {
		return false
	}
	lower := strings.ToLower(text)

	if strings.Contains(lower, trigger) {
		return true
	}
	if bare := strings.ReplaceAll(trigger, "@", ""); bare != "" && strings.Contains(lower, bare) {
		return true
	}
	squeezed := strings.ReplaceAll(lower, " ", "")
	if strings.Contains(squeezed, strings.ReplaceAll(trigger, " ", "")) {
		return true
	}
	if platform == "discord" && discordMentionRE.MatchString(text) {
		return true
	}
	return false
}

// cleanTrigger strips trigger phrase occurrences and mention tokens. An
// empty remainder becomes a fixed greeting so the model never sees an empty
// prompt.
func (r *Router) cleanTrigger(text string) string {
	out := discordMentionRE.ReplaceAllString(text, "")
	if trigger := r.cfg.Bot.TriggerPhrase; trigger != "" {
		out = removeFold(out, trigger)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "Hello!"
	}
	return out
}

// removeFold removes every case-insensitive occurrence of sub from s.
func removeFold(s, sub string) string {
	lowerSub := strings.ToLower(sub)
	for {
		idx := strings.Index(strings.ToLower(s), lowerSub)
		if idx < 0 {
			return s
		}
		s = s[:idx] + s[idx+len(sub):]
	}
}

// aiReply runs the full LLM path: memory retrieval, prompt composition,
// history, completion, and bookkeeping of the assistant turn.
func (r *Router) aiReply(ctx context.Context, message, username, channelID, platform string) *Reply {
	req := r.buildRequest(ctx, message, "", username, channelID, platform)

	if r.streamed {
		return &Reply{Stream: r.streamAndRecord(ctx, req, username, channelID, platform)}
	}

	resp := r.llm.Complete(ctx, req)
	r.history.Append(username, channelID, history.RoleAssistant, resp)
	r.memory.StoreConversation(ctx, resp, username, platform, channelID, "assistant")
	return &Reply{Text: resp}
}

// buildRequest assembles the completion request. personaOverride, when set,
// substitutes the persona for this single request.
func (r *Router) buildRequest(ctx context.Context, message, personaOverride, username, channelID, platform string) llm.Request {
	r.mu.RLock()
	persona := r.persona
	language := r.language
	active := append([]string(nil), r.activeKnowledge...)
	r.mu.RUnlock()
	if personaOverride != "" {
		persona = personaOverride
	}

	system := r.composer.Compose(prompt.Input{
		Persona:       persona,
		Language:      language,
		Knowledge:     r.library.LoadAll(active),
		MemoryContext: r.memory.RelevantContext(ctx, message, username, channelID, platform),
		Username:      username,
		Platform:      platform,
	})

	turns := r.history.Turns(username, channelID)
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return llm.Request{Prompt: message, System: system, History: msgs}
}

// streamAndRecord relays the model stream while accumulating the full text,
// recording the assistant turn once the stream ends.
func (r *Router) streamAndRecord(ctx context.Context, req llm.Request, username, channelID, platform string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		var full strings.Builder
		for frag := range r.llm.CompleteStream(ctx, req) {
			full.WriteString(frag)
			select {
			case out <- frag:
			case <-ctx.Done():
				// Consumer stopped draining; abandon the reply unrecorded.
				return
			}
		}
		if full.Len() > 0 {
			r.history.Append(username, channelID, history.RoleAssistant, full.String())
			r.memory.StoreConversation(ctx, full.String(), username, platform, channelID, "assistant")
		}
	}()
	return out
}
