// Package prompt composes system prompts from persona, language, active
// knowledge, and retrieved memory context. The language directive opens the
// prompt and is restated at the end; models follow the last instruction far
// more reliably than one buried in the middle.
package prompt

import (
	"fmt"
	"sort"
	"strings"
)

const behaviorGuidance = "Presta atención al historial de conversación y al contexto proporcionado. " +
	"Tus respuestas deben ser concisas (1-3 oraciones) y adaptadas a la plataforma. " +
	"Evita cualquier tema controvertido y contenido potencialmente dañino."

const knowledgePreamble = "Tienes acceso a la siguiente base de conocimientos. " +
	"Usa esta información al responder preguntas:"

const knowledgePostamble = "Cuando respondas preguntas que se relacionen directamente con la base " +
	"de conocimientos, asegúrate de usar SOLO la información proporcionada."

const memoryPreamble = "A continuación hay información relevante de la base de datos vectorial " +
	"que puede ser útil para responder a la consulta del usuario. Esta información " +
	"proviene tanto de conversaciones pasadas como de la base de conocimientos."

// Composer builds system prompts from configured persona and language
// tables.
type Composer struct {
	personas        map[string]string
	languagePrompts map[string]string
	defaultPersona  string
}

// NewComposer returns a Composer over the given tables. defaultPersona is
// the fallback for unknown persona names.
func NewComposer(personas, languagePrompts map[string]string, defaultPersona string) *Composer {
	if _, ok := personas[defaultPersona]; !ok {
		defaultPersona = "default"
	}
	return &Composer{
		personas:        personas,
		languagePrompts: languagePrompts,
		defaultPersona:  defaultPersona,
	}
}

// Input carries everything a single composition needs.
type Input struct {
	Persona  string
	Language string
	// Knowledge maps knowledge name to its body; bodies are wrapped in
	// BEGIN/END blocks in name order.
	Knowledge map[string]string
	// MemoryContext is the retrieved memory block, empty when none.
	MemoryContext string
	// Username and Platform annotate who is talking and where.
	Username string
	Platform string
}

// PersonaPrompt returns the raw prompt for a persona name, falling back to
// the default persona.
func (c *Composer) PersonaPrompt(name string) string {
	if p, ok := c.personas[name]; ok {
		return p
	}
	return c.personas[c.defaultPersona]
}

// HasPersona reports whether the persona exists.
func (c *Composer) HasPersona(name string) bool {
	_, ok := c.personas[name]
	return ok
}

// PersonaNames returns all persona names, sorted.
func (c *Composer) PersonaNames() []string {
	names := make([]string, 0, len(c.personas))
	for n := range c.personas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasLanguage reports whether a language prompt exists.
func (c *Composer) HasLanguage(name string) bool {
	_, ok := c.languagePrompts[name]
	return ok
}

// LanguageNames returns all configured language names, sorted.
func (c *Composer) LanguageNames() []string {
	names := make([]string, 0, len(c.languagePrompts))
	for n := range c.languagePrompts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Compose builds the full system prompt.
func (c *Composer) Compose(in Input) string {
	languagePrompt := c.languagePrompts[in.Language]
	personaPrompt := c.PersonaPrompt(in.Persona)

	var b strings.Builder
	if languagePrompt != "" {
		b.WriteString(languagePrompt)
		b.WriteString("\n\n")
	}
	b.WriteString(personaPrompt)
	b.WriteString("\n\n")
	b.WriteString(behaviorGuidance)

	if block := knowledgeBlock(in.Knowledge); block != "" {
		b.WriteString("\n\n")
		b.WriteString(knowledgePreamble)
		b.WriteString("\n\n")
		b.WriteString(block)
		b.WriteString("\n\n")
		b.WriteString(knowledgePostamble)
	}

	if in.Username != "" && in.Platform != "" {
		fmt.Fprintf(&b, "\n\nThe user %s is chatting on %s.", in.Username, in.Platform)
	}

	if in.MemoryContext != "" {
		b.WriteString("\n\n")
		b.WriteString(memoryPreamble)
		b.WriteString("\n\n")
		b.WriteString(in.MemoryContext)
	}

	if languagePrompt != "" {
		fmt.Fprintf(&b, "\n\nINSTRUCCIÓN FINAL IMPORTANTE: %s", languagePrompt)
	}
	return b.String()
}

// knowledgeBlock wraps each knowledge body in a named BEGIN/END fence so
// the model can tell documents apart.
func knowledgeBlock(knowledge map[string]string) string {
	if len(knowledge) == 0 {
		return ""
	}
	names := make([]string, 0, len(knowledge))
	for n := range knowledge {
		names = append(names, n)
	}
	sort.Strings(names)

	var parts []string
	for _, n := range names {
		body := knowledge[n]
		if body == "" {
			continue
		}
		upper := strings.ToUpper(n)
		parts = append(parts, fmt.Sprintf("--- BEGIN %s ---\n%s\n--- END %s ---", upper, body, upper))
	}
	return strings.Join(parts, "\n\n")
}
