package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPersonas = map[string]string{
	"default":  "You are a helpful assistant.",
	"comedian": "You are a witty comedian.",
}

var testLanguages = map[string]string{
	"english": "Always respond in English.",
	"spanish": "Always respond in Spanish.",
}

func newComposer() *Composer {
	return NewComposer(testPersonas, testLanguages, "default")
}

func TestComposeOrdering(t *testing.T) {
	out := newComposer().Compose(Input{
		Persona:       "comedian",
		Language:      "english",
		Knowledge:     map[string]string{"rules": "no spoilers"},
		MemoryContext: "### Información relevante:\n1. something",
	})

	idxLang := strings.Index(out, "Always respond in English.")
	idxPersona := strings.Index(out, "You are a witty comedian.")
	idxGuidance := strings.Index(out, "concisas (1-3 oraciones)")
	idxKnowledge := strings.Index(out, "--- BEGIN RULES ---")
	idxMemory := strings.Index(out, "Información relevante")
	idxFinal := strings.Index(out, "INSTRUCCIÓN FINAL IMPORTANTE:")

	require.NotEqual(t, -1, idxLang)
	require.NotEqual(t, -1, idxPersona)
	require.NotEqual(t, -1, idxGuidance)
	require.NotEqual(t, -1, idxKnowledge)
	require.NotEqual(t, -1, idxMemory)
	require.NotEqual(t, -1, idxFinal)

	assert.Less(t, idxLang, idxPersona)
	assert.Less(t, idxPersona, idxGuidance)
	assert.Less(t, idxGuidance, idxKnowledge)
	assert.Less(t, idxKnowledge, idxMemory)
	assert.Less(t, idxMemory, idxFinal)

	// The language directive is restated at the very end.
	assert.True(t, strings.HasSuffix(out, "INSTRUCCIÓN FINAL IMPORTANTE: Always respond in English."))
}

func TestComposeKnowledgeFences(t *testing.T) {
	out := newComposer().Compose(Input{
		Persona:  "default",
		Language: "english",
		Knowledge: map[string]string{
			"alpha": "first doc",
			"beta":  "second doc",
		},
	})

	assert.Contains(t, out, "--- BEGIN ALPHA ---\nfirst doc\n--- END ALPHA ---")
	assert.Contains(t, out, "--- BEGIN BETA ---\nsecond doc\n--- END BETA ---")
	assert.Less(t, strings.Index(out, "BEGIN ALPHA"), strings.Index(out, "BEGIN BETA"))
	assert.Contains(t, out, "SOLO la información proporcionada")
}

func TestComposeWithoutOptionalBlocks(t *testing.T) {
	out := newComposer().Compose(Input{Persona: "default", Language: "english"})
	assert.NotContains(t, out, "BEGIN")
	assert.NotContains(t, out, "base de datos vectorial")
}

func TestUnknownPersonaFallsBack(t *testing.T) {
	out := newComposer().Compose(Input{Persona: "nonexistent", Language: "english"})
	assert.Contains(t, out, "You are a helpful assistant.")
}

func TestUnknownLanguageOmitsDirective(t *testing.T) {
	out := newComposer().Compose(Input{Persona: "default", Language: "klingon"})
	assert.NotContains(t, out, "INSTRUCCIÓN FINAL IMPORTANTE")
	assert.Contains(t, out, "You are a helpful assistant.")
}

func TestPlatformNote(t *testing.T) {
	out := newComposer().Compose(Input{
		Persona:  "default",
		Language: "english",
		Username: "alice",
		Platform: "twitch",
	})
	assert.Contains(t, out, "The user alice is chatting on twitch.")
}

func TestNameEnumeration(t *testing.T) {
	c := newComposer()
	assert.Equal(t, []string{"comedian", "default"}, c.PersonaNames())
	assert.Equal(t, []string{"english", "spanish"}, c.LanguageNames())
	assert.True(t, c.HasPersona("comedian"))
	assert.False(t, c.HasPersona("chef"))
	assert.True(t, c.HasLanguage("spanish"))
	assert.False(t, c.HasLanguage("french"))
}
