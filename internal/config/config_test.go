package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "llama3", cfg.Ollama.Model)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbedModel)
	assert.Equal(t, 45*time.Second, cfg.Ollama.CompleteTimeout)
	assert.Equal(t, "!", cfg.Bot.Prefix)
	assert.True(t, cfg.Bot.EnableAIResponse)
	assert.Equal(t, "@bot", cfg.Bot.TriggerPhrase)
	assert.InDelta(t, 0.1, cfg.Bot.ResponseProbability, 1e-9)
	assert.Equal(t, "default", cfg.Bot.DefaultPersona)
	assert.Equal(t, "english", cfg.Bot.Language)
	assert.Equal(t, 20, cfg.Bot.HistorySize)
	assert.True(t, cfg.Memory.Enabled)
	assert.InDelta(t, 0.75, cfg.Memory.SimilarityThreshold, 1e-9)
	assert.True(t, cfg.Intent.Enabled)
	assert.Equal(t, "@every 1h", cfg.Knowledge.RescanSchedule)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	// Built-in personas and language prompts fill in when the file has none.
	assert.Contains(t, cfg.Bot.Personas, "default")
	assert.Contains(t, cfg.Bot.Personas, "streamer")
	assert.Contains(t, cfg.Bot.LanguagePrompts, "spanish")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("BOT_PREFIX", "?")
	t.Setenv("AI_RESPONSE_PROBABILITY", "0.5")
	t.Setenv("LANGUAGE", "Spanish")
	t.Setenv("DISCORD_MASTER_USER", "admin")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Ollama.Model)
	assert.Equal(t, "?", cfg.Bot.Prefix)
	assert.InDelta(t, 0.5, cfg.Bot.ResponseProbability, 1e-9)
	assert.Equal(t, "spanish", cfg.Bot.Language)
	assert.Equal(t, "admin", cfg.Discord.MasterUser)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bot:
  prefix: "$"
  trigger_phrase: "@streambot"
  always_respond:
    - discord
twitch:
  nick: mybot
  channel: myroom
intent:
  platforms:
    - twitch
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "$", cfg.Bot.Prefix)
	assert.Equal(t, "@streambot", cfg.Bot.TriggerPhrase)
	assert.Equal(t, "mybot", cfg.Twitch.Nick)
	assert.True(t, cfg.AlwaysRespondOn("discord"))
	assert.False(t, cfg.AlwaysRespondOn("twitch"))
	assert.True(t, cfg.IntentEnabledOn("twitch"))
	assert.False(t, cfg.IntentEnabledOn("discord"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	t.Setenv("LANGUAGE", "klingon")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "english", cfg.Bot.Language)
}

func TestUnknownPersonaFallsBack(t *testing.T) {
	t.Setenv("DEFAULT_PERSONA", "pirate")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Bot.DefaultPersona)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Bot.ResponseProbability = 1.5
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Bot.Prefix = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Memory.SimilarityThreshold = -0.1
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Bot.HistorySize = 0
	assert.Error(t, bad.Validate())
}

func TestMasterUser(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Discord.MasterUser = "alice"
	cfg.Twitch.MasterUser = "bob"

	assert.Equal(t, "alice", cfg.MasterUser("discord"))
	assert.Equal(t, "bob", cfg.MasterUser("Twitch"))
	assert.Equal(t, "console", cfg.MasterUser("console"))
	assert.Equal(t, "", cfg.MasterUser("irc"))
}
