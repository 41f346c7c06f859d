package router

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/streambot/internal/config"
	"github.com/streamforge/streambot/internal/history"
	"github.com/streamforge/streambot/internal/intent"
	"github.com/streamforge/streambot/internal/knowledge"
	"github.com/streamforge/streambot/internal/llm"
	"github.com/streamforge/streambot/internal/memory"
	"github.com/streamforge/streambot/internal/prompt"
	"github.com/streamforge/streambot/internal/provider"
)

type fakeLLM struct {
	response      string
	completeCalls int
	lastReq       llm.Request
	classifyOK    bool
	suggestion    string
	fragments     []string
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) string {
	f.completeCalls++
	f.lastReq = req
	return f.response
}

func (f *fakeLLM) CompleteStream(ctx context.Context, req llm.Request) <-chan string {
	f.lastReq = req
	out := make(chan string)
	go func() {
		defer close(out)
		for _, frag := range f.fragments {
			select {
			case out <- frag:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeLLM) ClassifyShouldRespond(context.Context, string) (bool, string) {
	return f.classifyOK, f.suggestion
}

func testConfig() *config.Config {
	return &config.Config{
		Bot: config.BotConfig{
			Prefix:              "!",
			EnableAIResponse:    true,
			TriggerPhrase:       "@bot",
			ResponseProbability: 0,
			DefaultPersona:      "default",
			Language:            "english",
			HistorySize:         20,
			Personas:            config.DefaultPersonas,
			LanguagePrompts:     config.DefaultLanguagePrompts,
		},
		Discord: config.DiscordConfig{MasterUser: "admin"},
		Twitch:  config.TwitchConfig{MasterUser: "boss"},
	}
}

type fixture struct {
	router *Router
	llm    *fakeLLM
	cfg    *config.Config
	hist   *history.Store
	det    *intent.Detector
	lib    *knowledge.Library
}

func newFixture(t *testing.T, cfg *config.Config, opts ...Option) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	model := &fakeLLM{response: "model says hi"}
	hist := history.New(cfg.Bot.HistorySize)
	det := intent.NewDetector(t.TempDir(), cfg.Bot.Language, zerolog.Nop())
	comp := prompt.NewComposer(cfg.Bot.Personas, cfg.Bot.LanguagePrompts, cfg.Bot.DefaultPersona)
	lib := knowledge.NewLibrary(t.TempDir(), zerolog.Nop())
	reg := provider.NewRegistry(zerolog.Nop())
	reg.Register(provider.NewGarage61("", "https://example.test/api", "missing.json", zerolog.Nop()))

	r := New(cfg, model, hist, memory.Disabled(), det, comp, lib, reg, zerolog.Nop(), opts...)
	return &fixture{router: r, llm: model, cfg: cfg, hist: hist, det: det, lib: lib}
}

func (f *fixture) route(text string) *Reply {
	return f.router.Route(context.Background(), text, "alice", "c1", "discord")
}

func (f *fixture) routeAs(user, text string) *Reply {
	return f.router.Route(context.Background(), text, user, "c1", "discord")
}

func TestCommandBeatsTrigger(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("!ping @bot are you there")
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Pong! Bot is online. Platform: discord")
	assert.Zero(t, f.llm.completeCalls, "command path must not reach the model")
}

func TestTriggerOnlyBecomesGreeting(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("@bot")
	require.NotNil(t, reply)
	assert.Equal(t, "model says hi", reply.Text)
	assert.Equal(t, "Hello!", f.llm.lastReq.Prompt, "empty prompt must become the fixed greeting")
}

func TestTriggerStripsPhrase(t *testing.T) {
	f := newFixture(t, nil)
	f.route("@bot tell me a joke")
	assert.Equal(t, "tell me a joke", f.llm.lastReq.Prompt)
}

func TestDiscordMentionTriggers(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("<@123456789> what time is it")
	require.NotNil(t, reply)
	assert.Equal(t, "what time is it", f.llm.lastReq.Prompt)
}

func TestLLMPathRecordsBothTurns(t *testing.T) {
	f := newFixture(t, nil)
	f.route("@bot hello there")

	turns := f.hist.Turns("alice", "c1")
	require.Len(t, turns, 2)
	assert.Equal(t, history.RoleUser, turns[0].Role)
	assert.Equal(t, "@bot hello there", turns[0].Content)
	assert.Equal(t, history.RoleAssistant, turns[1].Role)
	assert.Equal(t, "model says hi", turns[1].Content)
}

func TestSilenceWithoutTrigger(t *testing.T) {
	f := newFixture(t, nil)
	assert.Nil(t, f.route("just chatting with friends"))
	// The user turn is still recorded.
	assert.Equal(t, 1, f.hist.Len("alice", "c1"))
}

func TestProbabilityPathUsesClassifier(t *testing.T) {
	cfg := testConfig()
	cfg.Bot.ResponseProbability = 1.0
	f := newFixture(t, cfg, WithRand(rand.New(rand.NewSource(1))))
	f.llm.classifyOK = true
	f.llm.suggestion = "I can answer that"

	reply := f.route("does anyone know the answer")
	require.NotNil(t, reply)
	assert.Equal(t, "I can answer that", reply.Text)

	turns := f.hist.Turns("alice", "c1")
	require.Len(t, turns, 2)
	assert.Equal(t, "I can answer that", turns[1].Content)
}

func TestProbabilityPathFailsClosed(t *testing.T) {
	cfg := testConfig()
	cfg.Bot.ResponseProbability = 1.0
	f := newFixture(t, cfg)
	f.llm.classifyOK = false
	assert.Nil(t, f.route("does anyone know the answer"))
}

func TestAIDisabledSkipsModelPaths(t *testing.T) {
	cfg := testConfig()
	cfg.Bot.EnableAIResponse = false
	f := newFixture(t, cfg)
	assert.Nil(t, f.route("@bot hello"))

	reply := f.route("!ping")
	require.NotNil(t, reply, "commands still work with AI responses disabled")
}

func TestAlwaysRespondPlatform(t *testing.T) {
	cfg := testConfig()
	cfg.Bot.AlwaysRespond = []string{"discord"}
	f := newFixture(t, cfg)

	reply := f.route("no trigger phrase here")
	require.NotNil(t, reply)
	assert.Equal(t, "model says hi", reply.Text)
}

func TestIntentTemplateShortCircuitsLLM(t *testing.T) {
	cfg := testConfig()
	cfg.Bot.AlwaysRespond = []string{"discord"}
	cfg.Intent.Enabled = true
	f := newFixture(t, cfg)

	// Bilingual greeting hits two patterns, clearing the medium cutoff.
	reply := f.route("hi hola")
	require.NotNil(t, reply)
	assert.Zero(t, f.llm.completeCalls, "intent template must answer without the model")

	turns := f.hist.Turns("alice", "c1")
	require.Len(t, turns, 2)
	assert.Equal(t, history.RoleAssistant, turns[1].Role)
	assert.Equal(t, reply.Text, turns[1].Content)
}

func TestIntentBelowCutoffFallsThrough(t *testing.T) {
	cfg := testConfig()
	cfg.Intent.Enabled = true
	f := newFixture(t, cfg)

	// One greeting pattern only: 0.3 < the medium cutoff, and no trigger.
	assert.Nil(t, f.route("hello friends"))
}

func TestAdminCommandDeniedForNonMaster(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.routeAs("mallory", "!persona expert")
	require.NotNil(t, reply)
	assert.Equal(t, deniedMessage, reply.Text)
	assert.Equal(t, "default", f.router.Persona(), "denied command must not mutate state")
}

func TestPersonaSwitchByMaster(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.routeAs("admin", "!persona expert")
	require.NotNil(t, reply)
	assert.Equal(t, "Persona changed to expert", reply.Text)
	assert.Equal(t, "expert", f.router.Persona())
}

func TestUnknownPersonaEnumeratesNames(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.routeAs("admin", "!persona wizard")
	require.NotNil(t, reply)
	for _, name := range []string{"comedian", "default", "expert", "motivator", "streamer"} {
		assert.Contains(t, reply.Text, name)
	}
	assert.Equal(t, "default", f.router.Persona())
}

func TestLanguageSwitchReloadsGuidelines(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.routeAs("admin", "!language spanish")
	require.NotNil(t, reply)
	assert.Equal(t, "Language changed to spanish", reply.Text)
	assert.Equal(t, "spanish", f.router.Language())
	assert.Equal(t, "spanish", f.det.Language())
}

func TestAskPrefixesPersona(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("!ask comedian tell me a joke")
	require.NotNil(t, reply)
	assert.True(t, strings.HasPrefix(reply.Text, "[COMEDIAN] "), reply.Text)

	turns := f.hist.Turns("alice", "c1")
	assert.Equal(t, reply.Text, turns[len(turns)-1].Content)
}

func TestAskUnknownPersona(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("!ask wizard do magic")
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Unknown persona 'wizard'")
	assert.Zero(t, f.llm.completeCalls)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("!frobnicate")
	require.NotNil(t, reply)
	assert.Equal(t, "Unknown command: frobnicate. Type !help for a list of commands.", reply.Text)
}

func TestAICommandRequiresMessage(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("!ai")
	require.NotNil(t, reply)
	assert.Equal(t, "Please provide a message after !ai", reply.Text)

	reply = f.route("!ai what is go")
	require.NotNil(t, reply)
	assert.Equal(t, "model says hi", reply.Text)
	assert.Equal(t, "what is go", f.llm.lastReq.Prompt)
}

func TestRacingCommandWithoutKey(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("!racing list teams")
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Racing data from Garage61:")
	assert.Contains(t, reply.Text, "no API key")
}

func TestRacingCommandRejectsOffTopic(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("!racing what is the weather")
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "doesn't seem to be related to racing data")
}

func TestProvidersCommand(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.route("!providers")
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Garage61")
}

func TestMemoryStatusDisabled(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.routeAs("admin", "!memory status")
	require.NotNil(t, reply)
	assert.Equal(t, "Vector memory is disabled.", reply.Text)
}

func TestIntentToggle(t *testing.T) {
	cfg := testConfig()
	cfg.Intent.Enabled = true
	f := newFixture(t, cfg)

	reply := f.routeAs("admin", "!intent off")
	require.NotNil(t, reply)
	assert.Equal(t, "Intent detection disabled.", reply.Text)
	assert.Nil(t, f.route("hi hola"), "templates must not fire while disabled")

	reply = f.routeAs("admin", "!intent on")
	require.NotNil(t, reply)
	assert.Equal(t, "Intent detection enabled.", reply.Text)
}

func TestStreamedReplyRecordsFullText(t *testing.T) {
	f := newFixture(t, nil, WithStreaming())
	f.llm.fragments = []string{"Hel", "lo ", "there"}

	reply := f.route("@bot greet me")
	require.NotNil(t, reply)
	require.NotNil(t, reply.Stream)

	var full strings.Builder
	for frag := range reply.Stream {
		full.WriteString(frag)
	}
	assert.Equal(t, "Hello there", full.String())

	turns := f.hist.Turns("alice", "c1")
	require.Len(t, turns, 2)
	assert.Equal(t, "Hello there", turns[1].Content)
}

func TestStreamClosesWhenConsumerCancels(t *testing.T) {
	f := newFixture(t, nil, WithStreaming())
	f.llm.fragments = []string{"one", "two", "three", "four"}

	ctx, cancel := context.WithCancel(context.Background())
	reply := f.router.Route(ctx, "@bot keep talking", "alice", "c1", "discord")
	require.NotNil(t, reply)
	require.NotNil(t, reply.Stream)

	// Take one fragment, then walk away mid-stream.
	<-reply.Stream
	cancel()

	closed := false
	timeout := time.After(2 * time.Second)
	for !closed {
		select {
		case _, ok := <-reply.Stream:
			closed = !ok
		case <-timeout:
			t.Fatal("stream did not close after cancellation")
		}
	}

	// An abandoned reply is never recorded as an assistant turn.
	turns := f.hist.Turns("alice", "c1")
	require.Len(t, turns, 1)
	assert.Equal(t, history.RoleUser, turns[0].Role)
}

func TestSystemPromptCarriesStateAndContext(t *testing.T) {
	f := newFixture(t, nil)
	f.routeAs("admin", "!persona comedian")
	f.route("@bot say something funny")

	sys := f.llm.lastReq.System
	assert.Contains(t, sys, "witty comedian")
	assert.Contains(t, sys, "The user alice is chatting on discord.")
	assert.Contains(t, sys, "INSTRUCCIÓN FINAL IMPORTANTE")
}
