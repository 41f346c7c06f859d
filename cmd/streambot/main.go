// Package main is the entry point for streambot, a Discord/Twitch chat bot
// backed by a local Ollama model with vector memory and intent routing.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/streamforge/streambot/internal/channel"
	"github.com/streamforge/streambot/internal/channel/console"
	"github.com/streamforge/streambot/internal/channel/discord"
	"github.com/streamforge/streambot/internal/channel/twitch"
	"github.com/streamforge/streambot/internal/config"
	"github.com/streamforge/streambot/internal/history"
	"github.com/streamforge/streambot/internal/intent"
	"github.com/streamforge/streambot/internal/knowledge"
	"github.com/streamforge/streambot/internal/llm"
	"github.com/streamforge/streambot/internal/logging"
	"github.com/streamforge/streambot/internal/memory"
	"github.com/streamforge/streambot/internal/prompt"
	"github.com/streamforge/streambot/internal/provider"
	"github.com/streamforge/streambot/internal/router"
	"github.com/streamforge/streambot/internal/scheduler"
	"github.com/streamforge/streambot/internal/server"
)

var (
	version = "0.1.0"
	cfgPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "streambot",
		Short: "Streambot - Discord/Twitch chat bot backed by a local Ollama model",
		Long: `Streambot bridges Discord and Twitch chat to a locally hosted LLM.

It answers on a trigger phrase or mention, replies to common intents from
configurable templates, remembers past conversations in a vector store, and
exposes commands for personas, languages, and knowledge files.

Run the bot:          streambot serve
Local chat session:   streambot console
Import a text file:   streambot import notes.txt
Check the backend:    streambot health`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (optional, environment variables apply either way)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("streambot v%s\n", version)
		},
	})
	rootCmd.AddCommand(serveCmd(), consoleCmd(), importCmd(), healthCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot against the configured platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Chat with the bot on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context())
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Chunk a text file into the vector memory store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0])
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the Ollama backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context())
		},
	}
}

// bot bundles the wired components a run mode needs.
type bot struct {
	cfg     *config.Config
	log     zerolog.Logger
	model   *llm.Client
	mem     *memory.Store
	library *knowledge.Library
	router  *router.Router
}

// buildBot wires config, model client, memory, and router. streaming makes
// LLM replies arrive as fragment streams (used by the console).
func buildBot(streaming bool) (*bot, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log := logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

	// The language option reads through the router so a !language command
	// switches apology texts too. rt is assigned before any request runs.
	var rt *router.Router
	model := llm.New(cfg.Ollama.BaseURL, cfg.Ollama.Model,
		llm.WithTimeouts(cfg.Ollama.CompleteTimeout, cfg.Ollama.StreamTimeout, cfg.Ollama.ClassifyTimeout),
		llm.WithLogger(logging.Component(log, "llm")),
		llm.WithLanguage(func() string {
			if rt == nil {
				return cfg.Bot.Language
			}
			return rt.Language()
		}),
	)

	mem := memory.Disabled()
	if cfg.Memory.Enabled {
		embedder := memory.FallbackEmbedder{
			Primary:  memory.NewOllamaEmbedder(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel),
			Fallback: memory.HashingEmbedder{},
		}
		mem, err = memory.Open(cfg.Memory.DBPath, embedder, cfg.Memory.SimilarityThreshold, cfg.Memory.MaxResults, logging.Component(log, "memory"))
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
	}

	detector := intent.NewDetector(cfg.Knowledge.Dir, cfg.Bot.Language, logging.Component(log, "intent"))
	composer := prompt.NewComposer(cfg.Bot.Personas, cfg.Bot.LanguagePrompts, cfg.Bot.DefaultPersona)
	library := knowledge.NewLibrary(cfg.Knowledge.Dir, logging.Component(log, "knowledge"))

	registry := provider.NewRegistry(logging.Component(log, "provider"))
	registry.Register(provider.NewGarage61(
		cfg.Providers.Garage61APIKey,
		cfg.Providers.Garage61BaseURL,
		cfg.Providers.Garage61SpecPath,
		logging.Component(log, "garage61"),
	))

	opts := []router.Option{}
	if streaming {
		opts = append(opts, router.WithStreaming())
	}
	rt = router.New(cfg, model, history.New(cfg.Bot.HistorySize), mem, detector, composer, library, registry,
		logging.Component(log, "router"), opts...)

	// All knowledge files present at startup begin active.
	for _, name := range library.List() {
		rt.ActivateKnowledge(name)
	}

	return &bot{cfg: cfg, log: log, model: model, mem: mem, library: library, router: rt}, nil
}

func runServe(ctx context.Context) error {
	b, err := buildBot(false)
	if err != nil {
		return err
	}
	defer b.mem.Close()

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	ok, status := b.model.HealthCheck(probeCtx)
	cancel()
	if !ok {
		return fmt.Errorf("ollama backend at %s failed health check: %s", b.cfg.Ollama.BaseURL, status)
	}
	b.log.Info().Str("status", status).Msg("backend healthy")

	srv := server.New(b.cfg.Server.Addr, b.router, b.mem, b.model, logging.Component(b.log, "server"))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Error().Err(err).Msg("http server failed")
		}
	}()

	if b.cfg.Knowledge.RescanSchedule != "" {
		sched, err := scheduler.New(b.library, b.mem, b.cfg.Knowledge.RescanSchedule, logging.Component(b.log, "scheduler"))
		if err != nil {
			return fmt.Errorf("bad rescan schedule %q: %w", b.cfg.Knowledge.RescanSchedule, err)
		}
		sched.Start()
		defer sched.Stop()
	}

	adapters := []channel.Adapter{
		discord.New(b.cfg.Discord.Token, b.cfg.Discord.Channels, logging.Component(b.log, "discord")),
		twitch.New(b.cfg.Twitch.Token, b.cfg.Twitch.Nick, b.cfg.Twitch.Channel, logging.Component(b.log, "twitch")),
	}
	started := 0
	for _, a := range adapters {
		if !a.IsEnabled() {
			b.log.Info().Str("platform", a.Name()).Msg("adapter not configured, skipping")
			continue
		}
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", a.Name(), err)
		}
		if d, ok := a.(*discord.Adapter); ok {
			b.router.RegisterImporter("discord", func(ctx context.Context, channelID string) (int, int) {
				msgs, err := d.FetchHistory(channelID, 100)
				if err != nil {
					b.log.Error().Err(err).Msg("history fetch failed")
					return 0, 0
				}
				return b.mem.ImportMessages(ctx, msgs)
			})
		}
		go channel.Pump(ctx, a, b.router, logging.Component(b.log, "pump"))
		started++
	}
	if started == 0 {
		return fmt.Errorf("no platform adapter configured; set DISCORD_TOKEN or TWITCH_TOKEN")
	}
	b.log.Info().Int("adapters", started).Msg("streambot running")

	<-ctx.Done()
	b.log.Info().Msg("shutting down")
	for _, a := range adapters {
		if a.IsEnabled() {
			a.Stop()
		}
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func runConsole(ctx context.Context) error {
	b, err := buildBot(true)
	if err != nil {
		return err
	}
	defer b.mem.Close()

	a := console.New(logging.Component(b.log, "console"))
	if err := a.Start(ctx); err != nil {
		return err
	}
	channel.Pump(ctx, a, b.router, logging.Component(b.log, "pump"))
	return nil
}

func runImport(ctx context.Context, path string) error {
	b, err := buildBot(false)
	if err != nil {
		return err
	}
	defer b.mem.Close()

	if !b.mem.Enabled() {
		return fmt.Errorf("vector memory is disabled; set ENABLE_VECTOR_MEMORY=true")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	stored, total := b.mem.ImportText(ctx, string(data), filepath.Base(path), "import", 500, 50)
	fmt.Printf("Imported %d of %d chunks from %s\n", stored, total, path)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	model := llm.New(cfg.Ollama.BaseURL, cfg.Ollama.Model)

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ok, status := model.HealthCheck(probeCtx)
	if !ok {
		return fmt.Errorf("backend %s unhealthy: %s", cfg.Ollama.BaseURL, status)
	}
	fmt.Printf("ok: %s (%s)\n", cfg.Ollama.BaseURL, status)
	return nil
}
