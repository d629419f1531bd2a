// Command voicedesk is the realtime voice-agent gateway: it fronts browser
// sessions, relays them to the upstream realtime model, and serves the
// knowledge-base, account-tool, and ticket APIs around them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voicedesk/voicedesk/internal/agent"
	"github.com/voicedesk/voicedesk/internal/auth"
	"github.com/voicedesk/voicedesk/internal/backend"
	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/internal/embeddings"
	ollamaembed "github.com/voicedesk/voicedesk/internal/embeddings/ollama"
	openaiembed "github.com/voicedesk/voicedesk/internal/embeddings/openai"
	"github.com/voicedesk/voicedesk/internal/gateway"
	"github.com/voicedesk/voicedesk/internal/health"
	"github.com/voicedesk/voicedesk/internal/observe"
	"github.com/voicedesk/voicedesk/internal/retrieval"
	"github.com/voicedesk/voicedesk/internal/retrieval/store"
	"github.com/voicedesk/voicedesk/internal/retrieval/store/pgvec"
	"github.com/voicedesk/voicedesk/internal/ticket"
	"github.com/voicedesk/voicedesk/internal/tools"
	"github.com/voicedesk/voicedesk/internal/tools/account"
	"github.com/voicedesk/voicedesk/internal/tools/kbsearch"
	"github.com/voicedesk/voicedesk/internal/upstream"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	personasPath := flag.String("personas", "configs/personas.yaml", "path to the persona configuration file")
	indexOnly := flag.Bool("index", false, "index the corpus into the vector store and exit")
	forceReindex := flag.Bool("force-reindex", false, "clear the vector store and re-embed the corpus")
	envFile := flag.String("env", ".env", "optional env file loaded before reading the environment")
	flag.Parse()

	// ── Environment ────────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voicedesk: load %s: %v\n", *envFile, err)
		return 1
	}
	cfg, err := config.GatewayFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicedesk: %v\n", err)
		return 1
	}

	// ── Logger ─────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("voicedesk starting",
		"version", version,
		"listen_addr", cfg.ListenAddr(),
		"log_level", cfg.LogLevel,
		"vector_store", cfg.UseVectorStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ──────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicedesk",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Personas ───────────────────────────────────────────────────────────────
	personas, err := config.LoadPersonas(*personasPath)
	if err != nil {
		slog.Error("failed to load personas", "path", *personasPath, "err", err)
		return 1
	}
	controller, err := agent.NewController(personas)
	if err != nil {
		slog.Error("persona configuration incomplete", "err", err)
		return 1
	}

	// ── Retrieval stack ────────────────────────────────────────────────────────
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		slog.Error("failed to build embedding provider", "err", err)
		return 1
	}
	vecStore, err := buildVectorStore(ctx, cfg, embedder)
	if err != nil {
		slog.Error("failed to open vector store", "err", err)
		return 1
	}
	if vecStore != nil {
		defer vecStore.Close()
	}

	kb, err := retrieval.New(retrieval.Config{
		CorpusPath:     cfg.CorpusPath,
		UseVectorStore: cfg.UseVectorStore,
	}, embedder, vecStore)
	if err != nil {
		slog.Error("failed to build retrieval service", "err", err)
		return 1
	}

	if cfg.UseVectorStore {
		n, err := kb.Index(ctx, *forceReindex)
		if err != nil {
			slog.Error("corpus indexing failed", "err", err)
			return 1
		}
		slog.Info("corpus indexed", "chunks", n)
	}
	if *indexOnly {
		return 0
	}

	// ── Account backend and tool table ─────────────────────────────────────────
	bank := backend.NewClient(cfg.BackendAPIBase)

	registry := tools.NewRegistry()
	registry.Register(kbsearch.New(kb))
	account.RegisterAll(registry, bank)
	registry.Register(tools.NewHandoff(config.RoleAccount))
	registry.Register(tools.NewHandoff(config.RoleGeneral))
	slog.Info("tool table assembled", "tools", registry.Names())

	// ── Tickets ────────────────────────────────────────────────────────────────
	tickets, err := ticket.Open(cfg.TicketDBPath)
	if err != nil {
		slog.Error("failed to open ticket store", "path", cfg.TicketDBPath, "err", err)
		return 1
	}
	defer tickets.Close()

	// ── HTTP server ────────────────────────────────────────────────────────────
	checkers := []health.Checker{health.Backend(bank)}
	if vecStore != nil {
		checkers = append(checkers, health.VectorStore(vecStore))
	}

	gw := gateway.New(gateway.Config{
		Auth:           auth.NewParser(),
		Controller:     controller,
		Dialer:         upstream.NewDialer(cfg),
		Registry:       registry,
		Tickets:        tickets,
		Health:         health.New(checkers...),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           gw.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	slog.Info("gateway ready", "addr", cfg.ListenAddr())

	select {
	case err := <-serveErr:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildEmbedder selects the embedding provider: a key means the OpenAI API
// shape, otherwise the endpoint is treated as an Ollama server.
func buildEmbedder(cfg *config.Gateway) (embeddings.Provider, error) {
	if !cfg.UseVectorStore {
		return nil, nil
	}
	if cfg.EmbeddingAPIKey != "" {
		var opts []openaiembed.Option
		if cfg.EmbeddingEndpoint != "" {
			opts = append(opts, openaiembed.WithBaseURL(cfg.EmbeddingEndpoint))
		}
		return openaiembed.New(cfg.EmbeddingAPIKey, cfg.EmbeddingModel, opts...)
	}
	return ollamaembed.New(cfg.EmbeddingEndpoint, cfg.EmbeddingModel)
}

// buildVectorStore opens the Postgres store when a DSN is configured and the
// local file store otherwise. Returns nil when retrieval runs keyword-only.
func buildVectorStore(ctx context.Context, cfg *config.Gateway, embedder embeddings.Provider) (store.Store, error) {
	if !cfg.UseVectorStore {
		return nil, nil
	}
	if cfg.PostgresDSN != "" {
		return pgvec.Open(ctx, cfg.PostgresDSN, embedder.Dimensions())
	}
	return store.OpenFileStore(cfg.VectorStoreDir)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
