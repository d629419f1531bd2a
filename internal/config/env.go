package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Gateway holds the environment-derived runtime settings. Secrets stay in
// the environment rather than the persona YAML so the YAML can be committed.
type Gateway struct {
	// Upstream realtime peer.
	UpstreamEndpoint   string // UPSTREAM_REALTIME_ENDPOINT
	UpstreamAPIKey     string // UPSTREAM_API_KEY
	UpstreamDeployment string // UPSTREAM_DEPLOYMENT_NAME

	// Embedding service.
	EmbeddingEndpoint string // EMBEDDING_ENDPOINT
	EmbeddingAPIKey   string // EMBEDDING_API_KEY
	EmbeddingModel    string // EMBEDDING_MODEL

	// Account backend base URL.
	BackendAPIBase string // BACKEND_API_BASE

	// Retrieval.
	UseVectorStore bool   // USE_VECTOR_STORE (default true)
	CorpusPath     string // CORPUS_PATH
	VectorStoreDir string // VECTOR_STORE_DIR (file store)
	PostgresDSN    string // POSTGRES_DSN (pgvector store; overrides file store)

	// Tickets.
	TicketDBPath string // TICKET_DB_PATH

	// HTTP server.
	Host               string   // HOST (default 0.0.0.0)
	Port               int      // PORT (default 8080)
	CORSAllowedOrigins []string // CORS_ALLOWED_ORIGINS (comma-separated)

	// Logging.
	LogLevel LogLevel // LOG_LEVEL (default info)
}

// Defaults for optional environment settings.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8080
	DefaultCorpusPath     = "data/corpus.txt"
	DefaultVectorStoreDir = "data/vectorstore"
	DefaultTicketDBPath   = "data/tickets.db"
)

// GatewayFromEnv reads the gateway settings from the process environment and
// validates them. All failures are joined so a misconfigured deployment
// reports every problem at once.
func GatewayFromEnv() (*Gateway, error) {
	g := &Gateway{
		UpstreamEndpoint:   os.Getenv("UPSTREAM_REALTIME_ENDPOINT"),
		UpstreamAPIKey:     os.Getenv("UPSTREAM_API_KEY"),
		UpstreamDeployment: os.Getenv("UPSTREAM_DEPLOYMENT_NAME"),
		EmbeddingEndpoint:  os.Getenv("EMBEDDING_ENDPOINT"),
		EmbeddingAPIKey:    os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingModel:     os.Getenv("EMBEDDING_MODEL"),
		BackendAPIBase:     os.Getenv("BACKEND_API_BASE"),
		CorpusPath:         envOr("CORPUS_PATH", DefaultCorpusPath),
		VectorStoreDir:     envOr("VECTOR_STORE_DIR", DefaultVectorStoreDir),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		TicketDBPath:       envOr("TICKET_DB_PATH", DefaultTicketDBPath),
		Host:               envOr("HOST", DefaultHost),
		UseVectorStore:     true,
		LogLevel:           LogInfo,
	}

	var errs []error

	if v := os.Getenv("USE_VECTOR_STORE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("USE_VECTOR_STORE %q is not a boolean", v))
		} else {
			g.UseVectorStore = b
		}
	}

	g.Port = DefaultPort
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("PORT %q is not a valid port number", v))
		} else {
			g.Port = p
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				g.CORSAllowedOrigins = append(g.CORSAllowedOrigins, origin)
			}
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level := LogLevel(strings.ToLower(v))
		if !level.IsValid() {
			errs = append(errs, fmt.Errorf("LOG_LEVEL %q is invalid; valid values: debug, info, warn, error", v))
		} else {
			g.LogLevel = level
		}
	}

	if g.UpstreamEndpoint == "" {
		errs = append(errs, errors.New("UPSTREAM_REALTIME_ENDPOINT is required"))
	}
	if g.UpstreamAPIKey == "" {
		errs = append(errs, errors.New("UPSTREAM_API_KEY is required"))
	}
	if g.UseVectorStore && g.EmbeddingEndpoint == "" && g.EmbeddingAPIKey == "" {
		errs = append(errs, errors.New("EMBEDDING_ENDPOINT or EMBEDDING_API_KEY is required when USE_VECTOR_STORE is true"))
	}
	if g.BackendAPIBase == "" {
		errs = append(errs, errors.New("BACKEND_API_BASE is required"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	return g, nil
}

// ListenAddr is the host:port the HTTP server binds.
func (g *Gateway) ListenAddr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
