// Package gateway exposes the public HTTP surface: the /ws/chat websocket
// endpoint that fronts the realtime relay, plus health probes, Prometheus
// metrics, and the ticket API.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicedesk/voicedesk/internal/agent"
	"github.com/voicedesk/voicedesk/internal/auth"
	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/internal/health"
	"github.com/voicedesk/voicedesk/internal/observe"
	"github.com/voicedesk/voicedesk/internal/relay"
	"github.com/voicedesk/voicedesk/internal/ticket"
	"github.com/voicedesk/voicedesk/internal/tools"
)

// browserReadLimit mirrors the upstream read limit: 200 ms of base64 pcm16
// plus envelope does not fit in the library default of 32 KiB.
const browserReadLimit = 1 << 20

// resolveTimeout bounds the best-effort ticket resolution after a session
// ends. The request context is already done by then.
const resolveTimeout = 5 * time.Second

// UpstreamDialer opens the model-side connection for one session.
// *upstream.Dialer satisfies it.
type UpstreamDialer interface {
	Dial(ctx context.Context, persona *config.Persona) (*websocket.Conn, error)
}

// Config assembles a gateway from its collaborators.
type Config struct {
	Auth       *auth.Parser
	Controller *agent.Controller
	Dialer     UpstreamDialer
	Registry   *tools.Registry

	// Tickets is optional; without it sessions leave no record.
	Tickets *ticket.Store

	// Health serves /healthz and /readyz; optional.
	Health *health.Handler

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// AllowedOrigins are the browser origins admitted to /ws/chat and the
	// REST endpoints. Empty means same-origin only; "*" admits everyone.
	AllowedOrigins []string
}

// Gateway is the HTTP front of the voice service.
type Gateway struct {
	cfg     Config
	metrics *observe.Metrics

	// originPatterns is AllowedOrigins with schemes stripped, the form the
	// websocket accept check expects.
	originPatterns []string
	allowAll       bool
}

// New creates a gateway. The configuration is not validated beyond nil
// checks the compiler cannot do; wiring errors surface on first request.
func New(cfg Config) *Gateway {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	g := &Gateway{cfg: cfg, metrics: m}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			g.allowAll = true
			continue
		}
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		g.originPatterns = append(g.originPatterns, o)
	}
	return g
}

// Router builds the full route table.
func (g *Gateway) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.cors)

	if g.cfg.Health != nil {
		g.cfg.Health.Routes(r)
	}
	r.Handle("/metrics", promhttp.Handler())
	if g.cfg.Tickets != nil {
		g.cfg.Tickets.Routes(r)
	}
	r.Get("/ws/chat", g.handleChat)
	return r
}

// handleChat runs one voice session from accept to teardown. It blocks for
// the life of the websocket.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	identity, err := g.cfg.Auth.Parse(r.URL.Query().Get("jwt"))
	if err != nil {
		slog.Warn("gateway: rejected connection with malformed token", "err", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	browser, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.allowAll,
	})
	if err != nil {
		slog.Warn("gateway: websocket accept failed", "err", err)
		return
	}
	browser.SetReadLimit(browserReadLimit)

	role := agent.SelectRole(identity)
	persona := g.cfg.Controller.Persona(role)
	sessionID := uuid.NewString()

	log := slog.With("session_id", sessionID, "role", role, "authenticated", identity.Authenticated)
	log.Info("gateway: session started", "caller", identity.Name)

	dialStart := time.Now()
	up, err := g.cfg.Dialer.Dial(r.Context(), persona)
	g.metrics.UpstreamDialDuration.Record(r.Context(), time.Since(dialStart).Seconds())
	if err != nil {
		log.Error("gateway: upstream dial failed", "err", err)
		browser.Close(websocket.StatusInternalError, "upstream unavailable")
		return
	}

	ticketID := g.openTicket(r.Context(), sessionID, identity, role)

	rel := relay.New(browser, up, g.cfg.Registry, tools.Session{
		ID:       sessionID,
		Identity: identity,
		Role:     role,
	}, relay.Options{
		Tickets:      ticketLog(g.cfg.Tickets),
		TicketID:     ticketID,
		Metrics:      g.metrics,
		HandoffDelay: time.Duration(g.cfg.Controller.HandoffDelay(role)) * time.Millisecond,
	})

	if err := rel.Run(r.Context()); err != nil {
		log.Warn("gateway: session ended with error", "err", err)
	} else {
		log.Info("gateway: session ended")
	}

	g.closeTicket(ticketID)
}

// ticketLog converts a possibly-nil store into the relay's optional log
// without producing a non-nil interface holding a nil pointer.
func ticketLog(s *ticket.Store) relay.TranscriptLog {
	if s == nil {
		return nil
	}
	return s
}

func (g *Gateway) openTicket(ctx context.Context, sessionID string, identity auth.Identity, role config.Role) string {
	if g.cfg.Tickets == nil {
		return ""
	}
	id, err := g.cfg.Tickets.Create(ctx, sessionID, identity.Name, string(role))
	if err != nil {
		slog.Warn("gateway: ticket create failed", "session_id", sessionID, "err", err)
		return ""
	}
	return id
}

func (g *Gateway) closeTicket(ticketID string) {
	if g.cfg.Tickets == nil || ticketID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	if err := g.cfg.Tickets.Resolve(ctx, ticketID); err != nil {
		slog.Warn("gateway: ticket resolve failed", "ticket_id", ticketID, "err", err)
	}
}

// cors admits the configured browser origins to the REST endpoints. The
// websocket accept performs its own origin check.
func (g *Gateway) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && g.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) originAllowed(origin string) bool {
	if g.allowAll {
		return true
	}
	host := strings.TrimPrefix(origin, "https://")
	host = strings.TrimPrefix(host, "http://")
	for _, p := range g.originPatterns {
		if p == host {
			return true
		}
	}
	return false
}
