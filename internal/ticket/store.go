// Package ticket records each call as a service ticket: who called, which
// agent served them, the transcript, and the tool calls made. Storage is a
// local SQLite database; writes are best-effort from the relay's point of
// view, a ticket failure never ends a session.
package ticket

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Statuses a ticket moves through. Calls are resolved on clean close.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Speaker labels for interactions.
const (
	SpeakerUser  = "user"
	SpeakerAgent = "agent"
)

// Ticket is one recorded call.
type Ticket struct {
	ID              string        `json:"ticket_id"`
	SessionID       string        `json:"session_id"`
	CustomerName    string        `json:"customer_name"`
	AgentRole       string        `json:"agent_role"`
	Status          string        `json:"status"`
	Category        string        `json:"category"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	ResolutionNotes string        `json:"resolution_notes,omitempty"`
	Interactions    []Interaction `json:"interactions,omitempty"`
}

// Interaction is one transcript line or tool call within a ticket.
type Interaction struct {
	ID        int64     `json:"interaction_id"`
	TicketID  string    `json:"ticket_id"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	Message   string    `json:"message"`
	ToolCall  string    `json:"tool_call,omitempty"`
}

// Stats summarises the ticket database.
type Stats struct {
	Total      int            `json:"total_tickets"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
}

// Store is the SQLite-backed ticket database. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ticket database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket: open %q: %w", path, err)
	}
	// modernc sqlite serialises writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS tickets (
			ticket_id        TEXT PRIMARY KEY,
			session_id       TEXT NOT NULL,
			customer_name    TEXT NOT NULL,
			agent_role       TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'open',
			category         TEXT NOT NULL DEFAULT 'general_inquiry',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL,
			resolved_at      TEXT,
			summary          TEXT NOT NULL DEFAULT '',
			resolution_notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			interaction_id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id      TEXT NOT NULL REFERENCES tickets(ticket_id),
			timestamp      TEXT NOT NULL,
			speaker        TEXT NOT NULL,
			message        TEXT NOT NULL,
			tool_call      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_ticket ON interactions(ticket_id)`,
	}
	for _, q := range schema {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("ticket: ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Create opens a ticket for a new session and returns its id.
func (s *Store) Create(ctx context.Context, sessionID, customerName, agentRole string) (string, error) {
	now := time.Now().UTC()
	id := fmt.Sprintf("TKT-%s-%s", now.Format("20060102"),
		strings.ToUpper(uuid.NewString()[:8]))
	if customerName == "" {
		customerName = "Anonymous"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (ticket_id, session_id, customer_name, agent_role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, customerName, agentRole, StatusOpen,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("ticket: create: %w", err)
	}
	return id, nil
}

// LogInteraction appends one transcript line or tool call to a ticket.
func (s *Store) LogInteraction(ctx context.Context, ticketID, speaker, message, toolCall string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (ticket_id, timestamp, speaker, message, tool_call)
		VALUES (?, ?, ?, ?, ?)`,
		ticketID, now, speaker, message, toolCall)
	if err != nil {
		return fmt.Errorf("ticket: log interaction: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tickets SET updated_at = ? WHERE ticket_id = ?`, now, ticketID)
	if err != nil {
		return fmt.Errorf("ticket: touch ticket: %w", err)
	}
	return nil
}

// Resolve closes a ticket at end of call, auto-categorising it from the
// transcript and summarising it from the caller's first utterance.
func (s *Store) Resolve(ctx context.Context, ticketID string) error {
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("ticket: resolve: %q not found", ticketID)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		UPDATE tickets
		SET status = ?, category = ?, summary = ?, resolution_notes = ?, resolved_at = ?, updated_at = ?
		WHERE ticket_id = ?`,
		StatusResolved, categorize(t.Interactions), summarize(t.Interactions),
		"Call completed via voice agent", now, now, ticketID)
	if err != nil {
		return fmt.Errorf("ticket: resolve: %w", err)
	}
	return nil
}

// Get loads one ticket with its full interaction log, or nil if absent.
func (s *Store) Get(ctx context.Context, ticketID string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ticket_id, session_id, customer_name, agent_role, status, category,
		       created_at, updated_at, resolved_at, summary, resolution_notes
		FROM tickets WHERE ticket_id = ?`, ticketID)

	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket: get %q: %w", ticketID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT interaction_id, ticket_id, timestamp, speaker, message, tool_call
		FROM interactions WHERE ticket_id = ? ORDER BY interaction_id ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket: get interactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			in Interaction
			ts string
		)
		if err := rows.Scan(&in.ID, &in.TicketID, &ts, &in.Speaker, &in.Message, &in.ToolCall); err != nil {
			return nil, fmt.Errorf("ticket: scan interaction: %w", err)
		}
		in.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		t.Interactions = append(t.Interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ticket: iterate interactions: %w", err)
	}
	return t, nil
}

// List returns tickets newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status string, limit, offset int) ([]Ticket, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT ticket_id, session_id, customer_name, agent_role, status, category,
		       created_at, updated_at, resolved_at, summary, resolution_notes
		FROM tickets`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket: list: %w", err)
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket: scan: %w", err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ticket: iterate: %w", err)
	}
	return tickets, nil
}

// GetStats summarises ticket counts by status and category.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus:   make(map[string]int),
		ByCategory: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM tickets`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("ticket: stats total: %w", err)
	}

	for query, into := range map[string]map[string]int{
		`SELECT status, count(*) FROM tickets GROUP BY status`:     stats.ByStatus,
		`SELECT category, count(*) FROM tickets GROUP BY category`: stats.ByCategory,
	} {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("ticket: stats: %w", err)
		}
		for rows.Next() {
			var (
				key string
				n   int
			)
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("ticket: stats scan: %w", err)
			}
			into[key] = n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ticket: stats iterate: %w", err)
		}
		rows.Close()
	}
	return stats, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*Ticket, error) {
	var (
		t                Ticket
		created, updated string
		resolved         sql.NullString
	)
	err := row.Scan(&t.ID, &t.SessionID, &t.CustomerName, &t.AgentRole, &t.Status,
		&t.Category, &created, &updated, &resolved, &t.Summary, &t.ResolutionNotes)
	if err != nil {
		return nil, err
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if resolved.Valid {
		ts, err := time.Parse(time.RFC3339Nano, resolved.String)
		if err == nil {
			t.ResolvedAt = &ts
		}
	}
	return &t, nil
}

// categoryKeywords drive end-of-call auto-categorisation.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"account_inquiry", []string{"balance", "account", "savings"}},
	{"card_inquiry", []string{"card", "debit", "freeze", "lost", "stolen"}},
	{"interest_rates", []string{"interest", "rate", "yield"}},
	{"loan_inquiry", []string{"loan", "borrow"}},
	{"technical_issue", []string{"error", "bug", "broken", "not working"}},
	{"fees_charges", []string{"fee", "charge", "cost"}},
	{"promotions", []string{"promotion", "campaign", "cashback", "reward"}},
}

func categorize(interactions []Interaction) string {
	var b strings.Builder
	for _, in := range interactions {
		b.WriteString(strings.ToLower(in.Message))
		b.WriteByte(' ')
	}
	text := b.String()
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(text, w) {
				return ck.category
			}
		}
	}
	return "general_inquiry"
}

// summarize uses the caller's first utterance, truncated.
func summarize(interactions []Interaction) string {
	for _, in := range interactions {
		if in.Speaker == SpeakerUser && in.Message != "" {
			if len(in.Message) > 200 {
				return in.Message[:200] + "..."
			}
			return in.Message
		}
	}
	return "Customer inquiry via voice agent"
}
