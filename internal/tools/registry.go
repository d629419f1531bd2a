package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicedesk/voicedesk/internal/backend"
)

// Caller-facing error strings. These go upstream as function_call_output so
// the model can apologise or recover verbally; they are stable contract, not
// log text.
const (
	msgUnknownTool     = "error: unknown tool %s"
	msgAuthRequired    = "error: authentication required"
	msgBackendTimeout  = "I'm sorry, our systems are taking too long to respond. Please try that again in a moment."
	msgBackendFailure  = "I'm sorry, I couldn't reach our systems just now. Please try again shortly."
	msgInternalFailure = "I'm sorry, something went wrong handling that request."
)

// Registry maps tool names to handlers. Populate at boot, read-only after.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name panics: the tool table
// is assembled once at boot and a duplicate is a programming error.
func (r *Registry) Register(t Tool) {
	if t.Name == "" || t.Handler == nil {
		panic("tools: Register requires a name and a handler")
	}
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate tool %q", t.Name))
	}
	r.tools[t.Name] = t
}

// Names lists the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the named tool and translates every failure into a
// caller-facing Result. The only error return is context cancellation, in
// which case no output should be sent upstream at all.
func (r *Registry) Dispatch(ctx context.Context, sess Session, name string, args json.RawMessage) (Result, error) {
	start := time.Now()

	tool, ok := r.tools[name]
	if !ok {
		slog.Warn("tool call for unregistered tool", "session", sess.ID, "tool", name)
		return Result{Output: fmt.Sprintf(msgUnknownTool, name)}, nil
	}
	if tool.RequiresAuth && !sess.Identity.Authenticated {
		slog.Warn("unauthenticated tool call rejected", "session", sess.ID, "tool", name)
		return Result{Output: msgAuthRequired}, nil
	}

	res, err := tool.Handler(ctx, sess, args)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{Output: r.describeFailure(sess, name, err)}, nil
	}

	slog.Debug("tool call completed",
		"session", sess.ID, "tool", name, "elapsed", elapsed, "handoff", res.Handoff != nil)
	return res, nil
}

// describeFailure maps a handler error onto the string the model sees.
func (r *Registry) describeFailure(sess Session, name string, err error) string {
	var badArgs *BadArgumentsError
	switch {
	case errors.As(err, &badArgs):
		slog.Warn("tool call with bad arguments", "session", sess.ID, "tool", name, "err", err)
		return "error: " + badArgs.Msg
	case errors.Is(err, backend.ErrUnauthenticated):
		slog.Warn("backend rejected session token", "session", sess.ID, "tool", name)
		return msgAuthRequired
	case errors.Is(err, backend.ErrTimeout):
		slog.Warn("backend timeout during tool call", "session", sess.ID, "tool", name)
		return msgBackendTimeout
	case errors.Is(err, backend.ErrUnavailable):
		slog.Error("backend call failed", "session", sess.ID, "tool", name, "err", err)
		return msgBackendFailure
	default:
		slog.Error("tool handler failed", "session", sess.ID, "tool", name, "err", err)
		return msgInternalFailure
	}
}
