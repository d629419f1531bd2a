// Package tools defines the function-tool registry the relay dispatches
// intercepted tool calls through. Handlers produce caller-facing text (sent
// upstream as function_call_output) and optionally a handoff signal.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voicedesk/voicedesk/internal/auth"
	"github.com/voicedesk/voicedesk/internal/config"
)

// Session is the per-connection state a handler may consult. Read-only for
// handlers.
type Session struct {
	// ID is the gateway session identifier.
	ID string

	// Identity is the resolved caller.
	Identity auth.Identity

	// Role is the active persona role.
	Role config.Role
}

// HandoffSignal asks the gateway to move the caller to another agent. The
// relay delays the browser notification so the persona can finish its
// transfer sentence.
type HandoffSignal struct {
	// Target is the role the caller should reconnect as.
	Target config.Role

	// Reason is the model-supplied transfer reason.
	Reason string

	// Context is optional free text for the next agent.
	Context string
}

// Result is a tool call outcome. Output always goes upstream; Handoff, when
// set, additionally triggers the browser-side agent switch.
type Result struct {
	Output  string
	Handoff *HandoffSignal
}

// Handler executes one tool call. args is the raw arguments JSON from the
// model; a handler returning an error has that error translated into a
// caller-facing Output by the registry.
type Handler func(ctx context.Context, sess Session, args json.RawMessage) (Result, error)

// Tool couples a handler with its dispatch policy.
type Tool struct {
	// Name matches the function name in the persona's tool schemas.
	Name string

	// RequiresAuth rejects the call before the handler runs when the
	// session is unauthenticated.
	RequiresAuth bool

	// Handler executes the call.
	Handler Handler
}

// BadArgumentsError reports a schema violation in the model-supplied
// arguments. The message is surfaced to the model so it can ask the caller a
// clarifying question.
type BadArgumentsError struct {
	Msg string
}

func (e *BadArgumentsError) Error() string { return e.Msg }

// BadArguments builds a *BadArgumentsError.
func BadArguments(format string, args ...any) error {
	return &BadArgumentsError{Msg: fmt.Sprintf(format, args...)}
}
