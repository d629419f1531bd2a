// Package agent decides which persona serves a session and shapes the
// handoff notification the browser receives. Transitions are never performed
// in-process: the gateway emits agent.handoff and the client reconnects as a
// brand-new session, which re-runs selection with or without a token.
package agent

import (
	"fmt"

	"github.com/voicedesk/voicedesk/internal/auth"
	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/internal/tools"
)

// Wire labels for the agent.handoff event. The browser protocol predates the
// role names, so roles map onto single letters.
const (
	WireGeneral = "A"
	WireAccount = "B"
)

// SelectRole picks the persona role for a caller: authenticated sessions get
// the account agent, everyone else the general one.
func SelectRole(id auth.Identity) config.Role {
	if id.Authenticated {
		return config.RoleAccount
	}
	return config.RoleGeneral
}

// WireLabel converts a role to its browser-facing letter.
func WireLabel(role config.Role) string {
	if role == config.RoleAccount {
		return WireAccount
	}
	return WireGeneral
}

// Controller resolves personas and handoff events for sessions. Read-only
// after construction; safe for concurrent use.
type Controller struct {
	personas *config.Personas
}

// NewController creates a controller over the loaded personas. Both roles
// must be configured; a missing persona is a boot-time error, not a
// per-session one.
func NewController(personas *config.Personas) (*Controller, error) {
	for _, role := range []config.Role{config.RoleGeneral, config.RoleAccount} {
		if personas.ByRole(role) == nil {
			return nil, fmt.Errorf("agent: no persona configured for role %q", role)
		}
	}
	return &Controller{personas: personas}, nil
}

// PersonaFor returns the persona serving the given caller.
func (c *Controller) PersonaFor(id auth.Identity) *config.Persona {
	return c.personas.ByRole(SelectRole(id))
}

// Persona returns the persona for an explicit role.
func (c *Controller) Persona(role config.Role) *config.Persona {
	return c.personas.ByRole(role)
}

// HandoffEvent is the custom event the gateway sends the browser when a
// transfer is signalled.
type HandoffEvent struct {
	Type        string `json:"type"`
	TargetAgent string `json:"target_agent"`
	Message     string `json:"message"`
}

// HandoffEventType is the Type value of every HandoffEvent.
const HandoffEventType = "agent.handoff"

// NewHandoffEvent shapes the browser notification for a handoff signal.
func NewHandoffEvent(sig *tools.HandoffSignal) HandoffEvent {
	msg := "Transferring you to the "
	if sig.Target == config.RoleAccount {
		msg += "account specialist."
	} else {
		msg += "general assistant."
	}
	return HandoffEvent{
		Type:        HandoffEventType,
		TargetAgent: WireLabel(sig.Target),
		Message:     msg,
	}
}

// HandoffDelay returns the configured post-signal delay for role, in
// milliseconds. Falls back to the default when the role is unknown.
func (c *Controller) HandoffDelay(role config.Role) int {
	if p := c.personas.ByRole(role); p != nil {
		return p.HandoffDelayMs
	}
	return config.DefaultHandoffDelayMs
}
