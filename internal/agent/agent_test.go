package agent_test

import (
	"strings"
	"testing"

	"github.com/voicedesk/voicedesk/internal/agent"
	"github.com/voicedesk/voicedesk/internal/auth"
	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/internal/tools"
)

const twoPersonas = `
agents:
  - role_id: general
    voice_id: alloy
    intro_utterance: Hi.
    instructions: Help everyone.
    handoff_delay_ms: 1000
  - role_id: account
    voice_id: shimmer
    intro_utterance: Hello.
    instructions: Help signed-in callers.
    handoff_delay_ms: 2000
`

func newController(t *testing.T) *agent.Controller {
	t.Helper()
	p, err := config.LoadPersonasFromReader(strings.NewReader(twoPersonas))
	if err != nil {
		t.Fatal(err)
	}
	c, err := agent.NewController(p)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSelectRole(t *testing.T) {
	if got := agent.SelectRole(auth.Guest()); got != config.RoleGeneral {
		t.Errorf("guest role = %q", got)
	}
	id := auth.Identity{Token: "tok", Name: "Alex", Authenticated: true}
	if got := agent.SelectRole(id); got != config.RoleAccount {
		t.Errorf("authenticated role = %q", got)
	}
}

func TestControllerRequiresBothRoles(t *testing.T) {
	yaml := `
agents:
  - role_id: general
    voice_id: alloy
    intro_utterance: Hi.
    instructions: Help.
`
	p, err := config.LoadPersonasFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := agent.NewController(p); err == nil {
		t.Fatal("expected error for missing account persona")
	}
}

func TestPersonaFor(t *testing.T) {
	c := newController(t)

	if got := c.PersonaFor(auth.Guest()); got.VoiceID != "alloy" {
		t.Errorf("guest persona voice = %q", got.VoiceID)
	}
	id := auth.Identity{Token: "tok", Authenticated: true}
	if got := c.PersonaFor(id); got.VoiceID != "shimmer" {
		t.Errorf("authenticated persona voice = %q", got.VoiceID)
	}
}

func TestHandoffEvent(t *testing.T) {
	ev := agent.NewHandoffEvent(&tools.HandoffSignal{Target: config.RoleAccount, Reason: "needs balance"})
	if ev.Type != agent.HandoffEventType {
		t.Errorf("Type = %q", ev.Type)
	}
	if ev.TargetAgent != agent.WireAccount {
		t.Errorf("TargetAgent = %q, want B", ev.TargetAgent)
	}
	if !strings.Contains(ev.Message, "account specialist") {
		t.Errorf("Message = %q", ev.Message)
	}

	ev = agent.NewHandoffEvent(&tools.HandoffSignal{Target: config.RoleGeneral, Reason: "done"})
	if ev.TargetAgent != agent.WireGeneral {
		t.Errorf("TargetAgent = %q, want A", ev.TargetAgent)
	}
}

func TestHandoffDelay(t *testing.T) {
	c := newController(t)
	if got := c.HandoffDelay(config.RoleGeneral); got != 1000 {
		t.Errorf("general delay = %d", got)
	}
	if got := c.HandoffDelay(config.RoleAccount); got != 2000 {
		t.Errorf("account delay = %d", got)
	}
	if got := c.HandoffDelay(config.Role("bogus")); got != config.DefaultHandoffDelayMs {
		t.Errorf("unknown role delay = %d", got)
	}
}
