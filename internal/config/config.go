// Package config provides the persona configuration schema and loader plus
// the environment-derived gateway settings for the voicedesk server.
package config

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Role identifies an agent persona. Role A serves unauthenticated callers,
// role B serves authenticated ones.
type Role string

const (
	// RoleGeneral is the unauthenticated help-centre agent.
	RoleGeneral Role = "general"

	// RoleAccount is the authenticated account-servicing agent.
	RoleAccount Role = "account"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleGeneral || r == RoleAccount
}

// Handoff delay bounds in milliseconds. Values outside the range are clamped
// at load time so a typo cannot make a handoff feel either instant or stuck.
const (
	MinHandoffDelayMs     = 800
	MaxHandoffDelayMs     = 2500
	DefaultHandoffDelayMs = 1500
)

// Personas is the root of the persona configuration document.
type Personas struct {
	Agents []Persona `yaml:"agents"`
}

// ByRole returns the persona configured for role, or nil.
func (p *Personas) ByRole(role Role) *Persona {
	for i := range p.Agents {
		if p.Agents[i].RoleID == role {
			return &p.Agents[i]
		}
	}
	return nil
}

// Persona describes a single agent: its voice, prompt, tool surface, and
// turn-taking behaviour.
type Persona struct {
	// RoleID selects which callers this persona serves.
	RoleID Role `yaml:"role_id"`

	// VoiceID is the upstream voice identifier (e.g. "alloy", "shimmer").
	VoiceID string `yaml:"voice_id"`

	// IntroUtterance is what the persona says when a session opens or when
	// it receives a handoff.
	IntroUtterance string `yaml:"intro_utterance"`

	// Instructions is the persona's system prompt.
	Instructions string `yaml:"instructions"`

	// Tools lists the tool schemas advertised to the upstream model for this
	// persona. Names must match tools registered in the gateway.
	Tools []ToolSchema `yaml:"tools"`

	// VAD configures upstream server-side voice activity detection.
	VAD VADParams `yaml:"vad_params"`

	// HandoffDelayMs is how long the gateway waits after a handoff tool call
	// before notifying the browser, giving the persona time to finish its
	// transfer sentence. Clamped to [MinHandoffDelayMs, MaxHandoffDelayMs];
	// zero selects DefaultHandoffDelayMs.
	HandoffDelayMs int `yaml:"handoff_delay_ms"`
}

// ToolSchema is a function tool definition in the upstream model's format.
type ToolSchema struct {
	// Name is the function name the model calls.
	Name string `yaml:"name"`

	// Description tells the model when to use the tool.
	Description string `yaml:"description"`

	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any `yaml:"parameters"`
}

// VADParams are the upstream server_vad turn-detection settings.
type VADParams struct {
	// Threshold is the speech probability threshold in (0, 1].
	Threshold float64 `yaml:"threshold"`

	// PrefixPaddingMs is audio retained before detected speech onset.
	PrefixPaddingMs int `yaml:"prefix_padding_ms"`

	// SilenceDurationMs is trailing silence that ends a turn.
	SilenceDurationMs int `yaml:"silence_duration_ms"`

	// CreateResponse makes the upstream respond automatically at end of
	// turn. Nil means true.
	CreateResponse *bool `yaml:"create_response"`
}

// VAD defaults applied when a persona leaves a field zero.
const (
	DefaultVADThreshold    = 0.6
	DefaultPrefixPaddingMs = 200
	DefaultSilenceDuration = 400
)

// AutoRespond reports the effective create_response setting.
func (v VADParams) AutoRespond() bool {
	return v.CreateResponse == nil || *v.CreateResponse
}
