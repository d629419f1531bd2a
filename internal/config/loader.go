package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPersonas reads the persona YAML file at path and returns a validated
// [Personas]. It is a convenience wrapper around [LoadPersonasFromReader].
func LoadPersonas(path string) (*Personas, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	p, err := LoadPersonasFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return p, nil
}

// LoadPersonasFromReader decodes the persona YAML from r, validates the
// result, and applies defaults. Useful in tests where configs are
// constructed from string literals.
func LoadPersonasFromReader(r io.Reader) (*Personas, error) {
	p := &Personas{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ValidatePersonas(p); err != nil {
		return nil, err
	}
	applyPersonaDefaults(p)
	return p, nil
}

// ValidatePersonas checks that p contains a coherent set of personas.
// It returns a joined error listing all validation failures found.
func ValidatePersonas(p *Personas) error {
	var errs []error

	if len(p.Agents) == 0 {
		errs = append(errs, errors.New("agents list is empty"))
	}

	rolesSeen := make(map[Role]int, len(p.Agents))
	for i, a := range p.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)

		if a.RoleID == "" {
			errs = append(errs, fmt.Errorf("%s.role_id is required", prefix))
		} else if !a.RoleID.IsValid() {
			errs = append(errs, fmt.Errorf("%s.role_id %q is invalid; valid values: general, account", prefix, a.RoleID))
		} else {
			if prev, ok := rolesSeen[a.RoleID]; ok {
				errs = append(errs, fmt.Errorf("%s.role_id %q is a duplicate of agents[%d]", prefix, a.RoleID, prev))
			}
			rolesSeen[a.RoleID] = i
		}
		if a.VoiceID == "" {
			errs = append(errs, fmt.Errorf("%s.voice_id is required", prefix))
		}
		if a.IntroUtterance == "" {
			errs = append(errs, fmt.Errorf("%s.intro_utterance is required", prefix))
		}
		if a.Instructions == "" {
			errs = append(errs, fmt.Errorf("%s.instructions is required", prefix))
		}

		toolsSeen := make(map[string]int, len(a.Tools))
		for j, tool := range a.Tools {
			tp := fmt.Sprintf("%s.tools[%d]", prefix, j)
			if tool.Name == "" {
				errs = append(errs, fmt.Errorf("%s.name is required", tp))
				continue
			}
			if prev, ok := toolsSeen[tool.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s.tools[%d]", tp, tool.Name, prefix, prev))
			}
			toolsSeen[tool.Name] = j
			if tool.Description == "" {
				errs = append(errs, fmt.Errorf("%s.description is required", tp))
			}
		}

		if a.VAD.Threshold < 0 || a.VAD.Threshold > 1 {
			errs = append(errs, fmt.Errorf("%s.vad_params.threshold %.2f is out of range (0, 1]", prefix, a.VAD.Threshold))
		}
		if a.VAD.PrefixPaddingMs < 0 {
			errs = append(errs, fmt.Errorf("%s.vad_params.prefix_padding_ms must not be negative", prefix))
		}
		if a.VAD.SilenceDurationMs < 0 {
			errs = append(errs, fmt.Errorf("%s.vad_params.silence_duration_ms must not be negative", prefix))
		}
		if a.HandoffDelayMs < 0 {
			errs = append(errs, fmt.Errorf("%s.handoff_delay_ms must not be negative", prefix))
		}
	}

	return errors.Join(errs...)
}

// applyPersonaDefaults fills zero VAD fields and clamps the handoff delay.
func applyPersonaDefaults(p *Personas) {
	for i := range p.Agents {
		a := &p.Agents[i]
		if a.VAD.Threshold == 0 {
			a.VAD.Threshold = DefaultVADThreshold
		}
		if a.VAD.PrefixPaddingMs == 0 {
			a.VAD.PrefixPaddingMs = DefaultPrefixPaddingMs
		}
		if a.VAD.SilenceDurationMs == 0 {
			a.VAD.SilenceDurationMs = DefaultSilenceDuration
		}
		switch {
		case a.HandoffDelayMs == 0:
			a.HandoffDelayMs = DefaultHandoffDelayMs
		case a.HandoffDelayMs < MinHandoffDelayMs:
			slog.Warn("handoff delay below minimum; clamping",
				"role", a.RoleID, "configured_ms", a.HandoffDelayMs, "min_ms", MinHandoffDelayMs)
			a.HandoffDelayMs = MinHandoffDelayMs
		case a.HandoffDelayMs > MaxHandoffDelayMs:
			slog.Warn("handoff delay above maximum; clamping",
				"role", a.RoleID, "configured_ms", a.HandoffDelayMs, "max_ms", MaxHandoffDelayMs)
			a.HandoffDelayMs = MaxHandoffDelayMs
		}
	}
}
