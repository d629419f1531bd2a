// Package upstream manages the gateway's connection to the realtime model
// endpoint: dialing, the initial session.update, and the greeting trigger.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/voicedesk/voicedesk/internal/config"
)

// DialTimeout bounds the initial upstream connect.
const DialTimeout = 10 * time.Second

// apiVersion is the realtime API version the gateway speaks.
const apiVersion = "2024-10-01-preview"

// transcriptionModel enables user-side transcripts, which the ticket log
// needs.
const transcriptionModel = "whisper-1"

// Dialer connects sessions to the upstream realtime endpoint.
type Dialer struct {
	endpoint   string
	apiKey     string
	deployment string
}

// NewDialer creates a dialer for the configured upstream peer.
func NewDialer(cfg *config.Gateway) *Dialer {
	return &Dialer{
		endpoint:   cfg.UpstreamEndpoint,
		apiKey:     cfg.UpstreamAPIKey,
		deployment: cfg.UpstreamDeployment,
	}
}

// URL is the websocket URL dialed. The API key is never part of it; it
// travels in the api-key header only.
func (d *Dialer) URL() string {
	endpoint := strings.TrimRight(d.endpoint, "/")
	endpoint = strings.Replace(endpoint, "https://", "wss://", 1)
	endpoint = strings.Replace(endpoint, "http://", "ws://", 1)
	url := fmt.Sprintf("%s/openai/realtime?api-version=%s", endpoint, apiVersion)
	if d.deployment != "" {
		url += "&deployment=" + d.deployment
	}
	return url
}

// Dial opens the upstream connection and sends the persona's session.update
// followed by the greeting trigger, so the agent speaks first. The returned
// connection is ready for relaying.
func (d *Dialer) Dial(ctx context.Context, persona *config.Persona) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, d.URL(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"api-key": []string{d.apiKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: dial: %w", err)
	}
	// Down-frames can be large during fast speech; the default 32 KiB read
	// limit is too small for 200 ms base64 audio plus envelope.
	conn.SetReadLimit(1 << 20)

	if err := writeJSON(ctx, conn, SessionUpdate(persona)); err != nil {
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("upstream: session update: %w", err)
	}
	if err := writeJSON(ctx, conn, map[string]string{"type": "response.create"}); err != nil {
		conn.Close(websocket.StatusInternalError, "greeting trigger failed")
		return nil, fmt.Errorf("upstream: greeting trigger: %w", err)
	}
	return conn, nil
}

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string       `json:"modalities"`
	Voice                   string         `json:"voice"`
	Instructions            string         `json:"instructions"`
	Tools                   []toolParam    `json:"tools,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           turnDetection  `json:"turn_detection"`
}

type toolParam struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type transcription struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

// SessionUpdate builds the session.update event for a persona.
func SessionUpdate(persona *config.Persona) any {
	params := sessionParams{
		Modalities:              []string{"text", "audio"},
		Voice:                   persona.VoiceID,
		Instructions:            instructionsWithIntro(persona),
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &transcription{Model: transcriptionModel},
		TurnDetection: turnDetection{
			Type:              "server_vad",
			Threshold:         persona.VAD.Threshold,
			PrefixPaddingMs:   persona.VAD.PrefixPaddingMs,
			SilenceDurationMs: persona.VAD.SilenceDurationMs,
			CreateResponse:    persona.VAD.AutoRespond(),
		},
	}
	for _, t := range persona.Tools {
		params.Tools = append(params.Tools, toolParam{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return sessionUpdateMessage{Type: "session.update", Session: params}
}

// instructionsWithIntro appends the greeting instruction so the response
// triggered right after session.update speaks the persona's intro.
func instructionsWithIntro(persona *config.Persona) string {
	return persona.Instructions +
		"\n\nWhen the conversation starts, greet the caller with: " + persona.IntroUtterance
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("upstream: marshal: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
