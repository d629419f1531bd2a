// Package client is a native voice client for the gateway: it captures
// microphone audio, streams it up as realtime append events, plays the
// agent's audio replies, and follows agent.handoff instructions by
// reconnecting as the target agent.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/voicedesk/voicedesk/pkg/audio"
)

// dialTimeout bounds each gateway connect, including handoff reconnects.
const dialTimeout = 10 * time.Second

// Source delivers capture chunks as float samples. Read blocks until a chunk
// is available and returns io.EOF when the stream ends.
type Source interface {
	SampleRate() int
	Channels() int
	Read(ctx context.Context) ([]float32, error)
}

// Config describes one client run.
type Config struct {
	// GatewayURL is the websocket chat endpoint, e.g. ws://host:8080/ws/chat.
	GatewayURL string

	// Token is the caller's JWT. Empty runs the whole session as a guest.
	Token string

	Source Source
	Sink   audio.Sink

	// FrameSamples is the up-frame size in samples at the wire rate.
	// Non-positive uses [audio.DefaultFrameSamples].
	FrameSamples int
}

// Client streams one conversation, across handoffs, until the gateway closes
// the final leg or ctx is cancelled.
type Client struct {
	cfg Config
}

// New validates cfg and creates a client.
func New(cfg Config) (*Client, error) {
	var errs []error
	if cfg.GatewayURL == "" {
		errs = append(errs, errors.New("client: gateway URL required"))
	}
	if cfg.Source == nil {
		errs = append(errs, errors.New("client: audio source required"))
	}
	if cfg.Sink == nil {
		errs = append(errs, errors.New("client: audio sink required"))
	}
	if cfg.Source != nil && cfg.Source.Channels() != 1 && cfg.Source.Channels() != 2 {
		errs = append(errs, fmt.Errorf("client: unsupported channel count %d", cfg.Source.Channels()))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// Run connects and relays audio until the conversation ends. A handoff event
// tears the current leg down and reconnects: with the token when the target
// is the account agent, without it when the target is the general one.
func (c *Client) Run(ctx context.Context) error {
	player := audio.NewPlayer(c.cfg.Sink)
	defer player.Close()

	playerDone := make(chan error, 1)
	go func() { playerDone <- player.Run(ctx) }()

	token := c.cfg.Token
	for {
		target, err := c.runLeg(ctx, token, player)
		if err != nil {
			return err
		}
		if target == "" {
			break
		}
		slog.Info("client: reconnecting after handoff", "target", target)
		if target == "B" {
			token = c.cfg.Token
		} else {
			token = ""
		}
	}

	player.Close()
	select {
	case <-playerDone:
	case <-ctx.Done():
	}
	return nil
}

// runLeg runs a single websocket session. It returns the handoff target when
// the agent transferred the caller, or "" when the conversation is over.
func (c *Client) runLeg(ctx context.Context, token string, player *audio.Player) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.legURL(token), nil)
	cancel()
	if err != nil {
		return "", fmt.Errorf("client: dial gateway: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	defer conn.Close(websocket.StatusNormalClosure, "leg done")

	legCtx, stopLeg := context.WithCancel(ctx)
	defer stopLeg()

	var target string
	g, gctx := errgroup.WithContext(legCtx)
	g.Go(func() error { return c.capture(gctx, conn) })
	g.Go(func() error {
		t, err := c.receive(gctx, conn, player)
		target = t
		if err == nil {
			// Conversation over (or handoff): stop the capture loop too.
			stopLeg()
		}
		return err
	})

	err = g.Wait()
	if isExpectedEnd(err) {
		return target, nil
	}
	return "", err
}

func (c *Client) legURL(token string) string {
	if token == "" {
		return c.cfg.GatewayURL
	}
	return c.cfg.GatewayURL + "?jwt=" + url.QueryEscape(token)
}

// capture pumps source audio to the gateway: downmix, resample to the wire
// rate, frame, base64. Source EOF ends capture but not the session; the
// agent may still be speaking.
func (c *Client) capture(ctx context.Context, conn *websocket.Conn) error {
	resampler := audio.NewResampler(c.cfg.Source.SampleRate(), audio.WireSampleRate)
	framer := audio.NewFramer(c.cfg.FrameSamples)
	stereo := c.cfg.Source.Channels() == 2

	sendFrame := func(frame []byte) error {
		ev, err := json.Marshal(map[string]string{
			"type":  "input_audio_buffer.append",
			"audio": base64.StdEncoding.EncodeToString(frame),
		})
		if err != nil {
			return fmt.Errorf("client: marshal append: %w", err)
		}
		return conn.Write(ctx, websocket.MessageText, ev)
	}

	for {
		chunk, err := c.cfg.Source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if last := framer.Flush(); last != nil {
					if err := sendFrame(last); err != nil {
						return err
					}
				}
				<-ctx.Done() // keep the leg alive for playback
				return ctx.Err()
			}
			return fmt.Errorf("client: capture read: %w", err)
		}

		if stereo {
			chunk = audio.StereoToMonoFloat(chunk)
		}
		for _, frame := range framer.Push(resampler.Process(chunk)) {
			if err := sendFrame(frame); err != nil {
				return fmt.Errorf("client: send frame: %w", err)
			}
		}
	}
}

// serverEvent is the subset of gateway traffic the client acts on.
type serverEvent struct {
	Type        string `json:"type"`
	Delta       string `json:"delta"`
	TargetAgent string `json:"target_agent"`
	Message     string `json:"message"`
}

// receive plays down-audio and watches for barge-in and handoff events. It
// returns the handoff target ("" when the session simply ended).
func (c *Client) receive(ctx context.Context, conn *websocket.Conn, player *audio.Player) (string, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return "", err
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("client: ignoring unparseable event", "err", err)
			continue
		}

		switch ev.Type {
		case "response.audio.delta":
			pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil {
				slog.Warn("client: bad audio delta", "err", err)
				continue
			}
			player.Enqueue(pcm)

		case "input_audio_buffer.speech_started":
			// Caller barged in: dump queued playback immediately.
			player.Interrupt()

		case "agent.handoff":
			slog.Info("client: handoff requested", "target", ev.TargetAgent, "message", ev.Message)
			return ev.TargetAgent, nil
		}
	}
}

// isExpectedEnd reports whether err is a normal way for a leg to finish.
func isExpectedEnd(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
