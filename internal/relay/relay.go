// Package relay pumps websocket traffic between a browser session and the
// upstream realtime model, intercepting function calls, handoff signals, and
// transcript events on the way through.
//
// Everything the relay does not explicitly understand is forwarded verbatim,
// in both directions, so protocol additions upstream keep working without
// gateway changes.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/voicedesk/voicedesk/internal/agent"
	"github.com/voicedesk/voicedesk/internal/observe"
	"github.com/voicedesk/voicedesk/internal/ticket"
	"github.com/voicedesk/voicedesk/internal/tools"
)

// Upstream event types the relay inspects. All other types pass through
// untouched.
const (
	eventFunctionCallDone = "response.function_call_arguments.done"
	eventAgentTranscript  = "response.audio_transcript.done"
	eventUserTranscript   = "conversation.item.input_audio_transcription.completed"
	eventSpeechStarted    = "input_audio_buffer.speech_started"
	eventError            = "error"
)

// TranscriptLog receives conversation lines and tool calls for the session
// ticket. Writes are best-effort; the relay logs failures and carries on.
// *ticket.Store satisfies it.
type TranscriptLog interface {
	LogInteraction(ctx context.Context, ticketID, speaker, message, toolCall string) error
}

// Options carries the optional collaborators of a relay.
type Options struct {
	// Tickets receives transcript lines and tool calls when non-nil.
	Tickets  TranscriptLog
	TicketID string

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// HandoffDelay is how long to keep the session open after a handoff
	// signal so the agent can finish its spoken transfer line.
	HandoffDelay time.Duration
}

// Relay couples one browser connection to one upstream connection.
type Relay struct {
	browser  *websocket.Conn
	upstream *websocket.Conn
	registry *tools.Registry
	session  tools.Session
	opts     Options
	metrics  *observe.Metrics

	// Write sides are shared: the down pump and tool goroutines write
	// upstream, the down pump and the handoff timer write to the browser.
	upMu      sync.Mutex
	browserMu sync.Mutex

	// inFlight guards against duplicate dispatch of the same call_id.
	callMu   sync.Mutex
	inFlight map[string]bool

	toolWG      sync.WaitGroup
	handoffOnce sync.Once
}

// New creates a relay over an accepted browser connection and a dialed
// upstream connection. Neither connection is closed until [Relay.Run]
// returns.
func New(browser, upstream *websocket.Conn, registry *tools.Registry, session tools.Session, opts Options) *Relay {
	m := opts.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Relay{
		browser:  browser,
		upstream: upstream,
		registry: registry,
		session:  session,
		opts:     opts,
		metrics:  m,
		inFlight: make(map[string]bool),
	}
}

// Run pumps both directions until either peer disconnects, a handoff
// completes, or ctx is cancelled. It blocks and returns nil on a clean
// close from either side.
func (r *Relay) Run(ctx context.Context) error {
	r.metrics.ActiveSessions.Add(ctx, 1)
	defer r.metrics.ActiveSessions.Add(ctx, -1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.pumpUp(gctx) })
	g.Go(func() error { return r.pumpDown(gctx) })

	err := g.Wait()

	// Let any in-flight tool goroutines observe the cancelled context and
	// bail out before the connections are closed under them.
	r.toolWG.Wait()

	// One side already disconnected (or the handoff path closed the browser
	// gracefully); a close handshake here would just block on a gone peer.
	r.browser.CloseNow()
	r.upstream.CloseNow()

	if isExpectedClose(err) {
		return nil
	}
	return err
}

// pumpUp forwards browser frames to the upstream verbatim, text and binary
// alike. The browser side is trusted with nothing: it never reaches the
// function-call machinery directly.
func (r *Relay) pumpUp(ctx context.Context) error {
	for {
		typ, data, err := r.browser.Read(ctx)
		if err != nil {
			return fmt.Errorf("relay: browser read: %w", err)
		}
		r.metrics.RecordRelayFrame(ctx, observe.DirectionUp, len(data))

		r.upMu.Lock()
		err = r.upstream.Write(ctx, typ, data)
		r.upMu.Unlock()
		if err != nil {
			return fmt.Errorf("relay: upstream write: %w", err)
		}
	}
}

// pumpDown forwards upstream frames to the browser, intercepting the event
// types the gateway acts on. Function-call events are consumed, never
// forwarded; everything else goes through even when inspection fails.
func (r *Relay) pumpDown(ctx context.Context) error {
	for {
		typ, data, err := r.upstream.Read(ctx)
		if err != nil {
			return fmt.Errorf("relay: upstream read: %w", err)
		}
		r.metrics.RecordRelayFrame(ctx, observe.DirectionDown, len(data))

		if typ != websocket.MessageText {
			if err := r.writeBrowser(ctx, typ, data); err != nil {
				return err
			}
			continue
		}

		var ev upstreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("relay: dropping malformed upstream event",
				"session_id", r.session.ID, "err", err)
			continue
		}

		switch ev.Type {
		case eventFunctionCallDone:
			r.startToolCall(ctx, ev)
			continue // never forwarded

		case eventAgentTranscript:
			r.logLine(ctx, ticket.SpeakerAgent, ev.Transcript, "")

		case eventUserTranscript:
			r.logLine(ctx, ticket.SpeakerUser, ev.Transcript, "")

		case eventSpeechStarted:
			r.metrics.BargeIns.Add(ctx, 1)

		case eventError:
			slog.Warn("relay: upstream error event",
				"session_id", r.session.ID, "detail", string(ev.Error))
		}

		if err := r.writeBrowser(ctx, typ, data); err != nil {
			return err
		}
	}
}

// upstreamEvent is the subset of the realtime protocol the relay inspects.
type upstreamEvent struct {
	Type       string          `json:"type"`
	CallID     string          `json:"call_id"`
	Name       string          `json:"name"`
	Arguments  string          `json:"arguments"`
	Transcript string          `json:"transcript"`
	Error      json.RawMessage `json:"error"`
}

// startToolCall dispatches a completed function call in its own goroutine so
// audio keeps flowing while the tool runs. A call_id already in flight is
// ignored.
func (r *Relay) startToolCall(ctx context.Context, ev upstreamEvent) {
	r.callMu.Lock()
	if r.inFlight[ev.CallID] {
		r.callMu.Unlock()
		slog.Warn("relay: duplicate function call ignored",
			"session_id", r.session.ID, "call_id", ev.CallID, "tool", ev.Name)
		return
	}
	r.inFlight[ev.CallID] = true
	r.callMu.Unlock()

	r.toolWG.Add(1)
	go func() {
		defer r.toolWG.Done()
		defer func() {
			r.callMu.Lock()
			delete(r.inFlight, ev.CallID)
			r.callMu.Unlock()
		}()
		r.runToolCall(ctx, ev)
	}()
}

func (r *Relay) runToolCall(ctx context.Context, ev upstreamEvent) {
	start := time.Now()
	res, err := r.registry.Dispatch(ctx, r.session, ev.Name, json.RawMessage(ev.Arguments))
	r.metrics.ToolCallDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("tool", ev.Name)))
	if err != nil {
		// Only cancellation reaches here; the session is going away and the
		// call produces no output.
		r.metrics.RecordToolCall(ctx, ev.Name, "cancelled")
		return
	}
	r.metrics.RecordToolCall(ctx, ev.Name, "ok")

	r.logLine(ctx, ticket.SpeakerAgent, "", toolCallRecord(ev.Name, ev.Arguments))

	if err := r.sendToolOutput(ctx, ev.CallID, res.Output); err != nil {
		slog.Error("relay: tool output delivery failed",
			"session_id", r.session.ID, "tool", ev.Name, "err", err)
		return
	}

	if res.Handoff != nil {
		r.scheduleHandoff(ctx, res.Handoff)
	}
}

// sendToolOutput writes the function_call_output item followed by the
// response.create trigger, in that order, under the upstream write lock so
// no other frame lands between them.
func (r *Relay) sendToolOutput(ctx context.Context, callID, output string) error {
	item, err := json.Marshal(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
	if err != nil {
		return fmt.Errorf("relay: marshal tool output: %w", err)
	}

	r.upMu.Lock()
	defer r.upMu.Unlock()
	if err := r.upstream.Write(ctx, websocket.MessageText, item); err != nil {
		return fmt.Errorf("relay: write tool output: %w", err)
	}
	trigger := []byte(`{"type":"response.create"}`)
	if err := r.upstream.Write(ctx, websocket.MessageText, trigger); err != nil {
		return fmt.Errorf("relay: write response trigger: %w", err)
	}
	return nil
}

// scheduleHandoff tells the browser to reconnect as the target agent after
// the configured delay, giving the current agent time to speak its transfer
// line. Only the first handoff in a session wins.
func (r *Relay) scheduleHandoff(ctx context.Context, sig *tools.HandoffSignal) {
	r.handoffOnce.Do(func() {
		r.metrics.RecordHandoff(ctx, string(sig.Target))
		slog.Info("relay: handoff scheduled",
			"session_id", r.session.ID, "target", sig.Target, "delay", r.opts.HandoffDelay)

		r.toolWG.Add(1)
		go func() {
			defer r.toolWG.Done()
			select {
			case <-time.After(r.opts.HandoffDelay):
			case <-ctx.Done():
				return
			}
			ev, err := json.Marshal(agent.NewHandoffEvent(sig))
			if err != nil {
				slog.Error("relay: marshal handoff event", "err", err)
				return
			}
			if err := r.writeBrowser(ctx, websocket.MessageText, ev); err != nil {
				slog.Warn("relay: handoff event delivery failed",
					"session_id", r.session.ID, "err", err)
				return
			}
			// The browser reconnects on its own; end this leg cleanly.
			r.browser.Close(websocket.StatusNormalClosure, "handoff")
		}()
	})
}

func (r *Relay) writeBrowser(ctx context.Context, typ websocket.MessageType, data []byte) error {
	r.browserMu.Lock()
	defer r.browserMu.Unlock()
	if err := r.browser.Write(ctx, typ, data); err != nil {
		return fmt.Errorf("relay: browser write: %w", err)
	}
	return nil
}

// logLine writes one ticket interaction. Failures never end the session.
func (r *Relay) logLine(ctx context.Context, speaker, message, toolCall string) {
	if r.opts.Tickets == nil || r.opts.TicketID == "" {
		return
	}
	if message == "" && toolCall == "" {
		return
	}
	if err := r.opts.Tickets.LogInteraction(ctx, r.opts.TicketID, speaker, message, toolCall); err != nil {
		slog.Warn("relay: ticket write failed",
			"ticket_id", r.opts.TicketID, "err", err)
	}
}

func toolCallRecord(name, args string) string {
	rec, err := json.Marshal(map[string]string{"tool": name, "arguments": args})
	if err != nil {
		return `{"tool":"` + name + `"}`
	}
	return string(rec)
}

// isExpectedClose reports whether err is the normal end of a relay: a clean
// websocket closure from either peer, a local close (handoff path), or
// context cancellation.
func isExpectedClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
