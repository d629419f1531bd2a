package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/voicedesk/voicedesk/internal/auth"
	"github.com/voicedesk/voicedesk/internal/config"
	"github.com/voicedesk/voicedesk/internal/observe"
	"github.com/voicedesk/voicedesk/internal/relay"
	"github.com/voicedesk/voicedesk/internal/tools"
)

// wsPipe returns both ends of a live websocket connection. The server end is
// what the relay holds, the client end is what the test drives.
func wsPipe(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		connCh <- conn
		<-done // keep the handler alive for the duration of the test
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial pipe: %v", err)
	}
	return <-connCh, client
}

func newMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type fixture struct {
	browser  *websocket.Conn // test's end of the browser leg
	upstream *websocket.Conn // test's end of the upstream leg
	cancel   context.CancelFunc
	runErr   chan error
}

// startRelay wires a relay between two fresh websocket pipes and runs it.
func startRelay(t *testing.T, reg *tools.Registry, sess tools.Session, opts relay.Options) *fixture {
	t.Helper()
	browserSrv, browserClient := wsPipe(t)
	upstreamSrv, upstreamClient := wsPipe(t)

	if opts.Metrics == nil {
		opts.Metrics = newMetrics(t)
	}
	r := relay.New(browserSrv, upstreamSrv, reg, sess, opts)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()
	t.Cleanup(cancel)

	return &fixture{
		browser:  browserClient,
		upstream: upstreamClient,
		cancel:   cancel,
		runErr:   runErr,
	}
}

func writeText(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) (websocket.MessageType, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return typ, data
}

func guestSession() tools.Session {
	return tools.Session{ID: "sess-test", Identity: auth.Guest(), Role: config.RoleGeneral}
}

func TestForwardsVerbatimBothDirections(t *testing.T) {
	f := startRelay(t, tools.NewRegistry(), guestSession(), relay.Options{})

	// Browser -> upstream: text and binary pass through untouched.
	writeText(t, f.browser, `{"type":"input_audio_buffer.append","audio":"AAAA"}`)
	typ, data := readFrame(t, f.upstream)
	if typ != websocket.MessageText || string(data) != `{"type":"input_audio_buffer.append","audio":"AAAA"}` {
		t.Errorf("upstream got %v %q", typ, data)
	}

	ctx := context.Background()
	if err := f.browser.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	typ, data = readFrame(t, f.upstream)
	if typ != websocket.MessageBinary || len(data) != 3 {
		t.Errorf("upstream got %v %v", typ, data)
	}

	// Upstream -> browser: unknown event types pass through untouched.
	writeText(t, f.upstream, `{"type":"response.audio.delta","delta":"UklGRg=="}`)
	_, data = readFrame(t, f.browser)
	if string(data) != `{"type":"response.audio.delta","delta":"UklGRg=="}` {
		t.Errorf("browser got %q", data)
	}
}

func TestMalformedUpstreamEventDropped(t *testing.T) {
	f := startRelay(t, tools.NewRegistry(), guestSession(), relay.Options{})

	writeText(t, f.upstream, `this is not json`)
	writeText(t, f.upstream, `{"type":"marker"}`)

	_, data := readFrame(t, f.browser)
	if string(data) != `{"type":"marker"}` {
		t.Errorf("first browser frame = %q, want marker", data)
	}
}

func TestFunctionCallInterceptedAndAnswered(t *testing.T) {
	reg := tools.NewRegistry()
	var gotArgs atomic.Value
	reg.Register(tools.Tool{
		Name: "search_knowledge_base",
		Handler: func(_ context.Context, _ tools.Session, args json.RawMessage) (tools.Result, error) {
			gotArgs.Store(string(args))
			return tools.Result{Output: "Card limits are SGD $5,000."}, nil
		},
	})
	f := startRelay(t, reg, guestSession(), relay.Options{})

	writeText(t, f.upstream,
		`{"type":"response.function_call_arguments.done","call_id":"call-1","name":"search_knowledge_base","arguments":"{\"query\":\"card limits\"}"}`)

	// The relay answers on the upstream leg: output item, then the trigger.
	_, data := readFrame(t, f.upstream)
	var item struct {
		Type string `json:"type"`
		Item struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
	}
	if err := json.Unmarshal(data, &item); err != nil {
		t.Fatalf("unmarshal output item: %v", err)
	}
	if item.Type != "conversation.item.create" || item.Item.Type != "function_call_output" {
		t.Errorf("item = %+v", item)
	}
	if item.Item.CallID != "call-1" || item.Item.Output != "Card limits are SGD $5,000." {
		t.Errorf("item = %+v", item)
	}

	_, data = readFrame(t, f.upstream)
	var trigger struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &trigger); err != nil {
		t.Fatal(err)
	}
	if trigger.Type != "response.create" {
		t.Errorf("second frame = %q", data)
	}

	if got := gotArgs.Load(); got != `{"query":"card limits"}` {
		t.Errorf("handler args = %v", got)
	}

	// The function call event itself never reaches the browser.
	writeText(t, f.upstream, `{"type":"marker"}`)
	_, data = readFrame(t, f.browser)
	if string(data) != `{"type":"marker"}` {
		t.Errorf("browser saw %q before the marker", data)
	}
}

func TestDuplicateCallIDDispatchedOnce(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Name: "slow_tool",
		Handler: func(ctx context.Context, _ tools.Session, _ json.RawMessage) (tools.Result, error) {
			calls.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return tools.Result{Output: "done"}, nil
		},
	})
	f := startRelay(t, reg, guestSession(), relay.Options{})

	ev := `{"type":"response.function_call_arguments.done","call_id":"call-dup","name":"slow_tool","arguments":"{}"}`
	writeText(t, f.upstream, ev)
	writeText(t, f.upstream, ev)

	// Give the second event time to be (wrongly) dispatched before release.
	time.Sleep(100 * time.Millisecond)
	close(release)

	_, _ = readFrame(t, f.upstream) // output item
	_, _ = readFrame(t, f.upstream) // response.create

	if n := calls.Load(); n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}
}

func TestHandoffEventAfterDelay(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Name: "handoff_to_account",
		Handler: func(_ context.Context, _ tools.Session, _ json.RawMessage) (tools.Result, error) {
			return tools.Result{
				Output: "Transferring now.",
				Handoff: &tools.HandoffSignal{
					Target: config.RoleAccount,
					Reason: "balance question",
				},
			}, nil
		},
	})
	f := startRelay(t, reg, guestSession(), relay.Options{HandoffDelay: 50 * time.Millisecond})

	start := time.Now()
	writeText(t, f.upstream,
		`{"type":"response.function_call_arguments.done","call_id":"call-2","name":"handoff_to_account","arguments":"{\"reason\":\"balance question\"}"}`)

	_, _ = readFrame(t, f.upstream) // output item
	_, _ = readFrame(t, f.upstream) // response.create

	_, data := readFrame(t, f.browser)
	var ev struct {
		Type        string `json:"type"`
		TargetAgent string `json:"target_agent"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal handoff event: %v", err)
	}
	if ev.Type != "agent.handoff" || ev.TargetAgent != "B" {
		t.Errorf("handoff event = %+v", ev)
	}
	if ev.Message == "" {
		t.Error("handoff message empty")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("handoff arrived after %v, want >= 50ms", elapsed)
	}

	// A real browser reconnects now; closing our side completes the relay's
	// close handshake.
	f.browser.Close(websocket.StatusNormalClosure, "reconnecting")

	// The relay ends the session cleanly after the handoff.
	select {
	case err := <-f.runErr:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not shut down after handoff")
	}
}

type fakeLog struct {
	mu    sync.Mutex
	lines []struct{ speaker, message, tool string }
}

func (f *fakeLog) LogInteraction(_ context.Context, _ string, speaker, message, toolCall string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, struct{ speaker, message, tool string }{speaker, message, toolCall})
	return nil
}

func (f *fakeLog) snapshot() []struct{ speaker, message, tool string } {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]struct{ speaker, message, tool string }(nil), f.lines...)
}

func TestTranscriptsLoggedToTicket(t *testing.T) {
	log := &fakeLog{}
	f := startRelay(t, tools.NewRegistry(), guestSession(), relay.Options{
		Tickets:  log,
		TicketID: "TKT-TEST",
	})

	writeText(t, f.upstream, `{"type":"conversation.item.input_audio_transcription.completed","transcript":"what are the card limits"}`)
	writeText(t, f.upstream, `{"type":"response.audio_transcript.done","transcript":"The limit is five thousand dollars."}`)

	// Both events are also forwarded to the browser.
	_, _ = readFrame(t, f.browser)
	_, _ = readFrame(t, f.browser)

	deadline := time.Now().Add(2 * time.Second)
	for {
		lines := log.snapshot()
		if len(lines) >= 2 {
			if lines[0].speaker != "user" || !strings.Contains(lines[0].message, "card limits") {
				t.Errorf("first line = %+v", lines[0])
			}
			if lines[1].speaker != "agent" || !strings.Contains(lines[1].message, "five thousand") {
				t.Errorf("second line = %+v", lines[1])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticket lines = %+v, want 2", lines)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPeerDisconnectEndsRelay(t *testing.T) {
	f := startRelay(t, tools.NewRegistry(), guestSession(), relay.Options{})

	f.browser.Close(websocket.StatusNormalClosure, "bye")

	select {
	case err := <-f.runErr:
		if err != nil {
			t.Errorf("Run returned %v, want nil on clean close", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not stop after browser close")
	}
}
