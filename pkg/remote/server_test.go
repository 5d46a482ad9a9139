package remote

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/host"
	"github.com/loomui/loom/pkg/loom"
	"github.com/loomui/loom/pkg/protocol"
)

func counterApp() *element.Element {
	counter := func(c element.Context, _ element.Props) *element.Element {
		n, setN := loom.UseState(c, 0)
		return element.MustNew("div", nil,
			element.MustNew("button", element.Props{"onClick": func() { setN(n + 1) }}),
			element.MustNew("span", nil, element.Textf("n=%d", n)),
		)
	}
	return element.MustNew(counter, nil)
}

func testServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := Config{
		App:      counterApp,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return srv, ts
}

func dialLive(t *testing.T, ts *httptest.Server, hello *protocol.Hello) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/loom/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	data, err := hello.Frame().Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("hello write: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, want protocol.FrameType) *protocol.Frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		// Keepalive pings can interleave with anything.
		if frame.Type == protocol.FrameControl && want != protocol.FrameControl {
			continue
		}
		if frame.Type != want {
			t.Fatalf("frame type = %v, want %v", frame.Type, want)
		}
		return frame
	}
}

func TestLiveSessionInitialRender(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := dialLive(t, ts, &protocol.Hello{Version: protocol.Version})

	welcome, err := protocol.DecodeWelcome(readFrame(t, conn, protocol.FrameWelcome).Payload)
	if err != nil {
		t.Fatal(err)
	}
	if welcome.SessionID == "" || welcome.Resumed {
		t.Fatalf("welcome = %#v", welcome)
	}

	batch, err := protocol.DecodePatchBatch(readFrame(t, conn, protocol.FramePatches).Payload)
	if err != nil {
		t.Fatal(err)
	}
	var sawButton, sawText bool
	for _, p := range batch.Patches {
		if p.Op == protocol.OpCreateNode && p.Tag == "button" {
			sawButton = true
			if _, ok := p.Props["onClick"].(protocol.Handler); !ok {
				t.Errorf("button props = %#v", p.Props)
			}
		}
		if p.Op == protocol.OpCreateText && p.Text == "n=0" {
			sawText = true
		}
	}
	if !sawButton || !sawText {
		t.Errorf("initial batch missing nodes: %#v", batch.Patches)
	}
}

func TestLiveSessionEventRoundTrip(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := dialLive(t, ts, &protocol.Hello{Version: protocol.Version})
	readFrame(t, conn, protocol.FrameWelcome)

	initial, err := protocol.DecodePatchBatch(readFrame(t, conn, protocol.FramePatches).Payload)
	if err != nil {
		t.Fatal(err)
	}
	var button, textNode uint64
	for _, p := range initial.Patches {
		if p.Op == protocol.OpCreateNode && p.Tag == "button" {
			button = uint64(p.Node)
		}
		if p.Op == protocol.OpCreateText {
			textNode = uint64(p.Node)
		}
	}
	if button == 0 || textNode == 0 {
		t.Fatalf("nodes not found in %#v", initial.Patches)
	}

	ev := &protocol.Event{Seq: 1, Node: host.NodeID(button), Prop: "onClick"}
	frame, err := ev.Frame()
	if err != nil {
		t.Fatal(err)
	}
	data, err := frame.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatal(err)
	}

	update, err := protocol.DecodePatchBatch(readFrame(t, conn, protocol.FramePatches).Payload)
	if err != nil {
		t.Fatal(err)
	}
	if update.Seq != initial.Seq+1 {
		t.Errorf("Seq = %d, want %d", update.Seq, initial.Seq+1)
	}
	found := false
	for _, p := range update.Patches {
		if p.Op == protocol.OpSetText && p.Text == "n=1" {
			found = true
		}
	}
	if !found {
		t.Errorf("no SetText n=1 in %#v", update.Patches)
	}
}

func TestSessionLimitRejectsConnections(t *testing.T) {
	srv, ts := testServer(t, func(c *Config) { c.MaxSessions = 1 })

	first := dialLive(t, ts, &protocol.Hello{Version: protocol.Version})
	readFrame(t, first, protocol.FrameWelcome)
	if srv.Sessions().Count() != 1 {
		t.Fatalf("sessions = %d", srv.Sessions().Count())
	}

	second := dialLive(t, ts, &protocol.Hello{Version: protocol.Version})
	we, err := protocol.DecodeWireError(readFrame(t, second, protocol.FrameError).Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(we.Message, "session limit") {
		t.Errorf("message = %q", we.Message)
	}
}

func TestSessionResumeReplaysUnackedBatches(t *testing.T) {
	srv, ts := testServer(t, nil)

	conn := dialLive(t, ts, &protocol.Hello{Version: protocol.Version})
	welcome, err := protocol.DecodeWelcome(readFrame(t, conn, protocol.FrameWelcome).Payload)
	if err != nil {
		t.Fatal(err)
	}
	initial, err := protocol.DecodePatchBatch(readFrame(t, conn, protocol.FramePatches).Payload)
	if err != nil {
		t.Fatal(err)
	}

	// Drop the connection without acking anything.
	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Sessions().Count() != 1 || !sessionDetached(srv, welcome.SessionID) {
		if time.Now().After(deadline) {
			t.Fatal("session never detached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	re := dialLive(t, ts, &protocol.Hello{Version: protocol.Version, SessionID: welcome.SessionID})
	welcome2, err := protocol.DecodeWelcome(readFrame(t, re, protocol.FrameWelcome).Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !welcome2.Resumed || welcome2.SessionID != welcome.SessionID {
		t.Fatalf("welcome = %#v", welcome2)
	}

	replayFrame := readFrame(t, re, protocol.FramePatches)
	if !replayFrame.Flags.Has(protocol.FlagResumed) {
		t.Error("replayed batch missing FlagResumed")
	}
	replay, err := protocol.DecodePatchBatch(replayFrame.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if replay.Seq != initial.Seq {
		t.Errorf("replay Seq = %d, want %d", replay.Seq, initial.Seq)
	}
}

func sessionDetached(srv *Server, id string) bool {
	srv.Sessions().mu.RLock()
	s := srv.Sessions().sessions[id]
	srv.Sessions().mu.RUnlock()
	if s == nil {
		return false
	}
	_, ok := s.detached()
	return ok
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("metrics = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "loom_sessions_active") {
		t.Error("metrics output missing loom_sessions_active")
	}
}
