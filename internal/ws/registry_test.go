package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte

	readCh    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		readCh: make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.readCh:
		return 1, data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, append([]byte(nil), data...))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) writtenMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []InboundMessage
	tabs []int
}

func (h *recordingHandler) HandlePortMessage(_ context.Context, tabID int, msg InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	h.tabs = append(h.tabs, tabID)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func TestConnectPushesReady(t *testing.T) {
	g := NewRegistry(nil, "1.2.3", zap.NewNop())
	conn := newFakeConn()

	g.Connect(5, PanelChannel, conn)

	waitFor(t, func() bool { return len(conn.writtenMessages()) > 0 })

	var msg struct {
		Command string       `json:"command"`
		Payload ReadyPayload `json:"payload"`
	}
	if err := json.Unmarshal(conn.writtenMessages()[0], &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Command != "ready" {
		t.Errorf("first push command = %q, want ready", msg.Command)
	}
	if msg.Payload.Version != "1.2.3" || msg.Payload.Status != "ok" {
		t.Errorf("ready payload = %+v", msg.Payload)
	}
}

func TestDisconnectRemovesPort(t *testing.T) {
	g := NewRegistry(nil, "v", zap.NewNop())
	conn := newFakeConn()

	g.Connect(5, PanelChannel, conn)
	waitFor(t, func() bool { return g.Count() == 1 })

	conn.Close()
	waitFor(t, func() bool { return g.Count() == 0 })

	if g.Push(5, PortMessage{Command: "suggestion"}) {
		t.Error("Push succeeded for a disconnected tab")
	}
}

func TestPortReplacementWithStaleDisconnect(t *testing.T) {
	g := NewRegistry(nil, "v", zap.NewNop())
	first := newFakeConn()
	second := newFakeConn()

	g.Connect(5, PanelChannel, first)
	waitFor(t, func() bool { return g.Count() == 1 })

	// Second connect for the same tab replaces the entry before the
	// first port's disconnect has fired.
	g.Connect(5, PanelChannel, second)

	// The replaced port eventually observes its shutdown and runs the
	// disconnect path; the new entry must survive it.
	waitFor(t, func() bool {
		select {
		case <-first.closed:
			return true
		default:
			return false
		}
	})
	// Give the stale detach a chance to run before asserting.
	time.Sleep(20 * time.Millisecond)

	if g.Count() != 1 {
		t.Fatalf("registry has %d ports, want 1", g.Count())
	}

	before := len(second.writtenMessages())
	if !g.Push(5, PortMessage{Command: "suggestion", Payload: "s"}) {
		t.Fatal("Push to replaced tab failed")
	}
	waitFor(t, func() bool { return len(second.writtenMessages()) > before })
}

func TestInboundDispatch(t *testing.T) {
	h := &recordingHandler{}
	g := NewRegistry(h, "v", zap.NewNop())
	conn := newFakeConn()

	g.Connect(9, PanelChannel, conn)

	conn.readCh <- []byte(`{"command":"panel_state","payload":{"open":true}}`)
	waitFor(t, func() bool { return h.count() == 1 })

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.msgs[0].Command != "panel_state" {
		t.Errorf("command = %q", h.msgs[0].Command)
	}
	if h.tabs[0] != 9 {
		t.Errorf("tabID = %d, want 9", h.tabs[0])
	}
}

func TestMalformedInboundIgnored(t *testing.T) {
	h := &recordingHandler{}
	g := NewRegistry(h, "v", zap.NewNop())
	conn := newFakeConn()

	g.Connect(9, PanelChannel, conn)
	conn.readCh <- []byte(`{not json`)
	conn.readCh <- []byte(`{"command":"ok"}`)

	waitFor(t, func() bool { return h.count() == 1 })
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.msgs[0].Command != "ok" {
		t.Errorf("surviving command = %q", h.msgs[0].Command)
	}
}

func TestPushToMissingTab(t *testing.T) {
	g := NewRegistry(nil, "v", zap.NewNop())
	if g.Push(404, PortMessage{Command: "x"}) {
		t.Error("Push to unknown tab returned true")
	}
}

func TestNonPanelChannelNotStored(t *testing.T) {
	g := NewRegistry(nil, "v", zap.NewNop())
	conn := newFakeConn()

	g.Connect(5, "diagnostics", conn)
	time.Sleep(20 * time.Millisecond)

	if g.Count() != 0 {
		t.Errorf("non-panel channel stored, count = %d", g.Count())
	}
}

func TestNotifyTab(t *testing.T) {
	g := NewRegistry(nil, "v", zap.NewNop())
	conn := newFakeConn()

	g.Connect(2, PanelChannel, conn)
	waitFor(t, func() bool { return g.Count() == 1 })

	if !g.NotifyTab(2, "suggestion", map[string]string{"content": "hi"}) {
		t.Fatal("NotifyTab failed for connected tab")
	}
	waitFor(t, func() bool {
		for _, m := range conn.writtenMessages() {
			var msg PortMessage
			if json.Unmarshal(m, &msg) == nil && msg.Command == "suggestion" {
				return true
			}
		}
		return false
	})
}
