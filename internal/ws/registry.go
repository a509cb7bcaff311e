package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is the subset of *websocket.Conn the registry needs; tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// PortHandler receives inbound port messages. Ports are push/pull, not
// request/response, so this is a separate table from the one-shot
// command router.
type PortHandler interface {
	HandlePortMessage(ctx context.Context, tabID int, msg InboundMessage)
}

// NoopPortHandler ignores every inbound message.
type NoopPortHandler struct{}

func (NoopPortHandler) HandlePortMessage(context.Context, int, InboundMessage) {}

type port struct {
	tabID int
	name  string
	conn  Conn
	send  chan []byte
	once  sync.Once
}

func newPort(tabID int, name string, conn Conn) *port {
	p := &port{
		tabID: tabID,
		name:  name,
		conn:  conn,
		send:  make(chan []byte, 64),
	}
	go p.writePump()
	return p
}

func (p *port) writePump() {
	defer p.conn.Close()
	for msg := range p.send {
		if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (p *port) shutdown() {
	p.once.Do(func() { close(p.send) })
}

// Registry tracks at most one live panel port per tab. A reconnecting
// tab replaces its old entry immediately; the old port's disconnect
// firing later must not evict the replacement.
type Registry struct {
	mu      sync.Mutex
	ports   map[int]*port
	handler PortHandler
	version string
	log     *zap.Logger
}

func NewRegistry(handler PortHandler, version string, log *zap.Logger) *Registry {
	if handler == nil {
		handler = NoopPortHandler{}
	}
	return &Registry{
		ports:   make(map[int]*port),
		handler: handler,
		version: version,
		log:     log,
	}
}

// Connect takes ownership of conn. For the panel channel the port is
// stored keyed by tab id, replacing any previous entry for that tab,
// and a ready notification is pushed immediately.
func (g *Registry) Connect(tabID int, name string, conn Conn) {
	p := newPort(tabID, name, conn)

	if name == PanelChannel {
		g.mu.Lock()
		old := g.ports[tabID]
		g.ports[tabID] = p
		g.mu.Unlock()

		if old != nil {
			// The replaced port's read loop will observe the close and
			// run the disconnect path; the stale guard in detach keeps
			// it from touching the new entry.
			old.shutdown()
		}

		p.enqueue(mustMarshal(PortMessage{
			Command: "ready",
			Payload: ReadyPayload{Version: g.version, Status: "ok"},
		}))
	}

	g.log.Info("port connected",
		zap.Int("tabId", tabID),
		zap.String("name", name))

	go g.readLoop(p)
}

func (g *Registry) readLoop(p *port) {
	defer g.detach(p)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			// Disconnection is the normal way a surface goes away.
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.log.Warn("malformed port message",
				zap.Int("tabId", p.tabID),
				zap.Error(err))
			continue
		}

		g.log.Debug("port message",
			zap.String("command", msg.Command),
			zap.String("name", p.name))
		g.handler.HandlePortMessage(context.Background(), p.tabID, msg)
	}
}

// detach runs the disconnect path: release the send channel and drop
// the registry entry, but only when this port is still the active one
// for its tab.
func (g *Registry) detach(p *port) {
	g.mu.Lock()
	if g.ports[p.tabID] == p {
		delete(g.ports, p.tabID)
	}
	g.mu.Unlock()

	p.shutdown()
	g.log.Info("port disconnected", zap.Int("tabId", p.tabID))
}

// Push sends a message to the panel port of the given tab. Returns
// false when no port is connected or the port's buffer is full.
func (g *Registry) Push(tabID int, msg PortMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		g.log.Error("port message marshal", zap.Error(err))
		return false
	}

	g.mu.Lock()
	p, ok := g.ports[tabID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return p.enqueue(data)
}

// NotifyTab adapts Push to the orchestrator's notifier interface.
func (g *Registry) NotifyTab(tabID int, command string, payload any) bool {
	return g.Push(tabID, PortMessage{Command: command, Payload: payload})
}

func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ports)
}

func (p *port) enqueue(data []byte) (sent bool) {
	// A closed send channel means the port already shut down; treat the
	// push as dropped rather than panicking.
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case p.send <- data:
		return true
	default:
		// Surface can't keep up; drop the message.
		return false
	}
}

func mustMarshal(msg PortMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		// PortMessage with marshallable payloads cannot fail; a failure
		// here is a programming error worth crashing a test over, but
		// in production we degrade to an empty push.
		return []byte(`{"command":"ready"}`)
	}
	return data
}
