package eventbus

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/logging"
)

// Forwarder pushes bus events to an external real-time channel over a
// WebSocket connection. Delivery is fire-and-forget: dial and write failures
// are logged and the event is dropped, never surfaced to the engine.
type Forwarder struct {
	url    string
	dialer *websocket.Dialer
	logger logging.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewForwarder creates a forwarder targeting the given ws:// or wss:// URL.
// The connection is established lazily on the first event.
func NewForwarder(url string, logger logging.Logger) *Forwarder {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Forwarder{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Attach subscribes the forwarder to all lifecycle event kinds on the bus.
func (f *Forwarder) Attach(bus *Bus) {
	bus.SubscribeAll(f.Forward)
}

// Forward delivers one event, reconnecting once on a stale connection.
func (f *Forwarder) Forward(ev core.BusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		if err := f.connectLocked(); err != nil {
			f.logger.Warn("event forwarder not connected, dropping event", "kind", string(ev.Kind), "error", err.Error())
			return
		}
	}

	if err := f.conn.WriteJSON(ev); err != nil {
		f.logger.Warn("event forward failed, reconnecting", "kind", string(ev.Kind), "error", err.Error())
		f.closeLocked()
		if err := f.connectLocked(); err != nil {
			return
		}
		if err := f.conn.WriteJSON(ev); err != nil {
			f.logger.Warn("event forward failed after reconnect, dropping event", "kind", string(ev.Kind), "error", err.Error())
			f.closeLocked()
		}
	}
}

func (f *Forwarder) connectLocked() error {
	conn, _, err := f.dialer.Dial(f.url, nil)
	if err != nil {
		return err
	}
	f.conn = conn
	f.logger.Info("event forwarder connected", "url", f.url)
	return nil
}

func (f *Forwarder) closeLocked() {
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

// Close tears down the connection if one is open.
func (f *Forwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}
