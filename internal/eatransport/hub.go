package eatransport

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnState is the connection lifecycle state.
type ConnState string

const (
	StateNew    ConnState = "NEW"
	StateReady  ConnState = "READY"
	StateClosed ConnState = "CLOSED"
)

const (
	heartbeatInterval   = 30 * time.Second
	slowConsumerTimeout = 10 * time.Second
	outboundQueueSize   = 256
)

// Conn is one EA's connection: a read loop, an outbound queue, and a
// state machine. Grounded on internal/api/websocket.go's WSClient.
type Conn struct {
	id      string
	conn    net.Conn
	hub     *Hub
	send    chan Envelope
	state   ConnState
	mu      sync.Mutex
	log     zerolog.Logger
	lastRecv time.Time
}

// Handler processes one inbound envelope from a connection.
type Handler func(connID string, env Envelope)

// Hub owns the registry of live EA connections and dispatches broadcasts,
// grounded on internal/api/websocket.go's WSHub register/unregister/
// broadcast channel pattern.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*Conn
	handler Handler
	log     zerolog.Logger
}

// NewHub builds a Hub. handler is invoked for every inbound envelope
// from any connection.
func NewHub(handler Handler, log zerolog.Logger) *Hub {
	return &Hub{
		conns:   make(map[string]*Conn),
		handler: handler,
		log:     log,
	}
}

// Accept wraps a newly accepted net.Conn, registers it, and starts its
// read/write pumps. id should uniquely identify the EA (e.g. from its
// EA_INFO handshake).
func (h *Hub) Accept(ctx context.Context, id string, netConn net.Conn) *Conn {
	c := &Conn{
		id:       id,
		conn:     netConn,
		hub:      h,
		send:     make(chan Envelope, outboundQueueSize),
		state:    StateNew,
		log:      h.log,
		lastRecv: time.Now(),
	}

	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()

	go c.writePump(ctx)
	go c.readPump(ctx)
	return c
}

// Unregister removes a connection from the hub and closes its socket.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send enqueues env for delivery to one connection by id. It reports
// false if the connection is unknown or its outbound queue is full (a
// slow consumer).
func (h *Hub) Send(id string, env Envelope) bool {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		h.log.Warn().Str("conn", id).Msg("outbound queue full, dropping message")
		return false
	}
}

// Broadcast enqueues env for delivery to every registered connection.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.conns {
		select {
		case c.send <- env:
		default:
			h.log.Warn().Str("conn", id).Msg("broadcast queue full, dropping message")
		}
	}
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) readPump(ctx context.Context) {
	defer c.hub.Unregister(c.id)
	c.setState(StateReady)

	for {
		if deadline, ok := ctx.Deadline(); ok {
			c.conn.SetReadDeadline(deadline)
		} else {
			c.conn.SetReadDeadline(time.Now().Add(2 * heartbeatInterval))
		}
		env, err := ReadFrame(c.conn)
		if err != nil {
			c.log.Debug().Str("conn", c.id).Err(err).Msg("read loop ending")
			return
		}
		c.mu.Lock()
		c.lastRecv = time.Now()
		c.mu.Unlock()

		if env.Type == TypeHeartbeat {
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler(c.id, env)
		}
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(slowConsumerTimeout))
			if err := WriteFrame(c.conn, env); err != nil {
				c.log.Warn().Str("conn", c.id).Err(err).Msg("write failed, closing connection")
				c.hub.Unregister(c.id)
				return
			}
		case <-ticker.C:
			data, _ := json.Marshal(map[string]string{"status": "ok"})
			heartbeat := Envelope{Type: TypeHeartbeat, Data: data, Timestamp: time.Now()}
			c.conn.SetWriteDeadline(time.Now().Add(slowConsumerTimeout))
			if err := WriteFrame(c.conn, heartbeat); err != nil {
				c.hub.Unregister(c.id)
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.setState(StateClosed)
	c.conn.Close()
}
