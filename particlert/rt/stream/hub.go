// Package stream pushes particle frames to websocket viewers.
package stream

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gekko3d/collide/particlert/rt/core"
)

// Frame is the JSON message sent to every viewer after a completed update.
type Frame struct {
	Type      string       `json:"type"`
	RunID     string       `json:"run_id"`
	Frame     int          `json:"frame"`
	Boundary  float32      `json:"boundary"`
	Positions [][3]float32 `json:"positions"`
	Radii     []float32    `json:"radii"`
	Contacts  []uint32     `json:"contacts"`
}

func NewFrame(runID string, frame int, boundary float32, particles []core.Particle, contacts []uint32) Frame {
	f := Frame{
		Type:      "frame",
		RunID:     runID,
		Frame:     frame,
		Boundary:  boundary,
		Positions: make([][3]float32, len(particles)),
		Radii:     make([]float32, len(particles)),
		Contacts:  make([]uint32, len(particles)),
	}
	for i, p := range particles {
		f.Positions[i] = [3]float32{p.Position.X(), p.Position.Y(), p.Position.Z()}
		f.Radii[i] = p.Radius
	}
	copy(f.Contacts, contacts)
	return f
}

type logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Hub tracks connected viewers. Writes to one connection are serialised by its mutex.
type Hub struct {
	upgrader websocket.Upgrader
	log      logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	latest  *Frame
}

func NewHub(log logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the viewer registered until it disconnects.
// A new viewer gets the latest frame right away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	connMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = connMu
	latest := h.latest
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()
	h.log.Infof("viewer connected from %s", r.RemoteAddr)

	if latest != nil {
		connMu.Lock()
		err := conn.WriteJSON(latest)
		connMu.Unlock()
		if err != nil {
			return
		}
	}

	// viewers only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends f to every viewer and drops the ones that fail.
func (h *Hub) Broadcast(f Frame) {
	h.mu.Lock()
	h.latest = &f
	h.mu.Unlock()

	h.mu.RLock()
	var failed []*websocket.Conn
	for conn, connMu := range h.clients {
		connMu.Lock()
		err := conn.WriteJSON(f)
		connMu.Unlock()
		if err != nil {
			failed = append(failed, conn)
		}
	}
	h.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, conn := range failed {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
	h.log.Warnf("dropped %d viewers", len(failed))
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
