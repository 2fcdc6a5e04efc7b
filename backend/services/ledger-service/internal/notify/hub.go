package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/metrics"
	"termledger/backend/services/ledger-service/internal/models"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 5 * time.Second
	viewerBuffer        = 16
)

// Hub tracks websocket viewers and broadcasts change payloads to them.
type Hub struct {
	mu           sync.RWMutex
	viewers      map[string]*viewer
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

// NewHub builds a hub.
func NewHub(pingInterval, writeTimeout time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Hub{
		viewers:      make(map[string]*viewer),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeWS upgrades the request and registers the viewer until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	v := &viewer{
		id:           uuid.NewString(),
		ws:           conn,
		send:         make(chan []byte, viewerBuffer),
		done:         make(chan struct{}),
		writeTimeout: h.writeTimeout,
		logger:       h.logger,
	}
	h.add(v)
	h.logger.Debug("viewer connected", zap.String("viewer_id", v.id))

	go v.writePump()
	go func() {
		v.readPump()
		h.remove(v.id)
		h.logger.Debug("viewer disconnected", zap.String("viewer_id", v.id))
	}()
}

// Publish implements Publisher for single-instance deployments.
func (h *Hub) Publish(_ context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return &TransportError{Op: "encode", Err: err}
	}
	h.Broadcast(payload)
	return nil
}

// Broadcast queues payload for every viewer. Slow viewers miss messages.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.viewers {
		v.enqueue(payload)
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Run pings viewers until ctx is done, then disconnects them.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-ticker.C:
			h.mu.RLock()
			for _, v := range h.viewers {
				_ = v.ping()
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) add(v *viewer) {
	h.mu.Lock()
	h.viewers[v.id] = v
	metrics.Viewers.Set(float64(len(h.viewers)))
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	if v, ok := h.viewers[id]; ok {
		delete(h.viewers, id)
		v.stop()
	}
	metrics.Viewers.Set(float64(len(h.viewers)))
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for id, v := range h.viewers {
		delete(h.viewers, id)
		v.stop()
		_ = v.ws.Close()
	}
	metrics.Viewers.Set(0)
	h.mu.Unlock()
}

// viewer is one websocket subscriber. Viewers only listen; inbound frames are discarded.
type viewer struct {
	id           string
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	once         sync.Once
	writeMu      sync.Mutex
	writeTimeout time.Duration
	logger       *zap.Logger
}

func (v *viewer) enqueue(payload []byte) {
	select {
	case <-v.done:
	case v.send <- payload:
	default:
		v.logger.Debug("dropping change for slow viewer", zap.String("viewer_id", v.id))
	}
}

func (v *viewer) readPump() {
	defer v.ws.Close()
	v.ws.SetReadLimit(4096)
	_ = v.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	v.ws.SetPongHandler(func(string) error {
		return v.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		if _, _, err := v.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (v *viewer) writePump() {
	for {
		select {
		case <-v.done:
			_ = v.write(websocket.CloseMessage, []byte{})
			return
		case msg := <-v.send:
			if err := v.write(websocket.TextMessage, msg); err != nil {
				_ = v.ws.Close()
				return
			}
		}
	}
}

func (v *viewer) ping() error {
	return v.write(websocket.PingMessage, []byte("ping"))
}

func (v *viewer) write(messageType int, data []byte) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	_ = v.ws.SetWriteDeadline(time.Now().Add(v.writeTimeout))
	return v.ws.WriteMessage(messageType, data)
}

func (v *viewer) stop() {
	v.once.Do(func() { close(v.done) })
}
