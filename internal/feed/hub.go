// Package feed streams newly stored history records to WebSocket clients.
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-compass/internal/store"
)

const (
	defaultBuffer       = 16
	defaultWriteTimeout = 5 * time.Second
)

// Hub fans out history records to subscribed connections. A subscriber that
// falls behind by more than its buffer is disconnected.
type Hub struct {
	originPatterns []string
	buffer         int
	writeTimeout   time.Duration

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	studentID string
	msgs      chan store.HistoryRecord
	closeSlow func()
}

// Option configures a Hub.
type Option func(*Hub)

// WithOriginPatterns sets the origins allowed to connect. "*" allows any.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) {
		h.originPatterns = patterns
	}
}

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		buffer:       defaultBuffer,
		writeTimeout: defaultWriteTimeout,
		subs:         make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish queues rec for every subscriber watching its student. It never
// blocks.
func (h *Hub) Publish(rec store.HistoryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		if s.studentID != "" && s.studentID != rec.StudentID {
			continue
		}
		select {
		case s.msgs <- rec:
		default:
			go s.closeSlow()
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams records until the client goes
// away. The optional student_id query parameter filters the stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.allowAnyOrigin() {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.originPatterns
	}

	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
	s := &subscriber{
		studentID: studentID,
		msgs:      make(chan store.HistoryRecord, h.buffer),
		closeSlow: func() {
			c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with records")
		},
	}
	h.add(s)
	defer h.remove(s)

	slog.Info("feed subscriber connected", "student_id", studentID)

	// Clients only listen; CloseRead handles pings and the close handshake.
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case rec := <-s.msgs:
			if err := h.write(ctx, c, rec); err != nil {
				slog.Debug("feed subscriber write failed", "student_id", studentID, "error", err)
				return
			}
		case <-ctx.Done():
			slog.Info("feed subscriber disconnected", "student_id", studentID)
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, c *websocket.Conn, rec store.HistoryRecord) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, rec)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *Hub) allowAnyOrigin() bool {
	if len(h.originPatterns) == 0 {
		return true
	}
	for _, p := range h.originPatterns {
		if p == "*" {
			return true
		}
	}
	return false
}
