package live

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/spanhouse/spanhouse/pkg/genai"
)

// SSEHandler streams broadcaster messages to HTTP clients as Server-Sent
// Events. One goroutine per connection reads from the subscriber channel and
// writes frames; channel closure ends the stream.
type SSEHandler struct {
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewSSEHandler creates the SSE serving layer over a broadcaster.
func NewSSEHandler(b *Broadcaster, logger *slog.Logger) *SSEHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEHandler{broadcaster: b, logger: logger}
}

// ServeAll handles GET /api/v1/live: every signal, named per-signal events.
func (h *SSEHandler) ServeAll(w http.ResponseWriter, r *http.Request) {
	clientID := uuid.NewString()
	ch, err := h.broadcaster.Subscribe(clientID)
	if err != nil {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.broadcaster.Unsubscribe(clientID)
	h.stream(w, r, clientID, ch)
}

// ServeSignal handles the signal-scoped variants: the subscriber only
// receives messages of the declared signal.
func (h *SSEHandler) ServeSignal(signal Signal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := uuid.NewString()
		ch, err := h.broadcaster.SubscribeSignal(clientID, signal)
		if err != nil {
			http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
			return
		}
		defer h.broadcaster.Unsubscribe(clientID)
		h.stream(w, r, clientID, ch)
	}
}

type connectedEvent struct {
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, clientID string, ch <-chan Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	sessionFilter := r.URL.Query().Get("session")

	h.writeEvent(w, "connected", connectedEvent{ConnectionID: clientID[:8], Timestamp: time.Now().UTC()})
	flusher.Flush()

	h.logger.Debug("live client connected", "client_id", clientID, "path", r.URL.Path)

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return
			}
			data, keep := filterBySession(msg, sessionFilter)
			if !keep {
				continue
			}
			h.writeEvent(w, string(msg.Signal), data)
			flusher.Flush()
		case <-r.Context().Done():
			h.logger.Debug("live client disconnected", "client_id", clientID)
			return
		}
	}
}

// filterBySession narrows span batches to one session when the client asked
// for it. Non-span signals pass through untouched.
func filterBySession(msg Message, sessionID string) (any, bool) {
	if sessionID == "" {
		return msg.Data, true
	}
	batch, ok := msg.Data.(SpanBatch)
	if !ok {
		return msg.Data, true
	}
	var matched []genai.EnrichedSpan
	for _, span := range batch.Spans {
		if span.SessionID() == sessionID {
			matched = append(matched, span)
		}
	}
	if len(matched) == 0 {
		return nil, false
	}
	return SpanBatch{Spans: matched}, true
}

func (h *SSEHandler) writeEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
