// Package live fans ingested telemetry out to connected subscribers. Each
// subscriber owns a bounded channel with drop-oldest backpressure: freshness
// is preferred over completeness for live views, and a slow or dead
// subscriber never stalls the ingestion path.
package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/genai"
)

// Signal identifies which telemetry stream a message belongs to.
type Signal string

const (
	SignalSpans   Signal = "spans"
	SignalMetrics Signal = "metrics"
	SignalLogs    Signal = "logs"
)

// SpanBatch is the payload of a spans message.
type SpanBatch struct {
	Spans []genai.EnrichedSpan `json:"spans"`
}

// MetricBatch is the payload of a metrics message.
type MetricBatch struct {
	Metrics []domain.Metric `json:"metrics"`
}

// LogBatch is the payload of a logs message.
type LogBatch struct {
	Logs []domain.LogRecord `json:"logs"`
}

// Message is one broadcast unit: a full ingested batch.
type Message struct {
	Signal    Signal    `json:"signal"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultQueueSize is the per-subscriber queue capacity.
const DefaultQueueSize = 1000

type subscriber struct {
	// mu serializes sends against channel close so a publish racing an
	// unsubscribe can never send on a closed channel. It is only ever held
	// for non-blocking operations.
	mu     sync.Mutex
	ch     chan Message
	closed bool
	// filter of nil means all signals; otherwise only matching messages are
	// delivered, so a filtered subscriber never sees a superset.
	filter *Signal
}

// send is non-blocking. When the queue is full the oldest queued message is
// discarded to admit the new one. Reports whether a message was dropped.
func (s *subscriber) send(msg Message) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return false
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- msg:
	default:
	}
	return true
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Broadcaster distributes messages to subscribers. The registry mutex is
// held only for add/remove; publishing iterates a snapshot so fan-out never
// runs under the lock.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	queueSize int
	closed    bool
	logger    *slog.Logger
	onDrop    func() // metrics hook, may be nil
}

// NewBroadcaster creates a broadcaster with the given per-subscriber queue
// capacity (DefaultQueueSize when zero or negative).
func NewBroadcaster(queueSize int, logger *slog.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:      make(map[string]*subscriber),
		queueSize: queueSize,
		logger:    logger,
	}
}

// SetDropHook installs a callback invoked once per dropped message. Must be
// called before the broadcaster is shared.
func (b *Broadcaster) SetDropHook(fn func()) { b.onDrop = fn }

// Subscribe registers a client for all signals and returns its receive
// channel. The channel is closed on Unsubscribe or Close.
func (b *Broadcaster) Subscribe(clientID string) (<-chan Message, error) {
	return b.subscribe(clientID, nil)
}

// SubscribeSignal registers a client for a single signal. The subscriber
// only ever receives messages of that signal.
func (b *Broadcaster) SubscribeSignal(clientID string, signal Signal) (<-chan Message, error) {
	return b.subscribe(clientID, &signal)
}

func (b *Broadcaster) subscribe(clientID string, filter *Signal) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, domain.ErrBroadcasterClosed
	}
	if old, ok := b.subs[clientID]; ok {
		old.close()
	}
	sub := &subscriber{ch: make(chan Message, b.queueSize), filter: filter}
	b.subs[clientID] = sub
	return sub.ch, nil
}

// Unsubscribe removes a client and closes its channel. Idempotent.
func (b *Broadcaster) Unsubscribe(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[clientID]; ok {
		delete(b.subs, clientID)
		sub.close()
	}
}

// Publish delivers a message to every matching subscriber without ever
// blocking: a full queue drops its oldest message to admit the new one.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	snapshot := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		snapshot = append(snapshot, sub)
	}
	b.mu.RUnlock()

	for _, sub := range snapshot {
		if sub.filter != nil && *sub.filter != msg.Signal {
			continue
		}
		if sub.send(msg) && b.onDrop != nil {
			b.onDrop()
		}
	}
}

// PublishSpans broadcasts a span batch.
func (b *Broadcaster) PublishSpans(spans []genai.EnrichedSpan) {
	b.Publish(Message{Signal: SignalSpans, Data: SpanBatch{Spans: spans}, Timestamp: time.Now().UTC()})
}

// PublishMetrics broadcasts a metric batch.
func (b *Broadcaster) PublishMetrics(metrics []domain.Metric) {
	b.Publish(Message{Signal: SignalMetrics, Data: MetricBatch{Metrics: metrics}, Timestamp: time.Now().UTC()})
}

// PublishLogs broadcasts a log batch.
func (b *Broadcaster) PublishLogs(logs []domain.LogRecord) {
	b.Publish(Message{Signal: SignalLogs, Data: LogBatch{Logs: logs}, Timestamp: time.Now().UTC()})
}

// SubscriberCount returns the number of connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the broadcaster down, closing every subscriber channel to
// signal end-of-stream. Further publishes are dropped and further
// subscribes fail.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.close()
	}
}
