// Package audit publishes access-decision records to configured sinks.
// Delivery is strictly best-effort: a full queue drops the event and a
// failing sink is logged and forgotten. Nothing here may ever affect the
// outcome of the request being audited.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event is one access decision.
type Event struct {
	Time      time.Time `json:"time"`
	Endpoint  string    `json:"endpoint"`
	Principal string    `json:"principal,omitempty"`
	Admin     bool      `json:"admin,omitempty"`
	Bucket    string    `json:"bucket,omitempty"`
	Path      string    `json:"path,omitempty"`
	Resource  string    `json:"resource,omitempty"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
}

// Decision values.
const (
	DecisionGranted  = "granted"
	DecisionDenied   = "denied"
	DecisionNotFound = "not_found"
)

// Backend is a delivery sink for audit events.
type Backend interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Dispatcher fans events out to all registered backends from a small
// worker pool behind a bounded queue.
type Dispatcher struct {
	queue    chan []byte
	workers  int
	timeout  time.Duration
	wg       sync.WaitGroup
	mu       sync.Mutex
	backends []Backend
	stopped  bool
}

func NewDispatcher(workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		queue:   make(chan []byte, queueSize),
		workers: workers,
		timeout: timeout,
	}
}

// AddBackend registers a delivery sink.
func (d *Dispatcher) AddBackend(b Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backends = append(d.backends, b)
	slog.Info("audit backend registered", "backend", b.Name())
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for payload := range d.queue {
				d.deliver(payload)
			}
		}()
	}
}

// Stop drains the queue and closes all backends.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.queue)
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.backends {
		b.Close()
	}
}

// Record enqueues an event. Non-blocking: if the queue is full the event
// is dropped with a warning.
func (d *Dispatcher) Record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("audit marshal error", "error", err)
		return
	}

	// The lock is held through the send so Stop cannot close the queue
	// underneath it.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.backends) == 0 {
		return
	}
	select {
	case d.queue <- payload:
	default:
		slog.Warn("audit queue full, dropping event", "endpoint", ev.Endpoint, "decision", ev.Decision)
	}
}

func (d *Dispatcher) deliver(payload []byte) {
	d.mu.Lock()
	backends := make([]Backend, len(d.backends))
	copy(backends, d.backends)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for _, b := range backends {
		if err := b.Publish(ctx, payload); err != nil {
			// Swallowed deliberately: audit failures never surface.
			slog.Warn("audit backend publish error", "backend", b.Name(), "error", err)
		}
	}
}
