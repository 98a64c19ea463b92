// Package worker runs extractions on a dedicated goroutine and reports back
// through an event channel. It is the boundary a host talks to: requests go
// in with Submit, previews and results come out of Events.
package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
	"polaroid-extractor/internal/pipeline"
)

var ErrWorkerStopped = errors.New("worker stopped")

const defaultEventBuffer = 16

// Engine is the extraction core the worker drives.
type Engine interface {
	Extract(req pipeline.Request, onPreview func(pipeline.Preview)) (*pipeline.Result, error)
}

type EventType int

const (
	EventReady EventType = iota
	EventPreview
	EventExtracted
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventPreview:
		return "preview"
	case EventExtracted:
		return "extracted"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is one message from the worker. RequestID is empty for readiness
// and runtime failures.
type Event struct {
	Type           EventType
	RequestID      string
	Preview        *pipeline.Preview
	Result         *pipeline.Result
	Err            error
	RuntimeVersion string
}

type job struct {
	id  string
	req pipeline.Request
}

// Worker processes one request at a time. A request submitted while another
// is pending replaces it; a run already in flight completes but its events
// are dropped once a newer request is waiting.
type Worker struct {
	engine Engine
	probe  func() (string, error)
	logger logger.Logger

	events chan Event
	wake   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	ready   bool
	stopped bool
	pending *job

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

type Option func(*Worker)

// WithProbe replaces the OpenCV readiness probe.
func WithProbe(probe func() (string, error)) Option {
	return func(w *Worker) {
		w.probe = probe
	}
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(w *Worker) {
		w.events = make(chan Event, n)
	}
}

func New(engine Engine, log logger.Logger, opts ...Option) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	w := &Worker{
		engine: engine,
		probe:  pipeline.ProbeRuntime,
		logger: log,
		events: make(chan Event, defaultEventBuffer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events is closed after Shutdown returns.
func (w *Worker) Events() <-chan Event {
	return w.events
}

func (w *Worker) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Start probes the runtime and, on success, begins accepting requests. It
// emits EventReady or EventFailed exactly once.
func (w *Worker) Start() error {
	var err error
	w.startOnce.Do(func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			err = ErrWorkerStopped
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		version, probeErr := w.probe()
		if probeErr != nil {
			if !errors.Is(probeErr, models.ErrRuntimeUnavailable) {
				probeErr = fmt.Errorf("%w: %v", models.ErrRuntimeUnavailable, probeErr)
			}
			err = probeErr
			w.logger.Error("Worker", err, nil)
			w.emit(Event{Type: EventFailed, Err: err})
			return
		}

		w.mu.Lock()
		w.ready = true
		w.mu.Unlock()

		w.logger.Info("Worker", "runtime ready", map[string]interface{}{
			"opencv": version,
		})
		w.emit(Event{Type: EventReady, RuntimeVersion: version})

		// Requests submitted since ready was set wait in pending; the loop
		// picks them up after Ready has been delivered.
		w.mu.Lock()
		if !w.stopped {
			w.wg.Add(1)
			go w.loop()
		}
		w.mu.Unlock()
	})
	return err
}

// Submit queues req and returns its id. Any request still waiting is
// discarded in favour of this one.
func (w *Worker) Submit(req pipeline.Request) (string, error) {
	w.mu.Lock()
	switch {
	case w.stopped:
		w.mu.Unlock()
		return "", ErrWorkerStopped
	case !w.ready:
		w.mu.Unlock()
		return "", models.ErrWorkerNotReady
	}

	id := uuid.NewString()
	if w.pending != nil {
		w.logger.Debug("Worker", "pending request replaced", map[string]interface{}{
			"replaced": w.pending.id,
			"by":       id,
		})
	}
	w.pending = &job{id: id, req: req}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return id, nil
}

// Shutdown stops accepting requests, waits for the run in flight and closes
// the events channel.
func (w *Worker) Shutdown() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.ready = false
		w.pending = nil
		w.mu.Unlock()

		close(w.done)
		w.wg.Wait()
		close(w.events)

		w.logger.Info("Worker", "stopped", nil)
	})
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}

		for j := w.take(); j != nil; j = w.take() {
			w.run(j)
		}
	}
}

func (w *Worker) take() *job {
	w.mu.Lock()
	defer w.mu.Unlock()
	j := w.pending
	w.pending = nil
	return j
}

// superseded reports whether a newer request is waiting or the worker stopped.
func (w *Worker) superseded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil || w.stopped
}

func (w *Worker) run(j *job) {
	w.logger.Debug("Worker", "request started", map[string]interface{}{
		"request_id": j.id,
		"size":       fmt.Sprintf("%dx%d", j.req.Width, j.req.Height),
	})

	result, err := w.engine.Extract(j.req, func(p pipeline.Preview) {
		if w.superseded() {
			return
		}
		w.emit(Event{Type: EventPreview, RequestID: j.id, Preview: &p})
	})

	if w.superseded() {
		w.logger.Debug("Worker", "result abandoned", map[string]interface{}{
			"request_id": j.id,
		})
		return
	}

	if err != nil {
		w.logger.Error("Worker", err, map[string]interface{}{"request_id": j.id})
		w.emit(Event{Type: EventFailed, RequestID: j.id, Err: err})
		return
	}
	w.emit(Event{Type: EventExtracted, RequestID: j.id, Result: result})
}

func (w *Worker) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}
