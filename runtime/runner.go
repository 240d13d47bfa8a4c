// Package runtime is the sync orchestrator's minimal stand-in for the
// durable workflow runtime spec §5/§6 assumes as an external
// collaborator ("we assume a runtime that provides durable execution,
// activities, retries, signals, queries, child workflows, and
// continue-as-new"). It is deliberately small: just enough to drive and
// test engine/pipeline/orchestrator deterministically. A production
// deployment swaps this for a real durable-execution backend behind the
// same WorkflowFunc/Handle surface.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WorkflowFunc is a single workflow run: given the current input, it
// returns a result, or a ContinueAsNewSignal error to be re-entered with
// NextInput, or a terminal error.
type WorkflowFunc func(ctx context.Context, input any) (any, error)

// QueryFunc answers a named query against whatever state a running
// workflow wants to expose (spec §4.6 progress query).
type QueryFunc func(name string) (any, error)

// Handle is a running (or completed) workflow invocation.
type Handle struct {
	ID     string
	cancel context.CancelFunc

	mu       sync.RWMutex
	queryFn  QueryFunc
	result   any
	err      error
	done     chan struct{}
	signals  chan signalEnvelope
}

type signalEnvelope struct {
	name    string
	payload any
}

// Cancel requests cooperative cancellation; the workflow observes it via
// ctx.Done() at the next suspension point (spec §5).
func (h *Handle) Cancel() { h.cancel() }

// Signal delivers a named signal to the running workflow. Non-blocking;
// signals wait in a 16-slot buffer until the workflow reads them, and a
// signal sent while that buffer is full is dropped, matching
// fire-and-forget signal semantics.
func (h *Handle) Signal(name string, payload any) {
	select {
	case h.signals <- signalEnvelope{name: name, payload: payload}:
	default:
	}
}

// Query invokes the workflow's registered QueryFunc, if any.
func (h *Handle) Query(name string) (any, error) {
	h.mu.RLock()
	fn := h.queryFn
	h.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("workflow %s: no query handler registered", h.ID)
	}
	return fn(name)
}

// SetQueryHandler lets a running workflow body register its query
// function; called once near the top of the workflow function.
func (h *Handle) SetQueryHandler(fn QueryFunc) {
	h.mu.Lock()
	h.queryFn = fn
	h.mu.Unlock()
}

// Signals returns the channel a workflow body should select on to
// receive delivered signals.
func (h *Handle) Signals() <-chan signalEnvelope { return h.signals }

// SignalName/SignalPayload destructure a received signal envelope.
func SignalName(e signalEnvelope) string  { return e.name }
func SignalPayload(e signalEnvelope) any  { return e.payload }

// Wait blocks until the workflow completes and returns its final result.
func (h *Handle) Wait() (any, error) {
	<-h.done
	return h.result, h.err
}

// Runner starts and tracks workflow invocations.
type Runner struct {
	logger *logrus.Entry

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRunner constructs a Runner. logger may be nil.
func NewRunner(logger *logrus.Entry) *Runner {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{logger: logger, handles: make(map[string]*Handle)}
}

// StartOptions configures a workflow invocation.
type StartOptions struct {
	WorkflowID string // defaults to a generated uuid if empty
}

// Start launches fn with input in its own goroutine, looping on
// continue-as-new (spec §5/§9) until the workflow returns a terminal
// result or error. Returns immediately with a Handle; use Wait to block.
func (r *Runner) Start(ctx context.Context, opts StartOptions, fn WorkflowFunc, input any) *Handle {
	id := opts.WorkflowID
	if id == "" {
		id = uuid.NewString()
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:      id,
		cancel:  cancel,
		done:    make(chan struct{}),
		signals: make(chan signalEnvelope, 16),
	}
	runCtx = context.WithValue(runCtx, handleCtxKey{}, h)

	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()

	go func() {
		defer close(h.done)

		current := input
		runNumber := 0
		for {
			runNumber++
			log := r.logger.WithFields(logrus.Fields{"workflow_id": id, "run": runNumber})
			log.Debug("workflow run starting")

			result, err := fn(runCtx, current)
			if sig, ok := AsContinueAsNew(err); ok {
				log.Debug("continue-as-new")
				current = sig.NextInput
				continue
			}

			h.mu.Lock()
			h.result, h.err = result, err
			h.mu.Unlock()
			if err != nil {
				log.WithError(err).Warn("workflow run failed")
			} else {
				log.Debug("workflow run completed")
			}
			return
		}
	}()

	return h
}

// RunChild runs fn synchronously to completion (including any
// continue-as-new iterations) and returns its result, modeling a spawned
// child workflow that the parent awaits (spec §4.4/§4.6 child workflow
// dispatch).
func (r *Runner) RunChild(ctx context.Context, opts StartOptions, fn WorkflowFunc, input any) (any, error) {
	h := r.Start(ctx, opts, fn, input)
	return h.Wait()
}

// Lookup returns the Handle for a previously started workflow id, if
// still tracked.
func (r *Runner) Lookup(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Status is a workflow run's terminal/running state as seen from
// outside, used to answer "list recent"/"list failed" operator queries
// without requiring the caller to hold a reference to the Handle.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Summary is a point-in-time snapshot of one tracked workflow run.
type Summary struct {
	WorkflowID string
	Status     Status
	Err        string
}

// Status reports whether h is still running, and if not, whether it
// completed or failed.
func (h *Handle) Status() Status {
	select {
	case <-h.done:
	default:
		return StatusRunning
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.err != nil {
		return StatusFailed
	}
	return StatusCompleted
}

// List returns a snapshot of every workflow run this Runner has started
// and still tracks, in no particular order (spec §6 "list recent
// workflows"/"list failed").
func (r *Runner) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Summary, 0, len(r.handles))
	for id, h := range r.handles {
		s := Summary{WorkflowID: id, Status: h.Status()}
		if s.Status == StatusFailed {
			h.mu.RLock()
			if h.err != nil {
				s.Err = h.err.Error()
			}
			h.mu.RUnlock()
		}
		out = append(out, s)
	}
	return out
}

type handleCtxKey struct{}

// HandleFromContext returns the Handle of the workflow run that owns
// ctx, letting a workflow body register its own query handler or select
// on its own signal channel (spec §4.6 progress query / cancel signal)
// without the Handle needing to be threaded through every function
// signature.
func HandleFromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(handleCtxKey{}).(*Handle)
	return h, ok
}
