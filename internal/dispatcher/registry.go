package dispatcher

import "sync"

// Registry hands each job a stop channel. Cancel may arrive before the worker
// registers; the worker then observes an already-closed channel.
type Registry struct {
	mu    sync.Mutex
	stops map[string]*stopSignal
}

type stopSignal struct {
	ch     chan struct{}
	closed bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{stops: make(map[string]*stopSignal)}
}

// Register returns the stop channel for jobID.
func (r *Registry) Register(jobID string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.signal(jobID).ch
}

// Cancel closes jobID's stop channel. Repeated calls are no-ops.
func (r *Registry) Cancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig := r.signal(jobID)
	if !sig.closed {
		close(sig.ch)
		sig.closed = true
	}
}

// CancelIfRegistered closes jobID's stop channel only while a worker holds
// it. It reports whether a signal existed; a released job is left alone.
func (r *Registry) CancelIfRegistered(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig, ok := r.stops[jobID]
	if !ok {
		return false
	}
	if !sig.closed {
		close(sig.ch)
		sig.closed = true
	}
	return true
}

// Cancelled reports whether Cancel has been called for jobID.
func (r *Registry) Cancelled(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sig, ok := r.stops[jobID]
	return ok && sig.closed
}

// Release forgets jobID once its worker is done with it.
func (r *Registry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stops, jobID)
}

// Len reports how many jobs hold a stop signal.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stops)
}

func (r *Registry) signal(jobID string) *stopSignal {
	sig, ok := r.stops[jobID]
	if !ok {
		sig = &stopSignal{ch: make(chan struct{})}
		r.stops[jobID] = sig
	}
	return sig
}
