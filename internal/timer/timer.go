// Package timer provides named one-shot timers. The engine creates one
// timer per actively scheduled template and reacts to its firing.
package timer

import (
	"sync"
	"time"
)

// Handler is invoked when a timer fires. Implementations receive the timer
// name and its scheduled instant.
type Handler func(name string, scheduledFor time.Time)

// Timers is the alarm surface the scheduling engine runs against. Creating
// a timer under an existing name replaces it.
type Timers interface {
	// Create arms a one-shot timer. A when in the past fires immediately.
	Create(name string, when time.Time) error

	// Clear disarms and removes a timer. Clearing an unknown name is a
	// no-op.
	Clear(name string) error

	// GetAll returns the scheduled instants of all armed timers by name.
	GetAll() (map[string]time.Time, error)

	// OnFire registers the handler invoked on firing. Only one handler is
	// supported; later calls replace earlier ones.
	OnFire(h Handler)

	// Close disarms everything. No handler runs afterwards.
	Close() error
}

type inProcessTimer struct {
	t   *time.Timer
	due time.Time
}

// InProcess implements Timers with time.AfterFunc.
type InProcess struct {
	mu      sync.Mutex
	timers  map[string]*inProcessTimer
	handler Handler
	closed  bool
}

// NewInProcess creates an empty in-process timer set.
func NewInProcess() *InProcess {
	return &InProcess{timers: make(map[string]*inProcessTimer)}
}

func (p *InProcess) Create(name string, when time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	if existing, ok := p.timers[name]; ok {
		existing.t.Stop()
	}

	delay := time.Until(when)
	if delay < 0 {
		delay = 0
	}
	entry := &inProcessTimer{due: when}
	entry.t = time.AfterFunc(delay, func() {
		p.fire(name, when)
	})
	p.timers[name] = entry
	return nil
}

func (p *InProcess) Clear(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.timers[name]; ok {
		entry.t.Stop()
		delete(p.timers, name)
	}
	return nil
}

func (p *InProcess) GetAll() (map[string]time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]time.Time, len(p.timers))
	for name, entry := range p.timers {
		out[name] = entry.due
	}
	return out, nil
}

func (p *InProcess) OnFire(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

func (p *InProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for name, entry := range p.timers {
		entry.t.Stop()
		delete(p.timers, name)
	}
	return nil
}

// fire removes the timer entry and hands off to the handler. The entry is
// removed first so a handler re-arming the same name does not race the
// removal.
func (p *InProcess) fire(name string, when time.Time) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	delete(p.timers, name)
	h := p.handler
	p.mu.Unlock()

	if h != nil {
		h(name, when)
	}
}
