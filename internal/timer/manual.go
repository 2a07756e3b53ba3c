package timer

import (
	"sync"
	"time"
)

// Manual implements Timers without real clocks. Tests arm timers through
// the normal interface and trigger them explicitly with Fire.
type Manual struct {
	mu      sync.Mutex
	due     map[string]time.Time
	handler Handler
}

// NewManual creates an empty manual timer set.
func NewManual() *Manual {
	return &Manual{due: make(map[string]time.Time)}
}

func (m *Manual) Create(name string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.due[name] = when
	return nil
}

func (m *Manual) Clear(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.due, name)
	return nil
}

func (m *Manual) GetAll() (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Time, len(m.due))
	for name, when := range m.due {
		out[name] = when
	}
	return out, nil
}

func (m *Manual) OnFire(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.due = make(map[string]time.Time)
	return nil
}

// Fire triggers the named timer synchronously, mirroring what a real timer
// does on expiry: the entry is removed, then the handler runs. Firing an
// unarmed name reports false.
func (m *Manual) Fire(name string) bool {
	m.mu.Lock()
	when, ok := m.due[name]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.due, name)
	h := m.handler
	m.mu.Unlock()

	if h != nil {
		h(name, when)
	}
	return true
}
