// Package ratelimit acota intentos por clave dentro de una ventana.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory es una ventana deslizante por clave, en proceso. Sirve para un
// único nodo; con varios nodos usar Redis.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]time.Time

	max    int
	window time.Duration
	now    func() time.Time
}

func NewMemory(max int, window time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Memory{
		entries: map[string][]time.Time{},
		max:     max,
		window:  window,
		now:     now,
	}
}

// Allow registra el intento si entra en la ventana. max <= 0 desactiva el
// límite.
func (m *Memory) Allow(ctx context.Context, key string) (bool, error) {
	if m.max <= 0 {
		return true, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := prune(m.entries[key], now.Add(-m.window))
	if len(pruned) >= m.max {
		m.entries[key] = pruned
		return false, nil
	}
	m.entries[key] = append(pruned, now)
	return true, nil
}

// Cleanup descarta claves sin intentos recientes y devuelve cuántas borró.
func (m *Memory) Cleanup() int {
	cutoff := m.now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for key, ts := range m.entries {
		pruned := prune(ts, cutoff)
		if len(pruned) == 0 {
			delete(m.entries, key)
			dropped++
			continue
		}
		m.entries[key] = pruned
	}
	return dropped
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
