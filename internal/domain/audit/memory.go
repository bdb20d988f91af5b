package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process Repository used by tests and local tooling.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries []*Entry
	// FailWith, when set, is returned by Append instead of storing the entry.
	FailWith error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (m *MemoryRepo) Append(_ context.Context, e *Entry) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepo) Recent(_ context.Context, limit int) ([]*Entry, error) {
	return m.filter(limit, func(*Entry) bool { return true }), nil
}

func (m *MemoryRepo) ListByPatient(_ context.Context, patientID string, since time.Time, limit int) ([]*Entry, error) {
	return m.filter(limit, func(e *Entry) bool {
		return e.PatientID == patientID && !e.Timestamp.Before(since)
	}), nil
}

// All returns every stored entry in insertion order.
func (m *MemoryRepo) All() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *MemoryRepo) filter(limit int, keep func(*Entry) bool) []*Entry {
	m.mu.RLock()
	out := []*Entry{}
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
