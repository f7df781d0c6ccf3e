package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crossmarket/admincore/internal/idgen"
)

// MemoryLog stores audit entries in memory for demo/testing.
type MemoryLog struct {
	entries []*Entry
	mu      sync.RWMutex
}

// NewMemoryLog creates an in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, e *Entry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *e
	if cp.ID == "" {
		cp.ID = idgen.WithPrefix("aud_")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.Severity == "" {
		cp.Severity = SeverityInfo
	}
	l.entries = append(l.entries, &cp)
	return cp.ID, nil
}

func (l *MemoryLog) ListByDispute(_ context.Context, disputeID string) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*Entry
	for _, e := range l.entries {
		if e.DisputeID == disputeID {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Entries returns all stored audit entries (for testing).
func (l *MemoryLog) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Entry, len(l.entries))
	copy(result, l.entries)
	return result
}
