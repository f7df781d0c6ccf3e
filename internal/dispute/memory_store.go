package dispute

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crossmarket/admincore/internal/audit"
	"github.com/crossmarket/admincore/internal/pagination"
)

// MemoryStore keeps disputes in memory for demo/development mode.
//
// The unit-of-work contract is kept by ordering: the version check runs
// first, then audit appends (the only fallible step), then the in-memory
// mutation, which cannot fail. An audit failure therefore leaves the
// dispute untouched.
type MemoryStore struct {
	mu       sync.RWMutex
	disputes map[string]*Dispute
	messages map[string][]*Message
	evidence map[string][]*Evidence
	// seq numbers messages and evidence from one counter, preserving
	// insertion order across both kinds.
	seq int64
	log audit.Writer
}

// NewMemoryStore creates an in-memory dispute store writing audit
// entries to log.
func NewMemoryStore(log audit.Writer) *MemoryStore {
	return &MemoryStore{
		disputes: make(map[string]*Dispute),
		messages: make(map[string][]*Message),
		evidence: make(map[string][]*Evidence),
		log:      log,
	}
}

func (s *MemoryStore) Create(ctx context.Context, d *Dispute, firstMessage *Message, entry *audit.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auditID, err := s.log.Append(ctx, entry)
	if err != nil {
		return "", err
	}

	cp := *d
	s.disputes[d.ID] = &cp
	if firstMessage != nil {
		s.seq++
		firstMessage.Seq = s.seq
		m := *firstMessage
		s.messages[d.ID] = append(s.messages[d.ID], &m)
	}
	return auditID, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *d
	if d.Resolution != nil {
		res := *d.Resolution
		cp.Resolution = &res
	}
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Dispute, string, error) {
	cur, err := pagination.Decode(f.Cursor)
	if err != nil {
		return nil, "", invalid("cursor", "is not a valid cursor")
	}

	s.mu.RLock()
	all := make([]*Dispute, 0, len(s.disputes))
	for _, d := range s.disputes {
		if matches(d, f) {
			cp := *d
			if d.Resolution != nil {
				res := *d.Resolution
				cp.Resolution = &res
			}
			all = append(all, &cp)
		}
	}
	s.mu.RUnlock()

	// Newest first, id as tie-break for a total order.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if cur != nil {
		pos := 0
		for pos < len(all) {
			d := all[pos]
			if d.CreatedAt.Before(cur.CreatedAt) ||
				(d.CreatedAt.Equal(cur.CreatedAt) && d.ID < cur.ID) {
				break
			}
			pos++
		}
		all = all[pos:]
	}

	if len(all) > f.Limit {
		all = all[:f.Limit+1]
	}
	page, next, _ := pagination.ComputePage(all, f.Limit, func(d *Dispute) (time.Time, string) {
		return d.CreatedAt, d.ID
	})
	return page, next, nil
}

func matches(d *Dispute, f Filter) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Priority != "" && d.Priority != f.Priority {
		return false
	}
	if f.RaisedBy != "" && d.RaisedBy != f.RaisedBy {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(d.Reason), q) &&
			!strings.Contains(strings.ToLower(d.Description), q) &&
			!strings.Contains(strings.ToLower(d.OrderID), q) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{}
	var totalHours float64
	for _, d := range s.disputes {
		switch d.Status {
		case StatusOpen:
			st.Open++
		case StatusUnderReview:
			st.UnderReview++
		case StatusEscalated:
			st.Escalated++
		case StatusResolved:
			st.Resolved++
			if d.Resolution != nil {
				totalHours += d.Resolution.ResolvedAt.Sub(d.CreatedAt).Hours()
			}
		}
	}
	if st.Resolved > 0 {
		st.AvgResolutionHours = totalHours / float64(st.Resolved)
	}
	return st, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, d *Dispute, entry *audit.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.disputes[d.ID]
	if !ok {
		return "", ErrDisputeNotFound
	}
	if stored.Version != d.Version {
		return "", ErrConflict
	}

	auditID, err := s.log.Append(ctx, entry)
	if err != nil {
		return "", err
	}

	stored.Status = d.Status
	stored.UpdatedAt = d.UpdatedAt
	stored.Version++
	d.Version = stored.Version
	return auditID, nil
}

func (s *MemoryStore) ApplyResolution(ctx context.Context, d *Dispute, entries []*audit.Entry) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.disputes[d.ID]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	if stored.Version != d.Version {
		return nil, ErrConflict
	}
	if stored.Status == StatusResolved {
		return nil, ErrConflict
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id, err := s.log.Append(ctx, e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	res := *d.Resolution
	stored.Status = StatusResolved
	stored.Resolution = &res
	stored.UpdatedAt = d.UpdatedAt
	stored.Version++
	d.Version = stored.Version
	return ids, nil
}

func (s *MemoryStore) AddMessage(ctx context.Context, m *Message, entry *audit.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[m.DisputeID]; !ok {
		return "", ErrDisputeNotFound
	}

	auditID, err := s.log.Append(ctx, entry)
	if err != nil {
		return "", err
	}

	s.seq++
	m.Seq = s.seq
	cp := *m
	s.messages[m.DisputeID] = append(s.messages[m.DisputeID], &cp)
	return auditID, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, disputeID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[disputeID]
	result := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

func (s *MemoryStore) AddEvidence(ctx context.Context, e *Evidence, entry *audit.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[e.DisputeID]; !ok {
		return "", ErrDisputeNotFound
	}

	auditID, err := s.log.Append(ctx, entry)
	if err != nil {
		return "", err
	}

	s.seq++
	e.Seq = s.seq
	cp := *e
	s.evidence[e.DisputeID] = append(s.evidence[e.DisputeID], &cp)
	return auditID, nil
}

func (s *MemoryStore) ListEvidence(_ context.Context, disputeID string) ([]*Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev := s.evidence[disputeID]
	result := make([]*Evidence, 0, len(ev))
	for _, e := range ev {
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UploadedAt.Equal(result[j].UploadedAt) {
			return result[i].UploadedAt.Before(result[j].UploadedAt)
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}
