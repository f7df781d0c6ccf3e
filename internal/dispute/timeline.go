package dispute

import (
	"context"
	"sort"
	"time"

	"github.com/crossmarket/admincore/internal/order"
)

// Detail is the composite read model for one dispute: the dispute, its
// order snapshot, the thread, and evidence partitioned by side.
type Detail struct {
	Dispute  *Dispute     `json:"dispute"`
	Order    *order.Order `json:"order,omitempty"`
	Messages []*Message   `json:"messages"`
	Evidence []*Evidence  `json:"evidence"`
	// BuyerEvidence and SellerEvidence are views over Evidence computed
	// against the order's current party ids. Evidence from uploaders who
	// match neither side appears only in the combined list.
	BuyerEvidence  []*Evidence `json:"buyerEvidence"`
	SellerEvidence []*Evidence `json:"sellerEvidence"`
}

// GetDispute assembles the full detail view. A missing order snapshot
// degrades the view (no order block, no evidence partition) rather than
// failing it: the dispute itself is still actionable reading.
func (s *Service) GetDispute(ctx context.Context, id string) (*Detail, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	ev, err := s.store.ListEvidence(ctx, id)
	if err != nil {
		return nil, err
	}

	det := &Detail{
		Dispute:        d,
		Messages:       msgs,
		Evidence:       ev,
		BuyerEvidence:  []*Evidence{},
		SellerEvidence: []*Evidence{},
	}

	ord, err := s.orders.Get(ctx, d.OrderID)
	if err == nil {
		det.Order = ord
		for _, e := range ev {
			switch e.UploadedBy {
			case ord.BuyerID:
				det.BuyerEvidence = append(det.BuyerEvidence, e)
			case ord.SellerID:
				det.SellerEvidence = append(det.SellerEvidence, e)
			}
		}
	}
	return det, nil
}

// List returns disputes matching the filter, newest first, with an
// opaque cursor for the next page.
func (s *Service) List(ctx context.Context, f Filter) ([]*Dispute, string, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, "", invalid("status", "is not a known status")
	}
	return s.store.List(ctx, f)
}

// Stats returns queue counts and the average time to resolution.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// TimelineItem is one event in a dispute's merged activity feed.
type TimelineItem struct {
	Kind     string    `json:"kind"` // "message" or "evidence"
	At       string    `json:"at"`
	Message  *Message  `json:"message,omitempty"`
	Evidence *Evidence `json:"evidence,omitempty"`
}

// Timeline merges the thread and evidence into one chronological feed.
// Items with identical timestamps fall back to their shared store
// sequence, so the feed replays in insertion order.
func (s *Service) Timeline(ctx context.Context, id string) ([]*TimelineItem, error) {
	det, err := s.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}

	items := make([]*TimelineItem, 0, len(det.Evidence)+len(det.Messages))
	for _, e := range det.Evidence {
		items = append(items, &TimelineItem{Kind: "evidence", At: e.UploadedAt.Format(timeFormat), Evidence: e})
	}
	for _, m := range det.Messages {
		items = append(items, &TimelineItem{Kind: "message", At: m.CreatedAt.Format(timeFormat), Message: m})
	}

	sort.Slice(items, func(i, j int) bool {
		ti, tj := itemTime(items[i]), itemTime(items[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return itemSeq(items[i]) < itemSeq(items[j])
	})
	return items, nil
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func itemTime(it *TimelineItem) time.Time {
	if it.Message != nil {
		return it.Message.CreatedAt
	}
	return it.Evidence.UploadedAt
}

func itemSeq(it *TimelineItem) int64 {
	if it.Message != nil {
		return it.Message.Seq
	}
	return it.Evidence.Seq
}
