package dispute

import (
	"context"
	"testing"
	"time"

	"github.com/crossmarket/admincore/internal/audit"
	"github.com/crossmarket/admincore/internal/order"
)

type emptyOrderSource struct{}

func (emptyOrderSource) Get(context.Context, string) (*order.Order, error) {
	return nil, order.ErrOrderNotFound
}

func newEmptyOrderSource() order.Source { return emptyOrderSource{} }

func TestGetDisputePartitionsEvidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.open(t)

	if _, err := f.svc.AddEvidence(ctx, d.ID, EvidenceRequest{
		Type: EvidenceText, UploadedBy: "buyer_1", Description: "no delivery notice",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.AddEvidence(ctx, d.ID, EvidenceRequest{
		Type: EvidenceImage, UploadedBy: "seller_1", URL: "https://cdn.example.com/receipt.jpg",
	}); err != nil {
		t.Fatal(err)
	}

	det, err := f.svc.GetDispute(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if det.Order == nil || det.Order.ID != "ord_1" {
		t.Errorf("order snapshot missing: %+v", det.Order)
	}
	if len(det.Evidence) != 2 {
		t.Fatalf("evidence = %d, want 2", len(det.Evidence))
	}
	if len(det.BuyerEvidence) != 1 || det.BuyerEvidence[0].UploadedBy != "buyer_1" {
		t.Errorf("buyer partition = %+v", det.BuyerEvidence)
	}
	if len(det.SellerEvidence) != 1 || det.SellerEvidence[0].UploadedBy != "seller_1" {
		t.Errorf("seller partition = %+v", det.SellerEvidence)
	}
}

func TestGetDisputeDegradesWithoutOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.open(t)

	// Simulate the order snapshot disappearing from the read model.
	f.orders2(t)

	det, err := f.svc.GetDispute(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if det.Order != nil {
		t.Error("expected nil order in degraded view")
	}
	if det.BuyerEvidence == nil || det.SellerEvidence == nil {
		t.Error("partitions must be empty slices, not nil")
	}
}

// orders2 swaps the service's order source for an empty one.
func (f *fixture) orders2(t *testing.T) {
	t.Helper()
	f.svc.orders = newEmptyOrderSource()
}

func TestTimelineMergesChronologically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.open(t)

	if _, err := f.svc.AddMessage(ctx, d.ID, MessageRequest{
		SenderRole: RoleSeller, SenderID: "seller_1", Message: "shipped on monday",
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := f.svc.AddEvidence(ctx, d.ID, EvidenceRequest{
		Type: EvidenceImage, UploadedBy: "seller_1", URL: "https://cdn.example.com/receipt.jpg",
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := f.svc.AddMessage(ctx, d.ID, MessageRequest{
		SenderRole: RoleBuyer, SenderID: "buyer_1", Message: "that receipt is for a different order",
	}); err != nil {
		t.Fatal(err)
	}

	items, err := f.svc.Timeline(ctx, d.ID)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	// Opening description + 2 messages + 1 evidence.
	if len(items) != 4 {
		t.Fatalf("items = %d, want 4", len(items))
	}

	var kinds []string
	for _, it := range items {
		kinds = append(kinds, it.Kind)
	}
	want := []string{"message", "message", "evidence", "message"}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	for i := 1; i < len(items); i++ {
		if itemTime(items[i]).Before(itemTime(items[i-1])) {
			t.Errorf("timeline out of order at %d", i)
		}
	}
}

func TestTimelineSameTimestampKeepsInsertionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Open without a description so the thread starts empty.
	d, err := f.svc.Open(ctx, OpenRequest{
		OrderID: "ord_1", RaisedBy: PartyBuyer, RaisedByID: "buyer_1", Reason: "item not received",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Two bursts with identical timestamps inside each burst: first a
	// message then evidence, then the other way around.
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	note := func(createdAt time.Time) *audit.Entry {
		return &audit.Entry{DisputeID: d.ID, Action: audit.ActionMessageAdded, Severity: audit.SeverityInfo, CreatedAt: createdAt}
	}
	if _, err := f.store.AddMessage(ctx, &Message{
		ID: "msg_a", DisputeID: d.ID, SenderRole: RoleBuyer, SenderID: "buyer_1", Message: "no package", CreatedAt: at,
	}, note(at)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.AddEvidence(ctx, &Evidence{
		ID: "evd_a", DisputeID: d.ID, Type: EvidenceText, UploadedBy: "buyer_1", Description: "empty mailbox photo", UploadedAt: at,
	}, note(at)); err != nil {
		t.Fatal(err)
	}

	at2 := at.Add(time.Minute)
	if _, err := f.store.AddEvidence(ctx, &Evidence{
		ID: "evd_b", DisputeID: d.ID, Type: EvidenceImage, UploadedBy: "seller_1", URL: "https://cdn.example.com/label.jpg", UploadedAt: at2,
	}, note(at2)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.AddMessage(ctx, &Message{
		ID: "msg_b", DisputeID: d.ID, SenderRole: RoleSeller, SenderID: "seller_1", Message: "label attached", CreatedAt: at2,
	}, note(at2)); err != nil {
		t.Fatal(err)
	}

	items, err := f.svc.Timeline(ctx, d.ID)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("items = %d, want 4", len(items))
	}
	var kinds []string
	for _, it := range items {
		kinds = append(kinds, it.Kind)
	}
	want := []string{"message", "evidence", "evidence", "message"}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	for i := 1; i < len(items); i++ {
		if itemSeq(items[i]) <= itemSeq(items[i-1]) {
			t.Errorf("seq not increasing at %d: %d then %d", i, itemSeq(items[i-1]), itemSeq(items[i]))
		}
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		d, err := f.svc.Open(ctx, OpenRequest{
			OrderID:    "ord_1",
			RaisedBy:   PartyBuyer,
			RaisedByID: "buyer_1",
			Reason:     "item not received",
			Priority:   PriorityHigh,
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, d.ID)
		time.Sleep(2 * time.Millisecond)
	}

	// Status filter
	page, _, err := f.svc.List(ctx, Filter{Status: StatusOpen, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 5 {
		t.Errorf("open disputes = %d, want 5", len(page))
	}
	page, _, _ = f.svc.List(ctx, Filter{Status: StatusResolved, Limit: 10})
	if len(page) != 0 {
		t.Errorf("resolved disputes = %d, want 0", len(page))
	}

	// Newest first
	page, next, err := f.svc.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || next == "" {
		t.Fatalf("page = %d items, next = %q", len(page), next)
	}
	if page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Errorf("order wrong: got %s,%s want %s,%s", page[0].ID, page[1].ID, ids[4], ids[3])
	}

	// Walk the cursor to exhaustion; no dispute repeats.
	seen := map[string]bool{page[0].ID: true, page[1].ID: true}
	for next != "" {
		page, next, err = f.svc.List(ctx, Filter{Limit: 2, Cursor: next})
		if err != nil {
			t.Fatal(err)
		}
		for _, d := range page {
			if seen[d.ID] {
				t.Errorf("dispute %s repeated across pages", d.ID)
			}
			seen[d.ID] = true
		}
	}
	if len(seen) != 5 {
		t.Errorf("walked %d disputes, want 5", len(seen))
	}

	// Bad cursor
	if _, _, err := f.svc.List(ctx, Filter{Limit: 2, Cursor: "!!!"}); err == nil {
		t.Error("invalid cursor accepted")
	}

	// Search
	page, _, _ = f.svc.List(ctx, Filter{Search: "not received", Limit: 10})
	if len(page) != 5 {
		t.Errorf("search hits = %d, want 5", len(page))
	}
	page, _, _ = f.svc.List(ctx, Filter{Search: "zebra", Limit: 10})
	if len(page) != 0 {
		t.Errorf("search hits = %d, want 0", len(page))
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d1 := f.underReview(t)
	f.open(t)
	if _, err := f.svc.Resolve(ctx, d1.ID, ResolveRequest{Outcome: OutcomeNoAction, Notes: "settled"}, Actor{ID: "adm_1"}); err != nil {
		t.Fatal(err)
	}

	st, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Open != 1 || st.UnderReview != 0 || st.Resolved != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.AvgResolutionHours < 0 {
		t.Errorf("avg resolution hours = %f", st.AvgResolutionHours)
	}
}
