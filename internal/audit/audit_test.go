package audit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLog_AppendAssignsIDAndTimestamp(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	id, err := log.Append(ctx, &Entry{
		DisputeID:   "dsp_1",
		Action:      ActionDisputeResolved,
		ActorID:     "admin_1",
		Description: "resolved with outcome refund_buyer",
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if id == "" {
		t.Fatal("Append returned empty id")
	}

	entries, err := log.ListByDispute(ctx, "dsp_1")
	if err != nil {
		t.Fatalf("ListByDispute failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].ID != id {
		t.Errorf("entry id = %q, want %q", entries[0].ID, id)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}
	if entries[0].Severity != SeverityInfo {
		t.Errorf("default severity = %q, want INFO", entries[0].Severity)
	}
}

func TestMemoryLog_ListOrderedByCreatedAt(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of chronological order.
	for _, e := range []*Entry{
		{DisputeID: "dsp_1", Action: ActionEscrowRefund, CreatedAt: base.Add(2 * time.Minute)},
		{DisputeID: "dsp_1", Action: ActionStatusChanged, CreatedAt: base},
		{DisputeID: "dsp_2", Action: ActionStatusChanged, CreatedAt: base.Add(time.Minute)},
		{DisputeID: "dsp_1", Action: ActionDisputeResolved, CreatedAt: base.Add(time.Minute)},
	} {
		if _, err := log.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := log.ListByDispute(ctx, "dsp_1")
	if err != nil {
		t.Fatalf("ListByDispute failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []string{ActionStatusChanged, ActionDisputeResolved, ActionEscrowRefund}
	for i, action := range want {
		if entries[i].Action != action {
			t.Errorf("entries[%d].Action = %q, want %q", i, entries[i].Action, action)
		}
	}
}

func TestMemoryLog_CopiesOnRead(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	if _, err := log.Append(ctx, &Entry{DisputeID: "dsp_1", Action: ActionStatusChanged}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	first, _ := log.ListByDispute(ctx, "dsp_1")
	first[0].Action = "TAMPERED"

	second, _ := log.ListByDispute(ctx, "dsp_1")
	if second[0].Action != ActionStatusChanged {
		t.Error("mutation through a read leaked into the log")
	}
}

func TestMetadataJSON(t *testing.T) {
	if got := string(metadataJSON(nil)); got != "{}" {
		t.Errorf("metadataJSON(nil) = %s, want {}", got)
	}
	got := string(metadataJSON(map[string]any{"outcome": "refund_buyer"}))
	if got != `{"outcome":"refund_buyer"}` {
		t.Errorf("metadataJSON = %s", got)
	}
}
