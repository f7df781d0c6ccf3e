package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 14, 9, 30, 0, 123456789, time.UTC)
	cur, err := Decode(Encode(at, "dsp_a1b2"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !cur.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", cur.CreatedAt, at)
	}
	if cur.ID != "dsp_a1b2" {
		t.Errorf("ID = %q", cur.ID)
	}
}

func TestDecodeEmptyIsFirstPage(t *testing.T) {
	cur, err := Decode("")
	if err != nil || cur != nil {
		t.Fatalf("Decode(\"\") = %v, %v; want nil, nil", cur, err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, token := range []string{
		"not base64 at all!",
		"YWJj",         // "abc": no separator
		"eHw=",         // "x|": empty id
		"YWJjfGRzcF8x", // "abc|dsp_1": non-numeric timestamp
	} {
		if _, err := Decode(token); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("Decode(%q) err = %v, want ErrInvalidCursor", token, err)
		}
	}
}

func TestComputePage(t *testing.T) {
	type row struct {
		id string
		at time.Time
	}
	base := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)
	key := func(r row) (time.Time, string) { return r.at, r.id }

	// Under-full fetch: no next page.
	rows := []row{{"a", base}, {"b", base.Add(-time.Minute)}}
	page, next, more := ComputePage(rows, 3, key)
	if len(page) != 2 || next != "" || more {
		t.Fatalf("short page: len=%d next=%q more=%v", len(page), next, more)
	}

	// Over-fetch by one: trimmed, cursor points at the last kept row.
	rows = append(rows, row{"c", base.Add(-2 * time.Minute)})
	page, next, more = ComputePage(rows, 2, key)
	if len(page) != 2 || !more {
		t.Fatalf("full page: len=%d more=%v", len(page), more)
	}
	cur, err := Decode(next)
	if err != nil {
		t.Fatalf("Decode(next): %v", err)
	}
	if cur.ID != "b" {
		t.Errorf("cursor id = %q, want b (last item on the page)", cur.ID)
	}
}
