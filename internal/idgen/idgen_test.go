package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("dsp_")
	if !strings.HasPrefix(id, "dsp_") {
		t.Fatalf("id = %q", id)
	}
	if len(id) != len("dsp_")+2*idEntropy {
		t.Errorf("len = %d", len(id))
	}
}

func TestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := WithPrefix("msg_")
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestHexLength(t *testing.T) {
	if got := Hex(8); len(got) != 16 {
		t.Errorf("Hex(8) = %q, want 16 chars", got)
	}
}
