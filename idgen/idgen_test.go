package idgen

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNanoID_Length(t *testing.T) {
	for _, length := range []int{1, 8, 12, 16, 24, 100} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
	}
}

func TestNanoID_Alphabet(t *testing.T) {
	id := NanoID(500)()
	for _, c := range id {
		if !strings.ContainsRune(nanoAlphabet, c) {
			t.Fatalf("NanoID: unexpected character %q in %q", c, id)
		}
	}
}

func TestNanoID_Distribution(t *testing.T) {
	// WHAT: every symbol shows up over a long run and none dominates.
	// WHY: a plain byte%36 maps 256 values unevenly onto 36 symbols.
	counts := map[rune]int{}
	for _, c := range NanoID(36_000)() {
		counts[c]++
	}
	if len(counts) != len(nanoAlphabet) {
		t.Fatalf("saw %d distinct symbols, want %d", len(counts), len(nanoAlphabet))
	}
	for c, n := range counts {
		if n < 700 || n > 1300 {
			t.Errorf("symbol %q: %d occurrences, want about 1000", c, n)
		}
	}
}

func TestNanoID_Uniqueness(t *testing.T) {
	gen := NanoID(12)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("NanoID: duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDv7_Ordered(t *testing.T) {
	gen := UUIDv7()
	a := gen()
	time.Sleep(2 * time.Millisecond)
	b := gen()
	u, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("Parse(%q): %v", a, err)
	}
	if u.Version() != 7 {
		t.Errorf("version = %d", u.Version())
	}
	if a >= b {
		t.Errorf("ids not chronological: %s >= %s", a, b)
	}
}

func TestDocument(t *testing.T) {
	id := Document()
	if !strings.HasPrefix(id, "doc-") {
		t.Fatalf("Document() = %q", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "doc-")); err != nil {
		t.Fatalf("suffix of %q is not a UUID: %v", id, err)
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("evt_", NanoID(6))()
	if !strings.HasPrefix(id, "evt_") || len(id) != 10 {
		t.Fatalf("Prefixed: got %q", id)
	}
}

func TestLiveDocument(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	if got := LiveDocument(now, 2); got != "doc-live-1700000000123-2" {
		t.Fatalf("LiveDocument = %q", got)
	}
}
