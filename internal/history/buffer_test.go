package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func record(i int) models.AlertRecord {
	return models.AlertRecord{
		Timestamp: t0.Add(time.Duration(i) * time.Second),
		Source:    "web1",
		Line:      fmt.Sprintf("line %d", i),
		Severity:  "high",
	}
}

func TestBuffer_AppendAndSnapshot(t *testing.T) {
	b := New(10)
	for i := 0; i < 3; i++ {
		b.Append(record(i))
	}

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap))
	}
	for i, rec := range snap {
		if rec.Line != fmt.Sprintf("line %d", i) {
			t.Errorf("snap[%d] = %q, want most recent last ordering", i, rec.Line)
		}
	}
}

func TestBuffer_CapacityBound(t *testing.T) {
	b := New(DefaultCapacity)
	for i := 0; i < 1500; i++ {
		b.Append(record(i))
	}

	if b.Len() != 1000 {
		t.Fatalf("expected 1000 records, got %d", b.Len())
	}
	snap := b.Snapshot()
	for i, rec := range snap {
		want := fmt.Sprintf("line %d", 500+i)
		if rec.Line != want {
			t.Fatalf("snap[%d] = %q, want %q", i, rec.Line, want)
		}
	}
}

func TestBuffer_SnapshotIsCopy(t *testing.T) {
	b := New(4)
	rec := record(1)
	rec.MatchedRules = []string{"rule-a"}
	b.Append(rec)

	snap := b.Snapshot()
	snap[0].Line = "mutated"
	snap[0].MatchedRules[0] = "mutated"

	again := b.Snapshot()
	if again[0].Line != "line 1" {
		t.Errorf("snapshot exposed internal record: %q", again[0].Line)
	}
	if again[0].MatchedRules[0] != "rule-a" {
		t.Errorf("snapshot exposed internal rules slice: %v", again[0].MatchedRules)
	}
}

func TestBuffer_LastN(t *testing.T) {
	b := New(5)
	for i := 0; i < 8; i++ {
		b.Append(record(i))
	}

	tests := []struct {
		n     int
		first string
		size  int
	}{
		{2, "line 6", 2},
		{5, "line 3", 5},
		{20, "line 3", 5},
		{0, "", 0},
		{-1, "", 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			got := b.LastN(tt.n)
			if len(got) != tt.size {
				t.Fatalf("LastN(%d) returned %d records, want %d", tt.n, len(got), tt.size)
			}
			if tt.size > 0 {
				if got[0].Line != tt.first {
					t.Errorf("LastN(%d)[0] = %q, want %q", tt.n, got[0].Line, tt.first)
				}
				if got[len(got)-1].Line != "line 7" {
					t.Errorf("LastN(%d) should end with the newest record, got %q", tt.n, got[len(got)-1].Line)
				}
			}
		})
	}
}

func TestBuffer_ReplaceAll(t *testing.T) {
	b := New(3)
	b.Append(record(100))

	b.ReplaceAll([]models.AlertRecord{record(1), record(2)})
	if b.Len() != 2 {
		t.Fatalf("expected 2 records after replace, got %d", b.Len())
	}
	if b.Contains(record(100).Key()) {
		t.Error("replaced record should be gone")
	}

	b.ReplaceAll([]models.AlertRecord{record(1), record(2), record(3), record(4)})
	snap := b.Snapshot()
	if len(snap) != 3 || snap[0].Line != "line 2" || snap[2].Line != "line 4" {
		t.Errorf("oversized replace should keep the most recent records, got %v", snap)
	}

	b.Append(record(5))
	snap = b.Snapshot()
	if snap[0].Line != "line 3" || snap[2].Line != "line 5" {
		t.Errorf("append after replace broke ordering: %v", snap)
	}

	b.ReplaceAll(nil)
	if b.Len() != 0 {
		t.Errorf("expected empty buffer, got %d", b.Len())
	}
}

func TestBuffer_ReplaceAllCopiesInput(t *testing.T) {
	b := New(3)
	in := []models.AlertRecord{record(1)}
	b.ReplaceAll(in)
	in[0].Line = "mutated"

	if got := b.Snapshot()[0].Line; got != "line 1" {
		t.Errorf("buffer aliased caller slice: %q", got)
	}
}

func TestBuffer_Contains(t *testing.T) {
	b := New(10)
	a1 := models.AlertRecord{Source: "web1", Line: "ERR 500", Timestamp: t0}
	b.Append(a1)

	near := a1
	near.Timestamp = t0.Add(2000 * time.Millisecond)
	if !b.Contains(near.Key()) {
		t.Error("record 2s apart should be the same event")
	}

	far := a1
	far.Timestamp = t0.Add(6000 * time.Millisecond)
	if b.Contains(far.Key()) {
		t.Error("record 6s apart should be a distinct event")
	}
}

func TestBuffer_Version(t *testing.T) {
	b := New(2)
	v := b.Version()
	b.Append(record(1))
	if b.Version() <= v {
		t.Error("Append should bump version")
	}
	v = b.Version()
	b.ReplaceAll(nil)
	if b.Version() <= v {
		t.Error("ReplaceAll should bump version")
	}
}
