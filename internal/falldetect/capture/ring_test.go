package capture

import (
	"testing"
)

func TestRingLatestEmpty(t *testing.T) {
	r := NewRing(3)
	if _, ok := r.Latest(); ok {
		t.Fatalf("expected ok=false on an empty ring")
	}
	if snap := r.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected an empty snapshot, got %v", snap)
	}
}

func TestRingLatestReturnsMostRecent(t *testing.T) {
	r := NewRing(3)
	r.Push(FrameRecord{Index: 1})
	r.Push(FrameRecord{Index: 2})
	r.Push(FrameRecord{Index: 3})

	latest, ok := r.Latest()
	if !ok || latest.Index != 3 {
		t.Fatalf("Latest() = %+v, ok=%v; want Index=3", latest, ok)
	}
}

func TestRingEvictsOldestWhenFull(t *testing.T) {
	r := NewRing(3)
	r.Push(FrameRecord{Index: 1})
	r.Push(FrameRecord{Index: 2})
	r.Push(FrameRecord{Index: 3})
	r.Push(FrameRecord{Index: 4}) // evicts Index 1

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected ring capped at capacity 3, got %d entries", len(snap))
	}
	var indices []int64
	for _, rec := range snap {
		indices = append(indices, rec.Index)
	}
	want := []int64{2, 3, 4}
	for i, w := range want {
		if indices[i] != w {
			t.Fatalf("Snapshot indices = %v, want %v", indices, want)
		}
	}
}

func TestRingSnapshotOldestFirst(t *testing.T) {
	r := NewRing(5)
	for i := int64(1); i <= 5; i++ {
		r.Push(FrameRecord{Index: i})
	}
	snap := r.Snapshot()
	for i, rec := range snap {
		if rec.Index != int64(i+1) {
			t.Fatalf("Snapshot()[%d].Index = %d, want %d", i, rec.Index, i+1)
		}
	}
}

func TestNewRingClampsCapacity(t *testing.T) {
	r := NewRing(0)
	r.Push(FrameRecord{Index: 1})
	r.Push(FrameRecord{Index: 2})
	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected capacity clamped to 1, got %d entries", len(snap))
	}
	if snap[0].Index != 2 {
		t.Fatalf("expected the newest record retained, got %+v", snap[0])
	}
}
