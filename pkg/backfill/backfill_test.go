package backfill

import (
	"sync"
	"testing"
	"time"

	"github.com/alidow/beach/pkg/grid"
	"github.com/alidow/beach/pkg/wire"
)

type fakeSender struct {
	mu  sync.Mutex
	got []wire.RequestBackfill
}

func (f *fakeSender) send(r wire.RequestBackfill) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, r)
}

func (f *fakeSender) calls() []wire.RequestBackfill {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.RequestBackfill, len(f.got))
	copy(out, f.got)
	return out
}

func TestEvaluateSchedulesRequestForMissingRun(t *testing.T) {
	store := grid.New()
	store.SetGridSize(1000, 80)
	store.SetViewport(10, 5)
	store.SetFollowTail(false)

	sender := &fakeSender{}
	c := New(store, sender.send, WithPrefetchAhead(0))

	c.NotifySnapshotUpdated(DirectionNone)

	calls := sender.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one request, got %d", len(calls))
	}
	// The store holds no rows yet, so SetViewport clamps the requested top
	// of 10 to baseRow+len(rows) = 0.
	if calls[0].StartRow != 0 {
		t.Fatalf("expected request to start at the clamped viewport top 0, got %d", calls[0].StartRow)
	}
}

func TestEvaluateMarksRowsPendingBeforeSending(t *testing.T) {
	store := grid.New()
	store.SetGridSize(1000, 80)
	store.SetViewport(0, 5)

	sender := &fakeSender{}
	c := New(store, sender.send)
	c.NotifySnapshotUpdated(DirectionNone)

	if store.RowState(0) != grid.RowPending {
		t.Fatalf("expected row 0 marked pending, got %v", store.RowState(0))
	}
}

func TestEvaluateIgnoresAlreadyLoadedRows(t *testing.T) {
	store := grid.New()
	store.SetGridSize(1000, 80)
	store.ApplyUpdates([]wire.Update{
		wire.RowUpdate{Row: 0, Seq: 1, Cells: []uint64{wire.MakeCell('a', 0)}},
		wire.RowUpdate{Row: 1, Seq: 1, Cells: []uint64{wire.MakeCell('a', 0)}},
		wire.RowUpdate{Row: 2, Seq: 1, Cells: []uint64{wire.MakeCell('a', 0)}},
	}, true)
	store.SetViewport(0, 3)

	sender := &fakeSender{}
	c := New(store, sender.send, WithPrefetchAhead(0))
	c.NotifySnapshotUpdated(DirectionNone)

	// WithPrefetchAhead(0) resolves to the viewport height, so the inspected
	// window is rows 0-5; the loaded rows 0-2 are skipped and only the
	// missing rows 3-5 are requested.
	calls := sender.calls()
	if len(calls) != 1 || calls[0].StartRow != 3 || calls[0].Count != 3 {
		t.Fatalf("expected one request for the unloaded rows 3-5 only, got %+v", calls)
	}
}

func TestEvaluateRespectsMaxInflightLimit(t *testing.T) {
	store := grid.New()
	store.SetGridSize(1000, 80)
	store.SetViewport(0, 5)

	sender := &fakeSender{}
	c := New(store, sender.send, WithMaxInflight(1), WithPrefetchAhead(0))

	c.NotifySnapshotUpdated(DirectionNone)
	store.SetViewport(200, 5)
	c.NotifySnapshotUpdated(DirectionNone)

	if len(sender.calls()) != 1 {
		t.Fatalf("expected exactly one inflight request, got %d", len(sender.calls()))
	}
}

func TestOnHistoryBackfillClearsInflightAndAllowsNextRequest(t *testing.T) {
	store := grid.New()
	store.SetGridSize(1000, 80)
	store.SetViewport(0, 5)

	sender := &fakeSender{}
	c := New(store, sender.send, WithMaxInflight(1), WithPrefetchAhead(0))
	c.NotifySnapshotUpdated(DirectionNone)
	if len(sender.calls()) != 1 {
		t.Fatalf("expected first request scheduled, got %d", len(sender.calls()))
	}
	reqID := sender.calls()[0].RequestID

	c.OnHistoryBackfill(wire.HistoryBackfill{RequestID: reqID, More: false})

	store.SetViewport(200, 5)
	c.NotifySnapshotUpdated(DirectionNone)

	if len(sender.calls()) != 2 {
		t.Fatalf("expected a second request after inflight cleared, got %d", len(sender.calls()))
	}
}

func TestOnHistoryBackfillWithMoreTriggersFollowUp(t *testing.T) {
	store := grid.New()
	store.SetGridSize(1000, 80)
	store.SetViewport(0, 5)

	sender := &fakeSender{}
	c := New(store, sender.send, WithMaxInflight(5), WithPrefetchAhead(0))
	c.NotifySnapshotUpdated(DirectionNone)
	first := sender.calls()
	if len(first) != 1 {
		t.Fatalf("expected one initial request, got %d", len(first))
	}

	c.OnHistoryBackfill(wire.HistoryBackfill{RequestID: first[0].RequestID, More: true})

	if len(sender.calls()) != 2 {
		t.Fatalf("expected a follow-up request triggered by more=true, got %d", len(sender.calls()))
	}
}

func TestNoForwardPrefetchWhileFollowingTail(t *testing.T) {
	store := grid.New()
	store.SetGridSize(1000, 80)
	store.SetViewport(0, 5)
	store.SetFollowTail(true)

	sender := &fakeSender{}
	c := New(store, sender.send)
	c.NotifySnapshotUpdated(DirectionForward)

	if len(sender.calls()) != 0 {
		t.Fatalf("expected no prefetch while following tail, got %+v", sender.calls())
	}
}

func TestViewportChangeIsDebounced(t *testing.T) {
	store := grid.New()
	store.SetGridSize(1000, 80)
	store.SetViewport(0, 5)

	sender := &fakeSender{}
	c := New(store, sender.send, WithRequestDebounce(20*time.Millisecond), WithPrefetchAhead(0))
	defer c.Stop()

	c.NotifyViewportChanged(DirectionNone)
	c.NotifyViewportChanged(DirectionNone)
	c.NotifyViewportChanged(DirectionNone)

	if len(sender.calls()) != 0 {
		t.Fatalf("expected no request before debounce fires, got %d", len(sender.calls()))
	}

	time.Sleep(60 * time.Millisecond)

	if len(sender.calls()) != 1 {
		t.Fatalf("expected exactly one debounced request, got %d", len(sender.calls()))
	}
}

func TestMaxBackfillRowsClipsRunLength(t *testing.T) {
	store := grid.New()
	store.SetGridSize(10000, 80)
	store.SetViewport(0, 1000)

	sender := &fakeSender{}
	c := New(store, sender.send, WithMaxBackfillRows(100), WithPrefetchAhead(0))
	c.NotifySnapshotUpdated(DirectionNone)

	calls := sender.calls()
	if len(calls) != 1 || calls[0].Count != 100 {
		t.Fatalf("expected clipped run of 100, got %+v", calls)
	}
}
