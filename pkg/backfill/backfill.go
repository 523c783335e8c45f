// Package backfill implements the backfill controller (C8): it watches the
// terminal grid store and the viewport to keep history coverage ahead of
// the user, scheduling throttled request_backfill frames, per spec §4.8.
package backfill

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alidow/beach/pkg/grid"
	"github.com/alidow/beach/pkg/wire"
)

const (
	defaultMaxInflight       = 2
	defaultMaxBackfillRows   = 512
	defaultRequestDebounceMs = 50
)

// Direction names which way the viewport is scrolling, used to decide which
// side of the viewport to prefetch.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionForward
	DirectionBackward
)

// Sender enqueues a request_backfill client frame.
type Sender func(wire.RequestBackfill)

// Option configures a Controller at construction time.
type Option func(*Controller)

func WithMaxInflight(n int) Option {
	return func(c *Controller) { c.maxInflight = n }
}

func WithMaxBackfillRows(n uint32) Option {
	return func(c *Controller) { c.maxBackfillRows = n }
}

func WithRequestDebounce(d time.Duration) Option {
	return func(c *Controller) { c.requestDebounce = d }
}

func WithPrefetchAhead(n int) Option {
	return func(c *Controller) { c.prefetchAhead = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

type pendingRequest struct {
	start uint64
	count uint32
}

// Controller schedules request_backfill frames to keep the viewport's
// history window filled.
type Controller struct {
	store *grid.Store
	send  Sender

	maxInflight     int
	maxBackfillRows uint32
	requestDebounce time.Duration
	prefetchAhead   int
	logger          *zap.Logger

	mu            sync.Mutex
	subscription  uint64
	inflight      map[uint64]pendingRequest
	nextRequestID uint64
	timer         *time.Timer
	lastDirection Direction
}

// New constructs a Controller over store, emitting request_backfill frames
// through send.
func New(store *grid.Store, send Sender, opts ...Option) *Controller {
	c := &Controller{
		store:           store,
		send:            send,
		maxInflight:     defaultMaxInflight,
		maxBackfillRows: defaultMaxBackfillRows,
		requestDebounce: defaultRequestDebounceMs * time.Millisecond,
		logger:          zap.NewNop(),
		inflight:        make(map[uint64]pendingRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSubscription records the subscription id carried on outgoing
// request_backfill frames, captured from the hello frame.
func (c *Controller) SetSubscription(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = id
}

// NotifySnapshotUpdated is called on every snapshot update; it evaluates the
// backfill window immediately (spec §4.8).
func (c *Controller) NotifySnapshotUpdated(direction Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluateLocked(direction)
}

// NotifyViewportChanged debounces rapid viewport changes before evaluating.
func (c *Controller) NotifyViewportChanged(direction Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastDirection = direction
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.requestDebounce, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.evaluateLocked(c.lastDirection)
	})
}

// OnHistoryBackfill clears the matching requestId from the inflight set. If
// the frame indicates more rows remain, it immediately evaluates a
// follow-up window.
func (c *Controller) OnHistoryBackfill(f wire.HistoryBackfill) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.inflight[f.RequestID]
	delete(c.inflight, f.RequestID)
	if ok {
		// Rows the host never filled under this request revert to missing
		// so a follow-up window can pick them back up.
		c.store.ReleasePending(req.start, req.count)
	}
	if f.More {
		c.evaluateLocked(c.lastDirection)
	}
}

// Stop cancels any pending debounce timer.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) evaluateLocked(direction Direction) {
	snap := c.store.GetSnapshot()
	if snap.FollowTail {
		// No forward-scrolling prefetch while pinned to the tail.
		return
	}
	if len(c.inflight) >= c.maxInflight {
		return
	}

	ahead := c.prefetchAhead
	if ahead == 0 {
		ahead = snap.ViewportHeight
	}

	windowStart, windowEnd := c.window(snap, direction, ahead)
	if windowEnd <= windowStart {
		return
	}

	run, ok := c.findMissingRun(windowStart, windowEnd)
	if !ok {
		return
	}

	c.store.MarkPending(run.start, run.count)
	reqID := c.nextRequestID
	c.nextRequestID++
	c.inflight[reqID] = run

	c.logger.Debug("scheduling backfill request",
		zap.Uint64("requestId", reqID),
		zap.Uint64("start", run.start),
		zap.Uint32("count", run.count))

	c.send(wire.RequestBackfill{
		Subscription: c.subscription,
		RequestID:    reqID,
		StartRow:     run.start,
		Count:        run.count,
	})
}

func (c *Controller) window(snap grid.Snapshot, direction Direction, ahead int) (uint64, uint64) {
	top := snap.ViewportTop
	height := uint64(snap.ViewportHeight)
	if height == 0 {
		height = 1
	}

	switch direction {
	case DirectionBackward:
		start := snap.BaseRow
		if top > uint64(ahead) && top-uint64(ahead) > start {
			start = top - uint64(ahead)
		}
		return start, top + height
	default:
		return top, top + height + uint64(ahead)
	}
}

func (c *Controller) findMissingRun(start, end uint64) (pendingRequest, bool) {
	var runStart uint64
	var runLen uint32
	for abs := start; abs < end; abs++ {
		if c.store.RowState(abs) != grid.RowMissing {
			if runLen > 0 {
				return pendingRequest{start: runStart, count: runLen}, true
			}
			continue
		}
		if runLen == 0 {
			runStart = abs
		}
		runLen++
		if runLen >= c.maxBackfillRows {
			return pendingRequest{start: runStart, count: runLen}, true
		}
	}
	if runLen > 0 {
		return pendingRequest{start: runStart, count: runLen}, true
	}
	return pendingRequest{}, false
}
