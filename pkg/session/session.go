// Package session implements the connection orchestrator (C9): the
// top-level state machine that wires the signaling client (C4), WebRTC
// negotiator (C5), framed transport (C6), grid store (C7) and backfill
// controller (C8) together, and exposes the input/resize path to a
// presentation layer, per spec §4.9.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alidow/beach/pkg/backfill"
	"github.com/alidow/beach/pkg/config"
	"github.com/alidow/beach/pkg/grid"
	"github.com/alidow/beach/pkg/negotiate"
	"github.com/alidow/beach/pkg/signaling"
	"github.com/alidow/beach/pkg/transport"
	"github.com/alidow/beach/pkg/wire"
)

// Session owns one connection attempt's worth of C4-C8 state and exposes
// the lifecycle described in spec §4.9. It holds no presentation-layer
// concerns; a UI observes it via the onState callback and reads the grid
// store directly.
type Session struct {
	cfg         config.Options
	localPeerID string
	logger      *zap.Logger
	onState     func(StateChange)

	store       *grid.Store
	backfillCtl *backfill.Controller
	diagnostics *Diagnostics

	mu          sync.Mutex
	phase       Phase
	lastErr     error
	cancelAttempt context.CancelFunc
	sig         *signaling.Client
	tr          *transport.Transport
	gridSeeded  bool

	nextInputSeq uint64

	resizeMu    sync.Mutex
	resizeTimer *time.Timer
	resizePending *wire.Resize
}

// New constructs an idle Session. onState and logger may be nil.
func New(cfg config.Options, localPeerID string, onState func(StateChange), logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := grid.New()
	s := &Session{
		cfg:         cfg,
		localPeerID: localPeerID,
		logger:      logger,
		onState:     onState,
		store:       store,
		diagnostics: NewDiagnostics(0),
		phase:       PhaseIdle,
	}
	s.backfillCtl = backfill.New(store, s.sendBackfillRequest,
		backfill.WithMaxInflight(cfg.MaxInflight),
		backfill.WithMaxBackfillRows(uint32(cfg.MaxBackfillRows)),
		backfill.WithRequestDebounce(cfg.RequestDebounce()),
		backfill.WithPrefetchAhead(cfg.PrefetchAhead),
		backfill.WithLogger(logger))
	return s
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Store exposes the grid store for renderers to query.
func (s *Session) Store() *grid.Store { return s.store }

// Diagnostics returns the recent status/error event log.
func (s *Session) Diagnostics() []DiagnosticEntry { return s.diagnostics.Snapshot() }

func (s *Session) setPhase(p Phase, err error) {
	s.mu.Lock()
	s.phase = p
	s.lastErr = err
	s.mu.Unlock()
	if s.onState != nil {
		s.onState(StateChange{Phase: p, Err: err})
	}
}

// RequestConnect begins one connection attempt, valid only from Idle,
// Error, or Closed (spec §4.9). It returns immediately; the attempt runs
// in the background and reports progress via onState.
func (s *Session) RequestConnect(ctx context.Context) error {
	s.mu.Lock()
	if !canRequestConnect(s.phase) {
		cur := s.phase
		s.mu.Unlock()
		return &InvalidPhaseError{Phase: cur}
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	s.cancelAttempt = cancel
	s.gridSeeded = false
	s.mu.Unlock()

	s.setPhase(PhaseConnecting, nil)
	go s.runConnect(attemptCtx)
	return nil
}

// CancelConnect requests cancellation of any in-flight connection attempt
// and frees resources within a bounded delay (spec §4.9).
func (s *Session) CancelConnect() {
	s.mu.Lock()
	cancel := s.cancelAttempt
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close tears down the session unconditionally.
func (s *Session) Close() error {
	s.CancelConnect()
	s.backfillCtl.Stop()
	s.mu.Lock()
	sig, tr := s.sig, s.tr
	s.mu.Unlock()
	if tr != nil {
		tr.Close()
	}
	if sig != nil {
		sig.Close()
	}
	s.setPhase(PhaseClosed, nil)
	return nil
}

func (s *Session) runConnect(ctx context.Context) {
	sig, err := signaling.Dial(ctx, s.cfg.SignalingURL)
	if err != nil {
		s.fail(err)
		return
	}
	s.mu.Lock()
	s.sig = sig
	s.mu.Unlock()

	if err := sig.Join(s.localPeerID, s.cfg.Passphrase, []string{"webrtc"}, "webrtc"); err != nil {
		s.fail(err)
		return
	}

	negotiator := negotiate.New(sig, negotiate.Options{Config: s.cfg, LocalPeerID: s.localPeerID}, s.logger)
	result, err := negotiator.Negotiate(ctx, func(st negotiate.State) {
		s.diagnostics.record("negotiate_state", string(st))
	})
	if err != nil {
		s.fail(err)
		return
	}

	tr := transport.New(result.Channel, s.logger)
	s.mu.Lock()
	s.tr = tr
	s.mu.Unlock()

	if err := tr.SendReady(ctx); err != nil {
		s.fail(err)
		return
	}

	s.recvLoop(ctx, tr)
}

func (s *Session) fail(err error) {
	if err == nil {
		return
	}
	s.diagnostics.record("error", err.Error())
	s.setPhase(PhaseError, err)
}

func (s *Session) recvLoop(ctx context.Context, tr *transport.Transport) {
	for {
		ev, err := tr.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setPhase(PhaseClosed, nil)
				return
			}
			if _, ok := err.(*transport.Error); ok {
				s.fail(&ProtocolError{Reason: err.Error()})
				return
			}
			// Data channel loss while connected is Closed, not Error,
			// unless it was preceded by an explicit protocol error.
			s.setPhase(PhaseClosed, nil)
			return
		}

		if ev.Status != "" {
			s.diagnostics.record("status", ev.Status)
			continue
		}

		if s.handleFrame(ev.Frame) {
			return
		}
	}
}

// handleFrame applies one decoded host frame and returns true if the
// session has reached a terminal state.
func (s *Session) handleFrame(frame wire.HostFrame) bool {
	switch f := frame.(type) {
	case wire.Hello:
		s.store.Reset()
		s.backfillCtl.SetSubscription(f.Subscription)
		s.mu.Lock()
		s.gridSeeded = false
		s.mu.Unlock()
		s.setPhase(PhaseConnected, nil)

	case wire.Grid:
		s.mu.Lock()
		seeded := s.gridSeeded
		s.gridSeeded = true
		s.mu.Unlock()
		if !seeded {
			s.store.SetBaseRow(f.BaseRow)
			s.store.SetGridSize(f.HistoryRows, f.Cols)
			s.store.SetViewport(f.BaseRow, int(f.ViewportRows))
		}

	case wire.Snapshot:
		s.store.ApplyUpdates(f.Updates, true)
		if !f.HasMore {
			s.store.SetFollowTail(true)
		}
		s.backfillCtl.NotifySnapshotUpdated(backfill.DirectionForward)

	case wire.SnapshotComplete:
		s.store.SetFollowTail(true)
		s.backfillCtl.NotifySnapshotUpdated(backfill.DirectionForward)

	case wire.Delta:
		s.store.ApplyUpdates(f.Updates, false)
		s.backfillCtl.NotifySnapshotUpdated(backfill.DirectionForward)

	case wire.HistoryBackfill:
		s.store.ApplyUpdates(f.Updates, true)
		s.backfillCtl.OnHistoryBackfill(f)

	case wire.InputAck:
		// Observed for diagnostics only; never blocks the input path.

	case wire.Heartbeat:
		// No action required; presence of heartbeats is a liveness signal
		// a caller-level watchdog may use.

	case wire.Shutdown:
		s.setPhase(PhaseClosed, nil)
		return true
	}
	return false
}

func (s *Session) sendBackfillRequest(req wire.RequestBackfill) {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return
	}
	if err := tr.SendFrame(context.Background(), req); err != nil {
		s.logger.Warn("failed to send backfill request", zap.Error(err))
	}
}

// SendInput encodes one keystroke's worth of bytes and emits an input
// frame with a local monotonically increasing sequence number.
func (s *Session) SendInput(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return nil
	}
	seq := atomic.AddUint64(&s.nextInputSeq, 1)
	return tr.SendFrame(ctx, wire.Input{Seq: seq, Data: data})
}

// SetViewportSize notifies the orchestrator of a rendered viewport size
// change, debouncing outbound resize frames to at most one per
// resizeDebounceMs (spec §4.9).
func (s *Session) SetViewportSize(cols, rows uint32) {
	s.resizeMu.Lock()
	defer s.resizeMu.Unlock()
	pending := wire.Resize{Cols: cols, Rows: rows}
	s.resizePending = &pending
	if s.resizeTimer != nil {
		return
	}
	s.resizeTimer = time.AfterFunc(s.cfg.ResizeDebounce(), s.flushResize)
}

func (s *Session) flushResize() {
	s.resizeMu.Lock()
	pending := s.resizePending
	s.resizePending = nil
	s.resizeTimer = nil
	s.resizeMu.Unlock()
	if pending == nil {
		return
	}

	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return
	}
	if err := tr.SendFrame(context.Background(), *pending); err != nil {
		s.logger.Warn("failed to send resize frame", zap.Error(err))
	}
}
