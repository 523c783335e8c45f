package negotiate

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/alidow/beach/pkg/secure"
)

// iceCandidate is the wire shape of one local/remote ICE candidate
// (spec §4.5's "ICE exchange"): plaintext fields, or a sealed envelope in
// secure mode (mutually exclusive).
type iceCandidate struct {
	Candidate     string                 `json:"candidate,omitempty"`
	SDPMid        *string                `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16                `json:"sdpMLineIndex,omitempty"`
	Sealed        *secure.SealedEnvelope `json:"sealed,omitempty"`
}

type iceStage int

const (
	iceStageBlocked iceStage = iota
	iceStageDelayed
	iceStageReady
)

// iceStager implements the staged outbound candidate flow of spec §4.5:
// blocked -> delayed (after posting the answer) -> ready (after
// answerFlushDelayMs), with candidates queued while blocked flushing
// atomically on the ready transition, and a bounded resend of everything
// ever sent to compensate for lossy relays.
type iceStager struct {
	mu      sync.Mutex
	stage   iceStage
	pending []iceCandidate
	sent    []iceCandidate

	send func(c iceCandidate) error
}

func newIceStager(send func(c iceCandidate) error) *iceStager {
	return &iceStager{stage: iceStageBlocked, send: send}
}

// add stages or immediately sends a newly generated local candidate.
func (s *iceStager) add(c iceCandidate) error {
	s.mu.Lock()
	if s.stage != iceStageReady {
		s.pending = append(s.pending, c)
		s.mu.Unlock()
		return nil
	}
	s.sent = append(s.sent, c)
	s.mu.Unlock()
	return s.send(c)
}

// transitionDelayed moves blocked -> delayed. Called once the answer has
// been posted; candidates continue to queue until transitionReady.
func (s *iceStager) transitionDelayed() {
	s.mu.Lock()
	if s.stage == iceStageBlocked {
		s.stage = iceStageDelayed
	}
	s.mu.Unlock()
}

// transitionReady flushes every queued candidate atomically and moves to
// the ready state, where new candidates send immediately.
func (s *iceStager) transitionReady() error {
	s.mu.Lock()
	toFlush := s.pending
	s.pending = nil
	s.stage = iceStageReady
	s.mu.Unlock()

	for _, c := range toFlush {
		if err := s.send(c); err != nil {
			return err
		}
		s.mu.Lock()
		s.sent = append(s.sent, c)
		s.mu.Unlock()
	}
	return nil
}

// resendAll replays every candidate ever sent, in order.
func (s *iceStager) resendAll() error {
	s.mu.Lock()
	snapshot := append([]iceCandidate(nil), s.sent...)
	s.mu.Unlock()

	for _, c := range snapshot {
		if err := s.send(c); err != nil {
			return err
		}
	}
	return nil
}

// runResendLoop replays the sent set up to maxAttempts times at interval,
// stopping early if ctx is cancelled.
func (s *iceStager) runResendLoop(ctx context.Context, interval time.Duration, maxAttempts int) {
	b := &backoff.Backoff{Min: interval, Max: interval, Factor: 1, Jitter: false}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.Duration()):
		}
		if ctx.Err() != nil {
			return
		}
		s.resendAll()
	}
}
