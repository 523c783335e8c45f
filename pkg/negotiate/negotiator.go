package negotiate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/alidow/beach/pkg/config"
	"github.com/alidow/beach/pkg/envelope"
	"github.com/alidow/beach/pkg/secure"
	"github.com/alidow/beach/pkg/signaling"
)

// Options configures one Negotiate call.
type Options struct {
	Config      config.Options
	LocalPeerID string
	// RetryOnEarlyClose is not read by Negotiate. Negotiate never retries
	// the data-channel handshake: a primary channel that has not opened
	// within the configured data-channel timeout fails the attempt with
	// DataChannelFailed, whatever this field holds.
	RetryOnEarlyClose bool
}

// Result is what a successful Negotiate call returns: the opened (and, in
// secure mode, AEAD-wrapped) duplex channel plus context about the peer and
// transport mode.
type Result struct {
	Channel        envelope.Channel
	PeerConnection *webrtc.PeerConnection
	DataChannel    *webrtc.DataChannel
	RemotePeerID   string
	Summary        SecureTransportSummary
}

// Negotiator drives one WebRTC bring-up over an already-joined signaling
// session (spec §4.5).
type Negotiator struct {
	sig        *signaling.Client
	opts       Options
	httpClient *http.Client
	logger     *zap.Logger
}

func New(sig *signaling.Client, opts Options, logger *zap.Logger) *Negotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{sig: sig, opts: opts, httpClient: &http.Client{}, logger: logger}
}

func closeOnceSignal(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Negotiate runs one connection attempt. onState, if non-nil, is invoked on
// every state transition for UI/diagnostics purposes.
func (n *Negotiator) Negotiate(ctx context.Context, onState func(State)) (*Result, error) {
	emit := func(s State) {
		if onState != nil {
			onState(s)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	emit(StateResolving)
	remotePeerID, err := n.resolvePeer(ctx)
	if err != nil {
		return nil, err
	}

	msgCh, cancelSub := n.sig.Subscribe()
	defer cancelSub()

	remoteICECh := make(chan signaling.ServerMessage, 32)
	go func() {
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				switch msg.Type {
				case signaling.MessageTransportProposal:
					n.sig.Send(signaling.AcceptTransportMessage(remotePeerID, "webrtc"))
				case signaling.MessageSignal:
					if msg.Signal != nil && msg.Signal.Signal.SignalType == "ice_candidate" {
						select {
						case remoteICECh <- msg:
						default:
						}
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	emit(StateProposingTransport)
	if err := n.sig.Send(signaling.NegotiateTransportMessage(remotePeerID, "webrtc")); err != nil {
		n.logger.Warn("negotiate_transport send failed, proceeding", zap.Error(err))
	}

	emit(StateGatheringLocal)
	pc, err := n.newPeerConnection()
	if err != nil {
		return nil, &IceGatheringFailed{Reason: err.Error()}
	}

	var dcMu sync.Mutex
	var primaryDC, handshakeDC *webrtc.DataChannel
	primaryOpened := make(chan struct{})
	handshakeOpened := make(chan struct{})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		label := dc.Label()
		dcMu.Lock()
		if label == "beach-secure-handshake" {
			handshakeDC = dc
		} else {
			primaryDC = dc
		}
		dcMu.Unlock()

		dc.OnOpen(func() {
			if label == "beach-secure-handshake" {
				closeOnceSignal(handshakeOpened)
			} else {
				closeOnceSignal(primaryOpened)
			}
		})
	})

	secureMode := n.opts.Config.Passphrase != ""
	var stager *iceStager
	var handshakeID string
	var kh [secure.KeySize]byte

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || stager == nil {
			return
		}
		init := c.ToJSON()
		cand := n.buildOutboundCandidate(init, secureMode, kh, handshakeID, remotePeerID)
		stager.add(cand)
	})

	emit(StateExchangingDescriptions)
	offer, err := pollOffer(ctx, n.httpClient, n.opts.Config.SignalingURL, n.opts.LocalPeerID, n.opts.Config.PollInterval(), n.opts.Config.SdpPollTimeout())
	if err != nil {
		return nil, err
	}
	handshakeID = offer.HandshakeID

	offerSDP := offer.SDP
	if secureMode {
		ks, err := secure.DeriveSessionKey(n.opts.Config.Passphrase, n.opts.Config.SessionID)
		if err != nil {
			return nil, &SealedOfferDecryptFailed{}
		}
		kh, err = secure.DeriveHandshakeKey(ks, handshakeID)
		if err != nil {
			return nil, &SealedOfferDecryptFailed{}
		}
		if offer.Sealed == nil {
			return nil, &SealedOfferDecryptFailed{}
		}
		aad := offerAnswerAAD(offer.FromPeer, offer.ToPeer, offer.Type)
		plain, err := secure.Open(kh, *offer.Sealed, aad)
		if err != nil {
			return nil, &SealedOfferDecryptFailed{}
		}
		offerSDP = string(plain)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return nil, &SdpExchangeFailed{Reason: err.Error()}
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, &SdpExchangeFailed{Reason: err.Error()}
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, &SdpExchangeFailed{Reason: err.Error()}
	}

	answerPayload := sdpPayload{Type: "answer", HandshakeID: handshakeID, FromPeer: n.opts.LocalPeerID, ToPeer: offer.FromPeer}
	if secureMode {
		aad := offerAnswerAAD(n.opts.LocalPeerID, offer.FromPeer, "answer")
		sealed, err := secure.Seal(kh, []byte(answer.SDP), aad)
		if err != nil {
			return nil, &SdpExchangeFailed{Reason: err.Error()}
		}
		answerPayload.Sealed = &sealed
	} else {
		answerPayload.SDP = answer.SDP
	}
	if err := postAnswer(ctx, n.httpClient, n.opts.Config.SignalingURL, answerPayload); err != nil {
		return nil, err
	}

	emit(StateExchangingIce)
	stager = newIceStager(func(c iceCandidate) error {
		return n.sig.Send(signaling.SignalMessage(offer.FromPeer, signaling.SignalPayload{
			Transport: "webrtc",
			Signal: signaling.SignalBody{
				SignalType:    "ice_candidate",
				HandshakeID:   handshakeID,
				Candidate:     c.Candidate,
				SDPMid:        c.SDPMid,
				SDPMLineIndex: c.SDPMLineIndex,
				Sealed:        c.Sealed,
			},
		}))
	})
	stager.transitionDelayed()

	go func() {
		select {
		case <-time.After(n.opts.Config.AnswerFlushDelay()):
			if err := stager.transitionReady(); err != nil {
				n.logger.Warn("ice flush failed", zap.Error(err))
			}
		case <-ctx.Done():
		}
	}()
	go stager.runResendLoop(ctx, n.opts.Config.ResendInterval(), n.opts.Config.MaxResendAttempts)

	go func() {
		for {
			select {
			case msg := <-remoteICECh:
				n.applyRemoteCandidate(pc, msg, secureMode, kh, handshakeID)
			case <-ctx.Done():
				return
			}
		}
	}()

	dcCtx, dcCancel := context.WithTimeout(ctx, n.opts.Config.DataChannelTimeout())
	defer dcCancel()
	select {
	case <-primaryOpened:
	case <-dcCtx.Done():
		if ctx.Err() == context.Canceled {
			return nil, &Cancelled{}
		}
		return nil, &DataChannelFailed{Reason: "primary data channel did not open in time"}
	}

	dcMu.Lock()
	pdc, hdc := primaryDC, handshakeDC
	dcMu.Unlock()

	var ch envelope.Channel = newDataChannelAdapter(pdc)
	summary := SecureTransportSummary{Mode: TransportPlain, HandshakeID: handshakeID, RemotePeerID: offer.FromPeer}

	if secureMode {
		emit(StateNoiseHandshake)

		hsCtx, hsCancel := context.WithTimeout(ctx, n.opts.Config.NoiseTimeout())
		select {
		case <-handshakeOpened:
			hsCancel()
		case <-hsCtx.Done():
			hsCancel()
			if ctx.Err() == context.Canceled {
				return nil, &Cancelled{}
			}
			return nil, &NoiseHandshakeFailed{Reason: "handshake channel did not open in time"}
		}
		if hdc == nil {
			return nil, &NoiseHandshakeFailed{Reason: "handshake channel missing"}
		}

		hsAdapter := newDataChannelAdapter(hdc)
		noiseOut, err := runNoiseResponder(ctx, hsAdapter, kh, handshakeID, n.opts.LocalPeerID, offer.FromPeer, n.opts.Config.NoiseTimeout())
		if err != nil {
			return nil, err
		}

		keys := &secure.KeyPair{SendKey: noiseOut.SendKey, RecvKey: noiseOut.RecvKey}
		secCh, err := secure.NewChannel(ch, keys, handshakeID, secure.DirectionClientToHost, secure.DirectionHostToClient)
		if err != nil {
			return nil, &NoiseHandshakeFailed{Reason: err.Error()}
		}
		ch = secCh
		summary.Mode = TransportSecure
		summary.VerificationCode = noiseOut.VerificationCode
	}

	emit(StateDataChannelOpen)
	emit(StateReady)

	return &Result{
		Channel:        ch,
		PeerConnection: pc,
		DataChannel:    pdc,
		RemotePeerID:   offer.FromPeer,
		Summary:        summary,
	}, nil
}

func offerAnswerAAD(fromPeer, toPeer, sdpType string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", fromPeer, toPeer, sdpType))
}

func (n *Negotiator) buildOutboundCandidate(init webrtc.ICECandidateInit, secureMode bool, kh [secure.KeySize]byte, handshakeID, remotePeerID string) iceCandidate {
	if !secureMode {
		return iceCandidate{Candidate: init.Candidate, SDPMid: init.SDPMid, SDPMLineIndex: init.SDPMLineIndex}
	}

	payload, err := json.Marshal(init)
	if err != nil {
		n.logger.Warn("failed to marshal ice candidate for sealing", zap.Error(err))
		return iceCandidate{}
	}
	aad := []byte(fmt.Sprintf("%s|%s|%s", n.opts.LocalPeerID, remotePeerID, handshakeID))
	sealed, err := secure.Seal(kh, payload, aad)
	if err != nil {
		n.logger.Warn("failed to seal ice candidate", zap.Error(err))
		return iceCandidate{}
	}
	return iceCandidate{Sealed: &sealed}
}

// applyRemoteCandidate validates and applies one inbound ice_candidate
// signal (spec §4.5's ICE exchange: mismatched handshake ids are
// discarded, and in secure mode an unsealed candidate is dropped).
func (n *Negotiator) applyRemoteCandidate(pc *webrtc.PeerConnection, msg signaling.ServerMessage, secureMode bool, kh [secure.KeySize]byte, handshakeID string) {
	if msg.Signal == nil {
		return
	}
	body := msg.Signal.Signal
	if body.HandshakeID != handshakeID {
		n.logger.Debug("discarding ice candidate for mismatched handshake", zap.String("got", body.HandshakeID))
		return
	}

	var init webrtc.ICECandidateInit
	if secureMode {
		if body.Sealed == nil {
			n.logger.Warn("dropping unsealed ice candidate in secure mode")
			return
		}
		aad := []byte(fmt.Sprintf("%s|%s|%s", msg.PeerID, n.opts.LocalPeerID, handshakeID))
		plain, err := secure.Open(kh, *body.Sealed, aad)
		if err != nil {
			n.logger.Warn("failed to open sealed ice candidate", zap.Error(err))
			return
		}
		if err := json.Unmarshal(plain, &init); err != nil {
			n.logger.Warn("malformed sealed ice candidate", zap.Error(err))
			return
		}
	} else {
		init = webrtc.ICECandidateInit{Candidate: body.Candidate, SDPMid: body.SDPMid, SDPMLineIndex: body.SDPMLineIndex}
	}

	if err := pc.AddICECandidate(init); err != nil {
		n.logger.Warn("failed to add remote ice candidate", zap.Error(err))
	}
}

func (n *Negotiator) newPeerConnection() (*webrtc.PeerConnection, error) {
	var iceServers []webrtc.ICEServer
	for _, s := range n.opts.Config.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}

// resolvePeer implements spec §4.5's "Peer resolution (Resolving)".
func (n *Negotiator) resolvePeer(ctx context.Context) (string, error) {
	deadline := time.Now().Add(n.opts.Config.JoinTimeout())

	joinMsg, err := n.sig.WaitForMessage(ctx, signaling.MessageJoinSuccess, time.Until(deadline))
	if err != nil {
		return "", &PeerResolutionTimeout{}
	}

	if n.opts.Config.PreferredPeerID != "" {
		for _, p := range joinMsg.Peers {
			if p.PeerID == n.opts.Config.PreferredPeerID {
				return p.PeerID, nil
			}
		}
	}
	for _, p := range joinMsg.Peers {
		if p.Role == "server" {
			return p.PeerID, nil
		}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return "", &PeerResolutionTimeout{}
	}
	peerCh, cancel := n.sig.Subscribe()
	defer cancel()

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	for {
		select {
		case msg := <-peerCh:
			if msg.Type == signaling.MessagePeerJoined && msg.Role == "server" {
				return msg.PeerID, nil
			}
		case <-timer.C:
			return "", &PeerResolutionTimeout{}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
