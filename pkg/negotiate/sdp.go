package negotiate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jpillora/backoff"

	"github.com/alidow/beach/pkg/secure"
)

// sdpPayload is the WebRtcSdpPayload of spec §6.2.
type sdpPayload struct {
	SDP         string                 `json:"sdp"`
	Type        string                 `json:"type"`
	HandshakeID string                 `json:"handshake_id"`
	FromPeer    string                 `json:"from_peer"`
	ToPeer      string                 `json:"to_peer"`
	Sealed      *secure.SealedEnvelope `json:"sealed,omitempty"`
}

// pollOffer long-polls GET {signalingURL}/offer?peer_id=localPeerID until a
// 200 arrives, retrying on 404, until timeout elapses.
func pollOffer(ctx context.Context, httpClient *http.Client, signalingURL, localPeerID string, pollInterval time.Duration, timeout time.Duration) (*sdpPayload, error) {
	deadline := time.Now().Add(timeout)
	b := &backoff.Backoff{Min: pollInterval, Max: pollInterval, Factor: 1, Jitter: false}

	offerURL := fmt.Sprintf("%s/offer?peer_id=%s", signalingURL, url.QueryEscape(localPeerID))

	for {
		if time.Now().After(deadline) {
			return nil, &SdpExchangeFailed{Reason: "timed out polling for offer"}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, offerURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			defer resp.Body.Close()
			var payload sdpPayload
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return nil, &SdpExchangeFailed{Reason: "malformed offer payload: " + err.Error()}
			}
			if payload.HandshakeID == "" {
				return nil, &SdpExchangeFailed{Reason: "offer missing handshake_id"}
			}
			return &payload, nil
		case http.StatusNotFound:
			resp.Body.Close()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Duration()):
			}
		default:
			resp.Body.Close()
			return nil, &SignalingHttpError{Status: resp.StatusCode}
		}
	}
}

// postAnswer publishes the answer via POST {signalingURL}/answer.
func postAnswer(ctx context.Context, httpClient *http.Client, signalingURL string, payload sdpPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signalingURL+"/answer", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &SignalingHttpError{Status: resp.StatusCode}
}
