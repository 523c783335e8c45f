// Package config loads and defaults the option set recognized by the beach
// client (spec §6.4): broker location, timeouts, ICE servers, and the
// backfill/resize tuning knobs shared by pkg/negotiate, pkg/backfill and
// pkg/session.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ICEServer mirrors a WebRTC ICE server descriptor.
type ICEServer struct {
	URLs       []string `yaml:"urls" json:"urls"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty" json:"credential,omitempty"`
}

// Options is the full recognized option set (spec §6.4). Millisecond fields
// keep the spec's own units; Duration() accessors are provided for callers
// that need time.Duration.
type Options struct {
	SignalingURL     string  `yaml:"signalingUrl"`
	SessionID        string  `yaml:"sessionId"`
	Passphrase       string  `yaml:"passphrase,omitempty"`
	PreferredPeerID  string  `yaml:"preferredPeerId,omitempty"`

	PollIntervalMs      int `yaml:"pollIntervalMs"`
	AnswerFlushDelayMs  int `yaml:"answerFlushDelayMs"`
	ResendIntervalMs    int `yaml:"resendIntervalMs"`
	MaxResendAttempts   int `yaml:"maxResendAttempts"`
	JoinTimeoutMs       int `yaml:"joinTimeoutMs"`
	SdpPollTimeoutMs    int `yaml:"sdpPollTimeoutMs"`
	NoiseTimeoutMs      int `yaml:"noiseTimeoutMs"`
	DataChannelTimeoutMs int `yaml:"dataChannelTimeoutMs"`

	ICEServers []ICEServer `yaml:"iceServers,omitempty"`

	MaxInflight       int `yaml:"maxInflight"`
	MaxBackfillRows   int `yaml:"maxBackfillRows"`
	RequestDebounceMs int `yaml:"requestDebounceMs"`
	PrefetchAhead     int `yaml:"prefetchAhead"`

	ResizeDebounceMs int `yaml:"resizeDebounceMs"`
}

// Defaults returns the option set with every spec §6.4 default applied and
// no broker location set; callers must supply SignalingURL/SessionID.
func Defaults() Options {
	return Options{
		PollIntervalMs:       500,
		AnswerFlushDelayMs:   400,
		ResendIntervalMs:     1200,
		MaxResendAttempts:    3,
		JoinTimeoutMs:        15000,
		SdpPollTimeoutMs:     20000,
		NoiseTimeoutMs:       20000,
		DataChannelTimeoutMs: 20000,
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		MaxInflight:       2,
		MaxBackfillRows:   512,
		RequestDebounceMs: 50,
		PrefetchAhead:     0, // 0 means "= viewport height", resolved by the caller
		ResizeDebounceMs:  80,
	}
}

// Option mutates an Options value, applied in order over Defaults().
type Option func(*Options)

// WithSignalingURL sets the broker base URL.
func WithSignalingURL(url string) Option { return func(o *Options) { o.SignalingURL = url } }

// WithSessionID sets the broker session id.
func WithSessionID(id string) Option { return func(o *Options) { o.SessionID = id } }

// WithPassphrase enables secure signaling + the Noise handshake overlay.
func WithPassphrase(p string) Option { return func(o *Options) { o.Passphrase = p } }

// WithPreferredPeerID hints peer resolution toward a specific peer id.
func WithPreferredPeerID(id string) Option { return func(o *Options) { o.PreferredPeerID = id } }

// WithICEServers overrides the default ICE server set.
func WithICEServers(servers []ICEServer) Option {
	return func(o *Options) { o.ICEServers = servers }
}

// New builds an Options value from Defaults() with opts applied in order.
func New(opts ...Option) Options {
	o := Defaults()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load reads a YAML file at path, unmarshals it over Defaults(), then
// applies opts. A missing SignalingURL/SessionID after loading is left to
// the caller to validate.
func Load(path string, opts ...Option) (Options, error) {
	o := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, err
	}

	for _, opt := range opts {
		opt(&o)
	}
	return o, nil
}

func (o Options) PollInterval() time.Duration { return time.Duration(o.PollIntervalMs) * time.Millisecond }
func (o Options) AnswerFlushDelay() time.Duration {
	return time.Duration(o.AnswerFlushDelayMs) * time.Millisecond
}
func (o Options) ResendInterval() time.Duration {
	return time.Duration(o.ResendIntervalMs) * time.Millisecond
}
func (o Options) JoinTimeout() time.Duration { return time.Duration(o.JoinTimeoutMs) * time.Millisecond }
func (o Options) SdpPollTimeout() time.Duration {
	return time.Duration(o.SdpPollTimeoutMs) * time.Millisecond
}
func (o Options) NoiseTimeout() time.Duration { return time.Duration(o.NoiseTimeoutMs) * time.Millisecond }
func (o Options) DataChannelTimeout() time.Duration {
	return time.Duration(o.DataChannelTimeoutMs) * time.Millisecond
}
func (o Options) RequestDebounce() time.Duration {
	return time.Duration(o.RequestDebounceMs) * time.Millisecond
}
func (o Options) ResizeDebounce() time.Duration {
	return time.Duration(o.ResizeDebounceMs) * time.Millisecond
}
