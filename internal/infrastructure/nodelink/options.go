package nodelink

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/orris-inc/soundmesh/internal/shared/config"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 30 * time.Second
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 1 << 20
	sendBufferSize   = 256
	maxQueuedPackets = 256

	DefaultReconnectDelay  = 30 * time.Second
	DefaultHealthyAfter    = 10 * time.Second
	DefaultMinMajorVersion = 3
)

// Options configures a Link. Zero values fall back to the defaults above.
type Options struct {
	UserID     uint64
	NumShards  int
	ClientName string

	// MaxConnectAttempts stops retrying after this many consecutive failed
	// attempts. Zero retries forever.
	MaxConnectAttempts int

	// ReconnectDelay is the wait before a retry. If ReconnectMaxDelay is
	// larger, the wait grows exponentially up to it.
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration

	// HealthyAfter is how long a connection must stay up before the attempt
	// counter is reset.
	HealthyAfter time.Duration

	MinMajorVersion int

	Dialer   *websocket.Dialer
	Resolver TrackResolver
	Logger   logger.Interface
}

// OptionsFromConfig maps the client configuration section onto Options.
func OptionsFromConfig(cfg config.ClientConfig) Options {
	return Options{
		UserID:             cfg.UserID,
		NumShards:          cfg.NumShards,
		ClientName:         cfg.ClientName,
		MaxConnectAttempts: cfg.MaxConnectAttempts,
		ReconnectDelay:     cfg.ReconnectDelay,
		ReconnectMaxDelay:  cfg.ReconnectMaxDelay,
		HealthyAfter:       cfg.HealthyAfter,
		MinMajorVersion:    cfg.MinMajorVersion,
	}
}

func (o Options) withDefaults() Options {
	if o.NumShards <= 0 {
		o.NumShards = 1
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.HealthyAfter <= 0 {
		o.HealthyAfter = DefaultHealthyAfter
	}
	if o.MinMajorVersion <= 0 {
		o.MinMajorVersion = DefaultMinMajorVersion
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	return o
}

// newReconnectBackOff returns a constant back-off, or an exponential one
// capped at ReconnectMaxDelay when that is larger than ReconnectDelay.
func (o Options) newReconnectBackOff() backoff.BackOff {
	if o.ReconnectMaxDelay <= o.ReconnectDelay {
		return backoff.NewConstantBackOff(o.ReconnectDelay)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = o.ReconnectDelay
	expBackoff.MaxInterval = o.ReconnectMaxDelay
	expBackoff.Multiplier = 2
	expBackoff.RandomizationFactor = 0.2
	expBackoff.Reset()
	return expBackoff
}
