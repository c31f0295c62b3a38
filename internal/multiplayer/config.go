package multiplayer

import "time"

// Defaults applied to zero-valued Config fields.
const (
	DefaultURL               = "ws://localhost:8080"
	DefaultReconnectInterval = 5 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultFallbackChannel   = "lerncasino_global_chat"
)

// Config controls how a Client reaches the hub.
type Config struct {
	// URL is the hub's websocket endpoint, resolved once at construction.
	URL string
	// ReconnectInterval is the fixed delay between reconnect attempts. There is no backoff.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts stops retrying after this many failed attempts
	// since the last successful connection. Zero retries forever.
	MaxReconnectAttempts int
	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration
	// FallbackChannel is the bus topic shared by all clients on this device.
	FallbackChannel string
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.FallbackChannel == "" {
		c.FallbackChannel = DefaultFallbackChannel
	}
	return c
}
