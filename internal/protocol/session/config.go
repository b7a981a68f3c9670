package session

import "time"

// Config defines provider transport timeouts.
type Config struct {
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout bounds the gap between frames; zero waits forever.
	ReadTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:      5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
	}
}
