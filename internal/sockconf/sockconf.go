// Package sockconf dials and configures the TCP sockets used by a
// channel: keep-alive, no-delay, buffer sizes, linger and read timeout.
package sockconf

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrInvalidHost is returned when host is not a valid "hostname:port" pair.
var ErrInvalidHost = errors.New("sockconf: invalid host")

// Config is the recognized set of socket options. The zero value is not
// meaningful on its own; use Default() for the library's baseline.
type Config struct {
	KeepAlive        bool
	TCPNoDelay       bool
	SendBufferSize   int
	ReceiveBufferSize int
	ReadTimeout      time.Duration
	LingerSeconds    int
	ConnectTimeout   time.Duration
}

// Default returns the library's baseline socket configuration. Each call
// returns a fresh copy so callers can never mutate a shared default.
func Default() Config {
	return Config{
		KeepAlive:         true,
		TCPNoDelay:        false,
		SendBufferSize:    32 * 1024,
		ReceiveBufferSize: 32 * 1024,
		ConnectTimeout:    30 * time.Second,
	}
}

// Dial splits host into hostname/port, connects within cfg.ConnectTimeout
// (0 means no deadline), and applies cfg's options in the documented
// order: keep-alive, no-delay, send buffer, receive buffer, read
// timeout, linger (if > 0).
func Dial(host string, cfg Config) (net.Conn, error) {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidHost, host, err)
	}

	var conn net.Conn
	var err error
	if cfg.ConnectTimeout > 0 {
		conn, err = net.DialTimeout("tcp", host, cfg.ConnectTimeout)
	} else {
		conn, err = net.Dial("tcp", host)
	}
	if err != nil {
		return nil, fmt.Errorf("sockconf: dial %s: %w", host, err)
	}

	if err := Apply(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Apply applies cfg's options, in order, to an already-connected socket.
func Apply(conn net.Conn, cfg Config) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetKeepAlive(cfg.KeepAlive); err != nil {
		return fmt.Errorf("sockconf: set keep-alive: %w", err)
	}
	if err := tc.SetNoDelay(cfg.TCPNoDelay); err != nil {
		return fmt.Errorf("sockconf: set no-delay: %w", err)
	}
	if cfg.SendBufferSize > 0 {
		if err := tc.SetWriteBuffer(cfg.SendBufferSize); err != nil {
			return fmt.Errorf("sockconf: set send buffer: %w", err)
		}
	}
	if cfg.ReceiveBufferSize > 0 {
		if err := tc.SetReadBuffer(cfg.ReceiveBufferSize); err != nil {
			return fmt.Errorf("sockconf: set receive buffer: %w", err)
		}
	}
	// This sets one absolute deadline at apply time, not a per-read
	// timeout: reads after cfg.ReadTimeout has elapsed will fail even if
	// each individual read was prompt. The channel package leaves this
	// at 0 and enforces its own per-command timeout via Channel.Send
	// instead; a caller setting ReadTimeout directly must renew the
	// deadline itself on every read.
	if cfg.ReadTimeout > 0 {
		if err := tc.SetDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("sockconf: set read timeout: %w", err)
		}
	}
	if cfg.LingerSeconds > 0 {
		if err := tc.SetLinger(cfg.LingerSeconds); err != nil {
			return fmt.Errorf("sockconf: set linger: %w", err)
		}
	}
	return nil
}

// EffectiveSendBufferSize returns the send buffer size the channel uses
// as its write-batching threshold: configured when it is positive,
// otherwise Default().SendBufferSize. conn is not consulted; the
// kernel's actual buffer size is not queried.
func EffectiveSendBufferSize(conn net.Conn, configured int) int {
	if configured > 0 {
		return configured
	}
	return Default().SendBufferSize
}
