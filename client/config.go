package client

import (
	"time"

	"github.com/heimuheimu/naivecache-sub000/internal/sockconf"
)

// Config holds everything needed to build a DirectClient. Exported
// with a DefaultConfig constructor, the way the teacher's own
// internal/config.Config is always paired with sane defaults rather
// than requiring the caller to fill in every field.
type Config struct {
	Sock sockconf.Config

	// OperationTimeout bounds every per-operation Send call.
	OperationTimeout time.Duration

	// CompressionThreshold is the transcoder's LZF threshold in bytes.
	CompressionThreshold int

	// SlowThreshold is the wall-clock duration above which an
	// operation fires OnSlowExecution even on success.
	SlowThreshold time.Duration
}

// DefaultConfig returns spec-mandated defaults: 1s operation timeout,
// 64KiB compression threshold, 50ms slow-execution threshold.
func DefaultConfig() Config {
	return Config{
		Sock:                 sockconf.Default(),
		OperationTimeout:     time.Second,
		CompressionThreshold: 64 * 1024,
		SlowThreshold:        50 * time.Millisecond,
	}
}
