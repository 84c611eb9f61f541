// Package client implements the direct, single-server Memcached
// client: argument validation, transcoding, dispatch to a channel, and
// translation of outcomes into listener callbacks. No operation ever
// returns a Go error to the caller for a Memcached-level outcome —
// those are sentinel return values (nil / false / zero) plus an
// optional listener callback, mirroring the teacher's own "never
// surface an internal failure as a panic/exception, log and return a
// zero value" posture in pkg/tqsession/cache.go.
package client

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/heimuheimu/naivecache-sub000/channel"
	"github.com/heimuheimu/naivecache-sub000/command"
	"github.com/heimuheimu/naivecache-sub000/listener"
	"github.com/heimuheimu/naivecache-sub000/protocol"
	"github.com/heimuheimu/naivecache-sub000/transcoder"
)

// ErrInvalidConfig is returned by New when cfg.OperationTimeout or
// cfg.CompressionThreshold is not positive. A non-positive
// OperationTimeout would otherwise reach command.Await as a "wait
// forever" sentinel, blocking every caller indefinitely instead of
// failing fast.
var ErrInvalidConfig = errors.New("client: OperationTimeout and CompressionThreshold must be > 0")

// DirectClient speaks to exactly one Memcached host over one Channel.
type DirectClient struct {
	host string
	cfg  Config
	ch   *channel.Channel
	tc   *transcoder.Transcoder
	l    listener.Listener
}

// New dials host and returns a ready DirectClient, or an error if the
// initial connection fails — construction is the one place this
// package does surface a Go error, since there is no channel yet to
// report it through.
func New(host string, cfg Config, l listener.Listener) (*DirectClient, error) {
	if cfg.OperationTimeout <= 0 || cfg.CompressionThreshold <= 0 {
		return nil, ErrInvalidConfig
	}
	if l == nil {
		l = listener.NopListener{}
	}
	safe := listener.Safe(l, func(event string, recovered any) {
		// A panicking listener must never take down the IO loop; the
		// panic is logged and the operation carries on.
		log.Printf("client: listener %s panicked: %v", event, recovered)
	})

	ch := channel.New(host, cfg.Sock)
	if err := ch.Init(); err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", host, err)
	}

	tc := transcoder.New(cfg.CompressionThreshold)

	return &DirectClient{host: host, cfg: cfg, ch: ch, tc: tc, l: safe}, nil
}

// Host returns the server address this client speaks to.
func (c *DirectClient) Host() string { return c.host }

// IsActive reports whether the underlying channel is still usable.
func (c *DirectClient) IsActive() bool { return c.ch.IsActive() }

// Close releases the underlying channel.
func (c *DirectClient) Close() error { return c.ch.Close() }

func (c *DirectClient) validKey(key string) bool {
	return len(key) > 0 && len(key) <= protocol.MaxKeyLength
}

// timed runs op, measuring wall time; if it exceeds SlowThreshold the
// listener's OnSlowExecution fires regardless of the outcome.
func (c *DirectClient) timed(key string, op func()) {
	start := time.Now()
	op()
	if d := time.Since(start); d > c.cfg.SlowThreshold {
		c.l.OnSlowExecution(key, d)
	}
}

// Get fetches one key. Returns (nil, false) on a miss or any failure.
func (c *DirectClient) Get(key string) (any, bool) {
	var value any
	var ok bool
	c.timed(key, func() { value, ok = c.get(key) })
	return value, ok
}

func (c *DirectClient) get(key string) (any, bool) {
	if !c.validKey(key) {
		c.l.OnInvalidKey(key)
		return nil, false
	}
	if !c.ch.IsActive() {
		c.l.OnClosed(c.host)
		return nil, false
	}

	cmd := command.NewGet([]byte(key))
	resps, err := c.ch.Send(cmd, c.cfg.OperationTimeout)
	return c.decodeSingle(key, resps, err)
}

func (c *DirectClient) decodeSingle(key string, resps []*protocol.Response, err error) (any, bool) {
	if err == command.ErrTimeout {
		c.l.OnTimeout(key)
		return nil, false
	}
	if err != nil {
		c.l.OnError(key, err)
		return nil, false
	}
	if len(resps) == 0 {
		// Cancelled (channel closed while waiting).
		c.l.OnClosed(c.host)
		return nil, false
	}
	resp := resps[0]
	if resp.KeyNotFound() {
		c.l.OnKeyNotFound(key)
		return nil, false
	}
	if rerr := resp.Err(); rerr != nil {
		c.l.OnError(key, rerr)
		return nil, false
	}
	var flags [4]byte
	copy(flags[:], resp.Extras)
	v, derr := transcoder.Decode(flags, resp.Value, 0, len(resp.Value))
	if derr != nil {
		c.l.OnError(key, derr)
		return nil, false
	}
	return v, true
}

// MultiGet fetches many keys at once, never returning nil — misses are
// simply absent from the result map and reported via OnKeyNotFound.
func (c *DirectClient) MultiGet(keys []string) map[string]any {
	result := make(map[string]any)
	c.timed("multi_get", func() { c.multiGet(keys, result) })
	return result
}

func (c *DirectClient) multiGet(keys []string, result map[string]any) {
	valid := make([][]byte, 0, len(keys))
	byKey := make(map[string]string)
	for _, k := range keys {
		if !c.validKey(k) {
			c.l.OnInvalidKey(k)
			continue
		}
		valid = append(valid, []byte(k))
		byKey[k] = k
	}
	if len(valid) == 0 {
		return
	}
	if !c.ch.IsActive() {
		c.l.OnClosed(c.host)
		return
	}

	cmd := command.NewMultiGet(valid)
	resps, err := c.ch.Send(cmd, c.cfg.OperationTimeout)
	if err == command.ErrTimeout {
		c.l.OnTimeout("multi_get")
		return
	}
	if err != nil {
		c.l.OnError("multi_get", err)
		return
	}

	seen := make(map[string]bool, len(resps))
	for _, resp := range resps {
		k := string(resp.Key)
		if resp.KeyNotFound() {
			// The final GETK answers a miss with its key; leave it unseen
			// so the loop below reports it like the quiet GETKQ misses.
			continue
		}
		seen[k] = true
		if resp.Err() != nil {
			c.l.OnError(k, resp.Err())
			continue
		}
		var flags [4]byte
		copy(flags[:], resp.Extras)
		v, derr := transcoder.Decode(flags, resp.Value, 0, len(resp.Value))
		if derr != nil {
			c.l.OnError(k, derr)
			continue
		}
		result[k] = v
	}
	for _, k := range keys {
		if !seen[k] {
			if _, wasValid := byKey[k]; wasValid {
				c.l.OnKeyNotFound(k)
			}
		}
	}
}

func (c *DirectClient) validExpiry(key string, expiry int64) bool {
	if expiry < 0 {
		c.l.OnInvalidExpiry(key, expiry)
		return false
	}
	return true
}

func (c *DirectClient) encode(key string, value any) (flags [4]byte, body []byte, ok bool) {
	if value == nil {
		c.l.OnInvalidValue(key)
		return flags, nil, false
	}
	flags, body, err := c.tc.Encode(value)
	if err != nil {
		c.l.OnInvalidValue(key)
		return flags, nil, false
	}
	// Checked against the post-compression body, not the gob-serialized
	// length transcoder.Encode compresses from: MaxValueLength is the
	// wire limit Memcached itself enforces on TotalBodyLength, and that
	// is what would actually be rejected server-side. A value whose raw
	// encoding exceeds the limit but compresses under it is accepted.
	if len(body) > protocol.MaxValueLength {
		c.l.OnInvalidValue(key)
		return flags, nil, false
	}
	return flags, body, true
}

// Set unconditionally stores key/value, succeeding even if the key
// already exists.
func (c *DirectClient) Set(key string, value any, expiry uint32) bool {
	var ok bool
	c.timed(key, func() { ok = c.store(protocol.OpSet, key, value, expiry) })
	return ok
}

// Add stores key/value only if the key does not already exist.
func (c *DirectClient) Add(key string, value any, expiry uint32) bool {
	var ok bool
	c.timed(key, func() { ok = c.store(protocol.OpAdd, key, value, expiry) })
	return ok
}

func (c *DirectClient) store(opcode byte, key string, value any, expiry uint32) bool {
	if !c.validKey(key) {
		c.l.OnInvalidKey(key)
		return false
	}
	if !c.validExpiry(key, int64(expiry)) {
		return false
	}
	flags, body, ok := c.encode(key, value)
	if !ok {
		return false
	}
	if !c.ch.IsActive() {
		c.l.OnClosed(c.host)
		return false
	}

	var req *protocol.Request
	switch opcode {
	case protocol.OpAdd:
		req = protocol.NewAdd([]byte(key), flags, expiry, body)
	default:
		req = protocol.NewSet([]byte(key), flags, expiry, body)
	}
	cmd := command.NewSimple(req)
	resps, err := c.ch.Send(cmd, c.cfg.OperationTimeout)
	return c.decodeBool(key, resps, err)
}

func (c *DirectClient) decodeBool(key string, resps []*protocol.Response, err error) bool {
	if err == command.ErrTimeout {
		c.l.OnTimeout(key)
		return false
	}
	if err != nil {
		c.l.OnError(key, err)
		return false
	}
	if len(resps) == 0 {
		c.l.OnClosed(c.host)
		return false
	}
	resp := resps[0]
	if resp.KeyNotFound() {
		c.l.OnKeyNotFound(key)
		return false
	}
	if resp.Status == protocol.StatusItemNotStored || resp.Status == protocol.StatusKeyExists {
		return false
	}
	if rerr := resp.Err(); rerr != nil {
		c.l.OnError(key, rerr)
		return false
	}
	return resp.Success()
}

// Delete removes key, returning false on a miss or any failure.
func (c *DirectClient) Delete(key string) bool {
	var ok bool
	c.timed(key, func() {
		if !c.validKey(key) {
			c.l.OnInvalidKey(key)
			return
		}
		if !c.ch.IsActive() {
			c.l.OnClosed(c.host)
			return
		}
		cmd := command.NewSimple(protocol.NewDelete([]byte(key)))
		resps, err := c.ch.Send(cmd, c.cfg.OperationTimeout)
		ok = c.decodeBool(key, resps, err)
	})
	return ok
}

// Touch updates key's expiry without fetching its value.
func (c *DirectClient) Touch(key string, expiry uint32) bool {
	var ok bool
	c.timed(key, func() {
		if !c.validKey(key) {
			c.l.OnInvalidKey(key)
			return
		}
		if !c.validExpiry(key, int64(expiry)) {
			return
		}
		if !c.ch.IsActive() {
			c.l.OnClosed(c.host)
			return
		}
		cmd := command.NewSimple(protocol.NewTouch([]byte(key), expiry))
		resps, err := c.ch.Send(cmd, c.cfg.OperationTimeout)
		ok = c.decodeBool(key, resps, err)
	})
	return ok
}

// AddAndGet applies delta to key (creating it at initial if absent),
// returning the resulting value. delta >= 0 issues INCREMENT; delta <
// 0 issues DECREMENT with the absolute value. Returns (0, false) on
// any failure.
func (c *DirectClient) AddAndGet(key string, delta int64, initial uint64, expiry uint32) (uint64, bool) {
	var result uint64
	var ok bool
	c.timed(key, func() { result, ok = c.addAndGet(key, delta, initial, expiry) })
	return result, ok
}

func (c *DirectClient) addAndGet(key string, delta int64, initial uint64, expiry uint32) (uint64, bool) {
	if !c.validKey(key) {
		c.l.OnInvalidKey(key)
		return 0, false
	}
	if !c.validExpiry(key, int64(expiry)) {
		return 0, false
	}
	if !c.ch.IsActive() {
		c.l.OnClosed(c.host)
		return 0, false
	}

	var req *protocol.Request
	if delta >= 0 {
		req = protocol.NewIncrement([]byte(key), uint64(delta), initial, expiry)
	} else {
		req = protocol.NewDecrement([]byte(key), uint64(-delta), initial, expiry)
	}
	cmd := command.NewSimple(req)
	resps, err := c.ch.Send(cmd, c.cfg.OperationTimeout)
	if err == command.ErrTimeout {
		c.l.OnTimeout(key)
		return 0, false
	}
	if err != nil {
		c.l.OnError(key, err)
		return 0, false
	}
	if len(resps) == 0 {
		c.l.OnClosed(c.host)
		return 0, false
	}
	resp := resps[0]
	if rerr := resp.Err(); rerr != nil && !resp.KeyNotFound() {
		c.l.OnError(key, rerr)
		return 0, false
	}
	if resp.KeyNotFound() {
		c.l.OnKeyNotFound(key)
		return 0, false
	}
	if len(resp.Value) != 8 {
		c.l.OnError(key, fmt.Errorf("client: incr/decr response value length %d, want 8", len(resp.Value)))
		return 0, false
	}
	v, derr := decodeUint64BE(resp.Value)
	if derr != nil {
		c.l.OnError(key, derr)
		return 0, false
	}
	return v, true
}

func decodeUint64BE(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("client: expected 8 bytes, got %d", len(b))
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}
