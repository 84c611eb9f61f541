package client

import (
	"sync"

	"github.com/heimuheimu/naivecache-sub000/listener"
)

// OneTimeClient dials, performs exactly one logical unit of work, and
// closes — the create-per-call strategy visible in the teacher's
// benchmark harness (each goroutine builds its own short-lived
// gomemcache.Client) rather than the always-on, long-lived connection
// ShardedCache's workers hold.
type OneTimeClient struct {
	host string
	cfg  Config
	l    listener.Listener
}

// NewOneTime returns a factory for single-use direct clients against host.
func NewOneTime(host string, cfg Config, l listener.Listener) *OneTimeClient {
	return &OneTimeClient{host: host, cfg: cfg, l: l}
}

// Do dials a fresh DirectClient, runs fn against it, and closes it
// regardless of fn's outcome.
func (o *OneTimeClient) Do(fn func(*DirectClient)) error {
	dc, err := New(o.host, o.cfg, o.l)
	if err != nil {
		return err
	}
	defer dc.Close()
	fn(dc)
	return nil
}

// AutoReconnectClient holds a DirectClient that is lazily rebuilt
// whenever IsActive() reports false, so a caller never has to notice a
// channel closing underneath it. Grounded on the same
// create-per-call-vs-reuse distinction as OneTimeClient, but on the
// "reuse, recreate on failure" side of it.
type AutoReconnectClient struct {
	host string
	cfg  Config
	l    listener.Listener

	mu      sync.Mutex
	current *DirectClient
}

// NewAutoReconnect builds the first connection immediately.
func NewAutoReconnect(host string, cfg Config, l listener.Listener) (*AutoReconnectClient, error) {
	dc, err := New(host, cfg, l)
	if err != nil {
		return nil, err
	}
	return &AutoReconnectClient{host: host, cfg: cfg, l: l, current: dc}, nil
}

// client returns the live DirectClient, reconnecting first if the
// current one's channel has gone inactive.
func (a *AutoReconnectClient) client() *DirectClient {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || !a.current.IsActive() {
		if dc, err := New(a.host, a.cfg, a.l); err == nil {
			a.current = dc
		}
	}
	return a.current
}

func (a *AutoReconnectClient) Get(key string) (any, bool) {
	dc := a.client()
	if dc == nil {
		return nil, false
	}
	return dc.Get(key)
}

func (a *AutoReconnectClient) MultiGet(keys []string) map[string]any {
	dc := a.client()
	if dc == nil {
		return map[string]any{}
	}
	return dc.MultiGet(keys)
}

func (a *AutoReconnectClient) Set(key string, value any, expiry uint32) bool {
	dc := a.client()
	return dc != nil && dc.Set(key, value, expiry)
}

func (a *AutoReconnectClient) Add(key string, value any, expiry uint32) bool {
	dc := a.client()
	return dc != nil && dc.Add(key, value, expiry)
}

func (a *AutoReconnectClient) Delete(key string) bool {
	dc := a.client()
	return dc != nil && dc.Delete(key)
}

func (a *AutoReconnectClient) Touch(key string, expiry uint32) bool {
	dc := a.client()
	return dc != nil && dc.Touch(key, expiry)
}

func (a *AutoReconnectClient) AddAndGet(key string, delta int64, initial uint64, expiry uint32) (uint64, bool) {
	dc := a.client()
	if dc == nil {
		return 0, false
	}
	return dc.AddAndGet(key, delta, initial, expiry)
}

// IsActive reports whether the currently-held client is usable,
// without triggering a reconnect attempt.
func (a *AutoReconnectClient) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil && a.current.IsActive()
}

// Close releases the currently-held client.
func (a *AutoReconnectClient) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	return a.current.Close()
}
