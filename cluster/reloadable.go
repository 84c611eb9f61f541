package cluster

import (
	"sync"
	"time"

	"github.com/heimuheimu/naivecache-sub000/client"
	"github.com/heimuheimu/naivecache-sub000/listener"
)

// ReloadableClient holds one current *Client behind a mutex and allows
// the host set to be replaced at runtime without interrupting
// in-flight operations: the previous Client stays usable and is closed
// only after one operation-timeout of grace.
type ReloadableClient struct {
	mu      sync.RWMutex
	current *Client
	cfg     client.Config
	l       listener.Listener
	cl      listener.ClusterListener
}

// NewReloadable builds the initial cluster client and wraps it.
func NewReloadable(hosts []string, cfg client.Config, l listener.Listener, cl listener.ClusterListener) (*ReloadableClient, error) {
	current, err := New(hosts, cfg, l, cl)
	if err != nil {
		return nil, err
	}
	return &ReloadableClient{current: current, cfg: cfg, l: l, cl: cl}, nil
}

// Reload constructs a new cluster client over hosts, swaps it in
// atomically, and schedules the previous client to close after one
// OperationTimeout of grace so operations already in flight against it
// can finish.
func (r *ReloadableClient) Reload(hosts []string) error {
	next, err := New(hosts, r.cfg, r.l, r.cl)
	if err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.current
	r.current = next
	r.mu.Unlock()

	grace := r.cfg.OperationTimeout
	if grace <= 0 {
		grace = time.Second
	}
	time.AfterFunc(grace, func() { prev.Close() })
	return nil
}

func (r *ReloadableClient) snapshot() *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *ReloadableClient) Get(key string) (any, bool)        { return r.snapshot().Get(key) }
func (r *ReloadableClient) MultiGet(keys []string) map[string]any { return r.snapshot().MultiGet(keys) }
func (r *ReloadableClient) Set(key string, value any, expiry uint32) bool {
	return r.snapshot().Set(key, value, expiry)
}
func (r *ReloadableClient) Add(key string, value any, expiry uint32) bool {
	return r.snapshot().Add(key, value, expiry)
}
func (r *ReloadableClient) Delete(key string) bool { return r.snapshot().Delete(key) }
func (r *ReloadableClient) Touch(key string, expiry uint32) bool {
	return r.snapshot().Touch(key, expiry)
}
func (r *ReloadableClient) AddAndGet(key string, delta int64, initial uint64, expiry uint32) (uint64, bool) {
	return r.snapshot().AddAndGet(key, delta, initial, expiry)
}
func (r *ReloadableClient) IsActive() bool { return r.snapshot().IsActive() }
func (r *ReloadableClient) Close() error   { return r.snapshot().Close() }
