// Package cluster distributes Memcached operations across a fixed set
// of hosts via consistent hashing, tolerates node failure by falling
// back to a live replica (accepting "key drift" while a node is down,
// per spec.md's Design Notes), and runs a background rescue worker
// that reconnects dead nodes without blocking the hot path.
//
// Grounded on sharded.go's ShardedCache: shardFor(key)-style routing
// and a background ticker generalized from periodic resync into
// reconnect-on-failure, plus gocbcore's per-node liveness tracking.
package cluster

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimuheimu/naivecache-sub000/client"
	"github.com/heimuheimu/naivecache-sub000/internal/workerpool"
	"github.com/heimuheimu/naivecache-sub000/listener"
)

// ErrNoAliveHosts is returned by New when every host failed to connect.
var ErrNoAliveHosts = errors.New("cluster: no hosts could be reached")

// ErrEmptyHosts is returned by New when hosts is empty.
var ErrEmptyHosts = errors.New("cluster: hosts must not be empty")

const (
	rescueInterval  = 500 * time.Millisecond
	poolCore        = 0
	poolMax         = 200
	poolKeepAlive   = 60 * time.Second
)

// Client fans operations out across len(hosts) direct clients, indexed
// by Jump Consistent Hash.
type Client struct {
	hosts    []string
	cfg      client.Config
	l        listener.Listener
	cl       listener.ClusterListener
	pool     *workerpool.Pool

	mu      sync.RWMutex
	clients []*client.DirectClient // len(hosts); nil where down
	alive   []*client.DirectClient // copy-on-write snapshot

	rescueMu      sync.Mutex
	rescueRunning bool

	rejectedTasks atomic.Int64

	state int32 // 0 normal, 1 closed
	stateMu sync.Mutex
}

// New connects to every host, storing a nil entry for any that fails.
// Fires cl.OnCreated/OnClosed per host. Fails if hosts is empty or if
// every host is unreachable.
func New(hosts []string, cfg client.Config, l listener.Listener, cl listener.ClusterListener) (*Client, error) {
	if len(hosts) == 0 {
		return nil, ErrEmptyHosts
	}
	if l == nil {
		l = listener.NopListener{}
	}
	if cl == nil {
		cl = listener.NopClusterListener{}
	}

	c := &Client{
		hosts:   append([]string(nil), hosts...),
		cfg:     cfg,
		l:       l,
		cl:      cl,
		pool:    workerpool.New(poolCore, poolMax, poolKeepAlive),
		clients: make([]*client.DirectClient, len(hosts)),
	}

	for i, host := range hosts {
		dc, err := client.New(host, cfg, l)
		if err != nil {
			cl.OnClosed(host)
			continue
		}
		c.clients[i] = dc
		cl.OnCreated(host)
	}

	c.rebuildAlive()
	if len(c.alive) == 0 {
		return nil, ErrNoAliveHosts
	}
	return c, nil
}

func (c *Client) rebuildAlive() {
	alive := make([]*client.DirectClient, 0, len(c.clients))
	for _, dc := range c.clients {
		if dc != nil {
			alive = append(alive, dc)
		}
	}
	c.mu.Lock()
	c.alive = alive
	c.mu.Unlock()
}

// resolve picks the DirectClient that should serve key, falling back
// to a live replica (with accepted key drift) if the primary index is
// dead, and kicking off the rescue worker if any host is down.
func (c *Client) resolve(key []byte) *client.DirectClient {
	c.mu.RLock()
	hostCount := len(c.hosts)
	idx := resolveIndex(key, hostCount)
	primary := c.clients[idx]
	alive := c.alive
	c.mu.RUnlock()

	if primary != nil && primary.IsActive() {
		return primary
	}

	if primary != nil && !primary.IsActive() {
		c.evict(idx)
		alive = c.snapshotAlive()
	}

	c.startRescue()

	if len(alive) == 0 {
		return nil
	}
	return alive[resolveIndex(key, len(alive))]
}

func (c *Client) snapshotAlive() []*client.DirectClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

func (c *Client) evict(idx int) {
	c.mu.Lock()
	dc := c.clients[idx]
	c.clients[idx] = nil
	c.mu.Unlock()
	if dc != nil {
		c.rebuildAlive()
		c.cl.OnClosed(c.hosts[idx])
	}
}

// startRescue launches the single-flight background reconnect loop if
// it isn't already running.
func (c *Client) startRescue() {
	c.rescueMu.Lock()
	if c.rescueRunning {
		c.rescueMu.Unlock()
		return
	}
	c.rescueRunning = true
	c.rescueMu.Unlock()

	go c.rescueLoop()
}

func (c *Client) rescueLoop() {
	defer func() {
		c.rescueMu.Lock()
		c.rescueRunning = false
		c.rescueMu.Unlock()
	}()

	for {
		if c.isClosed() {
			return
		}
		c.mu.RLock()
		missing := len(c.hosts) - len(c.alive)
		c.mu.RUnlock()
		if missing <= 0 {
			return
		}

		for i, host := range c.hosts {
			c.mu.RLock()
			down := c.clients[i] == nil
			c.mu.RUnlock()
			if !down {
				continue
			}
			dc, err := client.New(host, c.cfg, c.l)
			if err != nil {
				continue
			}
			c.mu.Lock()
			c.clients[i] = dc
			c.mu.Unlock()
			c.rebuildAlive()
			c.cl.OnRecovered(host)
		}

		time.Sleep(rescueInterval)
	}
}

func (c *Client) isClosed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state == 1
}

// Get resolves key to a node and forwards the read.
func (c *Client) Get(key string) (any, bool) {
	dc := c.resolve([]byte(key))
	if dc == nil {
		return nil, false
	}
	return dc.Get(key)
}

// MultiGet partitions keys by resolved node, then fans each partition
// out to the worker pool (serving one directly inline when only one
// node is hit). Rejected tasks (pool saturated) are skipped and their
// keys are simply absent from the result, matching the "rejected tasks
// are counted and skipped" behavior.
func (c *Client) MultiGet(keys []string) map[string]any {
	result := make(map[string]any)
	if len(keys) == 0 {
		return result
	}

	byClient := make(map[*client.DirectClient][]string)
	for _, k := range keys {
		dc := c.resolve([]byte(k))
		if dc == nil {
			continue
		}
		byClient[dc] = append(byClient[dc], k)
	}

	if len(byClient) <= 1 {
		for dc, ks := range byClient {
			for k, v := range dc.MultiGet(ks) {
				result[k] = v
			}
		}
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for dc, ks := range byClient {
		dc, ks := dc, ks
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			partial := dc.MultiGet(ks)
			mu.Lock()
			for k, v := range partial {
				result[k] = v
			}
			mu.Unlock()
		})
		if err != nil {
			c.rejectedTasks.Add(1)
			wg.Done()
		}
	}
	wg.Wait()
	return result
}

// RejectedTasks returns the lifetime count of MultiGet fan-out tasks
// dropped because the worker pool was saturated.
func (c *Client) RejectedTasks() int64 {
	return c.rejectedTasks.Load()
}

// Set forwards to the resolved node; a dead/missing node maps to false.
func (c *Client) Set(key string, value any, expiry uint32) bool {
	dc := c.resolve([]byte(key))
	if dc == nil {
		return false
	}
	return dc.Set(key, value, expiry)
}

// Add forwards to the resolved node.
func (c *Client) Add(key string, value any, expiry uint32) bool {
	dc := c.resolve([]byte(key))
	if dc == nil {
		return false
	}
	return dc.Add(key, value, expiry)
}

// Delete forwards to the resolved node.
func (c *Client) Delete(key string) bool {
	dc := c.resolve([]byte(key))
	if dc == nil {
		return false
	}
	return dc.Delete(key)
}

// Touch forwards to the resolved node.
func (c *Client) Touch(key string, expiry uint32) bool {
	dc := c.resolve([]byte(key))
	if dc == nil {
		return false
	}
	return dc.Touch(key, expiry)
}

// AddAndGet forwards to the resolved node.
func (c *Client) AddAndGet(key string, delta int64, initial uint64, expiry uint32) (uint64, bool) {
	dc := c.resolve([]byte(key))
	if dc == nil {
		return 0, false
	}
	return dc.AddAndGet(key, delta, initial, expiry)
}

// IsActive reports whether at least one node is reachable.
func (c *Client) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.alive) > 0 && !c.isClosed()
}

// Host returns a description of the configured host set.
func (c *Client) Host() string {
	return fmt.Sprintf("cluster%v", c.hosts)
}

// Close shuts down every alive client and marks the cluster closed.
func (c *Client) Close() error {
	c.stateMu.Lock()
	c.state = 1
	c.stateMu.Unlock()

	c.mu.Lock()
	clients := c.clients
	c.clients = make([]*client.DirectClient, len(c.hosts))
	c.alive = nil
	c.mu.Unlock()

	var firstErr error
	for _, dc := range clients {
		if dc == nil {
			continue
		}
		if err := dc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
