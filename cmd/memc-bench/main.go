// Command memc-bench drives this module's cluster client (and, for
// comparison, gomemcache's text-protocol client and go-redis) against
// a live Memcached/Redis endpoint and reports throughput.
//
// Structure (run a timed concurrent loop per operation, report
// requests/sec) is grounded on benchmarks/getset/getset_benchmark.go; flag
// parsing and signal-driven shutdown on cmd/tqsession/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"

	"github.com/heimuheimu/naivecache-sub000/client"
	"github.com/heimuheimu/naivecache-sub000/cluster"
	"github.com/heimuheimu/naivecache-sub000/internal/config"
)

var (
	configFile = flag.String("config", "", "Path to config file (INI format)")
	hostsFlag  = flag.String("hosts", "localhost:11211", "Comma-separated memcached host:port list")
	protocol   = flag.String("protocol", "naivecache", "Client to benchmark: naivecache, gomemcache, or redis")
	clients    = flag.Int("clients", 10, "Number of concurrent goroutines")
	requests   = flag.Int("requests", 100000, "Total number of requests")
	valueSize  = flag.Int("size", 1024, "Value size in bytes")
	keySpace   = flag.Int("keys", 100000, "Key space size")
	operation  = flag.String("op", "both", "Operation to benchmark: set, get, or both")
)

// benchmarker is the uniform interface every protocol is driven
// through, so the timed loop below is written exactly once.
type benchmarker interface {
	Set(key string, value []byte) error
	Get(key string) error
	Close() error
}

type naivecacheClient struct{ c *cluster.Client }

func (n *naivecacheClient) Set(key string, value []byte) error {
	if !n.c.Set(key, value, 0) {
		return fmt.Errorf("set failed for %s", key)
	}
	return nil
}

func (n *naivecacheClient) Get(key string) error {
	if _, ok := n.c.Get(key); !ok {
		return fmt.Errorf("miss for %s", key)
	}
	return nil
}

func (n *naivecacheClient) Close() error { return nil } // cluster is shared; closed once in main

type gomemcacheClient struct{ c *memcache.Client }

func (g *gomemcacheClient) Set(key string, value []byte) error {
	return g.c.Set(&memcache.Item{Key: key, Value: value})
}
func (g *gomemcacheClient) Get(key string) error {
	_, err := g.c.Get(key)
	return err
}
func (g *gomemcacheClient) Close() error { return nil }

type redisClient struct{ c *redis.Client }

func (r *redisClient) Set(key string, value []byte) error {
	return r.c.Set(context.Background(), key, value, 0).Err()
}
func (r *redisClient) Get(key string) error {
	return r.c.Get(context.Background(), key).Err()
}
func (r *redisClient) Close() error { return r.c.Close() }

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	hosts, clientCfg := loadConfig()

	var sharedCluster *cluster.Client
	factory := func() benchmarker {
		switch *protocol {
		case "naivecache":
			if sharedCluster == nil {
				var err error
				sharedCluster, err = cluster.New(hosts, clientCfg, nil, nil)
				if err != nil {
					log.Fatalf("failed to build cluster client: %v", err)
				}
			}
			return &naivecacheClient{c: sharedCluster}
		case "gomemcache":
			return &gomemcacheClient{c: memcache.New(hosts...)}
		case "redis":
			return &redisClient{c: redis.NewClient(&redis.Options{Addr: hosts[0]})}
		default:
			log.Fatalf("unknown protocol: %s", *protocol)
			return nil
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("interrupted, shutting down")
		if sharedCluster != nil {
			sharedCluster.Close()
		}
		os.Exit(1)
	}()

	keys := make([]string, *keySpace)
	for i := range keys {
		keys[i] = fmt.Sprintf("key_%d", i)
	}
	value := make([]byte, *valueSize)
	rand.Read(value)

	fmt.Printf("Benchmarking %v (%s) with %d clients, %d requests, %d byte values, %d keys...\n",
		hosts, *protocol, *clients, *requests, *valueSize, *keySpace)

	if *operation == "set" || *operation == "both" {
		run("SET", factory, keys, func(b benchmarker, key string) error { return b.Set(key, value) })
	}
	if *operation == "get" || *operation == "both" {
		run("GET", factory, keys, func(b benchmarker, key string) error { return b.Get(key) })
	}

	if sharedCluster != nil {
		sharedCluster.Close()
	}
}

func loadConfig() ([]string, client.Config) {
	if *configFile != "" {
		fileCfg, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("failed to load config file: %v", err)
		}
		clientCfg, err := fileCfg.ToClientConfig()
		if err != nil {
			log.Fatalf("invalid config: %v", err)
		}
		hosts := fileCfg.Hosts()
		if len(hosts) == 0 {
			log.Fatal("config file must set [memcached] hosts")
		}
		return hosts, clientCfg
	}

	var hosts []string
	for _, h := range strings.Split(*hostsFlag, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, client.DefaultConfig()
}

func run(name string, factory func() benchmarker, keys []string, op func(benchmarker, string) error) {
	var wg sync.WaitGroup
	var errs int64
	requestsPerClient := *requests / *clients
	numKeys := len(keys)

	start := time.Now()
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		base := i * requestsPerClient
		go func(base int) {
			defer wg.Done()
			b := factory()
			defer b.Close()
			for j := 0; j < requestsPerClient; j++ {
				k := keys[(base+j)%numKeys]
				if err := op(b, k); err != nil {
					atomic.AddInt64(&errs, 1)
				}
			}
		}(base)
	}
	wg.Wait()
	elapsed := time.Since(start)

	rps := float64(*requests) / elapsed.Seconds()
	fmt.Printf("%-4s: %.2f req/sec (%s, %d errors)\n", name, rps, elapsed, atomic.LoadInt64(&errs))
}
