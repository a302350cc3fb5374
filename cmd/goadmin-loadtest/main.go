package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	"github.com/MrEthical07/goAdmin/internal/apitest"
	"github.com/MrEthical07/goAdmin/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var paths = []string{"/products", "/customers", "/me", "/products/p-1"}

func main() {
	var (
		rounds       = flag.Int("rounds", 20, "number of expiry rounds")
		concurrency  = flag.Int("concurrency", 256, "concurrent requests per round")
		refreshDelay = flag.Duration("refresh-delay", 20*time.Millisecond, "server-side refresh latency")
		maxWaiters   = flag.Int("max-waiters", 0, "renewal queue bound (0 = unbounded)")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix       = flag.String("prefix", "ga-load", "session key prefix")
		showMetrics  = flag.Bool("metrics", false, "print client metrics after the run")
	)
	flag.Parse()

	if *rounds <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "rounds and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	srv, err := apitest.New(apitest.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start api: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()
	srv.SetRefreshDelay(*refreshDelay)

	cfg := goAdmin.DefaultConfig()
	cfg.Transport.BaseURL = srv.URL()
	cfg.Renewal.MaxWaiters = *maxWaiters
	cfg.Session.RedisPrefix = *prefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := goAdmin.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "client build failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	user, pass := srv.Credentials()
	if err := client.Login(ctx, user, pass); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("running %d rounds of %d concurrent requests against an expired session...\n", *rounds, *concurrency)
	stats := runExpiryRounds(ctx, client, srv, *rounds, *concurrency)

	fmt.Println("---- results ----")
	printStats("requests", stats)
	snap := client.MetricsSnapshot()
	fmt.Printf("renewals: server=%d started=%d failed=%d replays=%d queued=%d overflow=%d\n",
		srv.RefreshCalls(),
		snap.Counters[goAdmin.MetricRenewalStarted],
		snap.Counters[goAdmin.MetricRenewalFailed],
		snap.Counters[goAdmin.MetricReplay],
		snap.Counters[goAdmin.MetricWaiterQueued],
		snap.Counters[goAdmin.MetricQueueOverflow],
	)
	if *showMetrics {
		fmt.Print(prometheus.NewPrometheusExporter(client).Render())
	}
}

// runExpiryRounds expires the access token and fires concurrency requests at
// once, rounds times. Every round should cost exactly one refresh.
func runExpiryRounds(ctx context.Context, client *goAdmin.Client, srv *apitest.Server, rounds, concurrency int) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, rounds*concurrency)
		mu        sync.Mutex
		total     time.Duration
	)

	for round := 0; round < rounds; round++ {
		srv.ExpireAccess()

		var wg sync.WaitGroup
		start := make(chan struct{})
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
				path := paths[r.Intn(len(paths))]
				<-start

				t0 := time.Now()
				_, err := client.Issue(ctx, goAdmin.Request{Method: http.MethodGet, Path: path})
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					if errors.Is(err, goAdmin.ErrRenewalFailure) {
						fmt.Fprintf(os.Stderr, "renewal failed: %v\n", err)
					}
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}(w)
		}

		roundStart := time.Now()
		close(start)
		wg.Wait()
		total += time.Since(roundStart)
	}

	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
