// Command authclient-loadtest drives an authclient.Client against the stub
// API and reports how many refresh calls each burst of expired requests
// produced.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/api"
	"github.com/MrEthical07/authclient/audit/bus"
	"github.com/MrEthical07/authclient/internal/testapi"
	"github.com/MrEthical07/authclient/metrics/export/prometheus"
)

func main() {
	var (
		configPath  = flag.String("config", "", "optional authclient YAML config")
		rounds      = flag.Int("rounds", 50, "number of token expiry bursts")
		concurrency = flag.Int("concurrency", 64, "concurrent requests per burst")
		guarded     = flag.Int("guarded", 20, "guarded like attempts per round")
		refreshLag  = flag.Duration("refresh-lag", 5*time.Millisecond, "artificial refresh latency")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		auditStream = flag.Bool("audit-stream", false, "publish audit events to a redis stream")
		dumpMetrics = flag.Bool("metrics", false, "print Prometheus metrics at the end")
	)
	flag.Parse()

	if *rounds <= 0 || *concurrency <= 0 || *guarded < 0 {
		fmt.Fprintln(os.Stderr, "rounds and concurrency must be > 0, guarded must be >= 0")
		os.Exit(2)
	}

	cfg, err := authclient.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	logger, err := authclient.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	// ---------- redis ----------
	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	var rdb redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer rdb.Close()

	// ---------- stub api ----------
	srv, err := testapi.New(testapi.Config{Logger: logger.Named("testapi")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start stub api: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()
	cfg.BaseURL = srv.URL

	// ---------- client ----------
	builder := authclient.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithLatencyHistograms(true).
		WithHTTPClient(&http.Client{
			Timeout:   cfg.Coordinator.RequestTimeout,
			Transport: &lagTransport{next: http.DefaultTransport, lag: *refreshLag},
		})

	var sink *bus.Sink
	if *auditStream {
		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: rdb}, watermill.NewStdLogger(false, false))
		if err != nil {
			fmt.Fprintf(os.Stderr, "audit publisher: %v\n", err)
			os.Exit(1)
		}
		defer publisher.Close()
		sink = bus.NewSink(publisher, bus.Config{Logger: logger})
		cfg.Audit.Enabled = true
		builder.WithConfig(cfg).WithAuditSink(sink)
	}

	client, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	social := api.New(client)
	ctx := context.Background()
	if _, err := social.Login(ctx, "alice@example.com", "Password123!"); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}
	post, err := social.CreatePost(ctx, api.NewPost{Title: "load", Content: "target"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed post: %v\n", err)
		os.Exit(1)
	}

	burst := runBurstPhase(ctx, srv, social, *rounds, *concurrency)
	gate := runGuardedPhase(ctx, srv, client, social, post.ID, *rounds, *guarded)

	fmt.Println("---- results ----")
	printStats("burst", burst.phaseStats)
	fmt.Printf("burst: refresh calls=%d rounds=%d (want one per round)\n", burst.refreshes, *rounds)
	printStats("guarded", gate.phaseStats)
	fmt.Printf("guarded: local blocks=%d remote blocks=%d\n", gate.local, gate.remote)
	if sink != nil {
		fmt.Printf("audit: published=%d failed=%d dropped=%d\n", sink.Published(), sink.Failed(), client.AuditDropped())
	}
	if *dumpMetrics {
		fmt.Print(prometheus.NewPrometheusExporter(client).Render())
	}
}

type burstResult struct {
	phaseStats
	refreshes int
}

// runBurstPhase expires the token and fires concurrency requests at once,
// rounds times.
func runBurstPhase(ctx context.Context, srv *testapi.Server, social *api.Client, rounds, concurrency int) burstResult {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, rounds*concurrency)
		mu        sync.Mutex
	)

	before := srv.RefreshCalls()
	start := time.Now()
	for r := 0; r < rounds; r++ {
		srv.ExpireTokens()

		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < concurrency; w++ {
			g.Go(func() error {
				t0 := time.Now()
				_, err := social.FetchPosts(gctx)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	total := time.Since(start)

	return burstResult{
		phaseStats: computeStats(total, latencies, failures),
		refreshes:  srv.RefreshCalls() - before,
	}
}

type guardedResult struct {
	phaseStats
	local  int64
	remote int64
}

// runGuardedPhase hammers the like gate. Every other round the server
// answers 429 to exercise the forced cooldown.
func runGuardedPhase(ctx context.Context, srv *testapi.Server, client *authclient.Client, social *api.Client, postID, rounds, attempts int) guardedResult {
	var (
		res       guardedResult
		latencies = make([]time.Duration, 0, rounds*attempts)
	)

	start := time.Now()
	for r := 0; r < rounds; r++ {
		srv.Throttle("/api/posts/like", r%2 == 1)
		client.ResetRateLimit(authclient.ActionLike)
		for i := 0; i < attempts; i++ {
			t0 := time.Now()
			_, err := social.LikePost(ctx, postID)
			latencies = append(latencies, time.Since(t0))

			var rl *authclient.RateLimitError
			switch {
			case err == nil:
			case errors.As(err, &rl) && rl.Remote:
				res.remote++
			case errors.As(err, &rl):
				res.local++
			default:
				res.failures++
			}
		}
	}
	srv.Throttle("/api/posts/like", false)
	res.phaseStats = computeStats(time.Since(start), latencies, res.failures)
	return res
}

// lagTransport delays refresh calls so concurrent 401s pile up behind one
// in-flight refresh.
type lagTransport struct {
	next http.RoundTripper
	lag  time.Duration
}

func (t *lagTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.lag > 0 && req.URL.Path == "/api/refresh" {
		select {
		case <-time.After(t.lag):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return t.next.RoundTrip(req)
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
