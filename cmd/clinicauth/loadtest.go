package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/internal"
	"github.com/MrEthical07/clinicauth/internal/rate"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/permission"
	"github.com/MrEthical07/clinicauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const loadtestPassword = "Loadtest-Pass-1"

type loadtestOptions struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
}

func (o loadtestOptions) validate() error {
	if o.users <= 0 || o.concurrency <= 0 || o.ops <= 0 {
		return errors.New("users, concurrency, and ops must be > 0")
	}
	return nil
}

// userState serializes refresh rotation per user; concurrent rotations of
// one token would otherwise race each other into failures.
type userState struct {
	mu      sync.Mutex
	login   string
	access  string
	refresh string
}

func newLoadtestCmd() *cobra.Command {
	var o loadtestOptions
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Benchmark login, authenticate, refresh, and the Redis rate limiter in-process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			if o.redisAddr == "" {
				o.redisAddr = os.Getenv("REDIS_ADDR")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().IntVar(&o.users, "users", 200, "number of accounts to seed")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&o.ops, "ops", 2000, "operations per phase")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", "", "redis address for the limiter phase; if empty, REDIS_ADDR env or miniredis is used")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, o loadtestOptions) error {
	client, cleanup, err := loadtestRedis(out, o.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, states, err := seedLoadtest(ctx, out, o.users)
	if err != nil {
		return err
	}
	defer engine.Close()

	limiter, err := rate.NewRedis(client, rate.Config{Limit: o.ops, Window: time.Minute})
	if err != nil {
		return err
	}

	login, err := runPhase(ctx, o.ops, o.concurrency, func(ctx context.Context, _ int, r *rand.Rand) error {
		st := states[r.Intn(len(states))]
		res, err := engine.Login(ctx, clinicauth.LoginInput{EmailOrUsername: st.login, Password: loadtestPassword})
		if err != nil {
			return err
		}
		st.mu.Lock()
		st.access, st.refresh = res.Tokens.AccessToken, res.Tokens.RefreshToken
		st.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	authenticate, err := runPhase(ctx, o.ops, o.concurrency, func(ctx context.Context, _ int, r *rand.Rand) error {
		st := states[r.Intn(len(states))]
		st.mu.Lock()
		tok := st.access
		st.mu.Unlock()
		_, err := engine.Authenticate(ctx, tok)
		return err
	})
	if err != nil {
		return err
	}

	refresh, err := runPhase(ctx, o.ops, o.concurrency, func(ctx context.Context, _ int, r *rand.Rand) error {
		st := states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := engine.Refresh(ctx, st.refresh)
		if err != nil {
			return err
		}
		st.access, st.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})
	if err != nil {
		return err
	}

	limit, err := runPhase(ctx, o.ops, o.concurrency, func(ctx context.Context, i int, _ *rand.Rand) error {
		res, err := limiter.Allow(ctx, fmt.Sprintf("ip:10.0.%d.%d", (i/256)%256, i%256))
		if err != nil {
			return err
		}
		if !res.Allowed {
			return clinicauth.ErrRateLimited
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", login)
	printStats(out, "authenticate", authenticate)
	printStats(out, "refresh", refresh)
	printStats(out, "ratelimit", limit)
	return nil
}

func loadtestRedis(out io.Writer, addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(out, "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// seedLoadtest writes accounts straight into a memory store with one shared
// hash, so seeding does not pay the KDF cost per user.
func seedLoadtest(ctx context.Context, out io.Writer, users int) (*clinicauth.Engine, []*userState, error) {
	cfg := clinicauth.DefaultConfig()
	access, err := internal.NewSecretToken()
	if err != nil {
		return nil, nil, err
	}
	refresh, err := internal.NewSecretToken()
	if err != nil {
		return nil, nil, err
	}
	cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret = []byte(access), []byte(refresh)
	cfg.Audit.Enabled = false

	st := memory.New()
	engine, err := clinicauth.New().WithConfig(cfg).WithUserStore(st).WithRoleStore(st).Build()
	if err != nil {
		return nil, nil, err
	}
	if _, err := engine.SeedSystemRoles(ctx); err != nil {
		engine.Close()
		return nil, nil, err
	}

	hasher, err := password.NewArgon2(cfg.Password.Hash)
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	hash, err := hasher.Hash(loadtestPassword)
	if err != nil {
		engine.Close()
		return nil, nil, err
	}

	fmt.Fprintf(out, "seeding %d users...\n", users)
	start := time.Now()
	now := time.Now().UTC()
	states := make([]*userState, users)
	for i := range states {
		u := &clinicauth.UserRecord{
			ID:            fmt.Sprintf("lt-%d", i),
			Email:         fmt.Sprintf("user%d@loadtest.local", i),
			Username:      fmt.Sprintf("user%d", i),
			PasswordHash:  hash,
			FirstName:     "Load",
			LastName:      "Test",
			Role:          permission.Staff,
			Status:        clinicauth.StatusActive,
			ClinicID:      "clinic-lt",
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := st.CreateUser(ctx, u); err != nil {
			engine.Close()
			return nil, nil, err
		}
		states[i] = &userState{login: u.Username}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return engine, states, nil
}

type opFunc func(ctx context.Context, i int, r *rand.Rand) error

// runPhase spreads ops over concurrency workers. Op errors count as
// failures; only context cancellation aborts the phase.
func runPhase(ctx context.Context, ops, concurrency int, op opFunc) (phaseStats, error) {
	var (
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		worker := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				t0 := time.Now()
				err := op(gctx, i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return phaseStats{}, err
	}
	return computeStats(time.Since(start), latencies, failures), nil
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
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	s := phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
	if total > 0 {
		s.opsPerS = float64(len(samples)) / total.Seconds()
	}
	return s
}

// percentile expects sorted samples.
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
