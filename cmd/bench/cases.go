// README: Bench cases; claim races through the order service, OTP lockout through Redis, API health over HTTP.
package main

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "sort"
    "sync"
    "sync/atomic"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "giftwave/internal/apperr"
    "giftwave/internal/modules/account"
    "giftwave/internal/modules/order"
    "giftwave/internal/modules/otp"
    "giftwave/internal/modules/pricing"
    "giftwave/internal/notify"
    "giftwave/internal/types"
)

type Runner struct {
    cfg   Config
    httpc *http.Client
    db    *pgxpool.Pool
    redis *redis.Client

    orders *order.Service
    sender types.ID
    riders []types.ID
}

type Result struct {
    Name    string
    Status  string
    Latency time.Duration
    Note    string
}

type TestCase struct {
    Name  string
    Needs string
    Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
    return &Runner{
        cfg:   cfg,
        httpc: &http.Client{Timeout: 10 * time.Second},
    }
}

func (r *Runner) Close() {
    if r.db != nil {
        r.db.Close()
    }
    if r.redis != nil {
        _ = r.redis.Close()
    }
}

func (r *Runner) RunAll(ctx context.Context) []Result {
    if r.cfg.DSN != "" {
        if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil && db.Ping(ctx) == nil {
            r.db = db
        }
    }
    if r.cfg.RedisAddr != "" {
        client := redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
        if client.Ping(ctx).Err() == nil {
            r.redis = client
        }
    }
    if r.db != nil {
        if err := r.seed(ctx); err != nil {
            fmt.Printf("seed failed: %v\n", err)
            r.db.Close()
            r.db = nil
        }
    }

    tests := r.cases()
    results := make([]Result, 0, len(tests))
    for _, tc := range tests {
        var res Result
        switch {
        case tc.Needs == "db" && r.db == nil:
            res = Result{Status: "SKIP", Note: "postgres unavailable"}
        case tc.Needs == "redis" && r.redis == nil:
            res = Result{Status: "SKIP", Note: "redis unavailable"}
        default:
            start := time.Now()
            res = tc.Run(ctx, r)
            res.Latency = time.Since(start)
        }
        res.Name = tc.Name
        results = append(results, res)
        fmt.Printf("%-5s %-32s %10s  %s\n", res.Status, res.Name, res.Latency.Round(time.Millisecond), res.Note)
    }
    return results
}

func (r *Runner) cases() []TestCase {
    return []TestCase{
        {Name: "api health", Run: func(ctx context.Context, r *Runner) Result {
            return healthCheck(ctx, r, r.cfg.BaseURL+"/health")
        }},
        {Name: "claim race single winner", Needs: "db", Run: claimContention},
        {Name: "claim vs sender cancel", Needs: "db", Run: claimVersusCancel},
        {Name: "claim throughput", Needs: "db", Run: claimThroughput},
        {Name: "otp attempts exhausted", Needs: "redis", Run: otpLockout},
    }
}

// seed inserts one sender and cfg.Riders approved riders with fresh ids.
func (r *Runner) seed(ctx context.Context) error {
    users := account.NewStore(r.db)
    now := time.Now().UTC()
    run := types.NewID()

    sender := &account.User{
        ID: types.NewID(), Email: fmt.Sprintf("bench-sender-%s@giftwave.test", run),
        Phone: "3001234567", FullName: "Bench Sender", UserType: account.UserTypeSender,
        CreatedAt: now, UpdatedAt: now,
    }
    if err := users.Create(ctx, sender); err != nil {
        return fmt.Errorf("create sender: %w", err)
    }
    r.sender = sender.ID

    r.riders = r.riders[:0]
    for i := 0; i < r.cfg.Riders; i++ {
        u := &account.User{
            ID: types.NewID(), Email: fmt.Sprintf("bench-rider-%s-%d@giftwave.test", run, i),
            Phone: "3111234567", FullName: "Bench Rider", UserType: account.UserTypeRider,
            City: "Lahore", RiderStatus: account.RiderApproved,
            CreatedAt: now, UpdatedAt: now,
        }
        if err := users.Create(ctx, u); err != nil {
            return fmt.Errorf("create rider: %w", err)
        }
        r.riders = append(r.riders, u.ID)
    }

    accounts := account.NewService(users, nil, nil, nil, zap.NewNop())
    r.orders = order.NewService(order.NewStore(r.db), accounts, pricing.NewService(pricing.NewStore(r.db)), zap.NewNop())
    return nil
}

func (r *Runner) newOrder(ctx context.Context) (*order.Order, error) {
    est := int64(2500)
    return r.orders.Create(ctx, order.CreateCommand{
        SenderID:        r.sender,
        GiftName:        "Bench bouquet",
        ReceiverName:    "Bench Receiver",
        ReceiverAddress: "House 1, Street 1, Model Town",
        ReceiverCity:    "Lahore",
        ReceiverPhone:   "03211234567",
        EstimatedPrice:  &est,
    })
}

// raceClaims fires one claim per rider at the same instant and returns the
// number of winners and the per-claim latencies.
func (r *Runner) raceClaims(ctx context.Context, id types.ID) (int, []time.Duration, error) {
    start := make(chan struct{})
    var wg sync.WaitGroup
    var mu sync.Mutex
    var unexpected error
    wins := 0
    latencies := make([]time.Duration, 0, len(r.riders))

    for _, rid := range r.riders {
        wg.Add(1)
        go func(rid types.ID) {
            defer wg.Done()
            <-start
            t0 := time.Now()
            _, err := r.orders.Claim(ctx, order.ClaimCommand{OrderID: id, RiderID: rid})
            d := time.Since(t0)
            mu.Lock()
            defer mu.Unlock()
            latencies = append(latencies, d)
            switch {
            case err == nil:
                wins++
            case errors.Is(err, apperr.ErrAlreadyClaimed):
            default:
                unexpected = err
            }
        }(rid)
    }
    close(start)
    wg.Wait()
    return wins, latencies, unexpected
}

func claimContention(ctx context.Context, r *Runner) Result {
    var all []time.Duration
    for i := 0; i < r.cfg.Orders; i++ {
        o, err := r.newOrder(ctx)
        if err != nil {
            return Result{Status: "FAIL", Note: fmt.Sprintf("create: %v", err)}
        }
        wins, lat, err := r.raceClaims(ctx, o.ID)
        if err != nil {
            return Result{Status: "FAIL", Note: fmt.Sprintf("claim: %v", err)}
        }
        if wins != 1 {
            return Result{Status: "FAIL", Note: fmt.Sprintf("order %s had %d winners", o.ID, wins)}
        }
        all = append(all, lat...)
    }
    return Result{Status: "PASS", Note: fmt.Sprintf("orders=%d riders=%d %s", r.cfg.Orders, len(r.riders), percentiles(all))}
}

func claimVersusCancel(ctx context.Context, r *Runner) Result {
    o, err := r.newOrder(ctx)
    if err != nil {
        return Result{Status: "FAIL", Note: fmt.Sprintf("create: %v", err)}
    }

    var wg sync.WaitGroup
    var claimErr, cancelErr error
    wg.Add(2)
    go func() {
        defer wg.Done()
        _, claimErr = r.orders.Claim(ctx, order.ClaimCommand{OrderID: o.ID, RiderID: r.riders[0]})
    }()
    go func() {
        defer wg.Done()
        _, cancelErr = r.orders.Cancel(ctx, order.CancelCommand{OrderID: o.ID, ActorID: r.sender, Reason: "bench"})
    }()
    wg.Wait()

    for _, err := range []error{claimErr, cancelErr} {
        if err != nil && !errors.Is(err, apperr.ErrInvalidState) && !errors.Is(err, apperr.ErrAlreadyClaimed) {
            return Result{Status: "FAIL", Note: err.Error()}
        }
    }
    got, err := r.orders.Get(ctx, o.ID)
    if err != nil {
        return Result{Status: "FAIL", Note: err.Error()}
    }
    if got.Status != order.StatusAccepted && got.Status != order.StatusCancelled {
        return Result{Status: "FAIL", Note: fmt.Sprintf("final status %s", got.Status)}
    }
    return Result{Status: "PASS", Note: fmt.Sprintf("final=%s", got.Status)}
}

func claimThroughput(ctx context.Context, r *Runner) Result {
    end := time.Now().Add(r.cfg.Duration)
    var claims, failures int64
    var wg sync.WaitGroup
    for w := 0; w < 4; w++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for time.Now().Before(end) && ctx.Err() == nil {
                o, err := r.newOrder(ctx)
                if err != nil {
                    atomic.AddInt64(&failures, 1)
                    continue
                }
                wins, _, err := r.raceClaims(ctx, o.ID)
                if err != nil || wins != 1 {
                    atomic.AddInt64(&failures, 1)
                    continue
                }
                atomic.AddInt64(&claims, 1)
            }
        }()
    }
    wg.Wait()

    if failures > 0 {
        return Result{Status: "FAIL", Note: fmt.Sprintf("claimed=%d failures=%d", claims, failures)}
    }
    return Result{Status: "PASS", Note: fmt.Sprintf("orders/s=%.1f", float64(claims)/r.cfg.Duration.Seconds())}
}

func otpLockout(ctx context.Context, r *Runner) Result {
    sink := notify.NewLogSink(zap.NewNop())
    svc := otp.NewService(otp.NewRedisStore(r.redis, time.Hour), sink, sink, zap.NewNop(),
        otp.WithCodeGenerator(func() (string, error) { return "246810", nil }))

    v, err := svc.Generate(ctx, otp.GenerateCommand{
        Type:     otp.TypePhone,
        Channels: otp.Channels{Phone: fmt.Sprintf("0300%07d", time.Now().UnixNano()%10_000_000)},
    })
    if err != nil {
        return Result{Status: "FAIL", Note: fmt.Sprintf("generate: %v", err)}
    }
    for i := 0; i < v.MaxAttempts; i++ {
        if _, err := svc.Verify(ctx, v.ID, "000000"); err == nil {
            return Result{Status: "FAIL", Note: "wrong code accepted"}
        }
    }
    if _, err := svc.Verify(ctx, v.ID, "246810"); !errors.Is(err, apperr.ErrAttemptsExhausted) {
        return Result{Status: "FAIL", Note: fmt.Sprintf("after %d misses: %v", v.MaxAttempts, err)}
    }
    return Result{Status: "PASS", Note: fmt.Sprintf("locked after %d attempts", v.MaxAttempts)}
}

func healthCheck(ctx context.Context, r *Runner, url string) Result {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil {
        return Result{Status: "FAIL", Note: err.Error()}
    }
    resp, err := r.httpc.Do(req)
    if err != nil {
        return Result{Status: "SKIP", Note: "api unreachable"}
    }
    _, _ = io.Copy(io.Discard, resp.Body)
    resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", resp.StatusCode)}
    }
    return Result{Status: "PASS"}
}

func percentiles(d []time.Duration) string {
    if len(d) == 0 {
        return ""
    }
    sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
    at := func(p float64) time.Duration { return d[int(p*float64(len(d)-1))] }
    return fmt.Sprintf("p50=%s p99=%s", at(0.50).Round(time.Microsecond), at(0.99).Round(time.Microsecond))
}
