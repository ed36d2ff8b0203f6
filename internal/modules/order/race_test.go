// README: Concurrency tests for order transitions against PostgreSQL (run with -race).
package order

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "testing"

    "github.com/jackc/pgx/v5/pgxpool"

    "giftwave/internal/apperr"
    "giftwave/internal/modules/account"
    "giftwave/internal/types"
)

func newDBService(t *testing.T, riders int) (*Service, *memUsers) {
    t.Helper()
    store := setupTestStore(t)
    users := &memUsers{users: map[types.ID]*account.User{}}
    users.add(&account.User{ID: senderID, FullName: "Ayesha Malik", Phone: "3001234567", UserType: account.UserTypeSender})
    for i := 0; i < riders; i++ {
        id := types.ID(fmt.Sprintf("d%d", i))
        users.add(&account.User{ID: id, FullName: "Rider", Phone: "3111234567", UserType: account.UserTypeRider, RiderStatus: account.RiderApproved})
    }
    return NewService(store, users, nil, nil), users
}

func TestDBConcurrentClaimSameOrder(t *testing.T) {
    ctx := context.Background()
    const attempts = 8
    svc, _ := newDBService(t, attempts)

    o, err := svc.Create(ctx, validCreate())
    if err != nil {
        t.Fatalf("create order: %v", err)
    }

    start := make(chan struct{})
    var wg sync.WaitGroup
    errs := make(chan error, attempts)
    for i := 0; i < attempts; i++ {
        wg.Add(1)
        go func(rid types.ID) {
            defer wg.Done()
            <-start
            _, err := svc.Claim(ctx, ClaimCommand{OrderID: o.ID, RiderID: rid})
            errs <- err
        }(types.ID(fmt.Sprintf("d%d", i)))
    }
    close(start)
    wg.Wait()
    close(errs)

    success := 0
    for err := range errs {
        if err == nil {
            success++
            continue
        }
        if !errors.Is(err, apperr.ErrAlreadyClaimed) {
            t.Fatalf("unexpected error: %v", err)
        }
    }
    if success != 1 {
        t.Fatalf("expected exactly 1 success, got %d", success)
    }

    got, err := svc.Get(ctx, o.ID)
    if err != nil {
        t.Fatalf("get order: %v", err)
    }
    if got.Status != StatusAccepted || got.Rider == nil || got.Rider.ID == "" {
        t.Fatalf("unexpected final order: status=%s rider=%v", got.Status, got.Rider)
    }
    if got.StatusVersion != 1 {
        t.Fatalf("status_version = %d, want 1", got.StatusVersion)
    }
}

func TestDBConcurrentClaimVsCancel(t *testing.T) {
    ctx := context.Background()
    svc, _ := newDBService(t, 1)

    o, err := svc.Create(ctx, validCreate())
    if err != nil {
        t.Fatalf("create order: %v", err)
    }

    var wg sync.WaitGroup
    errs := make(chan error, 2)

    wg.Add(1)
    go func() {
        defer wg.Done()
        _, err := svc.Claim(ctx, ClaimCommand{OrderID: o.ID, RiderID: "d0"})
        errs <- err
    }()

    wg.Add(1)
    go func() {
        defer wg.Done()
        _, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, ActorID: senderID, Reason: "user_cancel"})
        errs <- err
    }()

    wg.Wait()
    close(errs)

    success := 0
    for err := range errs {
        if err == nil {
            success++
            continue
        }
        if !errors.Is(err, apperr.ErrInvalidState) {
            t.Fatalf("unexpected error: %v", err)
        }
    }
    if success < 1 {
        t.Fatalf("expected at least 1 success, got %d", success)
    }

    got, err := svc.Get(ctx, o.ID)
    if err != nil {
        t.Fatalf("get order: %v", err)
    }
    if success == 2 && got.Status != StatusCancelled {
        t.Fatalf("expected cancelled after claim+cancel, got %s", got.Status)
    }
    if got.Status != StatusAccepted && got.Status != StatusCancelled {
        t.Fatalf("unexpected final status: %s", got.Status)
    }
}

func TestDBFlowPersistsTotals(t *testing.T) {
    ctx := context.Background()
    svc, _ := newDBService(t, 1)

    o, err := svc.Create(ctx, validCreate())
    if err != nil {
        t.Fatalf("create order: %v", err)
    }
    if _, err := svc.Claim(ctx, ClaimCommand{OrderID: o.ID, RiderID: "d0"}); err != nil {
        t.Fatalf("claim: %v", err)
    }
    if _, err := svc.ConfirmActualPrice(ctx, ConfirmPriceCommand{OrderID: o.ID, RiderID: "d0", ActualPrice: 2150}); err != nil {
        t.Fatalf("confirm price: %v", err)
    }
    got, err := svc.Get(ctx, o.ID)
    if err != nil {
        t.Fatalf("get order: %v", err)
    }
    if got.Status != StatusPurchased || got.TotalAmount.Amount != 2550 || got.ActualPrice == nil {
        t.Fatalf("persisted order: status=%s total=%d", got.Status, got.TotalAmount.Amount)
    }
    if _, err := svc.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
        t.Fatalf("get missing: %v", err)
    }
}

func setupTestStore(t *testing.T) *Store {
    t.Helper()

    dsn := os.Getenv("GIFTWAVE_TEST_DSN")
    if dsn == "" {
        t.Skip("GIFTWAVE_TEST_DSN not set; skipping DB-backed race tests")
    }

    ctx := context.Background()
    db, err := pgxpool.New(ctx, dsn)
    if err != nil {
        t.Fatalf("connect db: %v", err)
    }
    t.Cleanup(func() { db.Close() })

    if err := applyMigration(ctx, db); err != nil {
        t.Fatalf("apply migration: %v", err)
    }

    if _, err := db.Exec(ctx, "TRUNCATE TABLE order_state_events, orders"); err != nil {
        t.Fatalf("truncate tables: %v", err)
    }

    return NewStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
    root, err := repoRoot()
    if err != nil {
        return err
    }
    content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
    if err != nil {
        return err
    }
    for _, stmt := range splitSQL(stripSQLComments(string(content))) {
        if _, err := db.Exec(ctx, stmt); err != nil {
            return err
        }
    }
    return nil
}

func repoRoot() (string, error) {
    dir, err := os.Getwd()
    if err != nil {
        return "", err
    }
    for i := 0; i < 6; i++ {
        if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
            return dir, nil
        }
        parent := filepath.Dir(dir)
        if parent == dir {
            break
        }
        dir = parent
    }
    return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
    var b strings.Builder
    scanner := bufio.NewScanner(strings.NewReader(input))
    for scanner.Scan() {
        line := strings.TrimSpace(scanner.Text())
        if line == "" || strings.HasPrefix(line, "--") {
            continue
        }
        b.WriteString(scanner.Text())
        b.WriteString("\n")
    }
    return b.String()
}

func splitSQL(input string) []string {
    parts := strings.Split(input, ";")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        stmt := strings.TrimSpace(p)
        if stmt == "" {
            continue
        }
        out = append(out, stmt)
    }
    return out
}
