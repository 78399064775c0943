package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, "rl-test"), mr
}

func TestAdmitWithinBudget(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Max: 10, Window: time.Minute}

	for i := 0; i < 10; i++ {
		if err := l.Admit(ctx, "login", "10.0.0.1", rule); err != nil {
			t.Fatalf("attempt %d unexpectedly denied: %v", i+1, err)
		}
	}
}

func TestEleventhAttemptDenied(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Max: 10, Window: time.Minute}

	for i := 0; i < 10; i++ {
		if err := l.Admit(ctx, "login", "10.0.0.1", rule); err != nil {
			t.Fatalf("attempt %d unexpectedly denied: %v", i+1, err)
		}
	}

	err := l.Admit(ctx, "login", "10.0.0.1", rule)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.RetryAfter <= 0 || denied.RetryAfter > time.Minute {
		t.Fatalf("implausible retry-after: %s", denied.RetryAfter)
	}
}

func TestWindowExpiryResetsBudget(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Max: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		if err := l.Admit(ctx, "refresh", "fam-1", rule); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Admit(ctx, "refresh", "fam-1", rule); err == nil {
		t.Fatal("expected denial at budget")
	}

	mr.FastForward(2 * time.Minute)

	if err := l.Admit(ctx, "refresh", "fam-1", rule); err != nil {
		t.Fatalf("new window unexpectedly denied: %v", err)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Max: 1, Window: time.Minute}

	if err := l.Admit(ctx, "login", "a@example.com", rule); err != nil {
		t.Fatal(err)
	}
	if err := l.Admit(ctx, "login", "a@example.com", rule); err == nil {
		t.Fatal("expected denial for exhausted key")
	}
	if err := l.Admit(ctx, "login", "b@example.com", rule); err != nil {
		t.Fatalf("unrelated key denied: %v", err)
	}
	if err := l.Admit(ctx, "refresh", "a@example.com", rule); err != nil {
		t.Fatalf("unrelated route denied: %v", err)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Max: 1, Window: time.Minute}

	if err := l.Admit(ctx, "login", "a@example.com", rule); err != nil {
		t.Fatal(err)
	}
	if err := l.Reset(ctx, "login", "a@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := l.Admit(ctx, "login", "a@example.com", rule); err != nil {
		t.Fatalf("reset did not clear the counter: %v", err)
	}
}

func TestBackendDownSurfacesUnavailable(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	err := l.Admit(context.Background(), "login", "x", Rule{Max: 1, Window: time.Minute})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
