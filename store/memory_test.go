package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func hashByte(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func seedRecord(t *testing.T, m *Memory, userID, familyID string, hash [32]byte, ttl time.Duration) *Record {
	t.Helper()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      "student",
		FamilyID:  familyID,
		TokenHash: hash,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := m.Create(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return rec
}

func TestRotateHappyPath(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := seedRecord(t, m, "u1", "f1", hashByte(1), time.Hour)

	next := NewHead{ID: uuid.NewString(), TokenHash: hashByte(2), ExpiresAt: time.Now().Add(time.Hour)}
	old, created, status, err := m.Rotate(ctx, rec.ID, hashByte(1), next)
	if err != nil || status != RotateOK {
		t.Fatalf("rotate failed: status=%v err=%v", status, err)
	}
	if old.RevokedAt == nil {
		t.Fatal("old head not revoked")
	}
	if created.FamilyID != "f1" || created.UserID != "u1" || created.Role != "student" {
		t.Fatalf("new head did not inherit family fields: %+v", created)
	}

	// Old record remains readable for reuse detection.
	stored, err := m.GetByID(ctx, rec.ID)
	if err != nil || stored == nil || stored.RevokedAt == nil {
		t.Fatalf("old record lost after rotation: %+v err=%v", stored, err)
	}
}

func TestRotateStatuses(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	live := seedRecord(t, m, "u1", "f1", hashByte(1), time.Hour)
	expired := seedRecord(t, m, "u1", "f2", hashByte(2), -time.Minute)

	next := func() NewHead {
		return NewHead{ID: uuid.NewString(), TokenHash: hashByte(9), ExpiresAt: time.Now().Add(time.Hour)}
	}

	if _, _, status, _ := m.Rotate(ctx, uuid.NewString(), hashByte(1), next()); status != RotateNotFound {
		t.Fatalf("unknown id: got %v", status)
	}
	if _, _, status, _ := m.Rotate(ctx, live.ID, hashByte(7), next()); status != RotateHashMismatch {
		t.Fatalf("wrong secret: got %v", status)
	}
	if old, _, status, _ := m.Rotate(ctx, expired.ID, hashByte(2), next()); status != RotateExpired || old == nil {
		t.Fatalf("expired head: got %v", status)
	}

	// First rotation wins, second observes the revocation.
	head := NewHead{ID: uuid.NewString(), TokenHash: hashByte(3), ExpiresAt: time.Now().Add(time.Hour)}
	if _, _, status, err := m.Rotate(ctx, live.ID, hashByte(1), head); status != RotateOK || err != nil {
		t.Fatalf("first rotation: status=%v err=%v", status, err)
	}
	old, _, status, _ := m.Rotate(ctx, live.ID, hashByte(1), next())
	if status != RotateRevoked {
		t.Fatalf("replayed rotation: got %v", status)
	}
	if old.FamilyID != "f1" {
		t.Fatal("reuse signal lost the family id")
	}
}

func TestFamilyInvariantUnderConcurrentRotation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := seedRecord(t, m, "u1", "f1", hashByte(1), time.Hour)

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			next := NewHead{
				ID:        uuid.NewString(),
				TokenHash: hashByte(byte(100 + i)),
				ExpiresAt: time.Now().Add(time.Hour),
			}
			if _, _, status, err := m.Rotate(ctx, rec.ID, hashByte(1), next); status == RotateOK && err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	if got := len(wins); got != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", got)
	}

	heads, err := m.ListActiveByUser(ctx, "u1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(heads) != 1 {
		t.Fatalf("family has %d live heads, want 1", len(heads))
	}
}

func TestRevokeScopes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	a := seedRecord(t, m, "u1", "fa", hashByte(1), time.Hour)
	seedRecord(t, m, "u1", "fb", hashByte(2), time.Hour)
	seedRecord(t, m, "u2", "fc", hashByte(3), time.Hour)

	changed, err := m.RevokeByID(ctx, a.ID, now)
	if err != nil || !changed {
		t.Fatalf("revoke by id: changed=%v err=%v", changed, err)
	}
	// Idempotent on re-revoke.
	if changed, _ := m.RevokeByID(ctx, a.ID, now); changed {
		t.Fatal("second revoke reported a transition")
	}

	heads, _ := m.ListActiveByUser(ctx, "u1", now)
	if len(heads) != 1 || heads[0].FamilyID != "fb" {
		t.Fatalf("unexpected live heads after single revoke: %+v", heads)
	}

	n, err := m.RevokeAllForUser(ctx, "u1", now)
	if err != nil || n != 1 {
		t.Fatalf("revoke all: n=%d err=%v", n, err)
	}
	if heads, _ := m.ListActiveByUser(ctx, "u2", now); len(heads) != 1 {
		t.Fatal("other user's session was affected")
	}
}

func TestPruneExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedRecord(t, m, "u1", "fa", hashByte(1), -48*time.Hour)
	keep := seedRecord(t, m, "u1", "fb", hashByte(2), time.Hour)

	n, err := m.PruneExpired(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
	if rec, _ := m.GetByID(ctx, keep.ID); rec == nil {
		t.Fatal("unexpired record was pruned")
	}
}

func TestCreateRejectsDuplicateHash(t *testing.T) {
	m := NewMemory()
	seedRecord(t, m, "u1", "fa", hashByte(1), time.Hour)

	err := m.Create(context.Background(), &Record{
		ID:        uuid.NewString(),
		UserID:    "u2",
		FamilyID:  "fb",
		TokenHash: hashByte(1),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err == nil {
		t.Fatal("expected duplicate hash rejection")
	}
}
