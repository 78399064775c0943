package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-process Store. Rotation atomicity comes from
// holding the lock across the check-revoke-insert sequence, giving the same
// exactly-one-winner guarantee as the SQL compare-and-set.
type Memory struct {
	mu      sync.Mutex
	byID    map[string]*Record
	hashSet map[[32]byte]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]*Record),
		hashSet: make(map[[32]byte]struct{}),
	}
}

func (m *Memory) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[rec.ID]; ok {
		return errors.New("memory store: duplicate record id")
	}
	if _, ok := m.hashSet[rec.TokenHash]; ok {
		return errors.New("memory store: duplicate token hash")
	}

	cp := *rec
	m.byID[rec.ID] = &cp
	m.hashSet[rec.TokenHash] = struct{}{}
	return nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) Rotate(_ context.Context, id string, presented [32]byte, next NewHead) (*Record, *Record, RotateStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.byID[id]
	if !ok {
		return nil, nil, RotateNotFound, nil
	}
	if old.TokenHash != presented {
		return nil, nil, RotateHashMismatch, nil
	}
	if old.RevokedAt != nil {
		cp := *old
		return &cp, nil, RotateRevoked, nil
	}
	now := time.Now()
	if !now.Before(old.ExpiresAt) {
		cp := *old
		return &cp, nil, RotateExpired, nil
	}
	if _, dup := m.hashSet[next.TokenHash]; dup {
		return nil, nil, RotateOK, errors.New("memory store: duplicate token hash")
	}

	at := now
	old.RevokedAt = &at

	created := &Record{
		ID:         next.ID,
		UserID:     old.UserID,
		Role:       old.Role,
		FamilyID:   old.FamilyID,
		TokenHash:  next.TokenHash,
		DeviceInfo: old.DeviceInfo,
		UserAgent:  old.UserAgent,
		IP:         old.IP,
		CreatedAt:  now,
		ExpiresAt:  next.ExpiresAt,
	}
	m.byID[created.ID] = created
	m.hashSet[created.TokenHash] = struct{}{}

	oldCp := *old
	newCp := *created
	return &oldCp, &newCp, RotateOK, nil
}

func (m *Memory) RevokeByID(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok || rec.RevokedAt != nil || !at.Before(rec.ExpiresAt) {
		return false, nil
	}
	t := at
	rec.RevokedAt = &t
	return true, nil
}

func (m *Memory) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, rec := range m.byID {
		if rec.FamilyID == familyID && rec.RevokedAt == nil {
			t := at
			rec.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func (m *Memory) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, rec := range m.byID {
		if rec.UserID == userID && rec.RevokedAt == nil {
			t := at
			rec.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Record
	for _, rec := range m.byID {
		if rec.UserID == userID && rec.Live(now) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PruneExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.byID {
		if rec.ExpiresAt.Before(before) {
			delete(m.byID, id)
			delete(m.hashSet, rec.TokenHash)
			n++
		}
	}
	return n, nil
}

var _ Store = (*Memory)(nil)
