package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodHS256,
		Secret:        testSecret,
		Issuer:        "campusgate-test",
	})
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}
	return m
}

func TestMintVerifyRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Minute)

	signed, err := m.Mint("user-1", "teacher")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	uid, role, err := m.Verify(signed)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if uid != "user-1" || role != "teacher" {
		t.Fatalf("claims mismatch: uid=%q role=%q", uid, role)
	}
}

func TestVerifyExpired(t *testing.T) {
	m := newTestManager(t, time.Millisecond)

	signed, err := m.Mint("user-1", "student")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, _, err := m.Verify(signed); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	m := newTestManager(t, time.Minute)
	other, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		Secret:        []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "campusgate-test",
	})
	if err != nil {
		t.Fatal(err)
	}

	signed, err := other.Mint("user-1", "student")
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := m.Verify(signed); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	m := newTestManager(t, time.Minute)

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, _, err := m.Verify(tok); !errors.Is(err, ErrInvalid) {
			t.Errorf("token %q: expected ErrInvalid, got %v", tok, err)
		}
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("manager construction failed: %v", err)
	}

	signed, err := m.Mint("user-2", "admin")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	uid, role, err := m.Verify(signed)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if uid != "user-2" || role != "admin" {
		t.Fatalf("claims mismatch: uid=%q role=%q", uid, role)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, Secret: testSecret},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256},
		{AccessTTL: time.Minute, SigningMethod: "rs256", Secret: testSecret},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, Secret: testSecret, Leeway: 5 * time.Minute},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Errorf("case %d: expected configuration error", i)
		}
	}
}
