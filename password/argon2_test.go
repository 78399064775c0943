package password

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := New(Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := testHasher(t)

	hash, err := h.Hash("correct horse 9")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash is not PHC argon2id: %q", hash)
	}

	ok, err := h.Verify("correct horse 9", hash)
	if err != nil || !ok {
		t.Errorf("verify of correct password: ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong password!", hash)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("wrong password verified")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := testHasher(t)
	a, err := h.Hash("correct horse 9")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Hash("correct horse 9")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestVerifyUsesEncodedParameters(t *testing.T) {
	weak := testHasher(t)
	hash, err := weak.Hash("correct horse 9")
	if err != nil {
		t.Fatal(err)
	}

	// A hasher configured with different costs still verifies old hashes.
	strong, err := New(Config{
		Memory: 16 * 1024, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := strong.Verify("correct horse 9", hash)
	if err != nil || !ok {
		t.Errorf("cross-config verify: ok=%v err=%v", ok, err)
	}
}

func TestHashRejectsShortPasswords(t *testing.T) {
	h := testHasher(t)
	if _, err := h.Hash("short"); err == nil {
		t.Error("7-byte password accepted")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := testHasher(t)
	for _, encoded := range []string{
		"",
		"not a hash",
		"$argon2i$v=19$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
		"$argon2id$v=18$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
		"$argon2id$v=19$m=8192,t=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$AAAA",
		"$argon2id$v=19$m=0,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAA",
	} {
		if _, err := h.Verify("whatever password", encoded); err == nil {
			t.Errorf("malformed hash accepted: %q", encoded)
		}
	}
}

func TestNewRejectsWeakParameters(t *testing.T) {
	for name, cfg := range map[string]Config{
		"low memory": {Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		"zero time":  {Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		"no threads": {Memory: 8192, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		"tiny salt":  {Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
		"short key":  {Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	} {
		if _, err := New(cfg); err == nil {
			t.Errorf("%s accepted", name)
		}
	}
}
