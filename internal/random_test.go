package internal

import "testing"

func TestNewSecretTokenShapeAndHash(t *testing.T) {
	a, err := NewSecretToken()
	if err != nil {
		t.Fatalf("NewSecretToken: %v", err)
	}
	b, err := NewSecretToken()
	if err != nil {
		t.Fatalf("NewSecretToken: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens")
	}
	if err := ValidSecretToken(a); err != nil {
		t.Fatalf("expected valid token: %v", err)
	}

	ha := HashToken(a)
	if len(ha) != 64 || ha == a {
		t.Fatalf("unexpected digest %q", ha)
	}
	if !EqualHash(ha, HashToken(a)) {
		t.Fatal("digest must be deterministic")
	}
	if EqualHash(ha, HashToken(b)) {
		t.Fatal("different tokens must not match")
	}
	if EqualHash("", "") {
		t.Fatal("empty digests must never match")
	}
}

func TestValidSecretTokenRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "zz" + string(make([]byte, 62))} {
		if err := ValidSecretToken(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}
