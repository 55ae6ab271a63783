package secrets

import (
	"bytes"
	"strings"
	"testing"
)

func testKeys() map[string][]byte {
	return map[string][]byte{
		"k1": bytes.Repeat([]byte{0x11}, 32),
		"k2": bytes.Repeat([]byte{0x22}, 32),
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	kr, err := NewKeyring("k1", testKeys())
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}

	sealed, err := kr.Seal("sk-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected sealed token, got %q", sealed)
	}
	if !strings.HasPrefix(sealed, "enc:v1:k1:") {
		t.Fatalf("token missing key id: %q", sealed)
	}

	plain, err := kr.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "sk-secret" {
		t.Fatalf("expected sk-secret, got %q", plain)
	}
}

func TestSealEmptyStaysEmpty(t *testing.T) {
	kr, err := NewKeyring("k1", testKeys())
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	sealed, err := kr.Seal("")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed != "" {
		t.Fatalf("expected empty, got %q", sealed)
	}
}

func TestOpenPassesThroughPlaintext(t *testing.T) {
	kr, err := NewKeyring("k1", testKeys())
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	got, err := kr.Open("sk-legacy-plaintext")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "sk-legacy-plaintext" {
		t.Fatalf("plaintext should pass through, got %q", got)
	}
}

func TestResealMovesToCurrentKey(t *testing.T) {
	old, err := NewKeyring("k1", testKeys())
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	sealed, err := old.Seal("sk-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	rotated, err := NewKeyring("k2", testKeys())
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	resealed, err := rotated.Reseal(sealed)
	if err != nil {
		t.Fatalf("reseal: %v", err)
	}
	if !strings.HasPrefix(resealed, "enc:v1:k2:") {
		t.Fatalf("expected k2 token, got %q", resealed)
	}
	plain, err := rotated.Open(resealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "sk-secret" {
		t.Fatalf("expected sk-secret, got %q", plain)
	}
}

func TestOpenUnknownKeyFails(t *testing.T) {
	kr, err := NewKeyring("k1", map[string][]byte{"k1": bytes.Repeat([]byte{0x11}, 32)})
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	full, err := NewKeyring("k2", testKeys())
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	sealed, err := full.Seal("sk-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := kr.Open(sealed); err == nil {
		t.Fatal("expected error for unknown key id")
	}
}
