package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestSealOpen(t *testing.T) {
	svc, err := New(strings.Repeat("a", 64))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sealed, err := svc.Seal("smtp-password")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("smtp-password")) {
		t.Fatal("sealed value contains plaintext")
	}
	plain, err := svc.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "smtp-password" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestOpenRejectsTamperedValue(t *testing.T) {
	svc, _ := New(strings.Repeat("b", 32))
	sealed, _ := svc.Seal("secret")
	sealed[len(sealed)-1] ^= 0xff
	if _, err := svc.Open(sealed); err == nil {
		t.Fatal("expected tampered value to fail")
	}
	if _, err := svc.Open([]byte{1, 2}); err != ErrCiphertextTooShort {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New("short"); err == nil {
		t.Fatal("expected short key to fail")
	}
}

func TestUnconfiguredPassThrough(t *testing.T) {
	svc, _ := New("")
	sealed, _ := svc.Seal("x")
	plain, _ := svc.Open(sealed)
	if plain != "x" || svc.Configured() {
		t.Fatalf("unexpected pass-through result %q", plain)
	}
}

func TestMask(t *testing.T) {
	if got := Mask("password"); got != "********rd" {
		t.Fatalf("unexpected mask %q", got)
	}
	if Mask("") != "" {
		t.Fatal("empty secret should stay empty")
	}
}
