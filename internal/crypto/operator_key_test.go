package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSealUnsealRoundTrip(t *testing.T) {
	sealed, err := SealKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := UnsealKey(sealed, "hunter2")
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if got != testKeyHex {
		t.Fatalf("unsealed key = %s, want %s", got, testKeyHex)
	}
}

func TestUnsealWrongPassword(t *testing.T) {
	sealed, err := SealKey(testKeyHex, "correct")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := UnsealKey(sealed, "wrong"); err == nil {
		t.Fatal("unseal with wrong password succeeded")
	}
}

func TestSealRejectsBadKey(t *testing.T) {
	if _, err := SealKey("not-hex", "pw"); err == nil {
		t.Fatal("seal accepted non-hex key")
	}
	if _, err := SealKey("abcd", "pw"); err == nil {
		t.Fatal("seal accepted short key")
	}
	if _, err := SealKey(testKeyHex, ""); err == nil {
		t.Fatal("seal accepted empty password")
	}
}

func TestResolveOperatorKey(t *testing.T) {
	t.Run("raw hex wins", func(t *testing.T) {
		got, err := ResolveOperatorKey(KeySource{RawHex: "0x" + testKeyHex, SealedPath: "/nonexistent"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got != testKeyHex {
			t.Fatalf("key = %s, want %s", got, testKeyHex)
		}
	})

	t.Run("sealed file", func(t *testing.T) {
		sealed, err := SealKey(testKeyHex, "pw")
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		path := filepath.Join(t.TempDir(), "operator.json")
		if err := os.WriteFile(path, sealed, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}

		got, err := ResolveOperatorKey(KeySource{SealedPath: path, Password: "pw"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got != testKeyHex {
			t.Fatalf("key = %s, want %s", got, testKeyHex)
		}
	})

	t.Run("no source", func(t *testing.T) {
		_, err := ResolveOperatorKey(KeySource{})
		if err == nil || !strings.Contains(err.Error(), "no operator key source") {
			t.Fatalf("resolve err = %v, want no-source error", err)
		}
	})
}
