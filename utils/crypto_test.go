package utils

import (
	"encoding/base64"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// 32 zero bytes is fine for tests; the key loader only checks size.
	os.Setenv("CREDENTIALS_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	os.Exit(m.Run())
}

func TestSealOpenRoundTrip(t *testing.T) {
	secrets := []string{"", "refresh-token-1", "a much longer secret with spaces and ünïcode"}
	for _, secret := range secrets {
		sealed, err := SealSecret(secret)
		if err != nil {
			t.Fatalf("SealSecret(%q) error: %v", secret, err)
		}
		if sealed == secret && secret != "" {
			t.Fatal("sealed output must not equal the plaintext")
		}
		opened, err := OpenSecret(sealed)
		if err != nil {
			t.Fatalf("OpenSecret error: %v", err)
		}
		if opened != secret {
			t.Fatalf("round trip mismatch: %q != %q", opened, secret)
		}
	}
}

func TestSealSecret_NoncesAreUnique(t *testing.T) {
	a, err := SealSecret("same input")
	if err != nil {
		t.Fatalf("SealSecret error: %v", err)
	}
	b, err := SealSecret("same input")
	if err != nil {
		t.Fatalf("SealSecret error: %v", err)
	}
	if a == b {
		t.Fatal("sealing the same input twice must produce different ciphertexts")
	}
}

func TestOpenSecret_RejectsTamperedInput(t *testing.T) {
	sealed, err := SealSecret("refresh-token")
	if err != nil {
		t.Fatalf("SealSecret error: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := OpenSecret(tampered); err == nil {
		t.Fatal("tampered ciphertext must fail authentication")
	}
}

func TestOpenSecret_RejectsGarbage(t *testing.T) {
	if _, err := OpenSecret("not base64!!"); err == nil {
		t.Fatal("invalid base64 must error")
	}
	if _, err := OpenSecret(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("truncated input must error")
	}
}
