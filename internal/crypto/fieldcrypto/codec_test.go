package fieldcrypto

import (
	"bytes"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	t.Parallel()
	k1 := DeriveKey("owner-1")
	k2 := DeriveKey("owner-1")
	if !bytes.Equal(k1, k2) {
		t.Fatalf("DeriveKey not deterministic")
	}
	if len(k1) != keyLen {
		t.Fatalf("key len=%d, want %d", len(k1), keyLen)
	}
	if bytes.Equal(k1, DeriveKey("owner-2")) {
		t.Fatalf("keys for different owners must differ")
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()
	c := New("owner-rt", nil)
	if c.Degraded() {
		t.Fatalf("codec unexpectedly degraded")
	}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"number", 2.5, 2.5},
		{"integer-ish", float64(4), float64(4)},
		{"string", "Mathe", "Mathe"},
		{"object", map[string]any{"a": 1.0}, map[string]any{"a": 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, err := c.Encrypt(tt.in)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			got := c.Decrypt(field)
			switch want := tt.want.(type) {
			case map[string]any:
				gm, ok := got.(map[string]any)
				if !ok || gm["a"] != want["a"] {
					t.Fatalf("roundtrip object mismatch: %#v", got)
				}
			default:
				if got != tt.want {
					t.Fatalf("roundtrip: got %#v, want %#v", got, tt.want)
				}
			}
		})
	}
}

func TestCodec_NonDeterministic(t *testing.T) {
	t.Parallel()
	c := New("owner-nonce", nil)
	a, err := c.Encrypt(3.7)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt(3.7)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Fatalf("two encryptions of the same value must differ (nonce freshness)")
	}
}

func TestCodec_WrongKeyFallsBack(t *testing.T) {
	t.Parallel()
	enc := New("owner-a", nil)
	dec := New("owner-b", nil)

	field, err := enc.Encrypt(1.7)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	// Wrong key: AEAD fails, JSON fails (random base64), raw string returned.
	got := dec.Decrypt(field)
	if got != field {
		t.Fatalf("fallback should return the raw field string, got %#v", got)
	}
	if n := dec.DecryptNumber(field); n != 0 {
		t.Fatalf("numeric fallback should be 0, got %v", n)
	}
}

func TestCodec_LegacyPlaintextFallback(t *testing.T) {
	t.Parallel()
	c := New("owner-legacy", nil)

	if got := c.DecryptNumber("2.5"); got != 2.5 {
		t.Fatalf("legacy plaintext number: got %v, want 2.5", got)
	}
	if got := c.Decrypt(`{"x":true}`); got == nil {
		t.Fatalf("legacy JSON object should parse")
	}
	// Deterministic: same malformed input, same result.
	if a, b := c.Decrypt("not ciphertext"), c.Decrypt("not ciphertext"); a != b {
		t.Fatalf("fallback not deterministic: %#v vs %#v", a, b)
	}
}

func TestCodec_EmptyAndNil(t *testing.T) {
	t.Parallel()
	c := New("owner-empty", nil)

	field, err := c.Encrypt(nil)
	if err != nil || field != "" {
		t.Fatalf("Encrypt(nil) = %q, %v; want empty no-op", field, err)
	}
	if v := c.Decrypt(""); v != nil {
		t.Fatalf("Decrypt empty = %#v, want nil", v)
	}
	if n := c.DecryptNumber(""); n != 0 {
		t.Fatalf("DecryptNumber empty = %v, want 0", n)
	}
}

func TestCodec_DegradedMode(t *testing.T) {
	t.Parallel()
	c := NewPlaintext(nil)
	if !c.Degraded() {
		t.Fatalf("plaintext codec must report degraded")
	}

	field, err := c.Encrypt(4.3)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if field != "4.3" {
		t.Fatalf("degraded encrypt should emit plain JSON, got %q", field)
	}
	if got := c.DecryptNumber(field); got != 4.3 {
		t.Fatalf("degraded decrypt = %v, want 4.3", got)
	}

	// A strong codec can still read what a degraded one wrote.
	strong := New("owner-mixed", nil)
	if got := strong.DecryptNumber(field); got != 4.3 {
		t.Fatalf("strong codec reading plaintext = %v, want 4.3", got)
	}
}

func TestNewWithKey_RejectsBadKey(t *testing.T) {
	t.Parallel()
	if _, err := NewWithKey([]byte("short"), nil); err == nil {
		t.Fatalf("want error for invalid key length")
	}
	c, err := NewWithKey(DeriveKey("owner-k"), nil)
	if err != nil {
		t.Fatalf("NewWithKey: %v", err)
	}
	f, err := c.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if got := c.Decrypt(f); got != "hello" {
		t.Fatalf("roundtrip via NewWithKey: %#v", got)
	}
}
