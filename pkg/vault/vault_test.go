package vault

import (
	"encoding/base64"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New("a-master-key-that-is-not-32-bytes")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	sealed, err := v.Encrypt("sk-test-12345", map[string]string{"note": "primary"})
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if sealed.Envelope.KeyID != currentKeyID {
		t.Errorf("Envelope.KeyID = %q, want %q", sealed.Envelope.KeyID, currentKeyID)
	}
	if sealed.KeyID == "" {
		t.Error("Sealed.KeyID should be non-empty")
	}

	got, err := v.Decrypt(sealed.Envelope)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if got.APIKey != "sk-test-12345" {
		t.Errorf("Decrypt().APIKey = %q, want %q", got.APIKey, "sk-test-12345")
	}
	if got.KeyID != sealed.KeyID {
		t.Errorf("Decrypt().KeyID = %q, want %q", got.KeyID, sealed.KeyID)
	}
	if got.Metadata["note"] != "primary" {
		t.Errorf("Decrypt().Metadata[note] = %q, want %q", got.Metadata["note"], "primary")
	}
	if got.EncryptedAt.IsZero() {
		t.Error("Decrypt().EncryptedAt should not be zero")
	}
}

func TestEncryptMintsDistinctKeyIDsPerCall(t *testing.T) {
	v, _ := New("master-key")

	a, err := v.Encrypt("sk-a", nil)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	b, err := v.Encrypt("sk-b", nil)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	if a.KeyID == b.KeyID {
		t.Errorf("two credentials sealed by the same vault got the same KeyID %q", a.KeyID)
	}
	// Both share the same vault master key id, since neither call rotated.
	if a.Envelope.KeyID != b.Envelope.KeyID {
		t.Errorf("Envelope.KeyID should match across calls under the same master key: %q vs %q", a.Envelope.KeyID, b.Envelope.KeyID)
	}
}

func TestEncryptWithExact32ByteKey(t *testing.T) {
	v, err := New("01234567890123456789012345678901") // exactly 32 bytes
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	sealed, err := v.Encrypt("secret", nil)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	got, err := v.Decrypt(sealed.Envelope)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if got.APIKey != "secret" {
		t.Errorf("Decrypt().APIKey = %q, want %q", got.APIKey, "secret")
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	v, _ := New("master-key")
	sealed, _ := v.Encrypt("secret", nil)

	raw, err := base64.StdEncoding.DecodeString(sealed.Envelope.Ciphertext)
	if err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	sealed.Envelope.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	if _, err := v.Decrypt(sealed.Envelope); err == nil {
		t.Error("Decrypt() of tampered ciphertext should fail")
	}
}

func TestEnvelopeLayoutIsNonceTagCiphertext(t *testing.T) {
	v, _ := New("master-key")
	sealed, err := v.Encrypt("secret", nil)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed.Envelope.Ciphertext)
	if err != nil {
		t.Fatalf("envelope is not valid base64: %v", err)
	}
	// 12-byte GCM nonce, 16-byte tag, then at least one ciphertext byte.
	if len(raw) <= 12+gcmTagSize {
		t.Errorf("envelope too short: %d bytes", len(raw))
	}
}

func TestDecryptUnknownKeyIDFails(t *testing.T) {
	v, _ := New("master-key")
	sealed, _ := v.Encrypt("secret", nil)
	sealed.Envelope.KeyID = "does-not-exist"

	if _, err := v.Decrypt(sealed.Envelope); err != ErrKeyNotFound {
		t.Errorf("Decrypt() error = %v, want %v", err, ErrKeyNotFound)
	}
}

func TestWithRotatedKeyDecryptsOldEnvelopes(t *testing.T) {
	v1, _ := New("master-key-one")
	oldSealed, err := v1.Encrypt("secret", nil)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	v2, err := v1.WithRotatedKey("v2", "master-key-two")
	if err != nil {
		t.Fatalf("WithRotatedKey() error: %v", err)
	}

	got, err := v2.Decrypt(oldSealed.Envelope)
	if err != nil {
		t.Fatalf("Decrypt() of pre-rotation envelope error: %v", err)
	}
	if got.APIKey != "secret" {
		t.Errorf("Decrypt().APIKey = %q, want %q", got.APIKey, "secret")
	}

	newSealed, err := v2.Encrypt("secret-two", nil)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if newSealed.Envelope.KeyID != "v2" {
		t.Errorf("new envelope KeyID = %q, want %q", newSealed.Envelope.KeyID, "v2")
	}
}

func TestRotatePreservesPlaintext(t *testing.T) {
	v1, _ := New("master-key-one")
	oldSealed, err := v1.Encrypt("sk-rotate-me", map[string]string{"note": "rotate"})
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	rotated, err := Rotate(oldSealed.Envelope, "master-key-one", "v2", "master-key-two")
	if err != nil {
		t.Fatalf("Rotate() error: %v", err)
	}
	if rotated.KeyID != "v2" {
		t.Errorf("rotated KeyID = %q, want %q", rotated.KeyID, "v2")
	}

	v2, _ := New("master-key-two")
	v2.activeID = "v2"
	v2.keys["v2"] = v2.keys[currentKeyID]

	got, err := v2.Decrypt(rotated)
	if err != nil {
		t.Fatalf("Decrypt() of rotated envelope error: %v", err)
	}
	if got.APIKey != "sk-rotate-me" {
		t.Errorf("Decrypt().APIKey = %q, want %q", got.APIKey, "sk-rotate-me")
	}
	if got.KeyID != oldSealed.KeyID {
		t.Errorf("rotation must preserve the per-credential KeyID: got %q, want %q", got.KeyID, oldSealed.KeyID)
	}
	if got.Metadata["note"] != "rotate" {
		t.Errorf("rotation must preserve metadata: got %q, want %q", got.Metadata["note"], "rotate")
	}
}

func TestRotateRejectsWrongOldKey(t *testing.T) {
	v1, _ := New("master-key-one")
	sealed, _ := v1.Encrypt("secret", nil)

	if _, err := Rotate(sealed.Envelope, "wrong-old-key", "v2", "master-key-two"); err == nil {
		t.Error("Rotate() with wrong old master key should fail")
	}
}

func TestFingerprintIsDeterministicAndNonReversible(t *testing.T) {
	a := Fingerprint("sk-abc123")
	b := Fingerprint("sk-abc123")
	c := Fingerprint("sk-different")

	if a != b {
		t.Error("Fingerprint should be deterministic for the same input")
	}
	if a == c {
		t.Error("Fingerprint should differ for different inputs")
	}
	if len(a) != 16 { // 8 bytes hex-encoded
		t.Errorf("Fingerprint length = %d, want 16", len(a))
	}
}
