package tokenauth

import "testing"

func TestGenerateParseRoundTrip(t *testing.T) {
	g, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !HasPrefix(g.Raw) {
		t.Errorf("Raw %q should have prefix %q", g.Raw, Prefix)
	}

	parsed, err := Parse(g.Raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.PublicID != g.PublicID {
		t.Errorf("PublicID = %q, want %q", parsed.PublicID, g.PublicID)
	}
	if !HasPrefix(parsed.PublicID) {
		t.Errorf("PublicID %q should keep the wire prefix for the indexed lookup", parsed.PublicID)
	}
	if len(parsed.PublicID) != len(Prefix)+2*publicIDBytes {
		t.Errorf("PublicID length = %d, want %d", len(parsed.PublicID), len(Prefix)+2*publicIDBytes)
	}
	if parsed.Secret != g.Secret {
		t.Errorf("Secret = %q, want %q", parsed.Secret, g.Secret)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{"", "not-a-pat", "pat_", "pat_onlyid", "pat__emptyid"}
	for _, c := range cases {
		if _, err := Parse(c); err != ErrMalformed {
			t.Errorf("Parse(%q) error = %v, want %v", c, err, ErrMalformed)
		}
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	g, _ := Generate()
	hash, err := Hash(g.Raw)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if !Verify(hash, g.Raw) {
		t.Error("Verify() should accept the original raw token")
	}
	if Verify(hash, g.Raw+"x") {
		t.Error("Verify() should reject a tampered token")
	}
}

func TestTwoTokensNeverCollide(t *testing.T) {
	a, _ := Generate()
	b, _ := Generate()
	if a.Raw == b.Raw {
		t.Fatal("two generated tokens must not be identical")
	}
	hashA, _ := Hash(a.Raw)
	if Verify(hashA, b.Raw) {
		t.Error("Verify() must not accept a different token's raw string")
	}
}
