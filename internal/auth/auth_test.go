package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func signedToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	b := jwt.NewBuilder().
		Issuer("test").
		IssuedAt(time.Now())
	for k, v := range claims {
		b = b.Claim(k, v)
	}
	tok, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	if err != nil {
		t.Fatal(err)
	}
	return string(signed)
}

func TestParseEmptyTokenIsGuest(t *testing.T) {
	p := NewParser()
	for _, raw := range []string{"", "   "} {
		id, err := p.Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		if id.Authenticated {
			t.Errorf("Parse(%q).Authenticated = true", raw)
		}
		if id.Name != GuestName {
			t.Errorf("Parse(%q).Name = %q, want %q", raw, id.Name, GuestName)
		}
		if id.Token != "" {
			t.Errorf("Parse(%q).Token = %q, want empty", raw, id.Token)
		}
	}
}

func TestParseExtractsName(t *testing.T) {
	raw := signedToken(t, map[string]any{"name": "Alex Tan"})

	id, err := NewParser().Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !id.Authenticated {
		t.Error("Authenticated = false")
	}
	if id.Name != "Alex Tan" {
		t.Errorf("Name = %q, want Alex Tan", id.Name)
	}
	if id.Token != raw {
		t.Error("raw token not preserved")
	}
}

func TestParseMissingNameClaim(t *testing.T) {
	raw := signedToken(t, map[string]any{"sub": "user-1"})

	id, err := NewParser().Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !id.Authenticated {
		t.Error("Authenticated = false for valid token without name")
	}
	if id.Name != GuestName {
		t.Errorf("Name = %q, want %q", id.Name, GuestName)
	}
}

func TestParseIgnoresSignature(t *testing.T) {
	raw := signedToken(t, map[string]any{"name": "Alex Tan"})
	// Corrupt the signature segment only; claims must still parse.
	tampered := raw[:len(raw)-4] + "AAAA"

	id, err := NewParser().Parse(tampered)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.Name != "Alex Tan" {
		t.Errorf("Name = %q, want Alex Tan", id.Name)
	}
}

func TestParseMalformedToken(t *testing.T) {
	if _, err := NewParser().Parse("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
