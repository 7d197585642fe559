package auth

import (
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:     "user-1",
		SalonID: "salon-1",
		Role:    "owner",
		Iat:     time.Now().Unix(),
		Exp:     time.Now().Add(time.Hour).Unix(),
	}
	token, err := SignHS256(claims, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.SalonID != claims.SalonID || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestHS256Expired(t *testing.T) {
	claims := Claims{
		Sub: "user-1",
		Iat: time.Now().Add(-2 * time.Hour).Unix(),
		Exp: time.Now().Add(-time.Hour).Unix(),
	}
	token, err := SignHS256(claims, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRS256RoundTripWithKid(t *testing.T) {
	signer, err := NewRS256Signer("kid-1")
	if err != nil {
		t.Fatalf("NewRS256Signer failed: %v", err)
	}
	claims := Claims{
		Sub:     "user-2",
		SalonID: "salon-2",
		Role:    "receptionist",
		Iat:     time.Now().Unix(),
		Exp:     time.Now().Add(time.Hour).Unix(),
	}
	token, err := signer.Sign(claims)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	kid, err := KeyID(token)
	if err != nil {
		t.Fatalf("KeyID failed: %v", err)
	}
	if kid != "kid-1" {
		t.Fatalf("kid = %q, want kid-1", kid)
	}

	parsed, err := VerifyRS256(token, &signer.Key.PublicKey)
	if err != nil {
		t.Fatalf("VerifyRS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.SalonID != claims.SalonID {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	doc := signer.JWKS()
	if doc == nil || len(doc.Keys) != 1 || doc.Keys[0].Kid != "kid-1" {
		t.Fatalf("unexpected jwks document: %+v", doc)
	}
	pub, err := publicKeyFromJWK(doc.Keys[0])
	if err != nil {
		t.Fatalf("publicKeyFromJWK failed: %v", err)
	}
	if _, err := VerifyRS256(token, pub); err != nil {
		t.Fatalf("verify with jwks-derived key failed: %v", err)
	}
}

func TestMalformedToken(t *testing.T) {
	for _, tok := range []string{"", "a.b", "a.b.c.d", "!!!.%%%.###"} {
		if _, err := ParseAndVerifyHS256(tok, "s"); err == nil {
			t.Fatalf("expected error for token %q", tok)
		}
	}
}
