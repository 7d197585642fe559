package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenSignature = errors.New("auth: invalid token signature")
	ErrTokenExpired   = errors.New("auth: token expired")
)

// Claims is the access-token payload. SalonID scopes every request to one
// salon; Role is owner, receptionist or stylist.
type Claims struct {
	Sub     string `json:"sub"`
	SalonID string `json:"salon_id"`
	Role    string `json:"role"`
	Iat     int64  `json:"iat"`
	Exp     int64  `json:"exp"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

func encodeSegment(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func splitToken(token string) (signed string, h header, claims Claims, sig []byte, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", header{}, Claims{}, nil, ErrTokenMalformed
	}
	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", header{}, Claims{}, nil, ErrTokenMalformed
	}
	claimsRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", header{}, Claims{}, nil, ErrTokenMalformed
	}
	sig, err = base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", header{}, Claims{}, nil, ErrTokenMalformed
	}
	if err := json.Unmarshal(headerRaw, &h); err != nil {
		return "", header{}, Claims{}, nil, ErrTokenMalformed
	}
	if err := json.Unmarshal(claimsRaw, &claims); err != nil {
		return "", header{}, Claims{}, nil, ErrTokenMalformed
	}
	return parts[0] + "." + parts[1], h, claims, sig, nil
}

func checkExpiry(claims Claims) error {
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return ErrTokenExpired
	}
	return nil
}

// SignHS256 produces a compact JWT signed with HMAC-SHA256.
func SignHS256(claims Claims, secret string) (string, error) {
	headerEnc, err := encodeSegment(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	claimsEnc, err := encodeSegment(claims)
	if err != nil {
		return "", err
	}
	unsigned := headerEnc + "." + claimsEnc
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unsigned))
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// ParseAndVerifyHS256 verifies the signature and expiry and returns the
// claims.
func ParseAndVerifyHS256(token, secret string) (Claims, error) {
	signed, h, claims, sig, err := splitToken(token)
	if err != nil {
		return Claims{}, err
	}
	if h.Alg != "HS256" {
		return Claims{}, fmt.Errorf("%w: unexpected alg %q", ErrTokenSignature, h.Alg)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return Claims{}, ErrTokenSignature
	}
	if err := checkExpiry(claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// SignRS256 produces a compact JWT signed with RSASSA-PKCS1-v1_5. kid is
// embedded so verifiers can resolve the key through JWKS.
func SignRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	headerEnc, err := encodeSegment(header{Alg: "RS256", Typ: "JWT", Kid: kid})
	if err != nil {
		return "", err
	}
	claimsEnc, err := encodeSegment(claims)
	if err != nil {
		return "", err
	}
	unsigned := headerEnc + "." + claimsEnc
	digest := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(nil, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyRS256 verifies the signature and expiry against pub.
func VerifyRS256(token string, pub *rsa.PublicKey) (Claims, error) {
	signed, h, claims, sig, err := splitToken(token)
	if err != nil {
		return Claims{}, err
	}
	if h.Alg != "RS256" {
		return Claims{}, fmt.Errorf("%w: unexpected alg %q", ErrTokenSignature, h.Alg)
	}
	digest := sha256.Sum256([]byte(signed))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return Claims{}, ErrTokenSignature
	}
	if err := checkExpiry(claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// KeyID returns the kid from an unverified token header so the JWKS key
// can be looked up before verification.
func KeyID(token string) (string, error) {
	_, h, _, _, err := splitToken(token)
	if err != nil {
		return "", err
	}
	return h.Kid, nil
}
