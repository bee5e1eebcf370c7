package relay

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wcsign/internal/crypto"
	"wcsign/internal/domain"
)

// DefaultJWTTTL bounds the lifetime of a relay auth token.
const DefaultJWTTTL = 24 * time.Hour

// SignJWT issues a relay auth token for the client identity priv. The
// issuer is the did:key of the identity and the subject a random nonce.
func SignJWT(priv domain.Ed25519Private, aud string, ttl time.Duration, now time.Time) (string, error) {
	if ttl <= 0 {
		ttl = DefaultJWTTTL
	}
	key := crypto.Ed25519Key(priv)
	var pub domain.Ed25519Public
	copy(pub[:], key.Public().(ed25519.PublicKey))

	var sub [32]byte
	if _, err := rand.Read(sub[:]); err != nil {
		return "", err
	}
	claims := jwt.RegisteredClaims{
		Issuer:    crypto.EncodeDIDKey(pub),
		Subject:   hex.EncodeToString(sub[:]),
		Audience:  jwt.ClaimStrings{aud},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
}

// VerifyJWT checks a token produced by SignJWT against aud and returns the
// issuer did:key. The verification key is taken from the issuer itself.
func VerifyJWT(token, aud string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil {
			return nil, err
		}
		pub, err := crypto.DecodeDIDKey(iss)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(pub[:]), nil
	})
	if err != nil {
		return "", fmt.Errorf("relay auth: %w", err)
	}
	return claims.Issuer, nil
}
