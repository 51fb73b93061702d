// Package auth checks request credentials: the static API token, or a
// short-lived JWT obtained by exchanging it.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/nidscan/nid-ocr-service/internal/errors"
)

// TokenHeader is the header the static token travels in
const TokenHeader = "X-API-Token"

const (
	issuer          = "nid-ocr-service"
	DefaultTokenTTL = time.Hour
)

// Method tells how a caller authenticated
type Method string

const (
	MethodStatic Method = "static"
	MethodJWT    Method = "jwt"
)

// Identity is an authenticated caller. Credential names the static token the
// caller holds or that issued its JWT; every token minted from one static token
// shares that credential.
type Identity struct {
	Subject    string
	Method     Method
	Credential string
}

// tokenClaims are the claims of an exchanged token
type tokenClaims struct {
	Credential string `json:"cred"`
	jwt.RegisteredClaims
}

// Authenticator verifies presented credentials
type Authenticator struct {
	token  []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. An empty secret disables the
// token exchange; only the static token is then accepted.
func NewAuthenticator(token, secret string, ttl time.Duration) (*Authenticator, error) {
	if token == "" {
		return nil, fmt.Errorf("auth token is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{
		token:  []byte(token),
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// SetClock replaces the time source. Used by tests.
func (a *Authenticator) SetClock(now func() time.Time) {
	a.now = now
}

// ExchangeEnabled reports whether JWTs can be issued and accepted
func (a *Authenticator) ExchangeEnabled() bool {
	return len(a.secret) > 0
}

// Authenticate accepts the static token or a valid JWT
func (a *Authenticator) Authenticate(presented string) (Identity, error) {
	if presented == "" {
		return Identity{}, apperrors.NewUnauthorizedError("Authentication required")
	}
	if subtle.ConstantTimeCompare([]byte(presented), a.token) == 1 {
		cred := a.credential()
		return Identity{Subject: cred, Method: MethodStatic, Credential: cred}, nil
	}
	if a.ExchangeEnabled() && strings.Count(presented, ".") == 2 {
		return a.verify(presented)
	}
	return Identity{}, apperrors.NewUnauthorizedError("Invalid authentication token")
}

// IssueToken signs a JWT for clientID
func (a *Authenticator) IssueToken(clientID string) (string, time.Time, error) {
	if !a.ExchangeEnabled() {
		return "", time.Time{}, fmt.Errorf("token exchange is disabled")
	}
	if clientID == "" {
		return "", time.Time{}, fmt.Errorf("client id is required")
	}
	now := a.now()
	expires := now.Add(a.ttl)
	claims := tokenClaims{
		Credential: a.credential(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

func (a *Authenticator) verify(tokenString string) (Identity, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	// Tokens minted from a rotated static token stop working
	if err != nil || claims.Subject == "" || claims.Credential != a.credential() {
		return Identity{}, apperrors.NewUnauthorizedError("Invalid authentication token")
	}
	return Identity{Subject: claims.Subject, Method: MethodJWT, Credential: claims.Credential}, nil
}

func (a *Authenticator) credential() string {
	return "token:" + Fingerprint(string(a.token))
}

// Fingerprint is a short, non-reversible label for a secret, safe to log
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

// PresentedToken reads the credential from X-API-Token or an
// "Authorization: Bearer" header.
func PresentedToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(TokenHeader)); t != "" {
		return t
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}
