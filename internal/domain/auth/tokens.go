package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"timeoff/internal/domain/identity"
)

const (
	DefaultTokenTTL = 8 * time.Hour
	tokenIssuer     = "timeoff"
)

// Claims is the signed token body. Subject is the identity id and ID the
// token identifier used for revocation.
type Claims struct {
	Email   string `json:"email"`
	Role    string `json:"role"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

type Issued struct {
	Token     string
	Claims    Claims
	ExpiresAt time.Time
}

// Tokens issues and verifies HS256 session tokens. It does not consult the
// revocation registry.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 || ttl > DefaultTokenTTL {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	t.now = now
	return t
}

func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

func (t *Tokens) Issue(who identity.Identity) (Issued, error) {
	issuedAt := t.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(t.ttl)
	claims := Claims{
		Email:   who.Email,
		Role:    string(who.Role),
		Version: who.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   who.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, Claims: claims, ExpiresAt: expiresAt}, nil
}

// Verify checks signature and structure, then expiry. A token is rejected
// from the instant its exp is reached.
func (t *Tokens) Verify(token string) (Claims, error) {
	claims, err := t.parse(token,
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

// VerifySignature accepts any token carrying a valid signature, expired or
// not. Logout uses it to revoke the identifier of an expired token.
func (t *Tokens) VerifySignature(token string) (Claims, error) {
	claims, err := t.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

func (t *Tokens) parse(token string, opts ...jwt.ParserOption) (Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, err
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

// Remaining is the lifetime left on claims at now, never negative.
func Remaining(claims Claims, now time.Time) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	left := claims.ExpiresAt.Time.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
