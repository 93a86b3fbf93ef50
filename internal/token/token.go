package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"contentgate/internal/model"
)

var (
	ErrMalformed = errors.New("token malformed")
	ErrInvalid   = errors.New("token invalid")
	ErrExpired   = errors.New("token expired")
)

// Claims is the signed payload of a content access token. The jti is the grant id.
type Claims struct {
	jwt.RegisteredClaims
	ResourceID  string            `json:"rid"`
	ContentType model.ContentType `json:"typ,omitempty"`
	Locator     string            `json:"loc"`
	DeviceType  string            `json:"dev,omitempty"`
	Scope       model.ScopeFlags  `json:"scp"`
}

// GrantID returns the grant the token was minted for.
func (c *Claims) GrantID() string {
	return c.ID
}

// Manager signs and verifies HS256 access tokens. Verification never touches storage.
type Manager struct {
	secret []byte
	issuer string

	// NowFunc is the clock used for verification; replaceable in tests.
	NowFunc func() time.Time
}

// NewManager creates a Manager. An empty secret is rejected.
func NewManager(secret, issuer string) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	return &Manager{secret: []byte(secret), issuer: issuer, NowFunc: time.Now}, nil
}

// Sign encodes a grant into a bearer token.
func (m *Manager) Sign(g model.AccessGrant) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        g.ID,
			Subject:   g.Subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(g.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(g.ExpiresAt),
		},
		ResourceID:  g.ResourceID,
		ContentType: g.ContentType,
		Locator:     g.StorageLocator,
		DeviceType:  g.DeviceType,
		Scope:       g.Scope,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
// Errors are ErrMalformed, ErrExpired or ErrInvalid.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	return m.verify(tokenString, false)
}

// VerifyAllowExpired is Verify without the expiry check. Signature and issuer must still hold,
// so the claims reliably name the grant the token was minted for.
func (m *Manager) VerifyAllowExpired(tokenString string) (*Claims, error) {
	return m.verify(tokenString, true)
}

func (m *Manager) verify(tokenString string, allowExpired bool) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformed
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.NowFunc),
	}
	if allowExpired {
		// Skips every registered-claim check; issuer and exp presence are checked below.
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	tok, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		},
		opts...,
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.ID == "" || claims.Subject == "" || claims.ResourceID == "" {
		return nil, ErrInvalid
	}
	if allowExpired && (claims.Issuer != m.issuer || claims.ExpiresAt == nil) {
		return nil, ErrInvalid
	}
	return claims, nil
}
