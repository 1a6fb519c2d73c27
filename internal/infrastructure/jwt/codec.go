package jwtinfra

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-email-verification/internal/config"
	"github.com/go-email-verification/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// Parse failures. The orchestrator collapses ErrTamperedOrMalformed and
// ErrWrongPurpose into a single caller-visible category.
var (
	ErrTamperedOrMalformed = errors.New("token tampered or malformed")
	ErrExpired             = errors.New("token expired")
	ErrWrongPurpose        = errors.New("token purpose mismatch")
)

// Claims holds the JWT payload fields of a verification token.
type Claims struct {
	RecordID string `json:"record_id"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 verification tokens. The signing key is
// derived from the configured secret and bound to the verification purpose.
type Codec struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock injects a custom time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(cfg *config.Config, opts ...Option) (*Codec, error) {
	if cfg.VerificationSecret == "" {
		return nil, errors.New("verification secret is required")
	}
	if cfg.VerificationTokenTTL <= 0 {
		return nil, errors.New("verification token ttl must be positive")
	}
	key, err := deriveKey(cfg.VerificationSecret, domain.PurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	c := &Codec{key: key, expiry: cfg.VerificationTokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mint builds a claim for recordID expiring one configured window from now.
func (c *Codec) Mint(recordID string) domain.VerificationClaim {
	now := c.now().UTC()
	return domain.VerificationClaim{
		RecordID:  recordID,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.expiry),
		Purpose:   domain.PurposeEmailVerification,
	}
}

// Issue encodes claim as a compact, URL-safe signed token.
func (c *Codec) Issue(claim domain.VerificationClaim) (string, error) {
	if claim.RecordID == "" {
		return "", errors.New("claim record id is required")
	}
	claims := Claims{
		RecordID: claim.RecordID,
		Purpose:  claim.Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(claim.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claim.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Parse verifies the signature before reading any field, then checks expiry
// (strict, no leeway) and purpose.
func (c *Codec) Parse(tokenStr string) (*domain.VerificationClaim, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTamperedOrMalformed, err)
	}
	if claims.Purpose != domain.PurposeEmailVerification {
		return nil, ErrWrongPurpose
	}
	if claims.RecordID == "" {
		return nil, fmt.Errorf("%w: missing record id", ErrTamperedOrMalformed)
	}
	out := &domain.VerificationClaim{
		RecordID:  claims.RecordID,
		ExpiresAt: claims.ExpiresAt.Time,
		Purpose:   claims.Purpose,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func deriveKey(secret, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}
