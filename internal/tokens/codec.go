package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
)

const minSecretLen = 32

type CodecConfig struct {
	Secret []byte
	Issuer string
	// Leeway tolerates clock skew on expiry. Zero means none.
	Leeway time.Duration
	Now    func() time.Time
}

// Codec signs and verifies HS256 tokens. It is safe for concurrent use; the only state is the
// immutable secret copied at construction.
type Codec struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

type jwtClaims struct {
	Kind domainauth.Kind `json:"typ"`
	jwt.RegisteredClaims
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretLen)
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("negative leeway")
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &Codec{secret: secret, issuer: cfg.Issuer, leeway: cfg.Leeway, now: cfg.Now}, nil
}

func (c *Codec) Now() time.Time { return c.now() }

// Sign stamps issued-at and expiry onto cl and returns the compact token.
func (c *Codec) Sign(cl domainauth.Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("non-positive ttl %s", ttl)
	}
	if cl.Subject == "" || cl.Kind == "" {
		return "", errors.New("subject and kind are required")
	}
	now := c.now()
	claims := jwtClaims{
		Kind: cl.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cl.Subject,
			ID:        cl.TokenID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", cl.Kind, err)
	}
	return signed, nil
}

// Verify checks signature and expiry against the current clock.
func (c *Codec) Verify(token string) (*domainauth.Claims, error) {
	return c.verify(token, true)
}

// VerifySignature checks only the signature; an expired but authentic token passes.
func (c *Codec) VerifySignature(token string) (*domainauth.Claims, error) {
	return c.verify(token, false)
}

func (c *Codec) verify(token string, checkClaims bool) (*domainauth.Claims, error) {
	// Structure is checked up front so that any decoding failure in the full parse can only
	// come from the signature segment.
	if _, _, err := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(token, &jwtClaims{}); err != nil {
		return nil, fmt.Errorf("%w: %v", domainauth.ErrMalformed, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	}
	if checkClaims {
		opts = append(opts, jwt.WithExpirationRequired())
		if c.leeway > 0 {
			opts = append(opts, jwt.WithLeeway(c.leeway))
		}
		if c.issuer != "" {
			opts = append(opts, jwt.WithIssuer(c.issuer))
		}
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var claims jwtClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing sub or exp", domainauth.ErrMalformed)
	}
	switch claims.Kind {
	case domainauth.KindAccess:
	case domainauth.KindRefresh:
		if claims.ID == "" {
			return nil, fmt.Errorf("%w: refresh token without id", domainauth.ErrMalformed)
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", domainauth.ErrMalformed, claims.Kind)
	}

	out := &domainauth.Claims{
		Subject:   claims.Subject,
		Kind:      claims.Kind,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", domainauth.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return domainauth.ErrExpired
	default:
		return fmt.Errorf("%w: %v", domainauth.ErrMalformed, err)
	}
}
