// Package tokens signs and verifies the access/refresh JWT pair.
//
// A Codec holds a set of HMAC keys: the first key signs every new token
// (its id goes into the "kid" header), the rest are still accepted for
// verification so that keys can be rotated without cutting off tokens
// issued under the previous secret.
package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/valkirev/auth_service/internal/models"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrExpired          = errors.New("token is outside its validity window")
	ErrInvalidSignature = errors.New("token signature does not verify")
	ErrMalformed        = errors.New("token is malformed")
	ErrWrongType        = errors.New("unexpected token type")
)

type AccessClaims struct {
	Role      models.Role `json:"role"`
	TokenType string      `json:"typ"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Epoch     int64  `json:"epoch"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Key is one entry of the signing key set.
type Key struct {
	ID     string
	Secret []byte
}

// ParseKeys parses a "kid:secret,kid:secret" list. The first entry
// becomes the signing key.
func ParseKeys(spec string) ([]Key, error) {
	var keys []Key
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kid, secret, ok := strings.Cut(part, ":")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("tokens: bad key entry %q, want kid:secret", part)
		}
		keys = append(keys, Key{ID: kid, Secret: []byte(secret)})
	}
	if len(keys) == 0 {
		return nil, errors.New("tokens: key set is empty")
	}
	return keys, nil
}

type Codec struct {
	signKID string
	keys    map[string][]byte
	leeway  time.Duration
}

// NewCodec builds a codec from a key set. keys[0] signs; every key
// verifies. leeway is the clock-skew allowance applied on decode.
func NewCodec(keys []Key, leeway time.Duration) (*Codec, error) {
	if len(keys) == 0 {
		return nil, errors.New("tokens: at least one key is required")
	}
	m := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if k.ID == "" || len(k.Secret) == 0 {
			return nil, fmt.Errorf("tokens: key %q is incomplete", k.ID)
		}
		m[k.ID] = k.Secret
	}
	return &Codec{signKID: keys[0].ID, keys: m, leeway: leeway}, nil
}

func NewJTI() string { return uuid.NewString() }

func Subject(userID uint) string { return strconv.FormatUint(uint64(userID), 10) }

func ParseSubject(sub string) (uint, error) {
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tokens: bad subject %q: %w", sub, err)
	}
	return uint(id), nil
}

func (c *Codec) IssueAccess(userID uint, role models.Role, ttl time.Duration) (string, *AccessClaims, error) {
	now := time.Now()
	claims := &AccessClaims{
		Role:      role,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (c *Codec) IssueRefresh(userID uint, epoch int64, ttl time.Duration) (string, *RefreshClaims, error) {
	now := time.Now()
	claims := &RefreshClaims{
		Epoch:     epoch,
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
	}
	signed, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (c *Codec) DecodeAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.decode(raw, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrWrongType
	}
	return &claims, nil
}

func (c *Codec) DecodeRefresh(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.decode(raw, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrWrongType
	}
	return &claims, nil
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = c.signKID
	return t.SignedString(c.keys[c.signKID])
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	kid, ok := t.Header["kid"].(string)
	if !ok {
		return c.keys[c.signKID], nil
	}
	secret, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return secret, nil
}

func (c *Codec) decode(raw string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if c.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(c.leeway))
	}
	tkn, err := jwt.ParseWithClaims(raw, claims, c.keyFunc, opts...)
	switch {
	case err == nil && tkn.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}
