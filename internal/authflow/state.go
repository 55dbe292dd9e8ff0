package authflow

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// StateAudience es la audiencia esperada de los state tokens.
const StateAudience = "tcp-oidc-state"

var (
	ErrStateInvalid  = errors.New("invalid state token")
	ErrStateExpired  = errors.New("state token expired")
	ErrStateProvider = errors.New("state provider mismatch")
	ErrStateNonce    = errors.New("state nonce mismatch")
)

// StateClaims viajan en el parámetro state del authorize.
type StateClaims struct {
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	jwtv5.RegisteredClaims
}

// StateSigner firma y valida state tokens HS256. La key se deriva del secreto con HKDF.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner: secret vacío genera uno aleatorio (states no sobreviven reinicios ni réplicas).
func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	ikm := []byte(secret)
	if len(ikm) == 0 {
		ikm = make([]byte, 32)
		if _, err := rand.Read(ikm); err != nil {
			return nil, fmt.Errorf("state: random secret: %w", err)
		}
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(StateAudience)), key); err != nil {
		return nil, fmt.Errorf("state: derive key: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// TTL del state; también es el MaxAge de la cookie.
func (s *StateSigner) TTL() time.Duration { return s.ttl }

// Sign emite un state para provider con un nonce nuevo; retorna token y nonce.
func (s *StateSigner) Sign(provider string) (token, nonce string, err error) {
	nonce, err = randomToken(16)
	if err != nil {
		return "", "", err
	}
	now := s.now().UTC()
	claims := StateClaims{
		Provider: provider,
		Nonce:    nonce,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Audience:  jwtv5.ClaimStrings{StateAudience},
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err = jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", "", fmt.Errorf("state: sign: %w", err)
	}
	return token, nonce, nil
}

// Verify valida firma, expiración, proveedor y que el nonce coincida con la cookie.
func (s *StateSigner) Verify(token, provider, cookieNonce string) (*StateClaims, error) {
	var claims StateClaims
	_, err := jwtv5.ParseWithClaims(token, &claims, func(*jwtv5.Token) (any, error) { return s.key, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithAudience(StateAudience),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithTimeFunc(s.now),
	)
	if errors.Is(err, jwtv5.ErrTokenExpired) {
		return nil, ErrStateExpired
	}
	if err != nil {
		return nil, ErrStateInvalid
	}
	if claims.Provider != provider {
		return nil, ErrStateProvider
	}
	if cookieNonce == "" || subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(cookieNonce)) != 1 {
		return nil, ErrStateNonce
	}
	return &claims, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("state: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
