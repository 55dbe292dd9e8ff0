package accounts

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const sessionAudience = "tcpoidc-session"

// JWTSessions emite y valida cookies de sesión HS256.
type JWTSessions struct {
	key    []byte
	ttl    time.Duration
	cookie string
	secure bool
	now    func() time.Time
}

// NewJWTSessions: key de al menos 32 bytes.
func NewJWTSessions(key []byte, cookieName string, ttl time.Duration, secure bool) (*JWTSessions, error) {
	if len(key) < 32 {
		return nil, errors.New("accounts: session key must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if cookieName == "" {
		cookieName = "tcpoidc_session"
	}
	return &JWTSessions{key: key, ttl: ttl, cookie: cookieName, secure: secure, now: time.Now}, nil
}

func (s *JWTSessions) Issue(accountID string) (*http.Cookie, error) {
	now := s.now()
	claims := jwtv5.RegisteredClaims{
		Subject:   accountID,
		Audience:  jwtv5.ClaimStrings{sessionAudience},
		IssuedAt:  jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &http.Cookie{
		Name:     s.cookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// AccountID valida el valor de la cookie y retorna el subject.
func (s *JWTSessions) AccountID(value string) (string, error) {
	var claims jwtv5.RegisteredClaims
	_, err := jwtv5.ParseWithClaims(value, &claims, func(t *jwtv5.Token) (any, error) {
		return s.key, nil
	},
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithAudience(sessionAudience),
		jwtv5.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
