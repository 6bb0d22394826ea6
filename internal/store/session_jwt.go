package store

import (
	"errors"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"kitabghar/internal/util"
)

const (
	jwtIssuer   = "kitabghar"
	jwtAudience = "kitabghar-web"
)

var jwtLeeway = 30 * time.Second

// JWTSessionStore issues and validates stateless HS256 session tokens signed
// with the session secret. DeleteSession cannot revoke an outstanding token;
// logout only clears the cookie and tokens expire with their TTL. Pick the
// memory or redis strategy when server-side revocation matters.
type JWTSessionStore struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTSessionStore builds a JWT session store from the shared secret.
func NewJWTSessionStore(secret string, ttl time.Duration) (*JWTSessionStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt session store requires a session secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTSessionStore{secret: []byte(secret), ttl: ttl}, nil
}

// NewSession creates a signed JWT carrying the user ID as subject.
func (s *JWTSessionStore) NewSession(userID int) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		Issuer:    jwtIssuer,
		Audience:  jwt.ClaimStrings{jwtAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        util.NewToken(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// GetUserIDByToken validates the JWT and returns the subject user ID.
func (s *JWTSessionStore) GetUserIDByToken(token string) (int, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false, nil
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithAudience(jwtAudience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(jwtLeeway),
	)
	if err != nil || !parsed.Valid {
		return 0, false, nil
	}
	uid, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || uid <= 0 {
		return 0, false, nil
	}
	return uid, true, nil
}

// DeleteSession is a no-op: HS256 tokens are stateless and expire by TTL.
func (s *JWTSessionStore) DeleteSession(string) error {
	return nil
}
