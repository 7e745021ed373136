package testapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errTokenRevoked = errors.New("token revoked")

// accessClaims are the claims of an issued access token. Version is compared
// against the server's token version so ExpireTokens can invalidate every
// outstanding token at once.
type accessClaims struct {
	UID     string `json:"uid"`
	Version uint32 `json:"ver"`
	jwt.RegisteredClaims
}

type tokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func newTokenManager(secret []byte, ttl time.Duration) (*tokenManager, error) {
	if len(secret) == 0 {
		return nil, errors.New("hs256 requires secret")
	}
	if ttl <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	return &tokenManager{secret: secret, ttl: ttl, issuer: "testapi"}, nil
}

func (m *tokenManager) createAccess(uid string, version uint32) (string, error) {
	now := time.Now()
	claims := accessClaims{
		UID:     uid,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *tokenManager) parseAccess(tokenStr string, minVersion uint32) (*accessClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Version < minVersion {
		return nil, errTokenRevoked
	}
	return claims, nil
}
