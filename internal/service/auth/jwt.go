package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes; a token is only accepted for the purpose it was minted for.
const (
	PurposeAccess      = "access"
	PurposeVerifyEmail = "verify_email"
)

var errBadToken = errors.New("invalid token")

type JWTManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type tokenClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func NewJWTManager(secret, issuer string, now func() time.Time) *JWTManager {
	if now == nil {
		now = time.Now
	}
	return &JWTManager{secret: []byte(secret), issuer: issuer, now: now}
}

// Issue signs a token for userID valid for ttl.
func (m *JWTManager) Issue(userID uint64, purpose string, ttl time.Duration) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("jwt secret is empty")
	}
	now := m.now().UTC()
	expiresAt := now.Add(ttl)
	claims := tokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates raw for purpose and returns the subject user id.
func (m *JWTManager) Parse(raw, purpose string) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, errBadToken
	}
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || token == nil || !token.Valid {
		return 0, errBadToken
	}
	if claims.Purpose != purpose {
		return 0, errBadToken
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, errBadToken
	}
	return userID, nil
}
