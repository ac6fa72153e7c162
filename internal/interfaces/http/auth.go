package http

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a token fails verification
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the JWT payload naming the caller
type Claims struct {
	UserID    int64  `json:"user_id"`
	CompanyID int64  `json:"company_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 bearer tokens
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenManager creates a TokenManager. ttl defaults to 24h.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "expense-approval",
		now:    time.Now,
	}
}

// Issue mints a token for user
func (m *TokenManager) Issue(user *entity.User) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Role:      string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns the actor it names
func (m *TokenManager) Verify(token string) (service.Actor, error) {
	if token == "" {
		return service.Actor{}, ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return service.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role, err := entity.ParseRole(claims.Role)
	if err != nil || claims.UserID == 0 || claims.CompanyID == 0 {
		return service.Actor{}, fmt.Errorf("%w: incomplete claims", ErrInvalidToken)
	}

	return service.Actor{UserID: claims.UserID, CompanyID: claims.CompanyID, Role: role}, nil
}
