package service

import (
	"fmt"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeAccess is the only token type the ledger accepts.
const TokenTypeAccess = "access"

// AppClaims extends jwt.RegisteredClaims with the caller's role.
type AppClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"type"`
}

// UserID parses the subject claim.
func (c *AppClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, domain.ErrTokenInvalid
	}
	return id, nil
}

// SessionService verifies bearer tokens minted by the identity provider and
// mints tokens for internal callers (collaborators, tests).
type SessionService struct {
	cfg *config.JWTConfig
	now Clock
}

// NewSessionService creates a SessionService.
func NewSessionService(cfg *config.Config) *SessionService {
	return &SessionService{cfg: &cfg.JWT, now: systemClock}
}

// SetClock replaces the time source used when minting.
func (s *SessionService) SetClock(c Clock) { s.now = c }

// IssueAccessToken signs an HS256 access token for userID with role.
func (s *SessionService) IssueAccessToken(userID uuid.UUID, role domain.UserRole) (string, error) {
	now := s.now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
		Role:      string(role),
		TokenType: TokenTypeAccess,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("session_service.IssueAccessToken: %w", err)
	}
	return tok, nil
}

// ParseAccessToken validates signature, algorithm, expiry and token type.
func (s *SessionService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.AccessSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok || claims.TokenType != TokenTypeAccess {
		return nil, domain.ErrTokenInvalid
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
