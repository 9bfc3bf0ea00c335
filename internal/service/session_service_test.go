package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func newSessions(secret string) (*service.SessionService, *fakeClock) {
	cfg := config.Defaults()
	cfg.JWT.AccessSecret = secret
	s := service.NewSessionService(cfg)
	clock := newFakeClock()
	s.SetClock(clock.Now)
	return s, clock
}

func TestSession_RoundTrip(t *testing.T) {
	s, _ := newSessions("test-secret")
	id := uuid.New()

	tok, err := s.IssueAccessToken(id, domain.RoleSettlement)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := s.ParseAccessToken(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, _ := claims.UserID()
	if got != id || claims.Role != string(domain.RoleSettlement) {
		t.Errorf("claims = %+v", claims)
	}
}

func TestSession_Rejects(t *testing.T) {
	s, clock := newSessions("test-secret")
	other, _ := newSessions("other-secret")
	id := uuid.New()

	foreign, _ := other.IssueAccessToken(id, domain.RoleUser)
	if _, err := s.ParseAccessToken(foreign); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("wrong secret err = %v", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, service.AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
		TokenType: "refresh",
	})
	signed, _ := refresh.SignedString([]byte("test-secret"))
	if _, err := s.ParseAccessToken(signed); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("refresh token err = %v", err)
	}

	tok, _ := s.IssueAccessToken(id, domain.RoleUser)
	clock.Advance(16 * time.Minute)
	if _, err := s.ParseAccessToken(tok); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expired token err = %v", err)
	}

	if _, err := s.ParseAccessToken("not-a-token"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("garbage err = %v", err)
	}
}
