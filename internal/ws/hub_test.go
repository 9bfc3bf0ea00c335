package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/service"
	"github.com/afrix/afxledger/internal/ws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

func startHub(t *testing.T) (*ws.Hub, *service.SessionService, string) {
	t.Helper()
	cfg := config.Defaults()
	cfg.JWT.AccessSecret = "ws-secret"
	sessions := service.NewSessionService(cfg)

	hub := ws.NewHub(sessions, nil, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, sessions, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *ws.Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectedCount() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) ws.EventMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ws.EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestHub_PrivateEventsReachOnlyOwner(t *testing.T) {
	hub, sessions, url := startHub(t)
	owner := uuid.New()
	tok, err := sessions.IssueAccessToken(owner, domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	mine := dial(t, hub, url+"?token="+tok, 1)
	anon := dial(t, hub, url, 2)

	ctx := context.Background()
	_ = hub.Publish(ctx, domain.Event{Type: domain.EventClaimGranted, UserID: owner, Amount: decimal.RequireFromString("0.73")})
	offerID := uuid.New()
	_ = hub.Publish(ctx, domain.Event{Type: domain.EventOfferCreated, UserID: owner, OfferID: &offerID})

	if got := readEvent(t, mine); got.Event.Type != domain.EventClaimGranted {
		t.Errorf("owner first event = %s, want claim.granted", got.Event.Type)
	}
	if got := readEvent(t, mine); got.Event.Type != domain.EventOfferCreated {
		t.Errorf("owner second event = %s", got.Event.Type)
	}
	// The anonymous client skips the private claim event entirely.
	if got := readEvent(t, anon); got.Event.Type != domain.EventOfferCreated {
		t.Errorf("anonymous first event = %s, want offer.created", got.Event.Type)
	}
}

func TestHub_RejectsBadToken(t *testing.T) {
	_, _, url := startHub(t)
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %v, want 401", resp)
	}
}
