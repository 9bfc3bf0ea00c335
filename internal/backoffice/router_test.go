package backoffice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/afrix/afxledger/internal/app"
	"github.com/afrix/afxledger/internal/backoffice"
	"github.com/afrix/afxledger/internal/config"
	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type env struct {
	handler http.Handler
	svc     *app.Services
}

func newEnv(t *testing.T, allowedIPs string) *env {
	t.Helper()
	db, err := sqlx.Open("sqlite3", "file::memory:?_txlock=immediate&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := repository.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Defaults()
	cfg.JWT.AccessSecret = "backoffice-secret"
	cfg.Price.Fallback = decimal.NewFromInt(16)
	cfg.Server.BackofficeAllowedIPs = allowedIPs
	log := zaptest.NewLogger(t)
	svc := app.NewServices(db, nil, cfg, nil, nil, log)

	r := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		Sessions:    svc.Sessions,
		Profiles:    svc.Profiles,
		Ledger:      svc.Ledger,
		Claims:      svc.Claims,
		Offers:      svc.Offers,
		Commissions: svc.Commissions,
		Price:       svc.Price,
		Log:         log,
		Cfg:         cfg,
	})
	return &env{handler: r, svc: svc}
}

func (e *env) bearer(t *testing.T, role domain.UserRole) string {
	t.Helper()
	tok, err := e.svc.Sessions.IssueAccessToken(uuid.New(), role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return "Bearer " + tok
}

func (e *env) do(t *testing.T, method, path, body, auth string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	var out map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr.Code, out
}

func TestRoleGates(t *testing.T) {
	e := newEnv(t, "")
	cases := []struct {
		name   string
		method string
		path   string
		role   domain.UserRole
		want   int
	}{
		{"no token", http.MethodGet, "/admin/finance/supply", "", http.StatusUnauthorized},
		{"plain user", http.MethodGet, "/admin/finance/supply", domain.RoleUser, http.StatusForbidden},
		{"signup cannot read finance", http.MethodGet, "/admin/finance/supply", domain.RoleSignup, http.StatusForbidden},
		{"finance reads supply", http.MethodGet, "/admin/finance/supply", domain.RoleFinance, http.StatusOK},
		{"settlement cannot onboard", http.MethodPost, "/admin/profiles", domain.RoleSettlement, http.StatusForbidden},
		{"finance cannot confirm", http.MethodPost, "/admin/settlement/confirmations", domain.RoleFinance, http.StatusForbidden},
		{"admin lists confirmations", http.MethodGet, "/admin/settlement/confirmations", domain.RoleAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := ""
			if tc.role != "" {
				auth = e.bearer(t, tc.role)
			}
			if code, body := e.do(t, tc.method, tc.path, `{}`, auth); code != tc.want {
				t.Errorf("status = %d, want %d (%v)", code, tc.want, body)
			}
		})
	}
}

func TestIPAllowlist(t *testing.T) {
	e := newEnv(t, "10.0.0.1")
	// httptest requests come from 192.0.2.1.
	code, body := e.do(t, http.MethodGet, "/health", "", "")
	if code != http.StatusForbidden || body["code"] != "ERR_IP_NOT_ALLOWED" {
		t.Errorf("status = %d, body = %v", code, body)
	}
}

func TestOnboardConfirmAndInspect(t *testing.T) {
	e := newEnv(t, "")
	signup := e.bearer(t, domain.RoleSignup)
	admin := e.bearer(t, domain.RoleAdmin)

	referrer := uuid.New()
	code, body := e.do(t, http.MethodPost, "/admin/profiles",
		fmt.Sprintf(`{"user_id":%q,"referral_code":"mama254"}`, referrer), signup)
	if code != http.StatusCreated {
		t.Fatalf("onboard referrer = %d %v", code, body)
	}

	seller := uuid.New()
	code, body = e.do(t, http.MethodPost, "/admin/profiles",
		fmt.Sprintf(`{"user_id":%q,"referrer_code":"MAMA254"}`, seller), signup)
	if code != http.StatusCreated {
		t.Fatalf("onboard seller = %d %v", code, body)
	}
	code, body = e.do(t, http.MethodPost, "/admin/profiles",
		fmt.Sprintf(`{"user_id":%q}`, seller), signup)
	if code != http.StatusConflict || body["code"] != "ERR_PROFILE_EXISTS" {
		t.Errorf("duplicate onboard = %d %v", code, body)
	}

	ctx := context.Background()
	if _, err := e.svc.Ledger.Credit(ctx, seller, decimal.NewFromInt(80), domain.OriginMining, domain.FundAvailable); err != nil {
		t.Fatalf("credit: %v", err)
	}
	offer, err := e.svc.Offers.CreateSellOffer(ctx, domain.CreateOfferRequest{
		OwnerID:        seller,
		TotalAmount:    decimal.NewFromInt(50),
		UnitPrice:      decimal.NewFromInt(16),
		MinTradeAmount: decimal.NewFromInt(2),
		MaxTradeAmount: decimal.NewFromInt(50),
		PaymentMethods: domain.PaymentMethods{{
			Type:    domain.MethodAirtelMoney,
			Details: &domain.AirtelMoney{Phone: "0733123456"},
		}},
	}, decimal.NewFromInt(16))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	confirm := fmt.Sprintf(`{"reference":"AM778812","offer_id":%q,"payer_id":%q,"amount":"5"}`, offer.ID, uuid.New())
	code, body = e.do(t, http.MethodPost, "/admin/settlement/confirmations", confirm, e.bearer(t, domain.RoleSettlement))
	if code != http.StatusCreated {
		t.Fatalf("confirm = %d %v", code, body)
	}
	code, body = e.do(t, http.MethodPost, "/admin/settlement/confirmations", confirm, admin)
	if code != http.StatusConflict || body["code"] != "ERR_PAYMENT_ALREADY_RECORDED" {
		t.Errorf("duplicate confirm = %d %v", code, body)
	}

	code, body = e.do(t, http.MethodGet, "/admin/users/"+seller.String(), "", admin)
	if code != http.StatusOK {
		t.Fatalf("detail = %d %v", code, body)
	}
	bal := body["data"].(map[string]interface{})["balances"].(map[string]interface{})
	if bal["available"] != "30" || bal["locked"] != "50" {
		t.Errorf("balances = %v", bal)
	}

	code, body = e.do(t, http.MethodGet, "/admin/finance/supply", "", admin)
	if code != http.StatusOK {
		t.Fatalf("supply = %d %v", code, body)
	}
	sup := body["data"].(map[string]interface{})
	if sup["balanced"] != true || sup["minted"] != "80" {
		t.Errorf("supply = %v", sup)
	}

	code, _ = e.do(t, http.MethodGet, "/admin/finance/transactions?kind=escrow_lock", "", admin)
	if code != http.StatusOK {
		t.Errorf("transactions = %d", code)
	}

	code, _ = e.do(t, http.MethodGet, "/admin/users/"+uuid.NewString(), "", admin)
	if code != http.StatusNotFound {
		t.Errorf("unknown user = %d, want 404", code)
	}
}
