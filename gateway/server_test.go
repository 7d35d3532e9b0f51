package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"satspay/breez"
	"satspay/rewards"
	"satspay/wallet"
)

const testInvoice = "lnbc1500n1pjluezhpp5examplepayload"

type stubSDK struct{}

func (stubSDK) GetInfo(context.Context) (*breez.Info, error) {
	return &breez.Info{BalanceSats: 5000, MaxReceivableSats: 20000, Synced: true}, nil
}

func (stubSDK) ReceivePayment(_ context.Context, req breez.ReceiveRequest) (*breez.ReceiveResponse, error) {
	if req.Method == breez.ReceiveMethodAddress {
		return &breez.ReceiveResponse{PaymentRequest: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"}, nil
	}
	return &breez.ReceiveResponse{PaymentRequest: testInvoice, PaymentID: "hash-1"}, nil
}

func (stubSDK) PrepareSendPayment(_ context.Context, paymentRequest string) (*breez.PrepareSendResponse, error) {
	return &breez.PrepareSendResponse{PaymentRequest: paymentRequest, LightningFeeSats: 1}, nil
}

func (stubSDK) SendPayment(context.Context, *breez.PrepareSendResponse) (*breez.Payment, error) {
	return &breez.Payment{ID: "pay-1", Type: "send", Status: "completed", AmountSats: 150}, nil
}

func (stubSDK) ListPayments(context.Context) ([]breez.Payment, error) {
	return []breez.Payment{{ID: "pay-1", Type: "send", Status: "completed", AmountSats: 150}}, nil
}

func (stubSDK) AddEventListener(context.Context, func(breez.Event)) (string, error) {
	return "listener", nil
}

func (stubSDK) Disconnect(context.Context) error { return nil }

type stubConnector struct{}

func (stubConnector) Connect(context.Context, breez.ConnectRequest) (breez.SDK, error) {
	return stubSDK{}, nil
}

type testEnv struct {
	srv     *Server
	db      *gorm.DB
	student rewards.Student
}

func newTestEnv(t *testing.T, connect bool) testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := rewards.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	student := rewards.Student{ID: uuid.New(), Email: "student@example.com"}
	if err := db.Create(&student).Error; err != nil {
		t.Fatalf("create student: %v", err)
	}

	reconciler, err := rewards.NewReconciler(db)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	walletSvc := wallet.NewService(stubConnector{}, wallet.Config{
		Network:  breez.NetworkRegtest,
		APIKey:   "key",
		Mnemonic: "abandon abandon about",
	})
	if connect {
		if err := walletSvc.Connect(context.Background()); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}

	srv, err := New(Config{
		Wallet:        walletSvc,
		Reconciler:    reconciler,
		Authorizer:    &StaticAuthorizer{Allowed: map[string]bool{"student@example.com": true}},
		SessionSecret: "test-secret",
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return testEnv{srv: srv, db: db, student: student}
}

func (e testEnv) seedRewardEvent(t *testing.T, amountSats int64) rewards.RewardEvent {
	t.Helper()
	content := rewards.Content{ID: uuid.New(), Title: "Lesson", ContentType: "course"}
	if err := e.db.Create(&content).Error; err != nil {
		t.Fatalf("create content: %v", err)
	}
	reward := rewards.Reward{ID: uuid.New(), ContentID: content.ID, AmountSats: amountSats, Active: true}
	if err := e.db.Create(&reward).Error; err != nil {
		t.Fatalf("create reward: %v", err)
	}
	event := rewards.RewardEvent{ID: uuid.New(), StudentID: e.student.ID, RewardID: reward.ID}
	if err := e.db.Create(&event).Error; err != nil {
		t.Fatalf("create reward event: %v", err)
	}
	return event
}

func (e testEnv) login(t *testing.T, email string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out.Token
}

func (e testEnv) do(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	env := newTestEnv(t, true)
	body, _ := json.Marshal(map[string]string{"email": "stranger@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(t, http.MethodGet, "/api/v1/wallet/balance", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/wallet/balance", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", rec.Code)
	}
}

func TestBalanceEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	token := env.login(t, "student@example.com")
	rec := env.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var balance wallet.Balance
	if err := json.Unmarshal(rec.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if balance.TotalSats != 5000 {
		t.Fatalf("balance: %+v", balance)
	}
}

func TestWalletEndpointsReportNotReady(t *testing.T) {
	env := newTestEnv(t, false)
	token := env.login(t, "student@example.com")
	rec := env.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestClaimFlow(t *testing.T) {
	env := newTestEnv(t, true)
	event := env.seedRewardEvent(t, 150)
	token := env.login(t, "student@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/rewards/pending", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending status %d: %s", rec.Code, rec.Body.String())
	}
	var summary rewards.PendingSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if summary.TotalSats != 150 {
		t.Fatalf("pending total: %d", summary.TotalSats)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/rewards/claim", token, map[string]interface{}{
		"rewardEventIds": []string{event.ID.String()},
		"paymentRequest": testInvoice,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status %d: %s", rec.Code, rec.Body.String())
	}
	var claim claimResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &claim); err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	if !claim.Success || claim.AmountSats != 150 {
		t.Fatalf("claim response: %+v", claim)
	}

	// A second claim while one is outstanding conflicts.
	rec = env.do(t, http.MethodPost, "/api/v1/rewards/claim", token, map[string]interface{}{
		"rewardEventIds": []string{event.ID.String()},
		"paymentRequest": testInvoice,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate claim status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/rewards/claim/status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status endpoint %d: %s", rec.Code, rec.Body.String())
	}
}

func TestClaimValidationErrors(t *testing.T) {
	env := newTestEnv(t, true)
	token := env.login(t, "student@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/rewards/claim", token, map[string]interface{}{
		"rewardEventIds": []string{},
		"paymentRequest": testInvoice,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty set status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/rewards/claim", token, map[string]interface{}{
		"rewardEventIds": []string{uuid.NewString()},
		"paymentRequest": "junk",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad invoice status %d", rec.Code)
	}
}

func TestSendPaymentEndpoint(t *testing.T) {
	env := newTestEnv(t, true)
	token := env.login(t, "student@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/wallet/send", token, map[string]string{
		"paymentRequest": testInvoice,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send status %d: %s", rec.Code, rec.Body.String())
	}
	var record wallet.PaymentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Status != wallet.PaymentComplete {
		t.Fatalf("record: %+v", record)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/wallet/send", token, map[string]string{
		"paymentRequest": "junk",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid request status %d", rec.Code)
	}
}

func TestInvoiceAndIntentEndpoints(t *testing.T) {
	env := newTestEnv(t, true)
	token := env.login(t, "student@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/wallet/intent", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("intent before invoice: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/wallet/invoices", token, map[string]interface{}{
		"amountSats": 150,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("invoice status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/wallet/intent", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("intent status %d: %s", rec.Code, rec.Body.String())
	}
	var intent struct {
		State          string `json:"state"`
		PaymentRequest string `json:"paymentRequest"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &intent); err != nil {
		t.Fatalf("decode intent: %v", err)
	}
	if intent.State != string(wallet.IntentCreated) || intent.PaymentRequest != testInvoice {
		t.Fatalf("intent: %+v", intent)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}
