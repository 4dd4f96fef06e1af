package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/ledger"
	"github.com/set-night/rewardmarket/internal/notify"
	"github.com/set-night/rewardmarket/internal/repository/memstore"
	"github.com/set-night/rewardmarket/internal/service"
)

var testAsset = ledger.Asset{Code: "RWD", Issuer: "GISSUER"}

// stubLedger serves pre-indexed transactions and acknowledges every payment.
type stubLedger struct {
	mu     sync.Mutex
	txs    map[string]*ledger.Transaction
	nextTx int
}

func newStubLedger() *stubLedger {
	return &stubLedger{txs: make(map[string]*ledger.Transaction)}
}

func (l *stubLedger) Pay(ctx context.Context, address string, amount decimal.Decimal, memo string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextTx++
	return fmt.Sprintf("outhash-%d", l.nextTx), nil
}

func (l *stubLedger) GetTransaction(ctx context.Context, hash string) (*ledger.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.txs[hash]
	if !ok {
		return nil, ledger.ErrNotYetIndexed
	}
	return tx, nil
}

func (l *stubLedger) index(tx *ledger.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs[tx.Hash] = tx
}

type fixture struct {
	store     *memstore.Store
	ledger    *stubLedger
	server    *Server
	disburser *service.DisburseService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	sl := newStubLedger()
	inventory := service.NewInventoryService(store)
	disburser := service.NewDisburseService(store, sl, notify.Noop{})
	deps := Deps{
		Store:     store,
		Users:     service.NewUserService(store),
		Scheduler: service.NewSchedulerService(store, notify.Noop{}, domain.SchedulerPolicy{}),
		Orders:    service.NewOrderService(store, inventory),
		Inventory: inventory,
		Redeemer:  service.NewRedeemService(store, sl, testAsset),
		Disburser: disburser,
	}
	srv := NewServer(":0", deps, &Credentials{Login: "admin", Password: "hunter2"})
	return &fixture{store: store, ledger: sl, server: srv, disburser: disburser}
}

func (f *fixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	f.server.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doAdmin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.SetBasicAuth("admin", "hunter2")
	rec := httptest.NewRecorder()
	f.server.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) registerUser(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/users", "", map[string]any{
		"wallet_address":     "GWALLET",
		"country_code":       "US",
		"utc_offset_minutes": 0,
		"platform":           "ios",
		"client_version":     "2.0.0",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp["user_id"]
}

func TestRegisterValidatesInput(t *testing.T) {
	f := newFixture(t)

	userID := f.registerUser(t)
	if _, err := uuid.Parse(userID); err != nil {
		t.Fatalf("expected uuid user id, got %q", userID)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/users", "", map[string]any{
		"wallet_address": "GWALLET",
		"platform":       "windows",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad platform, got %d", rec.Code)
	}
}

func TestUserHeaderRequired(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/offers", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user header, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/offers", "not-a-uuid", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed user id, got %d", rec.Code)
	}
}

func TestAdminEndpointsRequireCredentials(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/categories", strings.NewReader(`{"id":"cat"}`))
	rec := httptest.NewRecorder()
	f.server.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without basic auth, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/categories", strings.NewReader(`{"id":"cat"}`))
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	f.server.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestPurchaseFlow(t *testing.T) {
	f := newFixture(t)
	userID := f.registerUser(t)

	rec := f.doAdmin(t, http.MethodPost, "/api/v1/admin/offers", map[string]any{
		"id": "offer-1", "title": "Gift card", "price": "100", "address": "GDEST", "active": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create offer: status %d: %s", rec.Code, rec.Body)
	}
	rec = f.doAdmin(t, http.MethodPost, "/api/v1/admin/goods", map[string]any{
		"offer_id": "offer-1", "values": []string{"CODE-A"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add goods: status %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/offers", userID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list offers: status %d", rec.Code)
	}
	var offers []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &offers); err != nil {
		t.Fatalf("unmarshal offers: %v", err)
	}
	if len(offers) != 1 || offers[0]["available"].(float64) != 1 {
		t.Fatalf("unexpected offer list: %v", offers)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/orders", userID, map[string]string{"offer_id": "offer-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: status %d: %s", rec.Code, rec.Body)
	}
	var order struct {
		OrderID string          `json:"order_id"`
		Address string          `json:"address"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}

	// A second buy hits an empty pool.
	other := f.registerUser(t)
	rec = f.do(t, http.MethodPost, "/api/v1/orders", other, map[string]string{"offer_id": "offer-1"})
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 on empty pool, got %d", rec.Code)
	}

	f.ledger.index(&ledger.Transaction{
		Hash:     "inhash-1",
		Memo:     order.OrderID,
		MemoType: ledger.MemoTypeText,
		Operations: []ledger.Operation{{
			Type:        "payment",
			To:          order.Address,
			Amount:      order.Amount,
			AssetCode:   testAsset.Code,
			AssetIssuer: testAsset.Issuer,
		}},
	})

	rec = f.do(t, http.MethodPost, "/api/v1/orders/redeem", userID, map[string]string{"tx_hash": "inhash-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("redeem: status %d: %s", rec.Code, rec.Body)
	}
	var redeemed map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &redeemed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if redeemed["value"] != "CODE-A" {
		t.Fatalf("expected CODE-A payload, got %q", redeemed["value"])
	}
}

func TestCreateOrderUnknownOffer(t *testing.T) {
	f := newFixture(t)
	userID := f.registerUser(t)

	rec := f.do(t, http.MethodPost, "/api/v1/orders", userID, map[string]string{"offer_id": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown offer, got %d", rec.Code)
	}
}

func TestDeleteOrderForeignUser(t *testing.T) {
	f := newFixture(t)
	owner := f.registerUser(t)
	stranger := f.registerUser(t)

	rec := f.doAdmin(t, http.MethodPost, "/api/v1/admin/offers", map[string]any{
		"id": "offer-1", "title": "Gift card", "price": "100", "address": "GDEST", "active": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create offer: status %d: %s", rec.Code, rec.Body)
	}
	rec = f.doAdmin(t, http.MethodPost, "/api/v1/admin/goods", map[string]any{
		"offer_id": "offer-1", "values": []string{"CODE-A"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add goods: status %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/orders", owner, map[string]string{"offer_id": "offer-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: status %d: %s", rec.Code, rec.Body)
	}
	var order struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}

	rec = f.do(t, http.MethodDelete, "/api/v1/orders/"+order.OrderID, stranger, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting another user's order, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/api/v1/orders/"+order.OrderID, owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete: status %d: %s", rec.Code, rec.Body)
	}
}

func TestTaskFlowHidesGradingData(t *testing.T) {
	f := newFixture(t)
	userID := f.registerUser(t)

	rec := f.doAdmin(t, http.MethodPost, "/api/v1/admin/categories", map[string]string{"id": "cat", "title": "Daily"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category: status %d", rec.Code)
	}
	rec = f.doAdmin(t, http.MethodPost, "/api/v1/admin/tasks", map[string]any{
		"id": "task-1", "category_id": "cat", "title": "Quiz day", "type": "quiz",
		"position": 0, "price": "10",
		"items": []map[string]any{
			{"id": "quiz1", "kind": "quiz", "correct_answer_id": "opt-b", "quiz_reward": "5"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: status %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tasks?categories=cat", userID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("next tasks: status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "task-1") {
		t.Fatalf("expected task-1 in response: %s", body)
	}
	if strings.Contains(body, "opt-b") || strings.Contains(body, "correct") {
		t.Fatalf("grading data leaked to the client: %s", body)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/tasks/results", userID, map[string]any{
		"task_id": "task-1", "address": "GWALLET",
		"results": []map[string]string{{"item_id": "quiz1", "answer_id": "opt-b"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit results: status %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["memo"] == "" {
		t.Fatalf("expected a payout memo")
	}
	f.disburser.Wait()

	// Resubmitting returns the same memo.
	rec = f.do(t, http.MethodPost, "/api/v1/tasks/results", userID, map[string]any{
		"task_id": "task-1", "address": "GWALLET",
		"results": []map[string]string{{"item_id": "quiz1", "answer_id": "opt-b"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resubmit: status %d: %s", rec.Code, rec.Body)
	}
	var again map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &again); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if again["memo"] != resp["memo"] {
		t.Fatalf("resubmission must return the original memo")
	}
}

func TestAdHocTaskRequiresWindow(t *testing.T) {
	f := newFixture(t)

	rec := f.doAdmin(t, http.MethodPost, "/api/v1/admin/tasks", map[string]any{
		"id": "special", "category_id": "cat", "position": domain.AdHocPosition, "price": "10",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for windowless ad-hoc task, got %d", rec.Code)
	}
}
