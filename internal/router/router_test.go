package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"booking-payment-service/internal/domain"
	"booking-payment-service/internal/handler"
	"booking-payment-service/internal/ledger"
	"booking-payment-service/internal/repository"
	"booking-payment-service/internal/usecase"
	"booking-payment-service/pkg/client"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	testAPIKey    = "payments"
	testAPISecret = "s3cret"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()

	txns := repository.NewMemoryTransactionRepository()
	balances := repository.NewMemoryBalanceRepository()
	ledgerSvc := ledger.NewService(balances, logger)

	paymentUC := usecase.NewPaymentUsecase(txns, ledgerSvc, nil, nil, nil, usecase.PaymentConfig{
		LedgerTimeout: time.Second,
		UnitPrice:     decimal.RequireFromString("2.50"),
		Currency:      "MXN",
	}, logger)
	balanceUC := usecase.NewBalanceUsecase(ledgerSvc, nil, nil, 0, logger)

	h := SetupRoutes(
		handler.NewPaymentHandler(paymentUC, logger),
		handler.NewBalanceHandler(balanceUC, logger),
		handler.NewLedgerHandler(ledgerSvc, testAPIKey, testAPISecret, logger),
		logger,
	)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func createPayment(t *testing.T, srv *httptest.Server, txType domain.TransactionType, amount int64) int64 {
	t.Helper()
	status, env := call(t, srv, http.MethodPost, "/api/createpayment", domain.CreateTransactionRequest{
		UserID:          1,
		RoleID:          2,
		TransactionType: txType,
		Amount:          amount,
	})
	if status != http.StatusCreated {
		t.Fatalf("create payment: status %d (%s)", status, env.Message)
	}
	var id int64
	if err := json.Unmarshal(env.Data, &id); err != nil {
		t.Fatalf("decode id: %v", err)
	}
	return id
}

func TestPaymentLifecycle(t *testing.T) {
	srv := newTestServer(t)

	if status, env := call(t, srv, http.MethodPost, "/api/createbalance/1", nil); status != http.StatusCreated {
		t.Fatalf("create balance: status %d (%s)", status, env.Message)
	}
	if status, _ := call(t, srv, http.MethodPost, "/api/createbalance/1", nil); status != http.StatusConflict {
		t.Fatalf("second create balance: status %d, want 409", status)
	}

	purchase := createPayment(t, srv, domain.TransactionTypeCreditPurchase, 10)
	status, env := call(t, srv, http.MethodPost, "/api/updatepayment", domain.UpdatePaymentRequest{ID: purchase, Status: domain.ActionConfirm})
	if status != http.StatusOK || env.Message != "payment completed" {
		t.Fatalf("confirm: status %d message %q", status, env.Message)
	}

	status, env = call(t, srv, http.MethodGet, "/api/UserCredit/1", nil)
	if status != http.StatusOK {
		t.Fatalf("user credit: status %d", status)
	}
	var balance domain.Balance
	if err := json.Unmarshal(env.Data, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.CreditBalance != 10 {
		t.Fatalf("credit balance = %d, want 10", balance.CreditBalance)
	}

	charge := createPayment(t, srv, domain.TransactionTypeReservationCharge, 15)
	status, env = call(t, srv, http.MethodPost, "/api/updatepayment", domain.UpdatePaymentRequest{ID: charge, Status: domain.ActionConfirm})
	if status != http.StatusConflict || env.Code != client.CodeInsufficientBalance {
		t.Fatalf("overdraw: status %d code %q", status, env.Code)
	}

	status, env = call(t, srv, http.MethodGet, "/api/getpayment/"+strconv.FormatInt(charge, 10), nil)
	if status != http.StatusOK {
		t.Fatalf("get payment: status %d", status)
	}
	var txn domain.Transaction
	if err := json.Unmarshal(env.Data, &txn); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if txn.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", txn.Status)
	}

	status, _ = call(t, srv, http.MethodPost, "/api/updatepayment", domain.UpdatePaymentRequest{ID: purchase, Status: domain.ActionConfirm})
	if status != http.StatusConflict {
		t.Fatalf("confirm twice: status %d, want 409", status)
	}

	status, env = call(t, srv, http.MethodGet, "/api/createbill/"+strconv.FormatInt(purchase, 10), nil)
	if status != http.StatusOK {
		t.Fatalf("create bill: status %d", status)
	}
	var bill domain.Bill
	if err := json.Unmarshal(env.Data, &bill); err != nil {
		t.Fatalf("decode bill: %v", err)
	}
	if !bill.Total.Equal(decimal.RequireFromString("25")) || !bill.Final {
		t.Fatalf("unexpected bill %+v", bill)
	}
}

func TestDenyPayment(t *testing.T) {
	srv := newTestServer(t)
	id := createPayment(t, srv, domain.TransactionTypeCreditPurchase, 3)

	status, env := call(t, srv, http.MethodPost, "/api/updatepayment", domain.UpdatePaymentRequest{ID: id, Status: domain.ActionDeny})
	if status != http.StatusOK || env.Message != "payment denied" {
		t.Fatalf("deny: status %d message %q", status, env.Message)
	}
	status, _ = call(t, srv, http.MethodPost, "/api/updatepayment", domain.UpdatePaymentRequest{ID: id, Status: domain.ActionConfirm})
	if status != http.StatusConflict {
		t.Fatalf("confirm after deny: status %d, want 409", status)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/createpayment", "{", http.StatusBadRequest},
		{"invalid payment", http.MethodPost, "/api/createpayment", domain.CreateTransactionRequest{UserID: 1, RoleID: 1, TransactionType: "refund", Amount: 1}, http.StatusBadRequest},
		{"unknown action", http.MethodPost, "/api/updatepayment", map[string]interface{}{"id": 1, "status": "approve"}, http.StatusBadRequest},
		{"unknown transaction", http.MethodPost, "/api/updatepayment", domain.UpdatePaymentRequest{ID: 99, Status: domain.ActionConfirm}, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/getpayment/abc", nil, http.StatusBadRequest},
		{"missing transaction", http.MethodGet, "/api/getpayment/42", nil, http.StatusNotFound},
		{"missing balance", http.MethodGet, "/api/UserCredit/7", nil, http.StatusNotFound},
		{"mismatched user", http.MethodPost, "/api/createbalance/1", domain.CreateBalanceRequest{UserID: 2}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := call(t, srv, tt.method, tt.path, tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d (%s)", status, tt.want, env.Message)
			}
			if env.Success {
				t.Fatal("error response reported success")
			}
		})
	}
}

func TestLedgerRoutesRequireSignature(t *testing.T) {
	srv := newTestServer(t)
	call(t, srv, http.MethodPost, "/api/createbalance/1", nil)

	path := "/internal/ledger/balances/1"
	if status, env := call(t, srv, http.MethodGet, path, nil); status != http.StatusUnauthorized || env.Code != client.CodeUnauthorized {
		t.Fatalf("unsigned: status %d code %q", status, env.Code)
	}

	signed := func(secret string) int {
		ts := time.Now().Unix()
		req, _ := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		req.Header.Set(client.HeaderAPIKey, testAPIKey)
		req.Header.Set(client.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(client.HeaderSignature, client.Sign(secret, http.MethodGet, path, nil, ts))
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("signed request: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if status := signed("wrong"); status != http.StatusUnauthorized {
		t.Fatalf("bad signature: status %d, want 401", status)
	}
	if status := signed(testAPISecret); status != http.StatusOK {
		t.Fatalf("good signature: status %d, want 200", status)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}
