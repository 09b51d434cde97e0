package handler

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"booking-payment-service/internal/domain"
	"booking-payment-service/pkg/client"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxLedgerBody = 64 << 10

// LedgerService is the ledger-of-record served to remote payment instances.
type LedgerService interface {
	Apply(ctx context.Context, req domain.LedgerRequest) (*domain.LedgerOperation, error)
	Lookup(ctx context.Context, reference string) (*domain.LedgerOperation, error)
	GetBalance(ctx context.Context, userID int64) (*domain.Balance, error)
	CreateBalance(ctx context.Context, userID, roleID int64) (*domain.Balance, error)
}

type LedgerHandler struct {
	ledger    LedgerService
	apiKey    string
	apiSecret string
	logger    *zap.Logger
	now       func() time.Time
}

func NewLedgerHandler(ledger LedgerService, apiKey, apiSecret string, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		logger:    logger,
		now:       time.Now,
	}
}

// Authenticate rejects requests whose API key or HMAC signature does not check out.
func (h *LedgerHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxLedgerBody))
		if err != nil {
			sendError(w, http.StatusBadRequest, "failed to read request body", client.CodeValidation)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		key := r.Header.Get(client.HeaderAPIKey)
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			h.reject(w, r, "unknown api key")
			return
		}
		if len(body) == 0 {
			body = nil
		}
		err = client.Verify(h.apiSecret, r.Method, r.URL.EscapedPath(), body,
			r.Header.Get(client.HeaderTimestamp), r.Header.Get(client.HeaderSignature), h.now())
		if err != nil {
			h.reject(w, r, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *LedgerHandler) reject(w http.ResponseWriter, r *http.Request, reason string) {
	h.logger.Warn("ledger request rejected",
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("reason", reason))
	sendError(w, http.StatusUnauthorized, "unauthorized", client.CodeUnauthorized)
}

func (h *LedgerHandler) Increase(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, domain.LedgerIncrease)
}

func (h *LedgerHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, domain.LedgerDecrease)
}

func (h *LedgerHandler) apply(w http.ResponseWriter, r *http.Request, direction domain.LedgerDirection) {
	var req domain.LedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", client.CodeValidation)
		return
	}
	if req.Direction == "" {
		req.Direction = direction
	}
	if req.Direction != direction {
		sendError(w, http.StatusBadRequest, "direction does not match route", client.CodeValidation)
		return
	}
	if err := req.Validate(); err != nil {
		sendDomainError(w, err)
		return
	}

	op, err := h.ledger.Apply(r.Context(), req)
	if err != nil {
		if op != nil {
			// Rejected and journaled: the caller gets the recorded operation.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			data, _ := json.Marshal(op)
			json.NewEncoder(w).Encode(client.Envelope{
				Success: false,
				Data:    data,
				Message: op.Reason,
				Code:    op.Reason,
			})
			return
		}
		sendDomainError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "ledger operation applied", op)
}

func (h *LedgerHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		sendError(w, http.StatusBadRequest, "reference is required", client.CodeValidation)
		return
	}

	op, err := h.ledger.Lookup(r.Context(), reference)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "ledger operation retrieved", op)
}

func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "userId")
	if !ok {
		sendError(w, http.StatusBadRequest, "invalid user id", client.CodeValidation)
		return
	}

	b, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "balance retrieved", b)
}

func (h *LedgerHandler) CreateBalance(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		sendError(w, http.StatusBadRequest, "invalid request body", client.CodeValidation)
		return
	}
	if err := req.Validate(); err != nil {
		sendDomainError(w, err)
		return
	}

	b, err := h.ledger.CreateBalance(r.Context(), req.UserID, req.RoleID)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "balance created", b)
}
