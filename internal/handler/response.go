package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"booking-payment-service/internal/domain"
	"booking-payment-service/pkg/client"

	"github.com/go-chi/chi/v5"
)

func sendSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func sendError(w http.ResponseWriter, statusCode int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(client.Envelope{
		Success: false,
		Message: message,
		Code:    code,
	})
}

// sendDomainError writes the status and message for err. Only validation
// errors echo their text; everything else gets a fixed message.
func sendDomainError(w http.ResponseWriter, err error) {
	status, message, code := classify(err)
	sendError(w, status, message, code)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidAction):
		return http.StatusBadRequest, err.Error(), client.CodeValidation

	case errors.Is(err, domain.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction not found", ""
	case errors.Is(err, domain.ErrBalanceNotFound):
		return http.StatusNotFound, "balance not found", client.CodeBalanceNotFound
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found", ""
	case errors.Is(err, domain.ErrOperationNotFound):
		return http.StatusNotFound, "ledger operation not found", client.CodeOperationNotFound

	case errors.Is(err, domain.ErrAlreadyCompleted):
		return http.StatusConflict, "transaction already completed", ""
	case errors.Is(err, domain.ErrAlreadyFailed):
		return http.StatusConflict, "transaction already failed", ""
	case errors.Is(err, domain.ErrConfirmationInProgress), errors.Is(err, domain.ErrStaleTransition):
		return http.StatusConflict, "transaction confirmation already in progress", ""
	case errors.Is(err, domain.ErrBalanceExists):
		return http.StatusConflict, "balance already exists for user", client.CodeBalanceExists
	case errors.Is(err, domain.ErrLedgerConflict):
		return http.StatusConflict, "ledger reference reused with different parameters", client.CodeLedgerConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict, "payment failed: insufficient credit balance", client.CodeInsufficientBalance

	case errors.Is(err, domain.ErrLedgerOutcomeUnknown):
		return http.StatusBadGateway, "payment outcome unknown, it will be reconciled", ""
	case errors.Is(err, domain.ErrLedgerFailure):
		return http.StatusBadGateway, "payment failed: credit ledger unavailable", ""

	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, "storage unavailable, retry later", client.CodeInternal
	}
	return http.StatusInternalServerError, "internal server error", client.CodeInternal
}

func int64Param(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
