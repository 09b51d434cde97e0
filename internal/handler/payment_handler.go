// internal/handler/payment_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"booking-payment-service/internal/domain"
	"booking-payment-service/internal/usecase"
	"booking-payment-service/pkg/client"

	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentUC *usecase.PaymentUsecase
	logger    *zap.Logger
}

func NewPaymentHandler(paymentUC *usecase.PaymentUsecase, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentUC: paymentUC,
		logger:    logger,
	}
}

// CreatePayment records a pending transaction and returns its id.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode create payment request", zap.Error(err))
		sendError(w, http.StatusBadRequest, "invalid request body", client.CodeValidation)
		return
	}

	txn, err := h.paymentUC.Create(r.Context(), &req)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	sendSuccess(w, http.StatusCreated, "payment created", txn.ID)
}

// UpdatePayment confirms or denies a pending transaction.
func (h *PaymentHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode update payment request", zap.Error(err))
		sendError(w, http.StatusBadRequest, "invalid request body", client.CodeValidation)
		return
	}

	h.logger.Info("payment update received",
		zap.Int64("transaction_id", req.ID),
		zap.String("action", string(req.Status)))

	txn, err := h.paymentUC.Update(r.Context(), &req)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	message := "payment completed"
	if txn.Status == domain.StatusFailed {
		message = "payment denied"
	}
	sendSuccess(w, http.StatusOK, message, txn.ID)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		sendError(w, http.StatusBadRequest, "invalid transaction id", client.CodeValidation)
		return
	}

	txn, err := h.paymentUC.Get(r.Context(), id)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "payment retrieved", txn)
}

// CreateBill returns the bill for a transaction.
func (h *PaymentHandler) CreateBill(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		sendError(w, http.StatusBadRequest, "invalid transaction id", client.CodeValidation)
		return
	}

	bill, err := h.paymentUC.IssueBill(r.Context(), id)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "bill issued", bill)
}
