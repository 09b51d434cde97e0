package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"booking-payment-service/internal/domain"
	"booking-payment-service/internal/usecase"
	"booking-payment-service/pkg/client"

	"go.uber.org/zap"
)

type BalanceHandler struct {
	balanceUC *usecase.BalanceUsecase
	logger    *zap.Logger
}

func NewBalanceHandler(balanceUC *usecase.BalanceUsecase, logger *zap.Logger) *BalanceHandler {
	return &BalanceHandler{
		balanceUC: balanceUC,
		logger:    logger,
	}
}

// CreateBalance opens a zero balance for the user in the path. The body is
// optional; a userId in it must match the path.
func (h *BalanceHandler) CreateBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "userId")
	if !ok {
		sendError(w, http.StatusBadRequest, "invalid user id", client.CodeValidation)
		return
	}

	var req domain.CreateBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		sendError(w, http.StatusBadRequest, "invalid request body", client.CodeValidation)
		return
	}
	if req.UserID != 0 && req.UserID != userID {
		sendError(w, http.StatusBadRequest, "userId in body does not match path", client.CodeValidation)
		return
	}
	req.UserID = userID

	balance, err := h.balanceUC.CreateBalance(r.Context(), &req)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "balance created", balance.ID)
}

// GetUserCredit returns the user's current credit balance.
func (h *BalanceHandler) GetUserCredit(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "userId")
	if !ok {
		sendError(w, http.StatusBadRequest, "invalid user id", client.CodeValidation)
		return
	}

	balance, err := h.balanceUC.GetBalance(r.Context(), userID)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "balance retrieved", balance)
}
