package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestCreateTransactionRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateTransactionRequest
		wantErr bool
		field   string
	}{
		{
			name: "valid credit purchase",
			req:  CreateTransactionRequest{UserID: 1, RoleID: 1, TransactionType: TransactionTypeCreditPurchase, Amount: 100},
		},
		{
			name: "valid reservation charge",
			req:  CreateTransactionRequest{UserID: 2, RoleID: 3, TransactionType: TransactionTypeReservationCharge, Amount: 1},
		},
		{
			name:    "zero user",
			req:     CreateTransactionRequest{UserID: 0, RoleID: 1, TransactionType: TransactionTypeCreditPurchase, Amount: 100},
			wantErr: true,
			field:   "userId",
		},
		{
			name:    "negative role",
			req:     CreateTransactionRequest{UserID: 1, RoleID: -1, TransactionType: TransactionTypeCreditPurchase, Amount: 100},
			wantErr: true,
			field:   "roleId",
		},
		{
			name:    "zero role",
			req:     CreateTransactionRequest{UserID: 1, RoleID: 0, TransactionType: TransactionTypeCreditPurchase, Amount: 100},
			wantErr: true,
			field:   "roleId",
		},
		{
			name:    "unknown type",
			req:     CreateTransactionRequest{UserID: 1, RoleID: 1, TransactionType: "refund", Amount: 100},
			wantErr: true,
			field:   "transactionType",
		},
		{
			name:    "zero amount",
			req:     CreateTransactionRequest{UserID: 1, RoleID: 1, TransactionType: TransactionTypeCreditPurchase, Amount: 0},
			wantErr: true,
			field:   "amount",
		},
		{
			name:    "negative amount",
			req:     CreateTransactionRequest{UserID: 1, RoleID: 1, TransactionType: TransactionTypeReservationCharge, Amount: -5},
			wantErr: true,
			field:   "amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestCreateTransactionRequestReportsAllProblems(t *testing.T) {
	req := CreateTransactionRequest{}
	err := req.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"userId", "roleId", "transactionType", "amount"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestUpdatePaymentRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  UpdatePaymentRequest
		want error
	}{
		{"confirm", UpdatePaymentRequest{ID: 1, Status: ActionConfirm}, nil},
		{"deny", UpdatePaymentRequest{ID: 1, Status: ActionDeny}, nil},
		{"missing id", UpdatePaymentRequest{Status: ActionConfirm}, ErrValidation},
		{"unknown action", UpdatePaymentRequest{ID: 1, Status: "completed"}, ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateBalanceRequestValidate(t *testing.T) {
	if err := (&CreateBalanceRequest{UserID: 5}).Validate(); err != nil {
		t.Fatalf("roleId 0 should be accepted: %v", err)
	}
	if err := (&CreateBalanceRequest{UserID: 0}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := (&CreateBalanceRequest{UserID: 1, RoleID: -2}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
