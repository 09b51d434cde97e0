// pkg/client/ledger_client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"booking-payment-service/config"
	"booking-payment-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Error codes carried in the ledger API envelope so callers can tell apart
// responses that share an HTTP status.
const (
	CodeValidation          = "validation_error"
	CodeBalanceNotFound     = "balance_not_found"
	CodeOperationNotFound   = "operation_not_found"
	CodeBalanceExists       = "balance_exists"
	CodeLedgerConflict      = "ledger_conflict"
	CodeInsufficientBalance = "insufficient_balance"
	CodeUnauthorized        = "unauthorized"
	CodeInternal            = "internal_error"
)

// Envelope is the response body of the ledger API.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// LedgerClient talks to a ledger-of-record running in another process.
type LedgerClient struct {
	config     config.LedgerConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewLedgerClient(cfg config.LedgerConfig, logger *zap.Logger) *LedgerClient {
	return &LedgerClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.PerAttemptTimeout(),
		},
		logger: logger,
	}
}

func (c *LedgerClient) Increase(ctx context.Context, userID, amount int64, reference string) (*domain.LedgerOperation, error) {
	return c.apply(ctx, "/internal/ledger/increase", domain.LedgerRequest{
		Reference: reference,
		UserID:    userID,
		Direction: domain.LedgerIncrease,
		Amount:    amount,
	})
}

func (c *LedgerClient) Decrease(ctx context.Context, userID, amount int64, reference string) (*domain.LedgerOperation, error) {
	return c.apply(ctx, "/internal/ledger/decrease", domain.LedgerRequest{
		Reference: reference,
		UserID:    userID,
		Direction: domain.LedgerDecrease,
		Amount:    amount,
	})
}

// Lookup fetches the operation recorded for reference.
func (c *LedgerClient) Lookup(ctx context.Context, reference string) (*domain.LedgerOperation, error) {
	path := "/internal/ledger/operations/" + url.PathEscape(reference)
	env, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, envelopeError(status, env)
	}
	var op domain.LedgerOperation
	if err := json.Unmarshal(env.Data, &op); err != nil {
		return nil, fmt.Errorf("%w: decode operation: %w", domain.ErrLedgerOutcomeUnknown, err)
	}
	return &op, nil
}

func (c *LedgerClient) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	path := "/internal/ledger/balances/" + strconv.FormatInt(userID, 10)
	env, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, envelopeError(status, env)
	}
	var b domain.Balance
	if err := json.Unmarshal(env.Data, &b); err != nil {
		return nil, fmt.Errorf("%w: decode balance: %w", domain.ErrLedgerFailure, err)
	}
	return &b, nil
}

func (c *LedgerClient) CreateBalance(ctx context.Context, userID, roleID int64) (*domain.Balance, error) {
	payload, err := json.Marshal(domain.CreateBalanceRequest{UserID: userID, RoleID: roleID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	env, status, err := c.do(ctx, http.MethodPost, "/internal/ledger/balances", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, envelopeError(status, env)
	}
	var b domain.Balance
	if err := json.Unmarshal(env.Data, &b); err != nil {
		return nil, fmt.Errorf("%w: decode balance: %w", domain.ErrLedgerFailure, err)
	}
	return &b, nil
}

func (c *LedgerClient) apply(ctx context.Context, path string, req domain.LedgerRequest) (*domain.LedgerOperation, error) {
	c.logger.Info("sending ledger operation",
		zap.String("reference", req.Reference),
		zap.Int64("user_id", req.UserID),
		zap.String("direction", string(req.Direction)),
		zap.Int64("amount", req.Amount))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	env, status, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusUnprocessableEntity:
		var op domain.LedgerOperation
		if err := json.Unmarshal(env.Data, &op); err != nil {
			// The ledger answered but we cannot read what it did.
			return nil, fmt.Errorf("%w: decode operation: %w", domain.ErrLedgerOutcomeUnknown, err)
		}
		if opErr := op.Err(); opErr != nil {
			c.logger.Warn("ledger operation rejected",
				zap.String("reference", op.Reference),
				zap.String("reason", op.Reason))
			return &op, opErr
		}
		return &op, nil
	default:
		return nil, envelopeError(status, env)
	}
}

// do sends a signed request, retrying transport failures and 5xx responses with
// exponential backoff. Every ledger call is idempotent per reference, so a retry
// never applies an operation twice.
func (c *LedgerClient) do(ctx context.Context, method, path string, body []byte) (*Envelope, int, error) {
	requestID := uuid.NewString()
	backoff := c.config.RetryBackoff
	attempts := c.config.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	// maybeSent flips once any attempt could have reached the ledger.
	var maybeSent bool
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		env, status, err := c.send(ctx, method, path, body, requestID)
		if err == nil && status < http.StatusInternalServerError {
			return env, status, nil
		}

		if err != nil {
			if !isDialError(err) {
				maybeSent = true
			}
			lastErr = err
		} else {
			maybeSent = true
			lastErr = fmt.Errorf("ledger responded %d: %s", status, env.Message)
		}

		c.logger.Warn("ledger request failed",
			zap.String("request_id", requestID),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, 0, giveUp(maybeSent, ctx.Err())
		}
		backoff *= 2
	}

	return nil, 0, giveUp(maybeSent, lastErr)
}

func giveUp(maybeSent bool, err error) error {
	if maybeSent {
		return fmt.Errorf("%w: %w", domain.ErrLedgerOutcomeUnknown, err)
	}
	return fmt.Errorf("%w: ledger unreachable: %w", domain.ErrLedgerFailure, err)
}

func (c *LedgerClient) send(ctx context.Context, method, path string, body []byte, requestID string) (*Envelope, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := time.Now().Unix()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderAPIKey, c.config.APIKey)
	httpReq.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	httpReq.Header.Set(HeaderSignature, Sign(c.config.APISecret, method, path, body, timestamp))
	httpReq.Header.Set(HeaderRequestID, requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return &Envelope{Message: http.StatusText(resp.StatusCode)}, resp.StatusCode, nil
		}
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return &env, resp.StatusCode, nil
}

// envelopeError maps a non-success ledger response to a domain error.
func envelopeError(status int, env *Envelope) error {
	switch env.Code {
	case CodeValidation:
		return fmt.Errorf("%w: %s", domain.ErrValidation, env.Message)
	case CodeBalanceNotFound:
		return domain.ErrBalanceNotFound
	case CodeOperationNotFound:
		return domain.ErrOperationNotFound
	case CodeBalanceExists:
		return domain.ErrBalanceExists
	case CodeLedgerConflict:
		return domain.ErrLedgerConflict
	case CodeInsufficientBalance:
		return domain.ErrInsufficientBalance
	}
	return fmt.Errorf("%w: ledger responded %d: %s", domain.ErrLedgerFailure, status, env.Message)
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
