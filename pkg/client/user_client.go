package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"booking-payment-service/config"
	"booking-payment-service/internal/domain"

	"go.uber.org/zap"
)

// UserClient checks user existence against the identity service.
type UserClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewUserClient(cfg config.UserServiceConfig, logger *zap.Logger) *UserClient {
	return &UserClient{
		baseURL:    cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// UserExists returns domain.ErrUserNotFound when the identity service does not
// know userID. With no service configured every user is accepted.
func (c *UserClient) UserExists(ctx context.Context, userID int64) error {
	if c.baseURL == "" {
		return nil
	}

	url := c.baseURL + "/api/users/" + strconv.FormatInt(userID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("user service request failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("user service unavailable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrUserNotFound
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	}
	return fmt.Errorf("user service responded %d", resp.StatusCode)
}
