/**
 * @description
 * This package provides a client for communicating with the account-service.
 * It encapsulates balance lookups and the debit/credit calls used by the
 * saga legs. All calls run through a circuit breaker so that a degraded
 * account service trips fast instead of tying up request handlers.
 *
 * @notes
 * - ErrInsufficientFunds is a business outcome distinct from
 *   ErrServiceUnavailable; callers compensate differently for each.
 * - The transaction id is sent as the idempotency key on every debit and
 *   credit, so a retried call cannot move funds twice.
 */
package accountclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

var (
	// ErrInsufficientFunds means the account service refused the debit because
	// the available balance does not cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrServiceUnavailable means the account service could not be reached or
	// answered with a server error, including when the circuit breaker is open.
	ErrServiceUnavailable = errors.New("account service unavailable")
)

// Client is a client for the account service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new account service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "account-service",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A refused debit is a business answer, not an outage.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrInsufficientFunds)
			},
		}),
	}
}

// Balance is the account service's view of available funds.
type Balance struct {
	AccountID uuid.UUID       `json:"account_id"`
	Available decimal.Decimal `json:"available"`
	Currency  string          `json:"currency"`
}

type movementRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// GetBalance retrieves the available balance for an account.
func (c *Client) GetBalance(ctx context.Context, accountID uuid.UUID) (*Balance, error) {
	url := fmt.Sprintf("%s/internal/accounts/%s/balance", c.baseURL, accountID)

	var balance Balance
	err := c.call(ctx, http.MethodGet, url, nil, &balance)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// Debit withdraws the amount from the account. The transaction id is the
// idempotency key: replaying a debit for the same transaction is a no-op on
// the account service side.
func (c *Client) Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency string, transactionID uuid.UUID) error {
	url := fmt.Sprintf("%s/internal/accounts/%s/debit", c.baseURL, accountID)
	payload := movementRequest{Amount: amount, Currency: currency, IdempotencyKey: transactionID.String()}
	return c.call(ctx, http.MethodPost, url, payload, nil)
}

// Credit returns the amount to the account, used by the compensation leg.
func (c *Client) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency string, transactionID uuid.UUID) error {
	url := fmt.Sprintf("%s/internal/accounts/%s/credit", c.baseURL, accountID)
	payload := movementRequest{Amount: amount, Currency: currency, IdempotencyKey: transactionID.String()}
	return c.call(ctx, http.MethodPost, url, payload, nil)
}

func (c *Client) call(ctx context.Context, method, url string, payload interface{}, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("account service base url is empty")
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		var body *bytes.Buffer
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request: %w", err)
			}
			body = bytes.NewBuffer(raw)
		} else {
			body = &bytes.Buffer{}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-Internal-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnprocessableEntity:
			return nil, ErrInsufficientFunds
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("account service returned error status %d", resp.StatusCode)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		// Breaker refusals look like outages to callers.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return err
	}
	return nil
}
