/**
 * @description
 * This package provides a client for the legacy settlement adapter, the system
 * that actually moves funds to the destination bank. The adapter is the least
 * reliable dependency in the chain, so every call runs through a circuit
 * breaker with a bounded timeout.
 *
 * @notes
 * - A settlement refusal (Success=false) is a normal response, not an error.
 *   Errors mean the adapter could not be reached at all.
 */
package legacyclient

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

// ErrServiceUnavailable means the legacy adapter could not be reached or
// answered with a server error, including when the circuit breaker is open.
var ErrServiceUnavailable = errors.New("legacy adapter unavailable")

// Client is a client for the legacy settlement adapter.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new legacy adapter client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "legacy-adapter",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// SettlementRequest is the payload sent to the legacy adapter.
type SettlementRequest struct {
	TransactionID   uuid.UUID       `json:"transaction_id"`
	SourceAccountID uuid.UUID       `json:"source_account_id"`
	DestinationIBAN string          `json:"destination_iban"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// SettlementResponse is the adapter's answer. LegacyReference is the booking
// reference in the core banking system when the settlement was accepted.
type SettlementResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	LegacyReference string `json:"legacy_reference,omitempty"`
}

// SendPayment submits a settlement to the legacy adapter. The transaction id
// doubles as the adapter-side idempotency key.
func (c *Client) SendPayment(ctx context.Context, request SettlementRequest) (*SettlementResponse, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("legacy adapter base url is empty")
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		raw, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		url := fmt.Sprintf("%s/api/v1/settlements", c.baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", request.TransactionID.String())
		if c.apiKey != "" {
			req.Header.Set("X-Internal-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("legacy adapter returned error status %d", resp.StatusCode)
		}

		var response SettlementResponse
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &response, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return nil, err
	}
	return result.(*SettlementResponse), nil
}
