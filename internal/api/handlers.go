/**
 * @description
 * This file contains the HTTP handlers for the payment-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ebanking/payment-service/internal/app"
	"github.com/ebanking/payment-service/internal/domain"
	"github.com/ebanking/payment-service/internal/store"
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service      *app.Service
	limiter      *app.RedisPaymentRateLimiter
	rateLimitMin int
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service, limiter *app.RedisPaymentRateLimiter, rateLimitPerMinute int) *PaymentHandlers {
	return &PaymentHandlers{service: service, limiter: limiter, rateLimitMin: rateLimitPerMinute}
}

// CreatePaymentHandler handles requests to initiate a transfer.
func (h *PaymentHandlers) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Per-account rate limit: the limit applies to the debited account, not
	// the caller's IP, so one customer cannot spray transfers from many hosts.
	if h.limiter != nil && req.SourceAccountID != uuid.Nil {
		allowed, retryAfter, err := h.limiter.Allow(r.Context(), "payments", req.SourceAccountID.String(), h.rateLimitMin, time.Minute)
		if err != nil {
			// A broken limiter must not take payments down with it.
			log.Printf("WARN: rate limiter unavailable, letting request through: %v", err)
		} else if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many payment requests for this account, slow down")
			return
		}
	}

	response, err := h.service.InitiatePayment(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api msg=\"payment initiation failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to process the payment request")
		return
	}

	h.writeJSON(w, statusCodeFor(response.Status), response)
}

// GetPaymentHandler returns the current view of one transaction.
func (h *PaymentHandlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	txn, err := h.service.GetPayment(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		log.Printf("level=error component=api msg=\"transaction lookup failed\" transaction_id=%s err=%v", transactionID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load the transaction")
		return
	}

	h.writeJSON(w, http.StatusOK, txn)
}

// statusCodeFor maps a payment outcome to its HTTP status. Fraud refusals are
// unprocessable requests, not server errors.
func statusCodeFor(status domain.TransactionStatus) int {
	switch status {
	case domain.StatusPending, domain.StatusValidated, domain.StatusCompleted:
		return http.StatusCreated
	case domain.StatusPendingManualReview:
		return http.StatusAccepted
	case domain.StatusRejected, domain.StatusFraudSuspected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
