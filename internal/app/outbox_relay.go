/**
 * @description
 * Outbox relay. Drains PENDING outbox events to the message bus in bounded
 * batches: claim under row locks, publish with the correlation id as the
 * ordering key, then mark the row PUBLISHED or record the failure. Events
 * whose retry count passes the ceiling become terminal FAILED and are left
 * for manual follow-up.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ebanking/payment-service/internal/store"
	"github.com/ebanking/payment-service/pkg/rabbitmq"
)

// Relay moves committed outbox events onto the message bus.
type Relay struct {
	repo       store.Repository
	publisher  rabbitmq.Publisher
	exchange   string
	batchSize  int
	maxRetries int
}

// NewRelay creates an outbox relay publishing to the given exchange.
func NewRelay(repo store.Repository, publisher rabbitmq.Publisher, exchange string, batchSize, maxRetries int) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Relay{
		repo:       repo,
		publisher:  publisher,
		exchange:   exchange,
		batchSize:  batchSize,
		maxRetries: maxRetries,
	}
}

// SweepOnce claims one batch of pending events and publishes them in creation
// order. It returns the number of events successfully published.
func (r *Relay) SweepOnce(ctx context.Context) (int, error) {
	events, err := r.repo.ClaimPendingOutboxEvents(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	for _, event := range events {
		routingKey := routingKeyFor(event.AggregateType, event.EventType)
		if err := r.publisher.Publish(ctx, r.exchange, routingKey, event.CorrelationID, event.Payload); err != nil {
			log.Printf("WARN: outbox event %d publish failed (attempt %d/%d): %v", event.ID, event.RetryCount, r.maxRetries, err)
			if markErr := r.repo.MarkOutboxFailed(ctx, event.ID, err.Error(), r.maxRetries); markErr != nil {
				log.Printf("WARN: failed to record outbox failure for event %d: %v", event.ID, markErr)
			}
			continue
		}
		if err := r.repo.MarkOutboxPublished(ctx, event.ID); err != nil {
			// The message is on the bus but the row still says PENDING; the
			// next sweep republishes it. Consumers must tolerate duplicates.
			log.Printf("WARN: outbox event %d published but not marked: %v", event.ID, err)
			continue
		}
		published++
	}
	return published, nil
}

// routingKeyFor derives the topic routing key for an event, for example
// "transaction.payment_completed".
func routingKeyFor(aggregateType, eventType string) string {
	return fmt.Sprintf("%s.%s", strings.ToLower(aggregateType), strings.ToLower(eventType))
}
