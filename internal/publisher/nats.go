// Package publisher hands relay outcome events to NATS.
package publisher

import (
	"context"
	"fmt"

	"github.com/blockedby/tg-relay/internal/relay"
)

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// NATSPublisher implements relay.OutcomePublisher
type NATSPublisher struct {
	js      NATSClient
	subject string
}

var _ relay.OutcomePublisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a publisher sending to subject.
func NewNATSPublisher(client NATSClient, subject string) *NATSPublisher {
	return &NATSPublisher{js: client, subject: subject}
}

// PublishOutcome publishes the summary of one relayed batch.
func (p *NATSPublisher) PublishOutcome(ctx context.Context, event relay.OutcomeEvent) error {
	if err := p.js.Publish(ctx, p.subject, event); err != nil {
		return fmt.Errorf("publish outcome %s: %w", event.BatchID, err)
	}
	return nil
}
