package relay

import (
	"context"

	"github.com/google/uuid"

	"github.com/blockedby/tg-relay/internal/logger"
)

// Worker relays batches one at a time in arrival order.
type Worker struct {
	policy    *Policy
	source    ResolvedChannel
	targets   []ResolvedChannel
	publisher OutcomePublisher
	log       *logger.Logger
}

// NewWorker creates a worker for one connection cycle. publisher may be nil.
func NewWorker(policy *Policy, source ResolvedChannel, targets []ResolvedChannel, publisher OutcomePublisher, log *logger.Logger) *Worker {
	return &Worker{
		policy:    policy,
		source:    source,
		targets:   targets,
		publisher: publisher,
		log:       log,
	}
}

// Run drains batches until the channel is closed. Once ctx is done the
// remaining batches are dropped instead of relayed.
func (w *Worker) Run(ctx context.Context, batches <-chan Batch) {
	for batch := range batches {
		if ctx.Err() != nil {
			w.log.Warn().Ints("message_ids", batch.IDs()).Msg("connection closed, dropping batch")
			continue
		}
		w.Handle(ctx, batch)
	}
}

// Handle relays a single batch and reports the outcome.
func (w *Worker) Handle(ctx context.Context, batch Batch) []RelayOutcome {
	id := uuid.New()
	log := w.log.With().Str("batch_id", id.String()).Ints("message_ids", batch.IDs()).Logger()

	log.Info().
		Int("targets", len(w.targets)).
		Bool("album", batch.IsAlbum()).
		Str("mode", w.policy.Mode().String()).
		Msg("new post detected, relaying")

	outcomes := w.policy.Relay(ctx, w.source, batch, w.targets)

	var ok, failed int
	for _, o := range outcomes {
		if o.Succeeded {
			ok++
		} else {
			failed++
		}
	}

	ev := log.Info()
	if failed > 0 {
		ev = log.Warn()
	}
	ev.Int("ok", ok).Int("failed", failed).Msg("relay finished")

	if w.publisher != nil {
		event := NewOutcomeEvent(id, w.source, batch, w.policy.Mode(), outcomes)
		if err := w.publisher.PublishOutcome(ctx, event); err != nil {
			log.Warn().Err(err).Msg("failed to publish relay outcome")
		}
	}

	return outcomes
}
