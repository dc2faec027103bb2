package relay

import (
	"context"
	"fmt"

	"github.com/blockedby/tg-relay/internal/logger"
)

// Resolver turns a configured channel ref into a usable channel.
type Resolver interface {
	ResolveChannel(ctx context.Context, ref ChannelRef) (ResolvedChannel, error)
}

// ResolveSource resolves the source channel. Any failure aborts the cycle.
func ResolveSource(ctx context.Context, r Resolver, ref ChannelRef, log *logger.Logger) (ResolvedChannel, error) {
	ch, err := r.ResolveChannel(ctx, ref)
	if err != nil {
		return ResolvedChannel{}, fmt.Errorf("%w: source %s: %w", ErrFatalConfig, ref, err)
	}
	log.Info().Int64("channel_id", ch.ID).Str("title", ch.Title).Msg("source channel resolved")
	return ch, nil
}

// ResolveTargets resolves every target ref in order. Unresolvable refs are
// logged and dropped; so are duplicates and the source itself. Returns
// ErrNoTargets when nothing is left.
func ResolveTargets(ctx context.Context, r Resolver, source ResolvedChannel, refs []ChannelRef, log *logger.Logger) ([]ResolvedChannel, error) {
	seen := map[int64]bool{source.ID: true}
	var out []ResolvedChannel

	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ch, err := r.ResolveChannel(ctx, ref)
		if err != nil {
			log.Error().Err(err).Str("ref", ref.String()).Msg("failed to resolve target channel, skipping")
			continue
		}
		if ch.ID == source.ID {
			log.Warn().Str("ref", ref.String()).Msg("target is the source channel, skipping")
			continue
		}
		if seen[ch.ID] {
			log.Warn().Str("ref", ref.String()).Int64("channel_id", ch.ID).Msg("duplicate target channel, skipping")
			continue
		}
		seen[ch.ID] = true

		log.Info().Int("index", i+1).Int64("channel_id", ch.ID).Str("title", ch.Title).Msg("target channel resolved")
		out = append(out, ch)
	}

	if len(out) == 0 {
		return nil, ErrNoTargets
	}
	return out, nil
}
