package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blockedby/tg-relay/internal/config"
	"github.com/blockedby/tg-relay/internal/logger"
	"github.com/blockedby/tg-relay/internal/nats"
	"github.com/blockedby/tg-relay/internal/publisher"
	"github.com/blockedby/tg-relay/internal/relay"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay until interrupted",
	RunE:  runRelay,
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, log := setup()
	log.Info().
		Str("source", cfg.SourceChannel).
		Strs("targets", cfg.TargetChannels).
		Str("mode", cfg.RelayMode).
		Msg("starting channel relay")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supCfg, err := supervisorConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if nc := connectNATS(ctx, cfg, log); nc != nil {
		defer nc.Close()
		supCfg.Publisher = publisher.NewNATSPublisher(nc, cfg.NatsSubject)
	}

	manager, closeStore, err := newManager(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer closeStore()

	supCfg.OnTransition = func(from, to relay.State) {
		log.Info().Str("from", string(from)).Str("to", string(to)).Msg("connection state")
	}
	supervisor := relay.NewSupervisor(manager, supCfg, log.Named("supervisor"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		return relay.Heartbeat(gctx, cfg.HeartbeatInterval, log.Named("heartbeat"))
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("relay stopped")
		return err
	}

	log.Info().Msg("shutdown complete")
	return nil
}

// connectNATS returns nil when publishing is not configured or the
// server is unreachable; the relay runs without events then.
func connectNATS(ctx context.Context, cfg *config.Config, log *logger.Logger) *nats.Client {
	if cfg.NatsURL == "" {
		return nil
	}

	nc, err := nats.New(ctx, cfg.NatsURL, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		return nil
	}

	if cfg.NatsStream != "" {
		if err := nc.EnsureStream(ctx, cfg.NatsStream, []string{cfg.NatsSubject}); err != nil {
			log.Warn().Err(err).Msg("failed to ensure nats stream")
		}
	}
	log.Info().Str("subject", cfg.NatsSubject).Msg("publishing relay outcomes to nats")
	return nc
}

