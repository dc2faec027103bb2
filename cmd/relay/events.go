package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blockedby/tg-relay/internal/config"
	"github.com/blockedby/tg-relay/internal/logger"
	"github.com/blockedby/tg-relay/internal/nats"
	"github.com/blockedby/tg-relay/internal/relay"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print relay outcome events published to NATS",
	Long:  "Follow NATS_SUBJECT on NATS_STREAM and print one line per relayed batch until interrupted.",
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}
	log := logger.Get()

	if cfg.NatsURL == "" || cfg.NatsStream == "" {
		return fmt.Errorf("%w: NATS_URL and NATS_STREAM are required", config.ErrInvalid)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.New(ctx, cfg.NatsURL, log)
	if err != nil {
		return err
	}
	defer nc.Close()

	unsubscribe, err := nc.Subscribe(ctx, cfg.NatsStream, cfg.NatsSubject, func(data []byte) error {
		var ev relay.OutcomeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// malformed payloads would be redelivered forever
			log.Warn().Err(err).Msg("skipping malformed outcome event")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev))
		return nil
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	log.Info().Str("stream", cfg.NatsStream).Str("subject", cfg.NatsSubject).Msg("following relay outcomes")
	<-ctx.Done()
	return nil
}

func formatEvent(ev relay.OutcomeEvent) string {
	ok := 0
	for _, o := range ev.Outcomes {
		if o.Succeeded {
			ok++
		}
	}
	line := fmt.Sprintf("%s %s source=%d messages=%v ok=%d failed=%d",
		ev.RelayedAt.Format("2006-01-02 15:04:05"), ev.Mode, ev.SourceID, ev.MessageIDs, ok, len(ev.Outcomes)-ok)
	for _, o := range ev.Outcomes {
		if !o.Succeeded {
			line += fmt.Sprintf("\n  %d %s: %s", o.TargetID, o.Title, o.Error)
		}
	}
	return line
}
