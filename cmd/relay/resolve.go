package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blockedby/tg-relay/internal/relay"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Connect once and print the resolved source and target channels",
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, _ []string) error {
	cfg, log := setup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, closeStore, err := newManager(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer closeStore()

	sess, err := manager.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Disconnect()

	source, err := relay.ResolveSource(ctx, sess, relay.ChannelRef(cfg.SourceChannel), log)
	if err != nil {
		return err
	}
	targets, err := relay.ResolveTargets(ctx, sess, source, relay.Refs(cfg.TargetChannels), log)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tREF\tID\tTITLE")
	fmt.Fprintf(w, "source\t%s\t%d\t%s\n", source.Ref, source.ID, source.Title)
	for _, t := range targets {
		fmt.Fprintf(w, "target\t%s\t%d\t%s\n", t.Ref, t.ID, t.Title)
	}
	return w.Flush()
}
