package telegram

import (
	"context"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"

	"github.com/blockedby/tg-relay/internal/config"
	"github.com/blockedby/tg-relay/internal/database"
)

// NewPersistentClient starts a gotgproto client. A configured string
// session takes precedence and is kept in memory; otherwise the session
// store at SESSION_PATH is used, and auth key refreshes are written back
// to it. With an empty store gotgproto falls back to an interactive login
// for TG_PHONE.
func NewPersistentClient(_ context.Context, cfg *config.Config) (*gotgproto.Client, error) {
	opts := &gotgproto.ClientOpts{
		DisableCopyright: true,
	}

	if cfg.TGSessionStr != "" {
		opts.Session = sessionMaker.StringSession(cfg.TGSessionStr)
		opts.InMemory = true
	} else {
		if err := database.Prepare(cfg.SessionPath); err != nil {
			return nil, err
		}
		opts.Session = sessionMaker.SqlSession(database.Dialector(cfg.SessionPath))
	}

	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(cfg.TGPhone), // empty = use session
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}
	return client, nil
}
