package main

import (
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/blockedby/tg-relay/internal/config"
	"github.com/blockedby/tg-relay/internal/database"
	"github.com/blockedby/tg-relay/internal/logger"
	"github.com/blockedby/tg-relay/internal/relay"
	"github.com/blockedby/tg-relay/internal/telegram"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay posts of one Telegram channel to other channels",
	Long: `relay watches a source channel with a user account and reproduces every
new post on the configured target channels, by forwarding, by copying or by
reposting re-uploaded media. Configuration is read from the environment and
an optional .env file.`,
	SilenceUsage: true,
	RunE:         runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads and validates configuration and initializes the logger.
// Configuration errors end the process.
func setup() (*config.Config, *logger.Logger) {
	cfg, err := config.Load()
	if err != nil {
		// the logger is configured from cfg, so it cannot report this
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg, log
}

// newManager opens the session store unless a string session is
// configured. The returned func closes the store.
func newManager(cfg *config.Config, log *logger.Logger) (*telegram.Manager, func(), error) {
	if cfg.TGSessionStr != "" {
		return telegram.NewManager(cfg, nil), func() {}, nil
	}

	db, err := database.Open(cfg.SessionPath)
	if err != nil {
		return nil, nil, err
	}
	log.Debug().Str("path", cfg.SessionPath).Msg("session store opened")
	return telegram.NewManager(cfg, db), func() { closeDB(db) }, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// supervisorConfig maps configuration onto the supervisor.
func supervisorConfig(cfg *config.Config) (relay.SupervisorConfig, error) {
	mode, err := relay.ParseMode(cfg.RelayMode)
	if err != nil {
		return relay.SupervisorConfig{}, err
	}
	return relay.SupervisorConfig{
		Source:  relay.ChannelRef(cfg.SourceChannel),
		Targets: relay.Refs(cfg.TargetChannels),
		Policy: relay.Options{
			Mode:                mode,
			SendDelay:           cfg.SendDelay,
			PreserveEntities:    cfg.PreserveEntities,
			PreserveLinkPreview: cfg.PreserveLinkPreview,
			MediaDir:            cfg.MediaDir,
		},
		AlbumWait:      cfg.AlbumWait,
		ReconnectDelay: cfg.ReconnectDelay,
		RestartDelay:   cfg.RestartDelay,
	}, nil
}
