// package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrInvalid is returned when required configuration is missing or malformed.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	// telegram
	TGApiID      int    `env:"TG_API_ID"`
	TGApiHash    string `env:"TG_API_HASH"`
	TGPhone      string `env:"TG_PHONE"`
	TGSessionStr string `env:"TG_SESSION_STRING"`
	SessionPath  string `env:"SESSION_PATH" envDefault:"./session.db"`

	// channels
	SourceChannel  string   `env:"SOURCE_CHANNEL"`
	TargetChannels []string `env:"TARGET_CHANNELS" envSeparator:","`

	// relay policy
	RelayMode           string        `env:"RELAY_MODE" envDefault:"repost"`
	SendDelay           time.Duration `env:"RELAY_SEND_DELAY" envDefault:"500ms"`
	AlbumWait           time.Duration `env:"RELAY_ALBUM_WAIT" envDefault:"1s"`
	PreserveEntities    bool          `env:"RELAY_PRESERVE_ENTITIES" envDefault:"true"`
	PreserveLinkPreview bool          `env:"RELAY_PRESERVE_LINK_PREVIEW" envDefault:"true"`
	MediaDir            string        `env:"RELAY_MEDIA_DIR"`

	// supervisor
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"30s"`
	RestartDelay      time.Duration `env:"RESTART_DELAY" envDefault:"10s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30m"`

	// nats
	NatsURL     string `env:"NATS_URL"`
	NatsSubject string `env:"NATS_SUBJECT" envDefault:"relay.outcomes"`
	NatsStream  string `env:"NATS_STREAM"`

	// logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// Load reads a .env file if present, then parses the environment.
// The result is not validated; call Validate before connecting.
func Load() (*Config, error) {
	// a missing .env is the normal case in containers
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg.SourceChannel = strings.TrimSpace(cfg.SourceChannel)
	cfg.RelayMode = normalizeMode(cfg.RelayMode)
	cfg.TargetChannels = ParseTargets(strings.Join(cfg.TargetChannels, ","))
	if cfg.MediaDir == "" {
		cfg.MediaDir = os.TempDir()
	}

	return cfg, nil
}

// Validate checks the keys the relay cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.TGApiID == 0 {
		missing = append(missing, "TG_API_ID")
	}
	if c.TGApiHash == "" {
		missing = append(missing, "TG_API_HASH")
	}
	if c.SourceChannel == "" {
		missing = append(missing, "SOURCE_CHANNEL")
	}
	if len(c.TargetChannels) == 0 {
		missing = append(missing, "TARGET_CHANNELS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}

	switch normalizeMode(c.RelayMode) {
	case "forward", "copy", "repost", "":
	default:
		return fmt.Errorf("%w: unknown RELAY_MODE %q", ErrInvalid, c.RelayMode)
	}

	if c.SendDelay < 0 || c.AlbumWait < 0 || c.ReconnectDelay < 0 || c.RestartDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalid)
	}
	return nil
}

func normalizeMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

// ParseTargets splits a comma separated channel list, trimming blanks
// and dropping empty entries.
func ParseTargets(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
