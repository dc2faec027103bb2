package telegram

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tg-relay/internal/config"
	"github.com/blockedby/tg-relay/internal/database"
	"github.com/blockedby/tg-relay/internal/relay"
)

// Needs a real account: TG_API_ID, TG_API_HASH, a stored session or
// TG_SESSION_STRING, and SOURCE_CHANNEL.
func TestIntegration_ConnectAndResolveSource(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("Skipping integration test; set INTEGRATION_TEST=1")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	if cfg.TGApiID == 0 || cfg.SourceChannel == "" {
		t.Skip("TG_API_ID or SOURCE_CHANNEL not set, skipping integration test")
	}

	db, err := database.Open(cfg.SessionPath)
	require.NoError(t, err)

	m := NewManager(cfg, db)
	if !m.HasSession() {
		t.Skip("no telegram session, run tg-auth first")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := m.Connect(ctx)
	require.NoError(t, err)
	defer sess.Disconnect()
	assert.Equal(t, StatusReady, m.GetStatus())
	assert.True(t, sess.Connected())

	ch, err := sess.ResolveChannel(ctx, relay.ChannelRef(cfg.SourceChannel))
	require.NoError(t, err)
	assert.NotZero(t, ch.ID)
	assert.NotZero(t, ch.AccessHash)
}
