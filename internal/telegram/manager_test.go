package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockedby/tg-relay/internal/config"
	"github.com/blockedby/tg-relay/internal/database"
	"github.com/blockedby/tg-relay/internal/relay"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	return db
}

func testSessionData() *session.Data {
	key := make([]byte, 256)
	for i := range key {
		key[i] = byte(i)
	}
	return &session.Data{
		DC:        2,
		Addr:      "149.154.167.40:443",
		AuthKey:   key,
		AuthKeyID: key[:8],
	}
}

func TestManager_Connect_NoSessionNoPhone_Fatal(t *testing.T) {
	m := NewManager(&config.Config{TGApiID: 12345, TGApiHash: "test_hash"}, setupTestDB(t))

	called := false
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config) (*gotgproto.Client, error) {
		called = true
		return nil, errors.New("should not be called")
	})

	sess, err := m.Connect(context.Background())

	assert.Nil(t, sess)
	assert.ErrorIs(t, err, relay.ErrFatalConfig)
	assert.False(t, called)
	assert.Equal(t, StatusUnauthorized, m.GetStatus())
}

func TestManager_Connect_FactoryError(t *testing.T) {
	cfg := &config.Config{TGApiID: 12345, TGApiHash: "test_hash", TGSessionStr: "str"}
	m := NewManager(cfg, nil)

	m.SetClientFactory(func(ctx context.Context, cfg *config.Config) (*gotgproto.Client, error) {
		return nil, errors.New("factory failure")
	})

	_, err := m.Connect(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, relay.ErrFatalConfig)
	assert.Equal(t, StatusError, m.GetStatus())
}

func TestManager_Connect_PhoneWithoutSessionCallsFactory(t *testing.T) {
	cfg := &config.Config{TGApiID: 12345, TGApiHash: "test_hash", TGPhone: "+10000000000"}
	m := NewManager(cfg, setupTestDB(t))

	called := false
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config) (*gotgproto.Client, error) {
		called = true
		return nil, errors.New("no network in tests")
	})

	_, err := m.Connect(context.Background())
	assert.Error(t, err)
	assert.True(t, called)
}

func TestManager_Connect_ContextCanceled(t *testing.T) {
	cfg := &config.Config{TGSessionStr: "str"}
	m := NewManager(cfg, nil)

	release := make(chan struct{})
	defer close(release)
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config) (*gotgproto.Client, error) {
		<-release
		return nil, errors.New("too late")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_HasSession(t *testing.T) {
	db := setupTestDB(t)
	m := NewManager(&config.Config{}, db)
	assert.False(t, m.HasSession(), "empty store")

	require.NoError(t, m.ImportSession(context.Background(), testSessionData()))
	assert.True(t, m.HasSession(), "store with session")

	assert.True(t, NewManager(&config.Config{TGSessionStr: "x"}, nil).HasSession())
	assert.False(t, NewManager(&config.Config{}, nil).HasSession())
}

func TestManager_ImportSession_Replaces(t *testing.T) {
	db := setupTestDB(t)
	m := NewManager(&config.Config{}, db)

	require.NoError(t, m.ImportSession(context.Background(), testSessionData()))
	require.NoError(t, m.ImportSession(context.Background(), testSessionData()))

	var count int64
	require.NoError(t, db.Table("sessions").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestManager_ImportSession_NoStore(t *testing.T) {
	m := NewManager(&config.Config{}, nil)
	assert.Error(t, m.ImportSession(context.Background(), testSessionData()))
}

func TestManager_GetStatus_Concurrent(t *testing.T) {
	m := NewManager(&config.Config{}, nil)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			m.GetStatus()
		}()
	}

	close(start)
	wg.Wait()
	assert.Equal(t, StatusInitializing, m.GetStatus())
}
