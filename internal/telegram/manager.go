package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/storage"
	"gorm.io/gorm"

	"github.com/blockedby/tg-relay/internal/config"
	"github.com/blockedby/tg-relay/internal/logger"
	"github.com/blockedby/tg-relay/internal/relay"
)

// ClientFactory is a function that creates a telegram client.
type ClientFactory func(ctx context.Context, cfg *config.Config) (*gotgproto.Client, error)

// QRClientFactory is a function that creates a raw telegram client for QR auth.
type QRClientFactory func(cfg *config.Config) (*QRClientBundle, error)

// PasswordFunc supplies the two-step verification password.
type PasswordFunc func(ctx context.Context) (string, error)

// Manager handles Telegram client lifecycle and authentication. It opens
// one Session per supervisor cycle.
type Manager struct {
	db      *gorm.DB
	cfg     *config.Config
	log     *logger.Logger
	limiter *RateLimiter

	status Status
	mu     sync.RWMutex

	clientFactory   ClientFactory
	qrClientFactory QRClientFactory
	password        PasswordFunc

	// QR flow state management
	qrInProgress atomic.Bool
	qrCancel     context.CancelFunc
	qrMu         sync.Mutex
}

var _ relay.Connector = (*Manager)(nil)

// NewManager creates a new Telegram Manager. db is the session store and
// may be nil when a string session is configured.
func NewManager(cfg *config.Config, db *gorm.DB) *Manager {
	return &Manager{
		db:              db,
		cfg:             cfg,
		log:             logger.Get().Named("telegram"),
		limiter:         DefaultRateLimiter(),
		status:          StatusInitializing,
		clientFactory:   NewPersistentClient,
		qrClientFactory: NewQRClient,
	}
}

// SetClientFactory allows overriding the client creation logic (e.g. for testing).
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientFactory = f
}

// SetQRClientFactory allows overriding the QR client creation logic (e.g. for testing).
func (m *Manager) SetQRClientFactory(f QRClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qrClientFactory = f
}

// SetPasswordFunc sets the 2FA password source used by the QR flow.
func (m *Manager) SetPasswordFunc(f PasswordFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.password = f
}

// GetStatus returns the current Telegram client status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// HasSession reports whether a string session is configured or the
// store holds one.
func (m *Manager) HasSession() bool {
	if m.cfg.TGSessionStr != "" {
		return true
	}
	if m.db == nil || !m.db.Migrator().HasTable(&storage.Session{}) {
		return false
	}

	var count int64
	if err := m.db.Model(&storage.Session{}).Count(&count).Error; err != nil {
		m.log.Warn().Err(err).Msg("telegram: failed to check sessions table")
		return false
	}
	return count > 0
}

// Connect starts a client and wraps it in a Session. Without a session
// and without a phone to log in with nothing can ever succeed, which is
// reported as relay.ErrFatalConfig.
func (m *Manager) Connect(ctx context.Context) (relay.Session, error) {
	m.setStatus(StatusInitializing)

	if !m.HasSession() && m.cfg.TGPhone == "" {
		m.log.Info().Msg("telegram: no session in store, waiting for auth")
		m.setStatus(StatusUnauthorized)
		return nil, fmt.Errorf("%w: no telegram session and TG_PHONE is empty, run tg-auth first", relay.ErrFatalConfig)
	}

	m.mu.RLock()
	factory := m.clientFactory
	m.mu.RUnlock()

	type result struct {
		client *gotgproto.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		client, err := factory(ctx, m.cfg)
		ch <- result{client, err}
	}()

	select {
	case <-ctx.Done():
		// the client is stopped once it finishes starting
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Stop()
			}
		}()
		m.setStatus(StatusError)
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			m.log.Warn().Err(r.err).Msg("telegram: failed to start client")
			m.setStatus(StatusError)
			return nil, r.err
		}
		m.setStatus(StatusReady)
		m.log.Info().Msg("telegram: client is ready")
		return NewSession(r.client, m.limiter, m.log), nil
	}
}

// SaveSession writes a gotd session into the store, replacing any
// previous one.
func (m *Manager) SaveSession(record *storage.Session) error {
	if m.db == nil {
		return errors.New("no session store configured")
	}
	if err := m.db.AutoMigrate(&storage.Session{}); err != nil {
		return fmt.Errorf("migrate sessions table: %w", err)
	}
	// Version is the primary key, so Save upserts
	return m.db.Save(record).Error
}
