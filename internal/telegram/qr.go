package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
	"github.com/gotd/td/session/tdesktop"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/blockedby/tg-relay/internal/config"
)

// QRClientBundle contains all components needed for QR authentication
type QRClientBundle struct {
	Client     *telegram.Client
	Dispatcher tg.UpdateDispatcher
	Storage    *session.StorageMemory
}

// NewQRClient creates a raw td/telegram client suitable for QR authentication.
// Unlike gotgproto's NewClient, this does NOT attempt interactive CLI auth.
func NewQRClient(cfg *config.Config) (*QRClientBundle, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	memStorage := &session.StorageMemory{}
	// dispatcher needs its handler map initialised
	dispatcher := tg.NewUpdateDispatcher()

	client := telegram.NewClient(cfg.TGApiID, cfg.TGApiHash, telegram.Options{
		SessionStorage: memStorage,
		UpdateHandler:  &dispatcher,
	})

	return &QRClientBundle{
		Client:     client,
		Dispatcher: dispatcher,
		Storage:    memStorage,
	}, nil
}

// IsQRInProgress returns true if a QR login flow is currently in progress.
func (m *Manager) IsQRInProgress() bool {
	return m.qrInProgress.Load()
}

// StartQR runs the QR login flow and stores the resulting session. It
// blocks until login succeeds or ctx is canceled. Only one flow runs at a
// time.
func (m *Manager) StartQR(ctx context.Context, onQRCode func(url string)) error {
	if m.GetStatus() == StatusReady {
		return fmt.Errorf("already logged in")
	}

	m.qrMu.Lock()
	if m.qrInProgress.Load() {
		m.qrMu.Unlock()
		m.log.Info().Msg("telegram: QR flow already in progress, ignoring new request")
		return fmt.Errorf("QR login already in progress")
	}
	qrCtx, cancel := context.WithCancel(ctx)
	m.qrCancel = cancel
	m.qrInProgress.Store(true)
	m.qrMu.Unlock()

	defer func() {
		m.qrInProgress.Store(false)
		m.qrMu.Lock()
		if m.qrCancel != nil {
			m.qrCancel()
			m.qrCancel = nil
		}
		m.qrMu.Unlock()
	}()

	m.log.Info().Time("now", time.Now()).Msg("telegram: starting QR flow, creating QR client")

	m.mu.RLock()
	factory, password := m.qrClientFactory, m.password
	m.mu.RUnlock()

	bundle, err := factory(m.cfg)
	if err != nil {
		return fmt.Errorf("create QR client: %w", err)
	}

	var sessionData *session.Data
	err = bundle.Client.Run(qrCtx, func(ctx context.Context) error {
		loggedIn := qrlogin.OnLoginToken(&bundle.Dispatcher)

		_, authErr := bundle.Client.QR().Auth(ctx, loggedIn, func(_ context.Context, token qrlogin.Token) error {
			m.log.Info().Time("expires", token.Expires()).Msg("telegram: QR token generated")
			onQRCode(token.URL())
			return nil
		})
		if tgerr.Is(authErr, "SESSION_PASSWORD_NEEDED") {
			authErr = m.checkPassword(ctx, bundle.Client, password)
		}
		if authErr != nil {
			return authErr
		}

		m.log.Info().Msg("telegram: QR auth success, capturing session")
		loader := session.Loader{Storage: bundle.Storage}
		var loadErr error
		sessionData, loadErr = loader.Load(ctx)
		return loadErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("QR auth flow failed: %w", err)
	}

	return m.ImportSession(ctx, sessionData)
}

func (m *Manager) checkPassword(ctx context.Context, client *telegram.Client, password PasswordFunc) error {
	if password == nil {
		return errors.New("account has two-step verification enabled and no password source is set")
	}
	pwd, err := password(ctx)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if _, err := client.Auth().Password(ctx, pwd); err != nil {
		return fmt.Errorf("check password: %w", err)
	}
	return nil
}

// CancelQR cancels any ongoing QR login flow.
func (m *Manager) CancelQR() {
	m.qrMu.Lock()
	defer m.qrMu.Unlock()

	if m.qrCancel != nil {
		m.log.Info().Msg("telegram: canceling ongoing QR flow")
		m.qrCancel()
		m.qrCancel = nil
	}
	m.qrInProgress.Store(false)
}

// ImportSession stores an authorized gotd session.
func (m *Manager) ImportSession(ctx context.Context, data *session.Data) error {
	record, err := SessionRecord(ctx, data)
	if err != nil {
		return err
	}
	m.log.Info().Int("dc", data.DC).Msg("telegram: saving session to store")
	if err := m.SaveSession(record); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ImportTDesktop stores the session of a Telegram Desktop account.
func (m *Manager) ImportTDesktop(ctx context.Context, account tdesktop.Account) error {
	data, err := session.TDesktopSession(account)
	if err != nil {
		return fmt.Errorf("convert tdata session: %w", err)
	}
	return m.ImportSession(ctx, data)
}

// SessionRecord encodes data the way gotd session storages persist it,
// which is what gotgproto keeps in its sessions table.
func SessionRecord(ctx context.Context, data *session.Data) (*storage.Session, error) {
	if data == nil {
		return nil, fmt.Errorf("session data is nil")
	}

	mem := &session.StorageMemory{}
	if err := (&session.Loader{Storage: mem}).Save(ctx, data); err != nil {
		return nil, fmt.Errorf("encode session data: %w", err)
	}
	raw, err := mem.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("encode session data: %w", err)
	}

	return &storage.Session{
		Version: storage.LatestVersion,
		Data:    raw,
	}, nil
}
