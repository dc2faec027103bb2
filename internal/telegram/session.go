package telegram

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/gotd/td/tg"

	"github.com/blockedby/tg-relay/internal/logger"
	"github.com/blockedby/tg-relay/internal/relay"
)

// Session is one running gotgproto client, used for a single supervisor
// cycle.
type Session struct {
	*Client

	addHandler func(dispatcher.Handler)
	stop       func()
	log        *logger.Logger

	done     chan struct{}
	err      error
	closed   atomic.Bool
	stopOnce sync.Once
}

var _ relay.Session = (*Session)(nil)

// NewSession takes ownership of a started client.
func NewSession(proto *gotgproto.Client, limiter *RateLimiter, log *logger.Logger) *Session {
	return newSession(NewClient(proto.API(), limiter, log), proto.Dispatcher.AddHandler, proto.Idle, proto.Stop, log)
}

func newSession(client *Client, addHandler func(dispatcher.Handler), idle func() error, stop func(), log *logger.Logger) *Session {
	s := &Session{
		Client:     client,
		addHandler: addHandler,
		stop:       stop,
		log:        log,
		done:       make(chan struct{}),
	}
	go func() {
		s.err = idle()
		s.closed.Store(true)
		close(s.done)
	}()
	return s
}

// Subscribe delivers new posts of source to handle, from the dispatcher
// goroutine. Edits and scheduled posts are not delivered.
func (s *Session) Subscribe(source relay.ResolvedChannel, handle func(relay.InboundMessage)) error {
	if s.addHandler == nil {
		return errNotAuthorized
	}
	s.addHandler(handlers.NewMessage(filters.Message.All, s.onMessage(source.ID, handle)))
	return nil
}

func (s *Session) onMessage(sourceID int64, handle func(relay.InboundMessage)) func(*ext.Context, *ext.Update) error {
	return func(_ *ext.Context, u *ext.Update) error {
		if u == nil || u.EffectiveMessage == nil {
			return nil
		}
		// the message handler also fires for edits and scheduled posts
		if _, ok := u.UpdateClass.(*tg.UpdateNewChannelMessage); !ok {
			return nil
		}
		msg, ok := InboundFromMessage(u.EffectiveMessage.Message, sourceID)
		if !ok {
			return nil
		}
		s.log.Debug().Int("message_id", msg.ID).Int64("group_id", msg.GroupID).Msg("telegram: new source post")
		handle(msg)
		return nil
	}
}

// Wait blocks until the client stops or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		if s.err != nil {
			return fmt.Errorf("%w: %v", relay.ErrDisconnected, s.err)
		}
		return relay.ErrDisconnected
	}
}

// Connected reports whether the client is still running.
func (s *Session) Connected() bool {
	return !s.closed.Load()
}

// Disconnect stops the client. Safe to call more than once.
func (s *Session) Disconnect() {
	s.stopOnce.Do(func() {
		s.log.Info().Msg("telegram: stopping client")
		if s.stop != nil {
			s.stop()
		}
	})
}
