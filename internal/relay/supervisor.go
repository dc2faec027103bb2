package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blockedby/tg-relay/internal/logger"
)

// State is the connection state of the supervisor.
type State string

// State constants define the supervisor lifecycle.
const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateActive       State = "ACTIVE"
)

// Session is one live connection to the platform. It is acquired by
// Connector.Connect and released by Disconnect.
type Session interface {
	Client
	Resolver
	// Subscribe installs handle for new posts of source.
	Subscribe(source ResolvedChannel, handle func(InboundMessage)) error
	// Wait blocks until the connection ends or ctx is done.
	Wait(ctx context.Context) error
	Connected() bool
	Disconnect()
}

// Connector opens sessions.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// SupervisorConfig holds what the supervisor needs for every cycle.
type SupervisorConfig struct {
	Source         ChannelRef
	Targets        []ChannelRef
	Policy         Options
	AlbumWait      time.Duration
	ReconnectDelay time.Duration
	RestartDelay   time.Duration
	// Publisher receives relay outcomes; may be nil.
	Publisher OutcomePublisher
	// OnTransition is called after every state change; may be nil.
	OnTransition func(from, to State)
}

// Supervisor owns the connect, resolve, subscribe, wait loop.
type Supervisor struct {
	connector Connector
	cfg       SupervisorConfig
	log       *logger.Logger

	mu    sync.RWMutex
	state State
}

// NewSupervisor creates a supervisor in the DISCONNECTED state.
func NewSupervisor(connector Connector, cfg SupervisorConfig, log *logger.Logger) *Supervisor {
	return &Supervisor{
		connector: connector,
		cfg:       cfg,
		log:       log,
		state:     StateDisconnected,
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}
	s.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("supervisor state changed")
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(from, to)
	}
}

// Run loops until ctx is done. It returns nil on cancellation and an
// ErrFatalConfig error when the first cycle fails in a way retrying
// cannot fix. Later failures of any kind are retried.
func (s *Supervisor) Run(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		sess, err := s.runCycle(ctx)
		s.setState(StateDisconnected)

		if ctx.Err() != nil {
			s.release(sess)
			s.log.Info().Msg("supervisor stopped")
			return nil
		}

		if err != nil {
			if cycle == 1 && errors.Is(err, ErrFatalConfig) {
				s.release(sess)
				return err
			}
			s.log.Error().Err(err).Int("cycle", cycle).Msg("disconnected")
			s.log.Info().Dur("delay", s.cfg.ReconnectDelay).Msg("reconnecting after delay")
			if !sleep(ctx, s.cfg.ReconnectDelay) {
				s.release(sess)
				return nil
			}
		}

		s.release(sess)
		s.log.Info().Dur("delay", s.cfg.RestartDelay).Msg("attempting to restart")
		if !sleep(ctx, s.cfg.RestartDelay) {
			return nil
		}
	}
}

// runCycle performs one CONNECTING -> ACTIVE pass. The returned session,
// if any, is still owned by the caller.
func (s *Supervisor) runCycle(ctx context.Context) (Session, error) {
	s.setState(StateConnecting)
	s.log.Info().Msg("connecting")

	sess, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	source, err := ResolveSource(ctx, sess, s.cfg.Source, s.log)
	if err != nil {
		return sess, err
	}
	targets, err := ResolveTargets(ctx, sess, source, s.cfg.Targets, s.log)
	if err != nil {
		return sess, err
	}

	policy := NewPolicy(sess, s.cfg.Policy, s.log)
	grouper := NewGrouper(s.cfg.AlbumWait, 64)
	worker := NewWorker(policy, source, targets, s.cfg.Publisher, s.log)

	cycleCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(cycleCtx, grouper.Batches())
	}()
	defer func() {
		cancel()
		grouper.Close()
		<-done
	}()

	if err := sess.Subscribe(source, grouper.Add); err != nil {
		return sess, fmt.Errorf("subscribe: %w", err)
	}

	s.setState(StateActive)
	s.log.Info().Str("source", source.String()).Int("targets", len(targets)).Msg("relay active, monitoring posts")

	return sess, sess.Wait(ctx)
}

// release force-disconnects a session that is still connected.
func (s *Supervisor) release(sess Session) {
	if sess != nil && sess.Connected() {
		s.log.Info().Msg("closing previous connection")
		sess.Disconnect()
	}
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Heartbeat logs a liveness line every interval until ctx is done.
func Heartbeat(ctx context.Context, interval time.Duration, log *logger.Logger) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			log.Info().Dur("uptime", time.Since(start).Round(time.Second)).Msg("relay running")
		}
	}
}
