package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/logging"
	"github.com/rsclarke/salonrelay/internal/status"
	"github.com/rsclarke/salonrelay/internal/tenant"
)

// ErrStopped is returned by Reset once the session has stopped running.
var ErrStopped = errors.New("session stopped")

const defaultQueueSize = 256

// Options configures a Session.
type Options struct {
	Client  Client
	Store   status.Store
	Relayer Relayer
	Logger  *zap.Logger

	Policy         RetryPolicy
	ReconnectDelay time.Duration
	QueueSize      int

	// OnQR is called from the event loop for every new challenge.
	OnQR func(t tenant.Config, code string)

	Sleep func(ctx context.Context, d time.Duration) bool
	Now   func() time.Time
}

type resetRequest struct {
	done chan error
}

// Session owns the chat client, pairing state and relay worker of one tenant.
type Session struct {
	tenant  tenant.Config
	client  Client
	machine *Machine
	store   status.Store
	relayer Relayer
	logger  *zap.Logger

	supervisor     *Supervisor
	reconnectDelay time.Duration
	onQR           func(tenant.Config, string)
	sleep          func(context.Context, time.Duration) bool
	now            func() time.Time

	queue   chan InboundMessage
	restart chan time.Duration
	control chan resetRequest
	done    chan struct{}
}

// NewSession builds a session. Run must be called to start it.
func NewSession(t tenant.Config, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(logging.Tenant(t.ID))

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Session{
		tenant:  t,
		client:  opts.Client,
		machine: NewMachine(),
		store:   opts.Store,
		relayer: opts.Relayer,
		logger:  logger,
		supervisor: &Supervisor{
			Policy: opts.Policy,
			Logger: logger.Named("supervisor"),
			Sleep:  opts.Sleep,
		},
		reconnectDelay: opts.ReconnectDelay,
		onQR:           opts.OnQR,
		sleep:          sleep,
		now:            now,
		queue:          make(chan InboundMessage, queueSize),
		restart:        make(chan time.Duration, 1),
		control:        make(chan resetRequest),
		done:           make(chan struct{}),
	}
}

// Tenant returns the session's tenant.
func (s *Session) Tenant() tenant.Config { return s.tenant }

// Snapshot returns the current pairing state.
func (s *Session) Snapshot() Snapshot { return s.machine.Snapshot() }

// Status returns the persisted connection record.
func (s *Session) Status(ctx context.Context) status.ConnectionStatus {
	st := s.store.Load(ctx, s.tenant.ID)
	st.TenantName = s.tenant.Name
	return st
}

// Send delivers text to a chat. It fails with ErrNotReady unless connected.
func (s *Session) Send(ctx context.Context, to, text string) (string, error) {
	if !s.machine.Snapshot().Ready() {
		return "", ErrNotReady
	}
	return s.client.Send(ctx, to, text)
}

// Reset discards the linked account and starts pairing from scratch.
func (s *Session) Reset(ctx context.Context) error {
	req := resetRequest{done: make(chan error, 1)}
	select {
	case s.control <- req:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes client events until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	s.loadInitialStatus(ctx)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.relayLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.supervise(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
		s.client.Stop()
		s.logger.Info("session stopped")
	}()

	events := s.client.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ctx, ev)
		case req := <-s.control:
			req.done <- s.reset(ctx)
		}
	}
}

func (s *Session) loadInitialStatus(ctx context.Context) {
	st := s.Status(ctx)
	if st.IsConnected && st.PhoneNumber != nil {
		s.logger.Info("previous connection on record",
			zap.String("phone", *st.PhoneNumber),
			zap.Int("connection_count", st.ConnectionCount))
	}
	if err := s.store.Save(ctx, st); err != nil {
		s.logger.Warn("failed to write initial connection status", zap.Error(err))
	}
}

func (s *Session) handle(ctx context.Context, ev Event) {
	if ev.Kind == EventMessage {
		if ev.Message != nil {
			s.enqueue(ctx, *ev.Message)
		}
		return
	}

	transition, changed := s.machine.Apply(ev)
	snap := s.machine.Snapshot()

	fields := []zap.Field{zap.String("event", string(ev.Kind)), logging.State(string(snap.State))}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	if ev.Account != nil {
		fields = append(fields, zap.String("phone", ev.Account.Phone))
	}
	s.logger.Info("pairing event", fields...)

	if !changed {
		return
	}
	if ev.Kind == EventQR && s.onQR != nil {
		s.onQR(s.tenant, ev.QR)
	}
	s.persist(ctx, transition)
	if transition.Kind == status.EventDisconnected {
		s.requestRestart(s.reconnectDelay)
	}
}

func (s *Session) persist(ctx context.Context, ev status.Event) {
	st, err := status.Update(ctx, s.store, s.tenant, ev, s.now())
	if err != nil {
		s.logger.Warn("failed to persist connection status",
			zap.String("transition", ev.Kind.String()),
			zap.Error(err))
		return
	}
	s.logger.Debug("connection status updated",
		zap.String("transition", ev.Kind.String()),
		zap.Bool("is_connected", st.IsConnected),
		zap.Int("connection_count", st.ConnectionCount),
		zap.Int("qr_generated_count", st.QRGeneratedCount))
}

func (s *Session) reset(ctx context.Context) error {
	s.logger.Info("resetting connection")

	logoutErr := s.client.Logout(ctx)
	if logoutErr != nil {
		s.logger.Warn("failed to discard credentials", zap.Error(logoutErr))
	}

	s.persist(ctx, s.machine.Reset())
	s.requestRestart(0)

	if logoutErr != nil {
		return fmt.Errorf("discard credentials: %w", logoutErr)
	}
	return nil
}

func (s *Session) enqueue(ctx context.Context, msg InboundMessage) {
	select {
	case s.queue <- msg:
	default:
		s.logger.Warn("relay queue full, dropping message",
			logging.MessageID(msg.ID),
			logging.Chat(msg.From))
		if r, ok := s.relayer.(DropRecorder); ok {
			r.RecordDrop(ctx, s.tenant, msg)
		}
	}
}

func (s *Session) relayLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if s.relayer == nil {
				continue
			}
			s.relayer.Relay(ctx, s.tenant, msg, s)
		}
	}
}

func (s *Session) requestRestart(delay time.Duration) {
	select {
	case s.restart <- delay:
	default:
	}
}

func (s *Session) drainRestart() {
	for {
		select {
		case <-s.restart:
		default:
			return
		}
	}
}

func (s *Session) supervise(ctx context.Context) {
	for {
		s.machine.Restarting()
		if err := s.supervisor.Run(ctx, s.client.Start); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("client start abandoned, waiting for reset", zap.Error(err))
			s.machine.Fail(err)
		}

		var delay time.Duration
		select {
		case <-ctx.Done():
			return
		case delay = <-s.restart:
		}
		if delay > 0 {
			s.logger.Info("reconnecting", zap.Duration("delay", delay))
			if !s.sleep(ctx, delay) {
				return
			}
		}
		s.drainRestart()
		s.client.Stop()
	}
}
