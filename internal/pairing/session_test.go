package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/status"
	"github.com/rsclarke/salonrelay/internal/tenant"
)

var testTenant = tenant.Config{ID: "salon_a", Name: "Downtown Beauty Salon", Port: 3005}

type sentMessage struct {
	to, text string
}

type fakeClient struct {
	mu        sync.Mutex
	events    chan Event
	starts    int
	stops     int
	logouts   int
	startErr  error
	logoutErr error
	sent      []sentMessage
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan Event, 16)}
}

func (c *fakeClient) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return c.startErr
}

func (c *fakeClient) Events() <-chan Event { return c.events }

func (c *fakeClient) Send(_ context.Context, to, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{to: to, text: text})
	return "MSG1", nil
}

func (c *fakeClient) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return c.logoutErr
}

func (c *fakeClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *fakeClient) counts() (starts, stops, logouts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops, c.logouts
}

type fakeRelayer struct {
	mu       sync.Mutex
	entered  chan InboundMessage
	release  chan struct{}
	relayed  []InboundMessage
	dropped  []InboundMessage
	replyErr error
}

func (r *fakeRelayer) Relay(ctx context.Context, _ tenant.Config, msg InboundMessage, reply Sender) {
	if r.entered != nil {
		r.entered <- msg
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return
		}
	}
	_, err := reply.Send(ctx, msg.From, "echo: "+msg.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replyErr = err
	r.relayed = append(r.relayed, msg)
}

func (r *fakeRelayer) RecordDrop(_ context.Context, _ tenant.Config, msg InboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, msg)
}

func (r *fakeRelayer) snapshot() (relayed, dropped []InboundMessage, replyErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InboundMessage(nil), r.relayed...), append([]InboundMessage(nil), r.dropped...), r.replyErr
}

type sessionHarness struct {
	session *Session
	client  *fakeClient
	relayer *fakeRelayer
	store   *status.FileStore
	waits   chan time.Duration
	qrs     chan string
}

func startSession(t *testing.T, opts Options) *sessionHarness {
	t.Helper()

	store, err := status.NewFileStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	h := &sessionHarness{
		client:  newFakeClient(),
		relayer: &fakeRelayer{},
		store:   store,
		waits:   make(chan time.Duration, 32),
		qrs:     make(chan string, 8),
	}
	if opts.Client == nil {
		opts.Client = h.client
	}
	if opts.Relayer == nil {
		opts.Relayer = h.relayer
	}
	opts.Store = store
	opts.Logger = zap.NewNop()
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 30 * time.Second
	}
	opts.Sleep = func(ctx context.Context, d time.Duration) bool {
		h.waits <- d
		return ctx.Err() == nil
	}
	opts.OnQR = func(_ tenant.Config, code string) { h.qrs <- code }

	h.session = NewSession(testTenant, opts)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("session did not stop")
		}
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *sessionHarness) waitState(t *testing.T, want State) {
	t.Helper()
	waitFor(t, "state "+string(want), func() bool { return h.session.Snapshot().State == want })
}

func (h *sessionHarness) waitStarts(t *testing.T, want int) {
	t.Helper()
	waitFor(t, "client start", func() bool {
		starts, _, _ := h.client.counts()
		return starts >= want
	})
}

func TestSessionPairingLifecycle(t *testing.T) {
	h := startSession(t, Options{})
	h.waitStarts(t, 1)

	h.client.events <- Event{Kind: EventQR, QR: "2@first"}
	h.waitState(t, StateAwaitingScan)
	if code := <-h.qrs; code != "2@first" {
		t.Errorf("OnQR code = %q", code)
	}
	if snap := h.session.Snapshot(); snap.QR != "2@first" {
		t.Errorf("snapshot qr = %q", snap.QR)
	}

	st := h.session.Status(context.Background())
	if st.QRGeneratedCount != 1 || st.IsConnected {
		t.Errorf("status after qr = %+v", st)
	}
	if st.TenantName != testTenant.Name {
		t.Errorf("tenant name = %q", st.TenantName)
	}

	h.client.events <- Event{Kind: EventReady, Account: &Account{JID: "15551234567@s.whatsapp.net", Phone: "15551234567"}}
	h.waitState(t, StateConnected)

	st = h.session.Status(context.Background())
	if !st.IsConnected || st.ConnectionCount != 1 {
		t.Errorf("status after ready = %+v", st)
	}
	if st.PhoneNumber == nil || *st.PhoneNumber != "15551234567" {
		t.Errorf("phone = %v", st.PhoneNumber)
	}

	h.client.events <- Event{Kind: EventDisconnected, Reason: "connection lost"}
	select {
	case d := <-h.waits:
		if d != 30*time.Second {
			t.Errorf("reconnect delay = %v, want 30s", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reconnect scheduled")
	}
	h.waitStarts(t, 2)

	st = h.session.Status(context.Background())
	if st.IsConnected {
		t.Error("status still connected after disconnect")
	}
	if st.PhoneNumber == nil || *st.PhoneNumber != "15551234567" {
		t.Errorf("phone after disconnect = %v, want last known number", st.PhoneNumber)
	}
	if st.LastSeen == nil {
		t.Error("last_seen not set on disconnect")
	}
	if _, stops, _ := h.client.counts(); stops < 1 {
		t.Error("client not stopped before restart")
	}
}

func TestSessionRestartsOnFailureBeforePairing(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{name: "revoked device", ev: Event{Kind: EventLoggedOut, Reason: "logged out: 401"}},
		{name: "connect failure", ev: Event{Kind: EventAuthFailure, Reason: "connect failure: 403"}},
		{name: "dropped before connected", ev: Event{Kind: EventDisconnected, Reason: "connection lost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startSession(t, Options{})
			h.waitStarts(t, 1)

			h.client.events <- tt.ev
			select {
			case d := <-h.waits:
				if d != 30*time.Second {
					t.Errorf("reconnect delay = %v, want 30s", d)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("no reconnect scheduled")
			}
			h.waitStarts(t, 2)

			if snap := h.session.Snapshot(); snap.LastError != tt.ev.Reason {
				t.Errorf("last error = %q, want %q", snap.LastError, tt.ev.Reason)
			}
			st := h.session.Status(context.Background())
			if st.IsConnected || st.LastSeen == nil {
				t.Errorf("status after %s = %+v", tt.ev.Kind, st)
			}
		})
	}
}

func TestSessionSendRequiresConnection(t *testing.T) {
	h := startSession(t, Options{})

	if _, err := h.session.Send(context.Background(), "15551234567@c.us", "hi"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Send() error = %v, want ErrNotReady", err)
	}

	h.client.events <- Event{Kind: EventReady, Account: &Account{Phone: "1"}}
	h.waitState(t, StateConnected)

	id, err := h.session.Send(context.Background(), "15551234567@c.us", "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "MSG1" {
		t.Errorf("id = %q", id)
	}
}

func TestSessionRelaysMessages(t *testing.T) {
	h := startSession(t, Options{})
	h.client.events <- Event{Kind: EventReady, Account: &Account{Phone: "1"}}
	h.waitState(t, StateConnected)

	h.client.events <- Event{Kind: EventMessage, Message: &InboundMessage{ID: "m1", From: "15557654321@c.us", Body: "book"}}
	waitFor(t, "relay", func() bool {
		relayed, _, _ := h.relayer.snapshot()
		return len(relayed) == 1
	})

	_, _, replyErr := h.relayer.snapshot()
	if replyErr != nil {
		t.Fatalf("reply error = %v", replyErr)
	}
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	if len(h.client.sent) != 1 || h.client.sent[0].text != "echo: book" {
		t.Errorf("sent = %+v", h.client.sent)
	}
}

func TestSessionDropsWhenQueueFull(t *testing.T) {
	relayer := &fakeRelayer{entered: make(chan InboundMessage, 4), release: make(chan struct{})}
	h := startSession(t, Options{Relayer: relayer, QueueSize: 1})
	defer close(relayer.release)

	h.client.events <- Event{Kind: EventMessage, Message: &InboundMessage{ID: "m1"}}
	select {
	case <-relayer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("relay worker did not pick up first message")
	}

	h.client.events <- Event{Kind: EventMessage, Message: &InboundMessage{ID: "m2"}}
	h.client.events <- Event{Kind: EventMessage, Message: &InboundMessage{ID: "m3"}}

	waitFor(t, "drop", func() bool {
		_, dropped, _ := relayer.snapshot()
		return len(dropped) == 1
	})
	_, dropped, _ := relayer.snapshot()
	if dropped[0].ID != "m3" {
		t.Errorf("dropped = %s, want m3", dropped[0].ID)
	}
}

func TestSessionReset(t *testing.T) {
	h := startSession(t, Options{})
	h.waitStarts(t, 1)

	h.client.events <- Event{Kind: EventQR, QR: "2@first"}
	h.client.events <- Event{Kind: EventReady, Account: &Account{Phone: "15551234567"}}
	h.waitState(t, StateConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.session.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if _, _, logouts := h.client.counts(); logouts != 1 {
		t.Errorf("logouts = %d, want 1", logouts)
	}
	st := h.session.Status(ctx)
	if st.IsConnected || st.PhoneNumber != nil || st.QRGeneratedCount != 0 {
		t.Errorf("status after reset = %+v", st)
	}
	if st.ConnectionCount != 1 {
		t.Errorf("connection count = %d, want it kept at 1", st.ConnectionCount)
	}
	h.waitStarts(t, 2)
	h.waitState(t, StateUnpaired)
}

func TestSessionResetReportsLogoutFailure(t *testing.T) {
	client := newFakeClient()
	client.logoutErr = errors.New("store locked")
	h := startSession(t, Options{Client: client})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.session.Reset(ctx)
	if err == nil || !errors.Is(err, client.logoutErr) {
		t.Fatalf("Reset() error = %v", err)
	}
}

func TestSessionFailsAfterRetries(t *testing.T) {
	client := newFakeClient()
	client.startErr = errors.New("cannot connect")
	policy := DefaultRetryPolicy()
	policy.Cooldown = 0
	h := startSession(t, Options{Client: client, Policy: policy})

	h.waitState(t, StateFailed)
	if starts, _, _ := client.counts(); starts != 4 {
		t.Errorf("starts = %d, want 4", starts)
	}
	if snap := h.session.Snapshot(); snap.LastError == "" {
		t.Error("expected last error on failed session")
	}
}

func TestSessionResetAfterStop(t *testing.T) {
	store, err := status.NewFileStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s := NewSession(testTenant, Options{Client: newFakeClient(), Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := s.Reset(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Reset() error = %v, want ErrStopped", err)
	}
}

func TestSessionWritesInitialStatus(t *testing.T) {
	h := startSession(t, Options{})
	waitFor(t, "status file", func() bool {
		st := h.store.Load(context.Background(), testTenant.ID)
		return st.TenantName == testTenant.Name
	})
}

func TestManager(t *testing.T) {
	store, err := status.NewFileStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	a := NewSession(tenant.Config{ID: "salon_a"}, Options{Client: newFakeClient(), Store: store})
	b := NewSession(tenant.Config{ID: "salon_b"}, Options{Client: newFakeClient(), Store: store})
	m := NewManager(a, b)

	if got, ok := m.Get("salon_b"); !ok || got != b {
		t.Error("Get(salon_b) did not return session")
	}
	if _, ok := m.Get("salon_x"); ok {
		t.Error("Get(salon_x) should not be found")
	}
	all := m.All()
	if len(all) != 2 || all[0] != a || all[1] != b {
		t.Errorf("All() order wrong")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}
