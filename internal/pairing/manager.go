package pairing

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Manager is the tenant-keyed set of running sessions.
type Manager struct {
	order    []string
	sessions map[string]*Session
}

// NewManager indexes sessions by tenant id, keeping their order.
func NewManager(sessions ...*Session) *Manager {
	m := &Manager{sessions: make(map[string]*Session, len(sessions))}
	for _, s := range sessions {
		id := s.Tenant().ID
		if _, dup := m.sessions[id]; dup {
			continue
		}
		m.order = append(m.order, id)
		m.sessions[id] = s
	}
	return m
}

// Get returns the session for a tenant.
func (m *Manager) Get(id string) (*Session, bool) {
	s, ok := m.sessions[id]
	return s, ok
}

// All returns every session in registration order.
func (m *Manager) All() []*Session {
	out := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// Run runs every session until ctx is done or one of them fails.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range m.All() {
		g.Go(func() error {
			return s.Run(ctx)
		})
	}
	return g.Wait()
}
