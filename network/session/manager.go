package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/network/transport"
	"github.com/linchenxuan/lobbyd/utils/pool"
)

// Manager owns every live session and allocates client ids. It is the ConnHandler given
// to the transports.
type Manager struct {
	cfg     *Config
	handler Handler
	chunks  *pool.BytePool

	lock     sync.RWMutex
	sessions map[uint32]*Session
	ids      idAllocator
	running  sync.WaitGroup
}

var _ transport.ConnHandler = (*Manager)(nil)

// NewManager creates a manager that reports to h.
func NewManager(cfg *Config, h Handler) (*Manager, error) {
	if h == nil {
		return nil, errors.New("session handler is nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	return &Manager{
		cfg:      cfg,
		handler:  h,
		chunks:   pool.NewBytePool("session_recv_chunk", cfg.RecvChunkSize),
		sessions: make(map[uint32]*Session),
	}, nil
}

// ServeConn runs a session on conn until it ends. The calling goroutine becomes the
// session's dispatch goroutine.
func (m *Manager) ServeConn(ctx context.Context, conn transport.Conn) {
	m.running.Add(1)
	defer m.running.Done()
	s := m.add(conn)
	metrics.IncrCounterWithGroup(metrics.NameSessionOpenTotal, metrics.GroupNet, 1)
	s.logWith(log.Info()).Str("remote", s.remote).Msg("session opened")

	stop := context.AfterFunc(ctx, func() { s.terminate(ErrServerShutdown) })
	defer stop()

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		s.serveSend()
	}()

	m.handler.OnSessionOpen(s)
	s.opened.Store(true)
	go s.serveRecv()
	s.serveDispatch()
	<-sendDone
}

func (m *Manager) add(conn transport.Conn) *Session {
	m.lock.Lock()
	defer m.lock.Unlock()
	s := newSession(m.ids.alloc(), conn, m)
	m.sessions[s.id] = s
	metrics.UpdateGaugeWithGroup(metrics.NameSessionCurrent, metrics.GroupNet, metrics.Value(len(m.sessions)))
	return s
}

func (m *Manager) remove(s *Session) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if cur, ok := m.sessions[s.id]; !ok || cur != s {
		return
	}
	delete(m.sessions, s.id)
	m.ids.release(s.id)
	metrics.UpdateGaugeWithGroup(metrics.NameSessionCurrent, metrics.GroupNet, metrics.Value(len(m.sessions)))
}

// Get returns the live session with client id id.
func (m *Manager) Get(id uint32) (*Session, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.sessions)
}

// Sessions returns the live sessions ordered by client id. A session is listed once its
// open hook has run.
func (m *Manager) Sessions() []*Session {
	return m.filter(func(*Session) bool { return true })
}

// Unaffiliated returns the live sessions that are not in a lobby, ordered by client id.
func (m *Manager) Unaffiliated() []*Session {
	return m.filter(func(s *Session) bool {
		_, in := s.LobbyID()
		return !in
	})
}

func (m *Manager) filter(keep func(*Session) bool) []*Session {
	m.lock.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.opened.Load() && !s.Closed() && keep(s) {
			out = append(out, s)
		}
	}
	m.lock.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// CloseAll terminates every session, including ones whose open hook has not run yet.
func (m *Manager) CloseAll(reason error) {
	m.lock.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.lock.RUnlock()
	for _, s := range all {
		s.Close(reason)
	}
}

// Wait blocks until every ServeConn call has returned, close hooks included. Call it
// after the transports stopped accepting.
func (m *Manager) Wait() {
	m.running.Wait()
}
