// Package session runs one client connection: it reads the byte stream, decodes records,
// hands them to the handler in arrival order, and writes outgoing records through a
// bounded send queue.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/network/codec"
	"github.com/linchenxuan/lobbyd/network/handler"
	"github.com/linchenxuan/lobbyd/network/message"
	"github.com/linchenxuan/lobbyd/network/transport"
)

var (
	// ErrRecordTooLarge is reported when a pending record outgrows Config.MaxBufferSize.
	ErrRecordTooLarge = errors.New("record exceeds the maximum buffer size")
	// ErrDisconnected is the close reason after a Disconnect record.
	ErrDisconnected = errors.New("client disconnected")
	// ErrServerShutdown is the close reason when the transport stops.
	ErrServerShutdown = errors.New("server shutting down")
)

// Handler receives the session lifecycle and the records of every session. Its methods
// run on the session's dispatch goroutine, one at a time per session.
type Handler interface {
	// OnSessionOpen runs before the first record is dispatched.
	OnSessionOpen(s *Session)
	// OnRecord handles one decoded record.
	OnRecord(s *Session, rec message.Record)
	// OnDecodeError handles one malformed record.
	OnDecodeError(s *Session, err error)
	// OnSessionClose runs once, after the last record was dispatched.
	OnSessionClose(s *Session, reason error)
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// mail is one mailbox entry: a record or a decode failure.
type mail struct {
	rec message.Record
	err error
}

// Session is one connected client.
type Session struct {
	id     uint32
	token  uuid.UUID
	conn   transport.Conn
	remote string
	mgr    *Manager

	lock     sync.Mutex
	username string
	lobbyID  uint64
	inLobby  bool

	mailbox chan mail
	sendCh  chan []byte
	done    chan struct{}
	opened  atomic.Bool
	closed  atomic.Bool

	closeOnce sync.Once
	reason    error
	readErr   error
}

var _ handler.Session = (*Session)(nil)

func newSession(id uint32, conn transport.Conn, mgr *Manager) *Session {
	return &Session{
		id:      id,
		token:   uuid.New(),
		conn:    conn,
		remote:  conn.RemoteAddr().String(),
		mgr:     mgr,
		mailbox: make(chan mail, mgr.cfg.MailboxSize),
		sendCh:  make(chan []byte, mgr.cfg.SendQueueSize),
		done:    make(chan struct{}),
	}
}

// ID returns the client id.
func (s *Session) ID() uint32 {
	return s.id
}

// Token returns the per-connection correlation token.
func (s *Session) Token() uuid.UUID {
	return s.token
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.remote
}

// Username returns the name last set by the client.
func (s *Session) Username() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.username
}

// SetUsername changes the client's name.
func (s *Session) SetUsername(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.username = name
}

// LobbyID returns the lobby the client is in.
func (s *Session) LobbyID() (uint64, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lobbyID, s.inLobby
}

// SetLobby records that the client is in lobby id.
func (s *Session) SetLobby(id uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lobbyID, s.inLobby = id, true
}

// ClearLobby forgets the lobby reference if it still names id.
func (s *Session) ClearLobby(id uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.inLobby || s.lobbyID != id {
		return false
	}
	s.lobbyID, s.inLobby = 0, false
	return true
}

// Closed reports whether the session is terminated.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Send encodes rec and queues it. It returns false when encoding fails, the session is
// closed or the send queue is full; it never blocks.
func (s *Session) Send(rec message.Record) bool {
	if s.closed.Load() {
		return false
	}
	data, err := codec.Encode(rec, nil)
	if err != nil {
		s.logWith(log.Error()).Err(err).Msg("encode outgoing record")
		s.dropped(rec, "encode")
		return false
	}

	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.sendCh <- data:
		metrics.IncrCounterWithDimGroup(metrics.NameRecordSendTotal, metrics.GroupNet, 1,
			metrics.Dimension{metrics.DimMsgID: rec.MsgID()})
		return true
	default:
		s.logWith(log.Warn()).Str("msgid", rec.MsgID()).Msg("send queue is full, dropping record")
		s.dropped(rec, "queue_full")
		return false
	}
}

func (s *Session) dropped(rec message.Record, reason string) {
	id := ""
	if rec != nil {
		id = rec.MsgID()
	}
	metrics.IncrCounterWithDimGroup(metrics.NameRecordSendDropTotal, metrics.GroupNet, 1,
		metrics.Dimension{metrics.DimMsgID: id, metrics.DimReason: reason})
}

// Close terminates the session. Records still queued for dispatch are skipped and the
// handler's OnSessionClose runs on the dispatch goroutine. Safe to call more than once.
func (s *Session) Close(reason error) {
	s.terminate(reason)
}

func (s *Session) terminate(reason error) {
	s.closeOnce.Do(func() {
		s.reason = reason
		s.closed.Store(true)
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) logWith(e *log.LogEvent) *log.LogEvent {
	e = e.Uint32("client_id", s.id).Str("session", s.token.String())
	if id, ok := s.LobbyID(); ok {
		e = e.Uint64("lobby_id", id)
	}
	return e
}

// serveRecv reads the stream, decodes records and posts them to the mailbox. It closes
// the mailbox when the connection ends, so the dispatch goroutine drains what was read.
func (s *Session) serveRecv() {
	defer close(s.mailbox)

	chunkp := s.mgr.chunks.Get()
	defer s.mgr.chunks.Put(chunkp)
	chunk := *chunkp

	var buf []byte
	for {
		n, err := s.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			var ok bool
			if buf, ok = s.decode(buf); !ok {
				return
			}
		}
		if err != nil {
			if !s.closed.Load() {
				s.logWith(log.Debug()).Err(err).Msg("read loop ended")
			}
			s.setReason(fmt.Errorf("read: %w", err))
			return
		}
	}
}

// decode consumes every complete record in buf and returns the unconsumed tail.
func (s *Session) decode(buf []byte) ([]byte, bool) {
	for len(buf) > 0 {
		recs, rest, err := codec.DecodeStream(buf)
		for _, rec := range recs {
			if !s.post(mail{rec: rec}) {
				return nil, false
			}
		}
		if err == nil {
			buf = compact(buf, rest)
			break
		}
		if !s.post(mail{err: err}) {
			return nil, false
		}
		buf = compact(buf, rest)
	}

	if len(buf) > s.mgr.cfg.MaxBufferSize {
		if !s.post(mail{err: &codec.ProtocolError{Err: ErrRecordTooLarge}}) {
			return nil, false
		}
		buf = buf[:0]
	}
	return buf, true
}

// compact moves rest, a suffix of buf, to the front of buf.
func compact(buf, rest []byte) []byte {
	n := copy(buf, rest)
	return buf[:n]
}

// post blocks while the mailbox is full so a slow handler slows the reader down.
func (s *Session) post(m mail) bool {
	select {
	case s.mailbox <- m:
		return true
	case <-s.done:
		return false
	}
}

// setReason records why the read side ended. It is read after the mailbox is closed.
func (s *Session) setReason(err error) {
	s.readErr = err
}
