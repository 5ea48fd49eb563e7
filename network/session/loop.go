package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/network/codec"
)

// serveDispatch drains the mailbox in order. After the mailbox is closed, or once the
// session is terminated, it finishes the session: the handler's close hook runs here so it
// never overlaps with record handling for the same client.
func (s *Session) serveDispatch() {
	for m := range s.mailbox {
		if s.closed.Load() {
			// Terminated: drain without handling so the reader can exit.
			continue
		}
		if m.err != nil {
			metrics.IncrCounterWithDimGroup(metrics.NameDecodeErrorTotal, metrics.GroupNet, 1,
				metrics.Dimension{metrics.DimResync: resyncDim(m.err)})
			s.mgr.handler.OnDecodeError(s, m.err)
			continue
		}
		metrics.IncrCounterWithDimGroup(metrics.NameRecordRecvTotal, metrics.GroupNet, 1,
			metrics.Dimension{metrics.DimMsgID: m.rec.MsgID()})
		s.mgr.handler.OnRecord(s, m.rec)
	}

	s.terminate(s.readErr)
	s.mgr.handler.OnSessionClose(s, s.reason)
	// The id stays allocated until the close hook has removed it from any lobby.
	s.mgr.remove(s)

	reason := "closed"
	if s.reason != nil {
		reason = s.reason.Error()
	}
	metrics.IncrCounterWithDimGroup(metrics.NameSessionCloseTotal, metrics.GroupNet, 1,
		metrics.Dimension{metrics.DimReason: closeReasonDim(s)})
	s.logWith(log.Info()).Str("remote", s.remote).Str("reason", reason).Msg("session closed")
}

func resyncDim(err error) string {
	var pe *codec.ProtocolError
	if errors.As(err, &pe) && pe.Resync {
		return "true"
	}
	return "false"
}

func closeReasonDim(s *Session) string {
	switch {
	case s.reason == nil:
		return "closed"
	case errors.Is(s.reason, ErrDisconnected):
		return "disconnect"
	case errors.Is(s.reason, ErrServerShutdown):
		return "shutdown"
	case s.reason == s.readErr:
		return "read"
	default:
		return "write"
	}
}

// serveSend writes queued records in order until the session is terminated.
func (s *Session) serveSend() {
	dl, _ := s.conn.(deadliner)
	timeout := time.Duration(s.mgr.cfg.WriteTimeoutSec) * time.Second
	for {
		select {
		case <-s.done:
			return
		case data := <-s.sendCh:
			if dl != nil && timeout > 0 {
				_ = dl.SetWriteDeadline(time.Now().Add(timeout))
			}
			if _, err := s.conn.Write(data); err != nil {
				if !s.closed.Load() {
					s.logWith(log.Debug()).Err(err).Msg("write failed")
				}
				s.terminate(fmt.Errorf("write: %w", err))
				return
			}
		}
	}
}
