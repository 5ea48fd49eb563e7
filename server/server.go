// Package server glues client sessions to the lobby registry: it greets new connections,
// routes their records through the dispatcher to the record handlers, and cleans up lobby
// membership when a connection ends.
package server

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/lobbyd/broadcast"
	"github.com/linchenxuan/lobbyd/lobby"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/dispatcher"
	"github.com/linchenxuan/lobbyd/network/handler"
	"github.com/linchenxuan/lobbyd/network/message"
	"github.com/linchenxuan/lobbyd/network/session"
	"github.com/linchenxuan/lobbyd/network/transport"
)

// Options selects the component configurations. Nil fields use the component defaults.
type Options struct {
	Session    *session.Config
	Lobby      *lobby.Config
	Dispatcher *dispatcher.DispatcherConfig
	Broadcast  *broadcast.Config
}

// Server is the lobby service. It implements session.Handler.
type Server struct {
	registry *lobby.Registry
	sessions *session.Manager
	disp     *dispatcher.Dispatcher
	bcast    *broadcast.Service
	layers   []handler.MsgLayer
}

var _ session.Handler = (*Server)(nil)

// New builds a server with its registry, session manager, dispatcher and layers.
func New(opts Options) (*Server, error) {
	registerHandlers()

	s := &Server{}
	var err error
	if s.registry, err = lobby.NewRegistry(opts.Lobby); err != nil {
		return nil, err
	}
	if s.sessions, err = session.NewManager(opts.Session, s); err != nil {
		return nil, err
	}
	if s.disp, err = dispatcher.NewDispatcher(opts.Dispatcher); err != nil {
		return nil, err
	}
	if s.bcast, err = broadcast.NewService(opts.Broadcast, broadcast.SessionDirectory(s.sessions), s.registry); err != nil {
		return nil, err
	}

	for t, layer := range map[message.MsgLayerType]handler.MsgLayer{
		message.MsgLayerType_Session: &sessionLayer{srv: s},
		message.MsgLayerType_Lobby:   &lobbyLayer{srv: s},
	} {
		if err := layer.Init(); err != nil {
			return nil, fmt.Errorf("init message layer %d: %w", t, err)
		}
		if err := s.disp.RegisterMsglayer(t, layer); err != nil {
			return nil, err
		}
		s.layers = append(s.layers, layer)
	}
	return s, nil
}

// ConnHandler returns the handler the transports hand accepted connections to.
func (s *Server) ConnHandler() transport.ConnHandler {
	return s.sessions
}

// Registry returns the lobby registry.
func (s *Server) Registry() *lobby.Registry {
	return s.registry
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Reload applies hot-reloadable settings. Nil arguments are skipped.
func (s *Server) Reload(d *dispatcher.DispatcherConfig, b *broadcast.Config) error {
	var errs []error
	if d != nil {
		errs = append(errs, s.disp.Reload(d))
	}
	if b != nil {
		errs = append(errs, s.bcast.Reload(b))
	}
	return errors.Join(errs...)
}

// Shutdown closes every session and stops the layers.
func (s *Server) Shutdown() {
	s.sessions.CloseAll(session.ErrServerShutdown)
	s.sessions.Wait()
	for _, layer := range s.layers {
		layer.Shutdown()
	}
	log.Info().Int("lobbies", s.registry.Count()).Msg("server shut down")
}

// OnSessionOpen greets the client with its id and the current listing.
func (s *Server) OnSessionOpen(sess *session.Session) {
	sess.Send(&message.Connected{Address: sess.RemoteAddr(), ClientID: sess.ID()})
	sess.Send(s.bcast.Listing())
}

// OnRecord dispatches one client record.
func (s *Server) OnRecord(sess *session.Session, rec message.Record) {
	if err := s.disp.OnRecvRecord(sess, rec); err != nil {
		log.Debug().Uint32("client_id", sess.ID()).Str("msgid", rec.MsgID()).Err(err).Msg("record not handled")
	}
}

// OnDecodeError answers a malformed record with an Error record.
func (s *Server) OnDecodeError(sess *session.Session, err error) {
	sess.Send(&message.Error{Description: err.Error()})
}

// OnSessionClose removes the client from its lobby.
func (s *Server) OnSessionClose(sess *session.Session, _ error) {
	s.leaveCurrent(sess)
}

// leaveCurrent takes the client out of its lobby, if any, and notifies the audiences.
func (s *Server) leaveCurrent(sess handler.Session) {
	id, in := sess.LobbyID()
	if !in {
		return
	}
	out, err := s.registry.Leave(lobby.ID(id), lobby.ClientID(sess.ID()))
	sess.ClearLobby(id)
	if err != nil {
		log.Debug().Uint32("client_id", sess.ID()).Uint64("lobby_id", id).Err(err).Msg("stale lobby reference")
		return
	}
	s.notifyDeparture(out)
}

// notifyDeparture tells the remaining members and the unaffiliated clients about a member
// that left or was kicked.
func (s *Server) notifyDeparture(out lobby.Outcome) {
	if !out.Destroyed {
		if out.Aborted {
			s.bcast.SendToMembers(out.Lobby, &message.GameOver{})
		}
		s.bcast.BroadcastLobbyInfo(out.Lobby, false)
	}
	s.bcast.BroadcastListing()
}
