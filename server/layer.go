package server

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/lobbyd/lobby"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/handler"
	"github.com/linchenxuan/lobbyd/network/message"
)

// ErrNotInLobby answers lobby records from clients outside any lobby.
var ErrNotInLobby = errors.New("not in a lobby")

// SessionMsgHandle handles a record that needs no lobby.
type SessionMsgHandle func(ctx *HandleContext, rec message.Record) error

// LobbyMsgHandle handles a record addressed to the sender's lobby.
type LobbyMsgHandle func(ctx *HandleContext, l *lobby.Lobby, rec message.Record) error

// sessionLayer runs SessionMsgHandle handlers.
type sessionLayer struct {
	srv *Server
}

var _ handler.MsgLayer = (*sessionLayer)(nil)

func (layer *sessionLayer) Init() error { return nil }

func (layer *sessionLayer) Shutdown() {}

func (layer *sessionLayer) OnRecvDispatcherPkg(delivery handler.Delivery) error {
	handle, ok := delivery.GetProtoInfo().GetMsgHandle().(SessionMsgHandle)
	if !ok {
		return fmt.Errorf("record %s has no session handler", delivery.GetProtoInfo().GetMsgID())
	}
	ctx := newHandleContext(layer.srv, delivery)
	return finish(ctx, handle(ctx, delivery.GetRecord()))
}

// lobbyLayer resolves the sender's lobby and runs LobbyMsgHandle handlers.
type lobbyLayer struct {
	srv *Server
}

var _ handler.MsgLayer = (*lobbyLayer)(nil)

func (layer *lobbyLayer) Init() error { return nil }

// Shutdown leaves lobby state alone; sessions are closed by the server and their close
// hooks empty the lobbies.
func (layer *lobbyLayer) Shutdown() {}

func (layer *lobbyLayer) OnRecvDispatcherPkg(delivery handler.Delivery) error {
	handle, ok := delivery.GetProtoInfo().GetMsgHandle().(LobbyMsgHandle)
	if !ok {
		return fmt.Errorf("record %s has no lobby handler", delivery.GetProtoInfo().GetMsgID())
	}
	ctx := newHandleContext(layer.srv, delivery)

	id, in := ctx.Session().LobbyID()
	if !in {
		return finish(ctx, ErrNotInLobby)
	}
	l, err := layer.srv.registry.Get(lobby.ID(id))
	if err != nil {
		ctx.Session().ClearLobby(id)
		return finish(ctx, err)
	}
	return finish(ctx, handle(ctx, l, delivery.GetRecord()))
}

// finish answers a failed request with an Error record. The error is still returned so
// the dispatcher counts it.
func finish(ctx *HandleContext, err error) error {
	if err == nil {
		return nil
	}
	ctx.logWith(log.Debug()).Err(err).Msg("request rejected")
	ctx.ReplyError(err)
	return err
}
