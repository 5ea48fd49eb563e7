package server

import (
	"github.com/linchenxuan/lobbyd/lobby"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/handler"
	"github.com/linchenxuan/lobbyd/network/message"
)

// HandleContext carries everything a record handler needs for one record.
type HandleContext struct {
	handler.Delivery
	srv *Server
}

func newHandleContext(srv *Server, d handler.Delivery) *HandleContext {
	return &HandleContext{Delivery: d, srv: srv}
}

// Session returns the sender's session.
func (ctx *HandleContext) Session() handler.Session {
	return ctx.GetSession()
}

// ClientID returns the sender's client id.
func (ctx *HandleContext) ClientID() lobby.ClientID {
	return lobby.ClientID(ctx.GetSession().ID())
}

// Member returns the sender as a lobby member under its current name.
func (ctx *HandleContext) Member() lobby.Member {
	s := ctx.GetSession()
	return lobby.Member{ID: lobby.ClientID(s.ID()), Name: s.Username()}
}

// Reply sends rec back to the sender.
func (ctx *HandleContext) Reply(rec message.Record) {
	ctx.GetSession().Send(rec)
}

// ReplyError answers the sender with an Error record describing err.
func (ctx *HandleContext) ReplyError(err error) {
	ctx.Reply(&message.Error{Description: lobby.Reason(err)})
}

func (ctx *HandleContext) logWith(e *log.LogEvent) *log.LogEvent {
	e = e.Uint32("client_id", ctx.GetSession().ID()).Str("msgid", ctx.GetProtoInfo().GetMsgID())
	if id, ok := ctx.GetSession().LobbyID(); ok {
		e = e.Uint64("lobby_id", id)
	}
	return e
}
