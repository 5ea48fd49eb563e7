package server

import (
	"errors"
	"sync"

	"github.com/linchenxuan/lobbyd/lobby"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/message"
	"github.com/linchenxuan/lobbyd/network/session"
)

const kickedByHost = "kicked by host"

var registerOnce sync.Once

// registerHandlers attaches every client record to its handler and layer.
func registerHandlers() {
	registerOnce.Do(func() {
		for name, h := range map[string]SessionMsgHandle{
			message.NameDisconnect:       handleDisconnect,
			message.NameLobbyListRequest: handleLobbyListRequest,
			message.NameCreateLobby:      handleCreateLobby,
			message.NameJoinLobby:        handleJoinLobby,
		} {
			message.RegisterMsgHandle(name, h, message.MsgLayerType_Session)
		}
		for name, h := range map[string]LobbyMsgHandle{
			message.NameLeaveLobby:          handleLeaveLobby,
			message.NameKickPlayerFromLobby: handleKickPlayer,
			message.NameChangeLobbySettings: handleChangeSettings,
			message.NameNewChatMessage:      handleChat,
			message.NameStartGameStartTimer: handleStartTimer,
			message.NameStartGame:           handleStartGame,
			message.NameGameInitialized:     handleGameInitialized,
			message.NameGameOver:            handleGameOver,
			message.NameGameData:            handleGameData,
		} {
			message.RegisterMsgHandle(name, h, message.MsgLayerType_Lobby)
		}
	})
}

func handleDisconnect(ctx *HandleContext, _ message.Record) error {
	ctx.Session().Close(session.ErrDisconnected)
	return nil
}

func handleLobbyListRequest(ctx *HandleContext, _ message.Record) error {
	ctx.Reply(ctx.srv.bcast.Listing())
	return nil
}

func handleCreateLobby(ctx *HandleContext, rec message.Record) error {
	req := rec.(*message.CreateLobby)
	ctx.srv.leaveCurrent(ctx.Session())

	ctx.Session().SetUsername(req.Username)
	snap := ctx.srv.registry.Create(ctx.Member(), req.LobbyTitle, req.Settings)
	ctx.Session().SetLobby(uint64(snap.ID))

	ctx.Reply(snap.FullInfo(true))
	ctx.srv.bcast.BroadcastListing()
	return nil
}

func handleJoinLobby(ctx *HandleContext, rec message.Record) error {
	req := rec.(*message.JoinLobby)
	if cur, in := ctx.Session().LobbyID(); !in || cur != req.LobbyID {
		ctx.srv.leaveCurrent(ctx.Session())
		ctx.Session().SetUsername(req.Username)
	}

	// The ref is set before the join so a kick landing right after it finds the ref to clear.
	ctx.Session().SetLobby(req.LobbyID)
	out, err := ctx.srv.registry.Join(lobby.ID(req.LobbyID), ctx.Member())
	if err != nil {
		ctx.Session().ClearLobby(req.LobbyID)
	}
	if lobby.IsRejection(err) {
		ctx.logWith(log.Debug()).Uint64("target_lobby", req.LobbyID).Err(err).Msg("join rejected")
		ctx.Reply(&message.KickedFromLobby{Reason: message.Some(lobby.Reason(err))})
		return nil
	}
	if err != nil {
		return err
	}

	ctx.Reply(out.Lobby.FullInfo(true))
	if out.Rejoined {
		return nil
	}
	ctx.srv.bcast.BroadcastLobbyInfo(out.Lobby, false, ctx.ClientID())
	ctx.srv.bcast.BroadcastListing()
	return nil
}

func handleLeaveLobby(ctx *HandleContext, l *lobby.Lobby, _ message.Record) error {
	out, err := l.Leave(ctx.ClientID())
	ctx.Session().ClearLobby(uint64(l.ID()))
	if err != nil {
		return err
	}
	ctx.srv.notifyDeparture(out)
	return nil
}

func handleKickPlayer(ctx *HandleContext, l *lobby.Lobby, rec message.Record) error {
	req := rec.(*message.KickPlayerFromLobby)
	target := lobby.ClientID(req.ClientID)
	out, err := l.Kick(ctx.ClientID(), target)
	if err != nil {
		return err
	}

	if s, ok := ctx.srv.sessions.Get(req.ClientID); ok {
		s.ClearLobby(uint64(l.ID()))
	}
	ctx.srv.bcast.SendTo(target, &message.KickedFromLobby{Reason: message.Some(kickedByHost)})
	ctx.srv.notifyDeparture(out)
	return nil
}

func handleChangeSettings(ctx *HandleContext, l *lobby.Lobby, rec message.Record) error {
	req := rec.(*message.ChangeLobbySettings)
	ch := lobby.Change{
		Title:    req.LobbyTitle,
		Private:  req.Private,
		GameID:   req.GameID,
		Settings: req.GameSettings,
	}
	if h, ok := req.HostID.Get(); ok {
		ch.HostID = message.Some(lobby.ClientID(h))
	}

	out, err := l.ChangeSettings(ctx.ClientID(), ch)
	if err != nil {
		return err
	}
	if out.Info {
		ctx.srv.bcast.BroadcastLobbyInfo(out.Lobby, false)
	}
	if out.Listing {
		ctx.srv.bcast.BroadcastListing()
	}
	return nil
}

func handleChat(ctx *HandleContext, l *lobby.Lobby, rec message.Record) error {
	line, snap, err := l.Chat(ctx.ClientID(), rec.(*message.NewChatMessage).Text)
	if err != nil {
		return err
	}
	ctx.srv.bcast.SendToMembers(snap, &message.NewChatMessage{Text: line})
	return nil
}

func handleStartTimer(ctx *HandleContext, l *lobby.Lobby, rec message.Record) error {
	ts, snap, err := l.StartTimer(ctx.ClientID(), rec.(*message.StartGameStartTimer).StartTimestamp)
	if err != nil {
		return err
	}
	ctx.srv.bcast.SendToMembers(snap, &message.StartGameStartTimer{StartTimestamp: ts}, ctx.ClientID())
	return nil
}

func handleStartGame(ctx *HandleContext, l *lobby.Lobby, _ message.Record) error {
	out, err := l.StartGame(ctx.ClientID())
	if err != nil {
		return err
	}
	ctx.srv.bcast.SendToMembers(out.Lobby, out.Lobby.GameStarted())
	ctx.srv.bcast.BroadcastListing()
	return nil
}

func handleGameInitialized(ctx *HandleContext, l *lobby.Lobby, _ message.Record) error {
	out, err := l.GameInitialized(ctx.ClientID())
	if err != nil {
		return err
	}
	ctx.logWith(log.Debug()).Int("ready", out.Lobby.Ready).Int("members", len(out.Lobby.Members)).
		Bool("completed", out.Completed).Msg("member ready")
	return nil
}

func handleGameOver(ctx *HandleContext, l *lobby.Lobby, _ message.Record) error {
	out, err := l.GameOver(ctx.ClientID())
	if err != nil {
		return err
	}
	ctx.srv.bcast.SendToMembers(out.Lobby, &message.GameOver{})
	ctx.srv.bcast.BroadcastLobbyInfo(out.Lobby, false)
	ctx.srv.bcast.BroadcastListing()
	return nil
}

func handleGameData(ctx *HandleContext, l *lobby.Lobby, rec message.Record) error {
	snap, err := l.Relay(ctx.ClientID())
	if errors.Is(err, lobby.ErrInvalidState) {
		ctx.logWith(log.Debug()).Err(err).Msg("game data outside a game ignored")
		return nil
	}
	if err != nil {
		return err
	}
	ctx.srv.bcast.SendToMembers(snap, rec, ctx.ClientID())
	return nil
}
