package lobby

import "errors"

// Lobby operation failures. Their text is the reason shown to clients.
var (
	ErrLobbyNotFound  = errors.New("lobby does not exist")
	ErrLobbyInGame    = errors.New("lobby is in game")
	ErrLobbyPrivate   = errors.New("lobby is private")
	ErrLobbyFull      = errors.New("lobby is full")
	ErrNotHost        = errors.New("only the host can do this")
	ErrNotMember      = errors.New("client is not a member of the lobby")
	ErrInvalidState   = errors.New("not allowed in the current lobby state")
	ErrNoGameSelected = errors.New("no game selected")
	ErrCannotKickSelf = errors.New("the host cannot kick themselves")
)
