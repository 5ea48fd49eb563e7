package message

// Record names. They double as the envelope "type" tag.
const (
	NameConnected           = "Connected"
	NameDisconnect          = "Disconnect"
	NameLobbyListRequest    = "LobbyListRequest"
	NameLobbyList           = "LobbyList"
	NameCreateLobby         = "CreateLobby"
	NameJoinLobby           = "JoinLobby"
	NameLeaveLobby          = "LeaveLobby"
	NameKickedFromLobby     = "KickedFromLobby"
	NameKickPlayerFromLobby = "KickPlayerFromLobby"
	NameChangeLobbySettings = "ChangeLobbySettings"
	NameLobbyInfo           = "LobbyInfo"
	NameNewChatMessage      = "NewChatMessage"
	NameStartGameStartTimer = "StartGameStartTimer"
	NameStartGame           = "StartGame"
	NameGameStarted         = "GameStarted"
	NameGameInitialized     = "GameInitialized"
	NameGameOver            = "GameOver"
	NameGameData            = "GameData"
	NameError               = "Error"
)

// Client identifies a lobby member on the wire.
type Client struct {
	Name string `json:"name"`
	ID   uint32 `json:"id"`
}

// Connected greets a new connection with its assigned id.
type Connected struct {
	Address  string `json:"address"`
	ClientID uint32 `json:"client_id"`
}

// Disconnect announces that the client is closing the connection.
type Disconnect struct{}

// LobbyListRequest asks for the public listing.
type LobbyListRequest struct{}

// LobbyList carries the public listing. Entries use the public LobbyInfo variant.
type LobbyList struct {
	Lobbies []LobbyInfo `json:"lobbies"`
}

// CreateLobby creates a lobby hosted by the sender.
type CreateLobby struct {
	Username   string `json:"username"`
	LobbyTitle string `json:"lobby_title"`
	Settings   Blob   `json:"settings,omitzero"`
}

// JoinLobby joins an existing lobby by id.
type JoinLobby struct {
	LobbyID  uint64 `json:"lobby_id"`
	Username string `json:"username"`
}

// LeaveLobby leaves the sender's lobby.
type LeaveLobby struct{}

// KickedFromLobby tells a client it is not, or no longer, in the lobby it asked for.
type KickedFromLobby struct {
	Reason Opt[string] `json:"reason,omitzero"`
}

// KickPlayerFromLobby is a host request to remove another member.
type KickPlayerFromLobby struct {
	ClientID uint32 `json:"client_id"`
}

// ChangeLobbySettings is a host request where every absent field is left unchanged.
type ChangeLobbySettings struct {
	LobbyTitle   Opt[string] `json:"lobby_title,omitzero"`
	Private      Opt[bool]   `json:"private,omitzero"`
	HostID       Opt[uint32] `json:"host_id,omitzero"`
	GameID       Opt[string] `json:"game_id,omitzero"`
	GameSettings Opt[Blob]   `json:"game_settings,omitzero"`
}

// LobbyInfo describes a lobby. The public variant leaves Private, Settings and Chat absent;
// the full variant sent to members always carries Private and Settings, and Chat when the
// backlog is requested.
type LobbyInfo struct {
	LobbyID    uint64        `json:"lobby_id"`
	Title      string        `json:"title"`
	Host       Client        `json:"host"`
	Members    []Client      `json:"members"`
	GameID     string        `json:"game_id"`
	MaxPlayers int           `json:"max_players"`
	Private    Opt[bool]     `json:"private,omitzero"`
	Settings   Opt[Blob]     `json:"settings,omitzero"`
	Chat       Opt[[]string] `json:"chat,omitzero"`
}

// NewChatMessage is a chat line; clients send the raw text and receive the formatted line.
type NewChatMessage struct {
	Text string `json:"text"`
}

// StartGameStartTimer announces the start countdown, in unix milliseconds.
type StartGameStartTimer struct {
	StartTimestamp int64 `json:"start_timestamp"`
}

// StartGame is the host request that opens the readiness barrier.
type StartGame struct{}

// GameStarted tells every member to build its local game instance.
type GameStarted struct {
	Members []Client `json:"members"`
	Host    Client   `json:"host"`
	GameID  string   `json:"game_id"`
}

// GameInitialized acknowledges that the sender's game instance is ready.
type GameInitialized struct{}

// GameOver ends the running game and returns the lobby to Open.
type GameOver struct{}

// GameData relays an opaque game payload between members.
type GameData struct {
	Payload Payload `json:"payload"`
}

// Error reports a rejected or malformed request.
type Error struct {
	Description string `json:"description"`
}

func (*Connected) MsgID() string           { return NameConnected }
func (*Disconnect) MsgID() string          { return NameDisconnect }
func (*LobbyListRequest) MsgID() string    { return NameLobbyListRequest }
func (*LobbyList) MsgID() string           { return NameLobbyList }
func (*CreateLobby) MsgID() string         { return NameCreateLobby }
func (*JoinLobby) MsgID() string           { return NameJoinLobby }
func (*LeaveLobby) MsgID() string          { return NameLeaveLobby }
func (*KickedFromLobby) MsgID() string     { return NameKickedFromLobby }
func (*KickPlayerFromLobby) MsgID() string { return NameKickPlayerFromLobby }
func (*ChangeLobbySettings) MsgID() string { return NameChangeLobbySettings }
func (*LobbyInfo) MsgID() string           { return NameLobbyInfo }
func (*NewChatMessage) MsgID() string      { return NameNewChatMessage }
func (*StartGameStartTimer) MsgID() string { return NameStartGameStartTimer }
func (*StartGame) MsgID() string           { return NameStartGame }
func (*GameStarted) MsgID() string         { return NameGameStarted }
func (*GameInitialized) MsgID() string     { return NameGameInitialized }
func (*GameOver) MsgID() string            { return NameGameOver }
func (*GameData) MsgID() string            { return NameGameData }
func (*Error) MsgID() string               { return NameError }

func init() {
	for _, pi := range []*MsgProtoInfo{
		{MsgID: NameConnected, Dir: DirSC, New: func() Record { return &Connected{} }},
		{MsgID: NameDisconnect, Dir: DirCS, New: func() Record { return &Disconnect{} }},
		{MsgID: NameLobbyListRequest, Dir: DirCS, New: func() Record { return &LobbyListRequest{} }},
		{MsgID: NameLobbyList, Dir: DirSC, New: func() Record { return &LobbyList{} }},
		{MsgID: NameCreateLobby, Dir: DirCS, New: func() Record { return &CreateLobby{} }},
		{MsgID: NameJoinLobby, Dir: DirCS, New: func() Record { return &JoinLobby{} }},
		{MsgID: NameLeaveLobby, Dir: DirCS, New: func() Record { return &LeaveLobby{} }},
		{MsgID: NameKickedFromLobby, Dir: DirSC, New: func() Record { return &KickedFromLobby{} }},
		{MsgID: NameKickPlayerFromLobby, Dir: DirCS, New: func() Record { return &KickPlayerFromLobby{} }},
		{MsgID: NameChangeLobbySettings, Dir: DirCS, New: func() Record { return &ChangeLobbySettings{} }},
		{MsgID: NameLobbyInfo, Dir: DirSC, New: func() Record { return &LobbyInfo{} }},
		{MsgID: NameNewChatMessage, Dir: DirBoth, New: func() Record { return &NewChatMessage{} }},
		{MsgID: NameStartGameStartTimer, Dir: DirBoth, New: func() Record { return &StartGameStartTimer{} }},
		{MsgID: NameStartGame, Dir: DirCS, New: func() Record { return &StartGame{} }},
		{MsgID: NameGameStarted, Dir: DirSC, New: func() Record { return &GameStarted{} }},
		{MsgID: NameGameInitialized, Dir: DirCS, New: func() Record { return &GameInitialized{} }},
		{MsgID: NameGameOver, Dir: DirBoth, New: func() Record { return &GameOver{} }},
		{MsgID: NameGameData, Dir: DirBoth, New: func() Record { return &GameData{} }},
		{MsgID: NameError, Dir: DirSC, New: func() Record { return &Error{} }},
	} {
		RegisterMsgInfo(pi)
	}
}
