package lobby

import (
	"time"

	"github.com/linchenxuan/lobbyd/network/message"
)

// ID identifies a lobby. Ids are assigned from 0 upwards and never reused.
type ID uint64

// ClientID identifies a connected client.
type ClientID uint32

// State is the lobby lifecycle state.
type State uint8

const (
	// StateOpen lobbies accept joins and configuration.
	StateOpen State = iota
	// StateStarting lobbies wait for every member to report GameInitialized.
	StateStarting
	// StateInGame lobbies hold a running game session.
	StateInGame
	// StateDestroyed lobbies lost their last member.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStarting:
		return "starting"
	case StateInGame:
		return "in_game"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Member is one lobby member.
type Member struct {
	ID   ClientID
	Name string
}

func (m Member) client() message.Client {
	return message.Client{Name: m.Name, ID: uint32(m.ID)}
}

// GameSession is the running game of a lobby, present between barrier completion and
// game over.
type GameSession struct {
	GameID    string
	Host      Member
	Members   []Member
	StartedAt time.Time
}

// Snapshot is an immutable copy of a lobby's state.
type Snapshot struct {
	ID         ID
	Title      string
	Host       Member
	Members    []Member
	Private    bool
	MaxPlayers int
	GameID     string
	Settings   message.Blob
	Chat       []string
	State      State
	Ready      int
}

// Has reports whether c is a member.
func (s Snapshot) Has(c ClientID) bool {
	for _, m := range s.Members {
		if m.ID == c {
			return true
		}
	}
	return false
}

// MemberIDs returns the member ids in join order.
func (s Snapshot) MemberIDs() []ClientID {
	ids := make([]ClientID, len(s.Members))
	for i, m := range s.Members {
		ids[i] = m.ID
	}
	return ids
}

// Listed reports whether the lobby belongs in the public listing: not private, no game
// starting or running, and a free slot.
func (s Snapshot) Listed() bool {
	return !s.Private && s.State == StateOpen && len(s.Members) < s.MaxPlayers
}

func (s Snapshot) clients() []message.Client {
	out := make([]message.Client, len(s.Members))
	for i, m := range s.Members {
		out[i] = m.client()
	}
	return out
}

// PublicInfo is the listing variant of LobbyInfo.
func (s Snapshot) PublicInfo() message.LobbyInfo {
	return message.LobbyInfo{
		LobbyID:    uint64(s.ID),
		Title:      s.Title,
		Host:       s.Host.client(),
		Members:    s.clients(),
		GameID:     s.GameID,
		MaxPlayers: s.MaxPlayers,
	}
}

// FullInfo is the LobbyInfo sent to members. The chat backlog is attached on request.
func (s Snapshot) FullInfo(includeChat bool) *message.LobbyInfo {
	info := s.PublicInfo()
	info.Private = message.Some(s.Private)
	info.Settings = message.Some(s.Settings)
	if includeChat {
		info.Chat = message.Some(append([]string{}, s.Chat...))
	}
	return &info
}

// GameStarted is the record sent to every member when the barrier opens.
func (s Snapshot) GameStarted() *message.GameStarted {
	return &message.GameStarted{
		Members: s.clients(),
		Host:    s.Host.client(),
		GameID:  s.GameID,
	}
}

// Outcome tells the caller which audiences an operation affected.
type Outcome struct {
	// Lobby is the state after the operation.
	Lobby Snapshot
	// Listing is set when the public listing must be rebroadcast.
	Listing bool
	// Info is set when members must receive fresh lobby info.
	Info bool
	// Destroyed is set when the operation removed the last member.
	Destroyed bool
	// Aborted is set when a membership change cancelled a pending start.
	Aborted bool
	// Rejoined is set when a member joined the lobby it was already in.
	Rejoined bool
	// Completed is set when the last GameInitialized moved the lobby in game.
	Completed bool
	// Removed is the member that left or was kicked.
	Removed Member
}
