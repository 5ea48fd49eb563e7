// Package lobby owns the lobbies: membership, host succession, settings, chat and the
// readiness barrier that moves a lobby into a game. Every Lobby guards its state with its
// own mutex; the Registry guards the id map.
package lobby

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/network/message"
)

const maxPlayersKey = "max_players"

// Lobby is one room. Operations return an Outcome naming the audiences to notify.
type Lobby struct {
	id      ID
	cfg     *Config
	onEmpty func(*Lobby)

	mu         sync.Mutex
	title      string
	host       ClientID
	members    []Member
	private    bool
	gameID     string
	settings   message.Blob
	maxPlayers int
	chat       []string
	state      State
	ready      map[ClientID]struct{}
	game       *GameSession
}

func newLobby(id ID, cfg *Config, host Member, title string, settings message.Blob, onEmpty func(*Lobby)) *Lobby {
	l := &Lobby{
		id:      id,
		cfg:     cfg,
		onEmpty: onEmpty,
		title:   title,
		host:    host.ID,
		members: []Member{host},
		ready:   make(map[ClientID]struct{}),
	}
	l.applySettings(settings)
	return l
}

// ID returns the lobby id.
func (l *Lobby) ID() ID {
	return l.id
}

// Snapshot returns a copy of the current state.
func (l *Lobby) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Lobby) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:         l.id,
		Title:      l.title,
		Members:    slices.Clone(l.members),
		Private:    l.private,
		MaxPlayers: l.maxPlayers,
		GameID:     l.gameID,
		Settings:   l.settings,
		Chat:       slices.Clone(l.chat),
		State:      l.state,
		Ready:      len(l.ready),
	}
	if i := l.indexLocked(l.host); i >= 0 {
		s.Host = l.members[i]
	}
	return s
}

// GameSession returns the running game, if any.
func (l *Lobby) GameSession() (GameSession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.game == nil {
		return GameSession{}, false
	}
	g := *l.game
	g.Members = slices.Clone(g.Members)
	return g, true
}

func (l *Lobby) indexLocked(c ClientID) int {
	return slices.IndexFunc(l.members, func(m Member) bool { return m.ID == c })
}

func (l *Lobby) memberLocked(c ClientID) (Member, error) {
	i := l.indexLocked(c)
	if i < 0 {
		return Member{}, fmt.Errorf("client %d, lobby %d: %w", c, l.id, ErrNotMember)
	}
	return l.members[i], nil
}

func (l *Lobby) hostLocked(c ClientID) error {
	if _, err := l.memberLocked(c); err != nil {
		return err
	}
	if l.host != c {
		return fmt.Errorf("client %d, lobby %d: %w", c, l.id, ErrNotHost)
	}
	return nil
}

// applySettings replaces the blob and derives max players from it.
func (l *Lobby) applySettings(b message.Blob) {
	l.settings = b
	l.maxPlayers = l.cfg.DefaultMaxPlayers
	if n, ok := b.Int(maxPlayersKey); ok && n > 0 {
		l.maxPlayers = int(n)
	}
}

func (l *Lobby) logWith(e *log.LogEvent) *log.LogEvent {
	return e.Uint64("lobby_id", uint64(l.id))
}

// Join adds m to the lobby. A member joining again gets Outcome.Rejoined and no state
// changes.
func (l *Lobby) Join(m Member) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.state == StateDestroyed:
		return Outcome{}, fmt.Errorf("lobby %d: %w", l.id, ErrLobbyNotFound)
	case l.indexLocked(m.ID) >= 0:
		return Outcome{Lobby: l.snapshotLocked(), Rejoined: true}, nil
	case l.state != StateOpen:
		return Outcome{}, fmt.Errorf("lobby %d: %w", l.id, ErrLobbyInGame)
	case l.private:
		return Outcome{}, fmt.Errorf("lobby %d: %w", l.id, ErrLobbyPrivate)
	case len(l.members) >= l.maxPlayers:
		return Outcome{}, fmt.Errorf("lobby %d: %w", l.id, ErrLobbyFull)
	}

	l.members = append(l.members, m)
	l.logWith(log.Info()).Uint32("client_id", uint32(m.ID)).Int("members", len(l.members)).Msg("member joined")
	return Outcome{Lobby: l.snapshotLocked(), Listing: true, Info: true}, nil
}

// Leave removes c. The last member leaving destroys the lobby; a leaving host hands over
// to the earliest remaining member; a departure while Starting aborts the start.
func (l *Lobby) Leave(c ClientID) (Outcome, error) {
	return l.remove(c, c, false)
}

// Kick removes target on the host's request.
func (l *Lobby) Kick(by, target ClientID) (Outcome, error) {
	return l.remove(by, target, true)
}

func (l *Lobby) remove(by, target ClientID, kick bool) (Outcome, error) {
	l.mu.Lock()
	out, err := l.removeLocked(by, target, kick)
	l.mu.Unlock()

	if err == nil && out.Destroyed && l.onEmpty != nil {
		l.onEmpty(l)
	}
	return out, err
}

func (l *Lobby) removeLocked(by, target ClientID, kick bool) (Outcome, error) {
	if kick {
		if err := l.hostLocked(by); err != nil {
			return Outcome{}, err
		}
		if by == target {
			return Outcome{}, fmt.Errorf("lobby %d: %w", l.id, ErrCannotKickSelf)
		}
	}
	i := l.indexLocked(target)
	if i < 0 {
		return Outcome{}, fmt.Errorf("client %d, lobby %d: %w", target, l.id, ErrNotMember)
	}

	removed := l.members[i]
	l.members = slices.Delete(l.members, i, i+1)
	delete(l.ready, target)
	out := Outcome{Removed: removed, Listing: true}

	if len(l.members) == 0 {
		l.state = StateDestroyed
		l.game = nil
		clear(l.ready)
		out.Destroyed = true
		out.Lobby = l.snapshotLocked()
		l.logWith(log.Info()).Uint32("client_id", uint32(target)).Msg("last member left, lobby destroyed")
		return out, nil
	}

	if l.host == target {
		l.host = l.members[0].ID
		l.logWith(log.Info()).Uint32("host", uint32(l.host)).Msg("host handed over")
	}
	if l.state == StateStarting {
		l.abortLocked()
		out.Aborted = true
	}
	out.Info = true
	out.Lobby = l.snapshotLocked()
	l.logWith(log.Info()).Uint32("client_id", uint32(target)).Bool("kicked", kick).
		Int("members", len(l.members)).Msg("member left")
	return out, nil
}

// Change is a settings request; absent fields stay unchanged.
type Change struct {
	Title    message.Opt[string]
	Private  message.Opt[bool]
	HostID   message.Opt[ClientID]
	GameID   message.Opt[string]
	Settings message.Opt[message.Blob]
}

// ChangeSettings applies the present fields of ch on the host's request. Nothing is
// applied when any field is invalid. Title, privacy, host and game changes, and settings
// changes that alter max players, affect the listing; any change affects lobby info.
func (l *Lobby) ChangeSettings(by ClientID, ch Change) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.hostLocked(by); err != nil {
		return Outcome{}, err
	}
	if h, ok := ch.HostID.Get(); ok && l.indexLocked(h) < 0 {
		return Outcome{}, fmt.Errorf("new host %d, lobby %d: %w", h, l.id, ErrNotMember)
	}

	var out Outcome
	if t, ok := ch.Title.Get(); ok && t != l.title {
		l.title = t
		out.Listing = true
	}
	if p, ok := ch.Private.Get(); ok && p != l.private {
		l.private = p
		out.Listing = true
	}
	if h, ok := ch.HostID.Get(); ok && h != l.host {
		l.host = h
		out.Listing = true
	}
	if g, ok := ch.GameID.Get(); ok && g != l.gameID {
		l.gameID = g
		out.Listing = true
	}
	if s, ok := ch.Settings.Get(); ok && !s.Equal(l.settings) {
		prev := l.maxPlayers
		l.applySettings(s)
		out.Info = true
		if l.maxPlayers != prev {
			out.Listing = true
		}
	}
	if out.Listing {
		out.Info = true
	}
	out.Lobby = l.snapshotLocked()
	return out, nil
}

// Chat appends "<name> text" to the backlog, keeping the newest lines, and returns the
// formatted line.
func (l *Lobby) Chat(from ClientID, text string) (string, Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.memberLocked(from)
	if err != nil {
		return "", Snapshot{}, err
	}
	line := fmt.Sprintf("<%s> %s", m.Name, text)
	l.chat = append(l.chat, line)
	if n := len(l.chat) - l.cfg.MaxChatMessages; n > 0 {
		l.chat = slices.Delete(l.chat, 0, n)
	}
	return line, l.snapshotLocked(), nil
}

// StartTimer stamps the countdown start on the host's request. A zero ts is replaced by
// the current time in unix milliseconds.
func (l *Lobby) StartTimer(by ClientID, ts int64) (int64, Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.hostLocked(by); err != nil {
		return 0, Snapshot{}, err
	}
	if l.state != StateOpen {
		return 0, Snapshot{}, fmt.Errorf("lobby %d is %s: %w", l.id, l.state, ErrInvalidState)
	}
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return ts, l.snapshotLocked(), nil
}

// Relay checks that from may send game data to the other members.
func (l *Lobby) Relay(from ClientID) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.memberLocked(from); err != nil {
		return Snapshot{}, err
	}
	if l.state != StateInGame {
		return Snapshot{}, fmt.Errorf("lobby %d is %s: %w", l.id, l.state, ErrInvalidState)
	}
	return l.snapshotLocked(), nil
}

func recordLobbyCount(n int) {
	metrics.UpdateGaugeWithGroup(metrics.NameLobbyCurrent, metrics.GroupLobby, metrics.Value(n))
}
