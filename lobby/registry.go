package lobby

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/network/message"
)

// Registry owns every live lobby and allocates lobby ids. The registry lock is never held
// while a lobby lock is taken for a mutation.
type Registry struct {
	cfg *Config

	lock    sync.RWMutex
	lobbies map[ID]*Lobby
	nextID  ID
}

// NewRegistry creates an empty registry. A nil cfg selects DefaultConfig.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lobby config: %w", err)
	}
	return &Registry{
		cfg:     cfg,
		lobbies: make(map[ID]*Lobby),
	}, nil
}

// Create makes a lobby hosted by host and returns its snapshot.
func (r *Registry) Create(host Member, title string, settings message.Blob) Snapshot {
	r.lock.Lock()
	id := r.nextID
	r.nextID++
	l := newLobby(id, r.cfg, host, title, settings, r.remove)
	r.lobbies[id] = l
	n := len(r.lobbies)
	r.lock.Unlock()

	recordLobbyCount(n)
	metrics.IncrCounterWithGroup(metrics.NameLobbyCreateTotal, metrics.GroupLobby, 1)
	l.logWith(log.Info()).Uint32("host", uint32(host.ID)).Str("title", title).Msg("lobby created")
	return l.Snapshot()
}

// remove drops an emptied lobby.
func (r *Registry) remove(l *Lobby) {
	r.lock.Lock()
	if cur, ok := r.lobbies[l.id]; ok && cur == l {
		delete(r.lobbies, l.id)
	}
	n := len(r.lobbies)
	r.lock.Unlock()

	recordLobbyCount(n)
	metrics.IncrCounterWithGroup(metrics.NameLobbyDestroyTotal, metrics.GroupLobby, 1)
}

// Get returns the live lobby with id.
func (r *Registry) Get(id ID) (*Lobby, error) {
	r.lock.RLock()
	l, ok := r.lobbies[id]
	r.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lobby %d: %w", id, ErrLobbyNotFound)
	}
	return l, nil
}

// Count returns the number of live lobbies.
func (r *Registry) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.lobbies)
}

func (r *Registry) all() []*Lobby {
	r.lock.RLock()
	out := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		out = append(out, l)
	}
	r.lock.RUnlock()
	slices.SortFunc(out, func(a, b *Lobby) int { return cmp.Compare(a.id, b.id) })
	return out
}

// Listing returns the public lobbies ordered by id.
func (r *Registry) Listing() []Snapshot {
	var out []Snapshot
	for _, l := range r.all() {
		if s := l.Snapshot(); s.Listed() {
			out = append(out, s)
		}
	}
	return out
}

// Snapshots returns every live lobby ordered by id.
func (r *Registry) Snapshots() []Snapshot {
	lobbies := r.all()
	out := make([]Snapshot, 0, len(lobbies))
	for _, l := range lobbies {
		out = append(out, l.Snapshot())
	}
	return out
}

// Join adds m to lobby id. A lobby destroyed while the join raced reports
// ErrLobbyNotFound.
func (r *Registry) Join(id ID, m Member) (Outcome, error) {
	l, err := r.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	return l.Join(m)
}

// Leave removes c from lobby id.
func (r *Registry) Leave(id ID, c ClientID) (Outcome, error) {
	l, err := r.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	return l.Leave(c)
}

// Kick removes target from lobby id on the request of by.
func (r *Registry) Kick(id ID, by, target ClientID) (Outcome, error) {
	l, err := r.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	return l.Kick(by, target)
}

// IsRejection reports whether err is a join rejection that is answered with
// KickedFromLobby rather than Error.
func IsRejection(err error) bool {
	return errors.Is(err, ErrLobbyNotFound) || errors.Is(err, ErrLobbyInGame) ||
		errors.Is(err, ErrLobbyPrivate) || errors.Is(err, ErrLobbyFull)
}

// Reason returns the client facing text of a lobby error.
func Reason(err error) string {
	for _, target := range []error{
		ErrLobbyNotFound, ErrLobbyInGame, ErrLobbyPrivate, ErrLobbyFull, ErrNotHost,
		ErrNotMember, ErrInvalidState, ErrNoGameSelected, ErrCannotKickSelf,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
