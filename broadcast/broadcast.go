// Package broadcast fans lobby notifications out to client sessions: the public listing
// to clients outside any lobby, and lobby info or arbitrary records to lobby members.
package broadcast

import (
	"errors"
	"fmt"
	"slices"

	"github.com/linchenxuan/lobbyd/lobby"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
	"github.com/linchenxuan/lobbyd/network/message"
)

// Peer is a client that records can be sent to.
type Peer interface {
	ID() uint32
	Send(rec message.Record) bool
}

// Directory finds live peers.
type Directory interface {
	// Peer returns the live client with id.
	Peer(id uint32) (Peer, bool)
	// Unaffiliated returns the live clients outside any lobby.
	Unaffiliated() []Peer
}

// Lister computes the public listing.
type Lister interface {
	Listing() []lobby.Snapshot
}

// Service sends notifications. It holds no lobby state of its own.
type Service struct {
	dir     Directory
	lobbies Lister
	pacer   *pacer
}

// NewService creates a service. A nil cfg selects DefaultConfig.
func NewService(cfg *Config, dir Directory, lobbies Lister) (*Service, error) {
	if dir == nil || lobbies == nil {
		return nil, errors.New("broadcast: directory and lister are required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broadcast config: %w", err)
	}
	return &Service{dir: dir, lobbies: lobbies, pacer: newPacer(cfg.ListingQPS)}, nil
}

// Reload applies a new pacing rate.
func (s *Service) Reload(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.pacer.Reload(cfg.ListingQPS)
	return nil
}

// Listing builds the LobbyList record from the current public listing.
func (s *Service) Listing() *message.LobbyList {
	snaps := s.lobbies.Listing()
	list := &message.LobbyList{Lobbies: make([]message.LobbyInfo, 0, len(snaps))}
	for _, snap := range snaps {
		list.Lobbies = append(list.Lobbies, snap.PublicInfo())
	}
	return list
}

// SendListing sends the public listing to one client.
func (s *Service) SendListing(id lobby.ClientID) bool {
	return s.SendTo(id, s.Listing())
}

// BroadcastListing sends the public listing to every client outside a lobby except the
// excluded ones, and returns how many were reached.
func (s *Service) BroadcastListing(exclude ...lobby.ClientID) int {
	list := s.Listing()
	n := 0
	for _, p := range s.dir.Unaffiliated() {
		if slices.Contains(exclude, lobby.ClientID(p.ID())) {
			continue
		}
		s.pacer.Take()
		if p.Send(list) {
			n++
		}
	}
	metrics.IncrCounterWithGroup(metrics.NameListingBroadcastTotal, metrics.GroupLobby, 1)
	log.Debug().Int("lobbies", len(list.Lobbies)).Int("recipients", n).Msg("listing broadcast")
	return n
}

// BroadcastLobbyInfo sends the full lobby info to every member except the excluded ones.
// The chat backlog is attached when includeChat is set.
func (s *Service) BroadcastLobbyInfo(snap lobby.Snapshot, includeChat bool, exclude ...lobby.ClientID) int {
	return s.SendToMembers(snap, snap.FullInfo(includeChat), exclude...)
}

// SendToMembers sends rec to every member of snap except the excluded ones.
func (s *Service) SendToMembers(snap lobby.Snapshot, rec message.Record, exclude ...lobby.ClientID) int {
	n := 0
	for _, m := range snap.Members {
		if slices.Contains(exclude, m.ID) {
			continue
		}
		if s.SendTo(m.ID, rec) {
			n++
		}
	}
	return n
}

// SendTo sends rec to one client. It reports false when the client is gone or the send
// failed.
func (s *Service) SendTo(id lobby.ClientID, rec message.Record) bool {
	p, ok := s.dir.Peer(uint32(id))
	if !ok {
		log.Debug().Uint32("client_id", uint32(id)).Str("msgid", rec.MsgID()).Msg("recipient is gone")
		return false
	}
	return p.Send(rec)
}
