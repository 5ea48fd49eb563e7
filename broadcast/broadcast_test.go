package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/linchenxuan/lobbyd/lobby"
	"github.com/linchenxuan/lobbyd/network/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	id      uint32
	inLobby bool
	broken  bool

	mu   sync.Mutex
	recs []message.Record
}

func (p *fakePeer) ID() uint32 { return p.id }

func (p *fakePeer) Send(rec message.Record) bool {
	if p.broken {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return true
}

func (p *fakePeer) received() []message.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message.Record(nil), p.recs...)
}

type fakeDirectory struct {
	peers []*fakePeer
}

func (d *fakeDirectory) Peer(id uint32) (Peer, bool) {
	for _, p := range d.peers {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}

func (d *fakeDirectory) Unaffiliated() []Peer {
	var out []Peer
	for _, p := range d.peers {
		if !p.inLobby {
			out = append(out, p)
		}
	}
	return out
}

type fakeLister []lobby.Snapshot

func (l fakeLister) Listing() []lobby.Snapshot { return l }

func snapshot(id lobby.ID, members ...lobby.ClientID) lobby.Snapshot {
	s := lobby.Snapshot{ID: id, Title: "t", MaxPlayers: 8}
	for _, m := range members {
		s.Members = append(s.Members, lobby.Member{ID: m, Name: "p"})
	}
	if len(s.Members) > 0 {
		s.Host = s.Members[0]
	}
	return s
}

func newService(t *testing.T, dir Directory, l Lister) *Service {
	t.Helper()
	s, err := NewService(&Config{}, dir, l)
	require.NoError(t, err)
	return s
}

func TestBroadcastListingReachesUnaffiliated(t *testing.T) {
	a := &fakePeer{id: 1}
	b := &fakePeer{id: 2, inLobby: true}
	c := &fakePeer{id: 3}
	d := &fakePeer{id: 4, broken: true}
	dir := &fakeDirectory{peers: []*fakePeer{a, b, c, d}}
	svc := newService(t, dir, fakeLister{snapshot(0, 2), snapshot(3, 9)})

	n := svc.BroadcastListing(3)
	assert.Equal(t, 1, n)
	require.Len(t, a.received(), 1)
	assert.Empty(t, b.received())
	assert.Empty(t, c.received(), "excluded")

	list, ok := a.received()[0].(*message.LobbyList)
	require.True(t, ok)
	require.Len(t, list.Lobbies, 2)
	assert.EqualValues(t, 0, list.Lobbies[0].LobbyID)
	assert.EqualValues(t, 3, list.Lobbies[1].LobbyID)
	assert.False(t, list.Lobbies[0].Private.Present(), "public variant")
}

func TestListingEmptyIsNotNil(t *testing.T) {
	svc := newService(t, &fakeDirectory{}, fakeLister(nil))
	list := svc.Listing()
	require.NotNil(t, list.Lobbies)
	assert.Empty(t, list.Lobbies)
}

func TestBroadcastLobbyInfo(t *testing.T) {
	a, b, c := &fakePeer{id: 1}, &fakePeer{id: 2}, &fakePeer{id: 3}
	svc := newService(t, &fakeDirectory{peers: []*fakePeer{a, b, c}}, fakeLister(nil))

	snap := snapshot(7, 1, 2)
	snap.Chat = []string{"<p> hi"}
	assert.Equal(t, 1, svc.BroadcastLobbyInfo(snap, false, 2))
	assert.Empty(t, b.received())
	assert.Empty(t, c.received(), "not a member")

	info, ok := a.received()[0].(*message.LobbyInfo)
	require.True(t, ok)
	assert.True(t, info.Private.Present())
	assert.False(t, info.Chat.Present())

	assert.Equal(t, 2, svc.BroadcastLobbyInfo(snap, true))
	info = b.received()[0].(*message.LobbyInfo)
	chat, ok := info.Chat.Get()
	require.True(t, ok)
	assert.Equal(t, []string{"<p> hi"}, chat)
}

func TestSendToMembersAndSendTo(t *testing.T) {
	a, b := &fakePeer{id: 1}, &fakePeer{id: 2}
	svc := newService(t, &fakeDirectory{peers: []*fakePeer{a, b}}, fakeLister(nil))

	// Member 5 is gone: it is skipped without error.
	n := svc.SendToMembers(snapshot(0, 1, 2, 5), &message.GameOver{}, 1)
	assert.Equal(t, 1, n)
	assert.Equal(t, []message.Record{&message.GameOver{}}, b.received())
	assert.Empty(t, a.received())

	assert.True(t, svc.SendTo(1, &message.Error{Description: "x"}))
	assert.False(t, svc.SendTo(5, &message.Error{Description: "x"}))
	assert.True(t, svc.SendListing(2))
}

func TestListingPacing(t *testing.T) {
	var peers []*fakePeer
	for i := 1; i <= 5; i++ {
		peers = append(peers, &fakePeer{id: uint32(i)})
	}
	svc, err := NewService(&Config{ListingQPS: 50}, &fakeDirectory{peers: peers}, fakeLister(nil))
	require.NoError(t, err)

	start := time.Now()
	assert.Equal(t, 5, svc.BroadcastListing())
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond, "sends are spaced by the limiter")

	require.NoError(t, svc.Reload(&Config{ListingQPS: 0}))
	start = time.Now()
	assert.Equal(t, 5, svc.BroadcastListing())
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(nil, nil, fakeLister(nil))
	assert.Error(t, err)
	_, err = NewService(&Config{ListingQPS: -1}, &fakeDirectory{}, fakeLister(nil))
	assert.Error(t, err)
	svc, err := NewService(nil, &fakeDirectory{}, fakeLister(nil))
	require.NoError(t, err)
	assert.Error(t, svc.Reload(&Config{ListingQPS: -3}))
}
