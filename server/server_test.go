package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/linchenxuan/lobbyd/lobby"
	"github.com/linchenxuan/lobbyd/network/codec"
	"github.com/linchenxuan/lobbyd/network/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type testClient struct {
	t    *testing.T
	conn net.Conn
	id   uint32
	recs chan message.Record
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(Options{})
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	return srv
}

// connect opens a client and consumes the greeting.
func connect(t *testing.T, srv *Server) *testClient {
	t.Helper()
	server, client := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go srv.ConnHandler().ServeConn(ctx, server)

	c := &testClient{t: t, conn: client, recs: make(chan message.Record, 1024)}
	go c.readLoop()
	t.Cleanup(func() {
		cancel()
		_ = client.Close()
	})

	connected := expect[*message.Connected](c)
	assert.Equal(t, "pipe", connected.Address)
	c.id = connected.ClientID
	expect[*message.LobbyList](c)
	return c
}

func (c *testClient) readLoop() {
	defer close(c.recs)
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := c.conn.Read(chunk)
		if err != nil {
			return
		}
		buf = append(buf, chunk[:n]...)
		recs, rest, err := codec.DecodeStream(buf)
		if err != nil {
			return
		}
		for _, r := range recs {
			c.recs <- r
		}
		buf = append([]byte(nil), rest...)
	}
}

func (c *testClient) send(recs ...message.Record) {
	c.t.Helper()
	var b []byte
	for _, r := range recs {
		var err error
		b, err = codec.Encode(r, b)
		require.NoError(c.t, err)
	}
	_, err := c.conn.Write(b)
	require.NoError(c.t, err)
}

// expect returns the next record of type T, skipping others.
func expect[T message.Record](c *testClient) T {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case r, ok := <-c.recs:
			if !ok {
				c.t.Fatalf("client %d: connection closed while waiting for %T", c.id, *new(T))
			}
			if v, ok := r.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			c.t.Fatalf("client %d: timed out waiting for %T", c.id, zero)
			return zero
		}
	}
}

// next returns the very next record.
func (c *testClient) next() message.Record {
	c.t.Helper()
	select {
	case r, ok := <-c.recs:
		if !ok {
			c.t.Fatalf("client %d: connection closed", c.id)
		}
		return r
	case <-time.After(waitTimeout):
		c.t.Fatalf("client %d: timed out", c.id)
		return nil
	}
}

func memberIDs(info *message.LobbyInfo) []uint32 {
	var ids []uint32
	for _, m := range info.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

func settings(t *testing.T, m map[string]any) message.Blob {
	t.Helper()
	b, err := message.NewBlob(m)
	require.NoError(t, err)
	return b
}

func TestGreeting(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)
	b := connect(t, srv)
	assert.EqualValues(t, 1, a.id)
	assert.EqualValues(t, 2, b.id)
}

func TestScenarios(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)
	b := connect(t, srv)
	watcher := connect(t, srv)

	// 1. Alice creates lobby 0.
	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "Game Night",
		Settings: settings(t, map[string]any{"max_players": 4})})
	info := expect[*message.LobbyInfo](a)
	assert.EqualValues(t, 0, info.LobbyID)
	assert.Equal(t, []uint32{a.id}, memberIDs(info))
	assert.Equal(t, message.Client{Name: "Alice", ID: a.id}, info.Host)
	assert.Equal(t, 4, info.MaxPlayers)
	assert.True(t, info.Chat.Present(), "creator gets the full variant")

	list := expect[*message.LobbyList](watcher)
	require.Len(t, list.Lobbies, 1)
	assert.Equal(t, "Game Night", list.Lobbies[0].Title)

	// 2. Bob joins; both get LobbyInfo and the lobby stays listed.
	expect[*message.LobbyList](b)
	b.send(&message.JoinLobby{LobbyID: 0, Username: "Bob"})
	info = expect[*message.LobbyInfo](b)
	assert.Equal(t, []uint32{a.id, b.id}, memberIDs(info))
	info = expect[*message.LobbyInfo](a)
	assert.Equal(t, []uint32{a.id, b.id}, memberIDs(info))
	list = expect[*message.LobbyList](watcher)
	require.Len(t, list.Lobbies, 1)
	assert.Len(t, list.Lobbies[0].Members, 2)

	// 3. Alice leaves; Bob becomes host.
	a.send(&message.LeaveLobby{})
	info = expect[*message.LobbyInfo](b)
	assert.Equal(t, []uint32{b.id}, memberIDs(info))
	assert.Equal(t, message.Client{Name: "Bob", ID: b.id}, info.Host)
	list = expect[*message.LobbyList](a)
	require.Len(t, list.Lobbies, 1, "the leaver gets the listing")

	// 4. Bob leaves; lobby 0 is destroyed.
	b.send(&message.LeaveLobby{})
	list = expect[*message.LobbyList](b)
	assert.Empty(t, list.Lobbies)
	require.Eventually(t, func() bool { return srv.Registry().Count() == 0 }, waitTimeout, 5*time.Millisecond)
}

func TestChatThenLeaveInOneRead(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)
	b := connect(t, srv)

	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "t"})
	expect[*message.LobbyInfo](a)
	b.send(&message.JoinLobby{LobbyID: 0, Username: "Bob"})
	expect[*message.LobbyInfo](b)
	expect[*message.LobbyInfo](a)

	b.send(&message.NewChatMessage{Text: "hi"}, &message.LeaveLobby{})

	chat := expect[*message.NewChatMessage](a)
	assert.Equal(t, "<Bob> hi", chat.Text)
	info := expect[*message.LobbyInfo](a)
	assert.Equal(t, []uint32{a.id}, memberIDs(info))

	l, err := srv.Registry().Get(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"<Bob> hi"}, l.Snapshot().Chat)
}

func TestJoinRejectedAndWrongDirection(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)

	a.send(&message.JoinLobby{LobbyID: 99, Username: "Alice"})
	kicked := expect[*message.KickedFromLobby](a)
	reason, ok := kicked.Reason.Get()
	require.True(t, ok)
	assert.Equal(t, "lobby does not exist", reason)

	a.send(&message.LobbyInfo{Title: "forged"})
	e := expect[*message.Error](a)
	assert.Contains(t, e.Description, message.NameLobbyInfo)

	a.send(&message.LeaveLobby{})
	e = expect[*message.Error](a)
	assert.Equal(t, ErrNotInLobby.Error(), e.Description)
}

func TestMalformedRecordKeepsConnection(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)

	_, err := a.conn.Write([]byte(`{"type":"Bogus"}` + "\n"))
	require.NoError(t, err)
	expect[*message.Error](a)

	a.send(&message.LobbyListRequest{})
	expect[*message.LobbyList](a)
}

func TestHostOnlyAndKick(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)
	b := connect(t, srv)

	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "t"})
	expect[*message.LobbyInfo](a)
	b.send(&message.JoinLobby{LobbyID: 0, Username: "Bob"})
	expect[*message.LobbyInfo](b)
	expect[*message.LobbyInfo](a)

	b.send(&message.ChangeLobbySettings{LobbyTitle: message.Some("mine")})
	e := expect[*message.Error](b)
	assert.Equal(t, "only the host can do this", e.Description)

	a.send(&message.ChangeLobbySettings{LobbyTitle: message.Some("renamed")})
	info := expect[*message.LobbyInfo](b)
	assert.Equal(t, "renamed", info.Title)
	expect[*message.LobbyInfo](a)

	a.send(&message.KickPlayerFromLobby{ClientID: b.id})
	kicked := expect[*message.KickedFromLobby](b)
	assert.Equal(t, "kicked by host", kicked.Reason.Or(""))
	expect[*message.LobbyList](b)
	info = expect[*message.LobbyInfo](a)
	assert.Equal(t, []uint32{a.id}, memberIDs(info))

	sess, ok := srv.Sessions().Get(b.id)
	require.True(t, ok)
	_, in := sess.LobbyID()
	assert.False(t, in)
}

func TestDisconnectCleansUp(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)
	b := connect(t, srv)

	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "t"})
	expect[*message.LobbyInfo](a)
	b.send(&message.JoinLobby{LobbyID: 0, Username: "Bob"})
	expect[*message.LobbyInfo](b)
	expect[*message.LobbyInfo](a)

	a.send(&message.Disconnect{})
	info := expect[*message.LobbyInfo](b)
	assert.Equal(t, []uint32{b.id}, memberIDs(info))
	assert.Equal(t, b.id, info.Host.ID)

	require.NoError(t, b.conn.Close())
	require.Eventually(t, func() bool {
		return srv.Registry().Count() == 0 && srv.Sessions().Count() == 0
	}, waitTimeout, 5*time.Millisecond)
}

func TestReadinessBarrierAndGame(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)
	b := connect(t, srv)

	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "t"})
	expect[*message.LobbyInfo](a)
	b.send(&message.JoinLobby{LobbyID: 0, Username: "Bob"})
	expect[*message.LobbyInfo](b)
	expect[*message.LobbyInfo](a)

	a.send(&message.StartGame{})
	e := expect[*message.Error](a)
	assert.Equal(t, "no game selected", e.Description)

	a.send(&message.ChangeLobbySettings{GameID: message.Some("chess")})
	expect[*message.LobbyInfo](b)

	a.send(&message.StartGameStartTimer{StartTimestamp: 1700000000000})
	timer := expect[*message.StartGameStartTimer](b)
	assert.EqualValues(t, 1700000000000, timer.StartTimestamp)

	a.send(&message.StartGame{})
	for _, c := range []*testClient{a, b} {
		gs := expect[*message.GameStarted](c)
		assert.Equal(t, "chess", gs.GameID)
		assert.Len(t, gs.Members, 2)
	}

	a.send(&message.GameInitialized{})
	b.send(&message.GameInitialized{})
	l, err := srv.Registry().Get(0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := l.GameSession()
		return ok
	}, waitTimeout, 5*time.Millisecond)

	payload, err := message.NewPayload(map[string]any{"move": "e4"})
	require.NoError(t, err)
	a.send(&message.GameData{Payload: payload})
	gd := expect[*message.GameData](b)
	assert.Equal(t, map[string]any{"move": "e4"}, gd.Payload.AsInterface())

	a.send(&message.GameOver{})
	for _, c := range []*testClient{a, b} {
		expect[*message.GameOver](c)
		expect[*message.LobbyInfo](c)
	}
	_, ok := l.GameSession()
	assert.False(t, ok)
}

func TestBarrierAbortedByDisconnect(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)
	b := connect(t, srv)

	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "t"})
	expect[*message.LobbyInfo](a)
	b.send(&message.JoinLobby{LobbyID: 0, Username: "Bob"})
	expect[*message.LobbyInfo](b)
	expect[*message.LobbyInfo](a)
	a.send(&message.ChangeLobbySettings{GameID: message.Some("chess")})
	expect[*message.LobbyInfo](a)
	a.send(&message.StartGame{})
	expect[*message.GameStarted](a)

	require.NoError(t, b.conn.Close())
	expect[*message.GameOver](a)
	info := expect[*message.LobbyInfo](a)
	assert.Equal(t, []uint32{a.id}, memberIDs(info))
}

func TestRecordsInOrderPerConnection(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)

	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "t"})
	expect[*message.LobbyInfo](a)

	var batch []message.Record
	for i := 0; i < 20; i++ {
		batch = append(batch, &message.NewChatMessage{Text: string(rune('a' + i))})
	}
	a.send(batch...)
	for i := 0; i < 20; i++ {
		r := a.next()
		chat, ok := r.(*message.NewChatMessage)
		require.True(t, ok, "got %T", r)
		assert.Equal(t, "<Alice> "+string(rune('a'+i)), chat.Text)
	}
}

func TestKickRacingJoinKeepsLobbyRef(t *testing.T) {
	srv := newTestServer(t)
	a := connect(t, srv)
	b := connect(t, srv)

	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "t"})
	expect[*message.LobbyInfo](a)
	l, err := srv.Registry().Get(0)
	require.NoError(t, err)

	host, ok := srv.Sessions().Get(a.id)
	require.True(t, ok)
	guest, ok := srv.Sessions().Get(b.id)
	require.True(t, ok)

	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = srv.disp.OnRecvRecord(guest, &message.JoinLobby{LobbyID: 0, Username: "Bob"})
		}()
		go func() {
			defer wg.Done()
			_ = srv.disp.OnRecvRecord(host, &message.KickPlayerFromLobby{ClientID: b.id})
		}()
		wg.Wait()

		_, in := guest.LobbyID()
		member := l.Snapshot().Has(lobby.ClientID(b.id))
		require.Equal(t, member, in, "iteration %d: lobby ref disagrees with membership", i)
		if member {
			require.NoError(t, srv.disp.OnRecvRecord(guest, &message.LeaveLobby{}))
		}
	}
}

func TestShutdownWaitsForCloseHooks(t *testing.T) {
	srv, err := New(Options{})
	require.NoError(t, err)
	a := connect(t, srv)
	b := connect(t, srv)

	a.send(&message.CreateLobby{Username: "Alice", LobbyTitle: "t"})
	expect[*message.LobbyInfo](a)
	b.send(&message.JoinLobby{LobbyID: 0, Username: "Bob"})
	expect[*message.LobbyInfo](b)

	srv.Shutdown()
	assert.Equal(t, 0, srv.Sessions().Count())
	assert.Equal(t, 0, srv.Registry().Count())
}
