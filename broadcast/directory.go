package broadcast

import "github.com/linchenxuan/lobbyd/network/session"

type sessionDirectory struct {
	m *session.Manager
}

// SessionDirectory exposes the sessions of m as a Directory.
func SessionDirectory(m *session.Manager) Directory {
	return sessionDirectory{m: m}
}

func (d sessionDirectory) Peer(id uint32) (Peer, bool) {
	s, ok := d.m.Get(id)
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

func (d sessionDirectory) Unaffiliated() []Peer {
	sessions := d.m.Unaffiliated()
	out := make([]Peer, len(sessions))
	for i, s := range sessions {
		out[i] = s
	}
	return out
}
