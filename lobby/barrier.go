package lobby

import (
	"fmt"
	"slices"
	"time"

	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics"
)

// Barrier outcomes reported to metrics.
const (
	barrierStarted   = "started"
	barrierCompleted = "completed"
	barrierAborted   = "aborted"
	barrierGameOver  = "game_over"
)

func recordBarrier(outcome string) {
	metrics.IncrCounterWithDimGroup(metrics.NameBarrierTotal, metrics.GroupLobby, 1,
		metrics.Dimension{metrics.DimOutcome: outcome})
}

// StartGame opens the readiness barrier on the host's request: the ready set is cleared
// and the lobby waits in Starting for every member's GameInitialized.
func (l *Lobby) StartGame(by ClientID) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.hostLocked(by); err != nil {
		return Outcome{}, err
	}
	if l.state != StateOpen {
		return Outcome{}, fmt.Errorf("lobby %d is %s: %w", l.id, l.state, ErrInvalidState)
	}
	if l.gameID == "" {
		return Outcome{}, fmt.Errorf("lobby %d: %w", l.id, ErrNoGameSelected)
	}

	clear(l.ready)
	l.state = StateStarting
	recordBarrier(barrierStarted)
	l.logWith(log.Info()).Str("game_id", l.gameID).Int("members", len(l.members)).Msg("game starting")
	return Outcome{Lobby: l.snapshotLocked(), Listing: true}, nil
}

// GameInitialized records that member c built its game. When every member is ready the
// lobby moves to InGame and Outcome.Completed is set. Repeated reports count once.
func (l *Lobby) GameInitialized(c ClientID) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.memberLocked(c); err != nil {
		return Outcome{}, err
	}
	if l.state != StateStarting {
		return Outcome{}, fmt.Errorf("lobby %d is %s: %w", l.id, l.state, ErrInvalidState)
	}

	l.ready[c] = struct{}{}
	out := Outcome{}
	if len(l.ready) >= len(l.members) {
		host, _ := l.memberLocked(l.host)
		l.state = StateInGame
		l.game = &GameSession{
			GameID:    l.gameID,
			Host:      host,
			Members:   slices.Clone(l.members),
			StartedAt: time.Now(),
		}
		out.Completed = true
		recordBarrier(barrierCompleted)
		l.logWith(log.Info()).Str("game_id", l.gameID).Msg("all members ready, game running")
	}
	out.Lobby = l.snapshotLocked()
	return out, nil
}

// GameOver returns a starting or running lobby to Open on the host's request.
func (l *Lobby) GameOver(by ClientID) (Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.hostLocked(by); err != nil {
		return Outcome{}, err
	}
	if l.state != StateInGame && l.state != StateStarting {
		return Outcome{}, fmt.Errorf("lobby %d is %s: %w", l.id, l.state, ErrInvalidState)
	}

	l.state = StateOpen
	l.game = nil
	clear(l.ready)
	recordBarrier(barrierGameOver)
	l.logWith(log.Info()).Msg("game over")
	return Outcome{Lobby: l.snapshotLocked(), Listing: true, Info: true}, nil
}

// abortLocked cancels a pending start after a membership change.
func (l *Lobby) abortLocked() {
	l.state = StateOpen
	clear(l.ready)
	recordBarrier(barrierAborted)
	l.logWith(log.Info()).Int("members", len(l.members)).Msg("membership changed while starting, start aborted")
}
