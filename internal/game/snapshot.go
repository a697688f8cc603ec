package game

import "time"

// Snapshot is the durable record of a running session, written on every
// turn transition and sufficient to rebuild the session after a crash.
// Snapshots exist only for started games; an open lobby is never saved.
type Snapshot struct {
	Room           string           `json:"room"`
	TotalTurns     int              `json:"totalTurns"`
	CurrentTurn    int              `json:"currentTurn"`
	Finished       bool             `json:"finished"`
	ActivePlayer   string           `json:"activePlayer"`
	LastActivity   time.Time        `json:"lastActivity"`
	RemainingCards []Card           `json:"remainingCards"`
	Players        []PlayerSnapshot `json:"players"`
}

// PlayerSnapshot is the durable record of one seated player, private id
// included: restoring a session must keep existing clients authenticated.
type PlayerSnapshot struct {
	PlayerID  string         `json:"playerId"`
	PrivateID string         `json:"privateId"`
	Name      string         `json:"name"`
	Avatar    Avatar         `json:"avatar"`
	HandCards []Card         `json:"handCards"`
	Score     Score          `json:"score"`
	Guesses   map[string]int `json:"guesses"`
}

// Snapshot captures the session's durable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Room:           s.id,
		TotalTurns:     s.totalTurns,
		CurrentTurn:    s.currentTurn,
		Finished:       s.finished,
		ActivePlayer:   s.activePlayerID,
		LastActivity:   s.lastActivity,
		RemainingCards: make([]Card, len(s.deck)),
	}
	copy(snap.RemainingCards, s.deck)

	for _, p := range s.players {
		guesses := make(map[string]int, len(p.Guesses))
		for id, n := range p.Guesses {
			guesses[id] = n
		}
		score := p.Score
		score.ThisTurn = 0
		snap.Players = append(snap.Players, PlayerSnapshot{
			PlayerID:  p.ID,
			PrivateID: p.PrivateID,
			Name:      p.Name,
			Avatar:    p.Avatar,
			HandCards: p.Hand(),
			Score:     score,
			Guesses:   guesses,
		})
	}
	return snap
}

// Load rebuilds a session from a snapshot. Snapshots are taken at turn
// boundaries, so a restored running session resumes at the start of its
// current turn: the active player gives their hint again.
func Load(snap Snapshot, source CardSource, saver Saver) *Session {
	s := NewSession(snap.Room, source, saver)
	s.started = true
	s.finished = snap.Finished
	s.totalTurns = snap.TotalTurns
	s.currentTurn = snap.CurrentTurn
	s.lastActivity = snap.LastActivity

	if snap.ActivePlayer != "" {
		s.activePlayerID = snap.ActivePlayer
		s.running = StateWaitForHint
	} else {
		s.running = StateInit
	}

	s.deck = make([]Card, len(snap.RemainingCards))
	copy(s.deck, snap.RemainingCards)

	for _, ps := range snap.Players {
		p := &Player{
			ID:        ps.PlayerID,
			PrivateID: ps.PrivateID,
			Name:      ps.Name,
			Avatar:    ps.Avatar,
			Score:     ps.Score,
			Guesses:   make(map[string]int, len(ps.Guesses)),
			hand:      make([]Card, len(ps.HandCards)),
			Pending:   true,
		}
		p.Score.ThisTurn = 0
		for id, n := range ps.Guesses {
			p.Guesses[id] = n
		}
		copy(p.hand, ps.HandCards)
		s.players = append(s.players, p)

		for i, color := range s.availableColors {
			if color == ps.Avatar.Color {
				s.availableColors = append(s.availableColors[:i], s.availableColors[i+1:]...)
				break
			}
		}
	}
	return s
}
