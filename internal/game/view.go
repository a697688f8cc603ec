package game

// PlayerView is the broadcast-safe projection of a player. It carries the
// public id only; private ids never leave the server side of a player's
// own join response.
type PlayerView struct {
	Name         string         `json:"name"`
	Avatar       Avatar         `json:"avatar"`
	ID           string         `json:"id"`
	Admin        bool           `json:"admin"`
	Active       bool           `json:"active"`
	Score        Score          `json:"score"`
	Guesses      map[string]int `json:"guesses"`
	Pending      bool           `json:"pending"`
	Disconnected bool           `json:"disconnected"`
}

// RunningStateView is the broadcast projection of the turn sub-state.
type RunningStateView struct {
	State        RunningState `json:"state"`
	ActivePlayer string       `json:"activePlayer"`
	CurrentTurn  int          `json:"currentTurn"`
}

// PlayersView projects the seated players in join order. The first seat
// is the admin.
func (s *Session) PlayersView() []PlayerView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]PlayerView, 0, len(s.players))
	for i, p := range s.players {
		guesses := make(map[string]int, len(p.Guesses))
		for id, n := range p.Guesses {
			guesses[id] = n
		}
		views = append(views, PlayerView{
			Name:         p.Name,
			Avatar:       p.Avatar,
			ID:           p.ID,
			Admin:        i == 0,
			Active:       p.ID == s.activePlayerID,
			Score:        p.Score,
			Guesses:      guesses,
			Pending:      p.Pending,
			Disconnected: p.Disconnected,
		})
	}
	return views
}

// Running projects the current turn sub-state.
func (s *Session) Running() RunningStateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RunningStateView{
		State:        s.running,
		ActivePlayer: s.activePlayerID,
		CurrentTurn:  s.currentTurn,
	}
}

// HintText returns the active player's hint, empty between turns.
func (s *Session) HintText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hint
}

// TotalTurns returns how many turns will be played in total.
func (s *Session) TotalTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTurns
}

// ChosenIDs projects the turn's card pool as bare ids. This is the only
// view clients may see during guessing; owners and guesses stay hidden
// until evaluation.
func (s *Session) ChosenIDs() []Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := make([]Card, 0, len(s.chosenCards))
	for _, c := range s.chosenCards {
		cards = append(cards, Card{ID: c.ID})
	}
	return cards
}

// ChosenFull projects the turn's card pool with owners and guessers,
// revealed during evaluation.
func (s *Session) ChosenFull() []ChosenCard {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := make([]ChosenCard, 0, len(s.chosenCards))
	for _, c := range s.chosenCards {
		guessedBy := make([]string, len(c.GuessedBy))
		copy(guessedBy, c.GuessedBy)
		cards = append(cards, ChosenCard{ID: c.ID, Owner: c.Owner, GuessedBy: guessedBy})
	}
	return cards
}

// HandOf returns a copy of the given player's hand, or nil for an unknown
// player. Hands are only ever sent to their owner.
func (s *Session) HandOf(playerID string) []Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.findPlayerLocked(playerID)
	if player == nil {
		return nil
	}
	return player.Hand()
}

// PlayerCount returns the number of seated players.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}
