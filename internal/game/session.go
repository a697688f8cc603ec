package game

import (
	"context"
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

// Phase is the top-level lifecycle of a session.
type Phase string

const (
	PhaseOpen     Phase = "open"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

// RunningState is the per-turn sub-state while the session is running.
type RunningState string

const (
	StateInit           RunningState = "init"
	StateWaitForHint    RunningState = "waitForHint"
	StateWaitForCards   RunningState = "waitForCards"
	StateWaitForGuesses RunningState = "waitForGuesses"
	StateEvaluation     RunningState = "evaluation"
)

// MaxPlayers is the seat limit of a single room.
const MaxPlayers = 10

const (
	handSize   = 6
	colorCount = 11
)

// Saver persists session snapshots. Writes happen on a background
// goroutine; failures are logged and never block gameplay.
type Saver interface {
	SaveGame(ctx context.Context, snap Snapshot) error
}

// Session is one room's full game state and turn-state machine. All
// mutating operations validate strictly and report success as a boolean;
// a false return means nothing changed. The internal mutex serializes
// concurrent player actions on the same room.
type Session struct {
	mu sync.Mutex

	id              string
	players         []*Player
	availableColors []int
	started         bool
	finished        bool

	deck        []Card
	totalTurns  int
	currentTurn int

	hint           string
	chosenCards    []ChosenCard
	running        RunningState
	activePlayerID string

	lastActivity time.Time

	source CardSource
	saver  Saver
}

// NewSession creates an open session with the given room id. The source
// provides cards on start; the saver, if non-nil, receives snapshots on
// every turn transition.
func NewSession(id string, source CardSource, saver Saver) *Session {
	colors := make([]int, colorCount)
	for i := range colors {
		colors[i] = i
	}
	return &Session{
		id:              id,
		availableColors: colors,
		lastActivity:    time.Now(),
		source:          source,
		saver:           saver,
	}
}

// ID returns the session's room id.
func (s *Session) ID() string {
	return s.id
}

// Phase derives the lifecycle phase from the started/finished flags.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *Session) phaseLocked() Phase {
	if s.finished {
		return PhaseFinished
	}
	if !s.started {
		return PhaseOpen
	}
	return PhaseRunning
}

// LastActivity reports when the session last processed a valid action.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Join seats a player while the session is still open, assigning them a
// random unused avatar color. The first player to join is the admin; join
// order is also the turn rotation order.
func (s *Session) Join(p *Player) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phaseLocked() != PhaseOpen {
		return false
	}
	if len(s.players) >= MaxPlayers {
		return false
	}

	i := rand.IntN(len(s.availableColors))
	p.Avatar.Color = s.availableColors[i]
	s.availableColors = append(s.availableColors[:i], s.availableColors[i+1:]...)

	s.players = append(s.players, p)
	s.touchLocked()
	return true
}

// Start begins the game: it samples enough cards for every player to hold
// six and replenish once per turn, deals the opening hands, and persists
// the first snapshot. A short sample leaves the session fully unstarted.
func (s *Session) Start(ctx context.Context, totalTurns int, deckIDs []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return false
	}
	if totalTurns < 1 || len(deckIDs) == 0 || len(s.players) == 0 {
		return false
	}

	need := len(s.players) * (5 + totalTurns)
	deck, err := s.source.SampleCards(ctx, deckIDs, need)
	if err != nil {
		log.Printf("GAMES: sampling cards for room %s failed: %v", s.id, err)
		return false
	}
	if len(deck) < need {
		return false
	}

	s.started = true
	s.totalTurns = totalTurns
	s.currentTurn = 0
	s.deck = deck

	for _, p := range s.players {
		for i := 0; i < handSize; i++ {
			p.DrawCard(s)
		}
		p.SetupGuesses(s.players)
	}

	s.running = StateInit
	s.touchLocked()
	s.saveLocked()
	return true
}

// GoFirst lets any seated player claim the first turn while the session
// waits in init.
func (s *Session) GoFirst(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findPlayerLocked(playerID) == nil {
		return false
	}
	if s.running != StateInit {
		return false
	}
	s.startNewTurnLocked(playerID)
	return true
}

// startNewTurnLocked begins a turn for the given active player and
// persists the session.
func (s *Session) startNewTurnLocked(activePlayerID string) {
	s.running = StateWaitForHint
	s.currentTurn++
	s.activePlayerID = activePlayerID
	s.touchLocked()
	s.saveLocked()
	for _, p := range s.players {
		p.ResetTurnScore()
		p.Pending = true
	}
	s.chosenCards = nil
	s.hint = ""
}

// GiveHint records the active player's hint and moves their chosen card
// into the pool as the first submission.
func (s *Session) GiveHint(playerID, cardID, hint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cardID == "" {
		return false
	}
	if s.activePlayerID != playerID {
		return false
	}
	if s.running != StateWaitForHint {
		return false
	}
	if !s.giveCardLocked(playerID, cardID, StateWaitForHint) {
		return false
	}
	s.running = StateWaitForCards
	s.hint = hint
	s.touchLocked()
	return true
}

// GiveCard submits a card from a pending non-active player's hand into
// the turn's pool.
func (s *Session) GiveCard(playerID, cardID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.giveCardLocked(playerID, cardID, StateWaitForCards) {
		return false
	}
	s.touchLocked()
	return true
}

// giveCardLocked moves a card from a player's hand to the chosen pool,
// provided the session is in the required state and the player is still
// pending. Once a card leaves a hand this way it never returns.
func (s *Session) giveCardLocked(playerID, cardID string, required RunningState) bool {
	if s.running != required {
		return false
	}
	player := s.findPlayerLocked(playerID)
	if player == nil {
		return false
	}
	if !player.Pending {
		return false
	}
	if !player.HasCard(cardID) {
		return false
	}

	s.chosenCards = append(s.chosenCards, ChosenCard{ID: cardID, Owner: playerID})
	player.RemoveCard(cardID)
	player.Pending = false
	return true
}

// CheckLastCard advances to the guessing phase once every player has
// submitted. The pool is shuffled first so the storyteller's card cannot
// be told by position. Returns true exactly on the advancing call.
func (s *Session) CheckLastCard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != StateWaitForCards {
		return false
	}
	for _, p := range s.players {
		if p.Pending {
			return false
		}
	}

	s.chosenCards = shuffleChosen(s.chosenCards)
	for _, p := range s.players {
		if p.ID != s.activePlayerID {
			p.Pending = true
		}
	}
	s.running = StateWaitForGuesses
	s.touchLocked()
	return true
}

// Guess records a pending player's pick of which pool card is the
// storyteller's. Players cannot guess their own submission.
func (s *Session) Guess(playerID, cardID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != StateWaitForGuesses {
		return false
	}
	player := s.findPlayerLocked(playerID)
	if player == nil {
		return false
	}
	if !player.Pending {
		return false
	}

	var chosen *ChosenCard
	for i := range s.chosenCards {
		if s.chosenCards[i].ID == cardID {
			chosen = &s.chosenCards[i]
			break
		}
	}
	if chosen == nil {
		return false
	}
	if chosen.Owner == playerID {
		return false
	}

	chosen.GuessedBy = append(chosen.GuessedBy, playerID)
	player.Pending = false
	s.touchLocked()
	return true
}

// CheckLastGuess advances to evaluation once every targeted player has
// guessed. Returns true exactly on the advancing call.
func (s *Session) CheckLastGuess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != StateWaitForGuesses {
		return false
	}
	for _, p := range s.players {
		if p.Pending {
			return false
		}
	}
	s.running = StateEvaluation
	s.touchLocked()
	return true
}

// NextTurn leaves evaluation: it either finishes the game when all turns
// are played, or replenishes every hand by one card, rotates the active
// player to the next seat in join order, and starts the next turn.
func (s *Session) NextTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != StateEvaluation {
		return false
	}
	if s.currentTurn >= s.totalTurns {
		s.finishLocked()
		return false
	}

	for _, p := range s.players {
		p.DrawCard(s)
	}

	activeIndex := 0
	for i, p := range s.players {
		if p.ID == s.activePlayerID {
			activeIndex = i
			break
		}
	}
	activeIndex++
	if activeIndex >= len(s.players) {
		activeIndex = 0
	}
	s.startNewTurnLocked(s.players[activeIndex].ID)
	return true
}

func (s *Session) finishLocked() {
	s.finished = true
	s.touchLocked()
	s.saveLocked()
}

// Restart builds a fresh open session for the same room with the same
// roster. Players keep their ids, names, avatars and credentials so
// connected clients stay authenticated; scores, hands and guess counters
// reset. Only sensible once the previous game has finished; the caller
// swaps the new session into the registry.
func (s *Session) Restart() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := NewSession(s.id, s.source, s.saver)
	for _, p := range s.players {
		fresh := NewPlayer(p.Name, p.Avatar)
		fresh.ID = p.ID
		fresh.PrivateID = p.PrivateID
		next.Join(fresh)
	}
	return next
}

// SetConnected flips a player's transport-level disconnected flag. The
// flag never blocks or advances the state machine.
func (s *Session) SetConnected(playerID string, connected bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.findPlayerLocked(playerID)
	if player == nil {
		return false
	}
	player.Disconnected = !connected
	if connected {
		s.touchLocked()
	}
	return true
}

// drawCard pops the tail of the deck. Callers hold the session lock.
func (s *Session) drawCard() (Card, bool) {
	if len(s.deck) == 0 {
		return Card{}, false
	}
	card := s.deck[len(s.deck)-1]
	s.deck = s.deck[:len(s.deck)-1]
	return card, true
}

func (s *Session) findPlayerLocked(playerID string) *Player {
	for _, p := range s.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// Player looks a player up by public id.
func (s *Session) Player(playerID string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findPlayerLocked(playerID)
}

func (s *Session) touchLocked() {
	s.lastActivity = time.Now()
}

// saveLocked snapshots the session under the lock and hands the write to
// a background goroutine. A failed write leaves the in-memory session
// authoritative until restart.
func (s *Session) saveLocked() {
	if s.saver == nil {
		return
	}
	snap := s.snapshotLocked()
	go func() {
		if err := s.saver.SaveGame(context.Background(), snap); err != nil {
			log.Printf("GAMES: saving room %s failed: %v", snap.Room, err)
		}
	}()
}
