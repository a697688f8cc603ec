package game

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// stubSource hands out sequential card ids, capped at available.
type stubSource struct {
	available int
	err       error
}

func (s *stubSource) SampleCards(_ context.Context, _ []string, count int) ([]Card, error) {
	if s.err != nil {
		return nil, s.err
	}
	n := count
	if s.available < n {
		n = s.available
	}
	cards := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, Card{ID: fmt.Sprintf("card-%03d", i)})
	}
	return cards, nil
}

// stubSaver collects snapshots on a channel so tests can observe the
// background writes.
type stubSaver struct {
	snaps chan Snapshot
}

func newStubSaver() *stubSaver {
	return &stubSaver{snaps: make(chan Snapshot, 16)}
}

func (s *stubSaver) SaveGame(_ context.Context, snap Snapshot) error {
	s.snaps <- snap
	return nil
}

func joinPlayers(t *testing.T, s *Session, n int) []*Player {
	t.Helper()
	players := make([]*Player, 0, n)
	for i := 0; i < n; i++ {
		p := NewPlayer(fmt.Sprintf("player-%d", i+1), Avatar{Eyes: i, Hair: i, Accessory: i})
		if !s.Join(p) {
			t.Fatalf("join %d failed", i+1)
		}
		players = append(players, p)
	}
	return players
}

func TestJoinAssignsUniqueColors(t *testing.T) {
	s := NewSession("room", &stubSource{}, nil)

	seen := make(map[int]bool)
	for i := 0; i < MaxPlayers; i++ {
		p := NewPlayer(fmt.Sprintf("p%d", i), Avatar{})
		if !s.Join(p) {
			t.Fatalf("join %d failed", i)
		}
		if seen[p.Avatar.Color] {
			t.Fatalf("color %d assigned twice", p.Avatar.Color)
		}
		seen[p.Avatar.Color] = true
		if got, want := len(s.availableColors), colorCount-i-1; got != want {
			t.Fatalf("color pool after join %d: got %d, want %d", i, got, want)
		}
	}
}

func TestJoinLimits(t *testing.T) {
	s := NewSession("room", &stubSource{available: 1000}, nil)
	joinPlayers(t, s, MaxPlayers)

	if s.Join(NewPlayer("one too many", Avatar{})) {
		t.Fatal("join succeeded beyond the seat limit")
	}

	s2 := NewSession("room2", &stubSource{available: 1000}, nil)
	joinPlayers(t, s2, 3)
	if !s2.Start(context.Background(), 2, []string{"deck"}) {
		t.Fatal("start failed")
	}
	if s2.Join(NewPlayer("latecomer", Avatar{})) {
		t.Fatal("join succeeded after start")
	}
}

func TestStartDealsHands(t *testing.T) {
	saver := newStubSaver()
	s := NewSession("room", &stubSource{available: 1000}, saver)
	players := joinPlayers(t, s, 3)

	if !s.Start(context.Background(), 4, []string{"deck"}) {
		t.Fatal("start failed")
	}
	if s.Phase() != PhaseRunning {
		t.Fatalf("phase after start: got %s, want %s", s.Phase(), PhaseRunning)
	}
	if s.Running().State != StateInit {
		t.Fatalf("running state after start: got %s, want %s", s.Running().State, StateInit)
	}

	for _, p := range players {
		if len(p.Hand()) != handSize {
			t.Fatalf("hand of %s: got %d cards, want %d", p.Name, len(p.Hand()), handSize)
		}
		if len(p.Guesses) != len(players)-1 {
			t.Fatalf("guess map of %s: got %d entries, want %d", p.Name, len(p.Guesses), len(players)-1)
		}
	}

	// 3 players, 4 turns: 27 sampled, 18 dealt.
	if got, want := len(s.deck), 3*(5+4)-3*handSize; got != want {
		t.Fatalf("deck after deal: got %d, want %d", got, want)
	}

	select {
	case snap := <-saver.snaps:
		if snap.Room != "room" {
			t.Fatalf("saved snapshot room: got %s, want room", snap.Room)
		}
	case <-time.After(time.Second):
		t.Fatal("start did not persist a snapshot")
	}

	if s.Start(context.Background(), 4, []string{"deck"}) {
		t.Fatal("second start succeeded")
	}
}

func TestStartShortSampleRollsBack(t *testing.T) {
	saver := newStubSaver()
	s := NewSession("room", &stubSource{available: 10}, saver)
	players := joinPlayers(t, s, 3)

	// 3 players, 1 turn needs 18 cards, only 10 available.
	if s.Start(context.Background(), 1, []string{"deck"}) {
		t.Fatal("start succeeded with a short sample")
	}

	if s.Phase() != PhaseOpen {
		t.Fatalf("phase after failed start: got %s, want %s", s.Phase(), PhaseOpen)
	}
	for _, p := range players {
		if len(p.Hand()) != 0 {
			t.Fatalf("hand of %s after failed start: got %d cards, want 0", p.Name, len(p.Hand()))
		}
	}
	select {
	case <-saver.snaps:
		t.Fatal("failed start persisted a snapshot")
	default:
	}

	// The room stays open after the failed attempt.
	if !s.Join(NewPlayer("late", Avatar{})) {
		t.Fatal("room closed by a failed start")
	}
}

func TestStartSourceErrorRollsBack(t *testing.T) {
	saver := newStubSaver()
	s := NewSession("room", &stubSource{err: fmt.Errorf("pool offline")}, saver)
	players := joinPlayers(t, s, 3)

	if s.Start(context.Background(), 1, []string{"deck"}) {
		t.Fatal("start succeeded with a failing source")
	}
	if s.Phase() != PhaseOpen {
		t.Fatalf("phase after failed start: got %s, want %s", s.Phase(), PhaseOpen)
	}
	for _, p := range players {
		if len(p.Hand()) != 0 {
			t.Fatalf("hand of %s after failed start: got %d cards, want 0", p.Name, len(p.Hand()))
		}
	}
	select {
	case <-saver.snaps:
		t.Fatal("failed start persisted a snapshot")
	default:
	}
}

func TestStartValidation(t *testing.T) {
	s := NewSession("room", &stubSource{available: 1000}, nil)
	joinPlayers(t, s, 3)

	tests := []struct {
		name  string
		turns int
		decks []string
	}{
		{name: "zero turns", turns: 0, decks: []string{"deck"}},
		{name: "no decks", turns: 2, decks: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.Start(context.Background(), tt.turns, tt.decks) {
				t.Fatal("start succeeded")
			}
			if s.Phase() != PhaseOpen {
				t.Fatalf("phase: got %s, want %s", s.Phase(), PhaseOpen)
			}
		})
	}

	empty := NewSession("empty", &stubSource{available: 1000}, nil)
	if empty.Start(context.Background(), 2, []string{"deck"}) {
		t.Fatal("start succeeded without players")
	}
}

func TestGoFirstStartsFirstTurn(t *testing.T) {
	s := NewSession("room", &stubSource{available: 1000}, nil)
	players := joinPlayers(t, s, 3)
	if !s.Start(context.Background(), 2, []string{"deck"}) {
		t.Fatal("start failed")
	}

	if s.GoFirst("nobody") {
		t.Fatal("go-first succeeded for an unknown player")
	}
	if !s.GoFirst(players[1].ID) {
		t.Fatal("go-first failed")
	}

	running := s.Running()
	if running.State != StateWaitForHint {
		t.Fatalf("state: got %s, want %s", running.State, StateWaitForHint)
	}
	if running.ActivePlayer != players[1].ID {
		t.Fatalf("active player: got %s, want %s", running.ActivePlayer, players[1].ID)
	}
	if running.CurrentTurn != 1 {
		t.Fatalf("current turn: got %d, want 1", running.CurrentTurn)
	}
	for _, p := range players {
		if !p.Pending {
			t.Fatalf("%s not pending at turn start", p.Name)
		}
	}

	if s.GoFirst(players[0].ID) {
		t.Fatal("go-first succeeded twice")
	}
}

// startTurn brings a fresh 3-player session to waitForCards with the
// first player as storyteller.
func startTurn(t *testing.T, available int, turns int) (*Session, []*Player) {
	t.Helper()
	s := NewSession("room", &stubSource{available: available}, nil)
	players := joinPlayers(t, s, 3)
	if !s.Start(context.Background(), turns, []string{"deck"}) {
		t.Fatal("start failed")
	}
	if !s.GoFirst(players[0].ID) {
		t.Fatal("go-first failed")
	}
	if !s.GiveHint(players[0].ID, players[0].Hand()[0].ID, "two ships at dawn") {
		t.Fatal("give hint failed")
	}
	return s, players
}

func TestGiveHintValidation(t *testing.T) {
	s := NewSession("room", &stubSource{available: 1000}, nil)
	players := joinPlayers(t, s, 3)
	if !s.Start(context.Background(), 2, []string{"deck"}) {
		t.Fatal("start failed")
	}
	if !s.GoFirst(players[0].ID) {
		t.Fatal("go-first failed")
	}

	active, other := players[0], players[1]

	if s.GiveHint(other.ID, other.Hand()[0].ID, "nope") {
		t.Fatal("non-active player gave the hint")
	}
	if s.GiveHint(active.ID, "not-in-hand", "nope") {
		t.Fatal("hint accepted for a card outside the hand")
	}
	if s.GiveHint(active.ID, "", "nope") {
		t.Fatal("hint accepted without a card")
	}

	card := active.Hand()[0].ID
	if !s.GiveHint(active.ID, card, "two ships at dawn") {
		t.Fatal("give hint failed")
	}
	if s.Running().State != StateWaitForCards {
		t.Fatalf("state: got %s, want %s", s.Running().State, StateWaitForCards)
	}
	if s.HintText() != "two ships at dawn" {
		t.Fatalf("hint: got %q", s.HintText())
	}
	if active.HasCard(card) {
		t.Fatal("hint card still in the storyteller's hand")
	}
	if active.Pending {
		t.Fatal("storyteller still pending after the hint")
	}

	if s.GiveHint(active.ID, active.Hand()[0].ID, "again") {
		t.Fatal("second hint accepted")
	}
}

func TestGiveCardAndAdvance(t *testing.T) {
	s, players := startTurn(t, 1000, 2)

	if s.CheckLastCard() {
		t.Fatal("advanced with players still pending")
	}

	if s.GiveCard(players[0].ID, players[0].Hand()[0].ID) {
		t.Fatal("storyteller submitted a second card")
	}
	if !s.GiveCard(players[1].ID, players[1].Hand()[0].ID) {
		t.Fatal("give card failed")
	}
	if s.GiveCard(players[1].ID, players[1].Hand()[0].ID) {
		t.Fatal("player submitted twice")
	}
	if s.CheckLastCard() {
		t.Fatal("advanced with one player still pending")
	}

	if !s.GiveCard(players[2].ID, players[2].Hand()[0].ID) {
		t.Fatal("give card failed")
	}
	if !s.CheckLastCard() {
		t.Fatal("did not advance once all cards were in")
	}
	if s.CheckLastCard() {
		t.Fatal("advancing call was not idempotent")
	}

	if s.Running().State != StateWaitForGuesses {
		t.Fatalf("state: got %s, want %s", s.Running().State, StateWaitForGuesses)
	}
	if len(s.ChosenIDs()) != 3 {
		t.Fatalf("chosen pool: got %d cards, want 3", len(s.ChosenIDs()))
	}
	if players[0].Pending {
		t.Fatal("storyteller pending during guessing")
	}
	if !players[1].Pending || !players[2].Pending {
		t.Fatal("guessers not pending")
	}
}

// findChosen returns the pool card owned by the given player.
func findChosen(t *testing.T, s *Session, ownerID string) ChosenCard {
	t.Helper()
	for _, c := range s.ChosenFull() {
		if c.Owner == ownerID {
			return c
		}
	}
	t.Fatalf("no chosen card owned by %s", ownerID)
	return ChosenCard{}
}

func collectCards(t *testing.T, s *Session, players []*Player) {
	t.Helper()
	for _, p := range players[1:] {
		if !s.GiveCard(p.ID, p.Hand()[0].ID) {
			t.Fatalf("give card for %s failed", p.Name)
		}
	}
	if !s.CheckLastCard() {
		t.Fatal("card collection did not advance")
	}
}

func TestGuessValidation(t *testing.T) {
	s, players := startTurn(t, 1000, 2)
	collectCards(t, s, players)

	own := findChosen(t, s, players[1].ID)
	if s.Guess(players[1].ID, own.ID) {
		t.Fatal("player guessed their own card")
	}
	if s.Guess(players[1].ID, "no-such-card") {
		t.Fatal("guess accepted for a card outside the pool")
	}
	if s.Guess(players[0].ID, findChosen(t, s, players[1].ID).ID) {
		t.Fatal("storyteller guessed")
	}

	correct := findChosen(t, s, players[0].ID)
	if !s.Guess(players[1].ID, correct.ID) {
		t.Fatal("guess failed")
	}
	if s.Guess(players[1].ID, correct.ID) {
		t.Fatal("player guessed twice")
	}

	if s.CheckLastGuess() {
		t.Fatal("advanced with a guesser still pending")
	}
	if !s.Guess(players[2].ID, correct.ID) {
		t.Fatal("guess failed")
	}
	if !s.CheckLastGuess() {
		t.Fatal("did not advance once all guesses were in")
	}
	if s.CheckLastGuess() {
		t.Fatal("advancing call was not idempotent")
	}
	if s.Running().State != StateEvaluation {
		t.Fatalf("state: got %s, want %s", s.Running().State, StateEvaluation)
	}
}

func TestNextTurnRotatesAndReplenishes(t *testing.T) {
	s, players := startTurn(t, 1000, 3)
	collectCards(t, s, players)
	correct := findChosen(t, s, players[0].ID)
	for _, p := range players[1:] {
		if !s.Guess(p.ID, correct.ID) {
			t.Fatal("guess failed")
		}
	}
	if !s.CheckLastGuess() {
		t.Fatal("did not reach evaluation")
	}
	s.CalculateScore()

	if !s.NextTurn() {
		t.Fatal("next turn failed")
	}

	running := s.Running()
	if running.State != StateWaitForHint {
		t.Fatalf("state: got %s, want %s", running.State, StateWaitForHint)
	}
	if running.CurrentTurn != 2 {
		t.Fatalf("current turn: got %d, want 2", running.CurrentTurn)
	}
	if running.ActivePlayer != players[1].ID {
		t.Fatalf("active player: got %s, want %s", running.ActivePlayer, players[1].ID)
	}
	for _, p := range players {
		if len(p.Hand()) != handSize {
			t.Fatalf("hand of %s: got %d cards, want %d", p.Name, len(p.Hand()), handSize)
		}
		if !p.Pending {
			t.Fatalf("%s not pending at turn start", p.Name)
		}
		if p.Score.ThisTurn != 0 {
			t.Fatalf("turn score of %s not reset: %d", p.Name, p.Score.ThisTurn)
		}
	}
	if s.HintText() != "" {
		t.Fatalf("hint not cleared: %q", s.HintText())
	}
	if len(s.ChosenIDs()) != 0 {
		t.Fatal("chosen pool not cleared")
	}
}

func TestActivePlayerRotationWraps(t *testing.T) {
	s := NewSession("room", &stubSource{available: 1000}, nil)
	players := joinPlayers(t, s, 3)
	if !s.Start(context.Background(), 5, []string{"deck"}) {
		t.Fatal("start failed")
	}
	if !s.GoFirst(players[2].ID) {
		t.Fatal("go-first failed")
	}

	playTurn := func() {
		active := s.Player(s.Running().ActivePlayer)
		if !s.GiveHint(active.ID, active.Hand()[0].ID, "hm") {
			t.Fatal("give hint failed")
		}
		for _, p := range players {
			if p.ID == active.ID {
				continue
			}
			if !s.GiveCard(p.ID, p.Hand()[0].ID) {
				t.Fatal("give card failed")
			}
		}
		if !s.CheckLastCard() {
			t.Fatal("cards did not advance")
		}
		correct := findChosen(t, s, active.ID)
		for _, p := range players {
			if p.ID == active.ID {
				continue
			}
			if !s.Guess(p.ID, correct.ID) {
				t.Fatal("guess failed")
			}
		}
		if !s.CheckLastGuess() {
			t.Fatal("guesses did not advance")
		}
		s.CalculateScore()
		if !s.NextTurn() {
			t.Fatal("next turn failed")
		}
	}

	playTurn()
	if got := s.Running().ActivePlayer; got != players[0].ID {
		t.Fatalf("rotation did not wrap: got %s, want %s", got, players[0].ID)
	}
	playTurn()
	if got := s.Running().ActivePlayer; got != players[1].ID {
		t.Fatalf("rotation: got %s, want %s", got, players[1].ID)
	}
}

func TestCardConservation(t *testing.T) {
	s, players := startTurn(t, 1000, 2)

	count := func() map[string]int {
		counts := make(map[string]int)
		for _, p := range players {
			for _, c := range p.Hand() {
				counts[c.ID]++
			}
		}
		for _, c := range s.ChosenFull() {
			counts[c.ID]++
		}
		s.mu.Lock()
		for _, c := range s.deck {
			counts[c.ID]++
		}
		s.mu.Unlock()
		return counts
	}

	// 3 players, 2 turns: 21 cards sampled.
	verify := func(stage string) {
		counts := count()
		total := 0
		for id, n := range counts {
			if n != 1 {
				t.Fatalf("%s: card %s appears %d times", stage, id, n)
			}
			total++
		}
		if total != 21 {
			t.Fatalf("%s: %d distinct cards accounted for, want 21", stage, total)
		}
	}

	verify("after hint")
	collectCards(t, s, players)
	verify("after collection")
	correct := findChosen(t, s, players[0].ID)
	for _, p := range players[1:] {
		if !s.Guess(p.ID, correct.ID) {
			t.Fatal("guess failed")
		}
	}
	if !s.CheckLastGuess() {
		t.Fatal("guesses did not advance")
	}
	s.CalculateScore()
	verify("after evaluation")
}

func TestWrongStateActionsRejected(t *testing.T) {
	s := NewSession("room", &stubSource{available: 1000}, nil)
	players := joinPlayers(t, s, 3)

	if s.GoFirst(players[0].ID) {
		t.Fatal("go-first succeeded before start")
	}
	if s.GiveCard(players[1].ID, "x") {
		t.Fatal("give card succeeded before start")
	}
	if s.Guess(players[1].ID, "x") {
		t.Fatal("guess succeeded before start")
	}
	if s.NextTurn() {
		t.Fatal("next turn succeeded before start")
	}
	if s.CheckLastCard() || s.CheckLastGuess() {
		t.Fatal("check succeeded before start")
	}

	if !s.Start(context.Background(), 1, []string{"deck"}) {
		t.Fatal("start failed")
	}

	// init: only go-first applies.
	if s.GiveHint(players[0].ID, players[0].Hand()[0].ID, "x") {
		t.Fatal("hint accepted during init")
	}
	if s.Guess(players[1].ID, "x") {
		t.Fatal("guess accepted during init")
	}

	if !s.GoFirst(players[0].ID) {
		t.Fatal("go-first failed")
	}

	// waitForHint: cards and guesses are out.
	if s.GiveCard(players[1].ID, players[1].Hand()[0].ID) {
		t.Fatal("card accepted during waitForHint")
	}
	if s.NextTurn() {
		t.Fatal("next turn accepted during waitForHint")
	}
}

func TestFullGameScenario(t *testing.T) {
	saver := newStubSaver()
	s := NewSession("R", &stubSource{available: 33}, saver)
	players := joinPlayers(t, s, 3)

	if !s.Start(context.Background(), 1, []string{"deckX"}) {
		t.Fatal("start failed")
	}
	if !s.GoFirst(players[0].ID) {
		t.Fatal("go-first failed")
	}
	if !s.GiveHint(players[0].ID, players[0].Hand()[0].ID, "a fable") {
		t.Fatal("give hint failed")
	}
	if !s.GiveCard(players[1].ID, players[1].Hand()[0].ID) {
		t.Fatal("give card failed")
	}
	if !s.GiveCard(players[2].ID, players[2].Hand()[0].ID) {
		t.Fatal("give card failed")
	}
	if !s.CheckLastCard() {
		t.Fatal("cards did not advance")
	}
	if s.Running().State != StateWaitForGuesses {
		t.Fatalf("state: got %s, want %s", s.Running().State, StateWaitForGuesses)
	}

	correct := findChosen(t, s, players[0].ID)
	decoy := findChosen(t, s, players[1].ID)
	if !s.Guess(players[1].ID, correct.ID) {
		t.Fatal("guess failed")
	}
	if !s.Guess(players[2].ID, decoy.ID) {
		t.Fatal("guess failed")
	}
	if !s.CheckLastGuess() {
		t.Fatal("guesses did not advance")
	}
	if s.Running().State != StateEvaluation {
		t.Fatalf("state: got %s, want %s", s.Running().State, StateEvaluation)
	}

	s.CalculateScore()

	if s.NextTurn() {
		t.Fatal("next turn succeeded past the last turn")
	}
	if s.Phase() != PhaseFinished {
		t.Fatalf("phase: got %s, want %s", s.Phase(), PhaseFinished)
	}

	// Storyteller: 3 through the good hint. Correct guesser: 3 through
	// the good guess, plus 1 through the good card for player 3 falling
	// for the decoy. Wrong guesser: nothing.
	if got := players[0].Score; got.Total != 3 || got.ThroughGoodHints != 3 {
		t.Fatalf("storyteller score: %+v", got)
	}
	if got := players[1].Score; got.Total != 4 || got.ThroughGoodGuesses != 3 || got.ThroughGoodCards != 1 {
		t.Fatalf("correct guesser score: %+v", got)
	}
	if got := players[2].Score; got.Total != 0 {
		t.Fatalf("wrong guesser score: %+v", got)
	}
}

func TestRestartKeepsRosterAndCredentials(t *testing.T) {
	s := NewSession("room", &stubSource{available: 1000}, nil)
	players := joinPlayers(t, s, 3)
	if !s.Start(context.Background(), 1, []string{"deck"}) {
		t.Fatal("start failed")
	}

	next := s.Restart()
	if next.ID() != s.ID() {
		t.Fatalf("restart changed the room id: %s", next.ID())
	}
	if next.Phase() != PhaseOpen {
		t.Fatalf("restarted phase: got %s, want %s", next.Phase(), PhaseOpen)
	}
	if next.PlayerCount() != len(players) {
		t.Fatalf("restarted roster: got %d, want %d", next.PlayerCount(), len(players))
	}

	for _, p := range players {
		fresh := next.Player(p.ID)
		if fresh == nil {
			t.Fatalf("player %s missing after restart", p.Name)
		}
		if fresh.PrivateID != p.PrivateID {
			t.Fatal("restart rotated a private id")
		}
		if fresh.Score.Total != 0 || len(fresh.Hand()) != 0 {
			t.Fatal("restart kept score or hand")
		}
	}
}

func TestSetConnected(t *testing.T) {
	s := NewSession("room", &stubSource{}, nil)
	players := joinPlayers(t, s, 2)

	if s.SetConnected("nobody", false) {
		t.Fatal("flag set for an unknown player")
	}
	if !s.SetConnected(players[0].ID, false) {
		t.Fatal("disconnect flag failed")
	}
	if !players[0].Disconnected {
		t.Fatal("player not marked disconnected")
	}
	if !s.SetConnected(players[0].ID, true) {
		t.Fatal("reconnect flag failed")
	}
	if players[0].Disconnected {
		t.Fatal("player still marked disconnected")
	}
}
