package game

import (
	"github.com/google/uuid"
)

// Avatar holds the parameters a client uses to render a player portrait.
// The color index is assigned by the session on join; the rest are chosen
// by the player.
type Avatar struct {
	Eyes      int `json:"eyes"`
	Hair      int `json:"hair"`
	Accessory int `json:"accessory"`
	Color     int `json:"color"`
}

// Bucket names a score category. Points awarded with an unknown bucket
// still count toward the totals, matching the flat bonuses of the scoring
// table that have no category of their own.
type Bucket string

const (
	ThroughGoodHints   Bucket = "throughGoodHints"
	ThroughGoodGuesses Bucket = "throughGoodGuesses"
	ThroughGoodCards   Bucket = "throughGoodCards"
)

// Score is a player's running score. Total is the sum of the three
// category buckets plus uncategorized bonuses; ThisTurn resets at the
// start of every turn and is purely informational.
type Score struct {
	Total              int `json:"total"`
	ThisTurn           int `json:"thisTurn"`
	ThroughGoodHints   int `json:"throughGoodHints"`
	ThroughGoodGuesses int `json:"throughGoodGuesses"`
	ThroughGoodCards   int `json:"throughGoodCards"`
}

// cardDrawer is anything a player can draw a card from, usually a session.
type cardDrawer interface {
	drawCard() (Card, bool)
}

// Player is one seated participant. ID is public and shared with every
// client; PrivateID is the player's sole credential and must never appear
// in any broadcast payload.
type Player struct {
	ID        string
	PrivateID string
	Name      string
	Avatar    Avatar

	Score   Score
	Guesses map[string]int

	hand         []Card
	Pending      bool
	Disconnected bool
}

// NewPlayer creates an unseated player with fresh credentials.
func NewPlayer(name string, avatar Avatar) *Player {
	return &Player{
		ID:        uuid.NewString(),
		PrivateID: uuid.NewString(),
		Name:      name,
		Avatar:    avatar,
		Guesses:   make(map[string]int),
		Pending:   true,
	}
}

// SetupGuesses initializes the guess counters against every co-player.
// Called once when the game starts, so that RecordGuess only ever touches
// established keys.
func (p *Player) SetupGuesses(players []*Player) {
	for _, other := range players {
		if other.ID == p.ID {
			continue
		}
		p.Guesses[other.ID] = 0
	}
}

// DrawCard draws one card from the source into the player's hand.
func (p *Player) DrawCard(from cardDrawer) bool {
	card, ok := from.drawCard()
	if !ok {
		return false
	}
	p.hand = append(p.hand, card)
	return true
}

// HasCard reports whether the player holds the given card.
func (p *Player) HasCard(cardID string) bool {
	for _, card := range p.hand {
		if card.ID == cardID {
			return true
		}
	}
	return false
}

// RemoveCard takes the card out of the player's hand. Removing a card the
// player does not hold is a caller bug; it reports false so the defect is
// never papered over.
func (p *Player) RemoveCard(cardID string) bool {
	for i, card := range p.hand {
		if card.ID == cardID {
			p.hand = append(p.hand[:i], p.hand[i+1:]...)
			return true
		}
	}
	return false
}

// AwardPoints adds points to the total and the current turn, and to the
// named bucket when it is one of the recognized categories.
func (p *Player) AwardPoints(amount int, through Bucket) {
	p.Score.Total += amount
	p.Score.ThisTurn += amount
	switch through {
	case ThroughGoodHints:
		p.Score.ThroughGoodHints += amount
	case ThroughGoodGuesses:
		p.Score.ThroughGoodGuesses += amount
	case ThroughGoodCards:
		p.Score.ThroughGoodCards += amount
	}
}

// ResetTurnScore clears the per-turn score at the start of a new turn.
func (p *Player) ResetTurnScore() {
	p.Score.ThisTurn = 0
}

// RecordGuess notes that this player guessed the given owner's card. The
// counter must exist, established by SetupGuesses at game start.
func (p *Player) RecordGuess(ownerID string) {
	p.Guesses[ownerID]++
}

// Hand returns a copy of the player's hand cards.
func (p *Player) Hand() []Card {
	hand := make([]Card, len(p.hand))
	copy(hand, p.hand)
	return hand
}
