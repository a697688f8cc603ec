package game

import (
	"context"
	"math/rand/v2"
)

// Card identifies a single picture card from the pool. The server never
// handles image data, only references.
type Card struct {
	ID string `json:"id"`
}

// ChosenCard is one submission in the current turn's pool: the card, the
// player who played it, and everyone who guessed it to be the storyteller's.
type ChosenCard struct {
	ID        string   `json:"id"`
	Owner     string   `json:"owner"`
	GuessedBy []string `json:"guessedBy"`
}

// CardSource supplies a random sample of cards drawn from the given decks.
// It may return fewer than count if the pool is too small; callers must
// check the length.
type CardSource interface {
	SampleCards(ctx context.Context, deckIDs []string, count int) ([]Card, error)
}

// shuffleChosen returns a random permutation so nobody can tell the
// storyteller's card by its position in the pool.
func shuffleChosen(cards []ChosenCard) []ChosenCard {
	shuffled := make([]ChosenCard, len(cards))
	copy(shuffled, cards)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}
