package game

// CalculateScore evaluates the finished turn card by card and updates
// every player's scoreboard. The point values are fixed; the per-bucket
// attribution is user-visible in score breakdowns and must not change.
//
// For the storyteller's own card:
//   - nobody found it: every other player gains a flat 2 points (no
//     bucket), the storyteller nothing;
//   - some but not all found it: the storyteller gains 3 (good hint) and
//     each correct guesser gains 3 (good guess);
//   - everyone found it: the hint was too easy, the storyteller gains
//     nothing and each guesser gains 2 (good guess).
//
// For a decoy card, its owner gains 1 point (good card) per player who
// fell for it; the guessers gain nothing. Every registered guess also
// bumps the guesser's counter against the card's owner.
func (s *Session) CalculateScore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != StateEvaluation {
		return
	}

	active := s.findPlayerLocked(s.activePlayerID)
	for _, card := range s.chosenCards {
		if card.Owner == s.activePlayerID {
			switch {
			case len(card.GuessedBy) == 0:
				for _, p := range s.players {
					if p.ID == s.activePlayerID {
						continue
					}
					p.AwardPoints(2, "")
				}
			case len(card.GuessedBy) < len(s.players)-1:
				active.AwardPoints(3, ThroughGoodHints)
				for _, guesserID := range card.GuessedBy {
					s.scoreGuessLocked(guesserID, card.Owner, 3, 0)
				}
			default:
				for _, guesserID := range card.GuessedBy {
					s.scoreGuessLocked(guesserID, card.Owner, 2, 0)
				}
			}
			continue
		}
		for _, guesserID := range card.GuessedBy {
			s.scoreGuessLocked(guesserID, card.Owner, 0, 1)
		}
	}
	s.touchLocked()
}

// scoreGuessLocked awards the points earned through one registered guess
// and updates the guesser's crosstable counter for the card's owner.
func (s *Session) scoreGuessLocked(guesserID, ownerID string, guesserPoints, ownerPoints int) {
	guesser := s.findPlayerLocked(guesserID)
	guesser.AwardPoints(guesserPoints, ThroughGoodGuesses)
	guesser.RecordGuess(ownerID)
	owner := s.findPlayerLocked(ownerID)
	owner.AwardPoints(ownerPoints, ThroughGoodCards)
}
