package blackjack

import "cardtable/server/engine"

// Score totals a blackjack hand. Aces count 11 until that would bust, then 1;
// soft reports an ace still counted as 11.
func Score(cards []engine.Card) (total int, soft bool) {
	aces := 0
	for _, c := range cards {
		switch {
		case c.Rank == engine.Ace:
			aces++
			total += 11
		case c.Rank >= 10:
			total += 10
		default:
			total += c.Rank
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total, aces > 0
}

func isBlackjack(cards []engine.Card) bool {
	t, _ := Score(cards)
	return len(cards) == 2 && t == 21
}

// dealerShouldHit is the house rule: draw below 17, stand on any 17.
func dealerShouldHit(cards []engine.Card) bool {
	t, _ := Score(cards)
	return t < 17
}
