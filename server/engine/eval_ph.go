package engine

import (
	poker "github.com/paulhankin/poker"
)

// Convert our engine.Card -> library card.
func toPH(c Card) poker.Card {
	var s poker.Suit
	switch c.Suit {
	case Clubs:
		s = poker.Club
	case Diamonds:
		s = poker.Diamond
	case Hearts:
		s = poker.Heart
	case Spades:
		s = poker.Spade
	default:
		s = poker.Club
	}
	// Our ranks: 2..14 (Ace=14). Library: 1..13 (Ace=1).
	var r poker.Rank
	if c.Rank == Ace {
		r = poker.Rank(1)
	} else {
		r = poker.Rank(c.Rank)
	}
	card, _ := poker.MakeCard(s, r)
	return card
}

func toPHSlice(cs []Card) []poker.Card {
	out := make([]poker.Card, len(cs))
	for i, c := range cs {
		out[i] = toPH(c)
	}
	return out
}

// Describe returns a human readable name for the best hand in cs, e.g.
// "full house, kings over twos". Falls back to the category name.
func Describe(cs []Card) string {
	if len(cs) >= 5 && len(cs) <= 7 {
		if d, err := poker.Describe(toPHSlice(cs)); err == nil {
			return d
		}
	}
	if r, err := Evaluate(cs); err == nil {
		return r.Category.String()
	}
	return ""
}
