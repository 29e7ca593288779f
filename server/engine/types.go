package engine

import (
	"fmt"
	"strings"
)

type Suit uint8

const (
	Hearts Suit = iota
	Diamonds
	Clubs
	Spades
)

var suitNames = [...]string{"hearts", "diamonds", "clubs", "spades"}

func (s Suit) String() string {
	if int(s) < len(suitNames) {
		return suitNames[s]
	}
	return fmt.Sprintf("suit(%d)", uint8(s))
}

func (s Suit) letter() byte { return "hdcs"[s] }

func (s Suit) MarshalText() ([]byte, error) {
	if int(s) >= len(suitNames) {
		return nil, fmt.Errorf("%w: suit %d", ErrInvalidCard, uint8(s))
	}
	return []byte(suitNames[s]), nil
}

func (s *Suit) UnmarshalText(b []byte) error {
	for i, n := range suitNames {
		if strings.EqualFold(n, string(b)) {
			*s = Suit(i)
			return nil
		}
	}
	return fmt.Errorf("%w: suit %q", ErrInvalidCard, string(b))
}

// Face card ranks. Number cards use their face value (2..10).
const (
	Jack  = 11
	Queen = 12
	King  = 13
	Ace   = 14
)

type Card struct {
	Rank int  `json:"rank"`
	Suit Suit `json:"suit"`
} // e.g. "Ah" => rank 14, suit Hearts

func (c Card) Valid() bool {
	return c.Rank >= 2 && c.Rank <= Ace && c.Suit <= Spades
}

func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	ranks := "  23456789TJQKA"
	return fmt.Sprintf("%c%c", ranks[c.Rank], c.Suit.letter())
}
