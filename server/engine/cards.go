package engine

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrDeckExhausted = errors.New("deck exhausted")
	ErrInvalidCard   = errors.New("invalid card")
	ErrDuplicateCard = errors.New("duplicate card")
)

// DeckSource builds the deck for a new hand. Engines default to NewDeck;
// tests inject stacked decks.
type DeckSource func() (*Deck, error)

// Deck holds the cards not yet dealt in the current hand, front first.
type Deck struct {
	cards []Card
}

// FullDeck returns the 52 cards in a fixed order.
func FullDeck() []Card {
	deck := make([]Card, 0, 52)
	for s := Hearts; s <= Spades; s++ {
		for r := 2; r <= Ace; r++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// NewDeck returns a freshly shuffled 52-card deck. The permutation is a
// Fisher-Yates shuffle driven by crypto/rand.
func NewDeck() (*Deck, error) {
	cards := FullDeck()
	for i := len(cards) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, fmt.Errorf("shuffle: %w", err)
		}
		j := int(n.Int64())
		cards[i], cards[j] = cards[j], cards[i]
	}
	return &Deck{cards: cards}, nil
}

// NewStackedDeck deals the given cards first, followed by the rest of the
// 52-card set in FullDeck order. Duplicates or invalid cards are rejected.
func NewStackedDeck(top []Card) (*Deck, error) {
	if err := CheckDistinct(top); err != nil {
		return nil, err
	}
	used := make(map[Card]bool, len(top))
	cards := make([]Card, 0, 52)
	for _, c := range top {
		used[c] = true
		cards = append(cards, c)
	}
	for _, c := range FullDeck() {
		if !used[c] {
			cards = append(cards, c)
		}
	}
	return &Deck{cards: cards}, nil
}

// StackedSource returns a DeckSource that hands out one stacked deck per
// call, cycling through the given orders.
func StackedSource(orders ...[]Card) DeckSource {
	i := 0
	return func() (*Deck, error) {
		if len(orders) == 0 {
			return NewDeck()
		}
		top := orders[i%len(orders)]
		i++
		return NewStackedDeck(top)
	}
}

func (d *Deck) Remaining() int { return len(d.cards) }

// Deal removes n cards from the front of the deck.
func (d *Deck) Deal(n int) ([]Card, error) {
	if n < 0 || n > len(d.cards) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrDeckExhausted, n, len(d.cards))
	}
	out := append([]Card(nil), d.cards[:n]...)
	d.cards = d.cards[n:]
	return out, nil
}

func (d *Deck) DealOne() (Card, error) {
	cs, err := d.Deal(1)
	if err != nil {
		return Card{}, err
	}
	return cs[0], nil
}

// CheckDistinct reports an error if any card is invalid or appears more than
// once across all given groups.
func CheckDistinct(groups ...[]Card) error {
	seen := make(map[Card]bool, 52)
	for _, g := range groups {
		for _, c := range g {
			if !c.Valid() {
				return fmt.Errorf("%w: %d/%d", ErrInvalidCard, c.Rank, c.Suit)
			}
			if seen[c] {
				return fmt.Errorf("%w: %s", ErrDuplicateCard, c)
			}
			seen[c] = true
		}
	}
	return nil
}

// ParseCard parses short notation such as "As", "Td" or "10h".
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, s)
	}
	rs, ss := strings.ToUpper(s[:len(s)-1]), s[len(s)-1]
	var rank int
	switch rs {
	case "A":
		rank = Ace
	case "K":
		rank = King
	case "Q":
		rank = Queen
	case "J":
		rank = Jack
	case "T", "10":
		rank = 10
	default:
		if len(rs) == 1 && rs[0] >= '2' && rs[0] <= '9' {
			rank = int(rs[0] - '0')
		}
	}
	var suit Suit
	switch ss {
	case 'h', 'H':
		suit = Hearts
	case 'd', 'D':
		suit = Diamonds
	case 'c', 'C':
		suit = Clubs
	case 's', 'S':
		suit = Spades
	default:
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, s)
	}
	c := Card{Rank: rank, Suit: suit}
	if !c.Valid() {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidCard, s)
	}
	return c, nil
}

// ParseCards parses a space separated list, e.g. "As Kd 7c".
func ParseCards(s string) ([]Card, error) {
	fields := strings.Fields(s)
	out := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// MustParseCards is ParseCards for literals known to be valid.
func MustParseCards(s string) []Card {
	cs, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cs
}
