package engine

import (
	"fmt"
	"sort"
)

type Category uint8

const (
	HighCard Category = iota
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

var categoryNames = [...]string{
	"high card", "one pair", "two pair", "three of a kind", "straight",
	"flush", "full house", "four of a kind", "straight flush", "royal flush",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// HandRank orders hands by category, then lexicographically by Tiebreak
// (rank groups high to low, e.g. trips rank, pair rank, kickers).
type HandRank struct {
	Category Category `json:"category"`
	Tiebreak []int    `json:"tiebreak"`
	Best     []Card   `json:"best"`
}

// Compare returns -1, 0 or 1. Zero means the hands split.
func (h HandRank) Compare(o HandRank) int {
	if h.Category != o.Category {
		if h.Category < o.Category {
			return -1
		}
		return 1
	}
	n := len(h.Tiebreak)
	if len(o.Tiebreak) > n {
		n = len(o.Tiebreak)
	}
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(h.Tiebreak) {
			a = h.Tiebreak[i]
		}
		if i < len(o.Tiebreak) {
			b = o.Tiebreak[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Evaluate ranks the best five-card hand out of 5 to 7 distinct cards.
func Evaluate(cards []Card) (HandRank, error) {
	n := len(cards)
	if n < 5 || n > 7 {
		return HandRank{}, fmt.Errorf("evaluate: need 5..7 cards, got %d", n)
	}
	if err := CheckDistinct(cards); err != nil {
		return HandRank{}, err
	}

	var best HandRank
	found := false
	var five [5]Card
	choose := [5]int{}
	var rec func(start, k int)
	rec = func(start, k int) {
		if k == 5 {
			for i := 0; i < 5; i++ {
				five[i] = cards[choose[i]]
			}
			r := evaluate5(five)
			if !found || r.Compare(best) > 0 {
				best = r
				found = true
			}
			return
		}
		for i := start; i <= n-(5-k); i++ {
			choose[k] = i
			rec(i+1, k+1)
		}
	}
	rec(0, 0)
	return best, nil
}

type rankGroup struct{ rank, count int }

func evaluate5(cs [5]Card) HandRank {
	hand := cs[:]
	best := append([]Card(nil), hand...)
	sort.Slice(best, func(i, j int) bool { return best[i].Rank > best[j].Rank })

	flush := true
	for _, c := range hand[1:] {
		if c.Suit != hand[0].Suit {
			flush = false
			break
		}
	}

	counts := map[int]int{}
	for _, c := range hand {
		counts[c.Rank]++
	}
	groups := make([]rankGroup, 0, len(counts))
	for r, n := range counts {
		groups = append(groups, rankGroup{rank: r, count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})

	straightHigh, straight := straightHigh(groups)
	keys := func() []int {
		out := make([]int, len(groups))
		for i, g := range groups {
			out[i] = g.rank
		}
		return out
	}

	switch {
	case straight && flush && straightHigh == Ace:
		return HandRank{Category: RoyalFlush, Tiebreak: []int{Ace}, Best: best}
	case straight && flush:
		return HandRank{Category: StraightFlush, Tiebreak: []int{straightHigh}, Best: best}
	case groups[0].count == 4:
		return HandRank{Category: FourOfAKind, Tiebreak: keys(), Best: best}
	case groups[0].count == 3 && groups[1].count == 2:
		return HandRank{Category: FullHouse, Tiebreak: keys(), Best: best}
	case flush:
		return HandRank{Category: Flush, Tiebreak: keys(), Best: best}
	case straight:
		return HandRank{Category: Straight, Tiebreak: []int{straightHigh}, Best: best}
	case groups[0].count == 3:
		return HandRank{Category: ThreeOfAKind, Tiebreak: keys(), Best: best}
	case groups[0].count == 2 && groups[1].count == 2:
		return HandRank{Category: TwoPair, Tiebreak: keys(), Best: best}
	case groups[0].count == 2:
		return HandRank{Category: OnePair, Tiebreak: keys(), Best: best}
	}
	return HandRank{Category: HighCard, Tiebreak: keys(), Best: best}
}

// straightHigh expects groups sorted by count then rank. The wheel (A-2-3-4-5)
// is a five-high straight.
func straightHigh(groups []rankGroup) (int, bool) {
	if len(groups) != 5 {
		return 0, false
	}
	if groups[0].rank == Ace && groups[1].rank == 5 && groups[4].rank == 2 {
		return 5, true
	}
	if groups[0].rank-groups[4].rank == 4 {
		return groups[0].rank, true
	}
	return 0, false
}
