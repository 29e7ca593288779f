package poker

import (
	"slices"
	"strings"

	"cardtable/server/engine"
	"cardtable/server/game"
)

// SidePot is one settlement tier: chips contested only by Eligible.
type SidePot struct {
	Amount   int64    `json:"amount"`
	Eligible []string `json:"eligible"`
}

type tier struct {
	amount   int64
	eligible []*Player
}

// sidePots layers the hand's commitments into tiers. Each distinct
// commitment level of a live player caps one tier; folded chips are dead
// money in every tier they reach.
func sidePots(roster []*Player) []tier {
	var levels []int64
	for _, p := range roster {
		if p.TotalBet > 0 && !slices.Contains(levels, p.TotalBet) {
			levels = append(levels, p.TotalBet)
		}
	}
	slices.Sort(levels)

	var tiers []tier
	var prev, carry int64
	for _, lvl := range levels {
		amt := carry
		var elig []*Player
		for _, p := range roster {
			amt += min(p.TotalBet, lvl) - min(p.TotalBet, prev)
			if !p.Folded && p.TotalBet >= lvl {
				elig = append(elig, p)
			}
		}
		prev = lvl
		switch {
		case len(elig) == 0 && len(tiers) > 0:
			tiers[len(tiers)-1].amount += amt
			carry = 0
		case len(elig) == 0:
			carry = amt
		case len(tiers) > 0 && len(tiers[len(tiers)-1].eligible) == len(elig):
			tiers[len(tiers)-1].amount += amt
			carry = 0
		default:
			tiers = append(tiers, tier{amount: amt, eligible: elig})
			carry = 0
		}
	}
	return tiers
}

// returnUncalled gives the biggest contributor back whatever nobody else
// matched.
func (t *Table) returnUncalled() {
	var top *Player
	var first, second int64
	for _, p := range t.roster {
		switch {
		case p.TotalBet > first:
			top, second, first = p, first, p.TotalBet
		case p.TotalBet > second:
			second = p.TotalBet
		}
	}
	if top == nil || first == second {
		return
	}
	refund := first - second
	top.Chips += refund
	top.TotalBet -= refund
	top.CurrentBet = max(0, top.CurrentBet-refund)
	t.pot -= refund
	if top.Chips > 0 {
		top.AllIn = false
	}
}

func (t *Table) foldWin() []game.Event {
	t.returnUncalled()
	var w *Player
	for _, p := range t.roster {
		if p.Folded {
			p.Result = ResultFolded
		} else {
			w = p
		}
	}
	w.Chips += t.pot
	w.Payout = t.pot
	w.Result = ResultWon
	evs := []game.Event{game.Log("%s wins %d, everyone else folded", w.Name, t.pot)}
	return append(evs, t.finish()...)
}

func (t *Table) showdown() []game.Event {
	t.stage = StageShowdown
	t.turn = -1
	t.returnUncalled()

	ranks := make(map[*Player]engine.HandRank, len(t.roster))
	for _, p := range t.roster {
		if p.Folded {
			p.Result = ResultFolded
			continue
		}
		cards := make([]engine.Card, 0, 7)
		cards = append(append(cards, p.Hand...), t.community...)
		r, err := engine.Evaluate(cards)
		if err != nil {
			return t.abort(err)
		}
		ranks[p] = r
		p.HandName = engine.Describe(r.Best)
	}

	var evs []game.Event
	tiers := sidePots(t.roster)
	t.sidePots = t.sidePots[:0]
	for _, tr := range tiers {
		var winners []*Player
		for _, p := range tr.eligible {
			if len(winners) == 0 {
				winners = []*Player{p}
				continue
			}
			switch c := ranks[p].Compare(ranks[winners[0]]); {
			case c > 0:
				winners = []*Player{p}
			case c == 0:
				winners = append(winners, p)
			}
		}
		t.award(tr.amount, winners)

		ids := make([]string, len(tr.eligible))
		for i, p := range tr.eligible {
			ids[i] = p.UserID
		}
		t.sidePots = append(t.sidePots, SidePot{Amount: tr.amount, Eligible: ids})

		names := make([]string, len(winners))
		for i, w := range winners {
			names[i] = w.Name
		}
		evs = append(evs, game.Log("%s wins %d with %s", strings.Join(names, ", "), tr.amount, winners[0].HandName))
	}
	for _, p := range t.roster {
		if p.Result == ResultNone {
			p.Result = ResultLost
		}
	}
	t.revealed = true
	return append(evs, t.finish()...)
}

// award splits amount between winners; odd chips go one at a time in seat
// order starting left of the button.
func (t *Table) award(amount int64, winners []*Player) {
	n := int64(len(winners))
	if n == 0 {
		return
	}
	seats := t.cfg.MaxSeats
	slices.SortFunc(winners, func(a, b *Player) int {
		return (a.Seat-t.button-1+seats)%seats - (b.Seat-t.button-1+seats)%seats
	})
	share, rem := amount/n, amount%n
	for i, w := range winners {
		got := share
		if int64(i) < rem {
			got++
		}
		w.Chips += got
		w.Payout += got
		switch {
		case n > 1 && w.Result != ResultWon:
			w.Result = ResultSplit
		case n == 1:
			w.Result = ResultWon
		}
	}
}

// finish records the hand's settlement and returns the table to Waiting.
func (t *Table) finish() []game.Event {
	var changes []game.BalanceChange
	for _, p := range t.roster {
		if net := p.Chips - p.startChips; net != 0 {
			changes = append(changes, game.BalanceChange{UserID: p.UserID, Amount: net})
		}
	}
	t.settlements = append(t.settlements, game.Settlement{
		TableID: t.id,
		HandID:  t.handID,
		Kind:    game.Poker,
		Changes: changes,
	})
	for i, p := range t.seats {
		if p == nil {
			continue
		}
		p.Ready = false
		if p.left {
			t.seats[i] = nil
		}
	}
	t.roster = nil
	t.pot, t.currentBet = 0, 0
	t.turn = -1
	t.stage = StageWaiting
	t.generation++
	return nil
}
