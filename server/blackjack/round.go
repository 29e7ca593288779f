package blackjack

import (
	"fmt"

	"github.com/google/uuid"

	"cardtable/server/engine"
	"cardtable/server/game"
)

func (t *Table) deal() []game.Event {
	deck, err := t.cfg.Deck()
	if err != nil {
		return t.abort(err)
	}
	t.generation++
	t.timer = nil
	t.stage = StageDealing
	t.handID = uuid.NewString()
	t.deck = deck
	t.dealer = Dealer{}

	t.roster = t.roster[:0:0]
	for _, p := range t.seats {
		if p == nil {
			continue
		}
		bet := p.Bet
		p.resetRound()
		if bet == 0 {
			continue
		}
		p.Bet = bet
		p.InRound = true
		p.startChips = p.Chips + bet
		t.roster = append(t.roster, p)
	}

	for _, p := range t.roster {
		cards, err := t.deck.Deal(2)
		if err != nil {
			return t.abort(err)
		}
		p.draw(cards[0])
		p.draw(cards[1])
		p.Blackjack = isBlackjack(p.Hand)
		if !p.Connected {
			p.Stood = true
		}
	}
	cards, err := t.deck.Deal(2)
	if err != nil {
		return t.abort(err)
	}
	t.dealer.Hand = cards
	t.dealer.Score, _ = Score(cards)
	t.dealer.Blackjack = isBlackjack(cards)
	if err := engine.CheckDistinct(t.dealt()...); err != nil {
		return t.abort(err)
	}

	evs := []game.Event{game.Log("dealing %d hands", len(t.roster))}
	for _, p := range t.roster {
		if p.Blackjack {
			evs = append(evs, game.Log("%s has blackjack", p.Name))
		}
	}
	t.stage = StagePlayerTurns
	t.turn = -1
	return append(evs, t.advance()...)
}

func (t *Table) dealt() [][]engine.Card {
	out := make([][]engine.Card, 0, len(t.roster)+1)
	for _, p := range t.roster {
		out = append(out, p.Hand)
	}
	return append(out, t.dealer.Hand)
}

func (t *Table) play(p *Player, cmd game.CommandType) ([]game.Event, error) {
	if t.stage != StagePlayerTurns {
		return nil, game.ErrWrongStage
	}
	if t.Current() != p {
		return nil, game.ErrNotYourTurn
	}
	var msg string
	switch cmd {
	case game.CmdHit:
		c, err := t.deck.DealOne()
		if err != nil {
			return t.abort(err), nil
		}
		p.draw(c)
		msg = fmt.Sprintf("%s hits: %s (%d)", p.Name, c, p.Score)
		if p.Score == 21 {
			p.Stood = true
		}
	case game.CmdStand:
		p.Stood = true
		msg = fmt.Sprintf("%s stands on %d", p.Name, p.Score)
	case game.CmdDouble:
		if p.decided || len(p.Hand) != 2 {
			return nil, fmt.Errorf("%w: double only as the first decision", game.ErrInvalidAction)
		}
		if p.Chips < p.Bet {
			return nil, game.ErrInsufficientChips
		}
		c, err := t.deck.DealOne()
		if err != nil {
			return t.abort(err), nil
		}
		p.Chips -= p.Bet
		p.Bet *= 2
		p.Doubled = true
		p.draw(c)
		p.Stood = !p.Busted
		msg = fmt.Sprintf("%s doubles to %d: %s (%d)", p.Name, p.Bet, c, p.Score)
	default:
		return nil, game.ErrInvalidAction
	}
	p.decided = true
	if p.Busted {
		msg += ", bust"
	}
	evs := []game.Event{game.Log("%s", msg)}
	return append(evs, t.advance()...), nil
}

// advance hands the turn to the next seat still to act, or to the dealer.
func (t *Table) advance() []game.Event {
	if cur := t.Current(); cur != nil && !cur.done() {
		return nil
	}
	for _, p := range t.roster {
		if p.Seat > t.turn && !p.done() {
			t.turn = p.Seat
			return nil
		}
	}
	t.turn = -1
	return t.dealerTurn()
}

func (t *Table) dealerTurn() []game.Event {
	t.stage = StageDealerTurn
	for dealerShouldHit(t.dealer.Hand) {
		c, err := t.deck.DealOne()
		if err != nil {
			return t.abort(err)
		}
		t.dealer.Hand = append(t.dealer.Hand, c)
	}
	t.dealer.Score, _ = Score(t.dealer.Hand)
	t.dealer.Busted = t.dealer.Score > 21
	msg := fmt.Sprintf("dealer stands on %d", t.dealer.Score)
	if t.dealer.Busted {
		msg = fmt.Sprintf("dealer busts with %d", t.dealer.Score)
	}
	evs := []game.Event{game.Log("%s", msg)}
	return append(evs, t.showdown()...)
}

func (t *Table) showdown() []game.Event {
	t.stage = StageShowdown
	d := t.dealer
	var evs []game.Event
	for _, p := range t.roster {
		switch {
		case p.Busted:
			p.Result, p.Payout = ResultBust, -p.Bet
		case p.Blackjack && !d.Blackjack:
			p.Result, p.Payout = ResultBlackjack, p.Bet*3/2
		case d.Blackjack && !p.Blackjack:
			p.Result, p.Payout = ResultLose, -p.Bet
		case d.Busted || p.Score > d.Score:
			p.Result, p.Payout = ResultWin, p.Bet
		case p.Score == d.Score:
			p.Result, p.Payout = ResultPush, 0
		default:
			p.Result, p.Payout = ResultLose, -p.Bet
		}
		if p.Payout >= 0 {
			p.Chips += p.Bet + p.Payout
		}
		evs = append(evs, game.Log("%s: %s (%+d)", p.Name, p.Result, p.Payout))
	}
	return append(evs, t.finish()...)
}

// finish records the settlement. Bets are cleared so the next betting
// window starts fresh; results stay visible until the next deal.
func (t *Table) finish() []game.Event {
	var changes []game.BalanceChange
	for _, p := range t.roster {
		p.Bet = 0
		if net := p.Chips - p.startChips; net != 0 {
			changes = append(changes, game.BalanceChange{UserID: p.UserID, Amount: net})
		}
	}
	t.settlements = append(t.settlements, game.Settlement{
		TableID: t.id,
		HandID:  t.handID,
		Kind:    game.Blackjack,
		Changes: changes,
	})
	for i, p := range t.seats {
		if p != nil && p.left {
			t.seats[i] = nil
		}
	}
	t.roster = nil
	t.stage = StageWaiting
	t.turn = -1
	t.generation++
	return nil
}
