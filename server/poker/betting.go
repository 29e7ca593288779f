package poker

import (
	"fmt"

	"github.com/google/uuid"

	"cardtable/server/engine"
	"cardtable/server/game"
)

type Action string

const (
	Fold  Action = "fold"
	Check Action = "check"
	Call  Action = "call"
	Raise Action = "raise"
)

func (t *Table) startHand() []game.Event {
	deck, err := t.cfg.Deck()
	if err != nil {
		return t.abort(err)
	}
	t.generation++
	t.timer = nil
	t.stage = StageDealing
	t.handID = uuid.NewString()
	t.deck = deck
	t.community = nil
	t.pot, t.currentBet, t.actions = 0, 0, 0
	t.sidePots = nil
	t.revealed = false

	t.roster = t.roster[:0:0]
	for _, p := range t.seats {
		if p == nil {
			continue
		}
		eligible := p.Ready && p.Connected && p.Chips > 0
		p.resetHand()
		if eligible {
			p.InHand = true
			p.startChips = p.Chips
			t.roster = append(t.roster, p)
		}
	}
	if len(t.roster) < 2 {
		return t.abort(fmt.Errorf("only %d eligible players at deal", len(t.roster)))
	}
	t.button = t.nextButton()

	for _, p := range t.roster {
		cards, err := t.deck.Deal(2)
		if err != nil {
			return t.abort(err)
		}
		p.Hand = cards
	}
	t.stage = StagePreFlop
	t.turn = t.nextActor(t.buttonPos())
	return []game.Event{game.Log("new hand, %d players, %s has the button", len(t.roster), t.seats[t.button].Name)}
}

// nextButton moves the dealer button to the next dealt-in seat.
func (t *Table) nextButton() int {
	for _, p := range t.roster {
		if p.Seat > t.button {
			return p.Seat
		}
	}
	return t.roster[0].Seat
}

func (t *Table) buttonPos() int {
	for i, p := range t.roster {
		if p.Seat == t.button {
			return i
		}
	}
	return len(t.roster) - 1
}

// nextActor returns the roster index of the first player after from who
// still owes an action, or -1.
func (t *Table) nextActor(from int) int {
	n := len(t.roster)
	for i := 1; i <= n; i++ {
		j := (from + i) % n
		if p := t.roster[j]; p.canAct() && (!p.acted || p.CurrentBet < t.currentBet) {
			return j
		}
	}
	return -1
}

func (t *Table) live() int {
	n := 0
	for _, p := range t.roster {
		if !p.Folded {
			n++
		}
	}
	return n
}

func (t *Table) actors() int {
	n := 0
	for _, p := range t.roster {
		if p.canAct() {
			n++
		}
	}
	return n
}

// roundDone is true once every player who can act has acted since the
// last raise and matched the current bet.
func (t *Table) roundDone() bool {
	for _, p := range t.roster {
		if p.canAct() && (!p.acted || p.CurrentBet < t.currentBet) {
			return false
		}
	}
	return true
}

func (t *Table) put(p *Player, amount int64) {
	p.Chips -= amount
	p.CurrentBet += amount
	p.TotalBet += amount
	t.pot += amount
	if p.Chips == 0 {
		p.AllIn = true
	}
}

func (t *Table) move(p *Player, a Action, amount int64) ([]game.Event, error) {
	if !t.stage.betting() {
		return nil, game.ErrWrongStage
	}
	if t.Current() != p {
		return nil, game.ErrNotYourTurn
	}
	toCall := t.currentBet - p.CurrentBet
	var msg string
	switch a {
	case Fold:
		p.Folded = true
		msg = fmt.Sprintf("%s folds", p.Name)
	case Check:
		if toCall > 0 {
			return nil, fmt.Errorf("%w: cannot check facing %d", game.ErrInvalidAction, toCall)
		}
		msg = fmt.Sprintf("%s checks", p.Name)
	case Call:
		if toCall == 0 {
			msg = fmt.Sprintf("%s checks", p.Name)
			break
		}
		amt := min(toCall, p.Chips)
		t.put(p, amt)
		msg = fmt.Sprintf("%s calls %d", p.Name, amt)
	case Raise:
		if amount <= 0 {
			return nil, game.ErrInvalidAmount
		}
		need := toCall + amount
		if need > p.Chips {
			return nil, fmt.Errorf("%w: need %d, have %d", game.ErrInsufficientChips, need, p.Chips)
		}
		if amount < t.cfg.MinBet && need != p.Chips {
			return nil, fmt.Errorf("%w: raise %d below minimum %d", game.ErrInvalidAmount, amount, t.cfg.MinBet)
		}
		// a short all-in raise does not reopen betting for those who acted
		if p.acted {
			return nil, fmt.Errorf("%w: betting was not reopened", game.ErrInvalidAction)
		}
		t.put(p, need)
		t.currentBet = p.CurrentBet
		if amount >= t.cfg.MinBet {
			for _, o := range t.roster {
				if o != p {
					o.acted = false
				}
			}
		}
		msg = fmt.Sprintf("%s raises to %d", p.Name, t.currentBet)
	default:
		return nil, fmt.Errorf("%w: %q", game.ErrInvalidAction, a)
	}
	if p.AllIn {
		msg += " (all-in)"
	}
	p.acted = true
	t.actions++
	evs := []game.Event{game.Log("%s", msg)}
	return append(evs, t.advance()...), nil
}

// advance moves the turn on after the current player is done.
func (t *Table) advance() []game.Event {
	if t.live() == 1 {
		return t.foldWin()
	}
	if !t.roundDone() {
		t.turn = t.nextActor(t.turn)
		return nil
	}
	return t.nextStreet()
}

// nextStreet closes the betting round and deals community cards. When fewer
// than two players can still bet the board is run out to showdown.
func (t *Table) nextStreet() []game.Event {
	var evs []game.Event
	for {
		for _, p := range t.roster {
			p.CurrentBet = 0
			p.acted = false
		}
		t.currentBet, t.actions = 0, 0

		var n int
		var next Stage
		switch t.stage {
		case StagePreFlop:
			n, next = 3, StageFlop
		case StageFlop:
			n, next = 1, StageTurn
		case StageTurn:
			n, next = 1, StageRiver
		default:
			return append(evs, t.showdown()...)
		}
		cards, err := t.deck.Deal(n)
		if err != nil {
			return t.abort(err)
		}
		t.community = append(t.community, cards...)
		if err := engine.CheckDistinct(t.dealt()...); err != nil {
			return t.abort(err)
		}
		t.stage = next
		evs = append(evs, game.Log("%s: %v", next, cards))
		if t.actors() >= 2 {
			t.turn = t.nextActor(t.buttonPos())
			return evs
		}
		t.turn = -1
	}
}

// dealt returns every card out of the deck this hand.
func (t *Table) dealt() [][]engine.Card {
	out := make([][]engine.Card, 0, len(t.roster)+1)
	for _, p := range t.roster {
		out = append(out, p.Hand)
	}
	return append(out, t.community)
}
