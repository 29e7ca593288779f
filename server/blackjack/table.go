package blackjack

import (
	"fmt"
	"time"

	"cardtable/server/engine"
	"cardtable/server/game"
)

type Stage string

const (
	StageWaiting     Stage = "Waiting"
	StageBetting     Stage = "Betting"
	StageDealing     Stage = "Dealing"
	StagePlayerTurns Stage = "PlayerTurns"
	StageDealerTurn  Stage = "DealerTurn"
	StageShowdown    Stage = "Showdown"
)

const MaxSeats = 5

type Config struct {
	MinBet       int64
	BettingDelay time.Duration
	Deck         engine.DeckSource
	OnAbort      func(err error)
}

func (c Config) withDefaults() Config {
	if c.MinBet <= 0 {
		c.MinBet = 10
	}
	if c.BettingDelay <= 0 {
		c.BettingDelay = 10 * time.Second
	}
	if c.Deck == nil {
		c.Deck = engine.NewDeck
	}
	return c
}

type Result string

const (
	ResultNone      Result = ""
	ResultWin       Result = "win"
	ResultBlackjack Result = "blackjack"
	ResultPush      Result = "push"
	ResultLose      Result = "lose"
	ResultBust      Result = "bust"
)

type Player struct {
	UserID    string
	Name      string
	Seat      int
	Chips     int64
	Bet       int64
	Hand      []engine.Card
	Score     int
	Stood     bool
	Busted    bool
	Blackjack bool
	Doubled   bool
	InRound   bool
	Connected bool

	Result Result
	// Payout is the net result of the round: +bet on a win, +3/2 bet on a
	// blackjack rounded down to whole chips, 0 on a push, -bet on a loss.
	Payout int64

	decided    bool
	startChips int64
	left       bool // vacated mid-round; the seat clears at finish
}

func (p *Player) done() bool { return p.Stood || p.Busted || p.Blackjack }

func (p *Player) draw(c engine.Card) {
	p.Hand = append(p.Hand, c)
	p.Score, _ = Score(p.Hand)
	if p.Score > 21 {
		p.Busted = true
	}
}

func (p *Player) resetRound() {
	p.Bet = 0
	p.Hand = nil
	p.Score = 0
	p.Stood, p.Busted, p.Blackjack, p.Doubled, p.InRound, p.decided = false, false, false, false, false, false
	p.Result, p.Payout = ResultNone, 0
}

type Dealer struct {
	Hand      []engine.Card
	Score     int
	Busted    bool
	Blackjack bool
}

// Table is one blackjack table. Callers hold the table lock.
type Table struct {
	id  string
	cfg Config

	seats  [MaxSeats]*Player
	dealer Dealer
	deck   *engine.Deck

	stage      Stage
	turn       int // seat index, -1 when nobody is to act
	generation uint64
	handID     string
	roster     []*Player

	bettingDeadline time.Time
	timer           *game.Timer
	settlements     []game.Settlement
}

var _ game.Engine = (*Table)(nil)

func New(id string, cfg Config) *Table {
	return &Table{id: id, cfg: cfg.withDefaults(), stage: StageWaiting, turn: -1}
}

func (t *Table) Kind() game.Kind { return game.Blackjack }
func (t *Table) MaxSeats() int   { return MaxSeats }
func (t *Table) MinBet() int64   { return t.cfg.MinBet }
func (t *Table) Stage() string   { return string(t.stage) }
func (t *Table) Dealer() Dealer  { return t.dealer }

func (t *Table) Seated() int {
	n := 0
	for _, p := range t.seats {
		if p != nil {
			n++
		}
	}
	return n
}

func (t *Table) Player(userID string) *Player {
	for _, p := range t.seats {
		if p != nil && p.UserID == userID {
			return p
		}
	}
	return nil
}

func (t *Table) SeatOf(userID string) int {
	if p := t.Player(userID); p != nil {
		return p.Seat
	}
	return -1
}

// Current returns the player whose turn it is, or nil.
func (t *Table) Current() *Player {
	if t.turn < 0 || t.stage != StagePlayerTurns {
		return nil
	}
	return t.seats[t.turn]
}

func (t *Table) Seat(userID, name string, chips int64) (int, error) {
	if p := t.Player(userID); p != nil {
		return p.Seat, nil
	}
	for i, p := range t.seats {
		if p == nil {
			t.seats[i] = &Player{UserID: userID, Name: name, Seat: i, Chips: chips, Connected: true}
			return i, nil
		}
	}
	return -1, game.ErrTableFull
}

// Vacate frees userID's seat. A player with a dealt hand keeps the seat
// until the round settles so their bet stays with the table.
func (t *Table) Vacate(userID string) []game.Event {
	p := t.Player(userID)
	if p == nil || p.left {
		return nil
	}
	p.Connected = false
	if p.InRound && t.stage != StageBetting && t.stage != StageWaiting {
		p.left = true
		return t.forceStand(p)
	}
	evs := t.forceStand(p)
	t.seats[p.Seat] = nil
	if t.stage == StageBetting || t.stage == StageWaiting {
		evs = append(evs, t.checkBets()...)
	}
	return evs
}

func (t *Table) SetConnected(userID string, connected bool) []game.Event {
	p := t.Player(userID)
	if p == nil || p.Connected == connected {
		return nil
	}
	p.Connected = connected
	if connected {
		p.left = false
		return []game.Event{game.Log("%s reconnected", p.Name)}
	}
	evs := []game.Event{game.Log("%s disconnected", p.Name)}
	evs = append(evs, t.forceStand(p)...)
	if t.stage == StageBetting || t.stage == StageWaiting {
		evs = append(evs, t.checkBets()...)
	}
	return evs
}

// forceStand takes p out of play. An unplayed bet is returned; a dealt hand
// stands and is settled with everyone else.
func (t *Table) forceStand(p *Player) []game.Event {
	switch t.stage {
	case StageWaiting, StageBetting:
		if p.Bet > 0 && !p.Connected {
			p.Chips += p.Bet
			p.Bet = 0
			return []game.Event{game.Log("%s's bet returned", p.Name)}
		}
	case StagePlayerTurns:
		if p.InRound && !p.done() {
			p.Stood = true
			evs := []game.Event{game.Log("%s stands", p.Name)}
			if t.turn == p.Seat {
				return append(evs, t.advance()...)
			}
			return evs
		}
	}
	return nil
}

func (t *Table) Handle(userID string, cmd game.Command) ([]game.Event, error) {
	p := t.Player(userID)
	if p == nil {
		return nil, game.ErrNotSeated
	}
	if p.left {
		return nil, game.ErrNotSeated
	}
	switch cmd.Type {
	case game.CmdPlaceBet:
		return t.placeBet(p, cmd.Amount)
	case game.CmdStartRound:
		return t.startRound()
	case game.CmdHit, game.CmdStand, game.CmdDouble:
		return t.play(p, cmd.Type)
	}
	return nil, fmt.Errorf("%w: %s at a blackjack table", game.ErrInvalidAction, cmd.Type)
}

func (t *Table) placeBet(p *Player, amount int64) ([]game.Event, error) {
	if t.stage != StageWaiting && t.stage != StageBetting {
		return nil, game.ErrWrongStage
	}
	if p.Bet > 0 {
		return nil, fmt.Errorf("%w: bet already placed", game.ErrInvalidAction)
	}
	if amount < t.cfg.MinBet {
		return nil, fmt.Errorf("%w: minimum bet is %d", game.ErrInvalidAmount, t.cfg.MinBet)
	}
	if amount > p.Chips {
		return nil, game.ErrInsufficientChips
	}
	p.Chips -= amount
	p.Bet = amount
	evs := []game.Event{game.Log("%s bets %d", p.Name, amount)}
	return append(evs, t.checkBets()...), nil
}

func (t *Table) bettors() (bet, waiting int) {
	for _, p := range t.seats {
		switch {
		case p == nil:
		case p.Bet > 0:
			bet++
		case p.Connected && p.Chips >= t.cfg.MinBet:
			waiting++
		}
	}
	return bet, waiting
}

// checkBets opens, closes or cancels the betting window.
func (t *Table) checkBets() []game.Event {
	bet, waiting := t.bettors()
	switch {
	case bet > 0 && waiting == 0:
		return t.deal()
	case t.stage == StageWaiting && bet > 0:
		t.generation++
		t.stage = StageBetting
		t.bettingDeadline = time.Now().Add(t.cfg.BettingDelay)
		t.timer = &game.Timer{Generation: t.generation, Delay: t.cfg.BettingDelay}
		return []game.Event{game.Log("betting closes in %s", t.cfg.BettingDelay)}
	case t.stage == StageBetting && bet == 0:
		t.generation++
		t.stage = StageWaiting
		t.timer = nil
		return []game.Event{game.Log("betting cancelled")}
	}
	return nil
}

func (t *Table) startRound() ([]game.Event, error) {
	if t.stage != StageWaiting && t.stage != StageBetting {
		return nil, game.ErrWrongStage
	}
	if bet, _ := t.bettors(); bet == 0 {
		return nil, fmt.Errorf("%w: no bets placed", game.ErrWrongStage)
	}
	return t.deal(), nil
}

func (t *Table) OnTimer(generation uint64) []game.Event {
	if generation != t.generation || t.stage != StageBetting {
		return nil
	}
	return t.deal()
}

func (t *Table) TakeTimer() (game.Timer, bool) {
	if t.timer == nil {
		return game.Timer{}, false
	}
	tm := *t.timer
	t.timer = nil
	return tm, true
}

func (t *Table) TakeSettlements() []game.Settlement {
	out := t.settlements
	t.settlements = nil
	return out
}

func (t *Table) abort(err error) []game.Event {
	if t.cfg.OnAbort != nil {
		t.cfg.OnAbort(err)
	}
	for _, p := range t.roster {
		p.Chips = p.startChips
		p.resetRound()
	}
	for i, p := range t.seats {
		if p == nil {
			continue
		}
		p.Chips += p.Bet
		p.resetRound()
		if p.left {
			t.seats[i] = nil
		}
	}
	t.roster = nil
	t.dealer = Dealer{}
	t.turn = -1
	t.stage = StageWaiting
	t.generation++
	t.timer = nil
	return []game.Event{game.Log("round aborted, bets returned")}
}
