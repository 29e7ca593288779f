package poker

import (
	"fmt"
	"time"

	"cardtable/server/engine"
	"cardtable/server/game"
)

type Stage string

const (
	StageWaiting  Stage = "Waiting"
	StageReady    Stage = "Ready"
	StageDealing  Stage = "Dealing"
	StagePreFlop  Stage = "PreFlop"
	StageFlop     Stage = "Flop"
	StageTurn     Stage = "Turn"
	StageRiver    Stage = "River"
	StageShowdown Stage = "Showdown"
)

func (s Stage) betting() bool {
	switch s {
	case StagePreFlop, StageFlop, StageTurn, StageRiver:
		return true
	}
	return false
}

func (s Stage) idle() bool { return s == StageWaiting || s == StageReady }

type Config struct {
	MaxSeats   int
	MinBet     int64
	ReadyDelay time.Duration
	Deck       engine.DeckSource
	// OnAbort is told about consistency violations that aborted a hand.
	OnAbort func(err error)
}

func (c Config) withDefaults() Config {
	if c.MaxSeats <= 1 {
		c.MaxSeats = 6
	}
	if c.MinBet <= 0 {
		c.MinBet = 10
	}
	if c.ReadyDelay <= 0 {
		c.ReadyDelay = 5 * time.Second
	}
	if c.Deck == nil {
		c.Deck = engine.NewDeck
	}
	return c
}

type Result string

const (
	ResultNone   Result = ""
	ResultWon    Result = "won"
	ResultSplit  Result = "split"
	ResultLost   Result = "lost"
	ResultFolded Result = "folded"
)

type Player struct {
	UserID     string
	Name       string
	Seat       int
	Chips      int64
	CurrentBet int64 // this betting round
	TotalBet   int64 // this hand
	Hand       []engine.Card

	Ready     bool
	Folded    bool
	AllIn     bool
	InHand    bool
	Connected bool

	Result   Result
	Payout   int64
	HandName string

	acted      bool
	startChips int64
	left       bool // vacated mid-hand; the seat clears at finish
}

func (p *Player) canAct() bool { return p.InHand && !p.Folded && !p.AllIn }

func (p *Player) resetHand() {
	p.CurrentBet, p.TotalBet = 0, 0
	p.Hand = nil
	p.Folded, p.AllIn, p.InHand, p.acted = false, false, false, false
	p.Result, p.Payout, p.HandName = ResultNone, 0, ""
}

// Table is one poker table. All methods expect the caller to hold the
// table's exclusive lock.
type Table struct {
	id  string
	cfg Config

	seats  []*Player
	roster []*Player // dealt into the current hand, seat order

	deck       *engine.Deck
	community  []engine.Card
	pot        int64
	currentBet int64
	button     int // seat index, -1 before the first hand
	turn       int // roster index, -1 when nobody is to act
	actions    int
	stage      Stage
	generation uint64
	handID     string
	sidePots   []SidePot
	revealed   bool

	readyDeadline time.Time
	timer         *game.Timer
	settlements   []game.Settlement
}

var _ game.Engine = (*Table)(nil)

func New(id string, cfg Config) *Table {
	cfg = cfg.withDefaults()
	return &Table{
		id:     id,
		cfg:    cfg,
		seats:  make([]*Player, cfg.MaxSeats),
		button: -1,
		turn:   -1,
		stage:  StageWaiting,
	}
}

func (t *Table) Kind() game.Kind { return game.Poker }
func (t *Table) MaxSeats() int { return t.cfg.MaxSeats }
func (t *Table) MinBet() int64 { return t.cfg.MinBet }
func (t *Table) Stage() string { return string(t.stage) }
func (t *Table) Generation() uint64 { return t.generation }
func (t *Table) Community() []engine.Card { return t.community }
func (t *Table) Pot() int64 { return t.pot }
func (t *Table) CurrentBet() int64 { return t.currentBet }

func (t *Table) Seated() int {
	n := 0
	for _, p := range t.seats {
		if p != nil {
			n++
		}
	}
	return n
}

func (t *Table) player(userID string) *Player {
	for _, p := range t.seats {
		if p != nil && p.UserID == userID {
			return p
		}
	}
	return nil
}

// Player returns the seated player with userID, or nil.
func (t *Table) Player(userID string) *Player { return t.player(userID) }

func (t *Table) SeatOf(userID string) int {
	if p := t.player(userID); p != nil {
		return p.Seat
	}
	return -1
}

// Current returns the player whose turn it is, or nil.
func (t *Table) Current() *Player {
	if t.turn < 0 || t.turn >= len(t.roster) {
		return nil
	}
	return t.roster[t.turn]
}

func (t *Table) Seat(userID, name string, chips int64) (int, error) {
	if p := t.player(userID); p != nil {
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

// Vacate frees userID's seat. A player dealt into the running hand keeps
// the seat until the hand settles so their stake stays with the table.
func (t *Table) Vacate(userID string) []game.Event {
	p := t.player(userID)
	if p == nil || p.left {
		return nil
	}
	p.Connected = false
	if p.InHand && !t.stage.idle() {
		p.left = true
		return t.forceFold(p)
	}
	t.seats[p.Seat] = nil
	return t.forceFold(p)
}

func (t *Table) SetConnected(userID string, connected bool) []game.Event {
	p := t.player(userID)
	if p == nil || p.Connected == connected {
		return nil
	}
	p.Connected = connected
	if connected {
		p.left = false
		return []game.Event{game.Log("%s reconnected", p.Name)}
	}
	evs := []game.Event{game.Log("%s disconnected", p.Name)}
	return append(evs, t.forceFold(p)...)
}

// forceFold takes p out of play: un-readies it between hands, folds it
// during a betting round. All-in players keep their stake in the pot.
func (t *Table) forceFold(p *Player) []game.Event {
	if t.stage.idle() {
		if !p.Ready {
			return nil
		}
		p.Ready = false
		return t.checkReady()
	}
	if !t.stage.betting() || !p.canAct() {
		return nil
	}
	p.Folded = true
	evs := []game.Event{game.Log("%s folds", p.Name)}
	if cur := t.Current(); cur == p {
		return append(evs, t.advance()...)
	}
	if t.live() == 1 {
		return append(evs, t.foldWin()...)
	}
	return evs
}

func (t *Table) Handle(userID string, cmd game.Command) ([]game.Event, error) {
	p := t.player(userID)
	if p == nil || p.left {
		return nil, game.ErrNotSeated
	}
	switch cmd.Type {
	case game.CmdSetReady:
		return t.setReady(p, cmd.Ready)
	case game.CmdStartGame:
		return t.startGame(p)
	case game.CmdMakeMove:
		return t.move(p, Action(cmd.Action), cmd.Amount)
	}
	return nil, fmt.Errorf("%w: %s at a poker table", game.ErrInvalidAction, cmd.Type)
}

func (t *Table) setReady(p *Player, ready bool) ([]game.Event, error) {
	if !t.stage.idle() {
		return nil, game.ErrWrongStage
	}
	if ready && p.Chips <= 0 {
		return nil, game.ErrInsufficientChips
	}
	if p.Ready == ready {
		return nil, nil
	}
	p.Ready = ready
	word := "not ready"
	if ready {
		word = "ready"
	}
	evs := []game.Event{game.Log("%s is %s", p.Name, word)}
	return append(evs, t.checkReady()...), nil
}

func (t *Table) startGame(p *Player) ([]game.Event, error) {
	if !t.stage.idle() {
		return nil, game.ErrWrongStage
	}
	if !p.Ready && p.Chips > 0 {
		p.Ready = true
	}
	if t.readyCount() < 2 {
		evs := []game.Event{game.Log("%s wants to start, waiting for another player", p.Name)}
		return append(evs, t.checkReady()...), nil
	}
	return t.startHand(), nil
}

func (t *Table) readyCount() int {
	n := 0
	for _, p := range t.seats {
		if p != nil && p.Ready && p.Connected && p.Chips > 0 {
			n++
		}
	}
	return n
}

// checkReady arms or cancels the ready countdown.
func (t *Table) checkReady() []game.Event {
	n := t.readyCount()
	switch {
	case t.stage == StageWaiting && n >= 2:
		t.generation++
		t.stage = StageReady
		t.readyDeadline = time.Now().Add(t.cfg.ReadyDelay)
		t.timer = &game.Timer{Generation: t.generation, Delay: t.cfg.ReadyDelay}
		return []game.Event{game.Log("hand starts in %s", t.cfg.ReadyDelay)}
	case t.stage == StageReady && n < 2:
		t.generation++
		t.stage = StageWaiting
		t.timer = nil
		return []game.Event{game.Log("countdown cancelled")}
	}
	return nil
}

func (t *Table) OnTimer(generation uint64) []game.Event {
	if generation != t.generation || t.stage != StageReady {
		return nil
	}
	if t.readyCount() < 2 {
		return t.checkReady()
	}
	return t.startHand()
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

// abort refunds everything committed to the hand and returns to Waiting.
func (t *Table) abort(err error) []game.Event {
	if t.cfg.OnAbort != nil {
		t.cfg.OnAbort(err)
	}
	for _, p := range t.roster {
		p.Chips = p.startChips
		p.resetHand()
	}
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
	t.community = nil
	t.pot, t.currentBet = 0, 0
	t.sidePots = nil
	t.turn = -1
	t.stage = StageWaiting
	t.generation++
	t.timer = nil
	return []game.Event{game.Log("hand aborted, bets returned")}
}
