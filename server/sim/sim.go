// Package sim seats bots at local tables and plays them through the
// registry, the same path a websocket client takes.
package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cardtable/server/blackjack"
	"cardtable/server/engine"
	"cardtable/server/game"
	"cardtable/server/poker"
	"cardtable/server/table"
)

// queue runs timers on demand so a simulation never sleeps.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) after(_ time.Duration, f func()) {
	q.mu.Lock()
	q.fns = append(q.fns, f)
	q.mu.Unlock()
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		fns := q.fns
		q.fns = nil
		q.mu.Unlock()
		if len(fns) == 0 {
			return
		}
		for _, f := range fns {
			f()
		}
	}
}

type sink struct{ n atomic.Int64 }

func (s *sink) Deliver(string, game.Event) { s.n.Add(1) }

type Runner struct {
	reg    *table.Registry
	wallet table.Wallet
	q      *queue
	out    *sink
	log    *zap.Logger
	rng    *rand.Rand
}

type Line struct {
	Player string
	Start  int64
	End    int64
	Stats  BotStats
}

type Summary struct {
	Kind   game.Kind
	Table  string
	Hands  int
	Unit   int64 // table minimum bet
	Events int64
	Lines  []Line
}

func (s *Summary) line(user string) *Line {
	for i := range s.Lines {
		if s.Lines[i].Player == user {
			return &s.Lines[i]
		}
	}
	return nil
}

func New(cfg table.Config, wallet table.Wallet, log *zap.Logger, seed uint64) *Runner {
	q, out := &queue{}, &sink{}
	cfg.AfterFunc = q.after
	return &Runner{
		reg:    table.NewRegistry(cfg, wallet, out, log),
		wallet: wallet,
		q:      q,
		out:    out,
		log:    log,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func conn(user string) string { return "sim-" + user }

func (r *Runner) seat(ctx context.Context, kind game.Kind, tableID string, bots int) ([]Line, error) {
	lines := make([]Line, 0, bots)
	for i := 1; i <= bots; i++ {
		user := fmt.Sprintf("bot-%d", i)
		start, err := r.wallet.Balance(ctx, user)
		if err != nil {
			return nil, err
		}
		if _, err := r.reg.Join(ctx, kind, tableID, user, fmt.Sprintf("Bot %d", i), conn(user)); err != nil {
			return nil, fmt.Errorf("seat %s: %w", user, err)
		}
		lines = append(lines, Line{Player: user, Start: start})
	}
	return lines, nil
}

func (r *Runner) finish(ctx context.Context, s *Summary) error {
	for _, l := range s.Lines {
		r.reg.Leave(s.Table, conn(l.Player))
	}
	r.q.drain()
	r.reg.Flush(ctx)
	for i, l := range s.Lines {
		end, err := r.wallet.Balance(ctx, l.Player)
		if err != nil {
			return err
		}
		s.Lines[i].End = end
	}
	s.Events = r.out.n.Load()
	return nil
}

// Poker plays up to hands hands with bots players, stopping early once
// fewer than two bots have chips.
func (r *Runner) Poker(ctx context.Context, tableID string, bots, hands int) (Summary, error) {
	s := Summary{Kind: game.Poker, Table: tableID}
	lines, err := r.seat(ctx, game.Poker, tableID, bots)
	if err != nil {
		return s, err
	}
	s.Lines = lines

	last := ""
	for h := 0; h < hands; h++ {
		for _, l := range lines {
			// busted bots cannot ready up
			_ = r.reg.Act(tableID, conn(l.Player), game.Command{Type: game.CmdSetReady, Ready: true})
		}
		r.q.drain()
		v, err := r.pokerView(tableID)
		if err != nil {
			return s, err
		}
		// no new hand id means fewer than two bots could ready up
		if v.HandID == "" || v.HandID == last {
			break
		}
		last = v.HandID
		s.Unit = v.MinBet
		start := make(map[string]int64, len(v.Players))
		for _, p := range v.Players {
			if p.InHand {
				start[p.UserID] = p.Chips
			}
		}
		for step := 0; step < 500; step++ {
			v, err = r.pokerView(tableID)
			if err != nil {
				return s, err
			}
			if v.CurrentSeat == nil {
				break
			}
			me := seatOf(v.Players, *v.CurrentSeat)
			cmd := r.pokerMove(v, me)
			st := &s.line(me.UserID).Stats
			switch poker.Action(cmd.Action) {
			case poker.Call:
				st.Calls++
			case poker.Raise:
				st.Aggr++
			}
			if v.Stage == poker.StagePreFlop && (cmd.Action == string(poker.Call) || cmd.Action == string(poker.Raise)) {
				st.vpipHand = true
			}
			if err := r.reg.Act(tableID, conn(me.UserID), cmd); err != nil {
				r.log.Debug("bot move rejected, folding", zap.String("bot", me.UserID), zap.Error(err))
				fold := game.Command{Type: game.CmdMakeMove, Action: string(poker.Fold)}
				if err := r.reg.Act(tableID, conn(me.UserID), fold); err != nil {
					return s, err
				}
			}
		}
		v, err = r.pokerView(tableID)
		if err != nil {
			return s, err
		}
		for _, p := range v.Players {
			from, ok := start[p.UserID]
			if l := s.line(p.UserID); ok && l != nil {
				l.Stats.endHand(p.Chips-from, p.Result == poker.ResultWon, p.Result == poker.ResultSplit)
			}
		}
		s.Hands++
	}
	return s, r.finish(ctx, &s)
}

func (r *Runner) pokerView(tableID string) (poker.Snapshot, error) {
	snap, err := r.reg.Snapshot(tableID, "")
	if err != nil {
		return poker.Snapshot{}, err
	}
	v := snap.(poker.Snapshot)
	// bots read their own cards from their own view
	if v.CurrentSeat != nil {
		me := seatOf(v.Players, *v.CurrentSeat)
		own, err := r.reg.Snapshot(tableID, me.UserID)
		if err != nil {
			return poker.Snapshot{}, err
		}
		v = own.(poker.Snapshot)
	}
	return v, nil
}

func seatOf(players []poker.PlayerView, seat int) poker.PlayerView {
	for _, p := range players {
		if p.Seat == seat {
			return p
		}
	}
	return poker.PlayerView{}
}

// pokerMove is a loose-passive bot that raises some strong hands.
func (r *Runner) pokerMove(v poker.Snapshot, me poker.PlayerView) game.Command {
	toCall := v.CurrentBet - me.CurrentBet
	strong := false
	switch {
	case len(v.Community) >= 3:
		cards := append(append([]engine.Card{}, me.Hand...), v.Community...)
		if hr, err := engine.Evaluate(cards); err == nil {
			strong = hr.Category >= engine.OnePair
		}
	case len(me.Hand) == 2:
		strong = me.Hand[0].Rank == me.Hand[1].Rank || max(me.Hand[0].Rank, me.Hand[1].Rank) >= engine.Queen
	}
	move := func(a poker.Action, amount int64) game.Command {
		return game.Command{Type: game.CmdMakeMove, Action: string(a), Amount: amount}
	}
	switch {
	case strong && r.rng.IntN(100) < 40 && me.Chips > toCall+v.MinBet:
		return move(poker.Raise, v.MinBet)
	case toCall == 0:
		return move(poker.Check, 0)
	case !strong && toCall*2 > me.Chips:
		return move(poker.Fold, 0)
	}
	return move(poker.Call, 0)
}

// Blackjack plays rounds with every bot betting the table minimum.
func (r *Runner) Blackjack(ctx context.Context, tableID string, bots, rounds int) (Summary, error) {
	s := Summary{Kind: game.Blackjack, Table: tableID}
	lines, err := r.seat(ctx, game.Blackjack, tableID, bots)
	if err != nil {
		return s, err
	}
	s.Lines = lines

	for round := 0; round < rounds; round++ {
		v, err := r.blackjackView(tableID)
		if err != nil {
			return s, err
		}
		s.Unit = v.MinBet
		placed := 0
		for _, p := range v.Players {
			if p.Chips >= v.MinBet && r.reg.Act(tableID, conn(p.UserID), game.Command{Type: game.CmdPlaceBet, Amount: v.MinBet}) == nil {
				placed++
			}
		}
		if placed == 0 {
			break
		}
		r.q.drain()
		for step := 0; step < 200; step++ {
			v, err = r.blackjackView(tableID)
			if err != nil {
				return s, err
			}
			if v.CurrentSeat == nil {
				break
			}
			var me blackjack.PlayerView
			for _, p := range v.Players {
				if p.Seat == *v.CurrentSeat {
					me = p
				}
			}
			cmd := game.Command{Type: game.CmdStand}
			switch {
			case len(me.Hand) == 2 && (me.Score == 10 || me.Score == 11) && me.Chips >= me.Bet:
				cmd.Type = game.CmdDouble
				s.line(me.UserID).Stats.Aggr++
			case me.Score < 17:
				cmd.Type = game.CmdHit
			}
			if err := r.reg.Act(tableID, conn(me.UserID), cmd); err != nil {
				return s, fmt.Errorf("%s %s: %w", me.UserID, cmd.Type, err)
			}
		}
		v, err = r.blackjackView(tableID)
		if err != nil {
			return s, err
		}
		for _, p := range v.Players {
			l := s.line(p.UserID)
			if l == nil || p.Payout == nil {
				continue
			}
			won := p.Result == blackjack.ResultWin || p.Result == blackjack.ResultBlackjack
			l.Stats.endHand(*p.Payout, won, p.Result == blackjack.ResultPush)
		}
		s.Hands++
	}
	return s, r.finish(ctx, &s)
}

func (r *Runner) blackjackView(tableID string) (blackjack.Snapshot, error) {
	snap, err := r.reg.Snapshot(tableID, "")
	if err != nil {
		return blackjack.Snapshot{}, err
	}
	return snap.(blackjack.Snapshot), nil
}
