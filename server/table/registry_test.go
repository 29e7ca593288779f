package table

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"cardtable/server/blackjack"
	"cardtable/server/engine"
	"cardtable/server/game"
	"cardtable/server/poker"
)

type recorder struct {
	mu  sync.Mutex
	got map[string][]game.Event
}

func (r *recorder) Deliver(connID string, ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.got == nil {
		r.got = make(map[string][]game.Event)
	}
	r.got[connID] = append(r.got[connID], ev)
}

func (r *recorder) count(connID string, kind game.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.got[connID] {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type wallet struct {
	mu      sync.Mutex
	fail    bool
	balance map[string]int64
	applied map[string]int
}

func newWallet() *wallet {
	return &wallet{balance: map[string]int64{}, applied: map[string]int{}}
}

func (w *wallet) Balance(_ context.Context, userID string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.balance[userID]; !ok {
		w.balance[userID] = 1000
	}
	return w.balance[userID], nil
}

func (w *wallet) Settle(_ context.Context, s game.Settlement) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("wallet down")
	}
	key := s.TableID + "/" + s.HandID
	if w.applied[key] > 0 {
		return nil
	}
	w.applied[key]++
	for _, ch := range s.Changes {
		w.balance[ch.UserID] += ch.Amount
	}
	return nil
}

type clock struct {
	mu  sync.Mutex
	fns []func()
}

func (c *clock) AfterFunc(_ time.Duration, f func()) {
	c.mu.Lock()
	c.fns = append(c.fns, f)
	c.mu.Unlock()
}

// fire runs every timer scheduled so far.
func (c *clock) fire() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type fixture struct {
	reg   *Registry
	out   *recorder
	w     *wallet
	clock *clock
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{out: &recorder{}, w: newWallet(), clock: &clock{}}
	cfg := Config{
		Poker:          poker.Config{MaxSeats: 6, MinBet: 10},
		Blackjack:      blackjack.Config{MinBet: 10},
		ReconnectGrace: 30 * time.Second,
		AfterFunc:      f.clock.AfterFunc,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.reg = NewRegistry(cfg, f.w, f.out, zaptest.NewLogger(t))
	return f
}

func (f *fixture) join(t *testing.T, kind game.Kind, table, user, conn string) int {
	t.Helper()
	seat, err := f.reg.Join(context.Background(), kind, table, user, "", conn)
	if err != nil {
		t.Fatalf("join %s: %v", user, err)
	}
	return seat
}

func TestJoinCreatesTableAndLeaveReapsIt(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, game.Poker, "p1", "a", "c1")
	tables := f.reg.GetTables()
	if len(tables) != 1 || tables[0].Seated != 1 || tables[0].MinBet != 10 {
		t.Fatalf("lobby = %+v", tables)
	}
	if f.out.count("c1", game.EventTableState) == 0 {
		t.Fatalf("no snapshot sent after join")
	}
	f.reg.Leave("p1", "c1")
	if n := len(f.reg.GetTables()); n != 0 {
		t.Fatalf("empty table not reaped, %d left", n)
	}
}

func TestLeaveTwiceIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, game.Poker, "p1", "a", "c1")
	f.join(t, game.Poker, "p1", "b", "c2")

	f.reg.Leave("p1", "c1")
	f.reg.Leave("p1", "c1")

	if n := f.out.count("c2", game.EventPlayerLeft); n != 1 {
		t.Fatalf("PlayerLeft sent %d times", n)
	}
	if li := f.reg.GetTables(); len(li) != 1 || li[0].Seated != 1 {
		t.Fatalf("lobby = %+v", li)
	}
}

func TestJoinErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.reg.Join(ctx, game.Poker, "p1", "", "", "c0"); !errors.Is(err, game.ErrIdentityMissing) {
		t.Fatalf("anonymous join: %v", err)
	}
	f.join(t, game.Poker, "p1", "a", "c1")
	if _, err := f.reg.Join(ctx, game.Blackjack, "p1", "b", "", "c2"); !errors.Is(err, game.ErrKindMismatch) {
		t.Fatalf("kind mismatch: %v", err)
	}
	for i := 0; i < blackjack.MaxSeats; i++ {
		f.join(t, game.Blackjack, "b1", fmt.Sprint("u", i), fmt.Sprint("bc", i))
	}
	if _, err := f.reg.Join(ctx, game.Blackjack, "b1", "late", "", "bcx"); !errors.Is(err, game.ErrTableFull) {
		t.Fatalf("sixth seat: %v", err)
	}
}

func TestReconnectRebindsSeat(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, game.Poker, "p1", "a", "c1")
	f.join(t, game.Poker, "p1", "b", "c2")
	f.reg.Disconnect("c1")

	if li := f.reg.GetTables(); li[0].Seated != 2 {
		t.Fatalf("seat released during grace window")
	}
	if seat := f.join(t, game.Poker, "p1", "a", "c9"); seat != 0 {
		t.Fatalf("rejoin seat = %d, want 0", seat)
	}
	f.clock.fire()
	if li := f.reg.GetTables(); li[0].Seated != 2 {
		t.Fatalf("grace timer vacated a reconnected player")
	}
	if err := f.reg.Act("p1", "c1", game.Command{Type: game.CmdSetReady, Ready: true}); !errors.Is(err, game.ErrNotSeated) {
		t.Fatalf("old connection still bound: %v", err)
	}
	if err := f.reg.Act("p1", "c9", game.Command{Type: game.CmdSetReady, Ready: true}); err != nil {
		t.Fatalf("new connection: %v", err)
	}
}

func TestGraceExpiryVacatesSeat(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, game.Poker, "p1", "a", "c1")
	f.join(t, game.Poker, "p1", "b", "c2")
	f.reg.Disconnect("c1")
	f.reg.Disconnect("c1")
	f.clock.fire()

	if li := f.reg.GetTables(); li[0].Seated != 1 {
		t.Fatalf("seated = %d after grace expiry", li[0].Seated)
	}
	if n := f.out.count("c2", game.EventPlayerLeft); n != 1 {
		t.Fatalf("PlayerLeft sent %d times", n)
	}
}

func TestDisconnectMidTurnFolds(t *testing.T) {
	f := newFixture(t, nil)
	for i, u := range []string{"a", "b", "c"} {
		f.join(t, game.Poker, "p1", u, fmt.Sprint("c", i))
		if err := f.reg.Act("p1", fmt.Sprint("c", i), game.Command{Type: game.CmdSetReady, Ready: true}); err != nil {
			t.Fatal(err)
		}
	}
	f.clock.fire() // ready countdown
	snap := func() poker.Snapshot {
		s, err := f.reg.Snapshot("p1", "a")
		if err != nil {
			t.Fatal(err)
		}
		return s.(poker.Snapshot)
	}
	s := snap()
	if s.Stage != poker.StagePreFlop || s.CurrentSeat == nil || *s.CurrentSeat != 1 {
		t.Fatalf("hand not dealt: %+v", s)
	}
	f.reg.Disconnect("c1")
	s = snap()
	if *s.CurrentSeat != 2 || !s.Players[1].Folded {
		t.Fatalf("turn did not advance past disconnected seat: %+v", s)
	}
	if f.out.count("c1", game.EventError) != 0 {
		t.Fatalf("disconnect produced a user-visible error")
	}
}

func TestRejectedActionGoesToCallerOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, game.Poker, "p1", "a", "c1")
	f.join(t, game.Poker, "p1", "b", "c2")
	before := f.out.count("c2", game.EventTableState)

	err := f.reg.Act("p1", "c1", game.Command{Type: game.CmdMakeMove, Action: "check"})
	if !errors.Is(err, game.ErrWrongStage) {
		t.Fatalf("err = %v", err)
	}
	if f.out.count("c1", game.EventError) != 1 || f.out.count("c2", game.EventError) != 0 {
		t.Fatalf("error event misrouted")
	}
	if f.out.count("c2", game.EventTableState) != before {
		t.Fatalf("rejected action broadcast a snapshot")
	}
	if err := f.reg.Act("p1", "nobody", game.Command{Type: game.CmdStartGame}); !errors.Is(err, game.ErrNotSeated) {
		t.Fatalf("unbound connection: %v", err)
	}
}

func TestChatReachesEveryone(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, game.Blackjack, "b1", "a", "c1")
	f.join(t, game.Blackjack, "b1", "b", "c2")
	if err := f.reg.Act("b1", "c1", game.Command{Type: game.CmdSendMessage, Text: "gl"}); err != nil {
		t.Fatal(err)
	}
	if f.out.count("c1", game.EventReceiveMessage) != 1 || f.out.count("c2", game.EventReceiveMessage) != 1 {
		t.Fatalf("chat not broadcast")
	}
}

func TestKick(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, game.Poker, "p1", "a", "c1")
	f.join(t, game.Poker, "p1", "b", "c2")
	if err := f.reg.Kick("p1", "a", "abuse"); err != nil {
		t.Fatal(err)
	}
	if f.out.count("c1", game.EventKickFromTable) != 1 {
		t.Fatalf("kicked player not told")
	}
	if err := f.reg.Act("p1", "c1", game.Command{Type: game.CmdStartGame}); !errors.Is(err, game.ErrNotSeated) {
		t.Fatalf("kicked connection still bound: %v", err)
	}
	if err := f.reg.Kick("p1", "a", "again"); !errors.Is(err, game.ErrNotSeated) {
		t.Fatalf("second kick: %v", err)
	}
}

func TestFailedSettlementIsRetried(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Blackjack.Deck = engine.StackedSource(engine.MustParseCards("Td 9c Th 7s"))
	})
	f.w.fail = true
	f.join(t, game.Blackjack, "b1", "a", "c1")
	if err := f.reg.Act("b1", "c1", game.Command{Type: game.CmdPlaceBet, Amount: 10}); err != nil {
		t.Fatal(err)
	}
	if err := f.reg.Act("b1", "c1", game.Command{Type: game.CmdStand}); err != nil {
		t.Fatal(err)
	}
	if n := f.reg.Pending("b1"); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	f.reg.Leave("b1", "c1")
	if len(f.reg.GetTables()) != 1 {
		t.Fatalf("table with unsettled hand was reaped")
	}

	f.w.mu.Lock()
	f.w.fail = false
	f.w.mu.Unlock()
	f.clock.fire()

	if n := f.reg.Pending("b1"); n != 0 {
		t.Fatalf("pending = %d after retry", n)
	}
	if bal, _ := f.w.Balance(context.Background(), "a"); bal != 1010 {
		t.Fatalf("balance = %d, want 1010", bal)
	}
	if len(f.reg.GetTables()) != 0 {
		t.Fatalf("settled empty table not reaped")
	}
}

func (f *fixture) chips(t *testing.T, table, user string) int64 {
	t.Helper()
	s, err := f.reg.Snapshot(table, user)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range s.(blackjack.Snapshot).Players {
		if p.UserID == user {
			return p.Chips
		}
	}
	t.Fatalf("%s not seated at %s", user, table)
	return 0
}

func TestLeaveAndRejoinMidRound(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Blackjack.Deck = engine.StackedSource(engine.MustParseCards("Td 6c 9h 8s Kh 9d"))
	})
	f.join(t, game.Blackjack, "b1", "a", "c1")
	f.join(t, game.Blackjack, "b1", "b", "c2")
	for _, c := range []string{"c1", "c2"} {
		if err := f.reg.Act("b1", c, game.Command{Type: game.CmdPlaceBet, Amount: 100}); err != nil {
			t.Fatal(err)
		}
	}

	f.reg.Leave("b1", "c1")
	if seat := f.join(t, game.Blackjack, "b1", "a", "c3"); seat != 0 {
		t.Fatalf("rejoin seat = %d, want 0", seat)
	}
	if got := f.chips(t, "b1", "a"); got != 900 {
		t.Fatalf("rejoined with %d chips, want 900", got)
	}
	if err := f.reg.Act("b1", "c2", game.Command{Type: game.CmdStand}); err != nil {
		t.Fatal(err)
	}

	bal, _ := f.w.Balance(context.Background(), "a")
	if got := f.chips(t, "b1", "a"); bal != 900 || got != bal {
		t.Fatalf("wallet %d, seated %d, want 900", bal, got)
	}
}

func TestRejoinCountsUnsettledHands(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Blackjack.Deck = engine.StackedSource(engine.MustParseCards("Td 9c Th 7s"))
	})
	f.w.fail = true
	f.join(t, game.Blackjack, "b1", "a", "c1")
	if err := f.reg.Act("b1", "c1", game.Command{Type: game.CmdPlaceBet, Amount: 10}); err != nil {
		t.Fatal(err)
	}
	if err := f.reg.Act("b1", "c1", game.Command{Type: game.CmdStand}); err != nil {
		t.Fatal(err)
	}
	f.reg.Leave("b1", "c1")

	f.join(t, game.Blackjack, "b1", "a", "c2")
	if got := f.chips(t, "b1", "a"); got != 1010 {
		t.Fatalf("rejoined with %d chips, want 1010", got)
	}
}

func TestCountdownTimerStartsHand(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, game.Poker, "p1", "a", "c1")
	f.join(t, game.Poker, "p1", "b", "c2")
	for _, c := range []string{"c1", "c2"} {
		if err := f.reg.Act("p1", c, game.Command{Type: game.CmdSetReady, Ready: true}); err != nil {
			t.Fatal(err)
		}
	}
	if li := f.reg.GetTables(); li[0].Stage != string(poker.StageReady) {
		t.Fatalf("stage = %s", li[0].Stage)
	}
	f.clock.fire()
	if li := f.reg.GetTables(); li[0].Stage != string(poker.StagePreFlop) {
		t.Fatalf("stage after countdown = %s", li[0].Stage)
	}
}

func TestConcurrentJoinsAndLeaves(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ReconnectGrace = 0 })
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tid := fmt.Sprint("t", i%4)
			conn := fmt.Sprint("conn", i)
			user := fmt.Sprint("u", i)
			if _, err := f.reg.Join(ctx, game.Blackjack, tid, user, "", conn); err != nil {
				if !errors.Is(err, game.ErrTableFull) {
					t.Errorf("join: %v", err)
				}
				return
			}
			f.reg.Act(tid, conn, game.Command{Type: game.CmdPlaceBet, Amount: 10})
			f.reg.GetTables()
			if i%2 == 0 {
				f.reg.Disconnect(conn)
			} else {
				f.reg.Leave(tid, conn)
			}
		}(i)
	}
	wg.Wait()
	f.reg.Reap()
	if li := f.reg.GetTables(); len(li) != 0 {
		t.Fatalf("tables left behind: %+v", li)
	}
}
