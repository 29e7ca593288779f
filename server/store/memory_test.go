package store

import (
	"context"
	"testing"

	"cardtable/server/game"
)

func TestMemorySettleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1000)
	if c, _ := m.Balance(ctx, "a"); c != 1000 {
		t.Fatalf("starting balance = %d", c)
	}
	s := game.Settlement{TableID: "t1", HandID: "h1", Kind: game.Poker, Changes: []game.BalanceChange{
		{UserID: "a", Amount: 40}, {UserID: "b", Amount: -40},
	}}
	for i := 0; i < 3; i++ {
		if err := m.Settle(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if c, _ := m.Balance(ctx, "a"); c != 1040 {
		t.Fatalf("a = %d, want 1040", c)
	}
	if c, _ := m.Balance(ctx, "b"); c != 960 {
		t.Fatalf("b = %d, want 960", c)
	}
	s.TableID = "t2"
	if err := m.Settle(ctx, s); err != nil {
		t.Fatal(err)
	}
	if c, _ := m.Balance(ctx, "a"); c != 1080 {
		t.Fatalf("same hand id on another table must settle, a = %d", c)
	}
}

func TestMemoryLedgerNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(100)
	for _, h := range []string{"h1", "h2", "h3"} {
		m.Settle(ctx, game.Settlement{TableID: "t", HandID: h, Kind: game.Blackjack, Changes: []game.BalanceChange{{UserID: "a", Amount: 5}}})
	}
	l, err := m.Ledger(ctx, "a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 2 || l[0].HandID != "h3" || l[1].HandID != "h2" {
		t.Fatalf("ledger = %+v", l)
	}
	if _, ok, _ := m.Peek(ctx, "nobody"); ok {
		t.Fatalf("peek opened a wallet")
	}
}
