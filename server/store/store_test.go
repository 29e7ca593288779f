package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"cardtable/server/game"
)

// Runs against a real Postgres when TEST_DATABASE_URL is set.
func TestDBSettle(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(dsn, 500)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close(ctx)
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	a, b := "a-"+uuid.NewString(), "b-"+uuid.NewString()
	for _, u := range []string{a, b} {
		if c, err := db.Balance(ctx, u); err != nil || c != 500 {
			t.Fatalf("balance %s = %d, %v", u, c, err)
		}
	}
	s := game.Settlement{TableID: "t", HandID: uuid.NewString(), Kind: game.Poker, Changes: []game.BalanceChange{
		{UserID: a, Amount: 25}, {UserID: b, Amount: -25},
	}}
	for i := 0; i < 2; i++ {
		if err := db.Settle(ctx, s); err != nil {
			t.Fatalf("settle #%d: %v", i, err)
		}
	}
	if c, _ := db.Balance(ctx, a); c != 525 {
		t.Fatalf("a = %d, want 525", c)
	}
	if c, ok, _ := db.Peek(ctx, b); !ok || c != 475 {
		t.Fatalf("b = %d, want 475", c)
	}
	l, err := db.Ledger(ctx, a, 10)
	if err != nil || len(l) != 1 || l[0].Amount != 25 {
		t.Fatalf("ledger = %+v, %v", l, err)
	}
}
