package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardtable/server/game"
)

//go:embed schema.sql
var schema embed.FS

// DB is the Postgres wallet. New players are credited StartingChips on
// first lookup.
type DB struct {
	*pgxpool.Pool
	StartingChips int64
}

func Open(dsn string, startingChips int64) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: p, StartingChips: startingChips}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// Balance returns the player's chips, opening a wallet if needed.
func (db *DB) Balance(ctx context.Context, userID string) (int64, error) {
	var chips int64
	err := db.QueryRow(ctx, `
		INSERT INTO wallets(user_id, chips) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING chips
	`, userID, db.StartingChips).Scan(&chips)
	return chips, err
}

// Settle applies a hand's balance changes in one transaction. A hand that
// was already recorded is skipped, so retries are safe.
func (db *DB) Settle(ctx context.Context, s game.Settlement) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	tag, err := tx.Exec(ctx, `
		INSERT INTO settlements(table_id, hand_id, kind) VALUES ($1,$2,$3)
		ON CONFLICT (table_id, hand_id) DO NOTHING
	`, s.TableID, s.HandID, string(s.Kind))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, ch := range s.Changes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO settlement_changes(table_id, hand_id, user_id, amount)
			VALUES ($1,$2,$3,$4)
		`, s.TableID, s.HandID, ch.UserID, ch.Amount); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO wallets(user_id, chips) VALUES ($1, $2 + $3)
			ON CONFLICT (user_id) DO UPDATE
			  SET chips = wallets.chips + $3,
			      updated_at = now()
		`, ch.UserID, db.StartingChips, ch.Amount); err != nil {
			return fmt.Errorf("settle %s for %s: %w", s.HandID, ch.UserID, err)
		}
	}
	return tx.Commit(ctx)
}

type LedgerEntry struct {
	TableID   string    `json:"tableId"`
	HandID    string    `json:"handId"`
	Kind      game.Kind `json:"kind"`
	Amount    int64     `json:"amount"`
	SettledAt time.Time `json:"settledAt"`
}

// Ledger lists a player's most recent settled hands, newest first.
func (db *DB) Ledger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	rows, err := db.Query(ctx, `
		SELECT c.table_id, c.hand_id, s.kind, c.amount, s.settled_at
		  FROM settlement_changes c
		  JOIN settlements s ON s.table_id = c.table_id AND s.hand_id = c.hand_id
		 WHERE c.user_id = $1
		 ORDER BY s.settled_at DESC
		 LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var kind string
		if err := rows.Scan(&e.TableID, &e.HandID, &kind, &e.Amount, &e.SettledAt); err != nil {
			return nil, err
		}
		e.Kind = game.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Peek returns the stored balance without opening a wallet.
func (db *DB) Peek(ctx context.Context, userID string) (int64, bool, error) {
	var chips int64
	err := db.QueryRow(ctx, `SELECT chips FROM wallets WHERE user_id = $1`, userID).Scan(&chips)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return chips, true, nil
}
