// Package table owns the set of live tables. Every operation on a table runs
// under that table's mutex; the registry map has its own lock and is never
// acquired while a table lock is held.
package table

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"cardtable/server/blackjack"
	"cardtable/server/game"
	"cardtable/server/poker"
)

// Wallet holds player balances outside the tables.
type Wallet interface {
	Balance(ctx context.Context, userID string) (int64, error)
	// Settle applies every change of s or none of them. Applying the same
	// (TableID, HandID) twice must be a no-op.
	Settle(ctx context.Context, s game.Settlement) error
}

// Broadcaster delivers events to transport connections. Deliver is called
// with a table lock held and must not block.
type Broadcaster interface {
	Deliver(connID string, ev game.Event)
}

type Config struct {
	Poker          poker.Config
	Blackjack      blackjack.Config
	ReconnectGrace time.Duration
	SettleRetry    time.Duration
	// AfterFunc schedules timers; tests replace it to fire them by hand.
	AfterFunc func(d time.Duration, f func())
}

func (c Config) withDefaults() Config {
	if c.ReconnectGrace < 0 {
		c.ReconnectGrace = 0
	}
	if c.SettleRetry <= 0 {
		c.SettleRetry = 5 * time.Second
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return c
}

type binding struct {
	tableID string
	userID  string
}

type Registry struct {
	cfg    Config
	wallet Wallet
	out    Broadcaster
	log    *zap.Logger

	mu     sync.RWMutex
	tables map[string]*Table

	connMu sync.Mutex
	conns  map[string]binding
}

func NewRegistry(cfg Config, wallet Wallet, out Broadcaster, log *zap.Logger) *Registry {
	return &Registry{
		cfg:    cfg.withDefaults(),
		wallet: wallet,
		out:    out,
		log:    log,
		tables: make(map[string]*Table),
		conns:  make(map[string]binding),
	}
}

func (r *Registry) table(id string) *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[id]
}

// getOrCreate returns the table, creating it on first join.
func (r *Registry) getOrCreate(kind game.Kind, id string) (*Table, error) {
	if t := r.table(id); t != nil {
		if t.kind != kind {
			return nil, game.ErrKindMismatch
		}
		return t, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[id]; ok {
		if t.kind != kind {
			return nil, game.ErrKindMismatch
		}
		return t, nil
	}
	t := newTable(r, kind, id)
	if t == nil {
		return nil, fmt.Errorf("unknown table kind %q", kind)
	}
	r.tables[id] = t
	r.log.Info("table created", zap.String("table", id), zap.String("kind", string(kind)))
	return t, nil
}

func (r *Registry) bind(connID, tableID, userID string) {
	r.connMu.Lock()
	r.conns[connID] = binding{tableID: tableID, userID: userID}
	r.connMu.Unlock()
}

func (r *Registry) unbind(connID string) {
	r.connMu.Lock()
	delete(r.conns, connID)
	r.connMu.Unlock()
}

func (r *Registry) lookup(connID string) (binding, bool) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	b, ok := r.conns[connID]
	return b, ok
}

// Join seats userID at the table, creating the table if needed. A player
// already seated there is rebound to connID instead.
func (r *Registry) Join(ctx context.Context, kind game.Kind, tableID, userID, name, connID string) (int, error) {
	if userID == "" {
		return -1, game.ErrIdentityMissing
	}
	if name == "" {
		name = userID
	}
	if b, ok := r.lookup(connID); ok && (b.tableID != tableID || b.userID != userID) {
		r.Leave(b.tableID, connID)
	}
	for {
		t, err := r.getOrCreate(kind, tableID)
		if err != nil {
			return -1, err
		}
		seat, err := t.join(ctx, userID, name, connID)
		if errors.Is(err, game.ErrTableClosed) {
			// reaped between lookup and lock
			continue
		}
		if err != nil {
			t.reapIfEmpty()
		}
		return seat, err
	}
}

// Leave vacates the seat bound to connID. Leaving twice is a no-op.
func (r *Registry) Leave(tableID, connID string) {
	t := r.table(tableID)
	if t == nil {
		return
	}
	t.leave(connID)
	t.reapIfEmpty()
}

// Disconnect is the transport's signal that connID is gone. The seat is
// held for the reconnect grace window.
func (r *Registry) Disconnect(connID string) {
	b, ok := r.lookup(connID)
	if !ok {
		return
	}
	r.unbind(connID)
	if t := r.table(b.tableID); t != nil {
		t.disconnect(b.userID, connID)
		t.reapIfEmpty()
	}
}

func (r *Registry) Act(tableID, connID string, cmd game.Command) error {
	b, ok := r.lookup(connID)
	if !ok || b.tableID != tableID {
		return game.ErrNotSeated
	}
	t := r.table(tableID)
	if t == nil {
		return game.ErrNotSeated
	}
	return t.act(b.userID, connID, cmd)
}

// Kick removes userID from the table and tells their connection why.
func (r *Registry) Kick(tableID, userID, reason string) error {
	t := r.table(tableID)
	if t == nil {
		return game.ErrNotSeated
	}
	err := t.kick(userID, reason)
	t.reapIfEmpty()
	return err
}

// Snapshot renders the table as userID sees it.
func (r *Registry) Snapshot(tableID, userID string) (any, error) {
	t := r.table(tableID)
	if t == nil {
		return nil, fmt.Errorf("table %s not found", tableID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Snapshot(userID), nil
}

// GetTables lists lobby info without taking any table lock.
func (r *Registry) GetTables() []game.LobbyInfo {
	r.mu.RLock()
	out := make([]game.LobbyInfo, 0, len(r.tables))
	for _, t := range r.tables {
		if li := t.lobby.Load(); li != nil {
			out = append(out, *li)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reap drops every table with no seated players and nothing left to settle.
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.tables {
		if t.closeIfIdle() {
			delete(r.tables, id)
			n++
		}
	}
	return n
}

// Flush retries every queued settlement once. Used on shutdown.
func (r *Registry) Flush(ctx context.Context) {
	r.mu.RLock()
	tables := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	r.mu.RUnlock()
	for _, t := range tables {
		t.settle(ctx)
	}
}

func (r *Registry) remove(t *Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables[t.id] == t && t.closeIfIdle() {
		delete(r.tables, t.id)
		r.log.Info("table reaped", zap.String("table", t.id))
	}
}
