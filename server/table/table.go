package table

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cardtable/server/blackjack"
	"cardtable/server/game"
	"cardtable/server/poker"
)

// Table wraps one engine with its connection bindings, timers and pending
// settlements.
type Table struct {
	id   string
	kind game.Kind
	reg  *Registry
	log  *zap.Logger

	mu       sync.Mutex
	eng      game.Engine
	conns    map[string]string // userID -> connID
	names    map[string]string
	grace    map[string]uint64 // userID -> token of the armed grace timer
	graceN   uint64
	pending  []game.Settlement
	inflight int // settlements handed to the wallet, not yet resolved
	retry    bool
	closed   bool

	settleMu sync.Mutex
	lobby    atomic.Pointer[game.LobbyInfo]
}

func newTable(r *Registry, kind game.Kind, id string) *Table {
	t := &Table{
		id:    id,
		kind:  kind,
		reg:   r,
		log:   r.log.With(zap.String("table", id), zap.String("kind", string(kind))),
		conns: make(map[string]string),
		names: make(map[string]string),
		grace: make(map[string]uint64),
	}
	onAbort := func(err error) { t.log.Error("hand aborted", zap.Error(err)) }
	switch kind {
	case game.Poker:
		cfg := r.cfg.Poker
		cfg.OnAbort = onAbort
		t.eng = poker.New(id, cfg)
	case game.Blackjack:
		cfg := r.cfg.Blackjack
		cfg.OnAbort = onAbort
		t.eng = blackjack.New(id, cfg)
	default:
		return nil
	}
	t.publishLobby()
	return t
}

func (t *Table) publishLobby() {
	li := t.eng.Lobby()
	t.lobby.Store(&li)
}

// join seats or rebinds userID. A new seat's stack is the wallet balance
// plus this table's settlements the wallet has not applied yet; holding
// settleMu keeps a settlement from landing between the two reads.
func (t *Table) join(ctx context.Context, userID, name, connID string) (int, error) {
	t.settleMu.Lock()
	defer t.settleMu.Unlock()
	chips, err := t.reg.wallet.Balance(ctx, userID)
	if err != nil {
		return -1, fmt.Errorf("balance for %s: %w", userID, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return -1, game.ErrTableClosed
	}
	var evs []game.Event
	seat := t.eng.SeatOf(userID)
	rejoin := seat >= 0
	if rejoin {
		if old, ok := t.conns[userID]; ok && old != connID {
			t.reg.unbind(old)
		}
		delete(t.grace, userID)
		evs = t.eng.SetConnected(userID, true)
	} else {
		chips += unsettled(t.pending, userID)
		if seat, err = t.eng.Seat(userID, name, chips); err != nil {
			t.mu.Unlock()
			t.log.Debug("join rejected", zap.String("user", userID), zap.Error(err))
			return -1, err
		}
	}
	t.conns[userID] = connID
	t.names[userID] = name
	t.reg.bind(connID, t.id, userID)
	joined := game.Event{Kind: game.EventPlayerJoined, Payload: game.PlayerJoinedPayload{UserID: userID, Name: name, Seat: seat, Rejoin: rejoin}}
	t.commit(append([]game.Event{joined}, evs...))
	t.mu.Unlock()

	t.log.Info("player joined", zap.String("user", userID), zap.Int("seat", seat), zap.Bool("rejoin", rejoin))
	return seat, nil
}

func unsettled(pending []game.Settlement, userID string) int64 {
	var n int64
	for _, s := range pending {
		for _, ch := range s.Changes {
			if ch.UserID == userID {
				n += ch.Amount
			}
		}
	}
	return n
}

func (t *Table) leave(connID string) {
	t.mu.Lock()
	userID := ""
	for u, c := range t.conns {
		if c == connID {
			userID = u
			break
		}
	}
	if userID == "" {
		t.mu.Unlock()
		return
	}
	t.reg.unbind(connID)
	t.vacateLocked(userID)
	t.mu.Unlock()
	t.settle(context.Background())
}

// vacateLocked removes userID from the engine and its bindings.
func (t *Table) vacateLocked(userID string) {
	seat := t.eng.SeatOf(userID)
	delete(t.conns, userID)
	delete(t.grace, userID)
	delete(t.names, userID)
	if seat < 0 {
		return
	}
	evs := t.eng.Vacate(userID)
	left := game.Event{Kind: game.EventPlayerLeft, Payload: game.PlayerLeftPayload{UserID: userID, Seat: seat}}
	t.commit(append(evs, left))
	t.log.Info("player left", zap.String("user", userID), zap.Int("seat", seat))
}

func (t *Table) disconnect(userID, connID string) {
	t.mu.Lock()
	if t.conns[userID] != connID {
		// already rebound to a newer connection
		t.mu.Unlock()
		return
	}
	delete(t.conns, userID)
	grace := t.reg.cfg.ReconnectGrace
	if grace == 0 {
		t.vacateLocked(userID)
		t.mu.Unlock()
		t.settle(context.Background())
		return
	}
	t.graceN++
	token := t.graceN
	t.grace[userID] = token
	t.commit(t.eng.SetConnected(userID, false))
	t.mu.Unlock()

	t.log.Info("player disconnected", zap.String("user", userID), zap.Duration("grace", grace))
	t.reg.cfg.AfterFunc(grace, func() { t.expireGrace(userID, token) })
	t.settle(context.Background())
}

func (t *Table) expireGrace(userID string, token uint64) {
	t.mu.Lock()
	if t.closed || t.grace[userID] != token {
		t.mu.Unlock()
		return
	}
	t.vacateLocked(userID)
	t.mu.Unlock()
	t.settle(context.Background())
	t.reapIfEmpty()
}

func (t *Table) act(userID, connID string, cmd game.Command) error {
	t.mu.Lock()
	if t.closed || t.conns[userID] != connID {
		t.mu.Unlock()
		return game.ErrNotSeated
	}
	if cmd.Type == game.CmdSendMessage {
		defer t.mu.Unlock()
		if cmd.Text == "" {
			return t.reject(connID, game.ErrInvalidAction)
		}
		t.deliverAll(game.Event{Kind: game.EventReceiveMessage, Payload: game.MessagePayload{
			UserID: userID, Name: t.names[userID], Text: cmd.Text, At: time.Now(),
		}})
		return nil
	}
	evs, err := t.eng.Handle(userID, cmd)
	if err != nil {
		defer t.mu.Unlock()
		if !game.IsUserError(err) {
			t.log.Error("action failed", zap.String("user", userID), zap.String("cmd", string(cmd.Type)), zap.Error(err))
		}
		return t.reject(connID, err)
	}
	t.commit(evs)
	t.mu.Unlock()
	t.settle(context.Background())
	return nil
}

// reject reports a refused action to the caller's connection only.
func (t *Table) reject(connID string, err error) error {
	t.log.Debug("action rejected", zap.String("conn", connID), zap.Error(err))
	t.reg.out.Deliver(connID, game.Event{Kind: game.EventError, Payload: game.ErrorPayload{Reason: err.Error()}})
	return err
}

func (t *Table) kick(userID, reason string) error {
	t.mu.Lock()
	connID, bound := t.conns[userID]
	_, waiting := t.grace[userID]
	// a player who already left keeps the seat only until the hand settles
	if t.eng.SeatOf(userID) < 0 || (!bound && !waiting) {
		t.mu.Unlock()
		return game.ErrNotSeated
	}
	if bound {
		t.reg.out.Deliver(connID, game.Event{Kind: game.EventKickFromTable, Payload: game.KickPayload{Reason: reason}})
		t.reg.unbind(connID)
	}
	t.vacateLocked(userID)
	t.mu.Unlock()
	t.log.Warn("player kicked", zap.String("user", userID), zap.String("reason", reason))
	t.settle(context.Background())
	return nil
}

func (t *Table) onTimer(generation uint64) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	evs := t.eng.OnTimer(generation)
	if evs == nil {
		// stale generation
		t.mu.Unlock()
		return
	}
	t.commit(evs)
	t.mu.Unlock()
	t.settle(context.Background())
}

// commit publishes the outcome of an accepted mutation: discrete events, a
// per-viewer snapshot, newly armed timers and finished-hand settlements.
// Callers hold t.mu.
func (t *Table) commit(evs []game.Event) {
	for _, ev := range evs {
		if len(ev.Recipients) == 0 {
			t.deliverAll(ev)
			continue
		}
		for _, u := range ev.Recipients {
			if c, ok := t.conns[u]; ok {
				t.reg.out.Deliver(c, ev)
			}
		}
	}
	for u, c := range t.conns {
		t.reg.out.Deliver(c, game.Event{Kind: game.EventTableState, Payload: t.eng.Snapshot(u)})
	}
	if tm, ok := t.eng.TakeTimer(); ok {
		t.reg.cfg.AfterFunc(tm.Delay, func() { t.onTimer(tm.Generation) })
	}
	t.pending = append(t.pending, t.eng.TakeSettlements()...)
	t.publishLobby()
}

func (t *Table) deliverAll(ev game.Event) {
	for _, c := range t.conns {
		t.reg.out.Deliver(c, ev)
	}
}

// closeIfIdle marks an empty, settled table closed. Callers hold the
// registry lock.
func (t *Table) closeIfIdle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return true
	}
	if t.eng.Seated() > 0 || len(t.pending) > 0 || t.inflight > 0 {
		return false
	}
	t.closed = true
	return true
}

func (t *Table) reapIfEmpty() {
	t.mu.Lock()
	idle := !t.closed && t.eng.Seated() == 0 && len(t.pending) == 0 && t.inflight == 0
	t.mu.Unlock()
	if idle {
		t.reg.remove(t)
	}
}
