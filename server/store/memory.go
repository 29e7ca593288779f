package store

import (
	"context"
	"sync"
	"time"

	"cardtable/server/game"
)

// Memory is an in-process wallet used when no database is configured.
type Memory struct {
	StartingChips int64

	mu      sync.Mutex
	chips   map[string]int64
	settled map[string]bool
	ledger  map[string][]LedgerEntry
}

func NewMemory(startingChips int64) *Memory {
	return &Memory{
		StartingChips: startingChips,
		chips:         make(map[string]int64),
		settled:       make(map[string]bool),
		ledger:        make(map[string][]LedgerEntry),
	}
}

func (m *Memory) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chips[userID]
	if !ok {
		c = m.StartingChips
		m.chips[userID] = c
	}
	return c, nil
}

func (m *Memory) Settle(_ context.Context, s game.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := s.TableID + "/" + s.HandID
	if m.settled[key] {
		return nil
	}
	m.settled[key] = true
	now := time.Now()
	for _, ch := range s.Changes {
		if _, ok := m.chips[ch.UserID]; !ok {
			m.chips[ch.UserID] = m.StartingChips
		}
		m.chips[ch.UserID] += ch.Amount
		m.ledger[ch.UserID] = append(m.ledger[ch.UserID], LedgerEntry{
			TableID: s.TableID, HandID: s.HandID, Kind: s.Kind, Amount: ch.Amount, SettledAt: now,
		})
	}
	return nil
}

func (m *Memory) Ledger(_ context.Context, userID string, limit int) ([]LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.ledger[userID]
	out := make([]LedgerEntry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) Peek(_ context.Context, userID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chips[userID]
	return c, ok, nil
}
