package blackjack

import (
	"time"

	"cardtable/server/engine"
	"cardtable/server/game"
)

type PlayerView struct {
	UserID    string        `json:"userId"`
	Name      string        `json:"name"`
	Seat      int           `json:"seat"`
	Chips     int64         `json:"chips"`
	Bet       int64         `json:"currentBet"`
	Hand      []engine.Card `json:"hand"`
	Score     int           `json:"score"`
	Stood     bool          `json:"stood"`
	Busted    bool          `json:"busted"`
	Blackjack bool          `json:"blackjack"`
	Doubled   bool          `json:"doubledDown"`
	InRound   bool          `json:"inRound"`
	Connected bool          `json:"connected"`
	Result    Result        `json:"result,omitempty"`
	Payout    *int64        `json:"payout,omitempty"`
}

type DealerView struct {
	Hand      []engine.Card `json:"hand"`
	Hidden    int           `json:"hidden"` // face-down cards left out of Hand
	Score     int           `json:"score"`
	Busted    bool          `json:"busted"`
	Blackjack bool          `json:"blackjack"`
}

// Snapshot is the blackjack table as seen by one viewer. Countdown exists
// only while betting is open, CurrentSeat only during player turns.
type Snapshot struct {
	TableID     string       `json:"tableId"`
	Kind        game.Kind    `json:"kind"`
	Stage       Stage        `json:"stage"`
	HandID      string       `json:"handId,omitempty"`
	MinBet      int64        `json:"minBet"`
	Players     []PlayerView `json:"players"`
	Dealer      DealerView   `json:"dealer"`
	CurrentSeat *int         `json:"currentPlayerIndex,omitempty"`
	Countdown   *int         `json:"countdown,omitempty"`
}

func (t *Table) Snapshot(viewer string) any { return t.View(viewer) }

// View renders the table. Blackjack hands are dealt face up, so only the
// dealer's hole card is ever masked.
func (t *Table) View(string) Snapshot {
	s := Snapshot{
		TableID: t.id,
		Kind:    game.Blackjack,
		Stage:   t.stage,
		HandID:  t.handID,
		MinBet:  t.cfg.MinBet,
	}
	if cur := t.Current(); cur != nil {
		seat := cur.Seat
		s.CurrentSeat = &seat
	}
	if t.stage == StageBetting {
		secs := max(0, int(time.Until(t.bettingDeadline).Round(time.Second)/time.Second))
		s.Countdown = &secs
	}

	d := t.dealer
	s.Dealer = DealerView{Hand: append([]engine.Card{}, d.Hand...), Score: d.Score, Busted: d.Busted, Blackjack: d.Blackjack}
	if t.stage == StagePlayerTurns && len(d.Hand) == 2 {
		s.Dealer.Hand = s.Dealer.Hand[:1]
		s.Dealer.Hidden = 1
		s.Dealer.Score, _ = Score(s.Dealer.Hand)
		s.Dealer.Blackjack = false
	}

	for _, p := range t.seats {
		if p == nil {
			continue
		}
		v := PlayerView{
			UserID:    p.UserID,
			Name:      p.Name,
			Seat:      p.Seat,
			Chips:     p.Chips,
			Bet:       p.Bet,
			Hand:      append([]engine.Card{}, p.Hand...),
			Score:     p.Score,
			Stood:     p.Stood,
			Busted:    p.Busted,
			Blackjack: p.Blackjack,
			Doubled:   p.Doubled,
			InRound:   p.InRound,
			Connected: p.Connected,
			Result:    p.Result,
		}
		if p.Result != ResultNone {
			pay := p.Payout
			v.Payout = &pay
		}
		s.Players = append(s.Players, v)
	}
	return s
}

func (t *Table) Lobby() game.LobbyInfo {
	return game.LobbyInfo{
		ID:       t.id,
		Kind:     game.Blackjack,
		Name:     "Blackjack " + t.id,
		Seated:   t.Seated(),
		MaxSeats: MaxSeats,
		MinBet:   t.cfg.MinBet,
		Stage:    string(t.stage),
	}
}
