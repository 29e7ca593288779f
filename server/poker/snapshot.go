package poker

import (
	"time"

	"cardtable/server/engine"
	"cardtable/server/game"
)

type PlayerView struct {
	UserID     string        `json:"userId"`
	Name       string        `json:"name"`
	Seat       int           `json:"seat"`
	Chips      int64         `json:"chips"`
	CurrentBet int64         `json:"currentBet"`
	TotalBet   int64         `json:"totalBet"`
	Hand       []engine.Card `json:"hand,omitempty"`
	CardCount  int           `json:"cardCount"`
	Ready      bool          `json:"ready"`
	Folded     bool          `json:"folded"`
	AllIn      bool          `json:"allIn"`
	InHand     bool          `json:"inHand"`
	Connected  bool          `json:"connected"`
	Result     Result        `json:"result,omitempty"`
	Payout     *int64        `json:"payout,omitempty"`
	HandName   string        `json:"handName,omitempty"`
}

// Snapshot is the table as one viewer sees it. Countdown is only set in
// Ready, CurrentSeat only while a betting round is open.
type Snapshot struct {
	TableID     string        `json:"tableId"`
	Kind        game.Kind     `json:"kind"`
	Stage       Stage         `json:"stage"`
	HandID      string        `json:"handId,omitempty"`
	Players     []PlayerView  `json:"players"`
	Community   []engine.Card `json:"communityCards"`
	Pot         int64         `json:"pot"`
	CurrentBet  int64         `json:"currentBet"`
	MinBet      int64         `json:"minBet"`
	Button      int           `json:"dealerIndex"`
	ActionCount int           `json:"actionCount"`
	CurrentSeat *int          `json:"currentPlayerIndex,omitempty"`
	Countdown   *int          `json:"countdown,omitempty"`
	SidePots    []SidePot     `json:"sidePots,omitempty"`
}

func (t *Table) Snapshot(viewer string) any { return t.View(viewer) }

// View is Snapshot with a concrete type.
func (t *Table) View(viewer string) Snapshot {
	s := Snapshot{
		TableID:     t.id,
		Kind:        game.Poker,
		Stage:       t.stage,
		HandID:      t.handID,
		Community:   append([]engine.Card{}, t.community...),
		Pot:         t.pot,
		CurrentBet:  t.currentBet,
		MinBet:      t.cfg.MinBet,
		Button:      t.button,
		ActionCount: t.actions,
		SidePots:    t.sidePots,
	}
	if cur := t.Current(); cur != nil && t.stage.betting() {
		seat := cur.Seat
		s.CurrentSeat = &seat
	}
	if t.stage == StageReady {
		secs := max(0, int(time.Until(t.readyDeadline).Round(time.Second)/time.Second))
		s.Countdown = &secs
	}
	for _, p := range t.seats {
		if p == nil {
			continue
		}
		v := PlayerView{
			UserID:     p.UserID,
			Name:       p.Name,
			Seat:       p.Seat,
			Chips:      p.Chips,
			CurrentBet: p.CurrentBet,
			TotalBet:   p.TotalBet,
			CardCount:  len(p.Hand),
			Ready:      p.Ready,
			Folded:     p.Folded,
			AllIn:      p.AllIn,
			InHand:     p.InHand,
			Connected:  p.Connected,
			Result:     p.Result,
			HandName:   p.HandName,
		}
		if p.UserID == viewer || (t.revealed && !p.Folded) {
			v.Hand = append([]engine.Card{}, p.Hand...)
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
		Kind:     game.Poker,
		Name:     "Hold'em " + t.id,
		Seated:   t.Seated(),
		MaxSeats: t.cfg.MaxSeats,
		MinBet:   t.cfg.MinBet,
		Stage:    string(t.stage),
	}
}
