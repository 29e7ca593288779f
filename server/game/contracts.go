package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	Poker     Kind = "poker"
	Blackjack Kind = "blackjack"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Poker, Blackjack:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown table kind %q", s)
}

// User-action errors. These are expected and reported to the caller only.
var (
	ErrIdentityMissing   = errors.New("identity missing")
	ErrNotSeated         = errors.New("not seated at this table")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrTableFull         = errors.New("table full")
	ErrWrongStage        = errors.New("action not allowed at this stage")
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientChips = errors.New("insufficient chips")
	ErrKindMismatch      = errors.New("table is of a different kind")
	ErrTableClosed       = errors.New("table closed")
)

var userErrors = []error{
	ErrIdentityMissing, ErrNotSeated, ErrNotYourTurn, ErrTableFull, ErrWrongStage,
	ErrInvalidAction, ErrInvalidAmount, ErrInsufficientChips, ErrKindMismatch,
}

// IsUserError reports whether err is a rejected user action rather than a defect.
func IsUserError(err error) bool {
	for _, u := range userErrors {
		if errors.Is(err, u) {
			return true
		}
	}
	return false
}

type CommandType string

const (
	CmdSetReady    CommandType = "SetReady"
	CmdStartGame   CommandType = "StartGame"
	CmdMakeMove    CommandType = "MakeMove"
	CmdPlaceBet    CommandType = "PlaceBet"
	CmdStartRound  CommandType = "StartRound"
	CmdHit         CommandType = "Hit"
	CmdStand       CommandType = "Stand"
	CmdDouble      CommandType = "Double"
	CmdSendMessage CommandType = "SendMessage"
	CmdLeaveTable  CommandType = "LeaveTable"
)

// Command is one client request against a table. Only the fields meaningful
// to Type are read.
type Command struct {
	Type   CommandType `json:"type"`
	Ready  bool        `json:"isReady,omitempty"`
	Action string      `json:"action,omitempty"` // fold|check|call|raise
	Amount int64       `json:"amount,omitempty"`
	Text   string      `json:"text,omitempty"`
}

type EventKind string

const (
	EventTableState     EventKind = "TableState"
	EventPlayerJoined   EventKind = "PlayerJoined"
	EventPlayerLeft     EventKind = "PlayerLeft"
	EventActionLog      EventKind = "ActionLog"
	EventError          EventKind = "Error"
	EventReceiveMessage EventKind = "ReceiveMessage"
	EventKickFromTable  EventKind = "KickFromTable"
)

// Event is pushed to table members. Recipients holds user ids; empty means
// everyone bound to the table.
type Event struct {
	Kind       EventKind `json:"type"`
	Payload    any       `json:"data"`
	Recipients []string  `json:"-"`
}

type PlayerJoinedPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Seat   int    `json:"seat"`
	Rejoin bool   `json:"rejoin"`
}

type PlayerLeftPayload struct {
	UserID string `json:"userId"`
	Seat   int    `json:"seat"`
}

type ActionLogPayload struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

type MessagePayload struct {
	UserID string    `json:"userId"`
	Name   string    `json:"name"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

type KickPayload struct {
	Reason string `json:"reason"`
}

func Log(format string, args ...any) Event {
	return Event{Kind: EventActionLog, Payload: ActionLogPayload{Message: fmt.Sprintf(format, args...), At: time.Now()}}
}

// BalanceChange is the net chip result of one hand for one player.
type BalanceChange struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
}

// Settlement is applied to the wallet exactly once, keyed by HandID.
type Settlement struct {
	TableID string          `json:"tableId"`
	HandID  string          `json:"handId"`
	Kind    Kind            `json:"kind"`
	Changes []BalanceChange `json:"changes"`
}

// Timer asks the table layer to call OnTimer(Generation) after Delay.
type Timer struct {
	Generation uint64
	Delay      time.Duration
}

type LobbyInfo struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	Seated   int    `json:"seated"`
	MaxSeats int    `json:"maxSeats"`
	MinBet   int64  `json:"minBet"`
	Stage    string `json:"stage"`
}

// Engine is one table's game state machine. Implementations are not safe for
// concurrent use; the table layer serializes every call.
type Engine interface {
	Kind() Kind
	MaxSeats() int
	MinBet() int64
	Stage() string

	// Seat places a new player in the lowest free seat.
	Seat(userID, name string, chips int64) (int, error)
	// SeatOf returns the seat held by userID, or -1.
	SeatOf(userID string) int
	Seated() int
	// Vacate removes the player, forcing a fold/stand first if needed.
	Vacate(userID string) []Event
	// SetConnected toggles presence. A disconnected player is folded or
	// stood for the current hand.
	SetConnected(userID string, connected bool) []Event

	Handle(userID string, cmd Command) ([]Event, error)
	OnTimer(generation uint64) []Event
	// TakeTimer returns a countdown armed since the last call, if any.
	TakeTimer() (Timer, bool)
	// TakeSettlements drains settlements produced by finished hands.
	TakeSettlements() []Settlement

	// Snapshot renders the table for viewer; other players' private cards
	// are masked where the stage requires it.
	Snapshot(viewer string) any
	Lobby() LobbyInfo
}

// MarshalEvent encodes an event for the wire.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
