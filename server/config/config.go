package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cardtable/server/blackjack"
	"cardtable/server/poker"
	"cardtable/server/table"
)

type Config struct {
	Port          string
	DatabaseURL   string
	AutoMigrate   bool
	Debug         bool
	StartingChips int64

	PokerMaxSeats   int
	PokerMinBet     int64
	PokerReady      time.Duration
	BlackjackMinBet int64
	BlackjackBet    time.Duration
	ReconnectGrace  time.Duration
	SettleRetry     time.Duration
}

// Load reads .env when present, then the process environment.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:            getenv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AutoMigrate:     asBool(os.Getenv("AUTO_MIGRATE")),
		Debug:           asBool(os.Getenv("DEBUG")),
		StartingChips:   int64(atoiDef(os.Getenv("STARTING_CHIPS"), 1000)),
		PokerMaxSeats:   atoiDef(os.Getenv("POKER_MAX_SEATS"), 6),
		PokerMinBet:     int64(atoiDef(os.Getenv("POKER_MIN_BET"), 10)),
		PokerReady:      seconds("POKER_READY_SECONDS", 5),
		BlackjackMinBet: int64(atoiDef(os.Getenv("BLACKJACK_MIN_BET"), 10)),
		BlackjackBet:    seconds("BLACKJACK_BETTING_SECONDS", 10),
		ReconnectGrace:  seconds("RECONNECT_GRACE_SECONDS", 30),
		SettleRetry:     seconds("SETTLE_RETRY_SECONDS", 5),
	}
}

// Tables maps the settings onto the registry configuration.
func (c Config) Tables() table.Config {
	return table.Config{
		Poker: poker.Config{
			MaxSeats:   c.PokerMaxSeats,
			MinBet:     c.PokerMinBet,
			ReadyDelay: c.PokerReady,
		},
		Blackjack: blackjack.Config{
			MinBet:       c.BlackjackMinBet,
			BettingDelay: c.BlackjackBet,
		},
		ReconnectGrace: c.ReconnectGrace,
		SettleRetry:    c.SettleRetry,
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func seconds(k string, def int) time.Duration {
	return time.Duration(atoiDef(os.Getenv(k), def)) * time.Second
}
