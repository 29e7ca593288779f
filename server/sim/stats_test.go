package sim

import (
	"math/rand/v2"
	"testing"
)

func TestWilsonCI95(t *testing.T) {
	tests := []struct {
		wins, ties, total int
	}{
		{0, 0, 10},
		{5, 0, 10},
		{10, 0, 10},
		{3, 4, 10},
		{120, 10, 400},
	}
	for _, tt := range tests {
		lo, hi := WilsonCI95(tt.wins, tt.ties, tt.total)
		p := (float64(tt.wins) + 0.5*float64(tt.ties)) / float64(tt.total)
		if lo < 0 || hi > 1 || lo > p || hi < p {
			t.Fatalf("WilsonCI95(%d,%d,%d) = [%f,%f], rate %f", tt.wins, tt.ties, tt.total, lo, hi, p)
		}
	}
	if lo, hi := WilsonCI95(0, 0, 0); lo != 0 || hi != 1 {
		t.Fatalf("empty sample = [%f,%f]", lo, hi)
	}
}

func TestBootstrapCI95(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	vals := []float64{-10, 0, 10, 20, -20, 10, 0, 5}
	lo, hi := BootstrapCI95(rng, vals, 500)
	if lo > 1.875 || hi < 1.875 || lo >= hi {
		t.Fatalf("interval [%f,%f] misses mean 1.875", lo, hi)
	}
	if lo, hi := BootstrapCI95(rng, []float64{7, 7, 7}, 100); lo != 7 || hi != 7 {
		t.Fatalf("constant sample = [%f,%f]", lo, hi)
	}
}

func TestBotStats(t *testing.T) {
	var s BotStats
	s.vpipHand = true
	s.endHand(20, true, false)
	s.endHand(-10, false, false)
	s.endHand(0, false, true)
	if s.Hands != 3 || s.Wins != 1 || s.Ties != 1 || s.VPIP != 1 || s.NetChips != 10 {
		t.Fatalf("stats = %+v", s)
	}
	if got := s.PerHundred(10); got < 33.3 || got > 33.4 {
		t.Fatalf("PerHundred = %f", got)
	}
	s.Calls, s.Aggr = 2, 3
	if s.AF() != 1.5 {
		t.Fatalf("AF = %f", s.AF())
	}
}
