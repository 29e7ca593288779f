package sim

import (
	"math"
	"math/rand/v2"
	"sort"
)

// BotStats accumulates one bot's results over a simulation.
type BotStats struct {
	Hands    int
	Wins     int
	Ties     int
	VPIP     int // hands where the bot put chips in voluntarily
	Calls    int
	Aggr     int
	NetChips int64
	nets     []float64
	vpipHand bool
}

// AF is the aggression factor: raises per call.
func (s *BotStats) AF() float64 {
	if s.Calls == 0 {
		return float64(s.Aggr)
	}
	return float64(s.Aggr) / float64(s.Calls)
}

// PerHundred is the net result per 100 hands in units of unit.
func (s *BotStats) PerHundred(unit int64) float64 {
	if s.Hands == 0 || unit <= 0 {
		return 0
	}
	return (float64(s.NetChips) / float64(unit)) / (float64(s.Hands) / 100.0)
}

func (s *BotStats) endHand(net int64, won, tied bool) {
	s.Hands++
	s.NetChips += net
	s.nets = append(s.nets, float64(net))
	if won {
		s.Wins++
	}
	if tied {
		s.Ties++
	}
	if s.vpipHand {
		s.VPIP++
	}
	s.vpipHand = false
}

// WilsonCI95 bounds the win rate, counting ties as half a win.
func WilsonCI95(wins, ties, total int) (low, hi float64) {
	if total <= 0 {
		return 0, 1
	}
	z := 1.96
	n := float64(total)
	p := (float64(wins) + 0.5*float64(ties)) / n
	den := 1 + (z*z)/n
	center := p + (z*z)/(2*n)
	half := z * math.Sqrt((p*(1-p))/n+(z*z)/(4*n*n))
	return (center - half) / den, (center + half) / den
}

// BootstrapCI95 bounds the mean of vals by resampling B times.
func BootstrapCI95(rng *rand.Rand, vals []float64, B int) (low, hi float64) {
	n := len(vals)
	if n == 0 || B <= 1 {
		return 0, 0
	}
	res := make([]float64, B)
	for b := range res {
		sum := 0.0
		for range n {
			sum += vals[rng.IntN(n)]
		}
		res[b] = sum / float64(n)
	}
	sort.Float64s(res)
	return res[int(0.025*float64(B-1))], res[int(0.975*float64(B-1))]
}
