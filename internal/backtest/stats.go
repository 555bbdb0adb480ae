package backtest

import (
	"math"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// CalculateStats computes performance statistics from the trade log and
// the equity curve. interval is the bar spacing used to annualize Sharpe.
func CalculateStats(trades []core.TradeRecord, curve []EquityPoint, initial float64, interval time.Duration) Stats {
	stats := Stats{TotalTrades: len(trades)}

	for _, t := range trades {
		stats.TotalFees += t.Fee
		if t.Side != core.SideSell {
			continue
		}
		stats.ClosedTrades++
		if t.IsWin() {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
	}
	if stats.ClosedTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.ClosedTrades) * 100
	}

	if len(curve) == 0 || initial <= 0 {
		return stats
	}

	equity := make([]float64, 0, len(curve)+1)
	equity = append(equity, initial)
	for _, p := range curve {
		equity = append(equity, p.Equity)
	}

	stats.TotalReturn = (equity[len(equity)-1] - initial) / initial * 100
	stats.MaxDrawdown = calculateMaxDrawdown(equity) * 100
	stats.SharpeRatio = calculateSharpeRatio(returns(equity), periodsPerYear(interval))
	return stats
}

func returns(equity []float64) []float64 {
	out := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] > 0 {
			out = append(out, equity[i]/equity[i-1]-1)
		}
	}
	return out
}

// periodsPerYear assumes markets trade around the clock
func periodsPerYear(interval time.Duration) float64 {
	if interval <= 0 {
		return 365
	}
	return float64(365*24*time.Hour) / float64(interval)
}

// calculateMaxDrawdown finds the largest peak-to-trough decline
func calculateMaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	var maxDD float64
	peak := equity[0]

	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0 for simplicity
func calculateSharpeRatio(returns []float64, periods float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	// Calculate mean return
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	// Calculate standard deviation
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0
	}

	return mean / stdDev * math.Sqrt(periods)
}
