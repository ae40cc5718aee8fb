// Package pricing computes coverage premiums from pool utilization.
//
// The cost curve is piecewise linear in the utilization ratio: it rises
// proportionally from zero to the risky-threshold cost, then steepens up
// to the full-utilization cost, with a floor at the minimum annual cost.
// All math is integer fixed-point (decimal.Precision scale) and truncates
// at every division, so quotes are reproducible bit for bit.
package pricing

import (
	"errors"

	"github.com/holiman/uint256"

	"CoverLedger/internal/decimal"
)

var (
	// ErrExceedsCapacity is returned when the requested cover plus the
	// already-purchased cover would exceed the pool's total liquidity.
	ErrExceedsCapacity = errors.New("Requiring more than there exists")

	// ErrPoolEmpty is returned when the pool holds no liquidity at all.
	ErrPoolEmpty = errors.New("The pool is empty")
)

// Config holds the curve parameters, all in decimal fixed-point percent.
type Config struct {
	RiskyThreshold *uint256.Int // utilization where the curve steepens
	CostAtRisky    *uint256.Int // annual cost at the risky threshold
	CostAtFull     *uint256.Int // annual cost at 100% utilization
	MinimumCost    *uint256.Int // floor on the annual cost
	SecondsInYear  uint64
}

// DefaultConfig returns the production curve: steepening at 70%
// utilization, 30% annual cost at the threshold, 150% at full
// utilization, and a 5% minimum.
func DefaultConfig() Config {
	return Config{
		RiskyThreshold: decimal.Percent(70),
		CostAtRisky:    decimal.Percent(30),
		CostAtFull:     decimal.Percent(150),
		MinimumCost:    decimal.Percent(5),
		SecondsInYear:  decimal.SecondsInYear,
	}
}

// PoolSnapshot is the slice of pool state a quote depends on.
type PoolSnapshot struct {
	TotalLiquidity   *uint256.Int
	TotalCoverTokens *uint256.Int
}

// Engine prices cover against a configured curve.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Quote returns the premium, in the same units as the cover amount, for
// covering requested tokens over durationSeconds against the given pool.
//
// Capacity is checked before anything else, then the empty-pool guard; a
// zero duration short-circuits to a zero premium before any curve math.
func (e *Engine) Quote(durationSeconds uint64, requested *uint256.Int, pool PoolSnapshot) (*uint256.Int, error) {
	coverAfter, err := decimal.Add(pool.TotalCoverTokens, requested)
	if err != nil {
		return nil, err
	}
	if pool.TotalLiquidity.Lt(coverAfter) {
		return nil, ErrExceedsCapacity
	}
	if pool.TotalLiquidity.IsZero() {
		return nil, ErrPoolEmpty
	}
	if durationSeconds == 0 {
		return uint256.NewInt(0), nil
	}

	annual, err := e.annualCost(coverAfter, pool.TotalLiquidity)
	if err != nil {
		return nil, err
	}

	// Scale the annual cost to the requested duration, then apply it to
	// the cover amount. Both steps floor.
	actual, err := decimal.MulDiv(uint256.NewInt(durationSeconds), annual, uint256.NewInt(e.cfg.SecondsInYear))
	if err != nil {
		return nil, err
	}
	return decimal.MulDiv(requested, actual, decimal.Percent100())
}

// annualCost evaluates the curve at utilization coverAfter/total and
// applies the minimum-cost floor.
func (e *Engine) annualCost(coverAfter, total *uint256.Int) (*uint256.Int, error) {
	utilization, err := decimal.MulDiv(coverAfter, decimal.Percent100(), total)
	if err != nil {
		return nil, err
	}

	var annual *uint256.Int
	if utilization.Lt(e.cfg.RiskyThreshold) {
		annual, err = decimal.MulDiv(utilization, e.cfg.CostAtRisky, e.cfg.RiskyThreshold)
		if err != nil {
			return nil, err
		}
	} else {
		overRisky, err := decimal.Sub(utilization, e.cfg.RiskyThreshold)
		if err != nil {
			return nil, err
		}
		riskySpan, err := decimal.Sub(decimal.Percent100(), e.cfg.RiskyThreshold)
		if err != nil {
			return nil, err
		}
		relation, err := decimal.MulDiv(overRisky, decimal.Precision(), riskySpan)
		if err != nil {
			return nil, err
		}
		costSpan, err := decimal.Sub(e.cfg.CostAtFull, e.cfg.CostAtRisky)
		if err != nil {
			return nil, err
		}
		steep, err := decimal.MulDiv(relation, costSpan, decimal.Precision())
		if err != nil {
			return nil, err
		}
		annual, err = decimal.Add(e.cfg.CostAtRisky, steep)
		if err != nil {
			return nil, err
		}
	}
	return decimal.Max(annual, e.cfg.MinimumCost), nil
}
