package pricing

import (
	"testing"

	"github.com/holiman/uint256"

	"CoverLedger/internal/decimal"
)

func snapshot(total, cover uint64) PoolSnapshot {
	return PoolSnapshot{
		TotalLiquidity:   uint256.NewInt(total),
		TotalCoverTokens: uint256.NewInt(cover),
	}
}

func quote(t *testing.T, duration uint64, requested uint64, pool PoolSnapshot) *uint256.Int {
	t.Helper()
	got, err := NewEngine(DefaultConfig()).Quote(duration, uint256.NewInt(requested), pool)
	if err != nil {
		t.Fatalf("Quote returned error: %v", err)
	}
	return got
}

func TestQuoteBelowRiskyThreshold(t *testing.T) {
	// 51% utilization prices at 21.8571...% annually.
	got := quote(t, decimal.SecondsInYear, 100_000, snapshot(10_000_000, 5_000_000))
	if got.Uint64() != 21_857 {
		t.Errorf("premium = %d, want 21857", got.Uint64())
	}
}

func TestQuotePartialYear(t *testing.T) {
	got := quote(t, 100*24*60*60, 100_000, snapshot(10_000_000, 5_000_000))
	if got.Uint64() != 5_988 {
		t.Errorf("premium = %d, want 5988", got.Uint64())
	}
}

func TestQuoteAboveRiskyThreshold(t *testing.T) {
	// 90% utilization lands at 109.9999999992% annually after the
	// intermediate truncation in the steep branch.
	got := quote(t, decimal.SecondsInYear, 4_000_000, snapshot(10_000_000, 5_000_000))
	if got.Uint64() != 4_399_999 {
		t.Errorf("premium = %d, want 4399999", got.Uint64())
	}
}

func TestQuoteFullUtilization(t *testing.T) {
	got := quote(t, decimal.SecondsInYear, 500_000, snapshot(500_000, 0))
	if got.Uint64() != 750_000 {
		t.Errorf("premium = %d, want 750000", got.Uint64())
	}
}

func TestQuoteMinimumCostFloor(t *testing.T) {
	// 6% utilization would price at ~2.57% annually; the 5% floor wins.
	got := quote(t, decimal.SecondsInYear, 100_000, snapshot(10_000_000, 500_000))
	if got.Uint64() != 5_000 {
		t.Errorf("premium = %d, want 5000", got.Uint64())
	}
}

func TestQuoteSmallCoverAmount(t *testing.T) {
	got := quote(t, decimal.SecondsInYear, 100, snapshot(10_000_000, 500_000))
	if got.Uint64() != 5 {
		t.Errorf("premium = %d, want 5", got.Uint64())
	}
}

func TestQuoteLongDuration(t *testing.T) {
	got := quote(t, 10*decimal.SecondsInYear, 1_000_000_000_000, snapshot(10_000_000_000_000, 5_000_000_000_000))
	if got.Uint64() != 2_185_714_285_710 {
		t.Errorf("premium = %d, want 2185714285710", got.Uint64())
	}
}

func TestQuoteTinyPool(t *testing.T) {
	got := quote(t, 100*decimal.SecondsInYear, 1, snapshot(100, 50))
	if got.Uint64() != 21 {
		t.Errorf("premium = %d, want 21", got.Uint64())
	}
}

func TestQuoteZeroDuration(t *testing.T) {
	got := quote(t, 0, 100_000, snapshot(10_000_000, 5_000_000))
	if !got.IsZero() {
		t.Errorf("premium = %s, want 0", got.Dec())
	}
}

func TestQuoteMonotonicInCoverAmount(t *testing.T) {
	// More cover never costs less, across the floor, the flat branch, the
	// steep branch, and up to full utilization. Flooring may keep two
	// neighbouring premiums equal, never inverted.
	pool := snapshot(10_000_000, 500_000)
	prev := uint256.NewInt(0)
	for requested := uint64(100_000); requested <= 9_500_000; requested += 100_000 {
		got := quote(t, decimal.SecondsInYear, requested, pool)
		if got.Lt(prev) {
			t.Fatalf("premium for %d cover = %s, below %s for less cover", requested, got.Dec(), prev.Dec())
		}
		prev = got
	}
}

func TestQuoteMonotonicInDuration(t *testing.T) {
	pool := snapshot(10_000_000, 5_000_000)
	prev := uint256.NewInt(0)
	for days := uint64(1); days <= 730; days += 7 {
		got := quote(t, days*24*60*60, 100_000, pool)
		if got.Lt(prev) {
			t.Fatalf("premium for %d days = %s, below %s for a shorter policy", days, got.Dec(), prev.Dec())
		}
		prev = got
	}
}

func TestQuoteExceedsCapacity(t *testing.T) {
	_, err := NewEngine(DefaultConfig()).Quote(decimal.SecondsInYear, uint256.NewInt(6_000_000), snapshot(10_000_000, 5_000_000))
	if err != ErrExceedsCapacity {
		t.Errorf("error = %v, want %v", err, ErrExceedsCapacity)
	}
}

func TestQuoteEmptyPool(t *testing.T) {
	_, err := NewEngine(DefaultConfig()).Quote(decimal.SecondsInYear, uint256.NewInt(0), snapshot(0, 0))
	if err != ErrPoolEmpty {
		t.Errorf("error = %v, want %v", err, ErrPoolEmpty)
	}
}

func TestQuoteCapacityCheckedBeforeEmptyPool(t *testing.T) {
	// An empty pool with a nonzero request trips the capacity guard first.
	_, err := NewEngine(DefaultConfig()).Quote(decimal.SecondsInYear, uint256.NewInt(1), snapshot(0, 0))
	if err != ErrExceedsCapacity {
		t.Errorf("error = %v, want %v", err, ErrExceedsCapacity)
	}
}

func TestQuoteUtilizationOverflow(t *testing.T) {
	total := decimal.MustFromDecimal("100000000000000000000000000000000000000000000000000000000000000000000000000000")
	pool := PoolSnapshot{
		TotalLiquidity:   total,
		TotalCoverTokens: decimal.MustFromDecimal("50000000000000000000000000000000000000000000000000000000000000000000000000000"),
	}
	requested := decimal.MustFromDecimal("40000000000000000000000000000000000000000000000000000000000000000000000000000")
	_, err := NewEngine(DefaultConfig()).Quote(decimal.SecondsInYear, requested, pool)
	if err != decimal.ErrOverflow {
		t.Errorf("error = %v, want %v", err, decimal.ErrOverflow)
	}
}
