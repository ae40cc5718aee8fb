package vesting

import (
	"testing"

	"github.com/google/uuid"

	"CoverLedger/internal/decimal"
	"CoverLedger/internal/token"
)

const tge = int64(1_609_325_103)

func fillProduction(t *testing.T) (*Ledger, []uint64, map[string]uuid.UUID) {
	t.Helper()
	book := token.NewBalanceBook("BMI")
	if err := book.Mint(treasury, decimal.Wei(160_000_000)); err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	l := NewLedger(owner, treasury)
	if err := l.SetToken(owner, book); err != nil {
		t.Fatalf("SetToken returned error: %v", err)
	}

	beneficiaries := make(map[string]uuid.UUID)
	for _, r := range ProductionRounds() {
		if _, ok := beneficiaries[r.Name]; !ok {
			beneficiaries[r.Name] = uuid.New()
		}
	}
	ids, err := FillRounds(l, owner, tge, beneficiaries)
	if err != nil {
		t.Fatalf("FillRounds returned error: %v", err)
	}
	return l, ids, beneficiaries
}

func TestRoundSupplyMatchesToken(t *testing.T) {
	if got := TotalRoundSupply().Uint64(); got != 160_000_000 {
		t.Errorf("TotalRoundSupply = %d, want 160000000", got)
	}
}

func TestFillRoundsCommitsEverything(t *testing.T) {
	l, ids, _ := fillProduction(t)
	if len(ids) != 21 {
		t.Fatalf("created %d schedules, want 21", len(ids))
	}
	if l.Count() != 21 {
		t.Errorf("Count = %d, want 21", l.Count())
	}
	if got := l.AmountInVestings(); !got.Eq(decimal.Wei(160_000_000)) {
		t.Errorf("amount in vestings = %s, want full supply", got.Dec())
	}
	available, err := l.AvailableAmount()
	if err != nil {
		t.Fatalf("AvailableAmount returned error: %v", err)
	}
	if !available.IsZero() {
		t.Errorf("available = %s, want 0", available.Dec())
	}
}

func TestImmediateRoundsPayAtGeneration(t *testing.T) {
	l, ids, _ := fillProduction(t)

	// Round 0 is the angel allocation: one period pre-elapsed.
	if got := l.WithdrawableAmount(ids[0], tge); !got.Eq(decimal.Wei(400_000)) {
		t.Errorf("angel at generation = %s, want 400000e18", got.Dec())
	}
	// Round 3 is the private allocation.
	if got := l.WithdrawableAmount(ids[3], tge); !got.Eq(decimal.Wei(2_700_000)) {
		t.Errorf("private at generation = %s, want 2700000e18", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[3], tge+month); !got.Eq(decimal.Wei(5_400_000)) {
		t.Errorf("private after one month = %s, want 5400000e18", got.Dec())
	}
	// Round 5 is liquidity mining.
	if got := l.WithdrawableAmount(ids[5], tge); !got.Eq(decimal.Wei(6_000_000)) {
		t.Errorf("liquidity mining at generation = %s, want 6000000e18", got.Dec())
	}
}

func TestCliffRounds(t *testing.T) {
	l, ids, _ := fillProduction(t)

	// Round 6 is the first growth tranche, three-period cliff.
	if got := l.WithdrawableAmount(ids[6], tge); !got.IsZero() {
		t.Errorf("growth at generation = %s, want 0", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[6], tge+3*month); !got.IsZero() {
		t.Errorf("growth inside cliff = %s, want 0", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[6], tge+4*month); !got.Eq(decimal.Wei(1_680_000)) {
		t.Errorf("growth past cliff = %s, want 1680000e18", got.Dec())
	}
}

func TestDelayedRounds(t *testing.T) {
	l, ids, _ := fillProduction(t)

	// Round 9 is the second staffing tranche, delayed a year.
	if got := l.WithdrawableAmount(ids[9], tge+12*month); !got.IsZero() {
		t.Errorf("staffing at its start = %s, want 0", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[9], tge+13*month); !got.Eq(decimal.Wei(75_000)) {
		t.Errorf("staffing one month in = %s, want 75000e18", got.Dec())
	}
}

func TestQuarterlyRound(t *testing.T) {
	l, ids, _ := fillProduction(t)

	// Round 18 is bug finding: quarterly periods, first pre-elapsed.
	if got := l.WithdrawableAmount(ids[18], tge); !got.Eq(decimal.Wei(1_000_000)) {
		t.Errorf("bug finding at generation = %s, want 1000000e18", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[18], tge+3*month); !got.Eq(decimal.Wei(2_000_000)) {
		t.Errorf("bug finding one quarter in = %s, want 2000000e18", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[18], tge+9*month); !got.Eq(decimal.Wei(2_000_000)) {
		t.Errorf("bug finding capped = %s, want 2000000e18", got.Dec())
	}
}

func TestAdvisorsSecondTranche(t *testing.T) {
	l, ids, _ := fillProduction(t)

	// Round 17 is the delayed advisors tranche: 8.66% of the six million
	// advisor allocation per month, starting four months in.
	if got := l.WithdrawableAmount(ids[17], tge+4*month); !got.IsZero() {
		t.Errorf("advisors at its start = %s, want 0", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[17], tge+5*month); !got.Eq(decimal.Wei(519_600)) {
		t.Errorf("advisors one month in = %s, want 519600e18", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[17], tge+12*month); !got.Eq(decimal.Wei(2_400_000)) {
		t.Errorf("advisors capped = %s, want 2400000e18", got.Dec())
	}
}

func TestVaultTranches(t *testing.T) {
	l, ids, _ := fillProduction(t)

	// Both vault tranches release fractions of the full ten million vault
	// allocation: 5% per month behind a one-period cliff, then 4% per
	// month starting five months in.
	if got := l.WithdrawableAmount(ids[19], tge+month); !got.IsZero() {
		t.Errorf("vault inside cliff = %s, want 0", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[19], tge+2*month); !got.Eq(decimal.Wei(1_000_000)) {
		t.Errorf("vault past cliff = %s, want 1000000e18", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[20], tge+5*month); !got.IsZero() {
		t.Errorf("delayed vault at its start = %s, want 0", got.Dec())
	}
	if got := l.WithdrawableAmount(ids[20], tge+6*month); !got.Eq(decimal.Wei(400_000)) {
		t.Errorf("delayed vault one month in = %s, want 400000e18", got.Dec())
	}
}

func TestNoRoundIsCancelable(t *testing.T) {
	l, ids, _ := fillProduction(t)
	for _, id := range ids {
		if err := l.CancelVesting(owner, id); err != ErrNotCancelable {
			t.Errorf("cancel schedule %d: error = %v, want %v", id, err, ErrNotCancelable)
		}
	}
}

func TestFillRoundsMissingBeneficiary(t *testing.T) {
	l, _ := newLedger(t, 1000)
	if _, err := FillRounds(l, owner, tge, map[string]uuid.UUID{}); err == nil {
		t.Error("FillRounds with no beneficiaries succeeded, want error")
	}
	if l.Count() != 0 {
		t.Errorf("Count after failed fill = %d, want 0", l.Count())
	}
}
