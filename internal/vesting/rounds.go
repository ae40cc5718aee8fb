package vesting

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/decimal"
)

// Round names used by the token generation event allocation plan. Several
// rounds are split across two schedules with different release shapes.
const (
	RoundAngel            = "angel"
	RoundSeed             = "seed"
	RoundPrivate          = "private"
	RoundListings         = "listings"
	RoundLiquidityMining  = "liquidityMining"
	RoundGrowth           = "growth"
	RoundStaffing         = "staffing"
	RoundOperational      = "operational"
	RoundMarketing        = "marketing"
	RoundDiscretionary    = "discretionary"
	RoundProtectionMining = "protection"
	RoundFounders         = "founders"
	RoundDevelopers       = "developers"
	RoundAdvisors         = "advisors"
	RoundBugFinding       = "bugFinding"
	RoundVault            = "vault"
)

// RoundSpec is one allocation-plan schedule, amounts in whole tokens.
// DelayInMonth shifts the start date forward from the generation event;
// FirstPeriodImmediatelyReady shifts it back one full period so the first
// tranche is claimable right away.
type RoundSpec struct {
	Name                        string
	Amount                      uint64
	AmountPerPeriod             uint64
	PeriodInMonth               uint64
	CliffInPeriods              uint64
	DelayInMonth                uint64
	FirstPeriodImmediatelyReady bool
	IsCancelable                bool
}

// StartDate resolves the schedule start relative to the generation event.
func (r RoundSpec) StartDate(tge int64) int64 {
	start := tge + int64(r.DelayInMonth)*decimal.SecondsInMonth
	if r.FirstPeriodImmediatelyReady {
		start -= int64(r.PeriodInMonth) * decimal.SecondsInMonth
	}
	return start
}

// Params converts the round into schedule parameters for beneficiary.
func (r RoundSpec) Params(tge int64, beneficiary uuid.UUID) ScheduleParams {
	return ScheduleParams{
		Beneficiary:     beneficiary,
		Amount:          decimal.Wei(r.Amount),
		StartDate:       r.StartDate(tge),
		PeriodInMonth:   r.PeriodInMonth,
		AmountPerPeriod: decimal.Wei(r.AmountPerPeriod),
		CliffInPeriods:  r.CliffInPeriods,
		IsCancelable:    r.IsCancelable,
	}
}

// ProductionRounds returns the full allocation plan. The amounts sum to
// the 160,000,000 token supply.
func ProductionRounds() []RoundSpec {
	return []RoundSpec{
		{Name: RoundAngel, Amount: 800_000, AmountPerPeriod: 400_000, PeriodInMonth: 1, FirstPeriodImmediatelyReady: true},
		{Name: RoundSeed, Amount: 1_120_000, AmountPerPeriod: 280_000, PeriodInMonth: 2, FirstPeriodImmediatelyReady: true},
		{Name: RoundSeed, Amount: 1_120_000, AmountPerPeriod: 1_120_000, PeriodInMonth: 1},
		{Name: RoundPrivate, Amount: 10_800_000, AmountPerPeriod: 2_700_000, PeriodInMonth: 1, FirstPeriodImmediatelyReady: true},
		{Name: RoundListings, Amount: 5_000_000, AmountPerPeriod: 5_000_000, PeriodInMonth: 1, FirstPeriodImmediatelyReady: true},
		{Name: RoundLiquidityMining, Amount: 60_000_000, AmountPerPeriod: 6_000_000, PeriodInMonth: 1, FirstPeriodImmediatelyReady: true},
		{Name: RoundGrowth, Amount: 3_780_000, AmountPerPeriod: 420_000, PeriodInMonth: 1, CliffInPeriods: 3},
		{Name: RoundGrowth, Amount: 10_220_000, AmountPerPeriod: 280_000, PeriodInMonth: 1, DelayInMonth: 9},
		{Name: RoundStaffing, Amount: 1_500_000, AmountPerPeriod: 125_000, PeriodInMonth: 1, CliffInPeriods: 1},
		{Name: RoundStaffing, Amount: 1_000_000, AmountPerPeriod: 75_000, PeriodInMonth: 1, DelayInMonth: 12},
		{Name: RoundOperational, Amount: 3_000_000, AmountPerPeriod: 30_000, PeriodInMonth: 1},
		{Name: RoundMarketing, Amount: 9_500_000, AmountPerPeriod: 95_000, PeriodInMonth: 1},
		{Name: RoundDiscretionary, Amount: 1_160_000, AmountPerPeriod: 2_320, PeriodInMonth: 1, CliffInPeriods: 3},
		{Name: RoundProtectionMining, Amount: 9_000_000, AmountPerPeriod: 45_000, PeriodInMonth: 1, CliffInPeriods: 12},
		{Name: RoundFounders, Amount: 16_000_000, AmountPerPeriod: 40_000, PeriodInMonth: 1},
		{Name: RoundDevelopers, Amount: 8_000_000, AmountPerPeriod: 20_000, PeriodInMonth: 1},
		{Name: RoundAdvisors, Amount: 3_600_000, AmountPerPeriod: 720_000, PeriodInMonth: 1, FirstPeriodImmediatelyReady: true},
		{Name: RoundAdvisors, Amount: 2_400_000, AmountPerPeriod: 519_600, PeriodInMonth: 1, DelayInMonth: 4},
		{Name: RoundBugFinding, Amount: 2_000_000, AmountPerPeriod: 1_000_000, PeriodInMonth: 3, FirstPeriodImmediatelyReady: true},
		{Name: RoundVault, Amount: 2_500_000, AmountPerPeriod: 500_000, PeriodInMonth: 1, CliffInPeriods: 1},
		{Name: RoundVault, Amount: 7_500_000, AmountPerPeriod: 400_000, PeriodInMonth: 1, DelayInMonth: 5},
	}
}

// TotalRoundSupply sums the allocation plan, in whole tokens.
func TotalRoundSupply() *uint256.Int {
	total := uint256.NewInt(0)
	for _, r := range ProductionRounds() {
		total.Add(total, uint256.NewInt(r.Amount))
	}
	return total
}

// FillRounds creates one schedule per production round, resolving each
// round name to its beneficiary. Creation is atomic: a missing
// beneficiary or an over-committed ledger leaves nothing created.
func FillRounds(l *Ledger, caller uuid.UUID, tge int64, beneficiaries map[string]uuid.UUID) ([]uint64, error) {
	rounds := ProductionRounds()
	params := make([]ScheduleParams, 0, len(rounds))
	for _, r := range rounds {
		beneficiary, ok := beneficiaries[r.Name]
		if !ok {
			return nil, fmt.Errorf("no beneficiary for round %q", r.Name)
		}
		params = append(params, r.Params(tge, beneficiary))
	}
	return l.CreateVestingBulk(caller, params)
}
