// Package vesting manages time-locked token schedules with cliffs.
//
// Accrual is strictly period based: a schedule with period P months and
// cliff C periods releases nothing until more than C whole periods have
// elapsed since its start date, then releases amount-per-period for every
// completed period, capped at the schedule total. A protocol month is a
// fixed thirty days. The ledger never reads the wall clock; every
// time-dependent operation takes the evaluation time as a parameter.
package vesting

import (
	"errors"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/decimal"
	"CoverLedger/internal/token"
)

var (
	// ErrNotOwner mirrors the on-chain access-control revert reason.
	ErrNotOwner = errors.New("Ownable: caller is not the owner")

	// ErrNotEnoughTokens is returned when a new schedule would commit
	// more tokens than the ledger holds uncommitted.
	ErrNotEnoughTokens = errors.New("Not enough tokens")

	// ErrNoVesting is returned for unknown or canceled schedule IDs.
	ErrNoVesting = errors.New("Vesting doesnt exist or canceled")

	// ErrNotCancelable is returned when canceling a fixed schedule.
	ErrNotCancelable = errors.New("Vesting is not cancelable")

	// ErrTokenAlreadySet is returned on a second SetToken call.
	ErrTokenAlreadySet = errors.New("token is already set")

	// ErrTokenNotSet is returned when operating before SetToken.
	ErrTokenNotSet = errors.New("token is not set")

	// ErrZeroBeneficiary is returned for schedules aimed at uuid.Nil.
	ErrZeroBeneficiary = errors.New("Vesting beneficiary is a zero address")
)

// Schedule is one vesting position. PaidAmount tracks what has already
// been pushed to the beneficiary; IsValid flips to false on cancel.
type Schedule struct {
	IsValid         bool
	Beneficiary     uuid.UUID
	Amount          *uint256.Int
	StartDate       int64
	PeriodInMonth   uint64
	AmountPerPeriod *uint256.Int
	CliffInPeriods  uint64
	PaidAmount      *uint256.Int
	IsCancelable    bool
}

// ScheduleParams describes a schedule to be created.
type ScheduleParams struct {
	Beneficiary     uuid.UUID
	Amount          *uint256.Int
	StartDate       int64
	PeriodInMonth   uint64
	AmountPerPeriod *uint256.Int
	CliffInPeriods  uint64
	IsCancelable    bool
}

// Ledger owns a token account and doles it out along schedules. Schedule
// IDs are assigned sequentially from zero and are never reused.
type Ledger struct {
	owner            uuid.UUID
	account          uuid.UUID
	token            token.Ledger
	schedules        []*Schedule
	amountInVestings *uint256.Int
}

// NewLedger creates a ledger administered by owner whose token balance
// lives on the given account.
func NewLedger(owner, account uuid.UUID) *Ledger {
	return &Ledger{
		owner:            owner,
		account:          account,
		amountInVestings: uint256.NewInt(0),
	}
}

// SetToken binds the vested token. It can be called exactly once, by the
// owner.
func (l *Ledger) SetToken(caller uuid.UUID, tok token.Ledger) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if l.token != nil {
		return ErrTokenAlreadySet
	}
	l.token = tok
	return nil
}

func (l *Ledger) Owner() uuid.UUID {
	return l.owner
}

func (l *Ledger) Account() uuid.UUID {
	return l.account
}

// Count returns how many schedules were ever created, canceled included.
func (l *Ledger) Count() uint64 {
	return uint64(len(l.schedules))
}

// AmountInVestings returns the total still committed to live schedules.
func (l *Ledger) AmountInVestings() *uint256.Int {
	return new(uint256.Int).Set(l.amountInVestings)
}

// AvailableAmount returns the ledger balance not committed to schedules.
func (l *Ledger) AvailableAmount() (*uint256.Int, error) {
	if l.token == nil {
		return nil, ErrTokenNotSet
	}
	return decimal.Sub(l.token.BalanceOf(l.account), l.amountInVestings)
}

// Vesting returns a copy of the schedule, canceled ones included so
// historical positions stay inspectable.
func (l *Ledger) Vesting(id uint64) (Schedule, error) {
	if id >= uint64(len(l.schedules)) {
		return Schedule{}, ErrNoVesting
	}
	s := l.schedules[id]
	out := *s
	out.Amount = new(uint256.Int).Set(s.Amount)
	out.AmountPerPeriod = new(uint256.Int).Set(s.AmountPerPeriod)
	out.PaidAmount = new(uint256.Int).Set(s.PaidAmount)
	return out, nil
}

// CreateVesting registers a new schedule and commits its amount. Only the
// owner may create schedules, and only up to the uncommitted balance.
func (l *Ledger) CreateVesting(caller uuid.UUID, p ScheduleParams) (uint64, error) {
	if caller != l.owner {
		return 0, ErrNotOwner
	}
	if err := l.checkParams(p); err != nil {
		return 0, err
	}
	return l.append(p)
}

// CreateVestingBulk registers several schedules atomically: every entry
// is validated against the running committed total before any is stored.
func (l *Ledger) CreateVestingBulk(caller uuid.UUID, params []ScheduleParams) ([]uint64, error) {
	if caller != l.owner {
		return nil, ErrNotOwner
	}
	if l.token == nil {
		return nil, ErrTokenNotSet
	}
	needed := new(uint256.Int).Set(l.amountInVestings)
	for _, p := range params {
		if p.Beneficiary == uuid.Nil {
			return nil, ErrZeroBeneficiary
		}
		var err error
		needed, err = decimal.Add(needed, p.Amount)
		if err != nil {
			return nil, err
		}
	}
	if l.token.BalanceOf(l.account).Lt(needed) {
		return nil, ErrNotEnoughTokens
	}
	ids := make([]uint64, 0, len(params))
	for _, p := range params {
		id, err := l.append(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (l *Ledger) checkParams(p ScheduleParams) error {
	if p.Beneficiary == uuid.Nil {
		return ErrZeroBeneficiary
	}
	available, err := l.AvailableAmount()
	if err != nil {
		return err
	}
	if available.Lt(p.Amount) {
		return ErrNotEnoughTokens
	}
	return nil
}

func (l *Ledger) append(p ScheduleParams) (uint64, error) {
	committed, err := decimal.Add(l.amountInVestings, p.Amount)
	if err != nil {
		return 0, err
	}
	l.amountInVestings = committed
	l.schedules = append(l.schedules, &Schedule{
		IsValid:         true,
		Beneficiary:     p.Beneficiary,
		Amount:          new(uint256.Int).Set(p.Amount),
		StartDate:       p.StartDate,
		PeriodInMonth:   p.PeriodInMonth,
		AmountPerPeriod: new(uint256.Int).Set(p.AmountPerPeriod),
		CliffInPeriods:  p.CliffInPeriods,
		PaidAmount:      uint256.NewInt(0),
		IsCancelable:    p.IsCancelable,
	})
	return uint64(len(l.schedules) - 1), nil
}

// CancelVesting invalidates a cancelable schedule and releases its
// unpaid remainder back to the uncommitted balance. Accrued-but-unclaimed
// tokens are forfeited along with the rest.
func (l *Ledger) CancelVesting(caller uuid.UUID, id uint64) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	s, err := l.live(id)
	if err != nil {
		return err
	}
	if !s.IsCancelable {
		return ErrNotCancelable
	}
	remainder, err := decimal.Sub(s.Amount, s.PaidAmount)
	if err != nil {
		return err
	}
	l.amountInVestings, err = decimal.Sub(l.amountInVestings, remainder)
	if err != nil {
		return err
	}
	s.IsValid = false
	return nil
}

// WithdrawableAmount returns what the beneficiary could withdraw at the
// given time. Unknown and canceled schedules report zero.
func (l *Ledger) WithdrawableAmount(id uint64, now int64) *uint256.Int {
	s, err := l.live(id)
	if err != nil {
		return uint256.NewInt(0)
	}
	return withdrawable(s, now)
}

// WithdrawFromVesting pushes everything currently withdrawable to the
// beneficiary and returns the amount moved, which may be zero.
func (l *Ledger) WithdrawFromVesting(id uint64, now int64) (*uint256.Int, error) {
	if l.token == nil {
		return nil, ErrTokenNotSet
	}
	s, err := l.live(id)
	if err != nil {
		return nil, err
	}
	amount := withdrawable(s, now)
	if amount.IsZero() {
		return amount, nil
	}
	if err := l.token.Transfer(l.account, s.Beneficiary, amount); err != nil {
		return nil, err
	}
	s.PaidAmount = new(uint256.Int).Add(s.PaidAmount, amount)
	l.amountInVestings, err = decimal.Sub(l.amountInVestings, amount)
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// WithdrawExcessiveTokens sweeps the uncommitted balance to the owner and
// returns the amount swept.
func (l *Ledger) WithdrawExcessiveTokens(caller uuid.UUID) (*uint256.Int, error) {
	if caller != l.owner {
		return nil, ErrNotOwner
	}
	excess, err := l.AvailableAmount()
	if err != nil {
		return nil, err
	}
	if excess.IsZero() {
		return excess, nil
	}
	if err := l.token.Transfer(l.account, l.owner, excess); err != nil {
		return nil, err
	}
	return excess, nil
}

func (l *Ledger) live(id uint64) (*Schedule, error) {
	if id >= uint64(len(l.schedules)) || !l.schedules[id].IsValid {
		return nil, ErrNoVesting
	}
	return l.schedules[id], nil
}

func withdrawable(s *Schedule, now int64) *uint256.Int {
	if now < s.StartDate {
		return uint256.NewInt(0)
	}
	periodSeconds := int64(s.PeriodInMonth) * decimal.SecondsInMonth
	if periodSeconds <= 0 {
		return uint256.NewInt(0)
	}
	elapsedPeriods := (now - s.StartDate) / periodSeconds
	if elapsedPeriods <= int64(s.CliffInPeriods) {
		return uint256.NewInt(0)
	}
	accrued, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(elapsedPeriods)), s.AmountPerPeriod)
	if overflow || s.Amount.Lt(accrued) {
		accrued = new(uint256.Int).Set(s.Amount)
	}
	out, err := decimal.Sub(accrued, s.PaidAmount)
	if err != nil {
		return uint256.NewInt(0)
	}
	return out
}
