// Package book implements coverage pools. A policy book holds DAI
// liquidity for one insured contract, issues pool shares to liquidity
// providers, and sells coverage priced by the utilization curve.
package book

import (
	"errors"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/decimal"
	"CoverLedger/internal/pricing"
	"CoverLedger/internal/token"
)

// ContractType classifies what kind of contract a pool covers.
type ContractType int

const (
	Stablecoin ContractType = iota
	DeFi
	Contract
	Exchange
)

func (t ContractType) String() string {
	switch t {
	case Stablecoin:
		return "STABLECOIN"
	case DeFi:
		return "DEFI"
	case Contract:
		return "CONTRACT"
	case Exchange:
		return "EXCHANGE"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrPolicyExists is returned when a holder buys a second policy.
	ErrPolicyExists = errors.New("The policy holder already exists")

	// ErrNotEnoughLiquidity is returned when a withdrawal would dip into
	// liquidity backing active coverage.
	ErrNotEnoughLiquidity = errors.New("Not enough available liquidity")

	// ErrWithdrawTooMuch is returned when a provider withdraws more than
	// its share balance.
	ErrWithdrawTooMuch = errors.New("The amount to be withdrawn is greater than the deposited amount")

	// ErrPremiumOverMax is returned when the quoted premium exceeds the
	// buyer's maximum.
	ErrPremiumOverMax = errors.New("The quoted premium exceeds the maximum DAI amount")
)

// PolicyHolder is one active coverage position.
type PolicyHolder struct {
	PaidDAI         *uint256.Int
	CoverTokens     *uint256.Int
	DurationSeconds uint64
	MaxDAITokens    *uint256.Int
	PurchasedAt     int64
}

// PolicyBook is one coverage pool. Shares are issued one to one against
// deposited DAI and are freely transferable between providers.
type PolicyBook struct {
	account      uuid.UUID
	insured      uuid.UUID
	contractType ContractType

	dai    token.Ledger
	quoter *pricing.Engine

	totalLiquidity   *uint256.Int
	totalCoverTokens *uint256.Int

	shares      map[uuid.UUID]*uint256.Int
	totalShares *uint256.Int

	holders map[uuid.UUID]*PolicyHolder
}

func NewPolicyBook(account, insured uuid.UUID, contractType ContractType, dai token.Ledger, quoter *pricing.Engine) *PolicyBook {
	return &PolicyBook{
		account:          account,
		insured:          insured,
		contractType:     contractType,
		dai:              dai,
		quoter:           quoter,
		totalLiquidity:   uint256.NewInt(0),
		totalCoverTokens: uint256.NewInt(0),
		shares:           make(map[uuid.UUID]*uint256.Int),
		totalShares:      uint256.NewInt(0),
		holders:          make(map[uuid.UUID]*PolicyHolder),
	}
}

func (b *PolicyBook) Account() uuid.UUID {
	return b.account
}

func (b *PolicyBook) Insured() uuid.UUID {
	return b.insured
}

func (b *PolicyBook) ContractType() ContractType {
	return b.contractType
}

func (b *PolicyBook) TotalLiquidity() *uint256.Int {
	return new(uint256.Int).Set(b.totalLiquidity)
}

func (b *PolicyBook) TotalCoverTokens() *uint256.Int {
	return new(uint256.Int).Set(b.totalCoverTokens)
}

func (b *PolicyBook) TotalShares() *uint256.Int {
	return new(uint256.Int).Set(b.totalShares)
}

func (b *PolicyBook) SharesOf(holder uuid.UUID) *uint256.Int {
	if s, ok := b.shares[holder]; ok {
		return new(uint256.Int).Set(s)
	}
	return uint256.NewInt(0)
}

// Policy returns the holder's active position, if any.
func (b *PolicyBook) Policy(holder uuid.UUID) (PolicyHolder, bool) {
	p, ok := b.holders[holder]
	if !ok {
		return PolicyHolder{}, false
	}
	out := *p
	out.PaidDAI = new(uint256.Int).Set(p.PaidDAI)
	out.CoverTokens = new(uint256.Int).Set(p.CoverTokens)
	out.MaxDAITokens = new(uint256.Int).Set(p.MaxDAITokens)
	return out, true
}

func (b *PolicyBook) snapshot() pricing.PoolSnapshot {
	return pricing.PoolSnapshot{
		TotalLiquidity:   b.totalLiquidity,
		TotalCoverTokens: b.totalCoverTokens,
	}
}

// Quote prices coverage against the current pool state without buying.
func (b *PolicyBook) Quote(durationSeconds uint64, coverTokens *uint256.Int) (*uint256.Int, error) {
	return b.quoter.Quote(durationSeconds, coverTokens, b.snapshot())
}

// AddLiquidity pulls DAI from the provider and issues shares one to one.
// The provider must have approved the pool account beforehand.
func (b *PolicyBook) AddLiquidity(provider uuid.UUID, amount *uint256.Int) error {
	if err := b.dai.TransferFrom(b.account, provider, b.account, amount); err != nil {
		return err
	}
	liquidity, err := decimal.Add(b.totalLiquidity, amount)
	if err != nil {
		return err
	}
	b.totalLiquidity = liquidity
	b.creditShares(provider, amount)
	return nil
}

// WithdrawLiquidity burns the provider's shares and returns DAI. Only
// liquidity not backing active coverage can leave the pool.
func (b *PolicyBook) WithdrawLiquidity(provider uuid.UUID, amount *uint256.Int) error {
	held := b.shares[provider]
	if held == nil || held.Lt(amount) {
		return ErrWithdrawTooMuch
	}
	available, err := decimal.Sub(b.totalLiquidity, b.totalCoverTokens)
	if err != nil {
		return err
	}
	if available.Lt(amount) {
		return ErrNotEnoughLiquidity
	}
	if err := b.dai.Transfer(b.account, provider, amount); err != nil {
		return err
	}
	held.Sub(held, amount)
	b.totalShares.Sub(b.totalShares, amount)
	b.totalLiquidity.Sub(b.totalLiquidity, amount)
	return nil
}

// TransferShares moves pool shares between providers.
func (b *PolicyBook) TransferShares(from, to uuid.UUID, amount *uint256.Int) error {
	held := b.shares[from]
	if held == nil || held.Lt(amount) {
		return token.ErrInsufficientBalance
	}
	held.Sub(held, amount)
	b.totalShares.Sub(b.totalShares, amount)
	b.creditShares(to, amount)
	return nil
}

func (b *PolicyBook) creditShares(holder uuid.UUID, amount *uint256.Int) {
	s, ok := b.shares[holder]
	if !ok {
		s = uint256.NewInt(0)
		b.shares[holder] = s
	}
	s.Add(s, amount)
	b.totalShares.Add(b.totalShares, amount)
}

// BuyPolicy sells coverTokens of coverage for durationSeconds, pulling
// the quoted premium from the holder. One active policy per holder, and
// the pool must hold enough liquidity to back the new coverage. The
// premium must not exceed maxDAITokens. Returns the premium paid.
func (b *PolicyBook) BuyPolicy(holder uuid.UUID, durationSeconds uint64, coverTokens, maxDAITokens *uint256.Int, now int64) (*uint256.Int, error) {
	if _, exists := b.holders[holder]; exists {
		return nil, ErrPolicyExists
	}
	cover, err := decimal.Add(b.totalCoverTokens, coverTokens)
	if err != nil {
		return nil, err
	}
	if b.totalLiquidity.Lt(cover) {
		return nil, ErrNotEnoughLiquidity
	}
	premium, err := b.quoter.Quote(durationSeconds, coverTokens, b.snapshot())
	if err != nil {
		return nil, err
	}
	if maxDAITokens != nil && premium.Gt(maxDAITokens) {
		return nil, ErrPremiumOverMax
	}
	if err := b.dai.TransferFrom(b.account, holder, b.account, premium); err != nil {
		return nil, err
	}
	b.totalCoverTokens = cover
	b.holders[holder] = &PolicyHolder{
		PaidDAI:         new(uint256.Int).Set(premium),
		CoverTokens:     new(uint256.Int).Set(coverTokens),
		DurationSeconds: durationSeconds,
		MaxDAITokens:    new(uint256.Int).Set(maxDAITokens),
		PurchasedAt:     now,
	}
	return premium, nil
}
