// Package token provides the in-memory asset ledgers the harness runs
// against: a fungible balance book with allowances and a collectibles
// ledger that distinguishes unique items from fungible ones.
//
// Accounts are identified by UUID; uuid.Nil is the zero address and is
// never a valid holder. Amounts are 256-bit integers in 1e18 scale.
package token

import (
	"errors"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/decimal"
)

var (
	// ErrInsufficientBalance mirrors the on-chain revert reason.
	ErrInsufficientBalance = errors.New("ERC20: transfer amount exceeds balance")

	// ErrInsufficientAllowance is returned when a delegated transfer
	// exceeds the spender's approval.
	ErrInsufficientAllowance = errors.New("ERC20: transfer amount exceeds allowance")

	// ErrZeroAddress is returned for transfers to or from uuid.Nil.
	ErrZeroAddress = errors.New("ERC20: transfer to the zero address")
)

// Ledger is the fungible-token surface the protocol engines depend on.
type Ledger interface {
	BalanceOf(holder uuid.UUID) *uint256.Int
	TotalSupply() *uint256.Int
	Transfer(from, to uuid.UUID, amount *uint256.Int) error
	TransferFrom(spender, from, to uuid.UUID, amount *uint256.Int) error
	Approve(owner, spender uuid.UUID, amount *uint256.Int) error
	Allowance(owner, spender uuid.UUID) *uint256.Int
}

type allowanceKey struct {
	owner   uuid.UUID
	spender uuid.UUID
}

// BalanceBook is the in-memory Ledger implementation.
type BalanceBook struct {
	symbol      string
	balances    map[uuid.UUID]*uint256.Int
	allowances  map[allowanceKey]*uint256.Int
	totalSupply *uint256.Int
}

func NewBalanceBook(symbol string) *BalanceBook {
	return &BalanceBook{
		symbol:      symbol,
		balances:    make(map[uuid.UUID]*uint256.Int),
		allowances:  make(map[allowanceKey]*uint256.Int),
		totalSupply: uint256.NewInt(0),
	}
}

func (b *BalanceBook) Symbol() string {
	return b.symbol
}

// Mint credits newly issued tokens to holder.
func (b *BalanceBook) Mint(holder uuid.UUID, amount *uint256.Int) error {
	if holder == uuid.Nil {
		return ErrZeroAddress
	}
	supply, err := decimal.Add(b.totalSupply, amount)
	if err != nil {
		return err
	}
	b.totalSupply = supply
	b.credit(holder, amount)
	return nil
}

func (b *BalanceBook) BalanceOf(holder uuid.UUID) *uint256.Int {
	if bal, ok := b.balances[holder]; ok {
		return new(uint256.Int).Set(bal)
	}
	return uint256.NewInt(0)
}

func (b *BalanceBook) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(b.totalSupply)
}

func (b *BalanceBook) Transfer(from, to uuid.UUID, amount *uint256.Int) error {
	if from == uuid.Nil || to == uuid.Nil {
		return ErrZeroAddress
	}
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.credit(to, amount)
	return nil
}

func (b *BalanceBook) TransferFrom(spender, from, to uuid.UUID, amount *uint256.Int) error {
	if spender != from {
		key := allowanceKey{owner: from, spender: spender}
		allowed, ok := b.allowances[key]
		if !ok || allowed.Lt(amount) {
			return ErrInsufficientAllowance
		}
		remaining, err := decimal.Sub(allowed, amount)
		if err != nil {
			return err
		}
		b.allowances[key] = remaining
	}
	return b.Transfer(from, to, amount)
}

func (b *BalanceBook) Approve(owner, spender uuid.UUID, amount *uint256.Int) error {
	if owner == uuid.Nil || spender == uuid.Nil {
		return ErrZeroAddress
	}
	b.allowances[allowanceKey{owner: owner, spender: spender}] = new(uint256.Int).Set(amount)
	return nil
}

func (b *BalanceBook) Allowance(owner, spender uuid.UUID) *uint256.Int {
	if allowed, ok := b.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return new(uint256.Int).Set(allowed)
	}
	return uint256.NewInt(0)
}

func (b *BalanceBook) credit(holder uuid.UUID, amount *uint256.Int) {
	bal, ok := b.balances[holder]
	if !ok {
		bal = uint256.NewInt(0)
		b.balances[holder] = bal
	}
	bal.Add(bal, amount)
}

func (b *BalanceBook) debit(holder uuid.UUID, amount *uint256.Int) error {
	bal, ok := b.balances[holder]
	if !ok || bal.Lt(amount) {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}
