// Package staking locks coverage-pool shares in exchange for a unique
// collectible per position. Positions unlock three months after staking.
package staking

import (
	"errors"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/book"
	"CoverLedger/internal/decimal"
	"CoverLedger/internal/token"
)

var (
	// ErrLocked is returned for withdrawals inside the lock window.
	ErrLocked = errors.New("Staking is locked for 3 months")

	// ErrUnknownStake is returned for token IDs not backing a position.
	ErrUnknownStake = errors.New("Stake does not exist")

	// ErrNotStakeOwner is returned when withdrawing someone else's stake.
	ErrNotStakeOwner = errors.New("Caller is not the stake owner")
)

// LockSeconds is the stake lock window.
const LockSeconds = 3 * decimal.SecondsInMonth

// Stake is one locked position, identified by its collectible token ID.
type Stake struct {
	TokenID  uint64
	Staker   uuid.UUID
	Book     *book.PolicyBook
	Amount   *uint256.Int
	StakedAt int64
}

// Staking holds locked shares across all pools. Position token IDs start
// at two; token ID one is reserved for the fungible share registry.
type Staking struct {
	account     uuid.UUID
	nft         *token.Collectibles
	nextTokenID uint64
	stakes      map[uint64]*Stake
}

func NewStaking(account uuid.UUID, nft *token.Collectibles) *Staking {
	return &Staking{
		account:     account,
		nft:         nft,
		nextTokenID: 2,
		stakes:      make(map[uint64]*Stake),
	}
}

func (s *Staking) Account() uuid.UUID {
	return s.account
}

// StakeShares locks amount of the staker's pool shares and mints a
// unique position collectible. Returns the position token ID.
func (s *Staking) StakeShares(staker uuid.UUID, pb *book.PolicyBook, amount *uint256.Int, now int64) (uint64, error) {
	if err := pb.TransferShares(staker, s.account, amount); err != nil {
		return 0, err
	}
	tokenID := s.nextTokenID
	if err := s.nft.Mint(staker, tokenID, 1); err != nil {
		return 0, err
	}
	s.nextTokenID++
	s.stakes[tokenID] = &Stake{
		TokenID:  tokenID,
		Staker:   staker,
		Book:     pb,
		Amount:   new(uint256.Int).Set(amount),
		StakedAt: now,
	}
	return tokenID, nil
}

// WithdrawShares returns the locked shares to the position's current
// collectible owner once the lock has expired.
func (s *Staking) WithdrawShares(caller uuid.UUID, tokenID uint64, now int64) (*uint256.Int, error) {
	stake, ok := s.stakes[tokenID]
	if !ok {
		return nil, ErrUnknownStake
	}
	owner, err := s.nft.OwnerOfNFT(tokenID)
	if err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, ErrNotStakeOwner
	}
	if now < stake.StakedAt+LockSeconds {
		return nil, ErrLocked
	}
	if err := stake.Book.TransferShares(s.account, caller, stake.Amount); err != nil {
		return nil, err
	}
	amount := stake.Amount
	delete(s.stakes, tokenID)
	return new(uint256.Int).Set(amount), nil
}

// StakeOf returns the position backing a collectible token ID.
func (s *Staking) StakeOf(tokenID uint64) (Stake, error) {
	stake, ok := s.stakes[tokenID]
	if !ok {
		return Stake{}, ErrUnknownStake
	}
	out := *stake
	out.Amount = new(uint256.Int).Set(stake.Amount)
	return out, nil
}

// HowManyStakings counts the staker's open positions by current
// collectible ownership.
func (s *Staking) HowManyStakings(staker uuid.UUID) int {
	count := 0
	for tokenID := range s.stakes {
		if owner, err := s.nft.OwnerOfNFT(tokenID); err == nil && owner == staker {
			count++
		}
	}
	return count
}

// OpenPositions returns the number of currently locked positions.
func (s *Staking) OpenPositions() int {
	return len(s.stakes)
}

// TotalStaked sums the locked shares for one pool.
func (s *Staking) TotalStaked(pb *book.PolicyBook) *uint256.Int {
	total := uint256.NewInt(0)
	for _, stake := range s.stakes {
		if stake.Book == pb {
			total.Add(total, stake.Amount)
		}
	}
	return total
}
