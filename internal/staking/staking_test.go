package staking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/book"
	"CoverLedger/internal/pricing"
	"CoverLedger/internal/token"
)

var (
	staker = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	friend = uuid.MustParse("00000000-0000-0000-0000-0000000000b2")
)

const stakedAt = int64(1_700_000_000)

func newStaking(t *testing.T) (*Staking, *book.PolicyBook, *token.Collectibles) {
	t.Helper()
	dai := token.NewBalanceBook("DAI")
	pb := book.NewPolicyBook(uuid.New(), uuid.New(), book.DeFi, dai, pricing.NewEngine(pricing.DefaultConfig()))
	for _, holder := range []uuid.UUID{staker, friend} {
		if err := dai.Mint(holder, uint256.NewInt(1_000_000)); err != nil {
			t.Fatalf("Mint returned error: %v", err)
		}
		if err := dai.Approve(holder, pb.Account(), uint256.NewInt(1_000_000)); err != nil {
			t.Fatalf("Approve returned error: %v", err)
		}
	}
	if err := pb.AddLiquidity(staker, uint256.NewInt(500_000)); err != nil {
		t.Fatalf("AddLiquidity returned error: %v", err)
	}
	nft := token.NewCollectibles()
	return NewStaking(uuid.New(), nft), pb, nft
}

func TestStakeMintsPositionToken(t *testing.T) {
	s, pb, nft := newStaking(t)
	tokenID, err := s.StakeShares(staker, pb, uint256.NewInt(100_000), stakedAt)
	if err != nil {
		t.Fatalf("StakeShares returned error: %v", err)
	}
	if tokenID != 2 {
		t.Errorf("first position token id = %d, want 2", tokenID)
	}
	owner, err := nft.OwnerOfNFT(tokenID)
	if err != nil {
		t.Fatalf("OwnerOfNFT returned error: %v", err)
	}
	if owner != staker {
		t.Errorf("position owner = %s, want %s", owner, staker)
	}
	if got := pb.SharesOf(staker).Uint64(); got != 400_000 {
		t.Errorf("staker shares = %d, want 400000", got)
	}
	if got := pb.SharesOf(s.Account()).Uint64(); got != 100_000 {
		t.Errorf("staking shares = %d, want 100000", got)
	}
	if got := s.HowManyStakings(staker); got != 1 {
		t.Errorf("HowManyStakings = %d, want 1", got)
	}

	tokenID, err = s.StakeShares(staker, pb, uint256.NewInt(50_000), stakedAt)
	if err != nil {
		t.Fatalf("second StakeShares returned error: %v", err)
	}
	if tokenID != 3 {
		t.Errorf("second position token id = %d, want 3", tokenID)
	}
	if got := s.TotalStaked(pb).Uint64(); got != 150_000 {
		t.Errorf("TotalStaked = %d, want 150000", got)
	}
}

func TestStakeMoreThanHeld(t *testing.T) {
	s, pb, _ := newStaking(t)
	_, err := s.StakeShares(staker, pb, uint256.NewInt(600_000), stakedAt)
	if err != token.ErrInsufficientBalance {
		t.Errorf("error = %v, want %v", err, token.ErrInsufficientBalance)
	}
}

func TestWithdrawBeforeLockExpires(t *testing.T) {
	s, pb, _ := newStaking(t)
	tokenID, _ := s.StakeShares(staker, pb, uint256.NewInt(100_000), stakedAt)
	_, err := s.WithdrawShares(staker, tokenID, stakedAt+LockSeconds-1)
	if err != ErrLocked {
		t.Errorf("error = %v, want %v", err, ErrLocked)
	}
}

func TestWithdrawAfterLock(t *testing.T) {
	s, pb, _ := newStaking(t)
	tokenID, _ := s.StakeShares(staker, pb, uint256.NewInt(100_000), stakedAt)
	got, err := s.WithdrawShares(staker, tokenID, stakedAt+LockSeconds)
	if err != nil {
		t.Fatalf("WithdrawShares returned error: %v", err)
	}
	if got.Uint64() != 100_000 {
		t.Errorf("withdrawn = %d, want 100000", got.Uint64())
	}
	if got := pb.SharesOf(staker).Uint64(); got != 500_000 {
		t.Errorf("staker shares = %d, want 500000", got)
	}
	if _, err := s.WithdrawShares(staker, tokenID, stakedAt+LockSeconds); err != ErrUnknownStake {
		t.Errorf("second withdraw error = %v, want %v", err, ErrUnknownStake)
	}
}

func TestWithdrawFollowsTokenOwnership(t *testing.T) {
	s, pb, nft := newStaking(t)
	tokenID, _ := s.StakeShares(staker, pb, uint256.NewInt(100_000), stakedAt)

	if _, err := s.WithdrawShares(friend, tokenID, stakedAt+LockSeconds); err != ErrNotStakeOwner {
		t.Errorf("error = %v, want %v", err, ErrNotStakeOwner)
	}

	// Transferring the position collectible transfers the claim.
	if err := nft.Transfer(staker, friend, tokenID, 1); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if _, err := s.WithdrawShares(staker, tokenID, stakedAt+LockSeconds); err != ErrNotStakeOwner {
		t.Errorf("previous owner error = %v, want %v", err, ErrNotStakeOwner)
	}
	if _, err := s.WithdrawShares(friend, tokenID, stakedAt+LockSeconds); err != nil {
		t.Errorf("new owner withdraw returned error: %v", err)
	}
	if got := pb.SharesOf(friend).Uint64(); got != 100_000 {
		t.Errorf("friend shares = %d, want 100000", got)
	}
}

func TestWithdrawUnknownStake(t *testing.T) {
	s, _, _ := newStaking(t)
	if _, err := s.WithdrawShares(staker, 42, stakedAt); err != ErrUnknownStake {
		t.Errorf("error = %v, want %v", err, ErrUnknownStake)
	}
}
