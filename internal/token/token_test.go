package token

import (
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	bob   = uuid.MustParse("00000000-0000-0000-0000-0000000000b2")
	carol = uuid.MustParse("00000000-0000-0000-0000-0000000000c3")
)

// ---------------------------------------------------------------------------
// BalanceBook
// ---------------------------------------------------------------------------

func TestTransfer(t *testing.T) {
	book := NewBalanceBook("DAI")
	if err := book.Mint(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	if err := book.Transfer(alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	if got := book.BalanceOf(alice).Uint64(); got != 60 {
		t.Errorf("alice balance = %d, want 60", got)
	}
	if got := book.BalanceOf(bob).Uint64(); got != 40 {
		t.Errorf("bob balance = %d, want 40", got)
	}
	if got := book.TotalSupply().Uint64(); got != 100 {
		t.Errorf("total supply = %d, want 100", got)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	book := NewBalanceBook("DAI")
	book.Mint(alice, uint256.NewInt(10))
	err := book.Transfer(alice, bob, uint256.NewInt(11))
	if err != ErrInsufficientBalance {
		t.Errorf("error = %v, want %v", err, ErrInsufficientBalance)
	}
	if got := book.BalanceOf(alice).Uint64(); got != 10 {
		t.Errorf("alice balance after failed transfer = %d, want 10", got)
	}
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	book := NewBalanceBook("DAI")
	book.Mint(alice, uint256.NewInt(100))
	book.Approve(alice, bob, uint256.NewInt(70))

	if err := book.TransferFrom(bob, alice, carol, uint256.NewInt(50)); err != nil {
		t.Fatalf("TransferFrom returned error: %v", err)
	}
	if got := book.Allowance(alice, bob).Uint64(); got != 20 {
		t.Errorf("remaining allowance = %d, want 20", got)
	}
	if err := book.TransferFrom(bob, alice, carol, uint256.NewInt(21)); err != ErrInsufficientAllowance {
		t.Errorf("error = %v, want %v", err, ErrInsufficientAllowance)
	}
}

func TestTransferFromSelfNeedsNoAllowance(t *testing.T) {
	book := NewBalanceBook("DAI")
	book.Mint(alice, uint256.NewInt(100))
	if err := book.TransferFrom(alice, alice, bob, uint256.NewInt(30)); err != nil {
		t.Errorf("self TransferFrom returned error: %v", err)
	}
}

func TestZeroAddressRejected(t *testing.T) {
	book := NewBalanceBook("DAI")
	book.Mint(alice, uint256.NewInt(100))
	if err := book.Transfer(alice, uuid.Nil, uint256.NewInt(1)); err != ErrZeroAddress {
		t.Errorf("error = %v, want %v", err, ErrZeroAddress)
	}
	if err := book.Mint(uuid.Nil, uint256.NewInt(1)); err != ErrZeroAddress {
		t.Errorf("error = %v, want %v", err, ErrZeroAddress)
	}
}

// ---------------------------------------------------------------------------
// Collectibles
// ---------------------------------------------------------------------------

func TestMintUniqueItem(t *testing.T) {
	c := NewCollectibles()
	if err := c.Mint(alice, 1, 1); err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	owner, err := c.OwnerOfNFT(1)
	if err != nil {
		t.Fatalf("OwnerOfNFT returned error: %v", err)
	}
	if owner != alice {
		t.Errorf("owner = %s, want %s", owner, alice)
	}
	if got := c.NFTCount(alice); got != 1 {
		t.Errorf("NFTCount = %d, want 1", got)
	}
}

func TestRemintUniqueItemFails(t *testing.T) {
	c := NewCollectibles()
	c.Mint(alice, 1, 1)
	if err := c.Mint(bob, 1, 1); err != ErrAlreadyMinted {
		t.Errorf("error = %v, want %v", err, ErrAlreadyMinted)
	}
	// A zero-amount mint on a unique item is a no-op, not an error.
	if err := c.Mint(bob, 1, 0); err != nil {
		t.Errorf("zero-amount mint returned error: %v", err)
	}
}

func TestFungibleTokenStaysFungible(t *testing.T) {
	c := NewCollectibles()
	c.Mint(alice, 7, 5)
	if err := c.Mint(bob, 7, 1); err != nil {
		t.Fatalf("mint on fungible id returned error: %v", err)
	}
	if _, err := c.OwnerOfNFT(7); err != ErrNoSuchNFT {
		t.Errorf("error = %v, want %v", err, ErrNoSuchNFT)
	}
	if got := c.BalanceOf(bob, 7); got != 1 {
		t.Errorf("bob balance = %d, want 1", got)
	}
}

func TestOwnerOfUnmintedToken(t *testing.T) {
	c := NewCollectibles()
	if _, err := c.OwnerOfNFT(99); err != ErrNoSuchNFT {
		t.Errorf("error = %v, want %v", err, ErrNoSuchNFT)
	}
}

func TestMintBatchAtomicity(t *testing.T) {
	c := NewCollectibles()
	c.Mint(alice, 2, 1)
	err := c.MintBatch(bob, []uint64{10, 2, 11}, []uint64{1, 1, 3})
	if err != ErrAlreadyMinted {
		t.Fatalf("error = %v, want %v", err, ErrAlreadyMinted)
	}
	if got := c.BalanceOf(bob, 10); got != 0 {
		t.Errorf("bob balance of 10 after failed batch = %d, want 0", got)
	}
}

func TestMintBatchMixed(t *testing.T) {
	c := NewCollectibles()
	if err := c.MintBatch(alice, []uint64{1, 2, 3}, []uint64{1, 5, 1}); err != nil {
		t.Fatalf("MintBatch returned error: %v", err)
	}
	if got := c.NFTCount(alice); got != 2 {
		t.Errorf("NFTCount = %d, want 2", got)
	}
	if _, err := c.OwnerOfNFT(2); err != ErrNoSuchNFT {
		t.Errorf("fungible id 2 reported as unique: %v", err)
	}
}

func TestNFTTransferMovesOwnership(t *testing.T) {
	c := NewCollectibles()
	c.Mint(alice, 1, 1)
	if err := c.Transfer(alice, bob, 1, 1); err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	owner, err := c.OwnerOfNFT(1)
	if err != nil {
		t.Fatalf("OwnerOfNFT returned error: %v", err)
	}
	if owner != bob {
		t.Errorf("owner = %s, want %s", owner, bob)
	}
	if got := c.NFTCount(alice); got != 0 {
		t.Errorf("alice NFTCount = %d, want 0", got)
	}
}
