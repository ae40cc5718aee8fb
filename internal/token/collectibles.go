package token

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyMinted is returned when minting onto a token ID that is
	// already a unique item.
	ErrAlreadyMinted = errors.New("ERC1155: NFT token already minted")

	// ErrNoSuchNFT is returned when querying the owner of a token ID
	// that is not a unique item.
	ErrNoSuchNFT = errors.New("ERC1155: owner query for nonexistent token")
)

type holderToken struct {
	holder uuid.UUID
	id     uint64
}

// Collectibles is a multi-token ledger. A token ID becomes a unique item
// when its first mint is for exactly one unit; any later mint on that ID
// fails. IDs first minted with a different quantity stay fungible forever.
type Collectibles struct {
	balances  map[holderToken]uint64
	supply    map[uint64]uint64
	nftOwners map[uint64]uuid.UUID
	nftCounts map[uuid.UUID]uint64
}

func NewCollectibles() *Collectibles {
	return &Collectibles{
		balances:  make(map[holderToken]uint64),
		supply:    make(map[uint64]uint64),
		nftOwners: make(map[uint64]uuid.UUID),
		nftCounts: make(map[uuid.UUID]uint64),
	}
}

// Mint issues amount units of tokenID to holder. A zero amount is a no-op
// and never promotes or fails an ID.
func (c *Collectibles) Mint(holder uuid.UUID, tokenID uint64, amount uint64) error {
	if err := c.checkMint(tokenID, amount); err != nil {
		return err
	}
	c.mint(holder, tokenID, amount)
	return nil
}

// MintBatch issues several token IDs at once. All mints are validated
// before any balance changes, so a failing entry leaves nothing minted.
func (c *Collectibles) MintBatch(holder uuid.UUID, tokenIDs []uint64, amounts []uint64) error {
	if len(tokenIDs) != len(amounts) {
		return errors.New("ERC1155: ids and amounts length mismatch")
	}
	for i, id := range tokenIDs {
		if err := c.checkMint(id, amounts[i]); err != nil {
			return err
		}
	}
	for i, id := range tokenIDs {
		c.mint(holder, id, amounts[i])
	}
	return nil
}

func (c *Collectibles) checkMint(tokenID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if _, isNFT := c.nftOwners[tokenID]; isNFT {
		return ErrAlreadyMinted
	}
	return nil
}

func (c *Collectibles) mint(holder uuid.UUID, tokenID, amount uint64) {
	if amount == 0 {
		return
	}
	fresh := c.supply[tokenID] == 0
	c.balances[holderToken{holder: holder, id: tokenID}] += amount
	c.supply[tokenID] += amount
	if fresh && amount == 1 {
		c.nftOwners[tokenID] = holder
		c.nftCounts[holder]++
	}
}

// MintBadge issues amount units of tokenID without ever promoting the ID
// to a unique item, so repeated one-unit mints stay fungible. Minting a
// badge onto an ID that is already unique still fails.
func (c *Collectibles) MintBadge(holder uuid.UUID, tokenID uint64, amount uint64) error {
	if err := c.checkMint(tokenID, amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	c.balances[holderToken{holder: holder, id: tokenID}] += amount
	c.supply[tokenID] += amount
	return nil
}

// Transfer moves amount units of tokenID between holders, keeping unique
// ownership in sync for one-of-one items.
func (c *Collectibles) Transfer(from, to uuid.UUID, tokenID uint64, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromKey := holderToken{holder: from, id: tokenID}
	if c.balances[fromKey] < amount {
		return errors.New("ERC1155: insufficient balance for transfer")
	}
	c.balances[fromKey] -= amount
	c.balances[holderToken{holder: to, id: tokenID}] += amount
	if owner, isNFT := c.nftOwners[tokenID]; isNFT && owner == from {
		c.nftOwners[tokenID] = to
		c.nftCounts[from]--
		c.nftCounts[to]++
	}
	return nil
}

func (c *Collectibles) BalanceOf(holder uuid.UUID, tokenID uint64) uint64 {
	return c.balances[holderToken{holder: holder, id: tokenID}]
}

// OwnerOfNFT returns the unique owner of tokenID, or ErrNoSuchNFT when
// the ID is fungible or was never minted.
func (c *Collectibles) OwnerOfNFT(tokenID uint64) (uuid.UUID, error) {
	owner, ok := c.nftOwners[tokenID]
	if !ok {
		return uuid.Nil, ErrNoSuchNFT
	}
	return owner, nil
}

// NFTCount returns how many unique items holder owns.
func (c *Collectibles) NFTCount(holder uuid.UUID) uint64 {
	return c.nftCounts[holder]
}
