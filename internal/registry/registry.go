// Package registry tracks protocol components: a name registry for core
// contract identities, the set of coverage pools, and the fabric that is
// the only party allowed to register new pools.
package registry

import (
	"errors"

	"github.com/google/uuid"

	"CoverLedger/internal/book"
	"CoverLedger/internal/pricing"
	"CoverLedger/internal/token"
)

// Well-known registry names.
const (
	NameDAI           = "DAI"
	NameBMI           = "BMI"
	NameStaking       = "BMI_STAKING"
	NameVesting       = "BMI_VESTING"
	NameMining        = "LIQUIDITY_MINING"
	NamePolicyFabric  = "POLICY_BOOK_FABRIC"
	NamePolicyFetcher = "POLICY_BOOK_REGISTRY"
)

var (
	// ErrNotOwner mirrors the on-chain access-control revert reason.
	ErrNotOwner = errors.New("Ownable: caller is not the owner")

	// ErrNotFabric is returned when anyone but the fabric registers a pool.
	ErrNotFabric = errors.New("Caller is not a PolicyBookFabric contract")

	// ErrAlreadyCreated is returned for a second pool on one contract.
	ErrAlreadyCreated = errors.New("PolicyBook for the contract is already created")

	// ErrUnknownName is returned for unregistered registry names.
	ErrUnknownName = errors.New("Unknown contract name")
)

// Contracts maps well-known names to component identities.
type Contracts struct {
	owner   uuid.UUID
	entries map[string]uuid.UUID
}

func NewContracts(owner uuid.UUID) *Contracts {
	return &Contracts{owner: owner, entries: make(map[string]uuid.UUID)}
}

func (c *Contracts) Add(caller uuid.UUID, name string, id uuid.UUID) error {
	if caller != c.owner {
		return ErrNotOwner
	}
	c.entries[name] = id
	return nil
}

func (c *Contracts) Get(name string) (uuid.UUID, error) {
	id, ok := c.entries[name]
	if !ok {
		return uuid.Nil, ErrUnknownName
	}
	return id, nil
}

// Pools is the pool registry, keyed by insured contract. Only the fabric
// may add entries; iteration order is creation order.
type Pools struct {
	fabric    uuid.UUID
	byInsured map[uuid.UUID]*book.PolicyBook
	order     []uuid.UUID
}

func NewPools(fabric uuid.UUID) *Pools {
	return &Pools{
		fabric:    fabric,
		byInsured: make(map[uuid.UUID]*book.PolicyBook),
	}
}

func (p *Pools) Add(caller, insured uuid.UUID, pb *book.PolicyBook) error {
	if caller != p.fabric {
		return ErrNotFabric
	}
	if _, exists := p.byInsured[insured]; exists {
		return ErrAlreadyCreated
	}
	p.byInsured[insured] = pb
	p.order = append(p.order, insured)
	return nil
}

func (p *Pools) PolicyBookFor(insured uuid.UUID) (*book.PolicyBook, bool) {
	pb, ok := p.byInsured[insured]
	return pb, ok
}

func (p *Pools) Count() int {
	return len(p.order)
}

// List pages through insured contracts in creation order, returning the
// slice for [offset, offset+limit) and the total count. Out-of-range
// offsets return an empty page.
func (p *Pools) List(offset, limit int) ([]uuid.UUID, int) {
	count := len(p.order)
	if offset < 0 || offset >= count || limit <= 0 {
		return nil, count
	}
	end := offset + limit
	if end > count {
		end = count
	}
	page := make([]uuid.UUID, end-offset)
	copy(page, p.order[offset:end])
	return page, count
}

// Fabric creates coverage pools and registers them. It is the only
// caller Pools accepts.
type Fabric struct {
	account    uuid.UUID
	pools      *Pools
	dai        token.Ledger
	pricingCfg pricing.Config
}

func NewFabric(account uuid.UUID, pools *Pools, dai token.Ledger, pricingCfg pricing.Config) *Fabric {
	return &Fabric{account: account, pools: pools, dai: dai, pricingCfg: pricingCfg}
}

func (f *Fabric) Account() uuid.UUID {
	return f.account
}

// Create builds a pool for the insured contract and registers it. One
// pool per contract. The pool account is derived from the insured id so
// replaying the same event log yields the same account.
func (f *Fabric) Create(insured uuid.UUID, contractType book.ContractType) (*book.PolicyBook, error) {
	account := uuid.NewSHA1(insured, []byte("policy-book"))
	pb := book.NewPolicyBook(account, insured, contractType, f.dai, pricing.NewEngine(f.pricingCfg))
	if err := f.pools.Add(f.account, insured, pb); err != nil {
		return nil, err
	}
	return pb, nil
}
