package core

import (
	"testing"

	"github.com/google/uuid"

	"CoverLedger/internal/book"
	"CoverLedger/internal/decimal"
	"CoverLedger/internal/mining"
	"CoverLedger/internal/pricing"
	"CoverLedger/internal/registry"
	"CoverLedger/internal/vesting"
)

func TestNewProtocolRequiresOwner(t *testing.T) {
	_, err := NewProtocol(ProtocolConfig{})
	if err == nil {
		t.Fatal("expected error for nil owner")
	}
}

func TestNewProtocolDerivesStableAccounts(t *testing.T) {
	cfg := ProtocolConfig{
		Owner:   uuid.MustParse("880e8400-e29b-41d4-a716-446655440003"),
		TGE:     testStart,
		Pricing: pricing.DefaultConfig(),
		Mining:  mining.DefaultConfig(testStart),
	}

	a, err := NewProtocol(cfg)
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}
	b, err := NewProtocol(cfg)
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}

	if a.Vesting.Account() != b.Vesting.Account() {
		t.Error("vesting treasury account differs between builds")
	}
	if a.Vesting.Account() == cfg.Owner {
		t.Error("vesting treasury must not collide with owner")
	}
}

func TestNewProtocolRegistersContracts(t *testing.T) {
	p, err := NewProtocol(ProtocolConfig{
		Owner:   uuid.New(),
		TGE:     testStart,
		Pricing: pricing.DefaultConfig(),
		Mining:  mining.DefaultConfig(testStart),
	})
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}

	cases := []struct {
		name string
		want uuid.UUID
	}{
		{registry.NameStaking, p.Staking.Account()},
		{registry.NameVesting, p.Vesting.Account()},
		{registry.NameMining, p.Mining.Account()},
		{registry.NamePolicyFabric, p.Fabric.Account()},
	}
	for _, c := range cases {
		got, err := p.Contracts.Get(c.name)
		if err != nil {
			t.Fatalf("Get(%q) returned error: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("Get(%q) = %s, want %s", c.name, got, c.want)
		}
	}
	for _, name := range []string{registry.NameDAI, registry.NameBMI, registry.NamePolicyFetcher} {
		if _, err := p.Contracts.Get(name); err != nil {
			t.Errorf("Get(%q) returned error: %v", name, err)
		}
	}
}

func TestNewProtocolFundsTreasuries(t *testing.T) {
	cfg := ProtocolConfig{
		Owner:   uuid.New(),
		TGE:     testStart,
		Pricing: pricing.DefaultConfig(),
		Mining:  mining.DefaultConfig(testStart),
	}

	p, err := NewProtocol(cfg)
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}

	wantVest := decimal.Wei(vesting.TotalRoundSupply().Uint64())
	if got := p.Reward.BalanceOf(p.Vesting.Account()); got.Cmp(wantVest) != 0 {
		t.Errorf("vesting treasury = %s, want %s", got.Dec(), wantVest.Dec())
	}

	// Default bands: 150k + 4x100k + 5x50k per month, five months.
	wantMining := decimal.Wei(4_000_000)
	if got := fullMiningBudget(cfg.Mining); got.Cmp(wantMining) != 0 {
		t.Errorf("mining budget = %s, want %s", got.Dec(), wantMining.Dec())
	}
}

func TestNewProtocolCreatesRoundSchedules(t *testing.T) {
	beneficiaries := make(map[string]uuid.UUID)
	for _, r := range vesting.ProductionRounds() {
		beneficiaries[r.Name] = uuid.New()
	}

	p, err := NewProtocol(ProtocolConfig{
		Owner:              uuid.New(),
		TGE:                testStart,
		Pricing:            pricing.DefaultConfig(),
		Mining:             mining.DefaultConfig(testStart),
		RoundBeneficiaries: beneficiaries,
	})
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}

	wantCount := uint64(len(vesting.ProductionRounds()))
	if got := p.Vesting.Count(); got != wantCount {
		t.Errorf("vesting count = %d, want %d", got, wantCount)
	}
	if !p.Vesting.AmountInVestings().Eq(decimal.Wei(vesting.TotalRoundSupply().Uint64())) {
		t.Error("round schedules should commit the full treasury")
	}
}

// Staking position tokens and competition badges use overlapping ids, so
// they must live in separate collections: a stake mints unique id 2, and
// the gold badge is also id 2.
func TestStakePositionsDoNotBlockBadges(t *testing.T) {
	staker := uuid.New()
	partner := uuid.New()

	p, err := NewProtocol(ProtocolConfig{
		Owner:   uuid.New(),
		TGE:     testStart,
		Pricing: pricing.DefaultConfig(),
		Mining:  mining.DefaultConfig(testStart),
		Genesis: []GenesisBalance{
			{Account: staker, DAI: decimal.Wei(1_000_000)},
			{Account: partner, DAI: decimal.Wei(1_000_000)},
		},
	})
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}

	pb, err := p.Fabric.Create(uuid.New(), book.DeFi)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := p.DAI.Approve(staker, pb.Account(), decimal.Wei(500_000)); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if err := pb.AddLiquidity(staker, decimal.Wei(500_000)); err != nil {
		t.Fatalf("AddLiquidity returned error: %v", err)
	}
	tokenID, err := p.Staking.StakeShares(staker, pb, decimal.Wei(100_000), testStart)
	if err != nil {
		t.Fatalf("StakeShares returned error: %v", err)
	}
	if tokenID != 2 {
		t.Fatalf("position token id = %d, want 2", tokenID)
	}

	// Two members in one group; the second leader earns the gold badge.
	for i, member := range []uuid.UUID{staker, partner} {
		amount := decimal.Wei(uint64(100_000 - i*50_000))
		if err := p.DAI.Approve(member, p.Mining.Account(), amount); err != nil {
			t.Fatalf("Approve returned error: %v", err)
		}
		if _, err := p.Mining.InvestDAI(member, uint64(i), amount, testStart+int64(i)+1); err != nil {
			t.Fatalf("InvestDAI returned error: %v", err)
		}
	}

	unlocked := testStart + 5*decimal.SecondsInWeek
	if err := p.Mining.DistributeNFT(1, unlocked); err != nil {
		t.Fatalf("DistributeNFT returned error: %v", err)
	}
	if got := p.MiningNFT.BalanceOf(partner, mining.TokenGold); got != 1 {
		t.Errorf("gold badges = %d, want 1", got)
	}

	// The position token is untouched by badge mints.
	owner, err := p.StakeNFT.OwnerOfNFT(tokenID)
	if err != nil {
		t.Fatalf("OwnerOfNFT returned error: %v", err)
	}
	if owner != staker {
		t.Errorf("position owner = %s, want %s", owner, staker)
	}
	if _, err := p.Staking.WithdrawShares(staker, tokenID, testStart+3*decimal.SecondsInMonth); err != nil {
		t.Errorf("WithdrawShares returned error: %v", err)
	}
}

func TestNewProtocolAppliesGenesisBalances(t *testing.T) {
	holder := uuid.New()

	p, err := NewProtocol(ProtocolConfig{
		Owner:   uuid.New(),
		TGE:     testStart,
		Pricing: pricing.DefaultConfig(),
		Mining:  mining.DefaultConfig(testStart),
		Genesis: []GenesisBalance{{Account: holder, DAI: decimal.Wei(500)}},
	})
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}

	if got := p.DAI.BalanceOf(holder); !got.Eq(decimal.Wei(500)) {
		t.Errorf("genesis DAI = %s, want %s", got.Dec(), decimal.Wei(500).Dec())
	}
}
