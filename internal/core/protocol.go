package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/decimal"
	"CoverLedger/internal/mining"
	"CoverLedger/internal/pricing"
	"CoverLedger/internal/registry"
	"CoverLedger/internal/staking"
	"CoverLedger/internal/token"
	"CoverLedger/internal/vesting"
)

// GenesisBalance seeds one account with DAI before any event is applied.
type GenesisBalance struct {
	Account uuid.UUID
	DAI     *uint256.Int
}

// ProtocolConfig describes how to assemble the domain engines. Everything
// here must be stable across restarts: system accounts are derived from
// Owner, and genesis balances are applied before replay, so a changed
// config would fork the state hash chain.
type ProtocolConfig struct {
	Owner   uuid.UUID
	TGE     int64
	Pricing pricing.Config
	Mining  mining.Config

	// MiningBudget is the reward token supply minted to the mining reward
	// account. Zero means the full tier payout across all reward months.
	MiningBudget *uint256.Int

	// RoundBeneficiaries, when non-empty, creates the token round vesting
	// schedules at genesis, keyed by round name.
	RoundBeneficiaries map[string]uuid.UUID

	Genesis []GenesisBalance
}

// NewProtocol builds the full engine set from cfg. System accounts are
// derived from the owner id so a replayed log always lands on the same
// accounts.
func NewProtocol(cfg ProtocolConfig) (*Protocol, error) {
	if cfg.Owner == uuid.Nil {
		return nil, fmt.Errorf("protocol owner must be set")
	}

	dai := token.NewBalanceBook("DAI")
	reward := token.NewBalanceBook("BMI")

	// Tier badges and staking position tokens live in separate
	// collections. Badge ids 1..4 would otherwise collide with position
	// ids, which count up from 2.
	miningNFT := token.NewCollectibles()
	stakeNFT := token.NewCollectibles()

	fabricAccount := uuid.NewSHA1(cfg.Owner, []byte("pool-fabric"))
	pools := registry.NewPools(fabricAccount)
	fabric := registry.NewFabric(fabricAccount, pools, dai, cfg.Pricing)
	poolRegistryAccount := uuid.NewSHA1(cfg.Owner, []byte("pool-registry"))

	vestAccount := uuid.NewSHA1(cfg.Owner, []byte("vesting-treasury"))
	vest := vesting.NewLedger(cfg.Owner, vestAccount)
	if err := vest.SetToken(cfg.Owner, reward); err != nil {
		return nil, fmt.Errorf("vesting token: %w", err)
	}
	if err := reward.Mint(vestAccount, decimal.Wei(vesting.TotalRoundSupply().Uint64())); err != nil {
		return nil, fmt.Errorf("vesting treasury: %w", err)
	}
	if len(cfg.RoundBeneficiaries) > 0 {
		if _, err := vesting.FillRounds(vest, cfg.Owner, cfg.TGE, cfg.RoundBeneficiaries); err != nil {
			return nil, fmt.Errorf("token rounds: %w", err)
		}
	}

	miningAccount := uuid.NewSHA1(cfg.Owner, []byte("liquidity-mining"))
	rewardAccount := uuid.NewSHA1(cfg.Owner, []byte("mining-rewards"))
	budget := cfg.MiningBudget
	if budget == nil || budget.IsZero() {
		budget = fullMiningBudget(cfg.Mining)
	}
	if err := reward.Mint(rewardAccount, budget); err != nil {
		return nil, fmt.Errorf("mining budget: %w", err)
	}
	miner := mining.NewEngine(cfg.Mining, miningAccount, rewardAccount, dai, reward, miningNFT)

	stakingAccount := uuid.NewSHA1(cfg.Owner, []byte("share-staking"))
	stk := staking.NewStaking(stakingAccount, stakeNFT)

	// Every component identity is resolvable by its canonical name. The
	// token ledgers have no engine account, so they get derived ids of
	// their own.
	contracts := registry.NewContracts(cfg.Owner)
	names := map[string]uuid.UUID{
		registry.NameDAI:           uuid.NewSHA1(cfg.Owner, []byte("dai-token")),
		registry.NameBMI:           uuid.NewSHA1(cfg.Owner, []byte("bmi-token")),
		registry.NameStaking:       stakingAccount,
		registry.NameVesting:       vestAccount,
		registry.NameMining:        miningAccount,
		registry.NamePolicyFabric:  fabricAccount,
		registry.NamePolicyFetcher: poolRegistryAccount,
	}
	for name, id := range names {
		if err := contracts.Add(cfg.Owner, name, id); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}

	for _, g := range cfg.Genesis {
		if g.DAI == nil || g.DAI.IsZero() {
			continue
		}
		if err := dai.Mint(g.Account, g.DAI); err != nil {
			return nil, fmt.Errorf("genesis balance %s: %w", g.Account, err)
		}
	}

	return &Protocol{
		DAI:       dai,
		Reward:    reward,
		MiningNFT: miningNFT,
		StakeNFT:  stakeNFT,
		Contracts: contracts,
		Pools:     pools,
		Fabric:    fabric,
		Vesting:   vest,
		Mining:    miner,
		Staking:   stk,
	}, nil
}

// fullMiningBudget sums the per-rank monthly rewards over every reward
// month, which is the most the engine can ever pay out.
func fullMiningBudget(cfg mining.Config) *uint256.Int {
	monthly := uint256.NewInt(0)
	for _, band := range cfg.MonthlyRewards {
		ranks := uint256.NewInt(uint64(band.ToRank - band.FromRank + 1))
		monthly = new(uint256.Int).Add(monthly, new(uint256.Int).Mul(band.Amount, ranks))
	}
	return new(uint256.Int).Mul(monthly, uint256.NewInt(cfg.MaxRewardMonths))
}
