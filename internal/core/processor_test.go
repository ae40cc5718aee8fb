package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"CoverLedger/internal/book"
	"CoverLedger/internal/decimal"
	"CoverLedger/internal/event"
	"CoverLedger/internal/mining"
	"CoverLedger/internal/pricing"
	"CoverLedger/internal/registry"
	"CoverLedger/internal/staking"
	"CoverLedger/internal/token"
	"CoverLedger/internal/vesting"
)

const testStart int64 = 1_700_000_000

type coreFixture struct {
	core       *DeterministicCore
	protocol   *Protocol
	persist    chan CoreOutput
	projection chan CoreOutput

	owner    uuid.UUID
	provider uuid.UUID
	holder   uuid.UUID
}

func newCoreFixture(t *testing.T) *coreFixture {
	t.Helper()

	owner := uuid.New()
	provider := uuid.New()
	holder := uuid.New()

	dai := token.NewBalanceBook("DAI")
	reward := token.NewBalanceBook("BMI")
	miningNFT := token.NewCollectibles()
	stakeNFT := token.NewCollectibles()

	fabricAccount := uuid.New()
	pools := registry.NewPools(fabricAccount)
	fabric := registry.NewFabric(fabricAccount, pools, dai, pricing.DefaultConfig())

	vestAccount := uuid.New()
	vest := vesting.NewLedger(owner, vestAccount)
	if err := vest.SetToken(owner, reward); err != nil {
		t.Fatalf("SetToken returned error: %v", err)
	}
	if err := reward.Mint(vestAccount, decimal.Wei(1_000_000)); err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	miningAccount := uuid.New()
	rewardAccount := uuid.New()
	if err := reward.Mint(rewardAccount, decimal.Wei(10_000_000)); err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	miner := mining.NewEngine(mining.DefaultConfig(testStart), miningAccount, rewardAccount, dai, reward, miningNFT)

	stk := staking.NewStaking(uuid.New(), stakeNFT)

	if err := dai.Mint(provider, decimal.Wei(100_000_000)); err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	if err := dai.Mint(holder, decimal.Wei(100_000_000)); err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	protocol := &Protocol{
		DAI:       dai,
		Reward:    reward,
		MiningNFT: miningNFT,
		StakeNFT:  stakeNFT,
		Pools:     pools,
		Fabric:    fabric,
		Vesting:   vest,
		Mining:    miner,
		Staking:   stk,
	}

	persist := make(chan CoreOutput, 64)
	projection := make(chan CoreOutput, 64)
	core := NewDeterministicCore(0, protocol, persist, projection, nil, nil)

	return &coreFixture{
		core:       core,
		protocol:   protocol,
		persist:    persist,
		projection: projection,
		owner:      owner,
		provider:   provider,
		holder:     holder,
	}
}

func (f *coreFixture) createPool(t *testing.T) uuid.UUID {
	t.Helper()
	insured := uuid.New()
	err := f.core.ProcessEvent(&event.PoolCreated{
		OpID:         uuid.New(),
		Caller:       f.owner,
		Insured:      insured,
		ContractType: int(book.Contract),
		Sequence:     f.core.sequenceValidator.GetExpectedSequence("global"),
		At:           testStart,
	})
	if err != nil {
		t.Fatalf("PoolCreated returned error: %v", err)
	}
	return insured
}

func drain(ch chan CoreOutput) []CoreOutput {
	var outputs []CoreOutput
	for {
		select {
		case out := <-ch:
			outputs = append(outputs, out)
		default:
			return outputs
		}
	}
}

func TestProcessEventPipeline(t *testing.T) {
	f := newCoreFixture(t)
	insured := f.createPool(t)

	err := f.core.ProcessEvent(&event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   f.provider,
		Pool:     insured,
		Amount:   decimal.Wei(10_000_000),
		Sequence: 0,
		At:       testStart + 10,
	})
	if err != nil {
		t.Fatalf("LiquidityAdded returned error: %v", err)
	}

	err = f.core.ProcessEvent(&event.PolicyBought{
		OpID:            uuid.New(),
		Caller:          f.holder,
		Pool:            insured,
		DurationSeconds: decimal.SecondsInYear,
		CoverTokens:     decimal.Wei(1_000_000),
		MaxDAITokens:    decimal.Wei(1_000_000),
		Sequence:        1,
		At:              testStart + 20,
	})
	if err != nil {
		t.Fatalf("PolicyBought returned error: %v", err)
	}

	outputs := drain(f.persist)
	if len(outputs) != 3 {
		t.Fatalf("persisted outputs = %d, want 3", len(outputs))
	}

	for i, out := range outputs {
		if out.Envelope.Sequence != int64(i) {
			t.Errorf("envelope[%d].Sequence = %d, want %d", i, out.Envelope.Sequence, i)
		}
		if i > 0 && out.Envelope.PrevHash != outputs[i-1].Envelope.StateHash {
			t.Errorf("envelope[%d] prev hash does not chain to envelope[%d]", i, i-1)
		}
		if out.Envelope.StateHash == out.Envelope.PrevHash {
			t.Errorf("envelope[%d] state hash did not advance", i)
		}
	}

	var payload struct {
		Result struct {
			PoolAccount *uuid.UUID `json:"pool_account"`
		} `json:"result"`
	}
	if err := json.Unmarshal(outputs[0].Envelope.Payload, &payload); err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	if payload.Result.PoolAccount == nil {
		t.Fatal("PoolCreated payload missing pool account")
	}

	pb, ok := f.protocol.Pools.PolicyBookFor(insured)
	if !ok {
		t.Fatal("pool not registered")
	}
	if pb.TotalLiquidity().IsZero() {
		t.Error("pool liquidity is zero after LiquidityAdded")
	}
	if outputs[2].Result.Amount == nil || outputs[2].Result.Amount.IsZero() {
		t.Error("PolicyBought result has no premium")
	}
	if f.core.GetSequence() != 3 {
		t.Errorf("GetSequence() = %d, want 3", f.core.GetSequence())
	}
}

func TestDuplicateEventSkipped(t *testing.T) {
	f := newCoreFixture(t)
	insured := f.createPool(t)
	drain(f.persist)

	evt := &event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   f.provider,
		Pool:     insured,
		Amount:   decimal.Wei(500),
		Sequence: 0,
		At:       testStart + 10,
	}
	if err := f.core.ProcessEvent(evt); err != nil {
		t.Fatalf("first delivery returned error: %v", err)
	}
	if err := f.core.ProcessEvent(evt); err != nil {
		t.Fatalf("redelivery returned error: %v", err)
	}

	if got := len(drain(f.persist)); got != 1 {
		t.Errorf("persisted outputs = %d, want 1", got)
	}
	pb, _ := f.protocol.Pools.PolicyBookFor(insured)
	if pb.TotalLiquidity().Cmp(decimal.Wei(500)) != 0 {
		t.Errorf("liquidity = %s, want %s (applied exactly once)",
			pb.TotalLiquidity(), decimal.Wei(500))
	}
	if f.core.GetSequence() != 2 {
		t.Errorf("GetSequence() = %d, want 2", f.core.GetSequence())
	}
}

func TestSequenceGapRejected(t *testing.T) {
	f := newCoreFixture(t)
	insured := f.createPool(t)

	err := f.core.ProcessEvent(&event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   f.provider,
		Pool:     insured,
		Amount:   decimal.Wei(500),
		Sequence: 5, // partition expects 0
		At:       testStart + 10,
	})
	if err == nil {
		t.Fatal("expected sequence gap error")
	}
	if !strings.Contains(err.Error(), "sequence gap") {
		t.Errorf("error = %v, want sequence gap", err)
	}
}

func TestOutOfOrderNewEventRejected(t *testing.T) {
	f := newCoreFixture(t)
	insured := f.createPool(t)

	for seq := int64(0); seq < 3; seq++ {
		err := f.core.ProcessEvent(&event.LiquidityAdded{
			OpID:     uuid.New(),
			Caller:   f.provider,
			Pool:     insured,
			Amount:   decimal.Wei(100),
			Sequence: seq,
			At:       testStart + 10 + seq,
		})
		if err != nil {
			t.Fatalf("seq %d returned error: %v", seq, err)
		}
	}

	// A NEW event (fresh OpID) with a stale source sequence is a bug
	// upstream, not a redelivery.
	err := f.core.ProcessEvent(&event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   f.provider,
		Pool:     insured,
		Amount:   decimal.Wei(100),
		Sequence: 1,
		At:       testStart + 20,
	})
	if err == nil {
		t.Fatal("expected out-of-order error")
	}
	if !strings.Contains(err.Error(), "out-of-order") {
		t.Errorf("error = %v, want out-of-order", err)
	}
}

func TestDispatchFailureReturnsError(t *testing.T) {
	f := newCoreFixture(t)

	err := f.core.ProcessEvent(&event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   f.provider,
		Pool:     uuid.New(), // never created
		Amount:   decimal.Wei(500),
		Sequence: 0,
		At:       testStart,
	})
	if err == nil {
		t.Fatal("expected unknown pool error")
	}
	if !strings.Contains(err.Error(), "unknown pool") {
		t.Errorf("error = %v, want unknown pool", err)
	}
	if got := len(drain(f.persist)); got != 0 {
		t.Errorf("persisted outputs = %d, want 0", got)
	}
}

func TestVestingEventFlow(t *testing.T) {
	f := newCoreFixture(t)
	beneficiary := uuid.New()

	err := f.core.ProcessEvent(&event.VestingCreated{
		OpID:            uuid.New(),
		Caller:          f.owner,
		Beneficiary:     beneficiary,
		Amount:          decimal.Wei(1000),
		StartDate:       testStart,
		PeriodInMonth:   1,
		AmountPerPeriod: decimal.Wei(100),
		CliffInPeriods:  0,
		IsCancelable:    false,
		Sequence:        0,
		At:              testStart,
	})
	if err != nil {
		t.Fatalf("VestingCreated returned error: %v", err)
	}

	outputs := drain(f.persist)
	if len(outputs) != 1 || outputs[0].Result.VestingID == nil {
		t.Fatal("VestingCreated result missing vesting ID")
	}
	id := *outputs[0].Result.VestingID

	err = f.core.ProcessEvent(&event.VestingWithdrawn{
		OpID:      uuid.New(),
		Caller:    beneficiary,
		VestingID: id,
		Sequence:  1,
		At:        testStart + 3*decimal.SecondsInMonth,
	})
	if err != nil {
		t.Fatalf("VestingWithdrawn returned error: %v", err)
	}

	outputs = drain(f.persist)
	if len(outputs) != 1 || outputs[0].Result.Amount == nil {
		t.Fatal("VestingWithdrawn result missing amount")
	}
	if outputs[0].Result.Amount.Cmp(decimal.Wei(300)) != 0 {
		t.Errorf("withdrawn = %s, want %s", outputs[0].Result.Amount, decimal.Wei(300))
	}
	if got := f.protocol.Reward.BalanceOf(beneficiary); got.Cmp(decimal.Wei(300)) != 0 {
		t.Errorf("beneficiary balance = %s, want %s", got, decimal.Wei(300))
	}
}

func TestSnapshotRestoreResumesChain(t *testing.T) {
	f := newCoreFixture(t)
	insured := f.createPool(t)

	firstAdd := &event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   f.provider,
		Pool:     insured,
		Amount:   decimal.Wei(500),
		Sequence: 0,
		At:       testStart + 10,
	}
	if err := f.core.ProcessEvent(firstAdd); err != nil {
		t.Fatalf("LiquidityAdded returned error: %v", err)
	}

	snap := f.core.CreateSnapshotState()
	if snap.Sequence != 1 {
		t.Errorf("snapshot sequence = %d, want 1", snap.Sequence)
	}
	if len(snap.IdempotencyKeys) != 2 {
		t.Errorf("snapshot keys = %d, want 2", len(snap.IdempotencyKeys))
	}

	// A restarted core replays the event log into fresh engines, then
	// restores bookkeeping from the snapshot.
	restarted := newCoreFixture(t)
	restarted.core.RestoreFromSnapshot(snap)
	restarted.core.WarmLRU(snap.IdempotencyKeys)

	if restarted.core.GetSequence() != 2 {
		t.Errorf("restored sequence = %d, want 2", restarted.core.GetSequence())
	}
	if restarted.core.GetStateHash() != f.core.GetStateHash() {
		t.Error("restored state hash does not match chain tip")
	}

	// The redelivered event is recognized without reprocessing.
	if err := restarted.core.ProcessEvent(firstAdd); err != nil {
		t.Fatalf("redelivery after restore returned error: %v", err)
	}
	if got := len(drain(restarted.persist)); got != 0 {
		t.Errorf("persisted outputs after redelivery = %d, want 0", got)
	}

	// The next source sequence on the partition is still accepted.
	err := restarted.core.ProcessEvent(&event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   restarted.provider,
		Pool:     insured,
		Amount:   decimal.Wei(100),
		Sequence: 1,
		At:       testStart + 20,
	})
	if err == nil {
		t.Fatal("expected unknown pool error before replay repopulates state")
	}
}

func replayProtocolConfig(provider uuid.UUID) ProtocolConfig {
	return ProtocolConfig{
		Owner:   uuid.MustParse("990e8400-e29b-41d4-a716-446655440009"),
		TGE:     testStart,
		Pricing: pricing.DefaultConfig(),
		Mining:  mining.DefaultConfig(testStart),
		Genesis: []GenesisBalance{{Account: provider, DAI: decimal.Wei(1_000_000)}},
	}
}

func TestReplayEventMatchesLiveChain(t *testing.T) {
	provider := uuid.MustParse("aa0e8400-e29b-41d4-a716-44665544000a")
	insured := uuid.MustParse("bb0e8400-e29b-41d4-a716-44665544000b")
	cfg := replayProtocolConfig(provider)

	live, err := NewProtocol(cfg)
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}
	livePersist := make(chan CoreOutput, 8)
	liveCore := NewDeterministicCore(0, live, livePersist, make(chan CoreOutput, 8), nil, nil)

	events := []event.Event{
		&event.PoolCreated{
			OpID:         uuid.MustParse("cc0e8400-e29b-41d4-a716-44665544000c"),
			Caller:       cfg.Owner,
			Insured:      insured,
			ContractType: int(book.Contract),
			Sequence:     0,
			At:           testStart,
		},
		&event.LiquidityAdded{
			OpID:     uuid.MustParse("dd0e8400-e29b-41d4-a716-44665544000d"),
			Caller:   provider,
			Pool:     insured,
			Amount:   decimal.Wei(1000),
			Sequence: 0,
			At:       testStart + 10,
		},
	}
	for _, evt := range events {
		if err := liveCore.ProcessEvent(evt); err != nil {
			t.Fatalf("ProcessEvent returned error: %v", err)
		}
	}
	drain(livePersist)

	// Cold restart: fresh engines, replay everything from sequence 0.
	rebuilt, err := NewProtocol(cfg)
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}
	rebuiltPersist := make(chan CoreOutput, 8)
	rebuiltCore := NewDeterministicCore(0, rebuilt, rebuiltPersist, make(chan CoreOutput, 8), nil, nil)

	for _, evt := range events {
		if err := rebuiltCore.ReplayEvent(evt); err != nil {
			t.Fatalf("ReplayEvent returned error: %v", err)
		}
	}

	if got := len(drain(rebuiltPersist)); got != 0 {
		t.Errorf("replay emitted %d outputs, want 0", got)
	}
	if rebuiltCore.GetSequence() != liveCore.GetSequence() {
		t.Errorf("replayed sequence = %d, want %d", rebuiltCore.GetSequence(), liveCore.GetSequence())
	}
	if rebuiltCore.GetStateHash() != liveCore.GetStateHash() {
		t.Error("replayed state hash does not match the live chain tip")
	}

	// The rebuilt engines accept new traffic where a bare restore could not.
	err = rebuiltCore.ProcessEvent(&event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   provider,
		Pool:     insured,
		Amount:   decimal.Wei(50),
		Sequence: 1,
		At:       testStart + 20,
	})
	if err != nil {
		t.Fatalf("ProcessEvent after replay returned error: %v", err)
	}
}

func TestReplayAfterSnapshotRestoreRebuildsEngines(t *testing.T) {
	provider := uuid.MustParse("aa0e8400-e29b-41d4-a716-44665544000a")
	insured := uuid.MustParse("bb0e8400-e29b-41d4-a716-44665544000b")
	cfg := replayProtocolConfig(provider)

	live, err := NewProtocol(cfg)
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}
	liveCore := NewDeterministicCore(0, live, make(chan CoreOutput, 8), make(chan CoreOutput, 8), nil, nil)

	created := &event.PoolCreated{
		OpID:         uuid.MustParse("cc0e8400-e29b-41d4-a716-44665544000c"),
		Caller:       cfg.Owner,
		Insured:      insured,
		ContractType: int(book.Contract),
		Sequence:     0,
		At:           testStart,
	}
	added := &event.LiquidityAdded{
		OpID:     uuid.MustParse("dd0e8400-e29b-41d4-a716-44665544000d"),
		Caller:   provider,
		Pool:     insured,
		Amount:   decimal.Wei(1000),
		Sequence: 0,
		At:       testStart + 10,
	}
	if err := liveCore.ProcessEvent(created); err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	if err := liveCore.ProcessEvent(added); err != nil {
		t.Fatalf("ProcessEvent returned error: %v", err)
	}
	snap := liveCore.CreateSnapshotState()

	// Warm restart: restore bookkeeping, then replay the log. Events in
	// the dedup set only rebuild the engines; the chain tip stays put.
	rebuilt, err := NewProtocol(cfg)
	if err != nil {
		t.Fatalf("NewProtocol returned error: %v", err)
	}
	restored := NewDeterministicCore(0, rebuilt, make(chan CoreOutput, 8), make(chan CoreOutput, 8), nil, nil)
	restored.RestoreFromSnapshot(snap)
	restored.WarmLRU(snap.IdempotencyKeys)

	if err := restored.ReplayEvent(created); err != nil {
		t.Fatalf("ReplayEvent returned error: %v", err)
	}
	if err := restored.ReplayEvent(added); err != nil {
		t.Fatalf("ReplayEvent returned error: %v", err)
	}

	if restored.GetSequence() != liveCore.GetSequence() {
		t.Errorf("restored sequence = %d, want %d", restored.GetSequence(), liveCore.GetSequence())
	}
	if restored.GetStateHash() != liveCore.GetStateHash() {
		t.Error("restored state hash moved during dedup replay")
	}
	if got := rebuilt.DAI.BalanceOf(provider); !got.Eq(decimal.Wei(999_000)) {
		t.Errorf("provider balance after replay = %s, want %s", got.Dec(), decimal.Wei(999_000).Dec())
	}

	err = restored.ProcessEvent(&event.LiquidityAdded{
		OpID:     uuid.New(),
		Caller:   provider,
		Pool:     insured,
		Amount:   decimal.Wei(50),
		Sequence: 1,
		At:       testStart + 20,
	})
	if err != nil {
		t.Fatalf("ProcessEvent after warm restart returned error: %v", err)
	}
}
