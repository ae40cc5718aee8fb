package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/book"
	"CoverLedger/internal/event"
	"CoverLedger/internal/mining"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/projection"
	"CoverLedger/internal/registry"
	"CoverLedger/internal/staking"
	"CoverLedger/internal/token"
	"CoverLedger/internal/vesting"
)

// Protocol bundles the domain engines the core drives. All engines are
// pure in-memory state machines; the core is the only writer.
type Protocol struct {
	DAI    *token.BalanceBook
	Reward *token.BalanceBook

	// MiningNFT holds the competition tier badges and StakeNFT the
	// staking position tokens. They are separate collections, as the
	// ids overlap (badges use 1..4, positions count up from 2).
	MiningNFT *token.Collectibles
	StakeNFT  *token.Collectibles

	// Contracts resolves component identities by their canonical names.
	Contracts *registry.Contracts

	Pools   *registry.Pools
	Fabric  *registry.Fabric
	Vesting *vesting.Ledger
	Mining  *mining.Engine
	Staking *staking.Staking
}

// DeterministicCore is the single-threaded event processor
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	protocol          *Protocol
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope *event.EventEnvelope
	Result   *ApplyResult
	// Projection is captured inside the core goroutine so projection
	// workers never read the domain engines concurrently.
	Projection *projection.ProjectionOutput
}

// ApplyResult carries the outcome of applying one event, for the event
// log payload and downstream projections.
type ApplyResult struct {
	PoolAccount     *uuid.UUID   `json:"pool_account,omitempty"`
	VestingID       *uint64      `json:"vesting_id,omitempty"`
	GroupID         *uint64      `json:"group_id,omitempty"`
	StakeTokenID    *uint64      `json:"stake_token_id,omitempty"`
	Amount          *uint256.Int `json:"amount,omitempty"`
	RewardAvailable *bool        `json:"reward_available,omitempty"`
}

func NewDeterministicCore(
	startSequence int64,
	protocol *Protocol,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *DeterministicCore {
	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	idempotencyChecker.prom = metrics

	sequenceValidator := NewSequenceValidator()
	sequenceValidator.prom = metrics

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		protocol:          protocol,
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation
	partition := c.getPartition(evt)
	if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), idempotencyKey, isDuplicate); err != nil {
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Event dispatch — mutate domain state
	result, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "rejected").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Compute state digest and hash. The chain tip moves to the
	// new hash, so the previous tip is captured first.
	prevHash := c.hasher.GetPrevHash()
	hashStart := time.Now()
	stateDigest := c.computeStateDigest()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	// Step 5: Build the envelope. The payload is the applied event plus
	// its result, so the log replays without re-deriving outcomes.
	payload, err := json.Marshal(struct {
		Event  event.Event  `json:"event"`
		Result *ApplyResult `json:"result"`
	}{Event: evt, Result: result})
	if err != nil {
		return fmt.Errorf("payload encoding failed: %w", err)
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		PoolID:         evt.PoolID(),
		Timestamp:      evt.Timestamp(),
		SourceSequence: evt.SourceSequence(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	output := CoreOutput{
		Envelope:   envelope,
		Result:     result,
		Projection: c.captureProjection(evt, result, c.sequence),
	}
	c.sequence++

	// Step 6: Emit outputs. Persistence uses a BLOCKING send so the core
	// stalls until the persistence worker drains — no event is lost.
	// Projections use a NON-BLOCKING send with silent drop; they rebuild
	// from the event log if they fall behind.
	select {
	case c.persistChan <- output:
	default:
		if c.metrics != nil {
			c.metrics.PersistBackpressure.Inc()
		}
		c.persistChan <- output
	}
	select {
	case c.projectionChan <- output:
	default:
		// Silently dropped — projection will catch up via rebuild
	}

	// Step 7: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// ReplayEvent applies one stored event during recovery, without emitting
// persistence or projection outputs. Snapshots carry bookkeeping only, so
// the domain engines rebuild by replaying the log from the start: events
// already covered by the restored dedup set re-apply their mutation but
// leave the sequence and hash chain untouched, while events past the
// snapshot run the full pipeline and land on the same hashes the live run
// produced.
func (c *DeterministicCore) ReplayEvent(evt event.Event) error {
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	if c.idempotency.IsDuplicate(eventType, idempotencyKey) {
		_, err := c.dispatchEvent(evt)
		if err != nil {
			return fmt.Errorf("replay dispatch failed: %w", err)
		}
		return nil
	}

	partition := c.getPartition(evt)
	if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), idempotencyKey, false); err != nil {
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	if _, err := c.dispatchEvent(evt); err != nil {
		return fmt.Errorf("replay dispatch failed: %w", err)
	}

	stateDigest := c.computeStateDigest()
	c.hasher.ComputeHash(c.sequence, stateDigest)
	c.sequence++

	c.idempotency.MarkProcessed(eventType, idempotencyKey)
	return nil
}

// getPartition determines partition key for sequence validation
func (c *DeterministicCore) getPartition(evt event.Event) string {
	if poolID := evt.PoolID(); poolID != nil {
		return fmt.Sprintf("pool:%s", *poolID)
	}
	switch evt.EventType() {
	case event.EventTypeVestingCreated, event.EventTypeVestingCanceled,
		event.EventTypeVestingWithdrawn, event.EventTypeExcessiveTokensWithdrawn:
		return "vesting"
	case event.EventTypeDAIInvested, event.EventTypeRewardChecked,
		event.EventTypeRewardClaimed, event.EventTypeNFTDistributed:
		return "mining"
	case event.EventTypeSharesWithdrawn:
		return "staking"
	default:
		return "global"
	}
}

func (c *DeterministicCore) poolFor(insured uuid.UUID) (*book.PolicyBook, error) {
	pb, ok := c.protocol.Pools.PolicyBookFor(insured)
	if !ok {
		return nil, fmt.Errorf("unknown pool: %s", insured)
	}
	return pb, nil
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) (*ApplyResult, error) {
	switch e := evt.(type) {
	case *event.PoolCreated:
		return c.handlePoolCreated(e)
	case *event.LiquidityAdded:
		pb, err := c.poolFor(e.Pool)
		if err != nil {
			return nil, err
		}
		if err := pb.AddLiquidity(e.Caller, e.Amount); err != nil {
			return nil, err
		}
		return &ApplyResult{Amount: e.Amount}, nil
	case *event.LiquidityWithdrawn:
		pb, err := c.poolFor(e.Pool)
		if err != nil {
			return nil, err
		}
		if err := pb.WithdrawLiquidity(e.Caller, e.Amount); err != nil {
			return nil, err
		}
		return &ApplyResult{Amount: e.Amount}, nil
	case *event.PolicyBought:
		pb, err := c.poolFor(e.Pool)
		if err != nil {
			return nil, err
		}
		premium, err := pb.BuyPolicy(e.Caller, e.DurationSeconds, e.CoverTokens, e.MaxDAITokens, e.At)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Amount: premium}, nil
	case *event.VestingCreated:
		id, err := c.protocol.Vesting.CreateVesting(e.Caller, vesting.ScheduleParams{
			Beneficiary:     e.Beneficiary,
			Amount:          e.Amount,
			StartDate:       e.StartDate,
			PeriodInMonth:   e.PeriodInMonth,
			AmountPerPeriod: e.AmountPerPeriod,
			CliffInPeriods:  e.CliffInPeriods,
			IsCancelable:    e.IsCancelable,
		})
		if err != nil {
			return nil, err
		}
		return &ApplyResult{VestingID: &id}, nil
	case *event.VestingCanceled:
		if err := c.protocol.Vesting.CancelVesting(e.Caller, e.VestingID); err != nil {
			return nil, err
		}
		return &ApplyResult{VestingID: &e.VestingID}, nil
	case *event.VestingWithdrawn:
		amount, err := c.protocol.Vesting.WithdrawFromVesting(e.VestingID, e.At)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{VestingID: &e.VestingID, Amount: amount}, nil
	case *event.ExcessiveTokensWithdrawn:
		amount, err := c.protocol.Vesting.WithdrawExcessiveTokens(e.Caller)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Amount: amount}, nil
	case *event.DAIInvested:
		groupID, err := c.protocol.Mining.InvestDAI(e.Caller, e.GroupID, e.Amount, e.At)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{GroupID: &groupID, Amount: e.Amount}, nil
	case *event.RewardChecked:
		available := c.protocol.Mining.CheckAvailableReward(e.Caller, e.GroupID, e.At)
		return &ApplyResult{GroupID: &e.GroupID, RewardAvailable: &available}, nil
	case *event.RewardClaimed:
		amount, err := c.protocol.Mining.RewardFromGroup(e.Caller, e.GroupID, e.At)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{GroupID: &e.GroupID, Amount: amount}, nil
	case *event.NFTDistributed:
		if e.GroupID == 0 {
			if err := c.protocol.Mining.DistributeAllNFT(e.At); err != nil {
				return nil, err
			}
		} else {
			if err := c.protocol.Mining.DistributeNFT(e.GroupID, e.At); err != nil {
				return nil, err
			}
		}
		return &ApplyResult{GroupID: &e.GroupID}, nil
	case *event.SharesStaked:
		pb, err := c.poolFor(e.Pool)
		if err != nil {
			return nil, err
		}
		tokenID, err := c.protocol.Staking.StakeShares(e.Caller, pb, e.Amount, e.At)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{StakeTokenID: &tokenID, Amount: e.Amount}, nil
	case *event.SharesWithdrawn:
		amount, err := c.protocol.Staking.WithdrawShares(e.Caller, e.StakeTokenID, e.At)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{StakeTokenID: &e.StakeTokenID, Amount: amount}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *DeterministicCore) handlePoolCreated(e *event.PoolCreated) (*ApplyResult, error) {
	pb, err := c.protocol.Fabric.Create(e.Insured, book.ContractType(e.ContractType))
	if err != nil {
		return nil, err
	}
	account := pb.Account()
	return &ApplyResult{PoolAccount: &account}, nil
}

// captureProjection snapshots the queryable state touched by evt. It runs
// inside the processing pipeline, before control returns to the shell, so
// the snapshot is consistent with the envelope's state hash.
func (c *DeterministicCore) captureProjection(evt event.Event, result *ApplyResult, sequence int64) *projection.ProjectionOutput {
	out := &projection.ProjectionOutput{
		Sequence:  sequence,
		EventType: evt.EventType().String(),
		PoolID:    evt.PoolID(),
		Timestamp: evt.Timestamp(),
	}

	if poolID := evt.PoolID(); poolID != nil {
		if insured, err := uuid.Parse(*poolID); err == nil {
			if pb, ok := c.protocol.Pools.PolicyBookFor(insured); ok {
				out.PoolState = &projection.PoolState{
					Insured:          insured.String(),
					TotalLiquidity:   pb.TotalLiquidity().Dec(),
					TotalCoverTokens: pb.TotalCoverTokens().Dec(),
					TotalShares:      pb.TotalShares().Dec(),
				}
			}
		}
	}

	if result.VestingID != nil {
		if sched, err := c.protocol.Vesting.Vesting(*result.VestingID); err == nil {
			out.Vesting = &projection.VestingState{
				VestingID:       *result.VestingID,
				Beneficiary:     sched.Beneficiary.String(),
				Amount:          sched.Amount.Dec(),
				StartDate:       sched.StartDate,
				PeriodInMonth:   sched.PeriodInMonth,
				AmountPerPeriod: sched.AmountPerPeriod.Dec(),
				CliffInPeriods:  sched.CliffInPeriods,
				IsCancelable:    sched.IsCancelable,
				PaidAmount:      sched.PaidAmount.Dec(),
				IsValid:         sched.IsValid,
			}
		}
	}

	switch evt.EventType() {
	case event.EventTypeDAIInvested, event.EventTypeRewardClaimed:
		size := c.protocol.Mining.LeaderboardSize()
		entries := make([]projection.LeaderboardEntry, 0, size)
		for i := 0; i < size; i++ {
			groupID, err := c.protocol.Mining.LeaderboardAt(i)
			if err != nil {
				continue
			}
			total, err := c.protocol.Mining.GroupTotal(groupID)
			if err != nil {
				continue
			}
			entries = append(entries, projection.LeaderboardEntry{
				Rank:    i + 1,
				GroupID: groupID,
				Total:   total.Dec(),
			})
		}
		out.Leaderboard = entries
	}

	return out
}

// computeStateDigest creates canonical bytes for the state hash: the
// vesting commitments, leaderboard state, every pool's totals in
// creation order, and open stake count. Map iteration never touches the
// digest; all inputs come from deterministically ordered views.
func (c *DeterministicCore) computeStateDigest() []byte {
	digest := make([]byte, 0, 256)

	digest = append(digest, []byte("vesting")...)
	digest = appendUint64LE(digest, c.protocol.Vesting.Count())
	committed := c.protocol.Vesting.AmountInVestings().Bytes32()
	digest = append(digest, committed[:]...)

	digest = append(digest, []byte("mining")...)
	digest = appendUint64LE(digest, c.protocol.Mining.GroupCount())
	for i := 0; i < c.protocol.Mining.LeaderboardSize(); i++ {
		groupID, _ := c.protocol.Mining.LeaderboardAt(i)
		digest = appendUint64LE(digest, groupID)
		total, _ := c.protocol.Mining.GroupTotal(groupID)
		buf := total.Bytes32()
		digest = append(digest, buf[:]...)
	}

	digest = append(digest, []byte("pools")...)
	count := c.protocol.Pools.Count()
	insureds, _ := c.protocol.Pools.List(0, count)
	for _, insured := range insureds {
		pb, _ := c.protocol.Pools.PolicyBookFor(insured)
		digest = append(digest, []byte(insured.String())...)
		liquidity := pb.TotalLiquidity().Bytes32()
		digest = append(digest, liquidity[:]...)
		cover := pb.TotalCoverTokens().Bytes32()
		digest = append(digest, cover[:]...)
		shares := pb.TotalShares().Bytes32()
		digest = append(digest, shares[:]...)
	}

	digest = append(digest, []byte("staking")...)
	digest = appendUint64LE(digest, uint64(c.protocol.Staking.OpenPositions()))

	return digest
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the core's serializable bookkeeping for restore.
// Domain state is rebuilt by replaying the event log from genesis; the
// snapshot only pins the chain position, ordering cursors, and recent
// dedup keys so replay validation picks up where it left off.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's bookkeeping from a snapshot.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed events after a restart.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current bookkeeping for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}
