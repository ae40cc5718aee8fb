package event

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePoolCreated
	EventTypeLiquidityAdded
	EventTypeLiquidityWithdrawn
	EventTypePolicyBought
	EventTypeVestingCreated
	EventTypeVestingCanceled
	EventTypeVestingWithdrawn
	EventTypeExcessiveTokensWithdrawn
	EventTypeDAIInvested
	EventTypeRewardChecked
	EventTypeRewardClaimed
	EventTypeNFTDistributed
	EventTypeSharesStaked
	EventTypeSharesWithdrawn
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Pool context (nullable for non-pool events)
	PoolID *string

	// Versioned input timestamp in unix seconds (NOT wall-clock)
	Timestamp int64

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PoolID returns the pool context (nil for non-pool events)
	PoolID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// Timestamp returns the input time in unix seconds
	Timestamp() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypePoolCreated:
		return "PoolCreated"
	case EventTypeLiquidityAdded:
		return "LiquidityAdded"
	case EventTypeLiquidityWithdrawn:
		return "LiquidityWithdrawn"
	case EventTypePolicyBought:
		return "PolicyBought"
	case EventTypeVestingCreated:
		return "VestingCreated"
	case EventTypeVestingCanceled:
		return "VestingCanceled"
	case EventTypeVestingWithdrawn:
		return "VestingWithdrawn"
	case EventTypeExcessiveTokensWithdrawn:
		return "ExcessiveTokensWithdrawn"
	case EventTypeDAIInvested:
		return "DAIInvested"
	case EventTypeRewardChecked:
		return "RewardChecked"
	case EventTypeRewardClaimed:
		return "RewardClaimed"
	case EventTypeNFTDistributed:
		return "NFTDistributed"
	case EventTypeSharesStaked:
		return "SharesStaked"
	case EventTypeSharesWithdrawn:
		return "SharesWithdrawn"
	default:
		return "Unknown"
	}
}
