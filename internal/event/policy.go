// internal/event/policy.go
package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type PoolCreated struct {
	OpID         uuid.UUID
	Caller       uuid.UUID
	Insured      uuid.UUID
	ContractType int
	Sequence     int64
	At           int64
}

func (e *PoolCreated) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *PoolCreated) EventType() EventType {
	return EventTypePoolCreated
}

func (e *PoolCreated) PoolID() *string {
	return nil // Pool does not exist until applied
}

func (e *PoolCreated) SourceSequence() int64 {
	return e.Sequence
}

func (e *PoolCreated) Timestamp() int64 {
	return e.At
}

type LiquidityAdded struct {
	OpID     uuid.UUID
	Caller   uuid.UUID
	Pool     uuid.UUID
	Amount   *uint256.Int
	Sequence int64
	At       int64
}

func (e *LiquidityAdded) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *LiquidityAdded) EventType() EventType {
	return EventTypeLiquidityAdded
}

func (e *LiquidityAdded) PoolID() *string {
	s := e.Pool.String()
	return &s
}

func (e *LiquidityAdded) SourceSequence() int64 {
	return e.Sequence
}

func (e *LiquidityAdded) Timestamp() int64 {
	return e.At
}

type LiquidityWithdrawn struct {
	OpID     uuid.UUID
	Caller   uuid.UUID
	Pool     uuid.UUID
	Amount   *uint256.Int
	Sequence int64
	At       int64
}

func (e *LiquidityWithdrawn) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *LiquidityWithdrawn) EventType() EventType {
	return EventTypeLiquidityWithdrawn
}

func (e *LiquidityWithdrawn) PoolID() *string {
	s := e.Pool.String()
	return &s
}

func (e *LiquidityWithdrawn) SourceSequence() int64 {
	return e.Sequence
}

func (e *LiquidityWithdrawn) Timestamp() int64 {
	return e.At
}

type PolicyBought struct {
	OpID            uuid.UUID
	Caller          uuid.UUID
	Pool            uuid.UUID
	DurationSeconds uint64
	CoverTokens     *uint256.Int
	MaxDAITokens    *uint256.Int
	Sequence        int64
	At              int64
}

func (e *PolicyBought) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *PolicyBought) EventType() EventType {
	return EventTypePolicyBought
}

func (e *PolicyBought) PoolID() *string {
	s := e.Pool.String()
	return &s
}

func (e *PolicyBought) SourceSequence() int64 {
	return e.Sequence
}

func (e *PolicyBought) Timestamp() int64 {
	return e.At
}
