// internal/event/vesting.go
package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type VestingCreated struct {
	OpID            uuid.UUID
	Caller          uuid.UUID
	Beneficiary     uuid.UUID
	Amount          *uint256.Int
	StartDate       int64
	PeriodInMonth   uint64
	AmountPerPeriod *uint256.Int
	CliffInPeriods  uint64
	IsCancelable    bool
	Sequence        int64
	At              int64
}

func (e *VestingCreated) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *VestingCreated) EventType() EventType {
	return EventTypeVestingCreated
}

func (e *VestingCreated) PoolID() *string {
	return nil // Global event
}

func (e *VestingCreated) SourceSequence() int64 {
	return e.Sequence
}

func (e *VestingCreated) Timestamp() int64 {
	return e.At
}

type VestingCanceled struct {
	OpID      uuid.UUID
	Caller    uuid.UUID
	VestingID uint64
	Sequence  int64
	At        int64
}

func (e *VestingCanceled) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *VestingCanceled) EventType() EventType {
	return EventTypeVestingCanceled
}

func (e *VestingCanceled) PoolID() *string {
	return nil
}

func (e *VestingCanceled) SourceSequence() int64 {
	return e.Sequence
}

func (e *VestingCanceled) Timestamp() int64 {
	return e.At
}

type VestingWithdrawn struct {
	OpID      uuid.UUID
	Caller    uuid.UUID
	VestingID uint64
	Sequence  int64
	At        int64
}

func (e *VestingWithdrawn) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *VestingWithdrawn) EventType() EventType {
	return EventTypeVestingWithdrawn
}

func (e *VestingWithdrawn) PoolID() *string {
	return nil
}

func (e *VestingWithdrawn) SourceSequence() int64 {
	return e.Sequence
}

func (e *VestingWithdrawn) Timestamp() int64 {
	return e.At
}

type ExcessiveTokensWithdrawn struct {
	OpID     uuid.UUID
	Caller   uuid.UUID
	Sequence int64
	At       int64
}

func (e *ExcessiveTokensWithdrawn) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *ExcessiveTokensWithdrawn) EventType() EventType {
	return EventTypeExcessiveTokensWithdrawn
}

func (e *ExcessiveTokensWithdrawn) PoolID() *string {
	return nil
}

func (e *ExcessiveTokensWithdrawn) SourceSequence() int64 {
	return e.Sequence
}

func (e *ExcessiveTokensWithdrawn) Timestamp() int64 {
	return e.At
}
