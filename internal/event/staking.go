// internal/event/staking.go
package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type SharesStaked struct {
	OpID     uuid.UUID
	Caller   uuid.UUID
	Pool     uuid.UUID
	Amount   *uint256.Int
	Sequence int64
	At       int64
}

func (e *SharesStaked) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *SharesStaked) EventType() EventType {
	return EventTypeSharesStaked
}

func (e *SharesStaked) PoolID() *string {
	s := e.Pool.String()
	return &s
}

func (e *SharesStaked) SourceSequence() int64 {
	return e.Sequence
}

func (e *SharesStaked) Timestamp() int64 {
	return e.At
}

type SharesWithdrawn struct {
	OpID         uuid.UUID
	Caller       uuid.UUID
	StakeTokenID uint64
	Sequence     int64
	At           int64
}

func (e *SharesWithdrawn) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *SharesWithdrawn) EventType() EventType {
	return EventTypeSharesWithdrawn
}

func (e *SharesWithdrawn) PoolID() *string {
	return nil
}

func (e *SharesWithdrawn) SourceSequence() int64 {
	return e.Sequence
}

func (e *SharesWithdrawn) Timestamp() int64 {
	return e.At
}
