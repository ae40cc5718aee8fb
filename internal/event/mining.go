// internal/event/mining.go
package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type DAIInvested struct {
	OpID     uuid.UUID
	Caller   uuid.UUID
	GroupID  uint64 // zero creates a new group
	Amount   *uint256.Int
	Sequence int64
	At       int64
}

func (e *DAIInvested) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *DAIInvested) EventType() EventType {
	return EventTypeDAIInvested
}

func (e *DAIInvested) PoolID() *string {
	return nil
}

func (e *DAIInvested) SourceSequence() int64 {
	return e.Sequence
}

func (e *DAIInvested) Timestamp() int64 {
	return e.At
}

type RewardChecked struct {
	OpID     uuid.UUID
	Caller   uuid.UUID
	GroupID  uint64
	Sequence int64
	At       int64
}

func (e *RewardChecked) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *RewardChecked) EventType() EventType {
	return EventTypeRewardChecked
}

func (e *RewardChecked) PoolID() *string {
	return nil
}

func (e *RewardChecked) SourceSequence() int64 {
	return e.Sequence
}

func (e *RewardChecked) Timestamp() int64 {
	return e.At
}

type RewardClaimed struct {
	OpID     uuid.UUID
	Caller   uuid.UUID
	GroupID  uint64
	Sequence int64
	At       int64
}

func (e *RewardClaimed) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *RewardClaimed) EventType() EventType {
	return EventTypeRewardClaimed
}

func (e *RewardClaimed) PoolID() *string {
	return nil
}

func (e *RewardClaimed) SourceSequence() int64 {
	return e.Sequence
}

func (e *RewardClaimed) Timestamp() int64 {
	return e.At
}

type NFTDistributed struct {
	OpID     uuid.UUID
	Caller   uuid.UUID
	GroupID  uint64 // zero distributes to every leaderboard group
	Sequence int64
	At       int64
}

func (e *NFTDistributed) IdempotencyKey() string {
	return e.OpID.String()
}

func (e *NFTDistributed) EventType() EventType {
	return EventTypeNFTDistributed
}

func (e *NFTDistributed) PoolID() *string {
	return nil
}

func (e *NFTDistributed) SourceSequence() int64 {
	return e.Sequence
}

func (e *NFTDistributed) Timestamp() int64 {
	return e.At
}
