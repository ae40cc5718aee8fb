package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "PoolCreated":
		return parsePoolCreated(raw.Data)
	case "LiquidityAdded":
		return parseLiquidityAdded(raw.Data)
	case "LiquidityWithdrawn":
		return parseLiquidityWithdrawn(raw.Data)
	case "PolicyBought":
		return parsePolicyBought(raw.Data)
	case "VestingCreated":
		return parseVestingCreated(raw.Data)
	case "VestingCanceled":
		return parseVestingCanceled(raw.Data)
	case "VestingWithdrawn":
		return parseVestingWithdrawn(raw.Data)
	case "ExcessiveTokensWithdrawn":
		return parseExcessiveTokensWithdrawn(raw.Data)
	case "DAIInvested":
		return parseDAIInvested(raw.Data)
	case "RewardChecked":
		return parseRewardChecked(raw.Data)
	case "RewardClaimed":
		return parseRewardClaimed(raw.Data)
	case "NFTDistributed":
		return parseNFTDistributed(raw.Data)
	case "SharesStaked":
		return parseSharesStaked(raw.Data)
	case "SharesWithdrawn":
		return parseSharesWithdrawn(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// ParseStoredEvent decodes an event-log payload back into a typed event for
// replay. Stored payloads wrap the applied event alongside its result, and
// the event itself is the Go struct encoding, not the upstream wire format.
func ParseStoredEvent(eventType string, payload []byte) (event.Event, error) {
	var stored struct {
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("decode stored payload: %w", err)
	}
	if len(stored.Event) == 0 {
		return nil, fmt.Errorf("stored payload missing event body")
	}

	var evt event.Event
	switch eventType {
	case "PoolCreated":
		evt = &event.PoolCreated{}
	case "LiquidityAdded":
		evt = &event.LiquidityAdded{}
	case "LiquidityWithdrawn":
		evt = &event.LiquidityWithdrawn{}
	case "PolicyBought":
		evt = &event.PolicyBought{}
	case "VestingCreated":
		evt = &event.VestingCreated{}
	case "VestingCanceled":
		evt = &event.VestingCanceled{}
	case "VestingWithdrawn":
		evt = &event.VestingWithdrawn{}
	case "ExcessiveTokensWithdrawn":
		evt = &event.ExcessiveTokensWithdrawn{}
	case "DAIInvested":
		evt = &event.DAIInvested{}
	case "RewardChecked":
		evt = &event.RewardChecked{}
	case "RewardClaimed":
		evt = &event.RewardClaimed{}
	case "NFTDistributed":
		evt = &event.NFTDistributed{}
	case "SharesStaked":
		evt = &event.SharesStaked{}
	case "SharesWithdrawn":
		evt = &event.SharesWithdrawn{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err := json.Unmarshal(stored.Event, evt); err != nil {
		return nil, fmt.Errorf("decode stored %s: %w", eventType, err)
	}
	return evt, nil
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Token amounts
// arrive as decimal strings because they exceed int64 range.

func parseID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse %s: %w", field, err)
	}
	return id, nil
}

func parseAmount(field, value string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", field, err)
	}
	return amount, nil
}

type poolCreatedJSON struct {
	OpID         string `json:"op_id"`
	Caller       string `json:"caller"`
	Insured      string `json:"insured"`
	ContractType int    `json:"contract_type"`
	Sequence     int64  `json:"sequence"`
	At           int64  `json:"at"`
}

func parsePoolCreated(data []byte) (*event.PoolCreated, error) {
	var j poolCreatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolCreated: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	insured, err := parseID("insured", j.Insured)
	if err != nil {
		return nil, err
	}
	return &event.PoolCreated{
		OpID:         opID,
		Caller:       caller,
		Insured:      insured,
		ContractType: j.ContractType,
		Sequence:     j.Sequence,
		At:           j.At,
	}, nil
}

type liquidityJSON struct {
	OpID     string `json:"op_id"`
	Caller   string `json:"caller"`
	Pool     string `json:"pool"`
	Amount   string `json:"amount"`
	Sequence int64  `json:"sequence"`
	At       int64  `json:"at"`
}

func (j *liquidityJSON) fields() (uuid.UUID, uuid.UUID, uuid.UUID, *uint256.Int, error) {
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, nil, err
	}
	pool, err := parseID("pool", j.Pool)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, nil, err
	}
	return opID, caller, pool, amount, nil
}

func parseLiquidityAdded(data []byte) (*event.LiquidityAdded, error) {
	var j liquidityJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidityAdded: %w", err)
	}
	opID, caller, pool, amount, err := j.fields()
	if err != nil {
		return nil, err
	}
	return &event.LiquidityAdded{
		OpID:     opID,
		Caller:   caller,
		Pool:     pool,
		Amount:   amount,
		Sequence: j.Sequence,
		At:       j.At,
	}, nil
}

func parseLiquidityWithdrawn(data []byte) (*event.LiquidityWithdrawn, error) {
	var j liquidityJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidityWithdrawn: %w", err)
	}
	opID, caller, pool, amount, err := j.fields()
	if err != nil {
		return nil, err
	}
	return &event.LiquidityWithdrawn{
		OpID:     opID,
		Caller:   caller,
		Pool:     pool,
		Amount:   amount,
		Sequence: j.Sequence,
		At:       j.At,
	}, nil
}

type policyBoughtJSON struct {
	OpID            string `json:"op_id"`
	Caller          string `json:"caller"`
	Pool            string `json:"pool"`
	DurationSeconds uint64 `json:"duration_seconds"`
	CoverTokens     string `json:"cover_tokens"`
	MaxDAITokens    string `json:"max_dai_tokens"`
	Sequence        int64  `json:"sequence"`
	At              int64  `json:"at"`
}

func parsePolicyBought(data []byte) (*event.PolicyBought, error) {
	var j policyBoughtJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicyBought: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	pool, err := parseID("pool", j.Pool)
	if err != nil {
		return nil, err
	}
	cover, err := parseAmount("cover_tokens", j.CoverTokens)
	if err != nil {
		return nil, err
	}
	maxDAI, err := parseAmount("max_dai_tokens", j.MaxDAITokens)
	if err != nil {
		return nil, err
	}
	return &event.PolicyBought{
		OpID:            opID,
		Caller:          caller,
		Pool:            pool,
		DurationSeconds: j.DurationSeconds,
		CoverTokens:     cover,
		MaxDAITokens:    maxDAI,
		Sequence:        j.Sequence,
		At:              j.At,
	}, nil
}

type vestingCreatedJSON struct {
	OpID            string `json:"op_id"`
	Caller          string `json:"caller"`
	Beneficiary     string `json:"beneficiary"`
	Amount          string `json:"amount"`
	StartDate       int64  `json:"start_date"`
	PeriodInMonth   uint64 `json:"period_in_month"`
	AmountPerPeriod string `json:"amount_per_period"`
	CliffInPeriods  uint64 `json:"cliff_in_periods"`
	IsCancelable    bool   `json:"is_cancelable"`
	Sequence        int64  `json:"sequence"`
	At              int64  `json:"at"`
}

func parseVestingCreated(data []byte) (*event.VestingCreated, error) {
	var j vestingCreatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VestingCreated: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	beneficiary, err := parseID("beneficiary", j.Beneficiary)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	perPeriod, err := parseAmount("amount_per_period", j.AmountPerPeriod)
	if err != nil {
		return nil, err
	}
	return &event.VestingCreated{
		OpID:            opID,
		Caller:          caller,
		Beneficiary:     beneficiary,
		Amount:          amount,
		StartDate:       j.StartDate,
		PeriodInMonth:   j.PeriodInMonth,
		AmountPerPeriod: perPeriod,
		CliffInPeriods:  j.CliffInPeriods,
		IsCancelable:    j.IsCancelable,
		Sequence:        j.Sequence,
		At:              j.At,
	}, nil
}

type vestingOpJSON struct {
	OpID      string `json:"op_id"`
	Caller    string `json:"caller"`
	VestingID uint64 `json:"vesting_id"`
	Sequence  int64  `json:"sequence"`
	At        int64  `json:"at"`
}

func parseVestingCanceled(data []byte) (*event.VestingCanceled, error) {
	var j vestingOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VestingCanceled: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &event.VestingCanceled{
		OpID:      opID,
		Caller:    caller,
		VestingID: j.VestingID,
		Sequence:  j.Sequence,
		At:        j.At,
	}, nil
}

func parseVestingWithdrawn(data []byte) (*event.VestingWithdrawn, error) {
	var j vestingOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VestingWithdrawn: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &event.VestingWithdrawn{
		OpID:      opID,
		Caller:    caller,
		VestingID: j.VestingID,
		Sequence:  j.Sequence,
		At:        j.At,
	}, nil
}

type callerOpJSON struct {
	OpID     string `json:"op_id"`
	Caller   string `json:"caller"`
	Sequence int64  `json:"sequence"`
	At       int64  `json:"at"`
}

func parseExcessiveTokensWithdrawn(data []byte) (*event.ExcessiveTokensWithdrawn, error) {
	var j callerOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ExcessiveTokensWithdrawn: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &event.ExcessiveTokensWithdrawn{
		OpID:     opID,
		Caller:   caller,
		Sequence: j.Sequence,
		At:       j.At,
	}, nil
}

type daiInvestedJSON struct {
	OpID     string `json:"op_id"`
	Caller   string `json:"caller"`
	GroupID  uint64 `json:"group_id"`
	Amount   string `json:"amount"`
	Sequence int64  `json:"sequence"`
	At       int64  `json:"at"`
}

func parseDAIInvested(data []byte) (*event.DAIInvested, error) {
	var j daiInvestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DAIInvested: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.DAIInvested{
		OpID:     opID,
		Caller:   caller,
		GroupID:  j.GroupID,
		Amount:   amount,
		Sequence: j.Sequence,
		At:       j.At,
	}, nil
}

type groupOpJSON struct {
	OpID     string `json:"op_id"`
	Caller   string `json:"caller"`
	GroupID  uint64 `json:"group_id"`
	Sequence int64  `json:"sequence"`
	At       int64  `json:"at"`
}

func parseRewardChecked(data []byte) (*event.RewardChecked, error) {
	var j groupOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RewardChecked: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &event.RewardChecked{
		OpID:     opID,
		Caller:   caller,
		GroupID:  j.GroupID,
		Sequence: j.Sequence,
		At:       j.At,
	}, nil
}

func parseRewardClaimed(data []byte) (*event.RewardClaimed, error) {
	var j groupOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RewardClaimed: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &event.RewardClaimed{
		OpID:     opID,
		Caller:   caller,
		GroupID:  j.GroupID,
		Sequence: j.Sequence,
		At:       j.At,
	}, nil
}

func parseNFTDistributed(data []byte) (*event.NFTDistributed, error) {
	var j groupOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NFTDistributed: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &event.NFTDistributed{
		OpID:     opID,
		Caller:   caller,
		GroupID:  j.GroupID,
		Sequence: j.Sequence,
		At:       j.At,
	}, nil
}

func parseSharesStaked(data []byte) (*event.SharesStaked, error) {
	var j liquidityJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SharesStaked: %w", err)
	}
	opID, caller, pool, amount, err := j.fields()
	if err != nil {
		return nil, err
	}
	return &event.SharesStaked{
		OpID:     opID,
		Caller:   caller,
		Pool:     pool,
		Amount:   amount,
		Sequence: j.Sequence,
		At:       j.At,
	}, nil
}

type sharesWithdrawnJSON struct {
	OpID         string `json:"op_id"`
	Caller       string `json:"caller"`
	StakeTokenID uint64 `json:"stake_token_id"`
	Sequence     int64  `json:"sequence"`
	At           int64  `json:"at"`
}

func parseSharesWithdrawn(data []byte) (*event.SharesWithdrawn, error) {
	var j sharesWithdrawnJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SharesWithdrawn: %w", err)
	}
	opID, err := parseID("op_id", j.OpID)
	if err != nil {
		return nil, err
	}
	caller, err := parseID("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	return &event.SharesWithdrawn{
		OpID:         opID,
		Caller:       caller,
		StakeTokenID: j.StakeTokenID,
		Sequence:     j.Sequence,
		At:           j.At,
	}, nil
}
