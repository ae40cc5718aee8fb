package query

// PoolResponse is one coverage pool for API queries. Token amounts are
// decimal strings because they exceed int64 range.
type PoolResponse struct {
	PoolID           string `json:"pool_id"`
	Insured          string `json:"insured"`
	TotalLiquidity   string `json:"total_liquidity"`
	TotalCoverTokens string `json:"total_cover_tokens"`
	TotalShares      string `json:"total_shares"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

// PoolListResponse pages through registered pools.
type PoolListResponse struct {
	Pools        []PoolResponse `json:"pools"`
	Total        int            `json:"total"`
	Offset       int            `json:"offset"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// QuoteResponse is a premium quote for API queries.
type QuoteResponse struct {
	PoolID          string `json:"pool_id"`
	DurationSeconds uint64 `json:"duration_seconds"`
	CoverTokens     string `json:"cover_tokens"`
	Premium         string `json:"premium"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// VestingResponse is one vesting schedule for API queries.
type VestingResponse struct {
	VestingID       uint64 `json:"vesting_id"`
	Beneficiary     string `json:"beneficiary"`
	Amount          string `json:"amount"`
	StartDate       int64  `json:"start_date"`
	PeriodInMonth   uint64 `json:"period_in_month"`
	AmountPerPeriod string `json:"amount_per_period"`
	CliffInPeriods  uint64 `json:"cliff_in_periods"`
	IsCancelable    bool   `json:"is_cancelable"`
	PaidAmount      string `json:"paid_amount"`
	IsValid         bool   `json:"is_valid"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// LeaderboardRow is one competition ranking entry for API queries.
type LeaderboardRow struct {
	Rank    int    `json:"rank"`
	GroupID uint64 `json:"group_id"`
	Total   string `json:"total"`
}

// LeaderboardResponse is the projected competition ranking.
type LeaderboardResponse struct {
	Groups       []LeaderboardRow `json:"groups"`
	AsOfSequence int64            `json:"as_of_sequence"`
}

// MiningGroupResponse is one ranked investment group.
type MiningGroupResponse struct {
	GroupID      uint64 `json:"group_id"`
	Rank         int    `json:"rank"`
	Total        string `json:"total"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// EventResponse is one event-log row for API queries.
type EventResponse struct {
	Sequence       int64   `json:"sequence"`
	EventType      string  `json:"event_type"`
	IdempotencyKey string  `json:"idempotency_key"`
	PoolID         *string `json:"pool_id,omitempty"`
	Timestamp      int64   `json:"timestamp"`
	SourceSequence int64   `json:"source_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}

// ErrorResponse is the JSON error body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
