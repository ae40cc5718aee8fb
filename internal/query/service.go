package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/observability"
	"CoverLedger/internal/pricing"
)

// QueryService provides read-only access to projection tables. Queries are
// served over HTTP/JSON, reading from PostgreSQL. All responses include
// as_of_sequence for freshness semantics.
type QueryService struct {
	db      *sql.DB
	pricing *pricing.Engine
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, pricingCfg pricing.Config, metrics *observability.Metrics) *QueryService {
	return &QueryService{
		db:      db,
		pricing: pricing.NewEngine(pricingCfg),
		metrics: metrics,
	}
}

// ListPools returns registered pools ordered by id, with offset paging.
func (qs *QueryService) ListPools(
	ctx context.Context,
	offset, limit int,
) (*PoolListResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var total int
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM projections.pool_state
	`).Scan(&total); err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT pool_id, insured, total_liquidity, total_cover_tokens, total_shares
		FROM projections.pool_state
		ORDER BY pool_id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &PoolListResponse{Total: total, Offset: offset, AsOfSequence: asOfSeq}
	for rows.Next() {
		var p PoolResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PoolID, &p.Insured, &p.TotalLiquidity, &p.TotalCoverTokens, &p.TotalShares,
		); err != nil {
			return nil, err
		}
		resp.Pools = append(resp.Pools, p)
	}

	return resp, rows.Err()
}

// GetPool returns a single pool's projected state.
func (qs *QueryService) GetPool(
	ctx context.Context,
	poolID uuid.UUID,
) (*PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var p PoolResponse
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT pool_id, insured, total_liquidity, total_cover_tokens, total_shares
		FROM projections.pool_state
		WHERE pool_id = $1
	`, poolID).Scan(
		&p.PoolID, &p.Insured, &p.TotalLiquidity, &p.TotalCoverTokens, &p.TotalShares,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pool not found: %s", poolID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Quote prices a policy against a pool's projected utilization. The premium
// is computed from the projection snapshot, so it carries the same freshness
// semantics as any other read.
func (qs *QueryService) Quote(
	ctx context.Context,
	poolID uuid.UUID,
	durationSeconds uint64,
	coverTokens *uint256.Int,
) (*QuoteResponse, error) {
	pool, err := qs.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	liquidity, err := uint256.FromDecimal(pool.TotalLiquidity)
	if err != nil {
		return nil, fmt.Errorf("pool %s: bad liquidity projection: %w", poolID, err)
	}
	cover, err := uint256.FromDecimal(pool.TotalCoverTokens)
	if err != nil {
		return nil, fmt.Errorf("pool %s: bad cover projection: %w", poolID, err)
	}

	premium, err := qs.pricing.Quote(durationSeconds, coverTokens, pricing.PoolSnapshot{
		TotalLiquidity:   liquidity,
		TotalCoverTokens: cover,
	})
	if err != nil {
		return nil, err
	}

	return &QuoteResponse{
		PoolID:          pool.PoolID,
		DurationSeconds: durationSeconds,
		CoverTokens:     coverTokens.Dec(),
		Premium:         premium.Dec(),
		AsOfSequence:    pool.AsOfSequence,
	}, nil
}

// GetVesting returns one vesting schedule's projected state.
// GetMiningGroup returns one group's leaderboard position. Groups outside
// the projected top list are not found.
func (qs *QueryService) GetMiningGroup(ctx context.Context, groupID uint64) (*MiningGroupResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &MiningGroupResponse{GroupID: groupID, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT rank, total
		FROM projections.mining_leaderboard
		WHERE group_id = $1
	`, groupID).Scan(&resp.Rank, &resp.Total)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group not ranked: %d", groupID)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (qs *QueryService) GetVesting(
	ctx context.Context,
	vestingID uint64,
) (*VestingResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var v VestingResponse
	v.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT vesting_id, beneficiary, amount, start_date, period_in_month,
		       amount_per_period, cliff_in_periods, is_cancelable, paid_amount, is_valid
		FROM projections.vestings
		WHERE vesting_id = $1
	`, vestingID).Scan(
		&v.VestingID, &v.Beneficiary, &v.Amount, &v.StartDate, &v.PeriodInMonth,
		&v.AmountPerPeriod, &v.CliffInPeriods, &v.IsCancelable, &v.PaidAmount, &v.IsValid,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("vesting not found: %d", vestingID)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetLeaderboard returns the current competition ranking, best rank first.
func (qs *QueryService) GetLeaderboard(ctx context.Context) (*LeaderboardResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT rank, group_id, total
		FROM projections.mining_leaderboard
		ORDER BY rank
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &LeaderboardResponse{AsOfSequence: asOfSeq}
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.Rank, &row.GroupID, &row.Total); err != nil {
			return nil, err
		}
		resp.Groups = append(resp.Groups, row)
	}

	return resp, rows.Err()
}

// ListEvents returns event-log rows with cursor-based pagination, newest
// first. poolID narrows the listing to a single pool's events.
func (qs *QueryService) ListEvents(
	ctx context.Context,
	poolID *uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]EventResponse, error) {
	query := `
		SELECT sequence, event_type, idempotency_key, pool_id, event_time, source_sequence
		FROM event_log.events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if poolID != nil {
		query += fmt.Sprintf(" AND pool_id = $%d", argIdx)
		args = append(args, *poolID)
		argIdx++
	}

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventResponse
	for rows.Next() {
		var e EventResponse
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.PoolID,
			&e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity across the event log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
