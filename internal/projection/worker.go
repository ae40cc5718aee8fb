package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CoverLedger/internal/observability"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this. Token
// amounts travel as decimal strings because they exceed int64 range.
type ProjectionOutput struct {
	Sequence  int64
	EventType string
	PoolID    *string
	PoolState *PoolState
	Vesting   *VestingState
	// Leaderboard, when non-nil, replaces the whole projected ranking.
	Leaderboard []LeaderboardEntry
	Timestamp   int64
}

// PoolState is the queryable per-pool summary after applying one event.
type PoolState struct {
	Insured          string
	TotalLiquidity   string
	TotalCoverTokens string
	TotalShares      string
}

// VestingState is the queryable schedule summary after a vesting event.
type VestingState struct {
	VestingID       uint64
	Beneficiary     string
	Amount          string
	StartDate       int64
	PeriodInMonth   uint64
	AmountPerPeriod string
	CliffInPeriods  uint64
	IsCancelable    bool
	PaidAmount      string
	IsValid         bool
}

// LeaderboardEntry is one projected competition ranking row.
type LeaderboardEntry struct {
	Rank    int
	GroupID uint64
	Total   string
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop; if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Continue: projections are eventually consistent and
				// can be rebuilt from the event log
				pw.log.Warn().Err(err).Int64("sequence", output.Sequence).
					Msg("projection update failed")
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	if pw.metrics != nil {
		start := time.Now()
		defer func() {
			pw.metrics.ProjectionUpdateDur.WithLabelValues(output.EventType).Observe(time.Since(start).Seconds())
		}()
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if output.PoolID != nil && output.PoolState != nil {
		if err := pw.updatePoolProjection(ctx, tx, *output.PoolID, output.PoolState, output.Sequence); err != nil {
			return fmt.Errorf("pool projection: %w", err)
		}
	}

	if output.Vesting != nil {
		if err := pw.updateVestingProjection(ctx, tx, output.Vesting, output.Sequence); err != nil {
			return fmt.Errorf("vesting projection: %w", err)
		}
	}

	if output.Leaderboard != nil {
		if err := pw.replaceLeaderboard(ctx, tx, output.Leaderboard, output.Sequence); err != nil {
			return fmt.Errorf("leaderboard projection: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updatePoolProjection(ctx context.Context, tx *sql.Tx, poolID string, state *PoolState, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pool_state
			(pool_id, insured, total_liquidity, total_cover_tokens, total_shares, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pool_id)
		DO UPDATE SET total_liquidity = $3, total_cover_tokens = $4,
		              total_shares = $5, last_sequence = $6
	`, poolID, state.Insured, state.TotalLiquidity, state.TotalCoverTokens, state.TotalShares, sequence)
	return err
}

func (pw *ProjectionWorker) updateVestingProjection(ctx context.Context, tx *sql.Tx, v *VestingState, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.vestings
			(vesting_id, beneficiary, amount, start_date, period_in_month,
			 amount_per_period, cliff_in_periods, is_cancelable, paid_amount,
			 is_valid, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (vesting_id)
		DO UPDATE SET paid_amount = $9, is_valid = $10, last_sequence = $11
	`, v.VestingID, v.Beneficiary, v.Amount, v.StartDate, v.PeriodInMonth,
		v.AmountPerPeriod, v.CliffInPeriods, v.IsCancelable, v.PaidAmount,
		v.IsValid, sequence)
	return err
}

func (pw *ProjectionWorker) replaceLeaderboard(ctx context.Context, tx *sql.Tx, entries []LeaderboardEntry, sequence int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM projections.mining_leaderboard`); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.mining_leaderboard (rank, group_id, total, last_sequence)
			VALUES ($1, $2, $3, $4)
		`, e.Rank, e.GroupID, e.Total, sequence); err != nil {
			return err
		}
	}
	return nil
}

// RebuildProjections truncates the projection tables so the orchestrator
// can repopulate them by replaying the event log through the core.
// Pool totals are 256-bit decimal strings, so the rebuild cannot be a SQL
// aggregate; it has to flow back through the domain engines.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.pool_state`,
		`TRUNCATE projections.vestings`,
		`TRUNCATE projections.mining_leaderboard`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	return nil
}
