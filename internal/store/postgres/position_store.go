package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltrade/voltbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection
// pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, event_id, side_index, bet_type, period_type,
	alternate_no, scope, source_id, league, direction, size,
	entry_points, entry_price, entry_deviation, confidence,
	entry_score_away, entry_score_home, stop_loss_dev, max_hold_until,
	status, opened_at, closing_at, closed_at,
	exit_reason, exit_points, exit_price, exit_deviation, pnl, closed_stale`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var scope, direction, status, exitReason string
	var awayScore, homeScore int

	err := row.Scan(
		&p.ID, &p.Line.EventID, &p.Line.SideIndex, &p.Line.BetType, &p.Line.PeriodType,
		&p.Line.AlternateNumber, &scope, &p.Line.SourceID, &p.League, &direction, &p.Size,
		&p.EntryPoints, &p.EntryPrice, &p.EntryDeviation, &p.Confidence,
		&awayScore, &homeScore, &p.StopLossDev, &p.MaxHoldUntil,
		&status, &p.OpenedAt, &p.ClosingAt, &p.ClosedAt,
		&exitReason, &p.ExitPoints, &p.ExitPrice, &p.ExitDeviation, &p.PnL, &p.ClosedStale,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Line.Scope = domain.MarketScope(scope)
	p.Direction = domain.Direction(direction)
	p.State = domain.PositionState(status)
	p.ExitReason = domain.ExitReason(exitReason)
	p.EntryScore = [2]int{awayScore, homeScore}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position row.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, event_id, side_index, bet_type, period_type,
			alternate_no, scope, source_id, league, direction, size,
			entry_points, entry_price, entry_deviation, confidence,
			entry_score_away, entry_score_home, stop_loss_dev, max_hold_until,
			status, opened_at, closing_at, closed_at,
			exit_reason, exit_points, exit_price, exit_deviation, pnl, closed_stale,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23,
			$24, $25, $26, $27, $28, $29,
			NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Line.EventID, p.Line.SideIndex, int(p.Line.BetType), int(p.Line.PeriodType),
		p.Line.AlternateNumber, string(p.Line.Scope), p.Line.SourceID, int(p.League), string(p.Direction), p.Size,
		p.EntryPoints, p.EntryPrice, p.EntryDeviation, p.Confidence,
		p.EntryScore[0], p.EntryScore[1], p.StopLossDev, p.MaxHoldUntil,
		string(p.State), p.OpenedAt, p.ClosingAt, p.ClosedAt,
		string(p.ExitReason), p.ExitPoints, p.ExitPrice, p.ExitDeviation, p.PnL, p.ClosedStale,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// MarkClosing transitions an open position into the closing state.
func (s *PositionStore) MarkClosing(ctx context.Context, id string, reason domain.ExitReason, at time.Time) error {
	const query = `
		UPDATE positions SET
			status      = 'closing',
			exit_reason = $2,
			closing_at  = $3,
			updated_at  = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, string(reason), at)
	if err != nil {
		return fmt.Errorf("postgres: mark position %s closing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.closedOrMissing(ctx, id)
	}
	return nil
}

// CloseOut writes the final state of a closed position. Closed rows never
// change again: a second close-out returns ErrClosed.
func (s *PositionStore) CloseOut(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			status         = $2,
			exit_reason    = $3,
			closing_at     = $4,
			closed_at      = $5,
			exit_points    = $6,
			exit_price     = $7,
			exit_deviation = $8,
			pnl            = $9,
			closed_stale   = $10,
			updated_at     = NOW()
		WHERE id = $1 AND status <> 'closed'`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, string(p.State), string(p.ExitReason), p.ClosingAt, p.ClosedAt,
		p.ExitPoints, p.ExitPrice, p.ExitDeviation, p.PnL, p.ClosedStale,
	)
	if err != nil {
		return fmt.Errorf("postgres: close out position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.closedOrMissing(ctx, p.ID)
	}
	return nil
}

// closedOrMissing disambiguates a zero-row update.
func (s *PositionStore) closedOrMissing(ctx context.Context, id string) error {
	var status string
	err := s.pool.QueryRow(ctx, "SELECT status FROM positions WHERE id = $1", id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: inspect position %s: %w", id, err)
	}
	if status == string(domain.PositionClosed) {
		return domain.ErrClosed
	}
	return domain.ErrNotFound
}

// GetByID retrieves a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns every position not yet closed, oldest first, including
// rows caught mid-closing by a shutdown.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status <> 'closed'
		 ORDER BY opened_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListClosedSince returns closed positions with closed_at at or after since,
// newest first.
func (s *PositionStore) ListClosedSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE status = 'closed' AND closed_at >= $1`
	args := []any{since}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY closed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// SumPnLSince totals realized profit over closed positions since the given
// time.
func (s *PositionStore) SumPnLSince(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0) FROM positions
		 WHERE status = 'closed' AND closed_at >= $1`, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return sum, nil
}
