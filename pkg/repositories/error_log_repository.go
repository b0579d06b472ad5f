package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/bugsneak/pkg/apperrors"
	"github.com/ekaya-inc/bugsneak/pkg/database"
	"github.com/ekaya-inc/bugsneak/pkg/models"
)

// ErrorLogRepository provides data access for grouped error logs.
type ErrorLogRepository interface {
	// IncrementByHash bumps occurrence_count and last_seen for the record with the given
	// fingerprint. It reports false when no record matched.
	IncrementByHash(ctx context.Context, hash string, at time.Time) (bool, error)
	// Insert creates a new record. A duplicate fingerprint returns apperrors.ErrConflict.
	Insert(ctx context.Context, log *models.ErrorLog) error
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, filters models.ErrorLogFilters) ([]*models.ErrorLog, int64, error)
	GetByID(ctx context.Context, id int64) (*models.ErrorLog, error)
	GetByShareToken(ctx context.Context, token string) (*models.ErrorLog, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	Purge(ctx context.Context) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	TrimToMaxRows(ctx context.Context, maxRows int) (int64, error)
	Stats(ctx context.Context) (*models.ErrorLogStats, error)
}

type errorLogRepository struct {
	db *database.DB
}

// NewErrorLogRepository creates an ErrorLogRepository backed by db.
func NewErrorLogRepository(db *database.DB) ErrorLogRepository {
	return &errorLogRepository{db: db}
}

var _ ErrorLogRepository = (*errorLogRepository)(nil)

const errorLogColumns = `
	id, error_type, severity, error_message, file_path, line_number, stack_trace,
	runtime_version, framework_version, active_theme, culprit, share_token,
	code_snippet, error_hash, occurrence_count, request_context, env_context,
	status, last_seen, created_at`

func (r *errorLogRepository) IncrementByHash(ctx context.Context, hash string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE bugsneak_error_logs
		SET occurrence_count = occurrence_count + 1, last_seen = $2
		WHERE error_hash = $1`, hash, at)
	if err != nil {
		return false, fmt.Errorf("failed to increment error log: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *errorLogRepository) Insert(ctx context.Context, log *models.ErrorLog) error {
	if log.OccurrenceCount < 1 {
		log.OccurrenceCount = 1
	}
	if log.Status == "" {
		log.Status = models.ErrorStatusOpen
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO bugsneak_error_logs (
			error_type, severity, error_message, file_path, line_number, stack_trace,
			runtime_version, framework_version, active_theme, culprit, share_token,
			code_snippet, error_hash, occurrence_count, request_context, env_context,
			status, last_seen, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`,
		log.ErrorType, log.Severity, log.Message, log.FilePath, log.LineNumber, log.StackTrace,
		log.RuntimeVersion, log.FrameworkVersion, log.ActiveTheme, log.Culprit, log.ShareToken,
		log.CodeSnippet, log.ErrorHash, log.OccurrenceCount, log.RequestContext, log.EnvContext,
		log.Status, log.LastSeen, log.CreatedAt,
	).Scan(&log.ID)
	if err != nil {
		// Check for unique constraint violation (PostgreSQL error code 23505)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return nil
}

func (r *errorLogRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bugsneak_error_logs`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count error logs: %w", err)
	}
	return total, nil
}

func (r *errorLogRepository) List(ctx context.Context, filters models.ErrorLogFilters) ([]*models.ErrorLog, int64, error) {
	filters = filters.Normalize()

	var conditions []string
	var args []any
	argIdx := 1

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filters.Status)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM bugsneak_error_logs %s`, where)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count error logs: %w", err)
	}

	// Data
	dataQuery := fmt.Sprintf(`
		SELECT %s
		FROM bugsneak_error_logs
		%s
		ORDER BY last_seen DESC, id DESC
		LIMIT $%d OFFSET $%d`, errorLogColumns, where, argIdx, argIdx+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.ErrorLog, 0)
	for rows.Next() {
		log, err := scanErrorLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating error logs: %w", err)
	}

	return logs, total, nil
}

func (r *errorLogRepository) GetByID(ctx context.Context, id int64) (*models.ErrorLog, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM bugsneak_error_logs WHERE id = $1`, errorLogColumns), id)
	return scanOne(row)
}

func (r *errorLogRepository) GetByShareToken(ctx context.Context, token string) (*models.ErrorLog, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM bugsneak_error_logs WHERE share_token = $1`, errorLogColumns), token)
	return scanOne(row)
}

func (r *errorLogRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	if !models.ValidErrorStatus(status) {
		return apperrors.ErrInvalidStatus
	}

	tag, err := r.db.Exec(ctx, `UPDATE bugsneak_error_logs SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update error log status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *errorLogRepository) Purge(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM bugsneak_error_logs`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge error logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *errorLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM bugsneak_error_logs WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired error logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TrimToMaxRows deletes the oldest records by id until at most maxRows remain.
// A non-positive maxRows means unlimited.
func (r *errorLogRepository) TrimToMaxRows(ctx context.Context, maxRows int) (int64, error) {
	if maxRows <= 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx, `
		DELETE FROM bugsneak_error_logs
		WHERE id IN (
			SELECT id FROM bugsneak_error_logs
			ORDER BY id ASC
			LIMIT GREATEST((SELECT COUNT(*) FROM bugsneak_error_logs) - $1, 0)
		)`, maxRows)
	if err != nil {
		return 0, fmt.Errorf("failed to trim error logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *errorLogRepository) Stats(ctx context.Context) (*models.ErrorLogStats, error) {
	stats := &models.ErrorLogStats{
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), MIN(created_at), MAX(last_seen)
		FROM bugsneak_error_logs`).Scan(&stats.Total, &stats.Oldest, &stats.Newest)
	if err != nil {
		return nil, fmt.Errorf("failed to read error log totals: %w", err)
	}

	if err := r.countBy(ctx, "status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := r.countBy(ctx, "severity", stats.BySeverity); err != nil {
		return nil, err
	}

	return stats, nil
}

// countBy fills out with row counts grouped by column. column is never user input.
func (r *errorLogRepository) countBy(ctx context.Context, column string, out map[string]int64) error {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) FROM bugsneak_error_logs GROUP BY %[1]s`, column))
	if err != nil {
		return fmt.Errorf("failed to count error logs by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out[key] = n
	}
	return rows.Err()
}

func scanOne(row pgx.Row) (*models.ErrorLog, error) {
	log, err := scanErrorLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return log, nil
}

func scanErrorLog(row pgx.Row) (*models.ErrorLog, error) {
	log := &models.ErrorLog{}
	err := row.Scan(
		&log.ID, &log.ErrorType, &log.Severity, &log.Message, &log.FilePath, &log.LineNumber,
		&log.StackTrace, &log.RuntimeVersion, &log.FrameworkVersion, &log.ActiveTheme,
		&log.Culprit, &log.ShareToken, &log.CodeSnippet, &log.ErrorHash, &log.OccurrenceCount,
		&log.RequestContext, &log.EnvContext, &log.Status, &log.LastSeen, &log.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan error log: %w", err)
	}
	return log, nil
}
