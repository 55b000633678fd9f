package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/repository"
)

const auditColumns = `id, user_id, action, method, url, payload, outcome, http_status, message, created_at`

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditEntry) error {
	query := `
        INSERT INTO audit_entries (` + auditColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO NOTHING
    `

	return r.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			entry.ID,
			entry.UserID,
			entry.Action,
			entry.Method,
			entry.URL,
			nullableJSON(entry.Payload),
			entry.Outcome,
			entry.HTTPStatus,
			entry.Message,
			entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create audit entry: %w", err)
		}
		return nil
	})
}

func (r *auditRepository) ListWithPagination(ctx context.Context, filter repository.AuditFilter) ([]*model.AuditEntry, int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	where, args := auditWhere(filter)

	var total int64
	if err := r.GetDB().GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_entries"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := "SELECT " + auditColumns + " FROM audit_entries" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var entries []*model.AuditEntry
	if err := r.GetDB().SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}

	return entries, total, nil
}

func (r *auditRepository) GetAggregateStats(ctx context.Context, filter repository.AuditFilter) (*model.AuditStats, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	where, args := auditWhere(filter)

	stats := &model.AuditStats{
		ActionCounts:  make(map[string]int64),
		OutcomeCounts: make(map[string]int64),
	}

	if err := r.GetDB().GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM audit_entries"+where, args...); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	for column, counts := range map[string]map[string]int64{
		"action":  stats.ActionCounts,
		"outcome": stats.OutcomeCounts,
	} {
		if err := r.countBy(ctx, column, where, args, counts); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (r *auditRepository) countBy(ctx context.Context, column, where string, args []interface{}, into map[string]int64) error {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_entries%s GROUP BY %s", column, where, column)
	rows, err := r.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to count audit entries by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	result, err := r.GetDB().ExecContext(ctx, `DELETE FROM audit_entries WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit entries: %w", err)
	}

	return result.RowsAffected()
}

func auditWhere(filter repository.AuditFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.Outcome != "" {
		add("outcome = $%d", filter.Outcome)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
