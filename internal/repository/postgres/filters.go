package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// FilterRepository implements port.FilterRepository using PostgreSQL.
type FilterRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewFilterRepository wires a PostgreSQL-backed filter repository.
func NewFilterRepository(exec pgExecutor) *FilterRepository {
	repo := &FilterRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

var filterColumns = []string{"id", "regex", "mode", "note", "priority", "is_active", "created_at"}

func scanFilter(row pgx.Row) (*domain.MessageFilter, error) {
	var (
		filter domain.MessageFilter
		note   sql.NullString
	)

	if err := row.Scan(
		&filter.ID,
		&filter.Regex,
		&filter.Mode,
		&note,
		&filter.Priority,
		&filter.IsActive,
		&filter.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan filter: %w", err)
	}

	if note.Valid {
		val := note.String
		filter.Note = &val
	}

	return &filter, nil
}

// Create inserts a filter rule.
func (r *FilterRepository) Create(ctx context.Context, filter domain.MessageFilter) (*domain.MessageFilter, error) {
	query := r.builder.Insert("relay.message_filters").
		Columns("regex", "mode", "note", "priority", "is_active", "created_at").
		Values(filter.Regex, filter.Mode, filter.Note, filter.Priority, filter.IsActive, filter.CreatedAt).
		Suffix("RETURNING " + columnList(filterColumns))

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert filter sql: %w", err)
	}

	return scanFilter(r.exec.QueryRow(ctx, stmt, args...))
}

// Delete removes a filter rule by id.
func (r *FilterRepository) Delete(ctx context.Context, id int64) error {
	stmt, args, err := r.builder.
		Delete("relay.message_filters").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete filter sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetActive toggles a rule on or off.
func (r *FilterRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.update(ctx, id, "is_active", active, "set filter active")
}

// SetPriority reorders a rule.
func (r *FilterRepository) SetPriority(ctx context.Context, id int64, priority int) error {
	return r.update(ctx, id, "priority", priority, "set filter priority")
}

func (r *FilterRepository) update(ctx context.Context, id int64, col string, val any, op string) error {
	stmt, args, err := r.builder.
		Update("relay.message_filters").
		Set(col, val).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s sql: %w", op, err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListActive returns enabled rules ordered by priority descending, then id
// ascending.
func (r *FilterRepository) ListActive(ctx context.Context) ([]domain.MessageFilter, error) {
	return r.list(ctx, squirrel.Eq{"is_active": true})
}

// ListAll returns every rule.
func (r *FilterRepository) ListAll(ctx context.Context) ([]domain.MessageFilter, error) {
	return r.list(ctx, nil)
}

func (r *FilterRepository) list(ctx context.Context, pred squirrel.Sqlizer) ([]domain.MessageFilter, error) {
	query := r.builder.
		Select(filterColumns...).
		From("relay.message_filters").
		OrderBy("priority DESC", "id ASC")
	if pred != nil {
		query = query.Where(pred)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list filters sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	defer rows.Close()

	var filters []domain.MessageFilter
	for rows.Next() {
		filter, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		filters = append(filters, *filter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filters: %w", err)
	}

	return filters, nil
}

// Count returns the total number of rules, active or not.
func (r *FilterRepository) Count(ctx context.Context) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From("relay.message_filters").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count filters sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count filters: %w", err)
	}

	return count, nil
}
