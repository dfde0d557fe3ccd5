package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// BanRepository implements port.BanRepository using PostgreSQL.
type BanRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewBanRepository wires a PostgreSQL-backed ban repository.
func NewBanRepository(exec pgExecutor) *BanRepository {
	repo := &BanRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

var banColumns = []string{
	"telegram_id",
	"reason",
	"expires_at",
	"added_by",
	"created_at",
	"updated_at",
}

func scanBan(row pgx.Row) (*domain.BanEntry, error) {
	var (
		entry   domain.BanEntry
		reason  sql.NullString
		addedBy sql.NullString
	)

	if err := row.Scan(
		&entry.TelegramID,
		&reason,
		&entry.ExpiresAt,
		&addedBy,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan ban entry: %w", err)
	}

	if reason.Valid {
		val := reason.String
		entry.Reason = &val
	}
	if addedBy.Valid {
		val := addedBy.String
		entry.AddedBy = &val
	}

	return &entry, nil
}

// Upsert inserts or replaces the entry for the given telegram id.
func (r *BanRepository) Upsert(ctx context.Context, entry domain.BanEntry) (*domain.BanEntry, error) {
	query := r.builder.Insert("relay.bans").
		Columns(banColumns...).
		Values(
			entry.TelegramID,
			entry.Reason,
			entry.ExpiresAt,
			entry.AddedBy,
			entry.CreatedAt,
			entry.UpdatedAt,
		).
		Suffix(`ON CONFLICT (telegram_id) DO UPDATE SET
			reason = EXCLUDED.reason,
			expires_at = EXCLUDED.expires_at,
			added_by = EXCLUDED.added_by,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + columnList(banColumns))

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert ban sql: %w", err)
	}

	return scanBan(r.exec.QueryRow(ctx, stmt, args...))
}

// Get retrieves the entry for a telegram id, expired or not.
func (r *BanRepository) Get(ctx context.Context, telegramID string) (*domain.BanEntry, error) {
	stmt, args, err := r.builder.
		Select(banColumns...).
		From("relay.bans").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select ban sql: %w", err)
	}

	return scanBan(r.exec.QueryRow(ctx, stmt, args...))
}

// Delete removes the entry for a telegram id.
func (r *BanRepository) Delete(ctx context.Context, telegramID string) error {
	stmt, args, err := r.builder.
		Delete("relay.bans").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete ban sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListActive returns entries that are permanent or expire after now.
func (r *BanRepository) ListActive(ctx context.Context, now time.Time) ([]domain.BanEntry, error) {
	return r.list(ctx, squirrel.Or{
		squirrel.Eq{"expires_at": nil},
		squirrel.Gt{"expires_at": now},
	})
}

// ListAll returns every entry including expired ones.
func (r *BanRepository) ListAll(ctx context.Context) ([]domain.BanEntry, error) {
	return r.list(ctx, nil)
}

func (r *BanRepository) list(ctx context.Context, pred squirrel.Sqlizer) ([]domain.BanEntry, error) {
	query := r.builder.
		Select(banColumns...).
		From("relay.bans").
		OrderBy("created_at DESC")
	if pred != nil {
		query = query.Where(pred)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bans sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	defer rows.Close()

	var entries []domain.BanEntry
	for rows.Next() {
		entry, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bans: %w", err)
	}

	return entries, nil
}

// DeleteExpired purges entries whose expiry has passed, returning the number
// removed.
func (r *BanRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	stmt, args, err := r.builder.
		Delete("relay.bans").
		Where(squirrel.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired bans sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired bans: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// Count returns the total number of entries, expired included.
func (r *BanRepository) Count(ctx context.Context) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From("relay.bans").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count bans sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count bans: %w", err)
	}

	return count, nil
}
