package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// ConfigRepository implements port.ConfigRepository using PostgreSQL. The
// table holds at most one row, keyed by a fixed id.
type ConfigRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

const systemConfigRowID = 1

// NewConfigRepository wires a PostgreSQL-backed config repository.
func NewConfigRepository(exec pgExecutor) *ConfigRepository {
	repo := &ConfigRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Get returns the singleton row, or repository.ErrNotFound when none exists.
func (r *ConfigRepository) Get(ctx context.Context) (*domain.SystemConfig, error) {
	stmt, args, err := r.builder.
		Select("id", "verification", "updated_at", "updated_by").
		From("relay.system_config").
		Where(squirrel.Eq{"id": systemConfigRowID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select system config sql: %w", err)
	}

	var (
		cfg       domain.SystemConfig
		payload   []byte
		updatedBy sql.NullString
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&cfg.ID,
		&payload,
		&cfg.UpdatedAt,
		&updatedBy,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan system config: %w", err)
	}

	if err := json.Unmarshal(payload, &cfg.Verification); err != nil {
		return nil, fmt.Errorf("decode verification config: %w", err)
	}
	if updatedBy.Valid {
		val := updatedBy.String
		cfg.UpdatedBy = &val
	}

	return &cfg, nil
}

// Upsert writes the verification payload, creating the row when absent.
func (r *ConfigRepository) Upsert(ctx context.Context, cfg domain.VerificationConfig, updatedBy *string) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode verification config: %w", err)
	}

	query := r.builder.Insert("relay.system_config").
		Columns("id", "verification", "updated_at", "updated_by").
		Values(systemConfigRowID, payload, r.now().UTC(), updatedBy).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			verification = EXCLUDED.verification,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by`)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert system config sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert system config: %w", err)
	}

	return nil
}
