package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// TemplateRepository implements port.TemplateRepository using PostgreSQL.
type TemplateRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewTemplateRepository wires a PostgreSQL-backed template repository.
func NewTemplateRepository(exec pgExecutor) *TemplateRepository {
	repo := &TemplateRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

var templateColumns = []string{"id", "keyword", "content", "created_at", "updated_at"}

func scanTemplate(row pgx.Row) (*domain.ReplyTemplate, error) {
	var tpl domain.ReplyTemplate
	if err := row.Scan(&tpl.ID, &tpl.Keyword, &tpl.Content, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &tpl, nil
}

// Create inserts a template, returning ErrDuplicate when the keyword is taken.
func (r *TemplateRepository) Create(ctx context.Context, keyword, content string) (*domain.ReplyTemplate, error) {
	now := r.now().UTC()
	query := r.builder.Insert("relay.reply_templates").
		Columns("keyword", "content", "created_at", "updated_at").
		Values(keyword, content, now, now).
		Suffix("RETURNING id, keyword, content, created_at, updated_at")

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert template sql: %w", err)
	}

	tpl, err := scanTemplate(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, repository.ErrDuplicate
		}
		return nil, err
	}

	return tpl, nil
}

// GetByKeyword retrieves a template by its keyword.
func (r *TemplateRepository) GetByKeyword(ctx context.Context, keyword string) (*domain.ReplyTemplate, error) {
	stmt, args, err := r.builder.
		Select(templateColumns...).
		From("relay.reply_templates").
		Where(squirrel.Eq{"keyword": keyword}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select template sql: %w", err)
	}

	return scanTemplate(r.exec.QueryRow(ctx, stmt, args...))
}

// List returns every template ordered by keyword.
func (r *TemplateRepository) List(ctx context.Context) ([]domain.ReplyTemplate, error) {
	stmt, args, err := r.builder.
		Select(templateColumns...).
		From("relay.reply_templates").
		OrderBy("keyword ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list templates sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.ReplyTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}

	return templates, nil
}

// DeleteByKeyword removes a template by its keyword.
func (r *TemplateRepository) DeleteByKeyword(ctx context.Context, keyword string) error {
	stmt, args, err := r.builder.
		Delete("relay.reply_templates").
		Where(squirrel.Eq{"keyword": keyword}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete template sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}
