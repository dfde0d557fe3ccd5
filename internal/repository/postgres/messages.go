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

// MessageRepository implements port.MessageRepository using PostgreSQL.
type MessageRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewMessageRepository wires a PostgreSQL-backed message repository.
func NewMessageRepository(exec pgExecutor) *MessageRepository {
	repo := &MessageRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

var messageColumns = []string{
	"id",
	"telegram_id",
	"message_id",
	"direction",
	"kind",
	"content",
	"media_group_id",
	"created_at",
}

func scanMessage(row pgx.Row) (*domain.MessageRecord, error) {
	var (
		record     domain.MessageRecord
		content    sql.NullString
		mediaGroup sql.NullString
	)

	if err := row.Scan(
		&record.ID,
		&record.TelegramID,
		&record.MessageID,
		&record.Direction,
		&record.Kind,
		&content,
		&mediaGroup,
		&record.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan message record: %w", err)
	}

	if content.Valid {
		val := content.String
		record.Content = &val
	}
	if mediaGroup.Valid {
		val := mediaGroup.String
		record.MediaGroupID = &val
	}

	return &record, nil
}

// SaveRecord appends one row to the relay history.
func (r *MessageRepository) SaveRecord(ctx context.Context, record domain.MessageRecord) (*domain.MessageRecord, error) {
	query := r.builder.Insert("relay.messages").
		Columns("telegram_id", "message_id", "direction", "kind", "content", "media_group_id", "created_at").
		Values(
			record.TelegramID,
			record.MessageID,
			record.Direction,
			record.Kind,
			record.Content,
			record.MediaGroupID,
			record.CreatedAt,
		).
		Suffix("RETURNING " + columnList(messageColumns))

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert message sql: %w", err)
	}

	return scanMessage(r.exec.QueryRow(ctx, stmt, args...))
}

// History returns a user's conversation history, newest first.
func (r *MessageRepository) History(ctx context.Context, telegramID string, limit, offset int) ([]domain.MessageRecord, error) {
	query := r.builder.
		Select(messageColumns...).
		From("relay.messages").
		Where(squirrel.Eq{"telegram_id": telegramID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	return r.listMessages(ctx, query, "list history")
}

// Search performs a substring match over recorded text content, newest first.
func (r *MessageRepository) Search(ctx context.Context, keyword string, limit int) ([]domain.MessageRecord, error) {
	query := r.builder.
		Select(messageColumns...).
		From("relay.messages").
		Where(squirrel.Like{"content": "%" + keyword + "%"}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))

	return r.listMessages(ctx, query, "search messages")
}

func (r *MessageRepository) listMessages(ctx context.Context, query squirrel.SelectBuilder, op string) ([]domain.MessageRecord, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s sql: %w", op, err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []domain.MessageRecord
	for rows.Next() {
		record, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}

	return records, nil
}

var mappingColumns = []string{
	"admin_message_id",
	"telegram_id",
	"original_message_id",
	"media_group_id",
	"is_revoked",
	"created_at",
	"updated_at",
}

func scanMapping(row pgx.Row) (*domain.MessageMap, error) {
	var (
		mapping    domain.MessageMap
		original   sql.NullString
		mediaGroup sql.NullString
	)

	if err := row.Scan(
		&mapping.AdminMessageID,
		&mapping.TelegramID,
		&original,
		&mediaGroup,
		&mapping.IsRevoked,
		&mapping.CreatedAt,
		&mapping.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan message mapping: %w", err)
	}

	if original.Valid {
		val := original.String
		mapping.OriginalMessageID = &val
	}
	if mediaGroup.Valid {
		val := mediaGroup.String
		mapping.MediaGroupID = &val
	}

	return &mapping, nil
}

// SaveMapping records the admin-side copy of a forwarded guest message.
func (r *MessageRepository) SaveMapping(ctx context.Context, mapping domain.MessageMap) error {
	query := r.builder.Insert("relay.message_maps").
		Columns(mappingColumns...).
		Values(
			mapping.AdminMessageID,
			mapping.TelegramID,
			mapping.OriginalMessageID,
			mapping.MediaGroupID,
			mapping.IsRevoked,
			mapping.CreatedAt,
			mapping.UpdatedAt,
		).
		Suffix(`ON CONFLICT (admin_message_id) DO UPDATE SET
			telegram_id = EXCLUDED.telegram_id,
			original_message_id = EXCLUDED.original_message_id,
			media_group_id = EXCLUDED.media_group_id,
			is_revoked = EXCLUDED.is_revoked,
			updated_at = EXCLUDED.updated_at`)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert mapping sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert mapping: %w", err)
	}

	return nil
}

// GetMapping resolves an admin-side message id to its guest chat.
func (r *MessageRepository) GetMapping(ctx context.Context, adminMessageID string) (*domain.MessageMap, error) {
	stmt, args, err := r.builder.
		Select(mappingColumns...).
		From("relay.message_maps").
		Where(squirrel.Eq{"admin_message_id": adminMessageID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select mapping sql: %w", err)
	}

	return scanMapping(r.exec.QueryRow(ctx, stmt, args...))
}

// GetMappingByOriginal resolves a guest-side message id back to its
// forwarded admin copy.
func (r *MessageRepository) GetMappingByOriginal(ctx context.Context, telegramID, originalMessageID string) (*domain.MessageMap, error) {
	stmt, args, err := r.builder.
		Select(mappingColumns...).
		From("relay.message_maps").
		Where(squirrel.Eq{
			"telegram_id":         telegramID,
			"original_message_id": originalMessageID,
		}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select mapping by original sql: %w", err)
	}

	return scanMapping(r.exec.QueryRow(ctx, stmt, args...))
}

// RevokeMapping marks a mapping as no longer routable.
func (r *MessageRepository) RevokeMapping(ctx context.Context, adminMessageID string) error {
	stmt, args, err := r.builder.
		Update("relay.message_maps").
		Set("is_revoked", true).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"admin_message_id": adminMessageID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke mapping sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// CountByDirection counts messages in one direction recorded since the
// given time.
func (r *MessageRepository) CountByDirection(ctx context.Context, direction domain.MessageDirection, since time.Time) (int, error) {
	return r.count(ctx, r.builder.
		Select("COUNT(*)").
		From("relay.messages").
		Where(squirrel.Eq{"direction": direction}).
		Where(squirrel.GtOrEq{"created_at": since}), "count by direction")
}

// CountActiveUsers counts distinct guests who sent a message since the
// given time.
func (r *MessageRepository) CountActiveUsers(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, r.builder.
		Select("COUNT(DISTINCT telegram_id)").
		From("relay.messages").
		Where(squirrel.Eq{"direction": domain.DirectionIn}).
		Where(squirrel.GtOrEq{"created_at": since}), "count active users")
}

// CountAll counts every recorded message.
func (r *MessageRepository) CountAll(ctx context.Context) (int, error) {
	return r.count(ctx, r.builder.Select("COUNT(*)").From("relay.messages"), "count messages")
}

// CountUsers counts every known guest.
func (r *MessageRepository) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, r.builder.Select("COUNT(*)").From("relay.users"), "count users")
}

func (r *MessageRepository) count(ctx context.Context, query squirrel.SelectBuilder, op string) (int, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s sql: %w", op, err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}
