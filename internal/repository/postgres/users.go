package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

var userColumns = []string{
	"id",
	"username",
	"note",
	"is_blocked",
	"message_count",
	"first_message_at",
	"last_notification_at",
	"last_message_times",
	"rate_limit_level",
	"rate_limit_violations",
	"rate_limited_until",
	"is_verified",
	"verified_at",
	"verification_token",
	"verification_expires_at",
	"verification_attempts",
	"verification_last_attempt",
	"verification_cooldown_until",
	"verification_data",
	"created_at",
	"updated_at",
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user     domain.User
		username sql.NullString
		note     sql.NullString
		token    sql.NullString
		times    []byte
		data     []byte
	)

	if err := row.Scan(
		&user.ID,
		&username,
		&note,
		&user.IsBlocked,
		&user.MessageCount,
		&user.FirstMessageAt,
		&user.LastNotificationAt,
		&times,
		&user.RateLimitLevel,
		&user.RateLimitViolations,
		&user.RateLimitedUntil,
		&user.IsVerified,
		&user.VerifiedAt,
		&token,
		&user.VerificationExpiresAt,
		&user.VerificationAttempts,
		&user.VerificationLastAttempt,
		&user.VerificationCooldownUntil,
		&data,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if username.Valid {
		val := username.String
		user.Username = &val
	}
	if note.Valid {
		val := note.String
		user.Note = &val
	}
	if token.Valid {
		val := token.String
		user.VerificationToken = &val
	}
	if len(times) > 0 {
		if err := json.Unmarshal(times, &user.LastMessageTimes); err != nil {
			// A corrupt sequence degrades to an empty window rather
			// than failing the whole read.
			user.LastMessageTimes = nil
		}
	}
	if len(data) > 0 {
		var payload domain.VerificationData
		if err := json.Unmarshal(data, &payload); err == nil {
			user.VerificationData = &payload
		}
	}

	return &user, nil
}

// GetByID retrieves a user by telegram id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("relay.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByVerificationToken retrieves the user holding the given session token.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("relay.users").
		Where(squirrel.Eq{"verification_token": token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by token sql: %w", err)
	}

	return scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// Upsert creates the user row on first contact or bumps the message counter
// and username on subsequent ones, returning the stored row.
func (r *UserRepository) Upsert(ctx context.Context, id string, username *string, now time.Time) (*domain.User, error) {
	var usernameValue any
	if username != nil && *username != "" {
		usernameValue = *username
	}

	query := r.builder.Insert("relay.users").
		Columns("id", "username", "message_count", "first_message_at", "created_at", "updated_at").
		Values(id, usernameValue, 1, now, now, now).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, relay.users.username),
			message_count = relay.users.message_count + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + columnList(userColumns))

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert user sql: %w", err)
	}

	return scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// SetBlocked flips the manual block flag.
func (r *UserRepository) SetBlocked(ctx context.Context, id string, blocked bool) error {
	return r.update(ctx, id, squirrel.Eq{"is_blocked": blocked}, "set blocked")
}

// SetLastNotificationAt records when the admin was last notified about this user.
func (r *UserRepository) SetLastNotificationAt(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, squirrel.Eq{"last_notification_at": at}, "set last notification")
}

// UpdateMessageTimes replaces the serialized timestamp sequence.
func (r *UserRepository) UpdateMessageTimes(ctx context.Context, id string, times []int64, now time.Time) error {
	payload, err := json.Marshal(times)
	if err != nil {
		return fmt.Errorf("marshal message times: %w", err)
	}
	return r.update(ctx, id, squirrel.Eq{
		"last_message_times": payload,
		"updated_at":         now,
	}, "update message times")
}

// UpdateRateLimitState writes the violation counter and penalty deadline.
func (r *UserRepository) UpdateRateLimitState(ctx context.Context, id string, violations int, limitedUntil *time.Time, now time.Time) error {
	return r.update(ctx, id, squirrel.Eq{
		"rate_limit_violations": violations,
		"rate_limited_until":    limitedUntil,
		"updated_at":            now,
	}, "update rate limit state")
}

// SetRateLimitLevel assigns the user's tier.
func (r *UserRepository) SetRateLimitLevel(ctx context.Context, id string, level domain.RateLimitLevel, now time.Time) error {
	return r.update(ctx, id, squirrel.Eq{
		"rate_limit_level": int(level),
		"updated_at":       now,
	}, "set rate limit level")
}

// ResetRateLimit clears the violation counter, penalty, and window.
func (r *UserRepository) ResetRateLimit(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, id, squirrel.Eq{
		"rate_limit_violations": 0,
		"rate_limited_until":    nil,
		"last_message_times":    []byte("[]"),
		"updated_at":            now,
	}, "reset rate limit")
}

// UpdateVerificationSession writes the token, expiry, and challenge payload.
func (r *UserRepository) UpdateVerificationSession(ctx context.Context, id string, token *string, expiresAt *time.Time, data *domain.VerificationData, now time.Time) error {
	payload, err := marshalVerificationData(data)
	if err != nil {
		return err
	}
	return r.update(ctx, id, squirrel.Eq{
		"verification_token":      token,
		"verification_expires_at": expiresAt,
		"verification_data":       payload,
		"updated_at":              now,
	}, "update verification session")
}

// UpdateVerificationData replaces only the challenge payload.
func (r *UserRepository) UpdateVerificationData(ctx context.Context, id string, data *domain.VerificationData, now time.Time) error {
	payload, err := marshalVerificationData(data)
	if err != nil {
		return err
	}
	return r.update(ctx, id, squirrel.Eq{
		"verification_data": payload,
		"updated_at":        now,
	}, "update verification data")
}

// UpdateVerificationAttempts writes the attempt counter and cooldown fields.
func (r *UserRepository) UpdateVerificationAttempts(ctx context.Context, id string, attempts int, lastAttempt *time.Time, cooldownUntil *time.Time, now time.Time) error {
	return r.update(ctx, id, squirrel.Eq{
		"verification_attempts":       attempts,
		"verification_last_attempt":   lastAttempt,
		"verification_cooldown_until": cooldownUntil,
		"updated_at":                  now,
	}, "update verification attempts")
}

// MarkVerified flips the terminal verified flag and clears all session and
// attempt fields in one statement.
func (r *UserRepository) MarkVerified(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, id, squirrel.Eq{
		"is_verified":                 true,
		"verified_at":                 now,
		"verification_token":          nil,
		"verification_expires_at":     nil,
		"verification_data":           nil,
		"verification_attempts":       0,
		"verification_last_attempt":   nil,
		"verification_cooldown_until": nil,
		"updated_at":                  now,
	}, "mark verified")
}

// ClearVerification returns the user to the unverified no-session state.
func (r *UserRepository) ClearVerification(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx, id, squirrel.Eq{
		"is_verified":                 false,
		"verified_at":                 nil,
		"verification_token":          nil,
		"verification_expires_at":     nil,
		"verification_data":           nil,
		"verification_attempts":       0,
		"verification_last_attempt":   nil,
		"verification_cooldown_until": nil,
		"updated_at":                  now,
	}, "clear verification")
}

func (r *UserRepository) update(ctx context.Context, id string, set squirrel.Eq, op string) error {
	query := r.builder.Update("relay.users").Where(squirrel.Eq{"id": id})
	for col, val := range set {
		query = query.Set(col, val)
	}

	stmt, args, err := query.ToSql()
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

func marshalVerificationData(data *domain.VerificationData) (any, error) {
	if data == nil {
		return nil, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal verification data: %w", err)
	}
	return payload, nil
}

func columnList(cols []string) string {
	return strings.Join(cols, ", ")
}
