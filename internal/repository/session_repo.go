package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"studysync-backend/internal/models"
	"studysync-backend/internal/services"
)

const sessionColumns = `id, user_id, group_id, start_time, end_time, duration_seconds, status,
	source_json, metadata_json, validation_json, created_at, updated_at`

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// CreateActive inserts a new active session. The partial unique index on
// (user_id) WHERE status = 'active' makes the single-active-session check
// atomic against concurrent starts.
func (r *SessionRepo) CreateActive(ctx context.Context, s *models.Session) error {
	sourceJSON, err := json.Marshal(s.Source)
	if err != nil {
		return fmt.Errorf("marshal session source: %w", err)
	}
	metadataJSON, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (id, user_id, group_id, start_time, status, source_json, metadata_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.GroupID, s.StartTime, s.Status, sourceJSON, metadataJSON, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return services.ErrActiveSessionExists
		}
		return storeErr("insert session", err)
	}
	return nil
}

func (r *SessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find session by id", err)
	}
	return session, nil
}

func (r *SessionRepo) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND status = 'active'
	`, userID)
	session, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find active session", err)
	}
	return session, nil
}

// TransitionFromActive writes the terminal state only if the row is still
// active. Zero rows affected means another writer won the close race.
func (r *SessionRepo) TransitionFromActive(ctx context.Context, s *models.Session) error {
	metadataJSON, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	validationJSON, err := json.Marshal(s.Validation)
	if err != nil {
		return fmt.Errorf("marshal session validation: %w", err)
	}

	ct, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET end_time = $2,
			duration_seconds = $3,
			status = $4,
			metadata_json = $5,
			validation_json = $6,
			updated_at = $7
		WHERE id = $1
		  AND status = 'active'
	`, s.ID, s.EndTime, s.DurationSeconds, s.Status, metadataJSON, validationJSON, s.UpdatedAt)
	if err != nil {
		return storeErr("transition session", err)
	}
	if ct.RowsAffected() == 0 {
		return services.ErrConcurrentModificationLost
	}
	return nil
}

func (r *SessionRepo) FindCompletedByUserInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		  AND status = 'completed'
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time DESC
	`, userID, start, end)
	if err != nil {
		return nil, storeErr("find completed sessions by user", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *SessionRepo) FindCompletedByGroupInRange(ctx context.Context, groupID uuid.UUID, start, end time.Time) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE group_id = $1
		  AND status = 'completed'
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time DESC
	`, groupID, start, end)
	if err != nil {
		return nil, storeErr("find completed sessions by group", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *SessionRepo) FindStaleActive(ctx context.Context, before time.Time) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = 'active'
		  AND start_time <= $1
		ORDER BY start_time ASC
	`, before)
	if err != nil {
		return nil, storeErr("find stale active sessions", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *SessionRepo) CountCompletedByUserInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM sessions
		WHERE user_id = $1
		  AND status IN ('completed', 'suspicious')
		  AND start_time >= $2
		  AND start_time < $3
	`, userID, start, end).Scan(&count)
	if err != nil {
		return 0, storeErr("count sessions by user", err)
	}
	return count, nil
}

func (r *SessionRepo) FindByUserPaged(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, storeErr("list sessions by user", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s              models.Session
		sourceJSON     []byte
		metadataJSON   []byte
		validationJSON []byte
	)

	err := row.Scan(
		&s.ID, &s.UserID, &s.GroupID, &s.StartTime, &s.EndTime, &s.DurationSeconds, &s.Status,
		&sourceJSON, &metadataJSON, &validationJSON, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(sourceJSON) > 0 {
		if err := json.Unmarshal(sourceJSON, &s.Source); err != nil {
			return nil, fmt.Errorf("unmarshal session source: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	if len(validationJSON) > 0 {
		if err := json.Unmarshal(validationJSON, &s.Validation); err != nil {
			return nil, fmt.Errorf("unmarshal session validation: %w", err)
		}
	}

	return &s, nil
}

func scanSessions(rows pgx.Rows) ([]models.Session, error) {
	sessions := []models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, storeErr("scan session", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate sessions", err)
	}
	return sessions, nil
}

// storeErr tags infrastructure failures with the retryable taxonomy error
// while keeping the underlying cause in the message.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", services.ErrStoreUnavailable, op, err)
}
