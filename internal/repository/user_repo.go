package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studysync-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, display_name, avatar_url, timezone, known_device_ids, analytics_json, created_at, updated_at`

func (r *UserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find user by id", err)
	}
	return user, nil
}

func (r *UserRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, storeErr("find users by ids", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("scan user", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate users", err)
	}
	return users, nil
}

func (r *UserRepo) SaveAnalytics(ctx context.Context, userID uuid.UUID, analytics models.UserAnalytics) error {
	analyticsJSON, err := json.Marshal(analytics)
	if err != nil {
		return fmt.Errorf("marshal user analytics: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE users SET analytics_json = $2, updated_at = NOW() WHERE id = $1
	`, userID, analyticsJSON)
	if err != nil {
		return storeErr("save user analytics", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u             models.User
		deviceIDsJSON []byte
		analyticsJSON []byte
	)

	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.Timezone,
		&deviceIDsJSON, &analyticsJSON, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(deviceIDsJSON) > 0 {
		if err := json.Unmarshal(deviceIDsJSON, &u.KnownDeviceIDs); err != nil {
			return nil, fmt.Errorf("unmarshal known device ids: %w", err)
		}
	}
	if len(analyticsJSON) > 0 {
		if err := json.Unmarshal(analyticsJSON, &u.Analytics); err != nil {
			return nil, fmt.Errorf("unmarshal user analytics: %w", err)
		}
	}

	return &u, nil
}
