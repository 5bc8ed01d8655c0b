package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchhub/internal/models"
)

const userColumns = `
	id, name, email, password_hash, role, phone, is_active,
	current_lon, current_lat, last_location_update, availability,
	created_at, updated_at
`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, name, email, password_hash, role, phone, is_active, availability, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Phone,
		user.IsActive,
		user.Availability,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if filter.Role != nil {
		query += ` WHERE role = $1`
		args = append(args, *filter.Role)
	}
	query += ` ORDER BY created_at DESC`
	return r.queryUsers(ctx, query, args...)
}

func (r *UserRepository) Update(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if patch.Availability != nil {
		add("availability", *patch.Availability)
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if isUniqueViolation(err) {
		return models.User{}, ErrEmailTaken
	}
	return user, err
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateLocation overwrites the courier's last known point. There is no
// history: last write wins.
func (r *UserRepository) UpdateLocation(ctx context.Context, id string, point models.GeoPoint, at time.Time) (models.User, error) {
	query := `
		UPDATE users
		SET current_lon = $2, current_lat = $3, last_location_update = $4, updated_at = NOW()
		WHERE id = $1 AND role = 'courier'
		RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, id, point.Longitude, point.Latitude, at))
}

func (r *UserRepository) ListActiveCouriers(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE role = 'courier' AND availability IN ('available', 'busy')
		ORDER BY name`
	return r.queryUsers(ctx, query)
}

// FindNearbyCouriers returns available couriers within maxMeters of center,
// nearest first.
func (r *UserRepository) FindNearbyCouriers(ctx context.Context, center models.GeoPoint, maxMeters float64) ([]models.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE role = 'courier'
		  AND availability = 'available'
		  AND ST_DWithin(
		        ST_SetSRID(ST_MakePoint(current_lon, current_lat), 4326)::geography,
		        ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
		        $3
		      )
		ORDER BY ST_Distance(
		        ST_SetSRID(ST_MakePoint(current_lon, current_lat), 4326)::geography,
		        ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		      )`
	return r.queryUsers(ctx, query, center.Longitude, center.Latitude, maxMeters)
}

// MarkStaleCouriersOffline flips couriers that have not reported a position
// since before to offline and returns how many changed.
func (r *UserRepository) MarkStaleCouriersOffline(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		UPDATE users
		SET availability = 'offline', updated_at = NOW()
		WHERE role = 'courier'
		  AND availability <> 'offline'
		  AND (last_location_update IS NULL OR last_location_update < $1)
	`
	cmd, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Phone,
		&user.IsActive,
		&user.CurrentLocation.Longitude,
		&user.CurrentLocation.Latitude,
		&user.LastLocationUpdate,
		&user.Availability,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
