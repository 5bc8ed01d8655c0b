package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"dispatchhub/internal/geo"
	"dispatchhub/internal/models"
	"dispatchhub/internal/repository"
)

const userColumns = `
	id, name, email, password_hash, role, phone, is_active,
	current_lon, current_lat, last_location_update, availability,
	created_at, updated_at
`

type UserStore struct {
	db *sqlx.DB
}

func (s *UserStore) Create(ctx context.Context, user models.User) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, name, email, password_hash, role, phone, is_active, availability, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.Phone,
		boolToInt(user.IsActive), string(user.Availability), now, now,
	)
	if isUniqueViolation(err) {
		return repository.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(s.db.QueryRowxContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

func (s *UserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(s.db.QueryRowxContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func (s *UserStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	query := "SELECT " + userColumns + " FROM users"
	var args []interface{}
	if filter.Role != nil {
		query += " WHERE role = ?"
		args = append(args, string(*filter.Role))
	}
	query += " ORDER BY created_at DESC, id DESC"
	return s.queryUsers(ctx, query, args...)
}

func (s *UserStore) Update(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *patch.Email)
	}
	if patch.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *patch.Phone)
	}
	if patch.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, string(*patch.Role))
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*patch.IsActive))
	}
	if patch.Availability != nil {
		sets = append(sets, "availability = ?")
		args = append(args, string(*patch.Availability))
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if isUniqueViolation(err) {
		return models.User{}, repository.ErrEmailTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("updating user %s: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return models.User{}, repository.ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) UpdateLocation(ctx context.Context, id string, point models.GeoPoint, at time.Time) (models.User, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET current_lon = ?, current_lat = ?, last_location_update = ?, updated_at = ?
		WHERE id = ? AND role = 'courier'`,
		point.Longitude, point.Latitude, at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return models.User{}, fmt.Errorf("updating location of %s: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return models.User{}, repository.ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) ListActiveCouriers(ctx context.Context) ([]models.User, error) {
	return s.queryUsers(ctx, "SELECT "+userColumns+`
		FROM users
		WHERE role = 'courier' AND availability IN ('available', 'busy')
		ORDER BY name`)
}

// FindNearbyCouriers prefilters on a bounding box and then keeps couriers
// whose great-circle distance is within maxMeters, nearest first.
func (s *UserStore) FindNearbyCouriers(ctx context.Context, center models.GeoPoint, maxMeters float64) ([]models.User, error) {
	var (
		ranges []string
		args   []interface{}
	)
	for _, box := range geo.BoundingBoxes(center, maxMeters) {
		ranges = append(ranges, "(current_lon BETWEEN ? AND ? AND current_lat BETWEEN ? AND ?)")
		args = append(args, box.MinLon, box.MaxLon, box.MinLat, box.MaxLat)
	}
	candidates, err := s.queryUsers(ctx, "SELECT "+userColumns+`
		FROM users
		WHERE role = 'courier'
		  AND availability = 'available'
		  AND (`+strings.Join(ranges, " OR ")+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		user     models.User
		distance float64
	}
	var within []ranked
	for _, u := range candidates {
		if d := geo.DistanceMeters(center, u.CurrentLocation); d <= maxMeters {
			within = append(within, ranked{user: u, distance: d})
		}
	}
	sort.SliceStable(within, func(i, j int) bool { return within[i].distance < within[j].distance })

	out := make([]models.User, 0, len(within))
	for _, r := range within {
		out = append(out, r.user)
	}
	return out, nil
}

func (s *UserStore) MarkStaleCouriersOffline(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET availability = 'offline', updated_at = ?
		WHERE role = 'courier'
		  AND availability <> 'offline'
		  AND (last_location_update IS NULL OR last_location_update < ?)`,
		time.Now().UTC(), before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("marking stale couriers offline: %w", err)
	}
	return result.RowsAffected()
}

func (s *UserStore) queryUsers(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
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

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.Phone, &user.IsActive,
		&user.CurrentLocation.Longitude, &user.CurrentLocation.Latitude, &user.LastLocationUpdate, &user.Availability,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, repository.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("scanning user row: %w", err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
