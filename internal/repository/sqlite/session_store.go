package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"dispatchhub/internal/models"
	"dispatchhub/internal/repository"
)

const sessionColumns = `
	id, user_id, device_id, device_name, refresh_token_hash,
	ip_address, user_agent, created_at, last_seen_at, expires_at
`

type SessionStore struct {
	db *sqlx.DB
}

func (s *SessionStore) Save(ctx context.Context, session models.Session) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (
			id, user_id, device_id, device_name, refresh_token_hash, ip_address, user_agent, created_at, last_seen_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			id = excluded.id,
			device_name = excluded.device_name,
			refresh_token_hash = excluded.refresh_token_hash,
			ip_address = excluded.ip_address,
			user_agent = excluded.user_agent,
			last_seen_at = excluded.last_seen_at,
			expires_at = excluded.expires_at`,
		session.ID, session.UserID, session.DeviceID, session.DeviceName, session.RefreshTokenHash,
		session.IPAddress, session.UserAgent, now, now, session.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (models.Session, error) {
	return scanSession(s.db.QueryRowxContext(ctx, "SELECT "+sessionColumns+" FROM user_sessions WHERE id = ?", id))
}

func (s *SessionStore) FindByRefreshHash(ctx context.Context, userID string, refreshHash []byte) (models.Session, error) {
	return scanSession(s.db.QueryRowxContext(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE user_id = ? AND refresh_token_hash = ?",
		userID, refreshHash,
	))
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE user_id = ? ORDER BY last_seen_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM user_sessions WHERE user_id = ?", userID)
	return count, err
}

func (s *SessionStore) PruneOldest(ctx context.Context, userID string, keepLatest int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_sessions
		WHERE id IN (
			SELECT id FROM user_sessions
			WHERE user_id = ?
			ORDER BY last_seen_at DESC
			LIMIT -1 OFFSET ?
		)`, userID, keepLatest)
	if err != nil {
		return fmt.Errorf("pruning sessions: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteByID(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM user_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return repository.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) DeleteByDevice(ctx context.Context, userID string, deviceID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM user_sessions WHERE user_id = ? AND device_id = ?", userID, deviceID)
	if err != nil {
		return fmt.Errorf("deleting device session: %w", err)
	}
	return nil
}

func (s *SessionStore) Touch(ctx context.Context, sessionID string, ip string, userAgent string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET last_seen_at = ?,
		    ip_address = COALESCE(NULLIF(?, ''), ip_address),
		    user_agent = COALESCE(NULLIF(?, ''), user_agent)
		WHERE id = ?`,
		time.Now().UTC(), ip, userAgent, sessionID,
	)
	return err
}

func scanSession(row scanner) (models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID, &session.UserID, &session.DeviceID, &session.DeviceName, &session.RefreshTokenHash,
		&session.IPAddress, &session.UserAgent, &session.CreatedAt, &session.LastSeenAt, &session.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, repository.ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("scanning session row: %w", err)
	}
	return session, nil
}
