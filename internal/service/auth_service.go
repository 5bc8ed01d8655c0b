package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/access"
	"dispatchhub/internal/apperr"
	"dispatchhub/internal/config"
	"dispatchhub/internal/ids"
	"dispatchhub/internal/models"
	"dispatchhub/internal/repository"
	"dispatchhub/internal/security"
)

const minPasswordLength = 6

var (
	errNoCredential      = apperr.New(apperr.KindUnauthenticated, "no credential")
	errInvalidCredential = apperr.New(apperr.KindUnauthorized, "invalid credential")
	errBadLogin          = apperr.New(apperr.KindUnauthorized, "invalid email or password")
	errAccountDisabled   = apperr.New(apperr.KindAccountDisabled, "account disabled")
)

type AuthService struct {
	users    UserStore
	sessions SessionStore
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(users UserStore, sessions SessionStore, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

type DeviceInfo struct {
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	Phone    string
	Device   DeviceInfo
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
	DeviceID     string
}

// Register creates an account and signs it in. Without a role the account is
// a courier; staff roles need an admin caller.
func (s *AuthService) Register(ctx context.Context, caller *Identity, input RegisterInput) (AuthResult, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if input.Name == "" {
		return AuthResult{}, apperr.Validation("name is required")
	}
	if err := validateEmail(input.Email); err != nil {
		return AuthResult{}, err
	}
	if len(input.Password) < minPasswordLength {
		return AuthResult{}, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}

	role := models.RoleCourier
	if input.Role != "" {
		parsed, ok := models.ParseRole(input.Role)
		if !ok {
			return AuthResult{}, apperr.Validation("unknown role %q", input.Role)
		}
		role = parsed
	}
	if role != models.RoleCourier {
		if caller == nil || !access.Can(caller.Actor(), access.StaffRegister, access.Owners{}) {
			return AuthResult{}, apperr.Forbidden("only an admin can create " + string(role) + " accounts")
		}
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err, "hash password")
	}

	user := models.User{
		ID:           ids.New(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: passwordHash,
		Role:         role,
		Phone:        strings.TrimSpace(input.Phone),
		IsActive:     true,
		Availability: models.AvailabilityOffline,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, storeError(err, "create user")
	}
	user, err = s.users.GetByID(ctx, user.ID)
	if err != nil {
		return AuthResult{}, storeError(err, "load user")
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")

	if input.Device.DeviceName == "" {
		input.Device.DeviceName = "New Device"
	}
	return s.createSession(ctx, user, input.Device)
}

type LoginInput struct {
	Email    string
	Password string
	Device   DeviceInfo
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, errBadLogin
		}
		return AuthResult{}, storeError(err, "load user")
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, errBadLogin
	}
	if !user.IsActive {
		return AuthResult{}, errAccountDisabled
	}

	if input.Device.DeviceName == "" {
		input.Device.DeviceName = "Unknown Device"
	}
	return s.createSession(ctx, user, input.Device)
}

func (s *AuthService) createSession(ctx context.Context, user models.User, device DeviceInfo) (AuthResult, error) {
	deviceID := device.DeviceID
	if deviceID == "" {
		deviceID = ids.New()
	}

	refreshToken, refreshHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, apperr.Internal(err, "issue refresh token")
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		DeviceID:         deviceID,
		DeviceName:       device.DeviceName,
		RefreshTokenHash: refreshHash,
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		ExpiresAt:        time.Now().Add(s.cfg.Security.JWTRefreshTTL),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return AuthResult{}, storeError(err, "save session")
	}
	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	accessToken, err := s.issueAccessToken(user, session)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		DeviceID:     deviceID,
	}, nil
}

func (s *AuthService) issueAccessToken(user models.User, session models.Session) (string, error) {
	token, err := security.GenerateAccessToken(s.cfg.Security.JWTAccessSecret, security.AccessTokenInput{
		UserID:    user.ID,
		SessionID: session.ID,
		DeviceID:  session.DeviceID,
		Role:      string(user.Role),
	}, s.cfg.Security.JWTAccessTTL)
	if err != nil {
		return "", apperr.Internal(err, "issue access token")
	}
	return token, nil
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	limit := s.cfg.Security.MaxSessions
	if limit <= 0 {
		return nil
	}
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= limit {
		return nil
	}
	return s.sessions.PruneOldest(ctx, userID, limit)
}

type RefreshInput struct {
	UserID       string
	RefreshToken string
	DeviceID     string
}

// Refresh rotates the refresh token of a device session and issues a new
// access token for it.
func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (AuthResult, error) {
	if input.UserID == "" || input.RefreshToken == "" || input.DeviceID == "" {
		return AuthResult{}, apperr.Validation("userId, deviceId and refreshToken are required")
	}

	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, errInvalidCredential
		}
		return AuthResult{}, storeError(err, "load user")
	}
	if !user.IsActive {
		return AuthResult{}, errAccountDisabled
	}

	session, err := s.sessions.FindByRefreshHash(ctx, input.UserID, security.HashRefreshToken(input.RefreshToken))
	if err != nil || session.DeviceID != input.DeviceID {
		return AuthResult{}, errInvalidCredential
	}
	if session.ExpiresAt.Before(time.Now()) {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("delete expired session failed")
		}
		return AuthResult{}, errInvalidCredential
	}

	refreshToken, newHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, apperr.Internal(err, "issue refresh token")
	}
	session.RefreshTokenHash = newHash
	session.ExpiresAt = time.Now().Add(s.cfg.Security.JWTRefreshTTL)
	if err := s.sessions.Save(ctx, session); err != nil {
		return AuthResult{}, storeError(err, "save session")
	}

	accessToken, err := s.issueAccessToken(user, session)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		DeviceID:     session.DeviceID,
	}, nil
}

// Authenticate verifies a raw access token and resolves the caller. It backs
// both the HTTP middleware and the websocket handshake.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errNoCredential
	}

	claims, err := security.ParseAccessToken(token, s.cfg.Security.JWTAccessSecret)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.KindUnauthorized, err, errInvalidCredential.Message)
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return Identity{}, errInvalidCredential
		}
		return Identity{}, storeError(err, "load session")
	}
	if session.UserID != claims.UserID {
		return Identity{}, errInvalidCredential
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Identity{}, errInvalidCredential
		}
		return Identity{}, storeError(err, "load user")
	}
	if !user.IsActive {
		return Identity{}, errAccountDisabled
	}

	return Identity{
		ID:        user.ID,
		Name:      user.Name,
		Role:      user.Role,
		IsActive:  user.IsActive,
		SessionID: session.ID,
		DeviceID:  session.DeviceID,
	}, nil
}

// TouchSession records activity on a session. Failures are logged only.
func (s *AuthService) TouchSession(ctx context.Context, sessionID, ip, userAgent string) {
	if err := s.sessions.Touch(ctx, sessionID, ip, userAgent); err != nil {
		s.log.Debug().Err(err).Str("session_id", sessionID).Msg("touch session failed")
	}
}

func (s *AuthService) Logout(ctx context.Context, caller Identity) error {
	if err := s.sessions.DeleteByDevice(ctx, caller.ID, caller.DeviceID); err != nil {
		return storeError(err, "delete session")
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, caller Identity) (models.User, error) {
	user, err := s.users.GetByID(ctx, caller.ID)
	if err != nil {
		return models.User{}, storeError(err, "user not found")
	}
	return user, nil
}

type ProfileInput struct {
	Name  *string
	Phone *string
}

// UpdateProfile edits the caller's own name and phone. Nothing else is
// self-editable.
func (s *AuthService) UpdateProfile(ctx context.Context, caller Identity, input ProfileInput) (models.User, error) {
	patch := models.UserPatch{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return models.User{}, apperr.Validation("name cannot be empty")
		}
		patch.Name = &name
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		patch.Phone = &phone
	}

	user, err := s.users.Update(ctx, caller.ID, patch)
	if err != nil {
		return models.User{}, storeError(err, "user not found")
	}
	return user, nil
}

func (s *AuthService) Sessions(ctx context.Context, caller Identity) ([]models.Session, error) {
	sessions, err := s.sessions.ListByUser(ctx, caller.ID)
	if err != nil {
		return nil, storeError(err, "list sessions")
	}
	return sessions, nil
}

func (s *AuthService) RevokeDevice(ctx context.Context, caller Identity, deviceID string) error {
	if deviceID == "" {
		return apperr.Validation("deviceId is required")
	}
	if err := s.sessions.DeleteByDevice(ctx, caller.ID, deviceID); err != nil {
		return storeError(err, "delete session")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("invalid email address")
	}
	return nil
}
