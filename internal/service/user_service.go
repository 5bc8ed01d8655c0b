package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"dispatchhub/internal/access"
	"dispatchhub/internal/apperr"
	"dispatchhub/internal/models"
)

// UserService covers account administration and courier self-service.
type UserService struct {
	users UserStore
	log   zerolog.Logger
}

func NewUserService(users UserStore, log zerolog.Logger) *UserService {
	return &UserService{users: users, log: log}
}

func (s *UserService) List(ctx context.Context, caller Identity, role string) ([]models.User, error) {
	if !access.Can(caller.Actor(), access.UserManage, access.Owners{}) {
		return nil, apperr.Forbidden("admin only")
	}
	filter := models.UserFilter{}
	if role != "" {
		r, ok := models.ParseRole(role)
		if !ok {
			return nil, apperr.Validation("unknown role %q", role)
		}
		filter.Role = &r
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "list users")
	}
	return users, nil
}

func (s *UserService) ListCouriers(ctx context.Context, caller Identity) ([]models.User, error) {
	if !access.Can(caller.Actor(), access.CourierList, access.Owners{}) {
		return nil, apperr.Forbidden("not allowed to list couriers")
	}
	role := models.RoleCourier
	users, err := s.users.List(ctx, models.UserFilter{Role: &role})
	if err != nil {
		return nil, storeError(err, "list couriers")
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, caller Identity, id string) (models.User, error) {
	if !access.Can(caller.Actor(), access.UserManage, access.Owners{}) {
		return models.User{}, apperr.Forbidden("admin only")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, storeError(err, "user not found")
	}
	return user, nil
}

type UpdateUserInput struct {
	Name         *string
	Email        *string
	Phone        *string
	Role         *string
	IsActive     *bool
	Availability *string
}

// Update is the admin edit. Passwords are never changed here.
func (s *UserService) Update(ctx context.Context, caller Identity, id string, input UpdateUserInput) (models.User, error) {
	if !access.Can(caller.Actor(), access.UserManage, access.Owners{}) {
		return models.User{}, apperr.Forbidden("admin only")
	}

	var patch models.UserPatch
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return models.User{}, apperr.Validation("name cannot be empty")
		}
		patch.Name = &name
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if err := validateEmail(email); err != nil {
			return models.User{}, err
		}
		patch.Email = &email
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		patch.Phone = &phone
	}
	if input.Role != nil {
		role, ok := models.ParseRole(*input.Role)
		if !ok {
			return models.User{}, apperr.Validation("unknown role %q", *input.Role)
		}
		patch.Role = &role
	}
	if input.IsActive != nil {
		if !*input.IsActive && id == caller.ID {
			return models.User{}, apperr.Validation("you cannot disable your own account")
		}
		patch.IsActive = input.IsActive
	}
	if input.Availability != nil {
		availability, ok := models.ParseAvailability(*input.Availability)
		if !ok {
			return models.User{}, apperr.Validation("unknown availability %q", *input.Availability)
		}
		patch.Availability = &availability
	}

	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, storeError(err, "user not found")
	}
	role := target.Role
	if patch.Role != nil {
		role = *patch.Role
	}
	if role != models.RoleCourier {
		if patch.Availability != nil {
			return models.User{}, apperr.Validation("availability only applies to couriers")
		}
		if target.IsCourier() {
			offline := models.AvailabilityOffline
			patch.Availability = &offline
		}
	}

	user, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return models.User{}, storeError(err, "user not found")
	}
	return user, nil
}

// ToggleActive flips the soft-disable flag of an account.
func (s *UserService) ToggleActive(ctx context.Context, caller Identity, id string) (models.User, error) {
	if !access.Can(caller.Actor(), access.UserManage, access.Owners{}) {
		return models.User{}, apperr.Forbidden("admin only")
	}
	if id == caller.ID {
		return models.User{}, apperr.Validation("you cannot disable your own account")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, storeError(err, "user not found")
	}

	active := !user.IsActive
	user, err = s.users.Update(ctx, id, models.UserPatch{IsActive: &active})
	if err != nil {
		return models.User{}, storeError(err, "user not found")
	}
	s.log.Info().Str("user_id", id).Bool("active", active).Str("by", caller.ID).Msg("user active flag toggled")
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, caller Identity, id string) error {
	if !access.Can(caller.Actor(), access.UserManage, access.Owners{}) {
		return apperr.Forbidden("admin only")
	}
	if id == caller.ID {
		return apperr.Validation("you cannot delete your own account")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return storeError(err, "user not found")
	}
	s.log.Info().Str("user_id", id).Str("by", caller.ID).Msg("user deleted")
	return nil
}

// SetAvailability is the courier's own dispatch eligibility switch.
func (s *UserService) SetAvailability(ctx context.Context, caller Identity, availability string) (models.User, error) {
	if !access.Can(caller.Actor(), access.AvailabilityWrite, access.Owners{SubjectID: caller.ID}) {
		return models.User{}, apperr.Forbidden("only couriers have an availability")
	}
	value, ok := models.ParseAvailability(availability)
	if !ok {
		return models.User{}, apperr.Validation("unknown availability %q", availability)
	}
	user, err := s.users.Update(ctx, caller.ID, models.UserPatch{Availability: &value})
	if err != nil {
		return models.User{}, storeError(err, "user not found")
	}
	return user, nil
}
