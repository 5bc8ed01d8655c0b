package service_test

import (
	"context"
	"testing"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/models"
	"dispatchhub/internal/service"
)

func TestUserAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.identity(t, "admin", models.RoleAdmin)
	dispatcher := f.identity(t, "dispatcher", models.RoleDispatcher)
	courier := f.identity(t, "courier", models.RoleCourier)

	if _, err := f.users.List(ctx, dispatcher, ""); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("dispatcher List() error = %v", err)
	}
	couriers, err := f.users.ListCouriers(ctx, dispatcher)
	if err != nil || len(couriers) != 1 {
		t.Errorf("ListCouriers() = %d, %v", len(couriers), err)
	}
	if _, err := f.users.ToggleActive(ctx, admin, admin.ID); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("self toggle error = %v", err)
	}
	if err := f.users.Delete(ctx, admin, admin.ID); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("self delete error = %v", err)
	}

	role := "pilot"
	if _, err := f.users.Update(ctx, admin, courier.ID, service.UpdateUserInput{Role: &role}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("unknown role error = %v", err)
	}
	email := "Renamed@Example.com"
	updated, err := f.users.Update(ctx, admin, courier.ID, service.UpdateUserInput{Email: &email})
	if err != nil || updated.Email != "renamed@example.com" {
		t.Errorf("Update(email) = %q, %v", updated.Email, err)
	}

	available := "available"
	if _, err := f.users.Update(ctx, admin, dispatcher.ID, service.UpdateUserInput{Availability: &available}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("Update(dispatcher availability) error = %v, want validation", err)
	}
	if _, err := f.users.Update(ctx, admin, "ghost", service.UpdateUserInput{Availability: &available}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("Update(missing user) error = %v, want not found", err)
	}

	if _, err := f.users.SetAvailability(ctx, dispatcher, "available"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("dispatcher SetAvailability() error = %v", err)
	}
	if _, err := f.users.SetAvailability(ctx, courier, "sleeping"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("bad availability error = %v", err)
	}

	promoted := f.identity(t, "promoted", models.RoleCourier)
	if _, err := f.users.SetAvailability(ctx, promoted, "available"); err != nil {
		t.Fatalf("SetAvailability() error = %v", err)
	}
	toDispatcher := "dispatcher"
	moved, err := f.users.Update(ctx, admin, promoted.ID, service.UpdateUserInput{Role: &toDispatcher})
	if err != nil {
		t.Fatalf("Update(role) error = %v", err)
	}
	if moved.Role != models.RoleDispatcher || moved.Availability != models.AvailabilityOffline {
		t.Errorf("after role change: role %s, availability %s, want dispatcher offline", moved.Role, moved.Availability)
	}
	couriers, err = f.users.ListCouriers(ctx, admin)
	if err != nil || len(couriers) != 1 {
		t.Errorf("ListCouriers() after role change = %d, %v", len(couriers), err)
	}

	if err := f.users.Delete(ctx, admin, courier.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.users.Get(ctx, admin, courier.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("Get after delete error = %v", err)
	}
}
