package service_test

import (
	"context"
	"testing"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/events"
	"dispatchhub/internal/models"
	"dispatchhub/internal/service"
)

func TestUpdateLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	courier := f.identity(t, "courier", models.RoleCourier)
	other := f.identity(t, "other", models.RoleCourier)
	dispatcher := f.identity(t, "dispatcher", models.RoleDispatcher)
	point := models.GeoPoint{Latitude: 48.85, Longitude: 2.35}

	tests := []struct {
		name   string
		caller service.Identity
		target string
		point  models.GeoPoint
		want   apperr.Kind
	}{
		{"other courier", courier, other.ID, point, apperr.KindForbidden},
		{"dispatcher", dispatcher, courier.ID, point, apperr.KindForbidden},
		{"latitude out of range", courier, courier.ID, models.GeoPoint{Latitude: -91, Longitude: 0}, apperr.KindValidation},
		{"longitude out of range", courier, courier.ID, models.GeoPoint{Latitude: 0, Longitude: 180.5}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.locations.UpdateLocation(ctx, tt.caller, tt.target, tt.point)
			if got := apperr.KindOf(err); err == nil || got != tt.want {
				t.Errorf("error = %v (kind %v), want kind %v", err, got, tt.want)
			}
		})
	}
	if n := len(f.events.named(events.LocationUpdated)); n != 0 {
		t.Fatalf("rejected writes published %d events", n)
	}

	user, err := f.locations.UpdateLocation(ctx, courier, courier.ID, point)
	if err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}
	if user.CurrentLocation != point || user.LastLocationUpdate == nil {
		t.Errorf("stored location = %+v at %v", user.CurrentLocation, user.LastLocationUpdate)
	}

	published := f.events.named(events.LocationUpdated)
	if len(published) != 1 {
		t.Fatalf("location:updated published %d times", len(published))
	}
	view, ok := published[0].Payload.(service.LocationUpdatedView)
	if !ok || view.CourierID != courier.ID || view.Location.Latitude != point.Latitude {
		t.Errorf("payload = %#v", published[0].Payload)
	}
	if len(published[0].Audience.Users) != 0 {
		t.Errorf("location broadcast targets users %v", published[0].Audience.Users)
	}
}

func TestActiveAndNearbyCouriers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	courier := f.identity(t, "courier", models.RoleCourier)
	dispatcher := f.identity(t, "dispatcher", models.RoleDispatcher)

	if _, err := f.users.SetAvailability(ctx, courier, "available"); err != nil {
		t.Fatalf("SetAvailability() error = %v", err)
	}
	if _, err := f.locations.UpdateLocation(ctx, courier, courier.ID, models.GeoPoint{Latitude: 48.857, Longitude: 2.352}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.locations.ActiveCouriers(ctx, courier); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("courier ActiveCouriers() error = %v", err)
	}
	active, err := f.locations.ActiveCouriers(ctx, dispatcher)
	if err != nil || len(active) != 1 {
		t.Errorf("ActiveCouriers() = %d, %v", len(active), err)
	}

	near, err := f.locations.FindNearby(ctx, dispatcher, models.GeoPoint{Latitude: 48.8566, Longitude: 2.3522}, 1000)
	if err != nil || len(near) != 1 {
		t.Errorf("FindNearby(1km) = %d, %v", len(near), err)
	}
	near, err = f.locations.FindNearby(ctx, dispatcher, models.GeoPoint{Latitude: 45.764, Longitude: 4.8357}, 1000)
	if err != nil || len(near) != 0 {
		t.Errorf("FindNearby(Lyon) = %d, %v", len(near), err)
	}
}
