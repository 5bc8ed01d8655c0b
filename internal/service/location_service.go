package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/access"
	"dispatchhub/internal/apperr"
	"dispatchhub/internal/events"
	"dispatchhub/internal/models"
)

const DefaultNearbyRadiusMeters = 5000

// LocationService is the courier location registry. It keeps only the last
// known point per courier.
type LocationService struct {
	users  UserStore
	events events.Publisher
	log    zerolog.Logger
}

func NewLocationService(users UserStore, publisher events.Publisher, log zerolog.Logger) *LocationService {
	return &LocationService{users: users, events: publisher, log: log}
}

// UpdateLocation overwrites courierID's position and broadcasts it to admins
// and dispatchers. HTTP and websocket writes both land here.
func (s *LocationService) UpdateLocation(ctx context.Context, caller Identity, courierID string, point models.GeoPoint) (models.User, error) {
	if !access.Can(caller.Actor(), access.LocationWrite, access.Owners{SubjectID: courierID}) {
		return models.User{}, apperr.Forbidden("only couriers can update their own location")
	}
	if !point.Valid() {
		return models.User{}, apperr.Validation("latitude must be within [-90,90] and longitude within [-180,180]")
	}

	now := time.Now().UTC()
	user, err := s.users.UpdateLocation(ctx, courierID, point, now)
	if err != nil {
		return models.User{}, storeError(err, "courier not found")
	}

	s.events.Publish(events.Event{
		Name:     events.LocationUpdated,
		Audience: events.ToRoles(models.RoleAdmin, models.RoleDispatcher),
		Payload: LocationUpdatedView{
			CourierID:   user.ID,
			CourierName: user.Name,
			Location:    LatLng{Latitude: point.Latitude, Longitude: point.Longitude},
			Timestamp:   now,
		},
	})
	return user, nil
}

// ActiveCouriers lists couriers that are available or busy.
func (s *LocationService) ActiveCouriers(ctx context.Context, caller Identity) ([]models.User, error) {
	if !access.Can(caller.Actor(), access.LocationRead, access.Owners{}) {
		return nil, apperr.Forbidden("not allowed to read courier locations")
	}
	users, err := s.users.ListActiveCouriers(ctx)
	if err != nil {
		return nil, storeError(err, "list couriers")
	}
	return users, nil
}

// FindNearby returns available couriers within radius meters of center,
// nearest first. A non-positive radius means the default.
func (s *LocationService) FindNearby(ctx context.Context, caller Identity, center models.GeoPoint, radius float64) ([]models.User, error) {
	if !access.Can(caller.Actor(), access.LocationRead, access.Owners{}) {
		return nil, apperr.Forbidden("not allowed to search couriers")
	}
	if !center.Valid() {
		return nil, apperr.Validation("latitude must be within [-90,90] and longitude within [-180,180]")
	}
	if radius <= 0 {
		radius = DefaultNearbyRadiusMeters
	}
	users, err := s.users.FindNearbyCouriers(ctx, center, radius)
	if err != nil {
		return nil, storeError(err, "search couriers")
	}
	return users, nil
}
