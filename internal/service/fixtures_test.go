package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"dispatchhub/internal/events"
	"dispatchhub/internal/ids"
	"dispatchhub/internal/models"
	"dispatchhub/internal/repository/sqlite"
	"dispatchhub/internal/service"
	"dispatchhub/internal/testutil"
)

// recorder captures published events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	store         *sqlite.Store
	events        *recorder
	tasks         *service.TaskService
	notifications *service.NotificationService
	locations     *service.LocationService
	users         *service.UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewTestStore(t)
	rec := &recorder{}
	log := zerolog.Nop()
	notifications := service.NewNotificationService(store.Notifications(), rec, nil, log)
	return &fixture{
		store:         store,
		events:        rec,
		notifications: notifications,
		tasks:         service.NewTaskService(store.Tasks(), store.Users(), notifications, rec, nil, log),
		locations:     service.NewLocationService(store.Users(), rec, log),
		users:         service.NewUserService(store.Users(), log),
	}
}

func (f *fixture) identity(t *testing.T, name string, role models.Role) service.Identity {
	t.Helper()
	u := models.User{
		ID:           ids.New(),
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: []byte("unused"),
		Role:         role,
		IsActive:     true,
		Availability: models.AvailabilityOffline,
	}
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("creating %s: %v", name, err)
	}
	return service.Identity{ID: u.ID, Name: u.Name, Role: role, IsActive: true}
}

func (f *fixture) unread(t *testing.T, who service.Identity) []models.Notification {
	t.Helper()
	list, err := f.notifications.List(context.Background(), who, true, 0)
	if err != nil {
		t.Fatalf("listing notifications: %v", err)
	}
	return list
}

func paris() *models.Address {
	return &models.Address{Street: "1 Rue de Rivoli", City: "Paris", Location: &models.GeoPoint{Latitude: 48.8556, Longitude: 2.3522}}
}

func lyon() *models.Address {
	return &models.Address{City: "Lyon", Location: &models.GeoPoint{Latitude: 45.7640, Longitude: 4.8357}}
}

func newTaskInput(assignee string) service.CreateTaskInput {
	return service.CreateTaskInput{
		Title:           "Deliver parcel",
		PickupAddress:   paris(),
		DeliveryAddress: lyon(),
		Recipient:       models.Recipient{Name: "Ana", Phone: "+33 1 23 45 67 89"},
		AssignedTo:      assignee,
	}
}
