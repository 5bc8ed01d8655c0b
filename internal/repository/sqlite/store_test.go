package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatchhub/internal/ids"
	"dispatchhub/internal/models"
	"dispatchhub/internal/repository"
	"dispatchhub/internal/repository/sqlite"
	"dispatchhub/internal/testutil"
)

func createUser(t *testing.T, s *sqlite.Store, name string, role models.Role) models.User {
	t.Helper()
	u := models.User{
		ID:           ids.New(),
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: []byte("x"),
		Role:         role,
		IsActive:     true,
		Availability: models.AvailabilityOffline,
	}
	if err := s.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", name, err)
	}
	return u
}

func newTask(creator string) models.Task {
	now := time.Now().UTC()
	return models.Task{
		ID:              ids.New(),
		Title:           "Parcel",
		Priority:        models.PriorityMedium,
		Status:          models.TaskStatusCreated,
		PickupAddress:   models.Address{City: "Paris", Country: "France", Location: &models.GeoPoint{Longitude: 2.35, Latitude: 48.85}},
		DeliveryAddress: models.Address{City: "Paris", Country: "France", Location: &models.GeoPoint{Longitude: 2.29, Latitude: 48.86}},
		Recipient:       models.Recipient{Name: "Ana"},
		CreatedBy:       creator,
		StatusHistory: []models.StatusChange{{
			Status: models.TaskStatusCreated, Timestamp: now, UpdatedBy: creator,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUserStoreDuplicateEmail(t *testing.T) {
	s := testutil.NewTestStore(t)
	u := createUser(t, s, "dup", models.RoleCourier)

	u.ID = ids.New()
	err := s.Users().Create(context.Background(), u)
	if !errors.Is(err, repository.ErrEmailTaken) {
		t.Errorf("error = %v, want ErrEmailTaken", err)
	}
}

func TestUserStoreNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)
	if _, err := s.Users().GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestTaskStoreRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	admin := createUser(t, s, "admin", models.RoleAdmin)

	task := newTask(admin.ID)
	created, err := s.Tasks().Create(ctx, task)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.PickupAddress.City != "Paris" || created.Recipient.Name != "Ana" {
		t.Errorf("json columns lost: %+v", created)
	}
	if len(created.StatusHistory) != 1 || created.StatusHistory[0].UpdatedBy != admin.ID {
		t.Errorf("history = %+v", created.StatusHistory)
	}
	if created.ProofOfDelivery != nil {
		t.Errorf("proof = %+v, want nil", created.ProofOfDelivery)
	}

	list, err := s.Tasks().List(ctx, models.TaskFilter{CreatedBy: &admin.ID})
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %d tasks, err %v", len(list), err)
	}
	if len(list[0].StatusHistory) != 1 {
		t.Errorf("listed task history = %d entries", len(list[0].StatusHistory))
	}

	other := "nobody"
	list, err = s.Tasks().List(ctx, models.TaskFilter{AssignedTo: &other})
	if err != nil || len(list) != 0 {
		t.Errorf("List(foreign assignee) = %d tasks, err %v", len(list), err)
	}
}

func TestTaskStoreApplyTransitionConflict(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	admin := createUser(t, s, "admin", models.RoleAdmin)
	task, err := s.Tasks().Create(ctx, newTask(admin.ID))
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	start := models.TaskTransition{
		TaskID:           task.ID,
		From:             models.TaskStatusCreated,
		To:               models.TaskStatusInProgress,
		Change:           models.StatusChange{Status: models.TaskStatusInProgress, Timestamp: now, UpdatedBy: admin.ID},
		ActualPickupTime: &now,
	}
	got, err := s.Tasks().ApplyTransition(ctx, start)
	if err != nil {
		t.Fatalf("ApplyTransition() error = %v", err)
	}
	if got.Status != models.TaskStatusInProgress || got.ActualPickupTime == nil || len(got.StatusHistory) != 2 {
		t.Errorf("after transition: status %s, pickup %v, history %d", got.Status, got.ActualPickupTime, len(got.StatusHistory))
	}

	// Same expected status again: the row has moved on.
	if _, err := s.Tasks().ApplyTransition(ctx, start); !errors.Is(err, repository.ErrStatusConflict) {
		t.Errorf("stale transition error = %v, want ErrStatusConflict", err)
	}
	start.TaskID = "missing"
	if _, err := s.Tasks().ApplyTransition(ctx, start); !errors.Is(err, repository.ErrTaskNotFound) {
		t.Errorf("missing task error = %v, want ErrTaskNotFound", err)
	}

	after, _ := s.Tasks().GetByID(ctx, task.ID)
	if len(after.StatusHistory) != 2 {
		t.Errorf("failed transitions added history: %d entries", len(after.StatusHistory))
	}
}

func TestTaskStoreUpdateKeepsStatus(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	admin := createUser(t, s, "admin", models.RoleAdmin)
	task, _ := s.Tasks().Create(ctx, newTask(admin.ID))

	task.Title = "Renamed"
	task.Status = models.TaskStatusCompleted
	updated, err := s.Tasks().Update(ctx, task)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "Renamed" || updated.Status != models.TaskStatusCreated {
		t.Errorf("Update() = title %q status %s", updated.Title, updated.Status)
	}
}

func TestUserStoreNearbyAndSweep(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	users := s.Users()

	center := models.GeoPoint{Latitude: 48.8566, Longitude: 2.3522}
	near := createUser(t, s, "near", models.RoleCourier)
	nearer := createUser(t, s, "nearer", models.RoleCourier)
	far := createUser(t, s, "far", models.RoleCourier)

	available := models.AvailabilityAvailable
	for _, u := range []models.User{near, nearer, far} {
		if _, err := users.Update(ctx, u.ID, models.UserPatch{Availability: &available}); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now().UTC()
	mustLocate := func(id string, p models.GeoPoint, at time.Time) {
		if _, err := users.UpdateLocation(ctx, id, p, at); err != nil {
			t.Fatalf("UpdateLocation(%s): %v", id, err)
		}
	}
	mustLocate(near.ID, models.GeoPoint{Latitude: 48.8800, Longitude: 2.3522}, now)   // ~2.6km
	mustLocate(nearer.ID, models.GeoPoint{Latitude: 48.8600, Longitude: 2.3522}, now) // ~0.4km
	mustLocate(far.ID, models.GeoPoint{Latitude: 45.7640, Longitude: 4.8357}, now.Add(-2*time.Hour))

	got, err := users.FindNearbyCouriers(ctx, center, 5000)
	if err != nil {
		t.Fatalf("FindNearbyCouriers() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != nearer.ID || got[1].ID != near.ID {
		t.Fatalf("FindNearbyCouriers() = %v, want [nearer near]", names(got))
	}

	n, err := users.MarkStaleCouriersOffline(ctx, now.Add(-30*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("MarkStaleCouriersOffline() = %d, %v; want 1", n, err)
	}
	stale, _ := users.GetByID(ctx, far.ID)
	if stale.Availability != models.AvailabilityOffline {
		t.Errorf("far courier availability = %s", stale.Availability)
	}

	active, err := users.ListActiveCouriers(ctx)
	if err != nil || len(active) != 2 {
		t.Errorf("ListActiveCouriers() = %v, %v", names(active), err)
	}
}

func TestUserStoreNearbyAcrossAntimeridian(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	users := s.Users()

	fiji := createUser(t, s, "fiji", models.RoleCourier)
	available := models.AvailabilityAvailable
	if _, err := users.Update(ctx, fiji.ID, models.UserPatch{Availability: &available}); err != nil {
		t.Fatal(err)
	}
	if _, err := users.UpdateLocation(ctx, fiji.ID, models.GeoPoint{Latitude: -16.5, Longitude: -179.99}, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	got, err := users.FindNearbyCouriers(ctx, models.GeoPoint{Latitude: -16.5, Longitude: 179.99}, 5000)
	if err != nil {
		t.Fatalf("FindNearbyCouriers() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != fiji.ID {
		t.Errorf("FindNearbyCouriers() = %v, want [fiji]", names(got))
	}
}

func TestNotificationStoreOwnership(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", models.RoleCourier)
	bob := createUser(t, s, "bob", models.RoleCourier)

	n := models.Notification{
		ID:        ids.New(),
		Recipient: alice.ID,
		Type:      models.NotificationTaskAssigned,
		Title:     "New task",
		Message:   "hi",
		Data:      map[string]any{"taskId": "t1"},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Notifications().Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Notifications().MarkRead(ctx, bob.ID, n.ID, time.Now()); !errors.Is(err, repository.ErrNotificationNotFound) {
		t.Errorf("cross-user MarkRead error = %v, want ErrNotificationNotFound", err)
	}
	if c, _ := s.Notifications().CountUnread(ctx, alice.ID); c != 1 {
		t.Errorf("unread = %d after foreign MarkRead", c)
	}

	read, err := s.Notifications().MarkRead(ctx, alice.ID, n.ID, time.Now())
	if err != nil || !read.IsRead || read.ReadAt == nil {
		t.Fatalf("MarkRead() = %+v, %v", read, err)
	}
	if read.Data["taskId"] != "t1" {
		t.Errorf("data = %v", read.Data)
	}

	list, _ := s.Notifications().ListByRecipient(ctx, alice.ID, true, 10)
	if len(list) != 0 {
		t.Errorf("unread list = %d entries", len(list))
	}
}

func TestSessionStorePrune(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "sess", models.RoleCourier)

	for i, device := range []string{"d1", "d2", "d3"} {
		err := s.Sessions().Save(ctx, models.Session{
			ID:        ids.New(),
			UserID:    u.ID,
			DeviceID:  device,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("Save(%d): %v", i, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Sessions().PruneOldest(ctx, u.ID, 2); err != nil {
		t.Fatal(err)
	}
	sessions, _ := s.Sessions().ListByUser(ctx, u.ID)
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	for _, sess := range sessions {
		if sess.DeviceID == "d1" {
			t.Error("oldest session survived pruning")
		}
	}
}

func names(users []models.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Name)
	}
	return out
}
