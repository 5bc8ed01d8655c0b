package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/events"
	"dispatchhub/internal/models"
	"dispatchhub/internal/service"
	"dispatchhub/internal/testutil"
)

func TestCreateWithoutAssigneeThenAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.identity(t, "admin", models.RoleAdmin)
	courier := f.identity(t, "courier", models.RoleCourier)

	task, err := f.tasks.Create(ctx, admin, newTaskInput(""))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.Status != models.TaskStatusCreated || len(task.StatusHistory) != 1 {
		t.Fatalf("new task: status %s, history %d", task.Status, len(task.StatusHistory))
	}
	if task.PickupAddress.Country != models.DefaultCountry {
		t.Errorf("pickup country = %q, want default", task.PickupAddress.Country)
	}
	if got := f.unread(t, courier); len(got) != 0 {
		t.Fatalf("courier has %d notifications before assignment", len(got))
	}

	assignee := courier.ID
	if _, err := f.tasks.Update(ctx, admin, task.ID, models.TaskPatch{AssignedTo: &assignee}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got := f.unread(t, courier)
	if len(got) != 1 || got[0].Type != models.NotificationTaskAssigned {
		t.Fatalf("courier notifications = %+v, want one task_assigned", got)
	}
	assigned := f.events.named(events.TaskAssigned)
	if len(assigned) != 1 || assigned[0].Audience.Users[0] != courier.ID {
		t.Errorf("task:assigned events = %+v", assigned)
	}

	// Editing with the same assignee is an update, not a second assignment.
	title := "Deliver two parcels"
	if _, err := f.tasks.Update(ctx, admin, task.ID, models.TaskPatch{Title: &title, AssignedTo: &assignee}); err != nil {
		t.Fatalf("second Update() error = %v", err)
	}
	if n := len(f.events.named(events.TaskAssigned)); n != 1 {
		t.Errorf("task:assigned published %d times", n)
	}
	if n := len(f.events.named(events.TaskUpdated)); n != 1 {
		t.Errorf("task:updated published %d times", n)
	}
	if got := f.unread(t, courier); len(got) != 1 {
		t.Errorf("title edit added notifications: %+v", got)
	}

	if _, err := f.tasks.Update(ctx, admin, task.ID, models.TaskPatch{DeliveryAddress: lyon()}); err != nil {
		t.Fatalf("address Update() error = %v", err)
	}
	got = f.unread(t, courier)
	updates := 0
	for _, n := range got {
		if n.Type == models.NotificationTaskUpdated {
			updates++
		}
	}
	if len(got) != 2 || updates != 1 {
		t.Errorf("courier notifications after address edit = %+v, want one task_updated", got)
	}
}

func TestUpdateRejectsUnplacedAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.identity(t, "admin", models.RoleAdmin)

	task, err := f.tasks.Create(ctx, admin, newTaskInput(""))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		patch models.TaskPatch
	}{
		{"pickup without location", models.TaskPatch{PickupAddress: &models.Address{City: "Paris"}}},
		{"delivery without location", models.TaskPatch{DeliveryAddress: &models.Address{Street: "3 Place Bellecour"}}},
		{"delivery off the map", models.TaskPatch{DeliveryAddress: &models.Address{Location: &models.GeoPoint{Latitude: 0, Longitude: 181}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.Update(ctx, admin, task.ID, tt.patch)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("Update() error = %v, want validation", err)
			}
		})
	}

	stored, err := f.tasks.Get(ctx, admin, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PickupAddress.Location == nil || stored.PickupAddress.Location.Latitude != paris().Location.Latitude {
		t.Errorf("pickup after rejected edits = %+v", stored.PickupAddress)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.identity(t, "admin", models.RoleAdmin)
	dispatcher := f.identity(t, "dispatcher", models.RoleDispatcher)
	courier := f.identity(t, "courier", models.RoleCourier)

	offMap := &models.Address{City: "Nowhere", Location: &models.GeoPoint{Latitude: 91, Longitude: 0}}
	unplaced := &models.Address{Street: "12 Quai de Bercy", City: "Paris"}

	tests := []struct {
		name   string
		caller service.Identity
		input  func() service.CreateTaskInput
		want   apperr.Kind
	}{
		{
			name:   "courier cannot create",
			caller: courier,
			input:  func() service.CreateTaskInput { return newTaskInput("") },
			want:   apperr.KindForbidden,
		},
		{
			name:   "missing title",
			caller: admin,
			input: func() service.CreateTaskInput {
				in := newTaskInput("")
				in.Title = "  "
				return in
			},
			want: apperr.KindValidation,
		},
		{
			name:   "missing delivery address",
			caller: admin,
			input: func() service.CreateTaskInput {
				in := newTaskInput("")
				in.DeliveryAddress = nil
				return in
			},
			want: apperr.KindValidation,
		},
		{
			name:   "latitude out of range",
			caller: dispatcher,
			input: func() service.CreateTaskInput {
				in := newTaskInput("")
				in.PickupAddress = offMap
				return in
			},
			want: apperr.KindValidation,
		},
		{
			name:   "missing pickup location",
			caller: dispatcher,
			input: func() service.CreateTaskInput {
				in := newTaskInput("")
				in.PickupAddress = unplaced
				return in
			},
			want: apperr.KindValidation,
		},
		{
			name:   "unknown priority",
			caller: admin,
			input: func() service.CreateTaskInput {
				in := newTaskInput("")
				in.Priority = "whenever"
				return in
			},
			want: apperr.KindValidation,
		},
		{
			name:   "assignee is not a courier",
			caller: admin,
			input:  func() service.CreateTaskInput { return newTaskInput(dispatcher.ID) },
			want:   apperr.KindValidation,
		},
		{
			name:   "assignee does not exist",
			caller: admin,
			input:  func() service.CreateTaskInput { return newTaskInput("ghost") },
			want:   apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.Create(ctx, tt.caller, tt.input())
			if err == nil {
				t.Fatal("Create() succeeded")
			}
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("kind = %v, want %v (%v)", got, tt.want, err)
			}
		})
	}
}

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.identity(t, "admin", models.RoleAdmin)
	courier := f.identity(t, "courier", models.RoleCourier)

	task, err := f.tasks.Create(ctx, admin, newTaskInput(courier.ID))
	if err != nil {
		t.Fatal(err)
	}
	f.events.reset()

	started, err := f.tasks.Transition(ctx, courier, task.ID, service.TransitionInput{Status: "IN_PROGRESS", Note: "picked up"})
	if err != nil {
		t.Fatalf("Transition(IN_PROGRESS) error = %v", err)
	}
	if started.ActualPickupTime == nil {
		t.Error("pickup time not set")
	}
	if len(started.StatusHistory) != 2 {
		t.Fatalf("history = %d entries, want 2", len(started.StatusHistory))
	}
	last := started.StatusHistory[1]
	if last.Status != models.TaskStatusInProgress || last.UpdatedBy != courier.ID || last.Note != "picked up" {
		t.Errorf("last history entry = %+v", last)
	}

	creatorNotes := f.unread(t, admin)
	if len(creatorNotes) != 1 || creatorNotes[0].Type != models.NotificationStatusChanged {
		t.Errorf("creator notifications = %+v", creatorNotes)
	}
	changed := f.events.named(events.TaskStatusChanged)
	if len(changed) != 1 {
		t.Fatalf("task:status:changed published %d times", len(changed))
	}
	if roles := changed[0].Audience.Roles; len(roles) != 2 {
		t.Errorf("status change roles = %v", roles)
	}

	proof := &models.ProofOfDelivery{Signature: "data:image/png;base64,iVBORw0KGgo="}
	done, err := f.tasks.Transition(ctx, courier, task.ID, service.TransitionInput{Status: "COMPLETED", Proof: proof})
	if err != nil {
		t.Fatalf("Transition(COMPLETED) error = %v", err)
	}
	if done.ActualDeliveryTime == nil || done.ProofOfDelivery.Empty() {
		t.Errorf("completed task: delivery %v, proof %+v", done.ActualDeliveryTime, done.ProofOfDelivery)
	}
	if done.ProofOfDelivery.Timestamp == nil {
		t.Error("proof timestamp not stamped")
	}
	if *done.ActualPickupTime != *started.ActualPickupTime {
		t.Error("pickup time overwritten on completion")
	}

	_, err = f.tasks.Transition(ctx, courier, task.ID, service.TransitionInput{Status: "COMPLETED"})
	if apperr.KindOf(err) != apperr.KindInvalidTransition {
		t.Errorf("COMPLETED to COMPLETED error = %v, want invalid transition", err)
	}
	final, _ := f.tasks.Get(ctx, admin, task.ID)
	if len(final.StatusHistory) != 3 {
		t.Errorf("history after rejected transition = %d entries", len(final.StatusHistory))
	}
}

func TestTransitionAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.identity(t, "admin", models.RoleAdmin)
	assigned := f.identity(t, "assigned", models.RoleCourier)
	other := f.identity(t, "other", models.RoleCourier)

	task, err := f.tasks.Create(ctx, admin, newTaskInput(assigned.ID))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		caller service.Identity
		id     string
		status string
		want   apperr.Kind
	}{
		{"other courier", other, task.ID, "IN_PROGRESS", apperr.KindForbidden},
		{"missing task", assigned, "missing", "IN_PROGRESS", apperr.KindNotFound},
		{"unknown status", assigned, task.ID, "LOST", apperr.KindValidation},
		{"skip to completed", assigned, task.ID, "COMPLETED", apperr.KindInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.Transition(ctx, tt.caller, tt.id, service.TransitionInput{Status: tt.status})
			if got := apperr.KindOf(err); err == nil || got != tt.want {
				t.Errorf("error = %v (kind %v), want kind %v", err, got, tt.want)
			}
		})
	}
}

func TestConcurrentTerminalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.identity(t, "admin", models.RoleAdmin)
	courier := f.identity(t, "courier", models.RoleCourier)

	task, err := f.tasks.Create(ctx, admin, newTaskInput(courier.ID))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.tasks.Transition(ctx, courier, task.ID, service.TransitionInput{Status: "IN_PROGRESS"}); err != nil {
		t.Fatal(err)
	}

	targets := []struct {
		caller service.Identity
		status string
	}{
		{courier, "COMPLETED"},
		{admin, "CANCELLED"},
	}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, caller service.Identity, status string) {
			defer wg.Done()
			_, errs[i] = f.tasks.Transition(ctx, caller, task.ID, service.TransitionInput{Status: status})
		}(i, target.caller, target.status)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.KindOf(err) != apperr.KindInvalidTransition:
			t.Errorf("losing transition error = %v, want invalid transition", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d transitions won, want exactly 1 (%v)", wins, errs)
	}

	final, err := f.tasks.Get(ctx, admin, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(final.StatusHistory) != 3 {
		t.Errorf("history = %d entries, want 3", len(final.StatusHistory))
	}
	if final.Status != models.TaskStatusCompleted && final.Status != models.TaskStatusCancelled {
		t.Errorf("final status = %s", final.Status)
	}
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.identity(t, "creator", models.RoleDispatcher)
	stranger := f.identity(t, "stranger", models.RoleDispatcher)
	admin := f.identity(t, "admin", models.RoleAdmin)

	task, err := f.tasks.Create(ctx, creator, newTaskInput(""))
	if err != nil {
		t.Fatal(err)
	}

	title := "hijacked"
	if _, err := f.tasks.Update(ctx, stranger, task.ID, models.TaskPatch{Title: &title}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("stranger Update() error = %v, want forbidden", err)
	}
	if _, err := f.tasks.Get(ctx, stranger, task.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("stranger Get() error = %v, want forbidden", err)
	}
	if err := f.tasks.Delete(ctx, stranger, task.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("stranger Delete() error = %v, want forbidden", err)
	}
	if _, err := f.tasks.Update(ctx, stranger, "missing", models.TaskPatch{Title: &title}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("Update(missing) error = %v, want not found", err)
	}

	list, err := f.tasks.List(ctx, stranger, "")
	if err != nil || len(list) != 0 {
		t.Errorf("stranger List() = %d tasks, err %v", len(list), err)
	}
	list, err = f.tasks.List(ctx, creator, "CREATED")
	if err != nil || len(list) != 1 {
		t.Errorf("creator List(CREATED) = %d tasks, err %v", len(list), err)
	}

	if err := f.tasks.Delete(ctx, admin, task.ID); err != nil {
		t.Fatalf("admin Delete() error = %v", err)
	}
	if _, err := f.tasks.Get(ctx, admin, task.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("Get after delete error = %v", err)
	}
}

func TestCancelNotifiesAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dispatcher := f.identity(t, "dispatcher", models.RoleDispatcher)
	courier := f.identity(t, "courier", models.RoleCourier)

	task, err := f.tasks.Create(ctx, dispatcher, newTaskInput(courier.ID))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.tasks.Transition(ctx, dispatcher, task.ID, service.TransitionInput{Status: "CANCELLED"}); err != nil {
		t.Fatalf("Transition(CANCELLED) error = %v", err)
	}

	var cancelled int
	for _, n := range f.unread(t, courier) {
		if n.Type == models.NotificationTaskCancelled {
			cancelled++
		}
	}
	if cancelled != 1 {
		t.Errorf("courier received %d cancellation notices", cancelled)
	}
}

func TestCreatePublishesAssignment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := testutil.NewTestStore(t)
	publisher := events.NewMockPublisher(ctrl)
	log := zerolog.Nop()
	notifications := service.NewNotificationService(store.Notifications(), publisher, nil, log)
	tasks := service.NewTaskService(store.Tasks(), store.Users(), notifications, publisher, nil, log)

	f := &fixture{store: store}
	admin := f.identity(t, "admin", models.RoleAdmin)
	courier := f.identity(t, "courier", models.RoleCourier)

	isEvent := func(name, user string) gomock.Matcher {
		return eventMatcher{name: name, user: user}
	}
	gomock.InOrder(
		publisher.EXPECT().Publish(isEvent(events.NotificationNew, courier.ID)),
		publisher.EXPECT().Publish(isEvent(events.TaskAssigned, courier.ID)),
	)

	if _, err := tasks.Create(context.Background(), admin, newTaskInput(courier.ID)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

type eventMatcher struct {
	name string
	user string
}

func (m eventMatcher) Matches(x interface{}) bool {
	e, ok := x.(events.Event)
	return ok && e.Name == m.name && len(e.Audience.Users) == 1 && e.Audience.Users[0] == m.user
}

func (m eventMatcher) String() string {
	return "event " + m.name + " for user " + m.user
}
