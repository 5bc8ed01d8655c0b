package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/access"
	"dispatchhub/internal/apperr"
	"dispatchhub/internal/events"
	"dispatchhub/internal/ids"
	"dispatchhub/internal/models"
	"dispatchhub/internal/repository"
)

// maxTransitionAttempts bounds the re-read loop after a lost status race.
const maxTransitionAttempts = 3

type TaskService struct {
	tasks         TaskStore
	users         UserStore
	notifications *NotificationService
	events        events.Publisher
	proofs        ProofStorer
	log           zerolog.Logger
}

// NewTaskService wires the task state machine. proofs may be nil, in which
// case proof-of-delivery payloads are stored as sent.
func NewTaskService(
	tasks TaskStore,
	users UserStore,
	notifications *NotificationService,
	publisher events.Publisher,
	proofs ProofStorer,
	log zerolog.Logger,
) *TaskService {
	return &TaskService{
		tasks:         tasks,
		users:         users,
		notifications: notifications,
		events:        publisher,
		proofs:        proofs,
		log:           log,
	}
}

type CreateTaskInput struct {
	Title                 string
	Description           string
	Priority              string
	PickupAddress         *models.Address
	DeliveryAddress       *models.Address
	Recipient             models.Recipient
	AssignedTo            string
	ScheduledPickupTime   *time.Time
	ScheduledDeliveryTime *time.Time
	Notes                 string
}

func (s *TaskService) Create(ctx context.Context, caller Identity, input CreateTaskInput) (models.Task, error) {
	if !access.Can(caller.Actor(), access.TaskCreate, access.Owners{}) {
		return models.Task{}, apperr.Forbidden("not allowed to create tasks")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return models.Task{}, apperr.Validation("title is required")
	}
	pickup, err := requireAddress("pickupAddress", input.PickupAddress)
	if err != nil {
		return models.Task{}, err
	}
	delivery, err := requireAddress("deliveryAddress", input.DeliveryAddress)
	if err != nil {
		return models.Task{}, err
	}
	priority := models.PriorityMedium
	if input.Priority != "" {
		p, ok := models.ParseTaskPriority(input.Priority)
		if !ok {
			return models.Task{}, apperr.Validation("unknown priority %q", input.Priority)
		}
		priority = p
	}
	if input.AssignedTo != "" {
		if err := s.validateAssignee(ctx, input.AssignedTo); err != nil {
			return models.Task{}, err
		}
	}

	now := time.Now().UTC()
	task := models.Task{
		ID:                    ids.New(),
		Title:                 title,
		Description:           input.Description,
		Priority:              priority,
		Status:                models.TaskStatusCreated,
		PickupAddress:         pickup,
		DeliveryAddress:       delivery,
		Recipient:             input.Recipient,
		CreatedBy:             caller.ID,
		ScheduledPickupTime:   input.ScheduledPickupTime,
		ScheduledDeliveryTime: input.ScheduledDeliveryTime,
		Notes:                 input.Notes,
		StatusHistory: []models.StatusChange{{
			Status:    models.TaskStatusCreated,
			Timestamp: now,
			UpdatedBy: caller.ID,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.AssignedTo != "" {
		assignee := input.AssignedTo
		task.AssignedTo = &assignee
	}

	task, err = s.tasks.Create(ctx, task)
	if err != nil {
		return models.Task{}, storeError(err, "create task")
	}

	s.log.Info().Str("task_id", task.ID).Str("created_by", caller.ID).Msg("task created")

	if assignee := task.AssigneeID(); assignee != "" {
		s.announceAssignment(ctx, task, assignee)
	}
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, caller Identity, id string) (models.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if !access.Can(caller.Actor(), access.TaskRead, access.TaskOwners(task)) {
		return models.Task{}, apperr.Forbidden("not allowed to view this task")
	}
	return task, nil
}

// List returns the tasks visible to caller, newest first. status is
// optional.
func (s *TaskService) List(ctx context.Context, caller Identity, status string) ([]models.Task, error) {
	filter := models.TaskFilter{}
	if status != "" {
		parsed, ok := models.ParseTaskStatus(status)
		if !ok {
			return nil, apperr.Validation("unknown status %q", status)
		}
		filter.Status = &parsed
	}

	tasks, err := s.tasks.List(ctx, access.TaskScope(caller.Actor(), filter))
	if err != nil {
		return nil, storeError(err, "list tasks")
	}
	return tasks, nil
}

// Update applies a field edit. Status is not part of the patch; it only
// moves through Transition.
func (s *TaskService) Update(ctx context.Context, caller Identity, id string, patch models.TaskPatch) (models.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if !access.Can(caller.Actor(), access.TaskUpdate, access.TaskOwners(task)) {
		return models.Task{}, apperr.Forbidden("not allowed to edit this task")
	}
	if err := s.validatePatch(ctx, patch); err != nil {
		return models.Task{}, err
	}

	patch.PickupAddress = withDefaultCountry(patch.PickupAddress)
	patch.DeliveryAddress = withDefaultCountry(patch.DeliveryAddress)

	before := task.AssigneeID()
	updated, err := s.tasks.Update(ctx, patch.Apply(task))
	if err != nil {
		return models.Task{}, storeError(err, "update task")
	}

	after := updated.AssigneeID()
	switch {
	case after == "":
	case after != before:
		s.announceAssignment(ctx, updated, after)
	default:
		s.announceEdit(ctx, updated, after, patch.TouchesRoute())
	}
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, caller Identity, id string) error {
	task, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !access.Can(caller.Actor(), access.TaskDelete, access.TaskOwners(task)) {
		return apperr.Forbidden("not allowed to delete this task")
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return storeError(err, "task not found")
	}
	s.log.Info().Str("task_id", id).Str("deleted_by", caller.ID).Msg("task deleted")
	return nil
}

type TransitionInput struct {
	Status string
	Note   string
	Proof  *models.ProofOfDelivery
}

// Transition moves a task one step through the state machine and records who
// did it. The write only lands if no one else moved the task first; after a
// lost race the task is re-read and the request validated again.
func (s *TaskService) Transition(ctx context.Context, caller Identity, id string, input TransitionInput) (models.Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if !access.Can(caller.Actor(), access.TaskTransition, access.TaskOwners(task)) {
		return models.Task{}, apperr.Forbidden("not allowed to change the status of this task")
	}
	target, ok := models.ParseTaskStatus(input.Status)
	if !ok {
		return models.Task{}, apperr.Validation("unknown status %q", input.Status)
	}

	var proof *models.ProofOfDelivery
	for attempt := 1; ; attempt++ {
		if !task.Status.CanTransitionTo(target) {
			return models.Task{}, invalidTransition(task.Status, target)
		}
		if target == models.TaskStatusCompleted && proof == nil && !input.Proof.Empty() {
			if proof, err = s.storeProof(ctx, task.ID, *input.Proof); err != nil {
				return models.Task{}, err
			}
		}

		from := task.Status
		updated, err := s.tasks.ApplyTransition(ctx, buildTransition(task, target, caller.ID, input.Note, proof))
		if err == nil {
			s.announceTransition(ctx, caller, from, updated)
			return updated, nil
		}
		if !errors.Is(err, repository.ErrStatusConflict) || attempt == maxTransitionAttempts {
			return models.Task{}, storeError(err, "update task status")
		}

		s.log.Debug().Str("task_id", id).Str("target", string(target)).Msg("status race lost, re-reading task")
		if task, err = s.load(ctx, id); err != nil {
			return models.Task{}, err
		}
	}
}

func buildTransition(task models.Task, target models.TaskStatus, actorID, note string, proof *models.ProofOfDelivery) models.TaskTransition {
	now := time.Now().UTC()
	tr := models.TaskTransition{
		TaskID: task.ID,
		From:   task.Status,
		To:     target,
		Change: models.StatusChange{
			Status:    target,
			Timestamp: now,
			UpdatedBy: actorID,
			Note:      note,
		},
	}
	switch target {
	case models.TaskStatusInProgress:
		if task.ActualPickupTime == nil {
			tr.ActualPickupTime = &now
		}
	case models.TaskStatusCompleted:
		if task.ActualDeliveryTime == nil {
			tr.ActualDeliveryTime = &now
		}
		tr.ProofOfDelivery = proof
	}
	return tr
}

func (s *TaskService) storeProof(ctx context.Context, taskID string, proof models.ProofOfDelivery) (*models.ProofOfDelivery, error) {
	if proof.Timestamp == nil {
		now := time.Now().UTC()
		proof.Timestamp = &now
	}
	if s.proofs == nil {
		return &proof, nil
	}
	stored, err := s.proofs.Store(ctx, taskID, proof)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *TaskService) load(ctx context.Context, id string) (models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return models.Task{}, storeError(err, "task not found")
	}
	return task, nil
}

func (s *TaskService) validateAssignee(ctx context.Context, id string) error {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperr.Validation("assignee %s does not exist", id)
	}
	if err != nil {
		return storeError(err, "load assignee")
	}
	if !user.IsCourier() {
		return apperr.Validation("assignee %s is not a courier", id)
	}
	if !user.IsActive {
		return apperr.Validation("assignee %s is disabled", id)
	}
	return nil
}

func (s *TaskService) validatePatch(ctx context.Context, patch models.TaskPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return apperr.Validation("title cannot be empty")
	}
	if patch.Priority != nil {
		if _, ok := models.ParseTaskPriority(string(*patch.Priority)); !ok {
			return apperr.Validation("unknown priority %q", *patch.Priority)
		}
	}
	if patch.PickupAddress != nil {
		if err := validateAddress("pickupAddress", *patch.PickupAddress); err != nil {
			return err
		}
	}
	if patch.DeliveryAddress != nil {
		if err := validateAddress("deliveryAddress", *patch.DeliveryAddress); err != nil {
			return err
		}
	}
	if patch.AssignedTo != nil && *patch.AssignedTo != "" {
		return s.validateAssignee(ctx, *patch.AssignedTo)
	}
	return nil
}

func (s *TaskService) announceAssignment(ctx context.Context, task models.Task, assignee string) {
	title := "New task assigned"
	message := fmt.Sprintf("You have been assigned to task: %s", task.Title)
	s.notify(ctx, NotifyInput{
		Recipient:   assignee,
		Type:        models.NotificationTaskAssigned,
		Title:       title,
		Message:     message,
		RelatedTask: task.ID,
		Data:        map[string]any{"taskId": task.ID, "taskTitle": task.Title},
	})
	s.events.Publish(events.Event{
		Name:     events.TaskAssigned,
		Audience: events.ToUser(assignee),
		Payload: map[string]any{
			"task":         NewTaskView(task),
			"notification": map[string]string{"title": title, "message": message},
		},
	})
}

// announceEdit always refreshes the assignee's view. Only route changes land
// in the notification ledger.
func (s *TaskService) announceEdit(ctx context.Context, task models.Task, assignee string, routeChanged bool) {
	if routeChanged {
		s.notify(ctx, NotifyInput{
			Recipient:   assignee,
			Type:        models.NotificationTaskUpdated,
			Title:       "Task updated",
			Message:     fmt.Sprintf("Task %q was modified", task.Title),
			RelatedTask: task.ID,
		})
	}
	s.events.Publish(events.Event{
		Name:     events.TaskUpdated,
		Audience: events.ToUser(assignee),
		Payload:  map[string]any{"task": NewTaskView(task)},
	})
}

func (s *TaskService) announceTransition(ctx context.Context, caller Identity, from models.TaskStatus, task models.Task) {
	s.notify(ctx, NotifyInput{
		Recipient:   task.CreatedBy,
		Type:        models.NotificationStatusChanged,
		Title:       "Status changed",
		Message:     fmt.Sprintf("Task %q is now %s", task.Title, task.Status),
		RelatedTask: task.ID,
		Data:        map[string]any{"oldStatus": from, "newStatus": task.Status},
	})
	if assignee := task.AssigneeID(); task.Status == models.TaskStatusCancelled && assignee != "" && assignee != caller.ID {
		s.notify(ctx, NotifyInput{
			Recipient:   assignee,
			Type:        models.NotificationTaskCancelled,
			Title:       "Task cancelled",
			Message:     fmt.Sprintf("Task %q was cancelled", task.Title),
			RelatedTask: task.ID,
		})
	}

	s.events.Publish(events.Event{
		Name: events.TaskStatusChanged,
		Audience: events.Audience{
			Users: []string{task.CreatedBy},
			Roles: []models.Role{models.RoleAdmin, models.RoleDispatcher},
		},
		Payload: map[string]any{
			"task":      NewTaskView(task),
			"oldStatus": from,
			"newStatus": task.Status,
			"changedBy": caller.Name,
		},
	})
}

// notify records a follow-up notification. The triggering write has already
// committed, so a failure here is logged rather than returned.
func (s *TaskService) notify(ctx context.Context, input NotifyInput) {
	if _, err := s.notifications.Notify(ctx, input); err != nil {
		s.log.Error().Err(err).
			Str("recipient", input.Recipient).
			Str("type", string(input.Type)).
			Msg("create notification failed")
	}
}

func invalidTransition(from, to models.TaskStatus) error {
	return apperr.New(apperr.KindInvalidTransition, "invalid transition from %s to %s", from, to)
}

func requireAddress(field string, addr *models.Address) (models.Address, error) {
	if addr == nil {
		return models.Address{}, apperr.Validation("%s is required", field)
	}
	if err := validateAddress(field, *addr); err != nil {
		return models.Address{}, err
	}
	return *withDefaultCountry(addr), nil
}

func withDefaultCountry(addr *models.Address) *models.Address {
	if addr == nil || addr.Country != "" {
		return addr
	}
	out := *addr
	out.Country = models.DefaultCountry
	return &out
}

func validateAddress(field string, addr models.Address) error {
	if addr.Location == nil {
		return apperr.Validation("%s.location is required", field)
	}
	if !addr.Location.Valid() {
		return apperr.Validation("%s.location is out of range", field)
	}
	return nil
}
