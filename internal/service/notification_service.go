package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/apperr"
	"dispatchhub/internal/events"
	"dispatchhub/internal/ids"
	"dispatchhub/internal/models"
	"dispatchhub/internal/queue"
)

const maxNotificationPage = 200

// NotificationService is the durable ledger behind the live "notification"
// event. Clients that were offline catch up by listing it.
type NotificationService struct {
	store  NotificationStore
	events events.Publisher
	push   PushQueue
	log    zerolog.Logger
}

// NewNotificationService wires the ledger. push may be nil when no Redis is
// configured.
func NewNotificationService(store NotificationStore, publisher events.Publisher, push PushQueue, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		store:  store,
		events: publisher,
		push:   push,
		log:    log,
	}
}

type NotifyInput struct {
	Recipient   string
	Type        models.NotificationType
	Title       string
	Message     string
	RelatedTask string
	Data        map[string]any
}

// NotificationView is the wire shape of a notification.
type NotificationView struct {
	ID          string         `json:"id"`
	Recipient   string         `json:"recipient"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	RelatedTask *string        `json:"relatedTask"`
	IsRead      bool           `json:"isRead"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func NewNotificationView(n models.Notification) NotificationView {
	return NotificationView{
		ID:          n.ID,
		Recipient:   n.Recipient,
		Type:        string(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		RelatedTask: n.RelatedTask,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		Data:        n.Data,
		CreatedAt:   n.CreatedAt,
	}
}

// Notify appends a notification, then pushes it to the recipient's live
// connections and to the push queue.
func (s *NotificationService) Notify(ctx context.Context, input NotifyInput) (models.Notification, error) {
	if input.Recipient == "" {
		return models.Notification{}, apperr.Validation("notification recipient is required")
	}

	n := models.Notification{
		ID:        ids.New(),
		Recipient: input.Recipient,
		Type:      input.Type,
		Title:     input.Title,
		Message:   input.Message,
		Data:      input.Data,
		CreatedAt: time.Now().UTC(),
	}
	if input.RelatedTask != "" {
		related := input.RelatedTask
		n.RelatedTask = &related
	}

	if err := s.store.Create(ctx, n); err != nil {
		return models.Notification{}, storeError(err, "create notification")
	}

	view := NewNotificationView(n)
	s.events.Publish(events.Event{
		Name:     events.NotificationNew,
		Audience: events.ToUser(n.Recipient),
		Payload:  view,
	})
	s.enqueuePush(ctx, view)
	return n, nil
}

func (s *NotificationService) enqueuePush(ctx context.Context, view NotificationView) {
	if s.push == nil {
		return
	}
	msg, err := queue.NewMessage(queue.TypePush, view)
	if err == nil {
		err = s.push.Enqueue(ctx, msg)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("notification_id", view.ID).Msg("enqueue push failed")
	}
}

func (s *NotificationService) List(ctx context.Context, caller Identity, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	out, err := s.store.ListByRecipient(ctx, caller.ID, unreadOnly, limit)
	if err != nil {
		return nil, storeError(err, "list notifications")
	}
	return out, nil
}

// MarkRead only touches notifications owned by the caller; anything else is
// reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, caller Identity, id string) (models.Notification, error) {
	n, err := s.store.MarkRead(ctx, caller.ID, id, time.Now().UTC())
	if err != nil {
		return models.Notification{}, storeError(err, "notification not found")
	}
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, caller Identity) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, caller.ID, time.Now().UTC())
	if err != nil {
		return 0, storeError(err, "mark notifications read")
	}
	return n, nil
}

func (s *NotificationService) CountUnread(ctx context.Context, caller Identity) (int, error) {
	n, err := s.store.CountUnread(ctx, caller.ID)
	if err != nil {
		return 0, storeError(err, "count notifications")
	}
	return n, nil
}
