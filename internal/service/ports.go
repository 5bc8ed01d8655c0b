package service

import (
	"context"
	"time"

	"dispatchhub/internal/models"
	"dispatchhub/internal/queue"
)

// The store interfaces are satisfied by both the Postgres repositories and
// the SQLite store.

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	Update(ctx context.Context, id string, patch models.UserPatch) (models.User, error)
	Delete(ctx context.Context, id string) error
	UpdateLocation(ctx context.Context, id string, point models.GeoPoint, at time.Time) (models.User, error)
	ListActiveCouriers(ctx context.Context) ([]models.User, error)
	FindNearbyCouriers(ctx context.Context, center models.GeoPoint, maxMeters float64) ([]models.User, error)
	MarkStaleCouriersOffline(ctx context.Context, before time.Time) (int64, error)
}

type SessionStore interface {
	Save(ctx context.Context, session models.Session) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	FindByRefreshHash(ctx context.Context, userID string, refreshHash []byte) (models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	PruneOldest(ctx context.Context, userID string, keepLatest int) error
	DeleteByID(ctx context.Context, id string) error
	DeleteByDevice(ctx context.Context, userID string, deviceID string) error
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
}

type TaskStore interface {
	Create(ctx context.Context, task models.Task) (models.Task, error)
	GetByID(ctx context.Context, id string) (models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	Update(ctx context.Context, task models.Task) (models.Task, error)
	ApplyTransition(ctx context.Context, tr models.TaskTransition) (models.Task, error)
	Delete(ctx context.Context, id string) error
}

type NotificationStore interface {
	Create(ctx context.Context, n models.Notification) error
	ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, recipient, id string, at time.Time) (models.Notification, error)
	MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, recipient string) (int, error)
}

// Stores groups the persistence ports so cmd/ can hand one value to every
// service constructor.
type Stores struct {
	Users         UserStore
	Sessions      SessionStore
	Tasks         TaskStore
	Notifications NotificationStore
}

// PushQueue hands messages to the out-of-process push worker.
type PushQueue interface {
	Enqueue(ctx context.Context, msg queue.Message) error
}

// ProofStorer moves inline proof-of-delivery images to durable storage.
type ProofStorer interface {
	Store(ctx context.Context, taskID string, proof models.ProofOfDelivery) (models.ProofOfDelivery, error)
}
