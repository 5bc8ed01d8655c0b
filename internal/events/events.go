// Package events names the real-time messages the dispatch core emits and the
// port through which they leave a service.
package events

import "dispatchhub/internal/models"

const (
	LocationUpdated   = "location:updated"
	LocationAll       = "location:all"
	TaskAssigned      = "task:assigned"
	TaskUpdated       = "task:updated"
	TaskStatusChanged = "task:status:changed"
	NotificationNew   = "notification"
	Error             = "error"
)

// Client to server messages.
const (
	LocationUpdate     = "location:update"
	LocationRequestAll = "location:request:all"
	TaskStatusChange   = "task:status:change"
)

// Audience selects subscription groups. An event reaches every connection
// in any of the listed user or role channels, once.
type Audience struct {
	Users []string
	Roles []models.Role
}

func ToUser(id string) Audience {
	return Audience{Users: []string{id}}
}

func ToRoles(roles ...models.Role) Audience {
	return Audience{Roles: roles}
}

type Event struct {
	Name     string
	Audience Audience
	Payload  any
}

// Publisher delivers events to live connections. Delivery is best effort and
// must never block the caller on a slow consumer.
//
//go:generate mockgen -destination=mock_publisher.go -package=events dispatchhub/internal/events Publisher
type Publisher interface {
	Publish(event Event)
}

// Discard drops every event. Used when no hub is wired, e.g. in the worker.
type Discard struct{}

func (Discard) Publish(Event) {}
