package models

import "time"

type NotificationType string

const (
	NotificationTaskAssigned   NotificationType = "task_assigned"
	NotificationTaskUpdated    NotificationType = "task_updated"
	NotificationTaskCancelled  NotificationType = "task_cancelled"
	NotificationStatusChanged  NotificationType = "status_changed"
	NotificationLocationUpdate NotificationType = "location_update"
)

type Notification struct {
	ID          string
	Recipient   string
	Type        NotificationType
	Title       string
	Message     string
	RelatedTask *string
	IsRead      bool
	ReadAt      *time.Time
	Data        map[string]any
	CreatedAt   time.Time
}
