package service

import (
	"time"

	"dispatchhub/internal/models"
)

// Views are the JSON shapes shared by HTTP responses and real-time events.

type StatusChangeView struct {
	Status    models.TaskStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	UpdatedBy string            `json:"updatedBy"`
	Note      string            `json:"note,omitempty"`
}

type TaskView struct {
	ID                    string                  `json:"id"`
	Title                 string                  `json:"title"`
	Description           string                  `json:"description"`
	Priority              models.TaskPriority     `json:"priority"`
	Status                models.TaskStatus       `json:"status"`
	PickupAddress         models.Address          `json:"pickupAddress"`
	DeliveryAddress       models.Address          `json:"deliveryAddress"`
	Recipient             models.Recipient        `json:"recipient"`
	CreatedBy             string                  `json:"createdBy"`
	AssignedTo            *string                 `json:"assignedTo"`
	StatusHistory         []StatusChangeView      `json:"statusHistory"`
	ScheduledPickupTime   *time.Time              `json:"scheduledPickupTime,omitempty"`
	ScheduledDeliveryTime *time.Time              `json:"scheduledDeliveryTime,omitempty"`
	ActualPickupTime      *time.Time              `json:"actualPickupTime,omitempty"`
	ActualDeliveryTime    *time.Time              `json:"actualDeliveryTime,omitempty"`
	Notes                 string                  `json:"notes,omitempty"`
	ProofOfDelivery       *models.ProofOfDelivery `json:"proofOfDelivery,omitempty"`
	CreatedAt             time.Time               `json:"createdAt"`
	UpdatedAt             time.Time               `json:"updatedAt"`
}

func NewTaskView(t models.Task) TaskView {
	history := make([]StatusChangeView, 0, len(t.StatusHistory))
	for _, h := range t.StatusHistory {
		history = append(history, StatusChangeView{
			Status:    h.Status,
			Timestamp: h.Timestamp,
			UpdatedBy: h.UpdatedBy,
			Note:      h.Note,
		})
	}
	return TaskView{
		ID:                    t.ID,
		Title:                 t.Title,
		Description:           t.Description,
		Priority:              t.Priority,
		Status:                t.Status,
		PickupAddress:         t.PickupAddress,
		DeliveryAddress:       t.DeliveryAddress,
		Recipient:             t.Recipient,
		CreatedBy:             t.CreatedBy,
		AssignedTo:            t.AssignedTo,
		StatusHistory:         history,
		ScheduledPickupTime:   t.ScheduledPickupTime,
		ScheduledDeliveryTime: t.ScheduledDeliveryTime,
		ActualPickupTime:      t.ActualPickupTime,
		ActualDeliveryTime:    t.ActualDeliveryTime,
		Notes:                 t.Notes,
		ProofOfDelivery:       t.ProofOfDelivery,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

func NewTaskViews(tasks []models.Task) []TaskView {
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, NewTaskView(t))
	}
	return out
}

// UserView never carries the password hash. Courier-only fields are omitted
// for staff accounts.
type UserView struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Email              string              `json:"email"`
	Role               models.Role         `json:"role"`
	Phone              string              `json:"phone,omitempty"`
	IsActive           bool                `json:"isActive"`
	CurrentLocation    *models.GeoPoint    `json:"currentLocation,omitempty"`
	LastLocationUpdate *time.Time          `json:"lastLocationUpdate,omitempty"`
	Availability       models.Availability `json:"availability,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

func NewUserView(u models.User) UserView {
	v := UserView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Phone:     u.Phone,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.IsCourier() {
		loc := u.CurrentLocation
		v.CurrentLocation = &loc
		v.LastLocationUpdate = u.LastLocationUpdate
		v.Availability = u.Availability
	}
	return v
}

func NewUserViews(users []models.User) []UserView {
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserView(u))
	}
	return out
}

type LocationUpdatedView struct {
	CourierID   string    `json:"courierId"`
	CourierName string    `json:"courierName"`
	Location    LatLng    `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type SessionView struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}

func NewSessionViews(sessions []models.Session, currentID string) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionView{
			ID:         s.ID,
			DeviceID:   s.DeviceID,
			DeviceName: s.DeviceName,
			IPAddress:  s.IPAddress,
			UserAgent:  s.UserAgent,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
			Current:    s.ID == currentID,
		})
	}
	return out
}
