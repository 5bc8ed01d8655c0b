package models

import "time"

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusCreated:    {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusCancelled},
	TaskStatusCompleted:  nil,
	TaskStatusCancelled:  nil,
}

func ParseTaskStatus(s string) (TaskStatus, bool) {
	status := TaskStatus(s)
	_, ok := taskTransitions[status]
	return status, ok
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the legal targets from s.
func (s TaskStatus) AllowedTransitions() []TaskStatus {
	out := make([]TaskStatus, len(taskTransitions[s]))
	copy(out, taskTransitions[s])
	return out
}

func (s TaskStatus) Terminal() bool {
	return len(taskTransitions[s]) == 0
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

func ParseTaskPriority(s string) (TaskPriority, bool) {
	switch TaskPriority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return TaskPriority(s), true
	default:
		return "", false
	}
}

const DefaultCountry = "France"

type Address struct {
	Street      string   `json:"street,omitempty"`
	City        string   `json:"city,omitempty"`
	PostalCode  string   `json:"postalCode,omitempty"`
	Country     string   `json:"country,omitempty"`
	FullAddress string   `json:"fullAddress,omitempty"`
	Location    *GeoPoint `json:"location"`
}

type Recipient struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type ProofOfDelivery struct {
	Signature string     `json:"signature,omitempty"`
	Photo     string     `json:"photo,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (p *ProofOfDelivery) Empty() bool {
	return p == nil || (p.Signature == "" && p.Photo == "")
}

type StatusChange struct {
	Status    TaskStatus
	Timestamp time.Time
	UpdatedBy string
	Note      string
}

type Task struct {
	ID              string
	Title           string
	Description     string
	Priority        TaskPriority
	Status          TaskStatus
	PickupAddress   Address
	DeliveryAddress Address
	Recipient       Recipient
	CreatedBy       string
	AssignedTo      *string
	StatusHistory   []StatusChange

	ScheduledPickupTime   *time.Time
	ScheduledDeliveryTime *time.Time
	ActualPickupTime      *time.Time
	ActualDeliveryTime    *time.Time

	Notes           string
	ProofOfDelivery *ProofOfDelivery

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Task) AssigneeID() string {
	if t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}

// TaskPatch is a field edit. Status is deliberately absent: it only moves
// through a transition.
type TaskPatch struct {
	Title                 *string
	Description           *string
	Priority              *TaskPriority
	PickupAddress         *Address
	DeliveryAddress       *Address
	Recipient             *Recipient
	AssignedTo            *string // "" clears the assignee
	ScheduledPickupTime   *time.Time
	ScheduledDeliveryTime *time.Time
	Notes                 *string
}

// TouchesRoute reports whether the patch changes where, when or to whom the
// parcel goes.
func (p TaskPatch) TouchesRoute() bool {
	return p.PickupAddress != nil || p.DeliveryAddress != nil || p.Recipient != nil ||
		p.ScheduledPickupTime != nil || p.ScheduledDeliveryTime != nil
}

// Apply returns a copy of t with the patch applied.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.PickupAddress != nil {
		t.PickupAddress = *p.PickupAddress
	}
	if p.DeliveryAddress != nil {
		t.DeliveryAddress = *p.DeliveryAddress
	}
	if p.Recipient != nil {
		t.Recipient = *p.Recipient
	}
	if p.AssignedTo != nil {
		if *p.AssignedTo == "" {
			t.AssignedTo = nil
		} else {
			id := *p.AssignedTo
			t.AssignedTo = &id
		}
	}
	if p.ScheduledPickupTime != nil {
		t.ScheduledPickupTime = p.ScheduledPickupTime
	}
	if p.ScheduledDeliveryTime != nil {
		t.ScheduledDeliveryTime = p.ScheduledDeliveryTime
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	return t
}

// TaskTransition is the persisted result of one state-machine step. The store
// applies it only while the task is still in From.
type TaskTransition struct {
	TaskID             string
	From               TaskStatus
	To                 TaskStatus
	Change             StatusChange
	ActualPickupTime   *time.Time
	ActualDeliveryTime *time.Time
	ProofOfDelivery    *ProofOfDelivery
}

type TaskFilter struct {
	CreatedBy  *string
	AssignedTo *string
	Status     *TaskStatus
}
