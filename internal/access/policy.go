// Package access decides who may read or mutate which task, location or user
// record. Every decision is a pure function of the actor and the resource's
// owner ids.
package access

import "dispatchhub/internal/models"

type Actor struct {
	ID   string
	Role models.Role
	Name string
}

type Action int

const (
	TaskRead Action = iota
	TaskCreate
	TaskUpdate
	TaskDelete
	TaskTransition
	LocationWrite
	LocationRead
	UserManage
	CourierList
	AvailabilityWrite
	StaffRegister
)

// Owners describes the resource being acted on. CreatorID and AssigneeID are
// the task relations; SubjectID is the user a location or availability write
// targets.
type Owners struct {
	CreatorID  string
	AssigneeID string
	SubjectID  string
}

func TaskOwners(t models.Task) Owners {
	return Owners{CreatorID: t.CreatedBy, AssigneeID: t.AssigneeID()}
}

// Can reports whether actor may perform action on a resource with the given
// owners.
func Can(actor Actor, action Action, owners Owners) bool {
	if actor.ID == "" {
		return false
	}
	switch actor.Role {
	case models.RoleAdmin:
		return adminCan(action)
	case models.RoleDispatcher:
		return dispatcherCan(actor, action, owners)
	case models.RoleCourier:
		return courierCan(actor, action, owners)
	default:
		return false
	}
}

func adminCan(action Action) bool {
	switch action {
	case TaskRead, TaskCreate, TaskUpdate, TaskDelete, TaskTransition,
		LocationRead, UserManage, CourierList, StaffRegister:
		return true
	case LocationWrite, AvailabilityWrite:
		return false
	default:
		return false
	}
}

func dispatcherCan(actor Actor, action Action, owners Owners) bool {
	switch action {
	case TaskRead, TaskUpdate, TaskDelete:
		return owners.CreatorID == actor.ID
	case TaskCreate, TaskTransition, LocationRead, CourierList:
		return true
	case LocationWrite, UserManage, AvailabilityWrite, StaffRegister:
		return false
	default:
		return false
	}
}

func courierCan(actor Actor, action Action, owners Owners) bool {
	switch action {
	case TaskRead, TaskTransition:
		return owners.AssigneeID != "" && owners.AssigneeID == actor.ID
	case LocationWrite, AvailabilityWrite:
		return owners.SubjectID == actor.ID
	case TaskCreate, TaskUpdate, TaskDelete, LocationRead, UserManage, CourierList, StaffRegister:
		return false
	default:
		return false
	}
}

// TaskScope narrows a task listing to what actor may see.
func TaskScope(actor Actor, filter models.TaskFilter) models.TaskFilter {
	id := actor.ID
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleDispatcher:
		filter.CreatedBy = &id
	case models.RoleCourier:
		filter.AssignedTo = &id
	default:
		// Unknown roles see nothing: scope to an id no task can carry.
		none := ""
		filter.CreatedBy = &none
	}
	return filter
}
