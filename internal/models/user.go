package models

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDispatcher Role = "dispatcher"
	RoleCourier    Role = "courier"
)

// Roles lists every role in a stable order. Adding a role means adding it
// here and to the switches in internal/access.
var Roles = []Role{RoleAdmin, RoleDispatcher, RoleCourier}

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleDispatcher, RoleCourier:
		return Role(s), true
	default:
		return "", false
	}
}

type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOffline   Availability = "offline"
)

func ParseAvailability(s string) (Availability, bool) {
	switch Availability(s) {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityOffline:
		return Availability(s), true
	default:
		return "", false
	}
}

// GeoPoint is a WGS84 position. The zero value means "unknown".
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

func (p GeoPoint) Valid() bool {
	return p.Longitude >= -180 && p.Longitude <= 180 &&
		p.Latitude >= -90 && p.Latitude <= 90
}

func (p GeoPoint) IsZero() bool {
	return p.Longitude == 0 && p.Latitude == 0
}

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Role         Role
	Phone        string
	IsActive     bool

	// Courier only.
	CurrentLocation    GeoPoint
	LastLocationUpdate *time.Time
	Availability       Availability

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) IsCourier() bool {
	return u.Role == RoleCourier
}

// UserPatch carries optional fields for an admin edit. A nil field is left
// unchanged. Password is never part of a patch.
type UserPatch struct {
	Name         *string
	Email        *string
	Phone        *string
	Role         *Role
	IsActive     *bool
	Availability *Availability
}

type UserFilter struct {
	Role *Role
}

type Session struct {
	ID               string
	UserID           string
	DeviceID         string
	DeviceName       string
	RefreshTokenHash []byte
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	LastSeenAt       time.Time
	ExpiresAt        time.Time
}
