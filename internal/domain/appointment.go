package domain

import "time"

// AppointmentStatus enumerates lifecycle states for appointments.
type AppointmentStatus string

const (
	AppointmentStatusNew          AppointmentStatus = "NEW"
	AppointmentStatusPreviewing   AppointmentStatus = "PREVIEWING"
	AppointmentStatusClaimed      AppointmentStatus = "CLAIMED"
	AppointmentStatusUnassignable AppointmentStatus = "UNASSIGNABLE"
)

// Terminal reports whether no further transition is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusClaimed
}

// Origin identifies the intake channel of an appointment.
type Origin string

const (
	OriginChat     Origin = "CHAT"
	OriginWorkSync Origin = "WORK_SYNC"
	OriginAPI      Origin = "API"
)

// Valid reports whether o is a known intake channel.
func (o Origin) Valid() bool {
	switch o {
	case OriginChat, OriginWorkSync, OriginAPI:
		return true
	}
	return false
}

// Appointment is one customer service request.
type Appointment struct {
	ID           string
	CustomerName string
	Address      string
	Notes        string
	Status       AppointmentStatus
	Hub          string
	Partner      string
	Origin       Origin
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
