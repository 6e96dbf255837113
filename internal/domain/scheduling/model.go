package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusAttended  Status = "ATTENDED"
)

var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusCancelled: true,
	StatusAttended:  true,
}

// ParseStatus accepts exactly one of the four status names.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !validStatuses[st] {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// openStatuses are the statuses of appointments that still lie ahead.
var openStatuses = []Status{StatusPending, StatusConfirmed}

// closedStatuses are shown in a physician's concluded consultations.
var closedStatuses = []Status{StatusAttended, StatusCancelled}

// Appointment occupies [StartAt, EndAt) on one physician's calendar.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PhysicianID uuid.UUID `db:"physician_id" json:"physician_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	StartAt     time.Time `db:"start_at" json:"start_at"`
	EndAt       time.Time `db:"end_at" json:"end_at"`
	Status      Status    `db:"status" json:"status"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// Filled by read queries that join the users table.
	PhysicianName string `db:"-" json:"physician_name,omitempty"`
	PatientName   string `db:"-" json:"patient_name,omitempty"`
}

// Overlaps reports whether the appointment intersects [start, end).
// Touching bounds do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartAt.Before(end) && a.EndAt.After(start)
}

// CreateInput books a new appointment. PatientID may be omitted by a
// patient booking for themselves.
type CreateInput struct {
	PhysicianID uuid.UUID  `json:"physician_id"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
	StartAt     string     `json:"start_at"`
	EndAt       string     `json:"end_at"`
	Notes       *string    `json:"notes,omitempty"`
}

// EditInput changes an appointment. StartAt and EndAt are always required;
// the remaining fields are left unchanged when omitted.
type EditInput struct {
	PhysicianID *uuid.UUID `json:"physician_id,omitempty"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	StartAt     string     `json:"start_at"`
	EndAt       string     `json:"end_at"`
}

// reschedulesOnly reports whether the edit touches nothing but the times.
func (in EditInput) reschedulesOnly() bool {
	return in.PhysicianID == nil && in.PatientID == nil && in.Status == nil && in.Notes == nil
}

type CancelResult struct {
	Appointment      *Appointment `json:"appointment"`
	AlreadyCancelled bool         `json:"already_cancelled"`
	Message          string       `json:"message"`
}

type AppointmentDetail struct {
	Appointment *Appointment `json:"appointment"`
	CanEditAll  bool         `json:"can_edit_all"`
}

type Dashboard struct {
	Greeting      string              `json:"greeting,omitempty"`
	Physician     *identity.Physician `json:"physician,omitempty"`
	Appointments  []*Appointment      `json:"appointments"`
	Patients      []*identity.User    `json:"patients,omitempty"`
	PendingCounts map[uuid.UUID]int   `json:"pending_counts,omitempty"`
}

type PhysicianCalendar struct {
	Physician     *identity.Physician `json:"physician"`
	Appointments  []*Appointment      `json:"appointments"`
	Patients      []*identity.User    `json:"patients"`
	CanEditRecord bool                `json:"can_edit_record"`
}

// Filter narrows List queries. A zero Limit returns every match.
type Filter struct {
	PhysicianID *uuid.UUID
	PatientID   *uuid.UUID
	Statuses    []Status
	From        *time.Time
	Ascending   bool
	Limit       int
	Offset      int
}

func normalizeNotes(notes *string) *string {
	if notes == nil || *notes == "" {
		return nil
	}
	return notes
}
