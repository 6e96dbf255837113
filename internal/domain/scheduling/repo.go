package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate row-locks the appointment until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f Filter) ([]*Appointment, int, error)

	// HasOverlap ignores status. excludeID, when set, is left out of the check.
	HasOverlap(ctx context.Context, physicianID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error)
	// LockPhysician serializes writers on one physician's calendar for the
	// rest of the transaction.
	LockPhysician(ctx context.Context, physicianID uuid.UUID) error

	PatientsOfPhysician(ctx context.Context, physicianID uuid.UUID) ([]*identity.User, error)
	OpenCountsByPatient(ctx context.Context, physicianID uuid.UUID, from time.Time) (map[uuid.UUID]int, error)
}

// Directory resolves the people an appointment refers to.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.User, error)
	GetPhysician(ctx context.Context, id uuid.UUID) (*identity.Physician, error)
	PhysicianForUser(ctx context.Context, userID uuid.UUID) (*identity.Physician, error)
}
