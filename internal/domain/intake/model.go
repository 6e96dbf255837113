package intake

import (
	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
)

// OnboardInput describes a new patient and their first appointment.
// PhysicianID defaults to the acting physician's own profile.
type OnboardInput struct {
	Name        string     `json:"name"`
	Surname     string     `json:"surname"`
	Email       string     `json:"email,omitempty"`
	PhysicianID *uuid.UUID `json:"physician_id,omitempty"`
	StartAt     string     `json:"start_at"`
	EndAt       string     `json:"end_at"`
	Notes       *string    `json:"notes,omitempty"`
}

// Onboarding is returned once; the temporary password is not stored in
// plain text anywhere.
type Onboarding struct {
	Patient           *identity.User          `json:"patient"`
	TemporaryPassword string                  `json:"temporary_password"`
	Appointment       *scheduling.Appointment `json:"appointment"`
}
