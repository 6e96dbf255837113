package scheduling

import (
	"time"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/auth"
)

// own is the actor's physician profile, nil for non-physicians and for
// physicians without a profile.

func isOwningPhysician(actor auth.Actor, own *identity.Physician, a *Appointment) bool {
	return actor.IsPhysician() && own != nil && own.ID == a.PhysicianID
}

func isOwningPatient(actor auth.Actor, a *Appointment) bool {
	return actor.IsPatient() && actor.UserID == a.PatientID
}

// canEditAll covers every field, status included, and cancelling at any time.
func canEditAll(actor auth.Actor, own *identity.Physician, a *Appointment) bool {
	return actor.IsAdmin() || isOwningPhysician(actor, own, a)
}

func canView(actor auth.Actor, own *identity.Physician, a *Appointment) bool {
	return canEditAll(actor, own, a) || isOwningPatient(actor, a)
}

// insideCancellationWindow reports whether start is less than window away.
func insideCancellationWindow(start, now time.Time, window time.Duration) bool {
	return start.Sub(now) < window
}
