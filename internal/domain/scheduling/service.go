package scheduling

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/metrics"
)

const (
	msgCancelled        = "appointment cancelled"
	msgAlreadyCancelled = "the appointment was already cancelled"
)

type Service struct {
	appointments AppointmentRepository
	directory    Directory
	tx           db.Transactor
	metrics      *metrics.SchedulingMetrics
	loc          *time.Location
	cancelWindow time.Duration
	now          func() time.Time
}

func NewService(appts AppointmentRepository, dir Directory, tx db.Transactor, m *metrics.SchedulingMetrics,
	loc *time.Location, cancelWindow time.Duration) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		appointments: appts,
		directory:    dir,
		tx:           tx,
		metrics:      m,
		loc:          loc,
		cancelWindow: cancelWindow,
		now:          time.Now,
	}
}

// HasOverlap reports whether [start, end) intersects any appointment of the
// physician, whatever its status.
func (s *Service) HasOverlap(ctx context.Context, physicianID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	return s.appointments.HasOverlap(ctx, physicianID, start, end, excludeID)
}

// -- Lifecycle --

// Create books an appointment in PENDING state. Patients always book for
// themselves; physicians only on their own calendar.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Appointment, error) {
	appt, err := s.Book(ctx, actor, in)
	s.metrics.Observe("create", outcome(err))
	return appt, err
}

// Book is Create without the operation metric. Callers that book as one
// step of a larger transaction record their own outcome once it commits.
func (s *Service) Book(ctx context.Context, actor auth.Actor, in CreateInput) (*Appointment, error) {
	var appt *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		start, end, err := parseInterval(in.StartAt, in.EndAt, s.loc)
		if err != nil {
			return err
		}
		if in.PhysicianID == uuid.Nil {
			return apperr.Input("physician_id is required")
		}

		patientID, err := s.bookingPatient(ctx, actor, in.PatientID)
		if err != nil {
			return err
		}
		if _, err := s.directory.GetPhysician(ctx, in.PhysicianID); err != nil {
			return err
		}
		if actor.IsPhysician() {
			own, err := s.actorPhysician(ctx, actor)
			if err != nil {
				return err
			}
			if own == nil || own.ID != in.PhysicianID {
				return apperr.Forbidden("physicians can only book appointments on their own calendar")
			}
		}

		if err := s.reserve(ctx, in.PhysicianID, start, end, nil); err != nil {
			return err
		}
		appt = &Appointment{
			PhysicianID: in.PhysicianID,
			PatientID:   patientID,
			StartAt:     start,
			EndAt:       end,
			Status:      StatusPending,
			Notes:       normalizeNotes(in.Notes),
		}
		return s.appointments.Create(ctx, appt)
	})
	if err = classify(err); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) bookingPatient(ctx context.Context, actor auth.Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if actor.IsPatient() {
		if requested != nil && *requested != actor.UserID {
			return uuid.Nil, apperr.Forbidden("patients can only book appointments for themselves")
		}
		return actor.UserID, nil
	}
	if requested == nil || *requested == uuid.Nil {
		return uuid.Nil, apperr.Input("patient_id is required")
	}
	if _, err := s.directory.GetPatient(ctx, *requested); err != nil {
		return uuid.Nil, err
	}
	return *requested, nil
}

// Edit applies in to the appointment. Admins and the owning physician may
// change every field; the owning patient may only move the times.
func (s *Service) Edit(ctx context.Context, actor auth.Actor, id uuid.UUID, in EditInput) (*Appointment, error) {
	var appt *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.load(ctx, id, true)
		if err != nil {
			return err
		}
		own, err := s.actorPhysician(ctx, actor)
		if err != nil {
			return err
		}
		full := canEditAll(actor, own, a)
		if !full && !isOwningPatient(actor, a) {
			return apperr.Forbidden("you do not have permission to edit this appointment")
		}
		if !full && !in.reschedulesOnly() {
			return apperr.Forbidden("patients can only change the appointment time")
		}

		start, end, err := parseInterval(in.StartAt, in.EndAt, s.loc)
		if err != nil {
			return err
		}

		target := a.PhysicianID
		if full {
			if in.PhysicianID != nil {
				if _, err := s.directory.GetPhysician(ctx, *in.PhysicianID); err != nil {
					return err
				}
				target = *in.PhysicianID
			}
			if in.PatientID != nil {
				if _, err := s.directory.GetPatient(ctx, *in.PatientID); err != nil {
					return err
				}
				a.PatientID = *in.PatientID
			}
			if in.Status != nil {
				st, err := ParseStatus(*in.Status)
				if err != nil {
					return apperr.Input("%s", err.Error())
				}
				a.Status = st
			}
			if in.Notes != nil {
				a.Notes = normalizeNotes(in.Notes)
			}
		}

		if err := s.reserve(ctx, target, start, end, &a.ID); err != nil {
			return err
		}
		a.PhysicianID = target
		a.StartAt = start
		a.EndAt = end
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		appt = a
		return nil
	})
	err = classify(err)
	s.metrics.Observe("edit", outcome(err))
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// Cancel sets the status to CANCELLED. The owning patient must cancel at
// least the cancellation window ahead of the start. Cancelling twice is a
// no-op reported in the result.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*CancelResult, error) {
	var result *CancelResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.load(ctx, id, true)
		if err != nil {
			return err
		}
		own, err := s.actorPhysician(ctx, actor)
		if err != nil {
			return err
		}
		full := canEditAll(actor, own, a)
		if !full && !isOwningPatient(actor, a) {
			return apperr.Forbidden("you do not have permission to cancel this appointment")
		}

		if a.Status == StatusCancelled {
			result = &CancelResult{Appointment: a, AlreadyCancelled: true, Message: msgAlreadyCancelled}
			return nil
		}
		if !full && insideCancellationWindow(a.StartAt, s.now(), s.cancelWindow) {
			return apperr.Policy(apperr.CodeCancellationWindow,
				"appointments can only be cancelled at least %s in advance", formatWindow(s.cancelWindow))
		}

		a.Status = StatusCancelled
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		result = &CancelResult{Appointment: a, Message: msgCancelled}
		return nil
	})
	err = classify(err)
	switch {
	case err != nil:
		s.metrics.Observe("cancel", outcome(err))
		return nil, err
	case result.AlreadyCancelled:
		s.metrics.Observe("cancel", "noop")
	default:
		s.metrics.Observe("cancel", "ok")
	}
	return result, nil
}

// reserve takes the physician's calendar lock and rejects [start, end) when
// it overlaps another appointment.
func (s *Service) reserve(ctx context.Context, physicianID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) error {
	if err := s.appointments.LockPhysician(ctx, physicianID); err != nil {
		return err
	}
	overlap, err := s.appointments.HasOverlap(ctx, physicianID, start, end, excludeID)
	if err != nil {
		return err
	}
	if overlap {
		return apperr.Conflict()
	}
	return nil
}

// -- Queries --

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	own, err := s.actorPhysician(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !canView(actor, own, a) {
		return nil, apperr.Forbidden("you do not have permission to view this appointment")
	}
	return &AppointmentDetail{Appointment: a, CanEditAll: canEditAll(actor, own, a)}, nil
}

// List returns the actor's appointments, most recent first: a physician's
// calendar, a patient's own bookings, or everything for an admin.
func (s *Service) List(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Appointment, int, error) {
	f, err := s.scopeFilter(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	f.Limit, f.Offset = limit, offset
	return s.appointments.List(ctx, f)
}

// Upcoming returns the physician's future PENDING and CONFIRMED
// appointments in start order, optionally for one patient.
func (s *Service) Upcoming(ctx context.Context, actor auth.Actor, patientID *uuid.UUID) ([]*Appointment, error) {
	own, err := s.requirePhysician(ctx, actor)
	if err != nil {
		return nil, err
	}
	now := s.now()
	appts, _, err := s.appointments.List(ctx, Filter{
		PhysicianID: &own.ID,
		PatientID:   patientID,
		Statuses:    openStatuses,
		From:        &now,
		Ascending:   true,
	})
	return appts, err
}

func (s *Service) Concluded(ctx context.Context, actor auth.Actor) ([]*Appointment, error) {
	own, err := s.requirePhysician(ctx, actor)
	if err != nil {
		return nil, err
	}
	appts, _, err := s.appointments.List(ctx, Filter{PhysicianID: &own.ID, Statuses: closedStatuses})
	return appts, err
}

func (s *Service) Dashboard(ctx context.Context, actor auth.Actor) (*Dashboard, error) {
	f, err := s.scopeFilter(ctx, actor)
	if err != nil {
		return nil, err
	}
	appts, _, err := s.appointments.List(ctx, f)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{Appointments: appts}
	if !actor.IsPhysician() {
		return d, nil
	}

	own, err := s.requirePhysician(ctx, actor)
	if err != nil {
		return nil, err
	}
	d.Physician = own
	d.Greeting = greeting(s.now(), s.loc)
	if d.Patients, err = s.appointments.PatientsOfPhysician(ctx, own.ID); err != nil {
		return nil, err
	}
	if d.PendingCounts, err = s.appointments.OpenCountsByPatient(ctx, own.ID, s.now()); err != nil {
		return nil, err
	}
	return d, nil
}

// PhysicianCalendar shows a physician's appointments from the start of
// today along with every patient they have seen.
func (s *Service) PhysicianCalendar(ctx context.Context, actor auth.Actor, physicianID uuid.UUID) (*PhysicianCalendar, error) {
	phys, err := s.directory.GetPhysician(ctx, physicianID)
	if err != nil {
		return nil, err
	}
	own, err := s.actorPhysician(ctx, actor)
	if err != nil {
		return nil, err
	}
	self := actor.IsPhysician() && own != nil && own.ID == phys.ID
	if !actor.IsAdmin() && !self {
		return nil, apperr.Forbidden("you do not have permission to view this physician")
	}

	from := startOfDay(s.now(), s.loc)
	appts, _, err := s.appointments.List(ctx, Filter{PhysicianID: &phys.ID, From: &from, Ascending: true})
	if err != nil {
		return nil, err
	}
	patients, err := s.appointments.PatientsOfPhysician(ctx, phys.ID)
	if err != nil {
		return nil, err
	}
	return &PhysicianCalendar{Physician: phys, Appointments: appts, Patients: patients, CanEditRecord: true}, nil
}

// MyPatients lists everyone who has had an appointment with the physician.
func (s *Service) MyPatients(ctx context.Context, actor auth.Actor) ([]*identity.User, error) {
	own, err := s.requirePhysician(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.appointments.PatientsOfPhysician(ctx, own.ID)
}

func (s *Service) scopeFilter(ctx context.Context, actor auth.Actor) (Filter, error) {
	switch {
	case actor.IsPhysician():
		own, err := s.requirePhysician(ctx, actor)
		if err != nil {
			return Filter{}, err
		}
		return Filter{PhysicianID: &own.ID}, nil
	case actor.IsPatient():
		return Filter{PatientID: &actor.UserID}, nil
	default:
		return Filter{}, nil
	}
}

// -- Helpers --

func (s *Service) load(ctx context.Context, id uuid.UUID, forUpdate bool) (*Appointment, error) {
	get := s.appointments.GetByID
	if forUpdate {
		get = s.appointments.GetForUpdate
	}
	a, err := get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("appointment not found")
	}
	return a, err
}

// actorPhysician returns the actor's physician profile, or nil when the
// actor is not a physician or has no profile.
func (s *Service) actorPhysician(ctx context.Context, actor auth.Actor) (*identity.Physician, error) {
	if !actor.IsPhysician() {
		return nil, nil
	}
	p, err := s.directory.PhysicianForUser(ctx, actor.UserID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *Service) requirePhysician(ctx context.Context, actor auth.Actor) (*identity.Physician, error) {
	if !actor.IsPhysician() {
		return nil, apperr.Forbidden("only physicians can access this resource")
	}
	return s.directory.PhysicianForUser(ctx, actor.UserID)
}

// classify maps constraint violations raised by the store onto the
// scheduling errors they stand for.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsExclusionViolation(err):
		return apperr.Conflict()
	case db.IsCheckViolation(err):
		return apperr.Input("end_at must be after start_at")
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperr.KindOf(err) {
	case apperr.KindInput:
		return "invalid"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindPolicy:
		if apperr.CodeOf(err) == apperr.CodeSchedulingConflict {
			return "conflict"
		}
		return "window"
	}
	return "error"
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return strconv.Itoa(h) + " hours"
	}
	return d.String()
}
