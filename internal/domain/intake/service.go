package intake

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/metrics"
)

type PatientCreator interface {
	CreatePatient(ctx context.Context, in identity.NewPatient) (*identity.User, string, error)
	PhysicianForUser(ctx context.Context, userID uuid.UUID) (*identity.Physician, error)
}

type RecordInitializer interface {
	EnsureRecord(ctx context.Context, patientID uuid.UUID) error
}

type Booker interface {
	Book(ctx context.Context, actor auth.Actor, in scheduling.CreateInput) (*scheduling.Appointment, error)
}

// Service registers walk-in patients: account, empty record and first
// appointment are written in a single transaction.
type Service struct {
	people  PatientCreator
	records RecordInitializer
	booker  Booker
	tx      db.Transactor
	metrics *metrics.SchedulingMetrics
}

func NewService(people PatientCreator, records RecordInitializer, booker Booker, tx db.Transactor, m *metrics.SchedulingMetrics) *Service {
	return &Service{people: people, records: records, booker: booker, tx: tx, metrics: m}
}

func (s *Service) Onboard(ctx context.Context, actor auth.Actor, in OnboardInput) (*Onboarding, error) {
	res, err := s.onboard(ctx, actor, in)
	s.metrics.Observe("onboard", outcome(err))
	return res, err
}

func (s *Service) onboard(ctx context.Context, actor auth.Actor, in OnboardInput) (*Onboarding, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only physicians and admins can register patients")
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Surname) == "" {
		return nil, apperr.Input("name and surname are required")
	}
	physicianID, err := s.physicianFor(ctx, actor, in.PhysicianID)
	if err != nil {
		return nil, err
	}

	res := &Onboarding{}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		patient, password, err := s.people.CreatePatient(ctx, identity.NewPatient{
			Name: in.Name, Surname: in.Surname, Email: in.Email,
		})
		if err != nil {
			return err
		}
		if err := s.records.EnsureRecord(ctx, patient.ID); err != nil {
			return err
		}
		appt, err := s.booker.Book(ctx, actor, scheduling.CreateInput{
			PhysicianID: physicianID,
			PatientID:   &patient.ID,
			StartAt:     in.StartAt,
			EndAt:       in.EndAt,
			Notes:       in.Notes,
		})
		if err != nil {
			return err
		}
		res.Patient, res.TemporaryPassword, res.Appointment = patient, password, appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) physicianFor(ctx context.Context, actor auth.Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if requested != nil && *requested != uuid.Nil {
		return *requested, nil
	}
	if !actor.IsPhysician() {
		return uuid.Nil, apperr.Input("physician_id is required")
	}
	p, err := s.people.PhysicianForUser(ctx, actor.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
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
	}
	return "error"
}
