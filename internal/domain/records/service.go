package records

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

type Service struct {
	records  RecordRepository
	patients PatientLookup
	tx       db.Transactor
}

func NewService(records RecordRepository, patients PatientLookup, tx db.Transactor) *Service {
	return &Service{records: records, patients: patients, tx: tx}
}

// View returns the patient's record. Patients may only read their own;
// physicians and admins may read any.
func (s *Service) View(ctx context.Context, actor auth.Actor, patientID uuid.UUID) (*View, error) {
	if !canRead(actor, patientID) {
		return nil, apperr.Forbidden("you do not have permission to view this record")
	}
	patient, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.GetByPatient(ctx, patientID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	return &View{Patient: patient, Record: rec}, nil
}

// Upsert replaces the record's fields, creating it if missing. Only
// physicians and admins write records.
func (s *Service) Upsert(ctx context.Context, actor auth.Actor, patientID uuid.UUID, in UpsertInput) (*View, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only physicians and admins can edit records")
	}
	var view *View
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		patient, err := s.patients.GetPatient(ctx, patientID)
		if err != nil {
			return err
		}
		rec := &Record{
			PatientID:      patientID,
			MedicalHistory: emptyToNil(in.MedicalHistory),
			Allergies:      emptyToNil(in.Allergies),
			ClinicalNotes:  emptyToNil(in.ClinicalNotes),
		}
		if err := s.records.Upsert(ctx, rec); err != nil {
			return err
		}
		view = &View{Patient: patient, Record: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// EnsureRecord creates an empty record for a new patient.
func (s *Service) EnsureRecord(ctx context.Context, patientID uuid.UUID) error {
	return s.records.CreateEmpty(ctx, patientID)
}

func canRead(actor auth.Actor, patientID uuid.UUID) bool {
	return actor.IsStaff() || (actor.IsPatient() && actor.UserID == patientID)
}
