package records

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
)

// Record is a patient's clinical file. Each patient has at most one.
type Record struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	MedicalHistory *string   `db:"medical_history" json:"medical_history"`
	Allergies      *string   `db:"allergies" json:"allergies"`
	ClinicalNotes  *string   `db:"clinical_notes" json:"clinical_notes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// View pairs the patient with their record, which is nil until first written.
type View struct {
	Patient *identity.User `json:"patient"`
	Record  *Record        `json:"record"`
}

// UpsertInput replaces all three text fields; omitted or empty fields are
// cleared.
type UpsertInput struct {
	MedicalHistory *string `json:"medical_history"`
	Allergies      *string `json:"allergies"`
	ClinicalNotes  *string `json:"clinical_notes"`
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
