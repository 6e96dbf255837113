package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
)

type RecordRepository interface {
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*Record, error)
	// Upsert writes r, creating the row on first write.
	Upsert(ctx context.Context, r *Record) error
	// CreateEmpty inserts an empty record unless one already exists.
	CreateEmpty(ctx context.Context, patientID uuid.UUID) error
}

type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.User, error)
}
