package records

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/db"
)

type recordRepoPG struct {
	db db.Querier
}

func NewRecordRepoPG(q db.Querier) RecordRepository {
	return &recordRepoPG{db: q}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.db)
}

const recordCols = `id, patient_id, medical_history, allergies, clinical_notes, created_at, updated_at`

func (r *recordRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM records WHERE patient_id = $1`, patientID))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return rec, nil
}

func (r *recordRepoPG) Upsert(ctx context.Context, rec *Record) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO records (id, patient_id, medical_history, allergies, clinical_notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id) DO UPDATE SET
			medical_history = EXCLUDED.medical_history,
			allergies = EXCLUDED.allergies,
			clinical_notes = EXCLUDED.clinical_notes,
			updated_at = NOW()
		RETURNING `+recordCols,
		uuid.New(), rec.PatientID, rec.MedicalHistory, rec.Allergies, rec.ClinicalNotes)
	saved, err := scanRecord(row)
	if err != nil {
		return fmt.Errorf("record upsert: %w", err)
	}
	*rec = *saved
	return nil
}

func (r *recordRepoPG) CreateEmpty(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO records (id, patient_id) VALUES ($1, $2)
		ON CONFLICT (patient_id) DO NOTHING`, uuid.New(), patientID)
	if err != nil {
		return fmt.Errorf("record create: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.MedicalHistory, &rec.Allergies, &rec.ClinicalNotes,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
