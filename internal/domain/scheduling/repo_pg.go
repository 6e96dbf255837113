package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

const physicianLockNamespace = "physician"

type appointmentRepoPG struct {
	db db.Querier
}

func NewAppointmentRepoPG(q db.Querier) AppointmentRepository {
	return &appointmentRepoPG{db: q}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.db)
}

const apptCols = `a.id, a.physician_id, a.patient_id, a.start_at, a.end_at, a.status, a.notes, a.created_at, a.updated_at`

const apptSelect = `SELECT ` + apptCols + `,
	pu.name || ' ' || pu.surname AS physician_name,
	u.name || ' ' || u.surname AS patient_name
	FROM appointments a
	JOIN physicians p ON p.id = a.physician_id
	JOIN users pu ON pu.id = p.user_id
	JOIN users u ON u.id = a.patient_id`

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, physician_id, patient_id, start_at, end_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.PhysicianID, a.PatientID, a.StartAt, a.EndAt, string(a.Status), a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointment create: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, apptSelect+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return a, nil
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, apptSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET
			physician_id = $2, patient_id = $3, start_at = $4, end_at = $5,
			status = $6, notes = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PhysicianID, a.PatientID, a.StartAt, a.EndAt, string(a.Status), a.Notes,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return db.NotFound(err)
	}
	return nil
}

func (r *appointmentRepoPG) HasOverlap(ctx context.Context, physicianID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM appointments
		WHERE physician_id = $1 AND start_at < $3 AND end_at > $2`
	args := []interface{}{physicianID, start, end}
	if excludeID != nil {
		query += ` AND id <> $4`
		args = append(args, *excludeID)
	}
	query += `)`

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("overlap check: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepoPG) LockPhysician(ctx context.Context, physicianID uuid.UUID) error {
	return db.AdvisoryXactLock(ctx, r.conn(ctx), physicianLockNamespace, physicianID)
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	where, args := filterClause(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := apptSelect + where + ` ORDER BY a.start_at DESC`
	if f.Ascending {
		query = apptSelect + where + ` ORDER BY a.start_at ASC`
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, f.Limit, f.Offset)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		appts = append(appts, a)
	}
	return appts, total, rows.Err()
}

func filterClause(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.PhysicianID != nil {
		add("a.physician_id = $%d", *f.PhysicianID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("a.status = ANY($%d)", statuses)
	}
	if f.From != nil {
		add("a.start_at >= $%d", *f.From)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *appointmentRepoPG) PatientsOfPhysician(ctx context.Context, physicianID uuid.UUID) ([]*identity.User, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.id, u.name, u.surname, u.email, u.role, u.created_at
		FROM users u
		WHERE u.id IN (SELECT patient_id FROM appointments WHERE physician_id = $1)
		ORDER BY u.surname, u.name`, physicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*identity.User
	for rows.Next() {
		var u identity.User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &role, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = auth.Role(role)
		patients = append(patients, &u)
	}
	return patients, rows.Err()
}

func (r *appointmentRepoPG) OpenCountsByPatient(ctx context.Context, physicianID uuid.UUID, from time.Time) (map[uuid.UUID]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, COUNT(*)
		FROM appointments
		WHERE physician_id = $1 AND start_at >= $2 AND status IN ('PENDING', 'CONFIRMED')
		GROUP BY patient_id`, physicianID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(
		&a.ID, &a.PhysicianID, &a.PatientID, &a.StartAt, &a.EndAt, &status, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt, &a.PhysicianName, &a.PatientName,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}
