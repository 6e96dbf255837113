package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

// -- User Repository --

type userRepoPG struct {
	db db.Querier
}

func NewUserRepoPG(q db.Querier) UserRepository {
	return &userRepoPG{db: q}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.db)
}

const userCols = `id, name, surname, email, password_hash, role, created_at`

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, name, surname, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		u.ID, u.Name, u.Surname, u.Email, u.PasswordHash, string(u.Role),
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("user create: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return u, nil
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return u, nil
}

func (r *userRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) ListByRole(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(role)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM users WHERE role = $1 ORDER BY surname, name LIMIT $2 OFFSET $3`,
		string(role), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// -- Physician Repository --

type physicianRepoPG struct {
	db db.Querier
}

func NewPhysicianRepoPG(q db.Querier) PhysicianRepository {
	return &physicianRepoPG{db: q}
}

func (r *physicianRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.db)
}

const physicianSelect = `SELECT p.id, p.user_id, p.specialty, u.name, u.surname
	FROM physicians p JOIN users u ON u.id = p.user_id`

func (r *physicianRepoPG) Create(ctx context.Context, p *Physician) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO physicians (id, user_id, specialty) VALUES ($1, $2, $3)`,
		p.ID, p.UserID, p.Specialty)
	if err != nil {
		return fmt.Errorf("physician create: %w", err)
	}
	return nil
}

func (r *physicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Physician, error) {
	p, err := scanPhysician(r.conn(ctx).QueryRow(ctx, physicianSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return p, nil
}

func (r *physicianRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Physician, error) {
	p, err := scanPhysician(r.conn(ctx).QueryRow(ctx, physicianSelect+` WHERE p.user_id = $1`, userID))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return p, nil
}

func (r *physicianRepoPG) List(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM physicians`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, physicianSelect+` ORDER BY u.surname, u.name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var physicians []*Physician
	for rows.Next() {
		p, err := scanPhysician(rows)
		if err != nil {
			return nil, 0, err
		}
		physicians = append(physicians, p)
	}
	return physicians, total, rows.Err()
}

func scanPhysician(row pgx.Row) (*Physician, error) {
	var p Physician
	if err := row.Scan(&p.ID, &p.UserID, &p.Specialty, &p.Name, &p.Surname); err != nil {
		return nil, err
	}
	return &p, nil
}
