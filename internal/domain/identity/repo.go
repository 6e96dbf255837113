package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/auth"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ListByRole(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error)
}

type PhysicianRepository interface {
	Create(ctx context.Context, p *Physician) error
	GetByID(ctx context.Context, id uuid.UUID) (*Physician, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Physician, error)
	List(ctx context.Context, limit, offset int) ([]*Physician, int, error)
}
