package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/auth"
)

// User is an account of any role.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Surname      string    `db:"surname" json:"surname"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         auth.Role `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (u *User) FullName() string {
	return u.Name + " " + u.Surname
}

// Physician is the profile attached to a PHYSICIAN user. Name and Surname
// are read from the owning user row.
type Physician struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Specialty string    `db:"specialty" json:"specialty"`
	Name      string    `db:"name" json:"name"`
	Surname   string    `db:"surname" json:"surname"`
}

// Registration is the self-service sign-up payload.
type Registration struct {
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	Specialty string `json:"specialty,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Profile is the response of GET /me.
type Profile struct {
	User      *User      `json:"user"`
	Physician *Physician `json:"physician,omitempty"`
}

// NewPatient describes a patient account created by staff.
type NewPatient struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email,omitempty"`
}
