package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

const placeholderEmailDomain = "@local"

type Service struct {
	users       UserRepository
	physicians  PhysicianRepository
	tx          db.Transactor
	tokens      *auth.TokenIssuer
	revocations auth.RevocationStore
	logger      zerolog.Logger
}

func NewService(users UserRepository, physicians PhysicianRepository, tx db.Transactor,
	tokens *auth.TokenIssuer, revocations auth.RevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		physicians:  physicians,
		tx:          tx,
		tokens:      tokens,
		revocations: revocations,
		logger:      logger,
	}
}

// -- Accounts --

// Register creates a PATIENT or PHYSICIAN account. Physicians get their
// profile in the same transaction.
func (s *Service) Register(ctx context.Context, in Registration) (*Profile, error) {
	role := auth.RolePatient
	if strings.TrimSpace(in.Role) != "" {
		r, err := auth.ParseRole(strings.TrimSpace(in.Role))
		if err != nil {
			return nil, apperr.Input("invalid role %q", in.Role)
		}
		role = r
	}
	if role == auth.RoleAdmin {
		return nil, apperr.Input("role must be PATIENT or PHYSICIAN")
	}
	specialty := strings.TrimSpace(in.Specialty)
	if role == auth.RolePhysician && specialty == "" {
		return nil, apperr.Input("specialty is required for physicians")
	}

	u, err := s.newUser(in.Name, in.Surname, in.Email, in.Password, role)
	if err != nil {
		return nil, err
	}

	profile := &Profile{User: u}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.insertUser(ctx, u); err != nil {
			return err
		}
		if role != auth.RolePhysician {
			return nil
		}
		p := &Physician{UserID: u.ID, Specialty: specialty, Name: u.Name, Surname: u.Surname}
		if err := s.physicians.Create(ctx, p); err != nil {
			return err
		}
		profile.Physician = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateAdmin is used by the CLI; admins cannot self-register.
func (s *Service) CreateAdmin(ctx context.Context, name, surname, email, password string) (*User, error) {
	u, err := s.newUser(name, surname, email, password, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if err := s.tx.WithTx(ctx, func(ctx context.Context) error { return s.insertUser(ctx, u) }); err != nil {
		return nil, err
	}
	return u, nil
}

// CreatePatient creates a PATIENT account on a patient's behalf and returns
// the generated temporary password. It joins the caller's transaction when
// there is one.
func (s *Service) CreatePatient(ctx context.Context, in NewPatient) (*User, string, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		email = "patient" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10] + placeholderEmailDomain
	}
	password, err := auth.GenerateTemporaryPassword()
	if err != nil {
		return nil, "", apperr.Internal("generate temporary password", err)
	}
	u, err := s.newUser(in.Name, in.Surname, email, password, auth.RolePatient)
	if err != nil {
		return nil, "", err
	}
	if err := s.tx.WithTx(ctx, func(ctx context.Context) error { return s.insertUser(ctx, u) }); err != nil {
		return nil, "", err
	}
	return u, password, nil
}

func (s *Service) newUser(name, surname, email, password string, role auth.Role) (*User, error) {
	u := &User{
		Name:    strings.TrimSpace(name),
		Surname: strings.TrimSpace(surname),
		Email:   normalizeEmail(email),
		Role:    role,
	}
	if u.Name == "" || u.Surname == "" {
		return nil, apperr.Input("name and surname are required")
	}
	if !strings.Contains(u.Email, "@") {
		return nil, apperr.Input("a valid email is required")
	}
	if len(password) < auth.MinPasswordLength {
		return nil, apperr.Input("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	u.PasswordHash = hash
	return u, nil
}

func (s *Service) insertUser(ctx context.Context, u *User) error {
	exists, err := s.users.EmailExists(ctx, u.Email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if exists {
		return apperr.Input("email already registered")
	}
	if err := s.users.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Input("email already registered")
		}
		return err
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// -- Sessions --

func (s *Service) Login(ctx context.Context, in LoginRequest) (*LoginResponse, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	if !auth.CheckPassword(u.PasswordHash, in.Password) {
		s.logger.Info().Str("user_id", u.ID.String()).Msg("login rejected")
		return nil, apperr.Unauthenticated("invalid credentials")
	}

	token, claims, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        u,
	}, nil
}

// Logout revokes the presented token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperr.Unauthenticated("authentication required")
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, actor auth.Actor) (*Profile, error) {
	u, err := s.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	profile := &Profile{User: u}
	if actor.IsPhysician() {
		p, err := s.physicians.GetByUserID(ctx, actor.UserID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		profile.Physician = p
	}
	return profile, nil
}

// -- Directory --

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

// GetPatient returns the user only when it has the PATIENT role.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && u.Role != auth.RolePatient) {
		return nil, apperr.NotFound("patient not found")
	}
	return u, err
}

func (s *Service) GetPhysician(ctx context.Context, id uuid.UUID) (*Physician, error) {
	p, err := s.physicians.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("physician not found")
	}
	return p, err
}

// PhysicianForUser returns the profile linked to a PHYSICIAN user.
func (s *Service) PhysicianForUser(ctx context.Context, userID uuid.UUID) (*Physician, error) {
	p, err := s.physicians.GetByUserID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("physician profile not found")
	}
	return p, err
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.ListByRole(ctx, auth.RolePatient, limit, offset)
}

func (s *Service) ListPhysicians(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	return s.physicians.List(ctx, limit, offset)
}
