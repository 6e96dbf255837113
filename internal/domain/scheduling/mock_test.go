package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

// -- Mock Appointment Repository --

type mockApptRepo struct {
	mu        sync.Mutex
	appts     map[uuid.UUID]*Appointment
	users     map[uuid.UUID]*identity.User
	locks     map[uuid.UUID]*sync.Mutex
	createErr error
	lockCalls int
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{
		appts: make(map[uuid.UUID]*Appointment),
		users: make(map[uuid.UUID]*identity.User),
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return db.ErrNotFound
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) List(_ context.Context, f Filter) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Appointment
	for _, a := range m.appts {
		if f.PhysicianID != nil && a.PhysicianID != *f.PhysicianID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.From != nil && a.StartAt.Before(*f.From) {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if f.Ascending {
			return result[i].StartAt.Before(result[j].StartAt)
		}
		return result[i].StartAt.After(result[j].StartAt)
	})
	total := len(result)
	if f.Limit > 0 {
		end := f.Offset + f.Limit
		if end > total {
			end = total
		}
		if f.Offset < total {
			result = result[f.Offset:end]
		} else {
			result = nil
		}
	}
	return result, total, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *mockApptRepo) HasOverlap(_ context.Context, physicianID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.PhysicianID != physicianID {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

// LockPhysician holds a per-physician mutex until the surrounding mockTx
// finishes, like a transaction-scoped advisory lock.
func (m *mockApptRepo) LockPhysician(ctx context.Context, physicianID uuid.UUID) error {
	m.mu.Lock()
	m.lockCalls++
	l, ok := m.locks[physicianID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[physicianID] = l
	}
	m.mu.Unlock()

	l.Lock()
	if st, ok := ctx.Value(mockTxKey{}).(*mockTxState); ok {
		st.release = append(st.release, l.Unlock)
	} else {
		l.Unlock()
	}
	return nil
}

func (m *mockApptRepo) PatientsOfPhysician(_ context.Context, physicianID uuid.UUID) ([]*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var result []*identity.User
	for _, a := range m.appts {
		if a.PhysicianID != physicianID || seen[a.PatientID] {
			continue
		}
		seen[a.PatientID] = true
		if u, ok := m.users[a.PatientID]; ok {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Surname < result[j].Surname })
	return result, nil
}

func (m *mockApptRepo) OpenCountsByPatient(_ context.Context, physicianID uuid.UUID, from time.Time) (map[uuid.UUID]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, a := range m.appts {
		if a.PhysicianID == physicianID && !a.StartAt.Before(from) && containsStatus(openStatuses, a.Status) {
			counts[a.PatientID]++
		}
	}
	return counts, nil
}

// -- Mock Transactor --

type mockTxKey struct{}

type mockTxState struct {
	release []func()
}

type mockTx struct {
	mu    sync.Mutex
	calls int
}

func (t *mockTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(mockTxKey{}).(*mockTxState); ok {
		return fn(ctx)
	}
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()

	st := &mockTxState{}
	defer func() {
		for _, release := range st.release {
			release()
		}
	}()
	return fn(context.WithValue(ctx, mockTxKey{}, st))
}

// -- Mock Directory --

type mockDirectory struct {
	users      map[uuid.UUID]*identity.User
	physicians map[uuid.UUID]*identity.Physician
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		users:      make(map[uuid.UUID]*identity.User),
		physicians: make(map[uuid.UUID]*identity.Physician),
	}
}

func (d *mockDirectory) GetPatient(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := d.users[id]
	if !ok || u.Role != auth.RolePatient {
		return nil, apperr.NotFound("patient not found")
	}
	return u, nil
}

func (d *mockDirectory) GetPhysician(_ context.Context, id uuid.UUID) (*identity.Physician, error) {
	p, ok := d.physicians[id]
	if !ok {
		return nil, apperr.NotFound("physician not found")
	}
	return p, nil
}

func (d *mockDirectory) PhysicianForUser(_ context.Context, userID uuid.UUID) (*identity.Physician, error) {
	for _, p := range d.physicians {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, apperr.NotFound("physician profile not found")
}
