// Package sandbox generates a reproducible demo clinic: physicians,
// patients, their records and a non-overlapping appointment book. It writes
// through the domain services so every invariant they enforce still holds.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/records"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
)

// SeedConfig controls the volume and shape of the generated clinic.
type SeedConfig struct {
	Physicians             int
	Patients               int
	AppointmentsPerPatient int
	// FirstDay is the calendar day the appointment book starts on. Each
	// physician works 09:00-17:00 in the clinic timezone.
	FirstDay time.Time
	SlotSize time.Duration
	Password string
	Seed     int64
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Physicians:             3,
		Patients:               12,
		AppointmentsPerPatient: 2,
		FirstDay:               time.Now().AddDate(0, 0, 7),
		SlotSize:               30 * time.Minute,
		Password:               "sandbox-password",
	}
}

// SeedResult summarizes what was written.
type SeedResult struct {
	Physicians   int           `json:"physicians"`
	Patients     int           `json:"patients"`
	Appointments int           `json:"appointments"`
	Records      int           `json:"records"`
	Logins       []string      `json:"logins"`
	Duration     time.Duration `json:"duration"`
}

type Registrar interface {
	Register(ctx context.Context, in identity.Registration) (*identity.Profile, error)
}

type Booker interface {
	Create(ctx context.Context, actor auth.Actor, in scheduling.CreateInput) (*scheduling.Appointment, error)
}

type RecordWriter interface {
	Upsert(ctx context.Context, actor auth.Actor, patientID uuid.UUID, in records.UpsertInput) (*records.View, error)
}

var (
	firstNames = []string{
		"James", "Robert", "Michael", "David", "William", "Joseph", "Thomas",
		"Daniel", "Matthew", "Andrew", "Mary", "Patricia", "Jennifer", "Linda",
		"Elizabeth", "Susan", "Sarah", "Karen", "Laura", "Maria", "Ana", "Lucia",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Garcia", "Miller", "Davis",
		"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson",
		"Anderson", "Taylor", "Moore", "Perez", "Sanchez", "Ramirez", "Torres",
	}
	specialties = []string{
		"Family Medicine", "Cardiology", "Dermatology", "Pediatrics",
		"Internal Medicine", "Neurology", "Endocrinology",
	}
	allergies = []string{"None known", "Penicillin", "Latex", "Peanuts", "Sulfonamides", "Pollen"}
	histories = []string{
		"No relevant history", "Hypertension, controlled", "Type 2 diabetes",
		"Asthma since childhood", "Appendectomy (2015)", "Seasonal migraines",
	}
	reasons = []string{
		"Annual check-up", "Follow-up visit", "Lab results review",
		"Persistent cough", "Blood pressure control", "Skin rash",
	}
)

// DataGenerator draws names and clinical text from a seeded source.
type DataGenerator struct {
	rng     *rand.Rand
	counter int
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// Person returns a name, surname and an email unique within this generator.
func (g *DataGenerator) Person(domain string) (string, string, string) {
	g.counter++
	name, surname := g.pick(firstNames), g.pick(lastNames)
	email := fmt.Sprintf("%s.%s%d@%s", strings.ToLower(name), strings.ToLower(surname), g.counter, domain)
	return name, surname, email
}

// Seeder writes a demo clinic through the domain services.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
	people    Registrar
	booker    Booker
	records   RecordWriter
	logger    zerolog.Logger
}

func NewSeeder(config SeedConfig, people Registrar, booker Booker, recs RecordWriter, logger zerolog.Logger) *Seeder {
	if config.SlotSize <= 0 {
		config.SlotSize = 30 * time.Minute
	}
	return &Seeder{
		generator: NewDataGenerator(config.Seed),
		config:    config,
		people:    people,
		booker:    booker,
		records:   recs,
		logger:    logger,
	}
}

// Generate registers the configured physicians and patients, writes a record
// per patient and books appointments round-robin across physicians.
func (s *Seeder) Generate(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{}
	admin := auth.Actor{UserID: uuid.New(), Role: auth.RoleAdmin}

	physicians := make([]*identity.Physician, 0, s.config.Physicians)
	for i := 0; i < s.config.Physicians; i++ {
		name, surname, email := s.generator.Person("clinic.test")
		p, err := s.people.Register(ctx, identity.Registration{
			Name: name, Surname: surname, Email: email, Password: s.config.Password,
			Role: string(auth.RolePhysician), Specialty: s.generator.pick(specialties),
		})
		if err != nil {
			return nil, fmt.Errorf("register physician %s: %w", email, err)
		}
		physicians = append(physicians, p.Physician)
		result.Logins = append(result.Logins, email)
	}
	result.Physicians = len(physicians)
	if len(physicians) == 0 {
		return nil, fmt.Errorf("at least one physician is required")
	}

	book := newAppointmentBook(s.config.FirstDay, s.config.SlotSize, len(physicians))
	for i := 0; i < s.config.Patients; i++ {
		name, surname, email := s.generator.Person("patients.test")
		p, err := s.people.Register(ctx, identity.Registration{
			Name: name, Surname: surname, Email: email, Password: s.config.Password,
			Role: string(auth.RolePatient),
		})
		if err != nil {
			return nil, fmt.Errorf("register patient %s: %w", email, err)
		}
		result.Patients++
		result.Logins = append(result.Logins, email)

		history, allergy := s.generator.pick(histories), s.generator.pick(allergies)
		if _, err := s.records.Upsert(ctx, admin, p.User.ID, records.UpsertInput{
			MedicalHistory: &history, Allergies: &allergy,
		}); err != nil {
			return nil, fmt.Errorf("write record: %w", err)
		}
		result.Records++

		for j := 0; j < s.config.AppointmentsPerPatient; j++ {
			idx := (i + j) % len(physicians)
			from, to := book.next(idx)
			reason := s.generator.pick(reasons)
			if _, err := s.booker.Create(ctx, admin, scheduling.CreateInput{
				PhysicianID: physicians[idx].ID,
				PatientID:   &p.User.ID,
				StartAt:     from.Format(time.RFC3339),
				EndAt:       to.Format(time.RFC3339),
				Notes:       &reason,
			}); err != nil {
				return nil, fmt.Errorf("book appointment: %w", err)
			}
			result.Appointments++
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("physicians", result.Physicians).
		Int("patients", result.Patients).
		Int("appointments", result.Appointments).
		Dur("duration", result.Duration).
		Msg("sandbox seeded")
	return result, nil
}

const (
	dayStartHour = 9
	dayEndHour   = 17
)

// appointmentBook hands out consecutive slots per physician inside working
// hours, so generated appointments never overlap.
type appointmentBook struct {
	slot   time.Duration
	cursor []time.Time
}

func newAppointmentBook(firstDay time.Time, slot time.Duration, physicians int) *appointmentBook {
	day := time.Date(firstDay.Year(), firstDay.Month(), firstDay.Day(), dayStartHour, 0, 0, 0, firstDay.Location())
	b := &appointmentBook{slot: slot, cursor: make([]time.Time, physicians)}
	for i := range b.cursor {
		b.cursor[i] = day
	}
	return b
}

func (b *appointmentBook) next(physician int) (time.Time, time.Time) {
	from := b.cursor[physician]
	closing := time.Date(from.Year(), from.Month(), from.Day(), dayEndHour, 0, 0, 0, from.Location())
	if from.Add(b.slot).After(closing) {
		d := from.AddDate(0, 0, 1)
		from = time.Date(d.Year(), d.Month(), d.Day(), dayStartHour, 0, 0, 0, d.Location())
	}
	b.cursor[physician] = from.Add(b.slot)
	return from, from.Add(b.slot)
}
