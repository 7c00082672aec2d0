package accessgrants

import (
	"context"
	"strings"
	"time"

	"patient-records-access/internal/domain/accesserr"
	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/platform/deadline"

	"github.com/google/uuid"
)

type Service struct {
	repo     Repository
	recorder *audit.Recorder
	now      func() time.Time
	timeout  time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimeout fija el deadline por defecto de cada operación cuando el
// caller no trae uno.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(repo Repository, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type GrantInput struct {
	GranterID  string
	GranteeID  string
	EntityType EntityType
	Level      Level
}

func (s *Service) Grant(ctx context.Context, in GrantInput) (Grant, error) {
	granterID := strings.TrimSpace(in.GranterID)
	granteeID := strings.TrimSpace(in.GranteeID)

	if granterID == "" || granteeID == "" {
		return Grant{}, accesserr.Validation("granter and grantee are required")
	}
	if granterID == granteeID {
		return Grant{}, accesserr.Validation("granter and grantee must differ")
	}
	if !in.EntityType.Valid() {
		return Grant{}, accesserr.Validation("unknown entity type")
	}
	if !in.Level.Valid() {
		return Grant{}, accesserr.Validation("unknown permission level")
	}

	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	// Duplicados permitidos: el facade toma el nivel más alto al leer.
	g := Grant{
		ID:         uuid.NewString(),
		GranterID:  granterID,
		GranteeID:  granteeID,
		EntityType: in.EntityType,
		Level:      in.Level,
		CreatedAt:  s.now(),
	}

	ev := s.recorder.New(granterID, granterID, audit.ActionGrant, map[string]string{
		audit.MetaKind:       "standing",
		audit.MetaGrantID:    g.ID,
		audit.MetaGranteeID:  granteeID,
		audit.MetaEntityType: string(g.EntityType),
		audit.MetaLevel:      g.Level.String(),
	})

	if err := s.repo.Create(ctx, g, ev); err != nil {
		return Grant{}, accesserr.Storage(err)
	}
	return g, nil
}

// Revoke es idempotente: revocar algo ya revocado es éxito y no audita.
func (s *Service) Revoke(ctx context.Context, grantID, actorID string) error {
	grantID = strings.TrimSpace(grantID)
	actorID = strings.TrimSpace(actorID)
	if grantID == "" || actorID == "" {
		return accesserr.Validation("grant id and actor are required")
	}

	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return accesserr.Passthrough(err)
	}
	if !g.Active() {
		return nil
	}

	now := s.now()
	ev := s.recorder.New(actorID, g.GranterID, audit.ActionRevoke, map[string]string{
		audit.MetaKind:      "standing",
		audit.MetaGrantID:   g.ID,
		audit.MetaGranteeID: g.GranteeID,
		audit.MetaLevel:     g.Level.String(),
	})

	// Entre el GetByID y acá otro revoke pudo ganar: el update condicional
	// devuelve false y no se escribe evento.
	if _, err := s.repo.Revoke(ctx, g.ID, actorID, now, ev); err != nil {
		return accesserr.Passthrough(err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, grantID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, accesserr.Validation("grant id required")
	}
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, accesserr.Passthrough(err)
	}
	return g, nil
}

// ListActive devuelve los grants no revocados del paciente, más recientes
// primero.
func (s *Service) ListActive(ctx context.Context, patientID string) ([]Grant, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, accesserr.Validation("patient id required")
	}
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	items, err := s.repo.ListActiveByPatient(ctx, patientID)
	if err != nil {
		return nil, accesserr.Storage(err)
	}
	return items, nil
}

func (s *Service) ActiveFor(ctx context.Context, patientID, granteeID string) ([]Grant, error) {
	patientID = strings.TrimSpace(patientID)
	granteeID = strings.TrimSpace(granteeID)
	if patientID == "" || granteeID == "" {
		return nil, accesserr.Validation("patient and grantee are required")
	}
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	items, err := s.repo.ListActiveFor(ctx, patientID, granteeID)
	if err != nil {
		return nil, accesserr.Storage(err)
	}
	return items, nil
}

// HighestLevel devuelve el nivel máximo entre grants activos.
func HighestLevel(grants []Grant) (Grant, bool) {
	var winner Grant
	has := false
	for _, g := range grants {
		if !g.Active() {
			continue
		}
		if !has || g.Level > winner.Level {
			winner = g
			has = true
		}
	}
	return winner, has
}
