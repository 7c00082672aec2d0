package temporaryaccess

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
	PatientID  string
	AccessorID string
	Scope      Scope
	TTL        time.Duration

	// GrantedBy es quien aprobó (vacío = el paciente).
	GrantedBy string
}

func (s *Service) GrantTemporary(ctx context.Context, in GrantInput) (Permission, error) {
	p, err := s.Build(in, SourceApproval)
	if err != nil {
		return Permission{}, err
	}

	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Create(ctx, p, s.GrantEvent(p)); err != nil {
		return Permission{}, accesserr.Storage(err)
	}
	return p, nil
}

// Build valida y arma un permiso sin persistirlo. El canje de emergencia lo
// usa para crear el permiso dentro de su propia transacción.
func (s *Service) Build(in GrantInput, source Source) (Permission, error) {
	patientID := strings.TrimSpace(in.PatientID)
	accessorID := strings.TrimSpace(in.AccessorID)
	grantedBy := strings.TrimSpace(in.GrantedBy)

	if patientID == "" || accessorID == "" {
		return Permission{}, accesserr.Validation("patient and accessor are required")
	}
	if patientID == accessorID {
		return Permission{}, accesserr.Validation("patient and accessor must differ")
	}
	if !in.Scope.Valid() {
		return Permission{}, accesserr.Validation("unknown scope")
	}
	if in.TTL <= 0 {
		return Permission{}, accesserr.Validation("ttl must be positive")
	}
	if grantedBy == "" {
		grantedBy = patientID
	}

	now := s.now()
	return Permission{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		AccessorID: accessorID,
		Scope:      in.Scope,
		Source:     source,
		GrantedBy:  grantedBy,
		GrantedAt:  now,
		ExpiresAt:  now.Add(in.TTL),
	}, nil
}

// GrantEvent es el evento de alta de un permiso temporal.
func (s *Service) GrantEvent(p Permission) audit.Event {
	return s.recorder.New(p.GrantedBy, p.PatientID, audit.ActionGrant, map[string]string{
		audit.MetaKind:         "temporary",
		audit.MetaPermissionID: p.ID,
		audit.MetaGranteeID:    p.AccessorID,
		audit.MetaScope:        string(p.Scope),
		audit.MetaSource:       string(p.Source),
		audit.MetaExpiresAt:    p.ExpiresAt.Format(time.RFC3339Nano),
	})
}

// Revoke: revocar un permiso ya revocado o ya vencido es un no-op.
func (s *Service) Revoke(ctx context.Context, id, actorID string) error {
	id = strings.TrimSpace(id)
	actorID = strings.TrimSpace(actorID)
	if id == "" || actorID == "" {
		return accesserr.Validation("permission id and actor are required")
	}

	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return accesserr.Passthrough(err)
	}

	now := s.now()
	if !p.ValidAt(now) {
		return nil
	}

	ev := s.recorder.New(actorID, p.PatientID, audit.ActionRevoke, map[string]string{
		audit.MetaKind:         "temporary",
		audit.MetaPermissionID: p.ID,
		audit.MetaGranteeID:    p.AccessorID,
		audit.MetaScope:        string(p.Scope),
	})
	if _, err := s.repo.Revoke(ctx, p.ID, now, ev); err != nil {
		return accesserr.Passthrough(err)
	}
	return nil
}

// IsValid no muta nada: es función del estado guardado y del reloj.
func (s *Service) IsValid(ctx context.Context, id string) (bool, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return p.ValidAt(s.now()), nil
}

func (s *Service) Get(ctx context.Context, id string) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, accesserr.Validation("permission id required")
	}
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Permission{}, accesserr.Passthrough(err)
	}
	return p, nil
}

func (s *Service) ValidFor(ctx context.Context, patientID, accessorID string) ([]Permission, error) {
	patientID = strings.TrimSpace(patientID)
	accessorID = strings.TrimSpace(accessorID)
	if patientID == "" || accessorID == "" {
		return nil, accesserr.Validation("patient and accessor are required")
	}
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	now := s.now()
	items, err := s.repo.ListValidFor(ctx, patientID, accessorID, now)
	if err != nil {
		return nil, accesserr.Storage(err)
	}

	// El repo ya filtra, pero la validez se recalcula acá igual.
	out := items[:0]
	for _, p := range items {
		if p.ValidAt(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]Permission, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, accesserr.Validation("patient id required")
	}
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, accesserr.Storage(err)
	}
	return items, nil
}

// SweepExpired es mantenimiento: marca filas vencidas y emite un evento
// expire por fila. Idempotente.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	now := s.now()
	n, err := s.repo.MarkExpired(ctx, now, func(p Permission) audit.Event {
		return s.recorder.New("system", p.PatientID, audit.ActionExpire, map[string]string{
			audit.MetaKind:         "temporary",
			audit.MetaPermissionID: p.ID,
			audit.MetaGranteeID:    p.AccessorID,
			audit.MetaReason:       "sweep",
		})
	})
	if err != nil {
		return 0, accesserr.Storage(err)
	}
	return n, nil
}
