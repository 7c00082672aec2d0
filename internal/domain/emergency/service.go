package emergency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"patient-records-access/internal/domain/accesserr"
	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/authorization"
	"patient-records-access/internal/domain/temporaryaccess"
	"patient-records-access/internal/platform/deadline"
	"patient-records-access/internal/platform/logger"
	"patient-records-access/internal/ports/profiles"

	"github.com/google/uuid"
)

const (
	DefaultTokenTTL   = 15 * time.Minute
	DefaultSessionTTL = time.Hour

	maxGenerateAttempts = 5
)

var ErrProfilesNotConfigured = errors.New("emergency profile fetcher not configured")

// Authorizer es el facade visto desde acá.
type Authorizer interface {
	Require(ctx context.Context, patientID, accessorID string, min accessgrants.Level) (authorization.Decision, error)
}

type Service struct {
	repo      Repository
	temporary *temporaryaccess.Service
	recorder  *audit.Recorder
	gen       *Generator

	limiter  AttemptLimiter
	authz    Authorizer
	profiles profiles.ProfileFetcher
	actors   profiles.ActorResolver
	log      logger.Logger

	now        func() time.Time
	timeout    time.Duration
	tokenTTL   time.Duration
	sessionTTL time.Duration
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

func WithEntropy(r io.Reader) Option {
	return func(s *Service) { s.gen = NewGenerator(r) }
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

// WithSessionTTL fija la ventana del permiso temporal que nace de un canje.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

func WithLimiter(l AttemptLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) { s.authz = a }
}

func WithProfileFetcher(f profiles.ProfileFetcher) Option {
	return func(s *Service) { s.profiles = f }
}

func WithActorResolver(r profiles.ActorResolver) Option {
	return func(s *Service) { s.actors = r }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(repo Repository, temporary *temporaryaccess.Service, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		temporary:  temporary,
		recorder:   recorder,
		gen:        NewGenerator(nil),
		log:        logger.Nop(),
		now:        func() time.Time { return time.Now().UTC() },
		tokenTTL:   DefaultTokenTTL,
		sessionTTL: DefaultSessionTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type IssueInput struct {
	PatientID string
	// RequestedBy vacío = el propio paciente.
	RequestedBy string
	// TTL cero = default del servicio.
	TTL time.Duration
}

func (s *Service) Issue(ctx context.Context, in IssueInput) (Token, error) {
	patientID := strings.TrimSpace(in.PatientID)
	requestedBy := strings.TrimSpace(in.RequestedBy)
	if patientID == "" {
		return Token{}, accesserr.Validation("patient id required")
	}
	if in.TTL < 0 {
		return Token{}, accesserr.Validation("ttl must be positive")
	}
	if requestedBy == "" {
		requestedBy = patientID
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.tokenTTL
	}

	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return Token{}, err
	}

	now := s.now()
	t := Token{
		ID:        uuid.NewString(),
		Token:     code,
		PatientID: patientID,
		IssuedBy:  requestedBy,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		IsActive:  true,
	}

	md := map[string]string{
		audit.MetaTokenID:   t.ID,
		audit.MetaExpiresAt: t.ExpiresAt.Format(time.RFC3339Nano),
	}
	s.actorMetadata(ctx, requestedBy, md)
	ev := s.recorder.New(requestedBy, patientID, audit.ActionEmergencyIssue, md)

	if err := s.repo.Create(ctx, t, ev); err != nil {
		return Token{}, accesserr.Storage(err)
	}

	fields := map[string]any{
		"token_id":     t.ID,
		"patient_id":   patientID,
		"requested_by": requestedBy,
		"expires_at":   t.ExpiresAt,
	}
	if name := md[audit.MetaActorName]; name != "" {
		fields["requested_by_name"] = name
	}
	s.log.Info("emergency token issued", fields)
	return t, nil
}

// uniqueCode genera y descarta colisiones contra tokens activos.
func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		code, err := s.gen.Generate()
		if err != nil {
			return "", err
		}
		taken, err := s.repo.ActiveExists(ctx, code)
		if err != nil {
			return "", accesserr.Storage(err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: could not generate a unique token", accesserr.ErrConflict)
}

// Redeem consume el token exactamente una vez. Todas las causas de rechazo
// salen como ErrInvalidToken; quien pierde la carrera recibe
// ErrTokenAlreadyUsed.
func (s *Service) Redeem(ctx context.Context, rawToken, actorID string) (Handle, error) {
	actorID = strings.TrimSpace(actorID)
	code := Normalize(strings.TrimSpace(rawToken))
	if actorID == "" {
		return Handle{}, accesserr.Validation("actor id required")
	}
	if code == "" {
		return Handle{}, accesserr.ErrInvalidToken
	}

	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	if err := s.allow(ctx, actorID); err != nil {
		return Handle{}, err
	}

	t, err := s.repo.GetByToken(ctx, code)
	if errors.Is(err, accesserr.ErrNotFound) {
		return Handle{}, s.reject(actorID, Token{}, reasonUnknown)
	}
	if err != nil {
		return Handle{}, accesserr.Storage(err)
	}

	now := s.now()
	switch {
	case t.UsedAt != nil:
		s.reject(actorID, t, reasonRaceLost)
		return Handle{}, accesserr.ErrTokenAlreadyUsed
	case !t.IsActive:
		return Handle{}, s.reject(actorID, t, reasonInactive)
	case !now.Before(t.ExpiresAt):
		s.expireObserved(ctx, t, now)
		return Handle{}, s.reject(actorID, t, reasonExpired)
	}

	perm, err := s.temporary.Build(temporaryaccess.GrantInput{
		PatientID:  t.PatientID,
		AccessorID: actorID,
		Scope:      temporaryaccess.ScopeFull,
		TTL:        s.sessionTTL,
		GrantedBy:  t.IssuedBy,
	}, temporaryaccess.SourceEmergency)
	if err != nil {
		return Handle{}, err
	}

	md := map[string]string{
		audit.MetaTokenID:      t.ID,
		audit.MetaPermissionID: perm.ID,
		audit.MetaExpiresAt:    perm.ExpiresAt.Format(time.RFC3339Nano),
	}
	s.actorMetadata(ctx, actorID, md)
	redeemEv := s.recorder.New(actorID, t.PatientID, audit.ActionEmergencyRedeem, md)

	won, err := s.repo.Redeem(ctx, Redemption{
		Token:      code,
		ActorID:    actorID,
		At:         now,
		Permission: perm,
		Events:     []audit.Event{redeemEv, s.temporary.GrantEvent(perm)},
	})
	if err != nil {
		// Sin efecto parcial: el token sigue disponible.
		return Handle{}, accesserr.Storage(err)
	}
	if !won {
		s.reject(actorID, t, reasonRaceLost)
		return Handle{}, accesserr.ErrTokenAlreadyUsed
	}

	s.log.Info("emergency token redeemed", map[string]any{
		"token_id":      t.ID,
		"patient_id":    t.PatientID,
		"actor_id":      actorID,
		"permission_id": perm.ID,
	})

	return Handle{
		TokenID:      t.ID,
		PatientID:    t.PatientID,
		ActorID:      actorID,
		PermissionID: perm.ID,
		ExpiresAt:    perm.ExpiresAt,
	}, nil
}

// allow consulta el limitador. Si el backend del limitador falla se deja
// pasar: un canje de emergencia no se bloquea por redis caído.
func (s *Service) allow(ctx context.Context, actorID string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "redeem:"+actorID)
	if err != nil {
		s.log.Warn("redeem limiter unavailable", map[string]any{"actor_id": actorID, "error": err.Error()})
		return nil
	}
	if !ok {
		s.log.Warn("redeem rate limited", map[string]any{"actor_id": actorID})
		return accesserr.ErrRateLimited
	}
	return nil
}

func (s *Service) reject(actorID string, t Token, reason string) error {
	s.log.Warn("emergency redeem rejected", map[string]any{
		"actor_id": actorID,
		"token_id": t.ID,
		"reason":   reason,
	})
	return accesserr.ErrInvalidToken
}

// expireObserved deja constancia de un vencimiento visto en un canje. El
// rechazo no depende de que esto funcione.
func (s *Service) expireObserved(ctx context.Context, t Token, now time.Time) {
	ev := s.expireEvent(t, "observed_at_redeem")
	if _, err := s.repo.Expire(ctx, t.ID, now, ev); err != nil {
		s.log.Warn("could not mark token expired", map[string]any{"token_id": t.ID, "error": err.Error()})
	}
}

func (s *Service) expireEvent(t Token, reason string) audit.Event {
	return s.recorder.New("system", t.PatientID, audit.ActionEmergencyExpire, map[string]string{
		audit.MetaTokenID: t.ID,
		audit.MetaReason:  reason,
	})
}

// FetchProfile pasa por el facade antes de leer: el handle solo sirve
// mientras el permiso temporal siga vigente.
func (s *Service) FetchProfile(ctx context.Context, h Handle) (profiles.EmergencyProfile, error) {
	if s.profiles == nil || s.authz == nil {
		return profiles.EmergencyProfile{}, ErrProfilesNotConfigured
	}
	if _, err := s.authz.Require(ctx, h.PatientID, h.ActorID, accessgrants.LevelEmergencyAccess); err != nil {
		return profiles.EmergencyProfile{}, err
	}

	p, err := s.profiles.FetchEmergencyProfile(ctx, h.PatientID)
	if err != nil {
		return profiles.EmergencyProfile{}, err
	}
	if p.PatientID == "" {
		p.PatientID = h.PatientID
	}
	return p, nil
}

// ListActive es la consulta de "alerta activa": tokens emitidos y todavía
// canjeables.
func (s *Service) ListActive(ctx context.Context, patientID string) ([]Token, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, accesserr.Validation("patient id required")
	}
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	items, err := s.repo.ListActiveByPatient(ctx, patientID, s.now())
	if err != nil {
		return nil, accesserr.Storage(err)
	}
	return items, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]Token, error) {
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

func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ctx, cancel := deadline.Ensure(ctx, s.timeout)
	defer cancel()

	n, err := s.repo.MarkExpired(ctx, s.now(), func(t Token) audit.Event {
		return s.expireEvent(t, "sweep")
	})
	if err != nil {
		return 0, accesserr.Storage(err)
	}
	return n, nil
}

// actorMetadata agrega nombre y rol del actor si hay resolver. Es solo
// metadata: un error se loguea y se sigue.
func (s *Service) actorMetadata(ctx context.Context, actorID string, md map[string]string) {
	if s.actors == nil {
		return
	}
	a, err := s.actors.ResolveActor(ctx, actorID)
	if err != nil {
		s.log.Debug("actor lookup failed", map[string]any{"actor_id": actorID, "error": err.Error()})
		return
	}
	if a.DisplayName != "" {
		md[audit.MetaActorName] = a.DisplayName
	}
	if a.Role != "" {
		md[audit.MetaActorRole] = a.Role
	}
}
