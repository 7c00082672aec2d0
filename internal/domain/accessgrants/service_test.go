package accessgrants

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"patient-records-access/internal/domain/accesserr"
	"patient-records-access/internal/domain/audit"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

type testRepo struct {
	byID   map[string]Grant
	events []audit.Event
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Grant{}}
}

func (r *testRepo) Create(ctx context.Context, g Grant, ev audit.Event) error {
	if g.ID == "" {
		return errors.New("repo: id required")
	}
	if _, ok := r.byID[g.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[g.ID] = g
	r.events = append(r.events, ev)
	return nil
}

func (r *testRepo) Revoke(ctx context.Context, id, actorID string, at time.Time, ev audit.Event) (bool, error) {
	g, ok := r.byID[id]
	if !ok {
		return false, accesserr.ErrNotFound
	}
	if g.RevokedAt != nil {
		return false, nil
	}
	g.RevokedAt = &at
	g.RevokedBy = &actorID
	r.byID[id] = g
	r.events = append(r.events, ev)
	return true, nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Grant, error) {
	g, ok := r.byID[id]
	if !ok {
		return Grant{}, accesserr.ErrNotFound
	}
	return g, nil
}

func (r *testRepo) ListActiveByPatient(ctx context.Context, patientID string) ([]Grant, error) {
	out := make([]Grant, 0)
	for _, g := range r.byID {
		if g.GranterID == patientID && g.Active() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *testRepo) ListActiveFor(ctx context.Context, patientID, granteeID string) ([]Grant, error) {
	out := make([]Grant, 0)
	for _, g := range r.byID {
		if g.GranterID == patientID && g.GranteeID == granteeID && g.Active() {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *testRepo) countEvents(action audit.Action) int {
	n := 0
	for _, e := range r.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func newTestService(repo *testRepo, now *time.Time) *Service {
	clockFn := func() time.Time { return *now }
	rec := audit.NewRecorder(nil, clockFn)
	return NewService(repo, rec, WithClock(clockFn))
}

// -------------------------
// Tests
// -------------------------

func TestService_Grant_RejectsSelfGrant(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newTestRepo(), &now)

	_, err := svc.Grant(context.Background(), GrantInput{
		GranterID:  "patient-1",
		GranteeID:  "patient-1",
		EntityType: EntityIndividual,
		Level:      LevelViewRecords,
	})
	if !errors.Is(err, accesserr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestService_Grant_RejectsUnknownLevelAndEntity(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newTestRepo(), &now)

	_, err := svc.Grant(context.Background(), GrantInput{
		GranterID:  "patient-1",
		GranteeID:  "hospital-1",
		EntityType: EntityHospital,
		Level:      Level(42),
	})
	if !errors.Is(err, accesserr.ErrValidation) {
		t.Fatalf("expected ErrValidation for level, got %v", err)
	}

	_, err = svc.Grant(context.Background(), GrantInput{
		GranterID:  "patient-1",
		GranteeID:  "hospital-1",
		EntityType: EntityType("clinic"),
		Level:      LevelViewRecords,
	})
	if !errors.Is(err, accesserr.ErrValidation) {
		t.Fatalf("expected ErrValidation for entity type, got %v", err)
	}
}

func TestService_Grant_WritesOneAuditEvent(t *testing.T) {
	repo := newTestRepo()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	g, err := svc.Grant(context.Background(), GrantInput{
		GranterID:  "patient-1",
		GranteeID:  "hospital-1",
		EntityType: EntityHospital,
		Level:      LevelViewRecords,
	})
	if err != nil {
		t.Fatalf("Grant returned error: %v", err)
	}
	if g.CreatedAt != now {
		t.Fatalf("expected CreatedAt to be now")
	}
	if repo.countEvents(audit.ActionGrant) != 1 {
		t.Fatalf("expected exactly 1 grant event, got %d", repo.countEvents(audit.ActionGrant))
	}
	ev := repo.events[0]
	if ev.Metadata[audit.MetaGrantID] != g.ID || ev.Metadata[audit.MetaLevel] != "view_records" {
		t.Fatalf("unexpected metadata %#v", ev.Metadata)
	}
}

func TestService_Revoke_IdempotentWithSingleEvent(t *testing.T) {
	repo := newTestRepo()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)

	g, err := svc.Grant(context.Background(), GrantInput{
		GranterID:  "patient-1",
		GranteeID:  "hospital-1",
		EntityType: EntityHospital,
		Level:      LevelViewRecords,
	})
	if err != nil {
		t.Fatalf("Grant error: %v", err)
	}

	now = now.Add(time.Minute)
	if err := svc.Revoke(context.Background(), g.ID, "patient-1"); err != nil {
		t.Fatalf("Revoke #1 error: %v", err)
	}
	if err := svc.Revoke(context.Background(), g.ID, "patient-1"); err != nil {
		t.Fatalf("Revoke #2 error: %v", err)
	}

	if n := repo.countEvents(audit.ActionRevoke); n != 1 {
		t.Fatalf("expected 1 revoke event, got %d", n)
	}

	stored := repo.byID[g.ID]
	if stored.RevokedAt == nil || !stored.RevokedAt.Equal(now) {
		t.Fatalf("expected RevokedAt = %s, got %v", now, stored.RevokedAt)
	}
}

func TestService_Revoke_NotFound(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newTestRepo(), &now)

	err := svc.Revoke(context.Background(), "missing", "patient-1")
	if !errors.Is(err, accesserr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListActive_MostRecentFirst_SkipsRevoked(t *testing.T) {
	repo := newTestRepo()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(repo, &now)
	ctx := context.Background()

	first, _ := svc.Grant(ctx, GrantInput{GranterID: "p", GranteeID: "h-1", EntityType: EntityHospital, Level: LevelViewSummary})
	now = now.Add(time.Minute)
	second, _ := svc.Grant(ctx, GrantInput{GranterID: "p", GranteeID: "h-2", EntityType: EntityHospital, Level: LevelViewRecords})
	now = now.Add(time.Minute)
	third, _ := svc.Grant(ctx, GrantInput{GranterID: "p", GranteeID: "d-1", EntityType: EntityIndividual, Level: LevelFullAccess})

	if err := svc.Revoke(ctx, second.ID, "p"); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}

	items, err := svc.ListActive(ctx, "p")
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 active grants, got %d", len(items))
	}
	if items[0].ID != third.ID || items[1].ID != first.ID {
		t.Fatalf("expected most recent first, got %s, %s", items[0].ID, items[1].ID)
	}
}

func TestHighestLevel_PicksMaxAmongDuplicates(t *testing.T) {
	revokedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	grants := []Grant{
		{ID: "a", Level: LevelViewSummary},
		{ID: "b", Level: LevelFullAccess, RevokedAt: &revokedAt},
		{ID: "c", Level: LevelViewRecords},
	}

	g, ok := HighestLevel(grants)
	if !ok || g.ID != "c" {
		t.Fatalf("expected grant c, got %#v ok=%v", g, ok)
	}

	if _, ok := HighestLevel(nil); ok {
		t.Fatalf("expected no winner for empty set")
	}
}

func TestParseLevel_Ordering(t *testing.T) {
	order := []string{"view_summary", "view_records", "emergency_access", "full_access"}
	prev := LevelNone
	for _, name := range order {
		l, ok := ParseLevel(name)
		if !ok {
			t.Fatalf("expected %s to parse", name)
		}
		if l <= prev {
			t.Fatalf("expected %s > %s", l, prev)
		}
		prev = l
	}
	if _, ok := ParseLevel("admin"); ok {
		t.Fatalf("expected admin to be rejected")
	}
}
