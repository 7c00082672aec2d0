package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"patient-records-access/internal/domain/accesserr"
	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/emergency"
	"patient-records-access/internal/domain/temporaryaccess"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func event(id string, action audit.Action, patientID string) audit.Event {
	return audit.Event{ID: id, ActorID: patientID, SubjectPatientID: patientID, Action: action, Timestamp: t0}
}

func TestGrantCreate_RollsBackWhenAuditFails(t *testing.T) {
	s := NewStore()
	s.failAudit = errors.New("audit disk full")

	err := s.AccessGrants().Create(context.Background(), accessgrants.Grant{ID: "g1", GranterID: "p1", GranteeID: "h1"}, event("e1", audit.ActionGrant, "p1"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, err := s.AccessGrants().GetByID(context.Background(), "g1"); !errors.Is(err, accesserr.ErrNotFound) {
		t.Fatalf("grant must not exist without its audit event, got %v", err)
	}
	if len(s.events) != 0 {
		t.Fatalf("no events expected")
	}
}

func TestGrantRevoke_Conditional(t *testing.T) {
	s := NewStore()
	repo := s.AccessGrants()
	ctx := context.Background()

	_ = repo.Create(ctx, accessgrants.Grant{ID: "g1", GranterID: "p1", GranteeID: "h1", CreatedAt: t0}, event("e1", audit.ActionGrant, "p1"))

	ok, err := repo.Revoke(ctx, "g1", "p1", t0.Add(time.Minute), event("e2", audit.ActionRevoke, "p1"))
	if err != nil || !ok {
		t.Fatalf("first revoke: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Revoke(ctx, "g1", "p1", t0.Add(2*time.Minute), event("e3", audit.ActionRevoke, "p1"))
	if err != nil || ok {
		t.Fatalf("second revoke should be a no-op: ok=%v err=%v", ok, err)
	}

	g, _ := repo.GetByID(ctx, "g1")
	if g.RevokedAt == nil || !g.RevokedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("revokedAt must keep the first value, got %v", g.RevokedAt)
	}
	if len(s.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(s.events))
	}
	if _, err := repo.Revoke(ctx, "nope", "p1", t0, event("e4", audit.ActionRevoke, "p1")); !errors.Is(err, accesserr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveByPatient_NewestFirst(t *testing.T) {
	s := NewStore()
	repo := s.AccessGrants()
	ctx := context.Background()

	_ = repo.Create(ctx, accessgrants.Grant{ID: "old", GranterID: "p1", GranteeID: "h1", CreatedAt: t0}, event("e1", audit.ActionGrant, "p1"))
	_ = repo.Create(ctx, accessgrants.Grant{ID: "new", GranterID: "p1", GranteeID: "h2", CreatedAt: t0.Add(time.Hour)}, event("e2", audit.ActionGrant, "p1"))
	_ = repo.Create(ctx, accessgrants.Grant{ID: "other", GranterID: "p2", GranteeID: "h1", CreatedAt: t0}, event("e3", audit.ActionGrant, "p2"))

	items, _ := repo.ListActiveByPatient(ctx, "p1")
	if len(items) != 2 || items[0].ID != "new" || items[1].ID != "old" {
		t.Fatalf("unexpected order: %+v", items)
	}
}

func TestCanceledContextWritesNothing(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Temporary().Create(ctx, temporaryaccess.Permission{ID: "t1"}, event("e1", audit.ActionGrant, "p1"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(s.temporary) != 0 || len(s.events) != 0 {
		t.Fatalf("nothing should be written")
	}
}

func issueToken(t *testing.T, s *Store, code string, ttl time.Duration) emergency.Token {
	t.Helper()
	tok := emergency.Token{ID: "tok-" + code, Token: code, PatientID: "p1", IssuedAt: t0, ExpiresAt: t0.Add(ttl), IsActive: true}
	if err := s.Emergency().Create(context.Background(), tok, event("issue-"+code, audit.ActionEmergencyIssue, "p1")); err != nil {
		t.Fatalf("create token: %v", err)
	}
	return tok
}

func redemption(code, actor string, at time.Time) emergency.Redemption {
	return emergency.Redemption{
		Token:   code,
		ActorID: actor,
		At:      at,
		Permission: temporaryaccess.Permission{
			ID: "perm-" + actor, PatientID: "p1", AccessorID: actor, Scope: temporaryaccess.ScopeFull,
			GrantedAt: at, ExpiresAt: at.Add(time.Hour),
		},
		Events: []audit.Event{
			event("redeem-"+actor, audit.ActionEmergencyRedeem, "p1"),
			event("grant-"+actor, audit.ActionGrant, "p1"),
		},
	}
}

func TestRedeem_ExactlyOneWinner(t *testing.T) {
	s := NewStore()
	issueToken(t, s, "AAAA-BBBB-CCCC", 15*time.Minute)
	repo := s.Emergency()

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := "medic-" + time.Duration(i).String()
			ok, err := repo.Redeem(context.Background(), redemption("AAAA-BBBB-CCCC", actor, t0.Add(time.Minute)))
			if err != nil {
				t.Errorf("redeem: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if len(s.temporary) != 1 {
		t.Fatalf("expected one permission, got %d", len(s.temporary))
	}
}

func TestRedeem_ExpiredTokenLoses(t *testing.T) {
	s := NewStore()
	issueToken(t, s, "AAAA-BBBB-CCCC", time.Second)

	ok, err := s.Emergency().Redeem(context.Background(), redemption("AAAA-BBBB-CCCC", "a", t0.Add(time.Second)))
	if err != nil || ok {
		t.Fatalf("redeem at expires_at must fail: ok=%v err=%v", ok, err)
	}
}

func TestActiveExists_MatchesUniquenessOfCreate(t *testing.T) {
	s := NewStore()
	issueToken(t, s, "AAAA-BBBB-CCCC", time.Second)
	repo := s.Emergency()

	// Vencido pero sin barrer: Create lo rechazaría, así que sigue ocupado.
	taken, err := repo.ActiveExists(context.Background(), "AAAA-BBBB-CCCC")
	if err != nil || !taken {
		t.Fatalf("expired unswept token must count as taken: taken=%v err=%v", taken, err)
	}

	if _, err := repo.MarkExpired(context.Background(), t0.Add(time.Minute), func(tok emergency.Token) audit.Event {
		return event("exp-"+tok.ID, audit.ActionEmergencyExpire, tok.PatientID)
	}); err != nil {
		t.Fatalf("mark expired: %v", err)
	}
	taken, err = repo.ActiveExists(context.Background(), "AAAA-BBBB-CCCC")
	if err != nil || taken {
		t.Fatalf("swept token must free the value: taken=%v err=%v", taken, err)
	}
}

func TestRedeem_AuditFailureKeepsTokenUsable(t *testing.T) {
	s := NewStore()
	issueToken(t, s, "AAAA-BBBB-CCCC", time.Minute)

	s.failAudit = errors.New("boom")
	if _, err := s.Emergency().Redeem(context.Background(), redemption("AAAA-BBBB-CCCC", "a", t0)); err == nil {
		t.Fatalf("expected error")
	}
	tok, _ := s.Emergency().GetByToken(context.Background(), "AAAA-BBBB-CCCC")
	if !tok.IsActive || tok.UsedAt != nil || len(s.temporary) != 0 {
		t.Fatalf("failed redeem must leave no effect: %+v", tok)
	}

	s.failAudit = nil
	ok, err := s.Emergency().Redeem(context.Background(), redemption("AAAA-BBBB-CCCC", "a", t0))
	if err != nil || !ok {
		t.Fatalf("retry should win: ok=%v err=%v", ok, err)
	}
}

func TestEmergencyMarkExpired_Idempotent(t *testing.T) {
	s := NewStore()
	issueToken(t, s, "AAAA-AAAA-AAAA", time.Minute)
	issueToken(t, s, "BBBB-BBBB-BBBB", time.Hour)

	mk := func(tok emergency.Token) audit.Event {
		return event("exp-"+tok.ID, audit.ActionEmergencyExpire, tok.PatientID)
	}
	n, err := s.Emergency().MarkExpired(context.Background(), t0.Add(10*time.Minute), mk)
	if err != nil || n != 1 {
		t.Fatalf("expected 1, got %d %v", n, err)
	}
	n, _ = s.Emergency().MarkExpired(context.Background(), t0.Add(10*time.Minute), mk)
	if n != 0 {
		t.Fatalf("second sweep should mark nothing, got %d", n)
	}
}

func TestAudit_ListByPatientIsACopy(t *testing.T) {
	s := NewStore()
	e := event("e1", audit.ActionGrant, "p1")
	e.Metadata = map[string]string{"k": "v"}
	if err := s.Audit().Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}

	items, _ := s.Audit().ListByPatient(context.Background(), "p1")
	items[0].Metadata["k"] = "tampered"

	again, _ := s.Audit().ListByPatient(context.Background(), "p1")
	if again[0].Metadata["k"] != "v" {
		t.Fatalf("stored event was mutated")
	}
}

func TestAudit_RejectsUnknownAction(t *testing.T) {
	s := NewStore()
	if err := s.Audit().Append(context.Background(), event("e1", "delete", "p1")); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
