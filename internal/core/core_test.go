package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	mem "patient-records-access/internal/adapters/storage/memory"
	"patient-records-access/internal/core"
	"patient-records-access/internal/domain/accesserr"
	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/emergency"
	"patient-records-access/internal/domain/temporaryaccess"
	"patient-records-access/internal/platform/clock"
)

func newCore(t *testing.T) (*core.Core, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := core.New(core.Deps{Store: mem.NewStore(), Clock: clk})
	return c, clk
}

func TestEmergencyTimeline(t *testing.T) {
	ctx := context.Background()
	c, clk := newCore(t)

	tok, err := c.Emergency.Issue(ctx, emergency.IssueInput{PatientID: "P", TTL: time.Second})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clk.Advance(500 * time.Millisecond)
	h, err := c.Emergency.Redeem(ctx, tok.Token, "A")
	if err != nil {
		t.Fatalf("A redeem: %v", err)
	}
	if h.PatientID != "P" || h.ActorID != "A" {
		t.Fatalf("unexpected handle: %+v", h)
	}

	clk.Advance(100 * time.Millisecond)
	if _, err := c.Emergency.Redeem(ctx, tok.Token, "B"); !errors.Is(err, accesserr.ErrTokenAlreadyUsed) {
		t.Fatalf("B expected already used, got %v", err)
	}

	clk.Advance(900 * time.Millisecond)
	other, err := c.Emergency.Issue(ctx, emergency.IssueInput{PatientID: "P"})
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}

	clk.Advance(500 * time.Millisecond)
	if _, err := c.Emergency.Redeem(ctx, other.Token, "C"); err != nil {
		t.Fatalf("C redeem: %v", err)
	}

	for actor, want := range map[string]bool{"A": true, "B": false, "C": true} {
		d, err := c.Facade.Check(ctx, "P", actor)
		if err != nil {
			t.Fatalf("check %s: %v", actor, err)
		}
		if d.Allows(accessgrants.LevelEmergencyAccess) != want {
			t.Fatalf("actor %s: allows=%v want %v (%+v)", actor, !want, want, d)
		}
	}
}

func TestGrantRevokeCheck_Denied(t *testing.T) {
	ctx := context.Background()
	c, _ := newCore(t)

	g, err := c.Grants.Grant(ctx, accessgrants.GrantInput{
		GranterID:  "P",
		GranteeID:  "H",
		EntityType: accessgrants.EntityHospital,
		Level:      accessgrants.LevelViewRecords,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	d, err := c.Facade.Check(ctx, "P", "H")
	if err != nil || d.Denied || d.Level != accessgrants.LevelViewRecords {
		t.Fatalf("before revoke: %+v err=%v", d, err)
	}

	if err := c.Grants.Revoke(ctx, g.ID, "P"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	d, err = c.Facade.Check(ctx, "P", "H")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Denied {
		t.Fatalf("expected denied, got %+v", d)
	}
}

func TestConcurrentRedeem_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	c, _ := newCore(t)

	tok, err := c.Emergency.Issue(ctx, emergency.IssueInput{PatientID: "P"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const n = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		badErrs []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := c.Emergency.Redeem(ctx, tok.Token, fmt.Sprintf("responder-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, accesserr.ErrInvalidToken):
			default:
				badErrs = append(badErrs, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if len(badErrs) > 0 {
		t.Fatalf("unexpected errors: %v", badErrs)
	}

	evs, err := c.Recorder.QueryByPatient(ctx, "P")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	redeems := 0
	for _, e := range evs {
		if e.Action == audit.ActionEmergencyRedeem {
			redeems++
		}
	}
	if redeems != 1 {
		t.Fatalf("expected one emergency_redeem event, got %d", redeems)
	}
}

func TestCheck_MaxAcrossStores(t *testing.T) {
	ctx := context.Background()
	c, clk := newCore(t)

	if _, err := c.Grants.Grant(ctx, accessgrants.GrantInput{
		GranterID: "P", GranteeID: "D", EntityType: accessgrants.EntityIndividual, Level: accessgrants.LevelViewSummary,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	p, err := c.Temporary.GrantTemporary(ctx, temporaryaccess.GrantInput{
		PatientID: "P", AccessorID: "D", Scope: temporaryaccess.ScopeFull, TTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("temporary: %v", err)
	}

	d, err := c.Facade.Check(ctx, "P", "D")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Level != accessgrants.LevelFullAccess || d.SourceID != p.ID {
		t.Fatalf("expected full_access from temporary, got %+v", d)
	}

	clk.Advance(2 * time.Hour)
	d, err = c.Facade.Check(ctx, "P", "D")
	if err != nil {
		t.Fatalf("check after expiry: %v", err)
	}
	if d.Level != accessgrants.LevelViewSummary {
		t.Fatalf("expected fallback to grant, got %+v", d)
	}
}

func TestAuditIsMonotonic(t *testing.T) {
	ctx := context.Background()
	c, clk := newCore(t)

	g, err := c.Grants.Grant(ctx, accessgrants.GrantInput{
		GranterID: "P", GranteeID: "H", EntityType: accessgrants.EntityHospital, Level: accessgrants.LevelFullAccess,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	clk.Advance(time.Second)
	tok, err := c.Emergency.Issue(ctx, emergency.IssueInput{PatientID: "P"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clk.Advance(time.Second)
	if _, err := c.Emergency.Redeem(ctx, tok.Token, "E"); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	clk.Advance(time.Second)
	if err := c.Grants.Revoke(ctx, g.ID, "P"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	evs, err := c.Recorder.QueryByPatient(ctx, "P")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	want := []audit.Action{
		audit.ActionGrant,
		audit.ActionEmergencyIssue,
		audit.ActionEmergencyRedeem,
		audit.ActionGrant,
		audit.ActionRevoke,
	}
	if len(evs) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(evs), evs)
	}
	for i, e := range evs {
		if e.Action != want[i] {
			t.Fatalf("event %d: got %s want %s", i, e.Action, want[i])
		}
		if i > 0 && e.Timestamp.Before(evs[i-1].Timestamp) {
			t.Fatalf("event %d goes back in time", i)
		}
	}
}

func TestSweepTasks(t *testing.T) {
	ctx := context.Background()
	c, clk := newCore(t)

	if _, err := c.Emergency.Issue(ctx, emergency.IssueInput{PatientID: "P", TTL: time.Minute}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Temporary.GrantTemporary(ctx, temporaryaccess.GrantInput{
		PatientID: "P", AccessorID: "D", Scope: temporaryaccess.ScopePartial, TTL: time.Minute,
	}); err != nil {
		t.Fatalf("temporary: %v", err)
	}
	clk.Advance(2 * time.Minute)

	got := map[string]int{}
	for _, task := range c.SweepTasks() {
		n, err := task.Run(ctx)
		if err != nil {
			t.Fatalf("%s: %v", task.Name, err)
		}
		got[task.Name] = n
	}
	if got["temporary_permissions"] != 1 || got["emergency_tokens"] != 1 {
		t.Fatalf("unexpected sweep counts: %v", got)
	}
}

func TestNew_DefaultsToSystemClock(t *testing.T) {
	c := core.New(core.Deps{Store: mem.NewStore()})

	g, err := c.Grants.Grant(context.Background(), accessgrants.GrantInput{
		GranterID: "P", GranteeID: "H", EntityType: accessgrants.EntityHospital, Level: accessgrants.LevelViewSummary,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if g.CreatedAt.Location() != time.UTC || time.Since(g.CreatedAt) > time.Minute {
		t.Fatalf("expected a current UTC timestamp, got %s", g.CreatedAt)
	}
}
