package deadline

import (
	"context"
	"testing"
	"time"
)

func TestEnsure_AddsDeadlineWhenMissing(t *testing.T) {
	ctx, cancel := Ensure(context.Background(), time.Second)
	defer cancel()

	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected deadline to be set")
	}
}

func TestEnsure_KeepsCallerDeadline(t *testing.T) {
	parent, cancelParent := context.WithTimeout(context.Background(), time.Hour)
	defer cancelParent()
	want, _ := parent.Deadline()

	ctx, cancel := Ensure(parent, time.Second)
	defer cancel()

	got, _ := ctx.Deadline()
	if !got.Equal(want) {
		t.Fatalf("expected caller deadline %s, got %s", want, got)
	}
}
