package exporter

import (
	"context"
	"testing"
)

func TestRegistry_CancelTriggersContext(t *testing.T) {
	r := NewRegistry()

	ctx, id, release, err := r.Register(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	if id == "" {
		t.Fatal("expected a generated id")
	}
	if !r.Cancel(id) {
		t.Fatal("expected cancel to find the export")
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("cancel must fire the export context")
	}
}

func TestRegistry_CallerSuppliedID(t *testing.T) {
	r := NewRegistry()

	_, id, release, err := r.Register(context.Background(), "my-export")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	if id != "my-export" {
		t.Errorf("expected caller id to be kept, got %q", id)
	}
}

func TestRegistry_DuplicateIDRejected(t *testing.T) {
	r := NewRegistry()

	ctx1, _, release1, err := r.Register(context.Background(), "dup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release1()

	if _, _, _, err := r.Register(context.Background(), "dup"); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}

	// The running export keeps its cancel func.
	if !r.Cancel("dup") {
		t.Fatal("first export must stay cancellable")
	}
	select {
	case <-ctx1.Done():
	default:
		t.Error("cancel must fire the first export's context")
	}
}

func TestRegistry_CancelUnknownID(t *testing.T) {
	r := NewRegistry()
	if r.Cancel("nope") {
		t.Error("cancelling an unknown id must report false")
	}
}

func TestRegistry_ReleaseRemoves(t *testing.T) {
	r := NewRegistry()

	_, id, release, err := r.Register(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	if r.Cancel(id) {
		t.Error("released export must no longer be cancellable")
	}
	if len(r.Active()) != 0 {
		t.Errorf("expected no active exports, got %v", r.Active())
	}
}
