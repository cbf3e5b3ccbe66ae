package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/tickethub/internal/domain/attendee"
	"github.com/geocoder89/tickethub/internal/domain/registration"
)

func TestAttendeesRepo_EnsureIsStable(t *testing.T) {
	ctx := context.Background()
	r := NewAttendeesRepo()

	a, err := r.Ensure(ctx, "Asha Rao", "Asha@Example.com")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	b, err := r.Ensure(ctx, " Asha Rao ", "asha@example.com ")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("expected the same id, got %q and %q", a.ID, b.ID)
	}

	c, _ := r.Ensure(ctx, "Asha R.", "asha@example.com")
	if c.ID == a.ID {
		t.Fatalf("a different name must get a different id")
	}
}

func TestAttendeesRepo_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	r := NewAttendeesRepo()

	a, _ := r.Ensure(ctx, "Asha Rao", "asha@example.com")
	if err := r.UpdateStatus(ctx, a.ID, registration.StatusGenerated, registration.StatusSent); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := r.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.TicketStatus != "Generated" || got.EmailStatus != "Sent" {
		t.Fatalf("unexpected statuses %+v", got)
	}

	if err := r.UpdateStatus(ctx, "missing", registration.StatusFailed, registration.StatusEmpty); !errors.Is(err, attendee.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
