package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/tickethub/internal/domain/attendee"
	"github.com/geocoder89/tickethub/internal/domain/registration"
)

// AttendeesRepo keeps attendee identities for the life of the process. It is used
// when no database is configured, so ids are stable only until restart.
type AttendeesRepo struct {
	mu    sync.RWMutex
	items map[string]attendee.Attendee // id -> attendee
	byKey map[string]string            // email|name -> id
}

func NewAttendeesRepo() *AttendeesRepo {
	return &AttendeesRepo{
		items: make(map[string]attendee.Attendee),
		byKey: make(map[string]string),
	}
}

func (r *AttendeesRepo) Ensure(_ context.Context, name, email string) (attendee.Attendee, error) {
	a := attendee.New(name, email)
	key := a.Email + "|" + a.Name

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[key]; ok {
		return r.items[id], nil
	}
	r.items[a.ID] = a
	r.byKey[key] = a.ID
	return a, nil
}

func (r *AttendeesRepo) GetByID(_ context.Context, id string) (attendee.Attendee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return attendee.Attendee{}, attendee.ErrNotFound
	}
	return a, nil
}

func (r *AttendeesRepo) UpdateStatus(_ context.Context, id string, ticket, email registration.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return attendee.ErrNotFound
	}
	a.TicketStatus = ticket.String()
	a.EmailStatus = email.String()
	a.UpdatedAt = time.Now().UTC()
	r.items[id] = a
	return nil
}

func (r *AttendeesRepo) Ping(context.Context) error { return nil }
