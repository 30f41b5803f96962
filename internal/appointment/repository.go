package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

// Ledger is the store of appointment records. Append, ReplaceStatus and
// LinkReschedule are the only mutations; everything else composes them.
type Ledger interface {
	All(ctx context.Context) ([]Appointment, error)
	// ByDate excludes cancelled records but keeps rescheduled ones.
	ByDate(ctx context.Context, date interval.Date) ([]Appointment, error)
	ByEmail(ctx context.Context, email string) ([]Appointment, error)
	ByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	Append(ctx context.Context, a *Appointment) error
	ReplaceStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) (*Appointment, error)
	LinkReschedule(ctx context.Context, oldID, newID uuid.UUID, at time.Time) (*Appointment, error)
}

// Registry is the store of blackout periods.
type Registry interface {
	// Block fails with ErrAlreadyBlocked on an exact duplicate.
	Block(ctx context.Context, b *BlockedSlot) error
	Unblock(ctx context.Context, id uuid.UUID) error
	ForDate(ctx context.Context, date interval.Date) ([]BlockedSlot, error)
	All(ctx context.Context) ([]BlockedSlot, error)
}

// Store gives the service both repositories and a transaction boundary.
// Writes made through the Store passed to fn become visible together when
// fn returns nil and are discarded otherwise.
type Store interface {
	Appointments() Ledger
	Blackouts() Registry
	InTx(ctx context.Context, fn func(tx Store) error) error
}
