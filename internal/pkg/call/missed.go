package call

import (
	"context"
	"errors"
	"time"
)

// Signaling errors surfaced to the caller. Invalid-state transitions are never
// errors; they are swallowed to tolerate duplicate and late client events.
var (
	// ErrUnreachable: the callee has no live connection. The missed-call path
	// has already been engaged when this is returned.
	ErrUnreachable = errors.New("call: callee unreachable")

	// ErrBusy: one of the parties already owns a live call session.
	ErrBusy = errors.New("call: user busy")
)

// MissedCall is the durable note of a call attempt that could not be
// delivered live. It is replayed to the callee on next connect and destroyed
// on drain; repeated attempts from the same caller are not deduplicated.
type MissedCall struct {
	ID         string    `db:"id"`
	CalleeID   string    `db:"callee_id"`
	CallerID   string    `db:"caller_id"`
	CallerName string    `db:"caller_name"`
	IsVideo    bool      `db:"is_video"`
	CreatedAt  time.Time `db:"created_at"`
}

// MissedCallStore is the durable per-user queue of undeliverable call
// attempts.
//
// Drain is all-or-nothing: it returns and clears every pending record for the
// user in one call, so a second consecutive drain yields nothing. Delivery to
// the client after a drain is at-most-once; a crash between drain and client
// receipt loses the notice, which is an accepted weak guarantee.
type MissedCallStore interface {
	Record(ctx context.Context, rec MissedCall) error
	Drain(ctx context.Context, calleeID string) ([]MissedCall, error)
}
