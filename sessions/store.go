package sessions

import (
	"context"
	"errors"
	"time"
)

var (
	// a live session already holds the requested code
	ErrAlreadyExists = errors.New("session code already exists")

	// no live session under the requested code
	ErrNotFound = errors.New("session not found")

	// the second slot is already occupied
	ErrSessionFull = errors.New("session is full")

	// a connection attempted to join its own session
	ErrSelfJoin = errors.New("cannot join own session")

	// the connection occupies neither slot of the session
	ErrNotAParticipant = errors.New("connection is not a session participant")

	// the connection already occupies a slot in another live session
	ErrAlreadyInSession = errors.New("connection already belongs to a session")
)

// Store owns all live session records. It is the only mutable shared state;
// every mutation on a single code is atomic with respect to other mutations
// on that code. Implementations: memory (default), postgres, redis.
type Store interface {
	// atomically reserves code and creates a session with creatorID in the
	// first slot. Returns ErrAlreadyExists if a live session holds the code,
	// ErrAlreadyInSession if creatorID is already in a session.
	Create(ctx context.Context, code, creatorID string) (*Session, error)

	// retrieves a session by code. Returns ErrNotFound if absent.
	Get(ctx context.Context, code string) (*Session, error)

	// fills the second slot with joinerID. Returns ErrNotFound, ErrSessionFull,
	// ErrSelfJoin, or ErrAlreadyInSession; on success the session is paired.
	Join(ctx context.Context, code, joinerID string) (*Session, error)

	// records the latest location for whichever slot connID occupies.
	// Returns ErrNotFound or ErrNotAParticipant.
	UpdateLocation(ctx context.Context, code, connID string, lat, lng float64) error

	// deletes the session. Removing an absent code is a no-op, so concurrent
	// removals of the same session are harmless.
	Remove(ctx context.Context, code string) error

	// deletes the session only if connID occupies a slot, as one atomic step,
	// so a stale caller cannot delete a session its code was reissued to.
	// Returns ErrNotFound or ErrNotAParticipant.
	RemoveIfParticipant(ctx context.Context, code, connID string) error

	// returns the codes of every live session connID participates in
	FindByParticipant(ctx context.Context, connID string) ([]string, error)

	// removes every session older than maxAge and returns the removed codes
	SweepOlderThan(ctx context.Context, maxAge time.Duration) ([]string, error)

	// returns the number of live sessions
	Count(ctx context.Context) (int, error)

	// releases any underlying connections
	Close() error
}
