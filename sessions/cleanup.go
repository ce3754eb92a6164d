package sessions

import (
	"context"
	"time"

	"codeberg.org/waypair/server/internal/logger"
)

const (
	// how often the cleanup service sweeps the store
	DefaultSweepInterval = 1 * time.Hour

	// sessions older than this are removed regardless of activity
	DefaultRetention = 24 * time.Hour
)

// called to notify participants when a session is removed by the sweep
type SessionEnderFunc func(code string, reason string)

// handles age-based expiry of sessions. Runs independently of the pairing
// protocol; both paths remove through the store, and removal is idempotent,
// so racing a protocol-driven removal is harmless.
type CleanupService struct {
	store         Store
	sweepInterval time.Duration
	retention     time.Duration
	sessionEnder  SessionEnderFunc
}

// creates a new cleanup service
func NewCleanupService(
	store Store,
	sweepInterval time.Duration,
	retention time.Duration,
	sessionEnder SessionEnderFunc,
) *CleanupService {
	return &CleanupService{
		store:         store,
		sweepInterval: sweepInterval,
		retention:     retention,
		sessionEnder:  sessionEnder,
	}
}

// begins the cleanup service background loop
func (s *CleanupService) Start(ctx context.Context) {
	logger.Info("starting session cleanup service",
		"sweep_interval", s.sweepInterval,
		"retention", s.retention,
	)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("session cleanup service stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// removes expired sessions and notifies any still-connected participants
func (s *CleanupService) Sweep(ctx context.Context) {
	removed, err := s.store.SweepOlderThan(ctx, s.retention)
	if err != nil {
		logger.ErrorErr(err, "failed to sweep expired sessions")
		return
	}

	if len(removed) == 0 {
		return
	}

	logger.Info("removed expired sessions", "count", len(removed))

	for _, code := range removed {
		if s.sessionEnder != nil {
			s.sessionEnder(code, "session expired")
		}
	}
}
