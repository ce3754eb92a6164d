package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres-backed session store. Per-code serialization comes from row
// locking: every read-modify-write runs in a transaction that selects the
// session row FOR UPDATE.
type PostgresStore struct {
	db *pgxpool.Pool
}

// creates a Postgres-backed session store and ensures the schema exists
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(ctx, querySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure sessions schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Create(ctx context.Context, code, creatorID string) (*Session, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// hold the advisory lock for creatorID so a concurrent create or join by
	// the same connection cannot slip between the check and the insert
	if _, err := tx.Exec(ctx, queryLockParticipant, creatorID); err != nil {
		return nil, fmt.Errorf("failed to lock participant: %w", err)
	}

	var inSession bool
	if err := tx.QueryRow(ctx, queryParticipantExists, creatorID).Scan(&inSession); err != nil {
		return nil, fmt.Errorf("failed to check participant membership: %w", err)
	}

	if inSession {
		return nil, ErrAlreadyInSession
	}

	session, err := scanSession(tx.QueryRow(ctx, queryCreateSession, code, creatorID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyExists
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit session creation: %w", err)
	}

	return session, nil
}

func (p *PostgresStore) Get(ctx context.Context, code string) (*Session, error) {
	session, err := scanSession(p.db.QueryRow(ctx, queryGetSession, code))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (p *PostgresStore) Join(ctx context.Context, code, joinerID string) (*Session, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// advisory lock before the row lock, same order as Create
	if _, err := tx.Exec(ctx, queryLockParticipant, joinerID); err != nil {
		return nil, fmt.Errorf("failed to lock participant: %w", err)
	}

	session, err := scanSession(tx.QueryRow(ctx, queryGetSessionForUpdate, code))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}

	if session.JoinerID != "" {
		return nil, ErrSessionFull
	}

	if joinerID == session.CreatorID {
		return nil, ErrSelfJoin
	}

	var inSession bool
	if err := tx.QueryRow(ctx, queryParticipantExists, joinerID).Scan(&inSession); err != nil {
		return nil, fmt.Errorf("failed to check participant membership: %w", err)
	}

	if inSession {
		return nil, ErrAlreadyInSession
	}

	if _, err := tx.Exec(ctx, querySetJoiner, code, joinerID); err != nil {
		return nil, fmt.Errorf("failed to set second slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit join: %w", err)
	}

	session.JoinerID = joinerID

	return session, nil
}

func (p *PostgresStore) UpdateLocation(ctx context.Context, code, connID string, lat, lng float64) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	session, err := scanSession(tx.QueryRow(ctx, queryGetSessionForUpdate, code))

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}

	var query string

	switch connID {
	case session.CreatorID:
		query = queryUpdateCreatorLocation
	case session.JoinerID:
		query = queryUpdateJoinerLocation
	default:
		return ErrNotAParticipant
	}

	if _, err := tx.Exec(ctx, query, code, lat, lng); err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit location update: %w", err)
	}

	return nil
}

func (p *PostgresStore) Remove(ctx context.Context, code string) error {
	if _, err := p.db.Exec(ctx, queryRemoveSession, code); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	return nil
}

func (p *PostgresStore) RemoveIfParticipant(ctx context.Context, code, connID string) error {
	var removed string

	err := p.db.QueryRow(ctx, queryRemoveIfParticipant, code, connID).Scan(&removed)

	if errors.Is(err, pgx.ErrNoRows) {
		// the guarded delete itself is atomic; this lookup only picks the
		// sentinel for the caller's logging
		if _, getErr := p.Get(ctx, code); getErr != nil {
			return getErr
		}

		return ErrNotAParticipant
	}

	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	return nil
}

func (p *PostgresStore) FindByParticipant(ctx context.Context, connID string) ([]string, error) {
	rows, err := p.db.Query(ctx, queryFindByParticipant, connID)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions by participant: %w", err)
	}
	defer rows.Close()

	codes := make([]string, 0)

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan session code: %w", err)
		}

		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session codes: %w", err)
	}

	return codes, nil
}

func (p *PostgresStore) SweepOlderThan(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge)

	rows, err := p.db.Query(ctx, querySweepOlderThan, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	defer rows.Close()

	removed := make([]string, 0)

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan removed code: %w", err)
		}

		removed = append(removed, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read removed codes: %w", err)
	}

	return removed, nil
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int

	if err := p.db.QueryRow(ctx, queryCountSessions).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return count, nil
}

func (p *PostgresStore) Close() error {
	p.db.Close()
	return nil
}

// scans a session row with nullable second-slot and location columns
func scanSession(row pgx.Row) (*Session, error) {
	var (
		session                                      Session
		joinerID                                     *string
		creatorLat, creatorLng, joinerLat, joinerLng *float64
	)

	err := row.Scan(
		&session.Code,
		&session.CreatorID,
		&joinerID,
		&creatorLat,
		&creatorLng,
		&joinerLat,
		&joinerLng,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if joinerID != nil {
		session.JoinerID = *joinerID
	}

	if creatorLat != nil && creatorLng != nil {
		session.CreatorLocation = &Location{Lat: *creatorLat, Lng: *creatorLng}
	}

	if joinerLat != nil && joinerLng != nil {
		session.JoinerLocation = &Location{Lat: *joinerLat, Lng: *joinerLng}
	}

	return &session, nil
}
