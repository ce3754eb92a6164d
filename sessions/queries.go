package sessions

const (
	querySchema = `
		CREATE TABLE IF NOT EXISTS sessions (
			code TEXT PRIMARY KEY,
			creator_id TEXT NOT NULL,
			joiner_id TEXT,
			creator_lat DOUBLE PRECISION,
			creator_lng DOUBLE PRECISION,
			joiner_lat DOUBLE PRECISION,
			joiner_lng DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	sessionColumns = `code, creator_id, joiner_id, creator_lat, creator_lng, joiner_lat, joiner_lng, created_at`

	// ON CONFLICT DO NOTHING makes the reservation atomic: of two concurrent
	// inserts for the same code, exactly one returns a row
	queryCreateSession = `
		INSERT INTO sessions (code, creator_id)
		VALUES ($1, $2)
		ON CONFLICT (code) DO NOTHING
		RETURNING ` + sessionColumns

	queryGetSession = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE code = $1`

	queryGetSessionForUpdate = queryGetSession + `
		FOR UPDATE`

	// serializes membership checks for one connection ID: held until the
	// transaction ends, so two transactions admitting the same connection
	// cannot interleave their check and insert
	queryLockParticipant = `SELECT pg_advisory_xact_lock(hashtext($1))`

	queryParticipantExists = `
		SELECT EXISTS (
			SELECT 1 FROM sessions
			WHERE creator_id = $1 OR joiner_id = $1
		)`

	querySetJoiner = `
		UPDATE sessions
		SET joiner_id = $2
		WHERE code = $1`

	queryUpdateCreatorLocation = `
		UPDATE sessions
		SET creator_lat = $2, creator_lng = $3
		WHERE code = $1`

	queryUpdateJoinerLocation = `
		UPDATE sessions
		SET joiner_lat = $2, joiner_lng = $3
		WHERE code = $1`

	queryRemoveSession = `
		DELETE FROM sessions
		WHERE code = $1`

	queryRemoveIfParticipant = `
		DELETE FROM sessions
		WHERE code = $1 AND (creator_id = $2 OR joiner_id = $2)
		RETURNING code`

	queryFindByParticipant = `
		SELECT code
		FROM sessions
		WHERE creator_id = $1 OR joiner_id = $1`

	querySweepOlderThan = `
		DELETE FROM sessions
		WHERE created_at < $1
		RETURNING code`

	queryCountSessions = `
		SELECT COUNT(*)
		FROM sessions`
)
