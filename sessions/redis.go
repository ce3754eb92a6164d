package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keySession     = "waypair:session:%s"
	keyParticipant = "waypair:participant:%s"
	keyByAge       = "waypair:sessions:by_age"

	// optimistic transaction retries before giving up
	maxTxRetries = 3
)

// Redis-backed session store. Every mutation runs as an optimistic WATCH
// transaction covering the session key and the participant keys it touches,
// so concurrent mutations of the same code or the same connection serialize
// while unrelated codes proceed independently.
type RedisStore struct {
	client *redis.Client
}

// creates a Redis-backed session store from a URL
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func sessionKey(code string) string {
	return fmt.Sprintf(keySession, code)
}

func participantKey(connID string) string {
	return fmt.Sprintf(keyParticipant, connID)
}

func (r *RedisStore) Create(ctx context.Context, code, creatorID string) (*Session, error) {
	session := &Session{
		Code:      code,
		CreatorID: creatorID,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	// the watch covers both the code reservation and the membership check:
	// a concurrent create of the same code, or any session the creator
	// enters meanwhile, invalidates the transaction
	err = r.watch(ctx, func(tx *redis.Tx) error {
		inSession, err := isParticipant(ctx, tx, creatorID)
		if err != nil {
			return err
		}

		if inSession {
			return ErrAlreadyInSession
		}

		_, err = tx.Get(ctx, sessionKey(code)).Result()
		if err == nil {
			return ErrAlreadyExists
		}

		if !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to check session code: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(code), data, 0)
			pipe.ZAdd(ctx, keyByAge, redis.Z{Score: float64(session.CreatedAt.Unix()), Member: code})
			pipe.Set(ctx, participantKey(creatorID), code, 0)
			return nil
		})

		return err
	}, sessionKey(code), participantKey(creatorID))
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (r *RedisStore) Get(ctx context.Context, code string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(code)).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisStore) Join(ctx context.Context, code, joinerID string) (*Session, error) {
	var joined *Session

	// the joiner's participant key is watched alongside the session: a
	// session the joiner enters concurrently invalidates the membership check
	err := r.mutateSession(ctx, code, func(tx *redis.Tx, session *Session) error {
		if session.JoinerID != "" {
			return ErrSessionFull
		}

		if joinerID == session.CreatorID {
			return ErrSelfJoin
		}

		inSession, err := isParticipant(ctx, tx, joinerID)
		if err != nil {
			return err
		}

		if inSession {
			return ErrAlreadyInSession
		}

		session.JoinerID = joinerID
		joined = session

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(code), data, 0)
			pipe.Set(ctx, participantKey(joinerID), code, 0)
			return nil
		})

		return err
	}, participantKey(joinerID))
	if err != nil {
		return nil, err
	}

	return joined, nil
}

func (r *RedisStore) UpdateLocation(ctx context.Context, code, connID string, lat, lng float64) error {
	return r.mutateSession(ctx, code, func(tx *redis.Tx, session *Session) error {
		switch connID {
		case session.CreatorID:
			session.CreatorLocation = &Location{Lat: lat, Lng: lng}
		case session.JoinerID:
			session.JoinerLocation = &Location{Lat: lat, Lng: lng}
		default:
			return ErrNotAParticipant
		}

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(code), data, 0)
			return nil
		})

		return err
	})
}

func (r *RedisStore) Remove(ctx context.Context, code string) error {
	err := r.mutateSession(ctx, code, func(tx *redis.Tx, session *Session) error {
		return deleteSession(ctx, tx, session)
	})

	if errors.Is(err, ErrNotFound) {
		return nil
	}

	return err
}

func (r *RedisStore) RemoveIfParticipant(ctx context.Context, code, connID string) error {
	return r.mutateSession(ctx, code, func(tx *redis.Tx, session *Session) error {
		if !session.HasParticipant(connID) {
			return ErrNotAParticipant
		}

		return deleteSession(ctx, tx, session)
	})
}

func (r *RedisStore) FindByParticipant(ctx context.Context, connID string) ([]string, error) {
	code, err := r.client.Get(ctx, participantKey(connID)).Result()

	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find sessions by participant: %w", err)
	}

	return []string{code}, nil
}

func (r *RedisStore) SweepOlderThan(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	codes, err := r.client.ZRangeByScore(ctx, keyByAge, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	removed := make([]string, 0, len(codes))

	for _, code := range codes {
		if err := r.Remove(ctx, code); err != nil {
			return removed, err
		}

		removed = append(removed, code)
	}

	return removed, nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	count, err := r.client.ZCard(ctx, keyByAge).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return int(count), nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// runs fn as an optimistic transaction over the given keys, retrying when a
// concurrent write invalidates the watch
func (r *RedisStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := r.client.Watch(ctx, fn, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return fmt.Errorf("too many concurrent mutations on %v", keys)
}

// loads the session under a watch on its key plus extraKeys and hands it to
// fn; the session fn observes cannot change before the transaction commits
func (r *RedisStore) mutateSession(ctx context.Context, code string, fn func(tx *redis.Tx, session *Session) error, extraKeys ...string) error {
	keys := append([]string{sessionKey(code)}, extraKeys...)

	return r.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, sessionKey(code)).Result()

		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}

		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		var session Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		return fn(tx, &session)
	}, keys...)
}

// queues deletion of a session and all its index entries. The session key is
// watched by every caller, so the participant keys deleted here always match
// the slots the committed session actually holds.
func deleteSession(ctx context.Context, tx *redis.Tx, session *Session) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(session.Code))
		pipe.ZRem(ctx, keyByAge, session.Code)
		pipe.Del(ctx, participantKey(session.CreatorID))

		if session.JoinerID != "" {
			pipe.Del(ctx, participantKey(session.JoinerID))
		}

		return nil
	})

	return err
}

// reports whether connID already occupies a slot in any session; callers
// watch the participant key so the answer holds until their commit
func isParticipant(ctx context.Context, tx *redis.Tx, connID string) (bool, error) {
	_, err := tx.Get(ctx, participantKey(connID)).Result()

	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to check participant membership: %w", err)
	}

	return true, nil
}
