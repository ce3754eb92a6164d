package sessions

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping redis store tests")
	}

	store, err := NewRedisStore(context.Background(), url)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() }) //nolint:errcheck

	return store
}

// reserves a code for the test, clearing any residue from earlier runs
func redisTestCode(t *testing.T, store *RedisStore, code string) string {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.Remove(ctx, code))
	t.Cleanup(func() { store.Remove(ctx, code) }) //nolint:errcheck

	return code
}

func TestRedisStoreLifecycle(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	code := redisTestCode(t, store, "910001")
	creator := t.Name() + "-conn-a"
	joiner := t.Name() + "-conn-b"

	_, err := store.Create(ctx, code, creator)
	require.NoError(t, err)

	_, err = store.Create(ctx, code, t.Name()+"-conn-x")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	session, err := store.Join(ctx, code, joiner)
	require.NoError(t, err)
	assert.True(t, session.Paired())

	require.NoError(t, store.UpdateLocation(ctx, code, creator, 10, 20))

	session, err = store.Get(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, session.CreatorLocation)
	assert.Equal(t, 10.0, session.CreatorLocation.Lat)

	require.NoError(t, store.Remove(ctx, code))

	_, err = store.Get(ctx, code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRemoveClearsBothParticipantKeys(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	code := redisTestCode(t, store, "910002")
	next := redisTestCode(t, store, "910003")
	creator := t.Name() + "-conn-a"
	joiner := t.Name() + "-conn-b"

	_, err := store.Create(ctx, code, creator)
	require.NoError(t, err)

	_, err = store.Join(ctx, code, joiner)
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, code))

	codes, err := store.FindByParticipant(ctx, joiner)
	require.NoError(t, err)
	assert.Empty(t, codes)

	// the joiner's slot is genuinely free again
	_, err = store.Create(ctx, next, joiner)
	require.NoError(t, err)
}

func TestRedisStoreConcurrentCreateSingleMembership(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	const workers = 10

	creator := t.Name() + "-conn-a"
	codes := make([]string, workers)

	for i := range workers {
		codes[i] = redisTestCode(t, store, fmt.Sprintf("9101%02d", i))
	}

	var wg sync.WaitGroup
	results := make([]error, workers)

	for i := range workers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			_, results[i] = store.Create(ctx, codes[i], creator)
		}(i)
	}

	wg.Wait()

	// exactly one create wins; the rest see the membership
	succeeded := 0

	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyInSession)
		}
	}

	assert.Equal(t, 1, succeeded)

	held, err := store.FindByParticipant(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestRedisStoreConcurrentJoinAndCreate(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	existing := redisTestCode(t, store, "910201")
	fresh := redisTestCode(t, store, "910202")
	creator := t.Name() + "-conn-a"
	racer := t.Name() + "-conn-b"

	_, err := store.Create(ctx, existing, creator)
	require.NoError(t, err)

	var wg sync.WaitGroup

	var joinErr, createErr error

	wg.Add(2)

	go func() {
		defer wg.Done()
		_, joinErr = store.Join(ctx, existing, racer)
	}()

	go func() {
		defer wg.Done()
		_, createErr = store.Create(ctx, fresh, racer)
	}()

	wg.Wait()

	// the racer ends up in exactly one session
	succeeded := 0

	for _, err := range []error{joinErr, createErr} {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyInSession)
		}
	}

	assert.Equal(t, 1, succeeded)

	held, err := store.FindByParticipant(ctx, racer)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestRedisStoreRemoveIfParticipantGuardsReissuedCode(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	code := redisTestCode(t, store, "910301")
	stale := t.Name() + "-conn-old"
	owner := t.Name() + "-conn-new"

	_, err := store.Create(ctx, code, stale)
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, code))

	_, err = store.Create(ctx, code, owner)
	require.NoError(t, err)

	err = store.RemoveIfParticipant(ctx, code, stale)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	session, err := store.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, owner, session.CreatorID)
}
