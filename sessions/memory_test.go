package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)
	assert.Equal(t, "482913", session.Code)
	assert.Equal(t, "conn-a", session.CreatorID)
	assert.Empty(t, session.JoinerID)
	assert.Nil(t, session.CreatorLocation)
	assert.WithinDuration(t, time.Now(), session.CreatedAt, time.Second)
}

func TestMemoryStoreCreateDuplicateCode(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	_, err = store.Create(ctx, "482913", "conn-b")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryStoreCreateWhileInSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	_, err = store.Create(ctx, "123456", "conn-a")
	assert.ErrorIs(t, err, ErrAlreadyInSession)
}

func TestMemoryStoreGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	session, err := store.Get(ctx, "482913")
	require.NoError(t, err)
	assert.Equal(t, "conn-a", session.CreatorID)

	_, err = store.Get(ctx, "999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	session, err := store.Get(ctx, "482913")
	require.NoError(t, err)

	// mutating the returned record must not touch store state
	session.JoinerID = "conn-intruder"

	fresh, err := store.Get(ctx, "482913")
	require.NoError(t, err)
	assert.Empty(t, fresh.JoinerID)
}

func TestMemoryStoreJoin(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	session, err := store.Join(ctx, "482913", "conn-b")
	require.NoError(t, err)
	assert.Equal(t, "conn-b", session.JoinerID)
	assert.True(t, session.Paired())
}

func TestMemoryStoreJoinErrors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	tests := []struct {
		name    string
		setup   func(t *testing.T)
		code    string
		joiner  string
		wantErr error
	}{
		{
			name:    "unknown code",
			code:    "999999",
			joiner:  "conn-b",
			wantErr: ErrNotFound,
		},
		{
			name:    "self join",
			code:    "482913",
			joiner:  "conn-a",
			wantErr: ErrSelfJoin,
		},
		{
			name: "already in another session",
			setup: func(t *testing.T) {
				_, err := store.Create(ctx, "777777", "conn-c")
				require.NoError(t, err)
			},
			code:    "482913",
			joiner:  "conn-c",
			wantErr: ErrAlreadyInSession,
		},
		{
			name: "session full",
			setup: func(t *testing.T) {
				_, err := store.Join(ctx, "482913", "conn-b")
				require.NoError(t, err)
			},
			code:    "482913",
			joiner:  "conn-d",
			wantErr: ErrSessionFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}

			_, err := store.Join(ctx, tt.code, tt.joiner)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMemoryStoreJoinRejectionDoesNotMutate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	_, err = store.Join(ctx, "482913", "conn-b")
	require.NoError(t, err)

	_, err = store.Join(ctx, "482913", "conn-d")
	require.ErrorIs(t, err, ErrSessionFull)

	session, err := store.Get(ctx, "482913")
	require.NoError(t, err)
	assert.Equal(t, "conn-b", session.JoinerID)
}

func TestMemoryStoreUpdateLocation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	_, err = store.Join(ctx, "482913", "conn-b")
	require.NoError(t, err)

	require.NoError(t, store.UpdateLocation(ctx, "482913", "conn-a", 10.0, 20.0))
	require.NoError(t, store.UpdateLocation(ctx, "482913", "conn-b", -33.9, 151.2))

	session, err := store.Get(ctx, "482913")
	require.NoError(t, err)
	require.NotNil(t, session.CreatorLocation)
	require.NotNil(t, session.JoinerLocation)
	assert.Equal(t, 10.0, session.CreatorLocation.Lat)
	assert.Equal(t, 20.0, session.CreatorLocation.Lng)
	assert.Equal(t, -33.9, session.JoinerLocation.Lat)
}

func TestMemoryStoreUpdateLocationRejectsOutsiders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	err = store.UpdateLocation(ctx, "482913", "conn-stranger", 1.0, 2.0)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	err = store.UpdateLocation(ctx, "999999", "conn-a", 1.0, 2.0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRemoveIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "482913"))
	require.NoError(t, store.Remove(ctx, "482913"))

	_, err = store.Get(ctx, "482913")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRemoveFreesParticipants(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	_, err = store.Join(ctx, "482913", "conn-b")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "482913"))

	// both participants can pair again
	_, err = store.Create(ctx, "111111", "conn-a")
	require.NoError(t, err)

	_, err = store.Join(ctx, "111111", "conn-b")
	require.NoError(t, err)
}

func TestMemoryStoreRemoveIfParticipant(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	_, err = store.Join(ctx, "482913", "conn-b")
	require.NoError(t, err)

	assert.ErrorIs(t, store.RemoveIfParticipant(ctx, "999999", "conn-a"), ErrNotFound)

	require.NoError(t, store.RemoveIfParticipant(ctx, "482913", "conn-b"))

	_, err = store.Get(ctx, "482913")
	assert.ErrorIs(t, err, ErrNotFound)

	// both slots are freed
	_, err = store.Create(ctx, "111111", "conn-a")
	require.NoError(t, err)

	_, err = store.Join(ctx, "111111", "conn-b")
	require.NoError(t, err)
}

func TestMemoryStoreRemoveIfParticipantGuardsReissuedCode(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-old")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "482913"))

	// the code is reissued to another connection
	_, err = store.Create(ctx, "482913", "conn-new")
	require.NoError(t, err)

	// the stale holder cannot delete the new session
	err = store.RemoveIfParticipant(ctx, "482913", "conn-old")
	assert.ErrorIs(t, err, ErrNotAParticipant)

	session, err := store.Get(ctx, "482913")
	require.NoError(t, err)
	assert.Equal(t, "conn-new", session.CreatorID)
}

func TestMemoryStoreFindByParticipant(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	_, err = store.Join(ctx, "482913", "conn-b")
	require.NoError(t, err)

	codes, err := store.FindByParticipant(ctx, "conn-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"482913"}, codes)

	codes, err = store.FindByParticipant(ctx, "conn-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"482913"}, codes)

	codes, err = store.FindByParticipant(ctx, "conn-stranger")
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestMemoryStoreSweepOlderThan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "111111", "conn-old")
	require.NoError(t, err)

	_, err = store.Create(ctx, "222222", "conn-fresh")
	require.NoError(t, err)

	// backdate the first session past the retention window
	store.mu.Lock()
	store.sessions["111111"].CreatedAt = time.Now().Add(-25 * time.Hour)
	store.sessions["222222"].CreatedAt = time.Now().Add(-1 * time.Hour)
	store.mu.Unlock()

	removed, err := store.SweepOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"111111"}, removed)

	_, err = store.Get(ctx, "111111")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "222222")
	assert.NoError(t, err)
}

func TestMemoryStoreCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.Create(ctx, "482913", "conn-a")
	require.NoError(t, err)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
