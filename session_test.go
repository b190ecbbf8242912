package medinventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medkit/medinventory/internal/fakedb"
	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/models"
)

func TestSession_beforeSignIn(t *testing.T) {
	db, store := newTestDB(t)
	ctx := context.Background()

	var (
		identity models.Identity
		ok       bool
	)
	require.NotPanics(t, func() { identity, ok = db.Session().CurrentIdentity(ctx) })
	assert.False(t, ok)
	assert.True(t, identity.IsZero())
	assert.False(t, db.Session().Valid(ctx))
	assert.Equal(t, SessionStatus{}, db.SessionStatus(ctx))

	assert.Equal(t, 1, store.RequestCount(fakedb.MethodSession))
}

func TestSession_cachedUntilRefresh(t *testing.T) {
	db, store := newTestDB(t)
	ctx := context.Background()

	first := models.NewIdentity()
	store.SetSession(&connection.Session{Identity: first, Email: "nurse@example.org"})

	st := db.SessionStatus(ctx)
	assert.True(t, st.Authenticated)
	assert.Equal(t, first, st.Identity)
	assert.Equal(t, "nurse@example.org", st.Email)

	second := models.NewIdentity()
	store.SetSession(&connection.Session{Identity: second})

	identity, ok := db.Session().CurrentIdentity(ctx)
	require.True(t, ok)
	assert.Equal(t, first, identity)
	assert.Equal(t, 1, store.RequestCount(fakedb.MethodSession))

	assert.Equal(t, second, db.Session().Refresh(ctx).Identity)
	identity, _ = db.Session().CurrentIdentity(ctx)
	assert.Equal(t, second, identity)

	db.Session().Invalidate()
	store.SetSession(nil)
	assert.False(t, db.Session().Valid(ctx))
	assert.Equal(t, 3, store.RequestCount(fakedb.MethodSession))
}

func TestSession_checkFailureIsRecoverable(t *testing.T) {
	db, store := newTestDB(t)
	ctx := context.Background()

	identity := models.NewIdentity()
	store.SetSession(&connection.Session{Identity: identity})
	require.True(t, db.Session().Valid(ctx))

	store.SetSessionError(errors.New("dial tcp: connection refused"))
	st := db.Session().Refresh(ctx)
	assert.False(t, st.Authenticated)
	assert.True(t, st.Identity.IsZero())

	store.SetSession(&connection.Session{Identity: identity})
	assert.True(t, db.Session().Refresh(ctx).Authenticated)
}

func TestSession_checkBoundedByQueryTimeout(t *testing.T) {
	db, store := newTestDB(t, WithQueryTimeout(50*time.Millisecond))
	store.Seed("logs",
		fakedb.Row{"inventory_id": 1, "user_id": models.NewIdentity().String(), "quantity": -1, "is_deleted": false},
	)
	store.AddStubResponse(fakedb.StubResponse{
		Matcher:  fakedb.MatchMethod(fakedb.MethodSession),
		Failures: []fakedb.FailureConfig{{Type: fakedb.FailureHang}},
		Times:    1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	began := time.Now()
	state := FetchOwned(ctx, db, Logs, models.FirstPage())
	assert.Less(t, time.Since(began), time.Second)

	require.NoError(t, state.Err)
	assert.EqualValues(t, 1, state.Active.Count)
	assert.Len(t, state.Active.Data, 1)
	assert.Empty(t, state.Personal.Data)
	assert.False(t, db.SessionStatus(ctx).Authenticated)
}

func TestSession_concurrentUse(t *testing.T) {
	db, store := newTestDB(t)
	ctx := context.Background()
	identity := models.NewIdentity()
	store.SetSession(&connection.Session{Identity: identity})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				db.Session().Refresh(ctx)
				return
			}
			db.Session().Valid(ctx)
			db.Session().CurrentIdentity(ctx)
		}()
	}
	wg.Wait()

	got, ok := db.Session().CurrentIdentity(ctx)
	require.True(t, ok)
	assert.Equal(t, identity, got)
}

func TestSignIn_notSupported(t *testing.T) {
	db, _ := newTestDB(t)

	_, err := db.SignIn(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	require.Error(t, db.SignOut(context.Background()))
}
