package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medkit/medinventory"
	"github.com/medkit/medinventory/internal/fakedb"
	"github.com/medkit/medinventory/internal/fakerest"
	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/models"
)

func run(t *testing.T, store *fakedb.DB, args ...string) (string, error) {
	t.Helper()
	t.Setenv(medinventory.ConfigFileEnv, "")

	var out bytes.Buffer
	a := &app{
		out: &out,
		newConnection: func(*medinventory.Config) (connection.Connection, error) {
			return store, nil
		},
	}
	cmd := newRootCmd(a)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, a.close(context.Background()))
	return out.String(), err
}

func seedStore() *fakedb.DB {
	store := fakedb.New()
	supplies := store.Seed("supplies",
		fakedb.Row{"name": "Gauze", "type": "dressing", "location": "A1", "is_deleted": false},
		fakedb.Row{"name": "Saline", "type": "fluid", "location": "B2", "is_deleted": false},
	)
	store.Seed("inventory",
		fakedb.Row{"supply_id": supplies[0], "quantity": 6, "is_deleted": false, "expiry_date": time.Now().Add(-24 * time.Hour)},
		fakedb.Row{"supply_id": supplies[1], "quantity": 3, "is_deleted": false, "expiry_date": time.Now().Add(24 * time.Hour)},
	)
	return store
}

func TestSuppliesList(t *testing.T) {
	out, err := run(t, seedStore(), "supplies", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "active (2 total)")
	assert.Contains(t, out, "Gauze")
	assert.Contains(t, out, "Saline")
}

func TestSuppliesDelete(t *testing.T) {
	store := seedStore()

	out, err := run(t, store, "supplies", "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "supply 1 deleted\n", out)

	out, err = run(t, store, "supplies", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Gauze")

	_, err = run(t, store, "supplies", "delete", "x")
	require.Error(t, err)
}

func TestInventoryExpired_JSON(t *testing.T) {
	out, err := run(t, seedStore(), "inventory", "expired", "--json")
	require.NoError(t, err)

	var got struct {
		Loading bool    `json:"loading"`
		Error   *string `json:"error"`
		Expired struct {
			Count int64              `json:"count"`
			Data  []models.Inventory `json:"data"`
		} `json:"expired"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Loading)
	assert.Nil(t, got.Error)
	assert.EqualValues(t, 1, got.Expired.Count)
	require.Len(t, got.Expired.Data, 1)
	assert.Equal(t, 6, got.Expired.Data[0].Quantity)
}

func TestInventoryList_failure(t *testing.T) {
	store := seedStore()
	store.AddStubResponse(fakedb.ErrorStubResponse(fakedb.MatchTable(fakedb.MethodSelect, "inventory"), "", "JWT expired"))

	out, err := run(t, store, "inventory", "list", "--json")
	require.Error(t, err)
	assert.Equal(t, "JWT expired", err.Error())
	assert.Contains(t, out, `"error": "JWT expired"`)
}

func TestStockTake(t *testing.T) {
	store := seedStore()
	store.SetSession(&connection.Session{Identity: models.NewIdentity()})

	out, err := run(t, store, "stock", "take", "2", "2")
	require.NoError(t, err)
	assert.Equal(t, "took 2 from inventory 2\n", out)

	_, err = run(t, store, "stock", "take", "2", "2")
	require.Error(t, err)
	assert.Equal(t, "insufficient stock for inventory row 2", err.Error())

	_, err = run(t, store, "stock", "take", "2", "0")
	require.Error(t, err)
}

func TestStockTake_noSession(t *testing.T) {
	_, err := run(t, seedStore(), "stock", "take", "1", "1")
	require.ErrorIs(t, err, constants.ErrNoSession)
}

func TestLogsMine(t *testing.T) {
	store := seedStore()
	me := models.NewIdentity()
	store.Seed("logs",
		fakedb.Row{"inventory_id": 1, "user_id": me.String(), "quantity": -1, "is_deleted": false},
		fakedb.Row{"inventory_id": 1, "user_id": models.NewIdentity().String(), "quantity": -1, "is_deleted": false},
	)

	out, err := run(t, store, "logs", "mine")
	require.NoError(t, err)
	assert.Contains(t, out, "personal (0 total)")

	store.SetSession(&connection.Session{Identity: me})
	out, err = run(t, store, "logs", "mine")
	require.NoError(t, err)
	assert.Contains(t, out, "personal (1 total)")
	assert.Contains(t, out, me.String())
}

func TestRowGet(t *testing.T) {
	store := seedStore()

	out, err := run(t, store, "row", "get", "supplies", "2")
	require.NoError(t, err)
	var s models.Supply
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "Saline", s.Name)

	out, err = run(t, store, "row", "get", "crew", "9")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)

	_, err = run(t, store, "row", "get", "patients", "1")
	require.Error(t, err)
}

func TestSession(t *testing.T) {
	store := fakedb.New()
	out, err := run(t, store, "session")
	require.NoError(t, err)
	assert.Equal(t, "not signed in\n", out)

	id := models.NewIdentity()
	store.SetSession(&connection.Session{Identity: id, Email: "medic@example.org"})
	out, err = run(t, store, "session", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"authenticated":true,"identity":"`+id.String()+`","email":"medic@example.org"}`, out)
}

func TestMigrate_notSupported(t *testing.T) {
	_, err := run(t, fakedb.New(), "migrate")
	require.ErrorIs(t, err, constants.ErrMethodNotAvailable)
}

func TestExecute_exitCodes(t *testing.T) {
	var out, errOut bytes.Buffer

	code := Execute(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "session"}, &out, &errOut)
	assert.Equal(t, ExitUserError, code)
	assert.Contains(t, errOut.String(), "read config")

	errOut.Reset()
	assert.Equal(t, ExitSuccess, Execute(context.Background(), []string{"--version"}, &out, &errOut))
	assert.Empty(t, errOut.String())
}

func TestExecute_invalidPageIsUserError(t *testing.T) {
	srv := httptest.NewServer(fakerest.New(seedStore(), "anon-key"))
	t.Cleanup(srv.Close)
	t.Setenv(medinventory.ConfigFileEnv, "")
	t.Setenv("MEDINV_URL", srv.URL)
	t.Setenv("MEDINV_ANON_KEY", "anon-key")

	var out, errOut bytes.Buffer
	code := Execute(context.Background(), []string{"supplies", "list", "--page", "0"}, &out, &errOut)
	assert.Equal(t, ExitUserError, code)
	assert.Contains(t, errOut.String(), "invalid data fetch options")
}
