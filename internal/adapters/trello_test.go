package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpt/internal/db"
	"helpt/internal/models"
)

const trelloBoardJSON = `[{
	"id": "b1", "name": "Roadmap", "url": "https://trello.com/b/b1", "closed": false,
	"lists": [
		{"id": "L1", "name": "Done", "pos": 65535, "closed": false},
		{"id": "L2", "name": "Doing", "pos": 131070.5, "closed": false}
	]
}]`

const trelloCardsJSON = `[
	{"id": "c1", "closed": false, "idMembers": ["m1"], "dateLastActivity": "2024-05-01T08:00:00.123Z",
	 "name": "Ship it", "pos": 1, "idList": "L1",
	 "members": [{"id": "m1", "username": "alice", "fullName": "Alice A"}]},
	{"id": "c2", "closed": false, "idMembers": ["m1", "m2"], "dateLastActivity": "2024-05-02T08:00:00Z",
	 "name": "Build it", "pos": 2.5, "idList": "L2",
	 "members": [{"id": "m1", "username": "alice", "fullName": "Alice A"},
	             {"id": "m2", "username": "bob", "fullName": ""}]}
]`

type fakeTrello struct {
	*httptest.Server
	mu      sync.Mutex
	creds   []string
	deleted []string
}

func newFakeTrello(t *testing.T, mux *http.ServeMux) *fakeTrello {
	t.Helper()
	f := &fakeTrello{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.creds = append(f.creds, r.URL.Query().Get("key")+":"+r.URL.Query().Get("token"))
		if r.Method == http.MethodDelete {
			f.deleted = append(f.deleted, r.URL.Path)
		}
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func newTrelloTestAdapter(t *testing.T, store *db.Store, ds *models.DataSource, srv *fakeTrello) Adapter {
	t.Helper()
	a, err := New(ds, store, WithLogger(nil), WithTrelloBaseURL(srv.URL+"/1"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return a
}

func trelloBoardsMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /1/organizations/acme/boards", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("memberships_member"))
		assert.Equal(t, "open", r.URL.Query().Get("lists"))
		writeBody(w, http.StatusOK, trelloBoardJSON)
	})
	mux.HandleFunc("GET /1/boards/b1/cards", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "username,fullName", r.URL.Query().Get("member_fields"))
		writeBody(w, http.StatusOK, trelloCardsJSON)
	})
	return mux
}

func TestTrelloSyncWorkspacesImportsBoardsAndLists(t *testing.T) {
	store := setupStore(t)
	ds := createDataSource(t, store, models.ProviderTrello, "acme")
	ctx := context.Background()

	srv := newFakeTrello(t, trelloBoardsMux(t))
	a := newTrelloTestAdapter(t, store, ds, srv)

	rep, err := a.SyncWorkspaces(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Workspaces.Created)
	assert.Equal(t, 2, rep.Lists.Created)

	list, err := store.Workspaces(ctx, ds.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].URL)
	assert.Equal(t, "https://trello.com/b/b1", *list[0].URL)

	lists, err := store.Lists(ctx, list[0].ID)
	require.NoError(t, err)
	require.Len(t, lists, 2)

	rep, err = a.SyncWorkspaces(ctx, "")
	require.NoError(t, err)
	assert.False(t, rep.Changed())

	for _, c := range srv.creds {
		assert.Equal(t, "k:secret", c)
	}
}

func TestTrelloSyncTasksInheritsListTaskState(t *testing.T) {
	store := setupStore(t)
	ds := createDataSource(t, store, models.ProviderTrello, "acme")
	ctx := context.Background()

	srv := newFakeTrello(t, trelloBoardsMux(t))
	a := newTrelloTestAdapter(t, store, ds, srv)

	_, err := a.SyncWorkspaces(ctx, "")
	require.NoError(t, err)
	list, err := store.Workspaces(ctx, ds.ID)
	require.NoError(t, err)
	ws := list[0]

	lists, err := store.Lists(ctx, ws.ID)
	require.NoError(t, err)
	closed := models.StateClosed
	for _, l := range lists {
		if l.OriginID == "L1" {
			require.NoError(t, store.SetListTaskState(ctx, l.ID, &closed))
		}
	}

	rep, err := a.SyncTasks(ctx, ws, "")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Tasks.Created)
	assert.Equal(t, 2, rep.Users.Created)
	assert.Zero(t, rep.Unresolved)

	tasks := tasksByOrigin(t, store, ws.ID)
	assert.Equal(t, models.StateClosed, tasks["c1"].State)
	assert.Equal(t, models.StateOpen, tasks["c2"].State)
	require.NotNil(t, tasks["c2"].Position)
	assert.InDelta(t, 2.5, *tasks["c2"].Position, 1e-9)

	users, err := store.Users(ctx, ds.ID)
	require.NoError(t, err)
	names := map[string]*string{}
	for _, u := range users {
		names[u.Username] = u.FullName
	}
	require.NotNil(t, names["alice"])
	assert.Equal(t, "Alice A", *names["alice"])
	assert.Nil(t, names["bob"])

	rep, err = a.SyncTasks(ctx, ws, "")
	require.NoError(t, err)
	assert.False(t, rep.Changed(), "resync must be a no-op: %+v", rep)
}

func TestTrelloArchivedCardsAreClosed(t *testing.T) {
	store := setupStore(t)
	ds := createDataSource(t, store, models.ProviderTrello, "acme")
	ctx := context.Background()

	mux := trelloBoardsMux(t)
	mux.HandleFunc("GET /1/cards/c1", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"id": "c1", "closed": true, "idMembers": [], "dateLastActivity": "2024-05-03T08:00:00Z",
			"name": "Ship it", "pos": 1, "idList": "L2", "members": []}`)
	})
	srv := newFakeTrello(t, mux)
	a := newTrelloTestAdapter(t, store, ds, srv)

	_, err := a.SyncWorkspaces(ctx, "")
	require.NoError(t, err)
	list, err := store.Workspaces(ctx, ds.ID)
	require.NoError(t, err)
	ws := list[0]
	_, err = a.SyncTasks(ctx, ws, "")
	require.NoError(t, err)

	rep, err := a.SyncTasks(ctx, ws, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Tasks.Updated)

	tasks := tasksByOrigin(t, store, ws.ID)
	assert.Equal(t, models.StateClosed, tasks["c1"].State)
	assert.Equal(t, models.StateOpen, tasks["c2"].State, "single card sync leaves other cards alone")
	ids, err := store.Assignees(ctx, tasks["c1"].ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTrelloErrorStatus(t *testing.T) {
	store := setupStore(t)
	ds := createDataSource(t, store, models.ProviderTrello, "acme")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /1/organizations/acme/boards", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	})
	srv := newFakeTrello(t, mux)

	_, err := newTrelloTestAdapter(t, store, ds, srv).SyncWorkspaces(context.Background(), "")
	var apiErr *RemoteAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid token", apiErr.Message)
	assert.Equal(t, models.ProviderTrello, apiErr.Provider)
}

func TestTrelloTransportErrorHidesCredentials(t *testing.T) {
	store := setupStore(t)
	ds := createDataSource(t, store, models.ProviderTrello, "acme")

	srv := newFakeTrello(t, http.NewServeMux())
	a := newTrelloTestAdapter(t, store, ds, srv)
	srv.Close()

	_, err := a.SyncWorkspaces(context.Background(), "")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
	assert.NotContains(t, err.Error(), "key=")
	assert.Contains(t, err.Error(), "organizations/acme/boards")
}

func TestTrelloOpenListTaskStateOverridesClosedCard(t *testing.T) {
	store := setupStore(t)
	ds := createDataSource(t, store, models.ProviderTrello, "acme")
	ctx := context.Background()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /1/organizations/acme/boards", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, trelloBoardJSON)
	})
	mux.HandleFunc("GET /1/boards/b1/cards", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `[{"id": "c1", "closed": true, "idMembers": [], "dateLastActivity": "2024-05-01T08:00:00Z",
			"name": "Ship it", "pos": 1, "idList": "L1", "members": []}]`)
	})
	srv := newFakeTrello(t, mux)
	a := newTrelloTestAdapter(t, store, ds, srv)

	_, err := a.SyncWorkspaces(ctx, "")
	require.NoError(t, err)
	list, err := store.Workspaces(ctx, ds.ID)
	require.NoError(t, err)
	ws := list[0]

	lists, err := store.Lists(ctx, ws.ID)
	require.NoError(t, err)
	open := models.StateOpen
	for _, l := range lists {
		if l.OriginID == "L1" {
			require.NoError(t, store.SetListTaskState(ctx, l.ID, &open))
		}
	}

	_, err = a.SyncTasks(ctx, ws, "")
	require.NoError(t, err)
	assert.Equal(t, models.StateOpen, tasksByOrigin(t, store, ws.ID)["c1"].State)

	rep, err := a.SyncTasks(ctx, ws, "")
	require.NoError(t, err)
	assert.False(t, rep.Changed(), "resync must be a no-op: %+v", rep)
}

func TestTrelloWebhooks(t *testing.T) {
	store := setupStore(t)
	ds := createDataSource(t, store, models.ProviderTrello, "acme")
	ctx := context.Background()

	failDelete := true
	var registered []trelloWebhook
	mux := trelloBoardsMux(t)
	mux.HandleFunc("POST /1/tokens/secret/webhooks/{$}", func(w http.ResponseWriter, r *http.Request) {
		var hook trelloWebhook
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&hook))
		registered = append(registered, hook)
		writeBody(w, http.StatusOK, `{"id": "h-`+hook.IDModel+`"}`)
	})
	mux.HandleFunc("GET /1/tokens/secret/webhooks", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `[{"id": "h-b1", "idModel": "b1"}, {"id": "stray", "idModel": "b9"}]`)
	})
	mux.HandleFunc("DELETE /1/tokens/secret/webhooks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if failDelete {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		writeBody(w, http.StatusOK, `{}`)
	})
	srv := newFakeTrello(t, mux)
	a := newTrelloTestAdapter(t, store, ds, srv)

	_, err := a.SyncWorkspaces(ctx, "")
	require.NoError(t, err)

	// Nothing is sync-enabled yet
	require.NoError(t, a.RegisterWebhook(ctx, "https://helpt.example/webhooks/trello/"))
	assert.Empty(t, registered)

	list, err := store.Workspaces(ctx, ds.ID)
	require.NoError(t, err)
	require.NoError(t, store.SetWorkspaceSync(ctx, list[0].ID, true))

	require.NoError(t, a.RegisterWebhook(ctx, "https://helpt.example/webhooks/trello/"))
	require.Len(t, registered, 1)
	assert.Equal(t, "b1", registered[0].IDModel)
	assert.Equal(t, "Roadmap listener", registered[0].Description)

	err = a.RemoveWebhook(ctx, "h-b1")
	var apiErr *RemoteAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.NotContains(t, apiErr.Path, "secret")
	hooks, err := store.Webhooks(ctx, ds.ID)
	require.NoError(t, err)
	assert.Len(t, hooks, 1)

	failDelete = false
	srv.deleted = nil
	require.NoError(t, a.ClearWebhooks(ctx))
	sort.Strings(srv.deleted)
	assert.Equal(t, []string{"/1/tokens/secret/webhooks/h-b1", "/1/tokens/secret/webhooks/stray"}, srv.deleted)
	hooks, err = store.Webhooks(ctx, ds.ID)
	require.NoError(t, err)
	assert.Empty(t, hooks)
}
