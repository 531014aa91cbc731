package webhook

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpt/internal/adapters"
	"helpt/internal/models"
)

type call struct {
	method    string
	workspace string
	originID  string
}

type fakeAdapter struct {
	calls []call
	err   error
	panic bool
}

func (f *fakeAdapter) SyncWorkspaces(_ context.Context, originID string) (*adapters.Report, error) {
	f.calls = append(f.calls, call{method: "SyncWorkspaces", originID: originID})
	if f.panic {
		var seen map[string]bool
		seen[originID] = true
	}
	return &adapters.Report{}, f.err
}

func (f *fakeAdapter) SyncTasks(_ context.Context, ws *models.Workspace, originID string) (*adapters.Report, error) {
	f.calls = append(f.calls, call{method: "SyncTasks", workspace: ws.OriginID, originID: originID})
	if f.panic {
		var seen map[string]bool
		seen[originID] = true
	}
	return &adapters.Report{}, f.err
}

func (f *fakeAdapter) SaveUsers(context.Context, []adapters.UserRecord, bool) error { return nil }
func (f *fakeAdapter) RegisterWebhook(context.Context, string) error               { return nil }
func (f *fakeAdapter) RemoveWebhook(context.Context, string) error                 { return nil }
func (f *fakeAdapter) ClearWebhooks(context.Context) error                         { return nil }

var errNotFound = errors.New("not found")

type fakeResolver struct {
	sources    map[string]*models.DataSource
	workspaces map[string]*models.Workspace
}

func (f *fakeResolver) DataSourceByOrganization(_ context.Context, typ models.ProviderType, org string) (*models.DataSource, error) {
	ds, ok := f.sources[string(typ)+"/"+org]
	if !ok {
		return nil, errNotFound
	}
	return ds, nil
}

func (f *fakeResolver) WorkspaceByOrigin(_ context.Context, typ models.ProviderType, originID string) (*models.Workspace, *models.DataSource, error) {
	ws, ok := f.workspaces[string(typ)+"/"+originID]
	if !ok {
		return nil, nil, errNotFound
	}
	for _, ds := range f.sources {
		if ds.ID == ws.DataSourceID {
			return ws, ds, nil
		}
	}
	return nil, nil, errNotFound
}

func setup(t *testing.T) (http.Handler, *fakeAdapter) {
	t.Helper()
	h, adapter, _ := setupWithLog(t)
	return h, adapter
}

func setupWithLog(t *testing.T) (http.Handler, *fakeAdapter, *bytes.Buffer) {
	t.Helper()
	resolver := &fakeResolver{
		sources: map[string]*models.DataSource{
			"github/acme":   {ID: 1, Name: "gh", Type: models.ProviderGitHub, Organization: "acme"},
			"trello/acme":   {ID: 2, Name: "tr", Type: models.ProviderTrello, Organization: "acme"},
			"github/globex": {ID: 3, Name: "gh-globex", Type: models.ProviderGitHub, Organization: "globex"},
		},
		workspaces: map[string]*models.Workspace{
			"github/77":  {ID: 10, DataSourceID: 1, OriginID: "77", Name: "api"},
			"trello/b1":  {ID: 11, DataSourceID: 2, OriginID: "b1", Name: "Roadmap"},
			"github/999": {ID: 12, DataSourceID: 3, OriginID: "999", Name: "foreign"},
		},
	}
	adapter := &fakeAdapter{}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	srv := NewServer(resolver, func(*models.DataSource) (adapters.Adapter, error) { return adapter, nil }, WithLogger(logger))
	return srv.Routes(), adapter, &logs
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func githubHeaders(event string) map[string]string {
	return map[string]string{"X-GitHub-Event": event, "Content-Type": "application/json"}
}

func TestHealthz(t *testing.T) {
	h, _ := setup(t)
	rec := do(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestGitHubRequestValidation(t *testing.T) {
	h, adapter := setup(t)

	tests := []struct {
		name    string
		headers map[string]string
		body    string
		code    int
		reply   string
	}{
		{"missing event header", nil, `{}`, http.StatusBadRequest, "GitHub event type missing"},
		{"ping", githubHeaders("ping"), `{}`, http.StatusOK, "pong"},
		{"unsupported event", githubHeaders("push"), `{}`, http.StatusBadRequest, ""},
		{"invalid json", githubHeaders("issues"), `{not json`, http.StatusBadRequest, "Invalid JSON received"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/webhooks/github/", tt.body, tt.headers)
			assert.Equal(t, tt.code, rec.Code)
			if tt.reply != "" {
				assert.Equal(t, tt.reply, rec.Body.String())
			}
		})
	}
	assert.Empty(t, adapter.calls)
}

func TestGitHubIssuesEventSyncsSingleTask(t *testing.T) {
	h, adapter := setup(t)
	body := `{"action": "edited", "organization": {"login": "acme"}, "repository": {"id": 77}, "issue": {"number": 5}}`

	rec := do(h, http.MethodPost, "/webhooks/github/", body, githubHeaders("issues"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	require.Len(t, adapter.calls, 1)
	assert.Equal(t, call{method: "SyncTasks", workspace: "77", originID: "5"}, adapter.calls[0])
}

func TestGitHubRepositoryEventSyncsWorkspaces(t *testing.T) {
	h, adapter := setup(t)
	body := `{"action": "created", "organization": {"login": "acme"}, "repository": {"id": 78}}`

	rec := do(h, http.MethodPost, "/webhooks/github/", body, githubHeaders("repository"))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, adapter.calls, 1)
	assert.Equal(t, call{method: "SyncWorkspaces"}, adapter.calls[0])
}

func TestGitHubDispatchErrorsAnswerOK(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown organization", `{"organization": {"login": "other"}, "repository": {"id": 77}, "issue": {"number": 5}}`},
		{"unknown repository", `{"organization": {"login": "acme"}, "repository": {"id": 1}, "issue": {"number": 5}}`},
		{"repository of another data source", `{"organization": {"login": "acme"}, "repository": {"id": 999}, "issue": {"number": 5}}`},
		{"missing issue", `{"organization": {"login": "acme"}, "repository": {"id": 77}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, adapter := setup(t)
			rec := do(h, http.MethodPost, "/webhooks/github/", tt.body, githubHeaders("issues"))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Server error", rec.Body.String())
			assert.Empty(t, adapter.calls)
		})
	}

	h, adapter := setup(t)
	adapter.err = errors.New("remote down")
	rec := do(h, http.MethodPost, "/webhooks/github/", `{"organization": {"login": "acme"}}`, githubHeaders("repository"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Server error", rec.Body.String())
}

func TestGitHubRejectsRepositoryOfAnotherDataSource(t *testing.T) {
	h, adapter, logs := setupWithLog(t)
	body := `{"organization": {"login": "acme"}, "repository": {"id": 999}, "issue": {"number": 5}}`

	rec := do(h, http.MethodPost, "/webhooks/github/", body, githubHeaders("issues"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Server error", rec.Body.String())
	assert.Empty(t, adapter.calls)
	assert.Contains(t, logs.String(), "does not belong to data source gh")
}

func TestDispatchPanicAnswersOK(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		body    string
	}{
		{
			"github issue",
			"/webhooks/github/",
			githubHeaders("issues"),
			`{"organization": {"login": "acme"}, "repository": {"id": 77}, "issue": {"number": 5}}`,
		},
		{
			"trello card",
			"/webhooks/trello/",
			nil,
			`{"model": {"id": "b1"}, "action": {"type": "updateCard", "data": {"card": {"id": "c9"}}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, adapter, logs := setupWithLog(t)
			adapter.panic = true

			rec := do(h, http.MethodPost, tt.path, tt.body, tt.headers)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Server error", rec.Body.String())
			require.Len(t, adapter.calls, 1)
			assert.Contains(t, logs.String(), "panic during dispatch")
		})
	}
}

func TestTrelloValidationRequests(t *testing.T) {
	h, adapter := setup(t)
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		rec := do(h, method, "/webhooks/trello/", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}
	rec := do(h, http.MethodPost, "/webhooks/trello/", "{nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, adapter.calls)
}

func TestTrelloEventDispatch(t *testing.T) {
	tests := []struct {
		name string
		body string
		want call
	}{
		{
			"card action",
			`{"model": {"id": "b1", "name": "Roadmap"}, "action": {"type": "updateCard", "data": {"card": {"id": "c9"}, "list": {"id": "L1"}}}}`,
			call{method: "SyncTasks", workspace: "b1", originID: "c9"},
		},
		{
			"list action",
			`{"model": {"id": "b1"}, "action": {"type": "updateList", "data": {"list": {"id": "L1"}}}}`,
			call{method: "SyncWorkspaces", originID: "b1"},
		},
		{
			"board action",
			`{"model": {"id": "b1"}, "action": {"type": "updateBoard", "data": {"board": {"id": "b1"}}}}`,
			call{method: "SyncWorkspaces", originID: "b1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, adapter := setup(t)
			rec := do(h, http.MethodPost, "/webhooks/trello/", tt.body, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, adapter.calls, 1)
			assert.Equal(t, tt.want, adapter.calls[0])
		})
	}
}

func TestTrelloCardWithoutIDAnswersOK(t *testing.T) {
	h, adapter, logs := setupWithLog(t)
	body := `{"model": {"id": "b1"}, "action": {"type": "updateCard", "data": {"card": {"name": "x"}}}}`

	rec := do(h, http.MethodPost, "/webhooks/trello/", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Server error", rec.Body.String())
	assert.Empty(t, adapter.calls)
	assert.Contains(t, logs.String(), "card event without id")
}

func TestTrelloUnknownBoardAnswersOK(t *testing.T) {
	h, adapter := setup(t)
	rec := do(h, http.MethodPost, "/webhooks/trello/", `{"model": {"id": "zz"}, "action": {"data": {}}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Server error", rec.Body.String())
	assert.Empty(t, adapter.calls)
}
