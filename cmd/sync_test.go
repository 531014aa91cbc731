package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"helpt/internal/db"
	"helpt/internal/models"
)

// setupCLI opens a temp database and a config file pointing the GitHub
// adapter at apiBase
func setupCLI(t *testing.T, apiBase string) string {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	if _, err := db.InitDB(dbPath); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { db.CloseDB() })

	cfgPath := filepath.Join(tmpDir, "config.yaml")
	content := fmt.Sprintf("database:\n  path: %s\ngithub:\n  api_base: %s/\nlog:\n  level: error\n", dbPath, apiBase)
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return cfgPath
}

func execute(t *testing.T, cfgPath string, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	return rootCmd.Execute()
}

func TestSyncCommandsAgainstGitHub(t *testing.T) {
	var mu sync.Mutex
	var auth []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id": 77, "name": "api", "description": "Backend"}]`)
	})
	mux.HandleFunc("GET /repos/acme/api/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "all" {
			t.Errorf("issues state = %q, want all", r.URL.Query().Get("state"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"number": 1, "title": "Crash", "state": "open", "assignees": [],
			"created_at": "2024-03-01T10:00:00Z", "updated_at": "2024-03-01T12:00:00Z"}]`)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	defer srv.Close()

	cfgPath := setupCLI(t, srv.URL)
	ctx := context.Background()
	store := openStore()

	if err := execute(t, cfgPath, "datasource", "add", "gh", "github", "--org", "acme", "--token", "tkn"); err != nil {
		t.Fatalf("datasource add: %v", err)
	}
	ds, err := store.DataSourceByName(ctx, "gh")
	if err != nil {
		t.Fatalf("data source not created: %v", err)
	}
	if ds.Token != "" {
		t.Errorf("token stored in database despite keyring: %q", ds.Token)
	}

	if err := execute(t, cfgPath, "sync", "all"); err != nil {
		t.Fatalf("sync all: %v", err)
	}
	workspaces, err := store.Workspaces(ctx, ds.ID)
	if err != nil {
		t.Fatalf("failed to load workspaces: %v", err)
	}
	if len(workspaces) != 1 || workspaces[0].Name != "api" {
		t.Fatalf("workspaces = %+v, want one named api", workspaces)
	}
	if last, err := db.GetConfig(models.ConfigLastFullSync); err != nil || last == "" {
		t.Errorf("last full sync not recorded: %q, %v", last, err)
	}

	// Workspaces are not task-synced until enabled
	tasks, _ := store.Tasks(ctx, workspaces[0].ID)
	if len(tasks) != 0 {
		t.Fatalf("tasks synced for a disabled workspace: %d", len(tasks))
	}

	if err := execute(t, cfgPath, "workspace", "sync-enable", fmt.Sprint(workspaces[0].ID)); err != nil {
		t.Fatalf("sync-enable: %v", err)
	}
	if err := execute(t, cfgPath, "sync", "tasks"); err != nil {
		t.Fatalf("sync tasks: %v", err)
	}
	tasks, err = store.Tasks(ctx, workspaces[0].ID)
	if err != nil {
		t.Fatalf("failed to load tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].OriginID != "1" || tasks[0].Name != "Crash" {
		t.Errorf("tasks = %+v, want issue #1", tasks)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, a := range auth {
		if a != "token tkn" {
			t.Errorf("Authorization = %q, want keyring token", a)
		}
	}
}

func TestEntryCommands(t *testing.T) {
	cfgPath := setupCLI(t, "http://127.0.0.1:0")
	ctx := context.Background()
	store := openStore()

	ds := &models.DataSource{Name: "local", Type: models.ProviderGitHub, Organization: "acme"}
	if err := store.CreateDataSource(ctx, ds); err != nil {
		t.Fatalf("failed to create data source: %v", err)
	}
	ws := &models.Workspace{DataSourceID: ds.ID, OriginID: "1", Name: "api", State: models.StateOpen}
	if err := store.SaveWorkspace(ctx, ws); err != nil {
		t.Fatalf("failed to create workspace: %v", err)
	}
	task := &models.Task{WorkspaceID: ws.ID, OriginID: "5", Name: "Fix", State: models.StateOpen}
	if err := store.SaveTask(ctx, task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := execute(t, cfgPath, "user", "add", "alice"); err != nil {
		t.Fatalf("user add: %v", err)
	}
	taskID := fmt.Sprint(task.ID)
	if err := execute(t, cfgPath, "entry", "add", "-u", "alice", "-t", taskID, "-d", "2024-05-01", "-m", "90"); err != nil {
		t.Fatalf("entry add: %v", err)
	}

	// Same (user, task, date) is rejected
	err := execute(t, cfgPath, "entry", "add", "-u", "alice", "-t", taskID, "-d", "2024-05-01", "-m", "30")
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("duplicate entry error = %v, want ValidationError", err)
	}
	if _, ok := verr.Fields["non_field_errors"]; !ok {
		t.Errorf("fields = %v, want non_field_errors", verr.Fields)
	}

	entries, err := store.Entries(ctx, db.EntryFilter{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries = %v, %v; want one", entries, err)
	}
	if err := execute(t, cfgPath, "entry", "delete", fmt.Sprint(entries[0].ID)); err != nil {
		t.Fatalf("entry delete: %v", err)
	}
	entries, _ = store.Entries(ctx, db.EntryFilter{})
	if len(entries) != 0 {
		t.Errorf("deleted entry still listed: %v", entries)
	}
}
