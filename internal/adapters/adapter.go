// Package adapters translates GitHub and Trello payloads into common records
// and reconciles them against the local database.
package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"helpt/internal/models"
	"helpt/internal/reconcile"
)

// Adapter is the capability set shared by every provider
type Adapter interface {
	// SyncWorkspaces reconciles every remote workspace of the data source,
	// or only the one identified by originID when it is non-empty.
	SyncWorkspaces(ctx context.Context, originID string) (*Report, error)
	// SyncTasks reconciles the tasks of ws, or only the task identified by
	// originID when it is non-empty.
	SyncTasks(ctx context.Context, ws *models.Workspace, originID string) (*Report, error)
	// SaveUsers upserts remote users. A partial save never deactivates.
	SaveUsers(ctx context.Context, users []UserRecord, partial bool) error
	RegisterWebhook(ctx context.Context, callbackURL string) error
	RemoveWebhook(ctx context.Context, originID string) error
	ClearWebhooks(ctx context.Context) error
}

// Store is the persistence the adapters reconcile against
type Store interface {
	Workspaces(ctx context.Context, dataSourceID uint) ([]*models.Workspace, error)
	SaveWorkspace(ctx context.Context, ws *models.Workspace) error
	Lists(ctx context.Context, workspaceID uint) ([]*models.WorkspaceList, error)
	SaveList(ctx context.Context, l *models.WorkspaceList) error
	Tasks(ctx context.Context, workspaceID uint) ([]*models.Task, error)
	SaveTask(ctx context.Context, t *models.Task) error
	Users(ctx context.Context, dataSourceID uint) ([]*models.DataSourceUser, error)
	SaveUser(ctx context.Context, u *models.DataSourceUser) error
	UserHasAssignments(ctx context.Context, userID uint) (bool, error)
	Assignees(ctx context.Context, taskID uint) ([]uint, error)
	AddAssignments(ctx context.Context, taskID uint, userIDs []uint) error
	RemoveAssignments(ctx context.Context, taskID uint, userIDs []uint) error
	WorkspaceProjects(ctx context.Context, workspaceID uint) ([]models.Project, error)
	Webhooks(ctx context.Context, dataSourceID uint) ([]models.DataSourceWebhook, error)
	CreateWebhook(ctx context.Context, dataSourceID uint, originID string) error
	DeleteWebhook(ctx context.Context, dataSourceID uint, originID string) error
	RecordChange(ctx context.Context, change *models.SyncChange) error
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// WorkspaceRecord is a normalized repository or board
type WorkspaceRecord struct {
	OriginID string
	State    models.WorkState
	Data     reconcile.Values
	Lists    []ListRecord
}

// ListRecord is a normalized Trello list
type ListRecord struct {
	OriginID string
	State    models.WorkState
	Data     reconcile.Values
}

// TaskRecord is a normalized issue or card
type TaskRecord struct {
	OriginID      string
	State         models.WorkState
	AssignedUsers []string
	ListOriginID  string
	Data          reconcile.Values
}

// UserRecord is a normalized assignee or board member
type UserRecord struct {
	OriginID string
	Data     reconcile.Values
}

// Counts tallies what one pass did to an entity kind
type Counts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Closed    int `json:"closed"`
	Unchanged int `json:"unchanged"`
}

// Report summarizes a sync operation
type Report struct {
	Workspaces Counts `json:"workspaces"`
	Lists      Counts `json:"lists"`
	Tasks      Counts `json:"tasks"`
	Users      Counts `json:"users"`
	// Unresolved counts assignee ids that matched no data source user
	Unresolved int `json:"unresolved"`
}

// Changed reports whether the pass created, updated or closed anything
func (r *Report) Changed() bool {
	for _, c := range []Counts{r.Workspaces, r.Lists, r.Tasks, r.Users} {
		if c.Created+c.Updated+c.Closed > 0 {
			return true
		}
	}
	return false
}

// RemoteAPIError is any unexpected status returned by a provider
type RemoteAPIError struct {
	Provider models.ProviderType
	Method   string
	Path     string
	Status   int
	Message  string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s API error: %s %s returned %d: %s", e.Provider, e.Method, e.Path, e.Status, e.Message)
}

// Default provider endpoints
const (
	GitHubAPIBase = "https://api.github.com/"
	TrelloAPIBase = "https://api.trello.com/1/"

	defaultHTTPTimeout = 30 * time.Second
)

// NewHTTPClient returns a pooled client for provider API calls
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

type options struct {
	logger                *slog.Logger
	httpClient            *http.Client
	githubBase            string
	trelloBase            string
	deleteLimit           int
	deactivateUnseenUsers bool
}

// Option configures an adapter
type Option func(*options)

// WithLogger sets a structured logger. Nil discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		o.logger = logger
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithGitHubBaseURL overrides the GitHub API root (tests, GitHub Enterprise)
func WithGitHubBaseURL(base string) Option {
	return func(o *options) { o.githubBase = base }
}

func WithTrelloBaseURL(base string) Option {
	return func(o *options) { o.trelloBase = base }
}

// WithDeleteLimit aborts a pass that would close more than n entities
func WithDeleteLimit(n int) Option {
	return func(o *options) { o.deleteLimit = n }
}

// WithUserDeactivation marks unseen users without assignments inactive
// after a full task sync
func WithUserDeactivation(enabled bool) Option {
	return func(o *options) { o.deactivateUnseenUsers = enabled }
}

// New returns the adapter for the data source's provider type
func New(ds *models.DataSource, store Store, opts ...Option) (Adapter, error) {
	o := options{
		logger:     slog.Default(),
		httpClient: NewHTTPClient(defaultHTTPTimeout),
		githubBase: GitHubAPIBase,
		trelloBase: TrelloAPIBase,
	}
	for _, opt := range opts {
		opt(&o)
	}

	b := &base{
		ds:                    ds,
		store:                 store,
		logger:                o.logger.With("data_source", ds.Name, "provider", string(ds.Type)),
		deleteLimit:           o.deleteLimit,
		deactivateUnseenUsers: o.deactivateUnseenUsers,
	}

	switch ds.Type {
	case models.ProviderGitHub:
		a, err := newGitHubAdapter(b, o.httpClient, o.githubBase)
		if err != nil {
			return nil, err
		}
		return a, nil
	case models.ProviderTrello:
		return newTrelloAdapter(b, o.httpClient, o.trelloBase), nil
	default:
		return nil, fmt.Errorf("unknown data source type: %q", ds.Type)
	}
}
