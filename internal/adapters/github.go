package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v63/github"

	"helpt/internal/models"
	"helpt/internal/reconcile"
)

// GitHub events the organization hook subscribes to
var githubHookEvents = []string{"issues", "repository"}

type githubAdapter struct {
	*base
	client *github.Client
}

// tokenTransport sends the classic "token" authorization scheme
type tokenTransport struct {
	token string
	next  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "token "+t.token)
	return t.next.RoundTrip(req)
}

func newGitHubAdapter(b *base, httpClient *http.Client, apiBase string) (*githubAdapter, error) {
	hc := *httpClient
	// GitHub does not always require authorization
	if b.ds.Token != "" {
		next := hc.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		hc.Transport = &tokenTransport{token: b.ds.Token, next: next}
	}

	client := github.NewClient(&hc)
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}
	u, err := url.Parse(apiBase)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API base %q: %w", apiBase, err)
	}
	client.BaseURL = u

	return &githubAdapter{base: b, client: client}, nil
}

func (a *githubAdapter) apiError(method, path string, err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return &RemoteAPIError{
			Provider: models.ProviderGitHub,
			Method:   method,
			Path:     path,
			Status:   errResp.Response.StatusCode,
			Message:  errResp.Message,
		}
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return &RemoteAPIError{
			Provider: models.ProviderGitHub,
			Method:   method,
			Path:     path,
			Status:   rateErr.Response.StatusCode,
			Message:  rateErr.Message,
		}
	}
	return fmt.Errorf("GitHub %s %s: %w", method, path, err)
}

func importRepo(repo *github.Repository) WorkspaceRecord {
	return WorkspaceRecord{
		OriginID: strconv.FormatInt(repo.GetID(), 10),
		State:    models.StateOpen,
		Data: reconcile.Values{
			"name":        reconcile.String(repo.GetName()),
			"description": reconcile.OptionalString(repo.Description),
		},
	}
}

func githubTime(ts *github.Timestamp) reconcile.Value {
	if ts == nil || ts.IsZero() {
		return reconcile.Null()
	}
	return reconcile.Time(ts.Time)
}

func importIssue(issue *github.Issue) (TaskRecord, error) {
	state, err := models.ParseWorkState(issue.GetState())
	if err != nil {
		return TaskRecord{}, fmt.Errorf("issue #%d: %w", issue.GetNumber(), err)
	}
	assigned := make([]string, 0, len(issue.Assignees))
	for _, u := range issue.Assignees {
		assigned = append(assigned, strconv.FormatInt(u.GetID(), 10))
	}
	return TaskRecord{
		OriginID:      strconv.Itoa(issue.GetNumber()),
		State:         state,
		AssignedUsers: assigned,
		Data: reconcile.Values{
			"name":       reconcile.String(issue.GetTitle()),
			"created_at": githubTime(issue.CreatedAt),
			"updated_at": githubTime(issue.UpdatedAt),
			"closed_at":  githubTime(issue.ClosedAt),
		},
	}, nil
}

func importGitHubUser(u *github.User) UserRecord {
	return UserRecord{
		OriginID: strconv.FormatInt(u.GetID(), 10),
		Data:     reconcile.Values{"username": reconcile.String(u.GetLogin())},
	}
}

func (a *githubAdapter) fetchRepos(ctx context.Context, originID string) ([]WorkspaceRecord, error) {
	if originID != "" {
		id, err := strconv.ParseInt(originID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid repository id %q: %w", originID, err)
		}
		repo, _, err := a.client.Repositories.GetByID(ctx, id)
		if err != nil {
			return nil, a.apiError(http.MethodGet, "repositories/"+originID, err)
		}
		return []WorkspaceRecord{importRepo(repo)}, nil
	}

	org := a.ds.Organization
	opts := &github.RepositoryListByOrgOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var records []WorkspaceRecord
	for {
		repos, resp, err := a.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, a.apiError(http.MethodGet, "orgs/"+org+"/repos", err)
		}
		for _, repo := range repos {
			records = append(records, importRepo(repo))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return records, nil
}

func (a *githubAdapter) SyncWorkspaces(ctx context.Context, originID string) (*Report, error) {
	defer a.lock()()

	records, err := a.fetchRepos(ctx, originID)
	if err != nil {
		return nil, err
	}

	rep := &Report{}
	err = a.store.Transaction(ctx, func(ctx context.Context) error {
		return a.updateWorkspaces(ctx, records, originID != "", rep)
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (a *githubAdapter) fetchIssues(ctx context.Context, ws *models.Workspace, originID string) ([]*github.Issue, error) {
	org, repo := a.ds.Organization, ws.Name
	if originID != "" {
		number, err := strconv.Atoi(originID)
		if err != nil {
			return nil, fmt.Errorf("invalid issue number %q: %w", originID, err)
		}
		issue, _, err := a.client.Issues.Get(ctx, org, repo, number)
		if err != nil {
			return nil, a.apiError(http.MethodGet, fmt.Sprintf("repos/%s/%s/issues/%d", org, repo, number), err)
		}
		return []*github.Issue{issue}, nil
	}

	opts := &github.IssueListByRepoOptions{State: "all", ListOptions: github.ListOptions{PerPage: 100}}
	var issues []*github.Issue
	for {
		page, resp, err := a.client.Issues.ListByRepo(ctx, org, repo, opts)
		if err != nil {
			return nil, a.apiError(http.MethodGet, fmt.Sprintf("repos/%s/%s/issues", org, repo), err)
		}
		issues = append(issues, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return issues, nil
}

// SyncTasks imports the issues of the repository named after ws. Pull
// requests are listed by the issues endpoint and imported as tasks too.
func (a *githubAdapter) SyncTasks(ctx context.Context, ws *models.Workspace, originID string) (*Report, error) {
	defer a.lock()()

	issues, err := a.fetchIssues(ctx, ws, originID)
	if err != nil {
		return nil, err
	}

	tasks := make([]TaskRecord, 0, len(issues))
	var users []UserRecord
	for _, issue := range issues {
		rec, err := importIssue(issue)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, rec)
		for _, u := range issue.Assignees {
			users = append(users, importGitHubUser(u))
		}
	}
	users = distinctUsers(users)

	partial := originID != ""
	rep := &Report{}
	err = a.store.Transaction(ctx, func(ctx context.Context) error {
		if err := a.saveUsers(ctx, users, partial, rep); err != nil {
			return err
		}
		return a.updateTasks(ctx, ws, tasks, partial, rep)
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (a *githubAdapter) SaveUsers(ctx context.Context, users []UserRecord, partial bool) error {
	defer a.lock()()
	return a.store.Transaction(ctx, func(ctx context.Context) error {
		return a.saveUsers(ctx, distinctUsers(users), partial, &Report{})
	})
}

// RegisterWebhook creates an organization hook for issue and repository
// events
func (a *githubAdapter) RegisterWebhook(ctx context.Context, callbackURL string) error {
	org := a.ds.Organization
	hook := &github.Hook{
		Name:   github.String("web"),
		Events: githubHookEvents,
		Active: github.Bool(true),
		Config: &github.HookConfig{
			URL:         github.String(callbackURL),
			ContentType: github.String("json"),
		},
	}
	created, _, err := a.client.Organizations.CreateHook(ctx, org, hook)
	if err != nil {
		return a.apiError(http.MethodPost, "orgs/"+org+"/hooks", err)
	}
	originID := strconv.FormatInt(created.GetID(), 10)
	a.logger.Info("registered organization webhook", "hook", originID, "callback", callbackURL)
	return a.saveWebhook(ctx, originID)
}

func (a *githubAdapter) RemoveWebhook(ctx context.Context, originID string) error {
	id, err := strconv.ParseInt(originID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid webhook id %q: %w", originID, err)
	}
	org := a.ds.Organization
	return a.removeWebhook(ctx, originID, func(ctx context.Context) error {
		if _, err := a.client.Organizations.DeleteHook(ctx, org, id); err != nil {
			return a.apiError(http.MethodDelete, fmt.Sprintf("orgs/%s/hooks/%d", org, id), err)
		}
		a.logger.Info("removed organization webhook", "hook", originID)
		return nil
	})
}

// ClearWebhooks removes every hook recorded for the data source
func (a *githubAdapter) ClearWebhooks(ctx context.Context) error {
	hooks, err := a.store.Webhooks(ctx, a.ds.ID)
	if err != nil {
		return fmt.Errorf("failed to load webhooks: %w", err)
	}
	var errs []error
	for _, h := range hooks {
		if err := a.RemoveWebhook(ctx, h.OriginID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
