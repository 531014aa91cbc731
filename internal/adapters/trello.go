package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"helpt/internal/models"
	"helpt/internal/reconcile"
)

type trelloAdapter struct {
	*base
	client  *http.Client
	apiBase string
}

type trelloList struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Pos    float64 `json:"pos"`
	Closed bool    `json:"closed"`
}

type trelloBoard struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	URL    string       `json:"url"`
	Closed bool         `json:"closed"`
	Lists  []trelloList `json:"lists"`
}

type trelloMember struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

type trelloCard struct {
	ID               string         `json:"id"`
	Closed           bool           `json:"closed"`
	IDMembers        []string       `json:"idMembers"`
	DateLastActivity string         `json:"dateLastActivity"`
	Name             string         `json:"name"`
	Pos              float64        `json:"pos"`
	IDList           string         `json:"idList"`
	Members          []trelloMember `json:"members"`
}

type trelloWebhook struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description,omitempty"`
	IDModel     string `json:"idModel"`
	CallbackURL string `json:"callbackURL"`
}

func newTrelloAdapter(b *base, httpClient *http.Client, apiBase string) *trelloAdapter {
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}
	return &trelloAdapter{base: b, client: httpClient, apiBase: apiBase}
}

// redact hides the token embedded in webhook paths
func (a *trelloAdapter) redact(path string) string {
	if a.ds.Token == "" {
		return path
	}
	return strings.ReplaceAll(path, a.ds.Token, "<token>")
}

// do performs one API call with key and token query credentials. Any
// status but 200 is a RemoteAPIError.
func (a *trelloAdapter) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	q := url.Values{}
	q.Set("key", a.ds.Key)
	q.Set("token", a.ds.Token)
	for k, v := range params {
		q[k] = v
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.apiBase+path+"?"+q.Encode(), reader)
	if err != nil {
		return fmt.Errorf("failed to build Trello request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// The transport error carries the full URL with credentials
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = a.apiBase + a.redact(path)
		}
		return fmt.Errorf("Trello %s %s: %w", method, a.redact(path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteAPIError{
			Provider: models.ProviderTrello,
			Method:   method,
			Path:     a.redact(path),
			Status:   resp.StatusCode,
			Message:  strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Trello %s %s: %w", method, a.redact(path), err)
	}
	return nil
}

func closedState(closed bool) models.WorkState {
	if closed {
		return models.StateClosed
	}
	return models.StateOpen
}

func importBoard(board trelloBoard) WorkspaceRecord {
	rec := WorkspaceRecord{
		OriginID: board.ID,
		State:    closedState(board.Closed),
		Data: reconcile.Values{
			"name":        reconcile.String(board.Name),
			"description": reconcile.Null(),
			"url":         reconcile.String(board.URL),
		},
	}
	for _, l := range board.Lists {
		rec.Lists = append(rec.Lists, ListRecord{
			OriginID: l.ID,
			State:    closedState(l.Closed),
			Data: reconcile.Values{
				"name":     reconcile.String(l.Name),
				"position": reconcile.Float(l.Pos),
			},
		})
	}
	return rec
}

func importCard(card trelloCard) (TaskRecord, error) {
	updated, err := reconcile.ParseTime(card.DateLastActivity)
	if err != nil {
		return TaskRecord{}, fmt.Errorf("card %s: %w", card.ID, err)
	}
	data := reconcile.Values{
		"name":     reconcile.String(card.Name),
		"position": reconcile.Float(card.Pos),
	}
	if !updated.IsNull() {
		data["updated_at"] = updated
	}
	return TaskRecord{
		OriginID:      card.ID,
		State:         closedState(card.Closed),
		AssignedUsers: card.IDMembers,
		ListOriginID:  card.IDList,
		Data:          data,
	}, nil
}

func importTrelloMember(m trelloMember) UserRecord {
	fullName := reconcile.Null()
	if m.FullName != "" {
		fullName = reconcile.String(m.FullName)
	}
	return UserRecord{
		OriginID: m.ID,
		Data: reconcile.Values{
			"username":  reconcile.String(m.Username),
			"full_name": fullName,
		},
	}
}

var boardParams = url.Values{
	"memberships_member": {"true"},
	"lists":              {"open"},
}

var cardParams = url.Values{
	"member_fields": {"username,fullName"},
	"members":       {"true"},
}

func (a *trelloAdapter) SyncWorkspaces(ctx context.Context, originID string) (*Report, error) {
	defer a.lock()()

	var boards []trelloBoard
	if originID == "" {
		path := "organizations/" + url.PathEscape(a.ds.Organization) + "/boards"
		if err := a.do(ctx, http.MethodGet, path, boardParams, nil, &boards); err != nil {
			return nil, err
		}
	} else {
		var board trelloBoard
		if err := a.do(ctx, http.MethodGet, "boards/"+url.PathEscape(originID), boardParams, nil, &board); err != nil {
			return nil, err
		}
		boards = append(boards, board)
	}

	records := make([]WorkspaceRecord, 0, len(boards))
	for _, board := range boards {
		records = append(records, importBoard(board))
	}

	rep := &Report{}
	err := a.store.Transaction(ctx, func(ctx context.Context) error {
		return a.updateWorkspaces(ctx, records, originID != "", rep)
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// SyncTasks imports the open cards of the board, or one card. Archived
// cards are not returned by the board listing and end up closed.
func (a *trelloAdapter) SyncTasks(ctx context.Context, ws *models.Workspace, originID string) (*Report, error) {
	defer a.lock()()

	var cards []trelloCard
	if originID == "" {
		path := "boards/" + url.PathEscape(ws.OriginID) + "/cards"
		if err := a.do(ctx, http.MethodGet, path, cardParams, nil, &cards); err != nil {
			return nil, err
		}
	} else {
		var card trelloCard
		if err := a.do(ctx, http.MethodGet, "cards/"+url.PathEscape(originID), cardParams, nil, &card); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	tasks := make([]TaskRecord, 0, len(cards))
	var users []UserRecord
	for _, card := range cards {
		rec, err := importCard(card)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, rec)
		for _, m := range card.Members {
			users = append(users, importTrelloMember(m))
		}
	}
	users = distinctUsers(users)

	partial := originID != ""
	rep := &Report{}
	err := a.store.Transaction(ctx, func(ctx context.Context) error {
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

func (a *trelloAdapter) SaveUsers(ctx context.Context, users []UserRecord, partial bool) error {
	defer a.lock()()
	return a.store.Transaction(ctx, func(ctx context.Context) error {
		return a.saveUsers(ctx, distinctUsers(users), partial, &Report{})
	})
}

func (a *trelloAdapter) webhooksPath() string {
	return "tokens/" + url.PathEscape(a.ds.Token) + "/webhooks"
}

// RegisterWebhook registers one webhook per sync-enabled open board
func (a *trelloAdapter) RegisterWebhook(ctx context.Context, callbackURL string) error {
	workspaces, err := a.store.Workspaces(ctx, a.ds.ID)
	if err != nil {
		return fmt.Errorf("failed to load workspaces: %w", err)
	}

	var errs []error
	for _, ws := range workspaces {
		if !ws.Sync || ws.State != models.StateOpen {
			continue
		}
		req := trelloWebhook{
			Description: ws.Name + " listener",
			IDModel:     ws.OriginID,
			CallbackURL: callbackURL,
		}
		var created trelloWebhook
		if err := a.do(ctx, http.MethodPost, a.webhooksPath()+"/", nil, req, &created); err != nil {
			errs = append(errs, fmt.Errorf("board %s: %w", ws.Name, err))
			continue
		}
		a.logger.Info("registered board webhook", "hook", created.ID, "workspace", ws.String())
		if err := a.saveWebhook(ctx, created.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *trelloAdapter) RemoveWebhook(ctx context.Context, originID string) error {
	return a.removeWebhook(ctx, originID, func(ctx context.Context) error {
		path := a.webhooksPath() + "/" + url.PathEscape(originID)
		if err := a.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
			return err
		}
		a.logger.Info("removed board webhook", "hook", originID)
		return nil
	})
}

// ClearWebhooks deletes every webhook owned by the token, including those
// not recorded locally, then drops the local records.
func (a *trelloAdapter) ClearWebhooks(ctx context.Context) error {
	var hooks []trelloWebhook
	if err := a.do(ctx, http.MethodGet, a.webhooksPath(), nil, nil, &hooks); err != nil {
		return err
	}
	for _, h := range hooks {
		path := a.webhooksPath() + "/" + url.PathEscape(h.ID)
		if err := a.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
			return err
		}
		a.logger.Info("removed board webhook", "hook", h.ID, "board", h.IDModel)
	}

	local, err := a.store.Webhooks(ctx, a.ds.ID)
	if err != nil {
		return fmt.Errorf("failed to load webhooks: %w", err)
	}
	return a.store.Transaction(ctx, func(ctx context.Context) error {
		for _, h := range local {
			if err := a.store.DeleteWebhook(ctx, a.ds.ID, h.OriginID); err != nil {
				return err
			}
		}
		return nil
	})
}
