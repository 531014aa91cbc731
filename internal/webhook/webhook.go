// Package webhook receives GitHub and Trello event notifications and
// triggers scoped resyncs of the affected data.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v63/github"
	"github.com/google/uuid"

	"helpt/internal/adapters"
	"helpt/internal/models"
)

const maxPayloadBytes = 5 << 20

// Resolver finds the local entities an event refers to
type Resolver interface {
	DataSourceByOrganization(ctx context.Context, typ models.ProviderType, org string) (*models.DataSource, error)
	WorkspaceByOrigin(ctx context.Context, typ models.ProviderType, originID string) (*models.Workspace, *models.DataSource, error)
}

// AdapterFactory builds the adapter serving a data source
type AdapterFactory func(ds *models.DataSource) (adapters.Adapter, error)

// Server dispatches provider events to adapters
type Server struct {
	resolver Resolver
	adapters AdapterFactory
	logger   *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets a structured logger. Nil discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		s.logger = logger
	}
}

func NewServer(resolver Resolver, factory AdapterFactory, opts ...Option) *Server {
	s := &Server{resolver: resolver, adapters: factory, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes mounts the webhook endpoints and the health check
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.With(middleware.Recoverer).Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, "ok")
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/github/", s.receiveGitHub)
		r.Post("/github", s.receiveGitHub)

		r.Get("/trello/", s.acknowledge)
		r.Head("/trello/", s.acknowledge)
		r.Post("/trello/", s.receiveTrello)
		r.Get("/trello", s.acknowledge)
		r.Head("/trello", s.acknowledge)
		r.Post("/trello", s.receiveTrello)
	})
	return r
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// acknowledge answers Trello's callback URL validation
func (s *Server) acknowledge(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// dispatch runs an event handler and reports a panic as an error
func dispatch(handle func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during dispatch: %v", r)
		}
	}()
	return handle()
}

func readPayload(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
}

func deliveryID(r *http.Request) string {
	if id := github.DeliveryID(r); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) receiveGitHub(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("provider", "github", "delivery", deliveryID(r))

	eventType := github.WebHookType(r)
	if eventType == "" {
		reply(w, http.StatusBadRequest, "GitHub event type missing")
		return
	}
	if eventType == "ping" {
		reply(w, http.StatusOK, "pong")
		return
	}
	if eventType != "issues" && eventType != "repository" {
		reply(w, http.StatusBadRequest, fmt.Sprintf("Unsupported event type %q. Bad hook configuration?", eventType))
		return
	}

	payload, err := readPayload(r)
	if err != nil {
		reply(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		reply(w, http.StatusBadRequest, "Invalid JSON received")
		return
	}

	logger.Info("received GitHub event", "event", eventType)
	err = dispatch(func() error { return s.handleGitHubEvent(r.Context(), event) })
	if err != nil {
		logger.Error("GitHub event handling failed", "event", eventType, "error", err)
		// Reply 200 so the sender does not disable the hook
		reply(w, http.StatusOK, "Server error")
		return
	}
	reply(w, http.StatusOK, "OK")
}

func (s *Server) handleGitHubEvent(ctx context.Context, event interface{}) error {
	switch e := event.(type) {
	case *github.IssuesEvent:
		ds, err := s.resolver.DataSourceByOrganization(ctx, models.ProviderGitHub, e.GetOrg().GetLogin())
		if err != nil {
			return err
		}
		if e.Repo == nil || e.Issue == nil {
			return errors.New("issues event without repository or issue")
		}
		ws, wsSource, err := s.resolver.WorkspaceByOrigin(ctx, models.ProviderGitHub, strconv.FormatInt(e.Repo.GetID(), 10))
		if err != nil {
			return err
		}
		if wsSource.ID != ds.ID {
			return fmt.Errorf("repository %d does not belong to data source %s", e.Repo.GetID(), ds.Name)
		}
		a, err := s.adapters(ds)
		if err != nil {
			return err
		}
		_, err = a.SyncTasks(ctx, ws, strconv.Itoa(e.Issue.GetNumber()))
		return err

	case *github.RepositoryEvent:
		ds, err := s.resolver.DataSourceByOrganization(ctx, models.ProviderGitHub, e.GetOrg().GetLogin())
		if err != nil {
			return err
		}
		a, err := s.adapters(ds)
		if err != nil {
			return err
		}
		_, err = a.SyncWorkspaces(ctx, "")
		return err

	default:
		return fmt.Errorf("unexpected event %T", event)
	}
}

type trelloEvent struct {
	Model struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"model"`
	Action struct {
		Type string                     `json:"type"`
		Data map[string]json.RawMessage `json:"data"`
	} `json:"action"`
}

func (s *Server) receiveTrello(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("provider", "trello", "delivery", deliveryID(r))

	payload, err := readPayload(r)
	if err != nil {
		reply(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	var event trelloEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		reply(w, http.StatusBadRequest, "Invalid JSON received")
		return
	}

	actionType := event.Action.Type
	if actionType == "" {
		actionType = "[unknown]"
	}
	logger.Info("received Trello event", "action", actionType, "board", event.Model.Name)

	err = dispatch(func() error { return s.handleTrelloEvent(r.Context(), &event) })
	if err != nil {
		logger.Error("Trello event handling failed", "action", actionType, "error", err)
		reply(w, http.StatusOK, "Server error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTrelloEvent(ctx context.Context, event *trelloEvent) error {
	if event.Model.ID == "" {
		return errors.New("event without model id")
	}
	ws, ds, err := s.resolver.WorkspaceByOrigin(ctx, models.ProviderTrello, event.Model.ID)
	if err != nil {
		return err
	}
	a, err := s.adapters(ds)
	if err != nil {
		return err
	}

	if raw, ok := event.Action.Data["card"]; ok {
		var card struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &card); err != nil {
			return fmt.Errorf("invalid card in event: %w", err)
		}
		if card.ID == "" {
			return errors.New("card event without id")
		}
		_, err = a.SyncTasks(ctx, ws, card.ID)
		return err
	}

	// List and board level changes resync the board with its lists
	_, err = a.SyncWorkspaces(ctx, ws.OriginID)
	return err
}
