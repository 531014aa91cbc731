package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"helpt/internal/models"
)

// ErrNotFound is returned by keyed lookups that match no row
var ErrNotFound = errors.New("not found")

type txKey struct{}

// Store is the GORM-backed repository used by the sync adapters, the
// webhook handlers and the CLI.
type Store struct {
	gdb *gorm.DB
}

// NewStore wraps an open database
func NewStore(database *gorm.DB) *Store {
	return &Store{gdb: database}
}

// conn returns the transaction bound to ctx, if any
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return s.gdb.WithContext(ctx)
}

// Transaction runs fn inside one database transaction. Store calls made
// with the context passed to fn join the transaction; returning an error
// rolls it back.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// Data sources

func (s *Store) CreateDataSource(ctx context.Context, ds *models.DataSource) error {
	if !ds.Type.Valid() {
		return fmt.Errorf("unknown data source type %q", ds.Type)
	}
	return s.conn(ctx).Create(ds).Error
}

func (s *Store) DataSources(ctx context.Context) ([]models.DataSource, error) {
	var list []models.DataSource
	err := s.conn(ctx).Order("id").Find(&list).Error
	return list, err
}

func (s *Store) DataSource(ctx context.Context, id uint) (*models.DataSource, error) {
	var ds models.DataSource
	if err := s.conn(ctx).First(&ds, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("data source %d", id))
	}
	return &ds, nil
}

func (s *Store) DataSourceByName(ctx context.Context, name string) (*models.DataSource, error) {
	var ds models.DataSource
	if err := s.conn(ctx).Where("name = ?", name).First(&ds).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("data source %q", name))
	}
	return &ds, nil
}

// DataSourceByOrganization resolves the data source a webhook belongs to
func (s *Store) DataSourceByOrganization(ctx context.Context, typ models.ProviderType, org string) (*models.DataSource, error) {
	var ds models.DataSource
	err := s.conn(ctx).Where("type = ? AND organization = ?", typ, org).First(&ds).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("%s data source for organization %q", typ, org))
	}
	return &ds, nil
}

// SyncEnabledDataSources returns data sources of typ owning at least one
// workspace with sync enabled. An empty typ matches every provider.
func (s *Store) SyncEnabledDataSources(ctx context.Context, typ models.ProviderType) ([]models.DataSource, error) {
	q := s.conn(ctx).Model(&models.DataSource{}).
		Where("id IN (?)", s.conn(ctx).Model(&models.Workspace{}).Select("data_source_id").Where("sync = ?", true))
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var list []models.DataSource
	err := q.Order("id").Find(&list).Error
	return list, err
}

// Workspaces

func (s *Store) Workspaces(ctx context.Context, dataSourceID uint) ([]*models.Workspace, error) {
	var list []*models.Workspace
	err := s.conn(ctx).Where("data_source_id = ?", dataSourceID).Order("origin_id").Find(&list).Error
	return list, err
}

func (s *Store) SaveWorkspace(ctx context.Context, ws *models.Workspace) error {
	return s.conn(ctx).Omit("Projects").Save(ws).Error
}

func (s *Store) Workspace(ctx context.Context, id uint) (*models.Workspace, error) {
	var ws models.Workspace
	if err := s.conn(ctx).Preload("Projects").First(&ws, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("workspace %d", id))
	}
	return &ws, nil
}

// WorkspaceByOrigin finds a workspace by its remote id among data sources
// of the given provider type
func (s *Store) WorkspaceByOrigin(ctx context.Context, typ models.ProviderType, originID string) (*models.Workspace, *models.DataSource, error) {
	var ws models.Workspace
	err := s.conn(ctx).
		Joins("JOIN data_sources ON data_sources.id = workspaces.data_source_id").
		Where("data_sources.type = ? AND workspaces.origin_id = ?", typ, originID).
		First(&ws).Error
	if err != nil {
		return nil, nil, notFound(err, fmt.Sprintf("%s workspace %q", typ, originID))
	}
	ds, err := s.DataSource(ctx, ws.DataSourceID)
	if err != nil {
		return nil, nil, err
	}
	return &ws, ds, nil
}

// ListWorkspaces returns workspaces for display, optionally filtered
func (s *Store) ListWorkspaces(ctx context.Context, dataSourceID uint, onlySync bool) ([]models.Workspace, error) {
	q := s.conn(ctx).Order("data_source_id, name")
	if dataSourceID != 0 {
		q = q.Where("data_source_id = ?", dataSourceID)
	}
	if onlySync {
		q = q.Where("sync = ?", true)
	}
	var list []models.Workspace
	err := q.Find(&list).Error
	return list, err
}

func (s *Store) SetWorkspaceSync(ctx context.Context, id uint, enabled bool) error {
	res := s.conn(ctx).Model(&models.Workspace{}).Where("id = ?", id).Update("sync", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("workspace %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) SetDefaultListTaskState(ctx context.Context, id uint, state *models.WorkState) error {
	res := s.conn(ctx).Model(&models.Workspace{}).Where("id = ?", id).Update("default_list_task_state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("workspace %d: %w", id, ErrNotFound)
	}
	return nil
}

// Lists

func (s *Store) Lists(ctx context.Context, workspaceID uint) ([]*models.WorkspaceList, error) {
	var list []*models.WorkspaceList
	err := s.conn(ctx).Where("workspace_id = ?", workspaceID).Order("position, id").Find(&list).Error
	return list, err
}

func (s *Store) SaveList(ctx context.Context, l *models.WorkspaceList) error {
	return s.conn(ctx).Save(l).Error
}

func (s *Store) SetListTaskState(ctx context.Context, id uint, state *models.WorkState) error {
	res := s.conn(ctx).Model(&models.WorkspaceList{}).Where("id = ?", id).Update("task_state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("list %d: %w", id, ErrNotFound)
	}
	return nil
}

// Tasks

func (s *Store) Tasks(ctx context.Context, workspaceID uint) ([]*models.Task, error) {
	var list []*models.Task
	err := s.conn(ctx).Where("workspace_id = ?", workspaceID).Order("origin_id").Find(&list).Error
	return list, err
}

func (s *Store) SaveTask(ctx context.Context, t *models.Task) error {
	return s.conn(ctx).Save(t).Error
}

func (s *Store) Task(ctx context.Context, id uint) (*models.Task, error) {
	var t models.Task
	if err := s.conn(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("task %d", id))
	}
	return &t, nil
}

// Data source users

func (s *Store) Users(ctx context.Context, dataSourceID uint) ([]*models.DataSourceUser, error) {
	var list []*models.DataSourceUser
	err := s.conn(ctx).Where("data_source_id = ?", dataSourceID).Order("origin_id").Find(&list).Error
	return list, err
}

func (s *Store) SaveUser(ctx context.Context, u *models.DataSourceUser) error {
	return s.conn(ctx).Save(u).Error
}

func (s *Store) UserHasAssignments(ctx context.Context, userID uint) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&models.TaskAssignment{}).Where("user_id = ?", userID).Count(&n).Error
	return n > 0, err
}

// LinkUser attaches a remote identity to a local user
func (s *Store) LinkUser(ctx context.Context, dataSourceID uint, username string, userID uint) error {
	res := s.conn(ctx).Model(&models.DataSourceUser{}).
		Where("data_source_id = ? AND username = ?", dataSourceID, username).
		Update("user_id", userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("data source user %q: %w", username, ErrNotFound)
	}
	return nil
}

// Assignments

// Assignees returns the data source user ids assigned to a task
func (s *Store) Assignees(ctx context.Context, taskID uint) ([]uint, error) {
	var ids []uint
	err := s.conn(ctx).Model(&models.TaskAssignment{}).Where("task_id = ?", taskID).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Store) AddAssignments(ctx context.Context, taskID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.TaskAssignment, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.TaskAssignment{TaskID: taskID, UserID: id})
	}
	return s.conn(ctx).Create(&rows).Error
}

func (s *Store) RemoveAssignments(ctx context.Context, taskID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.conn(ctx).Where("task_id = ? AND user_id IN ?", taskID, userIDs).Delete(&models.TaskAssignment{}).Error
}

// Projects

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	return s.conn(ctx).Create(p).Error
}

func (s *Store) WorkspaceProjects(ctx context.Context, workspaceID uint) ([]models.Project, error) {
	var list []models.Project
	err := s.conn(ctx).
		Joins("JOIN workspace_projects ON workspace_projects.project_id = projects.id").
		Where("workspace_projects.workspace_id = ?", workspaceID).
		Order("projects.id").
		Find(&list).Error
	return list, err
}

func (s *Store) LinkProject(ctx context.Context, workspaceID, projectID uint) error {
	ws := models.Workspace{ID: workspaceID}
	project := models.Project{ID: projectID}
	if err := s.conn(ctx).First(&project, projectID).Error; err != nil {
		return notFound(err, fmt.Sprintf("project %d", projectID))
	}
	return s.conn(ctx).Model(&ws).Association("Projects").Append(&project)
}

// Webhooks

func (s *Store) Webhooks(ctx context.Context, dataSourceID uint) ([]models.DataSourceWebhook, error) {
	var list []models.DataSourceWebhook
	err := s.conn(ctx).Where("data_source_id = ?", dataSourceID).Order("id").Find(&list).Error
	return list, err
}

func (s *Store) CreateWebhook(ctx context.Context, dataSourceID uint, originID string) error {
	return s.conn(ctx).Create(&models.DataSourceWebhook{DataSourceID: dataSourceID, OriginID: originID}).Error
}

func (s *Store) DeleteWebhook(ctx context.Context, dataSourceID uint, originID string) error {
	res := s.conn(ctx).Where("data_source_id = ? AND origin_id = ?", dataSourceID, originID).Delete(&models.DataSourceWebhook{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("webhook %s: %w", originID, ErrNotFound)
	}
	return nil
}

// Change log

func (s *Store) RecordChange(ctx context.Context, change *models.SyncChange) error {
	return s.conn(ctx).Create(change).Error
}

func (s *Store) Changes(ctx context.Context, dataSourceID uint, limit int) ([]models.SyncChange, error) {
	var list []models.SyncChange
	q := s.conn(ctx).Order("synced_at DESC, id DESC")
	if dataSourceID != 0 {
		q = q.Where("data_source_id = ?", dataSourceID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&list).Error
	return list, err
}
