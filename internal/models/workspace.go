package models

import (
	"fmt"
	"time"

	"helpt/internal/reconcile"
)

// Project groups workspaces for reporting
type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Workspace is a remote container: a GitHub repository or a Trello board
type Workspace struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	DataSourceID         uint       `gorm:"not null;uniqueIndex:idx_workspace_origin" json:"data_source_id"`
	OriginID             string     `gorm:"size:100;not null;uniqueIndex:idx_workspace_origin" json:"origin_id"`
	Name                 string     `gorm:"size:100;not null" json:"name"`
	Description          *string    `gorm:"type:text" json:"description,omitempty"`
	URL                  *string    `gorm:"size:500" json:"url,omitempty"`
	State                WorkState  `gorm:"size:10;not null;default:open;index" json:"state"`
	Sync                 bool       `gorm:"not null;default:false;index" json:"sync"`
	DefaultListTaskState *WorkState `gorm:"size:10" json:"default_list_task_state,omitempty"`
	Projects             []Project  `gorm:"many2many:workspace_projects" json:"projects,omitempty"`
}

func (w *Workspace) String() string {
	return fmt.Sprintf("%s (%s)", w.Name, w.OriginID)
}

func (w *Workspace) SetState(s WorkState) (bool, error) {
	return transition("workspace", &w.State, s)
}

// MergeFields lists the fields a remote snapshot may overwrite
func (w *Workspace) MergeFields() []reconcile.Field {
	return []reconcile.Field{
		reconcile.StringField("name", &w.Name),
		reconcile.OptionalStringField("description", &w.Description),
		reconcile.OptionalStringField("url", &w.URL),
	}
}

// WorkspaceList is a sub-grouping of a workspace (Trello lists). A non-nil
// TaskState forces the state of every task in the list.
type WorkspaceList struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID uint       `gorm:"not null;uniqueIndex:idx_list_origin" json:"workspace_id"`
	OriginID    string     `gorm:"size:100;not null;uniqueIndex:idx_list_origin" json:"origin_id"`
	Name        string     `gorm:"size:100;not null" json:"name"`
	Position    *float64   `json:"position,omitempty"`
	State       WorkState  `gorm:"size:10;not null;default:open;index" json:"state"`
	TaskState   *WorkState `gorm:"size:10" json:"task_state,omitempty"`
}

func (l *WorkspaceList) String() string {
	return fmt.Sprintf("%s (%s)", l.Name, l.OriginID)
}

func (l *WorkspaceList) SetState(s WorkState) (bool, error) {
	return transition("list", &l.State, s)
}

func (l *WorkspaceList) MergeFields() []reconcile.Field {
	return []reconcile.Field{
		reconcile.StringField("name", &l.Name),
		reconcile.FloatField("position", &l.Position),
	}
}
