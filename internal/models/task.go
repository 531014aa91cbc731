package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"helpt/internal/reconcile"
)

// Date format constants
const (
	DateFormat          = "2006-01-02"
	DateTimeShortFormat = "2006-01-02 15:04"
)

// Task is a unit of work: a GitHub issue or a Trello card. CreatedAt and
// UpdatedAt carry the remote timestamps, so GORM must not manage them.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID uint       `gorm:"not null;uniqueIndex:idx_task_origin;index:idx_task_workspace_state" json:"workspace_id"`
	OriginID    string     `gorm:"size:100;not null;uniqueIndex:idx_task_origin" json:"origin_id"`
	Name        string     `gorm:"size:200;not null" json:"name"`
	State       WorkState  `gorm:"size:10;not null;default:open;index:idx_task_workspace_state" json:"state"`
	ListID      *uint      `gorm:"index" json:"list_id,omitempty"`
	Position    *float64   `json:"position,omitempty"`
	ProjectID   *uint      `gorm:"index" json:"project_id,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func (t *Task) String() string {
	return fmt.Sprintf("#%s %s", t.OriginID, t.Name)
}

// BeforeCreate fills timestamps for providers that do not report them
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	return nil
}

// IsClosed returns true if the task is closed
func (t *Task) IsClosed() bool {
	return t.State == StateClosed
}

func (t *Task) SetState(s WorkState) (bool, error) {
	return transition("task", &t.State, s)
}

func (t *Task) MergeFields() []reconcile.Field {
	return []reconcile.Field{
		reconcile.StringField("name", &t.Name),
		reconcile.RefField("list", &t.ListID),
		reconcile.FloatField("position", &t.Position),
		reconcile.RefField("project", &t.ProjectID),
		reconcile.TimeField("created_at", &t.CreatedAt),
		reconcile.TimeField("updated_at", &t.UpdatedAt),
		reconcile.OptionalTimeField("closed_at", &t.ClosedAt),
	}
}

// TaskAssignment links a task to a data source user
type TaskAssignment struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;uniqueIndex:idx_assignment" json:"user_id"`
	TaskID uint `gorm:"not null;uniqueIndex:idx_assignment;index" json:"task_id"`
}
