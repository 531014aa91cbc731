package models

import (
	"fmt"
	"time"
)

// Entry is a user's logged minutes against a task on one date
type Entry struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_entry_user_task_date" json:"user_id"`
	TaskID    uint       `gorm:"not null;uniqueIndex:idx_entry_user_task_date;index" json:"task_id"`
	Date      string     `gorm:"size:10;not null;uniqueIndex:idx_entry_user_task_date;index" json:"date"`
	Minutes   int        `gorm:"not null" json:"minutes"`
	State     EntryState `gorm:"size:20;not null;default:public" json:"state"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s: %.2fh on task %d by user %d", e.Date, float64(e.Minutes)/60.0, e.TaskID, e.UserID)
}

func (e *Entry) SetState(s EntryState) (bool, error) {
	return transition("entry", &e.State, s)
}

// Validate checks the record-level invariants. Uniqueness of
// (user, task, date) needs the database and is checked by the store.
func (e *Entry) Validate() error {
	verr := &ValidationError{}
	if e.UserID == 0 {
		verr.Add("user", "This field is required.")
	}
	if e.TaskID == 0 {
		verr.Add("task", "This field is required.")
	}
	if _, err := time.Parse(DateFormat, e.Date); err != nil {
		verr.Add("date", fmt.Sprintf("Date has wrong format, use %s.", DateFormat))
	}
	if e.Minutes <= 0 {
		verr.Add("minutes", "Ensure this value is greater than 0.")
	}
	if e.State != "" && !e.State.Valid() {
		verr.Add("state", fmt.Sprintf("%q is not a valid choice.", e.State))
	}
	return verr.OrNil()
}
