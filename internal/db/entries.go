package db

import (
	"context"
	"fmt"

	"helpt/internal/models"
)

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.Username == "" {
		verr := &models.ValidationError{}
		verr.Add("username", "This field is required.")
		return verr
	}
	return s.conn(ctx).Create(u).Error
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("user %q", username))
	}
	return &u, nil
}

// Entries

// SaveEntry validates and stores an entry. A second entry for the same
// (user, task, date) is rejected with a *models.ValidationError.
func (s *Store) SaveEntry(ctx context.Context, e *models.Entry) error {
	if e.State == "" {
		e.State = models.EntryPublic
	}
	if err := e.Validate(); err != nil {
		return err
	}

	verr := &models.ValidationError{}
	var n int64
	if err := s.conn(ctx).Model(&models.User{}).Where("id = ?", e.UserID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		verr.Add("user", fmt.Sprintf("Invalid pk %d - object does not exist.", e.UserID))
	}
	if err := s.conn(ctx).Model(&models.Task{}).Where("id = ?", e.TaskID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		verr.Add("task", fmt.Sprintf("Invalid pk %d - object does not exist.", e.TaskID))
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	q := s.conn(ctx).Model(&models.Entry{}).
		Where("user_id = ? AND task_id = ? AND date = ?", e.UserID, e.TaskID, e.Date)
	if e.ID != 0 {
		q = q.Where("id <> ?", e.ID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		verr.Add("non_field_errors", "There is an hour entry already for this (user, task, date) combination")
		return verr
	}
	return s.conn(ctx).Save(e).Error
}

func (s *Store) Entry(ctx context.Context, id uint) (*models.Entry, error) {
	var e models.Entry
	if err := s.conn(ctx).First(&e, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("entry %d", id))
	}
	return &e, nil
}

// EntryFilter narrows Entries. Zero values match everything.
type EntryFilter struct {
	UserID         uint
	TaskID         uint
	From           string
	To             string
	IncludeDeleted bool
}

func (s *Store) Entries(ctx context.Context, f EntryFilter) ([]models.Entry, error) {
	q := s.conn(ctx).Order("date DESC, id")
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.TaskID != 0 {
		q = q.Where("task_id = ?", f.TaskID)
	}
	if f.From != "" {
		q = q.Where("date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("date <= ?", f.To)
	}
	if !f.IncludeDeleted {
		q = q.Where("state = ?", models.EntryPublic)
	}
	var list []models.Entry
	err := q.Find(&list).Error
	return list, err
}

// DeleteEntry soft-deletes an entry
func (s *Store) DeleteEntry(ctx context.Context, id uint) error {
	e, err := s.Entry(ctx, id)
	if err != nil {
		return err
	}
	changed, err := e.SetState(models.EntryDeleted)
	if err != nil || !changed {
		return err
	}
	return s.conn(ctx).Model(e).Update("state", e.State).Error
}
