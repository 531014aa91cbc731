// Package reconcile diffs persisted entities against incoming remote
// snapshots and merges field values with type-aware equality.
package reconcile

import (
	"errors"
	"fmt"
)

// ErrFinished is returned when Finish is called twice on one pass
var ErrFinished = errors.New("reconciliation pass already finished")

// DeletionLimitError aborts a pass that would delete more entities than
// allowed. No deletion has been applied when it is returned.
type DeletionLimitError struct {
	Pending int
	Limit   int
}

func (e *DeletionLimitError) Error() string {
	return fmt.Sprintf("refusing to delete %d entities: limit is %d", e.Pending, e.Limit)
}

// Options configures a reconciliation pass
type Options[T any] struct {
	// Delete is called for every existing entity not marked during the pass.
	// Nil means no-op.
	Delete func(T) error
	// SkipDelete marks a partial pass: unmarked entities are left as-is.
	SkipDelete bool
	// DeleteLimit caps deletions in one pass; 0 disables the check.
	DeleteLimit int
	// IsDeleted reports entities already in their deleted state. They are
	// neither counted against DeleteLimit nor passed to Delete again.
	IsDeleted func(T) bool
}

// Syncher tracks which existing entities were observed in one pass
type Syncher[T any] struct {
	key      func(T) string
	opts     Options[T]
	byKey    map[string]T
	existing []string
	marked   map[string]bool
	deleted  int
	finished bool
}

// New starts a pass over existing, keyed by origin id
func New[T any](existing []T, key func(T) string, opts Options[T]) *Syncher[T] {
	s := &Syncher[T]{
		key:      key,
		opts:     opts,
		byKey:    make(map[string]T, len(existing)),
		existing: make([]string, 0, len(existing)),
		marked:   make(map[string]bool),
	}
	for _, obj := range existing {
		k := key(obj)
		if _, dup := s.byKey[k]; dup {
			continue
		}
		s.byKey[k] = obj
		s.existing = append(s.existing, k)
	}
	return s
}

// Get returns the entity registered under originID
func (s *Syncher[T]) Get(originID string) (T, bool) {
	obj, ok := s.byKey[originID]
	return obj, ok
}

// Mark records obj as seen. New entities are registered so a repeated
// origin id later in the same pass resolves to the same entity.
func (s *Syncher[T]) Mark(obj T) {
	k := s.key(obj)
	if _, ok := s.byKey[k]; !ok {
		s.byKey[k] = obj
	}
	s.marked[k] = true
}

// Finish runs the deletion callback for every unmarked existing entity,
// unless the pass is partial.
func (s *Syncher[T]) Finish() error {
	if s.finished {
		return ErrFinished
	}
	s.finished = true
	if s.opts.SkipDelete {
		return nil
	}

	var stale []string
	for _, k := range s.existing {
		if s.marked[k] {
			continue
		}
		if s.opts.IsDeleted != nil && s.opts.IsDeleted(s.byKey[k]) {
			continue
		}
		stale = append(stale, k)
	}
	if s.opts.DeleteLimit > 0 && len(stale) > s.opts.DeleteLimit {
		return &DeletionLimitError{Pending: len(stale), Limit: s.opts.DeleteLimit}
	}
	if s.opts.Delete == nil {
		return nil
	}
	for _, k := range stale {
		if err := s.opts.Delete(s.byKey[k]); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
		s.deleted++
	}
	return nil
}

// Seen returns how many distinct origin ids were marked
func (s *Syncher[T]) Seen() int {
	return len(s.marked)
}

// Deleted returns how many deletion callbacks succeeded
func (s *Syncher[T]) Deleted() int {
	return s.deleted
}
