package models

import (
	"fmt"
	"sort"
	"strings"
)

// WorkState is the lifecycle of workspaces, lists and tasks
type WorkState string

const (
	StateOpen   WorkState = "open"
	StateClosed WorkState = "closed"
)

func (s WorkState) Valid() bool {
	return s == StateOpen || s == StateClosed
}

// UserState is the lifecycle of a data source user
type UserState string

const (
	UserActive   UserState = "active"
	UserInactive UserState = "inactive"
)

func (s UserState) Valid() bool {
	return s == UserActive || s == UserInactive
}

// EntryState is the lifecycle of an hour entry
type EntryState string

const (
	EntryPublic  EntryState = "public"
	EntryDeleted EntryState = "deleted"
)

func (s EntryState) Valid() bool {
	return s == EntryPublic || s == EntryDeleted
}

// StateError reports a transition to a state outside the entity's enumeration
type StateError struct {
	Entity string
	State  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid %s state %q", e.Entity, e.State)
}

type state interface {
	~string
	Valid() bool
}

// transition moves *current to next. It reports whether the value changed.
func transition[S state](entity string, current *S, next S) (bool, error) {
	if *current == next {
		return false, nil
	}
	if !next.Valid() {
		return false, &StateError{Entity: entity, State: string(next)}
	}
	*current = next
	return true, nil
}

// ParseWorkState validates user input such as a CLI flag
func ParseWorkState(s string) (WorkState, error) {
	st := WorkState(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &StateError{Entity: "work", State: s}
	}
	return st, nil
}

// ValidationError carries field-keyed messages for a rejected record
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// OrNil returns nil when no field errors were added
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
