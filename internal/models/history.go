package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Entity kinds recorded in the sync change log
const (
	EntityWorkspace = "workspace"
	EntityList      = "list"
	EntityTask      = "task"
	EntityUser      = "data_source_user"
)

// SyncChange records which fields a reconciliation pass modified
type SyncChange struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	DataSourceID uint        `gorm:"not null;index" json:"data_source_id"`
	Entity       string      `gorm:"size:30;not null;index:idx_change_entity" json:"entity"`
	EntityID     uint        `gorm:"not null;index:idx_change_entity" json:"entity_id"`
	OriginID     string      `gorm:"size:100" json:"origin_id"`
	Created      bool        `json:"created"`
	Fields       StringSlice `gorm:"type:text" json:"fields"`
	SyncedAt     time.Time   `gorm:"autoCreateTime;index" json:"synced_at"`
}

// StringSlice is a custom type for storing string slices as JSON in the database
type StringSlice []string

// Scan implements the sql.Scanner interface
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("StringSlice.Scan: unexpected type %T", value)
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		*s = []string{}
		return nil
	}
	if err := json.Unmarshal(bytes, s); err != nil {
		return fmt.Errorf("StringSlice.Scan: invalid JSON: %w", err)
	}
	return nil
}

// Value implements the driver.Valuer interface
func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}
