package models

import (
	"fmt"
	"strings"
	"time"

	"helpt/internal/reconcile"
)

// ProviderType is the closed set of supported remote providers
type ProviderType string

const (
	ProviderGitHub ProviderType = "github"
	ProviderTrello ProviderType = "trello"
)

func (p ProviderType) Valid() bool {
	return p == ProviderGitHub || p == ProviderTrello
}

func ParseProviderType(s string) (ProviderType, error) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown data source type %q: expected github or trello", s)
	}
	return p, nil
}

// DataSource is a configured connection to a remote provider
type DataSource struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Type         ProviderType `gorm:"size:20;not null;index" json:"type"`
	Organization string       `gorm:"size:100;index" json:"organization"`
	Key          string       `gorm:"size:100" json:"-"`
	Token        string       `gorm:"size:100" json:"-"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ds *DataSource) String() string {
	return ds.Name
}

// DataSourceUser mirrors a remote user. UserID is filled in when the remote
// identity is linked to a local user.
type DataSourceUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DataSourceID uint      `gorm:"not null;uniqueIndex:idx_dsu_origin;uniqueIndex:idx_dsu_user" json:"data_source_id"`
	UserID       *uint     `gorm:"uniqueIndex:idx_dsu_user" json:"user_id,omitempty"`
	Username     string    `gorm:"size:100;index" json:"username"`
	FullName     *string   `gorm:"size:200" json:"full_name,omitempty"`
	OriginID     string    `gorm:"size:100;not null;uniqueIndex:idx_dsu_origin" json:"origin_id"`
	State        UserState `gorm:"size:10;not null;default:active;index" json:"state"`
}

func (u *DataSourceUser) String() string {
	return fmt.Sprintf("%s (%s)", u.Username, u.OriginID)
}

// SetState moves the user between active and inactive
func (u *DataSourceUser) SetState(s UserState) (bool, error) {
	return transition("data source user", &u.State, s)
}

func (u *DataSourceUser) MergeFields() []reconcile.Field {
	return []reconcile.Field{
		reconcile.StringField("username", &u.Username),
		reconcile.OptionalStringField("full_name", &u.FullName),
	}
}

// DataSourceWebhook records a webhook registered at the provider
type DataSourceWebhook struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DataSourceID uint      `gorm:"not null;uniqueIndex:idx_webhook_origin" json:"data_source_id"`
	OriginID     string    `gorm:"size:100;not null;uniqueIndex:idx_webhook_origin" json:"origin_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// User is a local person logging hours
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:150;not null;uniqueIndex" json:"username"`
	Email     string    `gorm:"size:254" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
