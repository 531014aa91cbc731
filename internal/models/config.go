package models

import (
	"time"
)

// Config stores key-value metadata about the installation
type Config struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Config
func (Config) TableName() string {
	return "config"
}

// Common config keys
const (
	ConfigSchemaVersion = "schema_version"
	ConfigInitializedAt = "initialized_at"
	ConfigLastFullSync  = "last_full_sync"
)

// Keyring entries hold data source secrets outside the database
const (
	KeyringServiceName = "helpt"
)

// KeyringTokenKey returns the keyring account under which a data source
// token is stored
func KeyringTokenKey(dataSourceName string) string {
	return "datasource/" + dataSourceName + "/token"
}

// KeyringKeyKey returns the keyring account for a Trello API key
func KeyringKeyKey(dataSourceName string) string {
	return "datasource/" + dataSourceName + "/key"
}
