package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"helpt/internal/models"
)

const (
	// HelptDir is the directory name for helpt data
	HelptDir = ".helpt"
	// DBFileName is the database filename within the helpt directory
	DBFileName = "db.sqlite"
	// SchemaVersion is the current schema version
	SchemaVersion = "1"
)

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// InitDB initializes the database connection and runs migrations
func InitDB(dbPath string) (*gorm.DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	database, err := gorm.Open(sqlite.Open(dsn(dbPath)), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports multiple readers but only one writer. A webhook
	// server and a scheduled sync may share the file.
	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)

	if err := database.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbMu.Lock()
	db = database
	dbMu.Unlock()
	return database, nil
}

// dsn appends the per-connection pragmas so every pooled connection
// gets them
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// runMigrations runs all database migrations
func runMigrations(database *gorm.DB) error {
	return database.AutoMigrate(
		&models.Config{},
		&models.DataSource{},
		&models.User{},
		&models.DataSourceUser{},
		&models.DataSourceWebhook{},
		&models.Project{},
		&models.Workspace{},
		&models.WorkspaceList{},
		&models.Task{},
		&models.TaskAssignment{},
		&models.Entry{},
		&models.SyncChange{},
	)
}

// GetDB returns the current database connection
func GetDB() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	err = sqlDB.Close()
	db = nil
	return err
}

// FindProjectRoot searches upwards for a directory containing .helpt/
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		helptPath := filepath.Join(dir, HelptDir)
		if info, err := os.Stat(helptPath); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a helpt installation (no %s/ found)", HelptDir)
		}
		dir = parent
	}
}

// GetDefaultDBPath returns the default database path for the current project
func GetDefaultDBPath() (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return "", cwdErr
		}
		return filepath.Join(cwd, HelptDir, DBFileName), nil
	}
	return filepath.Join(root, HelptDir, DBFileName), nil
}

// EnsureInitialized opens dbPath, or the default path when dbPath is empty.
// The database file must already exist.
func EnsureInitialized(dbPath string) error {
	dbMu.RLock()
	isNil := db == nil
	dbMu.RUnlock()

	if !isNil {
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = GetDefaultDBPath()
		if err != nil {
			return err
		}
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("helpt not initialized. Run 'helpt init' first")
	}
	_, err := InitDB(dbPath)
	return err
}

// SetConfig sets a configuration value
func SetConfig(key, value string) error {
	config := models.Config{Key: key, Value: value}
	return GetDB().Save(&config).Error
}

// GetConfig gets a configuration value
func GetConfig(key string) (string, error) {
	var config models.Config
	err := GetDB().Where("key = ?", key).First(&config).Error
	if err != nil {
		return "", err
	}
	return config.Value, nil
}
