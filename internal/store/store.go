package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dappforge/internal/pipeline"
)

// Store wraps the GORM handle with the operations the API needs.
type Store struct {
	db *gorm.DB
}

// Open connects and migrates. URLs starting with postgres:// use the
// Postgres driver; anything else is treated as a SQLite path
// (":memory:" included).
func Open(databaseURL string) (*Store, error) {
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&User{}, &Project{}, &BuildRecord{}, &DeploymentRecord{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for auth lookups.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// CreateUser inserts a new account.
func (s *Store) CreateUser(username, email, passwordHash string) (*User, error) {
	u := &User{Username: username, Email: email, PasswordHash: passwordHash, IsActive: true}
	if err := s.db.Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// UserByUsername fetches one account.
func (s *Store) UserByUsername(username string) (*User, error) {
	var u User
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateProject inserts a project for an owner.
func (s *Store) CreateProject(ownerID uint, name, description, prompt string) (*Project, error) {
	p := &Project{OwnerID: ownerID, Name: name, Description: description, Prompt: prompt}
	if err := s.db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// ProjectByID fetches one project scoped to its owner.
func (s *Store) ProjectByID(ownerID, projectID uint) (*Project, error) {
	var p Project
	if err := s.db.Where("id = ? AND owner_id = ?", projectID, ownerID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ProjectsByOwner lists an owner's projects, newest first.
func (s *Store) ProjectsByOwner(ownerID uint) ([]Project, error) {
	var projects []Project
	err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&projects).Error
	return projects, err
}

// DeleteProject soft-deletes a project scoped to its owner.
func (s *Store) DeleteProject(ownerID, projectID uint) error {
	res := s.db.Where("id = ? AND owner_id = ?", projectID, ownerID).Delete(&Project{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SaveCode stores the latest generated code on a project.
func (s *Store) SaveCode(projectID uint, code pipeline.GeneratedCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return err
	}
	return s.db.Model(&Project{}).Where("id = ?", projectID).Update("code", data).Error
}

// LoadCode returns the project's stored code, or nil when none exists.
func (s *Store) LoadCode(projectID uint) (*pipeline.GeneratedCode, error) {
	var p Project
	if err := s.db.Select("code").Where("id = ?", projectID).First(&p).Error; err != nil {
		return nil, err
	}
	if len(p.Code) == 0 {
		return nil, nil
	}
	var code pipeline.GeneratedCode
	if err := json.Unmarshal(p.Code, &code); err != nil {
		return nil, err
	}
	return &code, nil
}

// RecordBuild persists a terminal build result.
func (s *Store) RecordBuild(projectID uint, buildID string, result pipeline.BuildResult) (*BuildRecord, error) {
	rec := newBuildRecord(projectID, buildID, result)
	if err := s.db.Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// BuildsByProject lists a project's builds, newest first.
func (s *Store) BuildsByProject(projectID uint) ([]BuildRecord, error) {
	var builds []BuildRecord
	err := s.db.Where("project_id = ?", projectID).Order("created_at DESC").Find(&builds).Error
	return builds, err
}

// RecordDeployment persists one on-chain deployment.
func (s *Store) RecordDeployment(rec DeploymentRecord) (*DeploymentRecord, error) {
	if err := s.db.Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeploymentsByProject lists a project's deployments, newest first.
func (s *Store) DeploymentsByProject(projectID uint) ([]DeploymentRecord, error) {
	var deployments []DeploymentRecord
	err := s.db.Where("project_id = ?", projectID).Order("created_at DESC").Find(&deployments).Error
	return deployments, err
}
