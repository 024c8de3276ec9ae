// Package store - Project Persistence
// GORM-backed storage for users, projects, and their build and
// deployment history. Postgres in production, SQLite for local runs
// and tests.
package store

import (
	"time"

	"gorm.io/gorm"

	"dappforge/internal/pipeline"
)

// User is an account that owns projects.
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`
	IsActive     bool   `json:"is_active" gorm:"default:true"`

	Projects []Project `json:"projects,omitempty" gorm:"foreignKey:OwnerID"`
}

// Project is one dApp with its latest generated code.
type Project struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	OwnerID     uint   `json:"owner_id" gorm:"index;not null"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`

	// Latest generated code, serialized as JSON.
	Code []byte `json:"-" gorm:"type:bytes"`

	Builds      []BuildRecord      `json:"builds,omitempty" gorm:"foreignKey:ProjectID"`
	Deployments []DeploymentRecord `json:"deployments,omitempty" gorm:"foreignKey:ProjectID"`
}

// BuildRecord is the persisted outcome of one pipeline run.
type BuildRecord struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID  uint   `json:"project_id" gorm:"index;not null"`
	BuildID    string `json:"build_id" gorm:"uniqueIndex;not null"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Iterations int    `json:"iterations"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	Warnings   int    `json:"warnings"`
	TestsRun   int    `json:"tests_run"`
	TestsOK    int    `json:"tests_ok"`
}

// DeploymentRecord is one on-chain deployment of a project.
type DeploymentRecord struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID       uint   `json:"project_id" gorm:"index;not null"`
	ContractAddress string `json:"contract_address" gorm:"not null"`
	TransactionHash string `json:"transaction_hash" gorm:"not null"`
	ChainID         string `json:"chain_id"`
	BlockNumber     uint64 `json:"block_number"`
}

// newBuildRecord flattens a terminal pipeline result for persistence.
func newBuildRecord(projectID uint, buildID string, result pipeline.BuildResult) BuildRecord {
	rec := BuildRecord{
		ProjectID:  projectID,
		BuildID:    buildID,
		Success:    result.Success,
		Error:      result.Error,
		Iterations: result.Iterations,
		ElapsedMs:  result.ElapsedMs,
		Warnings:   len(result.SecurityWarnings),
	}
	if result.TestResult != nil {
		rec.TestsRun = result.TestResult.TotalTests
		rec.TestsOK = result.TestResult.Passed
	}
	return rec
}
