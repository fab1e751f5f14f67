// Package eventlog is the supplementary, Postgres-backed audit trail of
// orchestrator phase transitions. It is strictly write-only from the
// orchestrator's perspective and never authoritative — the Deployment
// Store remains the sole source of truth for deployment state. Gated by
// DB_EVENTLOG_ENABLED; when disabled, Log is a nil-receiver-safe no-op so
// the core state machine has no hard dependency on Postgres.
package eventlog

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry is one row of the deployment_events table.
type Entry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeploymentID string    `gorm:"index;not null"`
	Phase        string    `gorm:"not null"`
	Status       string    `gorm:"not null"`
	Detail       string
	OccurredAt   time.Time `gorm:"not null"`
}

func (Entry) TableName() string { return "deployment_events" }

// Log records orchestrator phase transitions to Postgres. A nil *Log is
// valid and Record becomes a no-op, so callers never need to branch on
// whether the event log is enabled.
type Log struct {
	db     *gorm.DB
	logger *zap.Logger
}

func New(db *gorm.DB, logger *zap.Logger) *Log {
	if db == nil {
		return nil
	}
	return &Log{db: db, logger: logger}
}

// Record writes one phase-transition row. Failures are logged, never
// propagated — this is debugging telemetry, not correctness-bearing.
func (l *Log) Record(deploymentID, phase, status, detail string) {
	if l == nil {
		return
	}
	entry := Entry{
		ID:           uuid.New(),
		DeploymentID: deploymentID,
		Phase:        phase,
		Status:       status,
		Detail:       detail,
		OccurredAt:   time.Now().UTC(),
	}
	if err := l.db.Create(&entry).Error; err != nil {
		l.logger.Warn("eventlog: write failed", zap.String("deployment_id", deploymentID), zap.Error(err))
	}
}

// ForDeployment returns the recorded events for a deployment, oldest
// first. Returns an empty slice (never an error surfaced to the caller)
// when the event log is disabled.
func (l *Log) ForDeployment(deploymentID string) ([]Entry, error) {
	if l == nil {
		return []Entry{}, nil
	}
	var entries []Entry
	err := l.db.Where("deployment_id = ?", deploymentID).Order("occurred_at asc").Find(&entries).Error
	return entries, err
}
