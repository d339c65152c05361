package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is the persisted ledger row. Indexed by caller and timestamp;
// rows are never updated or deleted.
type UsageRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	CallerID     string    `gorm:"size:128;not null;index:idx_usage_caller"`
	CapabilityID string    `gorm:"size:64;not null"`
	CostMicros   int64     `gorm:"not null"`
	Success      bool      `gorm:"not null"`
	LatencyMs    int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_usage_created"`
}

// TableName overrides the table name
func (UsageRecord) TableName() string {
	return "usage_records"
}
