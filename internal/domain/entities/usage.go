package entities

import (
	"time"

	"github.com/google/uuid"
)

// AnonymousCaller is recorded when neither a wallet header nor a payment
// proof identifies the caller.
const AnonymousCaller = "anonymous"

// UsageRecord is one appended ledger row. Append-only, written for success
// and failure alike so the ledger reconciles against settled payments.
type UsageRecord struct {
	ID           uuid.UUID
	CallerID     string
	CapabilityID string
	CostMicros   int64
	Success      bool
	LatencyMs    int64
	CreatedAt    time.Time
}

// UsageTotals is the caller-scoped aggregate.
type UsageTotals struct {
	TotalCalls  int64      `json:"totalCalls"`
	SpentMicros int64      `json:"-"`
	TotalSpent  string     `json:"totalSpent"`
	SuccessRate float64    `json:"successRate"`
	AvgLatency  float64    `json:"avgLatencyMs"`
	FirstCall   *time.Time `json:"firstCall,omitempty"`
	LastCall    *time.Time `json:"lastCall,omitempty"`
}

// CapabilityUsage is the per-capability aggregate, ordered by spend.
type CapabilityUsage struct {
	CapabilityID string  `json:"capability"`
	Calls        int64   `json:"calls"`
	SpentMicros  int64   `json:"-"`
	Spent        string  `json:"spent"`
	SuccessRate  float64 `json:"successRate"`
	AvgLatency   float64 `json:"avgLatencyMs"`
}

// DayUsage is one day of the spend timeline, ordered by date.
type DayUsage struct {
	Day         string `json:"date"` // YYYY-MM-DD
	Calls       int64  `json:"calls"`
	SpentMicros int64  `json:"-"`
	Spent       string `json:"spent"`
}

// UsageQuery scopes an aggregation. From/To are inclusive day bounds; zero
// values mean unbounded.
type UsageQuery struct {
	CallerID string
	From     time.Time
	To       time.Time
}
