package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	"github.com/pylon-apis/pylon/internal/infrastructure/models"
)

// UsageRepository implements the usage ledger on gorm.
type UsageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository and ensures the schema.
func NewUsageRepository(db *gorm.DB) (*UsageRepository, error) {
	if err := db.AutoMigrate(&models.UsageRecord{}); err != nil {
		return nil, err
	}
	return &UsageRepository{db: db}, nil
}

// Append writes one ledger row. The row is committed before return so a
// crash cannot lose an attributed, settled payment.
func (r *UsageRepository) Append(ctx context.Context, rec *entities.UsageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m := &models.UsageRecord{
		ID:           rec.ID,
		CallerID:     rec.CallerID,
		CapabilityID: rec.CapabilityID,
		CostMicros:   rec.CostMicros,
		Success:      rec.Success,
		LatencyMs:    rec.LatencyMs,
		CreatedAt:    rec.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *UsageRepository) scoped(ctx context.Context, q entities.UsageQuery) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Where("caller_id = ?", q.CallerID)
	if !q.From.IsZero() {
		db = db.Where("created_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		// Inclusive day bound: everything before the following midnight.
		db = db.Where("created_at < ?", q.To.AddDate(0, 0, 1))
	}
	return db
}

// Totals returns the caller-scoped aggregate.
func (r *UsageRepository) Totals(ctx context.Context, q entities.UsageQuery) (*entities.UsageTotals, error) {
	var row struct {
		TotalCalls  int64
		SpentMicros int64
		SuccessRate float64
		AvgLatency  float64
		FirstCall   *time.Time
		LastCall    *time.Time
	}
	err := r.scoped(ctx, q).
		Select(`COUNT(*) AS total_calls,
			COALESCE(SUM(cost_micros), 0) AS spent_micros,
			COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0) AS success_rate,
			COALESCE(AVG(latency_ms), 0) AS avg_latency,
			MIN(created_at) AS first_call,
			MAX(created_at) AS last_call`).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &entities.UsageTotals{
		TotalCalls:  row.TotalCalls,
		SpentMicros: row.SpentMicros,
		TotalSpent:  entities.FormatUSD(row.SpentMicros),
		SuccessRate: row.SuccessRate,
		AvgLatency:  row.AvgLatency,
		FirstCall:   row.FirstCall,
		LastCall:    row.LastCall,
	}, nil
}

// ByCapability returns per-capability aggregates, descending by spend.
func (r *UsageRepository) ByCapability(ctx context.Context, q entities.UsageQuery) ([]*entities.CapabilityUsage, error) {
	var rows []struct {
		CapabilityID string
		Calls        int64
		SpentMicros  int64
		SuccessRate  float64
		AvgLatency   float64
	}
	err := r.scoped(ctx, q).
		Select(`capability_id,
			COUNT(*) AS calls,
			COALESCE(SUM(cost_micros), 0) AS spent_micros,
			COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0) AS success_rate,
			COALESCE(AVG(latency_ms), 0) AS avg_latency`).
		Group("capability_id").
		Order("spent_micros DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entities.CapabilityUsage, 0, len(rows))
	for _, row := range rows {
		out = append(out, &entities.CapabilityUsage{
			CapabilityID: row.CapabilityID,
			Calls:        row.Calls,
			SpentMicros:  row.SpentMicros,
			Spent:        entities.FormatUSD(row.SpentMicros),
			SuccessRate:  row.SuccessRate,
			AvgLatency:   row.AvgLatency,
		})
	}
	return out, nil
}

// Timeline returns per-day spend and call counts, ascending by date.
func (r *UsageRepository) Timeline(ctx context.Context, q entities.UsageQuery) ([]*entities.DayUsage, error) {
	var rows []struct {
		Day         string
		Calls       int64
		SpentMicros int64
	}
	err := r.scoped(ctx, q).
		Select(`DATE(created_at) AS day,
			COUNT(*) AS calls,
			COALESCE(SUM(cost_micros), 0) AS spent_micros`).
		Group("DATE(created_at)").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entities.DayUsage, 0, len(rows))
	for _, row := range rows {
		out = append(out, &entities.DayUsage{
			Day:         row.Day,
			Calls:       row.Calls,
			SpentMicros: row.SpentMicros,
			Spent:       entities.FormatUSD(row.SpentMicros),
		})
	}
	return out, nil
}
