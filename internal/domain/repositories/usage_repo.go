package repositories

import (
	"context"

	"github.com/pylon-apis/pylon/internal/domain/entities"
)

// UsageRepository is the append-only usage ledger. Appends must be durable
// before the dispatch response is written.
type UsageRepository interface {
	Append(ctx context.Context, rec *entities.UsageRecord) error
	Totals(ctx context.Context, q entities.UsageQuery) (*entities.UsageTotals, error)
	ByCapability(ctx context.Context, q entities.UsageQuery) ([]*entities.CapabilityUsage, error)
	Timeline(ctx context.Context, q entities.UsageQuery) ([]*entities.DayUsage, error)
}
