package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	"github.com/pylon-apis/pylon/internal/infrastructure/repositories"
)

func newRepo(t *testing.T) *repositories.UsageRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	repo, err := repositories.NewUsageRepository(db)
	require.NoError(t, err)
	return repo
}

func appendRec(t *testing.T, repo *repositories.UsageRepository, caller, capability string, micros int64, success bool, at time.Time) {
	t.Helper()
	err := repo.Append(context.Background(), &entities.UsageRecord{
		CallerID:     caller,
		CapabilityID: capability,
		CostMicros:   micros,
		Success:      success,
		LatencyMs:    120,
		CreatedAt:    at,
	})
	require.NoError(t, err)
}

func TestTotals(t *testing.T) {
	repo := newRepo(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	appendRec(t, repo, "0xwallet", "screenshot", 10_000, true, now)
	appendRec(t, repo, "0xwallet", "screenshot", 10_000, true, now.Add(time.Hour))
	appendRec(t, repo, "0xwallet", "web-scrape", 5_000, false, now.Add(2*time.Hour))
	appendRec(t, repo, "0xother", "screenshot", 10_000, true, now)

	totals, err := repo.Totals(context.Background(), entities.UsageQuery{CallerID: "0xwallet"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.TotalCalls)
	assert.Equal(t, int64(25_000), totals.SpentMicros)
	assert.Equal(t, "$0.025", totals.TotalSpent)
	assert.InDelta(t, 2.0/3.0, totals.SuccessRate, 1e-9)
	require.NotNil(t, totals.FirstCall)
	require.NotNil(t, totals.LastCall)
}

func TestTotalsEmptyCaller(t *testing.T) {
	repo := newRepo(t)

	totals, err := repo.Totals(context.Background(), entities.UsageQuery{CallerID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.TotalCalls)
	assert.Equal(t, "$0.00", totals.TotalSpent)
}

func TestByCapabilityOrdersBySpend(t *testing.T) {
	repo := newRepo(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	appendRec(t, repo, "0xwallet", "web-scrape", 5_000, true, now)
	appendRec(t, repo, "0xwallet", "screenshot", 10_000, true, now)
	appendRec(t, repo, "0xwallet", "screenshot", 10_000, false, now)

	rows, err := repo.ByCapability(context.Background(), entities.UsageQuery{CallerID: "0xwallet"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "screenshot", rows[0].CapabilityID)
	assert.Equal(t, int64(20_000), rows[0].SpentMicros)
	assert.InDelta(t, 0.5, rows[0].SuccessRate, 1e-9)
	assert.Equal(t, "web-scrape", rows[1].CapabilityID)
}

func TestTimelineDayBounds(t *testing.T) {
	repo := newRepo(t)

	day1 := time.Date(2026, 8, 18, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	appendRec(t, repo, "0xwallet", "screenshot", 10_000, true, day1)
	appendRec(t, repo, "0xwallet", "screenshot", 10_000, true, day2)
	appendRec(t, repo, "0xwallet", "screenshot", 10_000, true, day2.Add(time.Hour))
	appendRec(t, repo, "0xwallet", "screenshot", 10_000, true, day3)

	days, err := repo.Timeline(context.Background(), entities.UsageQuery{
		CallerID: "0xwallet",
		From:     time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-08-18", days[0].Day)
	assert.Equal(t, int64(1), days[0].Calls)
	assert.Equal(t, "2026-08-19", days[1].Day)
	assert.Equal(t, int64(2), days[1].Calls)
	assert.Equal(t, "$0.02", days[1].Spent)
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	repo := newRepo(t)

	rec := &entities.UsageRecord{CallerID: entities.AnonymousCaller, CapabilityID: "qr-code", CostMicros: 2_000, Success: true}
	require.NoError(t, repo.Append(context.Background(), rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
}
