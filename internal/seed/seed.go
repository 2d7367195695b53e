// Package seed generates the deterministic retail_sales demo dataset: twelve
// months of daily sales for a dozen stores across four regions and four
// product categories.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/facet-labs/facet/internal/config"
	"github.com/facet-labs/facet/internal/database"
)

var (
	regions    = []string{"North", "South", "East", "West"}
	categories = []string{"Beverages", "Snacks", "Household", "Personal Care"}
)

const (
	storeCount   = 12
	storesPerDay = 6
	monthsBack   = 12
	daysPerMonth = 15
	maxDay       = 28 // keeps generated days valid in February

	minUnits     = 1
	maxUnits     = 25
	minUnitPrice = 3.5
	maxUnitPrice = 25.0
)

type storeInfo struct {
	id   string
	name string
}

func allStores() []storeInfo {
	stores := make([]storeInfo, 0, storeCount)
	for i := 1; i <= storeCount; i++ {
		stores = append(stores, storeInfo{
			id:   fmt.Sprintf("S%03d", i),
			name: fmt.Sprintf("Store %03d", i),
		})
	}
	return stores
}

// GenerateRows builds the full demo dataset relative to now. The same seed
// and month window always produce the same rows.
func GenerateRows(seed int64, now time.Time) []database.Row {
	rng := rand.New(rand.NewSource(seed))
	dates := generateDates(rng, now)
	stores := allStores()

	rows := make([]database.Row, 0, len(dates)*storesPerDay)
	for _, d := range dates {
		for _, st := range sampleStores(rng, stores, storesPerDay) {
			units := minUnits + rng.Intn(maxUnits-minUnits+1)
			price := minUnitPrice + rng.Float64()*(maxUnitPrice-minUnitPrice)
			rows = append(rows, database.Row{
				Date:      d,
				StoreID:   st.id,
				StoreName: st.name,
				Region:    regions[rng.Intn(len(regions))],
				Category:  categories[rng.Intn(len(categories))],
				SKU:       fmt.Sprintf("SKU-%d", 1000+rng.Intn(9000)),
				Units:     units,
				NetSales:  math.Round(float64(units)*price*100) / 100,
			})
		}
	}
	return rows
}

// generateDates picks daysPerMonth random days in each of the last monthsBack
// months, duplicates allowed, sorted ascending.
func generateDates(rng *rand.Rand, now time.Time) []time.Time {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, 0, monthsBack*daysPerMonth)
	for m := 0; m < monthsBack; m++ {
		base := monthStart.AddDate(0, -m, 0)
		for i := 0; i < daysPerMonth; i++ {
			day := 1 + rng.Intn(maxDay)
			dates = append(dates, time.Date(base.Year(), base.Month(), day, 0, 0, 0, 0, time.UTC))
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// sampleStores picks k distinct stores via a partial Fisher-Yates shuffle.
func sampleStores(rng *rand.Rand, stores []storeInfo, k int) []storeInfo {
	picked := make([]storeInfo, len(stores))
	copy(picked, stores)
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:k]
}

// Ensure seeds the table when it is empty. An already-populated table is
// left untouched so restarts never clobber imported data.
func Ensure(ctx context.Context, store database.Store, cfg config.SeedConfig, logger zerolog.Logger) error {
	log := logger.With().Str("component", "seed").Logger()

	if !cfg.Enabled {
		log.Debug().Msg("Seeding disabled")
		return nil
	}

	count, err := database.CountRows(ctx, store)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if count > 0 {
		log.Debug().Int64("rows", count).Msg("Table already populated, skipping seed")
		return nil
	}

	rows := GenerateRows(cfg.Seed, time.Now())
	if err := database.InsertRows(ctx, store, rows); err != nil {
		return fmt.Errorf("insert seed rows: %w", err)
	}

	log.Info().Int("rows", len(rows)).Int64("seed", cfg.Seed).Msg("Seeded demo data")
	return nil
}

// Refresh truncates and reseeds, shifting the demo window up to the current
// month. Used by the Refresher and by manual triggers.
func Refresh(ctx context.Context, store database.Store, cfg config.SeedConfig, logger zerolog.Logger) error {
	log := logger.With().Str("component", "seed").Logger()

	if err := database.TruncateTable(ctx, store); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	rows := GenerateRows(cfg.Seed, time.Now())
	if err := database.InsertRows(ctx, store, rows); err != nil {
		return fmt.Errorf("insert seed rows: %w", err)
	}

	log.Info().Int("rows", len(rows)).Msg("Demo data refreshed")
	return nil
}
