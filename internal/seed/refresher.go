package seed

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/facet-labs/facet/internal/config"
	"github.com/facet-labs/facet/internal/database"
)

// Refresher reseeds the demo dataset on a cron schedule so the rolling
// twelve-month window stays anchored to the current month.
type Refresher struct {
	store    database.Store
	cfg      config.SeedConfig
	schedule string
	cron     *cron.Cron
	running  bool
	mu       sync.Mutex
	logger   zerolog.Logger
}

// NewRefresher validates the cron schedule and builds a stopped refresher.
func NewRefresher(store database.Store, cfg config.SeedConfig, logger zerolog.Logger) (*Refresher, error) {
	schedule := cfg.RefreshSchedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, err
	}

	r := &Refresher{
		store:    store,
		cfg:      cfg,
		schedule: schedule,
		logger:   logger.With().Str("component", "seed-refresher").Logger(),
	}

	r.logger.Info().Str("schedule", schedule).Msg("Seed refresher initialized")
	return r, nil
}

// Start begins scheduled refreshes. Calling Start on a running refresher is
// a no-op.
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.logger.Warn().Msg("Seed refresher already running")
		return nil
	}

	r.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))

	_, err := r.cron.AddFunc(r.schedule, func() {
		r.runRefresh()
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.running = true

	r.logger.Info().
		Str("schedule", r.schedule).
		Time("next_run", r.nextRun()).
		Msg("Seed refresher started")

	return nil
}

// Stop halts the schedule and waits for an in-flight refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}

	r.running = false
	r.logger.Info().Msg("Seed refresher stopped")
}

func (r *Refresher) runRefresh() {
	start := time.Now()
	r.logger.Info().Msg("Triggering scheduled seed refresh")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := Refresh(ctx, r.store, r.cfg, r.logger); err != nil {
		r.logger.Error().Err(err).Msg("Scheduled seed refresh failed")
		return
	}

	r.logger.Info().Dur("duration", time.Since(start)).Msg("Scheduled seed refresh completed")
}

// TriggerNow refreshes immediately, outside the schedule.
func (r *Refresher) TriggerNow(ctx context.Context) error {
	r.logger.Info().Msg("Manual seed refresh")
	return Refresh(ctx, r.store, r.cfg, r.logger)
}

func (r *Refresher) nextRun() time.Time {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(r.schedule)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(time.Now())
}

// Status reports the refresher state for the stats endpoint.
func (r *Refresher) Status() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := map[string]interface{}{
		"running":  r.running,
		"schedule": r.schedule,
	}
	if r.running {
		status["next_run"] = r.nextRun().Format(time.RFC3339)
	}
	return status
}

// IsRunning returns whether the refresher is running.
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
