/**
 * @description
 * Cron scheduler setup for the reconciliation and health-refresh jobs.
 * Reconciliation is single-flight: a tick that fires while a previous run is
 * still in progress is skipped, though ingestion may overlap freely.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron              *cron.Cron
	reconciler        *Reconciler
	health            *HealthCache
	reconcileSchedule string
	healthSchedule    string
	logger            *slog.Logger
	reconcileMu       sync.Mutex
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(reconciler *Reconciler, health *HealthCache, reconcileSchedule, healthSchedule string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:              c,
		reconciler:        reconciler,
		health:            health,
		reconcileSchedule: reconcileSchedule,
		healthSchedule:    healthSchedule,
		logger:            logger,
	}
}

// Start registers the jobs and starts the cron scheduler. An unparseable
// schedule is a configuration error the caller must treat as fatal.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.reconcileSchedule, s.RunReconciliation); err != nil {
		return fmt.Errorf("configuration invalid: reconciliation schedule %q: %w", s.reconcileSchedule, err)
	}
	s.logger.Info("scheduled reconciliation job", "schedule", s.reconcileSchedule)

	if _, err := s.cron.AddFunc(s.healthSchedule, s.RefreshProviderHealth); err != nil {
		return fmt.Errorf("configuration invalid: health refresh schedule %q: %w", s.healthSchedule, err)
	}
	s.logger.Info("scheduled provider health refresh", "schedule", s.healthSchedule)

	s.cron.Start()
	return nil
}

// RunReconciliation executes one reconciliation pass. Overlapping ticks are
// skipped rather than queued.
func (s *Scheduler) RunReconciliation() {
	if !s.reconcileMu.TryLock() {
		s.logger.Warn("reconciliation tick skipped; previous run still in progress")
		return
	}
	defer s.reconcileMu.Unlock()

	s.logger.Info("starting reconciliation run")
	ctx := context.Background()
	report := s.reconciler.ReconcileAll(ctx)

	s.logger.Info("reconciliation run finished",
		"providers", len(report.Providers),
		"duplicates_marked", report.TotalDuplicatesMarked(),
		"stale_pending", report.TotalStalePending(),
		"errors", len(report.Errors),
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String())
	for _, errText := range report.Errors {
		s.logger.Error("reconciliation error", "detail", errText)
	}
}

// RefreshProviderHealth updates the cached liveness snapshot served by the
// health endpoint.
func (s *Scheduler) RefreshProviderHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.health.Refresh(ctx)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
