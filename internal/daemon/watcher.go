// Package daemon implements the long-running guide watcher.
package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// GuideVerifier runs one guide end to end.
type GuideVerifier interface {
	Verify(ctx context.Context, guideURL string) (*domain.RunReport, error)
}

// OrphanReaper kills browsers left over from crashed runs.
type OrphanReaper interface {
	ReapOrphans(keep ...int) ([]int, error)
}

// HistoryPruner drops old run reports.
type HistoryPruner interface {
	PruneRuns(cutoff time.Time) (int64, error)
}

// Guide is one guide under watch.
type Guide struct {
	Name string
	URL  string
}

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	VerifyInterval  time.Duration // How often to re-verify every guide (default 10 min)
	CleanupInterval time.Duration // How often to reap orphan browsers and prune history
	Retention       time.Duration // Run history age limit; 0 keeps everything
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		VerifyInterval:  10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		Retention:       30 * 24 * time.Hour,
	}
}

// Outcome is the result of verifying one guide in a cycle.
type Outcome struct {
	Guide  Guide
	Report *domain.RunReport
	Err    error
}

// Watcher re-verifies a fixed set of guides on a schedule and keeps the
// host clean of orphaned browsers.
type Watcher struct {
	config   WatcherConfig
	guides   []Guide
	verifier GuideVerifier
	reaper   OrphanReaper
	pruner   HistoryPruner
	now      func() time.Time
	logger   *zap.Logger
}

// NewWatcher creates a new watcher daemon. reaper and pruner may be nil.
func NewWatcher(
	config WatcherConfig,
	guides []Guide,
	verifier GuideVerifier,
	reaper OrphanReaper,
	pruner HistoryPruner,
	logger *zap.Logger,
) *Watcher {
	def := DefaultWatcherConfig()
	if config.VerifyInterval <= 0 {
		config.VerifyInterval = def.VerifyInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &Watcher{
		config:   config,
		guides:   guides,
		verifier: verifier,
		reaper:   reaper,
		pruner:   pruner,
		now:      time.Now,
		logger:   logger,
	}
}

// Run starts the watcher loop. It verifies every guide immediately, then on
// each tick, and blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher daemon started",
		zap.Int("guides", len(w.guides)),
		zap.Duration("interval", w.config.VerifyInterval))

	w.cleanup()
	w.VerifyAll(ctx)

	verifyTicker := time.NewTicker(w.config.VerifyInterval)
	cleanupTicker := time.NewTicker(w.config.CleanupInterval)
	defer func() {
		verifyTicker.Stop()
		cleanupTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher daemon stopping")
			return ctx.Err()

		case <-verifyTicker.C:
			w.VerifyAll(ctx)

		case <-cleanupTicker.C:
			w.cleanup()
		}
	}
}

// VerifyAll verifies each guide in order. An expired session ends the cycle
// early since every later guide would fail the same way.
func (w *Watcher) VerifyAll(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(w.guides))
	var failed int
	for _, g := range w.guides {
		if ctx.Err() != nil {
			break
		}
		report, err := w.verifier.Verify(ctx, g.URL)
		outcomes = append(outcomes, Outcome{Guide: g, Report: report, Err: err})

		switch {
		case errors.Is(err, domain.ErrAuthExpired):
			w.logger.Error("grafana session expired, skipping remaining guides this cycle",
				zap.String("guide", g.Name))
			return outcomes
		case ctx.Err() != nil:
			w.logger.Info("verification cycle interrupted", zap.String("guide", g.Name))
			return outcomes
		case err != nil:
			failed++
			w.logger.Error("guide verification failed", zap.String("guide", g.Name), zap.Error(err))
		case !report.Summary.Success:
			failed++
			w.logger.Warn("guide has failing steps",
				zap.String("guide", g.Name),
				zap.String("run_id", report.ID),
				zap.Int("mandatory_failures", report.Summary.MandatoryFailures))
		}
	}
	w.logger.Info("verification cycle completed",
		zap.Int("guides", len(outcomes)),
		zap.Int("failed", failed))
	return outcomes
}

// cleanup reaps orphan browsers and prunes expired history.
func (w *Watcher) cleanup() {
	if w.reaper != nil {
		if _, err := w.reaper.ReapOrphans(); err != nil {
			w.logger.Warn("orphan browser cleanup failed", zap.Error(err))
		}
	}
	if w.pruner != nil && w.config.Retention > 0 {
		n, err := w.pruner.PruneRuns(w.now().Add(-w.config.Retention))
		if err != nil {
			w.logger.Warn("history prune failed", zap.Error(err))
			return
		}
		if n > 0 {
			w.logger.Info("pruned run history", zap.Int64("runs", n))
		}
	}
}
