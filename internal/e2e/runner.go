package e2e

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// Config holds runner timeouts and policy.
type Config struct {
	StepTimeout            time.Duration // wait for the completion indicator
	EnableTimeout          time.Duration // wait for the "do it" button to enable
	StopOnMandatoryFailure bool
}

// DefaultConfig returns runner defaults.
func DefaultConfig() Config {
	return Config{
		StepTimeout:            30 * time.Second,
		EnableTimeout:          10 * time.Second,
		StopOnMandatoryFailure: true,
	}
}

// Runner executes discovered steps strictly in order.
type Runner struct {
	config    Config
	session   domain.SessionChecker
	artifacts domain.ArtifactStore
	now       func() time.Time
	logger    *zap.Logger
}

// NewRunner creates a runner. session and artifacts may be nil.
func NewRunner(config Config, session domain.SessionChecker, artifacts domain.ArtifactStore, logger *zap.Logger) *Runner {
	def := DefaultConfig()
	if config.StepTimeout <= 0 {
		config.StepTimeout = def.StepTimeout
	}
	if config.EnableTimeout <= 0 {
		config.EnableTimeout = def.EnableTimeout
	}
	return &Runner{
		config:    config,
		session:   session,
		artifacts: artifacts,
		now:       time.Now,
		logger:    logger,
	}
}

// Run discovers and executes every step on page. The report is returned even
// when the run aborts: with ErrAuthExpired if the session expired, or with the
// context error if the run was interrupted. Neither counts as a success.
func (r *Runner) Run(ctx context.Context, page domain.BrowserPage, guideURL string) (*domain.RunReport, error) {
	report := &domain.RunReport{
		ID:        uuid.NewString(),
		GuideURL:  guideURL,
		StartedAt: r.now(),
	}
	log := r.logger.With(zap.String("run_id", report.ID), zap.String("guide", guideURL))

	steps, err := Discover(ctx, page)
	if err != nil {
		return nil, err
	}
	report.Steps = steps
	log.Info("discovered steps", zap.Int("count", len(steps)))

	stopReason := domain.ReasonNone
	for _, step := range steps {
		if stopReason != domain.ReasonNone {
			report.Results = append(report.Results, notReached(step, stopReason))
			continue
		}
		if ctx.Err() != nil {
			report.Canceled = true
			stopReason = domain.ReasonCanceled
			report.Results = append(report.Results, notReached(step, stopReason))
			continue
		}
		if r.session != nil {
			if err := r.session.CheckSession(ctx, page); err != nil {
				if errors.Is(err, domain.ErrAuthExpired) {
					log.Error("authentication expired mid-run", zap.String("step", step.StepID))
					report.AuthExpired = true
					stopReason = domain.ReasonAuthExpired
					report.Results = append(report.Results, notReached(step, stopReason))
					continue
				}
				log.Warn("session check failed", zap.Error(err))
			}
		}

		res := r.executeStep(ctx, page, report.ID, step)
		report.Results = append(report.Results, res)
		log.Info("step finished",
			zap.String("step", step.StepID),
			zap.Int("index", step.Index),
			zap.String("status", string(res.Status)),
			zap.String("reason", string(res.Reason)),
			zap.Duration("duration", res.Duration))

		if res.Status == domain.StatusFailed && !step.Skippable && r.config.StopOnMandatoryFailure {
			stopReason = domain.ReasonMandatoryFailure
		}
	}

	if ctx.Err() != nil {
		report.Canceled = true
	}
	report.FinishedAt = r.now()
	report.Summary = Summarize(report.Results, report.FinishedAt.Sub(report.StartedAt),
		report.AuthExpired || report.Canceled)
	switch {
	case report.AuthExpired:
		return report, domain.ErrAuthExpired
	case report.Canceled:
		log.Warn("run interrupted", zap.Int("not_reached", report.Summary.NotReached))
		return report, fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	return report, nil
}

func notReached(step domain.TestableStep, reason domain.Reason) domain.StepTestResult {
	return domain.StepTestResult{
		StepID:    step.StepID,
		Index:     step.Index,
		Status:    domain.StatusNotReached,
		Reason:    reason,
		Skippable: step.Skippable,
	}
}

func (r *Runner) executeStep(ctx context.Context, page domain.BrowserPage, runID string, step domain.TestableStep) domain.StepTestResult {
	start := r.now()
	res := domain.StepTestResult{
		StepID:    step.StepID,
		Index:     step.Index,
		Skippable: step.Skippable,
	}
	switch {
	case step.IsPreCompleted:
		res.Status, res.Reason = domain.StatusSkipped, domain.ReasonPreCompleted
		return res
	case !step.HasDoItButton:
		res.Status, res.Reason = domain.StatusSkipped, domain.ReasonNoDoItButton
		return res
	}

	page.DrainConsoleErrors()
	err := r.attempt(ctx, page, step)
	res.ConsoleErrors = page.DrainConsoleErrors()
	if u, uerr := page.CurrentURL(ctx); uerr == nil {
		res.CurrentURL = u
	}
	if err != nil {
		res.Status = domain.StatusFailed
		res.Reason = domain.ReasonError
		if errors.Is(err, context.DeadlineExceeded) {
			res.Reason = domain.ReasonTimeout
		}
		res.Error = err.Error()
		res.Screenshot = r.captureFailure(ctx, page, runID, step)
	} else {
		res.Status = domain.StatusPassed
	}
	res.Duration = r.now().Sub(start)
	return res
}

func (r *Runner) attempt(ctx context.Context, page domain.BrowserPage, step domain.TestableStep) error {
	doIt := DoItSelector(step.StepID)
	if err := page.ScrollIntoView(ctx, StepSelector(step.StepID)); err != nil {
		return fmt.Errorf("scroll to step: %w", err)
	}

	enableCtx, cancel := context.WithTimeout(ctx, r.config.EnableTimeout)
	defer cancel()
	if err := page.WaitEnabled(enableCtx, doIt); err != nil {
		return fmt.Errorf("wait for do-it button: %w", err)
	}
	if err := page.Click(ctx, doIt); err != nil {
		return fmt.Errorf("click do-it button: %w", err)
	}

	doneCtx, cancelDone := context.WithTimeout(ctx, r.config.StepTimeout)
	defer cancelDone()
	if err := page.WaitVisible(doneCtx, CompletedSelector(step.StepID)); err != nil {
		return fmt.Errorf("wait for completion: %w", err)
	}
	return nil
}

// captureFailure stores a screenshot when both the page and an artifact store support it.
func (r *Runner) captureFailure(ctx context.Context, page domain.BrowserPage, runID string, step domain.TestableStep) string {
	shooter, ok := page.(domain.Screenshotter)
	if !ok || r.artifacts == nil {
		return ""
	}
	// The step context may already be past its deadline.
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	data, err := shooter.Screenshot(shotCtx)
	if err != nil {
		r.logger.Warn("failure screenshot failed", zap.String("step", step.StepID), zap.Error(err))
		return ""
	}
	path, err := r.artifacts.WriteArtifact(runID, screenshotName(step), data)
	if err != nil {
		r.logger.Warn("failed to store screenshot", zap.String("step", step.StepID), zap.Error(err))
		return ""
	}
	return path
}

// screenshotName builds a file name from the step id, which comes from the DOM
// and may contain path separators.
func screenshotName(step domain.TestableStep) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, step.StepID)
	return fmt.Sprintf("%02d-%s.png", step.Index, id)
}

// Summarize aggregates step results. An interrupted run never succeeds.
func Summarize(results []domain.StepTestResult, d time.Duration, interrupted bool) domain.RunSummary {
	s := domain.RunSummary{Total: len(results), Duration: d}
	for _, res := range results {
		switch res.Status {
		case domain.StatusPassed:
			s.Passed++
		case domain.StatusFailed:
			s.Failed++
			if !res.Skippable {
				s.MandatoryFailures++
			}
		case domain.StatusSkipped:
			s.Skipped++
		case domain.StatusNotReached:
			s.NotReached++
		}
	}
	s.Success = s.MandatoryFailures == 0 && !interrupted
	return s
}
