// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/e2e"
	"github.com/eliteGoblin/pathfinder/internal/retry"
)

// TokenSecretKey is the secret-store key of the Grafana service-account token.
const TokenSecretKey = "grafana_token"

// ErrNoSteps is returned when a guide renders no step markers in time.
var ErrNoSteps = errors.New("guide rendered no interactive steps")

// Page is a browser page the verifier can drive and dispose of.
type Page interface {
	domain.BrowserPage
	Navigate(ctx context.Context, url string) error
	Close() error
}

// PageFactory opens a fresh page authenticated with token (which may be empty).
type PageFactory func(ctx context.Context, token string) (Page, error)

// OrphanReaper kills browsers left over from crashed runs.
type OrphanReaper interface {
	ReapOrphans(keep ...int) ([]int, error)
}

// VerifierConfig holds preflight timing.
type VerifierConfig struct {
	Navigate      retry.Policy  // retries for the initial page load
	RenderTimeout time.Duration // wait for the first step marker
	RenderPoll    time.Duration
}

// DefaultVerifierConfig returns verifier defaults.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Navigate:      retry.Policy{MaxAttempts: 3, Delay: 2 * time.Second},
		RenderTimeout: 15 * time.Second,
		RenderPoll:    250 * time.Millisecond,
	}
}

// Verifier runs one guide end to end and records the outcome.
type Verifier struct {
	runner  *e2e.Runner
	pages   PageFactory
	secrets domain.SecretStore
	history domain.RunHistoryStore
	reaper  OrphanReaper
	config  VerifierConfig
	logger  *zap.Logger
}

// NewVerifier creates a verifier. secrets, history and reaper may be nil.
func NewVerifier(
	runner *e2e.Runner,
	pages PageFactory,
	secrets domain.SecretStore,
	history domain.RunHistoryStore,
	reaper OrphanReaper,
	config VerifierConfig,
	logger *zap.Logger,
) *Verifier {
	return &Verifier{
		runner:  runner,
		pages:   pages,
		secrets: secrets,
		history: history,
		reaper:  reaper,
		config:  config,
		logger:  logger,
	}
}

// Verify opens guideURL in a fresh browser, replays every step and saves the
// report. The report is returned alongside ErrAuthExpired when the session
// expired mid-run.
func (v *Verifier) Verify(ctx context.Context, guideURL string) (*domain.RunReport, error) {
	log := v.logger.With(zap.String("guide", guideURL))
	v.reapOrphans()

	page, err := v.pages(ctx, v.token())
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn("failed to close browser", zap.Error(err))
		}
	}()

	attempts, err := retry.Do(ctx, v.config.Navigate, func(ctx context.Context) error {
		return page.Navigate(ctx, guideURL)
	}, func(attempt int, err error, next time.Duration) {
		log.Warn("navigation failed, retrying", zap.Int("attempt", attempt), zap.Duration("next", next), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("navigate to guide after %d attempts: %w", attempts, err)
	}

	err = retry.Poll(ctx, v.config.RenderPoll, v.config.RenderTimeout, func(ctx context.Context) (bool, error) {
		markers, err := page.StepMarkers(ctx)
		return len(markers) > 0, err
	})
	if errors.Is(err, retry.ErrConditionNotMet) {
		return nil, fmt.Errorf("%w within %s", ErrNoSteps, v.config.RenderTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("wait for guide to render: %w", err)
	}

	report, runErr := v.runner.Run(ctx, page, guideURL)
	if report != nil {
		v.save(*report)
		log.Info("guide verified",
			zap.String("run_id", report.ID),
			zap.Bool("success", report.Summary.Success),
			zap.Int("passed", report.Summary.Passed),
			zap.Int("failed", report.Summary.Failed),
			zap.Int("not_reached", report.Summary.NotReached))
	}
	return report, runErr
}

func (v *Verifier) reapOrphans() {
	if v.reaper == nil {
		return
	}
	if _, err := v.reaper.ReapOrphans(); err != nil {
		v.logger.Warn("orphan browser cleanup failed", zap.Error(err))
	}
}

func (v *Verifier) token() string {
	if v.secrets == nil {
		return ""
	}
	token, err := v.secrets.GetSecret(TokenSecretKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		v.logger.Debug("no stored grafana token, running anonymously")
		return ""
	case err != nil:
		v.logger.Warn("failed to read grafana token", zap.Error(err))
		return ""
	}
	return token
}

func (v *Verifier) save(report domain.RunReport) {
	if v.history == nil {
		return
	}
	if err := v.history.SaveRun(report); err != nil {
		v.logger.Error("failed to save run report", zap.String("run_id", report.ID), zap.Error(err))
	}
}
