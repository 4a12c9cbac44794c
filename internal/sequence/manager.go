// Package sequence executes the steps of an interactive section in order,
// retrying each one and stopping the section when a step cannot complete.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/retry"
)

var (
	// ErrSequenceAborted is wrapped by AbortError.
	ErrSequenceAborted = errors.New("interactive sequence aborted")

	// ErrRequirementsNotMet marks a retryable failed requirements check.
	ErrRequirementsNotMet = errors.New("requirements not met")
)

// AbortPolicy decides what happens when a step exhausts its retries.
type AbortPolicy string

const (
	AbortAll        AbortPolicy = "abort-all"
	SkipAndContinue AbortPolicy = "skip-and-continue"
)

// Valid reports whether p is a known policy.
func (p AbortPolicy) Valid() bool {
	return p == AbortAll || p == SkipAndContinue
}

// Config holds sequence timing and retry settings.
type Config struct {
	MaxRetries  int           // attempts per element
	RetryDelay  time.Duration // pause between attempts
	SettleDelay time.Duration // wait after an action when no Settler is set
	StepDelay   time.Duration // pause between step-by-step elements
	AbortPolicy AbortPolicy
}

// DefaultConfig returns sequence defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  200 * time.Millisecond,
		SettleDelay: 300 * time.Millisecond,
		StepDelay:   500 * time.Millisecond,
		AbortPolicy: AbortAll,
	}
}

// Policy returns the retry policy for one element.
func (c Config) Policy() retry.Policy {
	return retry.Policy{MaxAttempts: c.MaxRetries, Delay: c.RetryDelay}
}

// FailureOrigin classifies why an element failed.
type FailureOrigin string

const (
	OriginRequirements FailureOrigin = "requirements"
	OriginExecution    FailureOrigin = "execution"
	OriginCanceled     FailureOrigin = "canceled"
)

// Classify maps an element error to its origin.
func Classify(err error) FailureOrigin {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OriginCanceled
	case errors.Is(err, ErrRequirementsNotMet):
		return OriginRequirements
	}
	return OriginExecution
}

// AbortError reports the element that stopped the sequence.
type AbortError struct {
	Index    int
	StepID   string
	Attempts int
	Origin   FailureOrigin
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("sequence aborted at element %d (%s) after %d attempts: %v", e.Index, e.StepID, e.Attempts, e.Err)
}

func (e *AbortError) Unwrap() []error {
	return []error{ErrSequenceAborted, e.Err}
}

// Result summarises a sequence run.
type Result struct {
	Completed []string // step ids, in order
	Invalid   []int    // element indexes skipped because their data was invalid
	Failed    []string // step ids skipped under SkipAndContinue
}

// Manager runs interactive sections.
type Manager struct {
	extractor    domain.ElementDataExtractor
	requirements domain.RequirementsChecker
	dispatcher   domain.Dispatcher
	settler      domain.Settler
	config       Config
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *zap.Logger
}

// New creates a sequence manager. requirements and settler may be nil.
func New(extractor domain.ElementDataExtractor, requirements domain.RequirementsChecker, dispatcher domain.Dispatcher, settler domain.Settler, config Config, logger *zap.Logger) *Manager {
	if !config.AbortPolicy.Valid() {
		config.AbortPolicy = AbortAll
	}
	return &Manager{
		extractor:    extractor,
		requirements: requirements,
		dispatcher:   dispatcher,
		settler:      settler,
		config:       config,
		sleep:        sleepCtx,
		logger:       logger,
	}
}

// RunInteractiveSequence checks, dispatches and settles each element in
// order. With showMode set only the show action runs; otherwise show then do.
func (m *Manager) RunInteractiveSequence(ctx context.Context, elements []domain.Element, showMode bool) (Result, error) {
	return m.run(ctx, elements, "interactive", func(ctx context.Context, data domain.ElementData) error {
		if err := m.checkRequirements(ctx, data); err != nil {
			return err
		}
		if err := m.dispatch(ctx, data, false); err != nil {
			return err
		}
		if !showMode {
			if err := m.dispatch(ctx, data, true); err != nil {
				return err
			}
		}
		return m.settle(ctx)
	}, 0)
}

// RunStepByStepSequence retries the full cycle per element: pre-check, do,
// settle, post-check, show. It pauses StepDelay between elements.
func (m *Manager) RunStepByStepSequence(ctx context.Context, elements []domain.Element) (Result, error) {
	return m.run(ctx, elements, "step_by_step", func(ctx context.Context, data domain.ElementData) error {
		if err := m.checkRequirements(ctx, data); err != nil {
			return err
		}
		if err := m.dispatch(ctx, data, true); err != nil {
			return err
		}
		if err := m.settle(ctx); err != nil {
			return err
		}
		if err := m.checkRequirements(ctx, data); err != nil {
			return fmt.Errorf("post-condition: %w", err)
		}
		return m.dispatch(ctx, data, false)
	}, m.config.StepDelay)
}

func (m *Manager) run(ctx context.Context, elements []domain.Element, mode string, unit func(context.Context, domain.ElementData) error, between time.Duration) (Result, error) {
	var res Result
	log := m.logger.With(zap.String("mode", mode), zap.Int("elements", len(elements)))

	for i, el := range elements {
		if err := ctx.Err(); err != nil {
			return res, &AbortError{Index: i, Origin: OriginCanceled, Err: err}
		}
		data, err := m.extractor.ExtractElementData(el)
		if err != nil {
			log.Warn("skipping invalid element", zap.Int("index", i), zap.Error(err))
			res.Invalid = append(res.Invalid, i)
			continue
		}
		data.Index = i

		attempts, err := retry.Do(ctx, m.config.Policy(), func(ctx context.Context) error {
			return unit(ctx, data)
		}, func(attempt int, err error, next time.Duration) {
			log.Debug("retrying element",
				zap.String("step", data.StepID),
				zap.Int("attempt", attempt),
				zap.String("origin", string(Classify(err))),
				zap.Duration("next", next),
				zap.Error(err))
		})
		if err != nil {
			origin := Classify(err)
			if origin != OriginCanceled && m.config.AbortPolicy == SkipAndContinue {
				log.Warn("element failed, continuing",
					zap.String("step", data.StepID),
					zap.Int("attempts", attempts),
					zap.Error(err))
				res.Failed = append(res.Failed, data.StepID)
				continue
			}
			log.Warn("element exhausted retries, aborting sequence",
				zap.String("step", data.StepID),
				zap.Int("index", i),
				zap.Int("attempts", attempts),
				zap.String("origin", string(origin)),
				zap.Error(err))
			return res, &AbortError{Index: i, StepID: data.StepID, Attempts: attempts, Origin: origin, Err: err}
		}
		res.Completed = append(res.Completed, data.StepID)

		if between > 0 && i < len(elements)-1 {
			if err := m.sleep(ctx, between); err != nil {
				return res, &AbortError{Index: i + 1, Origin: OriginCanceled, Err: err}
			}
		}
	}
	log.Info("sequence finished",
		zap.Int("completed", len(res.Completed)),
		zap.Int("invalid", len(res.Invalid)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

func (m *Manager) checkRequirements(ctx context.Context, data domain.ElementData) error {
	if m.requirements == nil || data.Requirements == "" {
		return nil
	}
	res, err := m.requirements.CheckRequirementsFromData(ctx, data)
	if err != nil {
		return fmt.Errorf("check requirements for %s: %w", data.StepID, err)
	}
	if !res.Pass {
		return fmt.Errorf("%w: %s", ErrRequirementsNotMet, res.Error)
	}
	return nil
}

func (m *Manager) dispatch(ctx context.Context, data domain.ElementData, click bool) error {
	if err := m.dispatcher.DispatchInteractiveAction(ctx, data, click); err != nil {
		return fmt.Errorf("dispatch %s (click=%t): %w", data.StepID, click, err)
	}
	return nil
}

func (m *Manager) settle(ctx context.Context) error {
	if m.settler != nil {
		return m.settler.WaitForSettle(ctx)
	}
	return m.sleep(ctx, m.config.SettleDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
