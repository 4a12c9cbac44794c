// Package e2e replays a rendered guide in a browser through its test-id markers
// and reports per-step outcomes.
package e2e

import (
	"context"
	"fmt"
	"strings"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// Test-id prefixes rendered by the guide UI.
const (
	PrefixSection   = "interactive-section-"
	PrefixStep      = "interactive-step-"
	PrefixDoIt      = "interactive-do-it-"
	PrefixSkip      = "interactive-skip-"
	PrefixCompleted = "interactive-step-completed-"
)

func testIDSelector(id string) string {
	return fmt.Sprintf(`[data-testid="%s"]`, id)
}

// StepSelector selects the step container.
func StepSelector(stepID string) string { return testIDSelector(PrefixStep + stepID) }

// DoItSelector selects the step's "do it" button.
func DoItSelector(stepID string) string { return testIDSelector(PrefixDoIt + stepID) }

// SkipSelector selects the step's skip button.
func SkipSelector(stepID string) string { return testIDSelector(PrefixSkip + stepID) }

// CompletedSelector selects the step's completion indicator.
func CompletedSelector(stepID string) string { return testIDSelector(PrefixCompleted + stepID) }

// Discover enumerates the rendered steps in document order.
func Discover(ctx context.Context, page domain.BrowserPage) ([]domain.TestableStep, error) {
	markers, err := page.StepMarkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate step markers: %w", err)
	}
	steps := make([]domain.TestableStep, 0, len(markers))
	for i, m := range markers {
		step := domain.TestableStep{
			StepID:         strings.TrimPrefix(m.TestID, PrefixStep),
			Index:          i,
			SectionID:      strings.TrimPrefix(m.SectionTestID, PrefixSection),
			Skippable:      m.HasSkip,
			HasDoItButton:  m.HasDoIt,
			IsPreCompleted: m.Completed,
		}
		if kind, err := domain.ParseActionType(m.TargetAction); err == nil {
			step.TargetAction = kind
		}
		steps = append(steps, step)
	}
	return steps, nil
}
