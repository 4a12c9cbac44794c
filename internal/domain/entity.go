// Package domain contains core interaction entities and the capability interfaces
// the engine is written against. This is the innermost layer - no external dependencies.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ActionType is the closed set of semantic interaction kinds.
type ActionType string

const (
	ActionHighlight ActionType = "highlight"
	ActionButton    ActionType = "button"
	ActionFormfill  ActionType = "formfill"
	ActionHover     ActionType = "hover"
	ActionNavigate  ActionType = "navigate"
	ActionNoop      ActionType = "noop"
)

var actionTypes = map[ActionType]bool{
	ActionHighlight: true,
	ActionButton:    true,
	ActionFormfill:  true,
	ActionHover:     true,
	ActionNavigate:  true,
	ActionNoop:      true,
}

// ParseActionType converts a free-form attribute value into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(s)
	if !actionTypes[a] {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return a, nil
}

// Valid reports whether a is one of the known action kinds.
func (a ActionType) Valid() bool {
	return actionTypes[a]
}

// IsClickFamily reports whether the action is satisfied by a click.
func (a ActionType) IsClickFamily() bool {
	return a == ActionButton || a == ActionHighlight
}

// Point is a viewport coordinate.
type Point struct {
	X float64
	Y float64
}

// Rect is an element bounding rectangle in viewport coordinates.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Contains reports whether p lies inside r (edges inclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Left+r.Width &&
		p.Y >= r.Top && p.Y <= r.Top+r.Height
}

// Empty reports whether the rectangle has no area (detached or hidden element).
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// DetectedActionEvent is one observed user interaction.
// The Element is a live reference, not a copy.
type DetectedActionEvent struct {
	ActionType ActionType
	Element    Element
	Value      *string // current form value for input/change events
	Timestamp  time.Time
	Pointer    *Point // pointer coordinates at event time, if any
}

// StepActionConfig is the declarative expectation attached to a step.
type StepActionConfig struct {
	TargetAction ActionType `json:"targetAction" yaml:"targetAction"`
	RefTarget    string     `json:"refTarget" yaml:"refTarget"`
	TargetValue  string     `json:"targetValue,omitempty" yaml:"targetValue,omitempty"`
}

// ErrInvalidStepConfig is returned by StepActionConfig.Validate.
var ErrInvalidStepConfig = errors.New("invalid step action config")

// Validate checks the per-kind required fields once, at step-load time.
// Pattern compilation is checked by the match package, which owns regex semantics.
func (c StepActionConfig) Validate() error {
	if !c.TargetAction.Valid() {
		return fmt.Errorf("%w: unknown targetAction %q", ErrInvalidStepConfig, c.TargetAction)
	}
	switch c.TargetAction {
	case ActionNoop:
		return nil
	case ActionButton, ActionHighlight, ActionHover, ActionNavigate, ActionFormfill:
		if c.RefTarget == "" {
			return fmt.Errorf("%w: %s requires refTarget", ErrInvalidStepConfig, c.TargetAction)
		}
	}
	if c.TargetValue != "" && c.TargetAction != ActionFormfill {
		return fmt.Errorf("%w: targetValue is only valid on formfill", ErrInvalidStepConfig)
	}
	return nil
}

// ActionToDetect is the subscription-time view of a StepActionConfig.
type ActionToDetect struct {
	StepActionConfig
	ActionIndex   int
	TargetElement Element // optional pre-resolved target
}

// MatchResult reports whether an observed event completed a candidate action.
type MatchResult struct {
	Matched     bool
	ActionIndex int
	Action      ActionToDetect
	Event       DetectedActionEvent
}

// FormfillMatchResult is the outcome of reconciling a live value against an expectation.
type FormfillMatchResult struct {
	IsMatch         bool
	UsedRegex       bool
	ExpectedPattern string
}

// ElementData is what the rendering layer declares on one interactive element.
type ElementData struct {
	StepID       string
	SectionID    string
	Index        int
	Action       StepActionConfig
	Requirements string
	Skippable    bool
}

// RequirementsResult is returned by a RequirementsChecker.
type RequirementsResult struct {
	Pass  bool
	Error string
}
