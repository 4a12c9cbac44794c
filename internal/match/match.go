package match

import (
	"fmt"
	"strings"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// Options tunes element matching.
type Options struct {
	// SpatialMatching accepts a click whose pointer lies inside the target's bounds.
	SpatialMatching bool
}

// DefaultOptions enables spatial matching, which covers clicks landing on
// overlays or pseudo-elements drawn over the target.
func DefaultOptions() Options {
	return Options{SpatialMatching: true}
}

// MatchesElementBounds reports whether p falls inside target's bounding rectangle.
func MatchesElementBounds(target domain.Element, p domain.Point) bool {
	if target == nil {
		return false
	}
	r := target.BoundingRect()
	if r.Empty() {
		return false
	}
	return r.Contains(p)
}

// actionCompatible reports whether a detected kind can satisfy a declared kind.
// Buttons and highlights are both completed by a click.
func actionCompatible(detected, declared domain.ActionType) bool {
	if detected == declared {
		return true
	}
	return detected.IsClickFamily() && declared.IsClickFamily()
}

// sameTarget accepts the target itself or any of its descendants.
func sameTarget(detected, target domain.Element) bool {
	if detected == nil || target == nil {
		return false
	}
	return domain.Contains(target, detected)
}

// MatchesStepAction decides whether detected completes cfg against the resolved target.
func MatchesStepAction(detected domain.DetectedActionEvent, cfg domain.StepActionConfig, target domain.Element, opts Options) bool {
	if target == nil || !actionCompatible(detected.ActionType, cfg.TargetAction) {
		return false
	}
	switch cfg.TargetAction {
	case domain.ActionNoop:
		return false
	case domain.ActionFormfill:
		if detected.Value == nil || !sameTarget(detected.Element, target) {
			return false
		}
		return MatchFormValue(detected.Value, cfg.TargetValue).IsMatch
	case domain.ActionNavigate:
		return sameTarget(detected.Element, target)
	default:
		if sameTarget(detected.Element, target) {
			return true
		}
		if opts.SpatialMatching && detected.Pointer != nil {
			return MatchesElementBounds(target, *detected.Pointer)
		}
		return false
	}
}

// ValidateStepConfig runs the domain schema check plus pattern compilation.
func ValidateStepConfig(cfg domain.StepActionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.TargetAction == domain.ActionFormfill && !ValidatePattern(cfg.TargetValue) {
		return fmt.Errorf("%w: targetValue %q is not a valid pattern", domain.ErrInvalidStepConfig, cfg.TargetValue)
	}
	if strings.HasPrefix(cfg.RefTarget, GrafanaPrefix) && strings.TrimPrefix(cfg.RefTarget, GrafanaPrefix) == "" {
		return fmt.Errorf("%w: empty %s alias", domain.ErrInvalidStepConfig, GrafanaPrefix)
	}
	return nil
}
