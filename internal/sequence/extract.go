package sequence

import (
	"fmt"
	"strconv"

	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/match"
)

// Attributes the rendering layer puts on each interactive element.
const (
	AttrStepID       = "data-step-id"
	AttrSectionID    = "data-section-id"
	AttrTargetAction = "data-targetaction"
	AttrRefTarget    = "data-reftarget"
	AttrTargetValue  = "data-targetvalue"
	AttrRequirements = "data-requirements"
	AttrSkippable    = "data-skippable"
)

// AttributeExtractor reads ElementData from data attributes.
type AttributeExtractor struct{}

var _ domain.ElementDataExtractor = AttributeExtractor{}

// ExtractElementData parses and validates the declared step on el.
func (AttributeExtractor) ExtractElementData(el domain.Element) (domain.ElementData, error) {
	if el == nil {
		return domain.ElementData{}, fmt.Errorf("%w: nil element", domain.ErrInvalidStepConfig)
	}
	attr := func(name string) string {
		v, _ := el.Attr(name)
		return v
	}
	kind, err := domain.ParseActionType(attr(AttrTargetAction))
	if err != nil {
		return domain.ElementData{}, fmt.Errorf("%w: %v", domain.ErrInvalidStepConfig, err)
	}
	data := domain.ElementData{
		StepID:    attr(AttrStepID),
		SectionID: attr(AttrSectionID),
		Action: domain.StepActionConfig{
			TargetAction: kind,
			RefTarget:    attr(AttrRefTarget),
			TargetValue:  attr(AttrTargetValue),
		},
		Requirements: attr(AttrRequirements),
	}
	if s, ok := el.Attr(AttrSkippable); ok {
		data.Skippable = s == "" || parseBool(s)
	}
	if err := match.ValidateStepConfig(data.Action); err != nil {
		return data, fmt.Errorf("step %q: %w", data.StepID, err)
	}
	return data, nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
