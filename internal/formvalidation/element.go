package formvalidation

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// ElementValidator validates a form element outside the step's own tree by
// following its input and change events.
type ElementValidator struct {
	*Validator
	el       domain.Element
	removers []func()
}

// NewElementValidator attaches listeners for el and seeds the validator with
// the element's current value.
func NewElementValidator(source domain.EventSource, el domain.Element, opts Options, logger *zap.Logger) *ElementValidator {
	ev := &ElementValidator{
		Validator: New(opts, logger),
		el:        el,
	}
	for _, t := range []domain.EventType{domain.EventInput, domain.EventChange} {
		ev.removers = append(ev.removers, source.Listen(t, ev.onEvent))
	}
	if v := el.Value(); v != "" {
		ev.SetValue(v)
	}
	return ev
}

func (e *ElementValidator) onEvent(ev domain.DOMEvent) {
	if !domain.SameElement(ev.Target, e.el) {
		return
	}
	e.SetValue(e.el.Value())
}

// Close detaches the listeners and cancels pending validation.
func (e *ElementValidator) Close() {
	for _, remove := range e.removers {
		remove()
	}
	e.removers = nil
	e.Validator.Close()
}
