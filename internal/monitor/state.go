// Package monitor observes user interactions on the page and broadcasts the
// ones that look like step objectives.
package monitor

// Effect is the listener side effect a state transition requires.
type Effect int

const (
	EffectNone Effect = iota
	EffectAttach
	EffectDetach
)

func (e Effect) String() string {
	switch e {
	case EffectAttach:
		return "attach"
	case EffectDetach:
		return "detach"
	}
	return "none"
}

// State is the monitor's enablement state. Transitions are pure.
type State struct {
	RefCount      int
	ForceDisabled bool
	Listening     bool
}

// Enabled reports whether events should be processed.
func (s State) Enabled() bool {
	return s.RefCount > 0 && !s.ForceDisabled
}

// settle reconciles Listening with Enabled and reports what changed.
func (s State) settle() (State, Effect) {
	want := s.Enabled()
	switch {
	case want && !s.Listening:
		s.Listening = true
		return s, EffectAttach
	case !want && s.Listening:
		s.Listening = false
		return s, EffectDetach
	}
	return s, EffectNone
}

// Enable adds one reference.
func (s State) Enable() (State, Effect) {
	s.RefCount++
	return s.settle()
}

// Disable drops one reference; the count floors at zero.
func (s State) Disable() (State, Effect) {
	if s.RefCount > 0 {
		s.RefCount--
	}
	return s.settle()
}

// ForceDisable suspends monitoring regardless of outstanding references.
func (s State) ForceDisable() (State, Effect) {
	s.ForceDisabled = true
	return s.settle()
}

// ForceEnable lifts the override; listening resumes only if references remain.
func (s State) ForceEnable() (State, Effect) {
	s.ForceDisabled = false
	return s.settle()
}
