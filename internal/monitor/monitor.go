package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/detect"
	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// Config holds monitor tuning.
type Config struct {
	DebounceWindow time.Duration // same-element duplicate suppression (default 50ms)
	QueueSize      int           // recent-action buffer size (default 10)
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 50 * time.Millisecond,
		QueueSize:      10,
	}
}

// observedEvents are the capture-phase listeners installed while enabled.
var observedEvents = []domain.EventType{
	domain.EventClick,
	domain.EventInput,
	domain.EventChange,
	domain.EventMouseEnter,
	domain.EventKeyDown,
}

// Monitor is the single authority over the page-level interaction listeners.
// Construct one per page and share it; all state changes happen under mu.
type Monitor struct {
	mu       sync.Mutex
	state    State
	source   domain.EventSource
	bus      *Bus
	config   Config
	queue    *Queue
	lastEmit map[domain.Element]time.Time
	removers []func()
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a disabled monitor that broadcasts on bus.
func New(source domain.EventSource, bus *Bus, config Config, logger *zap.Logger) *Monitor {
	if config.DebounceWindow <= 0 {
		config.DebounceWindow = DefaultConfig().DebounceWindow
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	return &Monitor{
		source:   source,
		bus:      bus,
		config:   config,
		queue:    NewQueue(config.QueueSize),
		lastEmit: make(map[domain.Element]time.Time),
		now:      time.Now,
		logger:   logger,
	}
}

// Bus returns the broadcast bus.
func (m *Monitor) Bus() *Bus {
	return m.bus
}

// Enable adds a reference; listeners attach on the 0→1 transition.
func (m *Monitor) Enable() {
	m.transition("enable", State.Enable)
}

// Disable drops a reference; listeners detach when the count reaches zero.
func (m *Monitor) Disable() {
	m.transition("disable", State.Disable)
}

// ForceDisable tears down listeners and clears the queue regardless of references.
func (m *Monitor) ForceDisable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked("force_disable", State.ForceDisable)
	m.queue.Clear()
	m.lastEmit = make(map[domain.Element]time.Time)
}

// ForceEnable lifts ForceDisable; listeners come back only if references remain.
func (m *Monitor) ForceEnable() {
	m.transition("force_enable", State.ForceEnable)
}

// IsEnabled reports whether events are currently processed.
func (m *Monitor) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Enabled()
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecentActions returns the buffered actions, oldest first.
func (m *Monitor) RecentActions() []domain.DetectedActionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Snapshot()
}

// Reset detaches listeners and restores the zero state.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detach()
	m.state = State{}
	m.queue.Clear()
	m.lastEmit = make(map[domain.Element]time.Time)
}

func (m *Monitor) transition(name string, fn func(State) (State, Effect)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(name, fn)
}

func (m *Monitor) transitionLocked(name string, fn func(State) (State, Effect)) {
	next, effect := fn(m.state)
	m.state = next
	switch effect {
	case EffectAttach:
		m.attach()
	case EffectDetach:
		m.detach()
	}
	m.logger.Debug("monitor transition",
		zap.String("op", name),
		zap.Int("ref_count", next.RefCount),
		zap.Bool("force_disabled", next.ForceDisabled),
		zap.Stringer("effect", effect))
}

func (m *Monitor) attach() {
	for _, t := range observedEvents {
		m.removers = append(m.removers, m.source.Listen(t, m.handle))
	}
}

func (m *Monitor) detach() {
	for _, remove := range m.removers {
		remove()
	}
	m.removers = nil
}

// handle runs the filter pipeline and broadcasts survivors outside the lock.
func (m *Monitor) handle(ev domain.DOMEvent) {
	detected, ok := m.process(ev)
	if !ok {
		return
	}
	m.bus.Publish(detected)
}

func (m *Monitor) process(ev domain.DOMEvent) (detected domain.DetectedActionEvent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("dropping event after classification failure",
				zap.String("event", string(ev.Type)),
				zap.Any("panic", r))
			ok = false
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Enabled() {
		return detected, false
	}
	el := ev.Target
	if !detect.ShouldCaptureElement(el) {
		return detected, false
	}
	if !detect.IsValidInteractiveElement(el) && !detect.IsHoverable(el) {
		return detected, false
	}
	if ev.Type == domain.EventKeyDown && !activationKey(el, ev.Key) {
		return detected, false
	}

	action := detect.DetectActionType(el, ev)
	switch {
	case action == domain.ActionNoop:
		return detected, false
	case ev.Type == domain.EventMouseEnter && action != domain.ActionHover:
		return detected, false
	case ev.Type == domain.EventClick && action == domain.ActionHover:
		return detected, false
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = m.now()
	}
	if last, seen := m.lastEmit[el]; seen && at.Sub(last) < m.config.DebounceWindow {
		return detected, false
	}
	m.recordEmit(el, at)

	detected = domain.DetectedActionEvent{
		ActionType: action,
		Element:    el,
		Timestamp:  at,
		Pointer:    ev.Pointer,
	}
	if carriesValue(ev.Type) && detect.IsTextEntry(el) {
		v := el.Value()
		detected.Value = &v
	}
	m.queue.Push(detected)
	return detected, true
}

// recordEmit stores the emit time and forgets elements outside the debounce window.
func (m *Monitor) recordEmit(el domain.Element, at time.Time) {
	for k, t := range m.lastEmit {
		if at.Sub(t) >= m.config.DebounceWindow {
			delete(m.lastEmit, k)
		}
	}
	m.lastEmit[el] = at
}

// activationKey accepts Enter, and Space outside text entry.
func activationKey(el domain.Element, key string) bool {
	switch key {
	case "Enter":
		return true
	case " ", "Space", "Spacebar":
		return !detect.IsTextEntry(el)
	}
	return false
}

func carriesValue(t domain.EventType) bool {
	return t == domain.EventInput || t == domain.EventChange || t == domain.EventKeyDown
}
