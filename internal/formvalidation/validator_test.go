package formvalidation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/domtest"
)

// manualTimers captures armed callbacks so tests decide when debounce expires.
type manualTimers struct {
	mu      sync.Mutex
	pending []*manualTimer
	last    time.Duration
}

type manualTimer struct {
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (m *manualTimers) after(d time.Duration, fn func()) stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = d
	t := &manualTimer{fn: fn}
	m.pending = append(m.pending, t)
	return t
}

// fire runs every armed, non-stopped timer.
func (m *manualTimers) fire() {
	m.mu.Lock()
	timers := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, t := range timers {
		if !t.stopped {
			t.fn()
		}
	}
}

type recorder struct {
	valid   int
	invalid []string
}

func newValidator(opts Options, rec *recorder) (*Validator, *manualTimers) {
	timers := &manualTimers{}
	opts.OnValid = func() { rec.valid++ }
	opts.OnInvalid = func(hint string) { rec.invalid = append(rec.invalid, hint) }
	v := New(opts, zap.NewNop())
	v.afterFn = timers.after
	return v, timers
}

func TestValidator_InvalidThenCorrected(t *testing.T) {
	rec := &recorder{}
	v, timers := newValidator(Options{Expected: "^https://"}, rec)

	v.SetValue("http://x")
	assert.Equal(t, StatusChecking, v.Status())
	assert.Equal(t, DefaultDebounce, timers.last)

	timers.fire()
	assert.Equal(t, StatusInvalid, v.Status())
	require.Len(t, rec.invalid, 1)
	assert.Equal(t, "Expected: `^https://`", rec.invalid[0])
	assert.Equal(t, 0, rec.valid)

	v.SetValue("https://x")
	assert.Equal(t, StatusChecking, v.Status())
	timers.fire()
	assert.Equal(t, StatusValid, v.Status())
	assert.Equal(t, 1, rec.valid)
	assert.Len(t, rec.invalid, 1)
}

func TestValidator_RearmCancelsPreviousTimer(t *testing.T) {
	rec := &recorder{}
	v, timers := newValidator(Options{Expected: "prometheus"}, rec)

	v.SetValue("prom")
	v.SetValue("prometh")
	v.SetValue("prometheus")
	timers.fire()

	assert.Equal(t, StatusValid, v.Status())
	assert.Equal(t, 1, rec.valid)
	assert.Empty(t, rec.invalid)
}

func TestValidator_EmptyValueReturnsToIdle(t *testing.T) {
	rec := &recorder{}
	v, timers := newValidator(Options{Expected: "x"}, rec)

	v.SetValue("y")
	v.SetValue("")
	timers.fire()

	assert.Equal(t, StatusIdle, v.Status())
	assert.Empty(t, rec.invalid)
}

func TestValidator_CustomHint(t *testing.T) {
	rec := &recorder{}
	v, _ := newValidator(Options{Expected: "/^\\d+$/", Hint: "Enter a port number"}, rec)

	v.SetValue("abc")
	assert.Equal(t, StatusInvalid, v.ValidateNow())
	assert.Equal(t, []string{"Enter a port number"}, rec.invalid)
}

func TestValidator_ValidateNowBypassesDebounce(t *testing.T) {
	rec := &recorder{}
	v, timers := newValidator(Options{Expected: "^https://"}, rec)

	v.SetValue("https://grafana.example")
	assert.Equal(t, StatusValid, v.ValidateNow())
	assert.Equal(t, 1, rec.valid)

	// The debounce armed by SetValue must not fire a second time.
	timers.fire()
	assert.Equal(t, 1, rec.valid)
}

func TestValidator_Disable(t *testing.T) {
	rec := &recorder{}
	v, timers := newValidator(Options{Expected: "x"}, rec)

	v.SetValue("y")
	v.SetEnabled(false)
	timers.fire()
	assert.Equal(t, StatusIdle, v.Status())
	assert.Empty(t, rec.invalid)

	v.SetValue("y")
	assert.Equal(t, StatusIdle, v.Status())

	v.SetEnabled(true)
	v.SetValue("x")
	timers.fire()
	assert.Equal(t, StatusValid, v.Status())
}

func TestElementValidator_FollowsForeignElement(t *testing.T) {
	source := domtest.NewEventSource()
	field := domtest.El("input", "name=url")
	other := domtest.El("input", "name=title")
	domtest.El("body").Append(field, other)

	rec := &recorder{}
	timers := &manualTimers{}
	ev := NewElementValidator(source, field, Options{
		Expected:  "^https://",
		OnValid:   func() { rec.valid++ },
		OnInvalid: func(h string) { rec.invalid = append(rec.invalid, h) },
	}, zap.NewNop())
	ev.afterFn = timers.after

	source.Type(other, "https://ignored")
	assert.Equal(t, StatusIdle, ev.Status())

	source.Type(field, "https://x")
	assert.Equal(t, "https://x", ev.Value())
	timers.fire()
	assert.Equal(t, StatusValid, ev.Status())
	assert.Equal(t, 1, rec.valid)

	ev.Close()
	assert.Equal(t, 0, source.ListenerCount(domain.EventInput))
	assert.Equal(t, 0, source.ListenerCount(domain.EventChange))
}
