// Package formvalidation checks form values against a step's expected value
// after the user pauses typing.
package formvalidation

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/match"
)

// Status is the validation state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusChecking Status = "checking"
	StatusValid    Status = "valid"
	StatusInvalid  Status = "invalid"
)

// DefaultDebounce is the pause after the last change before validating.
const DefaultDebounce = 2 * time.Second

// Options configures a Validator.
type Options struct {
	Expected  string        // literal or pattern
	Hint      string        // shown on mismatch instead of the generated hint
	Debounce  time.Duration // defaults to DefaultDebounce
	OnValid   func()
	OnInvalid func(hint string)
}

type stopper interface {
	Stop() bool
}

// Validator tracks one managed value.
type Validator struct {
	mu      sync.Mutex
	opts    Options
	value   string
	status  Status
	enabled bool
	timer   stopper
	gen     uint64
	logger  *zap.Logger
	afterFn func(time.Duration, func()) stopper
}

// New creates an idle, enabled validator.
func New(opts Options, logger *zap.Logger) *Validator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Validator{
		opts:    opts,
		status:  StatusIdle,
		enabled: true,
		logger:  logger,
		afterFn: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
	}
}

// DisplayHint returns the message shown when the value does not match.
func (v *Validator) DisplayHint() string {
	if v.opts.Hint != "" {
		return v.opts.Hint
	}
	return fmt.Sprintf("Expected: `%s`", v.opts.Expected)
}

// SetValue records a change and re-arms the debounce timer.
func (v *Validator) SetValue(value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	v.stopLocked()
	if value == "" || !v.enabled {
		v.status = StatusIdle
		return
	}
	v.status = StatusChecking
	gen := v.gen
	v.timer = v.afterFn(v.opts.Debounce, func() { v.evaluate(gen) })
}

// ValidateNow skips the debounce, e.g. on blur.
func (v *Validator) ValidateNow() Status {
	v.mu.Lock()
	v.stopLocked()
	gen := v.gen
	v.mu.Unlock()
	v.evaluate(gen)
	return v.Status()
}

// SetEnabled turns validation on or off. Disabling returns to idle.
func (v *Validator) SetEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enabled = enabled
	if !enabled {
		v.stopLocked()
		v.status = StatusIdle
	}
}

// Status returns the current state.
func (v *Validator) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Value returns the last recorded value.
func (v *Validator) Value() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Close cancels any pending validation.
func (v *Validator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopLocked()
}

// stopLocked cancels the armed timer and invalidates callbacks already queued.
func (v *Validator) stopLocked() {
	v.gen++
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}

func (v *Validator) evaluate(gen uint64) {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}
	v.timer = nil
	if v.value == "" || !v.enabled {
		v.status = StatusIdle
		v.mu.Unlock()
		return
	}
	value := v.value
	res := match.MatchFormValue(&value, v.opts.Expected)
	if res.IsMatch {
		v.status = StatusValid
	} else {
		v.status = StatusInvalid
	}
	onValid, onInvalid := v.opts.OnValid, v.opts.OnInvalid
	v.mu.Unlock()

	v.logger.Debug("form value validated",
		zap.Bool("valid", res.IsMatch),
		zap.Bool("used_regex", res.UsedRegex))
	if res.IsMatch {
		if onValid != nil {
			onValid()
		}
		return
	}
	if onInvalid != nil {
		onInvalid(v.DisplayHint())
	}
}
