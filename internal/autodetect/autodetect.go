// Package autodetect completes steps from user actions broadcast by the monitor.
package autodetect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/match"
	"github.com/eliteGoblin/pathfinder/internal/monitor"
)

// Config mirrors the plugin's auto-detection settings.
type Config struct {
	Enabled           bool
	VerificationDelay time.Duration // settle time between a match and its callback
}

// DefaultConfig returns auto-detection defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		VerificationDelay: 250 * time.Millisecond,
	}
}

// Options describes one subscription.
type Options struct {
	// Actions are the candidates, tried in order; the first match wins.
	Actions []domain.ActionToDetect

	// Enabled gates the subscription; nil means always enabled.
	Enabled func() bool

	// Completed stops matching once the step is done; nil means never completed.
	Completed func() bool

	// ActiveIndex switches on guided mode: only the candidate with this
	// ActionIndex is considered, and only while Executing reports true.
	ActiveIndex func() int
	Executing   func() bool

	// Requirements, when set, must pass before a match is accepted.
	Requirements *domain.ElementData

	OnMatch func(domain.MatchResult)
}

func (o Options) gateOpen() bool {
	if o.Enabled != nil && !o.Enabled() {
		return false
	}
	return o.Completed == nil || !o.Completed()
}

func (o Options) candidates() []domain.ActionToDetect {
	if o.ActiveIndex == nil {
		return o.Actions
	}
	if o.Executing != nil && !o.Executing() {
		return nil
	}
	active := o.ActiveIndex()
	for _, a := range o.Actions {
		if a.ActionIndex == active {
			return []domain.ActionToDetect{a}
		}
	}
	return nil
}

// Detector creates subscriptions against a monitor bus.
type Detector struct {
	bus          *monitor.Bus
	doc          domain.Document
	config       Config
	matchOpts    match.Options
	requirements domain.RequirementsChecker
	after        func(time.Duration) <-chan time.Time
	logger       *zap.Logger
}

// New creates a detector. requirements may be nil when no subscription uses a
// requirements gate.
func New(bus *monitor.Bus, doc domain.Document, requirements domain.RequirementsChecker, config Config, logger *zap.Logger) *Detector {
	return &Detector{
		bus:          bus,
		doc:          doc,
		config:       config,
		matchOpts:    match.DefaultOptions(),
		requirements: requirements,
		after:        time.After,
		logger:       logger,
	}
}

// Subscription is a live registration on the bus.
type Subscription struct {
	d           *Detector
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu      sync.Mutex
	pending bool
	wg      sync.WaitGroup
}

// Subscribe starts listening for broadcasts until Cancel.
func (d *Detector) Subscribe(opts Options) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{d: d, opts: opts, ctx: ctx, cancel: cancel}
	s.unsubscribe = d.bus.Subscribe(s.onAction)
	return s
}

// Cancel unsubscribes and suppresses any verification still in flight.
func (s *Subscription) Cancel() {
	s.cancel()
	s.unsubscribe()
}

// Wait blocks until in-flight verifications have finished.
func (s *Subscription) Wait() {
	s.wg.Wait()
}

func (s *Subscription) onAction(ev domain.DetectedActionEvent) {
	if s.ctx.Err() != nil || !s.d.config.Enabled || !s.opts.gateOpen() {
		return
	}
	res, ok := s.findMatch(ev)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.verify(res)
}

// findMatch re-resolves every candidate target and returns the first match.
func (s *Subscription) findMatch(ev domain.DetectedActionEvent) (domain.MatchResult, bool) {
	for _, action := range s.opts.candidates() {
		for _, target := range s.targets(action) {
			if match.MatchesStepAction(ev, action.StepActionConfig, target, s.d.matchOpts) {
				return domain.MatchResult{
					Matched:     true,
					ActionIndex: action.ActionIndex,
					Action:      action,
					Event:       ev,
				}, true
			}
		}
	}
	return domain.MatchResult{}, false
}

func (s *Subscription) targets(action domain.ActionToDetect) []domain.Element {
	els, err := match.ResolveTargets(s.d.doc, action.StepActionConfig)
	if err != nil {
		s.d.logger.Debug("target resolution failed",
			zap.String("ref_target", action.RefTarget),
			zap.Error(err))
	}
	if len(els) == 0 && action.TargetElement != nil {
		return []domain.Element{action.TargetElement}
	}
	return els
}

func (s *Subscription) verify(res domain.MatchResult) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
	}()

	if s.opts.Requirements != nil && s.d.requirements != nil {
		check, err := s.d.requirements.CheckRequirementsFromData(s.ctx, *s.opts.Requirements)
		if err != nil || !check.Pass {
			s.d.logger.Debug("match rejected by requirements",
				zap.Int("action_index", res.ActionIndex),
				zap.String("reason", check.Error),
				zap.Error(err))
			return
		}
	}

	select {
	case <-s.ctx.Done():
		return
	case <-s.d.after(s.d.config.VerificationDelay):
	}

	if s.ctx.Err() != nil || !s.opts.gateOpen() {
		return
	}
	s.d.logger.Debug("action detected",
		zap.Int("action_index", res.ActionIndex),
		zap.String("action", string(res.Action.TargetAction)))
	if s.opts.OnMatch != nil {
		s.opts.OnMatch(res)
	}
}
