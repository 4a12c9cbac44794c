// Package engine wires the interaction services into one runtime and runs
// automated sections against it.
//
// It is a library surface for the host that renders guides inside Grafana:
// that host supplies the live DOM through Deps and owns the Engine for the
// lifetime of the guide panel. The pathfinder binary only verifies rendered
// guides headlessly and does not construct an Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/autodetect"
	"github.com/eliteGoblin/pathfinder/internal/blocker"
	"github.com/eliteGoblin/pathfinder/internal/config"
	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/formvalidation"
	"github.com/eliteGoblin/pathfinder/internal/monitor"
	"github.com/eliteGoblin/pathfinder/internal/sequence"
	"github.com/eliteGoblin/pathfinder/internal/timeouts"
)

// ErrSectionBusy is returned when another section holds the blocker.
var ErrSectionBusy = errors.New("another section is running")

// Mode selects how RunSection drives its elements.
type Mode string

const (
	ModeShow       Mode = "show"         // highlight only
	ModeDo         Mode = "do"           // show then do
	ModeStepByStep Mode = "step_by_step" // full per-step cycle with post-checks
)

// Deps are the host capabilities the engine runs against. Requirements and
// Settler may be nil.
type Deps struct {
	Document     domain.Document
	Events       domain.EventSource
	Overlays     domain.OverlayHost
	Modals       domain.ModalDetector
	Requirements domain.RequirementsChecker
	Dispatcher   domain.Dispatcher
	Settler      domain.Settler
}

// Engine owns one instance of every interaction service.
type Engine struct {
	bus       *monitor.Bus
	monitor   *monitor.Monitor
	detector  *autodetect.Detector
	blocker   *blocker.Blocker
	sequences *sequence.Manager
	timers    *timeouts.Manager
	events    domain.EventSource
	config    *config.Config
	logger    *zap.Logger

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

// New builds the services from cfg.
func New(deps Deps, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if deps.Document == nil || deps.Events == nil || deps.Overlays == nil || deps.Modals == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("engine: document, events, overlays, modals and dispatcher are required")
	}
	if cfg == nil {
		def := config.DefaultConfig()
		cfg = &def
	}

	bus := monitor.NewBus()
	timers := timeouts.NewManager(logger.Named("timeouts"))
	return &Engine{
		bus:     bus,
		monitor: monitor.New(deps.Events, bus, cfg.MonitorConfig(), logger.Named("monitor")),
		detector: autodetect.New(bus, deps.Document, deps.Requirements,
			cfg.AutoDetectConfig(), logger.Named("autodetect")),
		blocker: blocker.New(deps.Document, deps.Events, deps.Overlays, deps.Modals,
			timers, cfg.BlockerConfig(), logger.Named("blocker")),
		sequences: sequence.New(sequence.AttributeExtractor{}, deps.Requirements, deps.Dispatcher,
			deps.Settler, cfg.SequenceConfig(), logger.Named("sequence")),
		timers: timers,
		events: deps.Events,
		config: cfg,
		logger: logger,
	}, nil
}

func (e *Engine) Monitor() *monitor.Monitor      { return e.monitor }
func (e *Engine) Blocker() *blocker.Blocker      { return e.blocker }
func (e *Engine) Timers() *timeouts.Manager      { return e.timers }
func (e *Engine) Detector() *autodetect.Detector { return e.detector }

// Watch is an active auto-detection registration.
type Watch struct {
	sub  *autodetect.Subscription
	once sync.Once
	stop func()
}

// Stop cancels pending verifications and releases the monitor reference.
func (w *Watch) Stop() {
	w.once.Do(func() {
		w.sub.Cancel()
		w.stop()
	})
}

// Wait blocks until in-flight verifications have finished.
func (w *Watch) Wait() { w.sub.Wait() }

// WatchSection enables the monitor for one section and matches user actions
// against opts.Actions until Stop.
func (e *Engine) WatchSection(opts autodetect.Options) *Watch {
	e.monitor.Enable()
	return &Watch{
		sub:  e.detector.Subscribe(opts),
		stop: e.monitor.Disable,
	}
}

// RunSection runs elements as the automated flow for sectionID. It holds the
// blocker and keeps the monitor force-disabled for the duration; both are
// restored on every exit path. Ctrl/Cmd+C while blocked cancels the run.
func (e *Engine) RunSection(ctx context.Context, sectionID string, elements []domain.Element, mode Mode) (sequence.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	data := blocker.SectionData{Title: sectionID, TotalSteps: len(elements)}
	if !e.blocker.StartSectionBlocking(sectionID, data, cancel) {
		return sequence.Result{}, fmt.Errorf("%w: requested %q, active %q",
			ErrSectionBusy, sectionID, e.blocker.ActiveSection())
	}
	defer e.blocker.StopSectionBlocking(sectionID)

	e.monitor.ForceDisable()
	defer e.monitor.ForceEnable()

	e.setCancel(cancel)
	defer e.setCancel(nil)

	log := e.logger.With(zap.String("section", sectionID), zap.String("mode", string(mode)))
	log.Info("section run started", zap.Int("elements", len(elements)))

	var (
		res sequence.Result
		err error
	)
	switch mode {
	case ModeShow:
		res, err = e.sequences.RunInteractiveSequence(runCtx, elements, true)
	case ModeDo:
		res, err = e.sequences.RunInteractiveSequence(runCtx, elements, false)
	case ModeStepByStep:
		res, err = e.sequences.RunStepByStepSequence(runCtx, elements)
	default:
		return sequence.Result{}, fmt.Errorf("unknown run mode %q", mode)
	}

	if err != nil {
		log.Warn("section run aborted", zap.Strings("completed", res.Completed), zap.Error(err))
		return res, err
	}
	log.Info("section run finished",
		zap.Int("completed", len(res.Completed)),
		zap.Int("invalid", len(res.Invalid)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

func (e *Engine) setCancel(c context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelRun = c
}

// CancelRun cancels the section run in progress, if any.
func (e *Engine) CancelRun() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelRun == nil {
		return false
	}
	e.cancelRun()
	return true
}

// ValidateField attaches a debounced validator to a form element using the
// configured debounce.
func (e *Engine) ValidateField(el domain.Element, opts formvalidation.Options) *formvalidation.ElementValidator {
	if opts.Debounce == 0 {
		opts.Debounce = e.config.FormValidation.Debounce
	}
	return formvalidation.NewElementValidator(e.events, el, opts, e.logger.Named("formvalidation"))
}

// Close cancels any run and returns every service to idle.
func (e *Engine) Close() {
	e.CancelRun()
	e.blocker.ForceUnblock()
	e.timers.ClearAll()
	e.monitor.Reset()
}
