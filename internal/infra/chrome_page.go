package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// ProfileDirPattern is the os.MkdirTemp pattern for browser profiles. The
// reaper finds orphaned browsers by this prefix on their command line.
const ProfileDirPattern = "pathfinder-chrome-"

// ProfilePrefix returns the user-data-dir prefix every launched browser carries.
func ProfilePrefix() string {
	return filepath.Join(os.TempDir(), ProfileDirPattern)
}

// BrowserConfig configures a headless browser session.
type BrowserConfig struct {
	Headless     bool
	ExecPath     string // empty: let chromedp find Chrome
	WindowWidth  int
	WindowHeight int
	AuthToken    string // sent as a bearer token on every request
	NoSandbox    bool   // required in most containers
}

// DefaultBrowserConfig returns a headless 1400x900 configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:     true,
		WindowWidth:  1400,
		WindowHeight: 900,
	}
}

// MarkerQuery names the test-id prefixes a page reports as step markers.
type MarkerQuery struct {
	Step      string
	Section   string
	DoIt      string
	Skip      string
	Completed string
}

// ChromePage implements domain.BrowserPage and domain.Screenshotter over a
// chromedp tab.
type ChromePage struct {
	ctx        context.Context // chromedp browser context
	cancel     context.CancelFunc
	profileDir string
	markers    MarkerQuery
	logger     *zap.Logger

	mu      sync.Mutex
	console []string
}

// NewChromePage launches a browser with a fresh temporary profile. Close must
// be called to stop the browser and remove the profile.
func NewChromePage(ctx context.Context, cfg BrowserConfig, markers MarkerQuery, logger *zap.Logger) (*ChromePage, error) {
	profileDir, err := os.MkdirTemp("", ProfileDirPattern)
	if err != nil {
		return nil, fmt.Errorf("create browser profile: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.UserDataDir(profileDir),
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)

	p := &ChromePage{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		profileDir: profileDir,
		markers:    markers,
		logger:     logger,
	}
	chromedp.ListenTarget(browserCtx, p.onEvent)

	actions := []chromedp.Action{network.Enable(), runtime.Enable()}
	if cfg.AuthToken != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{
			"Authorization": "Bearer " + cfg.AuthToken,
		}))
	}
	// First Run starts the browser.
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		p.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	logger.Debug("browser started", zap.String("profile", profileDir))
	return p, nil
}

func (p *ChromePage) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		if e.Type != runtime.APITypeError && e.Type != runtime.APITypeAssert {
			return
		}
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			parts = append(parts, remoteObjectText(arg))
		}
		p.record(strings.Join(parts, " "))
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}
		msg := e.ExceptionDetails.Text
		if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
			msg = e.ExceptionDetails.Exception.Description
		}
		p.record(msg)
	}
}

func remoteObjectText(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if o.Description != "" {
		return o.Description
	}
	if len(o.Value) > 0 {
		return strings.Trim(string(o.Value), `"`)
	}
	return string(o.Type)
}

func (p *ChromePage) record(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.console = append(p.console, msg)
}

// Navigate loads url and waits for the body to be ready.
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// run executes actions on the tab, bounded by both ctx and the browser lifetime.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(tabCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

const markerScript = `(function(q) {
	var out = [];
	var nodes = document.querySelectorAll('[data-testid^="' + q.step + '"]');
	for (var i = 0; i < nodes.length; i++) {
		var el = nodes[i];
		var tid = el.getAttribute('data-testid');
		if (tid.indexOf(q.completed) === 0) continue;
		var id = tid.substring(q.step.length);
		var section = el.closest('[data-testid^="' + q.section + '"]');
		out.push({
			testId: tid,
			sectionTestId: section ? section.getAttribute('data-testid') : '',
			targetAction: el.getAttribute('data-targetaction') || '',
			hasDoIt: !!document.querySelector('[data-testid="' + q.doIt + id + '"]'),
			hasSkip: !!document.querySelector('[data-testid="' + q.skip + id + '"]'),
			completed: !!document.querySelector('[data-testid="' + q.completed + id + '"]')
		});
	}
	return out;
})(%s)`

func (p *ChromePage) markerJS() string {
	q := fmt.Sprintf(`{step:%q,section:%q,doIt:%q,skip:%q,completed:%q}`,
		p.markers.Step, p.markers.Section, p.markers.DoIt, p.markers.Skip, p.markers.Completed)
	return fmt.Sprintf(markerScript, q)
}

// StepMarkers enumerates rendered step markers in document order.
func (p *ChromePage) StepMarkers(ctx context.Context) ([]domain.StepMarker, error) {
	var markers []domain.StepMarker
	if err := p.run(ctx, chromedp.Evaluate(p.markerJS(), &markers)); err != nil {
		return nil, err
	}
	return markers, nil
}

func (p *ChromePage) ScrollIntoView(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
}

func (p *ChromePage) WaitEnabled(ctx context.Context, selector string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.WaitEnabled(selector, chromedp.ByQuery),
	)
}

func (p *ChromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *ChromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *ChromePage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *ChromePage) DrainConsoleErrors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.console
	p.console = nil
	return out
}

// Screenshot captures the viewport as PNG.
func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close stops the browser and removes its profile directory.
func (p *ChromePage) Close() error {
	p.cancel()
	return os.RemoveAll(p.profileDir)
}

var (
	_ domain.BrowserPage   = (*ChromePage)(nil)
	_ domain.Screenshotter = (*ChromePage)(nil)
)
