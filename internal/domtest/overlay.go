package domtest

import (
	"sync"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// OverlayHost records overlay calls.
type OverlayHost struct {
	mu                sync.Mutex
	Shown             bool
	ShownFor          string
	FullscreenVisible bool
	ShowCalls         int
	HideCalls         int
	ShowErr           error
}

func (o *OverlayHost) ShowBlockingOverlays(sectionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ShowCalls++
	if o.ShowErr != nil {
		return o.ShowErr
	}
	o.Shown = true
	o.ShownFor = sectionID
	return nil
}

func (o *OverlayHost) HideBlockingOverlays() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.HideCalls++
	o.Shown = false
	o.ShownFor = ""
	o.FullscreenVisible = false
}

func (o *OverlayHost) SetFullscreenOverlayVisible(visible bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.FullscreenVisible = visible
}

// IsShown reports whether overlays are currently inserted.
func (o *OverlayHost) IsShown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Shown
}

// IsFullscreenVisible reports the fullscreen overlay state.
func (o *OverlayHost) IsFullscreenVisible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.FullscreenVisible
}

// ModalDetector is a switchable fake modal detector.
type ModalDetector struct {
	mu   sync.Mutex
	open bool
}

// SetOpen toggles the reported modal state.
func (m *ModalDetector) SetOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open
}

func (m *ModalDetector) HasTransientOverlay() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

var (
	_ domain.OverlayHost   = (*OverlayHost)(nil)
	_ domain.ModalDetector = (*ModalDetector)(nil)
)
