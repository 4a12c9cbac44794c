package domain

import (
	"context"
	"time"
)

// Element is a live DOM node as seen by the engine.
// Implementations must be comparable (pointer types) so identity checks work.
type Element interface {
	// TagName returns the lower-case tag name.
	TagName() string

	// Attr returns an attribute value and whether it is present.
	Attr(name string) (string, bool)

	// HasClass reports whether the class list contains class.
	HasClass(class string) bool

	// Parent returns the parent element, or nil at the root.
	Parent() Element

	TextContent() string

	// Value returns the current form value (empty for non-form elements).
	Value() string

	BoundingRect() Rect

	// HasClickHandler reports an explicitly attached click handler.
	HasClickHandler() bool

	IsContentEditable() bool
}

// Document is the page-level DOM capability.
type Document interface {
	// QuerySelectorAll returns matches in document order.
	QuerySelectorAll(selector string) ([]Element, error)

	// ActiveElement returns the focused element, or nil.
	ActiveElement() Element
}

// EventType names a DOM event.
type EventType string

const (
	EventClick      EventType = "click"
	EventInput      EventType = "input"
	EventChange     EventType = "change"
	EventMouseEnter EventType = "mouseenter"
	EventKeyDown    EventType = "keydown"
)

// DOMEvent is a raw DOM event delivered to capture-phase listeners.
type DOMEvent struct {
	Type      EventType
	Target    Element
	Key       string
	CtrlKey   bool
	MetaKey   bool
	Pointer   *Point
	Timestamp time.Time
}

// EventHandler receives DOM events.
type EventHandler func(DOMEvent)

// EventSource registers capture-phase document listeners.
type EventSource interface {
	// Listen registers handler and returns a function that removes it.
	Listen(eventType EventType, handler EventHandler) (remove func())
}

// OverlayHost renders the blocking overlays.
type OverlayHost interface {
	// ShowBlockingOverlays inserts the viewport and header overlays.
	ShowBlockingOverlays(sectionID string) error

	// HideBlockingOverlays removes every blocking overlay.
	HideBlockingOverlays()

	// SetFullscreenOverlayVisible toggles the overlay used while a third-party modal is open.
	SetFullscreenOverlayVisible(visible bool)
}

// ModalDetector reports transient third-party overlays (modals, drawers).
type ModalDetector interface {
	HasTransientOverlay() bool
}

// Dispatcher performs the DOM manipulation for one step (focus, click, fill, navigate).
type Dispatcher interface {
	DispatchInteractiveAction(ctx context.Context, data ElementData, click bool) error
}

// RequirementsChecker evaluates a step's declared requirements.
type RequirementsChecker interface {
	CheckRequirementsFromData(ctx context.Context, data ElementData) (RequirementsResult, error)
}

// ElementDataExtractor reads the declared step data off a section element.
type ElementDataExtractor interface {
	ExtractElementData(el Element) (ElementData, error)
}

// Settler waits for the rendering layer to settle after an action.
type Settler interface {
	WaitForSettle(ctx context.Context) error
}

// BrowserPage is the headless browser capability used by the E2E runner.
// Selectors are CSS selectors.
type BrowserPage interface {
	// StepMarkers enumerates rendered step markers in document order.
	StepMarkers(ctx context.Context) ([]StepMarker, error)

	ScrollIntoView(ctx context.Context, selector string) error

	// WaitEnabled blocks until selector matches a visible, enabled control.
	WaitEnabled(ctx context.Context, selector string) error

	Click(ctx context.Context, selector string) error

	// WaitVisible blocks until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error

	CurrentURL(ctx context.Context) (string, error)

	// DrainConsoleErrors returns and clears console errors seen since the last call.
	DrainConsoleErrors() []string
}

// Screenshotter is optionally implemented by pages that can capture the viewport.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// SessionChecker detects expired authentication between steps.
// Implementations return ErrAuthExpired (possibly wrapped) when the session is gone.
type SessionChecker interface {
	CheckSession(ctx context.Context, page BrowserPage) error
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByCmdline returns PIDs whose command line contains every fragment.
	FindByCmdline(fragments ...string) ([]int, error)

	Kill(pid int) error

	IsRunning(pid int) bool

	// ParentPID returns the PID of pid's parent process.
	ParentPID(pid int) (int, error)

	GetCurrentPID() int
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}

// SecretStore provides encrypted persistent storage for secrets (Grafana token).
type SecretStore interface {
	GetSecret(key string) (string, error)
	SetSecret(key, value string) error
	Close() error
}

// RunHistoryStore persists guide verification reports.
type RunHistoryStore interface {
	SaveRun(report RunReport) error
	GetRun(id string) (*RunReport, error)
	ListRuns(limit int) ([]RunReport, error)
}

// ArtifactStore writes run artifacts such as failure screenshots.
type ArtifactStore interface {
	// WriteArtifact stores data under runID/name and returns its path.
	WriteArtifact(runID, name string, data []byte) (string, error)
}
