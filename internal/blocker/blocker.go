// Package blocker keeps the page inert while an automated section runs.
package blocker

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/timeouts"
)

// ModalPollTimer is the timeouts.Manager name of the modal poll.
const ModalPollTimer = "blocker-modal-poll"

// Config holds blocker tuning.
type Config struct {
	ModalPollInterval time.Duration
}

// DefaultConfig returns blocker defaults.
func DefaultConfig() Config {
	return Config{ModalPollInterval: 500 * time.Millisecond}
}

// SectionData describes the section holding the block, for logging and overlays.
type SectionData struct {
	Title      string
	TotalSteps int
}

// Blocker is the single owner of the blocking overlays. At most one section
// holds it at a time; a second start is logged and ignored.
type Blocker struct {
	mu        sync.Mutex
	active    string
	data      SectionData
	cancel    func()
	modalOpen bool
	removeKey func()

	doc      domain.Document
	source   domain.EventSource
	overlays domain.OverlayHost
	modals   domain.ModalDetector
	timers   *timeouts.Manager
	config   Config
	logger   *zap.Logger
}

// New creates an idle blocker.
func New(doc domain.Document, source domain.EventSource, overlays domain.OverlayHost, modals domain.ModalDetector, timers *timeouts.Manager, config Config, logger *zap.Logger) *Blocker {
	if config.ModalPollInterval <= 0 {
		config.ModalPollInterval = DefaultConfig().ModalPollInterval
	}
	return &Blocker{
		doc:      doc,
		source:   source,
		overlays: overlays,
		modals:   modals,
		timers:   timers,
		config:   config,
		logger:   logger,
	}
}

// StartSectionBlocking acquires the block for sectionID. It returns false
// without side effects when another section already holds it.
func (b *Blocker) StartSectionBlocking(sectionID string, data SectionData, cancel func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active != "" {
		b.logger.Warn("section blocking already active, ignoring start",
			zap.String("active_section", b.active),
			zap.String("requested_section", sectionID))
		return false
	}
	if err := b.overlays.ShowBlockingOverlays(sectionID); err != nil {
		b.logger.Error("failed to show blocking overlays",
			zap.String("section", sectionID),
			zap.Error(err))
		return false
	}

	b.active = sectionID
	b.data = data
	b.cancel = cancel
	b.modalOpen = false
	b.timers.SetInterval(ModalPollTimer, b.config.ModalPollInterval, b.PollModal)
	b.removeKey = b.source.Listen(domain.EventKeyDown, b.onKeyDown)

	b.logger.Info("section blocking started",
		zap.String("section", sectionID),
		zap.String("title", data.Title),
		zap.Int("steps", data.TotalSteps))
	return true
}

// StopSectionBlocking releases the block if sectionID holds it.
func (b *Blocker) StopSectionBlocking(sectionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active == "" || b.active != sectionID {
		b.logger.Debug("stop ignored, section does not hold the block",
			zap.String("active_section", b.active),
			zap.String("requested_section", sectionID))
		return false
	}
	b.teardownLocked()
	b.logger.Info("section blocking stopped", zap.String("section", sectionID))
	return true
}

// ForceUnblock restores idle state regardless of which section holds the block.
func (b *Blocker) ForceUnblock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.active
	b.teardownLocked()
	b.logger.Warn("force unblock", zap.String("previous_section", prev))
}

// IsSectionBlocking reports whether any section holds the block.
func (b *Blocker) IsSectionBlocking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active != ""
}

// ActiveSection returns the holder's id, or "".
func (b *Blocker) ActiveSection() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// ShouldBlockPointer reports whether a pointer event on target must be
// intercepted. Editor surfaces stay usable while blocking.
func (b *Blocker) ShouldBlockPointer(target domain.Element) bool {
	if !b.IsSectionBlocking() {
		return false
	}
	return !IsEditorSurface(target)
}

// PollModal syncs the fullscreen overlay with third-party modal visibility.
func (b *Blocker) PollModal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == "" {
		return
	}
	open := b.modals.HasTransientOverlay()
	if open == b.modalOpen {
		return
	}
	b.modalOpen = open
	b.overlays.SetFullscreenOverlayVisible(open)
	b.logger.Debug("transient overlay changed", zap.Bool("open", open))
}

func (b *Blocker) onKeyDown(ev domain.DOMEvent) {
	if !strings.EqualFold(ev.Key, "c") || !(ev.CtrlKey || ev.MetaKey) {
		return
	}
	if focusInTextField(ev.Target) || focusInTextField(b.doc.ActiveElement()) {
		return
	}
	b.mu.Lock()
	cancel, section := b.cancel, b.active
	b.mu.Unlock()
	if section == "" || cancel == nil {
		return
	}
	b.logger.Info("section canceled by keyboard shortcut", zap.String("section", section))
	cancel()
}

func (b *Blocker) teardownLocked() {
	b.timers.Clear(ModalPollTimer)
	if b.removeKey != nil {
		b.removeKey()
		b.removeKey = nil
	}
	b.overlays.HideBlockingOverlays()
	b.active = ""
	b.data = SectionData{}
	b.cancel = nil
	b.modalOpen = false
}

// IsEditorSurface reports whether el sits inside a WYSIWYG editor.
func IsEditorSurface(el domain.Element) bool {
	return domain.Closest(el, func(e domain.Element) bool {
		if e.HasClass("ProseMirror") || e.HasClass("tiptap") {
			return true
		}
		_, ok := e.Attr("data-wysiwyg-editor")
		return ok
	}) != nil
}

func focusInTextField(el domain.Element) bool {
	if el == nil {
		return false
	}
	tag := el.TagName()
	return tag == "input" || tag == "textarea"
}
