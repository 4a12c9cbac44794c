// Package detect classifies raw DOM events into semantic interaction kinds.
package detect

import (
	"strconv"
	"strings"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// Attributes and classes recognised by the classifier.
const (
	AttrHoverable    = "data-hoverable"
	AttrTargetAction = "data-targetaction"
	AttrDebug        = "data-pathfinder-debug"
	AttrDevtools     = "data-devtools"
	AttrIgnore       = "data-pathfinder-ignore"
	AttrContent      = "data-pathfinder-content"
	ClassDebugPanel  = "pathfinder-debug-panel"
	ClassClickable   = "clickable"
)

var interactiveTags = map[string]bool{
	"button":   true,
	"a":        true,
	"input":    true,
	"select":   true,
	"textarea": true,
	"label":    true,
	"summary":  true,
	"option":   true,
	"details":  true,
}

var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"tab":              true,
	"checkbox":         true,
	"radio":            true,
	"switch":           true,
	"option":           true,
	"combobox":         true,
	"textbox":          true,
	"searchbox":        true,
	"spinbutton":       true,
	"slider":           true,
	"treeitem":         true,
}

// buttonRoles are the ARIA roles classified as "button" on click.
var buttonRoles = map[string]bool{
	"button":   true,
	"link":     true,
	"menuitem": true,
	"tab":      true,
}

var nonTextInputTypes = map[string]bool{
	"button":   true,
	"submit":   true,
	"reset":    true,
	"image":    true,
	"checkbox": true,
	"radio":    true,
	"file":     true,
	"range":    true,
	"color":    true,
	"hidden":   true,
}

// IsTextEntry reports whether el accepts typed text.
func IsTextEntry(el domain.Element) bool {
	if el == nil {
		return false
	}
	switch el.TagName() {
	case "textarea", "select":
		return true
	case "input":
		t, _ := el.Attr("type")
		return !nonTextInputTypes[strings.ToLower(t)]
	}
	if el.IsContentEditable() {
		return true
	}
	role, _ := el.Attr("role")
	return role == "textbox" || role == "searchbox" || role == "combobox"
}

// IsHoverable reports whether el or an ancestor is explicitly marked for hover objectives.
func IsHoverable(el domain.Element) bool {
	return domain.Closest(el, func(e domain.Element) bool {
		if _, ok := e.Attr(AttrHoverable); ok {
			return true
		}
		return domain.AttrEquals(e, AttrTargetAction, string(domain.ActionHover))
	}) != nil
}

// isButtonLike reports buttons, links and button-like ARIA roles, including
// submit/button inputs.
func isButtonLike(el domain.Element) bool {
	switch el.TagName() {
	case "button", "a", "summary":
		return true
	case "input":
		t, _ := el.Attr("type")
		switch strings.ToLower(t) {
		case "button", "submit", "reset", "image", "checkbox", "radio":
			return true
		}
	}
	role, _ := el.Attr("role")
	return buttonRoles[role]
}

// isNavigation reports anchors whose href leaves the current view.
func isNavigation(el domain.Element) bool {
	if el.TagName() != "a" {
		return false
	}
	if role, _ := el.Attr("role"); role == "button" {
		return false
	}
	href, ok := el.Attr("href")
	if !ok {
		return false
	}
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return false
	}
	return true
}

// nearestButtonLike returns el or its closest button-like ancestor.
func nearestButtonLike(el domain.Element) domain.Element {
	return domain.Closest(el, isButtonLike)
}

// DetectActionType classifies an event on element into a semantic action.
func DetectActionType(el domain.Element, ev domain.DOMEvent) domain.ActionType {
	if el == nil {
		return domain.ActionNoop
	}
	switch ev.Type {
	case domain.EventInput, domain.EventChange:
		if IsTextEntry(el) {
			return domain.ActionFormfill
		}
		return domain.ActionNoop
	case domain.EventMouseEnter:
		if IsHoverable(el) {
			return domain.ActionHover
		}
		return domain.ActionNoop
	case domain.EventClick:
		if IsHoverable(el) && nearestButtonLike(el) == nil {
			return domain.ActionHover
		}
		if b := nearestButtonLike(el); b != nil {
			if isNavigation(b) {
				return domain.ActionNavigate
			}
			return domain.ActionButton
		}
		// Clicking into a field is a highlight objective; formfill needs a value event.
		return domain.ActionHighlight
	case domain.EventKeyDown:
		if IsTextEntry(el) {
			return domain.ActionFormfill
		}
		return DetectActionType(el, domain.DOMEvent{Type: domain.EventClick, Target: el})
	}
	return domain.ActionNoop
}

// ShouldCaptureElement excludes debug UI, disabled elements and excluded containers.
func ShouldCaptureElement(el domain.Element) bool {
	if el == nil {
		return false
	}
	if isDisabled(el) {
		return false
	}
	excluded := domain.Closest(el, func(e domain.Element) bool {
		for _, a := range []string{AttrDebug, AttrDevtools, AttrIgnore, AttrContent} {
			if _, ok := e.Attr(a); ok {
				return true
			}
		}
		return e.HasClass(ClassDebugPanel)
	})
	return excluded == nil
}

func isDisabled(el domain.Element) bool {
	if _, ok := el.Attr("disabled"); ok {
		return true
	}
	return domain.AttrEquals(el, "aria-disabled", "true")
}

// isInteractiveSelf checks el alone, without ancestors.
func isInteractiveSelf(el domain.Element) bool {
	if interactiveTags[el.TagName()] {
		return true
	}
	if role, ok := el.Attr("role"); ok && interactiveRoles[role] {
		return true
	}
	if el.HasClickHandler() || el.HasClass(ClassClickable) {
		return true
	}
	if _, ok := el.Attr("onclick"); ok {
		return true
	}
	if ti, ok := el.Attr("tabindex"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(ti)); err == nil && n >= 0 {
			return true
		}
	}
	return el.IsContentEditable()
}

// IsValidInteractiveElement rejects bare decorative containers.
func IsValidInteractiveElement(el domain.Element) bool {
	if el == nil {
		return false
	}
	return domain.Closest(el, isInteractiveSelf) != nil
}
