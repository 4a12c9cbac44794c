package match

import (
	"fmt"
	"strings"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// GrafanaPrefix marks a refTarget that names a Grafana UI element by alias.
const GrafanaPrefix = "grafana:"

// grafanaAliases maps well-known Grafana UI elements to stable selectors.
var grafanaAliases = map[string]string{
	"mega-menu":          `[data-testid="data-testid navigation mega-menu"]`,
	"mega-menu-toggle":   `#mega-menu-toggle`,
	"search":             `[data-testid="data-testid Search"]`,
	"dashboard-save":     `[data-testid="data-testid Save dashboard button"]`,
	"dashboard-add":      `[data-testid="data-testid Add button"]`,
	"datasource-add-new": `[data-testid="data-testid Data source add new"]`,
}

// buttonCandidates is the selector used when resolving a button by its text.
const buttonCandidates = `button, [role="button"], a, input[type="submit"], input[type="button"]`

// ResolveSelector expands a grafana: alias into a CSS selector.
// Unknown aliases fall back to Grafana's "data-testid <name>" convention.
func ResolveSelector(ref string) string {
	if !strings.HasPrefix(ref, GrafanaPrefix) {
		return ref
	}
	key := strings.TrimPrefix(ref, GrafanaPrefix)
	if sel, ok := grafanaAliases[key]; ok {
		return sel
	}
	return fmt.Sprintf(`[data-testid="data-testid %s"]`, key)
}

// looksLikeSelector distinguishes CSS selectors from visible button text.
func looksLikeSelector(ref string) bool {
	return strings.HasPrefix(ref, GrafanaPrefix) || strings.ContainsAny(ref, "#.[]:>=*")
}

// ResolveTargets finds every element cfg.RefTarget refers to, in document order.
// Zero results means "not yet present" and is not an error.
func ResolveTargets(doc domain.Document, cfg domain.StepActionConfig) ([]domain.Element, error) {
	ref := strings.TrimSpace(cfg.RefTarget)
	if ref == "" {
		return nil, nil
	}
	if cfg.TargetAction == domain.ActionButton && !looksLikeSelector(ref) {
		return findButtonsByText(doc, ref)
	}
	return doc.QuerySelectorAll(ResolveSelector(ref))
}

// findButtonsByText prefers exact (case-insensitive) text, then substring matches.
func findButtonsByText(doc domain.Document, text string) ([]domain.Element, error) {
	candidates, err := doc.QuerySelectorAll(buttonCandidates)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(text))
	var exact, partial []domain.Element
	for _, el := range candidates {
		label := strings.ToLower(strings.TrimSpace(el.TextContent()))
		if label == "" {
			if v, ok := el.Attr("aria-label"); ok {
				label = strings.ToLower(strings.TrimSpace(v))
			}
		}
		switch {
		case label == want:
			exact = append(exact, el)
		case strings.Contains(label, want):
			partial = append(partial, el)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return partial, nil
}
