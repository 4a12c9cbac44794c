package e2e

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// LoginRedirectChecker treats a redirect to Grafana's login page as an
// expired session.
type LoginRedirectChecker struct {
	LoginPath string // defaults to "/login"
}

var _ domain.SessionChecker = LoginRedirectChecker{}

func (c LoginRedirectChecker) CheckSession(ctx context.Context, page domain.BrowserPage) error {
	raw, err := page.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("read current url: %w", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse current url: %w", err)
	}
	loginPath := c.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	if strings.HasSuffix(strings.TrimRight(u.Path, "/"), loginPath) {
		return fmt.Errorf("%w: redirected to %s", domain.ErrAuthExpired, u.Path)
	}
	return nil
}
