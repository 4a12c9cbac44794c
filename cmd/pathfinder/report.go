package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const (
	exitFailure     = 1
	exitAuthExpired = 3
)

// exitError carries a process exit status through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

// exitCodeFor maps a verification outcome to the CLI result.
func exitCodeFor(report *domain.RunReport, runErr error) error {
	switch {
	case errors.Is(runErr, domain.ErrAuthExpired):
		return &exitError{code: exitAuthExpired, err: runErr}
	case runErr != nil:
		return runErr
	case report != nil && !report.Summary.Success:
		return &exitError{
			code: exitFailure,
			err:  fmt.Errorf("guide verification failed: %d mandatory step(s) failed", report.Summary.MandatoryFailures),
		}
	}
	return nil
}

func writeReport(w io.Writer, r *domain.RunReport) {
	fmt.Fprintf(w, "Run %s\nGuide %s\n\n", r.ID, r.GuideURL)

	statuses := make([]domain.StepStatus, len(r.Results))
	t := newTable("#", "STEP", "STATUS", "REASON", "DURATION", "DETAIL")
	for i, res := range r.Results {
		statuses[i] = res.Status
		t.Row(strconv.Itoa(res.Index+1), res.StepID, statusLabel(res), string(res.Reason),
			res.Duration.Round(time.Millisecond).String(), detail(res))
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == 2 && row >= 0 && row < len(statuses) {
			return cellStyle.Inherit(statusStyle(statuses[row]))
		}
		return cellStyle
	})
	fmt.Fprintln(w, t.Render())

	s := r.Summary
	fmt.Fprintf(w, "\n%d steps: %d passed, %d failed, %d skipped, %d not reached (%s)\n",
		s.Total, s.Passed, s.Failed, s.Skipped, s.NotReached, s.Duration.Round(time.Millisecond))
	switch {
	case r.AuthExpired:
		fmt.Fprintln(w, "Result: "+warnStyle.Render("SESSION EXPIRED"))
	case r.Canceled:
		fmt.Fprintln(w, "Result: "+warnStyle.Render("INTERRUPTED"))
	case s.Success:
		fmt.Fprintln(w, "Result: "+okStyle.Render("PASS"))
	default:
		fmt.Fprintln(w, "Result: "+errStyle.Render("FAIL"))
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...)
}

func statusStyle(status domain.StepStatus) lipgloss.Style {
	switch status {
	case domain.StatusPassed:
		return okStyle
	case domain.StatusFailed:
		return errStyle
	case domain.StatusNotReached:
		return warnStyle
	}
	return mutedStyle
}

func statusLabel(res domain.StepTestResult) string {
	if res.Status == domain.StatusFailed && res.Skippable {
		return "failed (skippable)"
	}
	return string(res.Status)
}

func detail(res domain.StepTestResult) string {
	switch {
	case res.Error != "":
		return res.Error
	case len(res.ConsoleErrors) > 0:
		return fmt.Sprintf("%d console error(s)", len(res.ConsoleErrors))
	case res.Screenshot != "":
		return res.Screenshot
	}
	return ""
}

func writeReportJSON(w io.Writer, r *domain.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeHistory(w io.Writer, runs []domain.RunReport) {
	t := newTable("ID", "STARTED", "RESULT", "PASSED", "FAILED", "GUIDE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range runs {
		result := "fail"
		switch {
		case r.AuthExpired:
			result = "expired"
		case r.Canceled:
			result = "canceled"
		case r.Summary.Success:
			result = "pass"
		}
		t.Row(r.ID, r.StartedAt.Local().Format(time.DateTime), result,
			fmt.Sprintf("%d/%d", r.Summary.Passed, r.Summary.Total),
			strconv.Itoa(r.Summary.Failed), r.GuideURL)
	}
	fmt.Fprintln(w, t.Render())
}
