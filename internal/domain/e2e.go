package domain

import (
	"errors"
	"time"
)

// ErrAuthExpired signals that the browser session lost authentication mid-run.
var ErrAuthExpired = errors.New("authentication expired")

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// StepStatus is the outcome of executing one discovered step.
type StepStatus string

const (
	StatusPassed     StepStatus = "passed"
	StatusFailed     StepStatus = "failed"
	StatusSkipped    StepStatus = "skipped"
	StatusNotReached StepStatus = "not_reached"
)

// Reason explains a failed, skipped or not-reached step.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonPreCompleted     Reason = "pre_completed"
	ReasonNoDoItButton     Reason = "no_do_it_button"
	ReasonTimeout          Reason = "timeout"
	ReasonError            Reason = "error"
	ReasonMandatoryFailure Reason = "mandatory_failure"
	ReasonAuthExpired      Reason = "auth_expired"
	ReasonCanceled         Reason = "canceled"
)

// StepMarker is the raw metadata a page reports for one rendered step marker.
type StepMarker struct {
	TestID        string `json:"testId"`
	SectionTestID string `json:"sectionTestId"`
	TargetAction  string `json:"targetAction"`
	HasDoIt       bool   `json:"hasDoIt"`
	HasSkip       bool   `json:"hasSkip"`
	Completed     bool   `json:"completed"`
}

// TestableStep captures discovery-time metadata for one step.
type TestableStep struct {
	StepID         string     `json:"stepId"`
	Index          int        `json:"index"`
	SectionID      string     `json:"sectionId,omitempty"`
	Skippable      bool       `json:"skippable"`
	HasDoItButton  bool       `json:"hasDoItButton"`
	IsPreCompleted bool       `json:"isPreCompleted"`
	TargetAction   ActionType `json:"targetAction,omitempty"`
}

// StepTestResult captures the outcome of executing one step.
type StepTestResult struct {
	StepID        string        `json:"stepId"`
	Index         int           `json:"index"`
	Status        StepStatus    `json:"status"`
	Reason        Reason        `json:"reason,omitempty"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	CurrentURL    string        `json:"currentUrl,omitempty"`
	ConsoleErrors []string      `json:"consoleErrors,omitempty"`
	Skippable     bool          `json:"skippable"`
	Screenshot    string        `json:"screenshot,omitempty"`
}

// RunSummary aggregates step outcomes for a run.
type RunSummary struct {
	Total             int           `json:"total"`
	Passed            int           `json:"passed"`
	Failed            int           `json:"failed"`
	Skipped           int           `json:"skipped"`
	NotReached        int           `json:"notReached"`
	MandatoryFailures int           `json:"mandatoryFailures"`
	Duration          time.Duration `json:"duration"`
	Success           bool          `json:"success"`
}

// RunReport is one complete guide verification run.
type RunReport struct {
	ID          string           `json:"id"`
	GuideURL    string           `json:"guideUrl"`
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt"`
	Steps       []TestableStep   `json:"steps"`
	Results     []StepTestResult `json:"results"`
	Summary     RunSummary       `json:"summary"`
	AuthExpired bool             `json:"authExpired"`
	Canceled    bool             `json:"canceled,omitempty"`
}
