// Package config loads pathfinder settings from YAML and PATHFINDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/pathfinder/internal/autodetect"
	"github.com/eliteGoblin/pathfinder/internal/blocker"
	"github.com/eliteGoblin/pathfinder/internal/e2e"
	"github.com/eliteGoblin/pathfinder/internal/formvalidation"
	"github.com/eliteGoblin/pathfinder/internal/monitor"
	"github.com/eliteGoblin/pathfinder/internal/sequence"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PATHFINDER_"

type AutoDetectionConfig struct {
	Enabled           bool          `yaml:"enabled" env:"ENABLED"`
	VerificationDelay time.Duration `yaml:"verification_delay" env:"VERIFICATION_DELAY"`
}

type MonitorConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window" env:"DEBOUNCE_WINDOW"`
	QueueSize      int           `yaml:"queue_size" env:"QUEUE_SIZE"`
}

type SequenceConfig struct {
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	SettleDelay time.Duration `yaml:"settle_delay" env:"SETTLE_DELAY"`
	StepDelay   time.Duration `yaml:"step_delay" env:"STEP_DELAY"`
	AbortPolicy string        `yaml:"abort_policy" env:"ABORT_POLICY"`
}

type FormValidationConfig struct {
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`
}

type BlockerConfig struct {
	ModalPollInterval time.Duration `yaml:"modal_poll_interval" env:"MODAL_POLL_INTERVAL"`
}

// E2EConfig configures headless guide verification.
type E2EConfig struct {
	GrafanaURL             string        `yaml:"grafana_url" env:"GRAFANA_URL"`
	Headless               bool          `yaml:"headless" env:"HEADLESS"`
	NoSandbox              bool          `yaml:"no_sandbox" env:"NO_SANDBOX"`
	ChromePath             string        `yaml:"chrome_path" env:"CHROME_PATH"`
	StepTimeout            time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT"`
	EnableTimeout          time.Duration `yaml:"enable_timeout" env:"ENABLE_TIMEOUT"`
	StopOnMandatoryFailure bool          `yaml:"stop_on_mandatory_failure" env:"STOP_ON_MANDATORY_FAILURE"`
	ArtifactsDir           string        `yaml:"artifacts_dir" env:"ARTIFACTS_DIR"`
}

// GuideTarget is one guide the watcher re-verifies.
type GuideTarget struct {
	Name string `yaml:"name" env:"NAME"`
	URL  string `yaml:"url" env:"URL"`
}

type WatchConfig struct {
	Interval        time.Duration `yaml:"interval" env:"INTERVAL"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	Retention       time.Duration `yaml:"retention" env:"RETENTION"`
	Guides          []GuideTarget `yaml:"guides" envPrefix:"GUIDES_"`
}

// Config is the full pathfinder configuration.
type Config struct {
	DataDir        string               `yaml:"data_dir" env:"DATA_DIR"`
	AutoDetection  AutoDetectionConfig  `yaml:"auto_detection" envPrefix:"AUTODETECT_"`
	Monitor        MonitorConfig        `yaml:"monitor" envPrefix:"MONITOR_"`
	Sequence       SequenceConfig       `yaml:"sequence" envPrefix:"SEQUENCE_"`
	FormValidation FormValidationConfig `yaml:"form_validation" envPrefix:"FORM_"`
	Blocker        BlockerConfig        `yaml:"blocker" envPrefix:"BLOCKER_"`
	E2E            E2EConfig            `yaml:"e2e" envPrefix:"E2E_"`
	Watch          WatchConfig          `yaml:"watch" envPrefix:"WATCH_"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	ad := autodetect.DefaultConfig()
	mon := monitor.DefaultConfig()
	seq := sequence.DefaultConfig()
	run := e2e.DefaultConfig()
	return Config{
		DataDir: "~/.pathfinder",
		AutoDetection: AutoDetectionConfig{
			Enabled:           ad.Enabled,
			VerificationDelay: ad.VerificationDelay,
		},
		Monitor: MonitorConfig{
			DebounceWindow: mon.DebounceWindow,
			QueueSize:      mon.QueueSize,
		},
		Sequence: SequenceConfig{
			MaxRetries:  seq.MaxRetries,
			RetryDelay:  seq.RetryDelay,
			SettleDelay: seq.SettleDelay,
			StepDelay:   seq.StepDelay,
			AbortPolicy: string(seq.AbortPolicy),
		},
		FormValidation: FormValidationConfig{Debounce: formvalidation.DefaultDebounce},
		Blocker:        BlockerConfig{ModalPollInterval: blocker.DefaultConfig().ModalPollInterval},
		E2E: E2EConfig{
			Headless:               true,
			StepTimeout:            run.StepTimeout,
			EnableTimeout:          run.EnableTimeout,
			StopOnMandatoryFailure: run.StopOnMandatoryFailure,
			ArtifactsDir:           "~/.pathfinder/artifacts",
		},
		Watch: WatchConfig{
			Interval:        10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			Retention:       30 * 24 * time.Hour,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg with PATHFINDER_* environment variables.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, nil)
}

func applyEnv(cfg *Config, environment map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate fills zero windows, sizes, intervals and timeouts with defaults and
// rejects invalid settings. Delays and max_retries keep an explicit 0: a zero
// delay does not wait and zero retries means a single attempt.
func (c *Config) Validate() error {
	def := DefaultConfig()
	var errs []error

	fillDuration(&c.Monitor.DebounceWindow, def.Monitor.DebounceWindow)
	fillInt(&c.Monitor.QueueSize, def.Monitor.QueueSize)
	fillDuration(&c.FormValidation.Debounce, def.FormValidation.Debounce)
	fillDuration(&c.Blocker.ModalPollInterval, def.Blocker.ModalPollInterval)
	fillDuration(&c.E2E.StepTimeout, def.E2E.StepTimeout)
	fillDuration(&c.E2E.EnableTimeout, def.E2E.EnableTimeout)
	fillDuration(&c.Watch.Interval, def.Watch.Interval)
	fillDuration(&c.Watch.CleanupInterval, def.Watch.CleanupInterval)
	if c.Sequence.AbortPolicy == "" {
		c.Sequence.AbortPolicy = def.Sequence.AbortPolicy
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.E2E.ArtifactsDir == "" {
		c.E2E.ArtifactsDir = filepath.Join(c.DataDir, "artifacts")
	}

	for name, d := range map[string]time.Duration{
		"auto_detection.verification_delay": c.AutoDetection.VerificationDelay,
		"monitor.debounce_window":           c.Monitor.DebounceWindow,
		"sequence.retry_delay":              c.Sequence.RetryDelay,
		"sequence.settle_delay":             c.Sequence.SettleDelay,
		"sequence.step_delay":               c.Sequence.StepDelay,
		"form_validation.debounce":          c.FormValidation.Debounce,
		"blocker.modal_poll_interval":       c.Blocker.ModalPollInterval,
		"e2e.step_timeout":                  c.E2E.StepTimeout,
		"e2e.enable_timeout":                c.E2E.EnableTimeout,
		"watch.interval":                    c.Watch.Interval,
		"watch.cleanup_interval":            c.Watch.CleanupInterval,
		"watch.retention":                   c.Watch.Retention,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative (got %s)", name, d))
		}
	}
	if c.Monitor.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("monitor.queue_size must not be negative (got %d)", c.Monitor.QueueSize))
	}
	if c.Sequence.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("sequence.max_retries must not be negative (got %d)", c.Sequence.MaxRetries))
	}
	if !sequence.AbortPolicy(c.Sequence.AbortPolicy).Valid() {
		errs = append(errs, fmt.Errorf("sequence.abort_policy %q must be %q or %q",
			c.Sequence.AbortPolicy, sequence.AbortAll, sequence.SkipAndContinue))
	}
	if c.E2E.GrafanaURL != "" {
		if err := checkAbsoluteURL(c.E2E.GrafanaURL); err != nil {
			errs = append(errs, fmt.Errorf("e2e.grafana_url: %w", err))
		}
	}
	for i, g := range c.Watch.Guides {
		if g.URL == "" {
			errs = append(errs, fmt.Errorf("watch.guides[%d] (%s): url is required", i, g.Name))
			continue
		}
		if _, err := c.GuideURL(g.URL); err != nil {
			errs = append(errs, fmt.Errorf("watch.guides[%d] (%s): %w", i, g.Name, err))
		}
	}
	return errors.Join(errs...)
}

func fillDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func fillInt(n *int, def int) {
	if *n == 0 {
		*n = def
	}
}

func checkAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

// ResolveDataDir expands a leading ~ in DataDir.
func (c *Config) ResolveDataDir() string {
	return expandHome(c.DataDir, userHome())
}

// ResolveArtifactsDir expands a leading ~ in ArtifactsDir.
func (c *Config) ResolveArtifactsDir() string {
	return expandHome(c.E2E.ArtifactsDir, userHome())
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func expandHome(p, home string) string {
	if home == "" || (p != "~" && !strings.HasPrefix(p, "~/")) {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
}

// GuideURL resolves a guide reference against the Grafana base URL.
func (c *Config) GuideURL(ref string) (string, error) {
	if checkAbsoluteURL(ref) == nil {
		return ref, nil
	}
	if c.E2E.GrafanaURL == "" {
		return "", fmt.Errorf("relative guide %q needs e2e.grafana_url", ref)
	}
	base, err := url.Parse(c.E2E.GrafanaURL)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{DebounceWindow: c.Monitor.DebounceWindow, QueueSize: c.Monitor.QueueSize}
}

func (c *Config) AutoDetectConfig() autodetect.Config {
	return autodetect.Config{Enabled: c.AutoDetection.Enabled, VerificationDelay: c.AutoDetection.VerificationDelay}
}

func (c *Config) SequenceConfig() sequence.Config {
	return sequence.Config{
		MaxRetries:  c.Sequence.MaxRetries,
		RetryDelay:  c.Sequence.RetryDelay,
		SettleDelay: c.Sequence.SettleDelay,
		StepDelay:   c.Sequence.StepDelay,
		AbortPolicy: sequence.AbortPolicy(c.Sequence.AbortPolicy),
	}
}

func (c *Config) BlockerConfig() blocker.Config {
	return blocker.Config{ModalPollInterval: c.Blocker.ModalPollInterval}
}

func (c *Config) RunnerConfig() e2e.Config {
	return e2e.Config{
		StepTimeout:            c.E2E.StepTimeout,
		EnableTimeout:          c.E2E.EnableTimeout,
		StopOnMandatoryFailure: c.E2E.StopOnMandatoryFailure,
	}
}
