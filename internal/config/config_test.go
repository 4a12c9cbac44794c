package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/pathfinder/internal/sequence"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pathfinder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.AutoDetection.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.AutoDetection.VerificationDelay)
	assert.Equal(t, 50*time.Millisecond, cfg.Monitor.DebounceWindow)
	assert.Equal(t, 10, cfg.Monitor.QueueSize)
	assert.Equal(t, 3, cfg.Sequence.MaxRetries)
	assert.Equal(t, string(sequence.AbortAll), cfg.Sequence.AbortPolicy)
	assert.Equal(t, 2*time.Second, cfg.FormValidation.Debounce)
	assert.Equal(t, 500*time.Millisecond, cfg.Blocker.ModalPollInterval)
	assert.Equal(t, 30*time.Second, cfg.E2E.StepTimeout)
	assert.True(t, cfg.E2E.Headless)
	assert.True(t, cfg.E2E.StopOnMandatoryFailure)
	assert.Equal(t, 10*time.Minute, cfg.Watch.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/pathfinder
auto_detection:
  enabled: false
  verification_delay: 400ms
sequence:
  max_retries: 5
  abort_policy: skip-and-continue
e2e:
  grafana_url: https://grafana.example.com
  step_timeout: 45s
watch:
  interval: 1h
  guides:
    - name: welcome
      url: https://grafana.example.com/a/pathfinder/welcome
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pathfinder", cfg.DataDir)
	assert.False(t, cfg.AutoDetection.Enabled)
	assert.Equal(t, 400*time.Millisecond, cfg.AutoDetection.VerificationDelay)
	assert.Equal(t, 5, cfg.Sequence.MaxRetries)
	assert.Equal(t, sequence.SkipAndContinue, cfg.SequenceConfig().AbortPolicy)
	assert.Equal(t, 45*time.Second, cfg.RunnerConfig().StepTimeout)
	assert.Equal(t, time.Hour, cfg.Watch.Interval)
	require.Len(t, cfg.Watch.Guides, 1)
	assert.Equal(t, "welcome", cfg.Watch.Guides[0].Name)

	// untouched sections keep defaults
	assert.Equal(t, 10, cfg.MonitorConfig().QueueSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BlockerConfig().ModalPollInterval)
}

func TestLoad_ExplicitZeroDelaysAreKept(t *testing.T) {
	path := writeConfig(t, `
auto_detection:
  verification_delay: 0s
sequence:
  max_retries: 0
  retry_delay: 0s
  settle_delay: 0s
  step_delay: 0s
monitor:
  debounce_window: 0s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.AutoDetectConfig().VerificationDelay)
	seq := cfg.SequenceConfig()
	assert.Zero(t, seq.MaxRetries)
	assert.Zero(t, seq.RetryDelay)
	assert.Zero(t, seq.SettleDelay)
	assert.Zero(t, seq.StepDelay)

	// a zero debounce window is meaningless and falls back to the default
	assert.Equal(t, 50*time.Millisecond, cfg.MonitorConfig().DebounceWindow)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "sequence: [not, a, map"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(&cfg, map[string]string{
		"PATHFINDER_DATA_DIR":                    "/data",
		"PATHFINDER_AUTODETECT_ENABLED":          "false",
		"PATHFINDER_MONITOR_QUEUE_SIZE":          "20",
		"PATHFINDER_SEQUENCE_RETRY_DELAY":        "1s",
		"PATHFINDER_E2E_GRAFANA_URL":             "http://localhost:3000",
		"PATHFINDER_E2E_HEADLESS":                "false",
		"PATHFINDER_WATCH_GUIDES_0_NAME":         "intro",
		"PATHFINDER_WATCH_GUIDES_0_URL":          "http://localhost:3000/a/guide/intro",
		"UNRELATED_SEQUENCE_MAX_RETRIES":         "99",
		"PATHFINDER_FORM_DEBOUNCE":               "3s",
		"PATHFINDER_BLOCKER_MODAL_POLL_INTERVAL": "250ms",
	})
	require.NoError(t, err)

	assert.Equal(t, "/data", cfg.DataDir)
	assert.False(t, cfg.AutoDetection.Enabled)
	assert.Equal(t, 20, cfg.Monitor.QueueSize)
	assert.Equal(t, time.Second, cfg.Sequence.RetryDelay)
	assert.Equal(t, 3, cfg.Sequence.MaxRetries)
	assert.Equal(t, "http://localhost:3000", cfg.E2E.GrafanaURL)
	assert.False(t, cfg.E2E.Headless)
	assert.Equal(t, 3*time.Second, cfg.FormValidation.Debounce)
	assert.Equal(t, 250*time.Millisecond, cfg.Blocker.ModalPollInterval)
	require.Len(t, cfg.Watch.Guides, 1)
	assert.Equal(t, "intro", cfg.Watch.Guides[0].Name)
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(&cfg, map[string]string{"PATHFINDER_MONITOR_QUEUE_SIZE": "lots"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "zero values get defaults",
			mutate: func(c *Config) { c.Monitor.DebounceWindow = 0; c.Sequence.AbortPolicy = "" },
		},
		{
			name:    "negative max retries",
			mutate:  func(c *Config) { c.Sequence.MaxRetries = -1 },
			wantErr: "sequence.max_retries",
		},
		{
			name:    "negative duration",
			mutate:  func(c *Config) { c.E2E.StepTimeout = -time.Second },
			wantErr: "e2e.step_timeout must not be negative",
		},
		{
			name:    "unknown abort policy",
			mutate:  func(c *Config) { c.Sequence.AbortPolicy = "retry-forever" },
			wantErr: "sequence.abort_policy",
		},
		{
			name:    "relative grafana url",
			mutate:  func(c *Config) { c.E2E.GrafanaURL = "grafana.local" },
			wantErr: "e2e.grafana_url",
		},
		{
			name: "relative guide without grafana url",
			mutate: func(c *Config) {
				c.Watch.Guides = []GuideTarget{{Name: "x", URL: "/a/guide"}}
			},
			wantErr: "watch.guides[0]",
		},
		{
			name: "relative guide resolves against grafana url",
			mutate: func(c *Config) {
				c.E2E.GrafanaURL = "http://localhost:3000"
				c.Watch.Guides = []GuideTarget{{Name: "x", URL: "/a/guide"}}
			},
		},
		{
			name: "guide without url",
			mutate: func(c *Config) {
				c.Watch.Guides = []GuideTarget{{Name: "x"}}
			},
			wantErr: "url is required",
		},
		{
			name:    "negative queue size",
			mutate:  func(c *Config) { c.Monitor.QueueSize = -1 },
			wantErr: "monitor.queue_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, 3, cfg.Sequence.MaxRetries)
				assert.Equal(t, 50*time.Millisecond, cfg.Monitor.DebounceWindow)
				assert.Equal(t, string(sequence.AbortAll), cfg.Sequence.AbortPolicy)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGuideURL(t *testing.T) {
	cfg := DefaultConfig()

	abs, err := cfg.GuideURL("https://play.grafana.org/a/guide")
	require.NoError(t, err)
	assert.Equal(t, "https://play.grafana.org/a/guide", abs)

	_, err = cfg.GuideURL("/a/guide")
	assert.Error(t, err, "relative guide needs a base url")

	cfg.E2E.GrafanaURL = "http://localhost:3000/grafana/"
	rel, err := cfg.GuideURL("a/pathfinder/intro")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/grafana/a/pathfinder/intro", rel)
}

func TestExpandHome(t *testing.T) {
	tests := []struct {
		path string
		home string
		want string
	}{
		{"~/artifacts", "/home/u", "/home/u/artifacts"},
		{"~", "/home/u", "/home/u"},
		{"/var/lib/pathfinder", "/home/u", "/var/lib/pathfinder"},
		{"rel/dir", "/home/u", "rel/dir"},
		{"~/artifacts", "", "~/artifacts"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, expandHome(tt.path, tt.home))
		})
	}
}
