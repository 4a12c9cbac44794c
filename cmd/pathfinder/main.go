// Package main is the CLI entry point for pathfinder.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/pathfinder/internal/config"
	"github.com/eliteGoblin/pathfinder/internal/daemon"
	"github.com/eliteGoblin/pathfinder/internal/domain"
	"github.com/eliteGoblin/pathfinder/internal/e2e"
	"github.com/eliteGoblin/pathfinder/internal/infra"
	"github.com/eliteGoblin/pathfinder/internal/match"
	"github.com/eliteGoblin/pathfinder/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitCode(err))
}

var rootCmd = &cobra.Command{
	Use:   "pathfinder",
	Short: "Interactive guide engine and headless guide verifier",
	Long: `pathfinder drives interactive learning guides: it replays each step's
"do it" action in a headless browser, checks that the step completes, and
records the outcome in an encrypted local history.

Use "e2e" for a one-off verification and "watch" to re-verify a list of
guides on a schedule.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var e2eCmd = &cobra.Command{
	Use:   "e2e <guide-url>",
	Short: "Verify one guide in a headless browser",
	Long: `Opens the guide, discovers its steps and clicks every "do it" button in order.
Relative guide paths are resolved against e2e.grafana_url.

Exit status is 1 when a mandatory step fails and 3 when the session expired.`,
	Args: cobra.ExactArgs(1),
	RunE: runE2E,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-verify the configured guides on a schedule",
	Long:  `Runs until interrupted, verifying every guide in watch.guides each interval.`,
	RunE:  runWatch,
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded verification runs",
	Long: `Lists recent runs, newest first. Pass a run id to print its step table,
or --guide to print the latest run of one guide.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a Grafana service account token",
	Long:  `Saves the token in the encrypted store. Verification runs send it as a bearer token.`,
	RunE:  runLogin,
}

var matchCmd = &cobra.Command{
	Use:   "match <value> <expected>",
	Short: "Check a form value against an expected literal or /pattern/flags",
	Args:  cobra.ExactArgs(2),
	RunE:  runMatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath   string
	verbose      bool
	jsonOutput   bool
	historyLimit int
	historyGuide string
	loginToken   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	e2eCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list")
	historyCmd.Flags().StringVarP(&historyGuide, "guide", "g", "", "Show the latest run of this guide")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Service account token (default: $PATHFINDER_GRAFANA_TOKEN)")

	rootCmd.AddCommand(e2eCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(versionCmd)
}

// app holds the wired components shared by the commands.
type app struct {
	cfg       *config.Config
	store     *infra.EncryptedStore
	artifacts *infra.FileArtifactStore
	reaper    *infra.BrowserReaper
	verifier  *usecase.Verifier
	logger    *zap.Logger
}

func newApp(logger *zap.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	artifacts := infra.NewFileArtifactStore(cfg.ResolveArtifactsDir())
	reaper := infra.NewBrowserReaper(infra.NewProcessManager(), infra.ProfilePrefix(), logger)
	runner := e2e.NewRunner(cfg.RunnerConfig(), e2e.LoginRedirectChecker{}, artifacts, logger)
	browser := browserConfig(cfg)
	pages := func(ctx context.Context, token string) (usecase.Page, error) {
		bc := browser
		bc.AuthToken = token
		page, err := infra.NewChromePage(ctx, bc, markerQuery(), logger)
		if err != nil {
			return nil, err
		}
		return page, nil
	}
	verifier := usecase.NewVerifier(runner, pages, store, store, reaper, usecase.DefaultVerifierConfig(), logger)

	return &app{
		cfg:       cfg,
		store:     store,
		artifacts: artifacts,
		reaper:    reaper,
		verifier:  verifier,
		logger:    logger,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
}

func openStore(cfg *config.Config) (*infra.EncryptedStore, error) {
	dataDir := cfg.ResolveDataDir()
	key, err := infra.EnsureKey(infra.ChooseKeyProvider(dataDir))
	if err != nil {
		return nil, fmt.Errorf("load store key: %w", err)
	}
	return infra.NewEncryptedStore(dataDir, key)
}

func browserConfig(cfg *config.Config) infra.BrowserConfig {
	bc := infra.DefaultBrowserConfig()
	bc.Headless = cfg.E2E.Headless
	bc.NoSandbox = cfg.E2E.NoSandbox
	bc.ExecPath = cfg.E2E.ChromePath
	return bc
}

func markerQuery() infra.MarkerQuery {
	return infra.MarkerQuery{
		Step:      e2e.PrefixStep,
		Section:   e2e.PrefixSection,
		DoIt:      e2e.PrefixDoIt,
		Skip:      e2e.PrefixSkip,
		Completed: e2e.PrefixCompleted,
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func runE2E(cmd *cobra.Command, args []string) error {
	logger := createLogger(false)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(logger)
	if err != nil {
		return err
	}
	defer a.Close()

	guideURL, err := a.cfg.GuideURL(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	report, runErr := a.verifier.Verify(ctx, guideURL)
	if report != nil {
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := writeReportJSON(out, report); err != nil {
				return err
			}
		} else {
			writeReport(out, report)
		}
	}
	return exitCodeFor(report, runErr)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := createLogger(true)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(logger)
	if err != nil {
		return err
	}
	defer a.Close()

	guides, err := watchGuides(a.cfg)
	if err != nil {
		return err
	}
	if len(guides) == 0 {
		return errors.New("no guides configured: set watch.guides")
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	watcher := daemon.NewWatcher(
		daemon.WatcherConfig{
			VerifyInterval:  a.cfg.Watch.Interval,
			CleanupInterval: a.cfg.Watch.CleanupInterval,
			Retention:       a.cfg.Watch.Retention,
		},
		guides,
		a.verifier,
		a.reaper,
		retention{history: a.store, artifacts: a.artifacts, logger: logger},
		logger,
	)
	err = watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// retention prunes run history together with the artifacts those runs left.
type retention struct {
	history   *infra.EncryptedStore
	artifacts *infra.FileArtifactStore
	logger    *zap.Logger
}

func (r retention) PruneRuns(cutoff time.Time) (int64, error) {
	if n, err := r.artifacts.PruneBefore(cutoff); err != nil {
		r.logger.Warn("artifact prune failed", zap.Error(err))
	} else if n > 0 {
		r.logger.Info("pruned run artifacts", zap.Int("runs", n))
	}
	return r.history.PruneRuns(cutoff)
}

func watchGuides(cfg *config.Config) ([]daemon.Guide, error) {
	guides := make([]daemon.Guide, 0, len(cfg.Watch.Guides))
	for _, g := range cfg.Watch.Guides {
		u, err := cfg.GuideURL(g.URL)
		if err != nil {
			return nil, fmt.Errorf("guide %q: %w", g.Name, err)
		}
		name := g.Name
		if name == "" {
			name = u
		}
		guides = append(guides, daemon.Guide{Name: name, URL: u})
	}
	return guides, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var runID string
	if len(args) == 1 {
		runID = args[0]
	}
	guideURL := ""
	if historyGuide != "" {
		if guideURL, err = cfg.GuideURL(historyGuide); err != nil {
			return err
		}
	}
	return showHistory(cmd.OutOrStdout(), store, runID, guideURL, historyLimit)
}

// historyReader is the read side of the run history store.
type historyReader interface {
	GetRun(id string) (*domain.RunReport, error)
	ListRuns(limit int) ([]domain.RunReport, error)
	LastRun(guideURL string) (*domain.RunReport, error)
}

// showHistory prints one run by id, the latest run of guideURL, or a list.
func showHistory(out io.Writer, history historyReader, runID, guideURL string, limit int) error {
	switch {
	case runID != "":
		report, err := history.GetRun(runID)
		if err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}
		writeReport(out, report)
		return nil
	case guideURL != "":
		report, err := history.LastRun(guideURL)
		if errors.Is(err, domain.ErrNotFound) {
			fmt.Fprintf(out, "No runs recorded for %s.\n", guideURL)
			return nil
		}
		if err != nil {
			return err
		}
		writeReport(out, report)
		return nil
	}

	runs, err := history.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	writeHistory(out, runs)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	token := loginToken
	if token == "" {
		token = os.Getenv("PATHFINDER_GRAFANA_TOKEN")
	}
	if token == "" {
		return errors.New("--token is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetSecret(usecase.TokenSecretKey, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", store.Path())
	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	value, expected := args[0], args[1]
	if !match.ValidatePattern(expected) {
		return fmt.Errorf("invalid pattern %q", expected)
	}
	res := match.MatchFormValue(&value, expected)
	kind := "literal"
	if res.UsedRegex {
		kind = "regex"
	}
	if !res.IsMatch {
		fmt.Fprintf(cmd.OutOrStdout(), "no match (%s)\n", kind)
		return &exitError{code: 1, err: errors.New("value does not match")}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "match (%s)\n", kind)
	return nil
}

// createLogger logs to stderr: JSON for the long-running watcher, console otherwise.
func createLogger(production bool) *zap.Logger {
	var logConfig zap.Config
	if production {
		logConfig = zap.NewProductionConfig()
		logConfig.EncoderConfig.TimeKey = "time"
		logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		logConfig.DisableStacktrace = true
	}
	if verbose {
		logConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := logConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("pathfinder %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

var _ daemon.GuideVerifier = (*usecase.Verifier)(nil)
