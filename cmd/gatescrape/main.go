package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/gatescrape/gatescrape/fastgate"
	"github.com/gatescrape/gatescrape/internal/config"
	"github.com/gatescrape/gatescrape/scraper"
	"github.com/gatescrape/gatescrape/technicolor"
	"github.com/gatescrape/gatescrape/transport"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 2
)

var rootCmd = &cobra.Command{
	Use:   "gatescrape",
	Short: "Scrape structured data from consumer router web UIs",
	Long: `gatescrape logs into a consumer router's management interface and
extracts structured data (connected devices, SMS inbox) that the firmware
only exposes through its web UI.

Each router model has its own adapter handling the model's login flow and
data formats. Sessions are reused across invocations when a snapshot file
is configured, so repeated scrapes do not re-authenticate every time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// overrideExitCode is set by subcommands (check-config) so main() can call
// os.Exit() after cobra finishes.  This avoids calling os.Exit() inside RunE
// which would bypass deferred functions.  -1 means "use default".
var overrideExitCode = -1

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices connected to the router",
	RunE:  runDevices,
}

var smsCmd = &cobra.Command{
	Use:   "sms",
	Short: "List the router's SMS inbox, newest first",
	RunE:  runSMS,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and move session snapshots",
}

var sessionExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the current session snapshot",
	Long: `Print the cached session snapshot to stdout.

The snapshot is an opaque string describing the session state and token.
It never contains credentials, so it is safe to move between hosts; the
transport context (cookies, browser state) is re-acquired after a restore.`,
	RunE: runSessionExport,
}

var sessionRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot>",
	Short: "Validate a snapshot and install it as the session cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRestore,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration file without touching the router.

Exit codes:
  0 = Configuration is valid
  2 = Configuration error`,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "/etc/gatescrape/config.yaml",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionRestoreCmd)

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(smsCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	// If a subcommand set a specific exit code, use it.
	// This is done outside RunE so deferred functions run properly.
	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// loadConfig loads the config file and applies flag overrides and logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	config.SetupLogging(&cfg.Log)

	return cfg, nil
}

// buildScraper constructs the adapter for the configured model.
func buildScraper(cfg *config.Config) (scraper.Scraper, error) {
	switch cfg.Router.Model {
	case fastgate.Model, technicolor.Model:
		client := transport.NewHTTPClient(cfg.Router.Host)
		client.SetTimeout(time.Duration(cfg.Transport.TimeoutSeconds) * time.Second)
		burst := int(cfg.Transport.RateLimit)
		if burst < 1 {
			burst = 1
		}
		client.SetRateLimit(rate.Limit(cfg.Transport.RateLimit), burst)
		creds := scraper.Credentials{
			Host:     cfg.Router.Host,
			Username: cfg.Router.Username,
			Password: cfg.Router.Password,
		}
		if cfg.Router.Model == fastgate.Model {
			return fastgate.NewWithClient(creds, client), nil
		}
		return technicolor.NewWithClient(creds, client), nil
	default:
		// The browser-driven adapters need a WebDriver binding, which this
		// build does not link. Library users supply their own
		// transport.Browser implementation.
		return nil, fmt.Errorf("model %s needs a browser binding and cannot run from this CLI", cfg.Router.Model)
	}
}

// restoreSnapshot loads a previously exported session, if one exists. A
// stale or malformed snapshot is not fatal: the adapter just logs in again.
func restoreSnapshot(cfg *config.Config, s scraper.Scraper) {
	path := cfg.Session.SnapshotFile
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cannot read session snapshot", "path", path, "error", err)
		}
		return
	}
	if err := s.RestoreSession(string(data)); err != nil {
		slog.Warn("discarding unusable session snapshot", "path", path, "error", err)
		return
	}
	slog.Debug("session snapshot restored", "path", path)
}

// saveSnapshot persists the current session for the next invocation.
func saveSnapshot(cfg *config.Config, s scraper.Scraper) {
	path := cfg.Session.SnapshotFile
	if path == "" {
		return
	}
	snapshot, err := s.ExportSession()
	if err != nil {
		slog.Warn("cannot export session", "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(snapshot), 0o600); err != nil {
		slog.Warn("cannot write session snapshot", "path", path, "error", err)
	}
}

// withScraper runs fn against a configured adapter with session snapshot
// handling around it.
func withScraper(fn func(ctx context.Context, s scraper.Scraper) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := buildScraper(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restoreSnapshot(cfg, s)
	if err := fn(ctx, s); err != nil {
		return err
	}
	saveSnapshot(cfg, s)
	return nil
}

func runDevices(cmd *cobra.Command, args []string) error {
	return withScraper(func(ctx context.Context, s scraper.Scraper) error {
		devices, err := s.ListDevices(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%-20s %-17s %-15s\n", "NAME", "MAC", "IP")
		for _, d := range devices {
			fmt.Printf("%-20s %-17s %-15s\n", d.Name, d.MAC, d.IP)
		}
		slog.Info("device list complete", "model", s.Model(), "devices", len(devices))
		return nil
	})
}

func runSMS(cmd *cobra.Command, args []string) error {
	return withScraper(func(ctx context.Context, s scraper.Scraper) error {
		messages, err := s.ListSMS(ctx)
		if err != nil {
			return err
		}

		for _, m := range messages {
			fmt.Printf("[%s] %s\n%s\n\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Number, m.Content)
		}
		slog.Info("sms list complete", "model", s.Model(), "messages", len(messages))
		return nil
	})
}

// runSessionExport prints the cached session snapshot. A missing cache still
// exports: a fresh adapter serializes its unauthenticated state.
func runSessionExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := buildScraper(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	restoreSnapshot(cfg, s)
	snapshot, err := s.ExportSession()
	if err != nil {
		return err
	}
	fmt.Println(snapshot)
	return nil
}

// runSessionRestore validates the given snapshot against the configured model
// and installs it as the session cache for subsequent commands.
func runSessionRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Session.SnapshotFile == "" {
		return fmt.Errorf("session.snapshot_file is not configured, nowhere to install the snapshot")
	}

	s, err := buildScraper(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.RestoreSession(args[0]); err != nil {
		return fmt.Errorf("snapshot rejected: %w", err)
	}

	if err := os.WriteFile(cfg.Session.SnapshotFile, []byte(args[0]), 0o600); err != nil {
		return fmt.Errorf("cannot write session snapshot: %w", err)
	}
	slog.Info("session snapshot installed", "path", cfg.Session.SnapshotFile)
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("gatescrape version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("Checking configuration: %s\n\n", configFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed:\n   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	redacted := cfg.Redact()
	fmt.Println("Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  Model:         %s\n", redacted.Router.Model)
	fmt.Printf("  Host:          %s\n", redacted.Router.Host)
	fmt.Printf("  Username:      %s\n", redacted.Router.Username)
	fmt.Printf("  Password:      %s\n", redacted.Router.Password)
	fmt.Printf("  Timeout:       %d seconds\n", redacted.Transport.TimeoutSeconds)
	fmt.Printf("  Rate limit:    %v req/s\n", redacted.Transport.RateLimit)
	if redacted.Transport.WebDriverURL != "" {
		fmt.Printf("  WebDriver:     %s\n", redacted.Transport.WebDriverURL)
	}
	if redacted.Session.SnapshotFile != "" {
		fmt.Printf("  Snapshot file: %s\n", redacted.Session.SnapshotFile)
	}
	fmt.Printf("  Log level:     %s\n", redacted.Log.Level)
	fmt.Printf("  Log format:    %s\n", redacted.Log.Format)

	return nil
}
