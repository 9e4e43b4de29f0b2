// Package cmd provides the afdata command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"afdata/bootstrap"
	"afdata/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// defaultTimeout bounds the short commands; searches run until done or interrupted
const defaultTimeout = 5 * time.Minute

// options are the persistent flags
type options struct {
	configFile  string
	apiKey      string
	geoKey      string
	metricsAddr string
	debug       bool
	noColor     bool
	quiet       bool
	outputJSON  bool
}

// app carries what the persistent pre-run prepares for every subcommand
type app struct {
	opts options

	cfg     *config.Config
	logger  *zap.Logger
	sugar   *zap.SugaredLogger
	metrics *bootstrap.MetricsServer

	in  io.Reader
	out io.Writer
	now func() time.Time

	// baseURL points the AutoFocus client somewhere other than api.hostname
	baseURL string
}

func newApp(in io.Reader, out io.Writer) *app {
	return &app{
		in:    in,
		out:   out,
		now:   time.Now,
		sugar: zap.NewNop().Sugar(),
	}
}

// NewRootCmd creates the afdata command with all subcommands
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp(os.Stdin, os.Stdout))
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "afdata",
		Short: "Export AutoFocus threat intelligence for Elasticsearch",
		Long: `Query AutoFocus for samples and sessions, enrich every hit with tag, exploit,
signature coverage and location data, and write Elasticsearch bulk-load files
alongside pretty JSON snapshots.

Statistics subcommands count malware by month, upload source and tag group.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.opts.configFile, "config", "", "Config file path (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&a.opts.apiKey, "api-key", "", "AutoFocus API key (overrides the secret provider)")
	root.PersistentFlags().StringVar(&a.opts.geoKey, "geo-key", "", "Geocoding API key (overrides the secret provider)")
	root.PersistentFlags().StringVar(&a.opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	root.PersistentFlags().BoolVar(&a.opts.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&a.opts.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVar(&a.opts.quiet, "quiet", false, "Suppress non-essential output")
	root.PersistentFlags().BoolVar(&a.opts.outputJSON, "json", false, "Output in JSON format")

	root.AddCommand(newSamplesCmd(a))
	root.AddCommand(newSessionsCmd(a))
	root.AddCommand(newSigsCmd(a))
	root.AddCommand(newTagsCmd(a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newRunsCmd(a))

	return root
}

// Execute runs the command line until completion or interrupt
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdin, os.Stdout)
	defer a.teardown()

	err := newRootCmd(a).ExecuteContext(ctx)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func (a *app) setup() error {
	if a.opts.noColor {
		color.NoColor = true
	}
	a.logger, a.sugar = bootstrap.InitLogger(bootstrap.LoggerOptions{
		Debug:   a.opts.debug,
		NoColor: color.NoColor,
	})

	cfg, err := config.LoadConfig(a.opts.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	addr := a.opts.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		m, err := bootstrap.StartMetricsServer(addr, a.sugar)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		a.metrics = m
	}
	return nil
}

func (a *app) teardown() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.sugar.Debugw("Metrics server shutdown", "error", err)
		}
		a.metrics = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// printf writes operator output unless --quiet or --json is set
func (a *app) printf(c *color.Color, format string, args ...any) {
	if a.opts.quiet || a.opts.outputJSON {
		return
	}
	c.Fprintf(a.out, format, args...)
}

func (a *app) outputAsJSON(data any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
