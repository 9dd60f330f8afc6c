// satmond is the satellite telemetry monitoring daemon.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/loader"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/server"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	listen     string
	dataDir    string
	logLevel   string
	logJSON    bool
	backfill   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "satmond",
		Short:         "Satellite telemetry monitoring daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "config file path")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and ingest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	for _, c := range []*cobra.Command{root, serve} {
		f := c.Flags()
		f.StringVar(&opts.listen, "listen", "", "listen address (overrides config)")
		f.StringVar(&opts.dataDir, "data-dir", "", "data directory (overrides config)")
		f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
		f.BoolVar(&opts.logJSON, "log-json", false, "log as JSON")
		f.BoolVar(&opts.backfill, "backfill", false, "backfill the default window on start")
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d satellites in catalog)\n", opts.configPath, len(cfg.Catalog))
			return nil
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "satmond %s\n", Version)
		},
	}

	root.AddCommand(serve, validate, version)
	return root
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist, then applies flag overrides and validates.
func loadConfig(cmd *cobra.Command, opts *options) (*loader.Config, error) {
	cfg, err := loader.Load(opts.configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loader.DefaultConfig()
	}

	flags := cmd.Flags()
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.dataDir != "" {
		cfg.Storage.DataDir = opts.dataDir
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = opts.logJSON
	}
	if flags.Changed("backfill") {
		cfg.Generator.BackfillOnStart = opts.backfill
	}

	if err := loader.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	logging.Info("satmond starting", "version", Version, "config", opts.configPath)

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
