package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/ethpandaops/statsexporter/internal/agent"
	"github.com/ethpandaops/statsexporter/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statsexporter",
		Short: "Periodic log exporter for aggregated metrics",
		Long: `statsexporter records synthetic latency measurements into a
distribution view and periodically logs a human-readable rendering of
every collected metric.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVar(
		&cfgFile, "config", "",
		"path to config file (defaults are used when omitted)",
	)
	cmd.Flags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := agent.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	a, err := agent.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	// Periodic readers report export failures through the global handler.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(a.HandleError))

	log.WithField("version", version.Full()).Info("Starting statsexporter")

	res, runErr := a.Run(ctx)

	if err := a.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")

		if runErr == nil {
			return fmt.Errorf("stopping agent: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	log.WithFields(logrus.Fields{
		"recorded":    res.Recorded,
		"interrupted": res.Interrupted,
	}).Info("Shutdown complete")

	return nil
}
