package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/logging"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/telemetry"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile     string
	verbose     bool
	orgFlag     string
	projectFlag string
	tokenFlag   string
	outputFlag  string
	metricsFile string

	logger    *logrus.Logger
	logCloser io.Closer
	cfg       *config.Config
	metrics   *telemetry.Metrics
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprint(os.Stderr, errorMessage(err, verbose))
		os.Exit(exitCode(err))
	}
}

// errorMessage adds type, status, cause and context of a classified error in verbose mode
func errorMessage(err error, verbose bool) string {
	msg := fmt.Sprintf("Error: %v\n", err)
	if e, ok := errors.As(err); ok && verbose {
		msg += e.DetailedString()
	}
	return msg
}

var rootCmd = &cobra.Command{
	Use:   "gamify",
	Short: "Gamification metrics for Azure DevOps organizations",
	Long: `gamify crawls commits, builds, pull requests and work items of an
Azure DevOps organization and turns them into commit breakdowns, a developer
ranking, an author/file collaboration graph and delivery statistics.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		result := cfg.Validate()
		if err := result.AsError(); err != nil {
			return err
		}

		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, logCloser, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		for _, w := range result.Warnings {
			logger.Warn(w)
		}

		metrics = telemetry.New()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		defer logCloser.Close()

		if metricsFile == "" {
			return nil
		}
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			return err
		}
		logger.WithField("path", metricsFile).Debug("metrics written")
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: .gamify/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&orgFlag, "org", "", "organization (default: from config or AZURE_DEVOPS_ORG)")
	flags.StringVar(&projectFlag, "project", "", "project to query (default: whole organization)")
	flags.StringVar(&tokenFlag, "token", "", "personal access token (default: AZURE_DEVOPS_PAT, keychain, config)")
	flags.StringVarP(&outputFlag, "output", "o", "", "output format: table, json or yaml")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	rootCmd.SetVersionTemplate(`gamify {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(commitsCmd)
	rootCmd.AddCommand(rankingCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
}
