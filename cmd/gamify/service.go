package main

import (
	"github.com/spf13/cobra"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/cache"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/config"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/engine"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/output"
)

// scope is what every query command needs besides its own flags
type scope struct {
	organization string
	project      string
	token        string
}

func resolveScope() scope {
	org := orgFlag
	if org == "" {
		org = cfg.Organization
	}

	token, source := config.ResolveToken(tokenFlag, cfg, config.NewKeyringManager(logger))
	logger.WithField("source", source).Debug("resolved access token")

	return scope{organization: org, project: projectFlag, token: token}
}

func newService() (*engine.Service, error) {
	client := devops.New(cfg.Upstream,
		devops.WithMetrics(metrics),
		devops.WithLogger(logger),
	)
	memory := cache.NewMemory(cfg.Cache.Capacity, cfg.Cache.CleanupInterval)
	loader := cache.NewLoader(memory, metrics, logger)
	return engine.New(client, loader, cfg, logger, engine.WithMetrics(metrics))
}

func render(cmd *cobra.Command, result any) error {
	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(result, cmd.OutOrStdout())
}

// optionalInt returns nil unless the flag was set on the command line
func optionalInt(cmd *cobra.Command, name string, value int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func exitCode(err error) int {
	switch {
	case errors.IsValidation(err):
		return 2
	case errors.IsAuthorization(err):
		return 3
	default:
		return 1
	}
}
