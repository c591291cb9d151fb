package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/livecaption/cmd/config"
	"github.com/tphakala/livecaption/cmd/devices"
	"github.com/tphakala/livecaption/cmd/inspect"
	"github.com/tphakala/livecaption/cmd/stream"
	"github.com/tphakala/livecaption/internal/buildinfo"
	"github.com/tphakala/livecaption/internal/conf"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "livecaption",
		Short:        "Live speech captioning and translation",
		Version:      build.String(),
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		logger.Global().Module("main").Error("failed to bind flags", logger.Error(err))
	}

	rootCmd.AddCommand(
		stream.Command(settings),
		devices.Command(),
		inspect.Command(),
		config.Command(settings),
	)

	var central *logger.CentralLogger

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// flags are parsed by now; let them take precedence over file and env
		if err := conf.SyncViper(settings); err != nil {
			return err
		}

		var err error
		central, err = initialize(settings, build)
		return err
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		errors.FlushSentry(sentryFlushTimeout)
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// initialize installs the global logger and optional Sentry reporting
func initialize(settings *conf.Settings, build *buildinfo.Context) (*logger.CentralLogger, error) {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, errors.New(err).
			Component("main").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_logger").
			Build()
	}
	logger.SetGlobal(central)

	log := central.Module("main")
	log.Debug("starting livecaption",
		logger.String("version", build.GetVersion()),
		logger.String("build_date", build.GetBuildDate()))

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, build.Release()); err != nil {
			log.Warn("sentry reporting disabled", logger.Error(err))
		} else {
			log.Info("sentry error reporting enabled")
		}
	}

	return central, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	return viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}
