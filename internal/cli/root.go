package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"arm-ai/internal/app"
	"arm-ai/internal/config"
	"arm-ai/internal/logging"
)

var (
	cfgFile    string
	logLevel   string
	appHandle  *app.App
	closeLogFn func() error
)

var rootCmd = &cobra.Command{
	Use:           "armai",
	Short:         "Record and inspect risk events for the ARM AI risk manager",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd.Name() == versionCmd.Name() {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger, closeLog, err := logging.Open(cfg.Logging)
		if err != nil {
			return err
		}
		closeLogFn = closeLog
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return shutdown()
	},
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if shutdownErr := shutdown(); err == nil {
		err = shutdownErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(logEventCmd)
	rootCmd.AddCommand(getEventCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(saveStateCmd)
	rootCmd.AddCommand(getStateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}

// shutdown closes the store connection and the log file exactly once.
func shutdown() error {
	var err error
	if appHandle != nil {
		err = appHandle.Close()
		appHandle = nil
	}
	if closeLogFn != nil {
		if closeErr := closeLogFn(); err == nil {
			err = closeErr
		}
		closeLogFn = nil
	}
	return err
}
