package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:        "teectl",
	Short:      "Paired SGX/SEV execution with attestation accumulation",
	SuggestFor: []string{"teectl"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config")

	rootCmd.AddCommand(
		serveCmd,
		backendCmd,
		simulateCmd,
		healthCmd,
		attestCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "teectl failed %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(*cobra.Command, []string) error {
		fmt.Printf("teectl %s\n", Version)
		return nil
	},
}

// newLogger builds the process logger. level falls back to info.
func newLogger(name, level string) (logging.Logger, error) {
	lvl := logging.Info
	if level != "" {
		parsed, err := logging.ToLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}
	logFactory := logging.NewFactory(logging.Config{
		DisplayLevel: lvl,
		LogLevel:     lvl,
	})
	log, err := logFactory.Make(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
