// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     cmd
// Description: Command line interface
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msto63/wiener/pkg/core/config"
	"github.com/msto63/wiener/pkg/core/logging"
)

var (
	cfgFile string
	apiAddr string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "wiener",
	Short: "Wiener - robot agent control middleware",
	Long: `Wiener runs agent scripts against pluggable providers.

The serve command starts the orchestrator and its control API. The goal,
monitor and provider commands talk to a running orchestrator.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $WIENER_CONFIG or ./configs/wiener.toml)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "localhost:8600", "control API address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadFromEnv()
}

func setupLogging(cfg *config.Config) error {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.Configure(logging.Config{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
		Caller: cfg.Logging.Caller,
	})
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
