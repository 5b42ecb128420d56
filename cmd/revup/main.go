package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Devdesai111/RevUp-sub000/internal/banner"
	"github.com/Devdesai111/RevUp-sub000/internal/config"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "revup",
		Short: "Daily alignment scoring for RevUp",
		Long: `revup recomputes each user's daily alignment metric from their execution
evidence and reflections, tracks streaks and drift, and flags behavioural
patterns. Run 'revup serve' for the API and workers, or use the one-shot
commands to recompute, sweep and inspect from the shell.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.revup/config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newRecalcCmd(),
		newSweepCmd(),
		newLogCmd(),
		newHistoryCmd(),
		newTokenCmd(),
		newDoctorCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads, validates and applies the logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to init logging: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show revup version",
		Run: func(cmd *cobra.Command, args []string) {
			banner.PrintWithVersion(os.Stdout, version)
		},
	}
}
