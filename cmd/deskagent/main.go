package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"deskagent/internal/agent"
	"deskagent/internal/config"
	"deskagent/internal/llm"
	"deskagent/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deskagent",
		Short: "AI coding agent for your project directory",
		Long: `Deskagent runs an AI coding agent against the current directory.
It streams model responses to the terminal and dispatches the model's
tool calls, asking for approval before anything destructive.`,
		RunE: runConsole,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/deskagent/config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deskagent version %s\n", version)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "tokens [prompt]",
		Short: "Estimate the token count for a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTokens,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadSettings() (*config.Settings, string, error) {
	path := cfgFile
	if path == "" {
		path = config.GetConfigPath()
	}
	settings, err := config.LoadFrom(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, "", err
	}
	return settings, path, nil
}

func configureLogging(settings *config.Settings) {
	level := logging.ParseLevel(settings.Logging.Level)
	if settings.Logging.File {
		if dir, err := config.GetConfigDir(); err == nil {
			if err := logging.EnableFileLogging(dir, level); err == nil {
				return
			}
		}
	}
	logging.Configure(level, os.Stderr)
}

func runTokens(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings()
	if err != nil {
		return err
	}
	configureLogging(settings)
	defer logging.Close()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	host := newConsole(workDir, settings)
	prompt := strings.Join(args, " ")

	// An exact provider-side count needs a reachable model; fall back
	// to the local heuristic without one.
	var model llm.Model
	if providerCfg, err := settings.ActiveProvider(); err == nil {
		if m, err := llm.NewModel(cmd.Context(), providerCfg, llm.Options{MaxTokens: int32(settings.Agent.MaxTokens)}); err == nil {
			model = m
			defer model.Close()
		}
	}

	registry := agent.BuildRegistry(host, nil, &settings.Agent)
	estimator := agent.NewTokenEstimator(host)
	count := estimator.Estimate(cmd.Context(), model, registry, &settings.Agent, prompt)

	fmt.Printf("Estimated tokens: %d\n", count)
	return nil
}
