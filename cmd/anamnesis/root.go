package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/anamnesis/internal/config"
	"github.com/aretw0/anamnesis/internal/logging"
)

var (
	v      = config.New()
	cfg    *config.Config
	logger = logging.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "anamnesis",
	Short: "Anamnesis is a guided symptom and history questionnaire",
	Long: `Anamnesis walks a user through a fixed questionnaire about their symptoms,
asks a language model for a narrative at two checkpoints and keeps a record
of every completed session.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./anamnesis.yaml if present)")
	flags.StringSlice("env-file", nil, "Dotenv files to load before reading the environment (default .env)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text, json, pretty")
	flags.String("provider", "", "LLM provider: openai, anthropic, gemini, eino, fake")

	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("llm.provider", flags.Lookup("provider"))
}

// setup loads .env, the config file and the environment, then builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

	file, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(v, file)
	if err != nil {
		return err
	}
	cfg = loaded

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err = logging.NewWithFormat(os.Stderr, level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
