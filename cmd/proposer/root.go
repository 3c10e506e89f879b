package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/proposer/internal/api"
	"github.com/jackzampolin/proposer/internal/config"
	"github.com/jackzampolin/proposer/internal/home"
	"github.com/jackzampolin/proposer/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "proposer",
	Short: "Merge uploaded documents into proposal sections with LLM analysis",
	Long: `Proposer analyzes an uploaded document against the existing sections of a
proposal. It splits the document into candidate sections, matches them to
existing sections and merges the content, and suggests where anything left
over could go.

The pipeline includes:
  - Chunking and LLM section identification with a fallback model
  - Exact, substring and semantic matching
  - Content merging that never loses existing text
  - Placement suggestions for unmatched content`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.proposer/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "proposer home directory (default: ~/.proposer)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	// Set output format and load .env files before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		api.SetOutputFormat(outputFormat)
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		return config.LoadDotEnv(h.EnvPath(), ".env")
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the text logger used by every command.
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// loadConfig resolves the home directory and loads config from --config,
// the working directory or the home directory.
func loadConfig() (*home.Dir, *config.Manager, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	cm, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, err
	}
	return h, cm, nil
}
