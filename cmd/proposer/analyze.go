package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/proposer/internal/analysis"
	"github.com/jackzampolin/proposer/internal/api"
	"github.com/jackzampolin/proposer/internal/llmcall"
	"github.com/jackzampolin/proposer/internal/providers"
	"github.com/jackzampolin/proposer/internal/server/endpoints"
	"github.com/jackzampolin/proposer/internal/svcctx"
)

var (
	analyzeSections string
	analyzeType     string
	analyzeQuiet    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a document locally",
	Long: `Run the analysis pipeline in this process, without a server.

The document may be markdown, HTML or PDF. Existing sections are read from a
YAML or JSON file holding a list of {id, title, content} entries, or an
object with a "sections" list. Progress goes to stderr, the result to stdout.
Ctrl+C cancels the run.

Examples:
  proposer analyze notes.md -s sections.yaml
  proposer analyze brochure.pdf -s sections.json -o json
  proposer analyze page.html --quiet`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger(os.Stderr)
		if err != nil {
			return err
		}
		h, cm, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := cm.Get()

		body, err := endpoints.ReadDocument(args[0], analyzeType)
		if err != nil {
			return err
		}
		if body.Sections, err = endpoints.LoadSections(analyzeSections); err != nil {
			return err
		}
		req, err := body.ToAnalysisRequest(ctx)
		if err != nil {
			return err
		}

		registry := providers.NewRegistry()
		registry.SetLogger(logger)
		registry.Reload(cfg.ToProviderRegistryConfig())

		var recorder *llmcall.Recorder
		if cfg.LLMCalls.Enabled {
			path := cfg.LLMCalls.DBPath
			if path == "" {
				path = h.LLMCallsDBPath()
			}
			store, err := llmcall.OpenStore(path)
			if err != nil {
				return err
			}
			defer store.Close()
			recorder = llmcall.NewRecorder(llmcall.RecorderConfig{
				Store:         store,
				BatchSize:     cfg.LLMCalls.BatchSize,
				FlushInterval: cfg.LLMCalls.FlushIntervalDuration(),
				Logger:        logger,
			})
			recorder.Start(context.WithoutCancel(ctx))
			defer recorder.Stop()
		}

		factory := &svcctx.AnalyzerFactory{
			Config:   cm,
			Registry: registry,
			Prompts:  svcctx.NewPromptResolver(cfg, logger),
			Recorder: recorder,
			Logger:   logger,
		}
		analyzer, err := factory.Analyzer()
		if err != nil {
			return err
		}

		if !analyzeQuiet {
			req.OnProgress = func(ev analysis.ProgressEvent) {
				fmt.Fprintf(os.Stderr, "[%s] %d/%d %s\n", ev.Stage, ev.Current, ev.Total, ev.Message)
			}
		}

		result, err := analyzer.AnalyzeDocument(ctx, req)
		if err != nil {
			if analysis.IsCancelled(err) || errors.Is(err, context.Canceled) {
				fmt.Fprintln(os.Stderr, "analysis cancelled")
			}
			return err
		}
		return api.Output(endpoints.NewAnalyzeResponse(result))
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeSections, "sections", "s", "", "YAML or JSON file with existing sections")
	analyzeCmd.Flags().StringVarP(&analyzeType, "type", "t", "", "Document type: markdown, pdf or html (default: from file name)")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "Do not print progress")

	rootCmd.AddCommand(analyzeCmd)
}
