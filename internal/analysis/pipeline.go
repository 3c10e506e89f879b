package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/prompts/identify"
	"github.com/jackzampolin/proposer/internal/prompts/match"
	"github.com/jackzampolin/proposer/internal/prompts/mergecontent"
	"github.com/jackzampolin/proposer/internal/prompts/unmatched"
)

// DefaultCallTimeout bounds a single model call.
const DefaultCallTimeout = 30 * time.Second

// TextExtractor turns uploaded content into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, content string) (string, error)
}

// passthrough returns content unchanged.
type passthrough struct{}

func (passthrough) Extract(_ context.Context, content string) (string, error) {
	return content, nil
}

// Config configures an Analyzer.
type Config struct {
	// Completer is required.
	Completer Completer

	// Prompts resolves stage prompts. Nil uses the embedded defaults.
	Prompts *prompts.Resolver

	// Extractor converts "pdf" documents to text. Nil passes content through.
	Extractor TextExtractor

	// DefaultModel is used for every call; empty uses the client default.
	// FallbackModel is used for the identification retry; empty means DefaultModel.
	DefaultModel  string
	FallbackModel string

	MaxChunkSize    int           // default: 4000
	MatchBatchSize  int           // default: 3
	IdentifyWorkers int           // default: 1
	CallTimeout     time.Duration // default: 30s

	// MergeThreshold and SemanticMinConfidence are confidences in (0,1].
	// Zero or negative values select the defaults, 0.7 and 0.5.
	MergeThreshold        float64
	SemanticMinConfidence float64

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Prompts == nil {
		c.Prompts = prompts.NewResolver(c.Logger)
		RegisterPrompts(c.Prompts)
	}
	if c.Extractor == nil {
		c.Extractor = passthrough{}
	}
	if c.FallbackModel == "" {
		c.FallbackModel = c.DefaultModel
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.MatchBatchSize <= 0 {
		c.MatchBatchSize = DefaultMatchBatchSize
	}
	if c.IdentifyWorkers <= 0 {
		c.IdentifyWorkers = 1
	}
	if c.MergeThreshold <= 0 {
		c.MergeThreshold = DefaultMergeThreshold
	}
	if c.SemanticMinConfidence <= 0 {
		c.SemanticMinConfidence = DefaultSemanticMinConfidence
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RegisterPrompts registers every analysis stage prompt with r.
func RegisterPrompts(r *prompts.Resolver) {
	identify.RegisterPrompts(r)
	match.RegisterPrompts(r)
	mergecontent.RegisterPrompts(r)
	unmatched.RegisterPrompts(r)
}

// Analyzer runs the document analysis pipeline. It is safe for concurrent
// use; each AnalyzeDocument call is an independent run.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger

	identifier *Identifier
	matcher    *Matcher
	merger     *ContentMerger
	unmatched  *UnmatchedAnalyzer
}

// New creates an Analyzer. The completer is shared by every stage.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Completer == nil {
		return nil, errors.New("analysis: completer is required")
	}
	cfg.applyDefaults()

	return &Analyzer{
		cfg:    cfg,
		logger: cfg.Logger,
		identifier: &Identifier{
			completer:     cfg.Completer,
			prompts:       cfg.Prompts,
			model:         cfg.DefaultModel,
			fallbackModel: cfg.FallbackModel,
			timeout:       cfg.CallTimeout,
			logger:        cfg.Logger,
		},
		matcher: &Matcher{
			completer:     cfg.Completer,
			prompts:       cfg.Prompts,
			model:         cfg.DefaultModel,
			minConfidence: cfg.SemanticMinConfidence,
			batchSize:     cfg.MatchBatchSize,
			timeout:       cfg.CallTimeout,
			logger:        cfg.Logger,
		},
		merger: &ContentMerger{
			completer: cfg.Completer,
			prompts:   cfg.Prompts,
			model:     cfg.DefaultModel,
			timeout:   cfg.CallTimeout,
			policy:    bluemonday.UGCPolicy(),
			logger:    cfg.Logger,
		},
		unmatched: &UnmatchedAnalyzer{
			completer: cfg.Completer,
			prompts:   cfg.Prompts,
			model:     cfg.DefaultModel,
			timeout:   cfg.CallTimeout,
			logger:    cfg.Logger,
		},
	}, nil
}

// Identifier returns the analyzer's section identifier.
func (a *Analyzer) Identifier() *Identifier { return a.identifier }

// Matcher returns the analyzer's section matcher.
func (a *Analyzer) Matcher() *Matcher { return a.matcher }

// ContentMerger returns the analyzer's content merger.
func (a *Analyzer) ContentMerger() *ContentMerger { return a.merger }

// UnmatchedAnalyzer returns the analyzer's unmatched content analyzer.
func (a *Analyzer) UnmatchedAnalyzer() *UnmatchedAnalyzer { return a.unmatched }

// Request is the input of one analysis run.
type Request struct {
	Content          string            `json:"content"`
	ExistingSections []ExistingSection `json:"sections"`
	DocumentType     DocumentType      `json:"type"`

	// OnProgress, if set, receives progress events. Calls are serialized.
	OnProgress func(ProgressEvent) `json:"-"`
}

// AnalyzeDocument runs the pipeline: chunk, identify, merge candidates,
// match, merge content, analyze unmatched.
//
// Failures of single model calls degrade that unit of work only. The run
// fails with ErrFatal on configuration errors and with ErrCancelled when ctx
// is cancelled; no partial result is returned in either case.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	progress := &progressReporter{fn: req.OnProgress}
	logger := a.logger.With("run_id", RunIDFromContext(ctx))

	// Chunking
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	progress.emit(StageChunking, 0, 1, "Splitting document into chunks")
	content := req.Content
	if req.DocumentType == DocumentPDF {
		text, err := a.cfg.Extractor.Extract(ctx, content)
		if err != nil {
			if stop := stopErr(ctx, err); stop != nil {
				return nil, stop
			}
			return nil, fmt.Errorf("extract document text: %w", err)
		}
		content = text
	}
	chunks := SplitChunks(content, a.cfg.MaxChunkSize)
	progress.emit(StageChunking, 1, 1, fmt.Sprintf("Split document into %d chunks", len(chunks)))

	// Identifying
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	candidates, err := a.identifyAll(ctx, chunks, progress)
	if err != nil {
		return nil, err
	}

	// Merging
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	progress.emit(StageMerging, 0, len(candidates), fmt.Sprintf("Merging %d identified sections", len(candidates)))
	merged := MergeCandidates(candidates)
	progress.emit(StageMerging, len(candidates), len(candidates), fmt.Sprintf("Merged into %d sections", len(merged)))

	// Matching
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	progress.emit(StageMatching, 0, len(merged), "Matching sections")
	matches, err := a.matcher.MatchAll(ctx, merged, req.ExistingSections, func(done, total int) {
		progress.emit(StageMatching, done, total, fmt.Sprintf("Matched %d of %d sections", done, total))
	})
	if err != nil {
		return nil, err
	}

	sections, leftovers, err := a.applyMatches(ctx, merged, matches, req.ExistingSections)
	if err != nil {
		return nil, err
	}

	// Analyzing
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	progress.emit(StageAnalyzing, 0, 1, fmt.Sprintf("Analyzing %d unmatched sections", len(leftovers)))
	unmatchedEntries, err := a.unmatched.AnalyzeUnmatched(ctx, leftovers, req.ExistingSections)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	final := progress.emit(StageAnalyzing, 1, 1, "Analysis complete")

	if sections == nil {
		sections = []AnalyzedSection{}
	}
	if unmatchedEntries == nil {
		unmatchedEntries = []UnmatchedEntry{}
	}

	logger.Info("document analyzed",
		"chunks", len(chunks),
		"candidates", len(merged),
		"matched_sections", len(sections),
		"unmatched", len(unmatchedEntries),
		"duration", time.Since(start))

	return &Result{
		Sections:  sections,
		Unmatched: unmatchedEntries,
		Progress:  final,
	}, nil
}

// identifyAll runs the identifier over chunks with at most IdentifyWorkers
// calls in flight and returns the candidates in chunk order.
func (a *Analyzer) identifyAll(ctx context.Context, chunks []string, progress *progressReporter) ([]CandidateSection, error) {
	total := len(chunks)
	progress.emit(StageProcessing, 0, total, fmt.Sprintf("Processing %d chunks", total))

	results := make([][]CandidateSection, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.IdentifyWorkers)
	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sections, err := a.identifier.Identify(gctx, chunk, i+1, total)
			if err != nil {
				return err
			}
			results[i] = sections
			n := int(done.Add(1))
			progress.emit(StageProcessing, n, total, fmt.Sprintf("Processed chunk %d of %d", n, total))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	var candidates []CandidateSection
	for _, sections := range results {
		candidates = append(candidates, sections...)
	}
	return candidates, nil
}

// applyMatches merges candidate content into every section matched at or
// above the merge threshold. Several candidates matching one section merge
// into it one after another in candidate order; the section is reported once
// with its best confidence and that candidate as source. Candidates without
// a qualifying match are returned as leftovers.
func (a *Analyzer) applyMatches(ctx context.Context, candidates []CandidateSection, matches [][]SectionMatch, existing []ExistingSection) ([]AnalyzedSection, []CandidateSection, error) {
	byID := make(map[string]ExistingSection, len(existing))
	for _, s := range existing {
		byID[s.ID] = s
	}

	var (
		sections  []AnalyzedSection
		slot      = make(map[string]int)
		leftovers []CandidateSection
	)
	for i, candidate := range candidates {
		applied := false
		for _, m := range matches[i] {
			if m.Confidence < a.cfg.MergeThreshold {
				continue
			}
			section, ok := byID[m.SectionID]
			if !ok {
				continue
			}
			applied = true

			idx, seen := slot[m.SectionID]
			if !seen {
				mergeType := MergePartial
				if section.Content.IsEmpty() {
					mergeType = MergeDirect
				}
				idx = len(sections)
				slot[m.SectionID] = idx
				sections = append(sections, AnalyzedSection{
					ID:        section.ID,
					Title:     section.Title,
					Content:   section.Content.String(),
					MergeType: mergeType,
				})
			}

			out := &sections[idx]
			content, err := a.merger.MergeContent(ctx, section.Title, candidate.Content, out.Content)
			if err != nil {
				return nil, nil, err
			}
			out.Content = content
			if out.SourceSection == nil || m.Confidence > out.Confidence {
				src := candidate
				out.SourceSection = &src
				out.Confidence = m.Confidence
			}
		}
		if !applied {
			leftovers = append(leftovers, candidate)
		}
	}
	return sections, leftovers, nil
}

// progressReporter serializes progress callbacks and keeps Current from
// moving backwards within a stage.
type progressReporter struct {
	mu   sync.Mutex
	fn   func(ProgressEvent)
	last ProgressEvent
}

func (p *progressReporter) emit(stage Stage, current, total int, message string) ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stage == p.last.Stage && current < p.last.Current {
		current = p.last.Current
	}
	ev := ProgressEvent{Stage: stage, Current: current, Total: total, Message: message}
	p.last = ev
	if p.fn != nil {
		p.fn(ev)
	}
	return ev
}
