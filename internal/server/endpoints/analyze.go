package endpoints

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/proposer/internal/analysis"
	"github.com/jackzampolin/proposer/internal/api"
	"github.com/jackzampolin/proposer/internal/svcctx"
)

// AnalyzeResponse is the result of a synchronous analysis.
type AnalyzeResponse struct {
	Sections  []analysis.AnalyzedSection `json:"sections"`
	Unmatched []analysis.UnmatchedEntry  `json:"unmatched"`
}

// NewAnalyzeResponse converts a pipeline result, using empty lists for nil.
func NewAnalyzeResponse(res *analysis.Result) AnalyzeResponse {
	resp := AnalyzeResponse{
		Sections:  []analysis.AnalyzedSection{},
		Unmatched: []analysis.UnmatchedEntry{},
	}
	if res == nil {
		return resp
	}
	if res.Sections != nil {
		resp.Sections = res.Sections
	}
	if res.Unmatched != nil {
		resp.Unmatched = res.Unmatched
	}
	return resp
}

// AnalyzeEndpoint handles POST /api/analyze.
type AnalyzeEndpoint struct{}

func (e *AnalyzeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/analyze", e.handler
}

func (e *AnalyzeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Analyze a document
//	@Description	Identify sections in the document, merge them into the existing sections and suggest placements for the rest. Closing the connection cancels the run.
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AnalyzeRequest	true	"Document and existing sections"
//	@Success		200		{object}	AnalyzeResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		499		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/analyze [post]
func (e *AnalyzeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.ToAnalysisRequest(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	analyzer, ok := analyzerFrom(w, r)
	if !ok {
		return
	}

	logger := svcctx.LoggerFrom(r.Context())
	req.OnProgress = func(ev analysis.ProgressEvent) {
		logger.Debug("analysis progress", "stage", ev.Stage, "current", ev.Current, "total", ev.Total)
	}

	result, err := analyzer.AnalyzeDocument(r.Context(), req)
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewAnalyzeResponse(result))
}

func (e *AnalyzeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var sectionsFile, docType string
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a document on the server",
		Long: `Send a document and the existing sections to the server and wait for
the result. PDF files are uploaded as base64. Ctrl+C cancels the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := ReadDocument(args[0], docType)
			if err != nil {
				return err
			}
			if body.Sections, err = LoadSections(sectionsFile); err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			var resp AnalyzeResponse
			if err := client.Post(cmd.Context(), "/api/analyze", body, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&sectionsFile, "sections", "s", "", "YAML or JSON file with existing sections")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type: markdown, pdf or html (default: from file name)")
	return cmd
}

// EnhanceEndpoint handles POST /api/enhance.
type EnhanceEndpoint struct{}

func (e *EnhanceEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/enhance", e.handler
}

func (e *EnhanceEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Apply a placement suggestion
//	@Description	Merge unmatched content into the chosen existing section
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			request	body		analysis.EnhanceRequest	true	"Section and content to merge"
//	@Success		200		{object}	analysis.AnalyzedSection
//	@Failure		400		{object}	ErrorResponse
//	@Failure		499		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/enhance [post]
func (e *EnhanceEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req analysis.EnhanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Section.ID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "section.id and content are required")
		return
	}

	analyzer, ok := analyzerFrom(w, r)
	if !ok {
		return
	}

	section, err := analyzer.Enhance(r.Context(), req)
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func (e *EnhanceEndpoint) Command(getServerURL func() string) *cobra.Command {
	var sectionsFile, contentFile, title string
	var relevance float64
	cmd := &cobra.Command{
		Use:   "enhance <section-id>",
		Short: "Merge unmatched content into an existing section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sections, err := LoadSections(sectionsFile)
			if err != nil {
				return err
			}
			section, ok := findSection(sections, args[0])
			if !ok {
				return fmt.Errorf("section %q not found in %s", args[0], sectionsFile)
			}
			content, err := os.ReadFile(contentFile)
			if err != nil {
				return fmt.Errorf("read content: %w", err)
			}

			client := api.NewClient(getServerURL())
			var resp analysis.AnalyzedSection
			req := analysis.EnhanceRequest{
				Section:   section,
				Title:     title,
				Content:   string(content),
				Relevance: relevance,
			}
			if err := client.Post(cmd.Context(), "/api/enhance", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&sectionsFile, "sections", "s", "", "YAML or JSON file with existing sections")
	cmd.Flags().StringVarP(&contentFile, "content", "c", "", "File with the content to merge")
	cmd.Flags().StringVar(&title, "title", "", "Title of the unmatched content")
	cmd.Flags().Float64Var(&relevance, "relevance", 1, "Relevance reported for the suggestion")
	cmd.MarkFlagRequired("sections")
	cmd.MarkFlagRequired("content")
	return cmd
}

func findSection(sections []analysis.ExistingSection, id string) (analysis.ExistingSection, bool) {
	for _, s := range sections {
		if s.ID == id {
			return s, true
		}
	}
	return analysis.ExistingSection{}, false
}
