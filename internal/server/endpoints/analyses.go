package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/proposer/internal/analysis"
	"github.com/jackzampolin/proposer/internal/api"
	"github.com/jackzampolin/proposer/internal/jobs"
	"github.com/jackzampolin/proposer/internal/svcctx"
)

// JobTypeAnalyze is the run type of document analyses.
const JobTypeAnalyze = "analyze"

// ListAnalysesResponse contains a list of runs.
type ListAnalysesResponse struct {
	Runs  []*jobs.Record `json:"runs"`
	Total int            `json:"total"`
}

// StartAnalysisEndpoint handles POST /api/analyses.
type StartAnalysisEndpoint struct{}

func (e *StartAnalysisEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/analyses", e.handler
}

func (e *StartAnalysisEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start an asynchronous analysis
//	@Description	Queue an analysis run and return its record. Poll GET /api/analyses/{id} for progress and result.
//	@Tags			analyses
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AnalyzeRequest	true	"Document and existing sections"
//	@Success		202		{object}	jobs.Record
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/analyses [post]
func (e *StartAnalysisEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.ToAnalysisRequest(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "run manager not initialized")
		return
	}
	analyzer, ok := analyzerFrom(w, r)
	if !ok {
		return
	}

	metadata := map[string]any{
		"type":           string(req.DocumentType),
		"sections":       len(req.ExistingSections),
		"content_length": len(req.Content),
	}
	rec, err := jm.Submit(JobTypeAnalyze, metadata, func(ctx context.Context, onProgress func(analysis.ProgressEvent)) (*analysis.Result, error) {
		req.OnProgress = onProgress
		return analyzer.AnalyzeDocument(ctx, req)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (e *StartAnalysisEndpoint) Command(getServerURL func() string) *cobra.Command {
	var sectionsFile, docType string
	var wait bool
	cmd := &cobra.Command{
		Use:   "start <file>",
		Short: "Start an asynchronous analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := ReadDocument(args[0], docType)
			if err != nil {
				return err
			}
			if body.Sections, err = LoadSections(sectionsFile); err != nil {
				return err
			}

			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var rec jobs.Record
			if err := client.Post(ctx, "/api/analyses", body, &rec); err != nil {
				return err
			}
			if !wait {
				return api.Output(rec)
			}

			final, err := waitForRun(ctx, client, rec.ID)
			if errors.Is(err, context.Canceled) {
				// Ctrl+C while waiting cancels the run too.
				cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = client.Delete(cancelCtx, "/api/analyses/"+rec.ID, nil)
				return err
			}
			if err != nil {
				return err
			}
			return api.Output(final)
		},
	}
	cmd.Flags().StringVarP(&sectionsFile, "sections", "s", "", "YAML or JSON file with existing sections")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type: markdown, pdf or html (default: from file name)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the run to finish, printing progress to stderr")
	return cmd
}

// waitForRun polls a run until it finishes, printing progress changes to stderr.
func waitForRun(ctx context.Context, client *api.Client, id string) (*jobs.Record, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last analysis.ProgressEvent
	for {
		var rec jobs.Record
		if err := client.Get(ctx, "/api/analyses/"+id, &rec); err != nil {
			return nil, err
		}
		if p := rec.Progress; p != nil && *p != last {
			fmt.Fprintf(os.Stderr, "[%s] %d/%d %s\n", p.Stage, p.Current, p.Total, p.Message)
			last = *p
		}
		if rec.Status.Terminal() {
			return &rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ListAnalysesEndpoint handles GET /api/analyses.
type ListAnalysesEndpoint struct{}

func (e *ListAnalysesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/analyses", e.handler
}

func (e *ListAnalysesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List analysis runs
//	@Description	List runs newest first
//	@Tags			analyses
//	@Produce		json
//	@Param			status	query		string	false	"Filter by status (queued, running, completed, failed, cancelled)"
//	@Param			limit	query		int		false	"Max results (default 100)"
//	@Success		200		{object}	ListAnalysesResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/analyses [get]
func (e *ListAnalysesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "run manager not initialized")
		return
	}

	q := r.URL.Query()
	filter := jobs.ListFilter{Status: jobs.Status(q.Get("status"))}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q must be a positive integer", v))
			return
		}
		filter.Limit = limit
	}

	runs := jm.List(filter)
	writeJSON(w, http.StatusOK, ListAnalysesResponse{Runs: runs, Total: len(runs)})
}

func (e *ListAnalysesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysis runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if status != "" {
				params.Set("status", status)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/analyses"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			client := api.NewClient(getServerURL())
			var resp ListAnalysesResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	return cmd
}

// GetAnalysisEndpoint handles GET /api/analyses/{id}.
type GetAnalysisEndpoint struct{}

func (e *GetAnalysisEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/analyses/{id}", e.handler
}

func (e *GetAnalysisEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get an analysis run
//	@Description	Status, latest progress event and, once completed, the result
//	@Tags			analyses
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	jobs.Record
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/analyses/{id} [get]
func (e *GetAnalysisEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "run manager not initialized")
		return
	}

	rec, err := jm.Get(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *GetAnalysisEndpoint) Command(getServerURL func() string) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get an analysis run by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if wait {
				rec, err := waitForRun(cmd.Context(), client, args[0])
				if err != nil {
					return err
				}
				return api.Output(rec)
			}
			var rec jobs.Record
			if err := client.Get(cmd.Context(), "/api/analyses/"+args[0], &rec); err != nil {
				return err
			}
			return api.Output(rec)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the run to finish")
	return cmd
}

// CancelAnalysisEndpoint handles DELETE /api/analyses/{id}.
type CancelAnalysisEndpoint struct{}

func (e *CancelAnalysisEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/analyses/{id}", e.handler
}

func (e *CancelAnalysisEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel an analysis run
//	@Description	Cancel a queued or running run. Cancelling a finished run has no effect.
//	@Tags			analyses
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	jobs.Record
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/analyses/{id} [delete]
func (e *CancelAnalysisEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "run manager not initialized")
		return
	}

	id := r.PathValue("id")
	if err := jm.Cancel(id); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Wait briefly so the response reports the final status.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	rec, err := jm.Wait(ctx, id)
	if err != nil {
		rec, err = jm.Get(id)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *CancelAnalysisEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an analysis run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var rec jobs.Record
			if err := client.Delete(cmd.Context(), "/api/analyses/"+args[0], &rec); err != nil {
				return err
			}
			return api.Output(rec)
		},
	}
}
