package mcp

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/seqbench/lab-intake/internal/config"
	"github.com/seqbench/lab-intake/internal/domain"
	"github.com/seqbench/lab-intake/internal/intake"
	"github.com/seqbench/lab-intake/internal/store"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *intake.Service
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *intake.Service) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	ingestTool := mcp.NewTool(
		"lab_ingest_pdf",
		mcp.WithDescription("Ingest a laboratory submission PDF: extract metadata and samples, then persist them"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the submission PDF"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Store the document as a new submission even if an identical one exists"),
		),
	)
	s.mcpServer.AddTool(ingestTool, s.handleIngestPDF)

	runQCTool := mcp.NewTool(
		"lab_run_qc",
		mcp.WithDescription("Run quality control over all unevaluated samples of a submission"),
		mcp.WithString("submission_id",
			mcp.Required(),
			mcp.Description("Submission to evaluate"),
		),
		mcp.WithString("evaluator",
			mcp.Description("Name recorded on each QC result"),
		),
		mcp.WithNumber("min_concentration",
			mcp.Description("Minimum concentration in ng/uL (server default when omitted)"),
		),
		mcp.WithNumber("min_volume",
			mcp.Description("Minimum volume in uL (server default when omitted)"),
		),
		mcp.WithNumber("min_ratio",
			mcp.Description("Minimum A260/A280 ratio (server default when omitted)"),
		),
	)
	s.mcpServer.AddTool(runQCTool, s.handleRunQC)

	transitionTool := mcp.NewTool(
		"lab_transition_samples",
		mcp.WithDescription("Move samples of a submission to a new workflow status"),
		mcp.WithString("submission_id",
			mcp.Required(),
			mcp.Description("Submission owning the samples"),
		),
		mcp.WithString("sample_ids",
			mcp.Required(),
			mcp.Description("Comma-separated sample ids"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("Target status: received, processing, sequenced, completed, failed, on_hold"),
		),
		mcp.WithString("actor",
			mcp.Description("Name recorded in the audit notes"),
		),
	)
	s.mcpServer.AddTool(transitionTool, s.handleTransitionSamples)

	statisticsTool := mcp.NewTool(
		"lab_statistics",
		mcp.WithDescription("Summarize workflow, QC and measurement statistics"),
		mcp.WithString("submission_id",
			mcp.Description("Limit statistics to one submission (all submissions if empty)"),
		),
	)
	s.mcpServer.AddTool(statisticsTool, s.handleStatistics)

	getTool := mcp.NewTool(
		"lab_get_submission",
		mcp.WithDescription("Show one submission with its metadata and samples"),
		mcp.WithString("submission_id",
			mcp.Required(),
			mcp.Description("Submission to fetch"),
		),
	)
	s.mcpServer.AddTool(getTool, s.handleGetSubmission)

	listTool := mcp.NewTool(
		"lab_list_submissions",
		mcp.WithDescription("List stored submissions, newest first"),
		mcp.WithString("search",
			mcp.Description("Substring filter on submission identifier or requester"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of submissions to return (all when omitted)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of submissions to skip"),
		),
	)
	s.mcpServer.AddTool(listTool, s.handleListSubmissions)

	deleteTool := mcp.NewTool(
		"lab_delete_submission",
		mcp.WithDescription("Delete a submission and all of its samples"),
		mcp.WithString("submission_id",
			mcp.Required(),
			mcp.Description("Submission to delete"),
		),
	)
	s.mcpServer.AddTool(deleteTool, s.handleDeleteSubmission)
}

// Handler functions
func (s *Server) handleIngestPDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	force := false
	if f, ok := request.GetArguments()["force"].(bool); ok {
		force = f
	}

	result, err := s.service.Ingest(ctx, path, force)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatIngestResult(result)), nil
}

func (s *Server) handleRunQC(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	submissionID, err := request.RequireString("submission_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	evaluator := ""
	if e, ok := args["evaluator"].(string); ok {
		evaluator = e
	}

	var thresholds domain.Thresholds
	if v, ok := args["min_concentration"].(float64); ok {
		thresholds.MinConcentration = v
	}
	if v, ok := args["min_volume"].(float64); ok {
		thresholds.MinVolumeUL = v
	}
	if v, ok := args["min_ratio"].(float64); ok {
		thresholds.MinQualityRatio = v
	}

	summary, err := s.service.EvaluateQC(ctx, submissionID, thresholds, evaluator)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("QC summary for submission %s\n", submissionID)
	responseText += fmt.Sprintf("Samples: %d\n", summary.Total)
	responseText += fmt.Sprintf("Evaluated: %d\n", summary.Evaluated)
	responseText += fmt.Sprintf("Skipped (already scored): %d\n", summary.Skipped)
	responseText += fmt.Sprintf("Passed: %d\n", summary.Passed)
	responseText += fmt.Sprintf("Warning: %d\n", summary.Warning)
	responseText += fmt.Sprintf("Failed: %d\n", summary.Failed)

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleTransitionSamples(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	submissionID, err := request.RequireString("submission_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawIDs, err := request.RequireString("sample_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	actor := ""
	if a, ok := request.GetArguments()["actor"].(string); ok {
		actor = a
	}

	sampleIDs := splitIDs(rawIDs)
	if len(sampleIDs) == 0 {
		return mcp.NewToolResultError("sample_ids cannot be empty"), nil
	}

	updated, err := s.service.TransitionSamples(ctx, submissionID, sampleIDs, status, actor)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Transitioned %d of %d sample(s) of submission %s to %s",
		updated, len(sampleIDs), submissionID, status)
	if updated < len(sampleIDs) {
		responseText += "\nSamples that were unknown or not eligible for this transition were skipped."
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	submissionID := ""
	if id, ok := request.GetArguments()["submission_id"].(string); ok {
		submissionID = id
	}

	stats, err := s.service.Statistics(ctx, submissionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatStatistics(submissionID, stats)), nil
}

func (s *Server) handleGetSubmission(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	submissionID, err := request.RequireString("submission_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	submission, err := s.service.GetSubmission(ctx, submissionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatSubmission(submission)), nil
}

func (s *Server) handleListSubmissions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	var query store.ListQuery
	if v, ok := args["search"].(string); ok {
		query.Search = v
	}
	if v, ok := args["limit"].(float64); ok {
		query.Limit = int(v)
	}
	if v, ok := args["offset"].(float64); ok {
		query.Offset = int(v)
	}

	submissions, err := s.service.ListSubmissions(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(submissions) == 0 {
		if query.Search != "" {
			return mcp.NewToolResultText(fmt.Sprintf("No submissions match %q", query.Search)), nil
		}
		return mcp.NewToolResultText("No submissions stored"), nil
	}

	responseText := fmt.Sprintf("Found %d submission(s)\n\n", len(submissions))
	for i, submission := range submissions {
		responseText += fmt.Sprintf("%d. %s\n", i+1, submission.ID)
		if submission.Metadata.Identifier != "" {
			responseText += fmt.Sprintf("   Identifier: %s\n", submission.Metadata.Identifier)
		}
		if submission.Metadata.Requester != "" {
			responseText += fmt.Sprintf("   Requester: %s\n", submission.Metadata.Requester)
		}
		responseText += fmt.Sprintf("   Samples: %d\n", len(submission.Samples))
		responseText += fmt.Sprintf("   Ingested: %s\n", submission.CreatedAt.Format("2006-01-02 15:04:05"))
		if i < len(submissions)-1 {
			responseText += "\n"
		}
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleDeleteSubmission(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	submissionID, err := request.RequireString("submission_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.service.DeleteSubmission(ctx, submissionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Deleted submission %s and its samples", submissionID)), nil
}

// Formatting methods
func (s *Server) formatIngestResult(result *intake.IngestResult) string {
	submission := result.Submission

	var text string
	if result.Created {
		text = fmt.Sprintf("Ingested new submission %s\n", submission.ID)
	} else {
		text = fmt.Sprintf("Document already ingested as submission %s\n", submission.ID)
		text += fmt.Sprintf("Metadata updated: %t\n", result.MetadataMerged)
	}

	text += fmt.Sprintf("File: %s\n", submission.Source.FilePath)
	text += fmt.Sprintf("Pages: %d\n", submission.Source.PageCount)
	text += fmt.Sprintf("Content hash: %s\n", submission.Source.ContentHash)
	text += fmt.Sprintf("Samples: %d\n", result.SamplesExtracted)
	if result.RowsSkipped > 0 {
		text += fmt.Sprintf("Rows skipped (invalid measurements): %d\n", result.RowsSkipped)
	}
	if submission.Metadata.Identifier != "" {
		text += fmt.Sprintf("Identifier: %s\n", submission.Metadata.Identifier)
	}
	if submission.Metadata.Requester != "" {
		text += fmt.Sprintf("Requester: %s\n", submission.Metadata.Requester)
	}
	return text
}

func (s *Server) formatStatistics(submissionID string, stats domain.Statistics) string {
	var text string
	if submissionID != "" {
		text = fmt.Sprintf("Statistics for submission %s\n", submissionID)
	} else {
		text = fmt.Sprintf("Statistics across %d submission(s)\n", stats.TotalSubmissions)
	}
	text += fmt.Sprintf("Total samples: %d\n", stats.TotalSamples)

	if len(stats.WorkflowCounts) > 0 {
		text += "\nWorkflow:\n"
		for _, status := range []domain.WorkflowStatus{
			domain.StatusReceived, domain.StatusProcessing, domain.StatusSequenced,
			domain.StatusCompleted, domain.StatusFailed, domain.StatusOnHold,
		} {
			if count := stats.WorkflowCounts[status]; count > 0 {
				text += fmt.Sprintf("  %s: %d\n", status, count)
			}
		}
	}

	if len(stats.QCCounts) > 0 {
		text += "\nQC:\n"
		for _, status := range []domain.QCStatus{
			domain.QCPending, domain.QCPassed, domain.QCWarning, domain.QCFailed,
		} {
			if count := stats.QCCounts[status]; count > 0 {
				text += fmt.Sprintf("  %s: %d\n", status, count)
			}
		}
	}

	text += "\nAverages (over present measurements):\n"
	text += formatAverage("Concentration (ng/uL)", stats.AverageConcentration)
	text += formatAverage("Volume (uL)", stats.AverageVolumeUL)
	text += formatAverage("A260/A280", stats.AverageQualityRatio)
	text += formatAverage("QC score", stats.AverageQCScore)

	text += fmt.Sprintf("\nSamples with storage location: %d\n", stats.SamplesWithLocation)
	text += fmt.Sprintf("Samples processed: %d\n", stats.SamplesProcessed)
	return text
}

func formatAverage(label string, value *float64) string {
	if value == nil {
		return fmt.Sprintf("  %s: n/a\n", label)
	}
	return fmt.Sprintf("  %s: %.2f\n", label, *value)
}

func (s *Server) formatSubmission(submission *domain.Submission) string {
	text := fmt.Sprintf("Submission %s\n", submission.ID)
	text += fmt.Sprintf("File: %s\n", submission.Source.FilePath)
	text += fmt.Sprintf("Pages: %d\n", submission.Source.PageCount)
	text += fmt.Sprintf("Content hash: %s\n", submission.Source.ContentHash)
	if submission.ForceImported {
		text += "Force imported: yes\n"
	}
	text += fmt.Sprintf("Ingested: %s\n", submission.CreatedAt.Format("2006-01-02 15:04:05"))

	metadata := submission.Metadata
	metadataLines := []struct {
		label string
		value string
	}{
		{"Identifier", metadata.Identifier},
		{"As of", metadata.AsOf},
		{"Expires on", metadata.ExpiresOn},
		{"Service requested", metadata.ServiceRequested},
		{"Requester", metadata.Requester},
		{"E-mail", metadata.RequesterEmail},
		{"Phone", metadata.Phone},
		{"Lab", metadata.Lab},
		{"Billing address", metadata.BillingAddress},
		{"PIs", metadata.PIs},
		{"Financial contacts", metadata.FinancialContacts},
		{"Request summary", metadata.RequestSummary},
		{"Will submit DNA for", metadata.WillSubmitDNAFor},
		{"Type of sample", metadata.TypeOfSample},
		{"Human DNA", metadata.HumanDNA},
		{"Source organism", metadata.SourceOrganism},
		{"Sample buffer", metadata.SampleBuffer},
		{"Flow cell type", metadata.FlowCellType},
	}

	var metadataText string
	for _, line := range metadataLines {
		if line.value != "" {
			metadataText += fmt.Sprintf("  %s: %s\n", line.label, line.value)
		}
	}
	if metadataText != "" {
		text += "\nMetadata:\n" + metadataText
	}

	text += fmt.Sprintf("\nSamples (%d):\n", len(submission.Samples))
	for i, sample := range submission.Samples {
		text += fmt.Sprintf("%d. %s", i+1, sample.ID)
		if sample.Name != "" {
			text += fmt.Sprintf(" (%s)", sample.Name)
		}
		text += "\n"
		text += fmt.Sprintf("   Status: %s, QC: %s\n",
			sample.Processing.Status, sample.QCStatusOrPending())
		text += formatMeasurement("Volume (uL)", sample.Measurements.VolumeUL)
		text += formatMeasurement("Qubit (ng/uL)", sample.Measurements.QubitConc)
		text += formatMeasurement("Nanodrop (ng/uL)", sample.Measurements.NanodropConc)
		text += formatMeasurement("A260/A280", sample.Measurements.RatioA260A280)
		text += formatMeasurement("A260/A230", sample.Measurements.RatioA260A230)
		if sample.QC != nil && sample.QC.Score != nil {
			text += fmt.Sprintf("   QC score: %.1f\n", *sample.QC.Score)
		}
		if sample.QC != nil && len(sample.QC.Issues) > 0 {
			text += fmt.Sprintf("   Issues: %s\n", strings.Join(sample.QC.Issues, "; "))
		}
	}
	return text
}

func formatMeasurement(label string, value *float64) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("   %s: %g\n", label, *value)
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting lab intake MCP server in stdio mode")
		log.Printf("Database: %s", s.config.DatabasePath)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode runs the server in HTTP server mode
func (s *Server) runServerMode(ctx context.Context) error {
	// The mark3labs transport currently only supports stdio here.
	log.Printf("Server mode not yet implemented with mark3labs/mcp-go")
	log.Printf("Falling back to stdio mode")
	return s.runStdioMode(ctx)
}
