package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/classifier"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/services"
)

// ErrorLogReader is the part of services.ErrorLogService the tools use.
type ErrorLogReader interface {
	List(ctx context.Context, filters models.ErrorLogFilters) ([]*services.DecoratedErrorLog, int64, error)
	Get(ctx context.Context, id int64) (*services.DecoratedErrorLog, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	Stats(ctx context.Context) (*models.ErrorLogStats, error)
	Classify(message string, flags classifier.RequestFlags) classifier.Result
}

// Analyzer runs the AI deep dive for one record.
type Analyzer interface {
	Analyze(ctx context.Context, id int64) (*services.AnalysisResult, error)
}

// ErrorLogToolDeps contains the dependencies for the error log tools.
// Analysis is optional; analyze_error is only registered when it is set.
type ErrorLogToolDeps struct {
	Logs     ErrorLogReader
	Analysis Analyzer
	Logger   *zap.Logger
}

// errorSummary is the compact list view of a record.
type errorSummary struct {
	ID              int64     `json:"id"`
	Type            string    `json:"type"`
	Message         string    `json:"message"`
	File            string    `json:"file"`
	Line            int       `json:"line"`
	Culprit         string    `json:"culprit"`
	Status          string    `json:"status"`
	OccurrenceCount int64     `json:"occurrence_count"`
	LastSeen        time.Time `json:"last_seen"`
	Category        string    `json:"category"`
	Severity        string    `json:"severity"`
	Confidence      int       `json:"confidence"`
	IsSpike         bool      `json:"is_spike"`
}

type listErrorsResult struct {
	Errors []errorSummary `json:"errors"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type updateStatusResult struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// RegisterErrorLogTools registers the error log query and triage tools.
func RegisterErrorLogTools(s *server.MCPServer, deps *ErrorLogToolDeps) {
	registerListErrorsTool(s, deps)
	registerGetErrorTool(s, deps)
	registerClassifyErrorTool(s, deps)
	registerUpdateErrorStatusTool(s, deps)
	registerErrorStatsTool(s, deps)
	if deps.Analysis != nil {
		registerAnalyzeErrorTool(s, deps)
	}
}

func registerListErrorsTool(s *server.MCPServer, deps *ErrorLogToolDeps) {
	tool := mcp.NewTool(
		"list_errors",
		mcp.WithDescription("Lists grouped error logs, most recently seen first, with their diagnosis."),
		mcp.WithString("status",
			mcp.Description("Only return records with this status"),
			mcp.Enum(models.ErrorStatusOpen, models.ErrorStatusResolved, models.ErrorStatusIgnored),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum records to return (default 100, max 500)")),
		mcp.WithNumber("offset", mcp.Description("Records to skip")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit, _, err := getOptionalInt(req, "limit")
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}
		offset, _, err := getOptionalInt(req, "offset")
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}

		filters := models.ErrorLogFilters{
			Status: getOptionalString(req, "status"),
			Limit:  int(limit),
			Offset: int(offset),
		}.Normalize()

		logs, total, err := deps.Logs.List(ctx, filters)
		if err != nil {
			if result := errorResultFor(err, 0); result != nil {
				return result, nil
			}
			return nil, err
		}

		out := listErrorsResult{
			Errors: make([]errorSummary, 0, len(logs)),
			Total:  total,
			Limit:  filters.Limit,
			Offset: filters.Offset,
		}
		for _, log := range logs {
			out.Errors = append(out.Errors, summarize(log))
		}
		return jsonResult(out)
	})
}

func registerGetErrorTool(s *server.MCPServer, deps *ErrorLogToolDeps) {
	tool := mcp.NewTool(
		"get_error",
		mcp.WithDescription("Returns one error log with its stack trace, code snippet, request context and diagnosis."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Error log id")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireID(req)
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}

		log, err := deps.Logs.Get(ctx, id)
		if err != nil {
			if result := errorResultFor(err, id); result != nil {
				return result, nil
			}
			return nil, err
		}
		return jsonResult(log)
	})
}

func registerClassifyErrorTool(s *server.MCPServer, deps *ErrorLogToolDeps) {
	tool := mcp.NewTool(
		"classify_error",
		mcp.WithDescription("Diagnoses an error message without storing it."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The error message to classify")),
		mcp.WithBoolean("is_admin", mcp.Description("The error happened on an admin request")),
		mcp.WithBoolean("is_rest", mcp.Description("The error happened on a REST request")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}

		result := deps.Logs.Classify(message, classifier.RequestFlags{
			IsAdmin: getOptionalBool(req, "is_admin"),
			IsREST:  getOptionalBool(req, "is_rest"),
		})
		return jsonResult(result)
	})
}

func registerUpdateErrorStatusTool(s *server.MCPServer, deps *ErrorLogToolDeps) {
	tool := mcp.NewTool(
		"update_error_status",
		mcp.WithDescription("Marks an error log as open, resolved or ignored."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Error log id")),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status"),
			mcp.Enum(models.ErrorStatusOpen, models.ErrorStatusResolved, models.ErrorStatusIgnored),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireID(req)
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}
		status, err := req.RequireString("status")
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}

		if err := deps.Logs.UpdateStatus(ctx, id, status); err != nil {
			if result := errorResultFor(err, id); result != nil {
				return result, nil
			}
			return nil, err
		}

		deps.Logger.Info("Error log status updated via MCP",
			zap.Int64("id", id),
			zap.String("status", status))
		return jsonResult(updateStatusResult{ID: id, Status: status})
	})
}

func registerErrorStatsTool(s *server.MCPServer, deps *ErrorLogToolDeps) {
	tool := mcp.NewTool(
		"error_stats",
		mcp.WithDescription("Returns record totals by status and severity and the oldest and newest timestamps."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Logs.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResult(stats)
	})
}

func registerAnalyzeErrorTool(s *server.MCPServer, deps *ErrorLogToolDeps) {
	tool := mcp.NewTool(
		"analyze_error",
		mcp.WithDescription("Asks the configured AI provider to explain an error log and suggest a fix."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Error log id")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireID(req)
		if err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		}

		analysis, err := deps.Analysis.Analyze(ctx, id)
		if err != nil {
			if result := errorResultFor(err, id); result != nil {
				return result, nil
			}
			return nil, err
		}
		return jsonResult(analysis)
	})
}

func summarize(log *services.DecoratedErrorLog) errorSummary {
	return errorSummary{
		ID:              log.ID,
		Type:            log.ErrorType,
		Message:         log.Message,
		File:            log.FilePath,
		Line:            log.LineNumber,
		Culprit:         log.Culprit,
		Status:          log.Status,
		OccurrenceCount: log.OccurrenceCount,
		LastSeen:        log.LastSeen,
		Category:        log.Classification.Category,
		Severity:        log.Classification.Severity,
		Confidence:      log.Classification.Confidence,
		IsSpike:         log.IsSpike,
	}
}
