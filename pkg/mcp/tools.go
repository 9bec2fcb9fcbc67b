package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/export"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/report"
)

// Tool names.
const (
	ToolNameMonitor = "spc_monitor"
	ToolNameSummary = "spc_summary"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyPath indicates a required path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrPathNotAbsolute indicates a path parameter is relative.
	ErrPathNotAbsolute = errors.New("path must be absolute")
	// ErrPathNotFound indicates a path parameter does not exist.
	ErrPathNotFound = errors.New("path does not exist")
)

// MonitorInput is the input schema of spc_monitor.
type MonitorInput struct {
	TrainingPath      string   `json:"training_path"                jsonschema:"absolute path to the in-control training CSV"`
	ScoringPath       string   `json:"scoring_path,omitempty"       jsonschema:"absolute path to the CSV to score; omit to score the training set"`
	Variables         []string `json:"variables,omitempty"          jsonschema:"numeric columns to model; omit to use every non-auxiliary column"`
	Components        int      `json:"components,omitempty"         jsonschema:"number of principal components to retain"`
	VarianceThreshold float64  `json:"variance_threshold,omitempty" jsonschema:"retain components up to this cumulative explained variance when components is omitted"`
	Confidence        float64  `json:"confidence,omitempty"         jsonschema:"control limit confidence in (0,1), default 0.95"`
	OutputDir         string   `json:"output_dir,omitempty"         jsonschema:"absolute directory to export results.csv, limits.json and model.json into"`
	AnomaliesOnly     bool     `json:"anomalies_only,omitempty"     jsonschema:"restrict the KPIs to out-of-control observations"`
}

// SummaryInput is the input schema of spc_summary.
type SummaryInput struct {
	ResultsDir    string   `json:"results_dir"              jsonschema:"absolute path to an exported run directory"`
	PartIDs       []string `json:"part_ids,omitempty"       jsonschema:"keep only these part ids"`
	RejectTypes   []string `json:"reject_types,omitempty"   jsonschema:"keep only these reject types"`
	From          string   `json:"from,omitempty"           jsonschema:"inclusive lower timestamp bound (RFC 3339 or YYYY-MM-DD)"`
	To            string   `json:"to,omitempty"             jsonschema:"inclusive upper timestamp bound (RFC 3339 or YYYY-MM-DD)"`
	AnomaliesOnly bool     `json:"anomalies_only,omitempty" jsonschema:"keep only out-of-control observations"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (s *Server) handleMonitor(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input MonitorInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validatePath(input.TrainingPath, true)
	if err != nil {
		return errorResult(fmt.Errorf("training_path: %w", err))
	}

	if input.ScoringPath != "" {
		err = validatePath(input.ScoringPath, true)
		if err != nil {
			return errorResult(fmt.Errorf("scoring_path: %w", err))
		}
	}

	if input.OutputDir != "" {
		err = validatePath(input.OutputDir, false)
		if err != nil {
			return errorResult(fmt.Errorf("output_dir: %w", err))
		}
	}

	loader := *s.loader
	if len(input.Variables) > 0 {
		loader.Schema.Variables = input.Variables
	}

	training, err := loader.Load(ctx, input.TrainingPath)
	if err != nil {
		return errorResult(err)
	}

	var scoring *dataset.Table

	if input.ScoringPath != "" {
		scoring, err = loader.Load(ctx, input.ScoringPath)
		if err != nil {
			return errorResult(err)
		}
	}

	result, err := s.runner.Run(ctx, training, scoring, s.monitorConfig(input))
	if err != nil {
		return errorResult(err)
	}

	if input.OutputDir != "" {
		err = export.Write(input.OutputDir, result, export.Options{})
		if err != nil {
			return errorResult(err)
		}
	}

	summary, err := report.Summarize(result, report.Filter{AnomaliesOnly: input.AnomaliesOnly})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(summary)
}

func (s *Server) monitorConfig(input MonitorInput) pipeline.Config {
	cfg := s.defaults

	switch {
	case input.Components > 0:
		cfg.Components = input.Components
		cfg.VarianceThreshold = 0
	case input.VarianceThreshold > 0:
		cfg.Components = 0
		cfg.VarianceThreshold = input.VarianceThreshold
	}

	if input.Confidence != 0 {
		cfg.Confidence = input.Confidence
	}

	return cfg
}

func (s *Server) handleSummary(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input SummaryInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validatePath(input.ResultsDir, true)
	if err != nil {
		return errorResult(fmt.Errorf("results_dir: %w", err))
	}

	filter := report.Filter{
		PartIDs:       input.PartIDs,
		RejectTypes:   input.RejectTypes,
		AnomaliesOnly: input.AnomaliesOnly,
	}

	if input.From != "" {
		filter.From, err = report.ParseTime(input.From, false)
		if err != nil {
			return errorResult(err)
		}
	}

	if input.To != "" {
		filter.To, err = report.ParseTime(input.To, true)
		if err != nil {
			return errorResult(err)
		}
	}

	result, err := export.Load(input.ResultsDir)
	if err != nil {
		return errorResult(err)
	}

	summary, err := report.Summarize(result, filter)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(summary)
}

// validatePath checks that path is absolute and, when mustExist, present.
func validatePath(path string, mustExist bool) error {
	if path == "" {
		return ErrEmptyPath
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s", ErrPathNotAbsolute, path)
	}

	if !mustExist {
		return nil
	}

	_, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}

	return nil
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, ToolOutput{Data: value}, nil
}
