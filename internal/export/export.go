package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// Format identifies a report output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat maps a query-string value to a Format. An empty value
// defaults to JSON.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatPDF, FormatHTML:
		return Format(value), nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("unsupported export format: %s", value))
	}
}

// Report is the assembled payload an export renders: one user's
// experiments with their captured results.
type Report struct {
	UserID      uuid.UUID          `json:"user_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Experiments []ReportExperiment `json:"experiments"`
}

// ReportExperiment pairs an experiment with all of its results.
type ReportExperiment struct {
	Experiment *types.Experiment         `json:"experiment"`
	Results    []*types.ExperimentResult `json:"results"`
}

// Summary aggregates a report for its header block.
type Summary struct {
	TotalExperiments int            `json:"total_experiments"`
	TotalResults     int            `json:"total_results"`
	ByType           map[string]int `json:"by_type"`
	ByStatus         map[string]int `json:"by_status"`
	CompletionRate   float64        `json:"completion_rate"`
}

// Artifact is a rendered report document, served directly as a download.
type Artifact struct {
	ID          uuid.UUID `json:"id"`
	Format      Format    `json:"format"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	Size        int64     `json:"size"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Service renders experiment reports to the supported formats.
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Render renders the report in the requested format.
func (s *Service) Render(ctx context.Context, report *Report, format Format) (*Artifact, error) {
	if report == nil {
		return nil, errors.NewValidationError("report is required")
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}

	switch format {
	case FormatJSON:
		return s.renderJSON(report)
	case FormatCSV:
		return s.renderCSV(report)
	case FormatPDF:
		return s.renderPDF(report)
	case FormatHTML:
		return s.renderHTML(report)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported export format: %s", format))
	}
}

func (s *Service) renderJSON(report *Report) (*Artifact, error) {
	exportData := map[string]interface{}{
		"export_info": map[string]interface{}{
			"generated_at":      report.GeneratedAt,
			"format":            "json",
			"version":           "1.0",
			"total_experiments": len(report.Experiments),
		},
		"summary":     buildSummary(report),
		"experiments": report.Experiments,
	}

	data, err := json.MarshalIndent(exportData, "", "  ")
	if err != nil {
		return nil, errors.NewExportError(string(FormatJSON), "failed to marshal report").WithCause(err)
	}

	return s.artifact(report, FormatJSON, "application/json", data), nil
}

func (s *Service) renderCSV(report *Report) (*Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"experiment_id", "name", "experiment_type", "status", "experiment_created_at",
		"result_id", "result_created_at", "mean", "std_dev", "min", "max", "analysis_summary",
	}
	if err := w.Write(header); err != nil {
		return nil, errors.NewExportError(string(FormatCSV), "failed to write report header").WithCause(err)
	}

	for _, entry := range report.Experiments {
		exp := entry.Experiment
		base := []string{
			exp.ID.String(),
			exp.Name,
			exp.ExperimentType,
			exp.Status,
			exp.CreatedAt.Format("2006-01-02 15:04:05"),
		}

		if len(entry.Results) == 0 {
			row := append(append([]string{}, base...), "", "", "", "", "", "", "")
			if err := w.Write(row); err != nil {
				return nil, errors.NewExportError(string(FormatCSV), "failed to write report row").WithCause(err)
			}
			continue
		}

		for _, result := range entry.Results {
			row := append(append([]string{}, base...),
				result.ID.String(),
				result.CreatedAt.Format("2006-01-02 15:04:05"),
				formatFloat(result.Metrics.Mean),
				formatFloat(result.Metrics.StdDev),
				formatFloat(result.Metrics.Min),
				formatFloat(result.Metrics.Max),
				result.AnalysisSummary,
			)
			if err := w.Write(row); err != nil {
				return nil, errors.NewExportError(string(FormatCSV), "failed to write report row").WithCause(err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.NewExportError(string(FormatCSV), "failed to flush report").WithCause(err)
	}

	return s.artifact(report, FormatCSV, "text/csv", buf.Bytes()), nil
}

func (s *Service) renderPDF(report *Report) (*Artifact, error) {
	summary := buildSummary(report)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "NeuroLab-360 Experiment Report")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 9)
	pdf.Cell(40, 5, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	pdf.Ln(5)
	pdf.Cell(40, 5, fmt.Sprintf("User: %s", report.UserID))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(40, 6, fmt.Sprintf("Total Experiments: %d", summary.TotalExperiments))
	pdf.Ln(6)
	pdf.Cell(40, 6, fmt.Sprintf("Total Results: %d", summary.TotalResults))
	pdf.Ln(6)
	pdf.Cell(40, 6, fmt.Sprintf("Completion Rate: %.1f%%", summary.CompletionRate*100))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 8, "Experiments")
	pdf.Ln(10)

	for i, entry := range report.Experiments {
		exp := entry.Experiment

		if i > 0 {
			pdf.Ln(4)
		}

		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(40, 6, fmt.Sprintf("%d. %s", i+1, exp.Name))
		pdf.Ln(6)

		pdf.SetFont("Arial", "", 9)
		pdf.Cell(40, 5, fmt.Sprintf("Type: %s | Status: %s | Created: %s",
			exp.ExperimentType, exp.Status, exp.CreatedAt.Format("2006-01-02")))
		pdf.Ln(5)

		for _, result := range entry.Results {
			pdf.Cell(40, 5, fmt.Sprintf("Result %s: mean=%.2f std=%.2f min=%.2f max=%.2f",
				result.CreatedAt.Format("2006-01-02 15:04"),
				result.Metrics.Mean, result.Metrics.StdDev, result.Metrics.Min, result.Metrics.Max))
			pdf.Ln(5)

			if result.AnalysisSummary != "" {
				pdf.MultiCell(0, 4, result.AnalysisSummary, "", "", false)
				pdf.Ln(1)
			}
		}

		if pdf.GetY() > 260 {
			pdf.AddPage()
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.NewExportError(string(FormatPDF), "failed to generate PDF").WithCause(err)
	}

	return s.artifact(report, FormatPDF, "application/pdf", buf.Bytes()), nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>NeuroLab-360 Experiment Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { border-bottom: 2px solid #333; padding-bottom: 20px; margin-bottom: 30px; }
        .summary { background: #f5f5f5; padding: 20px; margin-bottom: 30px; border-radius: 5px; }
        .experiment { border: 1px solid #ddd; margin-bottom: 20px; padding: 15px; border-radius: 5px; }
        .status-completed { border-left: 5px solid #16a34a; }
        .status-running { border-left: 5px solid #2563eb; }
        .status-pending { border-left: 5px solid #d97706; }
        .status-failed { border-left: 5px solid #dc2626; }
        .experiment-title { font-weight: bold; font-size: 16px; margin-bottom: 10px; }
        .experiment-meta { color: #666; font-size: 14px; margin-bottom: 10px; }
        .result { background: #f8f8f8; padding: 10px; border-radius: 3px; margin-bottom: 8px; font-size: 14px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>NeuroLab-360 Experiment Report</h1>
        <p>Generated on: {{.GeneratedAt}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p>Total Experiments: {{.Summary.TotalExperiments}}</p>
        <p>Total Results: {{.Summary.TotalResults}}</p>
        <p>Completion Rate: {{printf "%.1f" .CompletionPercent}}%</p>
    </div>

    <div class="experiments">
        <h2>Experiments</h2>
        {{range $index, $entry := .Experiments}}
        <div class="experiment status-{{$entry.Experiment.Status}}">
            <div class="experiment-title">{{$entry.Experiment.Name}}</div>
            <div class="experiment-meta">
                Type: {{$entry.Experiment.ExperimentType}} | Status: {{$entry.Experiment.Status}} | Created: {{$entry.Experiment.CreatedAt.Format "2006-01-02"}}
            </div>
            {{range $entry.Results}}
            <div class="result">
                {{.CreatedAt.Format "2006-01-02 15:04"}} &mdash; mean {{printf "%.2f" .Metrics.Mean}}, std {{printf "%.2f" .Metrics.StdDev}}, min {{printf "%.2f" .Metrics.Min}}, max {{printf "%.2f" .Metrics.Max}}
                {{if .AnalysisSummary}}<div>{{.AnalysisSummary}}</div>{{end}}
            </div>
            {{end}}
        </div>
        {{end}}
    </div>
</body>
</html>`))

func (s *Service) renderHTML(report *Report) (*Artifact, error) {
	summary := buildSummary(report)

	data := struct {
		GeneratedAt       time.Time
		Summary           Summary
		CompletionPercent float64
		Experiments       []ReportExperiment
	}{
		GeneratedAt:       report.GeneratedAt,
		Summary:           summary,
		CompletionPercent: summary.CompletionRate * 100,
		Experiments:       report.Experiments,
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, errors.NewExportError(string(FormatHTML), "failed to render HTML report").WithCause(err)
	}

	return s.artifact(report, FormatHTML, "text/html; charset=utf-8", buf.Bytes()), nil
}

func (s *Service) artifact(report *Report, format Format, contentType string, data []byte) *Artifact {
	return &Artifact{
		ID:          uuid.New(),
		Format:      format,
		Filename:    Filename(report.UserID, report.GeneratedAt, format),
		ContentType: contentType,
		Data:        data,
		Size:        int64(len(data)),
		GeneratedAt: report.GeneratedAt,
	}
}

// Filename builds the download name for a rendered report.
func Filename(userID uuid.UUID, generatedAt time.Time, format Format) string {
	shortUser := userID.String()
	if len(shortUser) > 8 {
		shortUser = shortUser[:8]
	}
	return fmt.Sprintf("neurolab_report_%s_%s.%s", shortUser, generatedAt.Format("20060102_150405"), format)
}

// buildSummary aggregates the report header block.
func buildSummary(report *Report) Summary {
	summary := Summary{
		ByType:   make(map[string]int),
		ByStatus: make(map[string]int),
	}

	completed := 0
	for _, entry := range report.Experiments {
		summary.TotalExperiments++
		summary.TotalResults += len(entry.Results)
		summary.ByType[entry.Experiment.ExperimentType]++
		summary.ByStatus[entry.Experiment.Status]++
		if entry.Experiment.Status == types.ExperimentStatusCompleted {
			completed++
		}
	}

	if summary.TotalExperiments > 0 {
		summary.CompletionRate = float64(completed) / float64(summary.TotalExperiments)
	}

	return summary
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
