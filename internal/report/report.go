// Package report renders grading results as a per-team PDF and a per-topic
// Excel summary.
package report

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kyuchan/presentation-grader/internal/config"
	"github.com/kyuchan/presentation-grader/internal/models"
)

// ErrFontNotFound means the configured UTF-8 font file is missing.
var ErrFontNotFound = errors.New("report font not found")

// Input is everything a report needs.
type Input struct {
	TeamName string
	Topic    string
	Criteria []models.Criterion
	Results  []models.CriterionResult
}

// Paths locates the files written for one report.
type Paths struct {
	PDF   string `json:"pdf"`
	Excel string `json:"excel"`
}

type Renderer struct {
	pdfDir   string
	excelDir string
	fontPath string
	now      func() time.Time
	logger   *slog.Logger
}

func NewRenderer(cfg config.ReportConfig, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		pdfDir:   cfg.PDFDir,
		excelDir: cfg.ExcelDir,
		fontPath: cfg.FontPath,
		now:      time.Now,
		logger:   logger,
	}
}

func (r *Renderer) PDFDir() string   { return r.pdfDir }
func (r *Renderer) ExcelDir() string { return r.excelDir }

// Render writes the PDF and then the Excel summary.
func (r *Renderer) Render(in Input) (Paths, error) {
	pdfPath, err := r.CreatePDF(in)
	if err != nil {
		return Paths{}, err
	}
	excelPath, err := r.SaveSummaryExcel(in)
	if err != nil {
		return Paths{PDF: pdfPath}, err
	}
	return Paths{PDF: pdfPath, Excel: excelPath}, nil
}

// FileName makes s usable as a single path element by replacing separators.
func FileName(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// SafeTopic is the Excel file stem for a topic: spaces and path separators
// become underscores.
func SafeTopic(topic string) string {
	return FileName(strings.ReplaceAll(topic, " ", "_"))
}
