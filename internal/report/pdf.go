package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"github.com/kyuchan/presentation-grader/internal/grading"
)

const fontFamily = "malgun"

// CreatePDF writes <pdfDir>/<team>.pdf and returns its path.
func (r *Renderer) CreatePDF(in Input) (string, error) {
	if err := os.MkdirAll(r.pdfDir, 0o755); err != nil {
		return "", fmt.Errorf("create pdf dir: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	family := fontFamily
	tr := func(s string) string { return s }
	if r.fontPath != "" {
		if _, err := os.Stat(r.fontPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrFontNotFound, r.fontPath)
			}
			return "", fmt.Errorf("stat font: %w", err)
		}
		pdf.AddUTF8Font(family, "", r.fontPath)
		pdf.AddUTF8Font(family, "B", r.fontPath)
	} else {
		// Core fonts cannot show Hangul; unmapped runes render as '.'.
		family = "Helvetica"
		tr = pdf.UnicodeTranslatorFromDescriptor("")
		r.logger.Warn("no report font configured, using core font", "team", in.TeamName)
	}
	pdf.AddPage()

	pdf.SetFont(family, "B", 20)
	pdf.MultiCell(0, 10, tr(in.TeamName+" 팀"), "", "C", false)
	pdf.Ln(10)

	pdf.SetFont(family, "B", 14)
	pdf.CellFormat(0, 10, tr("평가 기준"), "", 1, "", false, 0, "")
	pdf.SetFont(family, "", 12)
	for _, c := range in.Criteria {
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("• %s : %d점", c.Name, c.Weight)), "", 1, "", false, 0, "")
	}
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("• 합계 : %d점", grading.TotalWeight(in.Criteria))), "", 1, "", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont(family, "B", 14)
	pdf.CellFormat(0, 10, tr("채점 결과"), "", 1, "", false, 0, "")
	pdf.Ln(3)

	left, _, right, _ := pdf.GetMargins()
	pageWidth, _ := pdf.GetPageSize()
	results := grading.Align(in.Criteria, in.Results)
	var total int
	for i, c := range in.Criteria {
		score := grading.ParseScore(results[i].Score)
		total += score

		pdf.SetFont(family, "B", 12)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("%s : %d점", c.Name, score)), "", 1, "", false, 0, "")
		pdf.SetFont(family, "", 12)
		pdf.MultiCell(0, 8, tr("피드백 : "+results[i].Feedback), "", "", false)
		pdf.Ln(1)

		pdf.SetDrawColor(150, 150, 150)
		pdf.SetLineWidth(0.3)
		y := pdf.GetY()
		pdf.Line(left, y, pageWidth-right, y)
		pdf.Ln(3)
	}

	pdf.Ln(5)
	pdf.SetFont(family, "B", 12)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("총점 : %d점", total)), "", 1, "", false, 0, "")

	path := filepath.Join(r.pdfDir, FileName(in.TeamName)+".pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	r.logger.Info("pdf report written", "team", in.TeamName, "path", path, "total", total)
	return path, nil
}
