package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/kyuchan/presentation-grader/internal/grading"
)

const (
	teamColumn  = "팀명"
	totalColumn = "총점"
)

// Header returns the summary columns for a set of criteria.
func Header(in Input) []string {
	cols := make([]string, 0, len(in.Criteria)+2)
	cols = append(cols, teamColumn)
	for _, c := range in.Criteria {
		cols = append(cols, c.Name)
	}
	return append(cols, totalColumn)
}

// SaveSummaryExcel appends the team's scores to <excelDir>/<topic>.xlsx. When
// the file exists with different columns it is moved aside as
// summary_backup_<unix>.xlsx and a new file is started.
func (r *Renderer) SaveSummaryExcel(in Input) (string, error) {
	if err := os.MkdirAll(r.excelDir, 0o755); err != nil {
		return "", fmt.Errorf("create excel dir: %w", err)
	}
	path := filepath.Join(r.excelDir, SafeTopic(in.Topic)+".xlsx")
	header := Header(in)
	row := summaryRow(in)

	_, err := os.Stat(path)
	switch {
	case err == nil:
		appended, err := appendIfSameHeader(path, header, row)
		if err != nil {
			return "", err
		}
		if appended {
			return path, nil
		}
		backup := filepath.Join(r.excelDir, fmt.Sprintf("summary_backup_%d.xlsx", r.now().Unix()))
		if err := os.Rename(path, backup); err != nil {
			return "", fmt.Errorf("back up summary: %w", err)
		}
		r.logger.Info("criteria changed, summary backed up", "topic", in.Topic, "backup", backup)
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("stat summary: %w", err)
	}

	if err := writeNew(path, header, row); err != nil {
		return "", err
	}
	return path, nil
}

func summaryRow(in Input) []any {
	row := make([]any, 0, len(in.Criteria)+2)
	row = append(row, in.TeamName)
	for i := range in.Criteria {
		score := 0
		if i < len(in.Results) {
			score = grading.ParseScore(in.Results[i].Score)
		}
		row = append(row, score)
	}
	return append(row, grading.TotalScore(in.Results))
}

func appendIfSameHeader(path string, header []string, row []any) (bool, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return false, fmt.Errorf("open summary: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return false, fmt.Errorf("read summary: %w", err)
	}
	if len(rows) == 0 || !slices.Equal(rows[0], header) {
		return false, nil
	}

	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return false, err
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return false, fmt.Errorf("append row: %w", err)
	}
	if err := f.Save(); err != nil {
		return false, fmt.Errorf("save summary: %w", err)
	}
	return true, nil
}

func writeNew(path string, header []string, row []any) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A2", &row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}
