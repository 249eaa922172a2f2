package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"answervet/internal/logging"
)

// Outcome is the per-row result written back to the table.
type Outcome struct {
	Status   string
	Answer   string
	Links    []string
	Reason   string
	Attempts int
}

var outputHeader = []string{"row", "question", "context", "status", "attempts", "answer", "documentation", "reason"}

// WriteResults writes the answered table to outPath, one record per input
// row. Rows without an outcome (stopped before being processed) get an empty
// status. The output format follows the output path extension.
func WriteResults(outPath string, rows []Row, outcomes map[int]Outcome) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, outputHeader)

	for _, row := range rows {
		out := outcomes[row.Index]
		records = append(records, []string{
			fmt.Sprintf("%d", row.Index),
			row.Question.Text,
			row.Question.Context,
			out.Status,
			fmt.Sprintf("%d", out.Attempts),
			out.Answer,
			strings.Join(out.Links, "\n"),
			out.Reason,
		})
	}

	var err error
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".xlsx":
		err = writeXLSX(outPath, records)
	case ".csv":
		err = writeCSV(outPath, records)
	default:
		return fmt.Errorf("table: unsupported output type %q (want .xlsx or .csv)", filepath.Ext(outPath))
	}
	if err != nil {
		return err
	}

	logging.Table("Wrote %d result rows to %s", len(rows), outPath)
	return nil
}

func writeXLSX(path string, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, rec := range records {
		for c, val := range rec {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("table: cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("table: set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("table: save %s: %w", path, err)
	}
	return nil
}

func writeCSV(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("table: create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("table: write %s: %w", path, err)
	}
	w.Flush()
	return w.Error()
}
