// Package table loads question tables from XLSX or CSV files and writes the
// answered table back out. The batch engine never touches files; this package
// is the collaborator that turns a spreadsheet into ordered questions and
// results back into rows.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"answervet/internal/logging"
	"answervet/internal/workflow"
)

// ErrNoQuestionColumn is returned when the input table has no recognizable
// question column.
var ErrNoQuestionColumn = errors.New("table: no question column found")

// Defaults fills in per-question fields the table leaves blank.
type Defaults struct {
	CharLimit   int
	MaxAttempts int
}

// Row is one question read from the table, in file order.
// Index is the zero-based position among non-empty question rows and is
// the row identity used throughout a batch run.
type Row struct {
	Index    int
	Question workflow.Question
}

// column positions resolved from the header row. -1 means absent.
type columns struct {
	question    int
	context     int
	charLimit   int
	maxAttempts int
}

// Load reads questions from an .xlsx or .csv file.
func Load(path string, defaults Defaults) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return loadXLSX(path, defaults)
	case ".csv":
		return loadCSV(path, defaults)
	default:
		return nil, fmt.Errorf("table: unsupported file type %q (want .xlsx or .csv)", filepath.Ext(path))
	}
}

func loadXLSX(path string, defaults Defaults) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("table: %s has no sheets", path)
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("table: read sheet %q: %w", sheet, err)
	}

	rows, err := parseRecords(records, defaults)
	if err != nil {
		return nil, err
	}
	logging.Table("Loaded %d questions from %s (sheet %q)", len(rows), path, sheet)
	return rows, nil
}

func loadCSV(path string, defaults Defaults) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("table: read %s: %w", path, err)
		}
		records = append(records, rec)
	}

	rows, err := parseRecords(records, defaults)
	if err != nil {
		return nil, err
	}
	logging.Table("Loaded %d questions from %s", len(rows), path)
	return rows, nil
}

func parseRecords(records [][]string, defaults Defaults) ([]Row, error) {
	if len(records) == 0 {
		return nil, errors.New("table: file is empty")
	}

	cols, err := resolveColumns(records[0])
	if err != nil {
		return nil, err
	}

	get := func(rec []string, idx int) string {
		if idx < 0 || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	var rows []Row
	for _, rec := range records[1:] {
		text := get(rec, cols.question)
		if text == "" {
			continue
		}

		q := workflow.Question{
			Text:        text,
			Context:     get(rec, cols.context),
			CharLimit:   defaults.CharLimit,
			MaxAttempts: defaults.MaxAttempts,
		}
		if v, err := strconv.Atoi(get(rec, cols.charLimit)); err == nil && v > 0 {
			q.CharLimit = v
		}
		if v, err := strconv.Atoi(get(rec, cols.maxAttempts)); err == nil && v > 0 {
			q.MaxAttempts = v
		}

		rows = append(rows, Row{Index: len(rows), Question: q})
	}

	return rows, nil
}

// resolveColumns maps header aliases to column positions so exported and
// hand-written tables both load.
func resolveColumns(header []string) (columns, error) {
	norm := func(s string) string {
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(s, "\uFEFF")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, "-", "")
		s = strings.ReplaceAll(s, "_", "")
		return s
	}

	hmap := map[string]int{}
	for i, h := range header {
		hmap[norm(h)] = i
	}

	findAny := func(keys ...string) int {
		for _, k := range keys {
			if idx, ok := hmap[norm(k)]; ok {
				return idx
			}
		}
		return -1
	}

	cols := columns{
		question:    findAny("question", "prompt", "q", "query"),
		context:     findAny("context", "background", "notes"),
		charLimit:   findAny("char_limit", "charlimit", "max_chars", "limit"),
		maxAttempts: findAny("max_attempts", "maxattempts", "attempts", "retries"),
	}
	if cols.question == -1 {
		return columns{}, fmt.Errorf("%w (headers: %v)", ErrNoQuestionColumn, header)
	}
	return cols, nil
}
