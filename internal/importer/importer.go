// Package importer bulk-creates cards from spreadsheets.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/yomu/internal/domain"
	"github.com/conorfennell/yomu/internal/storage"
)

var errEmptyWord = errors.New("empty word")

// Config describes where cards live in the file. Columns are spreadsheet
// letters; CSV files use the same letters for field positions.
type Config struct {
	FilePath      string
	SheetName     string // defaults to the first sheet
	WordColumn    string
	ReadingColumn string
	MeaningColumn string
	StartRow      int // 1-based; rows before it are headers
}

func DefaultConfig() Config {
	return Config{
		WordColumn:    "A",
		ReadingColumn: "B",
		MeaningColumn: "C",
		StartRow:      2,
	}
}

// Result holds the outcome of an import.
type Result struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

type columns struct {
	word, reading, meaning int
}

// Import reads cards from an .xlsx or .csv file. Words that already exist
// are skipped; rows without a word are reported in Result.Errors.
func Import(ctx context.Context, db *storage.DB, cfg Config, now time.Time) (*Result, error) {
	cols, err := cfg.columns()
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(cfg.FilePath)) {
	case ".csv":
		rows, err = readCSV(cfg.FilePath)
	case ".xlsx", ".xlsm":
		rows, err = readSheet(cfg.FilePath, cfg.SheetName)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(cfg.FilePath))
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Errors: make([]string, 0)}
	startRow := max(cfg.StartRow, 1)
	for i, row := range rows {
		rowNum := i + 1
		if rowNum < startRow {
			continue
		}
		if isBlank(row) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.TotalProcessed++
		word := cell(row, cols.word)
		if word == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, errEmptyWord))
			continue
		}

		_, outcome, err := db.CreateCard(ctx, word, cell(row, cols.reading), cell(row, cols.meaning), now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		if outcome == domain.AlreadyExists {
			result.Skipped++
			continue
		}
		result.Created++
	}

	slog.Info("Card import complete",
		"file", cfg.FilePath,
		"processed", result.TotalProcessed,
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (cfg Config) columns() (columns, error) {
	var cols columns
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{cfg.WordColumn, &cols.word},
		{cfg.ReadingColumn, &cols.reading},
		{cfg.MeaningColumn, &cols.meaning},
	} {
		if c.name == "" {
			*c.dst = -1
			continue
		}
		n, err := excelize.ColumnNameToNumber(c.name)
		if err != nil {
			return cols, fmt.Errorf("invalid column %q: %w", c.name, err)
		}
		*c.dst = n - 1
	}
	if cols.word < 0 {
		return cols, errors.New("word column is required")
	}
	return cols, nil
}

func readSheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("no sheets in %s", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
