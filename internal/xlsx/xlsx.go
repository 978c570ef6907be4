// Copyright Dasan Software Lab, 2026. All rights reserved.

// Package xlsx reads the input spreadsheet and writes batch output,
// including the periodic checkpoint file that guards against loss on
// interruption.
package xlsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dasanlab/bookcheck/pkg/types"
)

// InputColumns are the expected input headers. A missing column is read
// as empty strings, never a hard failure.
var InputColumns = []string{"학교명", "도서명", "저자", "출판사"}

// OutputColumns are the headers of the result sheet.
var OutputColumns = []string{"학교명", "도서명", "저자", "출판사", "ISBN13", "검색학교", "존재여부", "사유"}

const sheetName = "Sheet1"

// ReadInput loads rows from the first sheet of an xlsx file. The first
// row is the header; unknown columns are ignored.
func ReadInput(path string) ([]types.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(cells[0]))
	for i, h := range cells[0] {
		col[strings.TrimSpace(h)] = i
	}

	pick := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rows := make([]types.Row, 0, len(cells)-1)
	for _, r := range cells[1:] {
		row := types.Row{
			School:    pick(r, "학교명"),
			Title:     pick(r, "도서명"),
			Author:    pick(r, "저자"),
			Publisher: pick(r, "출판사"),
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteOutput writes records to path, creating parent directories as
// needed.
func WriteOutput(path string, records []types.Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, h := range OutputColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}
	for rIdx, rec := range records {
		values := []string{
			rec.School, rec.Title, rec.Author, rec.Publisher,
			rec.ISBN13, rec.MatchedSchool, rec.ExistsMark(), rec.Reason,
		}
		for cIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(cIdx+1, rIdx+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Writer checkpoints partial batch output next to the final output path.
type Writer struct {
	// OutputPath is the final result file; checkpoints land beside it.
	OutputPath string
}

// CheckpointPath derives the intermediate file name from the output path.
func (w Writer) CheckpointPath() string {
	ext := filepath.Ext(w.OutputPath)
	return strings.TrimSuffix(w.OutputPath, ext) + "_중간" + ext
}

// Checkpoint writes the partial records to the intermediate file.
func (w Writer) Checkpoint(records []types.Record) error {
	return WriteOutput(w.CheckpointPath(), records)
}
