package workbook

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// loadRecords builds a frame with every column typed as string. Cell values
// keep their exact textual form through a parse/patch round-trip; numeric
// interpretation happens at the point of use.
func loadRecords(records [][]string) dataframe.DataFrame {
	return dataframe.LoadRecords(records, dataframe.DetectTypes(false), dataframe.DefaultType(series.String))
}

// emptyFrame returns a zero-row frame carrying the given columns.
func emptyFrame(columns []string) dataframe.DataFrame {
	ss := make([]series.Series, len(columns))
	for i, col := range columns {
		ss[i] = series.New([]string{}, series.String, col)
	}
	return dataframe.New(ss...)
}

// FrameFromRecords builds a string-typed frame from records (header first).
// A header-only input yields an empty frame carrying those columns.
func FrameFromRecords(records [][]string) dataframe.DataFrame {
	if len(records) == 0 {
		return dataframe.DataFrame{}
	}
	if len(records) == 1 {
		return emptyFrame(records[0])
	}
	return loadRecords(records)
}

// frameFromRows converts raw sheet rows (header first) into a frame. Rows
// shorter than the header are padded with empty cells; excelize trims
// trailing blanks per row.
func frameFromRows(rows [][]string) (dataframe.DataFrame, bool) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return dataframe.DataFrame{}, false
	}
	header := rows[0]
	if len(rows) == 1 {
		return emptyFrame(header), true
	}

	records := make([][]string, 0, len(rows))
	records = append(records, header)
	for _, row := range rows[1:] {
		padded := make([]string, len(header))
		copy(padded, row)
		records = append(records, padded)
	}
	return loadRecords(records), true
}

// ParseWorkbook parses raw xlsx bytes into a frame per sheet. Sheets without
// a header row are omitted from the map.
func ParseWorkbook(payload []byte) (map[string]dataframe.DataFrame, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := make(map[string]dataframe.DataFrame)
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		if df, ok := frameFromRows(rows); ok {
			sheets[name] = df
		}
	}
	return sheets, nil
}

// cellValue converts a textual cell to the value written into the sheet.
// Numeric-looking cells become floats so spreadsheet consumers see numbers,
// everything else stays text.
func cellValue(s string) interface{} {
	if s == "" {
		return ""
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

// PatchWorkbook replaces (or creates) one sheet inside the document and
// re-serializes it. Every other sheet's stored bytes pass through untouched.
// A nil payload starts a fresh workbook, covering the first-run state.
func PatchWorkbook(payload []byte, name string, table dataframe.DataFrame) ([]byte, error) {
	var f *excelize.File
	var err error
	if len(payload) == 0 {
		f = excelize.NewFile()
	} else {
		f, err = excelize.OpenReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(name); err == nil && idx == -1 {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
	} else {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		for range rows {
			// Removing row 1 repeatedly shifts the remainder up.
			if err := f.RemoveRow(name, 1); err != nil {
				return nil, fmt.Errorf("clear sheet %q: %w", name, err)
			}
		}
	}

	for i, record := range table.Records() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		row := make([]interface{}, len(record))
		for j, v := range record {
			if i == 0 {
				row[j] = v
			} else {
				row[j] = cellValue(v)
			}
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return nil, fmt.Errorf("write sheet %q row %d: %w", name, i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
