package workbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sheetSpec struct {
	name string
	rows [][]string
}

// buildWorkbook serializes the given sheets into xlsx bytes.
func buildWorkbook(t *testing.T, sheets []sheetSpec) []byte {
	t.Helper()

	f := excelize.NewFile()
	for _, s := range sheets {
		_, err := f.NewSheet(s.name)
		require.NoError(t, err)
		for i, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			out := make([]interface{}, len(row))
			for j, v := range row {
				out[j] = v
			}
			require.NoError(t, f.SetSheetRow(s.name, cell, &out))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseWorkbookReadsEverySheet(t *testing.T) {
	payload := buildWorkbook(t, []sheetSpec{
		{SheetBase, [][]string{
			{"Gerência", "Revisão", "26/01/2026"},
			{"Norte", "Semana 1", "100.5"},
		}},
		{SheetControl, [][]string{
			{ColActiveWeek, ColPermittedMonths},
			{"Semana 1", "2026-01-26"},
		}},
	})

	sheets, err := ParseWorkbook(payload)
	require.NoError(t, err)
	require.Contains(t, sheets, SheetBase)
	require.Contains(t, sheets, SheetControl)

	records := sheets[SheetBase].Records()
	assert.Equal(t, []string{"Gerência", "Revisão", "26/01/2026"}, records[0])
	assert.Equal(t, "Norte", records[1][0])
	assert.Equal(t, "100.5", records[1][2])
}

func TestParseWorkbookPadsShortRows(t *testing.T) {
	payload := buildWorkbook(t, []sheetSpec{
		{SheetControl, [][]string{
			{ColActiveWeek, ColPermittedMonths},
			{"Semana 1"}, // trailing blank trimmed by the writer
		}},
	})

	sheets, err := ParseWorkbook(payload)
	require.NoError(t, err)
	records := sheets[SheetControl].Records()
	require.Len(t, records[1], 2)
	assert.Equal(t, "", records[1][1])
}

func TestPatchWorkbookLeavesOtherSheetsUntouched(t *testing.T) {
	payload := buildWorkbook(t, []sheetSpec{
		{SheetBase, [][]string{
			{"Gerência", "Revisão"},
			{"Norte", "Semana 1"},
			{"Sul", "Semana 1"},
		}},
		{SheetControl, [][]string{
			{ColActiveWeek, ColPermittedMonths},
			{"Semana 1", ""},
			{"stale", "stale"},
		}},
		{SheetHistory, [][]string{HistoryColumns}},
	})

	ctrl := FrameFromRecords([][]string{
		{ColActiveWeek, ColPermittedMonths},
		{"Semana 2", "2026-02-01"},
	})
	patched, err := PatchWorkbook(payload, SheetControl, ctrl)
	require.NoError(t, err)

	before, err := ParseWorkbook(payload)
	require.NoError(t, err)
	after, err := ParseWorkbook(patched)
	require.NoError(t, err)

	assert.Equal(t, before[SheetBase].Records(), after[SheetBase].Records())
	assert.Equal(t, before[SheetHistory].Records(), after[SheetHistory].Records())

	records := after[SheetControl].Records()
	require.Len(t, records, 2, "stale rows beyond the new table must be gone")
	assert.Equal(t, []string{"Semana 2", "2026-02-01"}, records[1])
}

func TestPatchWorkbookCreatesMissingSheet(t *testing.T) {
	payload := buildWorkbook(t, []sheetSpec{
		{SheetBase, [][]string{{"Gerência"}, {"Norte"}}},
	})

	hist := FrameFromRecords([][]string{HistoryColumns})
	patched, err := PatchWorkbook(payload, SheetHistory, hist)
	require.NoError(t, err)

	sheets, err := ParseWorkbook(patched)
	require.NoError(t, err)
	require.Contains(t, sheets, SheetHistory)
	assert.Equal(t, HistoryColumns, sheets[SheetHistory].Records()[0])
}

func TestPatchWorkbookStartsFreshOnNilPayload(t *testing.T) {
	base := FrameFromRecords([][]string{
		{"Gerência", "Revisão"},
		{"Norte", "Semana 1"},
	})
	payload, err := PatchWorkbook(nil, SheetBase, base)
	require.NoError(t, err)

	sheets, err := ParseWorkbook(payload)
	require.NoError(t, err)
	require.Contains(t, sheets, SheetBase)
	assert.Equal(t, "Norte", sheets[SheetBase].Records()[1][0])
}

func TestPatchWorkbookRoundTripsCellText(t *testing.T) {
	base := FrameFromRecords([][]string{
		{"Gerência", "26/01/2026"},
		{"Norte", "1234.5"},
	})
	payload, err := PatchWorkbook(nil, SheetBase, base)
	require.NoError(t, err)

	sheets, err := ParseWorkbook(payload)
	require.NoError(t, err)
	records := sheets[SheetBase].Records()

	// Header cells stay text even when they look like dates; value cells
	// keep their numeric content.
	assert.Equal(t, "26/01/2026", records[0][1])
	assert.Equal(t, "1234.5", records[1][1])
}
