package workbook

import (
	"testing"
	"time"

	"github.com/rota27/refinado/internal/graph"
	"github.com/rota27/refinado/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote holds the document bytes in memory and counts traffic.
type fakeRemote struct {
	payload []byte

	fetches       int
	forcedFetches int
	uploads       int

	// uploadFailures makes the next N uploads fail with a lock error.
	uploadFailures int
}

func (r *fakeRemote) FetchBytes(versionToken int64, force bool) ([]byte, error) {
	r.fetches++
	if force {
		r.forcedFetches++
	}
	return r.payload, nil
}

func (r *fakeRemote) Upload(payload []byte) error {
	if r.uploadFailures > 0 {
		r.uploadFailures--
		return &graph.TransientError{Status: 423}
	}
	r.uploads++
	r.payload = payload
	return nil
}

func newTestFacade(t *testing.T, sheets []sheetSpec) (*Facade, *fakeRemote) {
	t.Helper()

	remote := &fakeRemote{payload: buildWorkbook(t, sheets)}
	f := NewFacade(remote, logger.New(logger.LevelError))

	p := graph.DefaultPolicy()
	p.Sleep = func(time.Duration) {}
	f.SetPolicy(p)
	return f, remote
}

func baseSheet() sheetSpec {
	return sheetSpec{SheetBase, [][]string{
		{"Gerência", "Cenário", ColRevision, "26/01/2026"},
		{"Norte", "Moderado", "Semana 1", "100"},
		{"Sul", "Moderado", "Semana 1", "200"},
		{"Norte", "Moderado", "Semana 2", "110"},
	}}
}

func TestReadSheetReturnsParsedTable(t *testing.T) {
	f, _ := newTestFacade(t, []sheetSpec{baseSheet()})

	res, err := f.ReadSheet(SheetBase, 0)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 3, res.Table.Nrow())
}

func TestReadSheetAbsentYieldsDefaultColumns(t *testing.T) {
	f, _ := newTestFacade(t, []sheetSpec{baseSheet()})

	res, err := f.ReadSheet(SheetHistory, 0)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 0, res.Table.Nrow())
	assert.Equal(t, HistoryColumns, res.Table.Names())
}

func TestWriteSheetForcesFreshFetch(t *testing.T) {
	f, remote := newTestFacade(t, []sheetSpec{baseSheet()})

	ctrl := FrameFromRecords([][]string{
		{ColActiveWeek, ColPermittedMonths},
		{"Semana 2", ""},
	})
	require.NoError(t, f.WriteSheet(SheetControl, ctrl, 0))

	assert.Equal(t, 1, remote.forcedFetches, "a write must not trust cached bytes")
	assert.Equal(t, 1, remote.uploads)

	res, err := f.ReadSheet(SheetControl, 0)
	require.NoError(t, err)
	assert.Equal(t, "Semana 2", res.Table.Records()[1][0])
}

func TestWriteSheetRetriesLockedUpload(t *testing.T) {
	f, remote := newTestFacade(t, []sheetSpec{baseSheet()})
	remote.uploadFailures = 2

	ctrl := FrameFromRecords([][]string{
		{ColActiveWeek, ColPermittedMonths},
		{"Semana 2", ""},
	})
	require.NoError(t, f.WriteSheet(SheetControl, ctrl, 0))
	assert.Equal(t, 1, remote.uploads)
	assert.Equal(t, 3, remote.forcedFetches, "each retry re-fetches the document")
}

func TestWriteSheetExhaustedAttemptsIsSaveFailed(t *testing.T) {
	f, remote := newTestFacade(t, []sheetSpec{baseSheet()})
	remote.uploadFailures = 100

	ctrl := FrameFromRecords([][]string{
		{ColActiveWeek, ColPermittedMonths},
		{"Semana 2", ""},
	})
	err := f.WriteSheet(SheetControl, ctrl, 0)

	var sf *graph.SaveFailedError
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 5, sf.Attempts)
	assert.Equal(t, 0, remote.uploads)
}

func TestAppendUnionsColumns(t *testing.T) {
	f, _ := newTestFacade(t, []sheetSpec{
		baseSheet(),
		{SheetHistory, [][]string{
			{"Semana", "Mês", "Novo Valor"},
			{"Semana 1", "2026-01-26", "100"},
		}},
	})

	extra := FrameFromRecords([][]string{
		{"Semana", "Mês", "Novo Valor", "Usuário"},
		{"Semana 2", "2026-02-01", "150", "maria"},
	})
	require.NoError(t, f.Append(SheetHistory, extra, 0))

	res, err := f.ReadSheet(SheetHistory, 0)
	require.NoError(t, err)
	records := res.Table.Records()
	assert.Equal(t, []string{"Semana", "Mês", "Novo Valor", "Usuário"}, records[0])
	require.Len(t, records, 3)
	assert.Equal(t, "", records[1][3], "pre-existing rows get empty cells for new columns")
	assert.Equal(t, "maria", records[2][3])
}

func TestAppendToAbsentSheetCreatesIt(t *testing.T) {
	f, _ := newTestFacade(t, []sheetSpec{baseSheet()})

	rows := FrameFromRecords([][]string{
		HistoryColumns,
		{"Semana 1", "2026-01-26", "Norte", "RECEITA MAO DE OBRA", "100", "150", "2026-08-28 10:00:00", "maria"},
	})
	require.NoError(t, f.Append(SheetHistory, rows, 0))

	res, err := f.ReadSheet(SheetHistory, 0)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 1, res.Table.Nrow())
}

func TestWriteRevisionRowsReplacesOnlyThatRevision(t *testing.T) {
	f, _ := newTestFacade(t, []sheetSpec{baseSheet()})

	incoming := FrameFromRecords([][]string{
		{"Gerência", "Cenário", ColRevision, "26/01/2026"},
		{"Norte", "Moderado", "Semana 2", "999"},
		{"Leste", "Moderado", "Semana 2", "50"},
	})
	require.NoError(t, f.WriteRevisionRows(incoming, 0))

	res, err := f.ReadSheet(SheetBase, 0)
	require.NoError(t, err)
	records := res.Table.Records()

	byRevision := map[string][][]string{}
	rev := -1
	for i, n := range records[0] {
		if n == ColRevision {
			rev = i
		}
	}
	require.NotEqual(t, -1, rev)
	for _, row := range records[1:] {
		byRevision[row[rev]] = append(byRevision[row[rev]], row)
	}

	assert.Len(t, byRevision["Semana 1"], 2, "other revisions survive untouched")
	require.Len(t, byRevision["Semana 2"], 2)
	assert.Equal(t, "999", byRevision["Semana 2"][0][3])
	assert.Equal(t, "Leste", byRevision["Semana 2"][1][0])
}

func TestWriteRevisionRowsIntoEmptyBase(t *testing.T) {
	f, _ := newTestFacade(t, []sheetSpec{
		{SheetControl, [][]string{{ColActiveWeek, ColPermittedMonths}}},
	})

	incoming := FrameFromRecords([][]string{
		{"Gerência", "Cenário", ColRevision, "26/01/2026"},
		{"Norte", "Moderado", "Semana 1", "100"},
	})
	require.NoError(t, f.WriteRevisionRows(incoming, 0))

	res, err := f.ReadSheet(SheetBase, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Table.Nrow())
}
