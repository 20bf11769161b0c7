package workbook

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/rota27/refinado/internal/graph"
	"github.com/rota27/refinado/internal/logger"
)

// Sheet names fixed by the workbook layout.
const (
	SheetBase    = "Base de Dados"
	SheetControl = "Controle"
	SheetHistory = "Histórico"
	SheetRefined = "Refinado"
	SheetUsers   = "Usuarios"
)

// Control sheet columns.
const (
	ColActiveWeek      = "Semana Ativa"
	ColPermittedMonths = "Meses Permitidos"
)

// ColRevision keys the merge-by-revision write path on the base sheet.
const ColRevision = "Revisão"

// BaseDimensions are the fixed identifier columns of the base sheet; every
// other base column whose name parses as a date is a forecast month.
var BaseDimensions = []string{
	"Classificação",
	"Gerência",
	"Complexo",
	"Área",
	"Análise de emissão",
	"Cenário",
	ColRevision,
}

// HistoryColumns is the audit-trail record layout.
var HistoryColumns = []string{
	"Semana",
	"Mês",
	"Gerência",
	"Análise de emissão",
	"Valor Anterior",
	"Novo Valor",
	"DataHora",
	"Usuário",
}

// defaultColumns is the documented first-run shape of each sheet: reading an
// absent sheet yields an empty table with these columns instead of an error.
var defaultColumns = map[string][]string{
	SheetBase:    BaseDimensions,
	SheetControl: {ColActiveWeek, ColPermittedMonths},
	SheetHistory: HistoryColumns,
	SheetRefined: append(append([]string{}, BaseDimensions...), "Mes", "Valor", "Semana"),
	SheetUsers:   {"username", "password_hash", "role", "created_at"},
}

// RemoteStore is the slice of the document client the facade needs.
type RemoteStore interface {
	FetchBytes(versionToken int64, force bool) ([]byte, error)
	Upload(payload []byte) error
}

// SheetResult tags whether the sheet existed. Absence is a normal first-run
// state, not an error: Table then carries the sheet's default columns.
type SheetResult struct {
	Found bool
	Table dataframe.DataFrame
}

// Facade offers sheet-level read and patch operations on top of the remote
// document client. Writes always refetch the full document so concurrent
// edits to *other* sheets survive the patch.
type Facade struct {
	remote RemoteStore
	log    *logger.Logger
	policy graph.Policy
}

func NewFacade(remote RemoteStore, appLogger *logger.Logger) *Facade {
	return &Facade{
		remote: remote,
		log:    appLogger,
		policy: graph.DefaultPolicy(),
	}
}

// SetPolicy swaps the write retry policy.
func (f *Facade) SetPolicy(p graph.Policy) { f.policy = p }

// AbsentSheet returns the empty default table for a sheet name.
func AbsentSheet(name string) SheetResult {
	cols, ok := defaultColumns[name]
	if !ok {
		return SheetResult{}
	}
	return SheetResult{Table: emptyFrame(cols)}
}

// ReadSheet returns one sheet parsed from the (possibly cached) workbook
// bytes.
func (f *Facade) ReadSheet(name string, versionToken int64) (SheetResult, error) {
	payload, err := f.remote.FetchBytes(versionToken, false)
	if err != nil {
		return SheetResult{}, err
	}
	sheets, err := ParseWorkbook(payload)
	if err != nil {
		return SheetResult{}, err
	}
	df, ok := sheets[name]
	if !ok {
		return AbsentSheet(name), nil
	}
	return SheetResult{Found: true, Table: df}, nil
}

// ReadAll returns every sheet keyed by name. Used when multiple sheets have
// to be inspected against one consistent snapshot.
func (f *Facade) ReadAll(versionToken int64) (map[string]dataframe.DataFrame, error) {
	payload, err := f.remote.FetchBytes(versionToken, false)
	if err != nil {
		return nil, err
	}
	return ParseWorkbook(payload)
}

// WriteSheet patches one sheet and re-uploads the document, leaving every
// other sheet untouched. The fetch bypasses the read cache: a write must see
// the latest remote state.
func (f *Facade) WriteSheet(name string, table dataframe.DataFrame, versionToken int64) error {
	const component = "SheetWriter"

	if table.Error() != nil {
		return fmt.Errorf("invalid table for sheet %q: %w", name, table.Error())
	}

	return f.policy.Run("write sheet "+name, func() error {
		payload, err := f.remote.FetchBytes(versionToken, true)
		if err != nil {
			return err
		}
		patched, err := PatchWorkbook(payload, name, table)
		if err != nil {
			return err
		}
		if err := f.remote.Upload(patched); err != nil {
			return err
		}
		f.log.Info(component, "Sheet saved: name=%s rows=%d", name, table.Nrow())
		return nil
	})
}

// Append concatenates new rows onto a sheet, tolerating absence and keeping
// the union of both column sets (missing values stay empty).
func (f *Facade) Append(name string, table dataframe.DataFrame, versionToken int64) error {
	existing, err := f.ReadSheet(name, versionToken)
	if err != nil {
		return err
	}
	merged := existing.Table
	if merged.Ncol() == 0 {
		merged = table
	} else {
		merged = concatUnion(merged, table)
	}
	if merged.Error() != nil {
		return fmt.Errorf("append to sheet %q: %w", name, merged.Error())
	}
	return f.WriteSheet(name, merged, versionToken)
}

// WriteRevisionRows merges rows into the base sheet by revision: existing
// rows whose revision appears in the incoming table are replaced, rows of
// every other revision stay untouched. Callers can therefore treat one
// revision's data as a complete overwrite regardless of total table size.
func (f *Facade) WriteRevisionRows(table dataframe.DataFrame, versionToken int64) error {
	const component = "SheetWriter"

	existing, err := f.ReadSheet(SheetBase, versionToken)
	if err != nil {
		return err
	}

	incoming := revisionSet(table)
	kept := filterRowsOut(existing.Table, ColRevision, incoming)
	merged := concatUnion(kept, table)
	if kept.Ncol() == 0 {
		merged = table
	}
	if merged.Error() != nil {
		return fmt.Errorf("merge revisions into base sheet: %w", merged.Error())
	}

	f.log.Debug(component, "Merging revisions: incoming=%d keptRows=%d totalRows=%d", len(incoming), kept.Nrow(), merged.Nrow())
	return f.WriteSheet(SheetBase, merged, versionToken)
}

// revisionSet collects the distinct revision labels of a table.
func revisionSet(df dataframe.DataFrame) map[string]bool {
	set := make(map[string]bool)
	names := df.Names()
	col := -1
	for i, n := range names {
		if n == ColRevision {
			col = i
		}
	}
	if col == -1 {
		return set
	}
	records := df.Records()
	for _, row := range records[1:] {
		set[row[col]] = true
	}
	return set
}

// filterRowsOut drops every row whose key column value is in the exclusion
// set, preserving row order and the textual cell values.
func filterRowsOut(df dataframe.DataFrame, keyCol string, exclude map[string]bool) dataframe.DataFrame {
	if df.Ncol() == 0 {
		return df
	}
	records := df.Records()
	header := records[0]
	col := -1
	for i, n := range header {
		if n == keyCol {
			col = i
		}
	}
	if col == -1 {
		return df
	}

	kept := [][]string{header}
	for _, row := range records[1:] {
		if !exclude[row[col]] {
			kept = append(kept, row)
		}
	}
	if len(kept) == 1 {
		return emptyFrame(header)
	}
	return loadRecords(kept)
}

// concatUnion stacks b under a over the union of their columns, filling
// cells absent from either side with empty strings.
func concatUnion(a, b dataframe.DataFrame) dataframe.DataFrame {
	columns := append([]string{}, a.Names()...)
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}
	for _, c := range b.Names() {
		if !seen[c] {
			columns = append(columns, c)
			seen[c] = true
		}
	}

	out := [][]string{columns}
	for _, df := range []dataframe.DataFrame{a, b} {
		if df.Ncol() == 0 {
			continue
		}
		records := df.Records()
		index := make(map[string]int, len(records[0]))
		for i, n := range records[0] {
			index[n] = i
		}
		for _, row := range records[1:] {
			aligned := make([]string, len(columns))
			for j, col := range columns {
				if i, ok := index[col]; ok && i < len(row) {
					aligned[j] = row[i]
				}
			}
			out = append(out, aligned)
		}
	}
	if len(out) == 1 {
		return emptyFrame(columns)
	}
	return loadRecords(out)
}
