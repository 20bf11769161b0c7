package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/rota27/refinado/internal/logger"
	"github.com/rota27/refinado/internal/store"
	"github.com/rota27/refinado/internal/version"
	"github.com/rota27/refinado/internal/workbook"
)

var (
	ErrNoActiveRevision = errors.New("no active revision configured")
	ErrWeekExists       = errors.New("week already exists in the base sheet")
	ErrRevisionNotFound = errors.New("source revision not found")
	ErrRowNotFound      = errors.New("no base row matches the edited cell")
	ErrMonthLocked      = errors.New("month is not open for editing")
	ErrInvalidMonth     = errors.New("month does not parse as a date")
)

// SheetStore is the slice of the workbook facade the service consumes.
type SheetStore interface {
	ReadSheet(name string, versionToken int64) (workbook.SheetResult, error)
	ReadAll(versionToken int64) (map[string]dataframe.DataFrame, error)
	WriteSheet(name string, table dataframe.DataFrame, versionToken int64) error
	Append(name string, table dataframe.DataFrame, versionToken int64) error
	WriteRevisionRows(table dataframe.DataFrame, versionToken int64) error
}

// Service implements the business operations over the workbook: active-week
// resolution, week rollover, cell edits with audit trail, and the read views.
type Service struct {
	sheets SheetStore
	audit  *store.Storage
	log    *logger.Logger
	now    func() time.Time
}

// NewService wires the service. audit may be nil; the database mirror is
// optional and the history sheet stays the audit store of record.
func NewService(sheets SheetStore, audit *store.Storage, appLogger *logger.Logger) *Service {
	return &Service{
		sheets: sheets,
		audit:  audit,
		log:    appLogger,
		now:    time.Now,
	}
}

func colIndex(header []string, name string) int {
	for i, n := range header {
		if n == name {
			return i
		}
	}
	return -1
}

// revisionLabels collects the distinct revision labels of a base table,
// sorted ascending. Sorting makes the last element the most recent week
// under the "Semana N" naming the admins use.
func revisionLabels(base dataframe.DataFrame) []string {
	records := base.Records()
	rev := colIndex(records[0], workbook.ColRevision)
	if rev == -1 {
		return nil
	}
	seen := make(map[string]bool)
	var revisions []string
	for _, row := range records[1:] {
		v := strings.TrimSpace(row[rev])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		revisions = append(revisions, v)
	}
	sort.Strings(revisions)
	return revisions
}

// Revisions lists the revision labels present in the base sheet.
func (s *Service) Revisions(versionToken int64) ([]string, error) {
	base, err := s.sheets.ReadSheet(workbook.SheetBase, versionToken)
	if err != nil {
		return nil, err
	}
	return revisionLabels(base.Table), nil
}

func firstControlRow(ctrl dataframe.DataFrame) (week, monthsCell string) {
	records := ctrl.Records()
	wi := colIndex(records[0], workbook.ColActiveWeek)
	mi := colIndex(records[0], workbook.ColPermittedMonths)
	for _, row := range records[1:] {
		if week == "" && wi != -1 && strings.TrimSpace(row[wi]) != "" {
			week = strings.TrimSpace(row[wi])
		}
		if monthsCell == "" && mi != -1 && strings.TrimSpace(row[mi]) != "" {
			monthsCell = strings.TrimSpace(row[mi])
		}
		if week != "" && monthsCell != "" {
			break
		}
	}
	return week, monthsCell
}

// ActiveRevision resolves the control record. When the recorded week is
// missing from the base sheet the service self-heals: it falls back to the
// most recent revision present and rewrites the control record to match.
// Control and base are checked against one document snapshot.
func (s *Service) ActiveRevision(versionToken int64) (ActiveWeek, error) {
	const component = "Forecast"

	sheets, err := s.sheets.ReadAll(versionToken)
	if err != nil {
		return ActiveWeek{}, err
	}
	ctrl, ok := sheets[workbook.SheetControl]
	if !ok {
		ctrl = workbook.AbsentSheet(workbook.SheetControl).Table
	}
	week, monthsCell := firstControlRow(ctrl)
	months := workbook.ParsePermittedMonths(monthsCell)

	var revisions []string
	if base, ok := sheets[workbook.SheetBase]; ok {
		revisions = revisionLabels(base)
	}
	for _, r := range revisions {
		if r == week {
			return ActiveWeek{Week: week, PermittedMonths: months}, nil
		}
	}

	if len(revisions) == 0 {
		return ActiveWeek{}, ErrNoActiveRevision
	}

	fallback := revisions[len(revisions)-1]
	s.log.Warn(component, "Control record names revision %q absent from base; healing to %q", week, fallback)
	if err := s.saveControl(fallback, months, versionToken); err != nil {
		return ActiveWeek{}, fmt.Errorf("rewrite control record: %w", err)
	}
	return ActiveWeek{Week: fallback, PermittedMonths: months}, nil
}

func (s *Service) saveControl(week string, months []string, versionToken int64) error {
	ctrl := dataframe.New(
		series.New([]string{week}, series.String, workbook.ColActiveWeek),
		series.New([]string{workbook.FormatPermittedMonths(months)}, series.String, workbook.ColPermittedMonths),
	)
	return s.sheets.WriteSheet(workbook.SheetControl, ctrl, versionToken)
}

// SetPermittedMonths replaces the unlocked month set for the active week and
// returns the normalized list actually stored.
func (s *Service) SetPermittedMonths(months []string, tok *version.Token) ([]string, error) {
	active, err := s.ActiveRevision(tok.Get())
	if err != nil {
		return nil, err
	}
	normalized := workbook.ParsePermittedMonths(strings.Join(months, ";"))
	if err := s.saveControl(active.Week, normalized, tok.Get()); err != nil {
		return nil, err
	}
	tok.Bump()
	return normalized, nil
}

// Rollover creates newWeek by duplicating every row of sourceRevision and
// makes it the active week. Permitted months are cleared until the admin
// unlocks the new cycle.
func (s *Service) Rollover(sourceRevision, newWeek string, tok *version.Token) (int, error) {
	const component = "Forecast"

	if strings.TrimSpace(newWeek) == "" {
		return 0, fmt.Errorf("new week name is empty")
	}

	base, err := s.sheets.ReadSheet(workbook.SheetBase, tok.Get())
	if err != nil {
		return 0, err
	}
	records := base.Table.Records()
	rev := colIndex(records[0], workbook.ColRevision)
	if rev == -1 {
		return 0, ErrRevisionNotFound
	}

	duplicated := [][]string{records[0]}
	for _, row := range records[1:] {
		if row[rev] == newWeek {
			return 0, fmt.Errorf("%w: %s", ErrWeekExists, newWeek)
		}
		if row[rev] == sourceRevision {
			dup := append([]string{}, row...)
			dup[rev] = newWeek
			duplicated = append(duplicated, dup)
		}
	}
	if len(duplicated) == 1 {
		return 0, fmt.Errorf("%w: %s", ErrRevisionNotFound, sourceRevision)
	}

	if err := s.sheets.WriteRevisionRows(workbook.FrameFromRecords(duplicated), tok.Get()); err != nil {
		return 0, err
	}
	if err := s.saveControl(newWeek, nil, tok.Get()); err != nil {
		return 0, err
	}
	tok.Bump()

	rows := len(duplicated) - 1
	s.log.Info(component, "Week rollover: source=%s new=%s rows=%d", sourceRevision, newWeek, rows)
	return rows, nil
}

// BaseRows returns the base sheet narrowed by the filter, preserving the
// sheet's column order.
func (s *Service) BaseRows(filter Filter, versionToken int64) (dataframe.DataFrame, error) {
	base, err := s.sheets.ReadSheet(workbook.SheetBase, versionToken)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	records := base.Table.Records()
	header := records[0]

	idx := map[string]int{}
	for _, name := range workbook.BaseDimensions {
		idx[name] = colIndex(header, name)
	}

	revSet := map[string]bool{}
	for _, r := range filter.Revisions {
		revSet[r] = true
	}

	get := func(row []string, name string) string {
		i := idx[name]
		if i == -1 {
			return ""
		}
		return row[i]
	}

	kept := [][]string{header}
	for _, row := range records[1:] {
		if len(revSet) > 0 && !revSet[get(row, workbook.ColRevision)] {
			continue
		}
		if filter.Scenario != "" && !strings.EqualFold(get(row, "Cenário"), filter.Scenario) {
			continue
		}
		if filter.Classification != "" && get(row, "Classificação") != filter.Classification {
			continue
		}
		if filter.Management != "" && get(row, "Gerência") != filter.Management {
			continue
		}
		if len(filter.Complexes) > 0 && !containsFold(filter.Complexes, get(row, "Complexo")) {
			continue
		}
		if filter.Area != "" && get(row, "Área") != filter.Area {
			continue
		}
		if len(filter.Analyses) > 0 && !containsFold(filter.Analyses, get(row, "Análise de emissão")) {
			continue
		}
		kept = append(kept, row)
	}
	return workbook.FrameFromRecords(kept), nil
}

// EditorGrid is what the editing screen renders: the active week's moderado
// rows restricted to the editable analyses, with month columns trimmed to
// the permitted set.
type EditorGrid struct {
	Week            string     `json:"semana"`
	PermittedMonths []string   `json:"meses_permitidos"`
	Columns         []string   `json:"colunas"`
	Rows            [][]string `json:"linhas"`
}

// Editor assembles the editable grid for the active week.
func (s *Service) Editor(versionToken int64) (EditorGrid, error) {
	active, err := s.ActiveRevision(versionToken)
	if err != nil {
		return EditorGrid{}, err
	}

	df, err := s.BaseRows(Filter{
		Revisions: []string{active.Week},
		Scenario:  DefaultScenario,
		Analyses:  AnalysisValues,
	}, versionToken)
	if err != nil {
		return EditorGrid{}, err
	}

	records := df.Records()
	header := records[0]

	permitted := map[string]bool{}
	for _, m := range active.PermittedMonths {
		permitted[m] = true
	}

	var columns []string
	var keepIdx []int
	for i, name := range header {
		if key, isMonth := workbook.MonthKey(name); isMonth {
			if len(permitted) > 0 && !permitted[key] {
				continue
			}
		} else if !containsFold(EditorDimensions, name) {
			continue
		}
		columns = append(columns, name)
		keepIdx = append(keepIdx, i)
	}

	rows := make([][]string, 0, len(records)-1)
	for _, row := range records[1:] {
		trimmed := make([]string, len(keepIdx))
		for j, i := range keepIdx {
			trimmed[j] = row[i]
		}
		rows = append(rows, trimmed)
	}

	return EditorGrid{
		Week:            active.Week,
		PermittedMonths: active.PermittedMonths,
		Columns:         columns,
		Rows:            rows,
	}, nil
}

// ApplyEdits validates and persists a batch of cell edits against the active
// week, appends the audit records to the history sheet and bumps the session
// token so the next read bypasses the byte cache.
//
// A failed base save leaves the remote workbook untouched and returns the
// error; the caller keeps the submitted edits and may retry.
func (s *Service) ApplyEdits(ctx context.Context, tok *version.Token, actor string, edits []CellEdit) ([]EditRecord, error) {
	const component = "Forecast"

	if len(edits) == 0 {
		return nil, nil
	}

	active, err := s.ActiveRevision(tok.Get())
	if err != nil {
		return nil, err
	}
	base, err := s.sheets.ReadSheet(workbook.SheetBase, tok.Get())
	if err != nil {
		return nil, err
	}
	if !base.Found {
		return nil, ErrNoActiveRevision
	}

	records := base.Table.Records()
	header := records[0]
	rev := colIndex(header, workbook.ColRevision)
	scenario := colIndex(header, "Cenário")
	if rev == -1 {
		return nil, fmt.Errorf("base sheet is missing the %q column", workbook.ColRevision)
	}

	monthCols := map[string]int{}
	for i, name := range header {
		if key, ok := workbook.MonthKey(name); ok {
			monthCols[key] = i
		}
	}
	permitted := map[string]bool{}
	for _, m := range active.PermittedMonths {
		permitted[m] = true
	}

	dimIdx := map[string]int{}
	for _, name := range workbook.BaseDimensions {
		dimIdx[name] = colIndex(header, name)
	}
	matches := func(row []string, key RowKey) bool {
		get := func(name string) string {
			i := dimIdx[name]
			if i == -1 {
				return ""
			}
			return row[i]
		}
		return get("Classificação") == key.Classification &&
			get("Gerência") == key.Management &&
			get("Complexo") == key.Complex &&
			get("Área") == key.Area &&
			get("Análise de emissão") == key.Analysis
	}

	applied := make([]EditRecord, 0, len(edits))
	for _, edit := range edits {
		key, ok := workbook.MonthKey(edit.Month)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMonth, edit.Month)
		}
		if len(permitted) > 0 && !permitted[key] {
			return nil, fmt.Errorf("%w: %s", ErrMonthLocked, key)
		}
		ci, ok := monthCols[key]
		if !ok {
			return nil, fmt.Errorf("%w: no column for %s", ErrInvalidMonth, key)
		}

		found := false
		for _, row := range records[1:] {
			if row[rev] != active.Week {
				continue
			}
			if scenario != -1 && !strings.EqualFold(row[scenario], DefaultScenario) {
				continue
			}
			if !matches(row, edit.RowKey) {
				continue
			}
			old := parseNumber(row[ci])
			row[ci] = formatNumber(edit.NewValue)
			applied = append(applied, EditRecord{
				Week:      active.Week,
				Month:     key,
				RowKey:    edit.RowKey,
				OldValue:  old,
				NewValue:  edit.NewValue,
				Timestamp: s.now(),
				Actor:     actor,
			})
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("%w: %s / %s / %s", ErrRowNotFound, edit.Management, edit.Analysis, key)
		}
	}

	revisionRows := [][]string{header}
	for _, row := range records[1:] {
		if row[rev] == active.Week {
			revisionRows = append(revisionRows, row)
		}
	}
	if err := s.sheets.WriteRevisionRows(workbook.FrameFromRecords(revisionRows), tok.Get()); err != nil {
		return nil, err
	}
	tok.Bump()

	s.mirrorAudit(ctx, applied)

	if err := s.sheets.Append(workbook.SheetHistory, historyFrame(applied), tok.Get()); err != nil {
		// The base rows are already saved; report the broken audit trail
		// without pretending the edits were lost.
		s.log.Error(component, "Edits saved but history append failed: count=%d error=%v", len(applied), err)
		return applied, fmt.Errorf("edits saved, history append failed: %w", err)
	}

	s.log.Info(component, "Edits applied: week=%s count=%d actor=%s", active.Week, len(applied), actor)
	return applied, nil
}

func (s *Service) mirrorAudit(ctx context.Context, records []EditRecord) {
	const component = "Forecast"
	if s.audit == nil {
		return
	}
	for _, r := range records {
		entry := &store.AuditEntry{
			Week:       r.Week,
			Month:      r.Month,
			Management: r.RowKey.Management,
			Analysis:   r.RowKey.Analysis,
			OldValue:   r.OldValue,
			NewValue:   r.NewValue,
			Actor:      r.Actor,
			EditedAt:   r.Timestamp,
		}
		if err := s.audit.Audit.InsertAuditEntry(ctx, entry); err != nil {
			s.log.Warn(component, "Audit mirror insert failed: week=%s month=%s error=%v", r.Week, r.Month, err)
		}
	}
}

// historyFrame converts edit records into history sheet rows.
func historyFrame(records []EditRecord) dataframe.DataFrame {
	rows := [][]string{workbook.HistoryColumns}
	for _, r := range records {
		rows = append(rows, []string{
			r.Week,
			r.Month,
			r.RowKey.Management,
			r.RowKey.Analysis,
			formatNumber(r.OldValue),
			formatNumber(r.NewValue),
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Actor,
		})
	}
	return workbook.FrameFromRecords(rows)
}

// HistoryTail returns the most recent audit rows from the history sheet.
func (s *Service) HistoryTail(limit int, versionToken int64) ([]map[string]string, error) {
	hist, err := s.sheets.ReadSheet(workbook.SheetHistory, versionToken)
	if err != nil {
		return nil, err
	}
	records := hist.Table.Records()
	header := records[0]
	rows := records[1:]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				m[name] = row[i]
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// Users loads the Usuarios sheet, tolerating first-run absence.
func (s *Service) Users(versionToken int64) ([]User, error) {
	res, err := s.sheets.ReadSheet(workbook.SheetUsers, versionToken)
	if err != nil {
		return nil, err
	}
	records := res.Table.Records()
	header := records[0]
	un := colIndex(header, "username")
	role := colIndex(header, "role")
	created := colIndex(header, "created_at")

	users := make([]User, 0, len(records)-1)
	for _, row := range records[1:] {
		u := User{}
		if un != -1 {
			u.Username = row[un]
		}
		if role != -1 {
			u.Role = row[role]
		}
		if created != -1 {
			u.CreatedAt = row[created]
		}
		users = append(users, u)
	}
	return users, nil
}
