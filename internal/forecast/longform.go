package forecast

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/rota27/refinado/internal/version"
	"github.com/rota27/refinado/internal/workbook"
)

// ToLong melts a wide base frame (one column per month) into the long form
// stored on the Refinado sheet: one row per (identifier, month) pair with
// Mes/Valor/Semana columns appended.
func ToLong(df dataframe.DataFrame, week string) (dataframe.DataFrame, error) {
	records := df.Records()
	header := records[0]
	cs := workbook.Classify(header)
	if len(cs.Months) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("no month columns found to melt")
	}

	var dimIdx []int
	for _, d := range cs.Dimensions {
		dimIdx = append(dimIdx, colIndex(header, d))
	}

	outHeader := append(append([]string{}, cs.Dimensions...), "Mes", "Valor", "Semana")
	out := [][]string{outHeader}
	for _, month := range cs.Months {
		mi := colIndex(header, month)
		key, _ := workbook.MonthKey(month)
		for _, row := range records[1:] {
			melted := make([]string, 0, len(outHeader))
			for _, di := range dimIdx {
				melted = append(melted, row[di])
			}
			melted = append(melted, key, row[mi], week)
			out = append(out, melted)
		}
	}
	return workbook.FrameFromRecords(out), nil
}

// PublishRefined rewrites the Refinado sheet with the long form of the
// active week's default-scenario rows.
func (s *Service) PublishRefined(tok *version.Token) (int, error) {
	const component = "Forecast"

	active, err := s.ActiveRevision(tok.Get())
	if err != nil {
		return 0, err
	}
	df, err := s.BaseRows(Filter{
		Revisions: []string{active.Week},
		Scenario:  DefaultScenario,
	}, tok.Get())
	if err != nil {
		return 0, err
	}
	long, err := ToLong(df, active.Week)
	if err != nil {
		return 0, err
	}
	if err := s.sheets.WriteSheet(workbook.SheetRefined, long, tok.Get()); err != nil {
		return 0, err
	}
	tok.Bump()

	rows := long.Nrow()
	s.log.Info(component, "Refined sheet published: week=%s rows=%d", active.Week, rows)
	return rows, nil
}
