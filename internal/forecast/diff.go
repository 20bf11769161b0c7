package forecast

import "github.com/rota27/refinado/internal/workbook"

// DiffGrids scans two renderings of the editor grid (same columns, same row
// order) and returns one CellEdit per changed month cell. Dimension cells
// are identity, not data; a mismatch there means the grids are not
// comparable and the row is skipped.
func DiffGrids(columns []string, before, after [][]string) []CellEdit {
	var monthIdx []int
	dimIdx := map[string]int{}
	for i, name := range columns {
		if _, ok := workbook.MonthKey(name); ok {
			monthIdx = append(monthIdx, i)
		} else {
			dimIdx[name] = i
		}
	}

	keyOf := func(row []string) RowKey {
		get := func(name string) string {
			if i, ok := dimIdx[name]; ok && i < len(row) {
				return row[i]
			}
			return ""
		}
		return RowKey{
			Classification: get("Classificação"),
			Management:     get("Gerência"),
			Complex:        get("Complexo"),
			Area:           get("Área"),
			Analysis:       get("Análise de emissão"),
		}
	}

	var edits []CellEdit
	for r := 0; r < len(before) && r < len(after); r++ {
		if keyOf(before[r]) != keyOf(after[r]) {
			continue
		}
		for _, i := range monthIdx {
			if i >= len(before[r]) || i >= len(after[r]) {
				continue
			}
			if before[r][i] == after[r][i] {
				continue
			}
			oldV := parseNumber(before[r][i])
			newV := parseNumber(after[r][i])
			if oldV == newV {
				continue
			}
			edits = append(edits, CellEdit{
				RowKey:   keyOf(after[r]),
				Month:    columns[i],
				NewValue: newV,
			})
		}
	}
	return edits
}
