package forecast

import (
	"github.com/go-gota/gota/dataframe"
	"github.com/rota27/refinado/internal/workbook"
)

// sumByAnalysis adds every month-column value of the rows whose analysis
// category is in the given set.
func sumByAnalysis(records [][]string, analysisCol int, monthIdx []int, analyses []string) float64 {
	total := 0.0
	for _, row := range records[1:] {
		if analysisCol == -1 || !containsFold(analyses, row[analysisCol]) {
			continue
		}
		for _, i := range monthIdx {
			if i < len(row) {
				total += parseNumber(row[i])
			}
		}
	}
	return total
}

// ComputeIndicators derives the summary block from a filtered frame:
// gross revenue over the revenue analyses, taxes at the fixed rate over
// gross, total cost over the cost analyses, and gross profit as the
// difference. months restricts which month columns count; empty means all.
func ComputeIndicators(df dataframe.DataFrame, months []string) Indicators {
	records := df.Records()
	header := records[0]
	analysisCol := colIndex(header, "Análise de emissão")

	wanted := map[string]bool{}
	for _, m := range months {
		if key, ok := workbook.MonthKey(m); ok {
			wanted[key] = true
		}
	}

	var monthIdx []int
	for i, name := range header {
		key, ok := workbook.MonthKey(name)
		if !ok {
			continue
		}
		if len(wanted) > 0 && !wanted[key] {
			continue
		}
		monthIdx = append(monthIdx, i)
	}

	gross := sumByAnalysis(records, analysisCol, monthIdx, revenueAnalyses)
	cost := sumByAnalysis(records, analysisCol, monthIdx, costAnalyses)
	taxes := gross * taxRate

	return Indicators{
		GrossRevenue: gross,
		TaxesOnGross: taxes,
		TotalCost:    cost,
		GrossProfit:  gross - taxes - cost,
	}
}
