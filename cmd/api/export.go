package main

import (
	"encoding/csv"
	"net/http"

	"golang.org/x/text/encoding/charmap"
)

// handleExportCSV streams the filtered base rows as a semicolon-separated
// CSV in Windows-1252, the encoding Excel on the analysts' machines opens
// with accents intact.
func (app *application) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	const component = "HTTP"

	sess := sessionFrom(r)
	df, err := app.forecast.BaseRows(filterFromQuery(r), sess.token.Get())
	if err != nil {
		app.serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=windows-1252")
	w.Header().Set("Content-Disposition", `attachment; filename="previsao.csv"`)

	cw := csv.NewWriter(charmap.Windows1252.NewEncoder().Writer(w))
	cw.Comma = ';'
	for _, row := range df.Records() {
		if err := cw.Write(row); err != nil {
			app.logger.Error(component, "CSV export aborted: %v", err)
			return
		}
	}
	cw.Flush()
}
