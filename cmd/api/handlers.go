package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/rota27/refinado/internal/forecast"
	"github.com/rota27/refinado/internal/graph"
	"github.com/rota27/refinado/internal/response"
)

const apiVersion = "1.0.0"

// grid is the JSON shape of a tabular read: header plus string rows, the
// same orientation the sheets have.
type grid struct {
	Columns []string   `json:"colunas"`
	Rows    [][]string `json:"linhas"`
}

func gridFromFrame(df dataframe.DataFrame) grid {
	records := df.Records()
	return grid{Columns: records[0], Rows: records[1:]}
}

// serviceError maps domain and upstream errors onto HTTP statuses.
func (app *application) serviceError(w http.ResponseWriter, err error) {
	const component = "HTTP"

	var saveErr *graph.SaveFailedError
	var authErr *graph.AuthError
	var notFound *graph.NotFoundError

	switch {
	case errors.Is(err, forecast.ErrInvalidMonth):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, forecast.ErrMonthLocked),
		errors.Is(err, forecast.ErrRowNotFound):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, forecast.ErrWeekExists):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, forecast.ErrNoActiveRevision),
		errors.Is(err, forecast.ErrRevisionNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &saveErr):
		app.logger.Error(component, "Upstream save exhausted retries: %v", err)
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &authErr):
		app.logger.Error(component, "Upstream auth failure: %v", err)
		writeJSONError(w, http.StatusBadGateway, "document service authentication failed")
	default:
		app.logger.Error(component, "Unhandled error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	_, etag := app.cache.Payload()
	data := map[string]string{
		"status":       "ok",
		"version":      apiVersion,
		"cached_etag":  etag,
		"last_refresh": app.cache.LastModified(),
	}
	writeJSON(w, http.StatusOK, response.OK(data, ""))
}

func (app *application) handleGetActiveWeek(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	active, err := app.forecast.ActiveRevision(sess.token.Get())
	if err != nil {
		app.serviceError(w, err)
		return
	}

	revisions, err := app.forecast.Revisions(sess.token.Get())
	if err != nil {
		app.serviceError(w, err)
		return
	}

	data := struct {
		forecast.ActiveWeek
		Revisions []string `json:"revisoes"`
	}{active, revisions}
	writeJSON(w, http.StatusOK, response.OK(data, ""))
}

func (app *application) handleGetEditorGrid(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	editor, err := app.forecast.Editor(sess.token.Get())
	if err != nil {
		app.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response.OK(editor, ""))
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func filterFromQuery(r *http.Request) forecast.Filter {
	q := r.URL.Query()
	return forecast.Filter{
		Revisions:      splitCSV(q.Get("revisoes")),
		Scenario:       q.Get("cenario"),
		Classification: q.Get("classificacao"),
		Management:     q.Get("gerencia"),
		Complexes:      splitCSV(q.Get("complexos")),
		Area:           q.Get("area"),
		Analyses:       splitCSV(q.Get("analises")),
	}
}

func (app *application) handleGetBaseRows(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	df, err := app.forecast.BaseRows(filterFromQuery(r), sess.token.Get())
	if err != nil {
		app.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response.OK(gridFromFrame(df), ""))
}

func (app *application) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	df, err := app.forecast.BaseRows(filterFromQuery(r), sess.token.Get())
	if err != nil {
		app.serviceError(w, err)
		return
	}
	months := splitCSV(r.URL.Query().Get("meses"))
	writeJSON(w, http.StatusOK, response.OK(forecast.ComputeIndicators(df, months), ""))
}

type applyEditsRequest struct {
	Actor string              `json:"usuario"`
	Edits []forecast.CellEdit `json:"edicoes"`
}

func (app *application) handleApplyEdits(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req applyEditsRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Edits) == 0 {
		writeJSONError(w, http.StatusBadRequest, "no edits submitted")
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = sess.role
	}

	applied, err := app.forecast.ApplyEdits(r.Context(), sess.token, actor, req.Edits)
	if err != nil {
		// A broken history append still saved the base rows; tell the
		// client the edits landed.
		if len(applied) > 0 {
			writeJSON(w, http.StatusOK, response.OK(applied, "edits saved, history append failed"))
			return
		}
		app.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response.OK(applied, "edits saved"))
}

func (app *application) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := app.forecast.HistoryTail(limit, sess.token.Get())
	if err != nil {
		app.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response.OK(rows, ""))
}
