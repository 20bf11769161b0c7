package main

import (
	"net/http"
	"strconv"

	"github.com/rota27/refinado/internal/response"
)

func (app *application) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	users, err := app.forecast.Users(sess.token.Get())
	if err != nil {
		app.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response.OK(users, ""))
}

func (app *application) handleGetAuditMirror(w http.ResponseWriter, r *http.Request) {
	if app.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "audit mirror database not configured")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := app.store.Audit.GetLatest(r.Context(), limit)
	if err != nil {
		app.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response.OK(entries, ""))
}

type rolloverRequest struct {
	SourceRevision string `json:"revisao_origem"`
	NewWeek        string `json:"nova_semana"`
}

type rolloverResponse struct {
	Week string `json:"semana"`
	Rows int    `json:"linhas_copiadas"`
}

func (app *application) handleRollover(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req rolloverRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rows, err := app.forecast.Rollover(req.SourceRevision, req.NewWeek, sess.token)
	if err != nil {
		app.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, response.OK(rolloverResponse{Week: req.NewWeek, Rows: rows}, "week created"))
}

type monthsRequest struct {
	Months []string `json:"meses"`
}

func (app *application) handleSetPermittedMonths(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var req monthsRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	normalized, err := app.forecast.SetPermittedMonths(req.Months, sess.token)
	if err != nil {
		app.serviceError(w, err)
		return
	}
	data := map[string][]string{"meses_permitidos": normalized}
	writeJSON(w, http.StatusOK, response.OK(data, "permitted months updated"))
}

func (app *application) handlePublishRefined(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	rows, err := app.forecast.PublishRefined(sess.token)
	if err != nil {
		app.serviceError(w, err)
		return
	}
	data := map[string]int{"linhas": rows}
	writeJSON(w, http.StatusOK, response.OK(data, "refined sheet published"))
}

func (app *application) handleClearCache(w http.ResponseWriter, r *http.Request) {
	const component = "Admin"

	sess := sessionFrom(r)
	app.cache.Clear()
	sess.token.Bump()

	app.logger.Info(component, "Document cache cleared")
	writeJSON(w, http.StatusOK, response.OK(struct{}{}, "cache cleared"))
}
