package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/rota27/refinado/internal/forecast"
	"github.com/rota27/refinado/internal/graph"
	"github.com/rota27/refinado/internal/logger"
	"github.com/rota27/refinado/internal/workbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSheets is an in-memory forecast.SheetStore. Fixtures keep one header per
// sheet, so merging can assume matching columns.
type memSheets struct {
	sheets map[string]dataframe.DataFrame
}

func (m *memSheets) set(name string, records [][]string) {
	m.sheets[name] = workbook.FrameFromRecords(records)
}

func (m *memSheets) ReadSheet(name string, _ int64) (workbook.SheetResult, error) {
	df, ok := m.sheets[name]
	if !ok {
		return workbook.AbsentSheet(name), nil
	}
	return workbook.SheetResult{Found: true, Table: df}, nil
}

func (m *memSheets) ReadAll(_ int64) (map[string]dataframe.DataFrame, error) {
	return m.sheets, nil
}

func (m *memSheets) WriteSheet(name string, table dataframe.DataFrame, _ int64) error {
	m.sheets[name] = table
	return nil
}

func (m *memSheets) Append(name string, table dataframe.DataFrame, _ int64) error {
	existing, ok := m.sheets[name]
	if !ok {
		m.sheets[name] = table
		return nil
	}
	records := existing.Records()
	records = append(records, table.Records()[1:]...)
	m.sheets[name] = workbook.FrameFromRecords(records)
	return nil
}

func (m *memSheets) WriteRevisionRows(table dataframe.DataFrame, _ int64) error {
	incoming := table.Records()
	rev := -1
	for i, n := range incoming[0] {
		if n == workbook.ColRevision {
			rev = i
		}
	}
	replaced := map[string]bool{}
	for _, row := range incoming[1:] {
		replaced[row[rev]] = true
	}

	existing, ok := m.sheets[workbook.SheetBase]
	if !ok {
		m.sheets[workbook.SheetBase] = table
		return nil
	}
	records := existing.Records()
	kept := [][]string{records[0]}
	for _, row := range records[1:] {
		if !replaced[row[rev]] {
			kept = append(kept, row)
		}
	}
	kept = append(kept, incoming[1:]...)
	m.sheets[workbook.SheetBase] = workbook.FrameFromRecords(kept)
	return nil
}

func fixtureSheets() *memSheets {
	m := &memSheets{sheets: make(map[string]dataframe.DataFrame)}
	m.set(workbook.SheetBase, [][]string{
		{"Classificação", "Gerência", "Complexo", "Área", "Análise de emissão", "Cenário", workbook.ColRevision, "26/01/2026"},
		{"Operacional", "Norte", "C1", "Mina", "RECEITA MAO DE OBRA", "Moderado", "Semana 1", "100"},
	})
	m.set(workbook.SheetControl, [][]string{
		{workbook.ColActiveWeek, workbook.ColPermittedMonths},
		{"Semana 1", "2026-01-26"},
	})
	return m
}

func newTestApp(t *testing.T) (*application, *httptest.Server) {
	t.Helper()

	appLogger := logger.New(logger.LevelError)
	app := &application{
		config: config{
			auth: authConfig{
				managerPassword: "manager-secret",
				adminPassword:   "admin-secret",
			},
		},
		forecast: forecast.NewService(fixtureSheets(), nil, appLogger),
		cache:    graph.NewDocumentCache(),
		sessions: newSessionStore(),
		logger:   appLogger,
	}
	srv := httptest.NewServer(app.mount())
	t.Cleanup(srv.Close)
	return app, srv
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func login(t *testing.T, srv *httptest.Server, password string) string {
	t.Helper()

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/auth/login", "", map[string]string{"password": password})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data loginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Data.Token)
	return out.Data.Token
}

func TestLoginAssignsRoles(t *testing.T) {
	_, srv := newTestApp(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/auth/login", "", map[string]string{"password": "wrong"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/auth/login", "", map[string]string{"password": "admin-secret"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Data loginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, roleAdmin, out.Data.Role)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	_, srv := newTestApp(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/forecast/active", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/forecast/active", "bogus-token", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesRejectManagers(t *testing.T) {
	_, srv := newTestApp(t)
	token := login(t, srv, "manager-secret")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/cache/clear", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGetActiveWeek(t *testing.T) {
	_, srv := newTestApp(t)
	token := login(t, srv, "manager-secret")

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/forecast/active", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data struct {
			Week      string   `json:"semana"`
			Months    []string `json:"meses_permitidos"`
			Revisions []string `json:"revisoes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Semana 1", out.Data.Week)
	assert.Equal(t, []string{"2026-01-26"}, out.Data.Months)
	assert.Equal(t, []string{"Semana 1"}, out.Data.Revisions)
}

func TestApplyEditsEndToEnd(t *testing.T) {
	_, srv := newTestApp(t)
	token := login(t, srv, "manager-secret")

	body := applyEditsRequest{
		Actor: "maria",
		Edits: []forecast.CellEdit{{
			RowKey: forecast.RowKey{
				Classification: "Operacional",
				Management:     "Norte",
				Complex:        "C1",
				Area:           "Mina",
				Analysis:       "RECEITA MAO DE OBRA",
			},
			Month:    "2026-01-26",
			NewValue: 250,
		}},
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/forecast/edits", token, body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data []forecast.EditRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, 100.0, out.Data[0].OldValue)
	assert.Equal(t, 250.0, out.Data[0].NewValue)

	hist := doJSON(t, http.MethodGet, srv.URL+"/v1/history", token, nil)
	defer hist.Body.Close()
	require.Equal(t, http.StatusOK, hist.StatusCode)
	var histOut struct {
		Data []map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(hist.Body).Decode(&histOut))
	require.Len(t, histOut.Data, 1)
	assert.Equal(t, "maria", histOut.Data[0]["Usuário"])
}

func TestApplyEditsRejectsLockedMonth(t *testing.T) {
	_, srv := newTestApp(t)
	token := login(t, srv, "manager-secret")

	body := applyEditsRequest{
		Edits: []forecast.CellEdit{{
			RowKey: forecast.RowKey{
				Classification: "Operacional",
				Management:     "Norte",
				Complex:        "C1",
				Area:           "Mina",
				Analysis:       "RECEITA MAO DE OBRA",
			},
			Month:    "2026-03-01",
			NewValue: 1,
		}},
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/forecast/edits", token, body)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAdminRolloverAndMonths(t *testing.T) {
	_, srv := newTestApp(t)
	token := login(t, srv, "admin-secret")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/revisions", token,
		rolloverRequest{SourceRevision: "Semana 1", NewWeek: "Semana 2"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Data rolloverResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Data.Rows)

	// The new week starts locked; unlock February.
	resp = doJSON(t, http.MethodPut, srv.URL+"/v1/admin/months", token,
		monthsRequest{Months: []string{"01/02/2026", "2026-02-01"}})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var months struct {
		Data map[string][]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&months))
	assert.Equal(t, []string{"2026-02-01"}, months.Data["meses_permitidos"])
}

func TestRolloverConflict(t *testing.T) {
	_, srv := newTestApp(t)
	token := login(t, srv, "admin-secret")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/admin/revisions", token,
		rolloverRequest{SourceRevision: "Semana 1", NewWeek: "Semana 1"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAuditMirrorUnconfigured(t *testing.T) {
	_, srv := newTestApp(t)
	token := login(t, srv, "admin-secret")

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/admin/audit", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExportCSVEncoding(t *testing.T) {
	_, srv := newTestApp(t)
	token := login(t, srv, "manager-secret")

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/forecast/export", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "windows-1252")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "previsao.csv")
}

func TestHealthIsPublic(t *testing.T) {
	_, srv := newTestApp(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/health", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
