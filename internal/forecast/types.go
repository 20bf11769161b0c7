package forecast

import (
	"strconv"
	"strings"
	"time"
)

// Analysis categories open for manager editing, and the subsets used by the
// indicator block.
var (
	AnalysisValues = []string{
		"RECEITA MAO DE OBRA",
		"RECEITA LOCAÇÃO",
		"RECEITA DE INDENIZAÇÃO",
		"CUSTO COM MAO DE OBRA",
		"CUSTO COM INSUMOS",
		"LOCAÇÃO DE EQUIPAMENTOS",
	}

	revenueAnalyses = []string{
		"RECEITA DE INDENIZAÇÃO",
		"RECEITA MAO DE OBRA",
		"RECEITA LOCAÇÃO",
	}

	costAnalyses = []string{
		"CUSTO COM MAO DE OBRA",
		"CUSTO COM INSUMOS",
		"Depreciação de ativo (+)",
		"LOCAÇÃO DE EQUIPAMENTOS",
	}
)

// EditorDimensions are the identifier columns shown (read-only) in the
// editing grid; Cenário and Revisão are implied by the active-week context.
var EditorDimensions = []string{
	"Classificação",
	"Gerência",
	"Complexo",
	"Área",
	"Análise de emissão",
}

// DefaultScenario is the only scenario managers edit.
const DefaultScenario = "Moderado"

// taxRate applies over gross revenue.
const taxRate = 0.11

// ActiveWeek is the control record: which revision is open for editing and
// which month columns (ISO keys) the admin unlocked. An empty month list
// means every month column is editable.
type ActiveWeek struct {
	Week            string   `json:"semana"`
	PermittedMonths []string `json:"meses_permitidos"`
}

// RowKey identifies one base-sheet row inside a revision/scenario.
type RowKey struct {
	Classification string `json:"classificacao"`
	Management     string `json:"gerencia"`
	Complex        string `json:"complexo"`
	Area           string `json:"area"`
	Analysis       string `json:"analise_emissao"`
}

// CellEdit is one not-yet-persisted grid change submitted by a manager.
type CellEdit struct {
	RowKey
	Month    string  `json:"mes"`
	NewValue float64 `json:"novo_valor"`
}

// EditRecord is the audit form of an applied edit, appended to the history
// sheet and mirrored to the database when one is configured.
type EditRecord struct {
	Week      string    `json:"semana"`
	Month     string    `json:"mes"`
	RowKey    RowKey    `json:"linha"`
	OldValue  float64   `json:"valor_anterior"`
	NewValue  float64   `json:"novo_valor"`
	Timestamp time.Time `json:"data_hora"`
	Actor     string    `json:"usuario"`
}

// Filter narrows base-sheet reads. Zero values mean "no restriction" except
// Scenario, which callers set explicitly when they want the editing rule.
type Filter struct {
	Revisions      []string
	Scenario       string
	Classification string
	Management     string
	Complexes      []string
	Area           string
	Analyses       []string
}

// Indicators is the summary block computed over a filtered frame.
type Indicators struct {
	GrossRevenue float64 `json:"receita_bruta_total"`
	TaxesOnGross float64 `json:"impostos_sobre_receita"`
	TotalCost    float64 `json:"custo_total"`
	GrossProfit  float64 `json:"lucro_bruto"`
}

// User is one row of the Usuarios sheet, password hash withheld.
type User struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// parseNumber reads a cell value as a float, accepting both plain decimal
// and the Brazilian thousands/decimal separators.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	clean := strings.ReplaceAll(s, ".", "")
	clean = strings.ReplaceAll(clean, ",", ".")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return v
}

// formatNumber writes a float back into cell form.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
