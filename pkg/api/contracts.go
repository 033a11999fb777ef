// Package api defines the JSON contracts exposed by the HTTP surface. Money
// fields travel as fixed-point decimal strings.
package api

// TaxonomyEntryResponse is one canonical cost line item.
type TaxonomyEntryResponse struct {
	Code            string `json:"code"`
	Category        string `json:"category"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ExecutionType   string `json:"execution_type"`
	CostType        string `json:"cost_type"`
	ReferenceSource string `json:"reference_source"`
}

// TaxonomyResponse lists the loaded catalog.
type TaxonomyResponse struct {
	Version    string                  `json:"version"`
	Categories []string                `json:"categories"`
	Entries    []TaxonomyEntryResponse `json:"entries"`
}

// ResolveResponse is the result of canonicalizing one identifier.
type ResolveResponse struct {
	Input     string `json:"input"`
	Canonical string `json:"canonical"`
}

// EstimateLineRequest is one estimate line submitted for materialization.
type EstimateLineRequest struct {
	RawID       string `json:"raw_id"`
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity"`
	UnitCost    string `json:"unit_cost"`
	Currency    string `json:"currency,omitempty"`
	Recurring   bool   `json:"recurring"`
	StartMonth  int    `json:"start_month"`
	EndMonth    int    `json:"end_month,omitempty"`
}

// MaterializeRequest carries an accepted baseline's estimate lines.
type MaterializeRequest struct {
	Lines []EstimateLineRequest `json:"lines"`
}

// MaterializeResponse reports what the materializer did.
type MaterializeResponse struct {
	ProjectID     string          `json:"project_id"`
	BaselineID    string          `json:"baseline_id"`
	Skipped       bool            `json:"skipped"`
	RubroCount    int             `json:"rubro_count"`
	LinesSkipped  int             `json:"lines_skipped"`
	FallbackCount int             `json:"fallback_count"`
	Rubros        []RubroResponse `json:"rubros"`
}

// RubroResponse is one materialized budget line item.
type RubroResponse struct {
	RubroID       string `json:"rubro_id"`
	CanonicalCode string `json:"canonical_code"`
	ProjectID     string `json:"project_id"`
	BaselineID    string `json:"baseline_id"`
	Description   string `json:"description,omitempty"`
	Quantity      string `json:"quantity"`
	UnitCost      string `json:"unit_cost"`
	TotalCost     string `json:"total_cost"`
	Currency      string `json:"currency"`
	Recurring     bool   `json:"recurring"`
	StartMonth    int    `json:"start_month"`
	EndMonth      int    `json:"end_month"`
}

// RubrosResponse lists the rubros of one baseline.
type RubrosResponse struct {
	ProjectID  string          `json:"project_id"`
	BaselineID string          `json:"baseline_id,omitempty"`
	Rubros     []RubroResponse `json:"rubros"`
}

// ForecastCellResponse is one month of one line item.
type ForecastCellResponse struct {
	LineItemID string `json:"line_item_id"`
	Month      int    `json:"month"`
	Planned    string `json:"planned"`
	Forecast   string `json:"forecast"`
	Actual     string `json:"actual"`
}

// ForecastResponse is the month-indexed grid for one project baseline.
type ForecastResponse struct {
	ProjectID  string                 `json:"project_id"`
	BaselineID string                 `json:"baseline_id,omitempty"`
	Months     int                    `json:"months"`
	Cells      []ForecastCellResponse `json:"cells"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}
