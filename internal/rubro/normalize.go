package rubro

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Normalize converts a raw store item into the canonical Rubro shape. Records
// written by different historical versions named the same logical field in
// snake_case, camelCase or Spanish; every read goes through here once so the
// rest of the code never carries per-field fallback chains.
func Normalize(raw map[string]any) Rubro {
	r := Rubro{
		RubroID:       strField(raw, "rubro_id", "rubroId", "id"),
		CanonicalCode: strField(raw, "canonical_code", "canonicalCode", "code"),
		ProjectID:     strField(raw, "project_id", "projectId"),
		BaselineID:    strField(raw, "baseline_id", "baselineId"),
		Description:   strField(raw, "description", "descripcion"),
		Quantity:      decField(raw, "quantity", "cantidad"),
		UnitCost:      decField(raw, "unit_cost", "unitCost", "costo_unitario"),
		TotalCost:     decField(raw, "total_cost", "totalCost", "costo_total"),
		Currency:      strField(raw, "currency", "moneda"),
		Recurring:     boolField(raw, "recurring", "recurrente"),
		StartMonth:    intField(raw, "start_month", "startMonth", "mes_inicio"),
		EndMonth:      intField(raw, "end_month", "endMonth", "mes_fin"),
	}

	// The dedicated baseline field wins; nested metadata is the compatibility
	// location older writers used.
	if r.BaselineID == "" {
		if meta, ok := raw["metadata"].(map[string]any); ok {
			r.BaselineID = strField(meta, "baseline_id", "baselineId")
		}
	}

	// Oldest records tagged the baseline on a top-level legacy field instead.
	r.LegacyBaselineRef = strField(raw, "linea_base", "baseline", "baselineRef")

	if r.TotalCost.IsZero() && !r.Quantity.IsZero() {
		r.TotalCost = r.Quantity.Mul(r.UnitCost)
	}

	if ts := strField(raw, "created_at", "createdAt"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.CreatedAt = t
		}
	}

	return r
}

func strField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func decField(raw map[string]any, keys ...string) decimal.Decimal {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if d, err := decimal.NewFromString(v); err == nil {
				return d
			}
		case float64:
			return decimal.NewFromFloat(v)
		case int:
			return decimal.NewFromInt(int64(v))
		case int64:
			return decimal.NewFromInt(v)
		case json.Number:
			if d, err := decimal.NewFromString(v.String()); err == nil {
				return d
			}
		case decimal.Decimal:
			return v
		}
	}
	return decimal.Zero
}

func intField(raw map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return int(i)
			}
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return 0
}

func boolField(raw map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case bool:
			return v
		case string:
			return v == "true" || v == "1"
		}
	}
	return false
}
