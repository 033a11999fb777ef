package rubro

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_SnakeCaseRecord(t *testing.T) {
	raw := map[string]any{
		"rubro_id":       "MOD-ING#base_A#1",
		"canonical_code": "MOD-ING",
		"project_id":     "P-001",
		"baseline_id":    "base_A",
		"description":    "Ingeniero de software",
		"quantity":       "2",
		"unit_cost":      "5000",
		"total_cost":     "10000",
		"currency":       "MXN",
		"recurring":      true,
		"start_month":    1,
		"end_month":      12,
		"created_at":     "2026-01-15T10:00:00Z",
	}

	r := Normalize(raw)
	assert.Equal(t, "MOD-ING#base_A#1", r.RubroID)
	assert.Equal(t, "MOD-ING", r.CanonicalCode)
	assert.Equal(t, "P-001", r.ProjectID)
	assert.Equal(t, "base_A", r.BaselineID)
	assert.True(t, r.Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, r.UnitCost.Equal(decimal.NewFromInt(5000)))
	assert.True(t, r.TotalCost.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "MXN", r.Currency)
	assert.True(t, r.Recurring)
	assert.Equal(t, 1, r.StartMonth)
	assert.Equal(t, 12, r.EndMonth)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), r.CreatedAt)
}

func TestNormalize_CamelCaseAndSpanishVariants(t *testing.T) {
	raw := map[string]any{
		"rubroId":        "CLD-COMPUTE#base_B#2",
		"canonicalCode":  "CLD-COMPUTE",
		"projectId":      "P-002",
		"baselineId":     "base_B",
		"descripcion":    "Instancias de computo",
		"cantidad":       float64(3),
		"costo_unitario": "1200.50",
		"moneda":         "USD",
		"recurrente":     "true",
		"mes_inicio":     float64(2),
		"mes_fin":        float64(6),
	}

	r := Normalize(raw)
	assert.Equal(t, "CLD-COMPUTE#base_B#2", r.RubroID)
	assert.Equal(t, "base_B", r.BaselineID)
	assert.Equal(t, "Instancias de computo", r.Description)
	assert.True(t, r.Quantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, r.UnitCost.Equal(decimal.RequireFromString("1200.50")))
	assert.True(t, r.Recurring)
	assert.Equal(t, 2, r.StartMonth)
	assert.Equal(t, 6, r.EndMonth)
}

func TestNormalize_BaselineFromNestedMetadata(t *testing.T) {
	raw := map[string]any{
		"rubro_id": "x",
		"metadata": map[string]any{"baseline_id": "base_C"},
	}
	r := Normalize(raw)
	assert.Equal(t, "base_C", r.BaselineID)
}

func TestNormalize_DedicatedFieldWinsOverMetadata(t *testing.T) {
	raw := map[string]any{
		"baseline_id": "base_new",
		"metadata":    map[string]any{"baseline_id": "base_old"},
	}
	r := Normalize(raw)
	assert.Equal(t, "base_new", r.BaselineID)
}

func TestNormalize_LegacyBaselineRef(t *testing.T) {
	for _, key := range []string{"linea_base", "baseline", "baselineRef"} {
		r := Normalize(map[string]any{key: "legacy_B"})
		assert.Equal(t, "legacy_B", r.LegacyBaselineRef, key)
		assert.Empty(t, r.BaselineID, key)
	}
}

func TestNormalize_RecomputesMissingTotal(t *testing.T) {
	raw := map[string]any{
		"quantity":  "4",
		"unit_cost": "250.25",
	}
	r := Normalize(raw)
	assert.True(t, r.TotalCost.Equal(decimal.RequireFromString("1001")), r.TotalCost.String())
}

func TestNormalize_EmptyRecord(t *testing.T) {
	r := Normalize(map[string]any{})
	assert.Empty(t, r.RubroID)
	assert.True(t, r.Quantity.IsZero())
	assert.True(t, r.TotalCost.IsZero())
	assert.False(t, r.Recurring)
}

func TestToRecordNormalizeRoundTrip(t *testing.T) {
	in := Rubro{
		RubroID:       NewRubroID("MOD-ING", "base_A", 1),
		CanonicalCode: "MOD-ING",
		ProjectID:     "P-001",
		BaselineID:    "base_A",
		Description:   "Ingeniero",
		Quantity:      decimal.NewFromInt(1),
		UnitCost:      decimal.NewFromInt(5000),
		TotalCost:     decimal.NewFromInt(5000),
		Currency:      "MXN",
		Recurring:     true,
		StartMonth:    1,
		EndMonth:      12,
		CreatedAt:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}

	out := Normalize(in.ToRecord())
	assert.Equal(t, in.RubroID, out.RubroID)
	assert.Equal(t, in.BaselineID, out.BaselineID)
	assert.True(t, out.UnitCost.Equal(in.UnitCost))
	assert.True(t, out.TotalCost.Equal(in.TotalCost))
	assert.Equal(t, in.CreatedAt, out.CreatedAt)
}

func TestNewRubroID(t *testing.T) {
	assert.Equal(t, "MOD-ING#base_A#3", NewRubroID("MOD-ING", "base_A", 3))
}

func TestKeyShapes(t *testing.T) {
	assert.Equal(t, "PROJECT#P-001", ProjectPK("P-001"))
	assert.Equal(t, "BASELINE#base_A", BaselineSK("base_A"))
	assert.Equal(t, "RUBRO#base_A#MOD-ING#1", RubroSK("base_A", "MOD-ING", 1))

	sk := RubroSK("base_A", "MOD-ING", 1)
	require.True(t, len(sk) > len(RubroPrefix("base_A")))
	assert.Equal(t, RubroPrefix("base_A"), sk[:len(RubroPrefix("base_A"))])
}
