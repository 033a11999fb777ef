// Package rubro defines the project-scoped budget line item materialized from
// an accepted baseline, its composite store keys, and the normalization that
// collapses historical record shapes into one canonical in-memory form.
package rubro

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Rubro is one materialized budget line item. Immutable after creation: a new
// baseline produces a disjoint set, never edits in place.
type Rubro struct {
	RubroID       string
	CanonicalCode string
	ProjectID     string
	BaselineID    string

	// LegacyBaselineRef carries the old top-level baseline-identifying field
	// found on pre-migration records. Only the query filter consults it.
	LegacyBaselineRef string

	Description string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	TotalCost   decimal.Decimal
	Currency    string
	Recurring   bool
	StartMonth  int
	EndMonth    int
	CreatedAt   time.Time
}

// NewRubroID builds the composite line-item identifier. The baseline id is
// embedded so rubros from different baselines of the same project can never
// collide.
func NewRubroID(canonicalCode, baselineID string, seq int) string {
	return fmt.Sprintf("%s#%s#%d", canonicalCode, baselineID, seq)
}

// Store key shapes. A project's records share one partition; sort keys are
// prefixed by record kind, and rubro sort keys lead with the baseline id so a
// baseline's rubros form one contiguous prefix range.

func ProjectPK(projectID string) string {
	return "PROJECT#" + projectID
}

const HeadSK = "HEAD"

const RubroSKPrefix = "RUBRO#"

func BaselineSK(baselineID string) string {
	return "BASELINE#" + baselineID
}

func RubroSK(baselineID, canonicalCode string, seq int) string {
	return fmt.Sprintf("%s%s#%s#%d", RubroSKPrefix, baselineID, canonicalCode, seq)
}

func RubroPrefix(baselineID string) string {
	return RubroSKPrefix + baselineID + "#"
}

// ToRecord serializes the rubro into the canonical persisted shape. Amounts
// are stored as decimal strings to keep them exact across stores. The baseline
// id is written both as a dedicated field and inside nested metadata so
// backward-compatible readers keep working.
func (r Rubro) ToRecord() map[string]any {
	return map[string]any{
		"rubro_id":       r.RubroID,
		"canonical_code": r.CanonicalCode,
		"project_id":     r.ProjectID,
		"baseline_id":    r.BaselineID,
		"description":    r.Description,
		"quantity":       r.Quantity.String(),
		"unit_cost":      r.UnitCost.String(),
		"total_cost":     r.TotalCost.String(),
		"currency":       r.Currency,
		"recurring":      r.Recurring,
		"start_month":    r.StartMonth,
		"end_month":      r.EndMonth,
		"created_at":     r.CreatedAt.UTC().Format(time.RFC3339),
		"metadata": map[string]any{
			"baseline_id": r.BaselineID,
			"source":      "materializer",
		},
	}
}
