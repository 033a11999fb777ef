// Package forecast expands rubros into a month-indexed planned/forecast/actual
// grid bounded by a requested horizon.
package forecast

import (
	"fmt"

	"github.com/shopspring/decimal"

	"finanzas-sd/internal/rubro"
)

// Cell is one line-item month in the grid. Computed on demand, never persisted.
type Cell struct {
	LineItemID string          `json:"line_item_id"`
	Month      int             `json:"month"`
	Planned    decimal.Decimal `json:"planned"`
	Forecast   decimal.Decimal `json:"forecast"`
	Actual     decimal.Decimal `json:"actual"`
}

// Actual is a recorded allocation amount to merge into the grid.
type Actual struct {
	LineItemID string
	Month      int
	Amount     decimal.Decimal
}

// Grid expands the rubros across a months-long horizon.
//
// Recurring rubros emit one cell per month in [max(1,start), min(months,end)],
// each carrying the per-period amount (quantity × unit cost, not divided
// across the span). One-time rubros emit a single cell at their start month
// clamped into the horizon; a start month past the horizon emits nothing.
// That is intentional truncation, not an error. Cells are unique per (line item,
// month); duplicated upstream rubros resolve deterministically last-write-wins
// in input order.
func Grid(rubros []rubro.Rubro, months int) []Cell {
	if months < 1 {
		return nil
	}

	cells := make([]Cell, 0, len(rubros))
	index := make(map[string]int)

	emit := func(c Cell) {
		k := fmt.Sprintf("%s#%d", c.LineItemID, c.Month)
		if i, ok := index[k]; ok {
			cells[i] = c
			return
		}
		index[k] = len(cells)
		cells = append(cells, c)
	}

	for _, r := range rubros {
		if r.Recurring {
			perPeriod := r.UnitCost.Mul(r.Quantity)
			start := r.StartMonth
			if start < 1 {
				start = 1
			}
			end := r.EndMonth
			if end > months {
				end = months
			}
			for m := start; m <= end; m++ {
				emit(Cell{
					LineItemID: r.RubroID,
					Month:      m,
					Planned:    perPeriod,
					Forecast:   perPeriod,
					Actual:     decimal.Zero,
				})
			}
			continue
		}

		if r.StartMonth > months {
			continue
		}
		month := r.StartMonth
		if month < 1 {
			month = 1
		}
		emit(Cell{
			LineItemID: r.RubroID,
			Month:      month,
			Planned:    r.TotalCost,
			Forecast:   r.TotalCost,
			Actual:     decimal.Zero,
		})
	}
	return cells
}

// MergeActuals overlays recorded allocation amounts onto the grid. Persisted
// actuals take precedence over the derived zero; actuals for cells outside the
// grid are ignored.
func MergeActuals(cells []Cell, actuals []Actual) []Cell {
	if len(actuals) == 0 {
		return cells
	}
	index := make(map[string]int, len(cells))
	for i, c := range cells {
		index[fmt.Sprintf("%s#%d", c.LineItemID, c.Month)] = i
	}
	for _, a := range actuals {
		if i, ok := index[fmt.Sprintf("%s#%d", a.LineItemID, a.Month)]; ok {
			cells[i].Actual = a.Amount
		}
	}
	return cells
}
