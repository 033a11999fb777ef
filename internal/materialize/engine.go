// Package materialize turns an accepted baseline's estimate lines into
// project-scoped rubros, exactly once per baseline.
package materialize

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"finanzas-sd/db"
	"finanzas-sd/internal/project"
	"finanzas-sd/internal/rubro"
	"finanzas-sd/internal/taxonomy"
	finerr "finanzas-sd/pkg/errors"
)

// Config tunes the engine.
type Config struct {
	// DefaultCanonicalCode receives estimate lines whose identifier cannot be
	// resolved. The fallback is always logged so the alias table can be
	// backfilled; when empty, unresolvable lines are skipped instead.
	DefaultCanonicalCode string

	// DefaultCurrency is applied to lines that carry none.
	DefaultCurrency string
}

// EstimateLine is one labor or non-labor estimate inside a baseline. RawID may
// be a canonical taxonomy code, a legacy alias, or garbage.
type EstimateLine struct {
	RawID       string          `json:"raw_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Currency    string          `json:"currency"`
	Recurring   bool            `json:"recurring"`
	StartMonth  int             `json:"start_month"`
	EndMonth    int             `json:"end_month"`
}

// Baseline is an accepted cost-estimate snapshot handed to the materializer.
type Baseline struct {
	BaselineID string         `json:"baseline_id"`
	ProjectID  string         `json:"project_id"`
	AcceptedAt time.Time      `json:"accepted_at"`
	Lines      []EstimateLine `json:"lines"`
}

// Result reports what one materialization call did. Partial success is normal:
// malformed lines are skipped and counted, never silently dropped.
type Result struct {
	Rubros        []rubro.Rubro `json:"rubros"`
	Skipped       bool          `json:"skipped"`
	LinesSkipped  int           `json:"lines_skipped"`
	FallbackCount int           `json:"fallback_count"`
}

// Engine materializes baselines.
type Engine struct {
	store   db.Store
	catalog *taxonomy.Catalog
	cfg     Config
	log     zerolog.Logger
}

func NewEngine(store db.Store, catalog *taxonomy.Catalog, cfg Config, log zerolog.Logger) *Engine {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "MXN"
	}
	return &Engine{store: store, catalog: catalog, cfg: cfg, log: log}
}

// Materialize generates the rubro set for one accepted baseline.
//
// Idempotency: any existing rubro under the baseline's key prefix means a
// previous call already ran; the whole call becomes a no-op with Skipped=true,
// which makes retried deliveries safe. Races past that read-check are caught
// by the put-if-absent write on each rubro's composite key and surface as a
// collision, never as a silent overwrite.
func (e *Engine) Materialize(ctx context.Context, projectID string, b Baseline) (Result, error) {
	if projectID == "" {
		return Result{}, finerr.NewValidation("project id is required", "")
	}
	if b.BaselineID == "" {
		return Result{}, finerr.NewValidation("baseline id is required", projectID)
	}

	partition := rubro.ProjectPK(projectID)

	page, err := e.store.QueryPrefix(ctx, partition, rubro.RubroPrefix(b.BaselineID), "", 1)
	if err != nil {
		return Result{}, err
	}
	if len(page.Items) > 0 {
		e.log.Info().
			Str("project_id", projectID).
			Str("baseline_id", b.BaselineID).
			Msg("baseline already materialized, skipping")
		return Result{Skipped: true}, nil
	}

	// Distinct baselines live under distinct key ranges, so an existing active
	// baseline is never overwritten; it is still worth a diagnostic trail.
	head, err := e.store.Get(ctx, db.Key{Partition: partition, Sort: rubro.HeadSK})
	if err != nil {
		return Result{}, err
	}
	if head != nil {
		if active := project.NormalizeHead(head).ActiveBaselineID; active != "" && active != b.BaselineID {
			e.log.Warn().
				Str("project_id", projectID).
				Str("active_baseline_id", active).
				Str("baseline_id", b.BaselineID).
				Msg("materializing a baseline that is not the project's active baseline; existing baseline records are preserved")
		}
	}

	if err := e.writeBaselineMeta(ctx, partition, projectID, b); err != nil {
		return Result{}, err
	}

	res := Result{}
	now := time.Now().UTC()
	for i, line := range b.Lines {
		canonical, fellBack, err := e.resolveLine(projectID, b.BaselineID, line)
		if err != nil {
			res.LinesSkipped++
			continue
		}
		if fellBack {
			res.FallbackCount++
		}

		if err := validateLine(line); err != nil {
			e.log.Warn().
				Str("project_id", projectID).
				Str("baseline_id", b.BaselineID).
				Str("raw_id", line.RawID).
				Int("line_index", i).
				Err(err).
				Msg("estimate line failed validation, skipping line")
			res.LinesSkipped++
			continue
		}

		seq := i + 1
		currency := line.Currency
		if currency == "" {
			currency = e.cfg.DefaultCurrency
		}
		startMonth := line.StartMonth
		if startMonth < 1 {
			startMonth = 1
		}

		r := rubro.Rubro{
			RubroID:       rubro.NewRubroID(canonical, b.BaselineID, seq),
			CanonicalCode: canonical,
			ProjectID:     projectID,
			BaselineID:    b.BaselineID,
			Description:   line.Description,
			Quantity:      line.Quantity,
			UnitCost:      line.UnitCost,
			TotalCost:     line.Quantity.Mul(line.UnitCost),
			Currency:      currency,
			Recurring:     line.Recurring,
			StartMonth:    startMonth,
			EndMonth:      line.EndMonth,
			CreatedAt:     now,
		}

		key := db.Key{Partition: partition, Sort: rubro.RubroSK(b.BaselineID, canonical, seq)}
		if err := e.store.PutIfAbsent(ctx, key, r.ToRecord()); err != nil {
			if err == db.ErrConditionFailed {
				return res, finerr.NewCollision(
					"rubro already exists for this baseline; concurrent materialization detected",
					r.RubroID,
				)
			}
			return res, err
		}
		res.Rubros = append(res.Rubros, r)
	}

	e.log.Info().
		Str("project_id", projectID).
		Str("baseline_id", b.BaselineID).
		Int("rubros", len(res.Rubros)).
		Int("lines_skipped", res.LinesSkipped).
		Int("fallbacks", res.FallbackCount).
		Msg("baseline materialized")
	return res, nil
}

// resolveLine maps the raw identifier to a canonical code, applying the
// configured default when resolution fails. The fallback is a data-quality
// event and is always logged.
func (e *Engine) resolveLine(projectID, baselineID string, line EstimateLine) (canonical string, fellBack bool, err error) {
	canonical, err = e.catalog.ResolveCanonical(line.RawID)
	if err == nil {
		return canonical, false, nil
	}
	if !finerr.IsNotFound(err) {
		return "", false, err
	}
	if e.cfg.DefaultCanonicalCode == "" {
		e.log.Warn().
			Str("project_id", projectID).
			Str("baseline_id", baselineID).
			Str("raw_id", line.RawID).
			Msg("identifier unresolvable and no default canonical code configured, skipping line")
		return "", false, err
	}
	e.log.Warn().
		Str("project_id", projectID).
		Str("baseline_id", baselineID).
		Str("raw_id", line.RawID).
		Str("default_code", e.cfg.DefaultCanonicalCode).
		Msg("identifier unresolvable, falling back to default canonical code; backfill the alias table")
	return e.cfg.DefaultCanonicalCode, true, nil
}

func (e *Engine) writeBaselineMeta(ctx context.Context, partition, projectID string, b Baseline) error {
	acceptedAt := b.AcceptedAt
	if acceptedAt.IsZero() {
		acceptedAt = time.Now().UTC()
	}
	key := db.Key{Partition: partition, Sort: rubro.BaselineSK(b.BaselineID)}
	existing, err := e.store.Get(ctx, key)
	if err != nil {
		return err
	}
	record := db.Item{
		"baseline_id":     b.BaselineID,
		"project_id":      projectID,
		"status":          "accepted",
		"accepted_at":     acceptedAt.Format(time.RFC3339),
		"materialized_at": time.Now().UTC().Format(time.RFC3339),
		"line_count":      len(b.Lines),
	}
	if existing != nil {
		// The acceptance flow may have created the record first; keep its
		// status and acceptance trail, only stamp materialization.
		for k, v := range record {
			if _, ok := existing[k]; !ok || k == "materialized_at" || k == "line_count" {
				existing[k] = v
			}
		}
		record = existing
	}
	return e.store.Put(ctx, key, record)
}

func validateLine(line EstimateLine) error {
	if !line.Quantity.IsPositive() {
		return finerr.NewValidation("quantity must be positive", line.RawID)
	}
	if !line.UnitCost.IsPositive() {
		return finerr.NewValidation("unit cost must be positive", line.RawID)
	}
	if line.Recurring {
		if line.EndMonth == 0 {
			return finerr.NewValidation("recurring line requires an end month", line.RawID)
		}
		start := line.StartMonth
		if start < 1 {
			start = 1
		}
		if line.EndMonth < start {
			return finerr.NewValidation("end month precedes start month", line.RawID)
		}
	}
	return nil
}
