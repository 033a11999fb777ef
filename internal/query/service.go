// Package query retrieves a project's rubros scoped to one baseline, with the
// lenient fallback that keeps pre-migration data readable.
package query

import (
	"context"

	"github.com/rs/zerolog"

	"finanzas-sd/db"
	"finanzas-sd/internal/project"
	"finanzas-sd/internal/rubro"
)

// maxScanPages bounds the paginated scan so corrupted continuation data can
// never hang a request. Exceeding it returns partial results with a warning.
const maxScanPages = 50

// Service answers baseline-scoped rubro queries.
type Service struct {
	store    db.Store
	log      zerolog.Logger
	pageSize int
}

func NewService(store db.Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log, pageSize: 100}
}

// WithPageSize overrides the scan page size.
func (s *Service) WithPageSize(n int) *Service {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// ProjectRubros returns the rubros belonging to one baseline of a project.
//
// With an empty explicitBaselineID the project's active baseline is resolved
// from the head record; a project that was never baselined gets all its rubros
// back unfiltered. Filtering is three-tiered: the dedicated baseline field,
// then the legacy top-level ref, then (only when strict filtering empties a
// non-empty set) the untagged legacy subset, logged as lenient mode. Result
// order is the scan's insertion order.
func (s *Service) ProjectRubros(ctx context.Context, projectID, explicitBaselineID string) ([]rubro.Rubro, error) {
	target := explicitBaselineID
	if target == "" {
		head, err := s.store.Get(ctx, db.Key{Partition: rubro.ProjectPK(projectID), Sort: rubro.HeadSK})
		if err != nil {
			return nil, err
		}
		if head != nil {
			target = project.NormalizeHead(head).ActiveBaselineID
		}
	}

	all, err := s.scanAll(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if target == "" {
		// Never-baselined project: full backward compatibility.
		return all, nil
	}

	strict := make([]rubro.Rubro, 0, len(all))
	for _, r := range all {
		if r.BaselineID == target {
			strict = append(strict, r)
		}
	}
	if len(strict) > 0 {
		return strict, nil
	}

	legacy := make([]rubro.Rubro, 0, len(all))
	for _, r := range all {
		if r.BaselineID == "" && r.LegacyBaselineRef == target {
			legacy = append(legacy, r)
		}
	}
	if len(legacy) > 0 {
		return legacy, nil
	}

	if len(all) == 0 {
		return nil, nil
	}

	untagged := make([]rubro.Rubro, 0, len(all))
	for _, r := range all {
		if r.BaselineID == "" && r.LegacyBaselineRef == "" {
			untagged = append(untagged, r)
		}
	}
	if len(untagged) > 0 {
		s.log.Warn().
			Str("project_id", projectID).
			Str("baseline_id", target).
			Int("untagged", len(untagged)).
			Int("total", len(all)).
			Msg("strict baseline filter matched nothing; returning untagged legacy rubros (lenient mode)")
		return untagged, nil
	}
	return nil, nil
}

func (s *Service) scanAll(ctx context.Context, projectID string) ([]rubro.Rubro, error) {
	partition := rubro.ProjectPK(projectID)

	var out []rubro.Rubro
	cursor := ""
	for pages := 0; ; pages++ {
		if pages >= maxScanPages {
			s.log.Warn().
				Str("project_id", projectID).
				Int("pages", pages).
				Int("rubros", len(out)).
				Msg("rubro scan exceeded page bound, returning partial results")
			break
		}
		page, err := s.store.QueryPrefix(ctx, partition, rubro.RubroSKPrefix, cursor, s.pageSize)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			out = append(out, rubro.Normalize(item))
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
}
