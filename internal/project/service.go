// Package project manages the budget-ownership records: the project head that
// points at the active baseline, and the per-baseline metadata records.
package project

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"finanzas-sd/db"
	"finanzas-sd/internal/rubro"
	finerr "finanzas-sd/pkg/errors"
)

// Baseline statuses. A baseline is never deleted; acceptance of a successor
// moves it to superseded.
const (
	StatusAccepted   = "accepted"
	StatusSuperseded = "superseded"
)

// Project is the head record for one unit of budget ownership.
type Project struct {
	ProjectID            string
	ActiveBaselineID     string
	ActiveBaselineStatus string
	Status               string
	CreatedAt            time.Time
}

// Service provides project and baseline lifecycle operations.
type Service struct {
	store db.Store
	log   zerolog.Logger
}

func NewService(store db.Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Register creates the head record for a project. Registering an existing
// project is a no-op returning the stored head.
func (s *Service) Register(ctx context.Context, projectID string) (Project, error) {
	if projectID == "" {
		return Project{}, finerr.NewValidation("project id is required", "")
	}

	key := db.Key{Partition: rubro.ProjectPK(projectID), Sort: rubro.HeadSK}
	head := Project{
		ProjectID: projectID,
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}
	err := s.store.PutIfAbsent(ctx, key, headRecord(head))
	if err == db.ErrConditionFailed {
		return s.Get(ctx, projectID)
	}
	if err != nil {
		return Project{}, err
	}
	return head, nil
}

// Get loads the head record for a project.
func (s *Service) Get(ctx context.Context, projectID string) (Project, error) {
	item, err := s.store.Get(ctx, db.Key{Partition: rubro.ProjectPK(projectID), Sort: rubro.HeadSK})
	if err != nil {
		return Project{}, err
	}
	if item == nil {
		return Project{}, finerr.NewNotFound("project is not registered", projectID)
	}
	return NormalizeHead(item), nil
}

// AcceptBaseline records a newly accepted baseline for the project. Each
// (project, baseline) pair owns its own metadata record, so accepting a second
// baseline never touches the prior one beyond its status transition; the head
// pointer is the only shared mutation.
func (s *Service) AcceptBaseline(ctx context.Context, projectID, baselineID string) error {
	if baselineID == "" {
		return finerr.NewValidation("baseline id is required", projectID)
	}

	head, err := s.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if head.ActiveBaselineID == baselineID {
		// Retried delivery of the same acceptance.
		return nil
	}

	if head.ActiveBaselineID != "" {
		if err := s.supersede(ctx, projectID, head.ActiveBaselineID); err != nil {
			return err
		}
		s.log.Warn().
			Str("project_id", projectID).
			Str("prior_baseline_id", head.ActiveBaselineID).
			Str("baseline_id", baselineID).
			Msg("project already had an active baseline; prior baseline superseded, its records remain addressable")
	}

	metaKey := db.Key{Partition: rubro.ProjectPK(projectID), Sort: rubro.BaselineSK(baselineID)}
	existing, err := s.store.Get(ctx, metaKey)
	if err != nil {
		return err
	}
	if existing == nil {
		record := db.Item{
			"baseline_id":   baselineID,
			"project_id":    projectID,
			"status":        StatusAccepted,
			"acceptance_id": uuid.NewString(),
			"accepted_at":   time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.store.PutIfAbsent(ctx, metaKey, record); err != nil && err != db.ErrConditionFailed {
			return err
		}
	}

	head.ActiveBaselineID = baselineID
	head.ActiveBaselineStatus = StatusAccepted
	return s.store.Put(ctx, db.Key{Partition: rubro.ProjectPK(projectID), Sort: rubro.HeadSK}, headRecord(head))
}

func (s *Service) supersede(ctx context.Context, projectID, baselineID string) error {
	key := db.Key{Partition: rubro.ProjectPK(projectID), Sort: rubro.BaselineSK(baselineID)}
	item, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}
	item["status"] = StatusSuperseded
	item["superseded_at"] = time.Now().UTC().Format(time.RFC3339)
	return s.store.Put(ctx, key, item)
}

func headRecord(p Project) db.Item {
	return db.Item{
		"project_id":             p.ProjectID,
		"active_baseline_id":     p.ActiveBaselineID,
		"active_baseline_status": p.ActiveBaselineStatus,
		"status":                 p.Status,
		"created_at":             p.CreatedAt.Format(time.RFC3339),
	}
}

// NormalizeHead is the single place tolerating historical head shapes
// (camelCase writers predate the snake_case schema).
func NormalizeHead(item db.Item) Project {
	p := Project{
		ProjectID:            str(item, "project_id", "projectId"),
		ActiveBaselineID:     str(item, "active_baseline_id", "activeBaselineId"),
		ActiveBaselineStatus: str(item, "active_baseline_status", "activeBaselineStatus"),
		Status:               str(item, "status"),
	}
	if ts := str(item, "created_at", "createdAt"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			p.CreatedAt = t
		}
	}
	return p
}

func str(item db.Item, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
