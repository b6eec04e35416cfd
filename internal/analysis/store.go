// Package analysis persists analysis records in Postgres or in memory.
package analysis

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kyuchan/presentation-grader/internal/models"
)

var ErrNotFound = errors.New("analysis not found")

type Store interface {
	Create(ctx context.Context, a *models.Analysis) error
	Get(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	List(ctx context.Context, limit, offset int) ([]models.Analysis, error)
	// Update replaces every mutable field of the record with a.ID.
	Update(ctx context.Context, a *models.Analysis) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status, errMsg string) error
}

// New fills in the identity and timestamps of a pending analysis.
func New(team, topic string, criteria []models.Criterion) *models.Analysis {
	return &models.Analysis{
		ID:       uuid.New(),
		TeamName: team,
		Topic:    topic,
		Criteria: criteria,
		Status:   models.AnalysisStatusPending,
		Segments: []models.Segment{},
		Results:  []models.CriterionResult{},
	}
}

func clampLimit(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
