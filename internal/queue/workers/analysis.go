// Package workers holds the asynq task handlers run by cmd/worker.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/kyuchan/presentation-grader/internal/analysis"
	"github.com/kyuchan/presentation-grader/internal/pipeline"
	"github.com/kyuchan/presentation-grader/internal/queue"
)

type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (*pipeline.Outcome, error)
}

type AnalysisWorker struct {
	store  analysis.Store
	runner Runner
}

func NewAnalysisWorker(store analysis.Store, runner Runner) *AnalysisWorker {
	return &AnalysisWorker{store: store, runner: runner}
}

func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.AnalysisRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	id, err := uuid.Parse(payload.AnalysisID)
	if err != nil {
		return fmt.Errorf("parse analysis ID: %v: %w", err, asynq.SkipRetry)
	}

	rec, err := w.store.Get(ctx, id)
	if errors.Is(err, analysis.ErrNotFound) {
		return fmt.Errorf("analysis %s: %v: %w", id, err, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("get analysis: %w", err)
	}
	if rec.Terminal() {
		slog.Info("analysis already finished, skipping", "analysis_id", id, "status", rec.Status)
		return nil
	}

	slog.Info("processing analysis", "analysis_id", id, "team", rec.TeamName)
	_, err = w.runner.Run(ctx, pipeline.Job{
		AnalysisID: rec.ID,
		TeamName:   rec.TeamName,
		Topic:      rec.Topic,
		Criteria:   rec.Criteria,
		AudioPath:  rec.AudioPath,
		SlidesPath: rec.SlidesPath,
	})
	if err != nil {
		return fmt.Errorf("run analysis %s: %w", id, err)
	}
	return nil
}
