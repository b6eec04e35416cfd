package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/kyuchan/presentation-grader/internal/config"
)

type Client struct {
	client *asynq.Client
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueAnalysisRun schedules an analysis. The task id is the analysis id,
// so a second enqueue of the same analysis is rejected while the first is
// still known to the queue.
func (c *Client) EnqueueAnalysisRun(ctx context.Context, payload AnalysisRunPayload) error {
	task, err := NewAnalysisRunTask(payload)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.TaskID(payload.AnalysisID)); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeAnalysisRun, err)
	}
	return nil
}

func NewAnalysisRunTask(payload AnalysisRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeAnalysisRun, data, asynq.MaxRetry(analysisMaxRetry), asynq.Timeout(analysisTimeout)), nil
}
