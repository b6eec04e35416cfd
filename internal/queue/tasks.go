// Package queue defines background tasks and their asynq client.
package queue

import "time"

const TypeAnalysisRun = "analysis:run"

const (
	analysisMaxRetry = 2
	analysisTimeout  = 30 * time.Minute
)

type AnalysisRunPayload struct {
	AnalysisID string `json:"analysis_id"`
}
