package queue

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
)

func TestRegistryRoutesAndLogs(t *testing.T) {
	var logs bytes.Buffer
	r := NewHandlersRegistry(slog.New(slog.NewTextHandler(&logs, nil)))

	var got string
	r.Register(TypeAnalysisRun, asynq.HandlerFunc(func(_ context.Context, t *asynq.Task) error {
		got = string(t.Payload())
		return nil
	}))
	r.Register("analysis:broken", asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return errors.New("boom")
	}))

	task, err := NewAnalysisRunTask(AnalysisRunPayload{AnalysisID: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Mux().ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if got != `{"analysis_id":"abc"}` {
		t.Errorf("payload = %q", got)
	}

	if err := r.Mux().ProcessTask(context.Background(), asynq.NewTask("analysis:broken", nil)); err == nil {
		t.Fatal("expected handler error")
	}

	out := logs.String()
	if !strings.Contains(out, "task done") || !strings.Contains(out, "task failed") || !strings.Contains(out, "error=boom") {
		t.Errorf("logs = %s", out)
	}
}
