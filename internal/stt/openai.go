package stt

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kyuchan/presentation-grader/internal/models"
)

// OpenAIConfig configures the Whisper API backend or any server that speaks
// the same protocol.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
	Timeout time.Duration
}

// OpenAIModel transcribes through the /audio/transcriptions endpoint with
// verbose JSON output so segment timestamps come back.
type OpenAIModel struct {
	client *openai.Client
	model  string
	name   string
}

func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIModel{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		name:   "openai-whisper",
	}
}

func (o *OpenAIModel) Name() string { return o.name }

func (o *OpenAIModel) Transcribe(ctx context.Context, req Request) ([]models.Segment, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: req.FilePath,
		Language: req.Language,
		Prompt:   req.Prompt,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, err
	}

	segs := make([]models.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segs = append(segs, models.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	if len(segs) == 0 && resp.Text != "" && resp.Duration > 0 {
		segs = append(segs, models.Segment{Start: 0, End: resp.Duration, Text: resp.Text})
	}
	return segs, nil
}

// OpenAILoader returns a Loader for the hosted Whisper API.
func OpenAILoader(cfg OpenAIConfig) Loader {
	return func(ctx context.Context) (Model, error) {
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return NewOpenAIModel(cfg), nil
	}
}

// WhisperServerLoader returns a Loader for a self-hosted whisper server that
// exposes the OpenAI transcription endpoint, e.g. http://localhost:8178/v1.
func WhisperServerLoader(baseURL, model string, timeout time.Duration) Loader {
	return func(ctx context.Context) (Model, error) {
		if baseURL == "" {
			baseURL = "http://localhost:8178/v1"
		}
		m := NewOpenAIModel(OpenAIConfig{BaseURL: baseURL, Model: model, Timeout: timeout})
		m.name = "whisper-server"
		return m, nil
	}
}
