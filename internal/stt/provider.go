// Package stt turns recorded audio into timestamped transcript segments.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kyuchan/presentation-grader/internal/models"
)

// ErrProviderNotReady is returned by Transcribe before a successful Init.
var ErrProviderNotReady = errors.New("speech recognition model is not loaded")

// RecognitionError wraps a failure inside the recognition engine.
type RecognitionError struct {
	Backend string
	Err     error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("%s recognition failed: %v", e.Backend, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Request holds the parameters for one transcription.
type Request struct {
	FilePath string `json:"file_path"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// Model is a loaded recognition engine.
type Model interface {
	Transcribe(ctx context.Context, req Request) ([]models.Segment, error)
	Name() string
}

// Loader produces a Model. It may be slow; Provider calls it at most once per
// successful load.
type Loader func(ctx context.Context) (Model, error)

type loadedModel struct{ Model }

// Provider is a long-lived handle to a lazily loaded Model. It is safe for
// concurrent use: Init serialises loads and Transcribe never blocks on one.
type Provider struct {
	load     Loader
	backend  string
	language string
	logger   *slog.Logger

	mu    sync.Mutex
	model atomic.Pointer[loadedModel]
	loads atomic.Int64
}

// NewProvider returns an uninitialised handle. backend names the engine for
// logs and cache keys.
func NewProvider(backend, language string, load Loader, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{load: load, backend: backend, language: language, logger: logger}
}

// Init loads the model unless it is already loaded. Concurrent callers wait
// for the load in progress. A failed load leaves the provider empty so a later
// Init can try again.
func (p *Provider) Init(ctx context.Context) error {
	if p.model.Load() != nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model.Load() != nil {
		return nil
	}

	p.loads.Add(1)
	p.logger.Info("loading speech recognition model", "backend", p.backend)
	m, err := p.load(ctx)
	if err != nil {
		p.logger.Error("speech recognition model failed to load", "backend", p.backend, "error", err)
		return fmt.Errorf("load %s model: %w", p.backend, err)
	}
	if m == nil {
		return fmt.Errorf("load %s model: loader returned no model", p.backend)
	}
	p.model.Store(&loadedModel{m})
	p.logger.Info("speech recognition model loaded", "backend", p.backend, "model", m.Name())
	return nil
}

func (p *Provider) Ready() bool { return p.model.Load() != nil }

// Loads reports how many times the loader has been invoked.
func (p *Provider) Loads() int64 { return p.loads.Load() }

func (p *Provider) Backend() string  { return p.backend }
func (p *Provider) Language() string { return p.language }

// Transcribe returns the segments of the audio at path in spoken order. On
// failure it returns an empty slice and either ErrProviderNotReady or a
// *RecognitionError; both leave the caller free to continue without a
// transcript.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) ([]models.Segment, error) {
	lm := p.model.Load()
	if lm == nil {
		return []models.Segment{}, ErrProviderNotReady
	}

	raw, err := lm.Transcribe(ctx, Request{FilePath: audioPath, Language: p.language})
	if err != nil {
		return []models.Segment{}, &RecognitionError{Backend: lm.Name(), Err: err}
	}
	return normalize(raw), nil
}

// normalize drops segments without a positive duration, trims text and strips
// any metrics an engine may have filled in. Order is kept.
func normalize(raw []models.Segment) []models.Segment {
	out := make([]models.Segment, 0, len(raw))
	for _, s := range raw {
		if !(s.End > s.Start) {
			continue
		}
		out = append(out, models.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return out
}
