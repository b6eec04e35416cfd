// Package pipeline runs one presentation through transcription, prosody
// analysis, grading and report rendering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kyuchan/presentation-grader/internal/analysis"
	"github.com/kyuchan/presentation-grader/internal/cache"
	"github.com/kyuchan/presentation-grader/internal/grading"
	"github.com/kyuchan/presentation-grader/internal/models"
	"github.com/kyuchan/presentation-grader/internal/prosody"
	"github.com/kyuchan/presentation-grader/internal/report"
	"github.com/kyuchan/presentation-grader/internal/storage"
	"github.com/kyuchan/presentation-grader/pkg/textextract"
)

type Transcriber interface {
	Init(ctx context.Context) error
	Transcribe(ctx context.Context, audioPath string) ([]models.Segment, error)
	Backend() string
	Language() string
}

type Enricher interface {
	EnrichFile(ctx context.Context, path string, segments []models.Segment) prosody.Summary
}

type Grader interface {
	Grade(ctx context.Context, sub grading.Submission) ([]models.CriterionResult, error)
}

type Reporter interface {
	Render(in report.Input) (report.Paths, error)
}

// Job describes one presentation. When Results is non-nil grading is skipped
// and the given results are used.
type Job struct {
	AnalysisID uuid.UUID
	TeamName   string
	Topic      string
	Criteria   []models.Criterion
	AudioPath  string
	SlidesPath string
	Results    []models.CriterionResult
}

type Outcome struct {
	Segments        []models.Segment         `json:"segments"`
	TranscriptError string                   `json:"transcript_error,omitempty"`
	Results         []models.CriterionResult `json:"results"`
	TotalScore      int                      `json:"total_score"`
	GradingError    string                   `json:"grading_error,omitempty"`
	Reports         report.Paths             `json:"reports"`
}

type Pipeline struct {
	stt      Transcriber
	prosody  Enricher
	grader   Grader
	reporter Reporter

	transcripts cache.TranscriptStore
	store       analysis.Store
	remote      storage.Remote
	bucket      string
	logger      *slog.Logger
}

type Option func(*Pipeline)

func WithTranscriptCache(c cache.TranscriptStore) Option {
	return func(p *Pipeline) { p.transcripts = c }
}

func WithStore(s analysis.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithRemote mirrors rendered reports to bucket.
func WithRemote(r storage.Remote, bucket string) Option {
	return func(p *Pipeline) { p.remote, p.bucket = r, bucket }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(stt Transcriber, enricher Enricher, grader Grader, reporter Reporter, opts ...Option) *Pipeline {
	p := &Pipeline{
		stt:      stt,
		prosody:  enricher,
		grader:   grader,
		reporter: reporter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Segments transcribes the audio and measures every segment. It never fails:
// a recognition problem yields no segments and a message, and prosody
// failures leave zeros.
func (p *Pipeline) Segments(ctx context.Context, audioPath string) ([]models.Segment, string) {
	segs, err := p.transcribe(ctx, audioPath)
	if err != nil {
		p.logger.Warn("continuing without transcript", "audio", audioPath, "error", err)
		return []models.Segment{}, err.Error()
	}
	if len(segs) > 0 {
		p.prosody.EnrichFile(ctx, audioPath, segs)
	}
	return segs, ""
}

func (p *Pipeline) transcribe(ctx context.Context, audioPath string) ([]models.Segment, error) {
	var key string
	if p.transcripts != nil {
		k, err := p.transcripts.Key(audioPath, p.stt.Language(), p.stt.Backend())
		if err != nil {
			p.logger.Warn("transcript cache key failed", "error", err)
		} else {
			key = k
			segs, err := p.transcripts.Load(ctx, key)
			if err == nil {
				p.logger.Info("transcript cache hit", "audio", audioPath, "segments", len(segs))
				return segs, nil
			}
			if !errors.Is(err, cache.ErrMiss) {
				p.logger.Warn("transcript cache read failed", "error", err)
			}
		}
	}

	if err := p.stt.Init(ctx); err != nil {
		return nil, err
	}
	segs, err := p.stt.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	if key != "" {
		if err := p.transcripts.Save(ctx, key, segs); err != nil {
			p.logger.Warn("transcript cache write failed", "error", err)
		}
	}
	return segs, nil
}

// Run executes job. Only a report rendering failure is returned as an error;
// when job.AnalysisID is set the record is kept up to date either way.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Outcome, error) {
	p.setStatus(ctx, job.AnalysisID, models.AnalysisStatusProcessing, "")

	out := &Outcome{Segments: []models.Segment{}}
	if job.AudioPath != "" {
		out.Segments, out.TranscriptError = p.Segments(ctx, job.AudioPath)
	}

	if job.Results != nil {
		out.Results = grading.Align(job.Criteria, job.Results)
	} else {
		out.Results, out.GradingError = p.grade(ctx, job, out.Segments)
	}
	out.TotalScore = grading.TotalScore(out.Results)

	paths, err := p.reporter.Render(report.Input{
		TeamName: job.TeamName,
		Topic:    job.Topic,
		Criteria: job.Criteria,
		Results:  out.Results,
	})
	out.Reports = paths
	if err != nil {
		err = fmt.Errorf("render reports: %w", err)
		p.save(ctx, job, out, err)
		return out, err
	}

	p.upload(ctx, paths)
	p.save(ctx, job, out, nil)
	p.logger.Info("analysis complete",
		"team", job.TeamName,
		"topic", job.Topic,
		"segments", len(out.Segments),
		"total_score", out.TotalScore,
	)
	return out, nil
}

func (p *Pipeline) grade(ctx context.Context, job Job, segs []models.Segment) ([]models.CriterionResult, string) {
	sub := grading.Submission{
		TeamName: job.TeamName,
		Topic:    job.Topic,
		Criteria: job.Criteria,
		Segments: segs,
	}
	if job.SlidesPath != "" {
		if text, err := textextract.ExtractFile(job.SlidesPath); err != nil {
			p.logger.Warn("slides unreadable, grading without them", "path", job.SlidesPath, "error", err)
		} else {
			sub.SlidesText = text.Content()
		}
	}

	if p.grader == nil {
		return grading.ZeroResults(job.Criteria, grading.NoProviderFeedback), grading.ErrNoProvider.Error()
	}
	results, err := p.grader.Grade(ctx, sub)
	switch {
	case errors.Is(err, grading.ErrNoProvider):
		p.logger.Warn("grading skipped, no language model configured")
		return grading.ZeroResults(job.Criteria, grading.NoProviderFeedback), err.Error()
	case err != nil:
		p.logger.Error("grading failed", "team", job.TeamName, "error", err)
		return grading.ZeroResults(job.Criteria, "자동 채점에 실패했습니다: "+err.Error()), err.Error()
	}
	return grading.Align(job.Criteria, results), ""
}

func (p *Pipeline) upload(ctx context.Context, paths report.Paths) {
	if p.remote == nil {
		return
	}
	files := []struct{ local, prefix, contentType string }{
		{paths.PDF, "pdf", storage.ContentTypePDF},
		{paths.Excel, "excel", storage.ContentTypeXLSX},
	}
	for _, f := range files {
		if f.local == "" {
			continue
		}
		key := f.prefix + "/" + filepath.Base(f.local)
		if err := storage.UploadFile(ctx, p.remote, p.bucket, key, f.local, f.contentType); err != nil {
			p.logger.Warn("report upload failed", "key", key, "error", err)
			continue
		}
		p.logger.Info("report mirrored", "url", p.remote.PublicURL(p.bucket, key))
	}
}

func (p *Pipeline) setStatus(ctx context.Context, id uuid.UUID, status, msg string) {
	if p.store == nil || id == uuid.Nil {
		return
	}
	if err := p.store.UpdateStatus(ctx, id, status, msg); err != nil {
		p.logger.Warn("analysis status update failed", "id", id, "status", status, "error", err)
	}
}

func (p *Pipeline) save(ctx context.Context, job Job, out *Outcome, runErr error) {
	if p.store == nil || job.AnalysisID == uuid.Nil {
		return
	}
	a, err := p.store.Get(ctx, job.AnalysisID)
	if err != nil {
		p.logger.Warn("analysis record unavailable", "id", job.AnalysisID, "error", err)
		return
	}
	a.Segments = out.Segments
	a.Results = out.Results
	a.TotalScore = out.TotalScore
	a.PDFPath = out.Reports.PDF
	a.ExcelPath = out.Reports.Excel
	a.TranscriptError = out.TranscriptError
	a.Status = models.AnalysisStatusCompleted
	a.Error = ""
	if runErr != nil {
		a.Status = models.AnalysisStatusFailed
		a.Error = runErr.Error()
	}
	if err := p.store.Update(ctx, a); err != nil {
		p.logger.Warn("analysis record update failed", "id", job.AnalysisID, "error", err)
	}
}
