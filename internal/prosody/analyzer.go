// Package prosody measures vocal perturbation (jitter and shimmer) for each
// transcribed segment of a recording.
package prosody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/kyuchan/presentation-grader/internal/audio"
	"github.com/kyuchan/presentation-grader/internal/models"
)

// ErrPanic wraps a panic recovered while measuring a segment.
var ErrPanic = errors.New("measurement panicked")

// Result is the outcome for the segment at Index. A non-nil Err marks the
// segment as degraded; Metrics is meaningless then.
type Result struct {
	Index   int
	Metrics models.Metrics
	Err     error
}

func (r Result) Degraded() bool { return r.Err != nil }

// Summary counts how a batch went.
type Summary struct {
	Measured int
	Degraded int
}

type Analyzer struct {
	params  Params
	workers int
	logger  *slog.Logger
	open    func(ctx context.Context, path string) (*audio.File, error)
}

type Option func(*Analyzer)

// WithWorkers bounds how many segments are measured at once.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithOpener replaces audio.Open for EnrichFile.
func WithOpener(open func(ctx context.Context, path string) (*audio.File, error)) Option {
	return func(a *Analyzer) {
		if open != nil {
			a.open = open
		}
	}
}

func NewAnalyzer(params Params, opts ...Option) (*Analyzer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prosody params: %w", err)
	}
	a := &Analyzer{
		params:  params,
		workers: 4,
		logger:  slog.Default(),
		open:    audio.Open,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Analyzer) Params() Params { return a.params }

// Measure computes jitter and shimmer, in percent, for one window of audio.
// Quantities that are undefined for the window (too few periods, silence) come
// back as 0.
func (a *Analyzer) Measure(snd *audio.Sound) (models.Metrics, error) {
	p := a.params
	pitch, err := ToPitch(snd, p)
	if err != nil {
		return models.Metrics{}, fmt.Errorf("pitch: %w", err)
	}
	pp := pitch.ToPointProcess()

	tmin, tmax := 0.0, 0.0
	if p.RangeEnd > p.RangeStart {
		tmin, tmax = snd.XMin+p.RangeStart, snd.XMin+p.RangeEnd
	}
	jitter := pp.JitterLocal(tmin, tmax, p.ShortestPeriod, p.LongestPeriod, p.MaxPeriodFactor)
	shimmer := pp.ShimmerLocal(snd, tmin, tmax, p.ShortestPeriod, p.LongestPeriod, p.MaxPeriodFactor, p.MaxAmplitudeFactor)

	return models.Metrics{
		Jitter:  percentOrZero(jitter),
		Shimmer: percentOrZero(shimmer),
	}, nil
}

func percentOrZero(ratio float64) float64 {
	v := ratio * 100
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Analyze measures every segment independently and returns one Result per
// segment, in order. It does not modify segments. A failure in one segment,
// including a panic, only degrades that segment.
func (a *Analyzer) Analyze(ctx context.Context, file *audio.File, segments []models.Segment) []Result {
	results := make([]Result, len(segments))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i := range segments {
		start, end := segments[i].Start, segments[i].End
		g.Go(func() error {
			results[i] = a.measureSegment(ctx, file, i, start, end)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *Analyzer) measureSegment(ctx context.Context, file *audio.File, i int, start, end float64) (res Result) {
	res.Index = i
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	part, err := file.ExtractPart(start, end)
	if err != nil {
		res.Err = fmt.Errorf("extract [%g, %g): %w", start, end, err)
		return res
	}
	res.Metrics, res.Err = a.Measure(part)
	return res
}

// Enrich measures segments against file and writes jitter and shimmer into
// them in place. Measured segments are overwritten; degraded ones get 0 for
// any value they do not already carry. Every segment ends up with both values.
func (a *Analyzer) Enrich(ctx context.Context, file *audio.File, segments []models.Segment) Summary {
	var sum Summary
	for _, r := range a.Analyze(ctx, file, segments) {
		seg := &segments[r.Index]
		if r.Degraded() {
			sum.Degraded++
			a.logger.Warn("prosody degraded for segment",
				"index", r.Index,
				"start", seg.Start,
				"end", seg.End,
				"error", r.Err,
			)
			seg.EnsureMetrics()
			continue
		}
		sum.Measured++
		seg.Enrich(r.Metrics)
	}
	return sum
}

// EnrichFile opens the audio at path and enriches segments. If the audio
// cannot be loaded every segment still ends up with values, 0 where missing.
func (a *Analyzer) EnrichFile(ctx context.Context, path string, segments []models.Segment) Summary {
	file, err := a.open(ctx, path)
	if err != nil {
		a.logger.Warn("prosody analysis skipped, audio unavailable",
			"path", path,
			"segments", len(segments),
			"error", err,
		)
		for i := range segments {
			segments[i].EnsureMetrics()
		}
		return Summary{Degraded: len(segments)}
	}

	sum := a.Enrich(ctx, file, segments)
	a.logger.Info("prosody analysis complete",
		"path", path,
		"measured", sum.Measured,
		"degraded", sum.Degraded,
	)
	return sum
}
