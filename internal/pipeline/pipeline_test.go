package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kyuchan/presentation-grader/internal/analysis"
	"github.com/kyuchan/presentation-grader/internal/cache"
	"github.com/kyuchan/presentation-grader/internal/grading"
	"github.com/kyuchan/presentation-grader/internal/models"
	"github.com/kyuchan/presentation-grader/internal/prosody"
	"github.com/kyuchan/presentation-grader/internal/report"
	"github.com/kyuchan/presentation-grader/internal/stt"
)

type fakeSTT struct {
	initErr error
	segs    []models.Segment
	err     error
	calls   int
}

func (f *fakeSTT) Init(context.Context) error { return f.initErr }
func (f *fakeSTT) Transcribe(context.Context, string) ([]models.Segment, error) {
	f.calls++
	if f.err != nil {
		return []models.Segment{}, f.err
	}
	out := make([]models.Segment, len(f.segs))
	copy(out, f.segs)
	return out, nil
}
func (f *fakeSTT) Backend() string  { return "fake" }
func (f *fakeSTT) Language() string { return "ko" }

type fakeEnricher struct{ calls int }

func (f *fakeEnricher) EnrichFile(_ context.Context, _ string, segs []models.Segment) prosody.Summary {
	f.calls++
	for i := range segs {
		segs[i].Enrich(models.Metrics{Jitter: 1.5, Shimmer: 4})
	}
	return prosody.Summary{Measured: len(segs)}
}

type fakeGrader struct {
	results []models.CriterionResult
	err     error
	sub     grading.Submission
}

func (f *fakeGrader) Grade(_ context.Context, sub grading.Submission) ([]models.CriterionResult, error) {
	f.sub = sub
	return f.results, f.err
}

type fakeReporter struct {
	in  report.Input
	err error
}

func (f *fakeReporter) Render(in report.Input) (report.Paths, error) {
	f.in = in
	if f.err != nil {
		return report.Paths{}, f.err
	}
	return report.Paths{PDF: "results/pdf/" + in.TeamName + ".pdf", Excel: "results/excel/x.xlsx"}, nil
}

type memTranscripts struct {
	data map[string][]models.Segment
}

func (m *memTranscripts) Key(path, lang, backend string) (string, error) {
	return backend + ":" + lang + ":" + path, nil
}

func (m *memTranscripts) Load(_ context.Context, key string) ([]models.Segment, error) {
	segs, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return append([]models.Segment(nil), segs...), nil
}

func (m *memTranscripts) Save(_ context.Context, key string, segs []models.Segment) error {
	raw := make([]models.Segment, len(segs))
	for i, s := range segs {
		raw[i] = models.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	m.data[key] = raw
	return nil
}

var criteria = []models.Criterion{{Name: "내용", Weight: 60}, {Name: "전달력", Weight: 40}}

func TestRunCompletesAnalysis(t *testing.T) {
	ctx := context.Background()
	recognizer := &fakeSTT{segs: []models.Segment{{Start: 0, End: 1.2, Text: "안녕하세요"}}}
	enricher := &fakeEnricher{}
	grader := &fakeGrader{results: []models.CriterionResult{{Score: "50", Feedback: "좋음"}, {Score: "30"}}}
	reporter := &fakeReporter{}
	store := analysis.NewMemoryStore()

	rec := analysis.New("알파", "AI", criteria)
	if err := store.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	p := New(recognizer, enricher, grader, reporter, WithStore(store))
	out, err := p.Run(ctx, Job{AnalysisID: rec.ID, TeamName: "알파", Topic: "AI", Criteria: criteria, AudioPath: "talk.wav"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.TotalScore != 80 || len(out.Segments) != 1 || *out.Segments[0].Jitter != 1.5 {
		t.Errorf("outcome = %+v", out)
	}
	if len(grader.sub.Segments) != 1 || !grader.sub.Segments[0].Analyzed() {
		t.Error("grader should see enriched segments")
	}
	if reporter.in.TeamName != "알파" || len(reporter.in.Results) != 2 {
		t.Errorf("report input = %+v", reporter.in)
	}

	saved, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Status != models.AnalysisStatusCompleted || saved.TotalScore != 80 || saved.PDFPath == "" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestRunWithoutTranscript(t *testing.T) {
	recognizer := &fakeSTT{err: &stt.RecognitionError{Backend: "fake", Err: errors.New("decoder crashed")}}
	enricher := &fakeEnricher{}
	p := New(recognizer, enricher, &fakeGrader{results: []models.CriterionResult{{Score: "10"}}}, &fakeReporter{})

	out, err := p.Run(context.Background(), Job{TeamName: "b", Criteria: criteria, AudioPath: "talk.wav"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Segments) != 0 || !strings.Contains(out.TranscriptError, "decoder crashed") {
		t.Errorf("outcome = %+v", out)
	}
	if enricher.calls != 0 {
		t.Error("prosody should not run without segments")
	}
	if len(out.Results) != 2 || out.Results[1].Score != "0" {
		t.Errorf("results not aligned: %+v", out.Results)
	}
}

func TestRunTrimsExtraGraderResults(t *testing.T) {
	extra := []models.CriterionResult{{Score: "8"}, {Score: "7"}, {Score: "9"}}
	p := New(&fakeSTT{}, &fakeEnricher{}, &fakeGrader{results: extra}, &fakeReporter{})

	out, err := p.Run(context.Background(), Job{TeamName: "d", Criteria: criteria})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Results) != len(criteria) || out.Results[1].Score != "7" {
		t.Errorf("results = %+v, want one per criterion", out.Results)
	}
}

func TestRunInitFailure(t *testing.T) {
	recognizer := &fakeSTT{initErr: stt.ErrProviderNotReady}
	p := New(recognizer, &fakeEnricher{}, nil, &fakeReporter{})
	out, err := p.Run(context.Background(), Job{TeamName: "c", Criteria: criteria, AudioPath: "a.wav"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if recognizer.calls != 0 || out.TranscriptError == "" {
		t.Errorf("calls=%d transcript error=%q", recognizer.calls, out.TranscriptError)
	}
	if out.GradingError == "" || out.Results[0].Feedback != grading.NoProviderFeedback {
		t.Errorf("results = %+v", out.Results)
	}
}

func TestRunGradingFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		feedback string
	}{
		{"no provider", grading.ErrNoProvider, grading.NoProviderFeedback},
		{"model error", errors.New("rate limited"), "자동 채점에 실패했습니다: rate limited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&fakeSTT{}, &fakeEnricher{}, &fakeGrader{err: tt.err}, &fakeReporter{})
			out, err := p.Run(context.Background(), Job{TeamName: "d", Criteria: criteria})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out.TotalScore != 0 || len(out.Results) != 2 || out.Results[0].Feedback != tt.feedback {
				t.Errorf("results = %+v", out.Results)
			}
		})
	}
}

func TestRunSuppliedResultsSkipGrading(t *testing.T) {
	grader := &fakeGrader{err: errors.New("should not be called")}
	p := New(&fakeSTT{}, &fakeEnricher{}, grader, &fakeReporter{})
	out, err := p.Run(context.Background(), Job{
		TeamName: "e",
		Criteria: criteria,
		Results:  []models.CriterionResult{{Score: "7"}, {Score: "x"}, {Score: "100"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 2 || out.TotalScore != 7 || out.GradingError != "" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestRunReportFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	store := analysis.NewMemoryStore()
	rec := analysis.New("f", "t", criteria)
	store.Create(ctx, rec)

	p := New(&fakeSTT{}, &fakeEnricher{}, &fakeGrader{}, &fakeReporter{err: report.ErrFontNotFound}, WithStore(store))
	_, err := p.Run(ctx, Job{AnalysisID: rec.ID, TeamName: "f", Criteria: criteria})
	if !errors.Is(err, report.ErrFontNotFound) {
		t.Fatalf("err = %v", err)
	}
	saved, _ := store.Get(ctx, rec.ID)
	if saved.Status != models.AnalysisStatusFailed || saved.Error == "" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestSegmentsUsesTranscriptCache(t *testing.T) {
	recognizer := &fakeSTT{segs: []models.Segment{{Start: 0, End: 1, Text: "one"}}}
	enricher := &fakeEnricher{}
	transcripts := &memTranscripts{data: map[string][]models.Segment{}}
	p := New(recognizer, enricher, nil, nil, WithTranscriptCache(transcripts))

	for i := 0; i < 2; i++ {
		segs, msg := p.Segments(context.Background(), "talk.wav")
		if msg != "" || len(segs) != 1 || !segs[0].Analyzed() {
			t.Fatalf("run %d: segs=%+v msg=%q", i, segs, msg)
		}
	}
	if recognizer.calls != 1 {
		t.Errorf("recognizer calls = %d, want 1", recognizer.calls)
	}
	if enricher.calls != 2 {
		t.Errorf("enricher calls = %d, want 2", enricher.calls)
	}
	if cached := transcripts.data["fake:ko:talk.wav"]; len(cached) != 1 || cached[0].Jitter != nil {
		t.Errorf("cached = %+v", cached)
	}
}

func TestUploadMirrorsReports(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "a.pdf")
	os.WriteFile(pdf, []byte("pdf"), 0o644)

	remote := &fakeRemote{}
	p := New(&fakeSTT{}, &fakeEnricher{}, nil, nil, WithRemote(remote, "reports"))
	p.upload(context.Background(), report.Paths{PDF: pdf})
	if len(remote.keys) != 1 || remote.keys[0] != "reports/pdf/a.pdf" {
		t.Errorf("keys = %v", remote.keys)
	}
}

type fakeRemote struct{ keys []string }

func (f *fakeRemote) Upload(_ context.Context, bucket, path string, _ io.Reader, _ int64, _ string) error {
	f.keys = append(f.keys, bucket+"/"+path)
	return nil
}

func (f *fakeRemote) PublicURL(bucket, path string) string { return bucket + "/" + path }
