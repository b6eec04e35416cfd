package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kyuchan/presentation-grader/internal/analysis"
	"github.com/kyuchan/presentation-grader/internal/models"
	"github.com/kyuchan/presentation-grader/internal/pipeline"
	"github.com/kyuchan/presentation-grader/internal/queue"
	"github.com/kyuchan/presentation-grader/internal/report"
	"github.com/kyuchan/presentation-grader/internal/storage"
)

type fakeRunner struct {
	mu    sync.Mutex
	jobs  []pipeline.Job
	store analysis.Store
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, job pipeline.Job) (*pipeline.Outcome, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	results := job.Results
	if results == nil {
		results = []models.CriterionResult{{Score: "8", Feedback: "ok"}}
	}
	out := &pipeline.Outcome{Results: results, TotalScore: 8}
	if f.store != nil {
		a, err := f.store.Get(ctx, job.AnalysisID)
		if err == nil {
			a.Status = models.AnalysisStatusCompleted
			a.Results = results
			a.TotalScore = 8
			if f.err != nil {
				a.Status = models.AnalysisStatusFailed
				a.Error = f.err.Error()
			}
			f.store.Update(ctx, a)
		}
	}
	return out, f.err
}

type fakeQueue struct {
	payloads []queue.AnalysisRunPayload
	err      error
}

func (q *fakeQueue) EnqueueAnalysisRun(_ context.Context, p queue.AnalysisRunPayload) error {
	q.payloads = append(q.payloads, p)
	return q.err
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestGenerateReport(t *testing.T) {
	valid := `{"teamName":"Team A","presentationTopic":"AI Ethics","criteria":[{"name":"Delivery","weight":10}],"gradingResult":[{"score":"7","feedback":"good"}]}`

	tests := []struct {
		name     string
		body     string
		err      error
		want     int
		contains string
	}{
		{"missing team", `{"presentationTopic":"x","criteria":[{"name":"a","weight":1}],"gradingResult":[{"score":"1"}]}`, nil, http.StatusBadRequest, "필수 데이터가 부족합니다."},
		{"no results", `{"teamName":"a","presentationTopic":"x","criteria":[{"name":"a","weight":1}],"gradingResult":[]}`, nil, http.StatusBadRequest, "필수 데이터가 부족합니다."},
		{"malformed", `{`, nil, http.StatusBadRequest, "잘못된 요청 형식입니다."},
		{"font", valid, report.ErrFontNotFound, http.StatusInternalServerError, "폰트 오류"},
		{"other failure", valid, errors.New("disk full"), http.StatusInternalServerError, "보고서 생성 실패: disk full"},
		{"success", valid, nil, http.StatusOK, `"pdf_id":"Team A"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.err}
			h := NewReportHandler(runner, nil, "")
			rec := httptest.NewRecorder()
			h.GenerateReport(rec, httptest.NewRequest(http.MethodPost, "/generate_report", strings.NewReader(tt.body)))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body %q missing %q", rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestGenerateReportSuccessBody(t *testing.T) {
	runner := &fakeRunner{}
	h := NewReportHandler(runner, nil, "")
	body := `{"teamName":"Team A","presentationTopic":"AI Ethics","criteria":[{"name":"Delivery","weight":10}],"gradingResult":[{"score":8,"feedback":"good"}]}`
	rec := httptest.NewRecorder()
	h.GenerateReport(rec, httptest.NewRequest(http.MethodPost, "/generate_report", strings.NewReader(body)))

	got := decode(t, rec)
	if got["status"] != "success" || got["excel_id"] != "AI_Ethics" || got["total_score"] != float64(8) {
		t.Errorf("body = %v", got)
	}
	if len(runner.jobs) != 1 || runner.jobs[0].Results[0].Score != "8" {
		t.Errorf("job = %+v", runner.jobs)
	}
}

func downloadRouter(h *ReportHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/download/{fileType}/{fileID}", h.Download)
	return r
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	pdfDir := filepath.Join(dir, "pdf")
	os.MkdirAll(pdfDir, 0o755)
	os.WriteFile(filepath.Join(pdfDir, "Team A.pdf"), []byte("%PDF-1.3"), 0o644)

	h := NewReportHandler(nil, storage.NewLocal(pdfDir, filepath.Join(dir, "excel"), dir), "")
	srv := downloadRouter(h)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad type", "/download/doc/x", http.StatusBadRequest},
		{"missing", "/download/excel/nothing", http.StatusNotFound},
		{"found", "/download/pdf/Team%20A", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/pdf/Team%20A", nil))
	if ct := rec.Header().Get("Content-Type"); ct != storage.ContentTypePDF {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "Team A.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.String() != "%PDF-1.3" {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/excel/nothing", nil))
	if !strings.Contains(rec.Body.String(), "nothing.xlsx") {
		t.Errorf("not-found body = %q", rec.Body.String())
	}
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "index.html")

	h := NewReportHandler(nil, nil, page)
	rec := httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("missing page status = %d", rec.Code)
	}

	os.WriteFile(page, []byte("<h1>grader</h1>"), 0o644)
	rec = httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "<h1>grader</h1>" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("refused") }),
		"absent":   nil,
	})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	checks := decode(t, rec)["checks"].(map[string]any)
	if checks["postgres"] != "ok" || checks["redis"] != "unhealthy: refused" {
		t.Errorf("checks = %v", checks)
	}
	if _, ok := checks["absent"]; ok {
		t.Error("nil dependency was checked")
	}
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, "RIFF....WAVE")
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func analysisRouter(h *AnalysisHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/analyses", h.Create)
	r.Get("/analyses", h.List)
	r.Get("/analyses/{id}", h.Get)
	r.Get("/analyses/{id}/events", h.Events)
	return r
}

var analysisFields = map[string]string{
	"teamName":          "Team A",
	"presentationTopic": "AI Ethics",
	"criteria":          `[{"name":"Delivery","weight":10}]`,
}

func TestCreateAnalysisInline(t *testing.T) {
	store := analysis.NewMemoryStore()
	runner := &fakeRunner{store: store}
	h := NewAnalysisHandler(store, runner, nil, storage.NewLocal("", "", t.TempDir()), 10)

	body, ct := multipartBody(t, analysisFields, map[string]string{"audio": "talk.wav", "slides": "deck.pptx"})
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	analysisRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	if got["status"] != models.AnalysisStatusCompleted || got["team_name"] != "Team A" {
		t.Errorf("body = %v", got)
	}
	if len(runner.jobs) != 1 {
		t.Fatalf("jobs = %d", len(runner.jobs))
	}
	job := runner.jobs[0]
	if job.Results != nil || filepath.Ext(job.AudioPath) != ".wav" || filepath.Ext(job.SlidesPath) != ".pptx" {
		t.Errorf("job = %+v", job)
	}
}

func TestCreateAnalysisQueued(t *testing.T) {
	store := analysis.NewMemoryStore()
	runner := &fakeRunner{store: store}
	q := &fakeQueue{}
	h := NewAnalysisHandler(store, runner, q, storage.NewLocal("", "", t.TempDir()), 10)

	body, ct := multipartBody(t, analysisFields, map[string]string{"audio": "talk.m4a"})
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	analysisRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	if got["status"] != models.AnalysisStatusPending || len(q.payloads) != 1 || q.payloads[0].AnalysisID != got["id"] {
		t.Errorf("body = %v payloads = %v", got, q.payloads)
	}
	if len(runner.jobs) != 0 {
		t.Error("queued analysis ran inline")
	}
}

func TestCreateAnalysisQueueDown(t *testing.T) {
	store := analysis.NewMemoryStore()
	runner := &fakeRunner{store: store}
	h := NewAnalysisHandler(store, runner, &fakeQueue{err: errors.New("redis down")}, storage.NewLocal("", "", t.TempDir()), 10)

	body, ct := multipartBody(t, analysisFields, map[string]string{"audio": "talk.wav"})
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	analysisRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || len(runner.jobs) != 1 {
		t.Fatalf("status = %d jobs = %d", rec.Code, len(runner.jobs))
	}
}

func TestCreateAnalysisRejects(t *testing.T) {
	store := analysis.NewMemoryStore()
	h := NewAnalysisHandler(store, &fakeRunner{}, nil, storage.NewLocal("", "", t.TempDir()), 10)

	noCriteria := map[string]string{"teamName": "Team A", "presentationTopic": "x", "criteria": "not json"}
	tests := []struct {
		name   string
		fields map[string]string
		files  map[string]string
	}{
		{"no audio", analysisFields, nil},
		{"bad audio type", analysisFields, map[string]string{"audio": "talk.exe"}},
		{"bad criteria", noCriteria, map[string]string{"audio": "talk.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.fields, tt.files)
			req := httptest.NewRequest(http.MethodPost, "/analyses", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			analysisRouter(h).ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
			}
		})
	}

	list, _ := store.List(context.Background(), 0, 0)
	if len(list) != 0 {
		t.Errorf("rejected requests stored %d records", len(list))
	}
}

func TestGetAndListAnalyses(t *testing.T) {
	store := analysis.NewMemoryStore()
	ctx := context.Background()
	a := analysis.New("Team A", "AI Ethics", []models.Criterion{{Name: "Delivery", Weight: 10}})
	store.Create(ctx, a)
	store.Create(ctx, analysis.New("Team B", "Robots", nil))

	srv := analysisRouter(NewAnalysisHandler(store, nil, nil, nil, 10))

	tests := []struct {
		path string
		want int
	}{
		{"/analyses/" + a.ID.String(), http.StatusOK},
		{"/analyses/not-a-uuid", http.StatusBadRequest},
		{"/analyses/00000000-0000-0000-0000-000000000001", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyses?limit=1", nil))
	if got := decode(t, rec)["count"]; got != float64(1) {
		t.Errorf("count = %v", got)
	}
}

func TestAnalysisEvents(t *testing.T) {
	store := analysis.NewMemoryStore()
	ctx := context.Background()
	a := analysis.New("Team A", "AI Ethics", nil)
	store.Create(ctx, a)

	h := NewAnalysisHandler(store, nil, nil, nil, 10)
	h.pollEvery = 10 * time.Millisecond
	srv := httptest.NewServer(analysisRouter(h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/analyses/" + a.ID.String() + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got models.Analysis
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != models.AnalysisStatusPending {
		t.Fatalf("first status = %q", got.Status)
	}

	store.UpdateStatus(ctx, a.ID, models.AnalysisStatusCompleted, "")
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != models.AnalysisStatusCompleted {
		t.Fatalf("second status = %q", got.Status)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

type fakeSegmenter struct{ err string }

func (f fakeSegmenter) Segments(_ context.Context, path string) ([]models.Segment, string) {
	if f.err != "" {
		return []models.Segment{}, f.err
	}
	j, s := 1.5, 3.0
	return []models.Segment{{Start: 0, End: 2, Text: "안녕하세요", Jitter: &j, Shimmer: &s}}, ""
}

func TestTranscriptions(t *testing.T) {
	tests := []struct {
		name    string
		seg     fakeSegmenter
		wantErr string
		wantN   int
	}{
		{"ok", fakeSegmenter{}, "", 1},
		{"recognition failed", fakeSegmenter{err: "model not loaded"}, "model not loaded", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads := t.TempDir()
			h := NewTranscriptionHandler(tt.seg, storage.NewLocal("", "", uploads), 10)
			body, ct := multipartBody(t, nil, map[string]string{"audio": "talk.wav"})
			req := httptest.NewRequest(http.MethodPost, "/transcriptions", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.Create(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
			}
			got := decode(t, rec)
			if segs := got["segments"].([]any); len(segs) != tt.wantN {
				t.Errorf("segments = %v", segs)
			}
			if msg, _ := got["transcript_error"].(string); msg != tt.wantErr {
				t.Errorf("transcript_error = %q", msg)
			}
			left, _ := os.ReadDir(uploads)
			if len(left) != 0 {
				t.Errorf("upload not removed: %v", left)
			}
		})
	}
}
