package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAIModelParsesVerboseSegments(t *testing.T) {
	var gotLang, gotFormat, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLang = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		gotModel = r.FormValue("model")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "korean",
			"duration": 3.4,
			"text":     "안녕하세요 발표를 시작하겠습니다",
			"segments": []map[string]any{
				{"id": 0, "start": 0.0, "end": 1.2, "text": " 안녕하세요"},
				{"id": 1, "start": 1.2, "end": 3.4, "text": " 발표를 시작하겠습니다"},
			},
		})
	}))
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "talk.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := WhisperServerLoader(srv.URL+"/v1", "small", 0)
	m, err := loader(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	segs, err := m.Transcribe(context.Background(), Request{FilePath: audioPath, Language: "ko"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotLang != "ko" || gotFormat != "verbose_json" || gotModel != "small" {
		t.Errorf("form language=%q format=%q model=%q", gotLang, gotFormat, gotModel)
	}
	if len(segs) != 2 || segs[1].Start != 1.2 || segs[1].End != 3.4 {
		t.Fatalf("segments = %+v", segs)
	}
	if m.Name() != "whisper-server" {
		t.Errorf("name = %q", m.Name())
	}
}

func TestOpenAILoaderRequiresKey(t *testing.T) {
	if _, err := OpenAILoader(OpenAIConfig{})(context.Background()); err == nil {
		t.Fatal("expected error without API key")
	}
}
