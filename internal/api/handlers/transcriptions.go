package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/kyuchan/presentation-grader/internal/models"
)

// Segmenter transcribes and measures a recording.
type Segmenter interface {
	Segments(ctx context.Context, audioPath string) ([]models.Segment, string)
}

type TranscriptionHandler struct {
	segmenter   Segmenter
	uploads     Uploads
	maxUploadMB int
}

func NewTranscriptionHandler(segmenter Segmenter, uploads Uploads, maxUploadMB int) *TranscriptionHandler {
	return &TranscriptionHandler{segmenter: segmenter, uploads: uploads, maxUploadMB: maxUploadMB}
}

// Create accepts an "audio" file and responds with enriched segments. A
// recognition failure is not an HTTP error: the segment list is empty and
// transcript_error says why.
func (h *TranscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, h.maxUploadMB); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := saveFormFile(r, h.uploads, "audio", audioExtensions)
	if errors.Is(err, errNoFile) {
		writeError(w, http.StatusBadRequest, "audio file required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	segs, transcriptErr := h.segmenter.Segments(r.Context(), path)
	resp := map[string]any{"segments": segs}
	if transcriptErr != "" {
		resp["transcript_error"] = transcriptErr
	}
	writeJSON(w, http.StatusOK, resp)
}
