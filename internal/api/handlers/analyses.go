package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kyuchan/presentation-grader/internal/analysis"
	"github.com/kyuchan/presentation-grader/internal/models"
	"github.com/kyuchan/presentation-grader/internal/pipeline"
	"github.com/kyuchan/presentation-grader/internal/queue"
)

// Enqueuer schedules analyses on the background queue.
type Enqueuer interface {
	EnqueueAnalysisRun(ctx context.Context, payload queue.AnalysisRunPayload) error
}

type AnalysisHandler struct {
	store       analysis.Store
	runner      Runner
	queue       Enqueuer
	uploads     Uploads
	maxUploadMB int
	pollEvery   time.Duration
}

// NewAnalysisHandler runs analyses on q when it is non-nil, otherwise inside
// the request.
func NewAnalysisHandler(store analysis.Store, runner Runner, q Enqueuer, uploads Uploads, maxUploadMB int) *AnalysisHandler {
	return &AnalysisHandler{
		store:       store,
		runner:      runner,
		queue:       q,
		uploads:     uploads,
		maxUploadMB: maxUploadMB,
		pollEvery:   time.Second,
	}
}

// Create takes multipart fields teamName, presentationTopic, criteria (a JSON
// array of {name, weight}), an "audio" file and an optional "slides" file.
func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, h.maxUploadMB); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	team := strings.TrimSpace(r.FormValue("teamName"))
	topic := strings.TrimSpace(r.FormValue("presentationTopic"))
	var criteria []models.Criterion
	if err := json.Unmarshal([]byte(r.FormValue("criteria")), &criteria); err != nil || team == "" || topic == "" || len(criteria) == 0 {
		writeError(w, http.StatusBadRequest, "필수 데이터가 부족합니다.")
		return
	}

	audioPath, err := saveFormFile(r, h.uploads, "audio", audioExtensions)
	if errors.Is(err, errNoFile) {
		writeError(w, http.StatusBadRequest, "audio file required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slidesPath, err := saveFormFile(r, h.uploads, "slides", nil)
	if err != nil && !errors.Is(err, errNoFile) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := analysis.New(team, topic, criteria)
	rec.AudioPath = audioPath
	rec.SlidesPath = slidesPath
	if err := h.store.Create(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.queue != nil {
		err := h.queue.EnqueueAnalysisRun(r.Context(), queue.AnalysisRunPayload{AnalysisID: rec.ID.String()})
		if err == nil {
			writeJSON(w, http.StatusAccepted, map[string]string{"id": rec.ID.String(), "status": rec.Status})
			return
		}
		slog.Warn("enqueue failed, running analysis inline", "analysis_id", rec.ID, "error", err)
	}

	_, runErr := h.runner.Run(r.Context(), pipeline.Job{
		AnalysisID: rec.ID,
		TeamName:   team,
		Topic:      topic,
		Criteria:   criteria,
		AudioPath:  audioPath,
		SlidesPath: slidesPath,
	})
	done, err := h.store.Get(r.Context(), rec.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if runErr != nil {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, done)
}

func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": list, "count": len(list)})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Events streams the record over a websocket each time its status changes and
// closes once the analysis is finished.
func (h *AnalysisHandler) Events(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.load(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// Reads only detect the client going away.
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollEvery)
	defer ticker.Stop()

	lastStatus := ""
	for {
		if rec.Status != lastStatus {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
			lastStatus = rec.Status
		}
		if rec.Terminal() {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, rec.Status),
				time.Now().Add(time.Second))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := h.store.Get(ctx, rec.ID)
		if err != nil {
			slog.Warn("analysis events lookup failed", "analysis_id", rec.ID, "error", err)
			continue
		}
		rec = next
	}
}

func (h *AnalysisHandler) load(w http.ResponseWriter, r *http.Request) (*models.Analysis, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid analysis ID")
		return nil, false
	}
	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, analysis.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return rec, true
}
