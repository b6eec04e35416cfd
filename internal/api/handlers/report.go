package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kyuchan/presentation-grader/internal/models"
	"github.com/kyuchan/presentation-grader/internal/pipeline"
	"github.com/kyuchan/presentation-grader/internal/report"
	"github.com/kyuchan/presentation-grader/internal/storage"
)

type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (*pipeline.Outcome, error)
}

// Downloads resolves report files by type and id.
type Downloads interface {
	Resolve(fileType, id string) (path, contentType, filename string, err error)
}

type ReportHandler struct {
	runner    Runner
	files     Downloads
	indexPath string
}

func NewReportHandler(runner Runner, files Downloads, indexPath string) *ReportHandler {
	return &ReportHandler{runner: runner, files: files, indexPath: indexPath}
}

func (h *ReportHandler) Index(w http.ResponseWriter, r *http.Request) {
	page, err := os.ReadFile(h.indexPath)
	if err != nil {
		http.Error(w, "index.html 파일을 찾을 수 없습니다.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

type generateReportRequest struct {
	TeamName          string                   `json:"teamName"`
	PresentationTopic string                   `json:"presentationTopic"`
	Criteria          []models.Criterion       `json:"criteria"`
	GradingResult     []models.CriterionResult `json:"gradingResult"`
}

func (h *ReportHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "잘못된 요청 형식입니다.")
		return
	}
	if strings.TrimSpace(req.TeamName) == "" || strings.TrimSpace(req.PresentationTopic) == "" ||
		len(req.Criteria) == 0 || len(req.GradingResult) == 0 {
		writeError(w, http.StatusBadRequest, "필수 데이터가 부족합니다.")
		return
	}

	out, err := h.runner.Run(r.Context(), pipeline.Job{
		TeamName: req.TeamName,
		Topic:    req.PresentationTopic,
		Criteria: req.Criteria,
		Results:  req.GradingResult,
	})
	if errors.Is(err, report.ErrFontNotFound) {
		writeError(w, http.StatusInternalServerError, "파일 생성 실패 (폰트 오류): "+err.Error())
		return
	}
	if err != nil {
		slog.Error("report generation failed", "team", req.TeamName, "error", err)
		writeError(w, http.StatusInternalServerError, "보고서 생성 실패: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"pdf_id":      report.FileName(req.TeamName),
		"excel_id":    report.SafeTopic(req.PresentationTopic),
		"total_score": out.TotalScore,
	})
}

func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	path, contentType, filename, err := h.files.Resolve(chi.URLParam(r, "fileType"), chi.URLParam(r, "fileID"))
	switch {
	case errors.Is(err, storage.ErrInvalidFileType):
		writeError(w, http.StatusBadRequest, "유효하지 않은 파일 타입입니다.")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "파일을 찾을 수 없습니다: "+filename)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "파일 다운로드 중 오류가 발생했습니다: "+err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "파일 다운로드 중 오류가 발생했습니다: "+err.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "파일 다운로드 중 오류가 발생했습니다: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	http.ServeContent(w, r, filename, info.ModTime(), f)
}
