package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Criterion struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// CriterionResult is a graded criterion. Score stays a string because it
// arrives from clients and language models as free text.
type CriterionResult struct {
	Score    string `json:"score"`
	Feedback string `json:"feedback"`
}

// UnmarshalJSON accepts the score as a JSON string or number. Numbers keep
// their literal text, so 7 becomes "7" and 7.5 becomes "7.5".
func (r *CriterionResult) UnmarshalJSON(b []byte) error {
	var raw struct {
		Score    json.RawMessage `json:"score"`
		Feedback string          `json:"feedback"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.Feedback = raw.Feedback
	r.Score = ""
	if len(raw.Score) == 0 || string(raw.Score) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw.Score, &r.Score); err == nil {
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw.Score, &num); err != nil {
		return err
	}
	r.Score = num.String()
	return nil
}

type Analysis struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	TeamName        string            `json:"team_name" db:"team_name"`
	Topic           string            `json:"topic" db:"topic"`
	Criteria        []Criterion       `json:"criteria" db:"criteria"`
	AudioPath       string            `json:"audio_path,omitempty" db:"audio_path"`
	SlidesPath      string            `json:"slides_path,omitempty" db:"slides_path"`
	Status          string            `json:"status" db:"status"`
	Segments        []Segment         `json:"segments" db:"segments"`
	Results         []CriterionResult `json:"results" db:"results"`
	TotalScore      int               `json:"total_score" db:"total_score"`
	PDFPath         string            `json:"pdf_path,omitempty" db:"pdf_path"`
	ExcelPath       string            `json:"excel_path,omitempty" db:"excel_path"`
	TranscriptError string            `json:"transcript_error,omitempty" db:"transcript_error"`
	Error           string            `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

const (
	AnalysisStatusPending    = "pending"
	AnalysisStatusProcessing = "processing"
	AnalysisStatusCompleted  = "completed"
	AnalysisStatusFailed     = "failed"
)

// Terminal reports whether the analysis will not change status again.
func (a *Analysis) Terminal() bool {
	return a.Status == AnalysisStatusCompleted || a.Status == AnalysisStatusFailed
}
