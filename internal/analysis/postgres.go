package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kyuchan/presentation-grader/internal/models"
)

const selectColumns = `id, team_name, topic, criteria, audio_path, slides_path, status, segments,
	results, total_score, pdf_path, excel_path, transcript_error, error, created_at, updated_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Analysis) error {
	criteria, segments, results, err := marshalJSON(a)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO analyses (id, team_name, topic, criteria, audio_path, slides_path, status, segments, results)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		a.ID, a.TeamName, a.Topic, criteria, a.AudioPath, a.SlidesPath, a.Status, segments, results,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM analyses WHERE id = $1`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]models.Analysis, error) {
	limit, offset = clampLimit(limit, offset)
	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM analyses ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out := []models.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, a *models.Analysis) error {
	criteria, segments, results, err := marshalJSON(a)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE analyses SET team_name = $2, topic = $3, criteria = $4, audio_path = $5, slides_path = $6,
		   status = $7, segments = $8, results = $9, total_score = $10, pdf_path = $11, excel_path = $12,
		   transcript_error = $13, error = $14, updated_at = now()
		 WHERE id = $1`,
		a.ID, a.TeamName, a.Topic, criteria, a.AudioPath, a.SlidesPath, a.Status, segments, results,
		a.TotalScore, a.PDFPath, a.ExcelPath, a.TranscriptError, a.Error,
	)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status, errMsg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE analyses SET status = $2, error = $3, updated_at = now() WHERE id = $1`,
		id, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("update analysis status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalJSON(a *models.Analysis) (criteria, segments, results []byte, err error) {
	if criteria, err = json.Marshal(nonNil(a.Criteria)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal criteria: %w", err)
	}
	if segments, err = json.Marshal(nonNil(a.Segments)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal segments: %w", err)
	}
	if results, err = json.Marshal(nonNil(a.Results)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal results: %w", err)
	}
	return criteria, segments, results, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanAnalysis(row pgx.Row) (*models.Analysis, error) {
	var a models.Analysis
	var criteria, segments, results []byte
	err := row.Scan(&a.ID, &a.TeamName, &a.Topic, &criteria, &a.AudioPath, &a.SlidesPath, &a.Status, &segments,
		&results, &a.TotalScore, &a.PDFPath, &a.ExcelPath, &a.TranscriptError, &a.Error, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteria, &a.Criteria); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	if err := json.Unmarshal(segments, &a.Segments); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	if err := json.Unmarshal(results, &a.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &a, nil
}
