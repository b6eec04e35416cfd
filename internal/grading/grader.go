// Package grading scores presentations against weighted criteria with a chat
// model acting as judge.
package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/kyuchan/presentation-grader/internal/llm"
	"github.com/kyuchan/presentation-grader/internal/models"
	"github.com/kyuchan/presentation-grader/pkg/tokenizer"
)

var (
	// ErrNoProvider means no chat model is configured.
	ErrNoProvider = errors.New("no language model configured for grading")
	// ErrMalformedResponse means the model's reply could not be decoded.
	ErrMalformedResponse = errors.New("grading response is not valid JSON")
)

// NoProviderFeedback is the feedback attached to zero scores when grading
// could not run because no model is configured.
const NoProviderFeedback = "LLM API 키가 설정되지 않아 자동 채점을 건너뛰었습니다."

// maxSlideTokens caps how much slide text goes into the prompt.
const maxSlideTokens = 3000

type Submission struct {
	TeamName   string
	Topic      string
	Criteria   []models.Criterion
	Segments   []models.Segment
	SlidesText string
}

type Grader struct {
	gateway llm.Gateway
	model   string
	logger  *slog.Logger
}

func NewGrader(gw llm.Gateway, model string, logger *slog.Logger) *Grader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Grader{gateway: gw, model: model, logger: logger}
}

// Grade asks the model for one score and feedback per criterion. The result
// always has len(sub.Criteria) entries.
func (g *Grader) Grade(ctx context.Context, sub Submission) ([]models.CriterionResult, error) {
	if g == nil || g.gateway == nil || !g.gateway.Available() {
		return nil, ErrNoProvider
	}
	if len(sub.Criteria) == 0 {
		return []models.CriterionResult{}, nil
	}

	prompt, err := BuildPrompt(sub)
	if err != nil {
		return nil, err
	}

	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: llm.Temperature(0),
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("grading: %w", err)
	}

	results, err := parseResults(resp.Content)
	if err != nil {
		return nil, err
	}
	if len(results) != len(sub.Criteria) {
		g.logger.Warn("grading result count mismatch",
			"criteria", len(sub.Criteria),
			"results", len(results),
		)
	}
	g.logger.Info("presentation graded",
		"team", sub.TeamName,
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"cost_usd", resp.Usage.CostUSD,
		"latency_ms", resp.LatencyMs,
	)
	return Align(sub.Criteria, results), nil
}

// ZeroResults returns a zero score per criterion carrying feedback.
func ZeroResults(criteria []models.Criterion, feedback string) []models.CriterionResult {
	out := make([]models.CriterionResult, len(criteria))
	for i := range out {
		out[i] = models.CriterionResult{Score: "0", Feedback: feedback}
	}
	return out
}

// BuildPrompt renders the user message for a submission.
func BuildPrompt(sub Submission) (string, error) {
	var criteria strings.Builder
	for _, c := range sub.Criteria {
		fmt.Fprintf(&criteria, "- %s : %d\n", c.Name, c.Weight)
	}

	var transcript strings.Builder
	for _, s := range sub.Segments {
		v := s.Values()
		fmt.Fprintf(&transcript, "[%6.2f-%6.2f] (jitter %.2f%%, shimmer %.2f%%) %s\n", s.Start, s.End, v.Jitter, v.Shimmer, s.Text)
	}
	if transcript.Len() == 0 {
		transcript.WriteString("(no transcript available)\n")
	}

	slides := ""
	if text := strings.TrimSpace(sub.SlidesText); text != "" {
		if cut, truncated := tokenizer.Truncate(text, maxSlideTokens); truncated {
			text = cut + "..."
		}
		slides = "\nSlides:\n" + text + "\n"
	}

	jitter, shimmer := ProsodyMeans(sub.Segments)
	return Render(userPromptTemplate, map[string]string{
		"topic":         sub.Topic,
		"team":          sub.TeamName,
		"criteria":      strings.TrimRight(criteria.String(), "\n"),
		"mean_jitter":   strconv.FormatFloat(jitter, 'f', 2, 64),
		"mean_shimmer":  strconv.FormatFloat(shimmer, 'f', 2, 64),
		"segment_count": strconv.Itoa(len(sub.Segments)),
		"transcript":    strings.TrimRight(transcript.String(), "\n"),
		"slides":        slides,
	})
}

// ProsodyMeans averages jitter and shimmer over the segments that carry them,
// weighting each segment by its duration.
func ProsodyMeans(segments []models.Segment) (jitter, shimmer float64) {
	var js, ss, ws []float64
	for _, s := range segments {
		if !s.Analyzed() || s.Duration() <= 0 {
			continue
		}
		js = append(js, *s.Jitter)
		ss = append(ss, *s.Shimmer)
		ws = append(ws, s.Duration())
	}
	if len(ws) == 0 {
		return 0, 0
	}
	return stat.Mean(js, ws), stat.Mean(ss, ws)
}

func parseResults(content string) ([]models.CriterionResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var items []models.CriterionResult
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	} else {
		var wrapped struct {
			Results []models.CriterionResult `json:"results"`
		}
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		items = wrapped.Results
	}

	for i := range items {
		items[i].Feedback = strings.TrimSpace(items[i].Feedback)
	}
	return items, nil
}
