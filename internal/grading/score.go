package grading

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/kyuchan/presentation-grader/internal/models"
)

// ParseScore converts a score string to points. Only a plain run of ASCII
// digits, optionally surrounded by whitespace, counts; anything else, such as
// "7점", "-1", "8.5" or an empty string, is worth 0.
func ParseScore(s string) int {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			slog.Debug("non-numeric score treated as 0", "score", s)
			return 0
		}
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		slog.Debug("score out of range treated as 0", "score", s)
		return 0
	}
	return n
}

// TotalScore sums the parsed scores.
func TotalScore(results []models.CriterionResult) int {
	var total int
	for _, r := range results {
		total += ParseScore(r.Score)
	}
	return total
}

// TotalWeight sums the criterion weights.
func TotalWeight(criteria []models.Criterion) int {
	var total int
	for _, c := range criteria {
		total += c.Weight
	}
	return total
}

// Align returns exactly one result per criterion, padding missing ones with a
// zero score and dropping extras.
func Align(criteria []models.Criterion, results []models.CriterionResult) []models.CriterionResult {
	out := make([]models.CriterionResult, len(criteria))
	for i := range out {
		if i < len(results) {
			out[i] = results[i]
		} else {
			out[i] = models.CriterionResult{Score: "0"}
		}
	}
	return out
}
