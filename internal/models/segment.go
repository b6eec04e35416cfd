package models

import "math"

// Segment is one transcribed utterance on the audio timeline. Jitter and
// Shimmer stay nil until prosody analysis has run.
type Segment struct {
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Text    string   `json:"text"`
	Jitter  *float64 `json:"jitter,omitempty"`
	Shimmer *float64 `json:"shimmer,omitempty"`
}

// Metrics holds percentage-scaled perturbation values for a segment.
type Metrics struct {
	Jitter  float64 `json:"jitter"`
	Shimmer float64 `json:"shimmer"`
}

func (s *Segment) Duration() float64 { return s.End - s.Start }

// Analyzed reports whether both metrics are present.
func (s *Segment) Analyzed() bool { return s.Jitter != nil && s.Shimmer != nil }

// Enrich overwrites both metrics. Non-finite or negative values are stored as 0.
func (s *Segment) Enrich(m Metrics) {
	j, sh := finiteOrZero(m.Jitter), finiteOrZero(m.Shimmer)
	s.Jitter = &j
	s.Shimmer = &sh
}

// EnsureMetrics sets each missing metric to 0 and leaves existing ones alone.
func (s *Segment) EnsureMetrics() {
	if s.Jitter == nil {
		s.Jitter = new(float64)
	}
	if s.Shimmer == nil {
		s.Shimmer = new(float64)
	}
}

// Values returns the metrics, treating absent values as 0.
func (s *Segment) Values() Metrics {
	var m Metrics
	if s.Jitter != nil {
		m.Jitter = *s.Jitter
	}
	if s.Shimmer != nil {
		m.Shimmer = *s.Shimmer
	}
	return m
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
