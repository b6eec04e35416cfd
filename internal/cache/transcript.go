package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kyuchan/presentation-grader/internal/models"
)

const transcriptPrefix = "transcript:v1:"

// TranscriptStore is what the pipeline needs from a transcript cache.
type TranscriptStore interface {
	Key(audioPath, language, backend string) (string, error)
	Load(ctx context.Context, key string) ([]models.Segment, error)
	Save(ctx context.Context, key string, segments []models.Segment) error
}

// TranscriptCache keeps raw transcripts (no jitter or shimmer) keyed by the
// audio content, the language and the recogniser backend.
type TranscriptCache struct {
	cache *Cache
	ttl   time.Duration
}

func NewTranscriptCache(c *Cache, ttl time.Duration) *TranscriptCache {
	return &TranscriptCache{cache: c, ttl: ttl}
}

func (t *TranscriptCache) Key(audioPath, language, backend string) (string, error) {
	return TranscriptKey(audioPath, language, backend)
}

// TranscriptKey hashes the file at audioPath.
func TranscriptKey(audioPath, language, backend string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio for digest: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest audio: %w", err)
	}
	return fmt.Sprintf("%s%s:%s:%s", transcriptPrefix, backend, language, hex.EncodeToString(h.Sum(nil))), nil
}

// Load returns ErrMiss when nothing is cached.
func (t *TranscriptCache) Load(ctx context.Context, key string) ([]models.Segment, error) {
	var segs []models.Segment
	if err := t.cache.Get(ctx, key, &segs); err != nil {
		return nil, err
	}
	return segs, nil
}

// Save drops any prosody values before storing.
func (t *TranscriptCache) Save(ctx context.Context, key string, segments []models.Segment) error {
	raw := make([]models.Segment, len(segments))
	for i, s := range segments {
		raw[i] = models.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return t.cache.Set(ctx, key, raw, t.ttl)
}
