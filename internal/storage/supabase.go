package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Remote is an object store that generated reports are copied to.
type Remote interface {
	Upload(ctx context.Context, bucket, path string, data io.Reader, size int64, contentType string) error
	PublicURL(bucket, path string) string
}

// SupabaseStorage talks to the Supabase Storage REST API with a service key.
type SupabaseStorage struct {
	endpoint string
	key      string
	client   *http.Client
}

func NewSupabaseStorage(projectURL, serviceKey string) *SupabaseStorage {
	return &SupabaseStorage{
		endpoint: strings.TrimRight(projectURL, "/") + "/storage/v1/object",
		key:      serviceKey,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

// Upload creates or replaces the object. size may be -1 when unknown.
func (s *SupabaseStorage) Upload(ctx context.Context, bucket, path string, data io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL("", bucket, path), data)
	if err != nil {
		return fmt.Errorf("build upload of %s/%s: %w", bucket, path, err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("upload %s/%s: status %d: %s", bucket, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (s *SupabaseStorage) PublicURL(bucket, path string) string {
	return s.objectURL("public", bucket, path)
}

func (s *SupabaseStorage) objectURL(scope, bucket, path string) string {
	segs := []string{s.endpoint}
	if scope != "" {
		segs = append(segs, scope)
	}
	segs = append(segs, url.PathEscape(bucket))
	for _, p := range strings.Split(path, "/") {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

// UploadFile streams a local file to remote under key.
func UploadFile(ctx context.Context, remote Remote, bucket, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return remote.Upload(ctx, bucket, key, f, info.Size(), contentType)
}
