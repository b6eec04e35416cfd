package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// Uploads stores files received in multipart forms.
type Uploads interface {
	SaveUpload(r io.Reader, name string) (string, error)
}

var errNoFile = errors.New("file required")

var audioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".mp4": true, ".webm": true, ".ogg": true, ".flac": true,
}

// parseForm limits the body to maxMB and parses it as multipart.
func parseForm(w http.ResponseWriter, r *http.Request, maxMB int) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxMB)<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("upload exceeds %d MB", maxMB)
		}
		return errors.New("invalid multipart form")
	}
	return nil
}

// saveFormFile stores the form file under field. allowed, when non-nil,
// restricts extensions.
func saveFormFile(r *http.Request, uploads Uploads, field string, allowed map[string]bool) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", errNoFile
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if allowed != nil && !allowed[ext] {
		return "", fmt.Errorf("unsupported %s file type %q", field, ext)
	}
	return uploads.SaveUpload(file, header.Filename)
}
