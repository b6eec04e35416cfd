// Package storage resolves report downloads, keeps uploaded recordings and
// mirrors reports to Supabase Storage.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidFileType = errors.New("invalid file type")
	ErrNotFound        = errors.New("file not found")
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Local serves files from the report directories and stores uploads.
type Local struct {
	pdfDir    string
	excelDir  string
	uploadDir string
}

func NewLocal(pdfDir, excelDir, uploadDir string) *Local {
	return &Local{pdfDir: pdfDir, excelDir: excelDir, uploadDir: uploadDir}
}

// Resolve maps a download request to a file. fileType is "pdf" or "excel";
// id is the file name without extension and may not leave the directory.
func (l *Local) Resolve(fileType, id string) (path, contentType, filename string, err error) {
	var dir, ext string
	switch fileType {
	case "pdf":
		dir, ext, contentType = l.pdfDir, ".pdf", ContentTypePDF
	case "excel":
		dir, ext, contentType = l.excelDir, ".xlsx", ContentTypeXLSX
	default:
		return "", "", "", ErrInvalidFileType
	}

	filename = id + ext
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", "", filename, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	path = filepath.Join(dir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", "", filename, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return path, contentType, filename, nil
}

// SaveUpload copies r into a fresh file under the upload directory, keeping
// the extension of name, and returns its path.
func (l *Local) SaveUpload(r io.Reader, name string) (string, error) {
	if err := os.MkdirAll(l.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(name))
	path := filepath.Join(l.uploadDir, uuid.NewString()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}
