// Package textextract pulls plain text out of slide decks and documents so it
// can be quoted in a grading prompt.
package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedType = errors.New("unsupported file type")

// ExtractedText is the text of a document split into pages (or slides).
type ExtractedText struct {
	Pages []string
	Type  string
}

// Content joins the non-empty pages, each prefixed with its number.
func (e *ExtractedText) Content() string {
	var buf strings.Builder
	for i, p := range e.Pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fmt.Fprintf(&buf, "[%d] %s\n", i+1, p)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func SupportedTypes() []string {
	return []string{".pdf", ".pptx", ".docx", ".txt"}
}

// ExtractFile reads path and dispatches on its extension.
func ExtractFile(path string) (*ExtractedText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return Extract(f, info.Size(), filepath.Ext(path))
}

func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch strings.ToLower(fileType) {
	case ".pdf", "pdf", "application/pdf":
		return extractPDF(data, size)
	case ".pptx", "pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return extractPPTX(data, size)
	case ".docx", "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractDOCX(data, size)
	case ".txt", "txt", "text/plain":
		return extractTXT(data, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	pages := make([]string, reader.NumPage())
	for i := range pages {
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i] = strings.Join(strings.Fields(text), " ")
	}
	return &ExtractedText{Pages: pages, Type: "pdf"}, nil
}

// extractPPTX reads ppt/slides/slideN.xml in slide order, keeping the text
// runs (<a:t>) of each slide.
func extractPPTX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PPTX: %w", err)
	}

	type slide struct {
		n    int
		file *zip.File
	}
	var slides []slide
	for _, f := range reader.File {
		name := strings.TrimPrefix(f.Name, "ppt/slides/slide")
		if name == f.Name || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{n: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	pages := make([]string, 0, len(slides))
	for _, s := range slides {
		text, err := xmlText(s.file, "t", "p")
		if err != nil {
			return nil, fmt.Errorf("read slide %d: %w", s.n, err)
		}
		pages = append(pages, text)
	}
	return &ExtractedText{Pages: pages, Type: "pptx"}, nil
}

func extractDOCX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	for _, f := range reader.File {
		if f.Name != "word/document.xml" {
			continue
		}
		text, err := xmlText(f, "t", "p")
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}
		return &ExtractedText{Pages: []string{text}, Type: "docx"}, nil
	}
	return nil, errors.New("open DOCX: word/document.xml not found")
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	_, err := data.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}

	// Form feeds separate pages.
	var pages []string
	for _, p := range bytes.Split(buf, []byte{'\f'}) {
		pages = append(pages, string(bytes.TrimSpace(p)))
	}
	return &ExtractedText{Pages: pages, Type: "txt"}, nil
}

// xmlText concatenates the character data of every textTag element, starting
// a new line after each paraTag element. Namespaces are ignored.
func xmlText(f *zip.File, textTag, paraTag string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var lines []string
	var line strings.Builder
	inText := false
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inText = t.Name.Local == textTag
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paraTag:
				if s := strings.TrimSpace(line.String()); s != "" {
					lines = append(lines, s)
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(line.String()); s != "" {
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}
