package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/config"
)

// ErrUnsupportedFormat is returned for files that are neither PDF nor text.
var ErrUnsupportedFormat = eris.New("ocr: unsupported document format")

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates the PDF extractor configured in cfg.
func NewExtractor(cfg config.OCRConfig) Extractor {
	return NewPdfToText(cfg.PdfToTextPath)
}

var textExtensions = map[string]bool{
	".txt":  true,
	".text": true,
	".md":   true,
	"":      true,
}

// ReadDocument returns the normalized text of the report at path. PDFs
// are handed to ext; plain-text files are read directly.
func ReadDocument(ctx context.Context, ext Extractor, path string) (string, error) {
	var (
		raw string
		err error
	)
	switch suffix := strings.ToLower(filepath.Ext(path)); {
	case suffix == ".pdf":
		if ext == nil {
			return "", eris.New("ocr: no pdf extractor configured")
		}
		raw, err = ext.ExtractText(ctx, path)
	case textExtensions[suffix]:
		raw, err = readText(path)
	default:
		return "", eris.Wrapf(ErrUnsupportedFormat, "%s", path)
	}
	if err != nil {
		return "", err
	}

	text := Normalize(raw)
	zap.L().Debug("ocr: document read",
		zap.String("path", path),
		zap.Int("chars", utf8.RuneCountInString(text)),
	)
	return text, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read %s", path)
	}
	if !utf8.Valid(data) {
		return "", eris.Errorf("ocr: %s is not valid UTF-8", path)
	}
	return string(data), nil
}

// Normalize converts page breaks and CRLF line endings to plain newlines,
// strips trailing spaces and collapses runs of blank lines.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\f", "\n\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
