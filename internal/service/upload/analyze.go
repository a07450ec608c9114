package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/document"
	"go.uber.org/zap"
)

const (
	TypeImage    = "image"
	TypeText     = "text"
	TypeCode     = "code"
	TypeDocument = "document"
)

type Analysis struct {
	Type     string   `json:"type"`
	Content  string   `json:"content,omitempty"`
	Metadata Metadata `json:"metadata"`
}

type Metadata struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Language string `json:"language,omitempty"`
	Lines    int    `json:"lines,omitempty"`
}

var textExtensions = map[string]bool{".txt": true, ".md": true, ".json": true, ".csv": true}

var codeLanguages = map[string]string{
	".js":   "javascript",
	".ts":   "typescript",
	".py":   "python",
	".html": "html",
	".css":  "css",
	".java": "java",
	".cpp":  "cpp",
	".c":    "c",
}

// Classify maps a file to image, text, code or document.
func Classify(originalName, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	mt := baseMIME(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return TypeImage
	case strings.HasPrefix(mt, "text/"), textExtensions[ext]:
		return TypeText
	case codeLanguages[ext] != "":
		return TypeCode
	default:
		return TypeDocument
	}
}

// LanguageFor names the language of a code file, "text" when unknown.
func LanguageFor(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if lang, ok := codeLanguages[ext]; ok {
		return lang
	}
	switch ext {
	case ".json":
		return "json"
	case ".md":
		return "markdown"
	}
	return "text"
}

// Analyze inspects a stored file. Text and code files are read through the
// document loader; read failures are logged and leave Content empty.
func (s *Service) Analyze(ctx context.Context, path, originalName, mimeType string) (*Analysis, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	a := &Analysis{
		Type: Classify(originalName, mimeType),
		Metadata: Metadata{
			Size:     info.Size(),
			MimeType: mimeType,
		},
	}
	if a.Type != TypeText && a.Type != TypeCode {
		return a, nil
	}

	docs, err := s.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		s.logger.Warn("read uploaded file failed", zap.String("path", path), zap.Error(err))
		return a, nil
	}
	var builder strings.Builder
	for _, doc := range docs {
		builder.WriteString(doc.Content)
	}
	a.Content = builder.String()
	a.Metadata.Lines = strings.Count(a.Content, "\n") + 1
	if a.Type == TypeCode {
		a.Metadata.Language = LanguageFor(originalName)
	}
	return a, nil
}
