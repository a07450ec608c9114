package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxBytes = 10 << 20
	// URLPrefix is where stored files are served from.
	URLPrefix = "/uploads/"
)

var (
	ErrUnsupportedType = errors.New("file type not supported")
	ErrTooLarge        = errors.New("file too large")
	ErrNoFile          = errors.New("no file uploaded")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
	"text/plain": true, "text/markdown": true, "application/json": true, "text/csv": true,
	"text/javascript": true, "text/typescript": true, "text/html": true, "text/css": true,
	"application/pdf": true,
}

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".txt": true, ".md": true, ".json": true, ".csv": true,
	".js": true, ".ts": true, ".html": true, ".css": true, ".py": true, ".java": true, ".cpp": true, ".c": true,
	".pdf": true,
}

// Allowed reports whether a file passes the type filter, by MIME type or by
// extension.
func Allowed(filename, mimeType string) bool {
	return allowedTypes[baseMIME(mimeType)] || allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func baseMIME(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Result describes a stored upload.
type Result struct {
	URL          string   `json:"url"`
	Filename     string   `json:"filename"`
	OriginalName string   `json:"originalName"`
	Size         int64    `json:"size"`
	Type         string   `json:"type"`
	Analysis     Analysis `json:"analysis"`
}

type Service struct {
	dir      string
	maxBytes int64
	loader   document.Loader
	logger   *zap.Logger
}

// NewService prepares dir and the document loader used to read text files.
func NewService(ctx context.Context, dir string, maxBytes int64, logger *zap.Logger) (*Service, error) {
	if dir == "" {
		dir = "uploads"
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &Service{dir: dir, maxBytes: maxBytes, loader: loader, logger: logger}, nil
}

func (s *Service) Dir() string {
	return s.dir
}

func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Save stores an uploaded file as <uuid>-<basename> and analyzes it.
func (s *Service) Save(ctx context.Context, fh *multipart.FileHeader) (*Result, error) {
	if fh == nil {
		return nil, ErrNoFile
	}
	if fh.Size > s.maxBytes {
		return nil, fmt.Errorf("%s is %d bytes: %w", fh.Filename, fh.Size, ErrTooLarge)
	}
	original := filepath.Base(fh.Filename)
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(strings.ToLower(filepath.Ext(original))); guessed != "" {
			mimeType = guessed
		}
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if !Allowed(original, mimeType) {
		return nil, fmt.Errorf("%s (%s): %w", original, mimeType, ErrUnsupportedType)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	stored := uuid.NewString() + "-" + original
	path := filepath.Join(s.dir, stored)
	written, err := s.write(path, src)
	if err != nil {
		return nil, err
	}

	analysis, err := s.Analyze(ctx, path, original, mimeType)
	if err != nil {
		return nil, err
	}
	s.logger.Info("file uploaded",
		zap.String("filename", stored),
		zap.Int64("size", written),
		zap.String("type", analysis.Type))
	return &Result{
		URL:          URLPrefix + stored,
		Filename:     stored,
		OriginalName: original,
		Size:         written,
		Type:         mimeType,
		Analysis:     *analysis,
	}, nil
}

// write copies at most maxBytes; a longer stream removes the partial file.
func (s *Service) write(path string, src io.Reader) (int64, error) {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create upload: %w", err)
	}
	n, err := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return 0, err
		}
		return 0, fmt.Errorf("write upload: %w", err)
	}
	return n, nil
}
