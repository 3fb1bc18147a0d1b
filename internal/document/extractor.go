package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/pkg/textextract"
)

const DefaultMaxUploadBytes = 10 << 20

// Document is extracted upload text. It lives only for the request that
// produced it.
type Document struct {
	Filename string
	FileType string
	Pages    int
	Text     string
}

type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader, filename, contentType string) (*Document, error)
	SupportedTypes() []string
}

type extractor struct {
	maxBytes int64
}

func NewTextExtractor(maxBytes int64) TextExtractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &extractor{maxBytes: maxBytes}
}

func (e *extractor) Extract(ctx context.Context, r io.Reader, filename, contentType string) (*Document, error) {
	fileType := textextract.TypeOf(filename, contentType)
	if fileType == "" {
		return nil, models.NewValidationError(fmt.Sprintf("file type not supported, expected one of %s", strings.Join(e.SupportedTypes(), ", ")))
	}

	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("file exceeds %d bytes", e.maxBytes))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := textextract.Extract(ReaderAtFromBytes(data), int64(len(data)), fileType)
	if err != nil {
		if errors.Is(err, textextract.ErrUnsupportedType) {
			return nil, models.NewValidationError(err.Error())
		}
		return nil, models.NewValidationError(fmt.Sprintf("unreadable %s document: %v", fileType, err))
	}
	if result.Content == "" {
		return nil, models.NewValidationError("document contains no extractable text")
	}

	return &Document{
		Filename: filename,
		FileType: result.FileType,
		Pages:    result.Pages,
		Text:     result.Content,
	}, nil
}

func (e *extractor) SupportedTypes() []string {
	return textextract.SupportedTypes()
}

// ReaderAtFromBytes creates an io.ReaderAt from a byte slice.
func ReaderAtFromBytes(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
