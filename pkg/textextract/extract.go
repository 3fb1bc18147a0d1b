package textextract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedType = errors.New("unsupported file type")

type ExtractedText struct {
	Content  string
	Pages    int
	FileType string
}

// TypeOf resolves the file type from the content type, falling back to the
// filename extension. It returns "" when neither is recognised.
func TypeOf(filename, contentType string) string {
	if mediaType, _, _ := strings.Cut(contentType, ";"); mediaType != "" {
		switch strings.TrimSpace(strings.ToLower(mediaType)) {
		case "application/pdf":
			return "pdf"
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return "docx"
		case "text/plain":
			return "txt"
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".docx":
		return "docx"
	case ".txt", ".text", ".md":
		return "txt"
	}
	return ""
}

func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	switch strings.TrimPrefix(strings.ToLower(fileType), ".") {
	case "pdf":
		return extractPDF(data, size)
	case "docx":
		return extractDOCX(data, size)
	case "txt":
		return extractTXT(data, size)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
}

func SupportedTypes() []string {
	return []string{".pdf", ".docx", ".txt"}
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				buf.WriteString(word.S)
			}
			buf.WriteString("\n")
		}
	}

	return &ExtractedText{
		Content:  strings.TrimSpace(buf.String()),
		Pages:    numPages,
		FileType: "pdf",
	}, nil
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
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document.xml: %w", err)
		}

		return &ExtractedText{
			Content:  docxText(string(content)),
			Pages:    1,
			FileType: "docx",
		}, nil
	}
	return nil, fmt.Errorf("open DOCX: word/document.xml not found")
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	n, err := data.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}
	buf = buf[:n]
	if !utf8.Valid(buf) {
		return nil, fmt.Errorf("read TXT: content is not valid UTF-8")
	}

	return &ExtractedText{
		Content:  string(bytes.TrimSpace(buf)),
		Pages:    1,
		FileType: "txt",
	}, nil
}

// docxText strips tags and keeps one line per paragraph so "Label: value"
// lines survive extraction.
func docxText(s string) string {
	var line strings.Builder
	var lines []string
	flush := func() {
		if text := strings.Join(strings.Fields(line.String()), " "); text != "" {
			lines = append(lines, text)
		}
		line.Reset()
	}

	for len(s) > 0 {
		open := strings.IndexByte(s, '<')
		if open < 0 {
			line.WriteString(s)
			break
		}
		line.WriteString(s[:open])
		end := strings.IndexByte(s[open:], '>')
		if end < 0 {
			break
		}
		tag := s[open+1 : open+end]
		switch {
		case tag == "/w:p", tag == "w:br/", strings.HasPrefix(tag, "w:br "):
			flush()
		case tag == "w:tab/":
			line.WriteByte(' ')
		}
		s = s[open+end+1:]
	}
	flush()
	return strings.Join(lines, "\n")
}
