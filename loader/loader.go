package loader

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// MaxFileSizeBytes bounds how much of a single source file is ingested.
const MaxFileSizeBytes = 16 * 1024 * 1024

var (
	// ErrUnsupportedFormat marks extensions outside the registered table.
	ErrUnsupportedFormat = errors.New("loader: unsupported format")
	// ErrLoad marks missing or unreadable source files.
	ErrLoad = errors.New("loader: load failed")
)

// extractFunc turns raw file bytes into plain text.
type extractFunc func(data []byte) (string, error)

type entry struct {
	format  Format
	extract extractFunc
}

// Loader maps file extensions to extraction strategies. Adding a format is
// one Register call; the load path never switches on extensions directly.
type Loader struct {
	table map[string]entry
}

// New returns a loader with the built-in format table.
func New() *Loader {
	l := &Loader{table: make(map[string]entry)}
	l.Register(".txt", FormatText, extractPlain)
	l.Register(".text", FormatText, extractPlain)
	l.Register(".md", FormatMarkdown, extractPlain)
	l.Register(".markdown", FormatMarkdown, extractPlain)
	l.Register(".html", FormatHTML, extractHTML)
	l.Register(".htm", FormatHTML, extractHTML)
	l.Register(".pdf", FormatPDF, extractPDF)
	l.Register(".docx", FormatDocx, extractDocx)
	return l
}

// Register adds or replaces the extraction strategy for an extension.
func (l *Loader) Register(ext string, format Format, extract extractFunc) {
	l.table[strings.ToLower(ext)] = entry{format: format, extract: extract}
}

// Supported reports whether the extension has a registered strategy.
func (l *Loader) Supported(ext string) bool {
	_, ok := l.table[strings.ToLower(ext)]
	return ok
}

// Load reads one file and returns its normalized text plus metadata.
func (l *Loader) Load(path string, opts *Options) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	handler, ok := l.table[ext]
	if !ok {
		return nil, fmt.Errorf("%w: extension %q (%s)", ErrUnsupportedFormat, ext, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", ErrLoad, path, err)
	}
	data, size, err := readFile(abs)
	if err != nil {
		return nil, err
	}
	text, err := handler.extract(data)
	if err != nil {
		return nil, fmt.Errorf("%w: extract %q: %v", ErrLoad, path, err)
	}
	text = strings.TrimSpace(normalizeNewlines(text))
	doc := &Document{
		ID:          hashText(abs),
		Source:      abs,
		Text:        text,
		Format:      handler.format,
		ContentHash: hashText(text),
		Size:        size,
		Metadata:    buildMetadata(abs, handler.format, opts),
		LoadedAt:    time.Now().UTC(),
	}
	return doc, nil
}

func readFile(path string) ([]byte, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open %q: %v", ErrLoad, path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: stat %q: %v", ErrLoad, path, err)
	}
	if info.Size() > MaxFileSizeBytes {
		return nil, 0, fmt.Errorf(
			"%w: %q exceeds maximum size of %d bytes",
			ErrLoad,
			path,
			MaxFileSizeBytes,
		)
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxFileSizeBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read %q: %v", ErrLoad, path, err)
	}
	return data, info.Size(), nil
}

func buildMetadata(abs string, format Format, opts *Options) map[string]any {
	meta := map[string]any{
		"source": abs,
		"format": string(format),
	}
	title := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	if opts != nil {
		if strings.TrimSpace(opts.Title) != "" {
			title = opts.Title
		}
		if strings.TrimSpace(opts.Category) != "" {
			meta["category"] = opts.Category
		}
		if len(opts.Tags) > 0 {
			meta["tags"] = append([]string(nil), opts.Tags...)
		}
		for k, v := range opts.Metadata {
			meta[k] = v
		}
	}
	meta["title"] = title
	return meta
}

// extractPlain decodes file bytes to UTF-8 text. Undecodable input falls back
// to replacement runes rather than failing: partial text is still useful.
func extractPlain(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, _, _ := charset.DetermineEncoding(data, "text/plain")
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err == nil && utf8.Valid(decoded) {
		return string(decoded), nil
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
}

// DetectFormat guesses a format tag for content without a recognized
// extension, using MIME sniffing.
func DetectFormat(data []byte) Format {
	mime := mimetype.Detect(data)
	switch {
	case mime.Is("application/pdf"):
		return FormatPDF
	case mime.Is("text/html"):
		return FormatHTML
	case mime.Is("text/markdown"):
		return FormatMarkdown
	default:
		return FormatText
	}
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func hashText(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
