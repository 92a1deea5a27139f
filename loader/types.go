package loader

import "time"

// Format tags a document with its source file type.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDocx     Format = "docx"
)

// Document is the normalized output of loading one source file.
type Document struct {
	ID          string
	Source      string
	Text        string
	Format      Format
	ContentHash string
	Size        int64
	Metadata    map[string]any
	LoadedAt    time.Time
}

// Options carries caller-supplied metadata merged over the extracted values.
type Options struct {
	Title    string
	Category string
	Tags     []string
	Metadata map[string]any
}
