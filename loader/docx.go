package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docx files are zip archives; paragraphs live in word/document.xml as
// <w:p> elements whose text nodes are <w:t>.
type docxDocument struct {
	Body docxBody `xml:"body"`
}

type docxBody struct {
	Paragraphs []docxParagraph `xml:"p"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text string `xml:"t"`
}

func extractDocx(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	var payload []byte
	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}
		handle, openErr := file.Open()
		if openErr != nil {
			return "", fmt.Errorf("open document.xml: %w", openErr)
		}
		payload, err = io.ReadAll(handle)
		handle.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		break
	}
	if payload == nil {
		return "", fmt.Errorf("docx archive missing word/document.xml")
	}
	var doc docxDocument
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return "", fmt.Errorf("decode document.xml: %w", err)
	}
	paragraphs := make([]string, 0, len(doc.Body.Paragraphs))
	for _, para := range doc.Body.Paragraphs {
		var builder strings.Builder
		for _, run := range para.Runs {
			builder.WriteString(run.Text)
		}
		if text := strings.TrimSpace(builder.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
