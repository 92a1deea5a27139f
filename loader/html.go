package loader

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// extractHTML parses markup and keeps only visible text, dropping script and
// style subtrees the way browsers hide them.
func extractHTML(data []byte) (string, error) {
	text, err := extractPlain(data)
	if err != nil {
		return "", err
	}
	root, err := html.Parse(bytes.NewReader([]byte(text)))
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	collectText(root, &builder)
	lines := make([]string, 0, 32)
	for _, line := range strings.Split(builder.String(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func collectText(node *html.Node, builder *strings.Builder) {
	if node.Type == html.ElementNode {
		switch node.Data {
		case "script", "style", "noscript", "head":
			return
		}
	}
	if node.Type == html.TextNode {
		builder.WriteString(node.Data)
		builder.WriteString("\n")
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, builder)
	}
}
