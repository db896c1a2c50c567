package docstore

import "strings"

// Title extracts the display title from a document's content: the first
// line, stripped of heading markers. Returns "" for empty content.
func Title(content string) string {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	return strings.Trim(line, "= \t\r")
}

// Description returns the content after the title line.
func Description(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[i+1:]
	}
	return ""
}

// Compose builds document content from a title and a description.
func Compose(title, description string) string {
	return "== " + title + " ==\n" + description
}

// NormalizeEOL converts CRLF and bare CR line endings to LF.
func NormalizeEOL(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}
