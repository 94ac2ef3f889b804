// Package ingestion reads documents, splits them into overlapping chunks,
// embeds the chunks and uploads them to the vector store.
package ingestion

import (
	"path/filepath"
	"sort"
	"strings"
)

type DocumentFormat string

const (
	FormatUnknown  DocumentFormat = ""
	FormatText     DocumentFormat = "text"
	FormatMarkdown DocumentFormat = "markdown"
	FormatPDF      DocumentFormat = "pdf"
	FormatCSV      DocumentFormat = "csv"
)

// extensions maps lower-case file extensions to the format read from them.
var extensions = map[string]DocumentFormat{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".pdf":      FormatPDF,
	".csv":      FormatCSV,
}

// DetectFormat reports the format of path by extension, ignoring case.
func DetectFormat(path string) DocumentFormat {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// SupportedExtensions lists every extension ListDocuments picks up, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
