package ingestion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnsupportedFormat is returned for files whose extension has no extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Document is a source file's extracted text and catalog metadata.
type Document struct {
	Filename string
	Path     string
	Title    string
	Topics   []string
	URL      string
	Text     string
}

// ReadDocument loads the file at path and extracts its text. Title is
// derived from the filename; callers overlay catalog metadata.
func ReadDocument(path string) (Document, error) {
	extractor, ok := extractorFor(DetectFormat(path))
	if !ok {
		return Document{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read document: %w", err)
	}

	text, err := extractor.Extract(data)
	if err != nil {
		return Document{}, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}

	name := filepath.Base(path)
	return Document{
		Filename: name,
		Path:     path,
		Title:    TitleFromFilename(name),
		Text:     text,
	}, nil
}

// TitleFromFilename turns "plant-based_diet.txt" into "Plant Based Diet".
func TitleFromFilename(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return cases.Title(language.English).String(strings.Join(strings.Fields(stem), " "))
}

// ListDocuments returns the supported files directly under dir in lexical
// order.
func ListDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || DetectFormat(entry.Name()) == FormatUnknown {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
