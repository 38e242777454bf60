// Package chapters segments document text into chapters.
//
// Chapters are delimited by a blank line ("\n\n"). Segments that are empty
// after trimming are discarded and order is preserved, so index 0 is the
// first non-empty segment.
package chapters

import (
	"strings"
	"unicode/utf8"
)

// Delimiter separates chapters in a document's text.
const Delimiter = "\n\n"

// maxTitleRunes bounds the label derived from a chapter's first line.
const maxTitleRunes = 60

// Split returns the chapters of text in order. Each chapter keeps its
// original content; only wholly blank segments are dropped.
func Split(text string) []string {
	if text == "" {
		return nil
	}

	// Normalize Windows line endings so "\r\n\r\n" delimits too.
	text = strings.ReplaceAll(text, "\r\n", "\n")

	parts := strings.Split(text, Delimiter)
	chapters := make([]string, 0, len(parts))
	for _, part := range parts {
		if IsBlank(part) {
			continue
		}
		chapters = append(chapters, part)
	}
	return chapters
}

// Count returns the number of chapters in text without keeping them.
func Count(text string) int {
	return len(Split(text))
}

// IsBlank reports whether a chapter has no speakable text.
func IsBlank(chapter string) bool {
	return strings.TrimSpace(chapter) == ""
}

// Title derives a short display label from the first line of a chapter.
func Title(chapter string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(chapter), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= maxTitleRunes {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
}
