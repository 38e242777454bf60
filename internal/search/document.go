// Package search provides full-text search over owners' libraries using
// Bleve. Titles, authors, series, descriptions and the full text are
// searchable with French analysis and accent-insensitive matching.
package search

import (
	"strconv"
	"strings"

	"github.com/lutrinapp/lutrin/internal/domain"
)

// SearchDocument is the shape of a library document in the index.
//
// Searchable fields hold accent-folded text so "Misérables" and
// "miserables" meet. The original title and authors are kept in
// display-only fields for results.
type SearchDocument struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Category    string `json:"category"`
	Style       string `json:"style,omitempty"`
	Title       string `json:"title"`
	Authors     string `json:"authors,omitempty"`
	SeriesName  string `json:"series_name,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text,omitempty"`

	TitleDisplay   string `json:"title_display"`
	AuthorsDisplay string `json:"authors_display,omitempty"`

	UpdatedAt int64 `json:"updated_at"` // Unix millis
}

// DocumentID formats a store id as an index id.
func DocumentID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// NewSearchDocument converts a library document.
func NewSearchDocument(doc *domain.Document) *SearchDocument {
	authors := strings.Join(doc.Authors, ", ")
	return &SearchDocument{
		ID:             DocumentID(doc.ID),
		OwnerID:        doc.OwnerID,
		Category:       string(doc.Category()),
		Style:          Fold(doc.Style),
		Title:          Fold(doc.Title),
		Authors:        Fold(authors),
		SeriesName:     Fold(doc.SeriesName),
		Description:    Fold(doc.Description),
		Text:           Fold(doc.Text),
		TitleDisplay:   doc.Title,
		AuthorsDisplay: authors,
		UpdatedAt:      doc.UpdatedAt.UnixMilli(),
	}
}

// ToMap converts the document to a map with lowercase field names.
// This ensures field names match the Bleve index mapping.
func (d *SearchDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":            d.ID,
		"owner_id":      d.OwnerID,
		"category":      d.Category,
		"title":         d.Title,
		"title_display": d.TitleDisplay,
		"updated_at":    d.UpdatedAt,
	}

	optional := map[string]string{
		"style":           d.Style,
		"authors":         d.Authors,
		"authors_display": d.AuthorsDisplay,
		"series_name":     d.SeriesName,
		"description":     d.Description,
		"text":            d.Text,
	}
	for field, value := range optional {
		if value != "" {
			m[field] = value
		}
	}

	return m
}
