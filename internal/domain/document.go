// Package domain contains the core entities of the Lutrin reader: library
// documents with their reading progress, and ephemeral pipeline runs.
package domain

import (
	"time"

	"github.com/lutrinapp/lutrin/internal/chapters"
)

// Category buckets documents by reading progress for library views.
type Category string

// Document categories.
const (
	CategoryUnstarted  Category = "unstarted"
	CategoryInProgress Category = "in-progress"
	CategoryFinished   Category = "finished"
)

// Document is a library entry: an ingested e-book with its metadata,
// full text and reading progress, owned by a single user.
type Document struct {
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	OwnerID         string          `json:"owner_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Style           string          `json:"style,omitempty"`
	SeriesName      string          `json:"series_name,omitempty"`
	CoverImage      string          `json:"cover_image,omitempty"` // data URI
	CoverBlurHash   string          `json:"cover_blurhash,omitempty"`
	SourceName      string          `json:"source_name,omitempty"`
	Text            string          `json:"text"`
	Authors         []string        `json:"authors"`
	SeriesIndex     *float64        `json:"series_index,omitempty"`
	ID              int64           `json:"id"`
	ChapterCount    int             `json:"chapter_count"`
	ReadingProgress ReadingProgress `json:"reading_progress"`
}

// ReadingProgress records where the owner is in a document.
// Records written before progress existed decode to the zero value.
type ReadingProgress struct {
	// LastChapterRead is the zero-based index of the chapter most recently
	// begun. 0 means unstarted; >= ChapterCount means finished.
	LastChapterRead int `json:"last_chapter_read"`
}

// NewDocument builds a document for ingestion, deriving the chapter count
// from text.
func NewDocument(ownerID, title string, authors []string, text string) *Document {
	if authors == nil {
		authors = []string{}
	}
	return &Document{
		OwnerID:      ownerID,
		Title:        title,
		Authors:      authors,
		Text:         text,
		ChapterCount: chapters.Count(text),
	}
}

// Chapters splits the document text into chapters.
func (d *Document) Chapters() []string {
	return chapters.Split(d.Text)
}

// RefreshChapterCount recomputes the stored chapter count from the text.
// It reports whether the stored value was stale.
func (d *Document) RefreshChapterCount() bool {
	n := chapters.Count(d.Text)
	if n == d.ChapterCount {
		return false
	}
	d.ChapterCount = n
	return true
}

// Category classifies the document using the stored chapter count.
func (d *Document) Category() Category {
	last := d.ReadingProgress.LastChapterRead
	switch {
	case last <= 0:
		return CategoryUnstarted
	case d.ChapterCount > 0 && last >= d.ChapterCount:
		return CategoryFinished
	default:
		return CategoryInProgress
	}
}

// Clone returns a deep copy so callers can modify a fetched record
// without aliasing the original's slices.
func (d *Document) Clone() *Document {
	c := *d
	c.Authors = append([]string(nil), d.Authors...)
	if d.SeriesIndex != nil {
		v := *d.SeriesIndex
		c.SeriesIndex = &v
	}
	return &c
}

// ValidCategory reports whether s names a known category.
func ValidCategory(s string) bool {
	switch Category(s) {
	case CategoryUnstarted, CategoryInProgress, CategoryFinished:
		return true
	default:
		return false
	}
}
