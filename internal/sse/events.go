// Package sse implements Server-Sent Events for pushing library, connectivity,
// pipeline and playback changes to the UI layer.
package sse

import (
	"time"

	"github.com/lutrinapp/lutrin/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventDocumentCreated is sent when a document is ingested into a library.
	EventDocumentCreated EventType = "document.created"
	// EventDocumentUpdated is sent on metadata, cover or progress changes.
	EventDocumentUpdated EventType = "document.updated"
	// EventDocumentDeleted is sent when a document is removed.
	EventDocumentDeleted EventType = "document.deleted"

	// EventConnectivityOnline is sent once when the gateway becomes reachable.
	EventConnectivityOnline EventType = "connectivity.online"
	// EventConnectivityOffline is sent once when the gateway stops responding.
	EventConnectivityOffline EventType = "connectivity.offline"

	// EventPipelineCompleted is sent when a pipeline run reaches a terminal status.
	EventPipelineCompleted EventType = "pipeline.completed"

	// EventPlaybackState is sent whenever a playback session changes state or chapter.
	EventPlaybackState EventType = "playback.state"

	// EventIngestFailed is sent when an inbox file could not be ingested.
	EventIngestFailed EventType = "ingest.failed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// OwnerID restricts delivery to clients of one owner. Empty broadcasts.
	OwnerID string `json:"-"`
}

// DocumentEventData is the payload for document create and update events.
// The full text is omitted to keep events small.
type DocumentEventData struct {
	Document *DocumentSummary `json:"document"`
}

// DocumentSummary is a document without its text.
type DocumentSummary struct {
	ID              int64                  `json:"id"`
	OwnerID         string                 `json:"owner_id"`
	Title           string                 `json:"title"`
	Authors         []string               `json:"authors"`
	Style           string                 `json:"style,omitempty"`
	SeriesName      string                 `json:"series_name,omitempty"`
	SeriesIndex     *float64               `json:"series_index,omitempty"`
	CoverBlurHash   string                 `json:"cover_blurhash,omitempty"`
	ChapterCount    int                    `json:"chapter_count"`
	ReadingProgress domain.ReadingProgress `json:"reading_progress"`
	Category        domain.Category        `json:"category"`
}

// DocumentDeletedEventData is the payload for document delete events.
type DocumentDeletedEventData struct {
	DeletedAt  time.Time `json:"deleted_at"`
	DocumentID int64     `json:"document_id"`
}

// ConnectivityEventData is the payload for connectivity events.
type ConnectivityEventData struct {
	Since time.Time `json:"since"`
	// Reload tells clients to rebuild their state from scratch on recovery.
	Reload bool `json:"reload"`
}

// PipelineEventData is the payload for pipeline completion events.
type PipelineEventData struct {
	Run *domain.PipelineRun `json:"run"`
}

// PlaybackEventData is the payload for playback state events.
type PlaybackEventData struct {
	SessionID    string `json:"session_id"`
	DocumentID   int64  `json:"document_id"`
	State        string `json:"state"`
	Chapter      int    `json:"chapter"`
	ChapterCount int    `json:"chapter_count"`
}

// IngestFailedEventData is the payload for failed inbox ingestions.
type IngestFailedEventData struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// Summarize strips the text from a document for event payloads.
func Summarize(doc *domain.Document) *DocumentSummary {
	return &DocumentSummary{
		ID:              doc.ID,
		OwnerID:         doc.OwnerID,
		Title:           doc.Title,
		Authors:         doc.Authors,
		Style:           doc.Style,
		SeriesName:      doc.SeriesName,
		SeriesIndex:     doc.SeriesIndex,
		CoverBlurHash:   doc.CoverBlurHash,
		ChapterCount:    doc.ChapterCount,
		ReadingProgress: doc.ReadingProgress,
		Category:        doc.Category(),
	}
}

// NewDocumentCreatedEvent creates a document created event scoped to the owner.
func NewDocumentCreatedEvent(doc *domain.Document) Event {
	return Event{
		Type:      EventDocumentCreated,
		Data:      DocumentEventData{Document: Summarize(doc)},
		Timestamp: time.Now(),
		OwnerID:   doc.OwnerID,
	}
}

// NewDocumentUpdatedEvent creates a document updated event scoped to the owner.
func NewDocumentUpdatedEvent(doc *domain.Document) Event {
	return Event{
		Type:      EventDocumentUpdated,
		Data:      DocumentEventData{Document: Summarize(doc)},
		Timestamp: time.Now(),
		OwnerID:   doc.OwnerID,
	}
}

// NewDocumentDeletedEvent creates a document deleted event scoped to the owner.
func NewDocumentDeletedEvent(ownerID string, documentID int64) Event {
	now := time.Now()
	return Event{
		Type:      EventDocumentDeleted,
		Data:      DocumentDeletedEventData{DocumentID: documentID, DeletedAt: now},
		Timestamp: now,
		OwnerID:   ownerID,
	}
}

// NewConnectivityEvent creates an online or offline event for all clients.
func NewConnectivityEvent(online bool, since time.Time) Event {
	eventType := EventConnectivityOffline
	if online {
		eventType = EventConnectivityOnline
	}
	return Event{
		Type:      eventType,
		Data:      ConnectivityEventData{Since: since, Reload: online},
		Timestamp: time.Now(),
	}
}

// NewPipelineCompletedEvent creates a pipeline completion event.
func NewPipelineCompletedEvent(run *domain.PipelineRun) Event {
	return Event{
		Type:      EventPipelineCompleted,
		Data:      PipelineEventData{Run: run},
		Timestamp: time.Now(),
	}
}

// NewPlaybackStateEvent creates a playback state event scoped to the owner.
func NewPlaybackStateEvent(ownerID string, data PlaybackEventData) Event {
	return Event{
		Type:      EventPlaybackState,
		Data:      data,
		Timestamp: time.Now(),
		OwnerID:   ownerID,
	}
}

// NewIngestFailedEvent creates an ingestion failure event scoped to the owner.
func NewIngestFailedEvent(ownerID, fileName, reason string) Event {
	return Event{
		Type:      EventIngestFailed,
		Data:      IngestFailedEventData{FileName: fileName, Reason: reason},
		Timestamp: time.Now(),
		OwnerID:   ownerID,
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}
