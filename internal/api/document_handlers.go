package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/lutrinapp/lutrin/internal/domain"
	"github.com/lutrinapp/lutrin/internal/http/response"
	"github.com/lutrinapp/lutrin/internal/service"
)

func (s *Server) registerDocumentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listDocuments",
		Method:      http.MethodGet,
		Path:        "/api/v1/owners/{ownerId}/documents",
		Summary:     "List documents",
		Description: "Returns an owner's documents, most recently updated first, optionally filtered by reading category",
		Tags:        []string{"Library"},
	}, s.handleListDocuments)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createDocument",
		Method:        http.MethodPost,
		Path:          "/api/v1/owners/{ownerId}/documents",
		Summary:       "Create document",
		Description:   "Adds a document from structured text and metadata",
		Tags:          []string{"Library"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "getDocument",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents/{id}",
		Summary:     "Get document",
		Description: "Returns a document with its full text",
		Tags:        []string{"Library"},
	}, s.handleGetDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateDocumentMetadata",
		Method:      http.MethodPatch,
		Path:        "/api/v1/documents/{id}/metadata",
		Summary:     "Update metadata",
		Description: "Edits a document's style and series",
		Tags:        []string{"Library"},
	}, s.handleUpdateMetadata)

	huma.Register(s.api, huma.Operation{
		OperationID: "setDocumentCover",
		Method:      http.MethodPut,
		Path:        "/api/v1/documents/{id}/cover",
		Summary:     "Set cover",
		Description: "Attaches a cover image given as a data URI",
		Tags:        []string{"Library"},
	}, s.handleSetCover)

	huma.Register(s.api, huma.Operation{
		OperationID: "setReadingProgress",
		Method:      http.MethodPut,
		Path:        "/api/v1/documents/{id}/progress",
		Summary:     "Set reading progress",
		Description: "Records the last chapter read; the chapter count marks the document finished",
		Tags:        []string{"Library"},
	}, s.handleSetProgress)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteDocument",
		Method:        http.MethodDelete,
		Path:          "/api/v1/documents/{id}",
		Summary:       "Delete document",
		Description:   "Deletes a document; deleting a missing document succeeds",
		Tags:          []string{"Library"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteDocument)
}

// === DTOs ===

// DocumentSummary is a document as listed, without its full text.
type DocumentSummary struct {
	ID              int64     `json:"id" doc:"Document ID"`
	OwnerID         string    `json:"owner_id" doc:"Owner ID"`
	Title           string    `json:"title" doc:"Title"`
	Authors         []string  `json:"authors" doc:"Authors"`
	Description     string    `json:"description,omitempty" doc:"Plain-text description"`
	Style           string    `json:"style,omitempty" doc:"Literary style"`
	SeriesName      string    `json:"series_name,omitempty" doc:"Series name"`
	SeriesIndex     *float64  `json:"series_index,omitempty" doc:"Position in the series"`
	CoverImage      string    `json:"cover_image,omitempty" doc:"Cover as a JPEG data URI"`
	CoverBlurHash   string    `json:"cover_blurhash,omitempty" doc:"BlurHash placeholder for the cover"`
	ChapterCount    int       `json:"chapter_count" doc:"Number of chapters"`
	LastChapterRead int       `json:"last_chapter_read" doc:"Zero-based index of the last chapter begun"`
	Category        string    `json:"category" doc:"Reading category" enum:"unstarted,in-progress,finished"`
	CreatedAt       time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt       time.Time `json:"updated_at" doc:"Last update time"`
}

// DocumentResponse is a document with its full text.
type DocumentResponse struct {
	DocumentSummary
	SourceName string `json:"source_name,omitempty" doc:"File the document was ingested from"`
	Text       string `json:"text" doc:"Full text, chapters separated by blank lines"`
}

func toSummary(doc *domain.Document) DocumentSummary {
	return DocumentSummary{
		ID:              doc.ID,
		OwnerID:         doc.OwnerID,
		Title:           doc.Title,
		Authors:         doc.Authors,
		Description:     doc.Description,
		Style:           doc.Style,
		SeriesName:      doc.SeriesName,
		SeriesIndex:     doc.SeriesIndex,
		CoverImage:      doc.CoverImage,
		CoverBlurHash:   doc.CoverBlurHash,
		ChapterCount:    doc.ChapterCount,
		LastChapterRead: doc.ReadingProgress.LastChapterRead,
		Category:        string(doc.Category()),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func toResponse(doc *domain.Document) DocumentResponse {
	return DocumentResponse{
		DocumentSummary: toSummary(doc),
		SourceName:      doc.SourceName,
		Text:            doc.Text,
	}
}

// ListDocumentsInput contains parameters for listing documents.
type ListDocumentsInput struct {
	OwnerID  string `path:"ownerId" doc:"Owner ID"`
	Category string `query:"category" enum:"unstarted,in-progress,finished" doc:"Keep only documents in this reading category"`
}

// ListDocumentsResponse contains a list of documents.
type ListDocumentsResponse struct {
	Documents []DocumentSummary `json:"documents" doc:"Documents, most recently updated first"`
	Total     int               `json:"total" doc:"Number of documents"`
}

// ListDocumentsOutput wraps the list response for Huma.
type ListDocumentsOutput struct {
	Body ListDocumentsResponse
}

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Title       string   `json:"title" validate:"required,max=500" doc:"Title"`
	Authors     []string `json:"authors,omitempty" validate:"max=20,dive,max=200" doc:"Authors"`
	Description string   `json:"description,omitempty" validate:"max=20000" doc:"Description"`
	Style       string   `json:"style,omitempty" validate:"max=100" doc:"Literary style"`
	SeriesName  string   `json:"series_name,omitempty" validate:"max=500" doc:"Series name"`
	SeriesIndex *float64 `json:"series_index,omitempty" validate:"omitempty,gte=0" doc:"Position in the series"`
	CoverImage  string   `json:"cover_image,omitempty" validate:"omitempty,datauri" doc:"Cover as an image data URI"`
	Text        string   `json:"text" validate:"required" doc:"Full text, chapters separated by blank lines"`
	SourceName  string   `json:"source_name,omitempty" validate:"max=255" doc:"Origin of the text"`
}

// CreateDocumentInput wraps the create request for Huma.
type CreateDocumentInput struct {
	OwnerID string `path:"ownerId" doc:"Owner ID"`
	Body    CreateDocumentRequest
}

// DocumentOutput wraps a document for Huma.
type DocumentOutput struct {
	Body DocumentResponse
}

// DocumentIDInput identifies a document.
type DocumentIDInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Document ID"`
}

// UpdateMetadataRequest is the request body for metadata edits.
// Omitted fields are left unchanged.
type UpdateMetadataRequest struct {
	Style            *string  `json:"style,omitempty" validate:"omitempty,max=100" doc:"Literary style"`
	SeriesName       *string  `json:"series_name,omitempty" validate:"omitempty,max=500" doc:"Series name"`
	SeriesIndex      *float64 `json:"series_index,omitempty" validate:"omitempty,gte=0" doc:"Position in the series"`
	ClearSeriesIndex bool     `json:"clear_series_index,omitempty" doc:"Remove the series position"`
}

// UpdateMetadataInput wraps the metadata request for Huma.
type UpdateMetadataInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Document ID"`
	Body UpdateMetadataRequest
}

// SetCoverRequest is the request body for attaching a cover.
type SetCoverRequest struct {
	Image string `json:"image" validate:"required,datauri" doc:"Image data URI (JPEG, PNG, GIF or WebP)"`
}

// SetCoverInput wraps the cover request for Huma.
type SetCoverInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Document ID"`
	Body SetCoverRequest
}

// SetProgressRequest is the request body for reading progress.
type SetProgressRequest struct {
	LastChapterRead int `json:"last_chapter_read" validate:"gte=0" doc:"Zero-based index of the last chapter begun"`
}

// SetProgressInput wraps the progress request for Huma.
type SetProgressInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Document ID"`
	Body SetProgressRequest
}

// === Handlers ===

func (s *Server) handleListDocuments(ctx context.Context, input *ListDocumentsInput) (*ListDocumentsOutput, error) {
	docs, err := s.services.Library.List(ctx, input.OwnerID, input.Category)
	if err != nil {
		return nil, s.toHumaError(err)
	}

	out := make([]DocumentSummary, len(docs))
	for i, doc := range docs {
		out[i] = toSummary(doc)
	}
	return &ListDocumentsOutput{
		Body: ListDocumentsResponse{Documents: out, Total: len(out)},
	}, nil
}

func (s *Server) handleCreateDocument(ctx context.Context, input *CreateDocumentInput) (*DocumentOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toHumaError(err)
	}

	b := input.Body
	doc, err := s.services.Library.Create(ctx, input.OwnerID, service.CreateDocumentInput{
		Title:       b.Title,
		Authors:     b.Authors,
		Description: b.Description,
		Style:       b.Style,
		SeriesName:  b.SeriesName,
		SeriesIndex: b.SeriesIndex,
		CoverImage:  b.CoverImage,
		Text:        b.Text,
		SourceName:  b.SourceName,
	})
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &DocumentOutput{Body: toResponse(doc)}, nil
}

func (s *Server) handleGetDocument(ctx context.Context, input *DocumentIDInput) (*DocumentOutput, error) {
	doc, err := s.services.Library.Get(ctx, input.ID)
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &DocumentOutput{Body: toResponse(doc)}, nil
}

func (s *Server) handleUpdateMetadata(ctx context.Context, input *UpdateMetadataInput) (*DocumentOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toHumaError(err)
	}

	doc, err := s.services.Library.UpdateMetadata(ctx, input.ID, service.MetadataUpdate{
		Style:            input.Body.Style,
		SeriesName:       input.Body.SeriesName,
		SeriesIndex:      input.Body.SeriesIndex,
		ClearSeriesIndex: input.Body.ClearSeriesIndex,
	})
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &DocumentOutput{Body: toResponse(doc)}, nil
}

func (s *Server) handleSetCover(ctx context.Context, input *SetCoverInput) (*DocumentOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toHumaError(err)
	}

	doc, err := s.services.Library.SetCover(ctx, input.ID, input.Body.Image)
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &DocumentOutput{Body: toResponse(doc)}, nil
}

func (s *Server) handleSetProgress(ctx context.Context, input *SetProgressInput) (*DocumentOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toHumaError(err)
	}

	doc, err := s.services.Library.SetProgress(ctx, input.ID, input.Body.LastChapterRead)
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &DocumentOutput{Body: toResponse(doc)}, nil
}

func (s *Server) handleDeleteDocument(ctx context.Context, input *DocumentIDInput) (*struct{}, error) {
	if err := s.services.Library.Delete(ctx, input.ID); err != nil {
		return nil, s.toHumaError(err)
	}
	return nil, nil
}

// handleIngestEpub ingests an uploaded e-book through the gateway.
// POST /api/v1/owners/{ownerId}/documents/epub
// Content-Type: multipart/form-data with "file" field
func (s *Server) handleIngestEpub(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, "file too large, maximum size is 50 MB", s.logger)
			return
		}
		response.BadRequest(w, "no file uploaded, use the 'file' field of a multipart form", s.logger)
		return
	}
	defer file.Close()

	doc, err := s.services.Library.Ingest(r.Context(), ownerID, header.Filename, file)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, toResponse(doc), s.logger)
}
