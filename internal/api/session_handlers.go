package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lutrinapp/lutrin/internal/playback"
	"github.com/lutrinapp/lutrin/internal/service"
	"github.com/lutrinapp/lutrin/internal/validation"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "openSession",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Open playback session",
		Description:   "Opens an idle session on a document, positioned at the saved progress. Reopening a document replaces its previous session.",
		Tags:          []string{"Playback"},
		DefaultStatus: http.StatusCreated,
	}, s.handleOpenSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session",
		Description: "Returns the session's playback state and audio cache",
		Tags:        []string{"Playback"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "seekSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/seek",
		Summary:     "Seek to chapter",
		Description: "Moves the session to a chapter, optionally starting playback there",
		Tags:        []string{"Playback"},
	}, s.handleSeekSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "controlSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/{action}",
		Summary:     "Transport control",
		Description: "Applies play, pause, next, previous, forward or backward",
		Tags:        []string{"Playback"},
	}, s.handleControlSession)

	huma.Register(s.api, huma.Operation{
		OperationID:   "closeSession",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sessions/{id}",
		Summary:       "Close session",
		Description:   "Stops playback and releases the session's audio",
		Tags:          []string{"Playback"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleCloseSession)
}

// OpenSessionRequest is the request body for opening a session.
type OpenSessionRequest struct {
	OwnerID    string `json:"owner_id" validate:"required,owner_id" doc:"Owner of the document"`
	DocumentID int64  `json:"document_id" validate:"required,gt=0" doc:"Document to play"`
}

// OpenSessionInput wraps the open request for Huma.
type OpenSessionInput struct {
	Body OpenSessionRequest
}

// SessionOutput wraps a session snapshot for Huma.
type SessionOutput struct {
	Body playback.Snapshot
}

// SessionIDInput identifies a session.
type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// ControlSessionInput contains a transport action.
type ControlSessionInput struct {
	ID     string `path:"id" doc:"Session ID"`
	Action string `path:"action" enum:"play,pause,next,previous,forward,backward" doc:"Transport action"`
}

// SeekSessionRequest is the request body for a seek.
type SeekSessionRequest struct {
	Chapter int  `json:"chapter" validate:"gte=0" doc:"Zero-based chapter index; clamped to the document"`
	Play    bool `json:"play,omitempty" doc:"Start playing the chapter"`
}

// SeekSessionInput wraps the seek request for Huma.
type SeekSessionInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body SeekSessionRequest
}

func (s *Server) handleOpenSession(ctx context.Context, input *OpenSessionInput) (*SessionOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toHumaError(err)
	}
	ownerID, err := validation.OwnerID(input.Body.OwnerID)
	if err != nil {
		return nil, s.toHumaError(err)
	}

	snap, err := s.services.Sessions.Open(ctx, ownerID, input.Body.DocumentID)
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &SessionOutput{Body: snap}, nil
}

func (s *Server) handleGetSession(_ context.Context, input *SessionIDInput) (*SessionOutput, error) {
	snap, err := s.services.Sessions.Snapshot(input.ID)
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &SessionOutput{Body: snap}, nil
}

func (s *Server) handleControlSession(ctx context.Context, input *ControlSessionInput) (*SessionOutput, error) {
	snap, err := s.services.Sessions.Control(ctx, input.ID, service.Action(input.Action))
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &SessionOutput{Body: snap}, nil
}

func (s *Server) handleSeekSession(ctx context.Context, input *SeekSessionInput) (*SessionOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toHumaError(err)
	}

	snap, err := s.services.Sessions.Seek(ctx, input.ID, input.Body.Chapter, input.Body.Play)
	if err != nil {
		return nil, s.toHumaError(err)
	}
	return &SessionOutput{Body: snap}, nil
}

func (s *Server) handleCloseSession(_ context.Context, input *SessionIDInput) (*struct{}, error) {
	if err := s.services.Sessions.Close(input.ID); err != nil {
		return nil, s.toHumaError(err)
	}
	return nil, nil
}
