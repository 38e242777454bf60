package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lutrinapp/lutrin/internal/capture"
	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/http/response"
)

func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "runFromStoredImage",
		Method:      http.MethodPost,
		Path:        "/api/v1/pipeline/runs/stored",
		Summary:     "Run OCR and TTS on a stored image",
		Description: "Recognizes text in an image the gateway already holds and synthesizes speech",
		Tags:        []string{"Pipeline"},
	}, s.handleRunStored)

	huma.Register(s.api, huma.Operation{
		OperationID: "runFromStaticText",
		Method:      http.MethodPost,
		Path:        "/api/v1/pipeline/runs/static",
		Summary:     "Speak a static text",
		Description: "Fetches a fixture text from the gateway and synthesizes speech",
		Tags:        []string{"Pipeline"},
	}, s.handleRunStatic)
}

// RunStoredRequest is the request body for a stored-image run.
type RunStoredRequest struct {
	StoredImageName string `json:"stored_image_name" validate:"required,max=255" doc:"Name returned by an earlier upload"`
	OCREngine       string `json:"ocr_engine,omitempty" validate:"max=64" doc:"OCR engine; defaults to the configured one"`
	TTSEngine       string `json:"tts_engine,omitempty" validate:"max=64" doc:"TTS engine; defaults to the configured one"`
}

// RunStoredInput wraps the stored-image request for Huma.
type RunStoredInput struct {
	Body RunStoredRequest
}

// RunStaticRequest is the request body for a static-text run.
type RunStaticRequest struct {
	Name      string `json:"name" validate:"required,max=255" doc:"Fixture text name"`
	TTSEngine string `json:"tts_engine,omitempty" validate:"max=64" doc:"TTS engine; defaults to the configured one"`
}

// RunStaticInput wraps the static-text request for Huma.
type RunStaticInput struct {
	Body RunStaticRequest
}

// RunOutput wraps a completed pipeline run for Huma.
type RunOutput struct {
	Body *domain.PipelineRun
}

func (s *Server) handleRunStored(ctx context.Context, input *RunStoredInput) (*RunOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toHumaError(err)
	}

	run, err := s.services.Pipeline.RunFromStoredImage(ctx, input.Body.StoredImageName,
		s.ocrEngine(input.Body.OCREngine), s.ttsEngine(input.Body.TTSEngine))
	if err != nil {
		return nil, s.toHumaError(runError(run, err))
	}
	return &RunOutput{Body: run}, nil
}

func (s *Server) handleRunStatic(ctx context.Context, input *RunStaticInput) (*RunOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toHumaError(err)
	}

	run, err := s.services.Pipeline.RunFromStaticText(ctx, input.Body.Name, s.ttsEngine(input.Body.TTSEngine))
	if err != nil {
		return nil, s.toHumaError(runError(run, err))
	}
	return &RunOutput{Body: run}, nil
}

// handleRunCapture runs a full capture cycle on an uploaded photo.
// POST /api/v1/pipeline/runs
// Content-Type: multipart/form-data with "image" field, optional
// "ocr_engine" and "tts_engine" fields
func (s *Server) handleRunCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageSize)
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, "image too large, maximum size is 10 MB", s.logger)
			return
		}
		response.BadRequest(w, "no image uploaded, use the 'image' field of a multipart form", s.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "failed to read uploaded image", s.logger)
		return
	}

	run, err := s.services.Pipeline.RunCycle(r.Context(), capture.BytesSource(data),
		s.ocrEngine(r.FormValue("ocr_engine")), s.ttsEngine(r.FormValue("tts_engine")))
	if err != nil {
		response.HandleError(w, runError(run, err), s.logger)
		return
	}

	response.Success(w, run, s.logger)
}

// runError attaches a failed run to its stage error so clients get the
// timings of the stages that completed.
func runError(run *domain.PipelineRun, err error) error {
	var domainErr *domainerrors.Error
	if run == nil || !errors.As(err, &domainErr) {
		return err
	}
	return domainErr.WithDetails(run)
}

func (s *Server) ocrEngine(requested string) string {
	if requested != "" {
		return requested
	}
	return s.opts.OCREngine
}

func (s *Server) ttsEngine(requested string) string {
	if requested != "" {
		return requested
	}
	return s.opts.TTSEngine
}
