package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/http/response"
)

func succeededRun(mode domain.RunMode) *domain.PipelineRun {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &domain.PipelineRun{
		ID:             "run-test",
		Mode:           mode,
		Status:         domain.RunSucceeded,
		StartedAt:      start,
		CompletedAt:    start.Add(3 * time.Second),
		RecognizedText: "Il était une fois",
		AudioURL:       "/audio/run-test.wav",
	}
}

func TestRunCapture(t *testing.T) {
	ts := setupTestServer(t)
	ts.pipeline.run = succeededRun(domain.ModeCapture)

	rec := ts.upload(t, "/api/v1/pipeline/runs", "image", "page.png", []byte("png bytes"), map[string]string{"tts_engine": "espeak"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	run := decode[domain.PipelineRun](t, rec)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, "/audio/run-test.wav", run.AudioURL)

	assert.Equal(t, []byte("png bytes"), ts.pipeline.image)
	assert.Equal(t, "tesseract", ts.pipeline.ocr, "default OCR engine")
	assert.Equal(t, "espeak", ts.pipeline.tts, "requested TTS engine")
}

func TestRunCapture_MissingImage(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.upload(t, "/api/v1/pipeline/runs", "", "", nil, map[string]string{"ocr_engine": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunCapture_StageFailureCarriesRun(t *testing.T) {
	ts := setupTestServer(t)
	run := succeededRun(domain.ModeCapture)
	run.Status = domain.RunFailed
	run.FailedStage = domain.StageOCR
	ts.pipeline.run = run
	ts.pipeline.err = domainerrors.Stage(domainerrors.CodeOcrFailed, "engine tesseract crashed", nil)

	rec := ts.upload(t, "/api/v1/pipeline/runs", "image", "page.png", []byte("png"), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	body := decode[response.ErrorBody](t, rec)
	assert.Equal(t, "OCR_FAILED", body.Code)
	assert.Equal(t, "engine tesseract crashed", body.Message)
	details, ok := body.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ocr", details["failed_stage"])
}

func TestRunStored(t *testing.T) {
	ts := setupTestServer(t)
	ts.pipeline.run = succeededRun(domain.ModeStoredImage)

	resp := ts.api.Post("/api/v1/pipeline/runs/stored", map[string]any{
		"stored_image_name": "a1b2.jpg",
		"ocr_engine":        "easyocr",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	assert.Equal(t, "a1b2.jpg", ts.pipeline.stored)
	assert.Equal(t, "easyocr", ts.pipeline.ocr)
	assert.Equal(t, "piper", ts.pipeline.tts)
}

func TestRunStatic(t *testing.T) {
	ts := setupTestServer(t)
	ts.pipeline.run = succeededRun(domain.ModeStaticText)

	resp := ts.api.Post("/api/v1/pipeline/runs/static", map[string]any{"name": "chapter-one"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "chapter-one", ts.pipeline.fixture)

	run := decode[domain.PipelineRun](t, resp)
	assert.Equal(t, domain.ModeStaticText, run.Mode)
}

func TestRun_BusyAndOffline(t *testing.T) {
	ts := setupTestServer(t)

	ts.pipeline.err = domainerrors.Busy("a pipeline run is already in progress")
	resp := ts.api.Post("/api/v1/pipeline/runs/static", map[string]any{"name": "chapter-one"})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "BUSY", decode[APIError](t, resp).Code)

	ts.pipeline.err = domainerrors.ErrOffline
	resp = ts.api.Post("/api/v1/pipeline/runs/stored", map[string]any{"stored_image_name": "a.jpg"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, "OFFLINE", decode[APIError](t, resp).Code)
}
