// Package pipeline runs the capture → upload → OCR → TTS cycle against the
// processing gateway and records how long each stage took.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lutrinapp/lutrin/internal/capture"
	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
	"github.com/lutrinapp/lutrin/internal/gateway"
	"github.com/lutrinapp/lutrin/internal/id"
	"github.com/lutrinapp/lutrin/internal/sse"
)

// Gateway is the subset of the gateway client the pipeline calls.
type Gateway interface {
	UploadImage(ctx context.Context, image []byte) (string, error)
	RunOCR(ctx context.Context, storedImageName, engineID string) (string, error)
	RunTTS(ctx context.Context, text, engineID string) (string, error)
	FetchStaticText(ctx context.Context, name string) (string, error)
}

// Monitor is the connectivity monitor as seen by the pipeline. Probing is
// suspended for the duration of a run.
type Monitor interface {
	Start()
	// Stop reports whether the monitor was running.
	Stop() bool
	Online() bool
}

// EventEmitter announces completed runs.
type EventEmitter interface {
	Emit(event any)
}

// Orchestrator executes pipeline runs, one at a time.
type Orchestrator struct {
	gateway Gateway
	monitor Monitor
	emitter EventEmitter
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

// New creates an orchestrator. monitor and emitter may be nil.
func New(gw Gateway, monitor Monitor, logger *slog.Logger, emitter EventEmitter) *Orchestrator {
	return &Orchestrator{
		gateway: gw,
		monitor: monitor,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RunCycle captures a frame from src, uploads it, recognizes its text and
// synthesizes speech. Blank recognized text ends the run with
// RunNoTextDetected and no error.
//
// On failure the returned run is non-nil and holds the timings of the
// stages that completed.
func (o *Orchestrator) RunCycle(ctx context.Context, src capture.ImageSource, ocrEngineID, ttsEngineID string) (*domain.PipelineRun, error) {
	return o.execute(ctx, domain.ModeCapture, func(r *run) error {
		var frame *capture.Frame
		err := r.stage(domain.StageCapture, domainerrors.CodeCaptureUnready, func() (err error) {
			frame, err = capture.Grab(ctx, src)
			return err
		})
		if err != nil {
			return err
		}
		r.Preview = frame.Preview

		err = r.stage(domain.StageUpload, domainerrors.CodeUploadFailed, func() (err error) {
			r.StoredImageName, err = o.gateway.UploadImage(ctx, frame.JPEG)
			return err
		})
		if err != nil {
			return err
		}

		return o.recognizeAndSpeak(ctx, r, ocrEngineID, ttsEngineID)
	})
}

// RunFromStoredImage runs OCR and TTS on an image the gateway already holds.
// Capture and upload timings stay nil.
func (o *Orchestrator) RunFromStoredImage(ctx context.Context, storedImageName, ocrEngineID, ttsEngineID string) (*domain.PipelineRun, error) {
	if strings.TrimSpace(storedImageName) == "" {
		return nil, domainerrors.Validation("stored image name is required")
	}
	return o.execute(ctx, domain.ModeStoredImage, func(r *run) error {
		r.StoredImageName = storedImageName
		return o.recognizeAndSpeak(ctx, r, ocrEngineID, ttsEngineID)
	})
}

// RunFromStaticText fetches a fixture text from the gateway and speaks it.
// A fetch failure is reported against the OCR stage, which the fetch stands
// in for.
func (o *Orchestrator) RunFromStaticText(ctx context.Context, name, ttsEngineID string) (*domain.PipelineRun, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domainerrors.Validation("static text name is required")
	}
	return o.execute(ctx, domain.ModeStaticText, func(r *run) error {
		err := r.stage(domain.StageOCR, domainerrors.CodeOcrFailed, func() (err error) {
			r.RecognizedText, err = o.gateway.FetchStaticText(ctx, name)
			return err
		})
		if err != nil {
			return err
		}
		return o.speak(ctx, r, ttsEngineID)
	})
}

func (o *Orchestrator) recognizeAndSpeak(ctx context.Context, r *run, ocrEngineID, ttsEngineID string) error {
	err := r.stage(domain.StageOCR, domainerrors.CodeOcrFailed, func() (err error) {
		r.RecognizedText, err = o.gateway.RunOCR(ctx, r.StoredImageName, ocrEngineID)
		return err
	})
	if err != nil {
		return err
	}
	return o.speak(ctx, r, ttsEngineID)
}

func (o *Orchestrator) speak(ctx context.Context, r *run, ttsEngineID string) error {
	if strings.TrimSpace(r.RecognizedText) == "" {
		r.Status = domain.RunNoTextDetected
		return nil
	}

	err := r.stage(domain.StageTTS, domainerrors.CodeTtsFailed, func() (err error) {
		r.AudioURL, err = o.gateway.RunTTS(ctx, r.RecognizedText, ttsEngineID)
		return err
	})
	if errors.Is(err, gateway.ErrEmptyText) {
		// The gateway judged the text blank after all.
		r.FailedStage, r.Error = "", ""
		r.Status = domain.RunNoTextDetected
		return nil
	}
	return err
}

func (o *Orchestrator) execute(ctx context.Context, mode domain.RunMode, body func(*run) error) (*domain.PipelineRun, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, domainerrors.Busy("a pipeline run is already in progress")
	}
	defer o.running.Store(false)

	if o.monitor != nil {
		if !o.monitor.Online() {
			return nil, domainerrors.ErrOffline
		}
		if o.monitor.Stop() {
			defer o.monitor.Start()
		}
	}

	runID, err := id.Generate(id.PrefixRun)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate run id")
	}

	r := &run{
		PipelineRun: &domain.PipelineRun{
			ID:        runID,
			Mode:      mode,
			StartedAt: o.now(),
		},
		now: o.now,
	}

	err = body(r)

	r.CompletedAt = o.now()
	switch {
	case err != nil:
		r.Status = domain.RunFailed
	case r.Status == "":
		r.Status = domain.RunSucceeded
	}

	logArgs := []any{
		"run_id", r.ID,
		"mode", r.Mode,
		"status", r.Status,
		"duration", r.Total(),
	}
	if err != nil {
		o.logger.Warn("pipeline run failed", append(logArgs, "stage", r.FailedStage, "error", err)...)
	} else {
		o.logger.Info("pipeline run completed", logArgs...)
	}

	if o.emitter != nil {
		o.emitter.Emit(sse.NewPipelineCompletedEvent(r.PipelineRun))
	}

	return r.PipelineRun, err
}

// run is a PipelineRun under construction.
type run struct {
	*domain.PipelineRun
	now func() time.Time
}

// stage times fn and records it. A failure is mapped to code, keeping the
// gateway's message verbatim, and marks the run as failed at this stage.
func (r *run) stage(stage domain.Stage, code domainerrors.Code, fn func() error) error {
	start := r.now()
	err := fn()
	end := r.now()

	r.Timings.Set(stage, &domain.StageTiming{
		StartedAt: start,
		EndedAt:   end,
		Duration:  end.Sub(start),
	})

	if err == nil {
		return nil
	}

	var coded *domainerrors.Error
	if !errors.As(err, &coded) || coded.Code != code {
		coded = domainerrors.Stage(code, gateway.MessageOf(err), err)
	}

	r.FailedStage = stage
	r.Error = coded.Message
	return coded
}
