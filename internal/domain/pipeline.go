package domain

import "time"

// RunStatus is the terminal status of a pipeline run.
type RunStatus string

// Pipeline run statuses. NoTextDetected is a normal outcome, not a failure.
const (
	RunSucceeded      RunStatus = "succeeded"
	RunFailed         RunStatus = "failed"
	RunNoTextDetected RunStatus = "no-text-detected"
)

// RunMode describes which stages a run starts from.
type RunMode string

// Pipeline run modes.
const (
	ModeCapture     RunMode = "capture"      // capture, upload, OCR, TTS
	ModeStoredImage RunMode = "stored-image" // OCR, TTS on an already uploaded image
	ModeStaticText  RunMode = "static-text"  // TTS on a fixture text
)

// Stage names a pipeline step.
type Stage string

// Pipeline stages in execution order.
const (
	StageCapture Stage = "capture"
	StageUpload  Stage = "upload"
	StageOCR     Stage = "ocr"
	StageTTS     Stage = "tts"
)

// StageTiming records one stage's wall-clock window.
type StageTiming struct {
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
}

// Timings holds per-stage timings. A stage that never ran stays nil.
type Timings struct {
	Capture *StageTiming `json:"capture,omitempty"`
	Upload  *StageTiming `json:"upload,omitempty"`
	OCR     *StageTiming `json:"ocr,omitempty"`
	TTS     *StageTiming `json:"tts,omitempty"`
}

// Set records the timing of a stage.
func (t *Timings) Set(stage Stage, timing *StageTiming) {
	switch stage {
	case StageCapture:
		t.Capture = timing
	case StageUpload:
		t.Upload = timing
	case StageOCR:
		t.OCR = timing
	case StageTTS:
		t.TTS = timing
	}
}

// Get returns a stage timing, or nil if the stage did not run.
func (t *Timings) Get(stage Stage) *StageTiming {
	switch stage {
	case StageCapture:
		return t.Capture
	case StageUpload:
		return t.Upload
	case StageOCR:
		return t.OCR
	case StageTTS:
		return t.TTS
	default:
		return nil
	}
}

// Duration returns a stage's duration and whether it was recorded.
func (t *Timings) Duration(stage Stage) (time.Duration, bool) {
	timing := t.Get(stage)
	if timing == nil {
		return 0, false
	}
	return timing.Duration, true
}

// PipelineRun is one execution of the capture pipeline. It is never persisted.
type PipelineRun struct {
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	ID              string    `json:"id"`
	Mode            RunMode   `json:"mode"`
	Status          RunStatus `json:"status"`
	StoredImageName string    `json:"stored_image_name,omitempty"`
	RecognizedText  string    `json:"recognized_text,omitempty"`
	AudioURL        string    `json:"audio_url,omitempty"`
	Preview         string    `json:"preview,omitempty"` // JPEG data URI of the captured frame
	FailedStage     Stage     `json:"failed_stage,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timings         Timings   `json:"timings"`
}

// Total returns the run's overall wall-clock duration.
func (r *PipelineRun) Total() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
