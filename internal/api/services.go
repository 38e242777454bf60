package api

import (
	"context"

	"github.com/lutrinapp/lutrin/internal/capture"
	"github.com/lutrinapp/lutrin/internal/domain"
	"github.com/lutrinapp/lutrin/internal/monitor"
	"github.com/lutrinapp/lutrin/internal/service"
	"github.com/lutrinapp/lutrin/internal/sse"
)

// Pipeline runs capture cycles. pipeline.Orchestrator implements it.
type Pipeline interface {
	Running() bool
	RunCycle(ctx context.Context, src capture.ImageSource, ocrEngineID, ttsEngineID string) (*domain.PipelineRun, error)
	RunFromStoredImage(ctx context.Context, storedImageName, ocrEngineID, ttsEngineID string) (*domain.PipelineRun, error)
	RunFromStaticText(ctx context.Context, name, ttsEngineID string) (*domain.PipelineRun, error)
}

// StatusReporter exposes the connectivity monitor's view.
type StatusReporter interface {
	Report() monitor.Report
}

// IndexStats reports on the search index.
type IndexStats interface {
	DocumentCount() (uint64, error)
}

// Services groups the components the API server exposes.
// Search and Events may be nil when the daemon runs without them.
type Services struct {
	Library  *service.LibraryService
	Sessions *service.SessionService
	Pipeline Pipeline
	Status   StatusReporter
	Index    IndexStats
	Events   *sse.Manager
}
