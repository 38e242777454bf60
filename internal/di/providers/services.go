package providers

import (
	"github.com/samber/do/v2"

	"github.com/lutrinapp/lutrin/internal/audio"
	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/logger"
	"github.com/lutrinapp/lutrin/internal/monitor"
	"github.com/lutrinapp/lutrin/internal/pipeline"
	"github.com/lutrinapp/lutrin/internal/service"
)

// ProvideAudioCache provides the local clip cache. Clips left over from a
// previous run are purged since no session can reference them.
func ProvideAudioCache(i do.Injector) (*audio.Cache, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	gw := do.MustInvoke[*GatewayHandle](i)

	cache, err := audio.NewCache(cfg.Storage.AudioCachePath, gw.Client, log.WithComponent("audio"))
	if err != nil {
		return nil, err
	}

	if n, err := cache.Purge(); err != nil {
		log.Warn("Failed to purge audio cache", "path", cache.Dir(), "error", err)
	} else if n > 0 {
		log.Info("Purged stale audio clips", "count", n)
	}

	return cache, nil
}

// ProvideOrchestrator provides the capture pipeline orchestrator.
func ProvideOrchestrator(i do.Injector) (*pipeline.Orchestrator, error) {
	log := do.MustInvoke[*logger.Logger](i)
	gw := do.MustInvoke[*GatewayHandle](i)
	mon := do.MustInvoke[*monitor.Monitor](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	return pipeline.New(gw.Client, mon, log.WithComponent("pipeline"), sseHandle.Manager), nil
}

// ProvideLibraryService provides the document library service.
func ProvideLibraryService(i do.Injector) (*service.LibraryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	gw := do.MustInvoke[*GatewayHandle](i)
	mon := do.MustInvoke[*monitor.Monitor](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLibraryService(
		storeHandle.Library,
		gw.Client,
		mon,
		indexHandle.SearchIndex,
		log.WithComponent("library"),
	), nil
}

// ProvideSessionService provides the chapter playback session service.
func ProvideSessionService(i do.Injector) (*service.SessionService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	gw := do.MustInvoke[*GatewayHandle](i)
	cache := do.MustInvoke[*audio.Cache](i)
	mon := do.MustInvoke[*monitor.Monitor](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSessionService(service.SessionDeps{
		Documents: storeHandle.Library,
		TTS:       gw.Client,
		Clips:     cache,
		Online:    mon,
		Emitter:   sseHandle.Manager,
		Logger:    log.WithComponent("playback"),
		TTSEngine: cfg.Engines.TTS,
	}), nil
}
