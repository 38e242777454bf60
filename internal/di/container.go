// Package di provides dependency injection configuration for the Lutrin daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/lutrinapp/lutrin/internal/audio"
	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/di/providers"
	"github.com/lutrinapp/lutrin/internal/logger"
	"github.com/lutrinapp/lutrin/internal/monitor"
	"github.com/lutrinapp/lutrin/internal/pipeline"
	"github.com/lutrinapp/lutrin/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Gateway layer
	do.Provide(injector, providers.ProvideGateway)
	do.Provide(injector, providers.ProvideMonitor)
	do.Provide(injector, providers.ProvideAudioCache)

	// Business services
	do.Provide(injector, providers.ProvideOrchestrator)
	do.Provide(injector, providers.ProvideLibraryService)
	do.Provide(injector, providers.ProvideSessionService)

	// Workers
	do.Provide(injector, providers.ProvideInbox)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services, registers connectivity listeners and
// starts the monitor.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	log := do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.GatewayHandle](injector)
	mon := do.MustInvoke[*monitor.Monitor](injector)
	_ = do.MustInvoke[*audio.Cache](injector)

	// Business services
	_ = do.MustInvoke[*pipeline.Orchestrator](injector)
	_ = do.MustInvoke[*service.LibraryService](injector)
	sessions := do.MustInvoke[*service.SessionService](injector)

	// Workers
	inbox := do.MustInvoke[*providers.InboxHandle](injector)

	// Listeners must be registered before the first probe.
	mon.AddListener(sessions)
	if inbox.Inbox != nil {
		mon.AddListener(inbox.Inbox)
	}
	mon.Start()

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	providers.TriggerSearchReindexIfNeeded(injector)

	log.Info("Lutrin ready")
	return nil
}
