package providers

import (
	"github.com/samber/do/v2"

	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/gateway"
	"github.com/lutrinapp/lutrin/internal/logger"
	"github.com/lutrinapp/lutrin/internal/monitor"
)

// GatewayHandle wraps the gateway client with shutdown capability.
type GatewayHandle struct {
	*gateway.Client
}

// Shutdown implements do.Shutdownable.
func (h *GatewayHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideGateway provides the Remote Processing Gateway client.
func ProvideGateway(i do.Injector) (*GatewayHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client, err := gateway.New(cfg.Gateway, log.WithComponent("gateway"))
	if err != nil {
		return nil, err
	}

	log.Info("Gateway client initialized",
		"base_url", cfg.Gateway.BaseURL,
		"timeout", cfg.Gateway.Timeout,
		"rps", cfg.Gateway.RPS,
	)

	return &GatewayHandle{Client: client}, nil
}

// ProvideMonitor provides the connectivity monitor. It is started by
// Bootstrap once every listener is registered.
func ProvideMonitor(i do.Injector) (*monitor.Monitor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	gw := do.MustInvoke[*GatewayHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	return monitor.New(gw.Client, cfg.Monitor, log.WithComponent("monitor"), sseHandle.Manager), nil
}
