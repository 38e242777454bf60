package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/do/v2"

	"github.com/lutrinapp/lutrin/internal/api"
	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/id"
	"github.com/lutrinapp/lutrin/internal/logger"
	"github.com/lutrinapp/lutrin/internal/mdns"
	"github.com/lutrinapp/lutrin/internal/monitor"
	"github.com/lutrinapp/lutrin/internal/pipeline"
	"github.com/lutrinapp/lutrin/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	limiter *api.RateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.limiter.Stop()
	return err
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)

	services := &api.Services{
		Library:  do.MustInvoke[*service.LibraryService](i),
		Sessions: do.MustInvoke[*service.SessionService](i),
		Pipeline: do.MustInvoke[*pipeline.Orchestrator](i),
		Status:   do.MustInvoke[*monitor.Monitor](i),
		Index:    indexHandle.SearchIndex,
		Events:   sseHandle.Manager,
	}

	limiter := api.NewRateLimiter(30, time.Minute, 10)

	handler := api.NewServer(services, api.Options{
		Version:       config.Version,
		CORSOrigins:   cfg.Server.CORSOrigins,
		OCREngine:     cfg.Engines.OCR,
		TTSEngine:     cfg.Engines.TTS,
		UploadLimiter: limiter,
	}, log.WithComponent("api"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, limiter: limiter}, nil
}

// MDNSServiceHandle wraps mdns.Service with Shutdownable.
type MDNSServiceHandle struct {
	*mdns.Service
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *MDNSServiceHandle) Shutdown() error {
	if h.started && h.Service != nil {
		return h.Service.Shutdown()
	}
	return nil
}

// ProvideMDNSService provides the mDNS advertisement service.
func ProvideMDNSService(i do.Injector) (*MDNSServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	instanceID, err := loadInstanceID(cfg.Storage.DataPath)
	if err != nil {
		return nil, err
	}
	log.Info("Instance identity loaded", "instance_id", instanceID)

	if !cfg.Server.AdvertiseMDNS {
		log.Info("mDNS advertisement disabled by configuration")
		return &MDNSServiceHandle{}, nil
	}

	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		log.Warn("Failed to parse server port for mDNS, using default", "port", cfg.Server.Port)
		port = 8080
	}

	svc := mdns.NewService(log.WithComponent("mdns"))
	if err := svc.Start(mdns.Advertisement{
		ID:      instanceID,
		Name:    cfg.Server.Name,
		Version: config.Version,
		Port:    port,
	}); err != nil {
		// Non-fatal: multicast is often unavailable in containers.
		log.Warn("mDNS advertisement unavailable", "error", err)
		return &MDNSServiceHandle{Service: svc}, nil
	}

	return &MDNSServiceHandle{Service: svc, started: true}, nil
}

// loadInstanceID returns the id stored under dataPath, creating it on
// first start so clients can recognize the daemon across restarts.
func loadInstanceID(dataPath string) (string, error) {
	path := filepath.Join(dataPath, "instance-id")

	data, err := os.ReadFile(path)
	if err == nil {
		if existing := strings.TrimSpace(string(data)); existing != "" {
			return existing, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read instance id: %w", err)
	}

	instanceID, err := id.Generate(id.PrefixInstance)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(instanceID+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write instance id: %w", err)
	}
	return instanceID, nil
}
