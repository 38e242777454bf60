package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/logger"
	"github.com/lutrinapp/lutrin/internal/sse"
	"github.com/lutrinapp/lutrin/internal/store"
	"github.com/lutrinapp/lutrin/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the library store with shutdown capability.
type StoreHandle struct {
	store.Library
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured library backend.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	var (
		lib  store.Library
		path string
		err  error
	)
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		path = filepath.Join(cfg.Storage.DataPath, "library.db")
		lib, err = sqlite.Open(path, log.Logger, sseHandle.Manager)
	default:
		path = filepath.Join(cfg.Storage.DataPath, "db")
		lib, err = store.New(path, log.Logger, sseHandle.Manager)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Library store initialized", "backend", cfg.Storage.Backend, "path", path)

	return &StoreHandle{Library: lib}, nil
}
