package providers

import (
	"context"
	"errors"

	"github.com/samber/do/v2"

	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/logger"
	"github.com/lutrinapp/lutrin/internal/service"
	"github.com/lutrinapp/lutrin/internal/watcher"
)

// InboxHandle wraps the inbox watcher with its context for lifecycle
// management. Inbox is nil when no inbox path is configured.
type InboxHandle struct {
	*watcher.Inbox
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *InboxHandle) Shutdown() error {
	if h.Inbox == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideInbox provides the inbox folder watcher and starts it.
func ProvideInbox(i do.Injector) (*InboxHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Inbox.Path == "" {
		log.Info("Inbox watcher disabled, no inbox path configured")
		return &InboxHandle{}, nil
	}

	library := do.MustInvoke[*service.LibraryService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	inbox, err := watcher.NewInbox(cfg.Inbox.Path, library, sseHandle.Manager, log.WithComponent("inbox"), watcher.Options{
		IgnoreHidden: true,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := inbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Inbox watcher stopped", "error", err)
		}
	}()

	log.Info("Inbox watcher started", "path", cfg.Inbox.Path)

	return &InboxHandle{Inbox: inbox, cancel: cancel, done: done}, nil
}
