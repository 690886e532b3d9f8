package shutdown

import (
	"context"
	"os"
	"sync"

	"voicelink/application/logging"
	"voicelink/presentation/signals"
)

type Handler struct {
	// appCtx ends the handler when the application stops on its own.
	appCtx       context.Context
	appCtxCancel context.CancelFunc
	// os/signal sends without blocking, so the channel is buffered.
	signalChan chan os.Signal
	once       sync.Once
	provider   signals.Provider
	notifier   signals.Notifier
	logger     logging.Logger
}

func NewHandler(
	appCtx context.Context,
	appCtxCancel context.CancelFunc,
	provider signals.Provider,
	notifier signals.Notifier,
	logger logging.Logger,
) signals.Handler {
	return &Handler{
		appCtx:       appCtx,
		appCtxCancel: appCtxCancel,
		signalChan:   make(chan os.Signal, 1),
		provider:     provider,
		notifier:     notifier,
		logger:       logger,
	}
}

// Handle subscribes once; later calls are no-ops.
func (h *Handler) Handle() {
	h.once.Do(h.listen)
}

func (h *Handler) listen() {
	h.notifier.Notify(h.signalChan, h.provider.ShutdownSignals()...)
	go func() {
		defer h.notifier.Stop(h.signalChan)
		select {
		case sig := <-h.signalChan:
			h.logger.Printf("%s received, leaving the server...", sig)
			h.appCtxCancel()
		case <-h.appCtx.Done():
		}
	}()
}
