package signals

import (
	"os"
	"syscall"
)

type Notifier interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// Handler cancels the application context when a shutdown signal arrives.
type Handler interface {
	Handle()
}

// Provider lists the signals that end the client.
type Provider interface {
	ShutdownSignals() []os.Signal
}

type DefaultProvider struct{}

func (DefaultProvider) ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
