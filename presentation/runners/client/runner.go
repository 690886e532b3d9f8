package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voicelink/application/logging"
	"voicelink/domain/voice/command"
	"voicelink/infrastructure/network/handshake"
	"voicelink/infrastructure/session"
	"voicelink/infrastructure/telemetry/trafficstats"
)

const (
	reconnectDelay = 500 * time.Millisecond
	leaveTimeout   = 3 * time.Second
)

// Client is the part of session.Session the runner drives.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SendTextMessage(mode int, target uint64, msg string) error
	State() handshake.State
	Events() <-chan session.Event
	Traffic() trafficstats.Snapshot
	Close() error
}

type Options struct {
	// Greeting is sent to the server chat after every connect.
	Greeting string
	// Verbose prints protocol traces and voice frames.
	Verbose bool
}

type Runner struct {
	client  Client
	logger  logging.Logger
	options Options
	delay   time.Duration
}

func NewRunner(client Client, logger logging.Logger, options Options) *Runner {
	return &Runner{
		client:  client,
		logger:  logger,
		options: options,
		delay:   reconnectDelay,
	}
}

// Run keeps the client connected until ctx is done or the server
// connection ends on request. Lost connections are retried.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		if err := r.client.Close(); err != nil {
			r.logger.Printf("error closing session: %v", err)
		}
	}()

	for ctx.Err() == nil {
		err := r.runSession(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled):
			return context.Canceled
		case errors.Is(err, session.ErrClosed):
			return err
		default:
			r.logger.Printf("session error: %v, reconnecting…", err)
			timer := time.NewTimer(r.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return context.Canceled
			case <-timer.C:
			}
		}
	}
	return context.Canceled
}

func (r *Runner) runSession(ctx context.Context) error {
	if err := r.client.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("connect failed: %w", err)
	}

	defer func() {
		r.logger.Printf("traffic: %s", r.client.Traffic())
	}()

	if r.options.Greeting != "" {
		if err := r.client.SendTextMessage(command.TargetServer, 0, r.options.Greeting); err != nil {
			r.logger.Printf("failed to send greeting: %v", err)
		}
	}

	events := r.client.Events()
	for {
		select {
		case <-ctx.Done():
			r.leave()
			return context.Canceled
		case ev, ok := <-events:
			if !ok {
				return session.ErrClosed
			}
			r.print(ev)
			disconnected, isDisconnect := ev.(session.Disconnected)
			// events from an earlier connection may still be queued
			if !isDisconnect || r.client.State() != handshake.StateDisconnected {
				continue
			}
			return disconnected.Reason
		}
	}
}

func (r *Runner) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := r.client.Disconnect(ctx); err != nil {
		r.logger.Printf("leaving the server: %v", err)
		return
	}
	r.logger.Printf("left the server")
}

func (r *Runner) print(ev session.Event) {
	switch e := ev.(type) {
	case session.Connected:
		r.logger.Printf("connected to %q as client %d", e.ServerName, e.ClientID)
	case session.Disconnected:
		if e.Reason == nil {
			r.logger.Printf("disconnected")
			return
		}
		r.logger.Printf("disconnected: %v", e.Reason)
	case session.Error:
		r.logger.Printf("error: %v", e.Err)
	case session.TextMessage:
		r.logger.Printf("<%s> %s", e.Message.InvokerName, e.Message.Message)
	case session.Voice:
		if r.options.Verbose {
			r.logger.Printf("voice #%d from client %d, %d bytes", e.Frame.VoiceID, e.Frame.ClientID, len(e.Frame.Data))
		}
	case session.Debug:
		if r.options.Verbose {
			r.logger.Printf("%s", e.Message)
		}
	case session.Command:
		if r.options.Verbose {
			r.logger.Printf("command %s", e.Command.Name)
		}
	}
}
