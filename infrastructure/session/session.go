// Package session drives one client connection to a voice server: the
// init exchange, key agreement, reliable command delivery, voice and the
// connection's timers.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"voicelink/application/logging"
	"voicelink/domain/voice/command"
	"voicelink/infrastructure/cryptography/identity"
	infralogging "voicelink/infrastructure/logging"
	"voicelink/infrastructure/network/handshake"
	"voicelink/infrastructure/network/socket"
	"voicelink/infrastructure/settings"
	"voicelink/infrastructure/telemetry/trafficstats"

	"github.com/benbjohnson/clock"
)

// Session is a reconnectable client. Every Connect starts from a clean
// protocol state; the identity is kept across connections.
//
// Events must be drained until the channel is closed by Close.
type Session struct {
	cfg     settings.Connection
	dialer  Dialer
	clock   clock.Clock
	logger  logging.Logger
	rand    io.Reader
	events  *eventQueue
	traffic *trafficstats.Collector

	state    atomic.Uint32
	clientID atomic.Uint32

	connectMu sync.Mutex

	mu       sync.Mutex
	identity *identity.Identity
	active   *connection
	closed   bool
}

func New(opts Options) (*Session, error) {
	cfg := opts.Connection.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := opts.Identity
	if id == nil && cfg.Identity != "" {
		imported, err := identity.Import(cfg.Identity)
		if err != nil {
			return nil, fmt.Errorf("failed to import identity: %w", err)
		}
		id = imported
	}

	s := &Session{
		cfg:      cfg,
		dialer:   opts.Dialer,
		clock:    opts.Clock,
		logger:   opts.Logger,
		rand:     opts.Rand,
		identity: id,
		events:   newEventQueue(),
		traffic:  trafficstats.NewCollector(),
	}
	if s.dialer == nil {
		s.dialer = socket.UDPDialer{}
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = infralogging.NewLogLogger()
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	return s, nil
}

// Connect dials the server and blocks until the server has assigned a
// client id, the connect fails or ctx is done. A connection that is
// already up is closed first.
func (s *Session) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	previous := s.active
	s.active = nil
	s.mu.Unlock()
	if previous != nil {
		previous.shutdown(nil)
		<-previous.done
	}

	id, err := s.ensureIdentity(ctx)
	if err != nil {
		return err
	}

	endpoint, err := socket.NewEndpoint(s.cfg.Host, s.cfg.Port)
	if err != nil {
		return err
	}
	conn, err := s.dialer.Dial(ctx, endpoint)
	if err != nil {
		err = fmt.Errorf("%w: failed to dial %s: %w", ErrSocket, endpoint, err)
		s.events.push(Error{Err: err})
		return err
	}
	if err := socket.MarkExpedited(conn); err != nil {
		s.logger.Printf("failed to mark voice traffic as expedited: %v", err)
	}

	s.traffic.Reset()
	c := newConnection(s, conn, id)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	s.active = c
	s.mu.Unlock()

	c.log.Printf("connecting to %s as %s", endpoint, id.UID())
	go c.run()

	select {
	case err := <-c.ready:
		return err
	case <-ctx.Done():
		c.shutdown(nil)
		<-c.done
		return ctx.Err()
	}
}

func (s *Session) ensureIdentity(ctx context.Context) (*identity.Identity, error) {
	s.mu.Lock()
	id := s.identity
	s.mu.Unlock()
	if id != nil {
		return id, nil
	}

	s.logger.Printf("generating identity at security level %d", s.cfg.SecurityLevel)
	id, err := identity.Generate(ctx, s.cfg.SecurityLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	return id, nil
}

// Disconnect leaves the server and waits until the socket is closed. A
// pending Connect is aborted. It is a no-op when not connected.
func (s *Session) Disconnect(ctx context.Context) error {
	c := s.current()
	if c == nil {
		return nil
	}
	c.disconnect()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendVoice sends one encoded audio frame with the configured codec.
func (s *Session) SendVoice(frame []byte) error {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.do(func() error { return c.sendVoice(frame) })
}

// SendVoiceStop ends the current talk burst.
func (s *Session) SendVoiceStop() error {
	return s.SendVoice(nil)
}

func (s *Session) SendCommand(cmd command.Command) error {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.do(func() error { return c.sendUserCommand(cmd) })
}

// SendTextMessage sends msg to a client, the current channel or the
// server, as selected by mode (command.TargetClient and friends).
func (s *Session) SendTextMessage(mode int, target uint64, msg string) error {
	return s.SendCommand(command.SendTextMessage{TargetMode: mode, Target: target, Message: msg}.Command())
}

func (s *Session) State() handshake.State {
	return handshake.State(s.state.Load())
}

// ClientID is the id assigned by the server, zero unless connected.
func (s *Session) ClientID() uint16 {
	return uint16(s.clientID.Load())
}

// ChannelID resolves a channel name, or a numeric channel id, against the
// channel list received on this connection.
func (s *Session) ChannelID(name string) (uint64, bool) {
	c := s.current()
	if c == nil {
		return 0, false
	}
	var (
		id uint64
		ok bool
	)
	if err := c.do(func() error {
		id, ok = c.resolveChannel(name)
		return nil
	}); err != nil {
		return 0, false
	}
	return id, ok
}

// Identity is the identity used to connect, nil before the first Connect
// when none was configured.
func (s *Session) Identity() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Traffic counts the datagrams of the current, or the last, connection.
func (s *Session) Traffic() trafficstats.Snapshot {
	return s.traffic.Snapshot()
}

func (s *Session) Events() <-chan Event {
	return s.events.out
}

// Close drops the connection without the leave handshake and closes the
// events channel once the queued events are delivered.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.active
	s.mu.Unlock()

	if c != nil {
		c.shutdown(nil)
		<-c.done
	}
	s.events.close()
	return nil
}

func (s *Session) current() *connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
