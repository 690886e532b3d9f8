package session

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"voicelink/application/logging"
	"voicelink/domain/voice/command"
	"voicelink/domain/voice/packet"
	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/cryptography/packetcrypto"
	infralogging "voicelink/infrastructure/logging"
	"voicelink/infrastructure/network/handshake"
	"voicelink/infrastructure/network/reliability"
	"voicelink/infrastructure/settings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	readBufferSize = 2048
	inboundBacklog = 64

	// reason id of a voluntary leave
	leaveReasonID = 8
)

// connection is a single attempt to connect. All protocol state is owned
// by the loop goroutine; other goroutines reach it through requests.
type connection struct {
	session  *Session
	cfg      settings.Connection
	timeouts settings.Timeouts
	identity *identity.Identity
	clock    clock.Clock
	log      logging.Logger

	conn    net.Conn
	closing atomic.Bool

	requests   chan func()
	inbound    chan []byte
	readFailed chan error
	ready      chan error
	stopped    chan struct{}
	done       chan struct{}

	engine    *packetcrypto.Engine
	init      *handshake.Init
	bootstrap *handshake.Bootstrap
	counters  packet.Counters
	incoming  packet.IncomingGenerations
	resend    *reliability.ResendQueue
	initSlot  *reliability.Slot
	streams   map[packet.Type]*commandStream
	channels  channelDirectory

	lastReceived time.Time
	connectTimer *clock.Timer
	pingTicker   *clock.Ticker
	graceTimer   *clock.Timer
	signalled    bool
	finished     bool
}

func newConnection(s *Session, conn net.Conn, id *identity.Identity) *connection {
	attempt := uuid.New()
	policy := reliability.Policy{
		Interval: s.cfg.Timeouts.ResendIntervalMs.Duration(),
		Timeout:  s.cfg.Timeouts.ResendTimeoutMs.Duration(),
	}
	engine := packetcrypto.NewEngine(packetcrypto.RoleClient)
	c := &connection{
		session:    s,
		cfg:        s.cfg,
		timeouts:   s.cfg.Timeouts,
		identity:   id,
		clock:      s.clock,
		log:        infralogging.NewTaggedLogger(s.logger, attempt.String()),
		conn:       conn,
		requests:   make(chan func()),
		inbound:    make(chan []byte, inboundBacklog),
		readFailed: make(chan error, 1),
		ready:      make(chan error, 1),
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
		engine:     engine,
		init:       handshake.NewInit(id.PublicKeyString(), s.rand, s.clock.Now),
		bootstrap:  handshake.NewBootstrap(engine, id, s.rand),
		resend:     reliability.NewResendQueue(policy),
		initSlot:   reliability.NewSlot(policy),
		streams: map[packet.Type]*commandStream{
			packet.Command:    newCommandStream(),
			packet.CommandLow: newCommandStream(),
		},
		channels: newChannelDirectory(),
	}
	// command id 0 is clientinitiv, carried inside the last init packet
	c.counters.Set(packet.Command, 1, 0)
	return c
}

func (c *connection) run() {
	defer close(c.done)

	var g errgroup.Group
	g.Go(c.read)
	g.Go(c.loop)
	if err := g.Wait(); err != nil {
		c.log.Printf("connection ended: %v", err)
	}
}

func (c *connection) read() error {
	buffer := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buffer)
		if err != nil {
			if c.closing.Load() {
				return nil
			}
			err = fmt.Errorf("%w: could not read a datagram: %w", ErrSocket, err)
			c.readFailed <- err
			return err
		}
		c.session.traffic.AddRX(n)
		datagram := make([]byte, n)
		copy(datagram, buffer[:n])
		select {
		case c.inbound <- datagram:
		case <-c.stopped:
			return nil
		}
	}
}

func (c *connection) loop() error {
	defer close(c.stopped)

	tick := c.clock.Ticker(c.timeouts.ResendTickMs.Duration())
	defer tick.Stop()
	c.connectTimer = c.clock.Timer(c.timeouts.ConnectMs.Duration())
	defer c.stopTimers()

	if err := c.start(); err != nil {
		c.finish(err)
	}
	for !c.finished {
		var err error
		select {
		case datagram := <-c.inbound:
			err = c.handleDatagram(datagram)
		case fn := <-c.requests:
			fn()
		case <-tick.C:
			err = c.onTick()
		case <-c.connectTimer.C:
			err = ErrConnectTimeout
		case <-tickerC(c.pingTicker):
			err = c.sendPing()
		case <-timerC(c.graceTimer):
			c.finish(nil)
		case err = <-c.readFailed:
		}
		if err != nil {
			c.finish(err)
		}
	}
	return nil
}

func tickerC(t *clock.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func timerC(t *clock.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (c *connection) start() error {
	c.lastReceived = c.clock.Now()
	c.setState(handshake.StateInit)
	payload, err := c.init.Start()
	if err != nil {
		return err
	}
	return c.sendInit(payload)
}

// onTick retransmits what is due and enforces the resend and silence
// timeouts.
func (c *connection) onTick() error {
	now := c.clock.Now()
	if c.state() != handshake.StateDisconnecting && now.Sub(c.lastReceived) > c.timeouts.SilenceMs.Duration() {
		return fmt.Errorf("%w: nothing received for %s", ErrSilenceTimeout, now.Sub(c.lastReceived))
	}

	raw, err := c.initSlot.Poll(now)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResendTimeout, err)
	}
	if raw != nil {
		c.session.traffic.AddResent(1)
		if err := c.write(raw); err != nil {
			return err
		}
	}

	resends, err := c.resend.Poll(now)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResendTimeout, err)
	}
	c.session.traffic.AddResent(len(resends))
	for _, raw := range resends {
		if err := c.write(raw); err != nil {
			return err
		}
	}
	return nil
}

// finish closes the socket and reports the end of the connection. A nil
// reason means the connection ended on request.
func (c *connection) finish(reason error) {
	if c.finished {
		return
	}
	c.finished = true
	c.closing.Store(true)
	if err := c.conn.Close(); err != nil {
		c.log.Printf("failed to close socket: %v", err)
	}
	c.stopTimers()

	c.engine.Reset()
	c.bootstrap.Reset()
	c.resend.Clear()
	c.initSlot.Clear()
	for _, s := range c.streams {
		s.reset()
	}
	c.session.clientID.Store(0)
	c.setState(handshake.StateDisconnected)

	if reason != nil {
		c.log.Printf("connection failed: %v", reason)
		c.emit(Error{Err: reason})
		c.signal(reason)
	} else {
		c.log.Printf("disconnected")
		c.signal(ErrAborted)
	}
	c.emit(Disconnected{Reason: reason})
}

func (c *connection) stopTimers() {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
	}
	if c.pingTicker != nil {
		c.pingTicker.Stop()
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
}

// signal completes the pending Connect call once.
func (c *connection) signal(err error) {
	if c.signalled {
		return
	}
	c.signalled = true
	c.ready <- err
}

// shutdown ends the connection immediately, without the leave handshake.
func (c *connection) shutdown(reason error) {
	select {
	case c.requests <- func() { c.finish(reason) }:
	case <-c.stopped:
	}
}

func (c *connection) disconnect() {
	select {
	case c.requests <- c.leave:
	case <-c.stopped:
	}
}

// leave announces the disconnect and closes after the grace period,
// whether or not the server acknowledged it.
func (c *connection) leave() {
	switch c.state() {
	case handshake.StateConnected:
		cmd := command.ClientDisconnect{ReasonID: leaveReasonID}.Command()
		if err := c.sendCommand(cmd); err != nil {
			c.finish(err)
			return
		}
		c.setState(handshake.StateDisconnecting)
		if c.pingTicker != nil {
			c.pingTicker.Stop()
			c.pingTicker = nil
		}
		c.graceTimer = c.clock.Timer(c.timeouts.DisconnectGraceMs.Duration())
	case handshake.StateDisconnecting:
	default:
		c.finish(nil)
	}
}

// do runs fn on the loop goroutine and returns its result.
func (c *connection) do(fn func() error) error {
	result := make(chan error, 1)
	select {
	case c.requests <- func() { result <- fn() }:
	case <-c.stopped:
		return ErrNotConnected
	}
	return <-result
}

func (c *connection) state() handshake.State {
	return handshake.State(c.session.state.Load())
}

func (c *connection) setState(s handshake.State) {
	c.session.state.Store(uint32(s))
}

func (c *connection) clientID() uint16 {
	return uint16(c.session.clientID.Load())
}

func (c *connection) emit(e Event) {
	c.session.events.push(e)
}

func (c *connection) debugf(format string, v ...any) {
	c.emit(Debug{Message: fmt.Sprintf(format, v...)})
}
