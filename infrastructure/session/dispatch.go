package session

import (
	"fmt"
	"strconv"

	"voicelink/domain/voice/command"
	"voicelink/infrastructure/network/handshake"
)

// channelDirectory is the channel list received after initserver.
type channelDirectory struct {
	byName map[string]uint64
	ids    map[uint64]struct{}
}

func newChannelDirectory() channelDirectory {
	return channelDirectory{byName: make(map[string]uint64), ids: make(map[uint64]struct{})}
}

func (d channelDirectory) add(ch command.Channel) {
	d.ids[ch.ID] = struct{}{}
	if _, taken := d.byName[ch.Name]; !taken {
		d.byName[ch.Name] = ch.ID
	}
}

// resolve accepts a known numeric channel id or an exact channel name.
func (d channelDirectory) resolve(name string) (uint64, bool) {
	if id, err := strconv.ParseUint(name, 10, 64); err == nil {
		if _, ok := d.ids[id]; ok {
			return id, true
		}
	}
	id, ok := d.byName[name]
	return id, ok
}

func (c *connection) resolveChannel(name string) (uint64, bool) {
	return c.channels.resolve(name)
}

// dispatch reacts to one server command. Every command is also published
// as an event.
func (c *connection) dispatch(cmd command.Command) error {
	c.debugf("<- %s", cmd.Name)
	c.emit(Command{Command: cmd})

	switch cmd.Name {
	case command.NameInitIVExpand:
		return c.onInitIVExpand(cmd)
	case command.NameInitIVExpand2:
		return c.onInitIVExpand2(cmd)
	case command.NameInitServer:
		return c.onInitServer(cmd)
	case command.NameChannelList:
		c.onChannelList(cmd)
	case command.NameChannelListFinished:
		return c.onChannelListFinished()
	case command.NameNotifyClientLeftView:
		return c.onClientLeftView(cmd)
	case command.NameNotifyTextMessage:
		c.onTextMessage(cmd)
	case command.NameError:
		return c.onErrorLine(cmd)
	}
	return nil
}

func (c *connection) keyExchangeDone(name string) bool {
	if c.bootstrap.Path() == handshake.PathNone {
		return false
	}
	c.debugf("ignoring %s, key exchange already done via %s", name, c.bootstrap.Path())
	return true
}

func (c *connection) onInitIVExpand(cmd command.Command) error {
	if c.keyExchangeDone(cmd.Name) {
		return nil
	}
	expand, err := command.ParseInitIVExpand(cmd)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", cmd.Name, err)
	}
	alpha, err := c.init.Alpha()
	if err != nil {
		return err
	}
	if err := c.bootstrap.Legacy(alpha, expand); err != nil {
		return fmt.Errorf("legacy key exchange failed: %w", err)
	}
	c.log.Printf("key exchange completed via %s", c.bootstrap.Path())
	return c.sendClientInit()
}

func (c *connection) onInitIVExpand2(cmd command.Command) error {
	if c.keyExchangeDone(cmd.Name) {
		return nil
	}
	expand, err := command.ParseInitIVExpand2(cmd)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", cmd.Name, err)
	}
	alpha, err := c.init.Alpha()
	if err != nil {
		return err
	}
	if err := c.bootstrap.Licensed(alpha, expand, c.sendCommand); err != nil {
		return fmt.Errorf("licensed key exchange failed: %w", err)
	}
	c.log.Printf("key exchange completed via %s", c.bootstrap.Path())
	return c.sendClientInit()
}

func (c *connection) sendClientInit() error {
	return c.sendCommand(handshake.ClientInit(handshake.ClientOptions{
		Nickname:               c.cfg.Nickname,
		ServerPassword:         c.cfg.ServerPassword,
		DefaultChannelPassword: c.cfg.DefaultChannelPassword,
		HardwareID:             c.cfg.HardwareID,
	}, c.identity.KeyOffset()))
}

func (c *connection) onInitServer(cmd command.Command) error {
	if c.state() != handshake.StateHandshake {
		c.debugf("ignoring %s in state %s", cmd.Name, c.state())
		return nil
	}
	server, err := command.ParseInitServer(cmd)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", cmd.Name, err)
	}

	c.session.clientID.Store(uint32(server.ClientID))
	c.setState(handshake.StateConnected)
	c.connectTimer.Stop()
	c.pingTicker = c.clock.Ticker(c.timeouts.PingIntervalMs.Duration())

	c.log.Printf("connected as client %d", server.ClientID)
	c.emit(Connected{ClientID: server.ClientID, ServerName: server.ServerName})
	c.signal(nil)
	return nil
}

func (c *connection) onChannelList(cmd command.Command) {
	channels, err := command.ParseChannelList(cmd)
	if err != nil {
		c.debugf("dropped channel list: %v", err)
		return
	}
	for _, ch := range channels {
		c.channels.add(ch)
	}
}

// onChannelListFinished moves to the configured default channel.
func (c *connection) onChannelListFinished() error {
	name := c.cfg.DefaultChannel
	if name == "" || c.state() != handshake.StateConnected {
		return nil
	}
	id, ok := c.channels.resolve(name)
	if !ok {
		c.emit(Error{Err: fmt.Errorf("%w: %q", ErrUnknownChannel, name)})
		return nil
	}
	return c.sendCommand(command.ClientMove{
		ChannelID: id,
		ClientID:  c.clientID(),
		Password:  c.cfg.DefaultChannelPassword,
	}.Command())
}

func (c *connection) onClientLeftView(cmd command.Command) error {
	left, err := command.ParseNotifyClientLeftView(cmd)
	if err != nil {
		c.debugf("dropped %s: %v", cmd.Name, err)
		return nil
	}
	own := c.clientID()
	for _, l := range left {
		if own == 0 || l.ClientID != own {
			continue
		}
		if c.state() == handshake.StateDisconnecting {
			c.finish(nil)
			return nil
		}
		return fmt.Errorf("%w: reason %d %s", ErrKicked, l.ReasonID, l.ReasonMsg)
	}
	return nil
}

func (c *connection) onTextMessage(cmd command.Command) {
	msg, err := command.ParseTextMessage(cmd)
	if err != nil {
		c.debugf("dropped %s: %v", cmd.Name, err)
		return
	}
	c.emit(TextMessage{Message: msg})
}

// onErrorLine surfaces failed server replies. During the handshake a
// failure means clientinit was refused, which ends the connect.
func (c *connection) onErrorLine(cmd command.Command) error {
	line, err := command.ParseErrorLine(cmd)
	if err != nil {
		c.debugf("dropped %s: %v", cmd.Name, err)
		return nil
	}
	if line.OK() {
		return nil
	}
	serverErr := &ServerError{ID: line.ID, Message: line.Message}
	if c.state() == handshake.StateHandshake {
		return serverErr
	}
	c.emit(Error{Err: serverErr})
	return nil
}
