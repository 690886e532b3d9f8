package session

import (
	"encoding/binary"
	"strings"

	"voicelink/domain/voice/command"
	"voicelink/domain/voice/packet"
	"voicelink/infrastructure/compression/quicklz"
	"voicelink/infrastructure/network/handshake"
	"voicelink/infrastructure/network/reliability"
)

// commandStream restores the order of one reliable packet type and
// reassembles its fragments.
type commandStream struct {
	window    *reliability.ReceiveWindow[inboundCommand]
	fragments reliability.FragmentBuffer
}

type inboundCommand struct {
	payload []byte
	flags   packet.Flags
}

func newCommandStream() *commandStream {
	return &commandStream{
		window: reliability.NewReceiveWindow[inboundCommand](0, reliability.DefaultWindowSize),
	}
}

func (s *commandStream) reset() {
	s.window.Reset(0)
	s.fragments.Reset()
}

// handleDatagram processes one datagram from the server. Packets that do
// not authenticate or parse are dropped; only the returned errors end the
// connection.
func (c *connection) handleDatagram(raw []byte) error {
	p, err := c.engine.Open(raw, &c.incoming)
	if err != nil {
		c.session.traffic.AddDropped()
		c.debugf("dropped datagram: %v", err)
		return nil
	}
	c.lastReceived = c.clock.Now()

	switch p.Header.Type {
	case packet.Init:
		return c.handleInit(p.Payload)
	case packet.Ping:
		return c.sendPong(p.Header.ID)
	case packet.Pong:
		return nil
	case packet.Ack, packet.AckLow:
		c.handleAck(p)
		return nil
	case packet.Command, packet.CommandLow:
		return c.handleCommandPacket(p)
	case packet.Voice, packet.VoiceWhisper:
		c.handleVoice(p)
		return nil
	default:
		c.debugf("dropped %s packet", p.Header.Type)
		return nil
	}
}

func (c *connection) handleInit(payload []byte) error {
	if c.engine.Complete() {
		c.debugf("ignoring init packet after key exchange")
		return nil
	}
	// a bad puzzle is dropped like any malformed init packet; the
	// retransmitted echo asks the server for another one
	reply, err := c.init.Handle(payload)
	if err != nil {
		c.debugf("ignoring init packet: %v", err)
		return nil
	}

	if reply.Restart {
		c.log.Printf("server restarted the init exchange")
		c.setState(handshake.StateInit)
	}
	if reply.Step == handshake.StepSolution {
		c.setState(handshake.StateHandshake)
	}
	c.debugf("-> init step %d", reply.Step)
	return c.sendInit(reply.Payload)
}

func (c *connection) handleAck(p packet.Packet) {
	if len(p.Payload) < 2 {
		c.debugf("dropped short %s packet", p.Header.Type)
		return
	}
	acked, _ := p.Header.Type.AckedType()
	key := reliability.Key{Type: acked, ID: binary.BigEndian.Uint16(p.Payload)}
	if !c.resend.Ack(key) {
		c.debugf("ack for %s which is not outstanding", key)
	}
}

// handleCommandPacket acks first, so duplicates caused by a lost ack are
// acked again, then delivers the stream in order.
func (c *connection) handleCommandPacket(p packet.Packet) error {
	if err := c.sendAck(p.Header.Type, p.Header.ID); err != nil {
		return err
	}
	// the first command from the server answers the last init packet
	c.initSlot.Clear()

	stream := c.streams[p.Header.Type]
	ready, verdict := stream.window.Push(p.Header.ID, inboundCommand{payload: p.Payload, flags: p.Header.Flags})
	switch verdict {
	case reliability.Duplicate, reliability.OutOfWindow:
		c.debugf("dropped %s #%d: %s", p.Header.Type, p.Header.ID, verdict)
		return nil
	}

	for _, in := range ready {
		fragment, complete, err := stream.fragments.Push(in.payload, in.flags)
		if err != nil {
			c.debugf("dropped reassembly: %v", err)
			continue
		}
		if !complete {
			continue
		}
		text := fragment.Payload
		if fragment.Flags.Has(packet.FlagCompressed) {
			if text, err = quicklz.Decompress(text); err != nil {
				c.debugf("dropped compressed command: %v", err)
				continue
			}
		}
		if err := c.handleCommandText(string(text)); err != nil {
			return err
		}
		if c.finished {
			return nil
		}
	}
	return nil
}

func (c *connection) handleCommandText(text string) error {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := command.Parse(line)
		if err != nil {
			c.debugf("dropped malformed command: %v", err)
			continue
		}
		if err := c.dispatch(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (c *connection) handleVoice(p packet.Packet) {
	frame, err := packet.DecodeVoice(p.Payload)
	if err != nil {
		c.debugf("dropped voice packet: %v", err)
		return
	}
	c.emit(Voice{Frame: frame, Whisper: p.Header.Type == packet.VoiceWhisper})
}
