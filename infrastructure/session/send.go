package session

import (
	"encoding/binary"
	"errors"
	"fmt"

	"voicelink/domain/voice/command"
	"voicelink/domain/voice/packet"
	"voicelink/infrastructure/network/handshake"
	"voicelink/infrastructure/network/reliability"
)

// voicePacketId(2) + codec(1)
const voiceHeaderLength = 3

func (c *connection) write(raw []byte) error {
	if _, err := c.conn.Write(raw); err != nil {
		return fmt.Errorf("%w: could not send a datagram: %w", ErrSocket, err)
	}
	c.session.traffic.AddTX(len(raw))
	return nil
}

// seal assigns the next id of t and encrypts the payload built for it.
func (c *connection) seal(t packet.Type, flags packet.Flags, build func(id uint16) []byte) ([]byte, uint16, error) {
	id, gen := c.counters.Next(t)
	h := packet.Header{ID: id, ClientID: c.clientID(), Type: t, Flags: flags}
	raw, err := c.engine.Seal(h, build(id), gen)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to seal %s packet: %w", t, err)
	}
	return raw, id, nil
}

// sendInit replaces the outstanding init packet.
func (c *connection) sendInit(payload []byte) error {
	h := packet.Header{ID: packet.InitPacketID, Type: packet.Init, Flags: packet.FlagUnencrypted}
	raw, err := c.engine.Seal(h, payload, 0)
	if err != nil {
		return err
	}
	c.initSlot.Replace(raw, c.clock.Now())
	return c.write(raw)
}

// sendCommand splits cmd into packet-sized chunks. Each chunk takes its
// own command id and is retransmitted until acknowledged.
func (c *connection) sendCommand(cmd command.Command) error {
	payload := []byte(cmd.String())
	if len(payload) > reliability.MaxReassembledSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrPayloadTooLarge, cmd.Name, len(payload))
	}
	chunks := reliability.Split(payload, packet.FlagNewProtocol, packet.MaxC2SContent)
	for i, chunk := range chunks {
		raw, id, err := c.seal(packet.Command, chunk.Flags, func(uint16) []byte { return chunk.Payload })
		if err != nil {
			return err
		}
		c.resend.Track(reliability.Key{Type: packet.Command, ID: id}, raw, c.clock.Now())
		if len(chunks) == 1 {
			c.debugf("-> %s #%d", cmd.Name, id)
		} else {
			c.debugf("-> %s #%d (fragment %d of %d)", cmd.Name, id, i+1, len(chunks))
		}
		if err := c.write(raw); err != nil {
			return err
		}
	}
	return nil
}

// sendUserCommand sends a caller's command. Rejected commands leave the
// connection up; socket failures end it.
func (c *connection) sendUserCommand(cmd command.Command) error {
	if c.state() != handshake.StateConnected {
		return ErrNotConnected
	}
	err := c.sendCommand(cmd)
	if err != nil && !errors.Is(err, ErrPayloadTooLarge) {
		c.finish(err)
	}
	return err
}

// sendVoice sends a frame, or the end of a talk burst for an empty frame.
func (c *connection) sendVoice(frame []byte) error {
	if c.state() != handshake.StateConnected {
		return ErrNotConnected
	}
	if n := len(frame) + voiceHeaderLength; n > packet.MaxC2SContent {
		return fmt.Errorf("%w: voice frame is %d bytes", ErrPayloadTooLarge, len(frame))
	}
	codec := c.cfg.Codec.Byte()
	raw, _, err := c.seal(packet.Voice, packet.FlagNone, func(id uint16) []byte {
		return packet.EncodeVoice(id, codec, frame)
	})
	if err == nil {
		err = c.write(raw)
	}
	if err != nil {
		c.finish(err)
	}
	return err
}

func (c *connection) sendAck(t packet.Type, id uint16) error {
	ackType, ok := t.AckType()
	if !ok {
		return nil
	}
	raw, _, err := c.seal(ackType, packet.FlagNone, func(uint16) []byte {
		return binary.BigEndian.AppendUint16(nil, id)
	})
	if err != nil {
		return err
	}
	return c.write(raw)
}

func (c *connection) sendPing() error {
	raw, _, err := c.seal(packet.Ping, packet.FlagUnencrypted, func(uint16) []byte { return nil })
	if err != nil {
		return err
	}
	return c.write(raw)
}

func (c *connection) sendPong(pingID uint16) error {
	raw, _, err := c.seal(packet.Pong, packet.FlagUnencrypted, func(uint16) []byte {
		return binary.BigEndian.AppendUint16(nil, pingID)
	})
	if err != nil {
		return err
	}
	return c.write(raw)
}
