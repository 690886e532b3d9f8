package packet

import "encoding/binary"

const (
	voiceC2SHeaderLength = 3
	voiceS2CHeaderLength = 5
)

// EncodeVoice builds a client voice payload: voicePacketId(2) + codec(1) + frame.
// An empty frame marks the end of a talk burst.
func EncodeVoice(voiceID uint16, codec byte, frame []byte) []byte {
	b := make([]byte, voiceC2SHeaderLength+len(frame))
	binary.BigEndian.PutUint16(b[0:2], voiceID)
	b[2] = codec
	copy(b[voiceC2SHeaderLength:], frame)
	return b
}

// VoiceFrame is a voice payload relayed by the server.
type VoiceFrame struct {
	VoiceID  uint16
	ClientID uint16
	Codec    byte
	Data     []byte
}

// DecodeVoice parses a server voice payload: voicePacketId(2) + talker(2) + codec(1) + frame.
func DecodeVoice(b []byte) (VoiceFrame, error) {
	if len(b) < voiceS2CHeaderLength {
		return VoiceFrame{}, ErrTooShort
	}
	return VoiceFrame{
		VoiceID:  binary.BigEndian.Uint16(b[0:2]),
		ClientID: binary.BigEndian.Uint16(b[2:4]),
		Codec:    b[4],
		Data:     b[voiceS2CHeaderLength:],
	}, nil
}
