package settings

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrInvalidCodec = errors.New("invalid voice codec")
)

// VoiceCodec is the codec announced in outgoing voice packets.
type VoiceCodec int

const (
	OpusVoice VoiceCodec = iota
	OpusMusic
)

// Byte is the codec id carried on the wire.
func (c VoiceCodec) Byte() byte {
	if c == OpusMusic {
		return 5
	}
	return 4
}

func (c VoiceCodec) MarshalJSON() ([]byte, error) {
	switch c {
	case OpusVoice, OpusMusic:
		return json.Marshal(c.String())
	default:
		return nil, ErrInvalidCodec
	}
}

func (c *VoiceCodec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToUpper(s) {
	case "OPUS_VOICE", "":
		*c = OpusVoice
	case "OPUS_MUSIC":
		*c = OpusMusic
	default:
		return ErrInvalidCodec
	}
	return nil
}

func (c VoiceCodec) String() string {
	switch c {
	case OpusVoice:
		return "OPUS_VOICE"
	case OpusMusic:
		return "OPUS_MUSIC"
	default:
		return ErrInvalidCodec.Error()
	}
}
