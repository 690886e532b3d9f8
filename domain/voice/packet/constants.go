package packet

const (
	MACLength       = 8
	MaxPacketSize   = 500
	C2SHeaderLength = 5
	S2CHeaderLength = 3
	// MaxC2SContent is the payload budget of a single client packet.
	MaxC2SContent = MaxPacketSize - MACLength - C2SHeaderLength

	// InitPacketID is the fixed packet id carried by every Init packet.
	InitPacketID uint16 = 101
)

// InitMAC replaces the AEAD tag on Init packets in both directions.
var InitMAC = [MACLength]byte{'T', 'S', '3', 'I', 'N', 'I', 'T', '1'}

// Voice codecs understood by the server; the transport carries frames opaquely.
const (
	CodecOpusVoice byte = 4
	CodecOpusMusic byte = 5
)
