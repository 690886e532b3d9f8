// Package handshake implements the client side of the connection
// handshake: the init exchange with its puzzle, the key exchange that
// follows it and the clientinit command that finishes it.
package handshake

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"voicelink/domain/voice/command"
)

// Version is the protocol version stamp at the start of client init packets.
var Version = [4]byte{0x09, 0x83, 0x8c, 0xcf}

// Init steps as carried in the byte after the version (client) or as the
// first payload byte (server).
const (
	StepStart    byte = 0
	StepCookie   byte = 1
	StepEcho     byte = 2
	StepPuzzle   byte = 3
	StepSolution byte = 4
	StepRestart  byte = 0x7f
)

const (
	cookieLength  = 21
	puzzleLength  = 1 + 2*puzzleNumberLength + 4 + 100
	alphaLength   = 10
	startReserved = 8
)

// Reply is the client's answer to a server init packet.
type Reply struct {
	Step    byte
	Payload []byte
	// Restart is set when the server asked to begin the exchange again.
	Restart bool
}

// Init builds the client's init packets. It is owned by the connection's
// reactor and is not safe for concurrent use.
type Init struct {
	rand  io.Reader
	now   func() time.Time
	omega string
	alpha []byte
}

// NewInit returns an exchange for the identity whose public key string is
// omega. A nil rand uses crypto/rand.
func NewInit(omega string, rnd io.Reader, now func() time.Time) *Init {
	if rnd == nil {
		rnd = rand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &Init{rand: rnd, now: now, omega: omega}
}

// Alpha is the random value sent in clientinitiv, available after the
// puzzle step.
func (i *Init) Alpha() ([]byte, error) {
	if i.alpha == nil {
		return nil, ErrNoAlpha
	}
	return i.alpha, nil
}

// Start builds the Init0 payload: version, step 0, unix time, four random
// bytes and eight reserved bytes.
func (i *Init) Start() ([]byte, error) {
	i.alpha = nil
	b := make([]byte, 0, len(Version)+1+4+4+startReserved)
	b = append(b, Version[:]...)
	b = append(b, StepStart)
	b = binary.BigEndian.AppendUint32(b, uint32(i.now().Unix()))
	random := make([]byte, 4)
	if _, err := io.ReadFull(i.rand, random); err != nil {
		return nil, fmt.Errorf("failed to read init random: %w", err)
	}
	b = append(b, random...)
	return append(b, make([]byte, startReserved)...), nil
}

// Handle answers a server init payload.
func (i *Init) Handle(payload []byte) (Reply, error) {
	if len(payload) == 0 {
		return Reply{}, fmt.Errorf("%w: empty payload", ErrMalformedInit)
	}
	switch step := payload[0]; step {
	case StepCookie:
		if len(payload) < cookieLength {
			return Reply{}, fmt.Errorf("%w: step 1 has %d bytes", ErrMalformedInit, len(payload))
		}
		return Reply{Step: StepEcho, Payload: i.withVersion(StepEcho, payload[1:cookieLength])}, nil
	case StepPuzzle:
		return i.solve(payload)
	case StepRestart:
		start, err := i.Start()
		if err != nil {
			return Reply{}, err
		}
		return Reply{Step: StepStart, Payload: start, Restart: true}, nil
	default:
		return Reply{}, fmt.Errorf("%w: %d", ErrUnexpectedStep, step)
	}
}

func (i *Init) solve(payload []byte) (Reply, error) {
	if len(payload) < puzzleLength {
		return Reply{}, fmt.Errorf("%w: step 3 has %d bytes", ErrMalformedInit, len(payload))
	}
	x := payload[1 : 1+puzzleNumberLength]
	n := payload[1+puzzleNumberLength : 1+2*puzzleNumberLength]
	level := int32(binary.BigEndian.Uint32(payload[1+2*puzzleNumberLength:]))

	y, err := SolvePuzzle(x, n, level)
	if err != nil {
		return Reply{}, err
	}

	alpha := make([]byte, alphaLength)
	if _, err := io.ReadFull(i.rand, alpha); err != nil {
		return Reply{}, fmt.Errorf("failed to read alpha: %w", err)
	}
	initiv := command.ClientInitIV{
		Alpha: base64.StdEncoding.EncodeToString(alpha),
		Omega: i.omega,
	}.Command().String()

	out := i.withVersion(StepSolution, payload[1:puzzleLength])
	out = append(out, y...)
	out = append(out, initiv...)
	i.alpha = alpha
	return Reply{Step: StepSolution, Payload: out}, nil
}

func (i *Init) withVersion(step byte, body []byte) []byte {
	b := make([]byte, 0, len(Version)+1+len(body))
	b = append(b, Version[:]...)
	b = append(b, step)
	return append(b, body...)
}
