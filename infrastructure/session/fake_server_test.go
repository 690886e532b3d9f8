package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/big"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"voicelink/domain/voice/command"
	"voicelink/domain/voice/packet"
	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/cryptography/license"
	"voicelink/infrastructure/cryptography/packetcrypto"
	"voicelink/infrastructure/network/handshake"
	"voicelink/infrastructure/network/reliability"
)

const (
	fakePuzzleLevel = 8
	// version(4) + step(1) + echoed puzzle(232)
	solutionOffset = 4 + 1 + 232
	initivOffset   = solutionOffset + 64
)

type fakeServerConfig struct {
	clientID uint16
	channels []command.Channel
	// mute servers read and never answer.
	mute bool
	// rejectWith answers clientinit with this error line.
	rejectWith *command.ErrorLine
	// licensed answers the puzzle solution with initivexpand2. seeds must
	// be the client's random source.
	licensed bool
	seeds    *seedRecorder
	// duplicateExpand sends the key exchange command twice.
	duplicateExpand bool
	// restartInit answers the first cookie echo with an init restart.
	restartInit bool
	// badPuzzle answers the first cookie echo with a zero modulus.
	badPuzzle bool
	// leaveNotify answers clientdisconnect with the client's own
	// notifyclientleftview.
	leaveNotify bool
}

// received is one reliable command from the client, retransmissions of
// unfragmented commands included. ID and Raw belong to its first packet.
type received struct {
	ID      uint16
	Raw     []byte
	Command command.Command
	// Bootstrap is set when the packet was sealed with the bootstrap key.
	Bootstrap bool
}

// seedRecorder is crypto/rand that remembers the last 32-byte read, the
// seed of the client's ephemeral license key.
type seedRecorder struct {
	mu   sync.Mutex
	last []byte
}

func (r *seedRecorder) Read(p []byte) (int, error) {
	n, err := rand.Read(p)
	if len(p) == 32 {
		r.mu.Lock()
		r.last = append([]byte(nil), p[:n]...)
		r.mu.Unlock()
	}
	return n, err
}

func (r *seedRecorder) Last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// licensedExchange is the server half of a pending initivexpand2.
type licensedExchange struct {
	alpha   []byte
	beta    []byte
	license []byte
	omega   string
}

// fakeServer speaks the server side of the protocol on a loopback socket.
type fakeServer struct {
	t    *testing.T
	cfg  fakeServerConfig
	conn *net.UDPConn
	done chan struct{}

	commands chan received
	voice    chan []byte
	pongs    chan uint16

	mu           sync.Mutex
	identity     *identity.Identity
	engine       *packetcrypto.Engine
	counters     packet.Counters
	gens         packet.IncomingGenerations
	peer         *net.UDPAddr
	silent       bool
	withholdAcks bool
	puzzleSolved bool
	starts       int
	echoes       int
	pending      *licensedExchange
	seen         map[uint16]received
	fragments    reliability.FragmentBuffer
	partial      received
}

func startFakeServer(t *testing.T, cfg fakeServerConfig) *fakeServer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	id, err := identity.Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("server identity: %v", err)
	}
	if cfg.clientID == 0 {
		cfg.clientID = 5
	}
	f := &fakeServer{
		t:        t,
		cfg:      cfg,
		conn:     conn,
		done:     make(chan struct{}),
		commands: make(chan received, 256),
		voice:    make(chan []byte, 64),
		pongs:    make(chan uint16, 64),
		identity: id,
		engine:   packetcrypto.NewEngine(packetcrypto.RoleServer),
		seen:     make(map[uint16]received),
	}
	go f.serve()
	t.Cleanup(func() {
		_ = conn.Close()
		<-f.done
	})
	return f
}

func (f *fakeServer) port() uint16 {
	return uint16(f.conn.LocalAddr().(*net.UDPAddr).Port)
}

func (f *fakeServer) serve() {
	defer close(f.done)
	buffer := make([]byte, 2048)
	for {
		n, addr, err := f.conn.ReadFromUDP(buffer)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				f.t.Errorf("fake server read: %v", err)
			}
			return
		}
		raw := append([]byte(nil), buffer[:n]...)
		f.mu.Lock()
		f.peer = addr
		if !f.cfg.mute {
			f.handle(raw)
		}
		f.mu.Unlock()
	}
}

// handle runs with mu held.
func (f *fakeServer) handle(raw []byte) {
	p, err := f.engine.Open(raw, &f.gens)
	if err != nil {
		f.t.Errorf("fake server could not open client packet: %v", err)
		return
	}
	switch p.Header.Type {
	case packet.Init:
		f.handleInit(p.Payload)
	case packet.Command, packet.CommandLow:
		if !f.withholdAcks {
			ackType, _ := p.Header.Type.AckType()
			f.send(ackType, packet.FlagNone, binary.BigEndian.AppendUint16(nil, p.Header.ID))
		}
		f.handleCommandPacket(p, raw)
	case packet.Ping:
		f.send(packet.Pong, packet.FlagUnencrypted, binary.BigEndian.AppendUint16(nil, p.Header.ID))
	case packet.Pong:
		if len(p.Payload) == 2 {
			f.pongs <- binary.BigEndian.Uint16(p.Payload)
		}
	case packet.Voice:
		f.voice <- p.Payload
	}
}

// handleCommandPacket reassembles client commands. Loopback keeps packets
// in order, so only retransmissions need filtering.
func (f *fakeServer) handleCommandPacket(p packet.Packet, raw []byte) {
	if r, ok := f.seen[p.Header.ID]; ok {
		if r.Command.Name != "" {
			r.Raw = raw
			f.commands <- r
		}
		return
	}
	f.seen[p.Header.ID] = received{}

	if !f.fragments.Pending() {
		f.partial = received{ID: p.Header.ID, Raw: raw, Bootstrap: sealedWithBootstrapKey(raw)}
	}
	whole, complete, err := f.fragments.Push(p.Payload, p.Header.Flags)
	if err != nil {
		f.t.Errorf("fake server reassembly: %v", err)
		return
	}
	if !complete {
		return
	}
	cmd, err := command.Parse(string(whole.Payload))
	if err != nil {
		f.t.Errorf("fake server got malformed command %q: %v", whole.Payload, err)
		return
	}
	r := f.partial
	r.Command = cmd
	if r.ID == p.Header.ID {
		f.seen[p.Header.ID] = r
	}
	f.commands <- r
	f.handleCommand(cmd)
}

func sealedWithBootstrapKey(raw []byte) bool {
	var gens packet.IncomingGenerations
	_, err := packetcrypto.NewEngine(packetcrypto.RoleServer).Open(raw, &gens)
	return err == nil
}

func (f *fakeServer) handleInit(payload []byte) {
	if len(payload) < 5 {
		f.t.Errorf("short init payload")
		return
	}
	switch step := payload[4]; step {
	case handshake.StepStart:
		f.starts++
		reply := append([]byte{handshake.StepCookie}, bytes.Repeat([]byte{0xc0}, 20)...)
		f.sendInit(reply)
	case handshake.StepEcho:
		f.echoes++
		if f.cfg.restartInit && f.starts == 1 {
			f.sendInit([]byte{handshake.StepRestart})
			return
		}
		x, n := fakePuzzle()
		if f.cfg.badPuzzle && f.echoes == 1 {
			n = new(big.Int)
		}
		reply := []byte{handshake.StepPuzzle}
		reply = append(reply, x.FillBytes(make([]byte, 64))...)
		reply = append(reply, n.FillBytes(make([]byte, 64))...)
		reply = binary.BigEndian.AppendUint32(reply, fakePuzzleLevel)
		f.sendInit(append(reply, make([]byte, 100)...))
	case handshake.StepSolution:
		f.handleSolution(payload)
	default:
		f.t.Errorf("unexpected init step %d", step)
	}
}

func fakePuzzle() (x, n *big.Int) {
	n = new(big.Int).Lsh(big.NewInt(1), 511)
	n.Add(n, big.NewInt(187))
	return big.NewInt(3), n
}

func (f *fakeServer) handleSolution(payload []byte) {
	if len(payload) < initivOffset {
		f.t.Errorf("short puzzle solution")
		return
	}
	x, n := fakePuzzle()
	want := new(big.Int).Set(x)
	for range fakePuzzleLevel {
		want.Mul(want, want).Mod(want, n)
	}
	f.puzzleSolved = bytes.Equal(payload[solutionOffset:initivOffset], want.FillBytes(make([]byte, 64)))

	initiv, err := command.Parse(string(payload[initivOffset:]))
	if err != nil || initiv.Name != command.NameClientInitIV {
		f.t.Errorf("bad clientinitiv: %v", err)
		return
	}
	params := initiv.Params()
	alpha, err := base64.StdEncoding.DecodeString(params["alpha"])
	if err != nil {
		f.t.Errorf("bad alpha: %v", err)
		return
	}
	if f.cfg.licensed {
		f.expandLicensed(alpha, params["omega"])
		return
	}
	beta := make([]byte, 10)
	_, _ = rand.Read(beta)

	expand := command.InitIVExpand{
		Alpha: params["alpha"],
		Beta:  base64.StdEncoding.EncodeToString(beta),
		Omega: f.identity.PublicKeyString(),
	}.Command()
	f.sendText(expand.String())
	if f.cfg.duplicateExpand {
		f.sendText(expand.String())
	}

	secret, err := f.identity.SharedSecret(params["omega"])
	if err != nil {
		f.t.Errorf("server shared secret: %v", err)
		return
	}
	if err := f.engine.CompleteLegacy(alpha, beta, secret); err != nil {
		f.t.Errorf("server key exchange: %v", err)
	}
}

// expandLicensed offers a one-block license chain. The server keys switch
// once clientek arrives.
func (f *fakeServer) expandLicensed(alpha []byte, omega string) {
	key, err := license.GenerateEphemeral(rand.Reader)
	if err != nil {
		f.t.Errorf("license key: %v", err)
		return
	}
	chain := []byte{1, 0}
	chain = append(chain, key.Public[:]...)
	chain = append(chain, byte(license.BlockEphemeral))
	chain = binary.BigEndian.AppendUint32(chain, 1)
	chain = binary.BigEndian.AppendUint32(chain, 2)

	beta := make([]byte, 54)
	_, _ = rand.Read(beta)
	f.pending = &licensedExchange{alpha: alpha, beta: beta, license: chain, omega: omega}

	expand := command.InitIVExpand2{
		License: base64.StdEncoding.EncodeToString(chain),
		Beta:    base64.StdEncoding.EncodeToString(beta),
		Omega:   f.identity.PublicKeyString(),
	}.Command()
	f.sendText(expand.String())
	if f.cfg.duplicateExpand {
		f.sendText(expand.String())
	}
}

// completeLicensed checks clientek and derives the same secret as the
// client. Lacking the private half of the license key, it rebuilds the
// client's ephemeral key from the recorded seed.
func (f *fakeServer) completeLicensed(cmd command.Command) {
	x := f.pending
	if x == nil {
		f.t.Errorf("unexpected %s", cmd.Name)
		return
	}
	f.pending = nil
	ek, err := command.ParseClientEk(cmd)
	if err != nil {
		f.t.Errorf("bad clientek: %v", err)
		return
	}
	ephemeral, err := license.GenerateEphemeral(bytes.NewReader(f.cfg.seeds.Last()))
	if err != nil {
		f.t.Errorf("client seed: %v", err)
		return
	}
	if ek.Ek != base64.StdEncoding.EncodeToString(ephemeral.Public[:]) {
		f.t.Errorf("clientek does not carry the ephemeral key")
		return
	}
	proof, err := base64.StdEncoding.DecodeString(ek.Proof)
	if err != nil {
		f.t.Errorf("clientek proof: %v", err)
		return
	}
	signed := append(append([]byte(nil), ephemeral.Public[:]...), x.beta...)
	if ok, err := identity.Verify(x.omega, signed, proof); err != nil || !ok {
		f.t.Errorf("clientek proof does not verify: %v", err)
		return
	}

	chain, err := license.Parse(x.license)
	if err != nil {
		f.t.Errorf("license: %v", err)
		return
	}
	serverKey, err := chain.DeriveKey(license.RootKey)
	if err != nil {
		f.t.Errorf("license key: %v", err)
		return
	}
	secret, err := license.SharedSecret(serverKey, ephemeral.Private)
	if err != nil {
		f.t.Errorf("licensed secret: %v", err)
		return
	}
	if err := f.engine.CompleteLicensed(x.alpha, x.beta, secret); err != nil {
		f.t.Errorf("server key exchange: %v", err)
	}
}

func (f *fakeServer) handleCommand(cmd command.Command) {
	switch cmd.Name {
	case command.NameClientInit:
		if f.cfg.rejectWith != nil {
			line := command.New(command.NameError).
				Add("id", strconv.Itoa(f.cfg.rejectWith.ID)).
				Add("msg", f.cfg.rejectWith.Message).
				Build()
			f.sendText(line.String())
			return
		}
		f.sendText(command.New(command.NameInitServer).
			Add("virtualserver_name", "Fake Server").
			AddUint("aclid", uint64(f.cfg.clientID)).
			Build().String())
		if len(f.cfg.channels) > 0 {
			b := command.New(command.NameChannelList)
			for i, ch := range f.cfg.channels {
				if i > 0 {
					b.Next()
				}
				b.AddUint("cid", ch.ID).AddUint("cpid", ch.ParentID).Add("channel_name", ch.Name)
			}
			f.sendText(b.Build().String())
		}
		f.sendText(command.NameChannelListFinished)
	case command.NameClientEk:
		f.completeLicensed(cmd)
	case command.NameClientMove, command.NameSendTextMessage:
		f.sendText("error id=0 msg=ok")
	case command.NameClientDisconnect:
		if f.cfg.leaveNotify {
			f.sendText(command.New(command.NameNotifyClientLeftView).
				AddUint("clid", uint64(f.cfg.clientID)).
				AddUint("reasonid", 8).
				Build().String())
		}
	}
}

// send runs with mu held.
func (f *fakeServer) send(t packet.Type, flags packet.Flags, payload []byte) {
	id, gen := f.counters.Next(t)
	raw, err := f.engine.Seal(packet.Header{ID: id, Type: t, Flags: flags}, payload, gen)
	if err != nil {
		f.t.Errorf("fake server seal: %v", err)
		return
	}
	f.write(raw)
}

func (f *fakeServer) sendInit(payload []byte) {
	raw, err := f.engine.Seal(packet.Header{ID: packet.InitPacketID, Type: packet.Init, Flags: packet.FlagUnencrypted}, payload, 0)
	if err != nil {
		f.t.Errorf("fake server seal init: %v", err)
		return
	}
	f.write(raw)
}

func (f *fakeServer) sendText(text string) {
	f.send(packet.Command, packet.FlagNewProtocol, []byte(text))
}

func (f *fakeServer) write(raw []byte) {
	if f.peer == nil || f.silent {
		return
	}
	if _, err := f.conn.WriteToUDP(raw, f.peer); err != nil && !errors.Is(err, net.ErrClosed) {
		f.t.Errorf("fake server write: %v", err)
	}
}

// Command sends a command line to the connected client.
func (f *fakeServer) Command(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendText(text)
}

// CommandFragmented sends payload as parts fragments. Extra flags such as
// Compressed go on the first fragment only.
func (f *fakeServer) CommandFragmented(payload []byte, flags packet.Flags, parts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size := (len(payload) + parts - 1) / parts
	for i, chunk := range reliability.Split(payload, packet.FlagNewProtocol, size) {
		if i == 0 {
			chunk.Flags |= flags
		}
		f.send(packet.Command, chunk.Flags, chunk.Payload)
	}
}

// SendRaw sends an arbitrary packet to the connected client.
func (f *fakeServer) SendRaw(t packet.Type, flags packet.Flags, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.send(t, flags, payload)
}

func (f *fakeServer) Silence() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = true
}

func (f *fakeServer) WithholdAcks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withholdAcks = true
}

// InitStarts counts the Init0 packets the client sent.
func (f *fakeServer) InitStarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeServer) PuzzleSolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puzzleSolved
}

// WaitCommand returns the next client command with the given name.
func (f *fakeServer) WaitCommand(t *testing.T, name string) received {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r := <-f.commands:
			if r.Command.Name == name {
				return r
			}
		case <-timeout:
			t.Fatalf("client never sent %s", name)
			return received{}
		}
	}
}
