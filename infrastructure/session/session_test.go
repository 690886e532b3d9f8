package session

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voicelink/domain/voice/command"
	"voicelink/domain/voice/packet"
	"voicelink/infrastructure/cryptography/identity"
	infralogging "voicelink/infrastructure/logging"
	"voicelink/infrastructure/network/handshake"
	"voicelink/infrastructure/network/reliability"
	"voicelink/infrastructure/settings"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// recorder drains a session's events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func record(s *Session) *recorder {
	r := &recorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for e := range s.Events() {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// waitEvent returns the first recorded event of type E accepted by match.
func waitEvent[E Event](t *testing.T, r *recorder, match func(E) bool) E {
	t.Helper()
	var found E
	require.Eventually(t, func() bool {
		for _, e := range r.snapshot() {
			if typed, ok := e.(E); ok && (match == nil || match(typed)) {
				found = typed
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	return found
}

func count[E Event](r *recorder) int {
	n := 0
	for _, e := range r.snapshot() {
		if _, ok := e.(E); ok {
			n++
		}
	}
	return n
}

func newTestSession(t *testing.T, srv *fakeServer, clk clock.Clock, edit func(*settings.Connection)) (*Session, *recorder) {
	t.Helper()
	cfg := settings.Connection{
		Host:     "127.0.0.1",
		Port:     srv.port(),
		Nickname: "voicelink-test",
		Codec:    settings.OpusVoice,
	}
	if edit != nil {
		edit(&cfg)
	}
	id, err := identity.Generate(context.Background(), 0)
	require.NoError(t, err)

	opts := Options{Connection: cfg, Identity: id, Clock: clk, Logger: infralogging.DiscardLogger{}}
	if srv.cfg.seeds != nil {
		opts.Rand = srv.cfg.seeds
	}
	s, err := New(opts)
	require.NoError(t, err)
	r := record(s)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		<-r.done
	})
	return s, r
}

func connectCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnect_LegacyHandshake(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{clientID: 5})
	s, r := newTestSession(t, srv, clock.New(), nil)

	require.Equal(t, handshake.StateDisconnected, s.State())
	require.NoError(t, s.Connect(connectCtx(t)))

	require.Equal(t, handshake.StateConnected, s.State())
	require.Equal(t, uint16(5), s.ClientID())
	require.True(t, srv.PuzzleSolved())

	traffic := s.Traffic()
	require.NotZero(t, traffic.TXPackets)
	require.NotZero(t, traffic.RXBytes)

	connected := waitEvent[Connected](t, r, nil)
	require.Equal(t, uint16(5), connected.ClientID)
	require.Equal(t, "Fake Server", connected.ServerName)

	clientInit := srv.WaitCommand(t, command.NameClientInit)
	require.Equal(t, uint16(1), clientInit.ID)
	require.False(t, clientInit.Bootstrap)
	params := clientInit.Command.Params()
	require.Equal(t, "voicelink-test", params["client_nickname"])
	require.Equal(t, handshake.ClientVersion, params["client_version"])
	require.Equal(t, s.Identity().KeyOffset(), mustUint(t, params, "client_key_offset"))
}

func TestConnect_LicensedHandshake(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{clientID: 6, licensed: true, seeds: &seedRecorder{}})
	s, r := newTestSession(t, srv, clock.New(), nil)

	require.NoError(t, s.Connect(connectCtx(t)))
	require.Equal(t, handshake.StateConnected, s.State())
	require.Equal(t, uint16(6), s.ClientID())

	ek := srv.WaitCommand(t, command.NameClientEk)
	require.Equal(t, uint16(1), ek.ID)
	require.True(t, ek.Bootstrap)

	clientInit := srv.WaitCommand(t, command.NameClientInit)
	require.Equal(t, uint16(2), clientInit.ID)
	require.False(t, clientInit.Bootstrap)
	require.Equal(t, "voicelink-test", clientInit.Command.Params()["client_nickname"])

	waitEvent(t, r, func(e Command) bool { return e.Command.Name == command.NameInitIVExpand2 })
}

func TestConnect_DuplicateKeyExchangeIsIgnored(t *testing.T) {
	tests := []struct {
		name     string
		cfg      fakeServerConfig
		exchange string
	}{
		{"legacy", fakeServerConfig{duplicateExpand: true}, command.NameInitIVExpand},
		{"licensed", fakeServerConfig{duplicateExpand: true, licensed: true, seeds: &seedRecorder{}}, command.NameInitIVExpand2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startFakeServer(t, tt.cfg)
			s, r := newTestSession(t, srv, clock.New(), nil)
			require.NoError(t, s.Connect(connectCtx(t)))

			waitEvent(t, r, func(e Debug) bool {
				return strings.HasPrefix(e.Message, "ignoring "+tt.exchange)
			})
			require.Equal(t, handshake.StateConnected, s.State())
			require.Equal(t, 1, count[Connected](r))

			srv.WaitCommand(t, command.NameClientInit)
			select {
			case again := <-srv.commands:
				t.Fatalf("client sent %s twice", again.Command.Name)
			case <-time.After(100 * time.Millisecond):
			}
		})
	}
}

func TestConnect_ServerRestartsInit(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{restartInit: true})
	s, _ := newTestSession(t, srv, clock.New(), nil)

	require.NoError(t, s.Connect(connectCtx(t)))
	require.Equal(t, handshake.StateConnected, s.State())
	require.Equal(t, 2, srv.InitStarts())
	require.True(t, srv.PuzzleSolved())
}

func TestConnect_BadPuzzleIsDropped(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{badPuzzle: true})
	s, r := newTestSession(t, srv, clock.New(), func(c *settings.Connection) {
		c.Timeouts.ResendIntervalMs = 200
	})

	require.NoError(t, s.Connect(connectCtx(t)))
	require.Equal(t, handshake.StateConnected, s.State())
	require.True(t, srv.PuzzleSolved())

	waitEvent(t, r, func(e Debug) bool {
		return strings.Contains(e.Message, handshake.ErrPuzzleModulus.Error())
	})
	require.Zero(t, count[Error](r))
}

func mustUint(t *testing.T, p command.Params, key string) uint64 {
	t.Helper()
	v, err := p.Uint(key, 64)
	require.NoError(t, err)
	return v
}

func TestConnect_MovesToDefaultChannel(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{
		clientID: 5,
		channels: []command.Channel{{ID: 1, Name: "Lobby"}, {ID: 2, Name: "Music"}},
	})
	s, _ := newTestSession(t, srv, clock.New(), func(c *settings.Connection) {
		c.DefaultChannel = "Music"
		c.DefaultChannelPassword = "secret"
	})
	require.NoError(t, s.Connect(connectCtx(t)))

	move := srv.WaitCommand(t, command.NameClientMove).Command.Params()
	require.Equal(t, "2", move["cid"])
	require.Equal(t, "5", move["clid"])
	require.Equal(t, "secret", move["cpw"])

	id, ok := s.ChannelID("Lobby")
	require.True(t, ok)
	require.Equal(t, uint64(1), id)
	id, ok = s.ChannelID("2")
	require.True(t, ok)
	require.Equal(t, uint64(2), id)
	_, ok = s.ChannelID("Nowhere")
	require.False(t, ok)
}

func TestConnect_UnknownDefaultChannelIsReported(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{channels: []command.Channel{{ID: 1, Name: "Lobby"}}})
	s, r := newTestSession(t, srv, clock.New(), func(c *settings.Connection) {
		c.DefaultChannel = "Music"
	})
	require.NoError(t, s.Connect(connectCtx(t)))

	waitEvent(t, r, func(e Error) bool { return errors.Is(e.Err, ErrUnknownChannel) })
	require.Equal(t, handshake.StateConnected, s.State())
}

func TestConnect_RejectedClientInit(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{
		rejectWith: &command.ErrorLine{ID: 1796, Message: "invalid password"},
	})
	s, r := newTestSession(t, srv, clock.New(), nil)

	err := s.Connect(connectCtx(t))
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, 1796, serverErr.ID)
	require.Equal(t, "invalid password", serverErr.Message)
	require.Equal(t, handshake.StateDisconnected, s.State())

	waitEvent[Disconnected](t, r, nil)
}

func TestDisconnect_ClosesAfterGrace(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{})
	s, r := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	start := time.Now()
	require.NoError(t, s.Disconnect(connectCtx(t)))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 450*time.Millisecond)
	require.Less(t, elapsed, time.Second)
	require.Equal(t, handshake.StateDisconnected, s.State())
	require.Zero(t, s.ClientID())

	leave := srv.WaitCommand(t, command.NameClientDisconnect).Command.Params()
	require.Equal(t, "8", leave["reasonid"])

	disconnected := waitEvent[Disconnected](t, r, nil)
	require.NoError(t, disconnected.Reason)
	require.Equal(t, 1, count[Disconnected](r))

	require.NoError(t, s.Disconnect(connectCtx(t)))
	require.ErrorIs(t, s.SendVoice([]byte{1}), ErrNotConnected)
}

func TestDisconnect_ServerConfirmsLeave(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{clientID: 5, leaveNotify: true})
	s, r := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	start := time.Now()
	require.NoError(t, s.Disconnect(connectCtx(t)))
	require.Less(t, time.Since(start), 400*time.Millisecond)
	require.Equal(t, handshake.StateDisconnected, s.State())

	disconnected := waitEvent[Disconnected](t, r, nil)
	require.NoError(t, disconnected.Reason)
	require.Equal(t, 1, count[Disconnected](r))
	require.Zero(t, count[Error](r))
}

func TestReconnect_StartsFresh(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{clientID: 5})
	s, r := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	second := startFakeServer(t, fakeServerConfig{clientID: 9})
	s.cfg.Port = second.port()
	require.NoError(t, s.Connect(connectCtx(t)))
	require.Equal(t, uint16(9), s.ClientID())

	disconnected := waitEvent[Disconnected](t, r, nil)
	require.NoError(t, disconnected.Reason)
	require.Equal(t, 2, count[Connected](r))
}

func TestSilenceTimeout(t *testing.T) {
	mock := clock.NewMock()
	srv := startFakeServer(t, fakeServerConfig{})
	s, r := newTestSession(t, srv, mock, nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	srv.Silence()
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return s.State() == handshake.StateDisconnected
	}, 5*time.Second, 10*time.Millisecond)

	disconnected := waitEvent[Disconnected](t, r, nil)
	require.ErrorIs(t, disconnected.Reason, ErrSilenceTimeout)
	waitEvent(t, r, func(e Error) bool { return errors.Is(e.Err, ErrSilenceTimeout) })
}

func TestResend_RetransmitsThenTimesOut(t *testing.T) {
	mock := clock.NewMock()
	srv := startFakeServer(t, fakeServerConfig{})
	s, r := newTestSession(t, srv, mock, func(c *settings.Connection) {
		c.Timeouts.SilenceMs = 120000
	})
	require.NoError(t, s.Connect(connectCtx(t)))
	srv.WaitCommand(t, command.NameClientInit)

	srv.WithholdAcks()
	require.NoError(t, s.SendTextMessage(command.TargetServer, 0, "hello"))
	first := srv.WaitCommand(t, command.NameSendTextMessage)

	var again received
	require.Eventually(t, func() bool {
		mock.Add(200 * time.Millisecond)
		select {
		case again = <-srv.commands:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, first.Raw, again.Raw)
	require.GreaterOrEqual(t, s.Traffic().Resent, uint64(1))

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return s.State() == handshake.StateDisconnected
	}, 5*time.Second, 10*time.Millisecond)
	disconnected := waitEvent[Disconnected](t, r, nil)
	require.ErrorIs(t, disconnected.Reason, ErrResendTimeout)
}

func TestConnectTimeout(t *testing.T) {
	mock := clock.NewMock()
	srv := startFakeServer(t, fakeServerConfig{mute: true})
	s, _ := newTestSession(t, srv, mock, nil)

	result := make(chan error, 1)
	go func() { result <- s.Connect(context.Background()) }()

	var err error
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		select {
		case err = <-result:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrConnectTimeout)
	require.Equal(t, handshake.StateDisconnected, s.State())
}

func TestConnect_Cancelled(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{mute: true})
	s, r := newTestSession(t, srv, clock.New(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Connect(ctx), context.DeadlineExceeded)
	require.Equal(t, handshake.StateDisconnected, s.State())

	disconnected := waitEvent[Disconnected](t, r, nil)
	require.NoError(t, disconnected.Reason)
}

func TestKickedByServer(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{clientID: 5})
	s, r := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	srv.Command("notifyclientleftview clid=7 reasonid=8")
	srv.Command("notifyclientleftview clid=5 reasonid=5 reasonmsg=bye")

	disconnected := waitEvent[Disconnected](t, r, nil)
	require.ErrorIs(t, disconnected.Reason, ErrKicked)
	require.Equal(t, handshake.StateDisconnected, s.State())
}

func TestTextMessages(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{})
	s, r := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	srv.Command(`notifytextmessage targetmode=2 msg=hello\sthere invokerid=3 invokername=alice`)
	got := waitEvent[TextMessage](t, r, nil)
	require.Equal(t, "hello there", got.Message.Message)
	require.Equal(t, uint16(3), got.Message.InvokerID)
	require.Equal(t, command.TargetChannel, got.Message.TargetMode)

	require.NoError(t, s.SendTextMessage(command.TargetClient, 3, "hi alice"))
	sent := srv.WaitCommand(t, command.NameSendTextMessage).Command.Params()
	require.Equal(t, "1", sent["targetmode"])
	require.Equal(t, "3", sent["target"])
	require.Equal(t, "hi alice", sent["msg"])
}

func TestServerErrorLineIsNotFatal(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{})
	s, r := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	srv.Command(`error id=768 msg=invalid\schannel\sID`)
	e := waitEvent(t, r, func(e Error) bool {
		var serverErr *ServerError
		return errors.As(e.Err, &serverErr) && serverErr.ID == 768
	})
	require.Contains(t, e.Err.Error(), "invalid channel ID")
	require.Equal(t, handshake.StateConnected, s.State())
}

func TestVoice(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{})
	s, r := newTestSession(t, srv, clock.New(), func(c *settings.Connection) {
		c.Codec = settings.OpusMusic
	})
	require.NoError(t, s.Connect(connectCtx(t)))

	require.NoError(t, s.SendVoice([]byte{0xaa, 0xbb}))
	require.NoError(t, s.SendVoiceStop())

	frame := <-srv.voice
	require.Equal(t, packet.CodecOpusMusic, frame[2])
	require.Equal(t, []byte{0xaa, 0xbb}, frame[3:])
	stop := <-srv.voice
	require.Len(t, stop, 3)
	require.Equal(t, binary.BigEndian.Uint16(frame)+1, binary.BigEndian.Uint16(stop))

	require.ErrorIs(t, s.SendVoice(make([]byte, packet.MaxC2SContent)), ErrPayloadTooLarge)
	require.Equal(t, handshake.StateConnected, s.State())

	srv.SendRaw(packet.Voice, packet.FlagNone, []byte{0, 7, 0, 3, packet.CodecOpusVoice, 1, 2, 3})
	got := waitEvent[Voice](t, r, nil)
	require.Equal(t, uint16(7), got.Frame.VoiceID)
	require.Equal(t, uint16(3), got.Frame.ClientID)
	require.Equal(t, []byte{1, 2, 3}, got.Frame.Data)
	require.False(t, got.Whisper)
}

func TestPingIsAnswered(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{})
	s, _ := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	srv.SendRaw(packet.Ping, packet.FlagUnencrypted, nil)
	select {
	case id := <-srv.pongs:
		require.Equal(t, uint16(0), id)
	case <-time.After(5 * time.Second):
		t.Fatal("no pong")
	}
}

func TestSendCommand_Fragmented(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{})
	s, _ := newTestSession(t, srv, clock.New(), nil)
	require.ErrorIs(t, s.SendCommand(command.New("x").Build()), ErrNotConnected)
	require.NoError(t, s.Connect(connectCtx(t)))

	long := strings.Repeat("0123456789", 150)
	require.NoError(t, s.SendTextMessage(command.TargetServer, 0, long))
	sent := srv.WaitCommand(t, command.NameSendTextMessage)
	require.Equal(t, long, sent.Command.Params()["msg"])

	huge := strings.Repeat("a", reliability.MaxReassembledSize)
	require.ErrorIs(t, s.SendTextMessage(command.TargetServer, 0, huge), ErrPayloadTooLarge)
	require.Equal(t, handshake.StateConnected, s.State())
}

func TestCommand_Reassembled(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{})
	s, r := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	message := func(text string) []byte {
		return []byte(command.New(command.NameNotifyTextMessage).
			AddUint("targetmode", command.TargetServer).
			Add("msg", text).
			AddUint("invokerid", 3).
			Add("invokername", "alice").
			Build().String())
	}
	split := strings.TrimSpace(strings.Repeat("split ", 120))
	packed := strings.TrimSpace(strings.Repeat("packed ", 10))
	both := strings.TrimSpace(strings.Repeat("both ", 150))

	srv.CommandFragmented(message(split), packet.FlagNone, 3)
	srv.CommandFragmented(literalBlock(message(packed)), packet.FlagCompressed, 1)
	srv.CommandFragmented(literalBlock(message(both)), packet.FlagCompressed, 2)

	for _, want := range []string{split, packed, both} {
		got := waitEvent(t, r, func(e TextMessage) bool { return e.Message.Message == want })
		require.Equal(t, uint16(3), got.Message.InvokerID)
	}
	require.Equal(t, 3, count[TextMessage](r))
}

// literalBlock encodes data as a compressed block made only of literals.
func literalBlock(data []byte) []byte {
	var stream []byte
	for i, b := range data {
		if i%31 == 0 {
			stream = append(stream, 0, 0, 0, 0x80)
		}
		stream = append(stream, b)
	}
	out := []byte{0x47}
	out = binary.LittleEndian.AppendUint32(out, uint32(9+len(stream)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	return append(out, stream...)
}

func TestClose(t *testing.T) {
	srv := startFakeServer(t, fakeServerConfig{})
	s, r := newTestSession(t, srv, clock.New(), nil)
	require.NoError(t, s.Connect(connectCtx(t)))

	require.NoError(t, s.Close())
	<-r.done
	require.Equal(t, 1, count[Disconnected](r))
	require.ErrorIs(t, s.Connect(connectCtx(t)), ErrClosed)
	require.NoError(t, s.Close())
}

func TestNew_ValidatesSettings(t *testing.T) {
	_, err := New(Options{Connection: settings.Connection{Host: "", Nickname: "abc"}})
	require.ErrorIs(t, err, settings.ErrInvalidConnection)

	_, err = New(Options{Connection: settings.Connection{Host: "h", Nickname: "abc", Identity: "garbage"}})
	require.ErrorIs(t, err, identity.ErrInvalidExport)
}
