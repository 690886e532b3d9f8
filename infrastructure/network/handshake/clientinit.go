package handshake

import (
	"crypto/sha1"
	"encoding/base64"

	"voicelink/domain/voice/command"
)

// The server only admits clients announcing a version it can verify
// against its signature.
const (
	ClientVersion     = "3.?.? [Build: 5680278000]"
	ClientPlatform    = "Windows"
	ClientVersionSign = "DX5NIYLvfJEUjuIbCidnoeozxIDRRkpq3I9vVMBmE9L2qnekOoBzSenkzsg2lC9CMv8K5hkEzhr2TYUYSwUXCg=="

	DefaultHardwareID = "923f136fb1e22ae6ce95e60255529c00,d13231b1bc33edfecfb9169cc7a63bcc"
)

// ClientOptions are the caller supplied parts of clientinit.
type ClientOptions struct {
	Nickname               string
	ServerPassword         string
	DefaultChannelPassword string
	HardwareID             string
}

// ClientInit builds the clientinit command that finishes the handshake.
func ClientInit(opts ClientOptions, keyOffset uint64) command.Command {
	hwid := opts.HardwareID
	if hwid == "" {
		hwid = DefaultHardwareID
	}
	return command.ClientInit{
		Nickname:               opts.Nickname,
		Version:                ClientVersion,
		Platform:               ClientPlatform,
		VersionSign:            ClientVersionSign,
		DefaultChannelPassword: HashPassword(opts.DefaultChannelPassword),
		ServerPassword:         HashPassword(opts.ServerPassword),
		KeyOffset:              keyOffset,
		HardwareID:             hwid,
	}.Command()
}

// HashPassword returns base64(SHA-1(password)), or "" for no password.
func HashPassword(password string) string {
	if password == "" {
		return ""
	}
	sum := sha1.Sum([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}
