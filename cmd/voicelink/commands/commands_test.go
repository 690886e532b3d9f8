package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/settings"
	"voicelink/presentation/configuration"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitThenShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")

	out, err := run(t, "init", "--config", path, "--host", "voice.example.com", "--nickname", "listener", "--channel", "Music", "--level", "0", "--music")
	require.NoError(t, err)
	require.Contains(t, out, "voice.example.com:9987")

	conf, err := configuration.NewManager(path).Configuration()
	require.NoError(t, err)
	require.Equal(t, "Music", conf.DefaultChannel)
	require.Equal(t, settings.OpusMusic, conf.Codec)

	id, err := identity.Import(conf.Identity)
	require.NoError(t, err)

	out, err = run(t, "identity", "show", "-c", path)
	require.NoError(t, err)
	require.Contains(t, out, "UID: "+id.UID())
	require.NotContains(t, out, "Export:")
}

func TestInit_RequiresHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")
	_, err := run(t, "init", "--config", path, "--nickname", "listener")
	require.Error(t, err)
}

func TestIdentityImprove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")
	_, err := run(t, "init", "--config", path, "--host", "127.0.0.1", "--nickname", "listener", "--level", "0")
	require.NoError(t, err)

	_, err = run(t, "identity", "improve", "--config", path, "--level", "4")
	require.NoError(t, err)

	conf, err := configuration.NewManager(path).Configuration()
	require.NoError(t, err)
	id, err := identity.Import(conf.Identity)
	require.NoError(t, err)
	require.GreaterOrEqual(t, id.SecurityLevel(), 4)
	require.Equal(t, id.SecurityLevel(), conf.SecurityLevel)
}

func TestIdentityNew(t *testing.T) {
	out, err := run(t, "identity", "new", "--level", "0")
	require.NoError(t, err)
	require.Contains(t, out, "UID: ")

	export := ""
	for _, line := range strings.Split(out, "\n") {
		if s, ok := strings.CutPrefix(line, "Export: "); ok {
			export = s
		}
	}
	_, err = identity.Import(export)
	require.NoError(t, err)
}

func TestIdentityShow_MissingFile(t *testing.T) {
	_, err := run(t, "identity", "show", "--config", filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, configuration.ErrNotFound)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "voicelink "), out)
}
