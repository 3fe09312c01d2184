package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/logging"
	"github.com/vinayprograms/rpckit/rpcurl"
)

func writeConfig(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	require.NoError(t, os.Chmod(path, mode))
	return path
}

func TestStandardPaths(t *testing.T) {
	paths := StandardPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, FileName, paths[0])
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[registry]
address = "zk://zk1:2181?backup=zk2:2181"

[log]
level = "debug"

[serializer]
name = "yaml"
`, 0644)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zk://zk1:2181?backup=zk2:2181", cfg.Registry.Address)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel())

	u, err := cfg.RegistryURL()
	require.NoError(t, err)
	assert.Equal(t, "zk", u.Protocol())
	assert.Equal(t, []string{"zk1:2181", "zk2:2181"}, u.Addresses())
	assert.Equal(t, "yaml", u.Param(rpcurl.KeySerializer, ""))
}

func TestLoadFile_Defaults(t *testing.T) {
	path := writeConfig(t, "", 0644)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistry, cfg.Registry.Address)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel())

	u, err := cfg.RegistryURL()
	require.NoError(t, err)
	assert.Equal(t, "local", u.Protocol())
}

func TestLoadFile_Credentials(t *testing.T) {
	content := `
[registry]
address = "zk://127.0.0.1:2181"

[auth]
username = "svc"
password = "secret"
`
	cfg, err := LoadFile(writeConfig(t, content, 0600))
	require.NoError(t, err)

	u, err := cfg.RegistryURL()
	require.NoError(t, err)
	assert.Equal(t, "svc", u.Username())
	assert.Equal(t, "secret", u.Password())

	if runtime.GOOS == "windows" {
		t.Skip("permission check not enforced on windows")
	}
	_, err = LoadFile(writeConfig(t, content, 0644))
	require.Error(t, err)
	assert.True(t, rpcerrors.Is(err, rpcerrors.ErrCodeConfiguration))
}

func TestLoadFile_NoPasswordAnyMode(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "[auth]\nusername = \"svc\"\n", 0644))
	assert.NoError(t, err)
}

func TestRegistryURL_AddressWins(t *testing.T) {
	cfg := &Config{
		Registry:   RegistrySection{Address: "zk://alice:pw@127.0.0.1:2181?serializer=toml"},
		Auth:       AuthSection{Username: "svc", Password: "secret"},
		Serializer: SerializerSection{Name: "yaml"},
	}
	u, err := cfg.RegistryURL()
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username())
	assert.Equal(t, "toml", u.Param(rpcurl.KeySerializer, ""))
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[registry\naddress = "},
		{"bad address", "[registry]\naddress = \"no-protocol\"\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content, 0600))
			require.Error(t, err)
			assert.True(t, rpcerrors.Is(err, rpcerrors.ErrCodeConfiguration), "got %v", err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_CurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte("[registry]\naddress = \"nats://127.0.0.1:4222\"\n"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, path, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FileName, path)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Registry.Address)
}
