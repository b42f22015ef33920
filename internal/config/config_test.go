package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(PeerOverrideEnv, "")
	t.Setenv("P2PSHARE_PEER_HOST", "")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultPeerHost, cfg.Peer.Host)
	assert.Equal(t, DefaultPeerPort, cfg.Peer.Port)
	assert.True(t, cfg.Peer.Secure)
	assert.Equal(t, DefaultSerialization, cfg.Peer.Serialization)
	assert.Equal(t, DefaultGracePeriod, cfg.GracePeriod)
	assert.Equal(t, DefaultAuthTimeout, cfg.AuthTimeout)
	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
	assert.Empty(t, cfg.GetRoomLink("abc123"))
}

func TestLoadPriority(t *testing.T) {
	t.Setenv(PeerOverrideEnv, "")
	t.Setenv("P2PSHARE_PEER_HOST", "env.example")
	t.Setenv("P2PSHARE_PEER_PORT", "9001")
	t.Setenv("P2PSHARE_PEER_SECURE", "false")

	cfg, err := Load(Options{PeerHost: "flag.example"})
	require.NoError(t, err)

	assert.Equal(t, "flag.example", cfg.Peer.Host)
	assert.Equal(t, 9001, cfg.Peer.Port)
	assert.False(t, cfg.Peer.Secure)

	secure := true
	cfg, err = Load(Options{PeerSecure: &secure, PeerPort: 7000})
	require.NoError(t, err)
	assert.True(t, cfg.Peer.Secure)
	assert.Equal(t, 7000, cfg.Peer.Port)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv(PeerOverrideEnv, "")
	t.Setenv("P2PSHARE_PEER_PORT", "many")

	_, err := Load(Options{})
	require.Error(t, err)
}

func TestAuthTimeoutCanBeDisabled(t *testing.T) {
	t.Setenv(PeerOverrideEnv, "")
	zero := time.Duration(0)

	cfg, err := Load(Options{AuthTimeout: &zero})
	require.NoError(t, err)
	assert.Zero(t, cfg.AuthTimeout)

	t.Setenv("P2PSHARE_AUTH_TIMEOUT", "5s")
	cfg, err = Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.AuthTimeout)
}

func TestPeerOverrideInline(t *testing.T) {
	t.Setenv(PeerOverrideEnv, `{"host":"localhost","port":9000,"path":"/peerjs","secure":false,"debug":2}`)

	cfg, err := Load(Options{PeerHost: "ignored.example"})
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Peer.Host)
	assert.Equal(t, 9000, cfg.Peer.Port)
	assert.False(t, cfg.Peer.Secure)
	assert.Equal(t, "http://localhost:9000/peerjs/", cfg.Peer.HTTPBase())
	assert.Equal(t, "ws://localhost:9000/peerjs/peerjs?id=room1&key=peerjs&token=tok", cfg.Peer.SocketURL("room1", "tok"))
}

func TestPeerOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"key":"custom"}`), 0o600))
	t.Setenv(PeerOverrideEnv, "@"+path)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Peer.Key)
}

func TestPeerOverrideHook(t *testing.T) {
	t.Setenv(PeerOverrideEnv, "")
	restore := SetPeerOverride(func(p *PeerOptions) { p.Serialization = "json" })
	defer restore()

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Peer.Serialization)
}

func TestTURNExpansion(t *testing.T) {
	cfg := &Config{TURNServer: "turn.example"}
	assert.Equal(t, []string{
		"turn:turn.example:3478?transport=udp",
		"turn:turn.example:3478?transport=tcp",
		"turns:turn.example:5349?transport=tcp",
	}, cfg.GetTURNServers())

	cfg.TURNServer = "turn:turn.example:443?transport=tcp"
	assert.Equal(t, []string{"turn:turn.example:443?transport=tcp"}, cfg.GetTURNServers())
}

func TestRoomLink(t *testing.T) {
	cfg := &Config{WebURL: "https://share.example"}
	assert.Equal(t, "https://share.example/#/room/abc123", cfg.GetRoomLink("abc123"))
}
