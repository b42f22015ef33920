package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myooken/p2pShareDisplay/internal/config"
	"github.com/myooken/p2pShareDisplay/internal/roomid"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		flagRelay = false
		flagTURN = ""
		flagPeerHost = ""
		flagPeerInsecure = false
	})
	return rootCmd.ExecuteContext(context.Background())
}

func TestHostRoom(t *testing.T) {
	id, err := hostRoom(nil)
	require.NoError(t, err)
	assert.Len(t, id, roomid.Length)

	id, err = hostRoom([]string{"https://share.example.com/#/room/abc123"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}

func TestValidColor(t *testing.T) {
	assert.True(t, validColor("#22c55e"))
	assert.False(t, validColor("#000000"))
}

func TestConfigCommand(t *testing.T) {
	require.NoError(t, execute(t, "config", "--peer-host", "localhost", "--insecure"))
}

func TestRelayNeedsTURN(t *testing.T) {
	err := execute(t, "config", "--relay")
	assert.ErrorContains(t, err, "TURN")
}

func TestJoinRejectsUnknownMode(t *testing.T) {
	err := execute(t, "join", "abc123", "--cursor-mode", "hover")
	assert.ErrorContains(t, err, "unknown cursor mode")
	flagJoinMode = "always"
}

func TestRelayNotice(t *testing.T) {
	direct := &config.Config{}
	turn := &config.Config{TURNServer: "turn.example.com"}
	forced := &config.Config{TURNServer: "turn.example.com", ForceRelay: true}

	assert.Empty(t, relayNotice(turn, ""))
	assert.Empty(t, relayNotice(forced, "VPN interface wg0"))
	assert.Equal(t, "Routing media through TURN (VPN interface wg0)", relayNotice(turn, "VPN interface wg0"))
	assert.Contains(t, relayNotice(direct, "VPN interface wg0"), "no TURN server is configured")
}
