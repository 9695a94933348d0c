package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tos-network/ledgervault/internal/ledgercrypto"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("P2P_PORT")
	os.Unsetenv("PEERS")
	os.Unsetenv("DIFFICULTY")
	os.Unsetenv("MINING_TIMEOUT_MS")
	os.Unsetenv("MAX_DATA_SIZE")
	os.Unsetenv("GENESIS_HASH")
	os.Setenv("DATABASE_URL", "postgres://localhost/ledgervault")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, DefaultP2PPort, cfg.P2PPort)
	require.Equal(t, DefaultDifficulty, cfg.Difficulty)
	require.Equal(t, ledgercrypto.GenesisSentinel, cfg.GenesisHash)
	require.Len(t, cfg.GenesisHash, 64)
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Setenv("PORT", "9000")
	os.Setenv("PEERS", "ws://a:6001, ws://b:6001 ,")
	os.Setenv("DIFFICULTY", "6")
	os.Setenv("DATABASE_URL", "postgres://localhost/ledgervault")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("PEERS")
		os.Unsetenv("DIFFICULTY")
		os.Unsetenv("DATABASE_URL")
	}()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, []string{"ws://a:6001", "ws://b:6001"}, cfg.Peers)
	require.Equal(t, 6, cfg.Difficulty)
}

func TestValidateRejectsBadDifficulty(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/ledgervault")
	os.Setenv("DIFFICULTY", "11")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("DIFFICULTY")
	}()

	_, err := Load("")
	require.Error(t, err)
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	_, err := Load("")
	require.Error(t, err)
}
