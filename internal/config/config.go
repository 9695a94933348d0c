// Package config holds the process-wide, init-from-env configuration for a
// ledgervault node. A Config is constructed once at startup and treated as
// immutable afterwards; components receive it by reference (or copy small
// derived values out of it), following the teacher's ChainConfig pattern of
// a single validated value threaded through the whole process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/naoina/toml"

	"github.com/tos-network/ledgervault/internal/ledgercrypto"
)

// Defaults mirror spec.md §6.
const (
	DefaultPort            = 4001
	DefaultP2PPort         = 6001
	DefaultDifficulty      = 4
	DefaultMiningTimeoutMs = 120000
	DefaultMaxDataSize     = 1 << 20 // 1 MiB
)

// Config is the full set of process-wide settings from spec.md §6.
type Config struct {
	Port            int      `toml:"port"`
	P2PPort         int      `toml:"p2p_port"`
	Peers           []string `toml:"peers"`
	DatabaseURL     string   `toml:"database_url"`
	Difficulty      int      `toml:"difficulty"`
	MiningTimeoutMs int      `toml:"mining_timeout_ms"`
	MaxDataSize     int      `toml:"max_data_size"`
	GenesisHash     string   `toml:"genesis_hash"`
}

// Load builds a Config from the environment, optionally overlaying a TOML
// file first so file-based defaults can be overridden by env vars in
// deployments that set both (env always wins).
func Load(tomlPath string) (*Config, error) {
	cfg := &Config{
		Port:            DefaultPort,
		P2PPort:         DefaultP2PPort,
		Difficulty:      DefaultDifficulty,
		MiningTimeoutMs: DefaultMiningTimeoutMs,
		MaxDataSize:     DefaultMaxDataSize,
		GenesisHash:     ledgercrypto.GenesisSentinel,
	}

	if tomlPath != "" {
		f, err := os.Open(tomlPath)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", tomlPath, err)
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", tomlPath, err)
		}
	}

	applyEnvInt(&cfg.Port, "PORT")
	applyEnvInt(&cfg.P2PPort, "P2P_PORT")
	if v, ok := os.LookupEnv("PEERS"); ok {
		cfg.Peers = splitPeers(v)
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	}
	applyEnvInt(&cfg.Difficulty, "DIFFICULTY")
	applyEnvInt(&cfg.MiningTimeoutMs, "MINING_TIMEOUT_MS")
	applyEnvInt(&cfg.MaxDataSize, "MAX_DATA_SIZE")
	if v, ok := os.LookupEnv("GENESIS_HASH"); ok {
		cfg.GenesisHash = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitPeers(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyEnvInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("config: invalid P2P_PORT %d", c.P2PPort)
	}
	if c.Difficulty < 1 || c.Difficulty > 8 {
		return fmt.Errorf("config: DIFFICULTY must be 1-8, got %d", c.Difficulty)
	}
	if c.MaxDataSize <= 0 {
		return fmt.Errorf("config: MAX_DATA_SIZE must be positive, got %d", c.MaxDataSize)
	}
	if len(c.GenesisHash) != 64 {
		return fmt.Errorf("config: GENESIS_HASH must be 64 hex characters, got %d", len(c.GenesisHash))
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}
