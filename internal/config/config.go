// Package config provides centralized configuration management for the
// server and client binaries. This is the single source of truth for
// simulation, session, and transport settings; only this file should be
// edited when a default changes.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig controls the TSS container's shape and tick rate.
type SimConfig struct {
	TickRate int            // simulation ticks per second
	Delays   []uint32       // TSS frame-lags; Delays[0] must be 0
	RNGSeed  int64          // 0 means derive one from the wall clock at startup
	Limits   ResourceLimits // DoS caps enforced by the command log and session layer
}

// ResourceLimits caps what any one peer (or all peers together) can
// make the server retain or process: command-log growth, command
// payload size, and per-peer inbound datagram rate.
type ResourceLimits struct {
	MaxCommandsPerFrame    int // per-frame command log cap; 0 disables
	MaxCommandPayloadBytes int // command payload cap at server intake; 0 disables
	DatagramsPerSecond     int // per-peer inbound rate budget
	DatagramBurst          int // per-peer burst allowance on that budget
}

// DefaultLimits returns the default resource caps. A frame holding 256
// distinct commands or a 4 KiB command payload is far beyond anything
// legitimate input capture produces.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxCommandsPerFrame:    256,
		MaxCommandPayloadBytes: 4096,
		DatagramsPerSecond:     240,
		DatagramBurst:          32,
	}
}

// DefaultSim returns the default simulation configuration: a leading
// snapshot, one shallow 4-frame rollback buffer for ordinary network
// jitter, and a deep 150-frame (5s at 30 TPS) trailing snapshot used
// only for hash-check drift detection.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate: 30,
		Delays:   []uint32{0, 4, 150},
		Limits:   DefaultLimits(),
	}
}

// SimFromEnv returns simulation configuration with environment variable
// overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()
	if tr := getEnvInt("SIM_TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if seed := getEnvInt64("SIM_RNG_SEED", 0); seed != 0 {
		cfg.RNGSeed = seed
	}
	if v := getEnvInt("MAX_COMMANDS_PER_FRAME", 0); v > 0 {
		cfg.Limits.MaxCommandsPerFrame = v
	}
	if v := getEnvInt("MAX_COMMAND_PAYLOAD_BYTES", 0); v > 0 {
		cfg.Limits.MaxCommandPayloadBytes = v
	}
	if v := getEnvInt("DATAGRAMS_PER_SECOND", 0); v > 0 {
		cfg.Limits.DatagramsPerSecond = v
	}
	if v := getEnvInt("DATAGRAM_BURST", 0); v > 0 {
		cfg.Limits.DatagramBurst = v
	}
	return cfg
}

// =============================================================================
// SESSION CONFIGURATION
// =============================================================================

// SessionConfig controls roster capacity and timeouts. Per-peer rate
// limiting lives in SimConfig.Limits alongside the other resource caps.
type SessionConfig struct {
	MaxPlayers        int
	PeerDeadline      time.Duration
	JoinTimeout       time.Duration
	HashCheckInterval time.Duration
}

// DefaultSession returns the default session configuration.
func DefaultSession() SessionConfig {
	return SessionConfig{
		MaxPlayers:        64,
		PeerDeadline:      10 * time.Second,
		JoinTimeout:       3 * time.Second,
		HashCheckInterval: 5 * time.Second,
	}
}

// SessionFromEnv returns session configuration with environment variable
// overrides.
func SessionFromEnv() SessionConfig {
	cfg := DefaultSession()
	if mp := getEnvInt("MAX_PLAYERS", 0); mp > 0 {
		cfg.MaxPlayers = mp
	}
	if d := getEnvInt("PEER_DEADLINE_SECONDS", 0); d > 0 {
		cfg.PeerDeadline = time.Duration(d) * time.Second
	}
	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds the server binary's network and admin-surface settings.
type ServerConfig struct {
	ListenAddr string // QUIC listen address, e.g. ":7777"
	AdminAddr  string // chi-routed health/metrics/debug HTTP address
	StorePath  string // bbolt database path; empty disables persistence
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		ListenAddr: ":7777",
		AdminAddr:  "127.0.0.1:7778",
		StorePath:  "spacelock-snapshots.db",
	}
}

// ServerFromEnv returns server configuration with environment variable
// overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	return cfg
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds the client binary's connection settings.
type ClientConfig struct {
	ServerAddr   string
	SyncInterval time.Duration
}

// DefaultClient returns the default client configuration.
func DefaultClient() ClientConfig {
	return ClientConfig{
		ServerAddr:   "127.0.0.1:7777",
		SyncInterval: 2 * time.Second,
	}
}

// ClientFromEnv returns client configuration with environment variable
// overrides.
func ClientFromEnv() ClientConfig {
	cfg := DefaultClient()
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.ServerAddr = v
	}
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete server-side application configuration.
type AppConfig struct {
	Sim     SimConfig
	Session SessionConfig
	Server  ServerConfig
}

// Load returns the complete server configuration with environment
// overrides applied.
func Load() AppConfig {
	return AppConfig{
		Sim:     SimFromEnv(),
		Session: SessionFromEnv(),
		Server:  ServerFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
