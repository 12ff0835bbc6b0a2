// Package config loads the simulator configuration: built-in defaults,
// then an optional hjson file, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/hjson"
	"github.com/knadh/koanf/providers/cliflagv2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"

	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/logger"
	"github.com/cyberinferno/go-hfsco/scolink"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Config is the complete configuration.
type Config struct {
	Log     Log     `koanf:"log"`
	Session Session `koanf:"session"`
	Peer    Peer    `koanf:"peer"`
	Cache   Cache   `koanf:"cache"`
	Sim     Sim     `koanf:"sim"`
}

// Log configures logging.
type Log struct {
	Level string `koanf:"level"`
}

// Session configures the session registry.
type Session struct {
	Max       int `koanf:"max"`
	QueueSize int `koanf:"queue_size"`
}

// Peer describes the simulated Audio Gateway.
type Peer struct {
	Address string `koanf:"address"`
	// Version is the Hands-Free profile version as "major.minor".
	Version string `koanf:"version"`
	Codec   string `koanf:"codec"`
}

// Cache configures the peer capability cache.
type Cache struct {
	Backend   string        `koanf:"backend"`
	TTL       time.Duration `koanf:"ttl"`
	RedisAddr string        `koanf:"redis_addr"`
}

// Sim configures the simulated controller.
type Sim struct {
	Latency  time.Duration `koanf:"latency"`
	FailESCO bool          `koanf:"fail_esco"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     Log{Level: "info"},
		Session: Session{Max: 1, QueueSize: scolink.DefaultQueueSize},
		Peer:    Peer{Address: "00:1A:7D:DA:71:13", Version: "1.7", Codec: "msbc"},
		Cache:   Cache{Backend: BackendMemory, TTL: 24 * time.Hour, RedisAddr: "localhost:6379"},
		Sim:     Sim{Latency: 20 * time.Millisecond},
	}
}

// defaults feeds Default into koanf as the lowest layer.
type defaults struct{}

func (defaults) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: defaults provider does not support ReadBytes")
}

func (defaults) Read() (map[string]any, error) {
	d := Default()
	return map[string]any{
		"log": map[string]any{"level": d.Log.Level},
		"session": map[string]any{
			"max":        d.Session.Max,
			"queue_size": d.Session.QueueSize,
		},
		"peer": map[string]any{
			"address": d.Peer.Address,
			"version": d.Peer.Version,
			"codec":   d.Peer.Codec,
		},
		"cache": map[string]any{
			"backend":    d.Cache.Backend,
			"ttl":        d.Cache.TTL.String(),
			"redis_addr": d.Cache.RedisAddr,
		},
		"sim": map[string]any{
			"latency":   d.Sim.Latency.String(),
			"fail_esco": d.Sim.FailESCO,
		},
	}, nil
}

// Load builds the configuration.
//
// Parameters:
//   - path: hjson file to read; empty skips the file layer
//   - cliCtx: Parsed command line whose set flags override the file; may be nil
//
// Returns:
//   - The validated configuration
//   - An error if a layer cannot be loaded or a value is invalid
func Load(path string, cliCtx *cli.Context) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaults{}, nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), hjson.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if cliCtx != nil {
		// Flags are named after their keys, so they merge at the root.
		cliCtx.Command.Name = "global"
		if err := k.Load(cliflagv2.Provider(cliCtx, "."), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every value.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	if c.Session.Max < 1 {
		return fmt.Errorf("%w: session.max must be at least 1, got %d", ErrInvalid, c.Session.Max)
	}
	if c.Session.QueueSize < 1 {
		return fmt.Errorf("%w: session.queue_size must be at least 1, got %d", ErrInvalid, c.Session.QueueSize)
	}
	if _, err := bdaddr.Parse(c.Peer.Address); err != nil {
		return fmt.Errorf("%w: peer.address: %w", ErrInvalid, err)
	}
	if _, err := c.Peer.HFPVersion(); err != nil {
		return fmt.Errorf("%w: peer.version: %w", ErrInvalid, err)
	}
	if _, err := scolink.ParseCodec(c.Peer.Codec); err != nil {
		return fmt.Errorf("%w: peer.codec: %w", ErrInvalid, err)
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("%w: cache.redis_addr is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: cache.backend %q", ErrInvalid, c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalid)
	}
	if c.Sim.Latency < 0 {
		return fmt.Errorf("%w: sim.latency must not be negative", ErrInvalid)
	}

	return nil
}

// HFPVersion parses Version ("1.7") into the profile version encoding
// (0x0107).
func (p Peer) HFPVersion() (uint16, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(p.Version), ".")
	if !ok {
		return 0, fmt.Errorf("version %q is not major.minor", p.Version)
	}

	hi, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", p.Version, err)
	}
	lo, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", p.Version, err)
	}

	return uint16(hi)<<8 | uint16(lo), nil
}

// PeerAddress returns the parsed peer address.
func (c *Config) PeerAddress() bdaddr.Address {
	a, _ := bdaddr.Parse(c.Peer.Address)
	return a
}

// Codec returns the parsed codec.
func (c *Config) Codec() scolink.Codec {
	codec, _ := scolink.ParseCodec(c.Peer.Codec)
	return codec
}
