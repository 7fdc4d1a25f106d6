// Package config loads framectl settings from TOML or YAML files.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/framing"
)

// Config describes a framed endpoint.
type Config struct {
	Addr          string
	LengthBytes   int
	ChecksumBytes int
	Digest        string
	MaxMessage    int
	SendQueue     int
	// Heartbeat is the idle interval. Zero disables idle timeouts since
	// framectl peers send no keepalives.
	Heartbeat     time.Duration
	Echo          bool
	Capture       string
	Subscribers   int
	RateInterval  time.Duration
}

// Default returns the settings used for keys a file leaves out.
func Default() Config {
	return Config{
		Addr:          "127.0.0.1:9000",
		LengthBytes:   2,
		ChecksumBytes: 4,
		Digest:        "sha256",
		SendQueue:     16,
		Echo:          true,
		Subscribers:   64,
		RateInterval:  time.Second,
	}
}

type fileConfig struct {
	Addr          string `toml:"addr" yaml:"addr"`
	LengthBytes   int    `toml:"length_bytes" yaml:"length_bytes"`
	ChecksumBytes int    `toml:"checksum_bytes" yaml:"checksum_bytes"`
	Digest        string `toml:"digest" yaml:"digest"`
	MaxMessage    int    `toml:"max_message" yaml:"max_message"`
	SendQueue     int    `toml:"send_queue" yaml:"send_queue"`
	Heartbeat     string `toml:"heartbeat" yaml:"heartbeat"`
	Echo          bool   `toml:"echo" yaml:"echo"`
	Capture       string `toml:"capture" yaml:"capture"`
	Subscribers   int    `toml:"subscribers" yaml:"subscribers"`
	RateInterval  string `toml:"rate_interval" yaml:"rate_interval"`
}

// Load reads path, picking the format from its extension (.toml, .yaml, .yml).
// Keys absent from the file keep their Default value.
func Load(path string) (Config, error) {
	var (
		raw     fileConfig
		defined func(key string) bool
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, errors.Wrapf(err, "load config %s", path)
		}
		defined = func(key string) bool { return meta.IsDefined(key) }
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "load config %s", path)
		}
		var keys map[string]any
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
		defined = func(key string) bool { _, ok := keys[key]; return ok }
	default:
		return Config{}, errors.Errorf("unsupported config format %q", ext)
	}

	cfg, err := merge(Default(), raw, defined)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, cfg.Validate()
}

func merge(cfg Config, raw fileConfig, defined func(string) bool) (Config, error) {
	if defined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if defined("length_bytes") {
		cfg.LengthBytes = raw.LengthBytes
	}
	if defined("checksum_bytes") {
		cfg.ChecksumBytes = raw.ChecksumBytes
	}
	if defined("digest") {
		cfg.Digest = strings.TrimSpace(raw.Digest)
	}
	if defined("max_message") {
		cfg.MaxMessage = raw.MaxMessage
	}
	if defined("send_queue") {
		cfg.SendQueue = raw.SendQueue
	}
	if defined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse heartbeat")
		}
		cfg.Heartbeat = d
	}
	if defined("echo") {
		cfg.Echo = raw.Echo
	}
	if defined("capture") {
		cfg.Capture = strings.TrimSpace(raw.Capture)
	}
	if defined("subscribers") {
		cfg.Subscribers = raw.Subscribers
	}
	if defined("rate_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RateInterval))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse rate_interval")
		}
		cfg.RateInterval = d
	}
	return cfg, nil
}

// Validate checks the frame parameters and the listen address.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config missing addr")
	}
	// Zero would silently select the codec defaults.
	if c.LengthBytes == 0 || c.ChecksumBytes == 0 {
		return errors.Wrapf(framing.ErrInvalidParams, "length_bytes %d, checksum_bytes %d", c.LengthBytes, c.ChecksumBytes)
	}
	if _, err := framing.DigestByName(c.Digest); err != nil {
		return err
	}
	_, err := framing.NewEncoder(framing.NewQueue(1), c.CodecOptions()...)
	return err
}

// CodecOptions returns the frame parameters as framing options.
// The digest must already be valid.
func (c Config) CodecOptions() []framing.Option {
	digest, _ := framing.DigestByName(c.Digest)
	return []framing.Option{
		framing.LengthBytesOption(c.LengthBytes),
		framing.ChecksumBytesOption(c.ChecksumBytes),
		framing.DigestOption(digest),
	}
}

// ConnOptions returns CodecOptions plus the connection settings.
func (c Config) ConnOptions() []framing.Option {
	opts := c.CodecOptions()
	if c.MaxMessage > 0 {
		opts = append(opts, framing.MessageMaxSize(c.MaxMessage))
	}
	return append(opts,
		framing.SendQueueOption(c.SendQueue),
		framing.HeartbeatOption(c.heartbeat()),
	)
}

func (c Config) heartbeat() time.Duration {
	if c.Heartbeat <= 0 {
		return framing.NoHeartbeat
	}
	return c.Heartbeat
}
