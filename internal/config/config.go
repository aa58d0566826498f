// Package config loads and validates the node's on-disk settings, in the
// manner of the teacher's internal/config: a JSON file decoded onto
// defaults, validated in one pass via model.SettingError so every problem
// surfaces at once rather than just the first.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nyxlink/p2pchat/internal/model"
)

type Config struct {
	Identity Identity `json:"identity"`
	Network  Network  `json:"network"`
	Presence Presence `json:"presence"`
	Profile  Profile  `json:"profile"`
}

type Identity struct {
	// KeyFile holds the node's Ed25519 private key; if the file does not
	// exist, a fresh key is generated and written there. Required unless
	// DeterministicSeed is set.
	KeyFile string `json:"key_file"`
	// DeterministicSeed, if non-nil, derives the identity key from a fixed
	// seed byte instead of KeyFile or randomness — test fixtures only.
	DeterministicSeed *byte `json:"deterministic_seed,omitempty"`
}

type Network struct {
	ListenAddrs []string `json:"listen_addrs"`
	Bootstrap   []string `json:"bootstrap"`
	MdnsTag     string   `json:"mdns_tag"`
}

type Presence struct {
	TTLSeconds       int `json:"ttl_seconds"`
	HeartbeatSeconds int `json:"heartbeat_seconds"`
}

type Profile struct {
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

func Default() Config {
	return Config{
		Identity: Identity{KeyFile: "data/identity.key"},
		Network: Network{
			ListenAddrs: []string{"/ip4/0.0.0.0/tcp/0"},
			MdnsTag:     "p2pchat-mdns",
		},
		Presence: Presence{TTLSeconds: 30, HeartbeatSeconds: 10},
		Profile:  Profile{Name: "anonymous"},
	}
}

func (c *Config) Validate() error {
	var problems model.SettingError

	if strings.TrimSpace(c.Identity.KeyFile) == "" && c.Identity.DeterministicSeed == nil {
		problems.Add("identity.key_file is required unless deterministic_seed is set")
	}
	if len(c.Network.ListenAddrs) == 0 {
		problems.Add("network.listen_addrs must have at least one entry")
	}
	if strings.TrimSpace(c.Network.MdnsTag) == "" {
		problems.Add("network.mdns_tag is required")
	}
	if c.Presence.TTLSeconds <= 0 {
		problems.Add("presence.ttl_seconds must be > 0")
	}
	if c.Presence.HeartbeatSeconds <= 0 {
		problems.Add("presence.heartbeat_seconds must be > 0")
	}
	if c.Presence.HeartbeatSeconds >= c.Presence.TTLSeconds {
		problems.Add("presence.heartbeat_seconds must be < presence.ttl_seconds")
	}
	if strings.TrimSpace(c.Profile.Name) == "" {
		problems.Add("profile.name is required")
	}

	return problems.OrNil()
}

// PresenceTTL returns the configured presence TTL as a duration.
func (c Config) PresenceTTL() time.Duration {
	return time.Duration(c.Presence.TTLSeconds) * time.Second
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// Ensure loads path if it exists, otherwise writes and returns the default
// configuration. Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, fmt.Errorf("config: stat %s: %w", path, err)
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("config: create default at %s: %w", path, err)
	}
	return cfg, true, nil
}
