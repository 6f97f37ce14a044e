// Package config loads and validates the receive-side core's
// configuration. The teacher has no config-file loader (just Go-literal
// BaseConfiguration/DefaultConfiguration); this is a supplement
// (SPEC_FULL.md F.1) grounded in the layered config-from-YAML pattern
// visible across the pack's node/cmd packages.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jabolina/go-drbd/pkg/drbd/types"
	"gopkg.in/yaml.v3"
)

// PeerConfig describes one remote replication peer.
type PeerConfig struct {
	NodeID  uint32 `yaml:"node_id"`
	Address string `yaml:"address"`
}

// Config is the full receive-side core configuration for one resource.
type Config struct {
	ResourceName string `yaml:"resource_name"`
	NodeID       uint32 `yaml:"node_id"`
	ListenAddress string `yaml:"listen_address"`
	Peers        []PeerConfig `yaml:"peers"`

	ProtocolVersionMin int `yaml:"protocol_version_min"`
	ProtocolVersionMax int `yaml:"protocol_version_max"`

	WriteOrdering string `yaml:"write_ordering"` // "none"|"drain"|"flush"|"barrier"
	TwoPrimaries  bool   `yaml:"two_primaries"`
	MaxBuffers    int    `yaml:"max_buffers"`

	PingTimeout     time.Duration `yaml:"ping_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	TwoPCTimeout    time.Duration `yaml:"twopc_timeout"`
	ResyncRate      int           `yaml:"resync_rate_bytes_per_sec"`

	AfterSB0P string `yaml:"after_sb_0p"`
	AfterSB1P string `yaml:"after_sb_1p"`
	AfterSB2P string `yaml:"after_sb_2p"`

	SplitBrainHelper string `yaml:"split_brain_helper"`
	FencingHelper    string `yaml:"fencing_helper"`

	IntegrityAlgorithm string `yaml:"integrity_algorithm"` // "" disables digest verification
	AuthAlgorithm       string `yaml:"auth_algorithm"`      // "" disables HMAC auth
	SharedSecret        string `yaml:"shared_secret"`

	MetricsAddress string `yaml:"metrics_address"`
	LogLevel       string `yaml:"log_level"`
}

// Default returns a Config with every field set to the same defaults
// the teacher's DefaultConfiguration literal would use, generalized to
// this domain.
func Default(resourceName string) *Config {
	return &Config{
		ResourceName:       resourceName,
		ProtocolVersionMin: 86,
		ProtocolVersionMax: 112,
		WriteOrdering:      "flush",
		MaxBuffers:         128,
		PingTimeout:        6 * time.Second,
		PingInterval:       10 * time.Second,
		TwoPCTimeout:       20 * time.Second,
		ResyncRate:         10 << 20, // 10MiB/s
		AfterSB0P:          "disconnect",
		AfterSB1P:          "disconnect",
		AfterSB2P:          "disconnect",
		IntegrityAlgorithm: "",
		AuthAlgorithm:      "",
		MetricsAddress:     ":9099",
		LogLevel:           "info",
	}
}

// Load reads and validates a Config from a YAML file at path, applying
// environment variable overrides for the two values operators most
// often need to override per-host: listen address and shared secret.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default("")
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if v := os.Getenv("DRBD_LISTEN_ADDRESS"); v != "" {
		cfg.ListenAddress = v
	}
	if v := os.Getenv("DRBD_SHARED_SECRET"); v != "" {
		cfg.SharedSecret = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency: a valid write-ordering name, a
// sane protocol-version range, and that authentication is either fully
// configured or fully absent.
func (c *Config) Validate() error {
	if c.ResourceName == "" {
		return fmt.Errorf("resource_name must not be empty")
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address must not be empty")
	}
	if _, err := c.WriteOrderingMode(); err != nil {
		return err
	}
	if c.ProtocolVersionMin > c.ProtocolVersionMax {
		return fmt.Errorf("protocol_version_min (%d) > protocol_version_max (%d)", c.ProtocolVersionMin, c.ProtocolVersionMax)
	}
	if c.MaxBuffers <= 0 {
		return fmt.Errorf("max_buffers must be positive")
	}
	if (c.AuthAlgorithm == "") != (c.SharedSecret == "") {
		return fmt.Errorf("auth_algorithm and shared_secret must be set together")
	}
	for _, p := range c.Peers {
		if p.Address == "" {
			return fmt.Errorf("peer %d: address must not be empty", p.NodeID)
		}
	}
	return nil
}

// WriteOrderingMode parses WriteOrdering into a types.WriteOrdering.
func (c *Config) WriteOrderingMode() (types.WriteOrdering, error) {
	switch c.WriteOrdering {
	case "none":
		return types.OrderNone, nil
	case "drain":
		return types.OrderDrainIO, nil
	case "flush":
		return types.OrderBdevFlush, nil
	case "barrier":
		return types.OrderBioBarrier, nil
	default:
		return 0, fmt.Errorf("unknown write_ordering %q", c.WriteOrdering)
	}
}

// SplitBrainPolicyFromString parses one of the after-sb-*p strings into a
// types.SplitBrainPolicy.
func SplitBrainPolicyFromString(s string) (types.SplitBrainPolicy, error) {
	switch s {
	case "disconnect":
		return types.SBDisconnect, nil
	case "discard-younger-primary":
		return types.SBDiscardYounger, nil
	case "discard-older-primary":
		return types.SBDiscardOlder, nil
	case "discard-zero-changes":
		return types.SBDiscardZeroChanges, nil
	case "discard-least-changes":
		return types.SBDiscardLeastChanges, nil
	case "discard-local":
		return types.SBDiscardLocal, nil
	case "discard-remote":
		return types.SBDiscardRemote, nil
	case "consensus":
		return types.SBConsensus, nil
	case "violently-as0p":
		return types.SBViolently, nil
	case "call-pri-lost-after-sb":
		return types.SBCallHelper, nil
	case "discard-secondary":
		return types.SBDiscardSecondary, nil
	default:
		return 0, fmt.Errorf("unknown split-brain policy %q", s)
	}
}
