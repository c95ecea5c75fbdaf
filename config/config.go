// Package config reads the runtime configuration from a TOML file and
// command-line flags, flags taking precedence. A malformed configuration
// is fatal at startup and nowhere else.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Defaults matching the descriptor and pool sizing the framework was
// tuned with.
const (
	DefaultNumRxd      = 128
	DefaultNumTxd      = 128
	DefaultPoolSize    = 2047
	DefaultCacheSize   = 32
	DefaultPrimaryCore = 0
)

// PortConfig describes one network device. The name selects the backend:
// "null", "virtual", "loopback", or "xdp:<iface>".
type PortConfig struct {
	Name string `toml:"name"`
	// RxQueues and TxQueues assign a core to each queue index.
	RxQueues []int `toml:"rx_queues"`
	TxQueues []int `toml:"tx_queues"`
	// Descriptor ring sizes.
	Rxd int `toml:"rxd"`
	Txd int `toml:"txd"`
	// Hardware offload flags.
	Loopback bool `toml:"loopback"`
	Tso      bool `toml:"tso"`
	Csum     bool `toml:"csum"`
}

// RuntimeConfig is the full process configuration.
type RuntimeConfig struct {
	// Name is the logical process name, passed to the mbuf pool.
	Name string `toml:"name"`
	// PrimaryCore runs initialization and the control loop.
	PrimaryCore int `toml:"primary_core"`
	// Cores the schedulers run on.
	Cores []int `toml:"cores"`
	// Secondary attaches to an existing pool instead of creating one.
	Secondary bool         `toml:"secondary"`
	Ports     []PortConfig `toml:"ports"`
	// Pool sizing: too big hurts caching, too small bounds in-flight
	// packets.
	PoolSize  int `toml:"pool_size"`
	CacheSize int `toml:"cache_size"`
}

// NewRuntimeConfig returns a configuration with defaults applied.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		PrimaryCore: DefaultPrimaryCore,
		PoolSize:    DefaultPoolSize,
		CacheSize:   DefaultCacheSize,
	}
}

// ReadConfigFile loads a TOML configuration.
func ReadConfigFile(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	}
	cfg := NewRuntimeConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse configuration %s: %w", path, err)
	}
	cfg.applyPortDefaults()
	return cfg, nil
}

func (c *RuntimeConfig) applyPortDefaults() {
	for i := range c.Ports {
		if c.Ports[i].Rxd == 0 {
			c.Ports[i].Rxd = DefaultNumRxd
		}
		if c.Ports[i].Txd == 0 {
			c.Ports[i].Txd = DefaultNumTxd
		}
	}
}

// Validate rejects configurations the scheduler cannot run.
func (c *RuntimeConfig) Validate() error {
	seen := make(map[string]bool, len(c.Ports))
	for _, p := range c.Ports {
		if p.Name == "" {
			return fmt.Errorf("port with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("port %s appears twice in specification", p.Name)
		}
		seen[p.Name] = true
		if len(p.RxQueues) == 0 {
			return fmt.Errorf("port %s has no rx queues", p.Name)
		}
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive, got %d", c.PoolSize)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize)
	}
	return nil
}

func (c *RuntimeConfig) String() string {
	s := fmt.Sprintf("Configuration: primary core: %d\n Ports:\n", c.PrimaryCore)
	for _, p := range c.Ports {
		s += fmt.Sprintf("\tPort %s RXQ: %v TXQ: %v RXD: %d TXD: %d Loopback %t\n",
			p.Name, p.RxQueues, p.TxQueues, p.Rxd, p.Txd, p.Loopback)
	}
	return s
}
