package config

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

// Flags defines the command-line surface shared by every binary built on
// the framework.
type Flags struct {
	set *flag.FlagSet

	ports         *[]string
	cores         *[]int
	master        *int
	name          *string
	configuration *string
	primary       *bool
	secondary     *bool
	poolSize      *int
	cacheSize     *int
}

// BasicFlags declares the standard flag set on a fresh FlagSet.
func BasicFlags(program string) *Flags {
	set := flag.NewFlagSet(program, flag.ContinueOnError)
	return &Flags{
		set:           set,
		ports:         set.StringArrayP("port", "p", nil, "Port to use (repeatable)"),
		cores:         set.IntSliceP("core", "c", nil, "Core to use (repeatable)"),
		master:        set.IntP("master", "m", DefaultPrimaryCore, "Master (primary) core"),
		name:          set.StringP("name", "n", "", "Process name"),
		configuration: set.StringP("configuration", "f", "", "TOML configuration file"),
		primary:       set.Bool("primary", false, "Run as a primary process"),
		secondary:     set.Bool("secondary", false, "Run as a secondary process attaching to an existing pool"),
		poolSize:      set.Int("pool_size", DefaultPoolSize, "Mbuf pool size"),
		cacheSize:     set.Int("cache_size", DefaultCacheSize, "Per-core mbuf cache size"),
	}
}

// FlagSet exposes the underlying set so binaries can add their own flags.
func (f *Flags) FlagSet() *flag.FlagSet { return f.set }

// Parse reads the arguments and folds file configuration and flag
// overrides into one RuntimeConfig.
func (f *Flags) Parse(args []string) (*RuntimeConfig, error) {
	if err := f.set.Parse(args); err != nil {
		return nil, err
	}

	cfg := NewRuntimeConfig()
	if *f.configuration != "" {
		fileCfg, err := ReadConfigFile(*f.configuration)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if *f.name != "" {
		cfg.Name = *f.name
	}
	if f.set.Changed("master") {
		cfg.PrimaryCore = *f.master
	}
	if f.set.Changed("pool_size") {
		cfg.PoolSize = *f.poolSize
	}
	if f.set.Changed("cache_size") {
		cfg.CacheSize = *f.cacheSize
	}
	if *f.secondary {
		cfg.Secondary = true
	}
	if *f.primary {
		cfg.Secondary = false
	}
	if len(*f.cores) > 0 {
		cfg.Cores = append(cfg.Cores, *f.cores...)
	}

	// flag-declared ports get one rx/tx queue per configured core
	for _, name := range *f.ports {
		cores := cfg.Cores
		if len(cores) == 0 {
			cores = []int{cfg.PrimaryCore}
		}
		cfg.Ports = append(cfg.Ports, PortConfig{
			Name:     name,
			RxQueues: cores,
			TxQueues: cores,
			Rxd:      DefaultNumRxd,
			Txd:      DefaultNumTxd,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}
