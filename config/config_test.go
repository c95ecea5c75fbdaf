package config

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsys-io/netbricks/state"
)

const sampleToml = `
name = "reconstruction"
primary_core = 0
cores = [0, 1]
pool_size = 512
cache_size = 32

[[ports]]
name = "xdp:eth0"
rx_queues = [0, 1]
tx_queues = [0, 1]
rxd = 256
txd = 256

[[ports]]
name = "null"
rx_queues = [0]
tx_queues = [0]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netbricks.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadConfigFile(t *testing.T) {
	cfg, err := ReadConfigFile(writeConfig(t, sampleToml))
	require.NoError(t, err)

	assert.Equal(t, "reconstruction", cfg.Name)
	assert.Equal(t, []int{0, 1}, cfg.Cores)
	assert.Equal(t, 512, cfg.PoolSize)
	require.Len(t, cfg.Ports, 2)
	assert.Equal(t, "xdp:eth0", cfg.Ports[0].Name)
	assert.Equal(t, 256, cfg.Ports[0].Rxd)
	// defaults applied where the file is silent
	assert.Equal(t, DefaultNumRxd, cfg.Ports[1].Rxd)
	assert.NoError(t, cfg.Validate())
}

func TestReadConfigFileErrors(t *testing.T) {
	_, err := ReadConfigFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = ReadConfigFile(writeConfig(t, "cores = \"not a list\""))
	assert.Error(t, err)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cfg := NewRuntimeConfig()
	cfg.Ports = []PortConfig{{Name: "a", RxQueues: []int{0}}, {Name: "a", RxQueues: []int{1}}}
	assert.Error(t, cfg.Validate())

	cfg = NewRuntimeConfig()
	cfg.Ports = []PortConfig{{Name: "a"}}
	assert.Error(t, cfg.Validate())

	cfg = NewRuntimeConfig()
	cfg.PoolSize = 0
	assert.Error(t, cfg.Validate())
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, sampleToml)
	flags := BasicFlags("test")
	cfg, err := flags.Parse([]string{
		"-f", path,
		"-n", "renamed",
		"-m", "3",
		"--pool_size", "1024",
		"--secondary",
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed", cfg.Name)
	assert.Equal(t, 3, cfg.PrimaryCore)
	assert.Equal(t, 1024, cfg.PoolSize)
	assert.True(t, cfg.Secondary)
	// file values survive where no flag was given
	assert.Equal(t, []int{0, 1}, cfg.Cores)
}

func TestFlagsDeclarePorts(t *testing.T) {
	flags := BasicFlags("test")
	cfg, err := flags.Parse([]string{"-p", "null", "-c", "0", "-c", "1"})
	require.NoError(t, err)

	require.Len(t, cfg.Ports, 1)
	assert.Equal(t, "null", cfg.Ports[0].Name)
	assert.Equal(t, []int{0, 1}, cfg.Ports[0].RxQueues)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
}

func TestFlagsRejectInvalid(t *testing.T) {
	flags := BasicFlags("test")
	_, err := flags.Parse([]string{"--pool_size", "-5", "-p", "null"})
	assert.Error(t, err)
}

func TestWatchSignalsSwapsAtom(t *testing.T) {
	type appConf struct{ Limit int }
	atom := state.NewAtom(appConf{Limit: 1})

	next := appConf{Limit: 2}
	stop := WatchSignals(atom, func() (appConf, error) { return next, nil })
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	deadline := time.After(2 * time.Second)
	for atom.Get().Limit != 2 {
		select {
		case <-deadline:
			t.Fatal("atom was not swapped on SIGUSR1")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
