//go:build linux

package scheduler

import (
	"os"
	"sync"

	"github.com/cilium/ebpf/rlimit"

	"github.com/netsys-io/netbricks/port"
)

var memlockOnce sync.Once

// defaultXdpObject is the redirect program loaded when the environment
// does not override it.
const defaultXdpObject = "xdp_redirect.o"

func (ctx *Context) openXdpPort(iface string) (port.Port, error) {
	var memlockErr error
	memlockOnce.Do(func() { memlockErr = rlimit.RemoveMemlock() })
	if memlockErr != nil {
		return nil, memlockErr
	}

	obj := os.Getenv("NETBRICKS_XDP_OBJECT")
	if obj == "" {
		obj = defaultXdpObject
	}
	return port.NewXdpPort(port.XdpConfig{
		Interface: iface,
		QueueID:   0,
		ObjPath:   obj,
	}, ctx.Pool)
}
