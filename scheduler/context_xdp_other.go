//go:build !linux

package scheduler

import (
	"fmt"

	"github.com/netsys-io/netbricks/port"
)

func (ctx *Context) openXdpPort(iface string) (port.Port, error) {
	return nil, fmt.Errorf("xdp ports require linux")
}
