package packets

import (
	"fmt"
	"net/netip"
)

// Flow is the canonical 5-tuple identifying one direction of a
// transport-layer connection. netip.Addr compares byte-wise, so Flow is
// usable directly as a map key for both families.
type Flow struct {
	Src     netip.Addr
	Dst     netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto   ProtocolNumber
}

// Reverse returns the flow of the opposite direction.
func (f Flow) Reverse() Flow {
	return Flow{
		Src:     f.Dst,
		Dst:     f.Src,
		SrcPort: f.DstPort,
		DstPort: f.SrcPort,
		Proto:   f.Proto,
	}
}

func (f Flow) String() string {
	return fmt.Sprintf("%s:%d > %s:%d proto: %d", f.Src, f.SrcPort, f.Dst, f.DstPort, f.Proto)
}
