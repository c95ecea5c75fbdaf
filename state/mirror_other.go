//go:build !linux

package state

import "errors"

// mapMirrored is unavailable off linux; the ring buffer uses the copying
// fallback, which has identical visible behavior.
func mapMirrored(size int) ([]byte, func(), error) {
	return nil, nil, errors.New("mirrored mapping not supported on this platform")
}
