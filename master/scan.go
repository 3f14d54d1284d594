package master

import (
	"context"
	"errors"

	"github.com/ardnew/softi2c/pkg"
)

// Address range probed by Scan. Addresses below 0x08 and above 0x77 are
// reserved for special purposes on the bus.
const (
	ScanFirst = 0x08
	ScanLast  = 0x77
)

// Probe addresses addr with an empty write and reports whether a target
// acknowledged.
func (m *Master) Probe(ctx context.Context, addr uint8) (bool, error) {
	_, err := m.Write(ctx, addr, nil)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pkg.ErrNACK):
		return false, nil
	default:
		return false, err
	}
}

// Scan probes every non-reserved address and returns those that were
// acknowledged, in ascending order.
func (m *Master) Scan(ctx context.Context) ([]uint8, error) {
	var found []uint8
	for addr := uint8(ScanFirst); addr <= ScanLast; addr++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		ok, err := m.Probe(ctx, addr)
		if err != nil {
			return found, err
		}
		if ok {
			found = append(found, addr)
		}
	}
	pkg.LogInfo(pkg.ComponentMaster, "scan complete", "found", len(found))
	return found, nil
}
