package fixture

import (
	"fmt"
	"net/netip"

	"github.com/bgpfix/rtrd/internal/roa"
)

// parsePrefix turns a "192.0.2.0/24" or "2001:db8::/32" string into a
// roa.PrefixEntry plus its address family (4 or 6).
func parsePrefix(s string) (roa.PrefixEntry, int, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return roa.PrefixEntry{}, 0, fmt.Errorf("%w: invalid prefix %q: %w", roa.ErrMalformedRoa, s, err)
	}
	p = p.Masked()

	family := 4
	if p.Addr().Is6() {
		family = 6
	}

	addrBytes := p.Addr().AsSlice()
	return roa.PrefixEntry{Bits: addrBytes, BitLen: p.Bits()}, family, nil
}
