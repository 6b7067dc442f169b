package main

import (
	"net/netip"
)

// RouterIDBlock is the IPv4 block derived router IDs are drawn from.
var RouterIDBlock = netip.MustParsePrefix("10.255.0.0/16")

// DerivedRouterID returns the n-th router ID of RouterIDBlock, n starting at 1.
// Supports up to 65535 routers (10.255.0.1 - 10.255.255.255).
func DerivedRouterID(n int) (netip.Addr, bool) {
	if n < 1 || n > 0xffff {
		return netip.Addr{}, false
	}
	base := RouterIDBlock.Addr().As4()
	return netip.AddrFrom4([4]byte{base[0], base[1], byte(n >> 8), byte(n)}), true
}

// EndpointAddresses returns the two addresses handed to the ends of a link
// prefix: ::1 and ::2, or ::0 and ::1 for a /127 (RFC 6164).
func EndpointAddresses(p netip.Prefix) (a, b netip.Prefix) {
	first := p.Masked().Addr()
	if p.Bits() < 127 {
		first = first.Next()
	}
	return netip.PrefixFrom(first, p.Bits()), netip.PrefixFrom(first.Next(), p.Bits())
}

// PeerAddress returns the address for the unset end of a link whose other
// end is given: the first of the two conventional addresses not taken.
func PeerAddress(p netip.Prefix, given netip.Addr) netip.Prefix {
	a, b := EndpointAddresses(p)
	if a.Addr() == given {
		return b
	}
	return a
}
