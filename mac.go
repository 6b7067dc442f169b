package main

import (
	"net"
	"net/netip"
)

// GenerateMAC generates the locally administered MAC of one link endpoint.
// Format: 02:LL:LL:LL:LL:SS with the link index in LL and the side (0 for a,
// 1 for b) in SS.
func GenerateMAC(linkIndex uint32, side byte) net.HardwareAddr {
	return net.HardwareAddr{
		0x02, // Locally administered (U/L bit = 1)
		byte(linkIndex >> 24),
		byte(linkIndex >> 16),
		byte(linkIndex >> 8),
		byte(linkIndex),
		side,
	}
}

// MACToLLA converts a MAC address to an IPv6 link-local address using EUI-64.
// RFC 4291 Section 2.5.1
func MACToLLA(mac net.HardwareAddr) netip.Addr {
	if len(mac) != 6 {
		return netip.Addr{}
	}

	var ip [16]byte
	ip[0] = 0xfe
	ip[1] = 0x80
	// EUI-64: insert FF:FE in the middle, flip U/L bit
	ip[8] = mac[0] ^ 0x02
	ip[9] = mac[1]
	ip[10] = mac[2]
	ip[11] = 0xff
	ip[12] = 0xfe
	ip[13] = mac[3]
	ip[14] = mac[4]
	ip[15] = mac[5]

	return netip.AddrFrom16(ip)
}

// EndpointLLA returns the link-local address of side 0 (a) or 1 (b) of the
// link at linkIndex.
func EndpointLLA(linkIndex int, side byte) netip.Addr {
	return MACToLLA(GenerateMAC(uint32(linkIndex), side))
}
