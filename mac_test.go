package main

import (
	"fmt"
	"net"
	"testing"
)

func TestMACToLLA(t *testing.T) {
	tests := []struct {
		mac      string
		expected string
	}{
		// Locally administered MACs (U/L bit already set)
		{"02:00:00:00:00:00", "fe80::ff:fe00:0"},
		{"02:00:00:00:01:00", "fe80::ff:fe00:100"},
		{"02:00:00:01:00:00", "fe80::ff:fe01:0"},
		{"02:00:00:00:00:01", "fe80::ff:fe00:1"},
		// Standard MAC (from RFC example style)
		{"00:12:7f:eb:6b:40", "fe80::212:7fff:feeb:6b40"},
	}

	for _, tt := range tests {
		mac, err := net.ParseMAC(tt.mac)
		if err != nil {
			t.Fatalf("Failed to parse MAC %s: %v", tt.mac, err)
		}
		got := MACToLLA(mac)
		if got.String() != tt.expected {
			t.Errorf("MACToLLA(%s) = %s, want %s", tt.mac, got, tt.expected)
		}
	}
}

func TestMACToLLAInvalidLength(t *testing.T) {
	if got := MACToLLA(net.HardwareAddr{0x02, 0x00}); got.IsValid() {
		t.Errorf("MACToLLA(short) = %s, want invalid", got)
	}
}

func TestEndpointLLAUniqueness(t *testing.T) {
	seen := make(map[string]string)
	for link := 0; link < 300; link++ {
		for side := byte(0); side < 2; side++ {
			lla := EndpointLLA(link, side)
			if !lla.IsLinkLocalUnicast() {
				t.Fatalf("EndpointLLA(%d, %d) = %s is not link-local", link, side, lla)
			}
			key := lla.String()
			if existing, ok := seen[key]; ok {
				t.Errorf("Duplicate LLA %s: %s and link %d side %d", key, existing, link, side)
			}
			seen[key] = fmt.Sprintf("link %d side %d", link, side)
		}
	}
}
