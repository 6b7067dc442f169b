package main

import (
	"fmt"
	"strconv"
)

// ASN is a 4-byte autonomous system number (RFC 6793).
type ASN uint32

const (
	// ASNMax16 is the largest ASN that fits the 2-byte AS field.
	ASNMax16 ASN = 0xffff
)

// String returns the asplain notation.
func (a ASN) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Is16Bit reports whether the ASN can be carried in a standard community.
func (a ASN) Is16Bit() bool {
	return a <= ASNMax16
}

// Label returns the AS name used for directories and RIP processes (AS101).
func (a ASN) Label() string {
	return fmt.Sprintf("AS%d", uint32(a))
}
