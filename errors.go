package main

import (
	"fmt"
	"net/netip"
)

// MalformedIntentError reports a structural or referential problem in the
// intent document. It is raised before any address is allocated.
type MalformedIntentError struct {
	Field  string // location in the document, e.g. links[3].a
	Reason string
}

func (e *MalformedIntentError) Error() string {
	if e.Field == "" {
		return "malformed intent: " + e.Reason
	}
	return fmt.Sprintf("malformed intent: %s: %s", e.Field, e.Reason)
}

func malformed(field, format string, args ...any) error {
	return &MalformedIntentError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// AddressSpaceExhaustedError reports that a pool could not satisfy the demand
// of one link or router.
type AddressSpaceExhaustedError struct {
	Pool   string // link, loopback or router-id
	Block  netip.Prefix
	Size   int
	Demand string
}

func (e *AddressSpaceExhaustedError) Error() string {
	block := "(unset)"
	if e.Block.IsValid() {
		block = e.Block.String()
	}
	return fmt.Sprintf("address space exhausted: no free /%d left in %s pool %s for %s",
		e.Size, e.Pool, block, e.Demand)
}

// AddressConflictError reports two explicit assignments that overlap.
type AddressConflictError struct {
	Prefix netip.Prefix
	Owner  string
	Other  string
}

func (e *AddressConflictError) Error() string {
	return fmt.Sprintf("address conflict: %s of %s overlaps %s", e.Prefix, e.Owner, e.Other)
}

// PolicyConfigurationError reports a policy that refers to an undefined
// relationship or default. Only raised when policy synthesis is enabled.
type PolicyConfigurationError struct {
	Subject string
	Reason  string
}

func (e *PolicyConfigurationError) Error() string {
	return fmt.Sprintf("policy configuration: %s: %s", e.Subject, e.Reason)
}
