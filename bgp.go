package main

import (
	"fmt"
	"net/netip"
)

// SessionKind tells internal and external BGP sessions apart.
type SessionKind string

const (
	IBGP SessionKind = "iBGP"
	EBGP SessionKind = "eBGP"
)

// BGPPeer is one end of a BGP session.
type BGPPeer struct {
	Router  *Router
	ASN     ASN
	Address netip.Addr
	// Endpoint is the link interface of an eBGP session; nil for iBGP.
	Endpoint *Endpoint
}

// BGPSession is a single BGP session between two routers.
type BGPSession struct {
	Kind   SessionKind
	A, B   BGPPeer
	Policy *PolicySet
}

// Sides returns the local and remote end of the session as seen by r.
func (s *BGPSession) Sides(r *Router) (local, remote BGPPeer, ok bool) {
	switch r {
	case s.A.Router:
		return s.A, s.B, true
	case s.B.Router:
		return s.B, s.A, true
	}
	return BGPPeer{}, BGPPeer{}, false
}

func (s *BGPSession) String() string {
	return fmt.Sprintf("%s %s[%s] <-> %s[%s]", s.Kind, s.A.Router, s.A.Address, s.B.Router, s.B.Address)
}

// BuildIBGPMesh returns the full iBGP mesh of as: one session per unordered
// pair of routers, n*(n-1)/2 in total, between loopback addresses. Routers
// are paired by index over their sorted order, so the result is stable.
func BuildIBGPMesh(as *AutonomousSystem, addrs *AddressPlan) []*BGPSession {
	routers := as.Routers
	n := len(routers)
	sessions := make([]*BGPSession, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := routers[i], routers[j]
			sessions = append(sessions, &BGPSession{
				Kind: IBGP,
				A:    BGPPeer{Router: a, ASN: as.ASN, Address: addrs.Loopback(a).Addr()},
				B:    BGPPeer{Router: b, ASN: as.ASN, Address: addrs.Loopback(b).Addr()},
			})
		}
	}
	return sessions
}

// BuildEBGPSessions returns one session per inter-AS link, between the link
// addresses of its endpoints. Links inside one AS never become eBGP.
func BuildEBGPSessions(topo *Topology, addrs *AddressPlan) []*BGPSession {
	var sessions []*BGPSession
	for _, l := range topo.Links {
		if !l.InterAS() {
			continue
		}
		la := addrs.Link(l)
		sessions = append(sessions, &BGPSession{
			Kind: EBGP,
			A:    BGPPeer{Router: l.A.Router, ASN: l.A.Router.AS.ASN, Address: la.A.Addr(), Endpoint: l.A},
			B:    BGPPeer{Router: l.B.Router, ASN: l.B.Router.AS.ASN, Address: la.B.Addr(), Endpoint: l.B},
		})
	}
	return sessions
}
