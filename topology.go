package main

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// LoopbackInterface is the interface every router's loopback lives on.
const LoopbackInterface = "Loopback0"

// IGPKind selects the interior gateway protocol of an AS.
type IGPKind string

const (
	IGPRIP  IGPKind = "RIP"
	IGPOSPF IGPKind = "OSPF"
)

// AutonomousSystem is one AS of the topology. Routers are kept in natural
// identifier order.
type AutonomousSystem struct {
	ASN       ASN
	IGP       IGPKind
	OSPF      OSPFParams
	RIP       RIPParams
	LocalPref *LocalPrefIntent
	Routers   []*Router

	source int
}

// Router is a router of one AS. Loopback and RouterID are only set when the
// intent gave them explicitly; the address plan holds the resolved values.
type Router struct {
	ID         string
	AS         *AutonomousSystem
	Loopback   netip.Prefix
	RouterID   netip.Addr
	Interfaces []*Endpoint

	index  int
	source int
}

func (r *Router) String() string {
	return fmt.Sprintf("%s (%s)", r.ID, r.AS.ASN.Label())
}

// Index returns the position of the router in Topology.Routers.
func (r *Router) Index() int {
	return r.index
}

// Endpoint is one side of a link.
type Endpoint struct {
	Router       *Router
	Interface    string
	Address      netip.Prefix
	Relationship string
	Link         *Link
}

func (e *Endpoint) String() string {
	return e.Router.ID + ":" + e.Interface
}

// Link connects two router interfaces.
type Link struct {
	A, B   *Endpoint
	Prefix netip.Prefix

	index  int
	source int
}

// Index returns the position of the link in Topology.Links.
func (l *Link) Index() int {
	return l.index
}

// InterAS reports whether the endpoints belong to different ASes. AS
// membership alone decides it.
func (l *Link) InterAS() bool {
	return l.A.Router.AS != l.B.Router.AS
}

// Peer returns the endpoint on the other side of e.
func (l *Link) Peer(e *Endpoint) *Endpoint {
	if e == l.A {
		return l.B
	}
	return l.A
}

func (l *Link) String() string {
	return fmt.Sprintf("link %s <-> %s", l.A, l.B)
}

// Topology is the graph of ASes, routers and links built from an intent.
// It is not modified after LoadTopology returns.
type Topology struct {
	ASes  []*AutonomousSystem
	Links []*Link

	routers []*Router
	byASN   map[ASN]*AutonomousSystem
}

// AS returns the AS with the given number, or nil.
func (t *Topology) AS(asn ASN) *AutonomousSystem {
	return t.byASN[asn]
}

// Routers returns all routers ordered by ASN, then natural identifier.
func (t *Topology) Routers() []*Router {
	return t.routers
}

// LoadTopology builds the topology graph from an intent document.
func LoadTopology(in *Intent) (*Topology, error) {
	t := &Topology{byASN: make(map[ASN]*AutonomousSystem)}
	byName := make(map[string][]*Router)

	if len(in.ASes) == 0 {
		return nil, malformed("autonomous_systems", "no autonomous system declared")
	}

	for i, ai := range in.ASes {
		field := fmt.Sprintf("autonomous_systems[%d]", i)
		as, err := newAS(field, ai)
		if err != nil {
			return nil, err
		}
		as.source = i
		if _, ok := t.byASN[as.ASN]; ok {
			return nil, malformed(field+".asn", "AS %d declared more than once", as.ASN)
		}
		t.byASN[as.ASN] = as

		seen := make(map[string]bool)
		for j, ri := range ai.Routers {
			rfield := fmt.Sprintf("%s.routers[%d]", field, j)
			r, err := newRouter(rfield, ri)
			if err != nil {
				return nil, err
			}
			if seen[r.ID] {
				return nil, malformed(rfield+".id", "router %q declared twice in AS %d", r.ID, as.ASN)
			}
			seen[r.ID] = true
			r.AS = as
			r.source = j
			as.Routers = append(as.Routers, r)
			byName[r.ID] = append(byName[r.ID], r)
		}
		if len(as.Routers) == 0 {
			return nil, malformed(field+".routers", "AS %d has no routers", as.ASN)
		}
		slices.SortFunc(as.Routers, func(a, b *Router) int {
			return naturalCompare(a.ID, b.ID)
		})
		t.ASes = append(t.ASes, as)
	}
	slices.SortFunc(t.ASes, func(a, b *AutonomousSystem) int {
		return cmp.Compare(a.ASN, b.ASN)
	})
	for _, as := range t.ASes {
		for _, r := range as.Routers {
			r.index = len(t.routers)
			t.routers = append(t.routers, r)
		}
	}

	for i, li := range in.Links {
		field := fmt.Sprintf("links[%d]", i)
		l, err := t.newLink(field, li, byName)
		if err != nil {
			return nil, err
		}
		l.source = i
		t.Links = append(t.Links, l)
	}
	slices.SortStableFunc(t.Links, compareLinks)
	for i, l := range t.Links {
		l.index = i
	}
	for _, r := range t.routers {
		slices.SortFunc(r.Interfaces, func(a, b *Endpoint) int {
			return naturalCompare(a.Interface, b.Interface)
		})
	}

	return t, nil
}

func newAS(field string, ai ASIntent) (*AutonomousSystem, error) {
	if ai.ASN == 0 {
		return nil, malformed(field+".asn", "ASN must be a positive integer")
	}
	as := &AutonomousSystem{
		ASN:       ASN(ai.ASN),
		IGP:       IGPKind(strings.ToUpper(strings.TrimSpace(ai.IGP))),
		LocalPref: ai.LocalPreference,
	}
	switch as.IGP {
	case IGPRIP, IGPOSPF:
	default:
		return nil, malformed(field+".igp", "IGP %q not supported, choose RIP or OSPF", ai.IGP)
	}
	as.OSPF = newOSPFParams(ai.OSPF)
	as.RIP = newRIPParams(as.ASN, ai.RIP)
	return as, nil
}

func newRouter(field string, ri RouterIntent) (*Router, error) {
	r := &Router{ID: strings.TrimSpace(ri.ID)}
	if r.ID == "" {
		return nil, malformed(field+".id", "router id is empty")
	}
	if ri.Loopback != "" {
		lo, err := parseLoopback(ri.Loopback)
		if err != nil {
			return nil, malformed(field+".loopback", "%v", err)
		}
		r.Loopback = lo
	}
	if ri.RouterID != "" {
		id, err := netip.ParseAddr(ri.RouterID)
		if err != nil || !id.Is4() {
			return nil, malformed(field+".router_id", "%q is not a dotted-quad router id", ri.RouterID)
		}
		r.RouterID = id
	}
	return r, nil
}

func (t *Topology) newLink(field string, li LinkIntent, byName map[string][]*Router) (*Link, error) {
	l := &Link{}
	a, err := t.newEndpoint(field+".a", li.A, byName)
	if err != nil {
		return nil, err
	}
	b, err := t.newEndpoint(field+".b", li.B, byName)
	if err != nil {
		return nil, err
	}
	if a.Router == b.Router {
		return nil, malformed(field, "router %s is linked to itself", a.Router)
	}
	if li.Prefix != "" {
		p, err := netip.ParsePrefix(li.Prefix)
		if err != nil || !isIPv6(p.Addr()) {
			return nil, malformed(field+".prefix", "%q is not an IPv6 prefix", li.Prefix)
		}
		if p != p.Masked() {
			return nil, malformed(field+".prefix", "%q has host bits set", li.Prefix)
		}
		if p.Bits() > 127 {
			return nil, malformed(field+".prefix", "%q cannot hold two endpoints", li.Prefix)
		}
		l.Prefix = p
	}

	for _, e := range []*Endpoint{a, b} {
		for _, other := range e.Router.Interfaces {
			if other.Interface == e.Interface {
				return nil, malformed(field, "interface %s is used by more than one link", e)
			}
		}
		e.Link = l
		e.Router.Interfaces = append(e.Router.Interfaces, e)
	}
	l.A, l.B = a, b
	return l, nil
}

func (t *Topology) newEndpoint(field string, ei EndpointIntent, byName map[string][]*Router) (*Endpoint, error) {
	name := strings.TrimSpace(ei.Router)
	if name == "" {
		return nil, malformed(field+".router", "router is empty")
	}
	ifname := strings.TrimSpace(ei.Interface)
	if ifname == "" {
		return nil, malformed(field+".interface", "interface is empty")
	}
	if strings.EqualFold(ifname, LoopbackInterface) {
		return nil, malformed(field+".interface", "%s is reserved for the router loopback", LoopbackInterface)
	}

	var r *Router
	if ei.ASN != 0 {
		as := t.byASN[ASN(ei.ASN)]
		if as == nil {
			return nil, malformed(field+".asn", "AS %d is not declared", ei.ASN)
		}
		for _, cand := range as.Routers {
			if cand.ID == name {
				r = cand
				break
			}
		}
		if r == nil {
			return nil, malformed(field+".router", "unknown router %q in AS %d", name, ei.ASN)
		}
	} else {
		cands := byName[name]
		switch len(cands) {
		case 0:
			return nil, malformed(field+".router", "unknown router %q", name)
		case 1:
			r = cands[0]
		default:
			return nil, malformed(field+".router", "router %q exists in several ASes, set asn", name)
		}
	}

	e := &Endpoint{
		Router:       r,
		Interface:    ifname,
		Relationship: strings.ToLower(strings.TrimSpace(ei.Relationship)),
	}
	if ei.Address != "" {
		p, err := netip.ParsePrefix(ei.Address)
		if err != nil || !isIPv6(p.Addr()) {
			return nil, malformed(field+".address", "%q is not an IPv6 address with prefix length", ei.Address)
		}
		if p.Bits() > 127 {
			return nil, malformed(field+".address", "%q leaves no room for the peer", ei.Address)
		}
		e.Address = p
	}
	return e, nil
}

// parseLoopback accepts "addr" or "addr/128".
func parseLoopback(s string) (netip.Prefix, error) {
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil || !isIPv6(addr) {
			return netip.Prefix{}, fmt.Errorf("%q is not an IPv6 address", s)
		}
		return netip.PrefixFrom(addr, 128), nil
	}
	p, err := netip.ParsePrefix(s)
	if err != nil || !isIPv6(p.Addr()) || p.Bits() != 128 {
		return netip.Prefix{}, fmt.Errorf("%q is not an IPv6 /128", s)
	}
	return p, nil
}

func isIPv6(a netip.Addr) bool {
	return a.Is6() && !a.Is4In6() && a.Zone() == ""
}

func compareLinks(a, b *Link) int {
	if c := compareEndpoints(a.A, b.A); c != 0 {
		return c
	}
	return compareEndpoints(a.B, b.B)
}

func compareEndpoints(a, b *Endpoint) int {
	if c := cmp.Compare(a.Router.index, b.Router.index); c != 0 {
		return c
	}
	return naturalCompare(a.Interface, b.Interface)
}

// naturalCompare orders identifiers so that embedded numbers compare by value
// (R2 < R10, Gi1/2 < Gi1/10).
func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		if isDigit(a[0]) && isDigit(b[0]) {
			na, ra := splitDigits(a)
			nb, rb := splitDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if c := cmp.Compare(len(ta), len(tb)); c != 0 {
				return c
			}
			if c := strings.Compare(ta, tb); c != 0 {
				return c
			}
			if c := cmp.Compare(len(na), len(nb)); c != 0 {
				return c
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			return cmp.Compare(a[0], b[0])
		}
		a, b = a[1:], b[1:]
	}
	return cmp.Compare(len(a), len(b))
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func splitDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}
