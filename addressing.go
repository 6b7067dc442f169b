package main

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"

	"go4.org/netipx"
)

// DefaultSubnetSize is the prefix length handed to each link.
const DefaultSubnetSize = 64

// DefaultLoopbackBits is the size of the loopback block carved from the base
// block when none is configured.
const DefaultLoopbackBits = 64

// AddressingConfig is the resolved addressing section of the intent.
type AddressingConfig struct {
	BaseBlock     netip.Prefix
	SubnetSize    int
	LoopbackBlock netip.Prefix
}

// NewAddressingConfig parses the addressing section. Without a loopback
// block, loopbacks are drawn from the first /64 of the base block, or from
// its first link subnet when the base block is /64 or longer.
func NewAddressingConfig(in AddressingIntent) (AddressingConfig, error) {
	cfg := AddressingConfig{SubnetSize: in.SubnetSize}
	if cfg.SubnetSize == 0 {
		cfg.SubnetSize = DefaultSubnetSize
	}
	if cfg.SubnetSize < 1 || cfg.SubnetSize > 127 {
		return cfg, malformed("addressing.subnet_size", "%d is not a link prefix length between 1 and 127", in.SubnetSize)
	}
	if in.BaseBlock != "" {
		p, err := parseBlock(in.BaseBlock)
		if err != nil {
			return cfg, malformed("addressing.base_block", "%v", err)
		}
		cfg.BaseBlock = p
	}
	if in.LoopbackBlock != "" {
		p, err := parseBlock(in.LoopbackBlock)
		if err != nil {
			return cfg, malformed("addressing.loopback_block", "%v", err)
		}
		cfg.LoopbackBlock = p
	} else if cfg.BaseBlock.IsValid() {
		bits := DefaultLoopbackBits
		if cfg.BaseBlock.Bits() >= bits {
			bits = max(cfg.BaseBlock.Bits(), cfg.SubnetSize)
		}
		cfg.LoopbackBlock = netip.PrefixFrom(cfg.BaseBlock.Addr(), bits).Masked()
	}
	return cfg, nil
}

func parseBlock(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil || !isIPv6(p.Addr()) {
		return netip.Prefix{}, fmt.Errorf("%q is not an IPv6 prefix", s)
	}
	if p != p.Masked() {
		return netip.Prefix{}, fmt.Errorf("%q has host bits set", s)
	}
	return p, nil
}

// AddressPool hands out consecutive prefixes of one size from a block,
// skipping reserved space. The cursor only moves forward and the pool never
// wraps: once the cursor leaves the block the pool is exhausted.
type AddressPool struct {
	Name  string
	Block netip.Prefix
	Bits  int

	cursor   netip.Addr
	reserved *netipx.IPSet
}

// NewAddressPool returns a pool over block handing out /bits prefixes that do
// not overlap reserved. reserved may be nil.
func NewAddressPool(name string, block netip.Prefix, bits int, reserved *netipx.IPSet) *AddressPool {
	block = block.Masked()
	return &AddressPool{
		Name:     name,
		Block:    block,
		Bits:     bits,
		cursor:   block.Addr(),
		reserved: reserved,
	}
}

// Next returns the lowest free prefix above every prefix returned so far.
func (p *AddressPool) Next() (netip.Prefix, bool) {
	if !p.Block.IsValid() || p.Bits < p.Block.Bits() || p.Bits > p.Block.Addr().BitLen() {
		return netip.Prefix{}, false
	}
	for p.cursor.IsValid() && p.Block.Contains(p.cursor) {
		cand := netip.PrefixFrom(p.cursor, p.Bits)
		p.cursor = netipx.PrefixLastIP(cand).Next()
		if p.reserved == nil || !p.reserved.OverlapsPrefix(cand) {
			return cand, true
		}
		p.skipReserved(cand)
	}
	return netip.Prefix{}, false
}

// skipReserved moves the cursor past the reserved range overlapping cand.
func (p *AddressPool) skipReserved(cand netip.Prefix) {
	last := netipx.PrefixLastIP(cand)
	for _, r := range p.reserved.Ranges() {
		if r.To().Less(cand.Addr()) {
			continue
		}
		if last.Less(r.From()) {
			return
		}
		next := r.To().Next()
		if !next.IsValid() {
			p.cursor = netip.Addr{}
			return
		}
		if next = alignUp(next, p.Bits); !next.IsValid() || p.cursor.Less(next) {
			p.cursor = next
		}
		return
	}
}

func alignUp(a netip.Addr, bits int) netip.Addr {
	p := netip.PrefixFrom(a, bits).Masked()
	if p.Addr() == a {
		return a
	}
	return netipx.PrefixLastIP(p).Next()
}

// LinkAddressing is the resolved addressing of one link.
type LinkAddressing struct {
	Prefix     netip.Prefix
	A, B       netip.Prefix
	LinkLocalA netip.Addr
	LinkLocalB netip.Addr
}

// AddressPlan holds every address of the topology, explicit or allocated.
// Links are indexed by Link.Index, routers by Router.Index.
type AddressPlan struct {
	Config    AddressingConfig
	Links     []LinkAddressing
	Loopbacks []netip.Prefix
	RouterIDs []netip.Addr
}

func (p *AddressPlan) Link(l *Link) LinkAddressing {
	return p.Links[l.index]
}

func (p *AddressPlan) Loopback(r *Router) netip.Prefix {
	return p.Loopbacks[r.index]
}

func (p *AddressPlan) RouterID(r *Router) netip.Addr {
	return p.RouterIDs[r.index]
}

// Address returns the interface address of e with its prefix length.
func (p *AddressPlan) Address(e *Endpoint) netip.Prefix {
	la := p.Links[e.Link.index]
	if e == e.Link.A {
		return la.A
	}
	return la.B
}

func (p *AddressPlan) LinkLocal(e *Endpoint) netip.Addr {
	la := p.Links[e.Link.index]
	if e == e.Link.A {
		return la.LinkLocalA
	}
	return la.LinkLocalB
}

type reservation struct {
	prefix netip.Prefix
	owner  string
}

// Allocate resolves the addresses of every link and router in two phases.
// All explicit assignments are reserved first and kept verbatim; the
// remaining links then draw from the link pool and the remaining routers
// from the loopback pool.
func Allocate(topo *Topology, cfg AddressingConfig) (*AddressPlan, error) {
	routers := topo.Routers()
	plan := &AddressPlan{
		Config:    cfg,
		Links:     make([]LinkAddressing, len(topo.Links)),
		Loopbacks: make([]netip.Prefix, len(routers)),
		RouterIDs: make([]netip.Addr, len(routers)),
	}

	var res []reservation
	var pendingLinks []*Link
	for _, l := range topo.Links {
		la, ok, err := explicitLinkAddressing(l)
		if err != nil {
			return nil, err
		}
		if !ok {
			pendingLinks = append(pendingLinks, l)
			continue
		}
		plan.Links[l.index] = la
		res = append(res, reservation{prefix: la.Prefix, owner: l.String()})
	}
	var pendingRouters []*Router
	for _, r := range routers {
		if !r.Loopback.IsValid() {
			pendingRouters = append(pendingRouters, r)
			continue
		}
		plan.Loopbacks[r.index] = r.Loopback
		res = append(res, reservation{prefix: r.Loopback, owner: "loopback of router " + r.String()})
	}
	if err := checkOverlaps(res); err != nil {
		return nil, err
	}
	if block := cfg.LoopbackBlock; block.IsValid() {
		for _, l := range topo.Links {
			if la := plan.Links[l.index]; la.Prefix.IsValid() && la.Prefix.Overlaps(block) {
				return nil, &AddressConflictError{Prefix: la.Prefix, Owner: l.String(), Other: "loopback block " + block.String()}
			}
		}
	}

	var eb netipx.IPSetBuilder
	for _, r := range res {
		eb.AddPrefix(r.prefix)
	}
	explicit, err := eb.IPSet()
	if err != nil {
		return nil, err
	}

	if err := allocateLinks(plan, pendingLinks, explicit); err != nil {
		return nil, err
	}
	if err := allocateLoopbacks(plan, pendingRouters, explicit); err != nil {
		return nil, err
	}
	if err := assignRouterIDs(topo, plan); err != nil {
		return nil, err
	}
	for _, l := range topo.Links {
		la := &plan.Links[l.index]
		la.LinkLocalA = EndpointLLA(l.index, 0)
		la.LinkLocalB = EndpointLLA(l.index, 1)
	}
	return plan, nil
}

func allocateLinks(plan *AddressPlan, links []*Link, explicit *netipx.IPSet) error {
	if len(links) == 0 {
		return nil
	}
	cfg := plan.Config
	if !cfg.BaseBlock.IsValid() {
		return malformed("addressing.base_block", "required, %s has no explicit addressing", links[0])
	}

	var b netipx.IPSetBuilder
	b.AddSet(explicit)
	if cfg.LoopbackBlock.IsValid() && cfg.LoopbackBlock.Overlaps(cfg.BaseBlock) {
		b.AddPrefix(cfg.LoopbackBlock)
	}
	reserved, err := b.IPSet()
	if err != nil {
		return err
	}

	pool := NewAddressPool("link", cfg.BaseBlock, cfg.SubnetSize, reserved)
	for _, l := range links {
		p, ok := pool.Next()
		if !ok {
			return &AddressSpaceExhaustedError{
				Pool:   pool.Name,
				Block:  cfg.BaseBlock,
				Size:   cfg.SubnetSize,
				Demand: l.String(),
			}
		}
		a, bb := EndpointAddresses(p)
		plan.Links[l.index] = LinkAddressing{Prefix: p, A: a, B: bb}
	}
	return nil
}

func allocateLoopbacks(plan *AddressPlan, routers []*Router, explicit *netipx.IPSet) error {
	if len(routers) == 0 {
		return nil
	}
	block := plan.Config.LoopbackBlock

	var b netipx.IPSetBuilder
	b.AddSet(explicit)
	for _, la := range plan.Links {
		b.AddPrefix(la.Prefix)
	}
	if block.IsValid() && block.Bits() < 128 {
		// subnet-router anycast
		b.Add(block.Addr())
	}
	reserved, err := b.IPSet()
	if err != nil {
		return err
	}

	pool := NewAddressPool("loopback", block, 128, reserved)
	for _, r := range routers {
		p, ok := pool.Next()
		if !ok {
			return &AddressSpaceExhaustedError{
				Pool:   pool.Name,
				Block:  block,
				Size:   128,
				Demand: "router " + r.String(),
			}
		}
		plan.Loopbacks[r.index] = p
	}
	return nil
}

func assignRouterIDs(topo *Topology, plan *AddressPlan) error {
	taken := make(map[netip.Addr]*Router)
	for _, r := range topo.Routers() {
		if !r.RouterID.IsValid() {
			continue
		}
		if other, ok := taken[r.RouterID]; ok {
			return &AddressConflictError{
				Prefix: netip.PrefixFrom(r.RouterID, 32),
				Owner:  "router-id of router " + r.String(),
				Other:  "router-id of router " + other.String(),
			}
		}
		taken[r.RouterID] = r
		plan.RouterIDs[r.index] = r.RouterID
	}

	n := 0
	for _, r := range topo.Routers() {
		if r.RouterID.IsValid() {
			continue
		}
		for {
			n++
			id, ok := DerivedRouterID(n)
			if !ok {
				return &AddressSpaceExhaustedError{
					Pool:   "router-id",
					Block:  RouterIDBlock,
					Size:   32,
					Demand: "router " + r.String(),
				}
			}
			if _, used := taken[id]; !used {
				taken[id] = r
				plan.RouterIDs[r.index] = id
				break
			}
		}
	}
	return nil
}

// explicitLinkAddressing resolves a link whose prefix or at least one
// endpoint address is given. ok is false when the link needs allocation.
func explicitLinkAddressing(l *Link) (la LinkAddressing, ok bool, err error) {
	prefix := l.Prefix
	if !prefix.IsValid() {
		switch {
		case l.A.Address.IsValid():
			prefix = l.A.Address.Masked()
		case l.B.Address.IsValid():
			prefix = l.B.Address.Masked()
		default:
			return LinkAddressing{}, false, nil
		}
	}

	for _, e := range []*Endpoint{l.A, l.B} {
		if e.Address.IsValid() && e.Address.Masked() != prefix {
			return LinkAddressing{}, false, &AddressConflictError{
				Prefix: e.Address,
				Owner:  "interface " + e.String(),
				Other:  fmt.Sprintf("prefix %s of %s", prefix, l),
			}
		}
	}

	a, b := l.A.Address, l.B.Address
	switch {
	case a.IsValid() && b.IsValid():
		if a.Addr() == b.Addr() {
			return LinkAddressing{}, false, &AddressConflictError{
				Prefix: a,
				Owner:  "interface " + l.A.String(),
				Other:  "interface " + l.B.String(),
			}
		}
	case a.IsValid():
		b = PeerAddress(prefix, a.Addr())
	case b.IsValid():
		a = PeerAddress(prefix, b.Addr())
	default:
		a, b = EndpointAddresses(prefix)
	}
	return LinkAddressing{Prefix: prefix, A: a, B: b}, true, nil
}

// checkOverlaps fails on the first pair of explicit assignments sharing
// address space.
func checkOverlaps(res []reservation) error {
	sorted := slices.Clone(res)
	slices.SortStableFunc(sorted, func(a, b reservation) int {
		if c := a.prefix.Addr().Compare(b.prefix.Addr()); c != 0 {
			return c
		}
		return cmp.Compare(a.prefix.Bits(), b.prefix.Bits())
	})

	var widest reservation
	var end netip.Addr
	for i, r := range sorted {
		if i > 0 && r.prefix.Addr().Compare(end) <= 0 {
			return &AddressConflictError{Prefix: r.prefix, Owner: r.owner, Other: widest.owner}
		}
		if last := netipx.PrefixLastIP(r.prefix); i == 0 || end.Less(last) {
			widest, end = r, last
		}
	}
	return nil
}
