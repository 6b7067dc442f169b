package main

import (
	"fmt"
	"log/slog"
)

// PolicyMode selects whether policy synthesis runs.
type PolicyMode int

const (
	PolicyFromIntent PolicyMode = iota
	PolicyOn
	PolicyOff
)

// ParsePolicyMode parses the -policies flag value.
func ParsePolicyMode(s string) (PolicyMode, error) {
	switch s {
	case "", "intent":
		return PolicyFromIntent, nil
	case "on":
		return PolicyOn, nil
	case "off":
		return PolicyOff, nil
	}
	return 0, fmt.Errorf("invalid policies mode %q, choose intent, on or off", s)
}

// Plan is the output of one compilation.
type Plan struct {
	Topology  *Topology
	Addresses *AddressPlan
	IGP       []IGPConfig // by router index
	Sessions  []*BGPSession
	Policies  *PolicyCatalog // nil when policies are disabled
	Routers   []RouterConfig
	Filled    *Intent
}

// Compiler turns an intent document into per-router configuration records.
type Compiler struct {
	Policies PolicyMode

	logger *slog.Logger
}

func NewCompiler(logger *slog.Logger, policies PolicyMode) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{Policies: policies, logger: logger}
}

// Compile runs every stage over in. in is not modified. The first error
// aborts compilation and no partial plan is returned.
func (c *Compiler) Compile(in *Intent) (*Plan, error) {
	topo, err := LoadTopology(in)
	if err != nil {
		return nil, fmt.Errorf("failed to load topology: %w", err)
	}
	c.logger.Debug("topology loaded", "ases", len(topo.ASes), "routers", len(topo.Routers()), "links", len(topo.Links))

	cfg, err := NewAddressingConfig(in.Addressing)
	if err != nil {
		return nil, fmt.Errorf("failed to read addressing: %w", err)
	}
	addrs, err := Allocate(topo, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate addresses: %w", err)
	}
	c.logger.Debug("addresses allocated", "base_block", cfg.BaseBlock, "subnet_size", cfg.SubnetSize, "loopback_block", cfg.LoopbackBlock)

	igp := make([]IGPConfig, len(topo.Routers()))
	var sessions []*BGPSession
	for _, as := range topo.ASes {
		blocks, err := PlanIGP(as, addrs)
		if err != nil {
			return nil, fmt.Errorf("failed to plan IGP of %s: %w", as.ASN.Label(), err)
		}
		for i, r := range as.Routers {
			igp[r.index] = blocks[i]
		}
		mesh := BuildIBGPMesh(as, addrs)
		c.logger.Debug("AS planned", "asn", as.ASN, "igp", as.IGP, "routers", len(as.Routers), "ibgp_sessions", len(mesh))
		sessions = append(sessions, mesh...)
	}
	sessions = append(sessions, BuildEBGPSessions(topo, addrs)...)

	pcfg := NewPolicyConfig(in.Policies)
	switch c.Policies {
	case PolicyOn:
		pcfg.Enabled = true
	case PolicyOff:
		pcfg.Enabled = false
	}
	catalog, err := Synthesize(topo, sessions, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize policies: %w", err)
	}

	routers, err := BuildRouterConfigs(topo, addrs, igp, sessions, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to build router configs: %w", err)
	}

	c.logger.Info("intent compiled",
		"routers", len(routers),
		"sessions", len(sessions),
		"policies", pcfg.Enabled,
	)
	return &Plan{
		Topology:  topo,
		Addresses: addrs,
		IGP:       igp,
		Sessions:  sessions,
		Policies:  catalog,
		Routers:   routers,
		Filled:    FillIntent(in, topo, addrs),
	}, nil
}

// FillIntent returns a copy of in where every address field left empty holds
// the value that was allocated for it. Given fields are kept verbatim, so
// compiling the filled intent again yields the same document.
func FillIntent(in *Intent, topo *Topology, addrs *AddressPlan) *Intent {
	out := in.Clone()
	cfg := addrs.Config
	if out.Addressing.SubnetSize == 0 {
		out.Addressing.SubnetSize = cfg.SubnetSize
	}
	if out.Addressing.LoopbackBlock == "" && cfg.LoopbackBlock.IsValid() {
		out.Addressing.LoopbackBlock = cfg.LoopbackBlock.String()
	}

	for _, as := range topo.ASes {
		for _, r := range as.Routers {
			ri := &out.ASes[as.source].Routers[r.source]
			if ri.Loopback == "" {
				ri.Loopback = addrs.Loopback(r).String()
			}
			if ri.RouterID == "" {
				ri.RouterID = addrs.RouterID(r).String()
			}
		}
	}

	for _, l := range topo.Links {
		li := &out.Links[l.source]
		la := addrs.Link(l)
		if li.Prefix == "" {
			li.Prefix = la.Prefix.String()
		}
		if li.A.Address == "" {
			li.A.Address = la.A.String()
		}
		if li.B.Address == "" {
			li.B.Address = la.B.String()
		}
	}
	return out
}
