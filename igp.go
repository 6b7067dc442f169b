package main

import (
	"fmt"
	"net/netip"
	"slices"
)

const (
	DefaultOSPFProcessID = 1
	DefaultOSPFArea      = 0

	// RIPng timers in seconds (update, timeout, holddown, garbage collection).
	DefaultRIPUpdate   = 30
	DefaultRIPTimeout  = 180
	DefaultRIPHolddown = 0
	DefaultRIPGarbage  = 120
)

// OSPFParams are the per-AS OSPFv3 process parameters.
type OSPFParams struct {
	ProcessID uint32
	Area      uint32
}

// RIPParams are the per-AS RIPng process parameters.
type RIPParams struct {
	Name     string
	Update   int
	Timeout  int
	Holddown int
	Garbage  int
}

func newOSPFParams(in *OSPFIntent) OSPFParams {
	p := OSPFParams{ProcessID: DefaultOSPFProcessID, Area: DefaultOSPFArea}
	if in == nil {
		return p
	}
	if in.ProcessID != 0 {
		p.ProcessID = in.ProcessID
	}
	p.Area = in.Area
	return p
}

func newRIPParams(asn ASN, in *RIPIntent) RIPParams {
	p := RIPParams{
		Name:     asn.Label(),
		Update:   DefaultRIPUpdate,
		Timeout:  DefaultRIPTimeout,
		Holddown: DefaultRIPHolddown,
		Garbage:  DefaultRIPGarbage,
	}
	if in == nil {
		return p
	}
	if in.Name != "" {
		p.Name = in.Name
	}
	if in.Update != 0 {
		p.Update = in.Update
	}
	if in.Timeout != 0 {
		p.Timeout = in.Timeout
	}
	if in.Holddown != 0 {
		p.Holddown = in.Holddown
	}
	if in.Garbage != 0 {
		p.Garbage = in.Garbage
	}
	return p
}

// IGPConfig is the IGP block of one router.
type IGPConfig struct {
	Kind       IGPKind        `yaml:"kind"`
	RIP        *RIPConfig     `yaml:"rip,omitempty"`
	OSPF       *OSPFConfig    `yaml:"ospf,omitempty"`
	Interfaces []IGPInterface `yaml:"interfaces"`
	Networks   []string       `yaml:"networks"`
}

type RIPConfig struct {
	Name     string `yaml:"name"`
	Update   int    `yaml:"update"`
	Timeout  int    `yaml:"timeout"`
	Holddown int    `yaml:"holddown"`
	Garbage  int    `yaml:"garbage"`
}

type OSPFConfig struct {
	ProcessID uint32 `yaml:"process_id"`
	Area      uint32 `yaml:"area"`
	RouterID  string `yaml:"router_id"`
}

// IGPInterface is an interface the IGP runs on.
type IGPInterface struct {
	Name      string `yaml:"name"`
	LinkLocal string `yaml:"link_local,omitempty"`
	Passive   bool   `yaml:"passive,omitempty"`
}

// Runs reports whether the IGP is enabled on the named interface.
func (c IGPConfig) Runs(name string) bool {
	for _, i := range c.Interfaces {
		if i.Name == name {
			return true
		}
	}
	return false
}

// PlanIGP derives the IGP block of every router of as, in router order. The
// loopback of each router is always enabled and advertised, so every
// loopback is reachable inside the AS once the IGP converges. Inter-AS links
// stay out of the IGP.
func PlanIGP(as *AutonomousSystem, addrs *AddressPlan) ([]IGPConfig, error) {
	out := make([]IGPConfig, 0, len(as.Routers))
	for _, r := range as.Routers {
		if r.AS != as {
			return nil, malformed("", "router %s is not a member of %s", r, as.ASN.Label())
		}
		lo := addrs.Loopback(r)
		if !lo.IsValid() {
			return nil, fmt.Errorf("router %s has no loopback address", r)
		}

		cfg := IGPConfig{Kind: as.IGP}
		switch as.IGP {
		case IGPRIP:
			cfg.RIP = &RIPConfig{
				Name:     as.RIP.Name,
				Update:   as.RIP.Update,
				Timeout:  as.RIP.Timeout,
				Holddown: as.RIP.Holddown,
				Garbage:  as.RIP.Garbage,
			}
		case IGPOSPF:
			cfg.OSPF = &OSPFConfig{
				ProcessID: as.OSPF.ProcessID,
				Area:      as.OSPF.Area,
				RouterID:  addrs.RouterID(r).String(),
			}
		default:
			return nil, malformed("", "IGP %q not supported in %s", as.IGP, as.ASN.Label())
		}

		cfg.Interfaces = append(cfg.Interfaces, IGPInterface{Name: LoopbackInterface, Passive: true})
		networks := []netip.Prefix{lo}
		for _, e := range r.Interfaces {
			if e.Link.InterAS() {
				continue
			}
			cfg.Interfaces = append(cfg.Interfaces, IGPInterface{
				Name:      e.Interface,
				LinkLocal: addrs.LinkLocal(e).String(),
			})
			networks = append(networks, addrs.Link(e.Link).Prefix)
		}
		slices.SortFunc(networks, comparePrefixes)
		for _, n := range slices.Compact(networks) {
			cfg.Networks = append(cfg.Networks, n.String())
		}
		out = append(out, cfg)
	}
	return out, nil
}

func comparePrefixes(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}
