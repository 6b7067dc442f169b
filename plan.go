package main

import (
	"fmt"
	"maps"
	"slices"
)

// RouterConfig is the fully resolved configuration record of one router.
// Templates render it verbatim; nothing is derived at render time.
type RouterConfig struct {
	Hostname       string            `yaml:"hostname"`
	ASN            ASN               `yaml:"asn"`
	RouterID       string            `yaml:"router_id"`
	Interfaces     []InterfaceConfig `yaml:"interfaces"`
	IGP            IGPConfig         `yaml:"igp"`
	BGP            BGPConfig         `yaml:"bgp"`
	CommunityLists []CommunityList   `yaml:"community_lists,omitempty"`
	RouteMaps      []RouteMap        `yaml:"route_maps,omitempty"`
}

// InterfaceConfig represents an addressed interface.
type InterfaceConfig struct {
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	LinkLocal   string `yaml:"link_local,omitempty"`
	Description string `yaml:"description,omitempty"`
}

type BGPConfig struct {
	ASN       ASN              `yaml:"asn"`
	RouterID  string           `yaml:"router_id"`
	Neighbors []NeighborConfig `yaml:"neighbors"`
	Networks  []NetworkConfig  `yaml:"networks"`
}

// NeighborConfig represents a BGP neighbor.
type NeighborConfig struct {
	Address        string      `yaml:"address"`
	RemoteAS       ASN         `yaml:"remote_as"`
	Kind           SessionKind `yaml:"kind"`
	Description    string      `yaml:"description"`
	UpdateSource   string      `yaml:"update_source,omitempty"`
	NextHopSelf    bool        `yaml:"next_hop_self,omitempty"`
	SendCommunity  bool        `yaml:"send_community,omitempty"`
	ImportRouteMap string      `yaml:"import_route_map,omitempty"`
	ExportRouteMap string      `yaml:"export_route_map,omitempty"`
}

// NetworkConfig is a prefix originated into BGP.
type NetworkConfig struct {
	Prefix   string `yaml:"prefix"`
	RouteMap string `yaml:"route_map,omitempty"`
}

// BuildRouterConfigs assembles one record per router in topology order. igp
// is indexed by router index. catalog is nil when policies are disabled, in
// which case no record carries a policy clause.
func BuildRouterConfigs(topo *Topology, addrs *AddressPlan, igp []IGPConfig, sessions []*BGPSession, catalog *PolicyCatalog) ([]RouterConfig, error) {
	routers := topo.Routers()
	if len(igp) != len(routers) {
		return nil, fmt.Errorf("IGP plan covers %d of %d routers", len(igp), len(routers))
	}

	byRouter := make([][]*BGPSession, len(routers))
	for _, s := range sessions {
		byRouter[s.A.Router.index] = append(byRouter[s.A.Router.index], s)
		byRouter[s.B.Router.index] = append(byRouter[s.B.Router.index], s)
	}

	out := make([]RouterConfig, 0, len(routers))
	for _, r := range routers {
		rc, err := buildRouterConfig(r, addrs, igp[r.index], byRouter[r.index], catalog.AS(r.AS.ASN))
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

func buildRouterConfig(r *Router, addrs *AddressPlan, igp IGPConfig, sessions []*BGPSession, policies *ASPolicies) (RouterConfig, error) {
	lo := addrs.Loopback(r)
	rc := RouterConfig{
		Hostname: r.ID,
		ASN:      r.AS.ASN,
		RouterID: addrs.RouterID(r).String(),
		IGP:      igp,
	}

	rc.Interfaces = append(rc.Interfaces, InterfaceConfig{
		Name:    LoopbackInterface,
		Address: lo.String(),
	})
	for _, e := range r.Interfaces {
		peer := e.Link.Peer(e)
		rc.Interfaces = append(rc.Interfaces, InterfaceConfig{
			Name:        e.Interface,
			Address:     addrs.Address(e).String(),
			LinkLocal:   addrs.LinkLocal(e).String(),
			Description: fmt.Sprintf("to %s %s (%s)", peer.Router.ID, peer.Interface, peer.Router.AS.ASN.Label()),
		})
	}

	rc.BGP = BGPConfig{ASN: r.AS.ASN, RouterID: rc.RouterID}
	network := NetworkConfig{Prefix: lo.String()}
	referenced := make(map[string]bool)
	if policies != nil {
		network.RouteMap = RouteMapSetLocal
		referenced[RouteMapSetLocal] = true
	}
	rc.BGP.Networks = []NetworkConfig{network}

	for _, s := range sessions {
		_, remote, ok := s.Sides(r)
		if !ok {
			return RouterConfig{}, fmt.Errorf("session %s does not involve router %s", s, r)
		}
		n := NeighborConfig{
			Address:  remote.Address.String(),
			RemoteAS: remote.ASN,
			Kind:     s.Kind,
		}
		switch s.Kind {
		case IBGP:
			n.Description = remote.Router.ID
			n.UpdateSource = LoopbackInterface
			n.NextHopSelf = true
		case EBGP:
			n.Description = fmt.Sprintf("%s %s", remote.Router.ID, remote.ASN.Label())
		}
		if policies != nil {
			n.SendCommunity = true
		}
		if s.Policy != nil && policies != nil {
			p := s.Policy.For(s, r)
			n.ImportRouteMap = p.Import.RouteMap
			n.ExportRouteMap = p.Export.RouteMap
			referenced[n.ImportRouteMap] = true
			referenced[n.ExportRouteMap] = true
		}
		rc.BGP.Neighbors = append(rc.BGP.Neighbors, n)
	}

	if policies == nil {
		return rc, nil
	}
	lists := make(map[string]bool)
	for _, name := range slices.Sorted(maps.Keys(referenced)) {
		rm, ok := policies.RouteMaps[name]
		if !ok {
			return RouterConfig{}, &PolicyConfigurationError{Subject: "router " + r.String(), Reason: "undefined route-map " + name}
		}
		rc.RouteMaps = append(rc.RouteMaps, rm)
		for _, e := range rm.Entries {
			if e.MatchCommunityList != "" {
				lists[e.MatchCommunityList] = true
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(lists)) {
		cl, ok := policies.CommunityLists[name]
		if !ok {
			return RouterConfig{}, &PolicyConfigurationError{Subject: "router " + r.String(), Reason: "undefined community-list " + name}
		}
		rc.CommunityLists = append(rc.CommunityLists, cl)
	}
	return rc, nil
}
