package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

// Relationship is the business role of a neighbor AS.
type Relationship string

const (
	Customer Relationship = "customer"
	Peer     Relationship = "peer"
	Provider Relationship = "provider"
)

// ParseRelationship validates a relationship name.
func ParseRelationship(s string) (Relationship, error) {
	switch r := Relationship(s); r {
	case Customer, Peer, Provider:
		return r, nil
	}
	return "", fmt.Errorf("unknown relationship %q, choose customer, peer or provider", s)
}

// Inverse returns the relationship seen from the other side of a link.
func (r Relationship) Inverse() Relationship {
	switch r {
	case Customer:
		return Provider
	case Provider:
		return Customer
	}
	return r
}

// Community tags, the low half of ASN:tag.
const (
	TagCustomer uint32 = 10
	TagProvider uint32 = 20
	TagPeer     uint32 = 30
	TagLocal    uint32 = 40
)

// Tag returns the community tag marking routes learned over r.
func (r Relationship) Tag() uint32 {
	switch r {
	case Customer:
		return TagCustomer
	case Provider:
		return TagProvider
	}
	return TagPeer
}

const (
	DefaultLocalPrefCustomer uint32 = 200
	DefaultLocalPrefPeer     uint32 = 150
	DefaultLocalPrefProvider uint32 = 100
)

const (
	RouteMapSetLocal         = "RM-SET-LOCAL"
	CommunityListCustOrLocal = "CL-CUST-OR-LOCAL"
)

func importRouteMapName(peer ASN, rel Relationship) string {
	return fmt.Sprintf("RM-IN-AS%d-%s", uint32(peer), strings.ToUpper(string(rel)))
}

func exportRouteMapName(rel Relationship) string {
	return "RM-OUT-TO-" + strings.ToUpper(string(rel))
}

// Community is a BGP community in ASN:tag form. When the ASN or the tag does
// not fit 16 bits, or the pair falls in the reserved 65535:x range, it is
// carried as a large community ASN:tag:0 (RFC 8092).
type Community struct {
	ASN ASN
	Tag uint32
}

// Large reports whether c has to be sent as a large community.
func (c Community) Large() bool {
	return !c.ASN.Is16Bit() || c.Tag > 0xffff || c.ASN == ASNMax16
}

func (c Community) standard() uint32 {
	return uint32(c.ASN)<<16 | c.Tag&0xffff
}

func (c Community) String() string {
	if c.Large() {
		return bgp.NewLargeCommunity(uint32(c.ASN), c.Tag, 0).String()
	}
	v := c.standard()
	return fmt.Sprintf("%d:%d", v>>16, v&0xffff)
}

func (c Community) MarshalYAML() (any, error) {
	return c.String(), nil
}

// Direction is the side of a BGP session a route-map applies to.
type Direction string

const (
	Import Direction = "in"
	Export Direction = "out"
)

// RouteMapEntry is one sequence of a route-map.
type RouteMapEntry struct {
	Seq                int         `yaml:"seq"`
	Action             string      `yaml:"action"`
	MatchCommunityList string      `yaml:"match_community_list,omitempty"`
	MatchLarge         bool        `yaml:"match_large,omitempty"`
	SetCommunities     []Community `yaml:"set_communities,omitempty"`
	SetLocalPref       uint32      `yaml:"set_local_preference,omitempty"`
}

// StandardCommunities returns the set communities sent as standard ones.
func (e RouteMapEntry) StandardCommunities() []Community {
	var out []Community
	for _, c := range e.SetCommunities {
		if !c.Large() {
			out = append(out, c)
		}
	}
	return out
}

// LargeCommunities returns the set communities sent as large ones.
func (e RouteMapEntry) LargeCommunities() []Community {
	var out []Community
	for _, c := range e.SetCommunities {
		if c.Large() {
			out = append(out, c)
		}
	}
	return out
}

type RouteMap struct {
	Name    string          `yaml:"name"`
	Entries []RouteMapEntry `yaml:"entries"`
}

type CommunityList struct {
	Name    string      `yaml:"name"`
	Members []Community `yaml:"members"`
}

// Large reports whether the list has to be a large-community list.
func (l CommunityList) Large() bool {
	return slices.ContainsFunc(l.Members, Community.Large)
}

// PolicyDirective references a route-map applied in one direction.
type PolicyDirective struct {
	RouteMap  string
	Direction Direction
}

// EndpointPolicy is what one router applies on its side of an eBGP session.
type EndpointPolicy struct {
	Relationship Relationship // what the remote router is to this one
	LocalPref    uint32
	Origin       Community
	Import       PolicyDirective
	Export       PolicyDirective
}

// PolicySet is the policy attached to one eBGP session.
type PolicySet struct {
	A, B EndpointPolicy
}

// For returns the side of the policy applied by r, which must be one end of
// s as reported by s.Sides.
func (p *PolicySet) For(s *BGPSession, r *Router) EndpointPolicy {
	if r == s.B.Router {
		return p.B
	}
	return p.A
}

// ASPolicies holds the route-map and community-list definitions of one AS.
type ASPolicies struct {
	RouteMaps      map[string]RouteMap
	CommunityLists map[string]CommunityList
}

// PolicyCatalog holds the definitions of every AS, keyed by ASN.
type PolicyCatalog struct {
	byASN map[ASN]*ASPolicies
}

func (c *PolicyCatalog) AS(asn ASN) *ASPolicies {
	if c == nil {
		return nil
	}
	return c.byASN[asn]
}

// PolicyConfig controls policy synthesis.
type PolicyConfig struct {
	Enabled             bool
	DefaultRelationship string
	LocalPref           *LocalPrefIntent
}

// NoDefaultRelationship as default_relationship turns off the fallback, so
// every inter-AS link must name a relationship on at least one end.
const NoDefaultRelationship = "none"

// NewPolicyConfig resolves the policies section. Relationships default to peer.
func NewPolicyConfig(in *PolicyIntent) PolicyConfig {
	cfg := PolicyConfig{DefaultRelationship: string(Peer)}
	if in == nil {
		return cfg
	}
	cfg.Enabled = in.Enabled
	cfg.LocalPref = in.LocalPreference
	switch def := strings.ToLower(strings.TrimSpace(in.DefaultRelationship)); def {
	case "":
	case NoDefaultRelationship:
		cfg.DefaultRelationship = ""
	default:
		cfg.DefaultRelationship = def
	}
	return cfg
}

// For returns the configured local-preference for rel, or nil.
func (lp *LocalPrefIntent) For(rel Relationship) *uint32 {
	if lp == nil {
		return nil
	}
	switch rel {
	case Customer:
		return lp.Customer
	case Peer:
		return lp.Peer
	case Provider:
		return lp.Provider
	}
	return nil
}

func (lp *LocalPrefIntent) validate(subject string) error {
	for _, rel := range []Relationship{Customer, Peer, Provider} {
		if v := lp.For(rel); v != nil && *v == 0 {
			return &PolicyConfigurationError{
				Subject: subject,
				Reason:  fmt.Sprintf("local-preference for %s must be positive", rel),
			}
		}
	}
	return nil
}

func (cfg PolicyConfig) localPref(as *AutonomousSystem, rel Relationship) uint32 {
	for _, lp := range []*LocalPrefIntent{as.LocalPref, cfg.LocalPref} {
		if v := lp.For(rel); v != nil {
			return *v
		}
	}
	switch rel {
	case Customer:
		return DefaultLocalPrefCustomer
	case Provider:
		return DefaultLocalPrefProvider
	}
	return DefaultLocalPrefPeer
}

// Synthesize attaches one policy set to every eBGP session and returns the
// route-map and community-list definitions they reference. Policies are
// replaced, never stacked, so running it again yields the same result. When
// cfg is disabled every session is left without policy and the catalog is nil.
func Synthesize(topo *Topology, sessions []*BGPSession, cfg PolicyConfig) (*PolicyCatalog, error) {
	for _, s := range sessions {
		s.Policy = nil
	}
	if !cfg.Enabled {
		return nil, nil
	}

	var def Relationship
	if cfg.DefaultRelationship != "" {
		r, err := ParseRelationship(cfg.DefaultRelationship)
		if err != nil {
			return nil, &PolicyConfigurationError{Subject: "policies.default_relationship", Reason: err.Error()}
		}
		def = r
	}
	if err := cfg.LocalPref.validate("policies.local_preference"); err != nil {
		return nil, err
	}

	cat := &PolicyCatalog{byASN: make(map[ASN]*ASPolicies)}
	for _, as := range topo.ASes {
		if err := as.LocalPref.validate(as.ASN.Label() + " local_preference"); err != nil {
			return nil, err
		}
		cat.byASN[as.ASN] = basePolicies(as.ASN)
	}

	for _, s := range sessions {
		if s.Kind != EBGP {
			continue
		}
		ra, rb, err := sessionRelationships(s, def)
		if err != nil {
			return nil, err
		}
		s.Policy = &PolicySet{
			A: cat.attach(cfg, topo, s.A, s.B, ra),
			B: cat.attach(cfg, topo, s.B, s.A, rb),
		}
	}
	return cat, nil
}

// attach builds the policy local applies towards remote and registers the
// import route-map it references.
func (c *PolicyCatalog) attach(cfg PolicyConfig, topo *Topology, local, remote BGPPeer, rel Relationship) EndpointPolicy {
	as := topo.AS(local.ASN)
	p := EndpointPolicy{
		Relationship: rel,
		LocalPref:    cfg.localPref(as, rel),
		Origin:       Community{ASN: local.ASN, Tag: uint32(remote.ASN)},
		Import:       PolicyDirective{RouteMap: importRouteMapName(remote.ASN, rel), Direction: Import},
		Export:       PolicyDirective{RouteMap: exportRouteMapName(rel), Direction: Export},
	}
	c.byASN[local.ASN].RouteMaps[p.Import.RouteMap] = RouteMap{
		Name: p.Import.RouteMap,
		Entries: []RouteMapEntry{{
			Seq:    10,
			Action: "permit",
			SetCommunities: []Community{
				p.Origin,
				{ASN: local.ASN, Tag: rel.Tag()},
			},
			SetLocalPref: p.LocalPref,
		}},
	}
	return p
}

// basePolicies returns the definitions shared by every router of an AS:
// local origination tagging and valley-free export filters.
func basePolicies(asn ASN) *ASPolicies {
	cl := CommunityList{
		Name: CommunityListCustOrLocal,
		Members: []Community{
			{ASN: asn, Tag: TagCustomer},
			{ASN: asn, Tag: TagLocal},
		},
	}
	onlyCustOrLocal := []RouteMapEntry{
		{Seq: 10, Action: "permit", MatchCommunityList: cl.Name, MatchLarge: cl.Large()},
		{Seq: 100, Action: "deny"},
	}
	p := &ASPolicies{
		RouteMaps: map[string]RouteMap{
			RouteMapSetLocal: {
				Name: RouteMapSetLocal,
				Entries: []RouteMapEntry{{
					Seq:            10,
					Action:         "permit",
					SetCommunities: []Community{{ASN: asn, Tag: TagLocal}},
				}},
			},
			exportRouteMapName(Customer): {
				Name:    exportRouteMapName(Customer),
				Entries: []RouteMapEntry{{Seq: 10, Action: "permit"}},
			},
			exportRouteMapName(Peer): {
				Name:    exportRouteMapName(Peer),
				Entries: onlyCustOrLocal,
			},
			exportRouteMapName(Provider): {
				Name:    exportRouteMapName(Provider),
				Entries: onlyCustOrLocal,
			},
		},
		CommunityLists: map[string]CommunityList{cl.Name: cl},
	}
	return p
}

// sessionRelationships resolves what each side of an eBGP session is to the
// other. A missing side is inferred from the given one, then from def.
func sessionRelationships(s *BGPSession, def Relationship) (a, b Relationship, err error) {
	parse := func(e *Endpoint) (Relationship, error) {
		if e.Relationship == "" {
			return "", nil
		}
		r, err := ParseRelationship(e.Relationship)
		if err != nil {
			return "", &PolicyConfigurationError{Subject: "interface " + e.String(), Reason: err.Error()}
		}
		return r, nil
	}
	if a, err = parse(s.A.Endpoint); err != nil {
		return "", "", err
	}
	if b, err = parse(s.B.Endpoint); err != nil {
		return "", "", err
	}

	switch {
	case a == "" && b == "":
		if def == "" {
			return "", "", &PolicyConfigurationError{
				Subject: s.A.Endpoint.Link.String(),
				Reason:  "no relationship set and no default relationship configured",
			}
		}
		a, b = def, def.Inverse()
	case a == "":
		a = b.Inverse()
	case b == "":
		b = a.Inverse()
	case b != a.Inverse():
		return "", "", &PolicyConfigurationError{
			Subject: s.A.Endpoint.Link.String(),
			Reason:  fmt.Sprintf("inconsistent relationships %s/%s, expected peer/peer or customer/provider", a, b),
		}
	}
	return a, b, nil
}
