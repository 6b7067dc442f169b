package main

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, in *Intent, mode PolicyMode) *Plan {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	plan, err := NewCompiler(logger, mode).Compile(in)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "intent compiled")
	return plan
}

func TestParsePolicyMode(t *testing.T) {
	for s, want := range map[string]PolicyMode{"": PolicyFromIntent, "intent": PolicyFromIntent, "on": PolicyOn, "off": PolicyOff} {
		got, err := ParsePolicyMode(s)
		require.NoError(t, err)
		assert.Equal(t, want, got, s)
	}
	_, err := ParsePolicyMode("maybe")
	assert.Error(t, err)
}

func TestCompileRouterConfig(t *testing.T) {
	plan := compile(t, testIntent(t), PolicyOn)
	require.Len(t, plan.Routers, 5)

	r10 := routerConfig(t, plan, "R10")
	assert.Equal(t, ASN(101), r10.ASN)
	assert.Equal(t, "10.255.0.3", r10.RouterID)
	assert.Equal(t, []InterfaceConfig{
		{Name: "Loopback0", Address: "2001:db8::3/128"},
		{
			Name:        "GigabitEthernet1/0",
			Address:     "2001:db8:0:2::2/64",
			LinkLocal:   "fe80::ff:fe00:101",
			Description: "to R2 GigabitEthernet2/0 (AS101)",
		},
		{
			Name:        "GigabitEthernet2/0",
			Address:     "2001:db8:0:3::1/64",
			LinkLocal:   "fe80::ff:fe00:200",
			Description: "to R3 GigabitEthernet1/0 (AS102)",
		},
	}, r10.Interfaces)

	want := BGPConfig{
		ASN:      101,
		RouterID: "10.255.0.3",
		Neighbors: []NeighborConfig{
			{Address: "2001:db8::1", RemoteAS: 101, Kind: IBGP, Description: "R1", UpdateSource: "Loopback0", NextHopSelf: true, SendCommunity: true},
			{Address: "2001:db8::2", RemoteAS: 101, Kind: IBGP, Description: "R2", UpdateSource: "Loopback0", NextHopSelf: true, SendCommunity: true},
			{
				Address:        "2001:db8:0:3::2",
				RemoteAS:       102,
				Kind:           EBGP,
				Description:    "R3 AS102",
				SendCommunity:  true,
				ImportRouteMap: "RM-IN-AS102-CUSTOMER",
				ExportRouteMap: "RM-OUT-TO-CUSTOMER",
			},
		},
		Networks: []NetworkConfig{{Prefix: "2001:db8::3/128", RouteMap: "RM-SET-LOCAL"}},
	}
	if diff := cmp.Diff(want, r10.BGP); diff != "" {
		t.Errorf("BGP config mismatch (-want +got):\n%s", diff)
	}

	var names []string
	for _, rm := range r10.RouteMaps {
		names = append(names, rm.Name)
	}
	assert.Equal(t, []string{"RM-IN-AS102-CUSTOMER", "RM-OUT-TO-CUSTOMER", "RM-SET-LOCAL"}, names)
	assert.Empty(t, r10.CommunityLists)

	r3 := routerConfig(t, plan, "R3")
	require.Len(t, r3.CommunityLists, 1)
	assert.Equal(t, CommunityListCustOrLocal, r3.CommunityLists[0].Name)

	r1 := routerConfig(t, plan, "R1")
	require.Len(t, r1.RouteMaps, 1)
	assert.Equal(t, RouteMapSetLocal, r1.RouteMaps[0].Name)
}

func TestCompilePolicyToggle(t *testing.T) {
	templates := testTemplates(t)

	t.Run("off", func(t *testing.T) {
		in := testIntent(t)
		in.Policies = &PolicyIntent{Enabled: true}
		plan := compile(t, in, PolicyOff)

		assert.Nil(t, plan.Policies)
		for _, s := range plan.Sessions {
			assert.Nil(t, s.Policy, s.String())
		}
		for _, rc := range plan.Routers {
			assert.Empty(t, rc.RouteMaps)
			assert.Empty(t, rc.CommunityLists)
			text, err := templates.Render(rc)
			require.NoError(t, err)
			assert.NotContains(t, text, "route-map")
			assert.NotContains(t, text, "community")
		}
	})

	t.Run("from intent", func(t *testing.T) {
		plan := compile(t, testIntent(t), PolicyFromIntent)
		assert.Nil(t, plan.Policies)

		in := testIntent(t)
		in.Policies = &PolicyIntent{Enabled: true}
		plan = compile(t, in, PolicyFromIntent)
		assert.NotNil(t, plan.Policies)
	})

	t.Run("on", func(t *testing.T) {
		first := compile(t, testIntent(t), PolicyOn)
		second := compile(t, testIntent(t), PolicyOn)

		n := 0
		for i, s := range first.Sessions {
			if s.Kind == EBGP {
				n++
				require.NotNil(t, s.Policy, s.String())
				assert.Equal(t, *s.Policy, *second.Sessions[i].Policy)
			}
		}
		assert.Equal(t, 1, n)
	})
}

func TestCompileDeterministic(t *testing.T) {
	templates := testTemplates(t)
	first := compile(t, testIntent(t), PolicyOn)
	second := compile(t, testIntent(t), PolicyOn)

	if diff := cmp.Diff(first.Routers, second.Routers); diff != "" {
		t.Errorf("router configs differ between runs (-first +second):\n%s", diff)
	}
	for i := range first.Routers {
		a, err := templates.Render(first.Routers[i])
		require.NoError(t, err)
		b, err := templates.Render(second.Routers[i])
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}

	for _, format := range []IntentFormat{FormatYAML, FormatJSON} {
		a, err := EncodeIntent(first.Filled, format)
		require.NoError(t, err)
		b, err := EncodeIntent(second.Filled, format)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	}
}

func TestCompileFill(t *testing.T) {
	in := testIntent(t)
	in.Links[2].A.Address = "2001:db8:aa::5/64"
	plan := compile(t, in, PolicyOff)
	filled := plan.Filled

	assert.Equal(t, 64, filled.Addressing.SubnetSize)
	assert.Equal(t, "2001:db8::/64", filled.Addressing.LoopbackBlock)

	// Routers keep their declared order; R10 was declared first.
	assert.Equal(t, RouterIntent{ID: "R10", Loopback: "2001:db8::3/128", RouterID: "10.255.0.3"}, filled.ASes[0].Routers[0])

	assert.Equal(t, "2001:db8:0:1::/64", filled.Links[0].Prefix)
	assert.Equal(t, "2001:db8:0:1::1/64", filled.Links[0].A.Address)
	assert.Equal(t, "2001:db8:0:1::2/64", filled.Links[0].B.Address)
	assert.Equal(t, "2001:db8:aa::/64", filled.Links[2].Prefix)
	assert.Equal(t, "2001:db8:aa::5/64", filled.Links[2].A.Address)
	assert.Equal(t, "2001:db8:aa::1/64", filled.Links[2].B.Address)

	// The input is left untouched.
	assert.Empty(t, in.Links[0].Prefix)
	assert.Empty(t, in.ASes[0].Routers[0].Loopback)
}

func TestCompileRefillIdempotent(t *testing.T) {
	first := compile(t, testIntent(t), PolicyOn)
	second := compile(t, first.Filled, PolicyOn)

	if diff := cmp.Diff(first.Filled, second.Filled); diff != "" {
		t.Errorf("refilling changed the intent (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Routers, second.Routers); diff != "" {
		t.Errorf("refilling changed router configs (-first +second):\n%s", diff)
	}
}

func TestCompileSingleRouterAS(t *testing.T) {
	in := testIntent(t)
	in.ASes = append(in.ASes, ASIntent{ASN: 103, IGP: "RIP", Routers: []RouterIntent{{ID: "R5"}}})
	in.Links = append(in.Links, LinkIntent{
		A: EndpointIntent{Router: "R5", Interface: "GigabitEthernet1/0", Relationship: "peer"},
		B: EndpointIntent{Router: "R4", Interface: "GigabitEthernet2/0"},
	})
	plan := compile(t, in, PolicyOn)

	r5 := routerConfig(t, plan, "R5")
	require.Len(t, r5.BGP.Neighbors, 1)
	assert.Equal(t, EBGP, r5.BGP.Neighbors[0].Kind)
	assert.Equal(t, "RM-IN-AS102-PEER", r5.BGP.Neighbors[0].ImportRouteMap)
	assert.Equal(t, []IGPInterface{{Name: "Loopback0", Passive: true}}, r5.IGP.Interfaces)
}

func TestCompileErrors(t *testing.T) {
	exhausted := testIntent(t)
	exhausted.Addressing.BaseBlock = "2001:db8::/120"

	malformedIntent := testIntent(t)
	malformedIntent.Links[0].A.Router = "R99"

	conflicting := testIntent(t)
	conflicting.Links[0].Prefix = "2001:db8:5::/64"
	conflicting.Links[1].Prefix = "2001:db8:5::/64"

	badPolicy := testIntent(t)
	badPolicy.Policies = &PolicyIntent{Enabled: true}
	badPolicy.Links[2].B.Relationship = "customer"

	c := NewCompiler(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), PolicyFromIntent)

	_, err := c.Compile(exhausted)
	var eErr *AddressSpaceExhaustedError
	assert.True(t, errors.As(err, &eErr), "got %v", err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to allocate addresses: "))

	_, err = c.Compile(malformedIntent)
	var mErr *MalformedIntentError
	assert.ErrorAs(t, err, &mErr)

	_, err = c.Compile(conflicting)
	var cErr *AddressConflictError
	assert.ErrorAs(t, err, &cErr)

	_, err = c.Compile(badPolicy)
	var pErr *PolicyConfigurationError
	assert.ErrorAs(t, err, &pErr)

	// The same inconsistency is ignored with policies off.
	_, err = NewCompiler(nil, PolicyOff).Compile(badPolicy)
	assert.NoError(t, err)
}
