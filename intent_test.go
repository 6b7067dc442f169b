package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleIntentJSON = `{
  "addressing": {"base_block": "2001:db8::/48"},
  "policies": {"enabled": true, "default_relationship": "peer", "local_preference": {"customer": 250}},
  "autonomous_systems": [
    {"asn": 101, "igp": "RIP", "routers": [{"id": "R1"}, {"id": "R2", "loopback": "2001:db8:ffff::2"}]},
    {"asn": 102, "igp": "OSPF", "ospf": {"process_id": 10}, "routers": [{"id": "R3"}]}
  ],
  "links": [
    {"a": {"router": "R1", "interface": "GigabitEthernet1/0"}, "b": {"router": "R2", "interface": "GigabitEthernet1/0"}},
    {"a": {"router": "R2", "asn": 101, "interface": "GigabitEthernet2/0", "relationship": "provider"},
     "b": {"router": "R3", "interface": "GigabitEthernet1/0"}, "prefix": "2001:db8:99::/64"}
  ]
}`

func TestDecodeIntentJSON(t *testing.T) {
	in, err := DecodeIntent([]byte(sampleIntentJSON))
	require.NoError(t, err)

	assert.Equal(t, "2001:db8::/48", in.Addressing.BaseBlock)
	require.NotNil(t, in.Policies)
	assert.True(t, in.Policies.Enabled)
	assert.Equal(t, uint32(250), *in.Policies.LocalPreference.Customer)
	assert.Nil(t, in.Policies.LocalPreference.Peer)
	require.Len(t, in.ASes, 2)
	assert.Equal(t, uint32(10), in.ASes[1].OSPF.ProcessID)
	assert.Equal(t, "2001:db8:ffff::2", in.ASes[0].Routers[1].Loopback)
	assert.Equal(t, uint32(101), in.Links[1].A.ASN)
	assert.Equal(t, "provider", in.Links[1].A.Relationship)
	assert.Equal(t, "2001:db8:99::/64", in.Links[1].Prefix)

	// The same document through encoding/json.
	var viaJSON Intent
	require.NoError(t, json.Unmarshal([]byte(sampleIntentJSON), &viaJSON))
	if diff := cmp.Diff(&viaJSON, in); diff != "" {
		t.Errorf("YAML and JSON decoding differ (-json +yaml):\n%s", diff)
	}
}

func TestDecodeIntentRejectsUnknownFields(t *testing.T) {
	_, err := DecodeIntent([]byte("autonomous_systems: []\nrouters: []\n"))
	var mErr *MalformedIntentError
	require.ErrorAs(t, err, &mErr)

	_, err = DecodeIntent([]byte("addressing: [\n"))
	require.ErrorAs(t, err, &mErr)
}

func TestEncodeIntentRoundTrip(t *testing.T) {
	in, err := DecodeIntent([]byte(sampleIntentJSON))
	require.NoError(t, err)

	for _, format := range []IntentFormat{FormatYAML, FormatJSON} {
		data, err := EncodeIntent(in, format)
		require.NoError(t, err)
		out, err := DecodeIntent(data)
		require.NoError(t, err)
		if diff := cmp.Diff(in, out); diff != "" {
			t.Errorf("format %d: round trip mismatch (-want +got):\n%s", format, diff)
		}
	}

	data, err := EncodeIntent(in, FormatJSON)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestLoadIntent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intent.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleIntentJSON), 0644))

	in, err := LoadIntent(path)
	require.NoError(t, err)
	assert.Len(t, in.Links, 2)

	_, err = LoadIntent(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFormatOfAndFilledPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatOf("net/intent.JSON"))
	assert.Equal(t, FormatYAML, FormatOf("intent.yaml"))
	assert.Equal(t, FormatYAML, FormatOf("intent"))

	assert.Equal(t, "net/intent_filled.json", FilledPath("net/intent.json"))
	assert.Equal(t, "intent_filled.yml", FilledPath("intent.yml"))
	assert.Equal(t, "intent_filled", FilledPath("intent"))
}

func TestIntentClone(t *testing.T) {
	in, err := DecodeIntent([]byte(sampleIntentJSON))
	require.NoError(t, err)

	out := in.Clone()
	out.ASes[0].Routers[0].Loopback = "2001:db8::1"
	out.Links[0].A.Address = "2001:db8::1/64"

	assert.Empty(t, in.ASes[0].Routers[0].Loopback)
	assert.Empty(t, in.Links[0].A.Address)
}
