package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Intent is the declarative input document.
type Intent struct {
	Addressing AddressingIntent `yaml:"addressing" json:"addressing"`
	Policies   *PolicyIntent    `yaml:"policies,omitempty" json:"policies,omitempty"`
	ASes       []ASIntent       `yaml:"autonomous_systems" json:"autonomous_systems"`
	Links      []LinkIntent     `yaml:"links,omitempty" json:"links,omitempty"`
}

// AddressingIntent describes the IPv6 blocks addresses are drawn from.
type AddressingIntent struct {
	BaseBlock     string `yaml:"base_block,omitempty" json:"base_block,omitempty"`
	SubnetSize    int    `yaml:"subnet_size,omitempty" json:"subnet_size,omitempty"`
	LoopbackBlock string `yaml:"loopback_block,omitempty" json:"loopback_block,omitempty"`
}

// PolicyIntent toggles and parameterizes policy synthesis.
type PolicyIntent struct {
	Enabled             bool             `yaml:"enabled" json:"enabled"`
	DefaultRelationship string           `yaml:"default_relationship,omitempty" json:"default_relationship,omitempty"`
	LocalPreference     *LocalPrefIntent `yaml:"local_preference,omitempty" json:"local_preference,omitempty"`
}

// LocalPrefIntent holds local-preference values per business relationship.
type LocalPrefIntent struct {
	Customer *uint32 `yaml:"customer,omitempty" json:"customer,omitempty"`
	Peer     *uint32 `yaml:"peer,omitempty" json:"peer,omitempty"`
	Provider *uint32 `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// ASIntent declares one autonomous system and its routers.
type ASIntent struct {
	ASN             uint32           `yaml:"asn" json:"asn"`
	IGP             string           `yaml:"igp" json:"igp"`
	OSPF            *OSPFIntent      `yaml:"ospf,omitempty" json:"ospf,omitempty"`
	RIP             *RIPIntent       `yaml:"rip,omitempty" json:"rip,omitempty"`
	LocalPreference *LocalPrefIntent `yaml:"local_preference,omitempty" json:"local_preference,omitempty"`
	Routers         []RouterIntent   `yaml:"routers" json:"routers"`
}

type OSPFIntent struct {
	ProcessID uint32 `yaml:"process_id,omitempty" json:"process_id,omitempty"`
	Area      uint32 `yaml:"area,omitempty" json:"area,omitempty"`
}

type RIPIntent struct {
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Update   int    `yaml:"update,omitempty" json:"update,omitempty"`
	Timeout  int    `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Holddown int    `yaml:"holddown,omitempty" json:"holddown,omitempty"`
	Garbage  int    `yaml:"garbage,omitempty" json:"garbage,omitempty"`
}

type RouterIntent struct {
	ID       string `yaml:"id" json:"id"`
	Loopback string `yaml:"loopback,omitempty" json:"loopback,omitempty"`
	RouterID string `yaml:"router_id,omitempty" json:"router_id,omitempty"`
}

// LinkIntent connects two router interfaces.
type LinkIntent struct {
	A      EndpointIntent `yaml:"a" json:"a"`
	B      EndpointIntent `yaml:"b" json:"b"`
	Prefix string         `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// EndpointIntent is one side of a link. Relationship is what the router on
// the other side is to this one.
type EndpointIntent struct {
	Router       string `yaml:"router" json:"router"`
	ASN          uint32 `yaml:"asn,omitempty" json:"asn,omitempty"`
	Interface    string `yaml:"interface" json:"interface"`
	Address      string `yaml:"address,omitempty" json:"address,omitempty"`
	Relationship string `yaml:"relationship,omitempty" json:"relationship,omitempty"`
}

// IntentFormat identifies the encoding of an intent file.
type IntentFormat int

const (
	FormatYAML IntentFormat = iota
	FormatJSON
)

// FormatOf returns the intent format implied by a file name.
func FormatOf(path string) IntentFormat {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// LoadIntent reads an intent document from a YAML or JSON file.
func LoadIntent(path string) (*Intent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeIntent(data)
}

// DecodeIntent parses an intent document. JSON is accepted as YAML; unknown
// fields are rejected.
func DecodeIntent(data []byte) (*Intent, error) {
	var in Intent
	if err := yaml.UnmarshalWithOptions(data, &in, yaml.Strict()); err != nil {
		return nil, &MalformedIntentError{Reason: err.Error()}
	}
	return &in, nil
}

// EncodeIntent serializes an intent document in the given format.
func EncodeIntent(in *Intent, format IntentFormat) ([]byte, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(in, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return yaml.MarshalWithOptions(in, yaml.IndentSequence(true))
}

// FilledPath returns the default location of the filled intent for path:
// intent.json -> intent_filled.json.
func FilledPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_filled" + ext
}

// Clone returns a copy of the document whose ASes, routers and links can be
// modified without touching the original.
func (in *Intent) Clone() *Intent {
	out := *in
	out.ASes = make([]ASIntent, len(in.ASes))
	for i, as := range in.ASes {
		as.Routers = append([]RouterIntent(nil), as.Routers...)
		out.ASes[i] = as
	}
	out.Links = append([]LinkIntent(nil), in.Links...)
	return &out
}
