package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/goccy/go-yaml"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Templates holds router configuration templates. Router is the main
// template; the IGP entry matching the router's IGP kind supplies the
// "igp" and "igp-interface" definitions it calls.
type Templates struct {
	Router string `yaml:"router"`
	RIP    string `yaml:"rip"`
	OSPF   string `yaml:"ospf"`
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(defaultTemplates, &t); err != nil {
		return nil, fmt.Errorf("failed to parse built-in templates: %w", err)
	}
	return &t, nil
}

// LoadTemplates loads templates from a YAML file. Entries missing from the
// file fall back to the built-in ones.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t Templates
	if err := yaml.UnmarshalWithOptions(data, &t, yaml.Strict()); err != nil {
		return nil, err
	}

	def, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	if t.Router == "" {
		t.Router = def.Router
	}
	if t.RIP == "" {
		t.RIP = def.RIP
	}
	if t.OSPF == "" {
		t.OSPF = def.OSPF
	}
	return &t, nil
}

var templateFuncs = template.FuncMap{
	"join": joinCommunities,
}

func joinCommunities(cs []Community) string {
	s := make([]string, len(cs))
	for i, c := range cs {
		s[i] = c.String()
	}
	return strings.Join(s, " ")
}

// Render renders the configuration text of one router.
func (t *Templates) Render(cfg RouterConfig) (string, error) {
	var igp string
	switch cfg.IGP.Kind {
	case IGPRIP:
		igp = t.RIP
	case IGPOSPF:
		igp = t.OSPF
	default:
		return "", fmt.Errorf("no template for IGP %q", cfg.IGP.Kind)
	}

	tmpl, err := template.New("router").Funcs(templateFuncs).Parse(t.Router)
	if err != nil {
		return "", err
	}
	if _, err := tmpl.New(strings.ToLower(string(cfg.IGP.Kind))).Parse(igp); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "router", cfg); err != nil {
		return "", err
	}

	return buf.String(), nil
}
