// Package schema declares the allowed node labels and edge types and
// validates property maps against them. Definitions are loaded once at
// process start from a YAML document; validation is pure and a loaded
// Registry is immutable and safe for concurrent use.
package schema

import (
	"fmt"
	"slices"
)

// PropType is the semantic type of a property value.
type PropType string

const (
	TypeString PropType = "string"
	TypeInt    PropType = "int"
	TypeFloat  PropType = "float"
	TypeBool   PropType = "bool"
	TypeTime   PropType = "time"
	TypeEnum   PropType = "enum"
)

func validPropType(t PropType) bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeTime, TypeEnum:
		return true
	}
	return false
}

// PropertySpec describes one property of a node label or edge type.
type PropertySpec struct {
	Name     string   `yaml:"name"`
	Type     PropType `yaml:"type"`
	Required bool     `yaml:"required"`
	Values   []string `yaml:"values,omitempty"` // enum members, TypeEnum only
}

// NodeSchema describes one registered node label.
type NodeSchema struct {
	Label      string         `yaml:"label"`
	Properties []PropertySpec `yaml:"properties"`
}

// EdgeSchema describes one registered edge type, including the permitted
// endpoint label sets.
type EdgeSchema struct {
	Type       string         `yaml:"type"`
	FromLabels []string       `yaml:"from_labels"`
	ToLabels   []string       `yaml:"to_labels"`
	Properties []PropertySpec `yaml:"properties"`
}

// AllowsEndpoints reports whether the (source, target) label pair is within
// the registered from_labels x to_labels permission.
func (e *EdgeSchema) AllowsEndpoints(sourceLabel, targetLabel string) bool {
	return slices.Contains(e.FromLabels, sourceLabel) && slices.Contains(e.ToLabels, targetLabel)
}

// Document is the YAML shape of a registry file.
type Document struct {
	StrictProperties bool         `yaml:"strict_properties"`
	Nodes            []NodeSchema `yaml:"nodes"`
	Edges            []EdgeSchema `yaml:"edges"`
}

// validate checks the registry document itself, not client input.
func (d *Document) validate() error {
	if len(d.Nodes) == 0 {
		return fmt.Errorf("registry declares no node labels")
	}
	labels := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.Label == "" {
			return fmt.Errorf("node schema with empty label")
		}
		if labels[n.Label] {
			return fmt.Errorf("duplicate node label %q", n.Label)
		}
		labels[n.Label] = true
		if err := validateSpecs(n.Label, n.Properties); err != nil {
			return err
		}
	}
	types := make(map[string]bool, len(d.Edges))
	for _, e := range d.Edges {
		if e.Type == "" {
			return fmt.Errorf("edge schema with empty type")
		}
		if types[e.Type] {
			return fmt.Errorf("duplicate edge type %q", e.Type)
		}
		types[e.Type] = true
		if len(e.FromLabels) == 0 || len(e.ToLabels) == 0 {
			return fmt.Errorf("edge type %q must declare from_labels and to_labels", e.Type)
		}
		for _, l := range e.FromLabels {
			if !labels[l] {
				return fmt.Errorf("edge type %q: unknown from label %q", e.Type, l)
			}
		}
		for _, l := range e.ToLabels {
			if !labels[l] {
				return fmt.Errorf("edge type %q: unknown to label %q", e.Type, l)
			}
		}
		if err := validateSpecs(e.Type, e.Properties); err != nil {
			return err
		}
	}
	return nil
}

func validateSpecs(owner string, specs []PropertySpec) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return fmt.Errorf("%s: property with empty name", owner)
		}
		if seen[s.Name] {
			return fmt.Errorf("%s: duplicate property %q", owner, s.Name)
		}
		seen[s.Name] = true
		if !validPropType(s.Type) {
			return fmt.Errorf("%s.%s: unknown property type %q", owner, s.Name, s.Type)
		}
		if s.Type == TypeEnum && len(s.Values) == 0 {
			return fmt.Errorf("%s.%s: enum property declares no values", owner, s.Name)
		}
		if s.Type != TypeEnum && len(s.Values) > 0 {
			return fmt.Errorf("%s.%s: values only apply to enum properties", owner, s.Name)
		}
	}
	return nil
}
