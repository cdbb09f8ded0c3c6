package schema

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chronograph-db/chronograph/internal/chrono/core"
)

// MaxRegistryFileSize caps registry documents read from disk.
const MaxRegistryFileSize = 1 << 20

//go:embed default_schema.yaml
var defaultSchemaYAML []byte

// Registry holds the loaded schema definitions. Immutable after load.
type Registry struct {
	strict bool
	nodes  map[string]*NodeSchema
	edges  map[string]*EdgeSchema
}

// Load reads and parses a registry document from disk.
func Load(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema registry: %w", err)
	}
	if info.Size() > MaxRegistryFileSize {
		return nil, fmt.Errorf("schema registry %s exceeds %d bytes", path, MaxRegistryFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema registry: %w", err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing schema registry %s: %w", path, err)
	}
	return reg, nil
}

// Parse builds a Registry from a YAML document.
func Parse(data []byte) (*Registry, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling registry document: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	reg := &Registry{
		strict: doc.StrictProperties,
		nodes:  make(map[string]*NodeSchema, len(doc.Nodes)),
		edges:  make(map[string]*EdgeSchema, len(doc.Edges)),
	}
	for i := range doc.Nodes {
		n := doc.Nodes[i]
		reg.nodes[n.Label] = &n
	}
	for i := range doc.Edges {
		e := doc.Edges[i]
		reg.edges[e.Type] = &e
	}
	return reg, nil
}

// MustParse is Parse for known-good documents; it panics on error.
func MustParse(data []byte) *Registry {
	reg, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return reg
}

// Default returns the embedded registry shipped with the binary.
func Default() *Registry {
	return MustParse(defaultSchemaYAML)
}

// Strict reports whether unknown properties are rejected rather than dropped.
func (r *Registry) Strict() bool { return r.strict }

// NodeLabels returns the registered node labels, unordered.
func (r *Registry) NodeLabels() []string {
	out := make([]string, 0, len(r.nodes))
	for l := range r.nodes {
		out = append(out, l)
	}
	return out
}

// EdgeTypes returns the registered edge types, unordered.
func (r *Registry) EdgeTypes() []string {
	out := make([]string, 0, len(r.edges))
	for t := range r.edges {
		out = append(out, t)
	}
	return out
}

// ValidateNode checks a property map against the label's schema. Returns nil
// or a *core.SchemaError.
func (r *Registry) ValidateNode(label string, props core.Properties) error {
	ns, ok := r.nodes[label]
	if !ok {
		return &core.SchemaError{Kind: core.ErrKindUnknownLabel, Label: label, Detail: "node label not registered"}
	}
	return r.checkProps(label, ns.Properties, props)
}

// ValidateEdge checks endpoint labels and a property map against the edge
// type's schema. Returns nil or a *core.SchemaError.
func (r *Registry) ValidateEdge(edgeType, sourceLabel, targetLabel string, props core.Properties) error {
	es, ok := r.edges[edgeType]
	if !ok {
		return &core.SchemaError{Kind: core.ErrKindUnknownLabel, Label: edgeType, Detail: "edge type not registered"}
	}
	if !es.AllowsEndpoints(sourceLabel, targetLabel) {
		return &core.SchemaError{
			Kind:   core.ErrKindDisallowedEndpointPair,
			Label:  edgeType,
			Detail: fmt.Sprintf("%s -> %s not permitted", sourceLabel, targetLabel),
		}
	}
	return r.checkProps(edgeType, es.Properties, props)
}

// NormalizeNode validates and returns the canonical property map that gets
// committed: unknown properties are dropped in lax mode, values are coerced
// to their canonical forms (int64 for ints, float64 for floats, RFC3339Nano
// strings for times).
func (r *Registry) NormalizeNode(label string, props core.Properties) (core.Properties, error) {
	if err := r.ValidateNode(label, props); err != nil {
		return nil, err
	}
	return normalize(r.nodes[label].Properties, props), nil
}

// NormalizeEdge is NormalizeNode for edges, including the endpoint check.
func (r *Registry) NormalizeEdge(edgeType, sourceLabel, targetLabel string, props core.Properties) (core.Properties, error) {
	if err := r.ValidateEdge(edgeType, sourceLabel, targetLabel, props); err != nil {
		return nil, err
	}
	return normalize(r.edges[edgeType].Properties, props), nil
}

func (r *Registry) checkProps(owner string, specs []PropertySpec, props core.Properties) error {
	byName := make(map[string]*PropertySpec, len(specs))
	for i := range specs {
		byName[specs[i].Name] = &specs[i]
	}
	for _, s := range specs {
		if !s.Required {
			continue
		}
		if _, ok := props[s.Name]; !ok {
			return &core.SchemaError{Kind: core.ErrKindMissingRequired, Label: owner, Field: s.Name}
		}
	}
	for name, value := range props {
		spec, ok := byName[name]
		if !ok {
			if r.strict {
				return &core.SchemaError{Kind: core.ErrKindUnknownProperty, Label: owner, Field: name}
			}
			continue
		}
		if err := checkValue(spec, value); err != nil {
			return &core.SchemaError{Kind: core.ErrKindTypeMismatch, Label: owner, Field: name, Detail: err.Error()}
		}
	}
	return nil
}

// checkValue verifies one value against its spec. Numeric checks accept the
// float64 that encoding/json produces for every number.
func checkValue(spec *PropertySpec, value any) error {
	switch spec.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("want string, got %T", value)
		}
	case TypeInt:
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("want integer, got %v", v)
			}
		default:
			return fmt.Errorf("want integer, got %T", value)
		}
	case TypeFloat:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("want number, got %T", value)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("want bool, got %T", value)
		}
	case TypeTime:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339Nano, v); err != nil {
				return fmt.Errorf("want RFC3339 time: %v", err)
			}
		default:
			return fmt.Errorf("want RFC3339 time, got %T", value)
		}
	case TypeEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("want one of %v, got %T", spec.Values, value)
		}
		for _, allowed := range spec.Values {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("want one of %v, got %q", spec.Values, s)
	}
	return nil
}

// normalize copies known properties into canonical form. Unknown properties
// are dropped here; in strict mode checkProps already rejected them.
func normalize(specs []PropertySpec, props core.Properties) core.Properties {
	byName := make(map[string]*PropertySpec, len(specs))
	for i := range specs {
		byName[specs[i].Name] = &specs[i]
	}
	out := make(core.Properties, len(props))
	for name, value := range props {
		spec, ok := byName[name]
		if !ok {
			continue
		}
		out[name] = canonical(spec, value)
	}
	return out
}

func canonical(spec *PropertySpec, value any) any {
	switch spec.Type {
	case TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case float64:
			return int64(v)
		}
	case TypeFloat:
		switch v := value.(type) {
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	case TypeTime:
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339Nano)
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err == nil {
				return t.UTC().Format(time.RFC3339Nano)
			}
		}
	}
	return value
}
