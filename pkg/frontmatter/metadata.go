package frontmatter

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Metadata is an insertion-ordered key/value map decoded from a YAML
// mapping. Values are string, int, float64, bool, nil, Timestamp, []any or
// *Metadata for nested mappings.
type Metadata struct {
	keys   []string
	values map[string]any
}

// Timestamp is an unquoted YAML date or datetime kept as written, so
// "2024-01-01" is emitted again as 2024-01-01 rather than a full RFC 3339
// time or a quoted string.
type Timestamp string

// MarshalYAML implements yaml.Marshaler.
func (t Timestamp) MarshalYAML() (any, error) {
	return timestampNode(t), nil
}

func timestampNode(t Timestamp) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: string(t)}
}

// NewMetadata returns an empty Metadata
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]any)}
}

// Get returns the value for key and whether it was present.
func (m *Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key. An existing key keeps its position; a new
// key is appended.
func (m *Metadata) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key. Missing keys are ignored.
func (m *Metadata) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of keys.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns a deep copy. Nested mappings and lists are copied so the
// clone can be mutated without touching the original.
func (m *Metadata) Clone() *Metadata {
	out := NewMetadata()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(k, cloneValue(m.values[k]))
	}
	return out
}

// ToMap converts the metadata to a plain map, recursively. Order is lost.
func (m *Metadata) ToMap() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out[k] = plainValue(m.values[k])
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Metadata:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func plainValue(v any) any {
	switch t := v.(type) {
	case *Metadata:
		return t.ToMap()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}

// UnmarshalYAML implements yaml.Unmarshaler for mapping nodes.
func (m *Metadata) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: expected a mapping, got %s", node.Line, kindName(node.Kind))
	}
	m.keys = nil
	m.values = make(map[string]any, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var key string
		if err := keyNode.Decode(&key); err != nil {
			return errors.Wrapf(err, "line %d: invalid key", keyNode.Line)
		}
		value, err := decodeNode(valueNode)
		if err != nil {
			return errors.Wrapf(err, "key %q", key)
		}
		m.Set(key, value)
	}
	return nil
}

func decodeNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return decodeNode(node.Alias)
	case yaml.MappingNode:
		child := NewMetadata()
		if err := child.UnmarshalYAML(node); err != nil {
			return nil, err
		}
		return child, nil
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, n := range node.Content {
			v, err := decodeNode(n)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case yaml.ScalarNode:
		if node.ShortTag() == "!!timestamp" {
			return Timestamp(node.Value), nil
		}
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, errors.Wrapf(err, "line %d", node.Line)
		}
		return v, nil
	default:
		return nil, errors.Errorf("line %d: unsupported node %s", node.Line, kindName(node.Kind))
	}
}

// MarshalYAML implements yaml.Marshaler, emitting keys in insertion order.
func (m *Metadata) MarshalYAML() (any, error) {
	return m.toNode()
}

func (m *Metadata) toNode() (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if m == nil {
		return node, nil
	}
	for _, k := range m.keys {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(k); err != nil {
			return nil, errors.Wrapf(err, "failed to encode key %q", k)
		}
		valueNode, err := encodeValue(m.values[k])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode value for %q", k)
		}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

func encodeValue(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Metadata:
		return t.toNode()
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			child, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case Timestamp:
		return timestampNode(t), nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(v); err != nil {
			return nil, err
		}
		return node, nil
	}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
