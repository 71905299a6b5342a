package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a taxonomy source tree from a YAML file.
func LoadFile(path string) ([]Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	forest, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	return forest, nil
}

// Parse decodes a source tree. Each mapping key is a tag; its value is either
// empty (a leaf), a nested mapping, or a list of names and mappings. Key order
// is preserved, which fixes sibling order in the layout.
func Parse(data []byte) ([]Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return []Node{}, nil
	}
	return children(doc.Content[0])
}

func children(value *yaml.Node) ([]Node, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return []Node{}, nil
		}
		return nil, fmt.Errorf("line %d: expected nested tags, got %q", value.Line, value.Value)
	case yaml.MappingNode:
		nodes := make([]Node, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: tag names must be scalars", key.Line)
			}
			nested, err := children(val)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, Node{Name: key.Value, Children: nested})
		}
		return nodes, nil
	case yaml.SequenceNode:
		nodes := make([]Node, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind == yaml.ScalarNode {
				nodes = append(nodes, Node{Name: item.Value, Children: []Node{}})
				continue
			}
			nested, err := children(item)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, nested...)
		}
		return nodes, nil
	}
	return nil, fmt.Errorf("line %d: unsupported taxonomy node", value.Line)
}
