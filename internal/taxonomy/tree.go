// Package taxonomy lays out the tag hierarchy as a nested set and keeps the
// stored taxonomy in step with its curated source tree.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"

	"forum/internal/store"
)

var (
	ErrDuplicateTag = errors.New("duplicate tag name")
	ErrEmptyTagName = errors.New("empty tag name")
)

// Node is one entry of the source tree.
type Node struct {
	Name     string
	Children []Node
}

// Validate rejects trees that cannot be stored: tag names are unique across
// the whole taxonomy, not just among siblings.
func Validate(forest []Node) error {
	seen := map[string]bool{}
	var walk func(nodes []Node, path string) error
	walk = func(nodes []Node, path string) error {
		for _, node := range nodes {
			name := strings.TrimSpace(node.Name)
			if name == "" {
				return fmt.Errorf("%w under %q", ErrEmptyTagName, path)
			}
			if seen[name] {
				return fmt.Errorf("%w: %q", ErrDuplicateTag, name)
			}
			seen[name] = true
			if err := walk(node.Children, path+"/"+name); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(forest, "")
}

// Build assigns lft, rgt and depth depth-first in source order. Roots
// partition [0, 2n-1] for n tags, and every tag satisfies
// rgt = lft + 2*descendants + 1. The result is ordered by lft.
func Build(forest []Node) []store.Tag {
	tags := make([]store.Tag, 0, count(forest))
	layout(forest, 0, 0, &tags)
	return tags
}

// layout places nodes starting at position and returns the next free position.
func layout(nodes []Node, position, depth int, tags *[]store.Tag) int {
	for _, node := range nodes {
		index := len(*tags)
		*tags = append(*tags, store.Tag{
			Name:  strings.TrimSpace(node.Name),
			Depth: depth,
			Lft:   position,
		})
		rgt := layout(node.Children, position+1, depth+1, tags)
		(*tags)[index].Rgt = rgt
		position = rgt + 1
	}
	return position
}

func count(nodes []Node) int {
	total := len(nodes)
	for _, node := range nodes {
		total += count(node.Children)
	}
	return total
}
