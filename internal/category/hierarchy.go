package category

import (
	"fmt"
	"sort"
)

// Node is one segment of the category hierarchy, identified by its full path.
type Node struct {
	Name     string
	Path     string
	Parent   *Node
	Children map[string]*Node

	// Count is the displayed roll-up count, set by Tree.ApplyCounts.
	Count int
}

// SortedChildren returns the children ordered by name.
func (n *Node) SortedChildren() []*Node {
	return sortedNodes(n.Children)
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Label is the display text of the node.
func (n *Node) Label() string {
	if n.Count > 0 {
		return fmt.Sprintf("%s (%d)", n.Name, n.Count)
	}
	return n.Name
}

// Tree is a category hierarchy built from a list of paths. It is always
// rebuilt from scratch when the source paths change.
type Tree struct {
	roots map[string]*Node
	index map[string]*Node
}

// Build folds raw category paths into a tree. Each path is split on ">" so
// "A>B" and "A > B" end up on the same node.
func Build(paths []string) *Tree {
	t := &Tree{
		roots: make(map[string]*Node),
		index: make(map[string]*Node),
	}

	for _, raw := range paths {
		segments := Parse(raw, []string{HierarchyDelimiter})
		if len(segments) == 0 {
			continue
		}

		level := t.roots
		var parent *Node
		for _, segment := range segments {
			node, ok := level[segment]
			if !ok {
				path := segment
				if parent != nil {
					path = parent.Path + Separator + segment
				}
				node = &Node{
					Name:     segment,
					Path:     path,
					Parent:   parent,
					Children: make(map[string]*Node),
				}
				level[segment] = node
				t.index[path] = node
			}
			parent = node
			level = node.Children
		}
	}

	return t
}

// Roots returns the top level nodes ordered by name.
func (t *Tree) Roots() []*Node {
	return sortedNodes(t.roots)
}

// Lookup finds a node by its canonical path.
func (t *Tree) Lookup(path string) (*Node, bool) {
	n, ok := t.index[path]
	return n, ok
}

// Len is the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.index)
}

// Paths lists every node path in display (pre-order, sorted) order.
func (t *Tree) Paths() []string {
	paths := make([]string, 0, len(t.index))
	t.Walk(func(n *Node) {
		paths = append(paths, n.Path)
	})
	return paths
}

// Walk visits every node in display order, parents before children.
func (t *Tree) Walk(fn func(*Node)) {
	var visit func(nodes []*Node)
	visit = func(nodes []*Node) {
		for _, n := range nodes {
			fn(n)
			visit(n.SortedChildren())
		}
	}
	visit(t.Roots())
}

// ApplyCounts sets the displayed roll-up count of every node from raw
// per-path occurrence counts.
func (t *Tree) ApplyCounts(raw map[string]int) {
	for path, n := range t.index {
		n.Count = RollupCount(path, raw)
	}
}

// RollupCount sums the raw counts of nodePath and of every path beneath it.
func RollupCount(nodePath string, raw map[string]int) int {
	total := 0
	for path, count := range raw {
		if Contains(nodePath, path) {
			total += count
		}
	}
	return total
}

// CountPaths counts occurrences of each normalized category path. Empty
// values are skipped. In no-category mode every value counts as Uncategorized.
func CountPaths(values []string, noCategory bool) map[string]int {
	counts := make(map[string]int)
	if noCategory {
		if len(values) > 0 {
			counts[Uncategorized] = len(values)
		}
		return counts
	}

	for _, v := range values {
		if path := Normalize(v); path != "" {
			counts[path]++
		}
	}
	return counts
}

// FilterCounts keeps only the counts whose path lies within one of the
// selected paths. An empty selection keeps everything.
func FilterCounts(counts map[string]int, selected []string) map[string]int {
	if len(selected) == 0 {
		return counts
	}

	filtered := make(map[string]int)
	for path, count := range counts {
		for _, sel := range selected {
			if Contains(sel, path) {
				filtered[path] = count
				break
			}
		}
	}
	return filtered
}

func sortedNodes(m map[string]*Node) []*Node {
	nodes := make([]*Node, 0, len(m))
	for _, n := range m {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Name < nodes[j].Name
	})
	return nodes
}
