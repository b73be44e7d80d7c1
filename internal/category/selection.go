package category

import (
	"sync"
)

// CheckState is the derived tri-state of a tree node.
type CheckState int

const (
	Unchecked CheckState = iota
	Partial
	Checked
)

func (s CheckState) String() string {
	switch s {
	case Checked:
		return "checked"
	case Partial:
		return "partial"
	default:
		return "unchecked"
	}
}

// MarshalText renders the state as its name in JSON payloads.
func (s CheckState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Selection tracks which category paths are checked on a tree. Only the set
// of checked paths is stored; partial states are derived from it.
//
// Every exported method runs as one operation under a single lock. Change
// listeners are called after the lock is released, once per operation, and
// only when the set of checked paths actually changed.
type Selection struct {
	mu        sync.Mutex
	tree      *Tree
	checked   map[string]bool
	listeners []func([]string)
}

// NewSelection creates an empty selection over tree.
func NewSelection(tree *Tree) *Selection {
	if tree == nil {
		tree = Build(nil)
	}
	return &Selection{
		tree:    tree,
		checked: make(map[string]bool),
	}
}

// OnChange registers fn to receive the full list of checked paths after
// every change.
func (s *Selection) OnChange(fn func(selected []string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Tree returns the tree the selection currently applies to.
func (s *Selection) Tree() *Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// SetChecked checks or unchecks path together with all of its descendants,
// then re-derives every ancestor. Unknown paths are ignored.
func (s *Selection) SetChecked(path string, checked bool) {
	s.apply(func() {
		node, ok := s.tree.Lookup(path)
		if !ok {
			return
		}
		s.setSubtree(node, checked)
		for p := node.Parent; p != nil; p = p.Parent {
			s.derive(p)
		}
	})
}

// SelectAll checks every node of the tree.
func (s *Selection) SelectAll() {
	s.apply(func() {
		for _, root := range s.tree.Roots() {
			s.setSubtree(root, true)
		}
	})
}

// ClearAll unchecks every node of the tree.
func (s *Selection) ClearAll() {
	s.apply(func() {
		s.checked = make(map[string]bool)
	})
}

// Restore moves the selection onto tree, keeping only the previously checked
// paths that still exist there. Vanished paths are dropped silently.
func (s *Selection) Restore(previous []string, tree *Tree) {
	if tree == nil {
		tree = Build(nil)
	}
	s.apply(func() {
		s.tree = tree
		s.reset(previous)
	})
}

// Replace sets the checked paths on the current tree, as Restore does.
func (s *Selection) Replace(paths []string) {
	s.apply(func() {
		s.reset(paths)
	})
}

// State returns the derived tri-state of path.
func (s *Selection) State(path string) CheckState {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.tree.Lookup(path)
	if !ok {
		return Unchecked
	}
	return s.state(node)
}

// IsSelected reports whether path is a member of the checked set.
func (s *Selection) IsSelected(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checked[path]
}

// Selected returns the checked paths in tree display order.
func (s *Selection) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected()
}

func (s *Selection) apply(op func()) {
	s.mu.Lock()
	before := s.selected()
	op()
	after := s.selected()
	listeners := append([]func([]string){}, s.listeners...)
	s.mu.Unlock()

	if equalPaths(before, after) {
		return
	}
	for _, fn := range listeners {
		fn(append([]string{}, after...))
	}
}

func (s *Selection) reset(paths []string) {
	s.checked = make(map[string]bool)
	for _, path := range paths {
		if node, ok := s.tree.Lookup(path); ok {
			s.setSubtree(node, true)
		}
	}
	s.deriveAll()
}

func (s *Selection) setSubtree(n *Node, checked bool) {
	if checked {
		s.checked[n.Path] = true
	} else {
		delete(s.checked, n.Path)
	}
	for _, child := range n.Children {
		s.setSubtree(child, checked)
	}
}

// derive recomputes a parent from its immediate children: checked when all
// children are checked, otherwise out of the set (partial or unchecked).
func (s *Selection) derive(n *Node) {
	if n.IsLeaf() {
		return
	}
	checked := 0
	for _, child := range n.Children {
		if s.checked[child.Path] {
			checked++
		}
	}
	if checked == len(n.Children) {
		s.checked[n.Path] = true
	} else {
		delete(s.checked, n.Path)
	}
}

// deriveAll re-derives every inner node bottom-up.
func (s *Selection) deriveAll() {
	var visit func(n *Node)
	visit = func(n *Node) {
		for _, child := range n.Children {
			visit(child)
		}
		s.derive(n)
	}
	for _, root := range s.tree.roots {
		visit(root)
	}
}

func (s *Selection) state(n *Node) CheckState {
	if s.checked[n.Path] {
		return Checked
	}
	if s.anyChecked(n) {
		return Partial
	}
	return Unchecked
}

func (s *Selection) anyChecked(n *Node) bool {
	for _, child := range n.Children {
		if s.checked[child.Path] || s.anyChecked(child) {
			return true
		}
	}
	return false
}

func (s *Selection) selected() []string {
	selected := make([]string, 0, len(s.checked))
	s.tree.Walk(func(n *Node) {
		if s.checked[n.Path] {
			selected = append(selected, n.Path)
		}
	})
	return selected
}

func equalPaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
