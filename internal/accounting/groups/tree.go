package groups

import "sort"

// Tree indexes a tenant's groups so hierarchy walks use explicit worklists
// and never recurse, whatever the depth of the chart.
type Tree struct {
	byID     map[int64]Group
	children map[int64][]int64
}

// Node is a group with its visible children, used for hierarchy views.
type Node struct {
	Group
	Children []*Node `json:"children"`
}

// NewTree indexes groups by id and parent.
func NewTree(groups []Group) *Tree {
	t := &Tree{
		byID:     make(map[int64]Group, len(groups)),
		children: make(map[int64][]int64),
	}
	for _, g := range groups {
		t.byID[g.ID] = g
	}
	ordered := sortedGroups(groups)
	for _, g := range ordered {
		if g.ParentID != nil {
			t.children[*g.ParentID] = append(t.children[*g.ParentID], g.ID)
		}
	}
	return t
}

// Get returns the group with id.
func (t *Tree) Get(id int64) (Group, bool) {
	g, ok := t.byID[id]
	return g, ok
}

// Children returns the direct children of id.
func (t *Tree) Children(id int64) []Group {
	ids := t.children[id]
	out := make([]Group, 0, len(ids))
	for _, childID := range ids {
		out = append(out, t.byID[childID])
	}
	return out
}

// Descendants returns every group beneath id in breadth-first order. The
// starting group is not included.
func (t *Tree) Descendants(id int64) []Group {
	var out []Group
	seen := map[int64]struct{}{id: {}}
	queue := append([]int64(nil), t.children[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, t.byID[next])
		queue = append(queue, t.children[next]...)
	}
	return out
}

// Ancestors walks parent links from id up to the root, nearest first.
func (t *Tree) Ancestors(id int64) ([]Group, error) {
	g, ok := t.byID[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	var out []Group
	seen := map[int64]struct{}{id: {}}
	for g.ParentID != nil {
		parentID := *g.ParentID
		if _, loop := seen[parentID]; loop {
			return nil, ErrCorruptHierarchy
		}
		seen[parentID] = struct{}{}
		parent, ok := t.byID[parentID]
		if !ok {
			break
		}
		out = append(out, parent)
		g = parent
	}
	return out, nil
}

// WouldCycle reports whether moving id under newParentID makes id its own ancestor.
func (t *Tree) WouldCycle(id, newParentID int64) (bool, error) {
	if id == newParentID {
		return true, nil
	}
	ancestors, err := t.Ancestors(newParentID)
	if err != nil {
		return false, err
	}
	for _, a := range ancestors {
		if a.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// Forest assembles the groups accepted by keep into trees. A kept group whose
// ancestors were all dropped becomes a root; otherwise it hangs under its
// nearest kept ancestor.
func (t *Tree) Forest(keep func(Group) bool) []*Node {
	all := make([]Group, 0, len(t.byID))
	for _, g := range t.byID {
		all = append(all, g)
	}
	nodes := make(map[int64]*Node)
	kept := make([]Group, 0, len(all))
	for _, g := range sortedGroups(all) {
		if keep == nil || keep(g) {
			nodes[g.ID] = &Node{Group: g, Children: []*Node{}}
			kept = append(kept, g)
		}
	}
	var roots []*Node
	for _, g := range kept {
		node := nodes[g.ID]
		parent := t.nearestKept(g.ID, nodes)
		if parent == nil {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return roots
}

func (t *Tree) nearestKept(id int64, nodes map[int64]*Node) *Node {
	ancestors, err := t.Ancestors(id)
	if err != nil {
		return nil
	}
	for _, a := range ancestors {
		if node, ok := nodes[a.ID]; ok {
			return node
		}
	}
	return nil
}

func sortedGroups(groups []Group) []Group {
	out := append([]Group(nil), groups...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
