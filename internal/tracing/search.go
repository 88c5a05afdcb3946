package tracing

// PathEntry is a node of a failed branch with its position among siblings.
type PathEntry struct {
	Node  *Node
	Index int
	Total int
}

// FindRevertedBranch returns the left-most shallowest path from root to the
// first node with an unignored error, nil if the tree has no such node.
// Children of every node on the path are dropped, the tree is not usable for
// another search afterwards.
func FindRevertedBranch(root *Node) []PathEntry {
	if root == nil || !root.HasErrorInSubtree {
		return nil
	}

	var path []PathEntry
	cur := PathEntry{Node: root, Index: 0, Total: 1}
	for {
		n := cur.Node
		path = append(path, cur)
		if n.failed() {
			n.Children = nil
			return path
		}

		next := -1
		for i, c := range n.Children {
			if c.HasErrorInSubtree {
				next = i
				break
			}
		}
		if next < 0 {
			// flags are inconsistent with the tree, nothing failed below
			return nil
		}

		cur = PathEntry{Node: n.Children[next], Index: next, Total: len(n.Children)}
		n.Children = nil
	}
}
