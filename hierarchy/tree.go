package hierarchy

import (
	"fmt"

	"ragcore/types"

	"github.com/google/uuid"
)

// TreeNode is the read-side view of the flat structure table. Children
// are linked by parent ID on reconstruction; the persisted rows never
// hold object references.
type TreeNode struct {
	types.StructureNode
	Children []*TreeNode `json:"children,omitempty"`
}

// BuildTree rebuilds a document tree from its flat node list. Exactly
// one node may have a null parent; that node is the root.
func BuildTree(nodes []types.StructureNode, maxDepth int) (*TreeNode, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("document has no structure nodes")
	}

	arena := make(map[uuid.UUID]*TreeNode, len(nodes))
	for _, n := range nodes {
		arena[n.ID] = &TreeNode{StructureNode: n}
	}

	var root *TreeNode
	for _, n := range nodes {
		node := arena[n.ID]
		if !n.ParentID.Valid {
			if root != nil {
				return nil, fmt.Errorf("document has more than one root node")
			}
			root = node
			continue
		}
		parent, ok := arena[n.ParentID.UUID]
		if !ok {
			return nil, fmt.Errorf("node %s references missing parent %s", n.Path, n.ParentID.UUID)
		}
		parent.Children = append(parent.Children, node)
	}
	if root == nil {
		return nil, fmt.Errorf("document has no root node")
	}

	// rows arrive in (level, ordering) order, so sibling order is already
	// stable; only depth needs pruning
	if maxDepth > 0 {
		prune(root, maxDepth)
	}
	return root, nil
}

func prune(node *TreeNode, depth int) {
	if depth <= 1 {
		node.Children = nil
		return
	}
	for _, child := range node.Children {
		prune(child, depth-1)
	}
}
