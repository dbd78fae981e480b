package conversation

import "github.com/pkg/errors"

// The path of a node is the node and all its ancestors, root first. It is
// recomputed on every call by walking the parent links; conversations are
// expected to stay shallow enough for that to be cheap.

// Len returns the number of nodes from the root to n, inclusive.
func (n *Node) Len() int {
	return n.depth + 1
}

// Path returns the nodes from the root to n, inclusive.
func (n *Node) Path() []*Node {
	path := make([]*Node, n.Len())
	i := n.depth
	for cur := n; cur != nil; cur = cur.parent {
		path[i] = cur
		i--
	}
	return path
}

// At returns the node at root-relative position i of n's path.
func (n *Node) At(i int) (*Node, error) {
	if i < 0 || i >= n.Len() {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, path length %d", i, n.Len())
	}
	cur := n
	for hops := n.depth - i; hops > 0; hops-- {
		cur = cur.parent
	}
	return cur, nil
}

// Slice returns the half-open range [start, stop) of n's path. Negative bounds
// count from the end of the path, and bounds outside the path are clamped, so
// Slice never fails.
func (n *Node) Slice(start, stop int) []*Node {
	length := n.Len()
	start = clampBound(start, length)
	stop = clampBound(stop, length)
	if start >= stop {
		return []*Node{}
	}
	return n.Path()[start:stop]
}

func clampBound(i, length int) int {
	if i < 0 {
		i += length
		if i < 0 {
			return 0
		}
	}
	if i > length {
		return length
	}
	return i
}
