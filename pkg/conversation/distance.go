package conversation

import "strconv"

// Distance counts parent hops from the node a context is being built for.
// The node itself is at distance 0.
type Distance int

func (d Distance) Next() Distance {
	return d + 1
}

func (d Distance) Int() int {
	return int(d)
}

func (d Distance) String() string {
	return strconv.Itoa(int(d))
}
