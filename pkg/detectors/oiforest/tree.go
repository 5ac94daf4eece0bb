package oiforest

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

type tree struct {
	forest *Forest
	rng    *rand.Rand
	root   *node
	size   int
}

type node struct {
	count      int
	depth      int
	mins, maxs []float64

	// internal nodes only
	projection []float64
	splits     []float64
	children   []*node
}

func (n *node) leaf() bool {
	return n.children == nil
}

func (t *tree) depthLimit() float64 {
	return randomPathLength(t.forest.branching, t.forest.maxLeaf, float64(t.size))
}

func (t *tree) learn(x []float64) {
	t.size++
	if t.root == nil {
		t.root = &node{
			count: 1,
			mins:  append([]float64(nil), x...),
			maxs:  append([]float64(nil), x...),
		}
		return
	}

	limit := t.depthLimit()
	n := t.root
	for {
		n.count++
		for i, v := range x {
			if i >= len(n.mins) {
				break
			}
			n.mins[i] = math.Min(n.mins[i], v)
			n.maxs[i] = math.Max(n.maxs[i], v)
		}
		if n.leaf() {
			if n.count >= t.forest.capacity(n.depth) && float64(n.depth) < limit {
				t.grow(n, limit)
			}
			return
		}
		n = n.children[n.branch(x)]
	}
}

// grow turns leaf n into an internal node. The leaf no longer holds its
// samples, so a matching number of points is drawn uniformly from its
// bounding box and partitioned instead.
func (t *tree) grow(n *node, limit float64) {
	dims := len(n.mins)
	points := make([][]float64, n.count)
	for i := range points {
		p := make([]float64, dims)
		for j := range p {
			p[j] = n.mins[j] + t.rng.Float64()*(n.maxs[j]-n.mins[j])
		}
		points[i] = p
	}
	t.build(n, points, limit)
}

func (t *tree) build(n *node, points [][]float64, limit float64) {
	if len(points) < t.forest.capacity(n.depth) || float64(n.depth) >= limit {
		return
	}

	n.projection = t.projection(len(n.mins))
	projected := make([]float64, len(points))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, p := range points {
		projected[i] = dot(n.projection, p)
		lo = math.Min(lo, projected[i])
		hi = math.Max(hi, projected[i])
	}

	b := t.forest.branching
	n.splits = make([]float64, b-1)
	for i := range n.splits {
		if hi-lo < 1e-10 {
			n.splits[i] = lo - 1e-10 + float64(i)*2e-10/float64(b-1)
		} else {
			n.splits[i] = lo + t.rng.Float64()*(hi-lo)
		}
	}
	sort.Float64s(n.splits)

	parts := make([][][]float64, b)
	for i, p := range points {
		k := n.branchOf(projected[i])
		parts[k] = append(parts[k], p)
	}

	n.children = make([]*node, b)
	for k, part := range parts {
		child := &node{count: len(part), depth: n.depth + 1}
		if len(part) == 0 {
			child.mins = append([]float64(nil), n.mins...)
			child.maxs = append([]float64(nil), n.maxs...)
		} else {
			child.mins, child.maxs = bounds(part)
		}
		n.children[k] = child
		t.build(child, part, limit)
	}
}

func (t *tree) projection(dims int) []float64 {
	w := make([]float64, dims)
	if t.forest.split == SplitHyperplane && dims > 1 {
		for i := range w {
			w[i] = t.rng.NormFloat64()
		}
		floats.Scale(1/floats.Norm(w, 2), w)
		return w
	}
	if dims > 0 {
		w[t.rng.IntN(dims)] = 1
	}
	return w
}

func (t *tree) unlearn(x []float64) {
	if t.root == nil {
		return
	}
	t.size--
	n := t.root
	for n != nil {
		if n.count > 0 {
			n.count--
		}
		if n.leaf() {
			return
		}
		if n.count < t.forest.capacity(n.depth) {
			n.collapse()
			return
		}
		n = n.children[n.branch(x)]
	}
}

// collapse turns an internal node back into a leaf, keeping the union of
// the children's bounds.
func (n *node) collapse() {
	for _, c := range n.children {
		for i := range n.mins {
			n.mins[i] = math.Min(n.mins[i], c.mins[i])
			n.maxs[i] = math.Max(n.maxs[i], c.maxs[i])
		}
	}
	n.children = nil
	n.projection = nil
	n.splits = nil
}

// depthOf returns the leaf depth reached by x plus the expected depth of
// the remaining samples in that leaf.
func (t *tree) depthOf(x []float64) float64 {
	if t.root == nil {
		return 0
	}
	n := t.root
	for !n.leaf() {
		n = n.children[n.branch(x)]
	}
	return float64(n.depth) + randomPathLength(t.forest.branching, t.forest.maxLeaf, float64(n.count))
}

func (n *node) branch(x []float64) int {
	return n.branchOf(dot(n.projection, x))
}

func (n *node) branchOf(p float64) int {
	k := 0
	for j, s := range n.splits {
		if p > s {
			k = j + 1
		}
	}
	return k
}

func bounds(points [][]float64) (mins, maxs []float64) {
	mins = append([]float64(nil), points[0]...)
	maxs = append([]float64(nil), points[0]...)
	for _, p := range points[1:] {
		for j, v := range p {
			mins[j] = math.Min(mins[j], v)
			maxs[j] = math.Max(maxs[j], v)
		}
	}
	return mins, maxs
}

func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	return floats.Dot(a[:n], b[:n])
}
