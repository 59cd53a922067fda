package disjoint_set

import (
	"sort"
	"sync"
)

// DSU represents a Disjoint Set Union data structure keyed by string ids
type DSU = dsu

type dsu struct {
	root       []int
	rank       []int
	labels     map[string]int
	labelIndex map[int]string
	lock       sync.RWMutex
}

// NewDSU creates a new, empty DSU.
func NewDSU() *dsu {
	return &dsu{
		root:       make([]int, 0),
		rank:       make([]int, 0),
		labels:     make(map[string]int),
		labelIndex: make(map[int]string),
	}
}

// Add adds a new singleton set to the DSU. Returns the index of the new set.
// Adding an existing label returns its current index.
func (d *dsu) Add(label string) int {
	d.lock.Lock()
	defer d.lock.Unlock()

	if idx, ok := d.labels[label]; ok {
		return idx
	}
	return d.add(label)
}

// add appends a singleton set (caller must hold lock)
func (d *dsu) add(label string) int {
	d.root = append(d.root, len(d.root))
	d.rank = append(d.rank, 0)
	d.labels[label] = len(d.root) - 1
	d.labelIndex[len(d.root)-1] = label
	return d.labels[label]
}

// find finds the root of the set (caller must hold write lock for path compression)
func (d *dsu) find(x int) int {
	if d.root[x] == x {
		return x
	}

	d.root[x] = d.find(d.root[x]) // Path compression
	return d.root[x]
}

// findRO finds the root of the set without compressing paths (read lock is enough)
func (d *dsu) findRO(x int) int {
	for d.root[x] != x {
		x = d.root[x]
	}
	return x
}

// FindOrCreate finds the root of the set by label, or adds it if it doesn't exist
func (d *dsu) FindOrCreate(label string) int {
	d.lock.Lock()
	defer d.lock.Unlock()

	idx, ok := d.labels[label]
	if !ok {
		return d.add(label)
	}

	return d.find(idx)
}

// Root returns the label of the set representative for label, and false when
// the label was never added.
func (d *dsu) Root(label string) (string, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	idx, ok := d.labels[label]
	if !ok {
		return "", false
	}
	return d.labelIndex[d.findRO(idx)], true
}

// Union merges two sets
func (d *dsu) Union(x int, y int) {
	d.lock.Lock()
	defer d.lock.Unlock()

	rootX := d.find(x)
	rootY := d.find(y)

	if rootX == rootY {
		return
	}

	if d.rank[rootX] > d.rank[rootY] {
		d.root[rootY] = rootX
	} else if d.rank[rootX] < d.rank[rootY] {
		d.root[rootX] = rootY
	} else {
		d.root[rootY] = rootX
		d.rank[rootX]++
	}
}

// Members returns every label in the same set as label, sorted.
func (d *dsu) Members(label string) []string {
	d.lock.RLock()
	defer d.lock.RUnlock()

	idx, ok := d.labels[label]
	if !ok {
		return nil
	}
	target := d.findRO(idx)

	members := make([]string, 0)
	for i := range d.root {
		if d.findRO(i) == target {
			members = append(members, d.labelIndex[i])
		}
	}
	sort.Strings(members)
	return members
}
