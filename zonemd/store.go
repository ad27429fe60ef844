package zonemd

import (
	"bytes"

	"github.com/KarpelesLab/dns/dnsmsg"
)

// Store holds a zone's resource records and knows how to iterate them in
// canonical order for digest computation. FlatStore and TreeStore are
// interchangeable: both produce identical digests for the same record set,
// since the digest is defined over the canonical record sequence and never
// over a particular store's internal layout.
type Store interface {
	Add(rr *dnsmsg.Resource)
	Remove(typ dnsmsg.Type, covered dnsmsg.Type) int
	RemoveExact(rr *dnsmsg.Resource) bool
	FindApexZonemds(origin string) []*dnsmsg.Resource
	IterSorted(origin string) ([][]byte, error)
	All() []*dnsmsg.Resource
}

// sameRR reports whether a and b have the same owner name, type, class and
// rdata wire bytes, the identity an update script's del line matches on.
func sameRR(a, b *dnsmsg.Resource) bool {
	if canonicalOwner(a.Name) != canonicalOwner(b.Name) || a.Type != b.Type || a.Class != b.Class {
		return false
	}
	wa, err := dnsmsg.EncodeRData(a.Data)
	if err != nil {
		return false
	}
	wb, err := dnsmsg.EncodeRData(b.Data)
	if err != nil {
		return false
	}
	return bytes.Equal(wa, wb)
}

// FlatStore is an RR store backed by a single ordered slice. It canonicalizes
// by sorting the whole set on every read, which is the simplest correct
// implementation and the one a small zone gains nothing from replacing.
type FlatStore struct {
	rrs []*dnsmsg.Resource
}

func NewFlatStore() *FlatStore {
	return &FlatStore{}
}

func (s *FlatStore) Add(rr *dnsmsg.Resource) {
	s.rrs = append(s.rrs, rr)
}

// Remove deletes every record of type typ, or, when typ is RRSIG, every
// RRSIG whose type_covered equals covered. It returns the number of records
// removed. The update script's del operation does not go through Remove:
// update.go calls RemoveExact, which removes a single matching record rather
// than every record of a type.
func (s *FlatStore) Remove(typ dnsmsg.Type, covered dnsmsg.Type) int {
	kept := s.rrs[:0]
	removed := 0
	for _, rr := range s.rrs {
		if matchesTypeCovered(rr, typ, covered) {
			removed++
			continue
		}
		kept = append(kept, rr)
	}
	s.rrs = kept
	return removed
}

func matchesTypeCovered(rr *dnsmsg.Resource, typ, covered dnsmsg.Type) bool {
	if rr.Type != typ {
		return false
	}
	if typ != dnsmsg.RRSIG {
		return true
	}
	sig, ok := rr.Data.(*dnsmsg.RDataRRSIG)
	return ok && sig.TypeCovered == covered
}

// RemoveExact deletes the first record matching rr's owner name, type,
// class and rdata, reporting whether one was found.
func (s *FlatStore) RemoveExact(rr *dnsmsg.Resource) bool {
	for i, cand := range s.rrs {
		if sameRR(cand, rr) {
			s.rrs = append(s.rrs[:i], s.rrs[i+1:]...)
			return true
		}
	}
	return false
}

func (s *FlatStore) FindApexZonemds(origin string) []*dnsmsg.Resource {
	return findApexZonemds(s.rrs, origin)
}

func (s *FlatStore) IterSorted(origin string) ([][]byte, error) {
	return canonicalize(s.rrs, origin)
}

func (s *FlatStore) All() []*dnsmsg.Resource {
	return s.rrs
}

func findApexZonemds(rrs []*dnsmsg.Resource, origin string) []*dnsmsg.Resource {
	origin = canonicalOwner(origin)
	var out []*dnsmsg.Resource
	for _, rr := range rrs {
		if rr.Type == dnsmsg.ZONEMD && canonicalOwner(rr.Name) == origin {
			out = append(out, rr)
		}
	}
	return out
}

// TreeStore is a fixed-fanout digest tree over the same record set. Each
// record is routed to a leaf by a deterministic function of its owner name,
// and every node caches the digest of its own subtree, marking itself dirty
// whenever a record underneath it changes. Recomputing after a single
// mutation only walks the path from the touched leaf to the root, rather
// than rehashing the whole zone.
//
// The routing function is intentionally simple and not balance-aware: two
// names that collide on every branch byte pile into the same leaf, and nothing
// here rebalances that. This is a deliberate trade for reproducibility across
// implementations, not an oversight.
type TreeStore struct {
	width int // W: fanout per node
	depth int // D: tree depth; 0 means a single leaf acting as root
	root  *treeNode
}

type treeNode struct {
	dirty    bool
	cached   []byte
	children []*treeNode // len == width once any child exists; nil entries until populated
	leaf     []*dnsmsg.Resource
	isLeaf   bool
	parent   *treeNode
}

// markDirty flags n and every ancestor up to the root. A leaf's digest
// feeds directly into its parent's, so a change anywhere below a node
// invalidates that node's cached digest too.
func (n *treeNode) markDirty() {
	for cur := n; cur != nil; cur = cur.parent {
		cur.dirty = true
	}
}

// NewTreeStore builds an empty tree of fanout width and depth levels below
// the root. width must be at least 1; depth of 0 makes the root itself the
// only leaf.
func NewTreeStore(width, depth int) *TreeStore {
	if width < 1 {
		width = 1
	}
	if depth < 0 {
		depth = 0
	}
	return &TreeStore{
		width: width,
		depth: depth,
		root:  &treeNode{isLeaf: depth == 0},
	}
}

// route walks name through the tree's fixed routing function, creating
// interior nodes lazily as it goes, and returns the leaf that owns it.
// pos = depth % len(name); branch = byte(name[pos]) % W.
func (t *TreeStore) route(name string) *treeNode {
	name = canonicalOwner(name)
	n := t.root
	for d := 0; d < t.depth; d++ {
		if n.children == nil {
			n.children = make([]*treeNode, t.width)
		}
		pos := d % len(name)
		branch := int(name[pos]) % t.width
		child := n.children[branch]
		if child == nil {
			child = &treeNode{isLeaf: d == t.depth-1, parent: n}
			n.children[branch] = child
		}
		n = child
	}
	return n
}

func (t *TreeStore) Add(rr *dnsmsg.Resource) {
	leaf := t.route(rr.Name)
	leaf.leaf = append(leaf.leaf, rr)
	leaf.markDirty()
}

func (t *TreeStore) Remove(typ, covered dnsmsg.Type) int {
	removed := 0
	t.walkLeaves(t.root, func(leaf *treeNode) {
		kept := leaf.leaf[:0]
		touched := false
		for _, rr := range leaf.leaf {
			if matchesTypeCovered(rr, typ, covered) {
				removed++
				touched = true
				continue
			}
			kept = append(kept, rr)
		}
		leaf.leaf = kept
		if touched {
			leaf.markDirty()
		}
	})
	return removed
}

// RemoveExact routes rr to the leaf it would have been added to and
// removes the first matching record there, reporting whether one was found.
func (t *TreeStore) RemoveExact(rr *dnsmsg.Resource) bool {
	leaf := t.route(rr.Name)
	for i, cand := range leaf.leaf {
		if sameRR(cand, rr) {
			leaf.leaf = append(leaf.leaf[:i], leaf.leaf[i+1:]...)
			leaf.markDirty()
			return true
		}
	}
	return false
}

func (t *TreeStore) walkLeaves(n *treeNode, fn func(*treeNode)) {
	if n.isLeaf {
		fn(n)
		return
	}
	for _, c := range n.children {
		if c != nil {
			t.walkLeaves(c, fn)
		}
	}
}

func (t *TreeStore) FindApexZonemds(origin string) []*dnsmsg.Resource {
	return findApexZonemds(t.All(), origin)
}

func (t *TreeStore) IterSorted(origin string) ([][]byte, error) {
	return canonicalize(t.All(), origin)
}

func (t *TreeStore) All() []*dnsmsg.Resource {
	var out []*dnsmsg.Resource
	t.walkLeaves(t.root, func(leaf *treeNode) {
		out = append(out, leaf.leaf...)
	})
	return out
}
