package zonemd

import (
	"crypto/sha512"
	"hash"

	"github.com/cockroachdb/errors"
)

// LeafCache is the interface the tree digest engine uses to skip rehashing a
// leaf whose contents have not changed since the last run. zonemd/cache
// implements it on top of pebble; a nil LeafCache (or simply omitting one)
// disables caching entirely without changing any call site.
type LeafCache interface {
	Get(origin string, path []byte, fingerprint []byte) ([]byte, bool)
	Put(origin string, path []byte, fingerprint []byte, digest []byte) error
}

func newHash(digestType byte) (hash.Hash, error) {
	switch digestType {
	case DigestSHA384:
		return sha512.New384(), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedDigest, "digest type %d", digestType)
	}
}

// Compute returns the zone digest for store under origin, using digestType.
// cache may be nil to disable leaf caching; it is consulted only when store
// is a *TreeStore, since a FlatStore has no concept of a leaf to cache.
func Compute(store Store, origin string, digestType byte, cache LeafCache) ([]byte, error) {
	switch s := store.(type) {
	case *TreeStore:
		return computeTree(s, origin, digestType, cache)
	default:
		return computeFlat(store, origin, digestType)
	}
}

func computeFlat(store Store, origin string, digestType byte) ([]byte, error) {
	recs, err := store.IterSorted(origin)
	if err != nil {
		return nil, err
	}
	h, err := newHash(digestType)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		h.Write(r)
	}
	return h.Sum(nil), nil
}

func computeTree(t *TreeStore, origin string, digestType byte, cache LeafCache) ([]byte, error) {
	d, err := computeNode(t.root, nil, origin, digestType, cache)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// computeNode returns node's digest, recomputing only when node (or one of
// its descendants) is marked dirty. path identifies node's position in the
// tree for cache keying: the sequence of branch indices taken from the root.
func computeNode(n *treeNode, path []byte, origin string, digestType byte, cache LeafCache) ([]byte, error) {
	if n.isLeaf {
		return computeLeaf(n, path, origin, digestType, cache)
	}

	if !n.dirty && n.cached != nil {
		return n.cached, nil
	}

	h, err := newHash(digestType)
	if err != nil {
		return nil, err
	}
	for i, c := range n.children {
		if c == nil {
			continue
		}
		childPath := append(append([]byte(nil), path...), byte(i))
		cd, err := computeNode(c, childPath, origin, digestType, cache)
		if err != nil {
			return nil, err
		}
		h.Write(cd)
	}
	n.cached = h.Sum(nil)
	n.dirty = false
	return n.cached, nil
}

func computeLeaf(n *treeNode, path []byte, origin string, digestType byte, cache LeafCache) ([]byte, error) {
	if !n.dirty && n.cached != nil {
		return n.cached, nil
	}

	recs, err := canonicalize(n.leaf, origin)
	if err != nil {
		return nil, err
	}

	fph, err := newHash(digestType)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		fph.Write(r)
	}
	fingerprint := fph.Sum(nil)

	if cache != nil {
		if d, ok := cache.Get(origin, path, fingerprint); ok {
			n.cached = d
			n.dirty = false
			return d, nil
		}
	}

	// With SHA-384 the leaf digest and the fingerprint used to key the cache
	// happen to be the same hash over the same bytes, so there is no second
	// pass here: fingerprint doubles as the digest.
	digest := fingerprint
	if cache != nil {
		if err := cache.Put(origin, path, fingerprint, digest); err != nil {
			return nil, err
		}
	}

	n.cached = digest
	n.dirty = false
	return digest, nil
}
