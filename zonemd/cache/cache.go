// Package cache provides a persistent, content-addressed store for tree
// digest engine leaf digests, backed by pebble.
package cache

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// Cache wraps a pebble database keyed by (origin, leaf path, fingerprint).
// Every method is a safe no-op on a nil *Cache, so callers can pass one
// around unconditionally and only pay for it when -cache was given.
type Cache struct {
	db *pebble.DB
}

// Open opens (creating if necessary) a pebble-backed cache at dir.
func Open(dir string) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening digest cache at %s", dir)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

func key(origin string, path, fingerprint []byte) []byte {
	var buf bytes.Buffer
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(origin)))
	buf.Write(l[:])
	buf.WriteString(origin)
	binary.BigEndian.PutUint16(l[:], uint16(len(path)))
	buf.Write(l[:])
	buf.Write(path)
	buf.Write(fingerprint)
	return buf.Bytes()
}

// Get returns the cached digest for (origin, path, fingerprint). A miss
// happens both when the entry is absent and when c itself is nil, so a
// disabled cache and a cold cache behave identically to callers.
func (c *Cache) Get(origin string, path, fingerprint []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	v, closer, err := c.db.Get(key(origin, path, fingerprint))
	if err != nil {
		return nil, false
	}
	digest := append([]byte(nil), v...)
	closer.Close()
	return digest, true
}

// Put stores digest under (origin, path, fingerprint). The fingerprint is a
// hash over the leaf's own canonical record bytes, so a stale entry is never
// explicitly invalidated: it simply stops being looked up once the leaf's
// contents change and its fingerprint changes with them.
func (c *Cache) Put(origin string, path, fingerprint, digest []byte) error {
	if c == nil {
		return nil
	}
	return c.db.Set(key(origin, path, fingerprint), digest, pebble.NoSync)
}
