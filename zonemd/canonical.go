package zonemd

import (
	"bytes"
	"log"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/KarpelesLab/dns/dnsmsg"
)

// canonicalOwner lowercases name for ordering and hashing purposes, the same
// fold RFC 4034 §6.1 requires for RRSIG coverage; ZONEMD canonicalization
// reuses it for record ordering rather than signature verification.
func canonicalOwner(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, ".")) + "."
}

// record pairs a parsed resource with the canonical bytes used to sort and
// hash it, so encoding happens exactly once per record.
type record struct {
	rr   *dnsmsg.Resource
	wire []byte
}

// canonicalize reduces rrs to the ordered, deduplicated, placeholder-zeroed
// byte sequence a digest is computed over. origin identifies the zone apex,
// used to find the ZONEMD RRset to zero out.
//
// Order of operations follows the digest's own definition: collect, drop
// RRSIG(ZONEMD), zero the apex ZONEMD digest fields, encode, sort, dedup.
func canonicalize(rrs []*dnsmsg.Resource, origin string) ([][]byte, error) {
	origin = canonicalOwner(origin)

	recs := make([]record, 0, len(rrs))
	for _, rr := range rrs {
		if rr.Type == dnsmsg.RRSIG {
			if sig, ok := rr.Data.(*dnsmsg.RDataRRSIG); ok && sig.TypeCovered == dnsmsg.ZONEMD {
				continue
			}
		}

		encRR := rr
		if rr.Type == dnsmsg.ZONEMD && canonicalOwner(rr.Name) == origin {
			zeroed, err := zeroDigest(rr)
			if err != nil {
				return nil, err
			}
			encRR = zeroed
		}

		wire, err := encodeCanonical(encRR)
		if err != nil {
			return nil, err
		}
		recs = append(recs, record{rr: encRR, wire: wire})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return bytes.Compare(recs[i].wire, recs[j].wire) < 0
	})

	out := make([][]byte, 0, len(recs))
	var prev *record
	for i := range recs {
		r := &recs[i]
		if prev != nil && bytes.Equal(prev.wire, r.wire) {
			log.Printf("[zonemd] duplicate record collapsed: %s %s", r.rr.Name, r.rr.Type)
			continue
		}
		out = append(out, r.wire)
		prev = r
	}
	return out, nil
}

// zeroDigest returns a copy of rr with its digest bytes replaced by zeros of
// the same length, leaving serial, digest_type and the reserved octet
// intact. This is the fixed point that lets the digest of a zone cover its
// own placeholder ZONEMD record: the record is hashed as if its digest
// field were all zero, then the real digest is written in afterward.
func zeroDigest(rr *dnsmsg.Resource) (*dnsmsg.Resource, error) {
	_, digestType, digest, err := Unpack(rr)
	if err != nil {
		return nil, err
	}
	zeroed := make([]byte, len(digest))
	cp := *rr
	z, ok := rr.Data.(*dnsmsg.RDataZONEMD)
	if !ok {
		return nil, errors.Newf("zonemd: cannot zero digest of %T", rr.Data)
	}
	zc := *z
	zc.DigestType = digestType
	zc.Digest = zeroed
	cp.Data = &zc
	return &cp, nil
}

// encodeCanonical writes rr in canonical wire form: lowercased owner name,
// type, class, TTL, RDLENGTH, then rdata — the full RR wire form Resource.Encode
// produces, over a copy with the owner name folded to lower case. Two records
// differing only in TTL must hash differently, so TTL is carried through
// rather than dropped.
func encodeCanonical(rr *dnsmsg.Resource) ([]byte, error) {
	canon := &dnsmsg.Resource{
		Name:  canonicalOwner(rr.Name),
		Type:  rr.Type,
		Class: rr.Class,
		TTL:   rr.TTL,
		Data:  rr.Data,
	}
	return canon.Encode()
}
