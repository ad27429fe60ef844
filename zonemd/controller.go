package zonemd

import (
	"bytes"
	"log"

	"github.com/cockroachdb/errors"

	"github.com/KarpelesLab/dns/dnsmsg"
	"github.com/KarpelesLab/dns/dnssec"
)

// Controller drives the placeholder/calculate/verify/update lifecycle over a
// single zone loaded into store.
type Controller struct {
	Origin string
	Store  Store
	Cache  LeafCache // nil disables leaf caching
}

func (ctl *Controller) soaSerial() (uint32, error) {
	serial, _, err := ctl.soaSerialTTL()
	return serial, err
}

func (ctl *Controller) soaSerialTTL() (serial uint32, ttl uint32, err error) {
	for _, rr := range ctl.Store.All() {
		if rr.Type == dnsmsg.SOA && canonicalOwner(rr.Name) == canonicalOwner(ctl.Origin) {
			soa, ok := rr.Data.(*dnsmsg.RDataSOA)
			if !ok {
				return 0, 0, errors.Wrap(ErrParse, "apex SOA has unexpected rdata type")
			}
			return soa.Serial, rr.TTL, nil
		}
	}
	return 0, 0, ErrNoSoa
}

// AddPlaceholders removes any existing apex ZONEMD RRset and inserts one
// placeholder record per digest type in digestTypes, each carrying the
// zone's current SOA serial, the SOA's TTL, and an all-zero digest of the
// correct length. Duplicate digest types are skipped with a log warning rather than
// producing two placeholders for the same type.
func (ctl *Controller) AddPlaceholders(digestTypes []byte) error {
	serial, ttl, err := ctl.soaSerialTTL()
	if err != nil {
		return err
	}

	n := 0
	for _, rr := range ctl.Store.FindApexZonemds(ctl.Origin) {
		if ctl.Store.RemoveExact(rr) {
			n++
		}
	}
	if n > 0 {
		log.Printf("[zonemd] removed %d existing apex ZONEMD record(s)", n)
	}

	seen := make(map[byte]bool)
	for _, dt := range digestTypes {
		if seen[dt] {
			log.Printf("[zonemd] duplicate digest type %d in placeholder request, skipping", dt)
			continue
		}
		seen[dt] = true

		l := digestLen(dt)
		if l == 0 {
			return errors.Wrapf(ErrUnsupportedDigest, "digest type %d", dt)
		}
		rdata, err := Pack(serial, dt, make([]byte, l))
		if err != nil {
			return err
		}
		ctl.Store.Add(&dnsmsg.Resource{
			Name:  ctl.Origin,
			Type:  dnsmsg.ZONEMD,
			Class: dnsmsg.IN,
			TTL:   ttl,
			Data:  rdata,
		})
	}
	return nil
}

// Calculate computes and writes back the digest for every apex ZONEMD
// record currently present. When signer is non-nil, it resigns the apex
// ZONEMD RRset afterward, covering the freshly written digests.
func (ctl *Controller) Calculate(signer *dnssec.Signer, signerName string, ttl uint32, inception, expiration uint32) error {
	zonemds := ctl.Store.FindApexZonemds(ctl.Origin)
	if len(zonemds) == 0 {
		return ErrNoZonemd
	}

	for _, rr := range zonemds {
		_, digestType, _, err := Unpack(rr)
		if err != nil {
			return err
		}
		digest, err := Compute(ctl.Store, ctl.Origin, digestType, ctl.Cache)
		if err != nil {
			return err
		}
		if err := UpdateDigest(rr, digestType, digest); err != nil {
			return err
		}
	}

	if signer == nil {
		return nil
	}

	sig, err := signer.SignRRset(zonemds, signerName, ttl, inception, expiration)
	if err != nil {
		return errors.Wrap(ErrKey, err.Error())
	}
	ctl.Store.Remove(dnsmsg.RRSIG, dnsmsg.ZONEMD)
	ctl.Store.Add(&dnsmsg.Resource{
		Name:  ctl.Origin,
		Type:  dnsmsg.RRSIG,
		Class: dnsmsg.IN,
		TTL:   ttl,
		Data:  sig,
	})
	return nil
}

// Verify recomputes the digest for every apex ZONEMD record and compares it
// against what is stored. It does not stop at the first failure: every
// mismatch found is returned so a caller can report all of them at once.
func (ctl *Controller) Verify() (ok bool, mismatches []*Mismatch, err error) {
	zonemds := ctl.Store.FindApexZonemds(ctl.Origin)
	if len(zonemds) == 0 {
		return false, nil, ErrNoZonemd
	}

	soaSerial, err := ctl.soaSerial()
	if err != nil {
		return false, nil, err
	}

	ok = true
	for _, rr := range zonemds {
		serial, digestType, digest, uerr := Unpack(rr)
		if uerr != nil {
			return false, nil, uerr
		}

		if serial != soaSerial {
			ok = false
			mismatches = append(mismatches, &Mismatch{DigestType: digestType, Kind: ErrSerialMismatch, Found: digest})
			continue
		}

		if digestLen(digestType) == 0 {
			ok = false
			mismatches = append(mismatches, &Mismatch{DigestType: digestType, Kind: ErrUnsupportedDigest, Found: digest})
			continue
		}

		computed, cerr := Compute(ctl.Store, ctl.Origin, digestType, ctl.Cache)
		if cerr != nil {
			return false, nil, cerr
		}

		if !bytes.Equal(computed, digest) {
			ok = false
			mismatches = append(mismatches, &Mismatch{DigestType: digestType, Kind: ErrDigestMismatch, Found: digest, Computed: computed})
		}
	}

	return ok, mismatches, nil
}
