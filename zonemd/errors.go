package zonemd

import "github.com/cockroachdb/errors"

// Error kinds a caller can recover with errors.Is, regardless of how much
// path or line context was attached to the error on its way up through
// errors.Wrapf.
var (
	// ErrParse indicates a zone or update file could not be parsed.
	ErrParse = errors.New("zonemd: parse error")
	// ErrOutOfZone indicates a record's owner name falls outside the zone's origin.
	ErrOutOfZone = errors.New("zonemd: record out of zone")
	// ErrNoSoa indicates the zone has no SOA record at its origin.
	ErrNoSoa = errors.New("zonemd: no SOA at origin")
	// ErrNoZonemd indicates calculate or verify was requested with no apex ZONEMD present.
	ErrNoZonemd = errors.New("zonemd: no ZONEMD record at apex")
	// ErrUnsupportedDigest indicates a digest_type this module does not implement.
	ErrUnsupportedDigest = errors.New("zonemd: unsupported digest type")
	// ErrDigestTypeMismatch indicates update_digest was called with a digest_type
	// different from the one already stored in the ZONEMD rdata.
	ErrDigestTypeMismatch = errors.New("zonemd: digest type mismatch")
	// ErrSerialMismatch indicates a ZONEMD's serial does not match the zone's SOA serial.
	ErrSerialMismatch = errors.New("zonemd: serial mismatch")
	// ErrDigestMismatch indicates a computed digest does not match the one stored in the zone.
	ErrDigestMismatch = errors.New("zonemd: digest mismatch")
	// ErrIO wraps I/O failures reading or writing zone-related files.
	ErrIO = errors.New("zonemd: I/O error")
	// ErrKey wraps failures loading or using signing key material.
	ErrKey = errors.New("zonemd: key error")
)

// Mismatch describes a single verify failure for one apex ZONEMD record.
type Mismatch struct {
	DigestType byte
	Kind       error // one of ErrSerialMismatch, ErrUnsupportedDigest, ErrDigestMismatch
	Found      []byte
	Computed   []byte
}

func (m *Mismatch) Error() string {
	return errors.Wrapf(m.Kind, "digest type %d", m.DigestType).Error()
}
