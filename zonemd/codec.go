package zonemd

import (
	"github.com/cockroachdb/errors"

	"github.com/KarpelesLab/dns/dnsmsg"
)

// DigestSHA384 is the only ZONEMD digest type this module implements.
const DigestSHA384 = 1

// digestLen returns the expected digest length for digest_type, or 0 if the
// type is not supported.
func digestLen(digestType byte) int {
	switch digestType {
	case DigestSHA384:
		return 48
	default:
		return 0
	}
}

// Pack builds ZONEMD rdata for serial/digestType/digest. len(digest) must
// equal the configured digest length for digestType.
func Pack(serial uint32, digestType byte, digest []byte) (*dnsmsg.RDataZONEMD, error) {
	l := digestLen(digestType)
	if l == 0 {
		return nil, errors.Wrapf(ErrUnsupportedDigest, "digest type %d", digestType)
	}
	if len(digest) != l {
		return nil, errors.Newf("zonemd: digest length %d does not match expected %d for type %d", len(digest), l, digestType)
	}
	return &dnsmsg.RDataZONEMD{
		Serial:     serial,
		DigestType: digestType,
		Reserved:   0,
		Digest:     append([]byte(nil), digest...),
	}, nil
}

// Unpack extracts (serial, digest_type, digest) from a ZONEMD rdata value.
// Both physical encodings described by the type's draft are accepted: the
// structured RDataZONEMD produced by this module's own encoder, and the
// opaque blob an encoder unaware of ZONEMD would emit for an unknown type —
// both share the same 6-byte-header-plus-digest layout, so RDataRaw decodes
// identically via the same field offsets.
func Unpack(rr *dnsmsg.Resource) (serial uint32, digestType byte, digest []byte, err error) {
	switch d := rr.Data.(type) {
	case *dnsmsg.RDataZONEMD:
		return d.Serial, d.DigestType, d.Digest, nil
	case *dnsmsg.RDataRaw:
		if len(d.Data) < 6 {
			return 0, 0, nil, errors.Wrap(ErrParse, "zonemd rdata too short")
		}
		serial = uint32(d.Data[0])<<24 | uint32(d.Data[1])<<16 | uint32(d.Data[2])<<8 | uint32(d.Data[3])
		digestType = d.Data[4]
		digest = append([]byte(nil), d.Data[6:]...)
		return serial, digestType, digest, nil
	default:
		return 0, 0, nil, errors.Newf("zonemd: unexpected rdata type %T for ZONEMD record", rr.Data)
	}
}

// UpdateDigest rewrites rr's digest bytes in place, preserving its serial.
// It fails with ErrDigestTypeMismatch if newDigestType differs from the
// digest_type already stored in rr.
func UpdateDigest(rr *dnsmsg.Resource, newDigestType byte, newDigest []byte) error {
	serial, storedType, _, err := Unpack(rr)
	if err != nil {
		return err
	}
	if storedType != newDigestType {
		return errors.Wrapf(ErrDigestTypeMismatch, "stored type %d, new type %d", storedType, newDigestType)
	}
	packed, err := Pack(serial, newDigestType, newDigest)
	if err != nil {
		return err
	}
	rr.Data = packed
	return nil
}
